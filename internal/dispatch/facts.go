package dispatch

import (
	"strings"
	"time"
)

// Provenance values stored under KeyDataSource.
const (
	SourceRealtime       = "websocket_realtime"
	SourcePostProcessing = "webhook_postprocessing"
	SourceError          = "error"
)

// Bookkeeping keys. They describe where facts came from rather than being
// facts themselves.
const (
	KeyDataSource       = "data_source"
	KeyFallbackLog      = "llm_fallback_log"
	KeyUpdatedAt        = "updated_at"
	KeyExtractionMethod = "extraction_method"
	KeyExtractionError  = "extraction_error"
	KeyPlatformAnalysis = "platform_analysis"
)

var bookkeepingKeys = map[string]bool{
	KeyDataSource:       true,
	KeyFallbackLog:      true,
	KeyUpdatedAt:        true,
	KeyExtractionMethod: true,
	KeyExtractionError:  true,
	KeyPlatformAnalysis: true,
}

// IsBookkeepingKey reports whether k is provenance bookkeeping.
func IsBookkeepingKey(k string) bool {
	return bookkeepingKeys[k]
}

// StructuredResult is the open set of business facts extracted from a call
// (delivery status, ETA, location, emergency flags, provenance).
type StructuredResult map[string]any

// FallbackEntry records one turn that needed the alternate model provider.
type FallbackEntry struct {
	ResponseID   int       `json:"response_id"`
	ProviderUsed string    `json:"provider_used"`
	At           time.Time `json:"at"`
}

// Merge copies updates into r. Regular keys are last-writer-wins; the
// fallback log is appended to instead of replaced.
func (r StructuredResult) Merge(updates map[string]any) {
	for k, v := range updates {
		if k == KeyFallbackLog {
			r[KeyFallbackLog] = append(r.fallbackLog(), toAnySlice(v)...)
			continue
		}
		r[k] = v
	}
}

// AppendFallback adds an entry to the fallback log.
func (r StructuredResult) AppendFallback(e FallbackEntry) {
	r[KeyFallbackLog] = append(r.fallbackLog(), map[string]any{
		"response_id":   e.ResponseID,
		"provider_used": e.ProviderUsed,
		"at":            e.At.UTC().Format(time.RFC3339),
	})
}

// FallbackCount returns the number of fallback log entries.
func (r StructuredResult) FallbackCount() int {
	return len(r.fallbackLog())
}

func (r StructuredResult) fallbackLog() []any {
	if r == nil {
		return nil
	}
	return toAnySlice(r[KeyFallbackLog])
}

func toAnySlice(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	case []map[string]any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = t[i]
		}
		return out
	default:
		return []any{t}
	}
}

// HasUsableData reports whether r carries at least one business fact.
func (r StructuredResult) HasUsableData() bool {
	for k := range r {
		if !IsBookkeepingKey(k) {
			return true
		}
	}
	return false
}

// Source returns the provenance tag or "".
func (r StructuredResult) Source() string {
	return r.String(KeyDataSource)
}

// String returns r[k] when it is a non-empty string.
func (r StructuredResult) String(k string) string {
	if r == nil {
		return ""
	}
	s, _ := r[k].(string)
	return strings.TrimSpace(s)
}

// CapturedStatus returns the delivery status captured by either the
// realtime action (status) or the heuristic extractor (driver_status).
// "Unknown" does not count as captured.
func (r StructuredResult) CapturedStatus() string {
	for _, k := range []string{"status", "driver_status"} {
		if s := r.String(k); s != "" && !strings.EqualFold(s, "unknown") {
			return s
		}
	}
	return ""
}

// CapturedETA returns the captured ETA or "".
func (r StructuredResult) CapturedETA() string {
	return r.String("eta")
}

// EmergencyType returns the captured emergency type or "".
func (r StructuredResult) EmergencyType() string {
	return r.String("emergency_type")
}

// IsEmergency reports whether an emergency was recorded.
func (r StructuredResult) IsEmergency() bool {
	if r == nil {
		return false
	}
	b, _ := r["emergency"].(bool)
	return b
}

// Clone returns a shallow copy of r.
func (r StructuredResult) Clone() StructuredResult {
	out := make(StructuredResult, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
