package lifecycle

import (
	"errors"
	"strings"
)

// Webhook event names.
const (
	EventCallStarted  = "call_started"
	EventCallEnded    = "call_ended"
	EventCallAnalyzed = "call_analyzed"
	EventCallFailed   = "call_failed"
)

var ErrMissingCallID = errors.New("lifecycle: webhook has no call id")

// WebhookEvent is a lifecycle notification from the voice platform. Current
// payloads nest call data under "call"; older ones carry it at the top level.
type WebhookEvent struct {
	Event string       `json:"event"`
	Call  *WebhookCall `json:"call,omitempty"`

	CallID       string         `json:"call_id,omitempty"`
	Transcript   string         `json:"transcript,omitempty"`
	Recording    string         `json:"recording_url,omitempty"`
	Duration     *int           `json:"duration,omitempty"`
	Analysis     map[string]any `json:"analysis,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
}

// WebhookCall is the nested call object. Timestamps are Unix milliseconds.
type WebhookCall struct {
	CallID              string         `json:"call_id"`
	AgentID             string         `json:"agent_id,omitempty"`
	CallStatus          string         `json:"call_status,omitempty"`
	Transcript          string         `json:"transcript,omitempty"`
	RecordingURL        string         `json:"recording_url,omitempty"`
	StartTimestamp      int64          `json:"start_timestamp,omitempty"`
	EndTimestamp        int64          `json:"end_timestamp,omitempty"`
	DisconnectionReason string         `json:"disconnection_reason,omitempty"`
	CallAnalysis        map[string]any `json:"call_analysis,omitempty"`
	Metadata            map[string]any `json:"metadata,omitempty"`
}

func (e WebhookEvent) PlatformCallID() string {
	if e.Call != nil && e.Call.CallID != "" {
		return e.Call.CallID
	}
	return e.CallID
}

func (e WebhookEvent) TranscriptText() string {
	if e.Call != nil && e.Call.Transcript != "" {
		return e.Call.Transcript
	}
	return e.Transcript
}

func (e WebhookEvent) RecordingURL() string {
	if e.Call != nil && e.Call.RecordingURL != "" {
		return e.Call.RecordingURL
	}
	return e.Recording
}

// DurationSec is (end - start) in whole seconds, or the flat duration field
// when timestamps are absent. Nil when neither is usable.
func (e WebhookEvent) DurationSec() *int {
	if e.Call != nil && e.Call.StartTimestamp > 0 && e.Call.EndTimestamp >= e.Call.StartTimestamp {
		d := int((e.Call.EndTimestamp - e.Call.StartTimestamp) / 1000)
		return &d
	}
	if e.Duration != nil && *e.Duration >= 0 {
		d := *e.Duration
		return &d
	}
	return nil
}

func (e WebhookEvent) PlatformAnalysis() map[string]any {
	if e.Call != nil && len(e.Call.CallAnalysis) > 0 {
		return e.Call.CallAnalysis
	}
	return e.Analysis
}

func (e WebhookEvent) FailureReason() string {
	if msg := strings.TrimSpace(e.ErrorMessage); msg != "" {
		return msg
	}
	if e.Call != nil && e.Call.DisconnectionReason != "" {
		return e.Call.DisconnectionReason
	}
	return "Call failed"
}
