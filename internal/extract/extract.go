// Package extract derives check-in or emergency facts from a finished
// transcript with keyword and pattern matching. It is the last resort of the
// post-call pipeline, used when neither the live session nor a model produced
// structured data.
package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lukasbauer/dispatchvoice/internal/dispatch"
)

// Extraction method tag written by the post-call pipeline.
const Method = "heuristic"

// EscalationHuman is the escalation status recorded for heuristic emergencies.
const EscalationHuman = "Connected to Human Dispatcher"

type keywordSet struct {
	label string
	re    *regexp.Regexp
}

func words(kws ...string) *regexp.Regexp {
	quoted := make([]string, len(kws))
	for i, k := range kws {
		quoted[i] = regexp.QuoteMeta(k)
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

var (
	emergencyRe = words("emergency", "accident", "crash", "blowout", "breakdown",
		"medical", "injured", "hurt", "sick", "fire", "help")

	// Checked in order; the first match wins.
	statusSets = []keywordSet{
		{"Driving", words("driving", "on the road", "en route", "heading", "moving")},
		{"Delayed", words("delayed", "stuck", "waiting", "traffic", "late")},
		{"Arrived", words("arrived", "here", "at the location", "made it", "pulled in")},
		{"Unloading", words("unloading", "unload", "getting unloaded", "at the dock")},
	}

	delaySets = []keywordSet{
		{"Heavy Traffic", words("traffic", "congestion", "jam")},
		{"Weather", words("weather", "rain", "snow", "storm", "fog")},
		{"Mechanical", words("mechanical", "truck issue", "problem with")},
		{"None", words("no delay", "on time", "on schedule")},
	}

	emergencyTypeSets = []keywordSet{
		{"Accident", words("accident", "crash", "hit")},
		{"Breakdown", words("breakdown", "blowout", "broke down")},
		{"Medical", words("medical", "sick", "injured", "hurt")},
	}

	locationRes = []*regexp.Regexp{
		regexp.MustCompile(`\b(?:(?:I|US|SR)-\d+|(?:Hwy|Highway|Route|Interstate)\s+\d+)(?:\s+(?i:mile\s+marker|mm|exit)\s+\d+)?`),
		regexp.MustCompile(`(?i)\b(?:at|near|on)\s+([A-Z][A-Za-z0-9\s\-]+(?:Highway|Interstate|I-\d+|Route|Road|Street))`),
		regexp.MustCompile(`(?i)\bmile\s+marker\s+(\d+)`),
		regexp.MustCompile(`\bin\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*,?\s*[A-Z]{2})\b`),
	}

	etaRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:arrive|get there|be there)\s+(?:by|around|at)?\s*(\d{1,2}(?::\d{2})?\s*(?:AM|PM)?)`),
		regexp.MustCompile(`(?i)\b(?:tomorrow|tonight|today)\s+(?:at|around)?\s*(\d{1,2}(?::\d{2})?\s*(?:AM|PM)?)`),
		regexp.MustCompile(`(?i)\bin\s+(\d+\s+(?:hours?|minutes?))`),
	}

	doorRe       = regexp.MustCompile(`(?i)\bdoor\s+(\d+)`)
	lumperRe     = words("waiting", "lumper")
	detentionRe  = words("detention")
	podRe        = words("pod", "proof of delivery", "paperwork")
	ackRe        = words("yes", "sure", "okay", "got it", "will do", "understood")
	safeRe       = words("safe", "okay", "fine", "unharmed")
	unsafeRe     = words("unsafe", "danger", "not safe")
	noInjuryRe   = words("no injuries", "not hurt", "not injured", "everyone's fine", "everyone is fine", "nobody hurt", "nobody is hurt", "no one is hurt")
	injuryRe     = words("injured", "hurt", "bleeding", "pain")
	loadSecureRe = words("load is secure", "cargo safe", "freight okay", "load is fine")
	loadDamageRe = words("load damaged", "cargo shift", "cargo shifted", "freight issue")
)

// Process extracts facts from a finished transcript. Keyword checks run
// against the driver's lines when the transcript carries speaker prefixes so
// the agent's own questions do not count as answers. An "emergency" scenario
// always yields an emergency record.
func Process(transcript, scenario string) dispatch.StructuredResult {
	driver, full := splitText(transcript)

	if strings.EqualFold(scenario, "emergency") || emergencyRe.MatchString(driver) {
		return emergencyRecord(driver)
	}
	return checkInRecord(driver, full)
}

// IsEmergency reports whether the driver's side of transcript mentions an
// emergency keyword.
func IsEmergency(transcript string) bool {
	driver, _ := splitText(transcript)
	return emergencyRe.MatchString(driver)
}

func splitText(transcript string) (driver, full string) {
	turns := dispatch.ParseTranscript(transcript)
	var lines []string
	for _, t := range turns {
		if t.Role == dispatch.RoleDriver {
			lines = append(lines, t.Text)
		}
	}
	if len(lines) == 0 {
		return transcript, transcript
	}
	return strings.Join(lines, "\n"), transcript
}

func checkInRecord(driver, full string) dispatch.StructuredResult {
	status := firstLabel(statusSets, driver, "Unknown")

	outcome := "In-Transit Update"
	if status == "Arrived" || status == "Unloading" {
		outcome = "Arrival Confirmation"
	}

	r := dispatch.StructuredResult{
		"call_outcome":              outcome,
		"driver_status":             status,
		"unloading_status":          unloadingStatus(driver),
		"pod_reminder_acknowledged": podRe.MatchString(full) && ackRe.MatchString(driver),
	}
	if loc := firstMatch(locationRes, driver); loc != "" {
		r["current_location"] = loc
	}
	if eta := firstMatch(etaRes, driver); eta != "" {
		r["eta"] = eta
	}
	if reason := firstLabel(delaySets, driver, ""); reason != "" {
		r["delay_reason"] = reason
	}
	return r
}

func emergencyRecord(driver string) dispatch.StructuredResult {
	r := dispatch.StructuredResult{
		"call_outcome":      "Emergency Escalation",
		"emergency":         true,
		"emergency_type":    firstLabel(emergencyTypeSets, driver, "Other"),
		"escalation_status": EscalationHuman,
	}

	switch {
	case unsafeRe.MatchString(driver):
		r["safety_status"] = "Safety concerns reported"
	case safeRe.MatchString(driver):
		r["safety_status"] = "Driver confirmed everyone is safe"
	}

	switch {
	case noInjuryRe.MatchString(driver):
		r["injury_status"] = "No injuries reported"
	case injuryRe.MatchString(driver):
		r["injury_status"] = "Injuries reported"
	}

	if loc := firstMatch(locationRes, driver); loc != "" {
		r["emergency_location"] = loc
	}

	switch {
	case loadSecureRe.MatchString(driver):
		r["load_secure"] = true
	case loadDamageRe.MatchString(driver):
		r["load_secure"] = false
	}
	return r
}

func unloadingStatus(text string) string {
	if m := doorRe.FindStringSubmatch(text); m != nil {
		return fmt.Sprintf("In Door %s", m[1])
	}
	if lumperRe.MatchString(text) {
		return "Waiting for Lumper"
	}
	if detentionRe.MatchString(text) {
		return "Detention"
	}
	return "N/A"
}

func firstLabel(sets []keywordSet, text, def string) string {
	for _, s := range sets {
		if s.re.MatchString(text) {
			return s.label
		}
	}
	return def
}

func firstMatch(res []*regexp.Regexp, text string) string {
	for _, re := range res {
		if m := re.FindString(text); m != "" {
			return strings.TrimSpace(m)
		}
	}
	return ""
}
