package extract

import (
	"strings"
	"testing"
)

func TestProcessRunningLate(t *testing.T) {
	transcript := "Agent: Hi Mike, this is Dispatch checking on load 7781. How's it going?\n" +
		"User: I'm running late, stuck in traffic, should be there by 5pm"

	r := Process(transcript, "check-in")

	if got := r.String("driver_status"); got != "Delayed" {
		t.Errorf("driver_status = %q, want Delayed", got)
	}
	if got := r.String("delay_reason"); !strings.Contains(got, "Traffic") {
		t.Errorf("delay_reason = %q, want it to mention Traffic", got)
	}
	if got := r.String("eta"); got != "be there by 5pm" {
		t.Errorf("eta = %q", got)
	}
	if got := r.String("call_outcome"); got != "In-Transit Update" {
		t.Errorf("call_outcome = %q", got)
	}
	if r.IsEmergency() {
		t.Error("check-in should not be flagged as an emergency")
	}
}

func TestProcessAccident(t *testing.T) {
	r := Process("User: we had an accident, everyone is fine, I-40 mile marker 212", "")

	if !r.IsEmergency() {
		t.Fatal("emergency = false, want true")
	}
	checks := map[string]string{
		"emergency_type":     "Accident",
		"emergency_location": "I-40 mile marker 212",
		"safety_status":      "Driver confirmed everyone is safe",
		"injury_status":      "No injuries reported",
		"escalation_status":  EscalationHuman,
		"call_outcome":       "Emergency Escalation",
	}
	for k, want := range checks {
		if got := r.String(k); got != want {
			t.Errorf("%s = %q, want %q", k, got, want)
		}
	}
}

func TestEmergencyType(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"User: truck broke down, it's a breakdown on the shoulder", "Breakdown"},
		{"User: I had a blowout", "Breakdown"},
		{"User: I'm feeling sick, medical issue", "Medical"},
		{"User: there's a fire near the trailer", "Other"},
		{"User: a car hit me, it was a crash", "Accident"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := Process(tt.text, "").String("emergency_type"); got != tt.want {
				t.Errorf("emergency_type = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDriverStatusOrder(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"User: still driving, heading east", "Driving"},
		{"User: I'm driving but delayed", "Driving"},
		{"User: just arrived, pulled in", "Arrived"},
		{"User: they're unloading me now", "Unloading"},
		{"User: yeah", "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			r := Process(tt.text, "")
			if got := r.String("driver_status"); got != tt.want {
				t.Errorf("driver_status = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAgentLinesIgnored(t *testing.T) {
	transcript := "Agent: Are you driving, or do you need help with anything?\nUser: all good, made it to the receiver"

	r := Process(transcript, "")
	if r.IsEmergency() {
		t.Error("agent mentioning help should not flag an emergency")
	}
	if got := r.String("driver_status"); got != "Arrived" {
		t.Errorf("driver_status = %q, want Arrived", got)
	}
	if got := r.String("call_outcome"); got != "Arrival Confirmation" {
		t.Errorf("call_outcome = %q", got)
	}
}

func TestUnloadingStatus(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"we're in door 12", "In Door 12"},
		{"waiting on the lumper", "Waiting for Lumper"},
		{"sitting in detention", "Detention"},
		{"all set", "N/A"},
	}

	for _, tt := range tests {
		if got := unloadingStatus(tt.text); got != tt.want {
			t.Errorf("unloadingStatus(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestPODAcknowledged(t *testing.T) {
	r := Process("Agent: Don't forget to send the POD once you're unloaded.\nUser: will do", "")
	if r["pod_reminder_acknowledged"] != true {
		t.Errorf("pod_reminder_acknowledged = %v, want true", r["pod_reminder_acknowledged"])
	}
}

func TestEmergencyScenarioForcesEmergencyRecord(t *testing.T) {
	r := Process("User: yeah I'm on the shoulder", "emergency")
	if !r.IsEmergency() || r.String("emergency_type") != "Other" {
		t.Errorf("r = %v", r)
	}
}

func TestUntaggedTranscript(t *testing.T) {
	r := Process("stuck in snow near the pass, be there in 3 hours", "")
	if r.String("delay_reason") != "Weather" {
		t.Errorf("delay_reason = %q, want Weather", r.String("delay_reason"))
	}
	if r.String("eta") != "in 3 hours" {
		t.Errorf("eta = %q", r.String("eta"))
	}
}
