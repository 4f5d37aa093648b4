package actions

import (
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/lukasbauer/dispatchvoice/internal/dispatch"
	"github.com/lukasbauer/dispatchvoice/internal/llm"
)

func newTestExecutor() *Executor {
	l, _ := test.NewNullLogger()
	e := NewExecutor(l)
	e.now = func() time.Time { return time.Date(2026, 3, 1, 15, 4, 5, 0, time.UTC) }
	return e
}

func TestUpdateDeliveryStatusOnlyStatus(t *testing.T) {
	e := newTestExecutor()
	facts := dispatch.StructuredResult{}

	out := e.Execute(&llm.FunctionCall{Name: llm.FuncUpdateDeliveryStatus, Arguments: `{"status":"delayed"}`},
		"model text", facts, dispatch.SourceRealtime)

	if out.EndCall {
		t.Error("update_delivery_status must not end the call")
	}
	if !out.Applied || out.Err != nil {
		t.Fatalf("Applied = %v Err = %v", out.Applied, out.Err)
	}
	if facts["status"] != "delayed" {
		t.Errorf("status = %v, want delayed", facts["status"])
	}
	if facts.Source() != dispatch.SourceRealtime {
		t.Errorf("data_source = %q", facts.Source())
	}
	if facts["call_outcome"] != OutcomeInTransit {
		t.Errorf("call_outcome = %v", facts["call_outcome"])
	}
	if out.Reply != ReplyStatusUpdated {
		t.Errorf("Reply = %q", out.Reply)
	}
	if facts[dispatch.KeyUpdatedAt] != "2026-03-01T15:04:05Z" {
		t.Errorf("updated_at = %v", facts[dispatch.KeyUpdatedAt])
	}
}

func TestUpdateDeliveryStatusAllFields(t *testing.T) {
	e := newTestExecutor()
	facts := dispatch.StructuredResult{}

	e.Execute(&llm.FunctionCall{
		Name:      llm.FuncUpdateDeliveryStatus,
		Arguments: `{"status":"Arrived","eta":"now","location":"Dock 4, Dallas","delay_reason":"","notes":"waiting on lumper"}`,
	}, "", facts, dispatch.SourceRealtime)

	want := map[string]any{
		"status":           "arrived",
		"eta":              "now",
		"current_location": "Dock 4, Dallas",
		"notes":            "waiting on lumper",
		"call_outcome":     OutcomeArrival,
	}
	for k, v := range want {
		if facts[k] != v {
			t.Errorf("%s = %v, want %v", k, facts[k], v)
		}
	}
	if _, ok := facts["delay_reason"]; ok {
		t.Error("empty delay_reason should not be written")
	}
}

func TestUpdateDeliveryStatusInvalid(t *testing.T) {
	tests := []struct {
		name string
		args string
	}{
		{"missing status", `{"eta":"5pm"}`},
		{"status outside enum", `{"status":"lost"}`},
		{"malformed json", `{"status":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestExecutor()
			facts := dispatch.StructuredResult{"eta": "4pm"}

			out := e.Execute(&llm.FunctionCall{Name: llm.FuncUpdateDeliveryStatus, Arguments: tt.args},
				"Could you tell me your status?", facts, dispatch.SourceRealtime)

			if out.Applied || out.EndCall {
				t.Errorf("Applied = %v EndCall = %v, want false/false", out.Applied, out.EndCall)
			}
			if !errors.Is(out.Err, ErrInvalidArgs) {
				t.Errorf("Err = %v, want ErrInvalidArgs", out.Err)
			}
			if out.Reply != "Could you tell me your status?" {
				t.Errorf("Reply = %q, want model text", out.Reply)
			}
			if len(facts) != 1 || facts["eta"] != "4pm" {
				t.Errorf("facts mutated: %v", facts)
			}
		})
	}
}

func TestReportEmergency(t *testing.T) {
	e := newTestExecutor()
	facts := dispatch.StructuredResult{"status": "driving"}

	out := e.Execute(&llm.FunctionCall{
		Name:      llm.FuncReportEmergency,
		Arguments: `{"emergency_type":"accident","location":"I-40 mile marker 212","escalation_status":"connecting_to_dispatcher","injuries_reported":false,"load_secure":"yes"}`,
	}, "", facts, dispatch.SourceRealtime)

	if !out.EndCall {
		t.Error("report_emergency must end the call")
	}
	if !facts.IsEmergency() || facts.EmergencyType() != "accident" {
		t.Errorf("emergency = %v type = %q", facts["emergency"], facts.EmergencyType())
	}
	if facts["emergency_location"] != "I-40 mile marker 212" {
		t.Errorf("emergency_location = %v", facts["emergency_location"])
	}
	if facts["injuries_reported"] != false || facts["load_secure"] != true {
		t.Errorf("injuries = %v load_secure = %v", facts["injuries_reported"], facts["load_secure"])
	}
	if facts["call_outcome"] != OutcomeEmergency {
		t.Errorf("call_outcome = %v", facts["call_outcome"])
	}
	if facts["status"] != "driving" {
		t.Error("unrelated facts should survive the merge")
	}
	if out.Emergency == nil || out.Emergency.ID == "" || out.Emergency.Type != "accident" {
		t.Fatalf("Emergency = %+v", out.Emergency)
	}
	if facts["emergency_id"] != out.Emergency.ID {
		t.Error("emergency_id should match the escalation record")
	}
	if out.Reply != ReplyEmergency {
		t.Errorf("Reply = %q", out.Reply)
	}
}

func TestReportEmergencyEveryTypeEndsCall(t *testing.T) {
	for _, et := range llm.EmergencyTypes {
		for _, es := range llm.EscalationStatuses {
			e := newTestExecutor()
			facts := dispatch.StructuredResult{}
			out := e.Execute(&llm.FunctionCall{
				Name:      llm.FuncReportEmergency,
				Arguments: `{"emergency_type":"` + et + `","location":"US-287","escalation_status":"` + es + `"}`,
			}, "", facts, dispatch.SourceRealtime)

			if !out.EndCall || !facts.IsEmergency() {
				t.Errorf("%s/%s: EndCall = %v emergency = %v", et, es, out.EndCall, facts.IsEmergency())
			}
		}
	}
}

func TestReportEmergencyInvalidStillEnds(t *testing.T) {
	e := newTestExecutor()
	facts := dispatch.StructuredResult{}

	out := e.Execute(&llm.FunctionCall{Name: llm.FuncReportEmergency, Arguments: `not json`}, "", facts, dispatch.SourceRealtime)

	if !out.EndCall {
		t.Error("report_emergency must end the call even with bad arguments")
	}
	if out.Applied || len(facts) != 0 {
		t.Errorf("facts = %v, want untouched", facts)
	}
	if out.Reply != ReplyEmergency {
		t.Errorf("Reply = %q", out.Reply)
	}
}

func TestEndConversation(t *testing.T) {
	e := newTestExecutor()
	facts := dispatch.StructuredResult{}

	out := e.Execute(&llm.FunctionCall{Name: llm.FuncEndConversation, Arguments: `{"reason":"done"}`}, "bye", facts, dispatch.SourceRealtime)

	if !out.EndCall || out.Reply != ReplyClosing {
		t.Errorf("EndCall = %v Reply = %q", out.EndCall, out.Reply)
	}
	if len(facts) != 0 {
		t.Errorf("facts = %v, want untouched", facts)
	}
}

func TestUnknownFunction(t *testing.T) {
	e := newTestExecutor()
	facts := dispatch.StructuredResult{}

	out := e.Execute(&llm.FunctionCall{Name: "transfer_call", Arguments: `{}`}, "One moment.", facts, dispatch.SourceRealtime)

	if out.EndCall || out.Applied {
		t.Errorf("EndCall = %v Applied = %v", out.EndCall, out.Applied)
	}
	if out.Reply != "One moment." {
		t.Errorf("Reply = %q, want model text unchanged", out.Reply)
	}
	if !errors.Is(out.Err, ErrUnknownFunction) {
		t.Errorf("Err = %v", out.Err)
	}
}

func TestNilCall(t *testing.T) {
	out := newTestExecutor().Execute(nil, "hello", dispatch.StructuredResult{}, dispatch.SourceRealtime)
	if out.Reply != "hello" || out.EndCall || out.Applied {
		t.Errorf("out = %+v", out)
	}
}
