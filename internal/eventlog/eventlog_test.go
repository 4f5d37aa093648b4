package eventlog

import (
	"context"
	"math"
	"testing"
)

func TestEventTypeConstants(t *testing.T) {
	expectedEvents := map[EventType]string{
		EventCallPlaced:         "call_placed",
		EventSessionStarted:     "session_started",
		EventSessionRejected:    "session_rejected",
		EventTurnReceived:       "turn_received",
		EventLLMCompleted:       "llm_completed",
		EventLLMFallback:        "llm_fallback",
		EventLLMError:           "llm_error",
		EventActionExecuted:     "action_executed",
		EventActionRejected:     "action_rejected",
		EventEmergencyEscalated: "emergency_escalated",
		EventSessionEnded:       "session_ended",
		EventWebhookReceived:    "webhook_received",
		EventAnalysisCompleted:  "analysis_completed",
		EventAnalysisFailed:     "analysis_failed",
	}

	for eventType, expectedValue := range expectedEvents {
		if string(eventType) != expectedValue {
			t.Errorf("EventType %q = %q, want %q", expectedValue, string(eventType), expectedValue)
		}
	}
}

func TestLoggerNew(t *testing.T) {
	logger := New(nil)
	if logger == nil {
		t.Fatal("New(nil) returned nil")
	}
}

func TestLoggerLogWithNilDB(t *testing.T) {
	logger := New(nil)
	if err := logger.Log(context.Background(), "call-1", EventTurnReceived, map[string]any{"response_id": 1}); err != nil {
		t.Errorf("Log() with nil DB should be a no-op, got %v", err)
	}
}

func TestLoggerLogAsyncWithNilDB(t *testing.T) {
	// Should not panic.
	New(nil).LogAsync("call-1", EventLLMFallback, map[string]any{"provider_used": "openai"})
}

func TestLoggerNilReceiver(t *testing.T) {
	var logger *Logger
	logger.LogAsync("call-1", EventSessionEnded, nil)
	if err := logger.Log(context.Background(), "call-1", EventSessionEnded, nil); err != nil {
		t.Errorf("Log() on nil logger = %v", err)
	}
	events, err := logger.List(context.Background(), "call-1", 10)
	if err != nil || len(events) != 0 {
		t.Errorf("List() on nil logger = %v, %v", events, err)
	}
}

func TestEncode(t *testing.T) {
	tests := []struct {
		name string
		data map[string]any
		want string
	}{
		{"nil", nil, "{}"},
		{"unencodable", map[string]any{"x": math.Inf(1)}, "{}"},
		{"simple", map[string]any{"provider": "groq"}, `{"provider":"groq"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(encode(tt.data)); got != tt.want {
				t.Errorf("encode() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDecode(t *testing.T) {
	if got := decode(nil); len(got) != 0 {
		t.Errorf("decode(nil) = %v", got)
	}
	if got := decode([]byte(`{"status":"delayed"}`)); got["status"] != "delayed" {
		t.Errorf("decode() = %v", got)
	}
	if got := decode([]byte(`not json`)); got == nil {
		t.Error("decode() of bad JSON should return an empty map")
	}
}
