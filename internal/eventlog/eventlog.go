package eventlog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EventType represents the type of call event
type EventType string

const (
	EventCallPlaced         EventType = "call_placed"
	EventSessionStarted     EventType = "session_started"
	EventSessionRejected    EventType = "session_rejected"
	EventTurnReceived       EventType = "turn_received"
	EventLLMCompleted       EventType = "llm_completed"
	EventLLMFallback        EventType = "llm_fallback"
	EventLLMError           EventType = "llm_error"
	EventActionExecuted     EventType = "action_executed"
	EventActionRejected     EventType = "action_rejected"
	EventEmergencyEscalated EventType = "emergency_escalated"
	EventSessionEnded       EventType = "session_ended"
	EventWebhookReceived    EventType = "webhook_received"
	EventAnalysisCompleted  EventType = "analysis_completed"
	EventAnalysisFailed     EventType = "analysis_failed"
)

// Event is one stored call event.
type Event struct {
	ID        int64          `json:"id"`
	CallID    string         `json:"call_id"`
	Type      EventType      `json:"event_type"`
	Data      map[string]any `json:"event_data"`
	CreatedAt time.Time      `json:"created_at"`
}

// Logger provides async event logging to the database
type Logger struct {
	db *pgxpool.Pool
}

// New creates a new event logger. A nil pool turns every call into a no-op.
func New(db *pgxpool.Pool) *Logger {
	return &Logger{db: db}
}

// Log writes an event to the database synchronously
func (l *Logger) Log(ctx context.Context, callID string, eventType EventType, data map[string]any) error {
	if l == nil || l.db == nil || callID == "" {
		return nil
	}

	_, err := l.db.Exec(ctx, `
		INSERT INTO call_events (call_id, event_type, event_data)
		VALUES ($1, $2, $3)
	`, callID, string(eventType), encode(data))

	return err
}

// LogAsync logs an event without blocking the caller
func (l *Logger) LogAsync(callID string, eventType EventType, data map[string]any) {
	if l == nil || l.db == nil || callID == "" {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = l.Log(ctx, callID, eventType, data)
	}()
}

// List returns a call's events oldest first.
func (l *Logger) List(ctx context.Context, callID string, limit int) ([]Event, error) {
	if l == nil || l.db == nil {
		return []Event{}, nil
	}
	if limit <= 0 || limit > 1000 {
		limit = 500
	}

	rows, err := l.db.Query(ctx, `
		SELECT id, call_id, event_type, event_data, created_at
		FROM call_events
		WHERE call_id = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2
	`, callID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var (
			e    Event
			raw  []byte
			kind string
		)
		if err := rows.Scan(&e.ID, &e.CallID, &kind, &raw, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Type = EventType(kind)
		e.Data = decode(raw)
		events = append(events, e)
	}
	return events, rows.Err()
}

func encode(data map[string]any) []byte {
	if data == nil {
		return []byte("{}")
	}
	b, err := json.Marshal(data)
	if err != nil {
		return []byte("{}")
	}
	return b
}

func decode(raw []byte) map[string]any {
	out := map[string]any{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}
	return out
}
