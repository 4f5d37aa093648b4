package dispatch

import "time"

// CallStatus is the lifecycle state of a call record.
type CallStatus string

const (
	CallInitiated  CallStatus = "initiated"
	CallRinging    CallStatus = "ringing"
	CallInProgress CallStatus = "in_progress"
	CallCompleted  CallStatus = "completed"
	CallFailed     CallStatus = "failed"
	CallNoAnswer   CallStatus = "no_answer"
)

// Call is one outbound check-in call to a driver.
type Call struct {
	ID             string           `json:"id"`
	PlatformCallID *string          `json:"platform_call_id,omitempty"`
	AgentConfigID  string           `json:"agent_config_id"`
	DriverName     string           `json:"driver_name"`
	PhoneNumber    string           `json:"phone_number"`
	LoadNumber     string           `json:"load_number"`
	Status         CallStatus       `json:"status"`
	DurationSec    *int             `json:"duration_sec,omitempty"`
	Transcript     *string          `json:"transcript,omitempty"`
	RecordingURL   *string          `json:"recording_url,omitempty"`
	History        []Turn           `json:"history,omitempty"`
	Facts          StructuredResult `json:"structured_results,omitempty"`
	Analysis       *AnalysisResult  `json:"analysis,omitempty"`
	ErrorMessage   *string          `json:"error_message,omitempty"`
	InitiatedBy    *string          `json:"initiated_by,omitempty"`
	StartedAt      *time.Time       `json:"started_at,omitempty"`
	EndedAt        *time.Time       `json:"ended_at,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// TranscriptText returns the platform transcript or "".
func (c *Call) TranscriptText() string {
	if c == nil || c.Transcript == nil {
		return ""
	}
	return *c.Transcript
}
