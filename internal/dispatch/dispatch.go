// Package dispatch holds the call-level types shared by the realtime session,
// the post-call pipeline and the record store.
package dispatch

import "time"

// Role identifies who authored a turn.
type Role string

const (
	RoleAgent  Role = "agent"
	RoleDriver Role = "driver"
)

// Turn is one utterance in a conversation. Turns are never modified after
// they are appended to a history.
type Turn struct {
	Seq  int    `json:"seq"`
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// AgentConfig is the dispatcher-authored configuration a call runs with.
type AgentConfig struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	SystemPrompt    string    `json:"system_prompt"`
	InitialMessage  *string   `json:"initial_message,omitempty"`
	ScenarioType    *string   `json:"scenario_type,omitempty"` // "check-in", "emergency", ...
	PlatformAgentID *string   `json:"platform_agent_id,omitempty"`
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"created_at"`
}

// DefaultOpeningLine is spoken when an agent has no initial message configured.
const DefaultOpeningLine = "Hi, this is Dispatch calling with a quick check-in on your load. How's everything going out there?"

// OpeningLine returns the agent's first utterance.
func (a *AgentConfig) OpeningLine() string {
	if a != nil && a.InitialMessage != nil && *a.InitialMessage != "" {
		return *a.InitialMessage
	}
	return DefaultOpeningLine
}

// Scenario returns the scenario tag or "" when unset.
func (a *AgentConfig) Scenario() string {
	if a == nil || a.ScenarioType == nil {
		return ""
	}
	return *a.ScenarioType
}

// Sentiment labels.
const (
	SentimentPositive = "positive"
	SentimentNegative = "negative"
	SentimentNeutral  = "neutral"
	SentimentUnknown  = "unknown"
)

// Cooperation levels.
const (
	CooperationLow     = "low"
	CooperationMedium  = "medium"
	CooperationHigh    = "high"
	CooperationUnknown = "unknown"
)

// AnalysisResult is produced once per completed call and is not recomputed
// after it is attached to the call record.
type AnalysisResult struct {
	Sentiment           string    `json:"sentiment"`
	SentimentConfidence float64   `json:"sentiment_confidence"`
	QualityScore        float64   `json:"quality_score"`
	Summary             string    `json:"summary"`
	KeyTopics           []string  `json:"key_topics"`
	GoalAchieved        bool      `json:"goal_achieved"`
	CooperationLevel    string    `json:"cooperation_level"`
	AnalyzedAt          time.Time `json:"analysis_timestamp"`
	Error               string    `json:"error,omitempty"`
}

// DefaultAnalysis is the well-formed result recorded when analysis fails as a whole.
func DefaultAnalysis(err error) AnalysisResult {
	out := AnalysisResult{
		Sentiment:           SentimentUnknown,
		SentimentConfidence: 0,
		QualityScore:        0,
		Summary:             "Analysis failed",
		KeyTopics:           []string{},
		GoalAchieved:        false,
		CooperationLevel:    CooperationUnknown,
		AnalyzedAt:          time.Now().UTC(),
	}
	if err != nil {
		out.Error = err.Error()
	} else {
		out.Error = "analysis failed"
	}
	return out
}
