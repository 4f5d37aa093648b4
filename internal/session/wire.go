package session

// Interaction kinds sent by the voice platform.
const (
	InteractionResponseRequired = "response_required"
	InteractionUpdateOnly       = "update_only"
)

// Transcript roles used by the voice platform.
const (
	PlatformRoleAgent = "agent"
	PlatformRoleUser  = "user"
)

// TranscriptEntry is one utterance in the platform's running transcript.
type TranscriptEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TurnRequest is an inbound event on the LLM websocket.
type TurnRequest struct {
	InteractionType string            `json:"interaction_type"`
	ResponseID      int               `json:"response_id"`
	Transcript      []TranscriptEntry `json:"transcript"`
}

// TurnResponse is the agent's reply to a TurnRequest, or the unsolicited
// opening line with ResponseID 0.
type TurnResponse struct {
	ResponseID      int    `json:"response_id"`
	Content         string `json:"content"`
	ContentComplete bool   `json:"content_complete"`
	EndCall         bool   `json:"end_call"`
}

// driverUtterances returns the count of user entries and the newest one.
func driverUtterances(entries []TranscriptEntry) (int, string) {
	n, last := 0, ""
	for _, e := range entries {
		if e.Role == PlatformRoleUser {
			n++
			last = e.Content
		}
	}
	return n, last
}
