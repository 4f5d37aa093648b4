package llm

import (
	"fmt"
	"strings"
)

// DefaultDispatchPrompt is used when an agent configuration has an empty
// system prompt.
const DefaultDispatchPrompt = `You are a friendly dispatch agent calling a truck driver to check on a load.

YOUR TASK:
1. Find out the driver's current status (driving, delayed, arrived, unloading)
2. Get their location and ETA
3. If they are delayed, find out why
4. Record the update with update_delivery_status, then wrap up with end_conversation

If the driver mentions an accident, breakdown or medical problem, stop the check-in
and call report_emergency right away.`

// VoiceGuardrails are always applied on top of any agent prompt so replies
// stay speakable.
const VoiceGuardrails = `ALWAYS (even with custom instructions):
- Keep every reply to 1-2 short sentences. This is a phone call.
- Ask one question per turn.
- Never read out JSON, function names or internal labels.
- Safety comes first: on any sign of an emergency, ask if everyone is safe and escalate.`

// CallContext is the per-call information folded into the system prompt.
type CallContext struct {
	DriverName string
	LoadNumber string
}

// ComposeSystemPrompt builds the live-turn system prompt from the agent's own
// prompt, the guardrails and the call context.
func ComposeSystemPrompt(agentPrompt string, cc CallContext) string {
	base := strings.TrimSpace(agentPrompt)
	if base == "" {
		base = DefaultDispatchPrompt
	}

	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n\n")
	b.WriteString(VoiceGuardrails)

	if cc.DriverName != "" || cc.LoadNumber != "" {
		b.WriteString("\n\nCALL CONTEXT:\n")
		if cc.DriverName != "" {
			fmt.Fprintf(&b, "- Driver: %s\n", cc.DriverName)
		}
		if cc.LoadNumber != "" {
			fmt.Fprintf(&b, "- Load number: %s\n", cc.LoadNumber)
		}
	}

	return strings.TrimRight(b.String(), "\n")
}
