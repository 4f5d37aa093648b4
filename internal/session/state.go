package session

import (
	"github.com/lukasbauer/dispatchvoice/internal/costs"
	"github.com/lukasbauer/dispatchvoice/internal/dispatch"
	"github.com/lukasbauer/dispatchvoice/internal/llm"
)

// State is the position of a call in the turn-taking loop.
type State int

const (
	AwaitingStart State = iota
	AwaitingTurn
	Responding
	Ended
)

func (s State) String() string {
	switch s {
	case AwaitingStart:
		return "awaiting_start"
	case AwaitingTurn:
		return "awaiting_turn"
	case Responding:
		return "responding"
	case Ended:
		return "ended"
	}
	return "unknown"
}

// CallState is everything one live call mutates. It is owned by the goroutine
// serving that call and must not be shared.
type CallState struct {
	CallID         string
	PlatformCallID string
	Agent          *dispatch.AgentConfig
	Context        llm.CallContext
	Provider       string

	History        []dispatch.Turn
	Facts          dispatch.StructuredResult
	ShouldEnd      bool
	LastResponseID int
	State          State

	driverSeen   int
	systemPrompt string
	usage        costs.Ledger
	flushed      bool
}

func (st *CallState) appendTurn(role dispatch.Role, text string) {
	st.History = append(st.History, dispatch.Turn{Seq: len(st.History), Role: role, Text: text})
}

// messages maps the history onto model chat roles.
func (st *CallState) messages() []llm.Message {
	out := make([]llm.Message, 0, len(st.History))
	for _, t := range st.History {
		role := llm.RoleUser
		if t.Role == dispatch.RoleAgent {
			role = llm.RoleAssistant
		}
		out = append(out, llm.Message{Role: role, Content: t.Text})
	}
	return out
}
