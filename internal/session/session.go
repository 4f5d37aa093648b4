// Package session serves the voice platform's LLM websocket: one strictly
// sequential turn loop per live call.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/lukasbauer/dispatchvoice/internal/actions"
	"github.com/lukasbauer/dispatchvoice/internal/dispatch"
	"github.com/lukasbauer/dispatchvoice/internal/eventlog"
	"github.com/lukasbauer/dispatchvoice/internal/llm"
	"github.com/lukasbauer/dispatchvoice/internal/notifications"
)

// Replies spoken when the model cannot be used.
const (
	ReplyApology  = "Sorry, I'm having a little trouble on my end. Could you say that again?"
	ReplyReprompt = "Sorry, could you repeat that?"
)

var (
	ErrUnknownCall        = errors.New("session: unknown call")
	ErrMissingAgentConfig = errors.New("session: missing agent configuration")
)

// Store is the persistence the session needs.
type Store interface {
	CallByPlatformID(ctx context.Context, platformCallID string) (*dispatch.Call, error)
	AgentConfig(ctx context.Context, id string) (*dispatch.AgentConfig, error)
	SaveConversation(ctx context.Context, callID string, history []dispatch.Turn, facts dispatch.StructuredResult) error
	MergeFacts(ctx context.Context, callID string, facts dispatch.StructuredResult) error
	LLMProvider(ctx context.Context) (string, error)
}

// Generator produces one model turn with failover.
type Generator interface {
	Generate(ctx context.Context, history []llm.Message, systemPrompt string, functions []llm.FunctionDecl, primary string) (*llm.Result, error)
}

// Events records call events without blocking.
type Events interface {
	LogAsync(callID string, eventType eventlog.EventType, data map[string]any)
}

// Escalator alerts human dispatchers about an emergency.
type Escalator interface {
	NotifyEmergency(ctx context.Context, a notifications.EmergencyAlert) error
}

// Conn is the subset of *websocket.Conn the turn loop uses.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteJSON(v any) error
	Close() error
}

// Config wires a Session. Store and Generator are required.
type Config struct {
	Store           Store
	Generator       Generator
	Executor        *actions.Executor
	Events          Events
	Escalator       Escalator
	Logger          logrus.FieldLogger
	DefaultProvider string
	FlushTimeout    time.Duration
	EscalateTimeout time.Duration
}

// Session runs turn loops. One Session serves every call; per-call data lives
// in CallState.
type Session struct {
	store           Store
	gen             Generator
	exec            *actions.Executor
	events          Events
	escalator       Escalator
	log             logrus.FieldLogger
	defaultProvider string
	flushTimeout    time.Duration
	escalateTimeout time.Duration
	now             func() time.Time

	background sync.WaitGroup
}

func New(cfg Config) *Session {
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.Executor == nil {
		cfg.Executor = actions.NewExecutor(cfg.Logger)
	}
	if cfg.DefaultProvider == "" {
		cfg.DefaultProvider = "groq"
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = 10 * time.Second
	}
	if cfg.EscalateTimeout <= 0 {
		cfg.EscalateTimeout = 15 * time.Second
	}
	return &Session{
		store:           cfg.Store,
		gen:             cfg.Generator,
		exec:            cfg.Executor,
		events:          cfg.Events,
		escalator:       cfg.Escalator,
		log:             cfg.Logger,
		defaultProvider: cfg.DefaultProvider,
		flushTimeout:    cfg.FlushTimeout,
		escalateTimeout: cfg.EscalateTimeout,
		now:             time.Now,
	}
}

// Start loads the call and its agent configuration. Either one missing is
// fatal for the session.
func (s *Session) Start(ctx context.Context, platformCallID string) (*CallState, error) {
	call, err := s.store.CallByPlatformID(ctx, platformCallID)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrUnknownCall, platformCallID, err)
	}
	if call == nil {
		return nil, fmt.Errorf("%w %q", ErrUnknownCall, platformCallID)
	}

	agent, err := s.store.AgentConfig(ctx, call.AgentConfigID)
	if err != nil {
		return nil, fmt.Errorf("%w for call %s: %v", ErrMissingAgentConfig, call.ID, err)
	}
	if agent == nil {
		return nil, fmt.Errorf("%w for call %s", ErrMissingAgentConfig, call.ID)
	}

	provider, err := s.store.LLMProvider(ctx)
	if err != nil || provider == "" {
		provider = s.defaultProvider
	}

	facts := call.Facts.Clone()
	cc := llm.CallContext{DriverName: call.DriverName, LoadNumber: call.LoadNumber}

	return &CallState{
		CallID:         call.ID,
		PlatformCallID: platformCallID,
		Agent:          agent,
		Context:        cc,
		Provider:       provider,
		Facts:          facts,
		State:          AwaitingStart,
		systemPrompt:   llm.ComposeSystemPrompt(agent.SystemPrompt, cc),
	}, nil
}

// Open emits Turn 0, the agent's opening line.
func (s *Session) Open(st *CallState) TurnResponse {
	line := st.Agent.OpeningLine()
	st.appendTurn(dispatch.RoleAgent, line)
	st.State = AwaitingTurn
	s.logEvent(st, eventlog.EventSessionStarted, map[string]any{
		"platform_call_id": st.PlatformCallID,
		"provider":         st.Provider,
		"agent_config_id":  st.Agent.ID,
	})
	return TurnResponse{ResponseID: 0, Content: line, ContentComplete: true}
}

// HandleTurn processes one inbound event. The bool is false when no reply
// should be sent.
func (s *Session) HandleTurn(ctx context.Context, st *CallState, req TurnRequest) (TurnResponse, bool) {
	if st.State == Ended {
		return TurnResponse{}, false
	}

	switch req.InteractionType {
	case InteractionResponseRequired:
	case InteractionUpdateOnly:
		return TurnResponse{}, false
	default:
		s.log.WithFields(logrus.Fields{
			"call_id":          st.CallID,
			"interaction_type": req.InteractionType,
		}).Debug("session: ignoring interaction")
		return TurnResponse{}, false
	}

	log := s.log.WithFields(logrus.Fields{"call_id": st.CallID, "response_id": req.ResponseID})

	if n, text := driverUtterances(req.Transcript); n > st.driverSeen {
		st.driverSeen = n
		if text = strings.TrimSpace(text); text != "" {
			st.appendTurn(dispatch.RoleDriver, text)
			s.logEvent(st, eventlog.EventTurnReceived, map[string]any{"response_id": req.ResponseID, "text": text})
		}
	}

	st.State = Responding
	st.LastResponseID = req.ResponseID

	reply := s.respond(ctx, st, req.ResponseID, log)
	st.appendTurn(dispatch.RoleAgent, reply)

	if st.ShouldEnd {
		st.State = Ended
	} else {
		st.State = AwaitingTurn
	}

	return TurnResponse{
		ResponseID:      req.ResponseID,
		Content:         reply,
		ContentComplete: true,
		EndCall:         st.ShouldEnd,
	}, true
}

func (s *Session) respond(ctx context.Context, st *CallState, responseID int, log logrus.FieldLogger) string {
	start := s.now()
	res, err := s.gen.Generate(ctx, st.messages(), st.systemPrompt, llm.DispatchFunctions(), st.Provider)
	if err != nil {
		log.WithError(err).Error("session: orchestration failed, sending apology")
		s.logEvent(st, eventlog.EventLLMError, map[string]any{"response_id": responseID, "error": err.Error()})
		return ReplyApology
	}

	st.usage.Add(res.ProviderUsed, res.Usage.PromptTokens, res.Usage.CompletionTokens)

	if res.FallbackUsed {
		st.Facts.AppendFallback(dispatch.FallbackEntry{
			ResponseID:   responseID,
			ProviderUsed: res.ProviderUsed,
			At:           s.now(),
		})
		s.logEvent(st, eventlog.EventLLMFallback, map[string]any{
			"response_id":   responseID,
			"primary":       st.Provider,
			"provider_used": res.ProviderUsed,
		})
	}
	s.logEvent(st, eventlog.EventLLMCompleted, map[string]any{
		"response_id":       responseID,
		"provider_used":     res.ProviderUsed,
		"fallback_used":     res.FallbackUsed,
		"latency_ms":        s.now().Sub(start).Milliseconds(),
		"prompt_tokens":     res.Usage.PromptTokens,
		"completion_tokens": res.Usage.CompletionTokens,
	})

	reply := res.Content
	if res.FunctionCall != nil {
		out := s.exec.Execute(res.FunctionCall, reply, st.Facts, dispatch.SourceRealtime)
		reply = out.Reply
		if out.EndCall {
			st.ShouldEnd = true
		}

		data := map[string]any{"response_id": responseID, "function": out.Function, "end_call": out.EndCall}
		if out.Err != nil {
			data["error"] = out.Err.Error()
			s.logEvent(st, eventlog.EventActionRejected, data)
		} else {
			data["updates"] = out.Updates
			s.logEvent(st, eventlog.EventActionExecuted, data)
		}

		if out.Applied {
			s.persistFacts(ctx, st, log)
		}

		if out.Emergency != nil {
			s.escalate(st, out.Emergency)
		}
	}

	if strings.TrimSpace(reply) == "" {
		return ReplyReprompt
	}
	return reply
}

// persistFacts writes the facts before the reply goes out, so a call_ended
// webhook racing the socket close still sees what was captured live.
func (s *Session) persistFacts(ctx context.Context, st *CallState, log logrus.FieldLogger) {
	ctx, cancel := context.WithTimeout(ctx, s.flushTimeout)
	defer cancel()
	if err := s.store.MergeFacts(ctx, st.CallID, st.Facts.Clone()); err != nil {
		log.WithError(err).Error("session: saving facts failed, keeping them for flush")
		sentry.CaptureException(fmt.Errorf("save facts for call %s: %w", st.CallID, err))
	}
}

// escalate notifies dispatchers in the background so the acknowledgment is
// spoken without waiting on webhooks.
func (s *Session) escalate(st *CallState, em *actions.Emergency) {
	alert := notifications.EmergencyAlert{
		CallID:           st.CallID,
		EmergencyID:      em.ID,
		DriverName:       st.Context.DriverName,
		LoadNumber:       st.Context.LoadNumber,
		Type:             em.Type,
		Location:         em.Location,
		EscalationStatus: em.EscalationStatus,
		InjuriesReported: em.InjuriesReported,
		LoadSecure:       em.LoadSecure,
		Notes:            em.Notes,
		ReportedAt:       em.ReportedAt,
	}
	log := s.log.WithFields(logrus.Fields{"call_id": st.CallID, "emergency_id": em.ID})
	log.WithField("emergency_type", em.Type).Warn("session: emergency reported")

	if s.escalator == nil {
		return
	}

	s.background.Add(1)
	go func() {
		defer s.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.escalateTimeout)
		defer cancel()

		data := map[string]any{"emergency_id": em.ID, "emergency_type": em.Type}
		if err := s.escalator.NotifyEmergency(ctx, alert); err != nil {
			log.WithError(err).Error("session: emergency escalation failed")
			sentry.CaptureException(fmt.Errorf("emergency escalation for call %s: %w", st.CallID, err))
			data["error"] = err.Error()
		}
		s.logEvent(st, eventlog.EventEmergencyEscalated, data)
	}()
}

// Flush persists history and facts. Only the first call writes.
func (s *Session) Flush(st *CallState) error {
	if st == nil || st.flushed {
		return nil
	}
	st.flushed = true
	st.State = Ended

	ctx, cancel := context.WithTimeout(context.Background(), s.flushTimeout)
	defer cancel()

	err := s.store.SaveConversation(ctx, st.CallID, st.History, st.Facts)
	tokens := st.usage.Total()
	data := map[string]any{
		"turns":             len(st.History),
		"should_end":        st.ShouldEnd,
		"prompt_tokens":     tokens.Input,
		"completion_tokens": tokens.Output,
		"llm_cost_cents":    st.usage.Cents(),
	}
	if err != nil {
		data["error"] = err.Error()
	}
	s.logEvent(st, eventlog.EventSessionEnded, data)
	return err
}

// Run serves one websocket until the call ends or the socket goes away.
func (s *Session) Run(ctx context.Context, conn Conn, platformCallID string) error {
	st, err := s.Start(ctx, platformCallID)
	if err != nil {
		s.log.WithField("platform_call_id", platformCallID).WithError(err).Warn("session: rejected")
		_ = conn.Close()
		return err
	}
	log := s.log.WithFields(logrus.Fields{"call_id": st.CallID, "platform_call_id": platformCallID})

	defer func() {
		if err := s.Flush(st); err != nil {
			log.WithError(err).Error("session: flush failed")
			sentry.CaptureException(err)
		}
		_ = conn.Close()
		log.WithField("turns", len(st.History)).Info("session: ended")
	}()

	if err := conn.WriteJSON(s.Open(st)); err != nil {
		return fmt.Errorf("session: send opening line: %w", err)
	}
	log.WithField("provider", st.Provider).Info("session: started")

	for st.State != Ended {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.WithError(err).Debug("session: read failed")
			}
			return nil
		}

		var req TurnRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			log.WithError(err).Debug("session: ignoring undecodable frame")
			continue
		}

		resp, ok := s.HandleTurn(ctx, st, req)
		if !ok {
			continue
		}
		if err := conn.WriteJSON(resp); err != nil {
			return fmt.Errorf("session: send response %d: %w", resp.ResponseID, err)
		}
	}
	return nil
}

// Wait blocks until background escalations finish.
func (s *Session) Wait() {
	s.background.Wait()
}

func (s *Session) logEvent(st *CallState, t eventlog.EventType, data map[string]any) {
	if s.events == nil {
		return
	}
	s.events.LogAsync(st.CallID, t, data)
}
