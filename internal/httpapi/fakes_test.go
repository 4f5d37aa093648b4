package httpapi

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lukasbauer/dispatchvoice/internal/dispatch"
	"github.com/lukasbauer/dispatchvoice/internal/eventlog"
	"github.com/lukasbauer/dispatchvoice/internal/lifecycle"
	"github.com/lukasbauer/dispatchvoice/internal/session"
	"github.com/lukasbauer/dispatchvoice/internal/store"
	"github.com/lukasbauer/dispatchvoice/internal/telephony"
)

type fakeStore struct {
	mu       sync.Mutex
	pingErr  error
	agents   map[string]*dispatch.AgentConfig
	calls    map[string]*dispatch.Call
	failed   map[string]string
	placed   map[string]string
	settings map[string]string
	nextID   int

	dashboard  *store.Dashboard
	trend      []store.TrendPoint
	trendSince time.Time
}

func newFakeStore() *fakeStore {
	platformAgent := "agent_platform_1"
	return &fakeStore{
		agents: map[string]*dispatch.AgentConfig{
			"agent-1": {ID: "agent-1", Name: "Check-in", SystemPrompt: "You are a dispatcher.", PlatformAgentID: &platformAgent, Active: true},
			"agent-2": {ID: "agent-2", Name: "Old", SystemPrompt: "Retired.", Active: false},
		},
		calls:    map[string]*dispatch.Call{},
		failed:   map[string]string{},
		placed:   map[string]string{},
		settings: map[string]string{},
	}
}

func (s *fakeStore) Ping(context.Context) error { return s.pingErr }

func (s *fakeStore) CreateCall(_ context.Context, in store.NewCall) (*dispatch.Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	c := &dispatch.Call{
		ID:            fmt.Sprintf("call-%d", s.nextID),
		AgentConfigID: in.AgentConfigID,
		DriverName:    in.DriverName,
		PhoneNumber:   in.PhoneNumber,
		LoadNumber:    in.LoadNumber,
		InitiatedBy:   in.InitiatedBy,
		Status:        dispatch.CallInitiated,
		CreatedAt:     time.Now(),
	}
	s.calls[c.ID] = c
	cp := *c
	return &cp, nil
}

func (s *fakeStore) GetCall(_ context.Context, id string) (*dispatch.Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calls[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *fakeStore) ListCalls(_ context.Context, f store.CallFilter) ([]dispatch.Call, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []dispatch.Call{}
	for _, c := range s.calls {
		if f.LoadNumber != "" && c.LoadNumber != f.LoadNumber {
			continue
		}
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	total := len(out)
	if f.Offset < len(out) {
		out = out[f.Offset:]
	} else {
		out = []dispatch.Call{}
	}
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, total, nil
}

func (s *fakeStore) MarkCallPlaced(_ context.Context, id, platformCallID string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calls[id]
	if !ok {
		return store.ErrNotFound
	}
	s.placed[id] = platformCallID
	c.PlatformCallID = &platformCallID
	c.Status = dispatch.CallRinging
	return nil
}

func (s *fakeStore) MarkCallFailed(_ context.Context, id, message string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calls[id]
	if !ok {
		return store.ErrNotFound
	}
	s.failed[id] = message
	c.Status = dispatch.CallFailed
	return nil
}

func (s *fakeStore) AgentConfig(_ context.Context, id string) (*dispatch.AgentConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *fakeStore) ListAgentConfigs(context.Context) ([]dispatch.AgentConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []dispatch.AgentConfig{}
	for _, a := range s.agents {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeStore) CreateAgentConfig(_ context.Context, in store.NewAgentConfig) (*dispatch.AgentConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := &dispatch.AgentConfig{
		ID:              fmt.Sprintf("agent-%d", len(s.agents)+1),
		Name:            in.Name,
		SystemPrompt:    in.SystemPrompt,
		InitialMessage:  in.InitialMessage,
		ScenarioType:    in.ScenarioType,
		PlatformAgentID: in.PlatformAgentID,
		Active:          true,
	}
	s.agents[a.ID] = a
	cp := *a
	return &cp, nil
}

func (s *fakeStore) UpdateAgentConfig(_ context.Context, id string, u store.AgentUpdate) (*dispatch.AgentConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if u.Name != nil {
		a.Name = *u.Name
	}
	if u.SystemPrompt != nil {
		a.SystemPrompt = *u.SystemPrompt
	}
	if u.InitialMessage != nil {
		a.InitialMessage = u.InitialMessage
	}
	if u.ScenarioType != nil {
		a.ScenarioType = u.ScenarioType
	}
	if u.PlatformAgentID != nil {
		a.PlatformAgentID = u.PlatformAgentID
	}
	if u.Active != nil {
		a.Active = *u.Active
	}
	cp := *a
	return &cp, nil
}

func (s *fakeStore) SetAgentActive(_ context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[id]
	if !ok {
		return store.ErrNotFound
	}
	a.Active = active
	return nil
}

func (s *fakeStore) LLMProvider(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings[store.SettingLLMProvider], nil
}

func (s *fakeStore) SetSetting(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[key] = value
	return nil
}

func (s *fakeStore) Dashboard(context.Context, time.Time) (*store.Dashboard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dashboard == nil {
		return nil, errors.New("dashboard query failed")
	}
	return s.dashboard, nil
}

func (s *fakeStore) SentimentTrend(_ context.Context, since time.Time) ([]store.TrendPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trendSince = since
	return s.trend, nil
}

type fakeEvents struct {
	mu     sync.Mutex
	logged []eventlog.EventType
	stored map[string][]eventlog.Event
}

func (e *fakeEvents) List(_ context.Context, callID string, _ int) ([]eventlog.Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if evs, ok := e.stored[callID]; ok {
		return evs, nil
	}
	return []eventlog.Event{}, nil
}

func (e *fakeEvents) LogAsync(_ string, t eventlog.EventType, _ map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.logged = append(e.logged, t)
}

type fakeDialer struct {
	mu   sync.Mutex
	reqs []telephony.PhoneCallRequest
	err  error
}

func (d *fakeDialer) CreatePhoneCall(_ context.Context, r telephony.PhoneCallRequest) (*telephony.PlatformCall, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reqs = append(d.reqs, r)
	if d.err != nil {
		return nil, d.err
	}
	return &telephony.PlatformCall{CallID: fmt.Sprintf("retell-%d", len(d.reqs)), CallStatus: "registered"}, nil
}

type fakeWebhooks struct {
	mu     sync.Mutex
	events []lifecycle.WebhookEvent
	result lifecycle.Result
	err    error
}

func (f *fakeWebhooks) HandleEvent(_ context.Context, ev lifecycle.WebhookEvent) (lifecycle.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ev.PlatformCallID() == "" {
		return lifecycle.Result{}, lifecycle.ErrMissingCallID
	}
	f.events = append(f.events, ev)
	return f.result, f.err
}

// echoSessions greets the platform once and hangs up.
type echoSessions struct {
	mu  sync.Mutex
	ids []string
}

func (e *echoSessions) Run(_ context.Context, conn session.Conn, platformCallID string) error {
	e.mu.Lock()
	e.ids = append(e.ids, platformCallID)
	e.mu.Unlock()
	defer conn.Close()
	return conn.WriteJSON(session.TurnResponse{ResponseID: 0, Content: "hello " + platformCallID, ContentComplete: true})
}

type fakeProviders []string

func (p fakeProviders) Has(name string) bool {
	for _, n := range p {
		if n == name {
			return true
		}
	}
	return false
}

func (p fakeProviders) Providers() []string { return p }
