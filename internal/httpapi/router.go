package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"

	"github.com/lukasbauer/dispatchvoice/internal/dispatch"
	"github.com/lukasbauer/dispatchvoice/internal/eventlog"
	"github.com/lukasbauer/dispatchvoice/internal/lifecycle"
	"github.com/lukasbauer/dispatchvoice/internal/session"
	"github.com/lukasbauer/dispatchvoice/internal/store"
	"github.com/lukasbauer/dispatchvoice/internal/telephony"
)

type RouterConfig struct {
	// JWT secret for the dispatcher API
	JWTSecret string

	// Platform API key. When set, webhooks must carry a valid signature.
	PlatformAPIKey string

	// Platform agent used when an agent configuration has none of its own
	DefaultPlatformAgentID string

	DefaultProvider string
}

// Store is the persistence the API reads and writes.
type Store interface {
	Ping(ctx context.Context) error
	CreateCall(ctx context.Context, in store.NewCall) (*dispatch.Call, error)
	GetCall(ctx context.Context, id string) (*dispatch.Call, error)
	ListCalls(ctx context.Context, f store.CallFilter) ([]dispatch.Call, int, error)
	MarkCallPlaced(ctx context.Context, id, platformCallID string, at time.Time) error
	MarkCallFailed(ctx context.Context, id, message string, at time.Time) error
	AgentConfig(ctx context.Context, id string) (*dispatch.AgentConfig, error)
	ListAgentConfigs(ctx context.Context) ([]dispatch.AgentConfig, error)
	CreateAgentConfig(ctx context.Context, in store.NewAgentConfig) (*dispatch.AgentConfig, error)
	UpdateAgentConfig(ctx context.Context, id string, u store.AgentUpdate) (*dispatch.AgentConfig, error)
	SetAgentActive(ctx context.Context, id string, active bool) error
	LLMProvider(ctx context.Context) (string, error)
	SetSetting(ctx context.Context, key, value string) error
	Dashboard(ctx context.Context, now time.Time) (*store.Dashboard, error)
	SentimentTrend(ctx context.Context, since time.Time) ([]store.TrendPoint, error)
}

// EventLog reads and records call events.
type EventLog interface {
	List(ctx context.Context, callID string, limit int) ([]eventlog.Event, error)
	LogAsync(callID string, eventType eventlog.EventType, data map[string]any)
}

// Dialer places outbound calls on the voice platform.
type Dialer interface {
	CreatePhoneCall(ctx context.Context, r telephony.PhoneCallRequest) (*telephony.PlatformCall, error)
}

// SessionRunner serves one LLM websocket until it closes.
type SessionRunner interface {
	Run(ctx context.Context, conn session.Conn, platformCallID string) error
}

// WebhookHandler applies platform lifecycle events.
type WebhookHandler interface {
	HandleEvent(ctx context.Context, ev lifecycle.WebhookEvent) (lifecycle.Result, error)
}

// Providers lists the LLM providers that can be selected.
type Providers interface {
	Has(name string) bool
	Providers() []string
}

// Deps are the collaborators behind the routes.
type Deps struct {
	Store     Store
	Events    EventLog
	Dialer    Dialer
	Sessions  SessionRunner
	Webhooks  WebhookHandler
	Providers Providers
	Calls     *LiveCalls
	Logger    logrus.FieldLogger
}

type Router struct {
	cfg       RouterConfig
	log       logrus.FieldLogger
	store     Store
	events    EventLog
	dialer    Dialer
	sessions  SessionRunner
	webhooks  WebhookHandler
	providers Providers
	calls     *LiveCalls
	mux       *http.ServeMux
	now       func() time.Time
}

func NewRouter(cfg RouterConfig, d Deps) http.Handler {
	return withSentryRecovery(withCORS(newRouter(cfg, d).mux))
}

func newRouter(cfg RouterConfig, d Deps) *Router {
	if d.Logger == nil {
		d.Logger = logrus.StandardLogger()
	}
	if d.Calls == nil {
		d.Calls = NewLiveCalls()
	}
	if cfg.DefaultProvider == "" {
		cfg.DefaultProvider = "groq"
	}
	r := &Router{
		cfg:       cfg,
		log:       d.Logger,
		store:     d.Store,
		events:    d.Events,
		dialer:    d.Dialer,
		sessions:  d.Sessions,
		webhooks:  d.Webhooks,
		providers: d.Providers,
		calls:     d.Calls,
		mux:       http.NewServeMux(),
		now:       time.Now,
	}
	r.routes()
	return r
}

func (r *Router) routes() {
	// Health
	r.mux.HandleFunc("GET /healthz", r.handleHealthz)
	r.mux.HandleFunc("GET /readyz", r.handleReadyz)

	// Voice platform (signature verified, no JWT)
	r.mux.HandleFunc("GET /llm-websocket/{call_id}", r.handleLLMWebsocket)
	r.mux.HandleFunc("POST /webhook/retell", r.handleWebhook)

	// Dispatcher API
	r.mux.HandleFunc("POST /api/calls", r.withAuth(r.handleCreateCall))
	r.mux.HandleFunc("GET /api/calls", r.withAuth(r.handleListCalls))
	r.mux.HandleFunc("GET /api/calls/{id}", r.withAuth(r.handleGetCall))
	r.mux.HandleFunc("GET /api/calls/{id}/events", r.withAuth(r.handleCallEvents))

	r.mux.HandleFunc("GET /api/agents", r.withAuth(r.handleListAgents))
	r.mux.HandleFunc("POST /api/agents", r.withAuth(r.handleCreateAgent))
	r.mux.HandleFunc("GET /api/agents/{id}", r.withAuth(r.handleGetAgent))
	r.mux.HandleFunc("PUT /api/agents/{id}", r.withAuth(r.handleUpdateAgent))
	r.mux.HandleFunc("DELETE /api/agents/{id}", r.withAuth(r.handleDeactivateAgent))

	r.mux.HandleFunc("GET /api/settings/llm", r.withAuth(r.handleGetLLMProvider))
	r.mux.HandleFunc("PUT /api/settings/llm", r.withAuth(r.handleSetLLMProvider))
	r.mux.HandleFunc("GET /api/settings/llms/available", r.withAuth(r.handleAvailableLLMs))

	r.mux.HandleFunc("GET /api/analytics/dashboard", r.withAuth(r.handleDashboard))
	r.mux.HandleFunc("GET /api/analytics/sentiment-trend", r.withAuth(r.handleSentimentTrend))
}

func (r *Router) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReadyz fails while draining so the load balancer stops routing new
// websockets here.
func (r *Router) handleReadyz(w http.ResponseWriter, req *http.Request) {
	if r.calls.Draining() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("draining"))
		return
	}
	if r.store != nil {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		if err := r.store.Ping(ctx); err != nil {
			r.log.WithError(err).Warn("readyz: database ping failed")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("database unavailable"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func withSentryRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				hub := sentry.CurrentHub().Clone()
				hub.Scope().SetRequest(req)
				hub.RecoverWithContext(req.Context(), err)
				hub.Flush(2 * time.Second)
				http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, req)
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if req.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, req)
	})
}

// captureError sends an error to Sentry with request context
func captureError(req *http.Request, err error, msg string) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetRequest(req)
		scope.SetExtra("message", msg)
		sentry.CaptureException(err)
	})
}
