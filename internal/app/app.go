package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/lukasbauer/dispatchvoice/internal/actions"
	"github.com/lukasbauer/dispatchvoice/internal/analysis"
	"github.com/lukasbauer/dispatchvoice/internal/eventlog"
	"github.com/lukasbauer/dispatchvoice/internal/httpapi"
	"github.com/lukasbauer/dispatchvoice/internal/lifecycle"
	"github.com/lukasbauer/dispatchvoice/internal/llm"
	"github.com/lukasbauer/dispatchvoice/internal/notifications"
	"github.com/lukasbauer/dispatchvoice/internal/queue"
	"github.com/lukasbauer/dispatchvoice/internal/session"
	"github.com/lukasbauer/dispatchvoice/internal/store"
	"github.com/lukasbauer/dispatchvoice/internal/telephony"
	"github.com/lukasbauer/dispatchvoice/internal/worker"
)

// ErrNoQueue is returned by Worker when REDIS_URL is not configured.
var ErrNoQueue = errors.New("app: analysis queue requires REDIS_URL")

type App struct {
	cfg          Config
	log          *logrus.Logger
	db           *pgxpool.Pool
	store        *store.Store
	events       *eventlog.Logger
	orchestrator *llm.Orchestrator
	analyzer     *analysis.Analyzer
	sessions     *session.Session
	sync         *lifecycle.Sync
	queue        *queue.RedisQueue           // nil when analysis runs in-process
	inline       *lifecycle.InlineDispatcher // nil when analysis is queued
	calls        *httpapi.LiveCalls
}

func New(ctx context.Context, cfg Config, log *logrus.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	initCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	db, err := pgxpool.New(initCtx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := db.Ping(initCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := store.New(db)
	if err := s.Migrate(initCtx); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.EnsureSetting(initCtx, store.SettingLLMProvider, cfg.DefaultProvider); err != nil {
		db.Close()
		return nil, fmt.Errorf("seed settings: %w", err)
	}

	a := &App{
		cfg:    cfg,
		log:    log,
		db:     db,
		store:  s,
		events: eventlog.New(db),
		calls:  httpapi.NewLiveCalls(),
	}

	a.orchestrator = llm.NewOrchestrator(cfg.LLMTimeout, log, buildProviders(cfg)...)
	if !a.orchestrator.Has(cfg.DefaultProvider) {
		log.WithFields(logrus.Fields{
			"default":   cfg.DefaultProvider,
			"available": a.orchestrator.Providers(),
		}).Warn("app: default LLM provider has no API key, turns will fail over")
	}

	exec := actions.NewExecutor(log)
	a.analyzer = analysis.New(a.orchestrator, exec, log)

	var dispatcher lifecycle.Dispatcher
	if cfg.RedisURL != "" {
		// A pending job is only taken back once its holder has surely timed out.
		q, err := queue.NewRedisQueue(initCtx, queue.Config{
			URL:       cfg.RedisURL,
			Stream:    cfg.AnalysisStream,
			Group:     cfg.AnalysisGroup,
			Consumer:  cfg.AnalysisConsumer,
			ClaimIdle: 2 * cfg.AnalysisTimeout,
		})
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.queue = q
		dispatcher = q
	}

	a.sync = lifecycle.New(lifecycle.Config{
		Store:           s,
		Analyzer:        a.analyzer,
		Dispatcher:      dispatcher,
		Events:          a.events,
		Logger:          log,
		DefaultProvider: cfg.DefaultProvider,
		AnalysisTimeout: cfg.AnalysisTimeout,
	})
	a.inline, _ = a.sync.Dispatcher().(*lifecycle.InlineDispatcher)

	apnsClient, err := notifications.NewAPNsClient(notifications.APNsConfig{
		KeyPath:    cfg.APNsKeyPath,
		KeyID:      cfg.APNsKeyID,
		TeamID:     cfg.APNsTeamID,
		BundleID:   cfg.APNsBundleID,
		Production: cfg.APNsProduction,
	}, log)
	if err != nil {
		log.WithError(err).Warn("app: APNs client initialization failed, push escalation disabled")
	}
	escalator := notifications.NewEscalator(
		notifications.NewDiscord(cfg.DiscordWebhookURL, log),
		apnsClient,
		cfg.DispatcherDeviceTokens,
		log,
	)

	a.sessions = session.New(session.Config{
		Store:           s,
		Generator:       a.orchestrator,
		Executor:        exec,
		Events:          a.events,
		Escalator:       escalator,
		Logger:          log,
		DefaultProvider: cfg.DefaultProvider,
	})

	log.WithFields(logrus.Fields{
		"providers":      a.orchestrator.Providers(),
		"analysis_queue": a.queue != nil,
		"escalation":     len(cfg.DispatcherDeviceTokens) > 0 || cfg.DiscordWebhookURL != "",
	}).Info("app: initialized")
	return a, nil
}

// buildProviders registers every provider that has an API key.
func buildProviders(cfg Config) []llm.Provider {
	var out []llm.Provider
	if cfg.GroqAPIKey != "" {
		out = append(out, llm.NewGroqProvider(cfg.GroqAPIKey, cfg.GroqModel))
	}
	if cfg.OpenAIAPIKey != "" {
		out = append(out, llm.NewOpenAIProvider(llm.OpenAIConfig{APIKey: cfg.OpenAIAPIKey, Model: cfg.OpenAIModel}))
	}
	if cfg.AnthropicAPIKey != "" {
		out = append(out, llm.NewAnthropicProvider(llm.AnthropicConfig{APIKey: cfg.AnthropicAPIKey, Model: cfg.AnthropicModel}))
	}
	return out
}

func (a *App) Router() http.Handler {
	var dialer httpapi.Dialer
	if a.cfg.RetellAPIKey != "" {
		dialer = telephony.NewClient(telephony.Config{
			APIKey:     a.cfg.RetellAPIKey,
			FromNumber: a.cfg.RetellPhoneNumber,
		})
	} else {
		a.log.Warn("app: RETELL_API_KEY not set, outbound calls and webhook signatures disabled")
	}

	return httpapi.NewRouter(httpapi.RouterConfig{
		JWTSecret:              a.cfg.JWTSecret,
		PlatformAPIKey:         a.cfg.RetellAPIKey,
		DefaultPlatformAgentID: a.cfg.RetellAgentID,
		DefaultProvider:        a.cfg.DefaultProvider,
	}, httpapi.Deps{
		Store:     a.store,
		Events:    a.events,
		Dialer:    dialer,
		Sessions:  a.sessions,
		Webhooks:  a.sync,
		Providers: a.orchestrator,
		Calls:     a.calls,
		Logger:    a.log,
	})
}

// Worker builds the analysis consumer for the worker process.
func (a *App) Worker() (*worker.Worker, error) {
	if a.queue == nil {
		return nil, ErrNoQueue
	}
	return worker.New(a.queue, a.sync, a.cfg.AnalysisConcurrency, a.cfg.AnalysisConcurrency, a.cfg.AnalysisMaxAttempts, a.cfg.AnalysisTimeout, a.log), nil
}

// Drain stops accepting new sessions and waits for live calls, their
// escalations and any in-process analysis to finish.
func (a *App) Drain(ctx context.Context) error {
	a.calls.StartDraining()
	a.log.WithField("live", a.calls.Count()).Info("app: draining live sessions")

	if err := a.calls.Wait(ctx); err != nil {
		for _, c := range a.calls.Snapshot() {
			a.log.WithFields(logrus.Fields{
				"platform_call_id": c.PlatformCallID,
				"open_for":         time.Since(c.Since).Round(time.Second).String(),
			}).Warn("app: call still open at drain deadline")
		}
		return fmt.Errorf("drain sessions: %w", err)
	}
	a.sessions.Wait()
	if a.inline != nil {
		a.inline.Wait()
	}
	return nil
}

func (a *App) Close() error {
	var err error
	if a.queue != nil {
		err = a.queue.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
	return err
}
