// Package lifecycle keeps call records in step with the voice platform's
// webhook events and runs post-call analysis once per finished call.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"

	"github.com/lukasbauer/dispatchvoice/internal/analysis"
	"github.com/lukasbauer/dispatchvoice/internal/dispatch"
	"github.com/lukasbauer/dispatchvoice/internal/eventlog"
	"github.com/lukasbauer/dispatchvoice/internal/store"
)

// Store is the persistence lifecycle sync needs.
type Store interface {
	CallByPlatformID(ctx context.Context, platformCallID string) (*dispatch.Call, error)
	GetCall(ctx context.Context, id string) (*dispatch.Call, error)
	AgentConfig(ctx context.Context, id string) (*dispatch.AgentConfig, error)
	MarkCallStarted(ctx context.Context, id string, at time.Time) error
	MarkCallEnded(ctx context.Context, id string, e store.EndedCall) error
	MarkCallFailed(ctx context.Context, id, message string, at time.Time) error
	MergePlatformAnalysis(ctx context.Context, id string, analysis map[string]any) error
	ClaimAnalysis(ctx context.Context, id string) (bool, error)
	SaveAnalysis(ctx context.Context, id string, facts dispatch.StructuredResult, result dispatch.AnalysisResult) error
	LLMProvider(ctx context.Context) (string, error)
}

// Analyzer settles facts and analyzes a finished call.
type Analyzer interface {
	Extract(ctx context.Context, in analysis.Input) dispatch.StructuredResult
	Analyze(ctx context.Context, in analysis.Input, facts dispatch.StructuredResult) dispatch.AnalysisResult
}

// Dispatcher schedules Finalize for a call.
type Dispatcher interface {
	Dispatch(ctx context.Context, callID string) error
}

// Events records call events without blocking.
type Events interface {
	LogAsync(callID string, eventType eventlog.EventType, data map[string]any)
}

// Config wires a Sync. Store and Analyzer are required. A nil Dispatcher
// runs analysis in-process.
type Config struct {
	Store           Store
	Analyzer        Analyzer
	Dispatcher      Dispatcher
	Events          Events
	Logger          logrus.FieldLogger
	DefaultProvider string
	AnalysisTimeout time.Duration
}

// Result reports what HandleEvent did.
type Result struct {
	CallID             string
	Ignored            bool
	AnalysisDispatched bool
}

type Sync struct {
	store           Store
	analyzer        Analyzer
	dispatcher      Dispatcher
	events          Events
	log             logrus.FieldLogger
	defaultProvider string
	now             func() time.Time
}

func New(cfg Config) *Sync {
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.DefaultProvider == "" {
		cfg.DefaultProvider = "groq"
	}
	s := &Sync{
		store:           cfg.Store,
		analyzer:        cfg.Analyzer,
		dispatcher:      cfg.Dispatcher,
		events:          cfg.Events,
		log:             cfg.Logger,
		defaultProvider: cfg.DefaultProvider,
		now:             time.Now,
	}
	if s.dispatcher == nil {
		s.dispatcher = NewInlineDispatcher(s, cfg.AnalysisTimeout, cfg.Logger)
	}
	return s
}

// Dispatcher returns the dispatcher in use.
func (s *Sync) Dispatcher() Dispatcher {
	return s.dispatcher
}

// HandleEvent applies one webhook event. Events for calls this system did not
// place are acknowledged and ignored.
func (s *Sync) HandleEvent(ctx context.Context, ev WebhookEvent) (Result, error) {
	platformID := ev.PlatformCallID()
	if platformID == "" {
		return Result{}, ErrMissingCallID
	}
	log := s.log.WithFields(logrus.Fields{"platform_call_id": platformID, "event": ev.Event})

	call, err := s.store.CallByPlatformID(ctx, platformID)
	if errors.Is(err, store.ErrNotFound) {
		log.Info("lifecycle: webhook for unknown call ignored")
		return Result{Ignored: true}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("lookup call: %w", err)
	}

	res := Result{CallID: call.ID}
	log = log.WithField("call_id", call.ID)
	s.logEvent(call.ID, eventlog.EventWebhookReceived, map[string]any{"event": ev.Event})

	now := s.now().UTC()
	switch ev.Event {
	case EventCallStarted:
		if err := s.store.MarkCallStarted(ctx, call.ID, now); err != nil {
			return res, fmt.Errorf("mark started: %w", err)
		}

	case EventCallEnded:
		ended := store.EndedCall{
			Transcript:   ev.TranscriptText(),
			RecordingURL: ev.RecordingURL(),
			DurationSec:  ev.DurationSec(),
			EndedAt:      now,
		}
		if err := s.store.MarkCallEnded(ctx, call.ID, ended); err != nil {
			return res, fmt.Errorf("mark ended: %w", err)
		}

		claimed, err := s.store.ClaimAnalysis(ctx, call.ID)
		if err != nil {
			log.WithError(err).Error("lifecycle: analysis claim failed")
			sentry.CaptureException(err)
			return res, nil
		}
		if !claimed {
			log.Debug("lifecycle: analysis already claimed")
			return res, nil
		}
		if err := s.dispatcher.Dispatch(ctx, call.ID); err != nil {
			log.WithError(err).Error("lifecycle: analysis dispatch failed")
			sentry.CaptureException(err)
			return res, nil
		}
		res.AnalysisDispatched = true

	case EventCallAnalyzed:
		if a := ev.PlatformAnalysis(); len(a) > 0 {
			if err := s.store.MergePlatformAnalysis(ctx, call.ID, a); err != nil {
				return res, fmt.Errorf("merge platform analysis: %w", err)
			}
		}

	case EventCallFailed:
		if err := s.store.MarkCallFailed(ctx, call.ID, ev.FailureReason(), now); err != nil {
			return res, fmt.Errorf("mark failed: %w", err)
		}

	default:
		log.Debug("lifecycle: unhandled event type")
		res.Ignored = true
		return res, nil
	}

	log.Info("lifecycle: webhook processed")
	return res, nil
}

// Finalize settles the call's facts and stores its analysis.
func (s *Sync) Finalize(ctx context.Context, callID string) error {
	call, err := s.store.GetCall(ctx, callID)
	if err != nil {
		return fmt.Errorf("load call %s: %w", callID, err)
	}
	log := s.log.WithField("call_id", callID)

	in := analysis.Input{
		CallID:     call.ID,
		Transcript: call.TranscriptText(),
		History:    call.History,
		Facts:      call.Facts,
	}

	agent, err := s.store.AgentConfig(ctx, call.AgentConfigID)
	if err != nil {
		log.WithError(err).Warn("lifecycle: agent config unavailable, analyzing without it")
	} else {
		in.AgentPrompt = agent.SystemPrompt
		in.Scenario = agent.Scenario()
	}

	in.Provider, err = s.store.LLMProvider(ctx)
	if err != nil || in.Provider == "" {
		in.Provider = s.defaultProvider
	}

	facts := s.analyzer.Extract(ctx, in)
	result := s.analyzer.Analyze(ctx, in, facts)

	if err := s.store.SaveAnalysis(ctx, callID, facts, result); err != nil {
		s.logEvent(callID, eventlog.EventAnalysisFailed, map[string]any{"error": err.Error()})
		return fmt.Errorf("save analysis: %w", err)
	}

	data := map[string]any{
		"data_source":   facts.Source(),
		"sentiment":     result.Sentiment,
		"quality_score": result.QualityScore,
		"goal_achieved": result.GoalAchieved,
	}
	if result.Error != "" {
		data["error"] = result.Error
	}
	s.logEvent(callID, eventlog.EventAnalysisCompleted, data)

	log.WithFields(logrus.Fields{
		"data_source": facts.Source(),
		"sentiment":   result.Sentiment,
		"quality":     result.QualityScore,
	}).Info("lifecycle: call finalized")
	return nil
}

// Abandon records a failed analysis for a call whose Finalize attempts are
// used up, so every claimed call ends with a result carrying an error marker.
func (s *Sync) Abandon(ctx context.Context, callID string, cause error) error {
	if cause == nil {
		cause = errors.New("analysis abandoned")
	}
	result := dispatch.DefaultAnalysis(cause)
	result.AnalyzedAt = s.now().UTC()
	if err := s.store.SaveAnalysis(ctx, callID, nil, result); err != nil {
		return fmt.Errorf("save failed analysis: %w", err)
	}
	s.logEvent(callID, eventlog.EventAnalysisFailed, map[string]any{"error": cause.Error(), "abandoned": true})
	s.log.WithField("call_id", callID).WithError(cause).Warn("lifecycle: analysis abandoned")
	return nil
}

func (s *Sync) logEvent(callID string, t eventlog.EventType, data map[string]any) {
	if s.events == nil {
		return
	}
	s.events.LogAsync(callID, t, data)
}
