package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/lukasbauer/dispatchvoice/internal/app"
)

func main() {
	cfg := app.LoadConfigFromEnv()
	logger := app.NewLogger(cfg.LogLevel, cfg.LogFormat)

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.SentryDSN, Environment: cfg.Environment}); err != nil {
			logger.WithError(err).Warn("sentry init failed")
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		sentry.CaptureException(err)
		sentry.Flush(2 * time.Second)
		logger.WithError(err).Fatal("init app")
	}
	defer a.Close()

	w, err := a.Worker()
	if err != nil {
		logger.WithError(err).Fatal("init worker")
	}

	logger.WithField("concurrency", cfg.AnalysisConcurrency).Info("analysis worker starting")
	if err := w.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Error("worker stopped with error")
		return
	}
	logger.Info("analysis worker stopped")
}
