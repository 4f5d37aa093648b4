package main

import (
	"context"
	"errors"
	"net/http"
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

	// Initialize Sentry for error monitoring
	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			EnableTracing:    true,
			TracesSampleRate: 0.2,
			Environment:      cfg.Environment,
		})
		if err != nil {
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

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           a.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.WithField("addr", cfg.HTTPAddr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("listen")
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown requested, draining live calls")

	// Live websockets are hijacked and outlive Shutdown, so drain them first.
	drainCtx, cancelDrain := context.WithTimeout(context.Background(), cfg.ShutdownDrainTimeout)
	defer cancelDrain()
	if err := a.Drain(drainCtx); err != nil {
		logger.WithError(err).Warn("drain incomplete")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	_ = a.Close()
	logger.Info("server stopped")
}
