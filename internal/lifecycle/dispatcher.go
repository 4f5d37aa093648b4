package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
)

// Finalizer runs post-call analysis for one call and records a failed
// analysis when it cannot.
type Finalizer interface {
	Finalize(ctx context.Context, callID string) error
	Abandon(ctx context.Context, callID string, cause error) error
}

const (
	inlineAttempts = 3
	inlineBackoff  = 2 * time.Second
)

// InlineDispatcher runs Finalize on a goroutine in the current process,
// retrying a few times before recording the failure.
type InlineDispatcher struct {
	f        Finalizer
	timeout  time.Duration
	attempts int
	backoff  time.Duration
	log      logrus.FieldLogger
	wg       sync.WaitGroup
}

func NewInlineDispatcher(f Finalizer, timeout time.Duration, log logrus.FieldLogger) *InlineDispatcher {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &InlineDispatcher{f: f, timeout: timeout, attempts: inlineAttempts, backoff: inlineBackoff, log: log}
}

// Dispatch returns immediately. The analysis outlives the request context.
func (d *InlineDispatcher) Dispatch(_ context.Context, callID string) error {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.run(callID)
	}()
	return nil
}

func (d *InlineDispatcher) run(callID string) {
	log := d.log.WithField("call_id", callID)

	var err error
	for attempt := 1; attempt <= d.attempts; attempt++ {
		if attempt > 1 {
			time.Sleep(d.backoff * time.Duration(attempt-1))
		}
		if err = d.finalize(callID); err == nil {
			return
		}
		log.WithError(err).WithField("attempt", attempt).Warn("lifecycle: finalize failed")
	}

	sentry.CaptureException(err)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if aerr := d.f.Abandon(ctx, callID, err); aerr != nil {
		log.WithError(aerr).Error("lifecycle: recording failed analysis failed")
		sentry.CaptureException(aerr)
	}
}

func (d *InlineDispatcher) finalize(callID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("finalize panic for call %s: %v", callID, r)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	return d.f.Finalize(ctx, callID)
}

// Wait blocks until every dispatched analysis has finished.
func (d *InlineDispatcher) Wait() {
	d.wg.Wait()
}
