// Package worker drains the analysis queue with a fixed pool of goroutines.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"

	"github.com/lukasbauer/dispatchvoice/internal/queue"
)

// Source is where jobs come from.
type Source interface {
	Consume(ctx context.Context, count int64, block time.Duration) ([]queue.Message, error)
	Ack(ctx context.Context, messageIDs ...string) error
}

// backlog is implemented by sources that can report their length.
type backlog interface {
	Len(ctx context.Context) (int64, error)
}

// Finalizer runs post-call analysis for one call. Abandon records the
// failure once no attempts are left.
type Finalizer interface {
	Finalize(ctx context.Context, callID string) error
	Abandon(ctx context.Context, callID string, cause error) error
}

type Worker struct {
	src         Source
	finalizer   Finalizer
	concurrency int
	batchSize   int
	jobTimeout  time.Duration
	maxAttempts int64
	block       time.Duration
	log         logrus.FieldLogger
}

// New builds a worker. A job that fails is left pending for redelivery until
// it has been delivered maxAttempts times.
func New(src Source, f Finalizer, concurrency, batchSize, maxAttempts int, jobTimeout time.Duration, log logrus.FieldLogger) *Worker {
	if concurrency <= 0 {
		concurrency = 4
	}
	if batchSize <= 0 {
		batchSize = concurrency
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if jobTimeout <= 0 {
		jobTimeout = 2 * time.Minute
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Worker{
		src:         src,
		finalizer:   f,
		concurrency: concurrency,
		batchSize:   batchSize,
		jobTimeout:  jobTimeout,
		maxAttempts: int64(maxAttempts),
		block:       5 * time.Second,
		log:         log,
	}
}

// Start consumes until ctx is cancelled, then waits for in-flight jobs.
func (w *Worker) Start(ctx context.Context) error {
	log := w.log.WithFields(logrus.Fields{
		"concurrency":  w.concurrency,
		"batch_size":   w.batchSize,
		"max_attempts": w.maxAttempts,
	})
	if b, ok := w.src.(backlog); ok {
		if n, err := b.Len(ctx); err == nil {
			log = log.WithField("backlog", n)
		}
	}
	log.Info("worker: starting")

	jobs := make(chan queue.Message, w.concurrency*2)
	var wg sync.WaitGroup

	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			w.processJobs(workerID, jobs)
		}(i)
	}

	w.consume(ctx, jobs)
	wg.Wait()

	w.log.Info("worker: stopped")
	return nil
}

func (w *Worker) consume(ctx context.Context, jobs chan<- queue.Message) {
	defer close(jobs)

	for ctx.Err() == nil {
		messages, err := w.src.Consume(ctx, int64(w.batchSize), w.block)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.WithError(err).Error("worker: consume failed")
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		for _, msg := range messages {
			select {
			case jobs <- msg:
			case <-ctx.Done():
				return
			}
		}
	}
}

// processJobs finishes every queued job even after shutdown starts; each one
// runs on its own timeout rather than the consumer context.
func (w *Worker) processJobs(workerID int, jobs <-chan queue.Message) {
	for msg := range jobs {
		log := w.log.WithFields(logrus.Fields{
			"worker":   workerID,
			"call_id":  msg.Job.CallID,
			"delivery": msg.Deliveries,
		})

		ctx, cancel := context.WithTimeout(context.Background(), w.jobTimeout)
		err := w.finalizer.Finalize(ctx, msg.Job.CallID)
		cancel()
		if err != nil && msg.Deliveries < w.maxAttempts {
			log.WithError(err).Warn("worker: finalize failed, leaving job pending for redelivery")
			continue
		}

		// Finalize may have used up the job timeout.
		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		if err != nil {
			log.WithError(err).Error("worker: finalize failed on last attempt, recording failed analysis")
			sentry.CaptureException(err)
			if aerr := w.finalizer.Abandon(ctx, msg.Job.CallID, err); aerr != nil {
				cancel()
				log.WithError(aerr).Error("worker: recording failed analysis failed, leaving job pending")
				continue
			}
		}

		if err := w.src.Ack(ctx, msg.ID); err != nil {
			log.WithError(err).Error("worker: ack failed")
		}
		cancel()

		if !msg.Job.EnqueuedAt.IsZero() {
			log = log.WithField("queued_ms", time.Since(msg.Job.EnqueuedAt).Milliseconds())
		}
		log.Info("worker: job done")
	}
}
