package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/lukasbauer/dispatchvoice/internal/queue"
)

type fakeSource struct {
	mu      sync.Mutex
	batches [][]queue.Message
	acked   []string
	drained chan struct{}
	once    sync.Once
}

func (s *fakeSource) Consume(ctx context.Context, _ int64, _ time.Duration) ([]queue.Message, error) {
	s.mu.Lock()
	if len(s.batches) > 0 {
		b := s.batches[0]
		s.batches = s.batches[1:]
		s.mu.Unlock()
		return b, nil
	}
	s.mu.Unlock()

	s.once.Do(func() { close(s.drained) })
	<-ctx.Done()
	return nil, ctx.Err()
}

func (s *fakeSource) Ack(_ context.Context, ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acked = append(s.acked, ids...)
	return nil
}

// fakeFinalizer fails a call's first fail[id] attempts.
type fakeFinalizer struct {
	mu        sync.Mutex
	done      map[string]int
	fail      map[string]int
	abandoned map[string]error
}

func newFakeFinalizer(fail map[string]int) *fakeFinalizer {
	return &fakeFinalizer{done: map[string]int{}, fail: fail, abandoned: map[string]error{}}
}

func (f *fakeFinalizer) Finalize(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.done[id]++
	if f.done[id] <= f.fail[id] {
		return errors.New("boom")
	}
	return nil
}

func (f *fakeFinalizer) Abandon(_ context.Context, id string, cause error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.abandoned[id] = cause
	return nil
}

func msg(id, callID string) queue.Message {
	return redelivered(id, callID, 1)
}

func redelivered(id, callID string, n int64) queue.Message {
	return queue.Message{ID: id, Job: queue.Job{CallID: callID}, Deliveries: n}
}

func runUntilDrained(t *testing.T, w *Worker, src *fakeSource) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Start(ctx) }()

	<-src.drained
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestWorkerProcessesAndAcks(t *testing.T) {
	src := &fakeSource{
		batches: [][]queue.Message{
			{msg("1-0", "call-a"), msg("2-0", "call-b")},
			{msg("3-0", "call-c")},
		},
		drained: make(chan struct{}),
	}
	fin := newFakeFinalizer(map[string]int{"call-b": 1})
	log, _ := test.NewNullLogger()
	w := New(src, fin, 2, 2, 3, time.Second, log)

	runUntilDrained(t, w, src)

	for _, id := range []string{"call-a", "call-b", "call-c"} {
		if fin.done[id] != 1 {
			t.Errorf("%s finalized %d times", id, fin.done[id])
		}
	}

	acked := map[string]bool{}
	for _, id := range src.acked {
		acked[id] = true
	}
	if !acked["1-0"] || !acked["3-0"] {
		t.Errorf("acked = %v", src.acked)
	}
	if acked["2-0"] {
		t.Error("failed job must stay pending")
	}
	if len(fin.abandoned) != 0 {
		t.Errorf("abandoned = %v", fin.abandoned)
	}
}

func TestWorkerRetriesRedeliveredJob(t *testing.T) {
	src := &fakeSource{
		batches: [][]queue.Message{
			{msg("1-0", "call-a")},
			{redelivered("1-0", "call-a", 2)},
		},
		drained: make(chan struct{}),
	}
	fin := newFakeFinalizer(map[string]int{"call-a": 1})
	log, _ := test.NewNullLogger()
	w := New(src, fin, 1, 1, 3, time.Second, log)

	runUntilDrained(t, w, src)

	if fin.done["call-a"] != 2 {
		t.Errorf("finalized %d times, want 2", fin.done["call-a"])
	}
	if len(src.acked) != 1 || src.acked[0] != "1-0" {
		t.Errorf("acked = %v", src.acked)
	}
	if len(fin.abandoned) != 0 {
		t.Errorf("abandoned = %v", fin.abandoned)
	}
}

func TestWorkerAbandonsAfterLastAttempt(t *testing.T) {
	src := &fakeSource{
		batches: [][]queue.Message{
			{msg("1-0", "call-a")},
			{redelivered("1-0", "call-a", 2)},
			{redelivered("1-0", "call-a", 3)},
		},
		drained: make(chan struct{}),
	}
	fin := newFakeFinalizer(map[string]int{"call-a": 10})
	log, _ := test.NewNullLogger()
	w := New(src, fin, 1, 1, 3, time.Second, log)

	runUntilDrained(t, w, src)

	if fin.done["call-a"] != 3 {
		t.Errorf("finalized %d times, want 3", fin.done["call-a"])
	}
	if fin.abandoned["call-a"] == nil {
		t.Fatal("failed analysis not recorded")
	}
	if len(src.acked) != 1 {
		t.Errorf("acked = %v, want the job acknowledged once", src.acked)
	}
}
