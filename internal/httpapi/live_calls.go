package httpapi

import (
	"context"
	"sort"
	"sync"
	"time"
)

// LiveCall is one open LLM websocket.
type LiveCall struct {
	PlatformCallID string
	Since          time.Time
}

// LiveCalls tracks open LLM websockets by platform call id. Once draining
// starts no call is admitted and Wait returns when the open ones have hung up.
type LiveCalls struct {
	mu       sync.Mutex
	draining bool
	next     uint64
	open     map[uint64]LiveCall
	wg       sync.WaitGroup
	now      func() time.Time
}

func NewLiveCalls() *LiveCalls {
	return &LiveCalls{open: map[uint64]LiveCall{}, now: time.Now}
}

// Admit registers a call. ok is false while draining; otherwise release must
// be called once the socket is done. Extra release calls are no-ops.
func (lc *LiveCalls) Admit(platformCallID string) (release func(), ok bool) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	if lc.draining {
		return func() {}, false
	}
	lc.next++
	key := lc.next
	lc.open[key] = LiveCall{PlatformCallID: platformCallID, Since: lc.now()}
	lc.wg.Add(1)

	var once sync.Once
	return func() {
		once.Do(func() {
			lc.mu.Lock()
			delete(lc.open, key)
			lc.mu.Unlock()
			lc.wg.Done()
		})
	}, true
}

func (lc *LiveCalls) StartDraining() {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.draining = true
}

func (lc *LiveCalls) Draining() bool {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.draining
}

func (lc *LiveCalls) Count() int {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return len(lc.open)
}

// Snapshot lists open calls, longest running first.
func (lc *LiveCalls) Snapshot() []LiveCall {
	lc.mu.Lock()
	out := make([]LiveCall, 0, len(lc.open))
	for _, c := range lc.open {
		out = append(out, c)
	}
	lc.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Since.Equal(out[j].Since) {
			return out[i].PlatformCallID < out[j].PlatformCallID
		}
		return out[i].Since.Before(out[j].Since)
	})
	return out
}

// Wait blocks until every admitted call has been released or ctx is done.
func (lc *LiveCalls) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		lc.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
