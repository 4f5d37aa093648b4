package httpapi

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"
)

func TestLiveCallsAdmitAndRelease(t *testing.T) {
	lc := NewLiveCalls()
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	lc.now = func() time.Time { return clock }

	releaseA, ok := lc.Admit("call-a")
	if !ok {
		t.Fatal("call-a refused")
	}
	clock = clock.Add(time.Minute)
	releaseB, _ := lc.Admit("call-b")
	clock = clock.Add(time.Minute)
	releaseB2, _ := lc.Admit("call-b")

	if got := lc.Count(); got != 3 {
		t.Fatalf("Count = %d, want 3", got)
	}
	snap := lc.Snapshot()
	want := []string{"call-a", "call-b", "call-b"}
	for i, c := range snap {
		if c.PlatformCallID != want[i] {
			t.Errorf("snapshot[%d] = %s, want %s", i, c.PlatformCallID, want[i])
		}
	}

	releaseB()
	releaseB()
	if got := lc.Count(); got != 2 {
		t.Errorf("Count after double release = %d, want 2", got)
	}
	releaseA()
	releaseB2()
	if got := lc.Count(); got != 0 {
		t.Errorf("Count = %d, want 0", got)
	}
}

func TestLiveCallsRefuseWhileDraining(t *testing.T) {
	lc := NewLiveCalls()
	lc.StartDraining()
	if !lc.Draining() {
		t.Fatal("Draining = false")
	}
	release, ok := lc.Admit("call-late")
	if ok {
		t.Fatal("admitted during drain")
	}
	release()
	if lc.Count() != 0 {
		t.Errorf("Count = %d", lc.Count())
	}
}

func TestLiveCallsWait(t *testing.T) {
	t.Run("returns once every call hangs up", func(t *testing.T) {
		lc := NewLiveCalls()
		var releases []func()
		for _, id := range []string{"c1", "c2", "c3"} {
			r, _ := lc.Admit(id)
			releases = append(releases, r)
		}
		lc.StartDraining()

		var wg sync.WaitGroup
		for _, r := range releases {
			wg.Add(1)
			go func(release func()) {
				defer wg.Done()
				time.Sleep(10 * time.Millisecond)
				release()
			}(r)
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := lc.Wait(ctx); err != nil {
			t.Fatalf("Wait: %v", err)
		}
		wg.Wait()
	})

	t.Run("deadline leaves the call listed", func(t *testing.T) {
		lc := NewLiveCalls()
		release, _ := lc.Admit("stuck")
		defer release()
		lc.StartDraining()

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		if err := lc.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("Wait = %v, want deadline", err)
		}
		if snap := lc.Snapshot(); len(snap) != 1 || snap[0].PlatformCallID != "stuck" {
			t.Errorf("snapshot = %+v", snap)
		}
	})
}

func TestReadyzWhileDraining(t *testing.T) {
	env := newTestEnv(t, RouterConfig{})

	rec := env.do(t, http.MethodGet, "/readyz", "", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("readyz = %d", rec.Code)
	}

	env.router.calls.StartDraining()
	rec = env.do(t, http.MethodGet, "/readyz", "", false)
	if rec.Code != http.StatusServiceUnavailable || rec.Body.String() != "draining" {
		t.Errorf("readyz while draining = %d %q", rec.Code, rec.Body.String())
	}
}
