package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Rajmali-22/NXlayer/internal/logging"
)

func testSupervisor() *Supervisor {
	s := New(logging.NewLogger(logging.Config{Enabled: false, Component: "test"}))
	s.initialBackoff = 5 * time.Millisecond
	s.maxBackoff = 20 * time.Millisecond
	return s
}

func waitState(t *testing.T, s *Supervisor, name string, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if st, err := s.StateOf(name); err == nil && st == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	st, _ := s.StateOf(name)
	t.Fatalf("child %s state = %s, want %s", name, st, want)
}

func TestCleanExitIsNotRestarted(t *testing.T) {
	s := testSupervisor()
	var launches int64
	s.Start(context.Background(), Child{
		Name: "clean",
		Launch: func(ctx context.Context) error {
			atomic.AddInt64(&launches, 1)
			return nil
		},
	})
	waitState(t, s, "clean", StateStopped)
	if n := atomic.LoadInt64(&launches); n != 1 {
		t.Fatalf("clean child launched %d times, want 1", n)
	}
}

func TestCrashRestartsWithBackoffThenFails(t *testing.T) {
	s := testSupervisor()
	var launches int64
	s.Start(context.Background(), Child{
		Name: "crashy",
		Launch: func(ctx context.Context) error {
			atomic.AddInt64(&launches, 1)
			return errors.New("boom")
		},
	})
	waitState(t, s, "crashy", StateFailed)
	// maxRestarts failures within the window exhaust the budget; the
	// launch count is the failed attempts (restarts + the final one that
	// tipped the counter past the limit).
	if n := atomic.LoadInt64(&launches); n != int64(s.maxRestarts)+1 {
		t.Fatalf("crashy child launched %d times, want %d", n, s.maxRestarts+1)
	}
}

func TestRecoveryAfterFlakyStart(t *testing.T) {
	s := testSupervisor()
	var launches int64
	block := make(chan struct{})
	s.Start(context.Background(), Child{
		Name: "flaky",
		Launch: func(ctx context.Context) error {
			if atomic.AddInt64(&launches, 1) < 3 {
				return errors.New("not yet")
			}
			s.MarkRunning("flaky")
			select {
			case <-block:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
	waitState(t, s, "flaky", StateRunning)
	if n := atomic.LoadInt64(&launches); n != 3 {
		t.Fatalf("flaky child launched %d times, want 3", n)
	}
	close(block)
	waitState(t, s, "flaky", StateStopped)
}

func TestStopCancelsBackoffAndChildren(t *testing.T) {
	s := testSupervisor()
	s.initialBackoff = time.Hour // Stop must cut through the backoff sleep

	s.Start(context.Background(), Child{
		Name: "sleeper",
		Launch: func(ctx context.Context) error {
			return errors.New("crash straight into backoff")
		},
	})

	time.Sleep(10 * time.Millisecond)
	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Stop did not cancel the backoff timer")
	}
	waitState(t, s, "sleeper", StateStopped)
}

func TestSingleInstancePerChild(t *testing.T) {
	s := testSupervisor()
	var running, maxRunning int64
	s.Start(context.Background(), Child{
		Name: "singleton",
		Launch: func(ctx context.Context) error {
			cur := atomic.AddInt64(&running, 1)
			for {
				prev := atomic.LoadInt64(&maxRunning)
				if cur <= prev || atomic.CompareAndSwapInt64(&maxRunning, prev, cur) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt64(&running, -1)
			return errors.New("again")
		},
	})
	waitState(t, s, "singleton", StateFailed)
	if m := atomic.LoadInt64(&maxRunning); m != 1 {
		t.Fatalf("observed %d concurrent instances, want 1", m)
	}
}

func TestStateOfUnknownChild(t *testing.T) {
	s := testSupervisor()
	if _, err := s.StateOf("nope"); err == nil {
		t.Fatalf("expected error for unknown child")
	}
}
