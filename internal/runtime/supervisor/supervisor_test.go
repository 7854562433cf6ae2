package supervisor

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestWaitDrainsTasksWithoutCancel(t *testing.T) {
	s := New(context.Background())
	var done int32
	for i := 0; i < 5; i++ {
		s.Go0("notify", func(ctx context.Context) {
			time.Sleep(20 * time.Millisecond)
			if ctx.Err() == nil {
				atomic.AddInt32(&done, 1)
			}
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if got := atomic.LoadInt32(&done); got != 5 {
		t.Fatalf("completed tasks = %d, want 5", got)
	}
	c := s.Counters()
	if c.Started != 5 || c.Active != 0 {
		t.Fatalf("counters = %+v", c)
	}
}

func TestFailureIsRecordedNotPropagated(t *testing.T) {
	s := New(context.Background())
	s.Go("retention", func(ctx context.Context) error { return errors.New("purge failed") })
	s.Go0("boom", func(ctx context.Context) { panic("kaboom") })
	s.Go("ok", func(ctx context.Context) error { return nil })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.Wait(ctx)
	if err == nil {
		t.Fatal("expected first error to be reported")
	}
	if s.Context().Err() != nil {
		t.Fatal("supervisor context canceled by a task failure")
	}

	c := s.Counters()
	if c.Failed != 2 || c.Panics != 1 {
		t.Fatalf("counters = %+v, want 2 failed / 1 panic", c)
	}

	snap := s.Snapshot()
	var found bool
	for _, ts := range snap.Tasks {
		if ts.Name == "retention" {
			found = true
			if !strings.Contains(ts.LastErr, "purge failed") {
				t.Fatalf("retention last err = %q", ts.LastErr)
			}
		}
	}
	if !found {
		t.Fatalf("retention task missing from snapshot: %+v", snap.Tasks)
	}
}

func TestWaitHonorsDeadline(t *testing.T) {
	s := New(context.Background())
	release := make(chan struct{})
	s.Go0("slow", func(ctx context.Context) { <-release })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := s.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait err = %v, want deadline exceeded", err)
	}
	close(release)
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestGoRestartRecoversAfterFailure(t *testing.T) {
	s := New(context.Background())
	var runs int32
	s.GoRestart("loop", func(ctx context.Context) error {
		if atomic.AddInt32(&runs, 1) < 3 {
			return errors.New("transient")
		}
		return nil
	}, time.Millisecond, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = s.Wait(ctx)
	if got := atomic.LoadInt32(&runs); got != 3 {
		t.Fatalf("runs = %d, want 3", got)
	}
}
