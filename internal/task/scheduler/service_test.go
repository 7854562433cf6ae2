package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	logx "liteping/pkg/logx"
)

func TestFireTimeTruncatesToMinute(t *testing.T) {
	in := time.Date(2024, 5, 2, 0, 0, 42, 913, time.UTC)
	got := FireTime(in, time.UTC)
	if want := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("FireTime = %v, want %v", got, want)
	}
	if got.Location() != time.UTC {
		t.Fatalf("location = %v", got.Location())
	}
}

func TestAddCronValidates(t *testing.T) {
	s := New(Config{}, logx.Nop())
	noop := func(context.Context, time.Time) error { return nil }
	if err := s.AddCron("", "* * * * *", 0, noop); err == nil {
		t.Fatal("expected error for empty name")
	}
	if err := s.AddCron("tick", "61 * * * *", 0, noop); err == nil {
		t.Fatal("expected error for invalid cron")
	}
	if err := s.AddCron("tick", "* * * * *", time.Minute, noop); err != nil {
		t.Fatalf("AddCron: %v", err)
	}
	// Re-registering replaces.
	if err := s.AddCron("tick", "*/5 * * * *", time.Minute, noop); err != nil {
		t.Fatalf("AddCron replace: %v", err)
	}
	snap := s.Snapshot()
	if len(snap.Schedules) != 1 || snap.Schedules[0].Spec != "*/5 * * * *" {
		t.Fatalf("schedules = %+v", snap.Schedules)
	}
	if snap.Running || snap.Timezone != "UTC" {
		t.Fatalf("snapshot = %+v", snap)
	}
	if !s.Remove("tick") || s.Remove("tick") {
		t.Fatal("Remove should succeed exactly once")
	}
}

func TestTriggerPassesFireTimeAndSkipsOverlap(t *testing.T) {
	s := New(Config{Timezone: "UTC"}, logx.Nop())
	fixed := time.Date(2024, 5, 2, 0, 0, 17, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	var (
		mu    sync.Mutex
		fires []time.Time
	)
	release := make(chan struct{})
	first := make(chan struct{})
	var once sync.Once
	err := s.AddCron("tick", "* * * * * *", 0, func(ctx context.Context, fire time.Time) error {
		mu.Lock()
		fires = append(fires, fire)
		mu.Unlock()
		once.Do(func() { close(first) })
		<-release
		return nil
	})
	if err != nil {
		t.Fatalf("AddCron: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	select {
	case <-first:
	case <-time.After(3 * time.Second):
		t.Fatal("job never fired")
	}
	// Let at least one more trigger land while the first run blocks.
	time.Sleep(1500 * time.Millisecond)
	close(release)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer stopCancel()
	s.Stop(stopCtx)

	mu.Lock()
	defer mu.Unlock()
	if len(fires) == 0 || !fires[0].Equal(time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("fire times = %v", fires)
	}
	snap := s.Snapshot()
	if len(snap.Schedules) != 1 || snap.Schedules[0].Skipped == 0 {
		t.Fatalf("expected skipped triggers, snapshot = %+v", snap.Schedules)
	}
}
