package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"liteping/internal/config"
	"liteping/internal/storage"
	logx "liteping/pkg/logx"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestApplySeed(t *testing.T) {
	st := storage.NewMemory()
	off := false
	seed := &config.SeedConfig{
		Monitors: []config.SeedMonitor{
			{ID: "m1", URL: "https://a.example"},
			{ID: "m2", Name: "b", URL: "https://b.example", Method: "GET", Active: &off},
		},
		Notifiers: []config.SeedNotifier{
			{ID: "n1", Name: "hook", Type: "webhook", Config: json.RawMessage(`{"url":"https://hook.example"}`)},
			{ID: "n2", Name: "bad", Type: "slack", Config: json.RawMessage(`{}`)},
		},
		RetentionDays: 7,
	}

	err := applySeed(context.Background(), st, seed, time.Unix(1000, 0), logx.Nop())
	if err == nil {
		t.Fatal("expected the invalid slack notifier to be reported")
	}

	ctx := context.Background()
	mons, _ := st.ListMonitors(ctx, false)
	if len(mons) != 2 {
		t.Fatalf("monitors = %d, want 2", len(mons))
	}
	active, _ := st.ListMonitors(ctx, true)
	if len(active) != 1 || active[0].ID != "m1" || active[0].Name != "m1" {
		t.Fatalf("active monitors = %+v", active)
	}
	nots, _ := st.ListActiveNotifiers(ctx)
	if len(nots) != 1 || nots[0].ID != "n1" {
		t.Fatalf("notifiers = %+v", nots)
	}
	if v, ok, _ := st.GetSetting(ctx, storage.SettingRetentionDays); !ok || v != "7" {
		t.Fatalf("retention_days = %q, %v", v, ok)
	}

	// Re-applying is idempotent.
	_ = applySeed(ctx, st, seed, time.Unix(2000, 0), logx.Nop())
	if mons, _ := st.ListMonitors(ctx, false); len(mons) != 2 {
		t.Fatalf("monitors after reseed = %d, want 2", len(mons))
	}
	if nots, _ := st.ListActiveNotifiers(ctx); len(nots) != 1 {
		t.Fatalf("notifiers after reseed = %d, want 1", len(nots))
	}
}

func TestMapStorageConfig(t *testing.T) {
	t.Parallel()
	rt := config.Runtime{BusyTimeout: time.Second}
	tests := []struct {
		driver, path string
		want         storage.Config
		persistent   bool
	}{
		{driver: "", want: storage.Config{Driver: "memory"}},
		{driver: "none", want: storage.Config{Driver: "memory"}},
		{driver: "memory", want: storage.Config{Driver: "memory", BusyTimeout: time.Second}, persistent: true},
		{driver: "sqlite3", path: "x.db", want: storage.Config{Driver: "sqlite", Path: "x.db", BusyTimeout: time.Second}, persistent: true},
		{driver: "sqlite", want: storage.Config{Driver: "sqlite", Path: "./data/liteping.db", BusyTimeout: time.Second}, persistent: true},
	}
	for _, tt := range tests {
		got, persistent := mapStorageConfig(&config.Config{Storage: config.StorageConfig{Driver: tt.driver, Path: tt.path}}, rt)
		if got != tt.want || persistent != tt.persistent {
			t.Errorf("driver %q: got %+v/%v, want %+v/%v", tt.driver, got, persistent, tt.want, tt.persistent)
		}
	}
}

func TestNewAppRejectsInsecureHTTP(t *testing.T) {
	path := writeConfig(t, "storage:\n  driver: memory\nhttp:\n  addr: \"0.0.0.0:0\"\n")
	if _, err := NewApp(path); err == nil {
		t.Fatal("expected public bind without token to be rejected")
	}
}

func TestAppTickEndToEnd(t *testing.T) {
	var hits int32
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer target.Close()

	path := writeConfig(t, fmt.Sprintf(`
logging:
  level: error
storage:
  driver: memory
probe:
  region: TEST
  timeout: 1s
http:
  addr: "-"
seed:
  monitors:
    - id: m1
      name: api
      url: %s
      method: GET
`, target.URL))

	a, err := NewApp(path)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	fire := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	if err := a.tick(ctx, fire); err != nil {
		t.Fatalf("tick: %v", err)
	}
	rep := a.Checker().LastReport()
	if rep.Monitors != 1 || rep.Opened != 1 || rep.Region != "TEST" {
		t.Fatalf("report = %+v", rep)
	}
	// The cron entry may also fire if the test straddles a minute boundary.
	if n := atomic.LoadInt32(&hits); n < 1 {
		t.Fatalf("target hits = %d, want >= 1", n)
	}
	open, err := a.Store().ListOpenIncidents(ctx)
	if err != nil || len(open) != 1 || open[0].Cause != "HTTP Status 503" {
		t.Fatalf("open incidents = %+v, %v", open, err)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx, StopSignal); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestStopLetsInFlightTickFinish(t *testing.T) {
	started := make(chan struct{})
	var once sync.Once
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() { close(started) })
		time.Sleep(300 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer target.Close()

	dbPath := filepath.Join(t.TempDir(), "liteping.db")
	path := writeConfig(t, fmt.Sprintf(`
logging:
  level: error
storage:
  driver: sqlite
  path: %s
scheduler:
  spec: "@every 1s"
probe:
  region: TEST
  timeout: 2s
http:
  addr: "-"
shutdown_timeout: 5s
seed:
  monitors:
    - id: m1
      url: %s
      method: GET
`, dbPath, target.URL))

	a, err := NewApp(path)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("no tick reached the target")
	}
	// Signal arrives while the probe is in flight.
	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx, StopSignal); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	rep := a.Checker().LastReport()
	if rep.Canceled != 0 || rep.Persisted != 1 {
		t.Fatalf("report = %+v", rep)
	}

	// Stop closed the app's store; reopen the file to inspect what landed.
	st, err := storage.Open(storage.Config{Driver: "sqlite", Path: dbPath, BusyTimeout: time.Second}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st.Close()
	bg := context.Background()
	open, err := st.ListOpenIncidents(bg)
	if err != nil || len(open) != 0 {
		t.Fatalf("open incidents = %+v, %v", open, err)
	}
	hbs, err := st.ListHeartbeats(bg, 0, time.Now().Add(time.Hour).Unix())
	if err != nil || len(hbs) == 0 || hbs[len(hbs)-1].Status != http.StatusOK {
		t.Fatalf("heartbeats = %+v, %v", hbs, err)
	}
}
