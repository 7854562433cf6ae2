package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
logging:
  level: debug
  console: true
storage:
  driver: sqlite
  path: ./data/liteping.db
scheduler:
  spec: "* * * * *"
probe:
  attempts: 2
  timeout: 10s
  batch_size: 10
notify:
  language: en
  rate_per_sec: 5
http:
  addr: 127.0.0.1:9000
shutdown_timeout: 20s
seed:
  retention_days: 14
  monitors:
    - id: api
      name: API
      url: https://api.example.com/health
      method: GET
  notifiers:
    - id: ops
      name: ops-discord
      type: discord
      config:
        webhookUrl: https://discord.example/api/webhooks/1
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadYAML(t *testing.T) {
	m := NewConfigManager(writeFile(t, "liteping.yaml", sampleYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Notify.Language != "en" || cfg.Probe.BatchSize != 10 || cfg.Storage.Driver != "sqlite" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Seed == nil || len(cfg.Seed.Monitors) != 1 || !cfg.Seed.Monitors[0].IsActive() {
		t.Fatalf("seed = %+v", cfg.Seed)
	}
	rt, err := Resolve(cfg)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if rt.ShutdownTimeout != 20*time.Second || rt.ProbeTimeout != 10*time.Second {
		t.Fatalf("runtime = %+v", rt)
	}
	if m.Get() != cfg {
		t.Fatal("Load did not commit")
	}
}

func TestParseStrict(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		file string
		body string
	}{
		{name: "unknown json field", file: "c.json", body: `{"probe":{"retries":3}}`},
		{name: "unknown yaml field", file: "c.yaml", body: "notify:\n  channel: x\n"},
		{name: "trailing json", file: "c.json", body: `{} {}`},
		{name: "unknown seed notifier field", file: "c.json", body: `{"seed":{"notifiers":[{"id":"a","type":"slack","config":{},"extra":1}]}}`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := NewConfigManager(writeFile(t, tt.file, tt.body)).Parse(); err == nil {
				t.Fatal("expected parse error")
			}
		})
	}
}

func TestResolveReportsAllErrors(t *testing.T) {
	cfg := &Config{
		ShutdownTimeout: "soon",
		Scheduler:       SchedulerConfig{Spec: "every-minute"},
		Probe:           ProbeConfig{Attempts: -1, Timeout: "-5s"},
		Storage:         StorageConfig{Driver: "postgres"},
		Seed: &SeedConfig{Notifiers: []SeedNotifier{
			{ID: "t", Type: "telegram", Config: []byte(`{"token":"x"}`)},
		}},
	}
	_, err := Resolve(cfg)
	if err == nil {
		t.Fatal("expected errors")
	}
	for _, want := range []string{"shutdown_timeout", "scheduler.spec", "probe.attempts", "probe.timeout", "storage.driver", "seed.notifiers[0]"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestResolveDefaults(t *testing.T) {
	rt, err := Resolve(&Config{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if rt.ShutdownTimeout != DefaultShutdownTimeout || rt.NotifyTimeout != 10*time.Second {
		t.Fatalf("runtime = %+v", rt)
	}
	if HTTPAddr(HTTPConfig{}) != DefaultHTTPAddr || HTTPAddr(HTTPConfig{Addr: "-"}) != "" {
		t.Fatal("unexpected http addr defaults")
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	old := &Config{Notify: NotifyConfig{Language: "zh-CN"}, Storage: StorageConfig{Driver: "memory"}}
	cur := &Config{Notify: NotifyConfig{Language: "en"}, Storage: StorageConfig{Driver: "sqlite", Path: "x.db"}}
	changed, attrs := SummarizeConfigChange(old, cur)
	if strings.Join(changed, ",") != "storage,notify" {
		t.Fatalf("changed = %v", changed)
	}
	if len(attrs) == 0 {
		t.Fatal("expected attrs")
	}
	if got := RestartRequired(changed); len(got) != 1 || got[0] != SectionStorage {
		t.Fatalf("RestartRequired = %v", got)
	}
}

func TestWatchPublishesValidReload(t *testing.T) {
	path := writeFile(t, "liteping.json", `{"notify":{"language":"zh-CN"}}`)
	m := NewConfigManager(path)
	m.debounce = 20 * time.Millisecond
	if _, err := m.Load(); err != nil {
		t.Fatal(err)
	}
	m.SetValidator(func(_ context.Context, cfg *Config) error {
		_, err := Resolve(cfg)
		return err
	})
	ch := m.Subscribe(1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = m.Watch(ctx)
		close(done)
	}()
	// Give the watcher a moment to register.
	time.Sleep(100 * time.Millisecond)

	// Invalid content is rejected and never published.
	if err := os.WriteFile(path, []byte(`{"probe":{"timeout":"fast"}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(150 * time.Millisecond)
	select {
	case cfg := <-ch:
		t.Fatalf("invalid config published: %+v", cfg)
	default:
	}

	if err := os.WriteFile(path, []byte(`{"notify":{"language":"en"}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case cfg := <-ch:
		if cfg.Notify.Language != "en" {
			t.Fatalf("published language = %q", cfg.Notify.Language)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reload published")
	}
	cancel()
	<-done
}

func TestParseEmptyYAMLUsesDefaults(t *testing.T) {
	cfg, err := NewConfigManager(writeFile(t, "empty.yml", "# nothing yet\n")).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Seed != nil || HTTPAddr(cfg.HTTP) != DefaultHTTPAddr {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestYAMLSeedNotifierConfigIsJSON(t *testing.T) {
	cfg, err := NewConfigManager(writeFile(t, "liteping.yaml", sampleYAML)).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got := string(cfg.Seed.Notifiers[0].Config)
	if got != `{"webhookUrl":"https://discord.example/api/webhooks/1"}` {
		t.Fatalf("notifier config = %s", got)
	}
}

func TestParseDuration(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{raw: "", want: time.Minute},
		{raw: " 0 ", want: time.Minute},
		{raw: "1500ms", want: 1500 * time.Millisecond},
		{raw: "-1s", wantErr: true},
		{raw: "ten", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseDuration("probe.timeout", tt.raw, time.Minute)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("parseDuration(%q) = %v, %v", tt.raw, got, err)
		}
		if err != nil && !strings.Contains(err.Error(), "probe.timeout") {
			t.Errorf("error %q does not name the key", err)
		}
	}
}
