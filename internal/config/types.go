package config

import (
	"bytes"
	"encoding/json"
)

// Config is the on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Probe     ProbeConfig     `json:"probe"`
	Notify    NotifyConfig    `json:"notify"`
	HTTP      HTTPConfig      `json:"http"`

	// ShutdownTimeout bounds how long Stop waits for in-flight alerts and jobs.
	ShutdownTimeout string `json:"shutdown_timeout,omitempty"`

	// Seed is applied to storage at startup; it never deletes existing rows.
	Seed *SeedConfig `json:"seed,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig selects the store driver.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/liteping.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// SchedulerConfig controls the per-minute trigger. A tick has no overall
// deadline; each probe attempt is bounded by probe.timeout.
//
// Defaults:
//   - spec: "* * * * *"
//   - timezone: "UTC"
type SchedulerConfig struct {
	Spec     string `json:"spec,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

// ProbeConfig controls HTTP checks. Applied from the next tick on reload.
//
// Defaults: attempts 2, timeout "10s", batch_size 10,
// region_url Cloudflare's trace endpoint.
type ProbeConfig struct {
	Attempts  int    `json:"attempts,omitempty"`
	Timeout   string `json:"timeout,omitempty"`
	BatchSize int    `json:"batch_size,omitempty"`
	RegionURL string `json:"region_url,omitempty"`
	// Region, when set, skips discovery.
	Region string `json:"region,omitempty"`
}

// NotifyConfig controls alert delivery.
//
// Defaults: rate_per_sec 10, timeout "10s", language "zh-CN".
type NotifyConfig struct {
	RatePerSec     int    `json:"rate_per_sec,omitempty"`
	Timeout        string `json:"timeout,omitempty"`
	Language       string `json:"language,omitempty"`
	TelegramAPIURL string `json:"telegram_api_url,omitempty"`
}

// HTTPConfig controls the status server. An empty addr means
// DefaultHTTPAddr and "-" disables it.
type HTTPConfig struct {
	Addr  string `json:"addr"`
	Pprof bool   `json:"pprof,omitempty"`
	// Token guards /api and /debug when set. Binding a non-loopback address
	// without one requires AllowInsecure.
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

type SeedConfig struct {
	Monitors      []SeedMonitor  `json:"monitors,omitempty"`
	Notifiers     []SeedNotifier `json:"notifiers,omitempty"`
	RetentionDays int            `json:"retention_days,omitempty"`
}

type SeedMonitor struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	Method   string `json:"method,omitempty"`
	Interval int    `json:"interval,omitempty"`
	Active   *bool  `json:"active,omitempty"`
	Weight   int    `json:"weight,omitempty"`
}

type SeedNotifier struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Type   string          `json:"type"`
	Active *bool           `json:"active,omitempty"`
	Config json.RawMessage `json:"config"`
}

// UnmarshalJSON disallows unknown fields so typos in seed entries surface on reload.
func (n *SeedNotifier) UnmarshalJSON(b []byte) error {
	type tmp SeedNotifier
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	var t tmp
	if err := dec.Decode(&t); err != nil {
		return err
	}
	*n = SeedNotifier(t)
	return nil
}

// IsActive treats an omitted flag as true.
func (m SeedMonitor) IsActive() bool { return m.Active == nil || *m.Active }

func (n SeedNotifier) IsActive() bool { return n.Active == nil || *n.Active }
