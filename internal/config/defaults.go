package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"liteping/internal/storage"
	"liteping/internal/task/scheduler"
)

const (
	DefaultSchedule        = "* * * * *"
	DefaultShutdownTimeout = 30 * time.Second
	DefaultHTTPAddr        = "127.0.0.1:8787"
)

// Runtime is Config with durations parsed and defaults applied.
type Runtime struct {
	ShutdownTimeout time.Duration
	ProbeTimeout    time.Duration
	NotifyTimeout   time.Duration
	BusyTimeout     time.Duration
	HTTPRead        time.Duration
	HTTPWrite       time.Duration
	HTTPIdle        time.Duration
}

// Resolve validates cfg and parses every duration field. All problems are
// reported together.
func Resolve(cfg *Config) (Runtime, error) {
	if cfg == nil {
		return Runtime{}, errors.New("config is nil")
	}
	var (
		rt   Runtime
		errs []error
	)
	for _, f := range durationFields(cfg, &rt) {
		d, err := parseDuration(f.path, f.raw, f.def)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		*f.dst = d
	}

	if _, err := scheduler.ParseSchedule(ScheduleOrDefault(cfg.Scheduler.Spec)); err != nil {
		errs = append(errs, fmt.Errorf("scheduler.spec: %w", err))
	}
	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" && !strings.EqualFold(tz, "UTC") {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("scheduler.timezone: %w", err))
		}
	}
	if cfg.Probe.Attempts < 0 {
		errs = append(errs, errors.New("probe.attempts must be >= 0"))
	}
	if cfg.Probe.BatchSize < 0 {
		errs = append(errs, errors.New("probe.batch_size must be >= 0"))
	}
	if cfg.Notify.RatePerSec < 0 {
		errs = append(errs, errors.New("notify.rate_per_sec must be >= 0"))
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "none", "memory", "sqlite", "sqlite3":
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver))
	}
	if cfg.Seed != nil {
		errs = append(errs, validateSeed(cfg.Seed)...)
	}
	return rt, errors.Join(errs...)
}

func ScheduleOrDefault(spec string) string {
	if strings.TrimSpace(spec) == "" {
		return DefaultSchedule
	}
	return spec
}

// HTTPAddr returns the effective listen address; "-" disables the server.
func HTTPAddr(c HTTPConfig) string {
	addr := strings.TrimSpace(c.Addr)
	switch addr {
	case "":
		return DefaultHTTPAddr
	case "-":
		return ""
	}
	return addr
}

func validateSeed(s *SeedConfig) []error {
	var errs []error
	seen := map[string]bool{}
	for i, m := range s.Monitors {
		path := fmt.Sprintf("seed.monitors[%d]", i)
		if strings.TrimSpace(m.ID) == "" || strings.TrimSpace(m.URL) == "" {
			errs = append(errs, fmt.Errorf("%s: id and url are required", path))
		}
		if seen[m.ID] {
			errs = append(errs, fmt.Errorf("%s: duplicate id %q", path, m.ID))
		}
		seen[m.ID] = true
	}
	for i, n := range s.Notifiers {
		if _, err := storage.DecodeChannelConfig(storage.ChannelType(n.Type), n.Config); err != nil {
			errs = append(errs, fmt.Errorf("seed.notifiers[%d]: %w", i, err))
		}
	}
	if s.RetentionDays < 0 {
		errs = append(errs, errors.New("seed.retention_days must be >= 0"))
	}
	return errs
}
