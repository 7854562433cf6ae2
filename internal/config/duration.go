package config

import (
	"fmt"
	"strings"
	"time"
)

// durationField binds one duration string in Config to its Runtime slot.
type durationField struct {
	path string
	raw  string
	def  time.Duration
	dst  *time.Duration
}

// durationFields lists every duration key with its default. Resolve walks it.
func durationFields(cfg *Config, rt *Runtime) []durationField {
	return []durationField{
		{"shutdown_timeout", cfg.ShutdownTimeout, DefaultShutdownTimeout, &rt.ShutdownTimeout},
		{"probe.timeout", cfg.Probe.Timeout, 10 * time.Second, &rt.ProbeTimeout},
		{"notify.timeout", cfg.Notify.Timeout, 10 * time.Second, &rt.NotifyTimeout},
		{"storage.busy_timeout", cfg.Storage.BusyTimeout, 5 * time.Second, &rt.BusyTimeout},
		{"http.read_timeout", cfg.HTTP.ReadTimeout, 10 * time.Second, &rt.HTTPRead},
		{"http.write_timeout", cfg.HTTP.WriteTimeout, 30 * time.Second, &rt.HTTPWrite},
		{"http.idle_timeout", cfg.HTTP.IdleTimeout, 60 * time.Second, &rt.HTTPIdle},
	}
}

// parseDuration reads a Go duration string such as "10s". Empty or "0"
// yields def; negative values are rejected with the key in the message.
func parseDuration(path, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: invalid duration %q (want e.g. \"10s\")", path, raw)
	case d < 0:
		return 0, fmt.Errorf("%s: duration must be >= 0, got %s", path, s)
	case d == 0:
		return def, nil
	}
	return d, nil
}
