package config

import (
	"reflect"
	"strings"

	logx "liteping/pkg/logx"
)

// Section names reported by SummarizeConfigChange.
const (
	SectionLogging   = "logging"
	SectionStorage   = "storage"
	SectionScheduler = "scheduler"
	SectionProbe     = "probe"
	SectionNotify    = "notify"
	SectionHTTP      = "http"
	SectionShutdown  = "shutdown_timeout"
	SectionSeed      = "seed"
)

// SummarizeConfigChange returns the changed sections plus safe structured
// attrs for logging. Notifier credentials inside seed are never included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	var (
		changed []string
		attrs   []logx.Field
	)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, SectionLogging)
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, SectionStorage)
		attrs = append(attrs,
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.String("storage.path", strings.TrimSpace(newCfg.Storage.Path)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Scheduler, newCfg.Scheduler) {
		changed = append(changed, SectionScheduler)
		attrs = append(attrs,
			logx.String("scheduler.spec", ScheduleOrDefault(newCfg.Scheduler.Spec)),
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Probe, newCfg.Probe) {
		changed = append(changed, SectionProbe)
		attrs = append(attrs,
			logx.Int("probe.attempts", newCfg.Probe.Attempts),
			logx.String("probe.timeout", newCfg.Probe.Timeout),
			logx.Int("probe.batch_size", newCfg.Probe.BatchSize),
			logx.String("probe.region", newCfg.Probe.Region),
		)
	}

	if !reflect.DeepEqual(oldCfg.Notify, newCfg.Notify) {
		changed = append(changed, SectionNotify)
		attrs = append(attrs,
			logx.Int("notify.rate_per_sec", newCfg.Notify.RatePerSec),
			logx.String("notify.timeout", newCfg.Notify.Timeout),
			logx.String("notify.language", newCfg.Notify.Language),
		)
	}

	if !reflect.DeepEqual(oldCfg.HTTP, newCfg.HTTP) {
		changed = append(changed, SectionHTTP)
		attrs = append(attrs,
			logx.String("http.addr", HTTPAddr(newCfg.HTTP)),
			logx.Bool("http.pprof", newCfg.HTTP.Pprof),
			logx.Bool("http.token_set", newCfg.HTTP.Token != ""),
		)
	}

	if strings.TrimSpace(oldCfg.ShutdownTimeout) != strings.TrimSpace(newCfg.ShutdownTimeout) {
		changed = append(changed, SectionShutdown)
		attrs = append(attrs, logx.String("shutdown_timeout", newCfg.ShutdownTimeout))
	}

	if !reflect.DeepEqual(oldCfg.Seed, newCfg.Seed) {
		changed = append(changed, SectionSeed)
		var mons, nots int
		if newCfg.Seed != nil {
			mons, nots = len(newCfg.Seed.Monitors), len(newCfg.Seed.Notifiers)
		}
		attrs = append(attrs, logx.Int("seed.monitors", mons), logx.Int("seed.notifiers", nots))
	}

	return changed, attrs
}

// RestartRequired reports sections that only take effect on restart.
func RestartRequired(changed []string) []string {
	var out []string
	for _, c := range changed {
		switch c {
		case SectionStorage, SectionHTTP, SectionSeed:
			out = append(out, c)
		}
	}
	return out
}
