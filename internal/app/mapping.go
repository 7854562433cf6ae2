package app

import (
	"net/http"
	"strings"

	"liteping/internal/config"
	"liteping/internal/httpapi"
	"liteping/internal/notifier"
	"liteping/internal/probe"
	"liteping/internal/storage"
	logx "liteping/pkg/logx"
)

// mapStorageConfig picks the driver. A disabled driver falls back to memory
// because the engine cannot run without a store.
func mapStorageConfig(cfg *config.Config, rt config.Runtime) (storage.Config, bool) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)
	switch driver {
	case "", "none":
		return storage.Config{Driver: "memory"}, false
	case "sqlite3":
		driver = "sqlite"
	}
	if driver == "sqlite" && path == "" {
		path = "./data/liteping.db"
	}
	return storage.Config{Driver: driver, Path: path, BusyTimeout: rt.BusyTimeout}, true
}

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapNotifierConfig(cfg *config.Config, rt config.Runtime) notifier.Config {
	return notifier.Config{
		RatePerSec: cfg.Notify.RatePerSec,
		Timeout:    rt.NotifyTimeout,
		Language:   cfg.Notify.Language,
	}
}

func newProber(cfg *config.Config, rt config.Runtime, log logx.Logger) *probe.Prober {
	return probe.New(probe.Options{
		Attempts: cfg.Probe.Attempts,
		Timeout:  rt.ProbeTimeout,
		Client:   &http.Client{},
		Logger:   log,
	})
}

func newRegion(cfg *config.Config, rt config.Runtime, log logx.Logger) *probe.RegionResolver {
	return probe.NewRegionResolver(probe.RegionOptions{
		URL:     cfg.Probe.RegionURL,
		Static:  cfg.Probe.Region,
		Timeout: rt.ProbeTimeout,
		Logger:  log,
	})
}

func mapHTTPConfig(cfg *config.Config, rt config.Runtime) (httpapi.Config, bool) {
	addr := config.HTTPAddr(cfg.HTTP)
	if addr == "" {
		return httpapi.Config{}, false
	}
	return httpapi.Config{
		Addr:          addr,
		Token:         cfg.HTTP.Token,
		AllowInsecure: cfg.HTTP.AllowInsecure,
		Pprof:         cfg.HTTP.Pprof,
		ReadTimeout:   rt.HTTPRead,
		WriteTimeout:  rt.HTTPWrite,
		IdleTimeout:   rt.HTTPIdle,
	}, true
}
