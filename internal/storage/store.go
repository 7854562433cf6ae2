package storage

import (
	"context"
	"errors"
	"strings"

	logx "liteping/pkg/logx"
)

// Store is the persistence API used by the engine.
//
// Each method is atomic on its own; no call spans a transaction across
// another. InsertHeartbeats and InsertHourlyStats write their whole slice as
// one unit.
type Store interface {
	ListMonitors(ctx context.Context, activeOnly bool) ([]Monitor, error)
	UpsertMonitor(ctx context.Context, m Monitor) error

	ListActiveMaintenance(ctx context.Context, now int64) ([]MaintenanceWindow, error)
	InsertMaintenance(ctx context.Context, m MaintenanceWindow) error

	ListOpenIncidents(ctx context.Context) ([]Incident, error)
	// InsertIncident fails with ErrIncidentOpen when the monitor already has
	// an unresolved incident.
	InsertIncident(ctx context.Context, inc Incident) error
	ResolveIncident(ctx context.Context, id string, resolvedAt int64) error

	InsertHeartbeats(ctx context.Context, hbs []Heartbeat) error
	ListHeartbeats(ctx context.Context, from, to int64) ([]Heartbeat, error)
	DeleteHeartbeatsBefore(ctx context.Context, ts int64) (int64, error)

	InsertHourlyStats(ctx context.Context, stats []HourlyStat) error

	GetSetting(ctx context.Context, key string) (value string, ok bool, err error)
	SetSetting(ctx context.Context, key, value string) error

	ListActiveNotifiers(ctx context.Context) ([]Notifier, error)
	// InsertNotifier replaces any row with the same ID.
	InsertNotifier(ctx context.Context, n Notifier) error

	Close() error
}

// Open initializes the configured store.
// It returns (nil, ErrDisabled) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, ErrDisabled
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "memory":
		return NewMemory(), nil
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
