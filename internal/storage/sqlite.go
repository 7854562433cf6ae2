package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	logx "liteping/pkg/logx"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, string(b)); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- monitors ----

func (s *sqliteStore) ListMonitors(ctx context.Context, activeOnly bool) ([]Monitor, error) {
	q := `SELECT id, name, url, COALESCE(method, 'HEAD'), COALESCE(interval, 60), COALESCE(active, 1), COALESCE(weight, 0), COALESCE(created_at, 0) FROM monitors`
	if activeOnly {
		q += ` WHERE active = 1`
	}
	q += ` ORDER BY weight DESC, created_at DESC, id`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Monitor
	for rows.Next() {
		var m Monitor
		if err := rows.Scan(&m.ID, &m.Name, &m.URL, &m.Method, &m.Interval, &m.Active, &m.Weight, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Method = normalizeMethod(m.Method)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *sqliteStore) UpsertMonitor(ctx context.Context, m Monitor) error {
	if m.Interval <= 0 {
		m.Interval = 60
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO monitors(id, name, url, method, interval, active, weight, created_at)
		 VALUES(?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET name=excluded.name, url=excluded.url, method=excluded.method,
		   interval=excluded.interval, active=excluded.active, weight=excluded.weight`,
		m.ID, m.Name, m.URL, normalizeMethod(m.Method), m.Interval, m.Active, m.Weight, m.CreatedAt,
	)
	return err
}

// ---- maintenance ----

func (s *sqliteStore) ListActiveMaintenance(ctx context.Context, now int64) ([]MaintenanceWindow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, monitor_id, title, start_time, end_time, created_at FROM maintenance
		 WHERE start_time < ? AND end_time > ?`, now, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MaintenanceWindow
	for rows.Next() {
		var m MaintenanceWindow
		if err := rows.Scan(&m.ID, &m.MonitorID, &m.Title, &m.StartTime, &m.EndTime, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *sqliteStore) InsertMaintenance(ctx context.Context, m MaintenanceWindow) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO maintenance(id, monitor_id, title, start_time, end_time, created_at) VALUES(?,?,?,?,?,?)`,
		m.ID, m.MonitorID, m.Title, m.StartTime, m.EndTime, m.CreatedAt,
	)
	return err
}

// ---- incidents ----

func (s *sqliteStore) ListOpenIncidents(ctx context.Context) ([]Incident, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, monitor_id, url, cause, started_at FROM incidents WHERE resolved_at IS NULL ORDER BY started_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Incident
	for rows.Next() {
		var inc Incident
		if err := rows.Scan(&inc.ID, &inc.MonitorID, &inc.URL, &inc.Cause, &inc.StartedAt); err != nil {
			return nil, err
		}
		out = append(out, inc)
	}
	return out, rows.Err()
}

func (s *sqliteStore) InsertIncident(ctx context.Context, inc Incident) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO incidents(id, monitor_id, url, cause, started_at, resolved_at) VALUES(?,?,?,?,?,?)`,
		inc.ID, inc.MonitorID, inc.URL, inc.Cause, inc.StartedAt, nullInt(inc.ResolvedAt),
	)
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return fmt.Errorf("insert incident %s for %s: %w", inc.ID, inc.MonitorID, ErrIncidentOpen)
	}
	return err
}

func (s *sqliteStore) ResolveIncident(ctx context.Context, id string, resolvedAt int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE incidents SET resolved_at = ? WHERE id = ? AND resolved_at IS NULL`, resolvedAt, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("resolve incident %s: %w", id, ErrNotFound)
	}
	return nil
}

// ---- heartbeats ----

func (s *sqliteStore) InsertHeartbeats(ctx context.Context, hbs []Heartbeat) error {
	if len(hbs) == 0 {
		return nil
	}
	var b strings.Builder
	b.WriteString(`INSERT INTO heartbeats(monitor_id, status, latency, timestamp, region) VALUES `)
	args := make([]any, 0, len(hbs)*5)
	for i, hb := range hbs {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("(?,?,?,?,?)")
		args = append(args, hb.MonitorID, hb.Status, hb.Latency, hb.Timestamp, hb.Region)
	}
	_, err := s.db.ExecContext(ctx, b.String(), args...)
	return err
}

func (s *sqliteStore) ListHeartbeats(ctx context.Context, from, to int64) ([]Heartbeat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT monitor_id, status, latency, timestamp, COALESCE(region, 'Global') FROM heartbeats
		 WHERE timestamp >= ? AND timestamp < ? ORDER BY monitor_id, timestamp`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Heartbeat
	for rows.Next() {
		var hb Heartbeat
		if err := rows.Scan(&hb.MonitorID, &hb.Status, &hb.Latency, &hb.Timestamp, &hb.Region); err != nil {
			return nil, err
		}
		out = append(out, hb)
	}
	return out, rows.Err()
}

func (s *sqliteStore) DeleteHeartbeatsBefore(ctx context.Context, ts int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM heartbeats WHERE timestamp < ?`, ts)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ---- hourly stats ----

func (s *sqliteStore) InsertHourlyStats(ctx context.Context, stats []HourlyStat) error {
	if len(stats) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO hourly_stats(monitor_id, timestamp, avg_latency, success_count, total_count) VALUES(?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, st := range stats {
		if _, err := stmt.ExecContext(ctx, st.MonitorID, st.HourStart, st.AvgLatency, st.SuccessCount, st.TotalCount); err != nil {
			return fmt.Errorf("insert hourly stat %s@%d: %w", st.MonitorID, st.HourStart, err)
		}
	}
	return tx.Commit()
}

// ---- settings ----

func (s *sqliteStore) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *sqliteStore) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings(key, value) VALUES(?,?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value`, key, value)
	return err
}

// ---- notifiers ----

func (s *sqliteStore) ListActiveNotifiers(ctx context.Context) ([]Notifier, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, type, config, COALESCE(active, 1), created_at FROM notifiers WHERE active = 1 ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Notifier
	for rows.Next() {
		var (
			n   Notifier
			typ string
			raw string
		)
		if err := rows.Scan(&n.ID, &n.Name, &typ, &raw, &n.Active, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Type = ChannelType(typ)
		if KnownChannel(n.Type) {
			cfg, err := DecodeChannelConfig(n.Type, []byte(raw))
			if err != nil {
				// Rows written around InsertNotifier can still be malformed.
				s.log.Warn("notifier config malformed; skipping", logx.String("id", n.ID), logx.String("name", n.Name), logx.Err(err))
				continue
			}
			n.Config = cfg
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *sqliteStore) InsertNotifier(ctx context.Context, n Notifier) error {
	if err := validateNotifier(n); err != nil {
		return err
	}
	raw, err := EncodeChannelConfig(n.Config)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO notifiers(id, name, type, config, active, created_at) VALUES(?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET name=excluded.name, type=excluded.type, config=excluded.config, active=excluded.active`,
		n.ID, n.Name, string(n.Type), string(raw), n.Active, n.CreatedAt,
	)
	return err
}

func nullInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
