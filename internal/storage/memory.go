package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// memoryStore is a dependency-free, process-local backend.
//
// It keeps the same per-call atomicity as the sqlite driver: each method
// holds the lock for its whole write.
type memoryStore struct {
	mu sync.Mutex

	monitors    map[string]Monitor
	maintenance []MaintenanceWindow
	incidents   []Incident
	heartbeats  []Heartbeat
	hourly      []HourlyStat
	settings    map[string]string
	notifiers   []Notifier
	closed      bool
}

// NewMemory returns an empty in-memory Store.
func NewMemory() Store {
	return &memoryStore{
		monitors: map[string]Monitor{},
		settings: map[string]string{},
	}
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) check() error {
	if s.closed {
		return ErrDisabled
	}
	return nil
}

func (s *memoryStore) ListMonitors(ctx context.Context, activeOnly bool) ([]Monitor, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return nil, err
	}
	out := make([]Monitor, 0, len(s.monitors))
	for _, m := range s.monitors {
		if activeOnly && !m.Active {
			continue
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *memoryStore) UpsertMonitor(ctx context.Context, m Monitor) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	m.Method = normalizeMethod(m.Method)
	if m.Interval <= 0 {
		m.Interval = 60
	}
	s.monitors[m.ID] = m
	return nil
}

func (s *memoryStore) ListActiveMaintenance(ctx context.Context, now int64) ([]MaintenanceWindow, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return nil, err
	}
	var out []MaintenanceWindow
	for _, m := range s.maintenance {
		if m.ActiveAt(now) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memoryStore) InsertMaintenance(ctx context.Context, m MaintenanceWindow) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	s.maintenance = append(s.maintenance, m)
	return nil
}

func (s *memoryStore) ListOpenIncidents(ctx context.Context) ([]Incident, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return nil, err
	}
	var out []Incident
	for _, inc := range s.incidents {
		if inc.Open() {
			out = append(out, inc)
		}
	}
	return out, nil
}

// Incidents returns every incident, open or resolved.
func (s *memoryStore) Incidents() []Incident {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Incident, len(s.incidents))
	for i, inc := range s.incidents {
		if inc.ResolvedAt != nil {
			v := *inc.ResolvedAt
			inc.ResolvedAt = &v
		}
		out[i] = inc
	}
	return out
}

func (s *memoryStore) InsertIncident(ctx context.Context, inc Incident) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	for _, cur := range s.incidents {
		if cur.ID == inc.ID {
			return fmt.Errorf("insert incident %s: duplicate id", inc.ID)
		}
		if inc.Open() && cur.Open() && cur.MonitorID == inc.MonitorID {
			return fmt.Errorf("insert incident %s for %s: %w", inc.ID, inc.MonitorID, ErrIncidentOpen)
		}
	}
	s.incidents = append(s.incidents, inc)
	return nil
}

func (s *memoryStore) ResolveIncident(ctx context.Context, id string, resolvedAt int64) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	for i := range s.incidents {
		if s.incidents[i].ID == id && s.incidents[i].Open() {
			v := resolvedAt
			s.incidents[i].ResolvedAt = &v
			return nil
		}
	}
	return fmt.Errorf("resolve incident %s: %w", id, ErrNotFound)
}

func (s *memoryStore) InsertHeartbeats(ctx context.Context, hbs []Heartbeat) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	s.heartbeats = append(s.heartbeats, hbs...)
	return nil
}

func (s *memoryStore) ListHeartbeats(ctx context.Context, from, to int64) ([]Heartbeat, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return nil, err
	}
	var out []Heartbeat
	for _, hb := range s.heartbeats {
		if hb.Timestamp >= from && hb.Timestamp < to {
			out = append(out, hb)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].MonitorID != out[j].MonitorID {
			return out[i].MonitorID < out[j].MonitorID
		}
		return out[i].Timestamp < out[j].Timestamp
	})
	return out, nil
}

func (s *memoryStore) DeleteHeartbeatsBefore(ctx context.Context, ts int64) (int64, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return 0, err
	}
	n := 0
	var removed int64
	for _, hb := range s.heartbeats {
		if hb.Timestamp < ts {
			removed++
			continue
		}
		s.heartbeats[n] = hb
		n++
	}
	s.heartbeats = s.heartbeats[:n]
	return removed, nil
}

func (s *memoryStore) InsertHourlyStats(ctx context.Context, stats []HourlyStat) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	s.hourly = append(s.hourly, stats...)
	return nil
}

// HourlyStats returns a copy of all aggregated rows.
func (s *memoryStore) HourlyStats() []HourlyStat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]HourlyStat(nil), s.hourly...)
}

// Heartbeats returns a copy of all raw heartbeats.
func (s *memoryStore) Heartbeats() []Heartbeat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Heartbeat(nil), s.heartbeats...)
}

func (s *memoryStore) GetSetting(ctx context.Context, key string) (string, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return "", false, err
	}
	v, ok := s.settings[key]
	return v, ok, nil
}

func (s *memoryStore) SetSetting(ctx context.Context, key, value string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	s.settings[key] = value
	return nil
}

func (s *memoryStore) ListActiveNotifiers(ctx context.Context) ([]Notifier, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return nil, err
	}
	var out []Notifier
	for _, n := range s.notifiers {
		if n.Active {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *memoryStore) InsertNotifier(ctx context.Context, n Notifier) error {
	_ = ctx
	if err := validateNotifier(n); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	for i := range s.notifiers {
		if s.notifiers[i].ID == n.ID {
			n.CreatedAt = s.notifiers[i].CreatedAt
			s.notifiers[i] = n
			return nil
		}
	}
	s.notifiers = append(s.notifiers, n)
	return nil
}

// Inspector exposes the memory store's full contents. It is implemented by
// the value NewMemory returns.
type Inspector interface {
	Incidents() []Incident
	Heartbeats() []Heartbeat
	HourlyStats() []HourlyStat
}
