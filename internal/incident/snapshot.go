package incident

import "liteping/internal/storage"

// Snapshot is the state loaded once before a tick. It is read-only after
// construction and safe to share across the probes of every batch.
type Snapshot struct {
	open        map[string]storage.Incident
	maintenance map[string]struct{}
}

func NewSnapshot(open []storage.Incident, windows []storage.MaintenanceWindow) *Snapshot {
	s := &Snapshot{
		open:        make(map[string]storage.Incident, len(open)),
		maintenance: make(map[string]struct{}, len(windows)),
	}
	for _, inc := range open {
		s.open[inc.MonitorID] = inc
	}
	for _, w := range windows {
		s.maintenance[w.MonitorID] = struct{}{}
	}
	return s
}

func (s *Snapshot) OpenIncident(monitorID string) (storage.Incident, bool) {
	if s == nil {
		return storage.Incident{}, false
	}
	inc, ok := s.open[monitorID]
	return inc, ok
}

func (s *Snapshot) UnderMaintenance(monitorID string) bool {
	if s == nil {
		return false
	}
	_, ok := s.maintenance[monitorID]
	return ok
}

// OpenCount is the number of incidents open when the snapshot was taken.
func (s *Snapshot) OpenCount() int {
	if s == nil {
		return 0
	}
	return len(s.open)
}
