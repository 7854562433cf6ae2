package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"
)

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defs := append([]*scheduleDef(nil), s.defs...)
	ids := make([]cron.EntryID, len(defs))
	for i, d := range defs {
		ids[i] = d.entryID
	}
	c := s.c
	loc := s.loc
	s.mu.Unlock()

	if loc == nil {
		loc = time.UTC
	}
	out := Snapshot{Running: c != nil, Timezone: loc.String()}
	for i, d := range defs {
		it := ScheduleInfo{
			Name:     d.name,
			Spec:     d.spec,
			Timeout:  d.timeout,
			Runs:     d.stats.runs.Load(),
			Failures: d.stats.fails.Load(),
			Skipped:  d.stats.skipped.Load(),
		}
		d.stats.mu.Lock()
		it.LastRun = d.stats.lastRun
		it.LastDur = d.stats.lastDur
		it.LastErr = d.stats.lastErr
		d.stats.mu.Unlock()
		if c != nil && ids[i] != 0 {
			e := c.Entry(ids[i])
			it.Next = e.Next
			it.Prev = e.Prev
		}
		out.Schedules = append(out.Schedules, it)
	}
	return out
}
