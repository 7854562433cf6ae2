// Package checker runs one probing tick: load state, probe every active
// monitor in serialized batches, feed results through the incident machine,
// and persist heartbeats.
package checker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"liteping/internal/incident"
	"liteping/internal/probe"
	"liteping/internal/storage"
	logx "liteping/pkg/logx"
)

const (
	DefaultBatchSize = 10
	// HeartbeatChunk bounds one insert statement.
	HeartbeatChunk = 50
)

// Store is the slice of storage read and written by a tick.
type Store interface {
	ListMonitors(ctx context.Context, activeOnly bool) ([]storage.Monitor, error)
	ListActiveMaintenance(ctx context.Context, now int64) ([]storage.MaintenanceWindow, error)
	ListOpenIncidents(ctx context.Context) ([]storage.Incident, error)
	InsertHeartbeats(ctx context.Context, hbs []storage.Heartbeat) error
}

type Prober interface {
	Probe(ctx context.Context, t probe.Target) probe.Result
}

type RegionResolver interface {
	Resolve(ctx context.Context) string
}

type Evaluator interface {
	Evaluate(ctx context.Context, snap *incident.Snapshot, mon storage.Monitor, res probe.Result, now int64) (incident.Outcome, error)
}

// DailyJob is spawned at 00:00 UTC.
type DailyJob interface {
	Run(ctx context.Context, fireTime time.Time) error
}

type Spawner interface {
	Go(name string, fn func(ctx context.Context) error)
}

// Hooks observe batch boundaries.
type Hooks struct {
	BeforeBatch func(index, size int)
	AfterBatch  func(index, size int)
}

// TickReport summarizes one tick.
type TickReport struct {
	FireTime    time.Time     `json:"fire_time"`
	Region      string        `json:"region"`
	Monitors    int           `json:"monitors"`
	Batches     []int         `json:"batches"`
	Heartbeats  int           `json:"heartbeats"`
	Persisted   int           `json:"persisted"`
	ChunkErrors int           `json:"chunk_errors"`
	Opened      int           `json:"opened"`
	Resolved    int           `json:"resolved"`
	Suppressed  int           `json:"suppressed"`
	EvalErrors  int           `json:"eval_errors"`
	// Canceled counts monitors whose probe was cut short by ctx. They get
	// neither a heartbeat nor an incident evaluation.
	Canceled    int           `json:"canceled"`
	DailyJob    bool          `json:"daily_job"`
	Duration    time.Duration `json:"duration"`
}

type Options struct {
	BatchSize int
	Hooks     Hooks
	Now       func() time.Time
}

type Service struct {
	store   Store
	prober  Prober
	region  RegionResolver
	machine Evaluator
	daily   DailyJob
	spawn   Spawner
	log     logx.Logger

	mu        sync.Mutex
	batchSize int
	hooks     Hooks
	now       func() time.Time
	last      TickReport
}

func New(store Store, prober Prober, region RegionResolver, machine Evaluator, daily DailyJob, spawn Spawner, log logx.Logger, opts Options) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		store:   store,
		prober:  prober,
		region:  region,
		machine: machine,
		daily:   daily,
		spawn:   spawn,
		log:     log.With(logx.String("comp", "checker")),
		hooks:   opts.Hooks,
		now:     opts.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.SetBatchSize(opts.BatchSize)
	return s
}

// SetBatchSize applies from the next tick.
func (s *Service) SetBatchSize(n int) {
	if n <= 0 {
		n = DefaultBatchSize
	}
	s.mu.Lock()
	s.batchSize = n
	s.mu.Unlock()
}

// SetProber swaps the prober used by later ticks.
func (s *Service) SetProber(p Prober) {
	s.mu.Lock()
	s.prober = p
	s.mu.Unlock()
}

// SetRegion swaps the region resolver used by later ticks.
func (s *Service) SetRegion(r RegionResolver) {
	s.mu.Lock()
	s.region = r
	s.mu.Unlock()
}

// LastReport returns the most recently completed tick.
func (s *Service) LastReport() TickReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// IsDailyFire reports whether t is 00:00 UTC.
func IsDailyFire(t time.Time) bool {
	u := t.UTC()
	return u.Hour() == 0 && u.Minute() == 0
}

// RunTick performs one full check cycle for fireTime.
func (s *Service) RunTick(ctx context.Context, fireTime time.Time) (TickReport, error) {
	start := time.Now()
	rep := TickReport{FireTime: fireTime}

	s.mu.Lock()
	batchSize := s.batchSize
	prober := s.prober
	resolver := s.region
	hooks := s.hooks
	s.mu.Unlock()

	defer func() {
		rep.Duration = time.Since(start)
		s.mu.Lock()
		s.last = rep
		s.mu.Unlock()
	}()

	// The daily job runs regardless of what the probing part does.
	if IsDailyFire(fireTime) && s.daily != nil && s.spawn != nil {
		rep.DailyJob = true
		daily := s.daily
		s.spawn.Go("retention.daily", func(ctx context.Context) error {
			return daily.Run(ctx, fireTime)
		})
	}

	mons, err := s.store.ListMonitors(ctx, true)
	if err != nil {
		s.log.Error("load monitors failed", logx.Err(err))
		return rep, fmt.Errorf("load monitors: %w", err)
	}
	rep.Monitors = len(mons)
	if len(mons) == 0 {
		s.log.Debug("no active monitors")
		return rep, nil
	}

	now := s.now().Unix()
	windows, err := s.store.ListActiveMaintenance(ctx, now)
	if err != nil {
		s.log.Error("load maintenance failed", logx.Err(err))
		return rep, fmt.Errorf("load maintenance: %w", err)
	}
	open, err := s.store.ListOpenIncidents(ctx)
	if err != nil {
		s.log.Error("load open incidents failed", logx.Err(err))
		return rep, fmt.Errorf("load open incidents: %w", err)
	}
	snap := incident.NewSnapshot(open, windows)

	region := probe.GlobalRegion
	if resolver != nil {
		region = resolver.Resolve(ctx)
	}
	rep.Region = region

	// Probes see ctx so shutdown can cut a tick short. Writes are detached
	// from it so whatever was measured still lands.
	persist := context.WithoutCancel(ctx)

	hbs := make([]storage.Heartbeat, 0, len(mons))
	for i, batch := range Chunk(mons, batchSize) {
		if ctx.Err() != nil {
			rep.Canceled += len(batch)
			continue
		}
		if hooks.BeforeBatch != nil {
			hooks.BeforeBatch(i, len(batch))
		}
		rep.Batches = append(rep.Batches, len(batch))

		results := make([]storage.Heartbeat, len(batch))
		outcomes := make([]incident.Outcome, len(batch))
		evalErr := make([]error, len(batch))
		measured := make([]bool, len(batch))

		var wg sync.WaitGroup
		for j, mon := range batch {
			wg.Add(1)
			go func(j int, mon storage.Monitor) {
				defer wg.Done()
				res := prober.Probe(ctx, probe.Target{URL: mon.URL, Method: mon.Method})
				// A failure seen after cancellation says nothing about the target.
				if res.Status == 0 && ctx.Err() != nil {
					return
				}
				measured[j] = true
				ts := s.now().Unix()
				results[j] = storage.Heartbeat{
					MonitorID: mon.ID,
					Status:    res.Status,
					Latency:   res.LatencyMillis(),
					Timestamp: ts,
					Region:    region,
				}
				if s.machine != nil {
					outcomes[j], evalErr[j] = s.machine.Evaluate(persist, snap, mon, res, ts)
				}
			}(j, mon)
		}
		wg.Wait()

		for j := range batch {
			if !measured[j] {
				rep.Canceled++
				continue
			}
			hbs = append(hbs, results[j])
			if evalErr[j] != nil {
				rep.EvalErrors++
				continue
			}
			switch outcomes[j].Action {
			case incident.ActionOpen:
				rep.Opened++
			case incident.ActionResolve:
				rep.Resolved++
			case incident.ActionSuppress:
				rep.Suppressed++
			}
		}

		if hooks.AfterBatch != nil {
			hooks.AfterBatch(i, len(batch))
		}
	}
	rep.Heartbeats = len(hbs)

	for i, chunk := range Chunk(hbs, HeartbeatChunk) {
		if err := s.store.InsertHeartbeats(persist, chunk); err != nil {
			rep.ChunkErrors++
			s.log.Error("persist heartbeats failed",
				logx.Int("chunk", i),
				logx.Int("rows", len(chunk)),
				logx.Err(err),
			)
			continue
		}
		rep.Persisted += len(chunk)
	}

	if rep.Canceled > 0 {
		s.log.Warn("tick cut short", logx.Int("canceled", rep.Canceled), logx.Err(ctx.Err()))
	}
	s.log.Info("tick done",
		logx.Time("fire_time", fireTime),
		logx.String("region", region),
		logx.Int("monitors", rep.Monitors),
		logx.Int("persisted", rep.Persisted),
		logx.Int("opened", rep.Opened),
		logx.Int("resolved", rep.Resolved),
		logx.Duration("took", time.Since(start)),
	)
	return rep, nil
}

// Chunk splits items into consecutive slices of at most size elements,
// preserving order.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = 1
	}
	out := make([][]T, 0, (len(items)+size-1)/size)
	for i := 0; i < len(items); i += size {
		end := i + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[i:end])
	}
	return out
}
