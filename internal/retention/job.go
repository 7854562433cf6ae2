// Package retention rolls raw heartbeats into hourly statistics and purges
// raw rows past the configured retention.
package retention

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"liteping/internal/storage"
	logx "liteping/pkg/logx"
)

const (
	DefaultRetentionDays = 30

	day  = int64(24 * 60 * 60)
	hour = int64(60 * 60)
)

// Store is the slice of storage the job needs.
type Store interface {
	ListHeartbeats(ctx context.Context, from, to int64) ([]storage.Heartbeat, error)
	InsertHourlyStats(ctx context.Context, stats []storage.HourlyStat) error
	DeleteHeartbeatsBefore(ctx context.Context, ts int64) (int64, error)
	GetSetting(ctx context.Context, key string) (string, bool, error)
}

// Result describes one run.
type Result struct {
	WindowFrom int64
	WindowTo   int64
	Stats      int
	Cutoff     int64
	Purged     int64
}

type Job struct {
	store Store
	log   logx.Logger
	// OnResult, when set, observes every run.
	OnResult func(Result, error)
}

func New(store Store, log logx.Logger) *Job {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Job{store: store, log: log.With(logx.String("comp", "retention"))}
}

// Run aggregates the day ending 24h before fireTime and purges heartbeats
// past retention. The purge is attempted even if aggregation fails.
func (j *Job) Run(ctx context.Context, fireTime time.Time) error {
	now := fireTime.Unix()
	res := Result{WindowFrom: now - 2*day, WindowTo: now - day}

	var errs []error
	n, err := j.aggregate(ctx, res.WindowFrom, res.WindowTo)
	res.Stats = n
	if err != nil {
		j.log.Error("aggregation failed", logx.Err(err))
		errs = append(errs, fmt.Errorf("aggregate: %w", err))
	} else {
		j.log.Info("hourly stats aggregated",
			logx.Int64("from", res.WindowFrom),
			logx.Int64("to", res.WindowTo),
			logx.Int("rows", n),
		)
	}

	days := j.retentionDays(ctx)
	res.Cutoff = now - int64(days)*day
	purged, err := j.store.DeleteHeartbeatsBefore(ctx, res.Cutoff)
	res.Purged = purged
	if err != nil {
		j.log.Error("purge failed", logx.Err(err))
		errs = append(errs, fmt.Errorf("purge: %w", err))
	} else {
		j.log.Info("old heartbeats purged",
			logx.Int("retention_days", days),
			logx.Int64("cutoff", res.Cutoff),
			logx.Int64("deleted", purged),
		)
	}

	err = errors.Join(errs...)
	if j.OnResult != nil {
		j.OnResult(res, err)
	}
	return err
}

func (j *Job) aggregate(ctx context.Context, from, to int64) (int, error) {
	hbs, err := j.store.ListHeartbeats(ctx, from, to)
	if err != nil {
		return 0, err
	}
	stats := Aggregate(hbs)
	if len(stats) == 0 {
		return 0, nil
	}
	if err := j.store.InsertHourlyStats(ctx, stats); err != nil {
		return 0, err
	}
	return len(stats), nil
}

// retentionDays reads the setting; missing, unparsable or non-positive
// values fall back to DefaultRetentionDays.
func (j *Job) retentionDays(ctx context.Context) int {
	v, ok, err := j.store.GetSetting(ctx, storage.SettingRetentionDays)
	if err != nil {
		j.log.Warn("read retention setting failed; using default", logx.Err(err))
		return DefaultRetentionDays
	}
	if !ok {
		return DefaultRetentionDays
	}
	days, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || days <= 0 {
		j.log.Warn("invalid retention setting; using default", logx.String("value", v))
		return DefaultRetentionDays
	}
	return days
}

type bucketKey struct {
	monitor string
	hour    int64
}

type bucket struct {
	latency int64
	success int
	total   int
}

// Aggregate groups heartbeats by monitor and hour. Average latency is
// truncated to an integer; success means a 2xx status.
func Aggregate(hbs []storage.Heartbeat) []storage.HourlyStat {
	buckets := map[bucketKey]*bucket{}
	for _, hb := range hbs {
		k := bucketKey{monitor: hb.MonitorID, hour: floorHour(hb.Timestamp)}
		b := buckets[k]
		if b == nil {
			b = &bucket{}
			buckets[k] = b
		}
		b.latency += hb.Latency
		b.total++
		if hb.Status >= 200 && hb.Status < 300 {
			b.success++
		}
	}

	out := make([]storage.HourlyStat, 0, len(buckets))
	for k, b := range buckets {
		out = append(out, storage.HourlyStat{
			MonitorID:    k.monitor,
			HourStart:    k.hour,
			AvgLatency:   b.latency / int64(b.total),
			SuccessCount: b.success,
			TotalCount:   b.total,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MonitorID != out[j].MonitorID {
			return out[i].MonitorID < out[j].MonitorID
		}
		return out[i].HourStart < out[j].HourStart
	})
	return out
}

func floorHour(ts int64) int64 {
	h := ts / hour * hour
	if ts < 0 && ts%hour != 0 {
		h -= hour
	}
	return h
}
