package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	logx "liteping/pkg/logx"

	"github.com/robfig/cron/v3"
)

// Config controls the trigger service.
type Config struct {
	// Timezone is an IANA name. Empty means UTC.
	Timezone string
}

// JobFunc receives the scheduled fire time truncated to the minute.
type JobFunc func(ctx context.Context, fireTime time.Time) error

type scheduleDef struct {
	name    string
	spec    string // normalized cron spec
	timeout time.Duration
	job     JobFunc
	entryID cron.EntryID
	stats   *runStats
}

type runStats struct {
	runs    atomic.Uint64
	fails   atomic.Uint64
	skipped atomic.Uint64

	mu      sync.Mutex
	lastRun time.Time
	lastDur time.Duration
	lastErr string
}

// ScheduleInfo is the observable state of one schedule.
type ScheduleInfo struct {
	Name     string        `json:"name"`
	Spec     string        `json:"spec"`
	Timeout  time.Duration `json:"timeout"`
	Next     time.Time     `json:"next"`
	Prev     time.Time     `json:"prev"`
	Runs     uint64        `json:"runs"`
	Failures uint64        `json:"failures"`
	Skipped  uint64        `json:"skipped"`
	LastRun  time.Time     `json:"last_run"`
	LastDur  time.Duration `json:"last_duration"`
	LastErr  string        `json:"last_err,omitempty"`
}

type Snapshot struct {
	Running   bool           `json:"running"`
	Timezone  string         `json:"timezone"`
	Schedules []ScheduleInfo `json:"schedules"`
}

// Service registers schedules and triggers them via robfig/cron.
type Service struct {
	mu     sync.Mutex
	cfg    Config
	log    logx.Logger
	parser cron.Parser
	c      *cron.Cron
	loc    *time.Location
	ctx    context.Context
	defs   []*scheduleDef

	// now is swapped in tests.
	now func() time.Time
}
