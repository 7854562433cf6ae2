package storage

import (
	"errors"
	"time"
)

var (
	ErrDisabled              = errors.New("storage disabled")
	ErrNotFound              = errors.New("not found")
	ErrInvalidNotifierConfig = errors.New("invalid notifier config")
	ErrIncidentOpen          = errors.New("monitor already has an open incident")
)

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file
//   - "memory": process-local store (tests, dry runs)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// SettingRetentionDays holds the raw heartbeat retention horizon in days.
const SettingRetentionDays = "retention_days"

// Monitor methods accepted by the prober.
const (
	MethodGet  = "GET"
	MethodHead = "HEAD"
	MethodPost = "POST"
)

type Monitor struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	URL       string `json:"url"`
	Method    string `json:"method"`
	Interval  int    `json:"interval"`
	Active    bool   `json:"active"`
	Weight    int    `json:"weight"`
	CreatedAt int64  `json:"createdAt"`
}

// Heartbeat is one probe observation. Status 0 marks a network failure.
type Heartbeat struct {
	MonitorID string `json:"monitorId"`
	Status    int    `json:"status"`
	Latency   int64  `json:"latency"`
	Timestamp int64  `json:"timestamp"`
	Region    string `json:"region"`
}

// Incident is open while ResolvedAt is nil.
type Incident struct {
	ID         string `json:"id"`
	MonitorID  string `json:"monitorId"`
	URL        string `json:"url"`
	Cause      string `json:"cause"`
	StartedAt  int64  `json:"startedAt"`
	ResolvedAt *int64 `json:"resolvedAt"`
}

func (i Incident) Open() bool { return i.ResolvedAt == nil }

type MaintenanceWindow struct {
	ID        string `json:"id"`
	MonitorID string `json:"monitorId"`
	Title     string `json:"title"`
	StartTime int64  `json:"startTime"`
	EndTime   int64  `json:"endTime"`
	CreatedAt int64  `json:"createdAt"`
}

// ActiveAt reports whether now falls strictly inside the window.
func (m MaintenanceWindow) ActiveAt(now int64) bool {
	return m.StartTime < now && now < m.EndTime
}

type HourlyStat struct {
	MonitorID    string `json:"monitorId"`
	HourStart    int64  `json:"timestamp"`
	AvgLatency   int64  `json:"avgLatency"`
	SuccessCount int    `json:"successCount"`
	TotalCount   int    `json:"totalCount"`
}

// Notifier is an outbound alert channel. Config is nil for rows whose type
// this build does not know; dispatch skips those.
type Notifier struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Type      ChannelType   `json:"type"`
	Config    ChannelConfig `json:"-"`
	Active    bool          `json:"active"`
	CreatedAt int64         `json:"createdAt"`
}

func normalizeMethod(m string) string {
	switch m {
	case MethodGet, MethodHead, MethodPost:
		return m
	default:
		return MethodHead
	}
}
