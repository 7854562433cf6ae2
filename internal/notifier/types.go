package notifier

import "time"

const (
	StatusDown = "DOWN"
	StatusUp   = "UP"

	DefaultRatePerSec = 10
	DefaultTimeout    = 10 * time.Second
)

// Config controls outbound delivery.
type Config struct {
	RatePerSec int
	Timeout    time.Duration
	Language   string
}

// Alert is the channel-independent notification. Its JSON form is what
// generic webhooks receive.
type Alert struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
}

// Down reports whether this is an outage alert.
func (a Alert) Down() bool { return a.Status == StatusDown }

// Report summarizes one Dispatch call.
type Report struct {
	Attempted int `json:"attempted"`
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

type HistoryItem struct {
	At       time.Time `json:"at"`
	Channel  string    `json:"channel"`
	Notifier string    `json:"notifier"`
	Title    string    `json:"title"`
	Error    string    `json:"error,omitempty"`
}
