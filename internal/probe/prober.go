package probe

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	logx "liteping/pkg/logx"
)

const (
	DefaultAttempts = 2
	DefaultTimeout  = 10 * time.Second

	userAgent = "LitePing-Monitor/1.0 (Go)"
	// Bodies are drained up to this many bytes so connections can be reused.
	drainLimit = 64 << 10
)

// Target is what a single probe needs to know about a monitor.
type Target struct {
	URL    string
	Method string
}

// Result of one probe. Status 0 means every attempt failed at the transport
// level; Err then carries the last transport error text.
type Result struct {
	Status  int
	Latency time.Duration
	Err     string
}

// Down reports whether the result counts as a failed check.
func (r Result) Down() bool { return IsDown(r.Status) }

// LatencyMillis is the latency as stored in heartbeats.
func (r Result) LatencyMillis() int64 { return r.Latency.Milliseconds() }

// IsDown classifies a status code. 0 (network failure), 1xx, 3xx and above
// are all down.
func IsDown(status int) bool { return status < 200 || status >= 300 }

type Options struct {
	Attempts int
	Timeout  time.Duration
	Client   *http.Client
	Logger   logx.Logger
}

// Prober issues HTTP checks with a bounded retry budget.
type Prober struct {
	attempts int
	timeout  time.Duration
	client   *http.Client
	log      logx.Logger
}

func New(opts Options) *Prober {
	p := &Prober{
		attempts: opts.Attempts,
		timeout:  opts.Timeout,
		client:   opts.Client,
		log:      opts.Logger,
	}
	if p.attempts <= 0 {
		p.attempts = DefaultAttempts
	}
	if p.timeout <= 0 {
		p.timeout = DefaultTimeout
	}
	if p.client == nil {
		p.client = &http.Client{}
	}
	if p.log.IsZero() {
		p.log = logx.Nop()
	}
	return p
}

// Attempts returns the configured attempt budget.
func (p *Prober) Attempts() int { return p.attempts }

// Probe checks t. Only transport errors are retried; any HTTP response ends
// the loop. Latency covers every attempt.
func (p *Prober) Probe(ctx context.Context, t Target) Result {
	method := strings.ToUpper(strings.TrimSpace(t.Method))
	if method == "" {
		method = http.MethodHead
	}

	start := time.Now()
	var lastErr error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}
		status, err := p.once(ctx, method, t.URL)
		if err == nil {
			return Result{Status: status, Latency: time.Since(start)}
		}
		lastErr = err
		p.log.Debug("probe attempt failed",
			logx.String("url", t.URL),
			logx.Int("attempt", attempt),
			logx.Err(err),
		)
	}

	msg := ""
	if lastErr != nil {
		msg = lastErr.Error()
	}
	if msg == "" {
		msg = "Network Error"
	}
	return Result{Status: 0, Latency: time.Since(start), Err: msg}
}

func (p *Prober) once(ctx context.Context, method, url string) (int, error) {
	actx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(actx, method, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, drainLimit))
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}
