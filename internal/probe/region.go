package probe

import (
	"context"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	logx "liteping/pkg/logx"
)

const (
	DefaultRegionURL = "https://www.cloudflare.com/cdn-cgi/trace"
	GlobalRegion     = "Global"
)

var coloRe = regexp.MustCompile(`colo=([A-Z]+)`)

// RegionResolver discovers the edge location the probes run from.
type RegionResolver struct {
	url     string
	static  string
	timeout time.Duration
	client  *http.Client
	log     logx.Logger
}

type RegionOptions struct {
	// URL of a trace endpoint printing "colo=XXX". Empty uses DefaultRegionURL.
	URL string
	// Static, when set, skips discovery entirely.
	Static  string
	Timeout time.Duration
	Client  *http.Client
	Logger  logx.Logger
}

func NewRegionResolver(opts RegionOptions) *RegionResolver {
	r := &RegionResolver{
		url:     strings.TrimSpace(opts.URL),
		static:  strings.TrimSpace(opts.Static),
		timeout: opts.Timeout,
		client:  opts.Client,
		log:     opts.Logger,
	}
	if r.url == "" {
		r.url = DefaultRegionURL
	}
	if r.timeout <= 0 {
		r.timeout = DefaultTimeout
	}
	if r.client == nil {
		r.client = http.DefaultClient
	}
	if r.log.IsZero() {
		r.log = logx.Nop()
	}
	return r
}

// Resolve never fails: any problem yields GlobalRegion.
func (r *RegionResolver) Resolve(ctx context.Context) string {
	if r.static != "" {
		return r.static
	}
	rctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(rctx, http.MethodGet, r.url, nil)
	if err != nil {
		r.log.Debug("region lookup failed", logx.Err(err))
		return GlobalRegion
	}
	resp, err := r.client.Do(req)
	if err != nil {
		r.log.Debug("region lookup failed", logx.Err(err))
		return GlobalRegion
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, drainLimit))
	if err != nil {
		r.log.Debug("region lookup failed", logx.Err(err))
		return GlobalRegion
	}
	return ParseColo(string(body))
}

// ParseColo extracts the colo code from a trace body.
func ParseColo(body string) string {
	m := coloRe.FindStringSubmatch(body)
	if len(m) < 2 {
		return GlobalRegion
	}
	return m[1]
}
