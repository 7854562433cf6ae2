package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"liteping/internal/checker"
	"liteping/internal/notifier"
	"liteping/internal/observability/metrics"
	rtsup "liteping/internal/runtime/supervisor"
	"liteping/internal/storage"
	"liteping/internal/task/scheduler"
	logx "liteping/pkg/logx"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Banner is the body served at "/".
const Banner = "LitePing Worker is running."

// Reader is the read-only slice of storage the API exposes.
type Reader interface {
	ListMonitors(ctx context.Context, activeOnly bool) ([]storage.Monitor, error)
	ListOpenIncidents(ctx context.Context) ([]storage.Incident, error)
	ListActiveMaintenance(ctx context.Context, now int64) ([]storage.MaintenanceWindow, error)
}

// Deps are the live views the router reads from. Nil funcs render as empty.
type Deps struct {
	Store      Reader
	LastTick   func() checker.TickReport
	Schedules  func() scheduler.Snapshot
	Deliveries func() []notifier.HistoryItem
	Health     func() map[string]rtsup.Snapshot
	Metrics    *metrics.Metrics
	Now        func() time.Time
}

type router struct {
	deps Deps
	log  logx.Logger
}

// NewRouter builds the status surface.
func NewRouter(cfg Config, deps Deps, log logx.Logger) http.Handler {
	if log.IsZero() {
		log = logx.Nop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	rt := &router{deps: deps, log: log.With(logx.String("comp", "http"))}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(rt.requestLog)

	r.Get("/", rt.instrument("/", rt.banner))
	r.Get("/healthz", rt.instrument("/healthz", rt.health))
	if deps.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Metrics.Registry(), promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(withAuth(cfg.Token))
		r.Get("/status", rt.instrument("/api/status", rt.status))
		r.Get("/monitors", rt.instrument("/api/monitors", rt.monitors))
		r.Get("/incidents", rt.instrument("/api/incidents", rt.incidents))
		r.Get("/maintenance", rt.instrument("/api/maintenance", rt.maintenance))
	})

	if cfg.Pprof {
		r.Route(pprofPrefix, func(r chi.Router) {
			r.Use(withAuth(cfg.Token))
			mountPprof(r)
		})
	}
	return r
}

func (rt *router) instrument(route string, h http.HandlerFunc) http.HandlerFunc {
	if rt.deps.Metrics == nil {
		return h
	}
	return rt.deps.Metrics.Instrument(route, h).ServeHTTP
}

func (rt *router) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		rt.log.Debug("http request",
			logx.String("method", r.Method),
			logx.String("path", r.URL.Path),
			logx.Int("status", ww.Status()),
			logx.Duration("took", time.Since(start)),
		)
	})
}

func (rt *router) banner(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(Banner))
}

func (rt *router) health(w http.ResponseWriter, r *http.Request) {
	resp := struct {
		Status      string                    `json:"status"`
		Supervisors map[string]rtsup.Snapshot `json:"supervisors,omitempty"`
	}{Status: "ok"}
	if rt.deps.Health != nil {
		resp.Supervisors = rt.deps.Health()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (rt *router) status(w http.ResponseWriter, r *http.Request) {
	resp := struct {
		Now        time.Time                `json:"now"`
		LastTick   *checker.TickReport      `json:"last_tick,omitempty"`
		Schedules  []scheduler.ScheduleInfo `json:"schedules"`
		Deliveries []notifier.HistoryItem   `json:"deliveries"`
		OpenCount  int                      `json:"open_incidents"`
	}{Now: rt.deps.Now().UTC()}

	if rt.deps.LastTick != nil {
		if rep := rt.deps.LastTick(); !rep.FireTime.IsZero() {
			resp.LastTick = &rep
		}
	}
	if rt.deps.Schedules != nil {
		resp.Schedules = rt.deps.Schedules().Schedules
	}
	if rt.deps.Deliveries != nil {
		resp.Deliveries = rt.deps.Deliveries()
	}
	if rt.deps.Store != nil {
		open, err := rt.deps.Store.ListOpenIncidents(r.Context())
		if err != nil {
			rt.fail(w, "list open incidents", err)
			return
		}
		resp.OpenCount = len(open)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (rt *router) monitors(w http.ResponseWriter, r *http.Request) {
	if !rt.hasStore(w) {
		return
	}
	activeOnly := r.URL.Query().Get("active") == "1"
	mons, err := rt.deps.Store.ListMonitors(r.Context(), activeOnly)
	if err != nil {
		rt.fail(w, "list monitors", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(mons))
}

func (rt *router) incidents(w http.ResponseWriter, r *http.Request) {
	if !rt.hasStore(w) {
		return
	}
	open, err := rt.deps.Store.ListOpenIncidents(r.Context())
	if err != nil {
		rt.fail(w, "list open incidents", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(open))
}

func (rt *router) maintenance(w http.ResponseWriter, r *http.Request) {
	if !rt.hasStore(w) {
		return
	}
	wins, err := rt.deps.Store.ListActiveMaintenance(r.Context(), rt.deps.Now().Unix())
	if err != nil {
		rt.fail(w, "list maintenance", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(wins))
}

func (rt *router) hasStore(w http.ResponseWriter) bool {
	if rt.deps.Store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "storage disabled"})
		return false
	}
	return true
}

func (rt *router) fail(w http.ResponseWriter, op string, err error) {
	rt.log.Warn("http handler failed", logx.String("op", op), logx.Err(err))
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// nonNil keeps empty lists rendering as [] instead of null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
