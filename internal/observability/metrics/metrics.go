package metrics

import (
	"net/http"
	"strconv"
	"time"

	"liteping/internal/checker"
	"liteping/internal/retention"
	rtsup "liteping/internal/runtime/supervisor"
	"liteping/internal/storage"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "liteping"

var histogramBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60}

// Metrics owns a private registry so tests and multiple app instances never
// collide on the global one.
type Metrics struct {
	reg *prometheus.Registry

	ticks        *prometheus.CounterVec
	tickDuration prometheus.Histogram
	checked      prometheus.Counter
	heartbeats   prometheus.Counter
	chunkErrors  prometheus.Counter
	canceled     prometheus.Counter
	incidents    *prometheus.CounterVec
	evalErrors   prometheus.Counter
	notify       *prometheus.CounterVec
	retention    *prometheus.CounterVec
	purged       prometheus.Counter

	httpTotal    *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{reg: prometheus.NewRegistry()}

	m.ticks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "checker",
		Name:      "ticks_total",
		Help:      "Number of completed check ticks",
	}, []string{"result"})
	m.tickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "checker",
		Name:      "tick_duration_seconds",
		Help:      "Wall time of a check tick",
		Buckets:   histogramBuckets,
	})
	m.checked = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "checker",
		Name:      "monitors_checked_total",
		Help:      "Monitors probed across all ticks",
	})
	m.heartbeats = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "checker",
		Name:      "heartbeats_persisted_total",
		Help:      "Heartbeats written to storage",
	})
	m.chunkErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "checker",
		Name:      "heartbeat_chunk_errors_total",
		Help:      "Heartbeat chunks that failed to persist",
	})
	m.canceled = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "checker",
		Name:      "probes_canceled_total",
		Help:      "Probes cut short by shutdown and left unrecorded",
	})
	m.incidents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "incident",
		Name:      "transitions_total",
		Help:      "Incident state machine actions taken",
	}, []string{"action"})
	m.evalErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "incident",
		Name:      "evaluation_errors_total",
		Help:      "Incident evaluations that failed to persist",
	})
	m.notify = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notifier",
		Name:      "deliveries_total",
		Help:      "Alert deliveries by channel and outcome",
	}, []string{"channel", "outcome"})
	m.retention = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "retention",
		Name:      "runs_total",
		Help:      "Daily aggregation and purge runs",
	}, []string{"result"})
	m.purged = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "retention",
		Name:      "heartbeats_purged_total",
		Help:      "Heartbeats removed by the retention purge",
	})
	m.httpTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Count of processed HTTP requests",
	}, []string{"method", "route", "status"})
	m.httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Latency distribution of HTTP handlers",
		Buckets:   histogramBuckets,
	}, []string{"method", "route", "status"})

	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ticks, m.tickDuration, m.checked, m.heartbeats, m.chunkErrors, m.canceled,
		m.incidents, m.evalErrors, m.notify, m.retention, m.purged,
		m.httpTotal, m.httpDuration,
	)
	return m
}

// Registry is what the /metrics handler gathers from.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// ObserveTick records one finished tick.
func (m *Metrics) ObserveTick(rep checker.TickReport, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ticks.WithLabelValues(result).Inc()
	m.tickDuration.Observe(rep.Duration.Seconds())

	m.checked.Add(float64(rep.Heartbeats))
	m.heartbeats.Add(float64(rep.Persisted))
	m.chunkErrors.Add(float64(rep.ChunkErrors))
	m.canceled.Add(float64(rep.Canceled))

	m.incidents.WithLabelValues("open").Add(float64(rep.Opened))
	m.incidents.WithLabelValues("resolve").Add(float64(rep.Resolved))
	m.incidents.WithLabelValues("suppress").Add(float64(rep.Suppressed))
	m.evalErrors.Add(float64(rep.EvalErrors))
}

// ObserveDelivery matches notifier.ResultFunc.
func (m *Metrics) ObserveDelivery(channel storage.ChannelType, err error) {
	outcome := "delivered"
	if err != nil {
		outcome = "failed"
	}
	m.notify.WithLabelValues(string(channel), outcome).Inc()
}

// ObserveRetention matches retention.Job.OnResult.
func (m *Metrics) ObserveRetention(res retention.Result, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.retention.WithLabelValues(result).Inc()
	m.purged.Add(float64(res.Purged))
}

// WatchSupervisor exposes a supervisor's task counters as gauges. Calling it
// twice with the same name is a no-op.
func (m *Metrics) WatchSupervisor(name string, counters func() rtsup.Counters) {
	gauge := func(metric, help string, pick func(rtsup.Counters) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "supervisor",
			Name:        metric,
			Help:        help,
			ConstLabels: prometheus.Labels{"supervisor": name},
		}, func() float64 { return pick(counters()) })
	}
	for _, c := range []prometheus.Collector{
		gauge("tasks_active", "Tasks currently running", func(c rtsup.Counters) float64 { return float64(c.Active) }),
		gauge("tasks_started", "Tasks started since boot", func(c rtsup.Counters) float64 { return float64(c.Started) }),
		gauge("tasks_failed", "Tasks that returned an error or panicked", func(c rtsup.Counters) float64 { return float64(c.Failed) }),
		gauge("tasks_panicked", "Tasks that panicked", func(c rtsup.Counters) float64 { return float64(c.Panics) }),
	} {
		if err := m.reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				panic(err)
			}
		}
	}
}

// Instrument wraps next, labelling samples with the given route pattern.
func (m *Metrics) Instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		recorder := &responseRecorder{ResponseWriter: w}
		start := time.Now()
		next.ServeHTTP(recorder, req)
		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		labels := prometheus.Labels{
			"method": req.Method,
			"route":  route,
			"status": strconv.Itoa(status),
		}
		m.httpTotal.With(labels).Inc()
		m.httpDuration.With(labels).Observe(time.Since(start).Seconds())
	})
}

type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (rr *responseRecorder) WriteHeader(code int) {
	rr.status = code
	rr.ResponseWriter.WriteHeader(code)
}

func (rr *responseRecorder) Write(b []byte) (int, error) {
	if rr.status == 0 {
		rr.status = http.StatusOK
	}
	return rr.ResponseWriter.Write(b)
}
