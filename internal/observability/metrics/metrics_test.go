package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"liteping/internal/checker"
	"liteping/internal/retention"
	rtsup "liteping/internal/runtime/supervisor"
	"liteping/internal/storage"
)

// sample returns the summed value of every series in family name whose
// labels include want.
func sample(t *testing.T, m *Metrics, name string, want map[string]string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	series:
		for _, metric := range mf.GetMetric() {
			got := map[string]string{}
			for _, lp := range metric.GetLabel() {
				got[lp.GetName()] = lp.GetValue()
			}
			for k, v := range want {
				if got[k] != v {
					continue series
				}
			}
			switch {
			case metric.GetCounter() != nil:
				total += metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				total += metric.GetGauge().GetValue()
			case metric.GetHistogram() != nil:
				total += float64(metric.GetHistogram().GetSampleCount())
			}
		}
	}
	return total
}

func TestObserveTick(t *testing.T) {
	m := New()
	m.ObserveTick(checker.TickReport{Heartbeats: 25, Persisted: 20, ChunkErrors: 1, Canceled: 3, Opened: 2, Resolved: 1, Duration: time.Second}, nil)
	m.ObserveTick(checker.TickReport{}, errors.New("load failed"))

	checks := []struct {
		name   string
		labels map[string]string
		want   float64
	}{
		{"liteping_checker_ticks_total", map[string]string{"result": "ok"}, 1},
		{"liteping_checker_ticks_total", map[string]string{"result": "error"}, 1},
		{"liteping_checker_tick_duration_seconds", nil, 2},
		{"liteping_checker_monitors_checked_total", nil, 25},
		{"liteping_checker_heartbeats_persisted_total", nil, 20},
		{"liteping_checker_heartbeat_chunk_errors_total", nil, 1},
		{"liteping_checker_probes_canceled_total", nil, 3},
		{"liteping_incident_transitions_total", map[string]string{"action": "open"}, 2},
		{"liteping_incident_transitions_total", map[string]string{"action": "resolve"}, 1},
	}
	for _, c := range checks {
		if got := sample(t, m, c.name, c.labels); got != c.want {
			t.Errorf("%s%v = %v, want %v", c.name, c.labels, got, c.want)
		}
	}
}

func TestObserveDeliveryAndRetention(t *testing.T) {
	m := New()
	m.ObserveDelivery(storage.ChannelTelegram, nil)
	m.ObserveDelivery(storage.ChannelTelegram, errors.New("403"))
	m.ObserveDelivery(storage.ChannelDiscord, nil)
	m.ObserveRetention(retention.Result{Purged: 42}, nil)

	if got := sample(t, m, "liteping_notifier_deliveries_total", map[string]string{"channel": "telegram", "outcome": "failed"}); got != 1 {
		t.Fatalf("telegram failures = %v, want 1", got)
	}
	if got := sample(t, m, "liteping_notifier_deliveries_total", map[string]string{"outcome": "delivered"}); got != 2 {
		t.Fatalf("deliveries = %v, want 2", got)
	}
	if got := sample(t, m, "liteping_retention_heartbeats_purged_total", nil); got != 42 {
		t.Fatalf("purged = %v, want 42", got)
	}
}

func TestWatchSupervisorIsIdempotent(t *testing.T) {
	m := New()
	counters := func() rtsup.Counters { return rtsup.Counters{Active: 3, Started: 7} }
	m.WatchSupervisor("bg", counters)
	m.WatchSupervisor("bg", counters)

	if got := sample(t, m, "liteping_supervisor_tasks_active", map[string]string{"supervisor": "bg"}); got != 3 {
		t.Fatalf("active = %v, want 3", got)
	}
}

func TestInstrumentRecordsStatus(t *testing.T) {
	m := New()
	h := m.Instrument("/teapot", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/teapot", nil))

	if got := sample(t, m, "liteping_http_requests_total", map[string]string{"route": "/teapot", "status": "418"}); got != 1 {
		t.Fatalf("requests = %v, want 1", got)
	}
}
