package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// hang blocks until the client gives up on the request.
func hang(w http.ResponseWriter, r *http.Request) {
	select {
	case <-r.Context().Done():
	case <-time.After(5 * time.Second):
	}
}

func TestProbeStatusCodes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		status   int
		wantDown bool
	}{
		{name: "ok", status: http.StatusOK},
		{name: "no content", status: http.StatusNoContent},
		{name: "server error", status: http.StatusInternalServerError, wantDown: true},
		{name: "not found", status: http.StatusNotFound, wantDown: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var calls int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				if r.Header.Get("User-Agent") != userAgent || r.Header.Get("Cache-Control") != "no-cache" {
					t.Errorf("headers = %v", r.Header)
				}
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			res := New(Options{Timeout: time.Second}).Probe(context.Background(), Target{URL: srv.URL, Method: "GET"})
			if res.Status != tt.status {
				t.Fatalf("status = %d, want %d", res.Status, tt.status)
			}
			if res.Down() != tt.wantDown {
				t.Fatalf("down = %v, want %v", res.Down(), tt.wantDown)
			}
			if got := atomic.LoadInt32(&calls); got != 1 {
				t.Fatalf("calls = %d, want 1 (HTTP responses are not retried)", got)
			}
		})
	}
}

func TestProbeDefaultsToHead(t *testing.T) {
	var method atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method.Store(r.Method)
	}))
	defer srv.Close()

	New(Options{}).Probe(context.Background(), Target{URL: srv.URL})
	if got, _ := method.Load().(string); got != http.MethodHead {
		t.Fatalf("method = %q, want HEAD", got)
	}
}

func TestProbeTimeoutTwiceIsNetworkFailure(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		hang(w, r)
	}))
	defer srv.Close()

	timeout := 50 * time.Millisecond
	res := New(Options{Timeout: timeout}).Probe(context.Background(), Target{URL: srv.URL})
	if res.Status != 0 {
		t.Fatalf("status = %d, want 0", res.Status)
	}
	if res.Err == "" {
		t.Fatal("expected transport error text")
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("calls = %d, want 2", got)
	}
	if res.Latency < 2*timeout {
		t.Fatalf("latency = %v, want >= %v", res.Latency, 2*timeout)
	}
}

func TestProbeRetryThenServerError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			hang(w, r)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	timeout := 50 * time.Millisecond
	res := New(Options{Timeout: timeout}).Probe(context.Background(), Target{URL: srv.URL, Method: "GET"})
	if res.Status != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", res.Status)
	}
	if res.Err != "" {
		t.Fatalf("err = %q, want empty for an HTTP response", res.Err)
	}
	if res.Latency < timeout {
		t.Fatalf("latency = %v, want it to include the failed attempt", res.Latency)
	}
}

func TestProbeConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	res := New(Options{Timeout: time.Second}).Probe(context.Background(), Target{URL: url})
	if res.Status != 0 || !res.Down() || res.Err == "" {
		t.Fatalf("result = %+v, want network failure", res)
	}
}

func TestIsDown(t *testing.T) {
	for status, want := range map[int]bool{0: true, 101: true, 199: true, 200: false, 299: false, 301: true, 503: true} {
		if got := IsDown(status); got != want {
			t.Errorf("IsDown(%d) = %v, want %v", status, got, want)
		}
	}
}
