package httpapi

import (
	hpprof "net/http/pprof"

	"github.com/go-chi/chi/v5"
)

// pprofPrefix is fixed because pprof.Index resolves profile names relative
// to /debug/pprof/.
const pprofPrefix = "/debug/pprof"

func mountPprof(r chi.Router) {
	r.Get("/", hpprof.Index)
	r.Get("/cmdline", hpprof.Cmdline)
	r.Get("/profile", hpprof.Profile)
	r.HandleFunc("/symbol", hpprof.Symbol)
	r.Get("/trace", hpprof.Trace)
	// heap, goroutine, allocs and the other named profiles.
	r.Get("/{profile}", hpprof.Index)
}
