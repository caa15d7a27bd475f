package api

import (
	"fmt"
	"net/http"
	"net/http/pprof"

	"github.com/arl/statsviz"
	"github.com/go-chi/chi/v5"
)

// DebugMux returns the router for the debug listener: pprof profiles and the
// statsviz live runtime dashboard under /debug/statsviz.
func DebugMux() (http.Handler, error) {
	srv, err := statsviz.NewServer()
	if err != nil {
		return nil, fmt.Errorf("creating statsviz server: %w", err)
	}

	r := chi.NewRouter()

	r.HandleFunc("/debug/pprof/", pprof.Index)
	r.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	r.HandleFunc("/debug/pprof/profile", pprof.Profile)
	r.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	r.HandleFunc("/debug/pprof/trace", pprof.Trace)
	r.Handle("/debug/pprof/{profile}", http.HandlerFunc(pprof.Index))

	r.Get("/debug/statsviz", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/debug/statsviz/", http.StatusMovedPermanently)
	})
	r.Get("/debug/statsviz/ws", srv.Ws())
	r.Handle("/debug/statsviz/*", srv.Index())

	return r, nil
}
