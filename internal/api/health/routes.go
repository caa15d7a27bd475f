// Package health serves the liveness and readiness probes.
package health

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Build string
}

// Routes binds all the health check endpoints.
func Routes(r chi.Router, cfg Config) {
	const version = "/v1"

	r.Get(version+"/liveness", liveness(cfg))
	r.Get(version+"/readiness", readiness(cfg))
}

// Paths lists the probe paths, for middleware that should skip them.
func Paths() []string {
	return []string{"/v1/liveness", "/v1/readiness"}
}

// healthResponse represents the response for health check.
type healthResponse struct {
	Status string `json:"status"`
	Build  string `json:"build"`
}

// readyResponse represents the response for readiness check.
type readyResponse struct {
	Status string `json:"status"`
}

func liveness(cfg Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respond(w, healthResponse{Status: "ok", Build: cfg.Build})
	}
}

// The simulator keeps everything in memory, so it is ready once it serves.
func readiness(Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respond(w, readyResponse{Status: "ready"})
	}
}

func respond(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}
