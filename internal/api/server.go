// Package api serves the recon service contract over HTTP, backed by the
// in-memory simulator.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/ahrav/reconaug/internal/api/health"
	"github.com/ahrav/reconaug/internal/api/mid"
	"github.com/ahrav/reconaug/internal/api/sim"
	"github.com/ahrav/reconaug/pkg/common/logger"
)

// Server routes requests to the simulator.
type Server struct {
	build   string
	tasks   *sim.Manager
	router  *chi.Mux
	handler http.Handler
	metrics APIMetrics
	logger  *logger.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics sets the metrics sink.
func WithMetrics(m APIMetrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithBuild sets the build reported by the health endpoints.
func WithBuild(build string) Option {
	return func(s *Server) { s.build = build }
}

// NewServer creates a Server for tasks.
func NewServer(tasks *sim.Manager, log *logger.Logger, opts ...Option) *Server {
	s := &Server{
		build:  "develop",
		tasks:  tasks,
		router: chi.NewRouter(),
		logger: log.With("component", "sim_api"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		m, _ := NewAPIMetrics(noop.NewMeterProvider())
		s.metrics = m
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(mid.Logger(s.logger))
	s.router.Use(mid.Metrics(s.metrics))
	s.router.Use(middleware.Recoverer)

	s.routes()

	s.handler = mid.Otel("reconsim", health.Paths()...)(s.router)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) routes() {
	health.Routes(s.router, health.Config{Build: s.build})

	s.router.Post("/scan", s.handleSubmitScan)
	s.router.Get("/task/{id}", s.handleGetTask)
	s.router.Get("/task/{id}/events", s.handleTaskEvents)
	s.router.Get("/run-gau", s.handleHistoricalURLs)
	s.router.Get("/scan-ports", s.handleScanPorts)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/tools", s.handleTools)
		r.Get("/scan-history", s.handleScanHistory)
		r.Get("/debug/clear-database", s.handleClearHistory)
	})
}
