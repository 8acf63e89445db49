package main

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tendant/simple-composite/pkg/composite"
	"github.com/tendant/simple-composite/pkg/composite/api"
	"github.com/tendant/simple-composite/pkg/composite/config"
	"github.com/tendant/simple-composite/pkg/composite/metrics"
)

// HTTPServer wraps the metadata service for HTTP access
type HTTPServer struct {
	service  composite.Service
	config   *config.ServerConfig
	process  ProcessConfig
	registry *prometheus.Registry
	metrics  *metrics.HTTPMetrics
	logger   *slog.Logger
}

// NewHTTPServer creates a new HTTP server wrapper
func NewHTTPServer(service composite.Service, cfg *config.ServerConfig, proc ProcessConfig, reg *prometheus.Registry, m *metrics.HTTPMetrics, logger *slog.Logger) *HTTPServer {
	return &HTTPServer{
		service:  service,
		config:   cfg,
		process:  proc,
		registry: reg,
		metrics:  m,
		logger:   logger,
	}
}

// Routes sets up the HTTP routes
func (s *HTTPServer) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(api.LoggingMiddleware(s.logger))
	r.Use(api.RecoveryMiddleware(s.logger))
	if s.process.RequestTimeout > 0 {
		r.Use(middleware.Timeout(s.process.RequestTimeout))
	}

	switch {
	case len(s.process.CORSOrigins) > 0:
		r.Use(api.CORSMiddleware(s.process.CORSOrigins...))
	case s.config.Environment == "development":
		r.Use(api.CORSMiddleware("*"))
	}

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}))

	r.Route("/api/v1", func(r chi.Router) {
		if s.metrics != nil {
			r.Use(s.metrics.Middleware)
		}
		r.Mount("/", api.NewObjectHandler(s.service).Routes())
		r.Get("/config", s.handleGetConfig)
	})

	return r
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]interface{}{
		"environment":      s.config.Environment,
		"database_type":    s.config.DatabaseType,
		"snapshot_storage": s.config.Snapshots.Type,
		"key_layout":       s.config.KeyLayout,
		"instance_id":      s.config.InstanceID,
		"duplicate_policy": s.config.DuplicatePolicy.String(),
		"event_logging":    s.config.EnableEventLogging,
	})
}
