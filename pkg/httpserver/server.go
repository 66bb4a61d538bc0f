// Package httpserver exposes the simulator over HTTP: a REST API for order
// flow and account state, a websocket event stream, and the usual metrics and
// health endpoints.
package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/quantfold/perpsim/internal/events"
	"github.com/quantfold/perpsim/internal/exchange"
	"github.com/quantfold/perpsim/pkg/healthprobe"
	"go.uber.org/zap"
)

// Server provides the HTTP surface of the simulator.
type Server struct {
	server        *http.Server
	logger        *zap.Logger
	healthChecker *healthprobe.HealthChecker
}

// Config holds server configuration.
type Config struct {
	Port          string
	Logger        *zap.Logger
	HealthChecker *healthprobe.HealthChecker
	Core          *exchange.Core
	Bus           *events.Bus
}

// New creates a new HTTP server.
func New(cfg *Config) *Server {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	// Operational routes
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/health", cfg.HealthChecker.Health())
	r.Get("/ready", cfg.HealthChecker.Ready())

	// Simulator API
	api := NewAPIHandler(cfg.Core, cfg.Logger)
	r.Get("/api/orderbook", api.HandleOrderBook)
	r.Get("/api/account", api.HandleAccount)
	r.Get("/api/positions", api.HandlePositions)
	r.Post("/api/orders", api.HandlePlaceOrder)
	r.Post("/api/close", api.HandleClose)
	r.Post("/api/reset", api.HandleReset)
	r.Post("/api/exit-plan", api.HandleExitPlan)

	// Event stream
	stream := NewStreamHandler(cfg.Bus, cfg.Logger)
	r.Get("/ws", stream.HandleWS)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{
		server:        server,
		logger:        cfg.Logger,
		healthChecker: cfg.HealthChecker,
	}
}

// Handler returns the underlying router; tests mount it on httptest servers.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server.
// This is a blocking call that returns when the server stops or encounters an error.
func (s *Server) Start() error {
	s.logger.Info("http-server-starting", zap.String("addr", s.server.Addr))

	err := s.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen and serve: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http-server-shutting-down")

	err := s.server.Shutdown(ctx)
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.logger.Info("http-server-shutdown-complete")
	return nil
}
