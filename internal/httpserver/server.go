package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/davidbz/council-relay/internal/config"
	"github.com/davidbz/council-relay/internal/httpserver/middleware"
	"github.com/davidbz/council-relay/internal/observability"
)

// Server represents the HTTP server.
type Server struct {
	config      *config.ServerConfig
	handler     *Handler
	middlewares middleware.Middleware
	gatherer    prometheus.Gatherer
	srv         *http.Server
}

// NewServer creates a new HTTP server.
func NewServer(
	cfg *config.ServerConfig,
	handler *Handler,
	middlewares middleware.Middleware,
	gatherer prometheus.Gatherer,
) *Server {
	return &Server{
		config:      cfg,
		handler:     handler,
		middlewares: middlewares,
		gatherer:    gatherer,
		srv:         nil,
	}
}

// Routes builds the route table wrapped in the middleware chain.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/sessions/{session}/messages", s.handler.HandleSubmit)
	mux.HandleFunc("POST /v1/sessions/{session}/turns/{turn}/forward", s.handler.HandleForward)
	mux.HandleFunc("GET /v1/sessions/{session}/turns", s.handler.HandleTurns)
	mux.HandleFunc("GET /v1/sessions/{session}/events", s.handler.HandleEvents)
	mux.HandleFunc("GET /v1/sessions/{session}/context", s.handler.HandleContext)
	mux.HandleFunc("GET /v1/members", s.handler.HandleListMembers)
	mux.HandleFunc("POST /v1/members", s.handler.HandleRegisterMember)
	mux.HandleFunc("GET /v1/status", s.handler.HandleStatus)
	mux.HandleFunc("GET /v1/telemetry/latency", s.handler.HandleLatency)
	mux.HandleFunc("GET /health", s.handler.HandleHealth)
	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	return s.middlewares(mux)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.Routes(),
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
	}

	ctx := context.Background()
	observability.FromContext(ctx).Info("starting HTTP server", observability.Int("port", s.config.Port))

	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	observability.FromContext(ctx).Info("shutting down HTTP server")

	if s.srv == nil {
		return nil
	}

	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	return nil
}
