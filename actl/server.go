package actl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/atomic"
)

// RouteRegistrar defines the interface for components that register
// routes with the server's router.
type RouteRegistrar interface {
	RegisterRoutes(r chi.Router)
}

// ServerConfig contains the configuration parameters for the
// control-surface HTTP server.
type ServerConfig struct {
	// ListenAddr is the address and port the HTTP server will
	// listen on. Each node derives a distinct port so several
	// nodes can run on one host.
	ListenAddr string

	// Log is the structured logger for server operations.
	Log *slog.Logger

	// ReadTimeout is the maximum duration for reading the entire
	// request, including the body.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out
	// writes of the response.
	WriteTimeout time.Duration

	// GracefulShutdownDuration is the maximum time to wait for
	// in-flight requests to complete during shutdown.
	GracefulShutdownDuration time.Duration
}

// Server hosts the control surface for one node.
type Server struct {
	cfg     ServerConfig
	log     *slog.Logger
	isReady atomic.Bool

	srv *http.Server
}

// NewServer builds the control-surface server,
// wiring each registrar's routes into the router.
func NewServer(cfg ServerConfig, registrars ...RouteRegistrar) *Server {
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 5 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.GracefulShutdownDuration == 0 {
		cfg.GracefulShutdownDuration = 5 * time.Second
	}

	s := &Server{
		cfg: cfg,
		log: cfg.Log,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	for _, reg := range registrars {
		reg.RegisterRoutes(r)
	}

	s.srv = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if !s.isReady.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Run serves the control surface until ctx is canceled,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("Control surface listening", "addr", s.cfg.ListenAddr)
		s.isReady.Store(true)

		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("control surface server failed: %w", err)

	case <-ctx.Done():
		s.isReady.Store(false)

		shutdownCtx, cancel := context.WithTimeout(
			context.Background(), s.cfg.GracefulShutdownDuration,
		)
		defer cancel()

		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("control surface shutdown failed: %w", err)
		}
		return nil
	}
}
