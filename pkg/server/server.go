// Package server provides the HTTP servers with graceful startup and
// shutdown: a public server carrying the stream endpoints and a management
// server carrying health and metrics.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/nimburion/pulse/pkg/observability/logger"
)

// shutdownTimeout caps how long Shutdown waits for in-flight requests.
const shutdownTimeout = 30 * time.Second

// Config holds configuration for an HTTP server.
type Config struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Server wraps http.Server with configured timeouts and graceful lifecycle
// management.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	log        logger.Logger
	config     Config
}

// NewServer creates a Server serving handler with the provided configuration.
func NewServer(cfg Config, handler http.Handler, log logger.Logger) *Server {
	return &Server{
		handler: handler,
		log:     log,
		config:  cfg,
	}
}

// Start runs the server until ctx is cancelled, then shuts it down
// gracefully. It returns early with an error when the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	s.log.Info("starting server", "port", s.config.Port)

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("server failed to start: %w", err)
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown stops accepting new connections and waits up to 30 seconds for
// in-flight requests to complete.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down server", "port", s.config.Port)

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.log.Info("server shutdown complete", "port", s.config.Port)
	return nil
}
