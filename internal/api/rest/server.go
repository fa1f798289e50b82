package rest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/procuredesk/tender-evaluation-backend/internal/infrastructure/config"
)

// Server is the HTTP front of the evaluation engine.
type Server struct {
	httpServer *http.Server
	config     *config.ServerConfig
	logger     *slog.Logger
}

// NewServer assembles the routing tree: health endpoints stay public, the
// API subtree sits behind authentication and rate limiting.
func NewServer(cfg *config.Config, handler *Handler, health *HealthHandler, auth *AuthMiddleware, logger *slog.Logger) *Server {
	apiMux := http.NewServeMux()
	handler.RegisterRoutes(apiMux)

	root := http.NewServeMux()
	health.RegisterRoutes(root)
	root.Handle("/api/v1/", Chain(apiMux,
		recoveryMiddleware(logger),
		requestIDMiddleware,
		loggingMiddleware(logger),
		metricsMiddleware,
		rateLimitMiddleware(cfg.Security.RateLimit.RequestsPerSecond, cfg.Security.RateLimit.BurstSize),
		auth.Middleware(),
	))

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:      root,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
		config: &cfg.Server,
		logger: logger,
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("shutting down http server")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}
