// Package core provides the API chassis for BlackHub. It builds the chi
// router, applies cross-cutting middleware (recovery, request IDs, logging,
// CORS, authentication, public rate limiting) and exposes the seller access
// gate as middleware before requests reach domain handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"blackhub/internal/config"
)

// Server holds the dependencies shared by every route. Fields are exported
// so tests and cmd/api can inject them after NewServer.
type Server struct {
	Config        *config.Config
	Logger        *slog.Logger
	Validator     *Validator
	Authenticator Authenticator
	Scheduler     Authenticator
	Gate          AccessChecker
	HealthProbes  []HealthProbe

	// PublicLimiter throttles unauthenticated endpoints per client IP.
	PublicLimiter *IPRateLimiter

	// V1RouteRegistrars mount domain handlers under /v1. They are populated
	// by cmd/api, which avoids an import cycle between core and handlers.
	V1RouteRegistrars []func(chi.Router)

	router  *chi.Mux
	closers []func(context.Context) error
}

// NewServer validates its inputs and prepares an empty router. Call
// MountRoutes after injecting dependencies.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	s := &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(logger),
		router:    chi.NewRouter(),
	}
	if cfg.Server.PublicRateLimit > 0 {
		s.PublicLimiter = NewIPRateLimiter(cfg.Server.PublicRateLimit, cfg.Server.PublicRateBurst)
	}
	return s, nil
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// OnShutdown registers fn to run during Shutdown, in registration order.
func (s *Server) OnShutdown(fn func(context.Context) error) {
	s.closers = append(s.closers, fn)
}

// Shutdown runs the registered shutdown hooks.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.InfoContext(ctx, "server shutdown initiated")
	for _, c := range s.closers {
		if err := c(ctx); err != nil {
			s.Logger.ErrorContext(ctx, "error during shutdown", "error", err)
			return fmt.Errorf("server shutdown: %w", err)
		}
	}
	s.Logger.InfoContext(ctx, "server shutdown complete")
	return nil
}
