// Package core provides the API chassis for LinkDigest. It creates a chi
// router and enforces cross-cutting concerns -- security, logging, and error
// handling -- before requests reach domain-specific handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"linkdigest/internal/config"
)

// RouteRegistrar registers a group of domain routes on the router. Handlers
// are registered by the application entry point to avoid import cycles
// between core and handler packages.
type RouteRegistrar func(r chi.Router)

// Server encapsulates the dependencies of the LinkDigest API, allowing for
// easy injection during testing and distinct configuration for different
// environments.
type Server struct {
	Config    *config.Config
	Logger    *slog.Logger
	Validator *Validator

	// RouteRegistrars holds the domain route groups mounted by MountRoutes.
	// Populated by the entry point before MountRoutes is called.
	RouteRegistrars []RouteRegistrar

	// AdminRouteRegistrars holds routes mounted under /admin behind the
	// admin-key middleware.
	AdminRouteRegistrars []RouteRegistrar

	router *chi.Mux

	// closers are resources released on Shutdown, in registration order.
	closers []func()
}

// NewServer initializes dependencies, sets up the router, and prepares the
// server for route mounting. It performs a fail-fast check on critical
// configuration.
//
// The caller is responsible for populating RouteRegistrars and calling
// MountRoutes after construction. This separation allows tests to customize
// route registration.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(logger),
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the http.Handler interface for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// RegisterCloser adds a resource release hook invoked during Shutdown.
func (s *Server) RegisterCloser(fn func()) {
	s.closers = append(s.closers, fn)
}

// Shutdown performs a graceful termination of server resources: registered
// closers run in order (database pools, schedulers), then logs are flushed
// by process exit.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")

	for _, fn := range s.closers {
		fn()
	}

	s.Logger.Info("server shutdown complete")
	return nil
}
