// Package api provides the HTTP REST API for the Keyfold platform.
//
// It exposes device listing, state and command endpoints, hierarchy
// management (portfolios, properties, units), access control (role
// associations and guest grants) and the audit trail to management
// consoles and integrations.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/keyfold/keyfold-core/internal/audit"
	"github.com/keyfold/keyfold-core/internal/authz"
	"github.com/keyfold/keyfold-core/internal/hierarchy"
	"github.com/keyfold/keyfold-core/internal/infrastructure/config"
	"github.com/keyfold/keyfold-core/internal/infrastructure/logging"
	"github.com/keyfold/keyfold-core/internal/orchestrator"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config       config.APIConfig
	Security     config.SecurityConfig
	Logger       *logging.Logger
	Orchestrator *orchestrator.Orchestrator
	Resolver     *authz.Resolver
	Users        authz.Repository
	Hierarchy    hierarchy.Repository
	Placements   hierarchy.PlacementRepository
	AuditRepo    audit.Repository
	AuditLog     *audit.Logger // optional: entity-change audit trail
	Version      string
}

// Server is the HTTP API server for the Keyfold platform.
//
// It manages the HTTP listener, routes and middleware. The server is
// created with New() and started with Start().
type Server struct {
	cfg          config.APIConfig
	secCfg       config.SecurityConfig
	logger       *logging.Logger
	orchestrator *orchestrator.Orchestrator
	resolver     *authz.Resolver
	users        authz.Repository
	hierarchy    hierarchy.Repository
	placements   hierarchy.PlacementRepository
	auditRepo    audit.Repository
	auditLog     *audit.Logger
	version      string
	server       *http.Server
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, orchestrator, repositories)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Orchestrator == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	if deps.Resolver == nil {
		return nil, fmt.Errorf("authorisation resolver is required")
	}
	if deps.Users == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if deps.Hierarchy == nil {
		return nil, fmt.Errorf("hierarchy repository is required")
	}

	return &Server{
		cfg:          deps.Config,
		secCfg:       deps.Security,
		logger:       deps.Logger,
		orchestrator: deps.Orchestrator,
		resolver:     deps.Resolver,
		users:        deps.Users,
		hierarchy:    deps.Hierarchy,
		placements:   deps.Placements,
		auditRepo:    deps.AuditRepo,
		auditLog:     deps.AuditLog,
		version:      deps.Version,
	}, nil
}

// Start begins listening for HTTP connections.
//
// It builds the router and launches the HTTP listener in a background
// goroutine. The server can be stopped with Close().
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: If the server fails to start (port in use, etc.)
func (s *Server) Start(_ context.Context) error {
	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
