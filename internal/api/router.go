package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Token issuance (no auth required)
		r.Post("/auth/token", s.handleIssueToken)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			// Device endpoints
			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListDevices)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/state", s.handleDeviceState)
					r.Post("/commands", s.handleDeviceCommand)
					r.Get("/history", s.handleAccessHistory)
					r.Put("/placement", s.handleAssignPlacement)
					r.Delete("/placement", s.handleRemovePlacement)
				})
			})

			// Portfolio endpoints
			r.Route("/portfolios", func(r chi.Router) {
				r.Get("/", s.handleListPortfolios)
				r.Post("/", s.handleCreatePortfolio)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetPortfolio)
					r.Patch("/", s.handleUpdatePortfolio)
					r.Delete("/", s.handleDeletePortfolio)
					r.Get("/properties", s.handleListProperties)
				})
			})

			// Property endpoints
			r.Route("/properties", func(r chi.Router) {
				r.Post("/", s.handleCreateProperty)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetProperty)
					r.Patch("/", s.handleUpdateProperty)
					r.Delete("/", s.handleDeleteProperty)
					r.Get("/units", s.handleListUnits)
				})
			})

			// Unit endpoints
			r.Route("/units", func(r chi.Router) {
				r.Post("/", s.handleCreateUnit)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetUnit)
					r.Patch("/", s.handleUpdateUnit)
					r.Delete("/", s.handleDeleteUnit)
					r.Get("/tenants", s.handleListTenants)
					r.Put("/tenants/{userID}", s.handleAssignTenant)
					r.Delete("/tenants/{userID}", s.handleRemoveTenant)
				})
			})

			// User and access control endpoints
			r.Route("/users", func(r chi.Router) {
				r.Post("/", s.handleCreateUser)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetUser)
					r.Delete("/", s.handleDeleteUser)
					r.Post("/associations", s.handleCreateAssociation)
					r.Put("/guest-access", s.handleUpsertGuestAccess)
					r.Get("/guest-access", s.handleGetGuestAccess)
					r.Delete("/guest-access", s.handleRevokeGuestAccess)
				})
			})
			r.Delete("/associations/{id}", s.handleDeleteAssociation)

			// Audit trail
			r.Get("/audit", s.handleListAuditLogs)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
