package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keyfold/keyfold-core/internal/hierarchy"
)

// nameRequest is the shared request body for create/rename operations on
// portfolios, properties and units.
type nameRequest struct {
	Name        string `json:"name"`
	PortfolioID string `json:"portfolio_id,omitempty"`
	PropertyID  string `json:"property_id,omitempty"`
}

// =============================================================================
// Portfolios
// =============================================================================

func (s *Server) handleListPortfolios(w http.ResponseWriter, r *http.Request) {
	portfolios, err := s.hierarchy.ListPortfolios(r.Context())
	if err != nil {
		writeInternalError(w, "failed to list portfolios")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"portfolios": portfolios, "count": len(portfolios)})
}

func (s *Server) handleCreatePortfolio(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Name == "" {
		writeBadRequest(w, "name is required")
		return
	}

	portfolio := &hierarchy.Portfolio{Name: req.Name}
	if err := s.hierarchy.CreatePortfolio(r.Context(), portfolio); err != nil {
		writeInternalError(w, "failed to create portfolio")
		return
	}

	s.logAudit("create", "portfolio", portfolio.ID, actorID(r))
	writeJSON(w, http.StatusCreated, portfolio)
}

func (s *Server) handleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	portfolio, err := s.hierarchy.GetPortfolio(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, hierarchy.ErrPortfolioNotFound) {
			writeNotFound(w, "portfolio not found")
			return
		}
		writeInternalError(w, "failed to get portfolio")
		return
	}
	writeJSON(w, http.StatusOK, portfolio)
}

func (s *Server) handleUpdatePortfolio(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	portfolio, err := s.hierarchy.GetPortfolio(r.Context(), id)
	if err != nil {
		if errors.Is(err, hierarchy.ErrPortfolioNotFound) {
			writeNotFound(w, "portfolio not found")
			return
		}
		writeInternalError(w, "failed to get portfolio")
		return
	}

	var req nameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Name != "" {
		portfolio.Name = req.Name
	}

	if err := s.hierarchy.UpdatePortfolio(r.Context(), portfolio); err != nil {
		writeInternalError(w, "failed to update portfolio")
		return
	}

	s.logAudit("update", "portfolio", id, actorID(r))
	writeJSON(w, http.StatusOK, portfolio)
}

func (s *Server) handleDeletePortfolio(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.hierarchy.DeletePortfolio(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, hierarchy.ErrPortfolioNotFound):
			writeNotFound(w, "portfolio not found")
		case errors.Is(err, hierarchy.ErrPortfolioHasProperties):
			writeConflict(w, "portfolio still has properties")
		default:
			writeInternalError(w, "failed to delete portfolio")
		}
		return
	}

	s.logAudit("delete", "portfolio", id, actorID(r))
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// Properties
// =============================================================================

func (s *Server) handleListProperties(w http.ResponseWriter, r *http.Request) {
	portfolioID := chi.URLParam(r, "id")

	if _, err := s.hierarchy.GetPortfolio(r.Context(), portfolioID); err != nil {
		if errors.Is(err, hierarchy.ErrPortfolioNotFound) {
			writeNotFound(w, "portfolio not found")
			return
		}
		writeInternalError(w, "failed to get portfolio")
		return
	}

	properties, err := s.hierarchy.ListPropertiesByPortfolio(r.Context(), portfolioID)
	if err != nil {
		writeInternalError(w, "failed to list properties")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"properties": properties, "count": len(properties)})
}

func (s *Server) handleCreateProperty(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Name == "" || req.PortfolioID == "" {
		writeBadRequest(w, "name and portfolio_id are required")
		return
	}

	if _, err := s.hierarchy.GetPortfolio(r.Context(), req.PortfolioID); err != nil {
		if errors.Is(err, hierarchy.ErrPortfolioNotFound) {
			writeNotFound(w, "portfolio not found")
			return
		}
		writeInternalError(w, "failed to get portfolio")
		return
	}

	property := &hierarchy.Property{Name: req.Name, PortfolioID: req.PortfolioID}
	if err := s.hierarchy.CreateProperty(r.Context(), property); err != nil {
		writeInternalError(w, "failed to create property")
		return
	}

	s.logAudit("create", "property", property.ID, actorID(r))
	writeJSON(w, http.StatusCreated, property)
}

func (s *Server) handleGetProperty(w http.ResponseWriter, r *http.Request) {
	property, err := s.hierarchy.GetProperty(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, hierarchy.ErrPropertyNotFound) {
			writeNotFound(w, "property not found")
			return
		}
		writeInternalError(w, "failed to get property")
		return
	}
	writeJSON(w, http.StatusOK, property)
}

func (s *Server) handleUpdateProperty(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	property, err := s.hierarchy.GetProperty(r.Context(), id)
	if err != nil {
		if errors.Is(err, hierarchy.ErrPropertyNotFound) {
			writeNotFound(w, "property not found")
			return
		}
		writeInternalError(w, "failed to get property")
		return
	}

	var req nameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Name != "" {
		property.Name = req.Name
	}

	if err := s.hierarchy.UpdateProperty(r.Context(), property); err != nil {
		writeInternalError(w, "failed to update property")
		return
	}

	s.logAudit("update", "property", id, actorID(r))
	writeJSON(w, http.StatusOK, property)
}

func (s *Server) handleDeleteProperty(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.hierarchy.DeleteProperty(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, hierarchy.ErrPropertyNotFound):
			writeNotFound(w, "property not found")
		case errors.Is(err, hierarchy.ErrPropertyHasUnits):
			writeConflict(w, "property still has units")
		default:
			writeInternalError(w, "failed to delete property")
		}
		return
	}

	s.logAudit("delete", "property", id, actorID(r))
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// Units
// =============================================================================

func (s *Server) handleListUnits(w http.ResponseWriter, r *http.Request) {
	propertyID := chi.URLParam(r, "id")

	if _, err := s.hierarchy.GetProperty(r.Context(), propertyID); err != nil {
		if errors.Is(err, hierarchy.ErrPropertyNotFound) {
			writeNotFound(w, "property not found")
			return
		}
		writeInternalError(w, "failed to get property")
		return
	}

	units, err := s.hierarchy.ListUnitsByProperty(r.Context(), propertyID)
	if err != nil {
		writeInternalError(w, "failed to list units")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"units": units, "count": len(units)})
}

func (s *Server) handleCreateUnit(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Name == "" || req.PropertyID == "" {
		writeBadRequest(w, "name and property_id are required")
		return
	}

	if _, err := s.hierarchy.GetProperty(r.Context(), req.PropertyID); err != nil {
		if errors.Is(err, hierarchy.ErrPropertyNotFound) {
			writeNotFound(w, "property not found")
			return
		}
		writeInternalError(w, "failed to get property")
		return
	}

	unit := &hierarchy.Unit{Name: req.Name, PropertyID: req.PropertyID}
	if err := s.hierarchy.CreateUnit(r.Context(), unit); err != nil {
		writeInternalError(w, "failed to create unit")
		return
	}

	s.logAudit("create", "unit", unit.ID, actorID(r))
	writeJSON(w, http.StatusCreated, unit)
}

func (s *Server) handleGetUnit(w http.ResponseWriter, r *http.Request) {
	unit, err := s.hierarchy.GetUnit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, hierarchy.ErrUnitNotFound) {
			writeNotFound(w, "unit not found")
			return
		}
		writeInternalError(w, "failed to get unit")
		return
	}
	writeJSON(w, http.StatusOK, unit)
}

func (s *Server) handleUpdateUnit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	unit, err := s.hierarchy.GetUnit(r.Context(), id)
	if err != nil {
		if errors.Is(err, hierarchy.ErrUnitNotFound) {
			writeNotFound(w, "unit not found")
			return
		}
		writeInternalError(w, "failed to get unit")
		return
	}

	var req nameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Name != "" {
		unit.Name = req.Name
	}

	if err := s.hierarchy.UpdateUnit(r.Context(), unit); err != nil {
		writeInternalError(w, "failed to update unit")
		return
	}

	s.logAudit("update", "unit", id, actorID(r))
	writeJSON(w, http.StatusOK, unit)
}

func (s *Server) handleDeleteUnit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.hierarchy.DeleteUnit(r.Context(), id); err != nil {
		if errors.Is(err, hierarchy.ErrUnitNotFound) {
			writeNotFound(w, "unit not found")
			return
		}
		writeInternalError(w, "failed to delete unit")
		return
	}

	s.logAudit("delete", "unit", id, actorID(r))
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// Tenancy
// =============================================================================

func (s *Server) handleListTenants(w http.ResponseWriter, r *http.Request) {
	unitID := chi.URLParam(r, "id")

	if _, err := s.hierarchy.GetUnit(r.Context(), unitID); err != nil {
		if errors.Is(err, hierarchy.ErrUnitNotFound) {
			writeNotFound(w, "unit not found")
			return
		}
		writeInternalError(w, "failed to get unit")
		return
	}

	tenants, err := s.hierarchy.TenantsForUnit(r.Context(), unitID)
	if err != nil {
		writeInternalError(w, "failed to list tenants")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tenants": tenants, "count": len(tenants)})
}

func (s *Server) handleAssignTenant(w http.ResponseWriter, r *http.Request) {
	unitID := chi.URLParam(r, "id")
	userID := chi.URLParam(r, "userID")

	if _, err := s.hierarchy.GetUnit(r.Context(), unitID); err != nil {
		if errors.Is(err, hierarchy.ErrUnitNotFound) {
			writeNotFound(w, "unit not found")
			return
		}
		writeInternalError(w, "failed to get unit")
		return
	}

	if err := s.hierarchy.AssignTenant(r.Context(), unitID, userID); err != nil {
		writeInternalError(w, "failed to assign tenant")
		return
	}

	s.logAudit("assign_tenant", "unit", unitID, actorID(r))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemoveTenant(w http.ResponseWriter, r *http.Request) {
	unitID := chi.URLParam(r, "id")
	userID := chi.URLParam(r, "userID")

	if err := s.hierarchy.RemoveTenant(r.Context(), unitID, userID); err != nil {
		writeInternalError(w, "failed to remove tenant")
		return
	}

	s.logAudit("remove_tenant", "unit", unitID, actorID(r))
	w.WriteHeader(http.StatusNoContent)
}
