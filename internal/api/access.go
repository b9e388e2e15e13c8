package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keyfold/keyfold-core/internal/authz"
)

// =============================================================================
// Users
// =============================================================================

// createUserRequest is the request body for POST /users.
type createUserRequest struct {
	DisplayName string  `json:"display_name"`
	Email       *string `json:"email,omitempty"`
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.DisplayName == "" {
		writeBadRequest(w, "display_name is required")
		return
	}

	user := &authz.User{DisplayName: req.DisplayName, Email: req.Email}
	if err := s.users.CreateUser(r.Context(), user); err != nil {
		writeInternalError(w, "failed to create user")
		return
	}

	s.logAudit("create", "user", user.ID, actorID(r))
	writeJSON(w, http.StatusCreated, user)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.users.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, authz.ErrUserNotFound) {
			writeNotFound(w, "user not found")
			return
		}
		writeInternalError(w, "failed to get user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.users.DeleteUser(r.Context(), id); err != nil {
		if errors.Is(err, authz.ErrUserNotFound) {
			writeNotFound(w, "user not found")
			return
		}
		writeInternalError(w, "failed to delete user")
		return
	}

	s.logAudit("delete", "user", id, actorID(r))
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// Role associations
// =============================================================================

// associationRequest is the request body for POST /users/{id}/associations.
type associationRequest struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	Role       string `json:"role"`
}

// handleCreateAssociation grants a user a role at a hierarchy level. The
// grant takes effect on the user's next request; tokens are never re-issued.
func (s *Server) handleCreateAssociation(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	var req associationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.EntityType == "" || req.EntityID == "" || req.Role == "" {
		writeBadRequest(w, "entity_type, entity_id and role are required")
		return
	}

	role := authz.Role(req.Role)
	if !role.IsValid() {
		writeBadRequest(w, "unrecognised role")
		return
	}
	entityType := authz.EntityType(req.EntityType)
	if !entityType.IsValid() {
		writeBadRequest(w, "unrecognised entity type")
		return
	}

	if _, err := s.users.GetUser(r.Context(), userID); err != nil {
		if errors.Is(err, authz.ErrUserNotFound) {
			writeNotFound(w, "user not found")
			return
		}
		writeInternalError(w, "failed to get user")
		return
	}

	actor := actorID(r)
	assoc := &authz.RoleAssociation{
		UserID:     userID,
		EntityType: entityType,
		EntityID:   req.EntityID,
		Role:       role,
		CreatedBy:  &actor,
	}
	if err := s.users.CreateAssociation(r.Context(), assoc); err != nil {
		writeInternalError(w, "failed to create association")
		return
	}

	s.logAudit("create", "role_association", assoc.ID, actor)
	writeJSON(w, http.StatusCreated, assoc)
}

func (s *Server) handleDeleteAssociation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.users.DeleteAssociation(r.Context(), id); err != nil {
		if errors.Is(err, authz.ErrAssociationNotFound) {
			writeNotFound(w, "role association not found")
			return
		}
		writeInternalError(w, "failed to delete association")
		return
	}

	s.logAudit("delete", "role_association", id, actorID(r))
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// Guest access
// =============================================================================

// guestAccessRequest is the request body for PUT /users/{id}/guest-access.
type guestAccessRequest struct {
	DeviceIDs  []string  `json:"device_ids"`
	ValidFrom  time.Time `json:"valid_from"`
	ValidUntil time.Time `json:"valid_until"`
	PropertyID *string   `json:"property_id,omitempty"`
	UnitID     *string   `json:"unit_id,omitempty"`
}

// handleUpsertGuestAccess creates or replaces a user's time-boxed device
// grant. A user holds at most one guest grant; a second PUT overwrites.
func (s *Server) handleUpsertGuestAccess(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	var req guestAccessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if len(req.DeviceIDs) == 0 {
		writeBadRequest(w, "device_ids must not be empty")
		return
	}
	if req.ValidFrom.IsZero() || req.ValidUntil.IsZero() {
		writeBadRequest(w, "valid_from and valid_until are required")
		return
	}
	if req.ValidUntil.Before(req.ValidFrom) {
		writeBadRequest(w, "valid_until precedes valid_from")
		return
	}

	if _, err := s.users.GetUser(r.Context(), userID); err != nil {
		if errors.Is(err, authz.ErrUserNotFound) {
			writeNotFound(w, "user not found")
			return
		}
		writeInternalError(w, "failed to get user")
		return
	}

	actor := actorID(r)
	grant := &authz.GuestAccess{
		UserID:     userID,
		DeviceIDs:  req.DeviceIDs,
		ValidFrom:  req.ValidFrom,
		ValidUntil: req.ValidUntil,
		PropertyID: req.PropertyID,
		UnitID:     req.UnitID,
		CreatedBy:  &actor,
	}
	if err := s.users.UpsertGuestAccess(r.Context(), grant); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	s.logAudit("upsert", "guest_access", userID, actor)
	writeJSON(w, http.StatusOK, grant)
}

func (s *Server) handleGetGuestAccess(w http.ResponseWriter, r *http.Request) {
	grant, err := s.users.GetGuestAccess(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, authz.ErrGuestAccessNotFound) {
			writeNotFound(w, "guest access not found")
			return
		}
		writeInternalError(w, "failed to get guest access")
		return
	}
	writeJSON(w, http.StatusOK, grant)
}

func (s *Server) handleRevokeGuestAccess(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	if err := s.users.RevokeGuestAccess(r.Context(), userID); err != nil {
		if errors.Is(err, authz.ErrGuestAccessNotFound) {
			writeNotFound(w, "guest access not found")
			return
		}
		writeInternalError(w, "failed to revoke guest access")
		return
	}

	s.logAudit("revoke", "guest_access", userID, actorID(r))
	w.WriteHeader(http.StatusNoContent)
}
