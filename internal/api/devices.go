package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/keyfold/keyfold-core/internal/audit"
	"github.com/keyfold/keyfold-core/internal/authz"
	"github.com/keyfold/keyfold-core/internal/device"
	"github.com/keyfold/keyfold-core/internal/hierarchy"
	"github.com/keyfold/keyfold-core/internal/orchestrator"
)

// defaultHistoryLimit caps access history responses when no limit is given.
const defaultHistoryLimit = 50

// handleListDevices returns the merged device listing across all vendors,
// reduced to the devices the caller holds view_status on. A vendor that
// cannot be reached is omitted; the request only fails when every vendor
// fails.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.orchestrator.ListDevices(r.Context())
	if err != nil {
		if errors.Is(err, orchestrator.ErrNoAdapters) {
			writeError(w, http.StatusServiceUnavailable, ErrCodeVendor, "no vendor adapters configured")
			return
		}
		writeError(w, http.StatusBadGateway, ErrCodeVendor, "all vendors unreachable")
		return
	}

	user, err := s.users.GetUser(r.Context(), actorID(r))
	if err != nil {
		if errors.Is(err, authz.ErrUserNotFound) {
			writeUnauthorized(w, "unknown user")
			return
		}
		writeInternalError(w, "failed to load user")
		return
	}

	visible := devices[:0]
	for _, dev := range devices {
		ok, err := s.resolver.Visible(r.Context(), user, dev)
		if err != nil {
			writeInternalError(w, "failed to resolve device visibility")
			return
		}
		if ok {
			visible = append(visible, dev)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"devices": visible, "count": len(visible)})
}

// handleDeviceState returns the live state of one device, subject to the
// caller holding view_status on it.
func (s *Server) handleDeviceState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	dev, user, ok := s.loadDeviceAndActor(w, r, id)
	if !ok {
		return
	}

	if !s.authorize(w, r, user, device.OpViewStatus, dev) {
		return
	}

	writeJSON(w, http.StatusOK, dev)
}

// handleDeviceCommand executes a lock, unlock or change_settings command.
//
// The authorisation decision is taken against the device's live state
// before any command reaches the vendor: an offline device or a disabled
// remote-operation flag denies the request without a vendor round trip.
func (s *Server) handleDeviceCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var cmd device.Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if err := cmd.Validate(); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	dev, user, ok := s.loadDeviceAndActor(w, r, id)
	if !ok {
		return
	}

	if !s.authorize(w, r, user, cmd.Operation, dev) {
		return
	}

	updated, err := s.orchestrator.ExecuteCommand(r.Context(), user.ID, id, cmd)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeError(w, http.StatusBadGateway, ErrCodeVendor, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// handleAccessHistory returns recent access records for a device, newest
// first. Requires view_access_history on the device.
func (s *Server) handleAccessHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	dev, user, ok := s.loadDeviceAndActor(w, r, id)
	if !ok {
		return
	}

	if !s.authorize(w, r, user, device.OpViewAccessHistory, dev) {
		return
	}

	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	records, err := s.orchestrator.AccessHistory(r.Context(), id, limit)
	if err != nil {
		writeInternalError(w, "failed to load access history")
		return
	}
	if records == nil {
		records = []device.AccessRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"records": records, "count": len(records)})
}

// placementRequest is the request body for PUT /devices/{id}/placement.
type placementRequest struct {
	PropertyID string  `json:"property_id"`
	UnitID     *string `json:"unit_id,omitempty"`
}

// handleAssignPlacement pins a device to a property and optionally a unit.
func (s *Server) handleAssignPlacement(w http.ResponseWriter, r *http.Request) {
	if s.placements == nil {
		writeInternalError(w, "placements not configured")
		return
	}
	id := chi.URLParam(r, "id")

	var req placementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.PropertyID == "" {
		writeBadRequest(w, "property_id is required")
		return
	}

	placement := &hierarchy.Placement{
		DeviceID:   id,
		PropertyID: req.PropertyID,
		UnitID:     req.UnitID,
	}
	if err := s.placements.Assign(r.Context(), placement); err != nil {
		switch {
		case errors.Is(err, hierarchy.ErrPropertyNotFound):
			writeNotFound(w, "property not found")
		case errors.Is(err, hierarchy.ErrUnitNotFound):
			writeNotFound(w, "unit not found")
		case errors.Is(err, hierarchy.ErrPlacementMismatch):
			writeConflict(w, "unit does not belong to the property")
		default:
			writeInternalError(w, "failed to assign placement")
		}
		return
	}

	s.logAudit("assign_placement", "device", id, actorID(r))
	writeJSON(w, http.StatusOK, placement)
}

// handleRemovePlacement detaches a device from the hierarchy.
func (s *Server) handleRemovePlacement(w http.ResponseWriter, r *http.Request) {
	if s.placements == nil {
		writeInternalError(w, "placements not configured")
		return
	}
	id := chi.URLParam(r, "id")

	if err := s.placements.Remove(r.Context(), id); err != nil {
		if errors.Is(err, hierarchy.ErrPlacementNotFound) {
			writeNotFound(w, "placement not found")
			return
		}
		writeInternalError(w, "failed to remove placement")
		return
	}

	s.logAudit("remove_placement", "device", id, actorID(r))
	w.WriteHeader(http.StatusNoContent)
}

// loadDeviceAndActor resolves the device's live state and the caller's
// grants, writing the error response itself on failure.
func (s *Server) loadDeviceAndActor(w http.ResponseWriter, r *http.Request, deviceID string) (*device.Device, *authz.User, bool) {
	dev, err := s.orchestrator.DeviceState(r.Context(), deviceID)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return nil, nil, false
		}
		writeError(w, http.StatusBadGateway, ErrCodeVendor, "vendor unreachable")
		return nil, nil, false
	}

	user, err := s.users.GetUser(r.Context(), actorID(r))
	if err != nil {
		if errors.Is(err, authz.ErrUserNotFound) {
			writeUnauthorized(w, "unknown user")
			return nil, nil, false
		}
		writeInternalError(w, "failed to load user")
		return nil, nil, false
	}

	return dev, user, true
}

// authorize runs the hierarchical authorisation check, writing a 403 with
// the denial reason on refusal. Returns true when the operation may proceed.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request, user *authz.User, op device.Operation, dev *device.Device) bool {
	err := s.resolver.Authorize(r.Context(), user, op, dev)
	if err == nil {
		return true
	}

	var denied *authz.UnauthorizedError
	if errors.As(err, &denied) {
		writeForbidden(w, "operation not permitted", string(denied.Reason))
		return false
	}

	writeInternalError(w, "authorisation check failed")
	return false
}

// logAudit records an entity change when the audit logger is configured.
func (s *Server) logAudit(action, entityType, entityID, userID string) {
	if s.auditLog == nil {
		return
	}
	s.auditLog.LogEvent(action, entityType, entityID, userID, audit.StatusOK, nil)
}
