package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/keyfold/keyfold-core/internal/authz"
)

// tokenRequest is the request body for POST /auth/token.
type tokenRequest struct {
	UserID string `json:"user_id"`
}

// tokenResponse is the response body for POST /auth/token.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// defaultTokenTTLMinutes is used when no TTL is configured.
const defaultTokenTTLMinutes = 15

// handleIssueToken issues a JWT access token for a known user.
//
// Credential verification is delegated to the identity provider fronting
// the API in production deployments; this endpoint is for development and
// trusted first-party tooling. The token carries only identity - role
// grants are loaded fresh from the database on every authorisation check.
func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.UserID == "" {
		writeBadRequest(w, "user_id is required")
		return
	}

	user, err := s.users.GetUser(r.Context(), req.UserID)
	if err != nil {
		if errors.Is(err, authz.ErrUserNotFound) {
			writeUnauthorized(w, "unknown user")
			return
		}
		writeInternalError(w, "failed to load user")
		return
	}

	ttl := s.secCfg.JWT.AccessTokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTLMinutes
	}

	signed, err := authz.GenerateAccessToken(user, s.secCfg.JWT.Secret, ttl)
	if err != nil {
		writeInternalError(w, "failed to generate token")
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresIn:   ttl * 60, // seconds
	})
}
