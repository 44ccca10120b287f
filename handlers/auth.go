package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"showdeck/internal/database"
	"showdeck/services/trakt"
)

// AuthHandler handles upstream account linking.
type AuthHandler struct {
	auth  *trakt.Auth
	creds *database.CredentialRepository
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(auth *trakt.Auth, creds *database.CredentialRepository) *AuthHandler {
	return &AuthHandler{
		auth:  auth,
		creds: creds,
	}
}

// Authorize exchanges an OAuth authorization code and stores the resulting
// token pair for the user.
// POST /api/auth/authorize
func (h *AuthHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Code     string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Code == "" {
		jsonError(w, "username and code are required", http.StatusBadRequest)
		return
	}

	if err := h.auth.Authorize(r.Context(), req.Username, req.Code); err != nil {
		jsonError(w, "Authorization failed: "+err.Error(), http.StatusBadGateway)
		return
	}

	jsonOK(w, map[string]any{
		"username":  req.Username,
		"connected": true,
	})
}

// Status reports whether a user has a stored credential.
// GET /api/auth/{username}
func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]

	cred, err := h.creds.Get(username)
	if errors.Is(err, database.ErrCredentialNotFound) {
		jsonOK(w, map[string]any{"username": username, "connected": false})
		return
	}
	if err != nil {
		jsonError(w, "Failed to load credential: "+err.Error(), http.StatusInternalServerError)
		return
	}

	resp := map[string]any{
		"username":  cred.Username,
		"connected": true,
	}
	if cred.LastFetchedAt != nil {
		resp["lastFetchedAt"] = cred.LastFetchedAt.UTC()
	}
	jsonOK(w, resp)
}
