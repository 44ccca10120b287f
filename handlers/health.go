package handlers

import (
	"net/http"

	"showdeck/internal/cache"
)

// HealthHandler reports process liveness and cache state.
type HealthHandler struct {
	store *cache.Store
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(store *cache.Store) *HealthHandler {
	return &HealthHandler{store: store}
}

// Healthz always returns 200 while the process is up; a degraded cache is
// reported but does not fail the check.
// GET /healthz
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	jsonOK(w, map[string]any{
		"status":        "ok",
		"cacheDegraded": h.store.Degraded(),
	})
}
