package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"showdeck/services/history"
)

// HistoryHandler exposes the persisted watch history.
type HistoryHandler struct {
	historySvc *history.Service
}

// NewHistoryHandler creates a new history handler.
func NewHistoryHandler(historySvc *history.Service) *HistoryHandler {
	return &HistoryHandler{historySvc: historySvc}
}

// ListHistory returns the stored watch history for a user.
// GET /api/history/{username}
func (h *HistoryHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]

	entries, err := h.historySvc.List(username)
	if err != nil {
		jsonError(w, "Failed to load history: "+err.Error(), http.StatusInternalServerError)
		return
	}

	jsonOK(w, map[string]any{
		"username": username,
		"count":    len(entries),
		"history":  entries,
	})
}

// SyncHistory forces an upstream history sync regardless of cooldown.
// POST /api/history/{username}/sync
func (h *HistoryHandler) SyncHistory(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]

	if err := h.historySvc.Sync(r.Context(), username); err != nil {
		jsonError(w, "Sync failed: "+err.Error(), http.StatusBadGateway)
		return
	}

	jsonOK(w, map[string]any{"username": username, "synced": true})
}
