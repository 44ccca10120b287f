package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"showdeck/models"
	"showdeck/services/catalog"
	"showdeck/services/history"
)

// CatalogHandler serves enriched catalog pages.
type CatalogHandler struct {
	catalogSvc *catalog.Service
	historySvc *history.Service
}

// NewCatalogHandler creates a new catalog handler.
func NewCatalogHandler(catalogSvc *catalog.Service, historySvc *history.Service) *CatalogHandler {
	return &CatalogHandler{
		catalogSvc: catalogSvc,
		historySvc: historySvc,
	}
}

// GetCatalog returns one page of an upstream catalog source.
// GET /api/catalog/{mediaType}/{source}
func (h *CatalogHandler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	q := r.URL.Query()

	req := catalog.Request{
		Source:    models.SourceKind(vars["source"]),
		MediaType: vars["mediaType"],
		ListID:    q.Get("list"),
		Username:  q.Get("username"),
		Page:      intParam(q.Get("page"), 1),
		Limit:     intParam(q.Get("limit"), 50),
		SortBy:    q.Get("sortBy"),
		SortHow:   q.Get("sortHow"),
		Genre:     q.Get("genre"),
	}

	items, err := h.catalogSvc.FetchPage(r.Context(), req)
	switch {
	case errors.Is(err, catalog.ErrUnknownSource),
		errors.Is(err, catalog.ErrListIDRequired),
		errors.Is(err, catalog.ErrUsernameMissing):
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		jsonError(w, "Failed to fetch catalog: "+err.Error(), http.StatusBadGateway)
		return
	}

	if req.Username != "" {
		items, err = h.historySvc.Annotate(r.Context(), req.Username, req.MediaType, items)
		if err != nil {
			jsonError(w, "Failed to annotate catalog: "+err.Error(), http.StatusInternalServerError)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"items": items,
	})
}

func intParam(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
