package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"showdeck/handlers"
)

// corsMiddleware handles CORS for API routes
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// handleOptions handles OPTIONS requests for CORS preflight
func handleOptions(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// Register mounts API endpoints onto the provided router.
func Register(
	r *mux.Router,
	catalogHandler *handlers.CatalogHandler,
	authHandler *handlers.AuthHandler,
	historyHandler *handlers.HistoryHandler,
	healthHandler *handlers.HealthHandler,
) {
	r.HandleFunc("/healthz", healthHandler.Healthz).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(corsMiddleware)

	api.HandleFunc("/auth/authorize", authHandler.Authorize).Methods(http.MethodPost)
	api.HandleFunc("/auth/authorize", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/auth/{username}", authHandler.Status).Methods(http.MethodGet)
	api.HandleFunc("/auth/{username}", handleOptions).Methods(http.MethodOptions)

	api.HandleFunc("/catalog/{mediaType}/{source}", catalogHandler.GetCatalog).Methods(http.MethodGet)
	api.HandleFunc("/catalog/{mediaType}/{source}", handleOptions).Methods(http.MethodOptions)

	api.HandleFunc("/history/{username}", historyHandler.ListHistory).Methods(http.MethodGet)
	api.HandleFunc("/history/{username}", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/history/{username}/sync", historyHandler.SyncHistory).Methods(http.MethodPost)
	api.HandleFunc("/history/{username}/sync", handleOptions).Methods(http.MethodOptions)
}
