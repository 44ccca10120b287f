package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"
	"gopkg.in/natefinch/lumberjack.v2"

	"showdeck/api"
	"showdeck/config"
	"showdeck/handlers"
	"showdeck/internal/cache"
	"showdeck/internal/database"
	"showdeck/internal/gateway"
	"showdeck/services/catalog"
	"showdeck/services/history"
	"showdeck/services/metadata"
	"showdeck/services/trakt"
)

func main() {
	portOverride := flag.Int("port", 0, "override server port from config")
	flag.Parse()

	configPath := os.Getenv("SHOWDECK_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("cache", "settings.json")
	}

	// Load settings (creates defaults if missing). Malformed TTL strings
	// fail here rather than being silently defaulted.
	cfgManager := config.NewManager(configPath)
	settings, err := cfgManager.Load()
	if err != nil {
		log.Fatalf("failed to load settings: %v", err)
	}

	// Set up file logging with rotation
	if settings.Log.File != "" {
		logDir := filepath.Dir(settings.Log.File)
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			log.Printf("Warning: could not create log directory %s: %v", logDir, err)
		} else {
			fileWriter := &lumberjack.Logger{
				Filename:   settings.Log.File,
				MaxSize:    settings.Log.MaxSize,
				MaxBackups: settings.Log.MaxBackups,
				MaxAge:     settings.Log.MaxAge,
				Compress:   settings.Log.Compress,
			}
			log.SetOutput(io.MultiWriter(os.Stdout, fileWriter))
			log.SetFlags(log.LstdFlags | log.Lshortfile)
			log.Printf("Logging to file: %s", settings.Log.File)
		}
	}

	if *portOverride > 0 {
		settings.Server.Port = *portOverride
	}

	metadataTTL, err := settings.MetadataTTL()
	if err != nil {
		log.Fatalf("invalid metadata TTL: %v", err)
	}
	listTTL, err := settings.ListTTL()
	if err != nil {
		log.Fatalf("invalid list TTL: %v", err)
	}
	syncInterval, err := settings.SyncInterval()
	if err != nil {
		log.Fatalf("invalid sync interval: %v", err)
	}

	db, err := database.NewDB(database.Config{DatabasePath: settings.Database.Path})
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	credRepo := database.NewCredentialRepository(db.Connection())
	historyRepo := database.NewHistoryRepository(db.Connection())

	// Response cache is fail-open: a broken store degrades to pass-through
	// and recovers in the background.
	store := cache.Open(settings.Cache.Directory)
	defer store.Close()

	traktGetRate, traktGetBurst := settings.Queues.TraktGET.Rate()
	traktGetQueue := gateway.NewQueue(gateway.Config{
		Name:          "trakt-get",
		MaxConcurrent: settings.Queues.TraktGET.Concurrent,
		Limit:         rate.Limit(traktGetRate),
		Burst:         traktGetBurst,
		TTL:           listTTL,
		Store:         store,
	})
	traktPostRate, traktPostBurst := settings.Queues.TraktPOST.Rate()
	traktPostQueue := gateway.NewQueue(gateway.Config{
		Name:          "trakt-post",
		MaxConcurrent: settings.Queues.TraktPOST.Concurrent,
		Limit:         rate.Limit(traktPostRate),
		Burst:         traktPostBurst,
	})
	tmdbRate, tmdbBurst := settings.Queues.TMDB.Rate()
	tmdbQueue := gateway.NewQueue(gateway.Config{
		Name:          "tmdb",
		MaxConcurrent: settings.Queues.TMDB.Concurrent,
		Limit:         rate.Limit(tmdbRate),
		Burst:         tmdbBurst,
	})
	fanartQueue := gateway.NewQueue(gateway.Config{
		Name:          "fanart",
		MaxConcurrent: settings.Queues.TMDB.Concurrent,
		Limit:         rate.Limit(tmdbRate),
		Burst:         tmdbBurst,
		TTL:           metadataTTL,
		Store:         store,
	})

	traktClient := trakt.NewClient(traktGetQueue, traktPostQueue, settings.Trakt.ClientID, settings.Trakt.ClientSecret)
	traktAuth := trakt.NewAuth(traktClient, credRepo)

	tmdbClient := metadata.NewTMDBClient(tmdbQueue, store, metadataTTL, settings.Metadata.TMDBAPIKey, settings.Metadata.Language)
	fanartClient := metadata.NewFanartClient(fanartQueue, settings.Metadata.FanartKey)

	historyService := history.NewService(traktClient, traktAuth, credRepo, historyRepo, syncInterval, settings.History.Marker)
	catalogService := catalog.NewService(traktClient, traktAuth, tmdbClient, fanartClient)

	r := mux.NewRouter()
	api.Register(r,
		handlers.NewCatalogHandler(catalogService, historyService),
		handlers.NewAuthHandler(traktAuth, credRepo),
		handlers.NewHistoryHandler(historyService),
		handlers.NewHealthHandler(store),
	)

	addr := fmt.Sprintf("%s:%d", settings.Server.Host, settings.Server.Port)
	fmt.Printf("Server starting on %s\n", addr)

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-shutdownChan
	log.Println("Shutdown signal received, cleaning up...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Shutdown complete")
}
