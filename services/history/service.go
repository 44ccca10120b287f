package history

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/sourcegraph/conc/pool"

	"showdeck/internal/database"
	"showdeck/models"
	"showdeck/services/trakt"
)

var ErrUsernameRequired = errors.New("username is required")

// Service reconciles a user's remote watched history into local storage on
// a per-user cooldown and annotates catalog items against it. Annotation is
// eventually consistent: it always reads whatever is persisted, bounded by
// the cooldown interval.
type Service struct {
	client   *trakt.Client
	auth     *trakt.Auth
	creds    *database.CredentialRepository
	repo     *database.HistoryRepository
	cooldown time.Duration
	marker   string
}

// NewService creates the history synchronizer. marker prefixes annotated
// item names; empty means the default checkmark.
func NewService(client *trakt.Client, auth *trakt.Auth, creds *database.CredentialRepository, repo *database.HistoryRepository, cooldown time.Duration, marker string) *Service {
	if marker == "" {
		marker = "✔ "
	}
	return &Service{
		client:   client,
		auth:     auth,
		creds:    creds,
		repo:     repo,
		cooldown: cooldown,
		marker:   marker,
	}
}

// Annotate runs the sync state machine for the user and prefixes the names
// of items present in persisted history. A failed sync is logged and the
// items are still annotated from prior state; the catalog request never
// fails because of it.
func (s *Service) Annotate(ctx context.Context, username, mediaType string, items []models.CatalogItem) ([]models.CatalogItem, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrUsernameRequired
	}

	due, err := s.syncDue(username)
	if errors.Is(err, database.ErrCredentialNotFound) {
		// Unauthenticated user: nothing to sync, nothing to annotate.
		return items, nil
	}
	if err != nil {
		return nil, err
	}
	if due {
		if err := s.Sync(ctx, username); err != nil {
			log.Printf("[history] sync failed for %s: %v", username, err)
		}
	}

	watched, err := s.repo.ListIMDBIDs(username, mediaType)
	if err != nil {
		return nil, err
	}

	for i := range items {
		if watched[items[i].IDs.IMDB] {
			items[i].Name = s.marker + items[i].Name
		}
	}
	return items, nil
}

// syncDue reports whether the cooldown has elapsed since the last
// successful sync.
func (s *Service) syncDue(username string) (bool, error) {
	cred, err := s.creds.Get(username)
	if err != nil {
		return false, err
	}
	if cred.LastFetchedAt == nil {
		return true, nil
	}
	return time.Since(*cred.LastFetchedAt) >= s.cooldown, nil
}

// Sync pulls the user's full watched movies and shows concurrently, writes
// them in one transaction, and stamps the cooldown. The stamp only advances
// on success, so a failed sync retries on the next call.
func (s *Service) Sync(ctx context.Context, username string) error {
	var movies, shows []models.HistoryEntry

	p := pool.New().WithErrors().WithContext(ctx)
	p.Go(func(ctx context.Context) error {
		return s.auth.Call(ctx, username, func(token string) error {
			var err error
			movies, err = s.client.WatchedMovies(ctx, username, token)
			return err
		})
	})
	p.Go(func(ctx context.Context) error {
		return s.auth.Call(ctx, username, func(token string) error {
			var err error
			shows, err = s.client.WatchedShows(ctx, username, token)
			return err
		})
	})
	if err := p.Wait(); err != nil {
		return err
	}

	entries := append(movies, shows...)
	if err := s.repo.UpsertBatch(username, entries); err != nil {
		return err
	}

	if err := s.creds.StampFetched(username, time.Now().UTC()); err != nil {
		return err
	}

	log.Printf("[history] synced %d entries for %s", len(entries), username)
	return nil
}

// List returns the user's locally persisted history.
func (s *Service) List(username string) ([]models.HistoryEntry, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrUsernameRequired
	}
	return s.repo.List(username)
}
