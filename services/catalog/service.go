package catalog

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/sourcegraph/conc/pool"

	"showdeck/models"
	"showdeck/services/metadata"
	"showdeck/services/trakt"
)

var (
	ErrUnknownSource   = errors.New("unknown catalog source")
	ErrListIDRequired  = errors.New("list id is required")
	ErrUsernameMissing = errors.New("username required for personalized sources")
)

// Request selects one catalog page.
type Request struct {
	Source    models.SourceKind
	MediaType string
	ListID    string // required for SourceList
	Username  string // required for watchlist/recommendations
	Page      int
	Limit     int
	SortBy    string // rank | listed_at | title | year (named lists only)
	SortHow   string // asc (default) | desc
	Genre     string
}

// Service orchestrates raw list fetches and fans out per-item enrichment.
type Service struct {
	client     *trakt.Client
	auth       *trakt.Auth
	tmdb       *metadata.TMDBClient
	fanart     *metadata.FanartClient
	maxWorkers int
}

// NewService creates the catalog aggregator.
func NewService(client *trakt.Client, auth *trakt.Auth, tmdb *metadata.TMDBClient, fanart *metadata.FanartClient) *Service {
	return &Service{
		client:     client,
		auth:       auth,
		tmdb:       tmdb,
		fanart:     fanart,
		maxWorkers: 10,
	}
}

// FetchPage returns one enriched catalog page. Items whose enrichment fails
// are logged and omitted; the page keeps the remaining items in their
// original relative order.
func (s *Service) FetchPage(ctx context.Context, req Request) ([]models.CatalogItem, error) {
	req = normalize(req)

	entries, err := s.fetchRaw(ctx, req)
	if err != nil {
		return nil, err
	}

	return s.enrich(ctx, req.MediaType, entries), nil
}

func normalize(req Request) Request {
	if req.Page < 1 {
		req.Page = 1
	}
	if req.Limit < 1 {
		req.Limit = 50
	}
	if req.MediaType != models.MediaTypeShow {
		req.MediaType = models.MediaTypeMovie
	}
	req.SortBy = strings.ToLower(strings.TrimSpace(req.SortBy))
	req.SortHow = strings.ToLower(strings.TrimSpace(req.SortHow))
	return req
}

func (s *Service) fetchRaw(ctx context.Context, req Request) ([]models.ListEntry, error) {
	params := trakt.PageParams{Page: req.Page, Limit: req.Limit, Genre: req.Genre}

	switch req.Source {
	case models.SourceWatchlist:
		return s.personalized(ctx, req.Username, func(token string) ([]models.ListEntry, error) {
			return s.client.Watchlist(ctx, req.Username, token, req.MediaType, params)
		})
	case models.SourceRecommendations:
		return s.personalized(ctx, req.Username, func(token string) ([]models.ListEntry, error) {
			return s.client.Recommendations(ctx, req.Username, token, req.MediaType, params)
		})
	case models.SourceTrending:
		return s.client.Trending(ctx, req.MediaType, params)
	case models.SourcePopular:
		return s.client.Popular(ctx, req.MediaType, params)
	case models.SourceList:
		if req.ListID == "" {
			return nil, ErrListIDRequired
		}
		if req.SortBy == "" {
			return s.client.ListItems(ctx, req.ListID, req.MediaType, params)
		}
		// A local sort needs the whole list: upstream pagination is
		// disabled and the window is applied after sorting.
		all, err := s.client.AllListItems(ctx, req.ListID, req.MediaType)
		if err != nil {
			return nil, err
		}
		sortEntries(all, req.SortBy, req.SortHow)
		return window(all, (req.Page-1)*req.Limit, req.Limit), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, req.Source)
	}
}

func (s *Service) personalized(ctx context.Context, username string, fetch func(token string) ([]models.ListEntry, error)) ([]models.ListEntry, error) {
	if strings.TrimSpace(username) == "" {
		return nil, ErrUsernameMissing
	}
	var entries []models.ListEntry
	err := s.auth.Call(ctx, username, func(token string) error {
		var ferr error
		entries, ferr = fetch(token)
		return ferr
	})
	return entries, err
}

// sortEntries sorts in place over rank, listed_at, title (case-insensitive)
// or year. Ascending unless sortHow is "desc"; ties keep input order.
func sortEntries(entries []models.ListEntry, sortBy, sortHow string) {
	desc := sortHow == "desc"

	less := func(i, j int) bool { return false }
	switch sortBy {
	case "rank":
		less = func(i, j int) bool { return entries[i].Rank < entries[j].Rank }
	case "listed_at":
		less = func(i, j int) bool { return entries[i].ListedAt.Before(entries[j].ListedAt) }
	case "title":
		less = func(i, j int) bool {
			return strings.ToLower(entries[i].Title) < strings.ToLower(entries[j].Title)
		}
	case "year":
		less = func(i, j int) bool { return entries[i].Year < entries[j].Year }
	default:
		return
	}

	if desc {
		asc := less
		less = func(i, j int) bool { return asc(j, i) }
	}
	sort.SliceStable(entries, less)
}

func window(entries []models.ListEntry, skip, limit int) []models.ListEntry {
	if skip >= len(entries) {
		return nil
	}
	end := skip + limit
	if end > len(entries) {
		end = len(entries)
	}
	return entries[skip:end]
}

// enrich fans each entry out to the metadata collaborators. A single
// item's failure is logged with its identity and the item is dropped.
func (s *Service) enrich(ctx context.Context, mediaType string, entries []models.ListEntry) []models.CatalogItem {
	results := make([]*models.CatalogItem, len(entries))

	p := pool.New().WithMaxGoroutines(s.maxWorkers)
	for i := range entries {
		i := i // go.mod targets Go >= 1.22 per-iteration semantics; go1.21 toolchain needs the capture
		p.Go(func() {
			item, err := s.enrichOne(ctx, mediaType, entries[i])
			if err != nil {
				log.Printf("[catalog] skipping item %s (%s): %v", entries[i].Title, entries[i].IDs.IMDB, err)
				return
			}
			results[i] = item
		})
	}
	p.Wait()

	items := make([]models.CatalogItem, 0, len(entries))
	for _, item := range results {
		if item != nil {
			items = append(items, *item)
		}
	}
	return items
}

func (s *Service) enrichOne(ctx context.Context, mediaType string, entry models.ListEntry) (*models.CatalogItem, error) {
	item := models.CatalogItem{
		ID:   entry.IDs.IMDB,
		Type: mediaType,
		Name: entry.Title,
		Year: entry.Year,
		IDs:  entry.IDs,
	}
	if item.ID == "" {
		item.ID = entry.IDs.Slug
	}

	if s.tmdb.IsConfigured() && entry.IDs.TMDB > 0 {
		title, err := s.tmdb.Lookup(ctx, mediaType, entry.IDs.TMDB)
		if err != nil {
			return nil, err
		}
		if title.Name != "" {
			item.Name = title.Name
		}
		item.Poster = title.Poster
		item.Background = title.Backdrop
		item.Overview = title.Overview
		item.ReleaseDate = title.ReleaseDate
		item.Rating = title.Rating
		item.Genres = title.Genres
		item.Runtime = title.Runtime
		if title.Year > 0 {
			item.Year = title.Year
		}
	}

	if s.fanart.IsConfigured() {
		// Logo failures are cosmetic; skip quietly.
		if logo, err := s.fanart.Logo(ctx, mediaType, entry.IDs.TMDB); err == nil {
			item.Logo = logo
		}
	}

	return &item, nil
}
