package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"showdeck/internal/cache"
	"showdeck/internal/gateway"
	"showdeck/models"
)

const (
	tmdbBaseURL      = "https://api.themoviedb.org/3"
	tmdbImageBaseURL = "https://image.tmdb.org/t/p"

	// w500 is plenty for catalog cards; "original" wastes bandwidth.
	tmdbPosterSize   = "w500"
	tmdbBackdropSize = "w1280"
)

// TMDBClient fetches per-title metadata through its own rate-limited
// gateway queue. Assembled titles are cached under (id, type, language)
// keys with the metadata TTL; the HTTP layer itself is left uncached so a
// given title is stored once, not once per URL variant.
type TMDBClient struct {
	queue    *gateway.Queue
	store    *cache.Store
	ttl      time.Duration
	baseURL  string
	apiKey   string
	language string
}

// NewTMDBClient creates a TMDB metadata client.
func NewTMDBClient(queue *gateway.Queue, store *cache.Store, ttl time.Duration, apiKey, language string) *TMDBClient {
	if language == "" {
		language = "en"
	}
	return &TMDBClient{
		queue:    queue,
		store:    store,
		ttl:      ttl,
		baseURL:  tmdbBaseURL,
		apiKey:   strings.TrimSpace(apiKey),
		language: language,
	}
}

// SetBaseURL overrides the API base URL (tests).
func (c *TMDBClient) SetBaseURL(base string) {
	c.baseURL = base
}

// IsConfigured reports whether an API key is present.
func (c *TMDBClient) IsConfigured() bool {
	return c != nil && c.apiKey != ""
}

// Title is the provider-agnostic metadata for one movie or show.
type Title struct {
	Name        string   `json:"name"`
	Overview    string   `json:"overview"`
	Poster      string   `json:"poster"`
	Backdrop    string   `json:"backdrop"`
	ReleaseDate string   `json:"releaseDate"`
	Rating      float64  `json:"rating"`
	Genres      []string `json:"genres"`
	Runtime     int      `json:"runtime"`
	Year        int      `json:"year"`
}

type tmdbDetailsResponse struct {
	Title        string `json:"title"`
	Name         string `json:"name"`
	Overview     string `json:"overview"`
	PosterPath   string `json:"poster_path"`
	BackdropPath string `json:"backdrop_path"`
	ReleaseDate  string `json:"release_date"`
	FirstAirDate string `json:"first_air_date"`
	VoteAverage  float64 `json:"vote_average"`
	Runtime      int     `json:"runtime"`
	EpisodeRunTime []int `json:"episode_run_time"`
	Genres       []struct {
		Name string `json:"name"`
	} `json:"genres"`
}

// Lookup fetches metadata for a TMDB id and media type, serving repeat
// lookups from the metadata cache.
func (c *TMDBClient) Lookup(ctx context.Context, mediaType string, tmdbID int64) (*Title, error) {
	if !c.IsConfigured() {
		return nil, fmt.Errorf("tmdb api key not configured")
	}
	if tmdbID <= 0 {
		return nil, fmt.Errorf("tmdb id required")
	}

	key := cache.MetadataKey(mediaType, tmdbID, c.language)
	if c.store != nil {
		if raw, ok := c.store.Get(key); ok {
			var title Title
			if err := json.Unmarshal([]byte(raw), &title); err == nil {
				return &title, nil
			}
		}
	}

	segment := "movie"
	if mediaType == models.MediaTypeShow {
		segment = "tv"
	}

	params := url.Values{}
	params.Set("api_key", c.apiKey)
	params.Set("language", c.language)
	endpoint := fmt.Sprintf("%s/%s/%d?%s", c.baseURL, segment, tmdbID, params.Encode())

	body, err := c.queue.Do(ctx, gateway.Request{
		Method: http.MethodGet,
		URL:    endpoint,
		Scope:  cache.ScopePublic,
	})
	if err != nil {
		return nil, err
	}

	var details tmdbDetailsResponse
	if err := json.Unmarshal(body, &details); err != nil {
		return nil, fmt.Errorf("decode tmdb response: %w", err)
	}

	title := assembleTitle(mediaType, details)

	if c.store != nil {
		if raw, err := json.Marshal(title); err == nil {
			c.store.Set(key, string(raw), c.ttl)
		}
	}
	return title, nil
}

func assembleTitle(mediaType string, d tmdbDetailsResponse) *Title {
	name := d.Title
	release := d.ReleaseDate
	runtime := d.Runtime
	if mediaType == models.MediaTypeShow {
		name = d.Name
		release = d.FirstAirDate
		if len(d.EpisodeRunTime) > 0 {
			runtime = d.EpisodeRunTime[0]
		}
	}

	genres := make([]string, 0, len(d.Genres))
	for _, g := range d.Genres {
		genres = append(genres, g.Name)
	}

	return &Title{
		Name:        name,
		Overview:    d.Overview,
		Poster:      buildImageURL(d.PosterPath, tmdbPosterSize),
		Backdrop:    buildImageURL(d.BackdropPath, tmdbBackdropSize),
		ReleaseDate: release,
		Rating:      d.VoteAverage,
		Genres:      genres,
		Runtime:     runtime,
		Year:        parseYear(release),
	}
}

func buildImageURL(path, size string) string {
	if path == "" {
		return ""
	}
	return tmdbImageBaseURL + "/" + size + path
}

func parseYear(date string) int {
	if len(date) < 4 {
		return 0
	}
	var year int
	if _, err := fmt.Sscanf(date[:4], "%d", &year); err != nil {
		return 0
	}
	return year
}
