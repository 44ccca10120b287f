package models

import "time"

// Media types used throughout the catalog pipeline.
const (
	MediaTypeMovie = "movie"
	MediaTypeShow  = "show"
)

// SourceKind selects which upstream feed a catalog page is built from.
type SourceKind string

const (
	SourceWatchlist       SourceKind = "watchlist"
	SourceRecommendations SourceKind = "recommendations"
	SourceTrending        SourceKind = "trending"
	SourcePopular         SourceKind = "popular"
	SourceList            SourceKind = "list"
)

// IDs holds external identifiers for a media item.
type IDs struct {
	Trakt int    `json:"trakt,omitempty"`
	Slug  string `json:"slug,omitempty"`
	IMDB  string `json:"imdb,omitempty"`
	TMDB  int64  `json:"tmdb,omitempty"`
	TVDB  int    `json:"tvdb,omitempty"`
}

// ListEntry is one raw item from an upstream list before enrichment.
// Rank and ListedAt are only populated for watchlist/list sources.
type ListEntry struct {
	Rank     int       `json:"rank,omitempty"`
	ListedAt time.Time `json:"listed_at,omitempty"`
	Type     string    `json:"type"`
	Title    string    `json:"title"`
	Year     int       `json:"year"`
	IDs      IDs       `json:"ids"`
}

// CatalogItem is one enriched display item. Owned by the caller; never
// persisted by this core.
type CatalogItem struct {
	ID          string   `json:"id"`
	Type        string   `json:"type"`
	Name        string   `json:"name"`
	Year        int      `json:"year,omitempty"`
	Poster      string   `json:"poster,omitempty"`
	Logo        string   `json:"logo,omitempty"`
	Background  string   `json:"background,omitempty"`
	Overview    string   `json:"description,omitempty"`
	ReleaseDate string   `json:"releaseInfo,omitempty"`
	Rating      float64  `json:"imdbRating,omitempty"`
	Genres      []string `json:"genres,omitempty"`
	Runtime     int      `json:"runtime,omitempty"`
	IDs         IDs      `json:"ids"`
}
