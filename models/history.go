package models

import "time"

// HistoryEntry mirrors one watched title from the upstream service. Logical
// key is (username, imdb_id); watched_at always reflects the latest known
// watch event.
type HistoryEntry struct {
	Username  string    `json:"username"`
	IMDBID    string    `json:"imdbId"`
	TMDBID    int64     `json:"tmdbId"`
	Type      string    `json:"type"` // "movie" or "show"
	WatchedAt time.Time `json:"watchedAt"`
	Title     string    `json:"title"`
}
