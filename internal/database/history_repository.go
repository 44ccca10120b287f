package database

import (
	"database/sql"
	"fmt"

	"showdeck/models"
)

// HistoryRepository persists the locally mirrored watch history.
type HistoryRepository struct {
	db *sql.DB
}

// NewHistoryRepository creates a history repository.
func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// UpsertBatch writes all entries for one sync pass inside a single
// transaction. Any failure rolls the whole batch back so an interrupted
// sync leaves prior state intact.
func (r *HistoryRepository) UpsertBatch(username string, entries []models.HistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin history upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO history (username, imdb_id, tmdb_id, type, watched_at, title)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (username, imdb_id) DO UPDATE SET
			tmdb_id = excluded.tmdb_id,
			type = excluded.type,
			watched_at = excluded.watched_at,
			title = excluded.title`)
	if err != nil {
		return fmt.Errorf("prepare history upsert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if e.IMDBID == "" {
			continue
		}
		if _, err := stmt.Exec(username, e.IMDBID, e.TMDBID, e.Type, e.WatchedAt.UTC(), e.Title); err != nil {
			return fmt.Errorf("upsert history %s/%s: %w", username, e.IMDBID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit history upsert: %w", err)
	}
	return nil
}

// ListIMDBIDs returns the set of imdb ids in a user's persisted history for
// one media type. Used by the annotation step for fast lookup.
func (r *HistoryRepository) ListIMDBIDs(username, mediaType string) (map[string]bool, error) {
	rows, err := r.db.Query(`SELECT imdb_id FROM history WHERE username = ? AND type = ?`, username, mediaType)
	if err != nil {
		return nil, fmt.Errorf("list history ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan history id: %w", err)
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

// List returns all history entries for a user, most recently watched first.
func (r *HistoryRepository) List(username string) ([]models.HistoryEntry, error) {
	rows, err := r.db.Query(`
		SELECT username, imdb_id, tmdb_id, type, watched_at, title
		FROM history WHERE username = ?
		ORDER BY watched_at DESC, imdb_id ASC`, username)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var entries []models.HistoryEntry
	for rows.Next() {
		var e models.HistoryEntry
		if err := rows.Scan(&e.Username, &e.IMDBID, &e.TMDBID, &e.Type, &e.WatchedAt, &e.Title); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		e.WatchedAt = e.WatchedAt.UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Count returns the number of history rows for a user.
func (r *HistoryRepository) Count(username string) (int, error) {
	var n int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM history WHERE username = ?`, username).Scan(&n); err != nil {
		return 0, fmt.Errorf("count history: %w", err)
	}
	return n, nil
}
