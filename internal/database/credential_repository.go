package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"showdeck/models"
)

// ErrCredentialNotFound is returned when no credential row exists for a
// username.
var ErrCredentialNotFound = errors.New("credential not found")

// CredentialRepository persists per-user token pairs.
type CredentialRepository struct {
	db *sql.DB
}

// NewCredentialRepository creates a credential repository.
func NewCredentialRepository(db *sql.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// Upsert stores the token pair for a username, creating the row on first
// authorization and replacing both tokens on subsequent calls. The
// last_fetched_at stamp is preserved across refreshes.
func (r *CredentialRepository) Upsert(username, accessToken, refreshToken string) error {
	now := time.Now().UTC()
	_, err := r.db.Exec(`
		INSERT INTO credentials (id, username, access_token, refresh_token, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (username) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			updated_at = excluded.updated_at`,
		uuid.NewString(), username, accessToken, refreshToken, now, now)
	if err != nil {
		return fmt.Errorf("upsert credential: %w", err)
	}
	return nil
}

// Get returns the credential for a username, or ErrCredentialNotFound.
func (r *CredentialRepository) Get(username string) (*models.Credential, error) {
	var (
		cred        models.Credential
		lastFetched sql.NullTime
	)
	err := r.db.QueryRow(`
		SELECT id, username, access_token, refresh_token, last_fetched_at, created_at, updated_at
		FROM credentials WHERE username = ?`, username).
		Scan(&cred.ID, &cred.Username, &cred.AccessToken, &cred.RefreshToken,
			&lastFetched, &cred.CreatedAt, &cred.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCredentialNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}
	if lastFetched.Valid {
		t := lastFetched.Time.UTC()
		cred.LastFetchedAt = &t
	}
	return &cred, nil
}

// GetAccessToken returns just the access token for a username.
func (r *CredentialRepository) GetAccessToken(username string) (string, error) {
	var token string
	err := r.db.QueryRow(`SELECT access_token FROM credentials WHERE username = ?`, username).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrCredentialNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get access token: %w", err)
	}
	return token, nil
}

// StampFetched records the time of the last successful history sync.
func (r *CredentialRepository) StampFetched(username string, t time.Time) error {
	res, err := r.db.Exec(`UPDATE credentials SET last_fetched_at = ?, updated_at = ? WHERE username = ?`,
		t.UTC(), time.Now().UTC(), username)
	if err != nil {
		return fmt.Errorf("stamp credential: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("stamp credential: %w", err)
	}
	if affected == 0 {
		return ErrCredentialNotFound
	}
	return nil
}
