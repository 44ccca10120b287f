package models

import "time"

// Credential is one user's Trakt token pair. One row per username; the pair
// is replaced wholesale on refresh. LastFetchedAt is the history
// synchronizer's cooldown stamp and is nil until the first successful sync.
type Credential struct {
	ID            string     `json:"id"`
	Username      string     `json:"username"`
	AccessToken   string     `json:"accessToken"`
	RefreshToken  string     `json:"refreshToken"`
	LastFetchedAt *time.Time `json:"lastFetchedAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// TokenPair is the result of a code exchange or refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}
