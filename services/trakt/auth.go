package trakt

import (
	"context"
	"fmt"
	"log"

	"golang.org/x/sync/singleflight"

	"showdeck/internal/database"
	"showdeck/internal/gateway"
	"showdeck/models"
)

// Auth is the credential store and refresh controller. It is the single
// point of truth for whether a user's session is valid, and it owns the
// 401 -> refresh -> retry-once protocol so call sites don't duplicate it.
type Auth struct {
	client *Client
	creds  *database.CredentialRepository
	group  singleflight.Group
}

// NewAuth creates the refresh controller over the Trakt client and the
// credential repository.
func NewAuth(client *Client, creds *database.CredentialRepository) *Auth {
	return &Auth{client: client, creds: creds}
}

// Authorize exchanges an authorization code and persists the resulting
// token pair for the username.
func (a *Auth) Authorize(ctx context.Context, username, code string) error {
	pair, err := a.client.ExchangeCode(ctx, code)
	if err != nil {
		return fmt.Errorf("exchange code: %w", err)
	}
	if err := a.creds.Upsert(username, pair.AccessToken, pair.RefreshToken); err != nil {
		return err
	}
	log.Printf("[auth] authorized user %s", username)
	return nil
}

// AccessToken returns the stored access token for a username.
func (a *Auth) AccessToken(username string) (string, error) {
	return a.creds.GetAccessToken(username)
}

// Persist stores a token pair for a username (idempotent upsert).
func (a *Auth) Persist(username string, pair models.TokenPair) error {
	return a.creds.Upsert(username, pair.AccessToken, pair.RefreshToken)
}

// refresh performs a single-flight token refresh for the username.
// Concurrent 401s for the same user await and share one refresh instead of
// racing and invalidating each other's tokens.
func (a *Auth) refresh(ctx context.Context, username string) (models.TokenPair, error) {
	v, err, _ := a.group.Do(username, func() (any, error) {
		cred, err := a.creds.Get(username)
		if err != nil {
			return nil, err
		}

		pair, err := a.client.RefreshToken(ctx, cred.RefreshToken)
		if err != nil {
			return nil, fmt.Errorf("refresh token: %w", err)
		}

		if err := a.creds.Upsert(username, pair.AccessToken, pair.RefreshToken); err != nil {
			return nil, err
		}

		log.Printf("[auth] refreshed token for user %s", username)
		return pair, nil
	})
	if err != nil {
		return models.TokenPair{}, err
	}
	return v.(models.TokenPair), nil
}

// Call runs fn with the user's current access token. On a 401 it refreshes
// the pair and retries fn exactly once with the new token; a second failure
// surfaces to the caller unmodified.
func (a *Auth) Call(ctx context.Context, username string, fn func(accessToken string) error) error {
	token, err := a.creds.GetAccessToken(username)
	if err != nil {
		return err
	}

	err = fn(token)
	if !gateway.IsStatus(err, 401) {
		return err
	}

	pair, refreshErr := a.refresh(ctx, username)
	if refreshErr != nil {
		return refreshErr
	}

	return fn(pair.AccessToken)
}
