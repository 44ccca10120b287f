package trakt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"showdeck/internal/cache"
	"showdeck/internal/gateway"
	"showdeck/models"
)

const (
	defaultBaseURL  = "https://api.trakt.tv"
	traktAPIVersion = "2"

	// Trakt caps list endpoints at 100 items per page.
	maxPageLimit = 100
)

// Client handles Trakt API interactions for OAuth and data fetching. All
// calls go through the rate-limited gateway queues; GET and POST have
// independent ceilings.
type Client struct {
	getQueue     *gateway.Queue
	postQueue    *gateway.Queue
	baseURL      string
	clientID     string
	clientSecret string
}

// NewClient creates a Trakt client over the given queues.
func NewClient(getQueue, postQueue *gateway.Queue, clientID, clientSecret string) *Client {
	return &Client{
		getQueue:     getQueue,
		postQueue:    postQueue,
		baseURL:      defaultBaseURL,
		clientID:     clientID,
		clientSecret: clientSecret,
	}
}

// SetBaseURL overrides the API base URL (tests).
func (c *Client) SetBaseURL(base string) {
	c.baseURL = base
}

// HasCredentials checks if the client has API credentials configured.
func (c *Client) HasCredentials() bool {
	return c.clientID != "" && c.clientSecret != ""
}

// headers returns the required Trakt API headers.
func (c *Client) headers(accessToken string) http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("trakt-api-version", traktAPIVersion)
	h.Set("trakt-api-key", c.clientID)
	if accessToken != "" {
		h.Set("Authorization", "Bearer "+accessToken)
	}
	return h
}

// tokenResponse is the wire shape of /oauth/token responses.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
	CreatedAt    int64  `json:"created_at"`
}

// ExchangeCode trades an authorization code for a token pair. Never cached:
// each code is single-use.
func (c *Client) ExchangeCode(ctx context.Context, code string) (models.TokenPair, error) {
	payload := map[string]string{
		"code":          code,
		"client_id":     c.clientID,
		"client_secret": c.clientSecret,
		"redirect_uri":  "urn:ietf:wg:oauth:2.0:oob",
		"grant_type":    "authorization_code",
	}
	return c.tokenRequest(ctx, payload)
}

// RefreshToken trades a refresh token for a new token pair. Never cached.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (models.TokenPair, error) {
	payload := map[string]string{
		"refresh_token": refreshToken,
		"client_id":     c.clientID,
		"client_secret": c.clientSecret,
		"redirect_uri":  "urn:ietf:wg:oauth:2.0:oob",
		"grant_type":    "refresh_token",
	}
	return c.tokenRequest(ctx, payload)
}

func (c *Client) tokenRequest(ctx context.Context, payload map[string]string) (models.TokenPair, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("marshal request: %w", err)
	}

	respBody, err := c.postQueue.Do(ctx, gateway.Request{
		Method:  http.MethodPost,
		URL:     c.baseURL + "/oauth/token",
		Scope:   cache.ScopePublic,
		Body:    body,
		Header:  c.headers(""),
		NoCache: true,
	})
	if err != nil {
		return models.TokenPair{}, err
	}

	var token tokenResponse
	if err := json.Unmarshal(respBody, &token); err != nil {
		return models.TokenPair{}, fmt.Errorf("decode token response: %w", err)
	}
	return models.TokenPair{AccessToken: token.AccessToken, RefreshToken: token.RefreshToken}, nil
}

// listedItem is the wire shape of watchlist/list items.
type listedItem struct {
	Rank     int        `json:"rank"`
	ListedAt time.Time  `json:"listed_at"`
	Type     string     `json:"type"`
	Movie    *wireTitle `json:"movie,omitempty"`
	Show     *wireTitle `json:"show,omitempty"`
}

// wrappedItem is the wire shape of trending items ({watchers, movie|show}).
type wrappedItem struct {
	Watchers int        `json:"watchers"`
	Movie    *wireTitle `json:"movie,omitempty"`
	Show     *wireTitle `json:"show,omitempty"`
}

type wireTitle struct {
	Title string `json:"title"`
	Year  int    `json:"year"`
	IDs   struct {
		Trakt int    `json:"trakt,omitempty"`
		Slug  string `json:"slug,omitempty"`
		IMDB  string `json:"imdb,omitempty"`
		TMDB  int64  `json:"tmdb,omitempty"`
		TVDB  int    `json:"tvdb,omitempty"`
	} `json:"ids"`
}

// watchedItem is the wire shape of /users/me/watched entries.
type watchedItem struct {
	Plays         int        `json:"plays"`
	LastWatchedAt time.Time  `json:"last_watched_at"`
	Movie         *wireTitle `json:"movie,omitempty"`
	Show          *wireTitle `json:"show,omitempty"`
}

func (t *wireTitle) ids() models.IDs {
	return models.IDs{
		Trakt: t.IDs.Trakt,
		Slug:  t.IDs.Slug,
		IMDB:  t.IDs.IMDB,
		TMDB:  t.IDs.TMDB,
		TVDB:  t.IDs.TVDB,
	}
}

func (i listedItem) entry() (models.ListEntry, bool) {
	title := i.Movie
	entryType := models.MediaTypeMovie
	if title == nil {
		title = i.Show
		entryType = models.MediaTypeShow
	}
	if title == nil {
		return models.ListEntry{}, false
	}
	return models.ListEntry{
		Rank:     i.Rank,
		ListedAt: i.ListedAt,
		Type:     entryType,
		Title:    title.Title,
		Year:     title.Year,
		IDs:      title.ids(),
	}, true
}

func (i wrappedItem) entry() (models.ListEntry, bool) {
	title := i.Movie
	entryType := models.MediaTypeMovie
	if title == nil {
		title = i.Show
		entryType = models.MediaTypeShow
	}
	if title == nil {
		return models.ListEntry{}, false
	}
	return models.ListEntry{
		Type:  entryType,
		Title: title.Title,
		Year:  title.Year,
		IDs:   title.ids(),
	}, true
}

// PageParams carries upstream pagination and filtering.
type PageParams struct {
	Page  int
	Limit int
	Genre string
}

func (p PageParams) query() url.Values {
	q := url.Values{}
	if p.Page > 0 {
		q.Set("page", fmt.Sprint(p.Page))
	}
	if p.Limit > 0 {
		q.Set("limit", fmt.Sprint(p.Limit))
	}
	if p.Genre != "" {
		q.Set("genres", p.Genre)
	}
	return q
}

// mediaTypePath maps a media type to the plural path segment Trakt uses.
func mediaTypePath(mediaType string) string {
	if mediaType == models.MediaTypeShow {
		return "shows"
	}
	return "movies"
}

func (c *Client) get(ctx context.Context, endpoint, scope, accessToken string, params url.Values, v any) error {
	u := c.baseURL + endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	body, err := c.getQueue.Do(ctx, gateway.Request{
		Method: http.MethodGet,
		URL:    u,
		Scope:  scope,
		Header: c.headers(accessToken),
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode trakt response: %w", err)
	}
	return nil
}

// Watchlist retrieves one page of the user's watchlist.
func (c *Client) Watchlist(ctx context.Context, username, accessToken, mediaType string, params PageParams) ([]models.ListEntry, error) {
	var items []listedItem
	endpoint := "/users/me/watchlist/" + mediaTypePath(mediaType)
	if err := c.get(ctx, endpoint, username, accessToken, params.query(), &items); err != nil {
		return nil, err
	}
	return listedEntries(items), nil
}

// Recommendations retrieves personalized recommendations.
func (c *Client) Recommendations(ctx context.Context, username, accessToken, mediaType string, params PageParams) ([]models.ListEntry, error) {
	var titles []wireTitle
	endpoint := "/recommendations/" + mediaTypePath(mediaType)
	if err := c.get(ctx, endpoint, username, accessToken, params.query(), &titles); err != nil {
		return nil, err
	}

	entries := make([]models.ListEntry, 0, len(titles))
	for i := range titles {
		entries = append(entries, models.ListEntry{
			Type:  mediaType,
			Title: titles[i].Title,
			Year:  titles[i].Year,
			IDs:   titles[i].ids(),
		})
	}
	return entries, nil
}

// Trending retrieves the public trending feed.
func (c *Client) Trending(ctx context.Context, mediaType string, params PageParams) ([]models.ListEntry, error) {
	var items []wrappedItem
	endpoint := "/" + mediaTypePath(mediaType) + "/trending"
	if err := c.get(ctx, endpoint, cache.ScopePublic, "", params.query(), &items); err != nil {
		return nil, err
	}
	return wrappedEntries(items), nil
}

// Popular retrieves the public popular feed. Popular responses are bare
// title arrays rather than wrapped items.
func (c *Client) Popular(ctx context.Context, mediaType string, params PageParams) ([]models.ListEntry, error) {
	var titles []wireTitle
	endpoint := "/" + mediaTypePath(mediaType) + "/popular"
	if err := c.get(ctx, endpoint, cache.ScopePublic, "", params.query(), &titles); err != nil {
		return nil, err
	}

	entries := make([]models.ListEntry, 0, len(titles))
	for i := range titles {
		entries = append(entries, models.ListEntry{
			Type:  mediaType,
			Title: titles[i].Title,
			Year:  titles[i].Year,
			IDs:   titles[i].ids(),
		})
	}
	return entries, nil
}

// ListItems retrieves one page of an arbitrary named list.
func (c *Client) ListItems(ctx context.Context, listID, mediaType string, params PageParams) ([]models.ListEntry, error) {
	var items []listedItem
	endpoint := fmt.Sprintf("/lists/%s/items/%s", url.PathEscape(listID), mediaTypePath(mediaType))
	if err := c.get(ctx, endpoint, cache.ScopePublic, "", params.query(), &items); err != nil {
		return nil, err
	}
	return listedEntries(items), nil
}

// AllListItems retrieves the complete named list (all pages). Used when a
// local sort disables upstream pagination.
func (c *Client) AllListItems(ctx context.Context, listID, mediaType string) ([]models.ListEntry, error) {
	var all []models.ListEntry
	page := 1
	for {
		items, err := c.ListItems(ctx, listID, mediaType, PageParams{Page: page, Limit: maxPageLimit})
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
		if len(items) < maxPageLimit {
			break
		}
		page++
	}
	return all, nil
}

// WatchedMovies retrieves the user's complete watched-movies history.
func (c *Client) WatchedMovies(ctx context.Context, username, accessToken string) ([]models.HistoryEntry, error) {
	return c.watched(ctx, username, accessToken, models.MediaTypeMovie)
}

// WatchedShows retrieves the user's complete watched-shows history.
func (c *Client) WatchedShows(ctx context.Context, username, accessToken string) ([]models.HistoryEntry, error) {
	return c.watched(ctx, username, accessToken, models.MediaTypeShow)
}

func (c *Client) watched(ctx context.Context, username, accessToken, mediaType string) ([]models.HistoryEntry, error) {
	var items []watchedItem
	endpoint := "/users/me/watched/" + mediaTypePath(mediaType)
	if err := c.get(ctx, endpoint, username, accessToken, nil, &items); err != nil {
		return nil, err
	}

	entries := make([]models.HistoryEntry, 0, len(items))
	for _, item := range items {
		title := item.Movie
		if title == nil {
			title = item.Show
		}
		if title == nil {
			continue
		}
		entries = append(entries, models.HistoryEntry{
			Username:  username,
			IMDBID:    title.IDs.IMDB,
			TMDBID:    title.IDs.TMDB,
			Type:      mediaType,
			WatchedAt: item.LastWatchedAt.UTC(),
			Title:     title.Title,
		})
	}
	return entries, nil
}

func listedEntries(items []listedItem) []models.ListEntry {
	entries := make([]models.ListEntry, 0, len(items))
	for _, item := range items {
		if entry, ok := item.entry(); ok {
			entries = append(entries, entry)
		}
	}
	return entries
}

func wrappedEntries(items []wrappedItem) []models.ListEntry {
	entries := make([]models.ListEntry, 0, len(items))
	for _, item := range items {
		if entry, ok := item.entry(); ok {
			entries = append(entries, entry)
		}
	}
	return entries
}
