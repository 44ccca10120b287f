package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"showdeck/internal/cache"
	"showdeck/internal/gateway"
	"showdeck/models"
)

const fanartBaseURL = "https://webservice.fanart.tv/v3"

// FanartClient resolves title logos from fanart.tv. It is an optional
// collaborator: callers treat a failed lookup as "no logo", never as a
// page failure.
type FanartClient struct {
	queue   *gateway.Queue
	baseURL string
	apiKey  string
}

// NewFanartClient creates a fanart.tv client over the given queue.
func NewFanartClient(queue *gateway.Queue, apiKey string) *FanartClient {
	return &FanartClient{
		queue:   queue,
		baseURL: fanartBaseURL,
		apiKey:  strings.TrimSpace(apiKey),
	}
}

// SetBaseURL overrides the API base URL (tests).
func (c *FanartClient) SetBaseURL(base string) {
	c.baseURL = base
}

// IsConfigured reports whether an API key is present.
func (c *FanartClient) IsConfigured() bool {
	return c != nil && c.apiKey != ""
}

type fanartImage struct {
	URL  string `json:"url"`
	Lang string `json:"lang"`
}

type fanartResponse struct {
	HDMovieLogo []fanartImage `json:"hdmovielogo"`
	MovieLogo   []fanartImage `json:"movielogo"`
	HDTVLogo    []fanartImage `json:"hdtvlogo"`
	ClearLogo   []fanartImage `json:"clearlogo"`
}

// Logo returns the best available logo URL for a title, preferring HD and
// English variants. An empty string means no logo.
func (c *FanartClient) Logo(ctx context.Context, mediaType string, id int64) (string, error) {
	if !c.IsConfigured() || id <= 0 {
		return "", nil
	}

	segment := "movies"
	if mediaType == models.MediaTypeShow {
		segment = "tv"
	}
	endpoint := fmt.Sprintf("%s/%s/%d?api_key=%s", c.baseURL, segment, id, c.apiKey)

	body, err := c.queue.Do(ctx, gateway.Request{
		Method: http.MethodGet,
		URL:    endpoint,
		Scope:  cache.ScopePublic,
	})
	if gateway.IsStatus(err, http.StatusNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	var resp fanartResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode fanart response: %w", err)
	}

	for _, set := range [][]fanartImage{resp.HDMovieLogo, resp.HDTVLogo, resp.MovieLogo, resp.ClearLogo} {
		if url := pickLogo(set); url != "" {
			return url, nil
		}
	}
	return "", nil
}

func pickLogo(images []fanartImage) string {
	var fallback string
	for _, img := range images {
		if img.URL == "" {
			continue
		}
		if img.Lang == "en" {
			return img.URL
		}
		if fallback == "" {
			fallback = img.URL
		}
	}
	return fallback
}
