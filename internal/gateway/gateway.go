package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"showdeck/internal/cache"
)

// StatusError is a non-2xx upstream response. The gateway never retries or
// recovers these; callers own any refresh/retry protocol.
type StatusError struct {
	Code int
	Body []byte
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned %d for %s", e.Code, e.URL)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

// Request describes one outbound call.
type Request struct {
	Method string
	URL    string
	Scope  string // cache auth scope: cache.ScopePublic or a username
	Body   []byte
	Header http.Header

	// NoCache bypasses the response cache entirely (token endpoints).
	NoCache bool
}

// Queue is one rate-limited request lane for a single upstream service and
// verb class. It enforces a concurrency ceiling and a request-rate ceiling;
// calls beyond either wait in submission order. Responses are cached with
// the queue's TTL; cache hits never enter the queue.
type Queue struct {
	name    string
	client  *http.Client
	store   *cache.Store
	ttl     time.Duration
	sem     chan struct{}
	limiter *rate.Limiter
}

// Config for one queue.
type Config struct {
	Name          string
	MaxConcurrent int
	Limit         rate.Limit
	Burst         int
	TTL           time.Duration
	Store         *cache.Store
	Client        *http.Client
}

// NewQueue creates a queue. Store may be nil to run uncached.
func NewQueue(cfg Config) *Queue {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Queue{
		name:    cfg.Name,
		client:  cfg.Client,
		store:   cfg.Store,
		ttl:     cfg.TTL,
		sem:     make(chan struct{}, cfg.MaxConcurrent),
		limiter: rate.NewLimiter(cfg.Limit, cfg.Burst),
	}
}

// Do executes the request, checking the cache first. On success the body is
// cached with the queue TTL. Non-2xx responses return *StatusError; network
// failures propagate unretried.
func (q *Queue) Do(ctx context.Context, req Request) ([]byte, error) {
	key := cache.RequestKey(req.Method, req.Scope, req.URL, req.Body)

	if !req.NoCache && q.store != nil {
		if value, ok := q.store.Get(key); ok {
			return []byte(value), nil
		}
	}

	select {
	case q.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-q.sem }()

	if err := q.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := q.roundTrip(ctx, req)
	if err != nil {
		return nil, err
	}

	if !req.NoCache && q.store != nil {
		q.store.Set(key, string(body), q.ttl)
	}
	return body, nil
}

func (q *Queue) roundTrip(ctx context.Context, req Request) ([]byte, error) {
	var reader io.Reader
	if len(req.Body) > 0 {
		reader = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := q.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", q.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", q.name, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Body: body, URL: req.URL}
	}
	return body, nil
}
