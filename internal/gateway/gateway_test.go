package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"showdeck/internal/cache"
)

func newTestQueue(t *testing.T, cfg Config) *Queue {
	t.Helper()
	if cfg.Store == nil && cfg.TTL > 0 {
		store := cache.Open(t.TempDir())
		t.Cleanup(func() { store.Close() })
		cfg.Store = store
	}
	if cfg.Limit == 0 {
		cfg.Limit = rate.Inf
	}
	if cfg.MaxConcurrent == 0 {
		cfg.MaxConcurrent = 4
	}
	return NewQueue(cfg)
}

func TestQueueDo_CacheHitSkipsUpstream(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	q := newTestQueue(t, Config{Name: "test", TTL: time.Minute})
	req := Request{Method: http.MethodGet, URL: srv.URL + "/resource", Scope: cache.ScopePublic}

	for i := 0; i < 5; i++ {
		body, err := q.Do(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, `{"ok":true}`, string(body))
	}

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "repeat identical requests must hit the cache")
}

func TestQueueDo_ScopesDoNotShareCache(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	q := newTestQueue(t, Config{Name: "test", TTL: time.Minute})

	_, err := q.Do(context.Background(), Request{Method: http.MethodGet, URL: srv.URL, Scope: "alice"})
	require.NoError(t, err)
	_, err = q.Do(context.Background(), Request{Method: http.MethodGet, URL: srv.URL, Scope: "bob"})
	require.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls), "per-user scopes must not share cached responses")
}

func TestQueueDo_NoCacheBypassesStore(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte("token"))
	}))
	defer srv.Close()

	q := newTestQueue(t, Config{Name: "test", TTL: time.Minute})
	req := Request{Method: http.MethodPost, URL: srv.URL + "/oauth/token", Scope: cache.ScopePublic, NoCache: true}

	for i := 0; i < 3; i++ {
		_, err := q.Do(context.Background(), req)
		require.NoError(t, err)
	}

	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestQueueDo_ErrorsAreNotCached(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	q := newTestQueue(t, Config{Name: "test", TTL: time.Minute})
	req := Request{Method: http.MethodGet, URL: srv.URL, Scope: cache.ScopePublic}

	_, err := q.Do(context.Background(), req)
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusServiceUnavailable))

	body, err := q.Do(context.Background(), req)
	require.NoError(t, err, "a failed response must not poison the cache")
	assert.Equal(t, "ok", string(body))
}

func TestQueueDo_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid_token"}`))
	}))
	defer srv.Close()

	q := newTestQueue(t, Config{Name: "test"})

	_, err := q.Do(context.Background(), Request{Method: http.MethodGet, URL: srv.URL, Scope: cache.ScopePublic})
	require.Error(t, err)

	assert.True(t, IsStatus(err, http.StatusUnauthorized))
	assert.False(t, IsStatus(err, http.StatusNotFound))

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, `{"error":"invalid_token"}`, string(se.Body))
}

func TestQueueDo_ConcurrencyCeiling(t *testing.T) {
	var (
		mu      sync.Mutex
		current int
		peak    int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		current++
		if current > peak {
			peak = current
		}
		mu.Unlock()

		time.Sleep(20 * time.Millisecond)

		mu.Lock()
		current--
		mu.Unlock()
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	q := newTestQueue(t, Config{Name: "test", MaxConcurrent: 2})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := q.Do(context.Background(), Request{Method: http.MethodGet, URL: srv.URL, Scope: cache.ScopePublic, NoCache: true})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, peak, 2, "in-flight requests must respect the concurrency ceiling")
}

func TestQueueDo_RateCeiling(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	// 10 req/sec with burst 1: 4 sequential calls need ~300ms of waiting.
	q := newTestQueue(t, Config{Name: "test", Limit: 10, Burst: 1, MaxConcurrent: 4})

	start := time.Now()
	for i := 0; i < 4; i++ {
		_, err := q.Do(context.Background(), Request{Method: http.MethodGet, URL: srv.URL, Scope: cache.ScopePublic, NoCache: true})
		require.NoError(t, err)
	}
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 250*time.Millisecond, "calls beyond the rate must wait")
}

func TestQueueDo_ContextCancelledWhileQueued(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Write([]byte("ok"))
	}))
	defer srv.Close()
	defer close(release)

	q := newTestQueue(t, Config{Name: "test", MaxConcurrent: 1})

	// Occupy the only slot.
	go q.Do(context.Background(), Request{Method: http.MethodGet, URL: srv.URL, Scope: cache.ScopePublic, NoCache: true})
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := q.Do(ctx, Request{Method: http.MethodGet, URL: srv.URL, Scope: cache.ScopePublic, NoCache: true})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
