package history

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"showdeck/internal/database"
	"showdeck/internal/gateway"
	"showdeck/models"
	"showdeck/services/trakt"
)

type testEnv struct {
	svc     *Service
	creds   *database.CredentialRepository
	repo    *database.HistoryRepository
	fetches *int32
}

// newTestEnv wires the service against a sqlite store and a fake watched
// history upstream. fetches counts /users/me/watched/* hits.
func newTestEnv(t *testing.T, cooldown time.Duration, moviesJSON, showsJSON string) *testEnv {
	t.Helper()

	db, err := database.NewDB(database.Config{DatabasePath: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	var fetches int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users/me/watched/movies":
			atomic.AddInt32(&fetches, 1)
			fmt.Fprint(w, moviesJSON)
		case "/users/me/watched/shows":
			atomic.AddInt32(&fetches, 1)
			fmt.Fprint(w, showsJSON)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	getQueue := gateway.NewQueue(gateway.Config{Name: "trakt-get", MaxConcurrent: 8, Limit: rate.Inf})
	postQueue := gateway.NewQueue(gateway.Config{Name: "trakt-post", MaxConcurrent: 8, Limit: rate.Inf})
	client := trakt.NewClient(getQueue, postQueue, "client-id", "client-secret")
	client.SetBaseURL(srv.URL)

	creds := database.NewCredentialRepository(db.Connection())
	repo := database.NewHistoryRepository(db.Connection())
	auth := trakt.NewAuth(client, creds)

	require.NoError(t, creds.Upsert("alice", "token", "refresh"))

	return &testEnv{
		svc:     NewService(client, auth, creds, repo, cooldown, "✔ "),
		creds:   creds,
		repo:    repo,
		fetches: &fetches,
	}
}

const (
	moviesJSON = `[{"plays":1,"last_watched_at":"2026-02-01T21:00:00Z","movie":{"title":"Heat","year":1995,"ids":{"imdb":"tt0113277","tmdb":949}}}]`
	showsJSON  = `[{"plays":4,"last_watched_at":"2026-02-03T21:00:00Z","show":{"title":"Severance","year":2022,"ids":{"imdb":"tt11280740","tmdb":95396}}}]`
)

func TestSync_PersistsAndStamps(t *testing.T) {
	env := newTestEnv(t, 12*time.Hour, moviesJSON, showsJSON)

	require.NoError(t, env.svc.Sync(context.Background(), "alice"))

	count, err := env.repo.Count("alice")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	cred, err := env.creds.Get("alice")
	require.NoError(t, err)
	require.NotNil(t, cred.LastFetchedAt, "successful sync must stamp the cooldown")
	assert.WithinDuration(t, time.Now(), *cred.LastFetchedAt, time.Minute)
}

func TestAnnotate_FirstCallSyncsThenMarks(t *testing.T) {
	env := newTestEnv(t, 12*time.Hour, moviesJSON, showsJSON)

	items := []models.CatalogItem{
		{Name: "Heat", IDs: models.IDs{IMDB: "tt0113277"}},
		{Name: "Ronin", IDs: models.IDs{IMDB: "tt0122690"}},
	}

	annotated, err := env.svc.Annotate(context.Background(), "alice", models.MediaTypeMovie, items)
	require.NoError(t, err)

	require.Len(t, annotated, 2)
	assert.Equal(t, "✔ Heat", annotated[0].Name)
	assert.Equal(t, "Ronin", annotated[1].Name)
	assert.Equal(t, int32(2), atomic.LoadInt32(env.fetches), "first annotate should fetch movies and shows once each")
}

func TestAnnotate_CooldownSkipsFetch(t *testing.T) {
	env := newTestEnv(t, 12*time.Hour, moviesJSON, showsJSON)

	items := []models.CatalogItem{{Name: "Heat", IDs: models.IDs{IMDB: "tt0113277"}}}

	_, err := env.svc.Annotate(context.Background(), "alice", models.MediaTypeMovie, items)
	require.NoError(t, err)
	first := atomic.LoadInt32(env.fetches)

	// Inside the cooldown window: annotate reads persisted state only.
	annotated, err := env.svc.Annotate(context.Background(), "alice", models.MediaTypeMovie,
		[]models.CatalogItem{{Name: "Heat", IDs: models.IDs{IMDB: "tt0113277"}}})
	require.NoError(t, err)

	assert.Equal(t, first, atomic.LoadInt32(env.fetches), "no upstream fetch inside the cooldown")
	assert.Equal(t, "✔ Heat", annotated[0].Name)
}

func TestAnnotate_ElapsedCooldownResyncs(t *testing.T) {
	env := newTestEnv(t, time.Millisecond, moviesJSON, showsJSON)

	_, err := env.svc.Annotate(context.Background(), "alice", models.MediaTypeMovie, nil)
	require.NoError(t, err)
	first := atomic.LoadInt32(env.fetches)

	time.Sleep(5 * time.Millisecond)

	_, err = env.svc.Annotate(context.Background(), "alice", models.MediaTypeMovie, nil)
	require.NoError(t, err)
	assert.Greater(t, atomic.LoadInt32(env.fetches), first, "an elapsed cooldown must trigger a fresh sync")
}

func TestAnnotate_UnauthenticatedPassThrough(t *testing.T) {
	env := newTestEnv(t, 12*time.Hour, moviesJSON, showsJSON)

	items := []models.CatalogItem{{Name: "Heat", IDs: models.IDs{IMDB: "tt0113277"}}}

	annotated, err := env.svc.Annotate(context.Background(), "mallory", models.MediaTypeMovie, items)
	require.NoError(t, err)

	assert.Equal(t, "Heat", annotated[0].Name, "unknown users get unannotated items")
	assert.Equal(t, int32(0), atomic.LoadInt32(env.fetches))
}

func TestAnnotate_FailedSyncUsesPriorState(t *testing.T) {
	env := newTestEnv(t, time.Millisecond, moviesJSON, showsJSON)

	// Seed persisted history with a successful sync.
	require.NoError(t, env.svc.Sync(context.Background(), "alice"))
	cred, err := env.creds.Get("alice")
	require.NoError(t, err)
	stamp := *cred.LastFetchedAt

	time.Sleep(5 * time.Millisecond)

	// Break the upstream; the due sync fails but annotation still works.
	env.svc.client.SetBaseURL("http://127.0.0.1:1")

	annotated, err := env.svc.Annotate(context.Background(), "alice", models.MediaTypeMovie,
		[]models.CatalogItem{{Name: "Heat", IDs: models.IDs{IMDB: "tt0113277"}}})
	require.NoError(t, err, "a failed sync must not fail the catalog request")
	assert.Equal(t, "✔ Heat", annotated[0].Name)

	// The cooldown stamp must not advance on failure.
	cred, err = env.creds.Get("alice")
	require.NoError(t, err)
	assert.True(t, cred.LastFetchedAt.Equal(stamp), "stamp must only advance on success")
}

func TestSync_FailureLeavesStateUntouched(t *testing.T) {
	env := newTestEnv(t, 12*time.Hour, moviesJSON, showsJSON)
	env.svc.client.SetBaseURL("http://127.0.0.1:1")

	err := env.svc.Sync(context.Background(), "alice")
	require.Error(t, err)

	count, cerr := env.repo.Count("alice")
	require.NoError(t, cerr)
	assert.Zero(t, count)

	cred, gerr := env.creds.Get("alice")
	require.NoError(t, gerr)
	assert.Nil(t, cred.LastFetchedAt)
}

func TestAnnotate_RequiresUsername(t *testing.T) {
	env := newTestEnv(t, 12*time.Hour, moviesJSON, showsJSON)

	_, err := env.svc.Annotate(context.Background(), "   ", models.MediaTypeMovie, nil)
	assert.ErrorIs(t, err, ErrUsernameRequired)
}
