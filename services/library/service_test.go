package library

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/gorilla/mux"

	"myvod/api"
	"myvod/models"
	"myvod/services/cache"
)

func newTestLibrary(t *testing.T, handler http.Handler) (*Service, *cache.Store) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := api.NewClient(srv.URL)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	store := cache.NewStore()
	return NewService(client, store), store
}

func TestRepeatedReadsAreServedFromCache(t *testing.T) {
	var calls int32
	r := mux.NewRouter()
	r.HandleFunc("/user-movies/", func(w http.ResponseWriter, req *http.Request) {
		atomic.AddInt32(&calls, 1)
		json.NewEncoder(w).Encode([]models.UserMovie{{ID: 1}})
	}).Methods(http.MethodGet)

	svc, _ := newTestLibrary(t, r)
	for i := 0; i < 3; i++ {
		movies, err := svc.UserMovies(context.Background(), models.StatusWatchlist)
		if err != nil {
			t.Fatalf("UserMovies #%d: %v", i, err)
		}
		if len(movies) != 1 {
			t.Fatalf("unexpected listing %v", movies)
		}
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("expected one fetch inside the freshness window, got %d", n)
	}
}

func TestStatusViewsAreCachedSeparately(t *testing.T) {
	var calls int32
	r := mux.NewRouter()
	r.HandleFunc("/user-movies/", func(w http.ResponseWriter, req *http.Request) {
		atomic.AddInt32(&calls, 1)
		json.NewEncoder(w).Encode([]models.UserMovie{})
	}).Methods(http.MethodGet)

	svc, _ := newTestLibrary(t, r)
	ctx := context.Background()
	if _, err := svc.UserMovies(ctx, models.StatusWatchlist); err != nil {
		t.Fatalf("watchlist: %v", err)
	}
	if _, err := svc.UserMovies(ctx, models.StatusWatched); err != nil {
		t.Fatalf("watched: %v", err)
	}
	if _, err := svc.UserMovies(ctx, ""); err != nil {
		t.Fatalf("all: %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Fatalf("each status view has its own entry, expected 3 fetches, got %d", n)
	}
}

func TestWatchedViewRefreshesAfterAMutation(t *testing.T) {
	var calls int32
	r := mux.NewRouter()
	r.HandleFunc("/user-movies/", func(w http.ResponseWriter, req *http.Request) {
		atomic.AddInt32(&calls, 1)
		json.NewEncoder(w).Encode([]models.UserMovie{})
	}).Methods(http.MethodGet)

	svc, store := newTestLibrary(t, r)
	notified := make(chan cache.Key, 1)
	cancel := svc.WatchUserMovies(models.StatusWatched, func(k cache.Key) { notified <- k })
	defer cancel()

	store.ApplyMutation(cache.MutationPatchUserMovie)

	select {
	case key := <-notified:
		if key.String() != cache.UserMoviesKey(models.StatusWatched).String() {
			t.Fatalf("unexpected key %v", key)
		}
	default:
		t.Fatal("expected the observer notified after the invalidation refetch")
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("expected one refetch, got %d", n)
	}
}

func TestShortSearchQueriesAreDisabled(t *testing.T) {
	var calls int32
	r := mux.NewRouter()
	r.PathPrefix("/").HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		atomic.AddInt32(&calls, 1)
		json.NewEncoder(w).Encode([]any{})
	})

	svc, _ := newTestLibrary(t, r)
	results, err := svc.Search(context.Background(), "a")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected an empty result, got %d rows", len(results))
	}
	if n := atomic.LoadInt32(&calls); n != 0 {
		t.Fatalf("a one-rune query must never fetch, got %d requests", n)
	}
}
