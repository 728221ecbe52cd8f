package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func countingFetcher(calls *int32, value any) Fetcher {
	return func(ctx context.Context) (any, error) {
		atomic.AddInt32(calls, 1)
		return value, nil
	}
}

func TestFreshEntryIsServedWithoutFetching(t *testing.T) {
	store := NewStore()
	var calls int32
	fetcher := countingFetcher(&calls, "value")
	opts := Options{StaleTime: time.Minute}

	res, err := store.Query(context.Background(), UserProfileKey(), fetcher, opts)
	if err != nil {
		t.Fatalf("first query: %v", err)
	}
	if res.FromCache {
		t.Fatal("first query should not come from cache")
	}

	res, err = store.Query(context.Background(), UserProfileKey(), fetcher, opts)
	if err != nil {
		t.Fatalf("second query: %v", err)
	}
	if !res.FromCache || res.Stale {
		t.Fatalf("expected a fresh cached result, got %+v", res)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("expected 1 fetch, got %d", n)
	}
}

func TestConcurrentQueriesCollapseIntoOneFetch(t *testing.T) {
	store := NewStore()
	var calls int32
	release := make(chan struct{})
	fetcher := func(ctx context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "value", nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := store.Query(context.Background(), PlatformsKey(), fetcher, Options{StaleTime: time.Minute})
			if err != nil {
				t.Errorf("query: %v", err)
				return
			}
			if res.Data != "value" {
				t.Errorf("unexpected data %v", res.Data)
			}
		}()
	}

	// Let the goroutines pile up behind the in-flight fetch.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("expected 1 fetch for 10 concurrent queries, got %d", n)
	}
}

func TestStaleEntryIsServedWhileRefetchingInBackground(t *testing.T) {
	store := NewStore()
	var clockMu sync.Mutex
	now := time.Now()
	store.now = func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		return now
	}

	var calls int32
	fetched := make(chan struct{}, 2)
	fetcher := func(ctx context.Context) (any, error) {
		n := atomic.AddInt32(&calls, 1)
		fetched <- struct{}{}
		if n == 1 {
			return "old", nil
		}
		return "new", nil
	}
	opts := Options{StaleTime: 30 * time.Second}
	key := UserMoviesKey("")

	if _, err := store.Query(context.Background(), key, fetcher, opts); err != nil {
		t.Fatalf("first query: %v", err)
	}
	<-fetched

	clockMu.Lock()
	now = now.Add(time.Minute)
	clockMu.Unlock()

	res, err := store.Query(context.Background(), key, fetcher, opts)
	if err != nil {
		t.Fatalf("stale query: %v", err)
	}
	if !res.Stale || !res.FromCache {
		t.Fatalf("expected a stale cached result, got %+v", res)
	}
	if res.Data != "old" {
		t.Fatalf("expected the stale value served immediately, got %v", res.Data)
	}

	select {
	case <-fetched:
	case <-time.After(2 * time.Second):
		t.Fatal("background refetch never ran")
	}

	deadline := time.After(2 * time.Second)
	for {
		if v, ok := store.Peek(key); ok && v == "new" {
			return
		}
		select {
		case <-deadline:
			t.Fatal("refetched value never landed in the cache")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestDisabledQueryServesCacheOrFailsFast(t *testing.T) {
	store := NewStore()
	var calls int32
	fetcher := countingFetcher(&calls, "value")

	_, err := store.Query(context.Background(), UserProfileKey(), fetcher, Options{Disabled: true})
	if !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled on an empty cache, got %v", err)
	}

	if _, err := store.Query(context.Background(), UserProfileKey(), fetcher, Options{StaleTime: time.Minute}); err != nil {
		t.Fatalf("warm-up query: %v", err)
	}

	res, err := store.Query(context.Background(), UserProfileKey(), fetcher, Options{Disabled: true, StaleTime: time.Minute})
	if err != nil {
		t.Fatalf("disabled query with cache: %v", err)
	}
	if !res.FromCache {
		t.Fatal("expected the cached value")
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("expected 1 fetch, got %d", n)
	}
}

func TestInvalidatePrefixCoversEveryVariant(t *testing.T) {
	store := NewStore()
	now := time.Now()
	store.now = func() time.Time { return now }

	var movieCalls, profileCalls int32
	opts := Options{StaleTime: time.Minute}
	ctx := context.Background()

	for _, status := range []string{"", "watchlist", "watched"} {
		if _, err := store.Query(ctx, UserMoviesKey(status), countingFetcher(&movieCalls, status), opts); err != nil {
			t.Fatalf("seed %q: %v", status, err)
		}
	}
	if _, err := store.Query(ctx, UserProfileKey(), countingFetcher(&profileCalls, "profile"), opts); err != nil {
		t.Fatalf("seed profile: %v", err)
	}

	store.Invalidate(Key{"user-movies"})

	for _, status := range []string{"", "watchlist", "watched"} {
		res, err := store.Query(ctx, UserMoviesKey(status), countingFetcher(&movieCalls, status), opts)
		if err != nil {
			t.Fatalf("query %q: %v", status, err)
		}
		if !res.Stale {
			t.Fatalf("expected %q stale after invalidation", UserMoviesKey(status).String())
		}
	}

	res, err := store.Query(ctx, UserProfileKey(), countingFetcher(&profileCalls, "profile"), opts)
	if err != nil {
		t.Fatalf("query profile: %v", err)
	}
	if res.Stale {
		t.Fatal("profile must not be touched by a user-movies invalidation")
	}
}

func TestInvalidateRefetchesObservedKeysAndNotifies(t *testing.T) {
	store := NewStore()
	var calls int32
	fetcher := countingFetcher(&calls, "value")
	opts := Options{StaleTime: time.Minute}

	var notified []Key
	var mu sync.Mutex
	cancel := store.Watch(UserMoviesKey("watchlist"), fetcher, opts, func(k Key) {
		mu.Lock()
		notified = append(notified, k)
		mu.Unlock()
	})
	defer cancel()

	store.Invalidate(Key{"user-movies"})

	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("expected the observed key refetched once, got %d", n)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(notified) != 1 || notified[0].String() != UserMoviesKey("watchlist").String() {
		t.Fatalf("unexpected notifications: %v", notified)
	}
}

func TestCancelledWatcherIsNotRefetched(t *testing.T) {
	store := NewStore()
	var calls int32
	cancel := store.Watch(UserMoviesKey("watchlist"), countingFetcher(&calls, "value"), Options{}, nil)
	cancel()

	store.Invalidate(Key{"user-movies"})

	if n := atomic.LoadInt32(&calls); n != 0 {
		t.Fatalf("expected no refetch after cancel, got %d", n)
	}
}

func TestClearDropsEntriesButKeepsWatchers(t *testing.T) {
	store := NewStore()
	var calls int32
	fetcher := countingFetcher(&calls, "value")
	opts := Options{StaleTime: time.Minute}

	if _, err := store.Query(context.Background(), UserProfileKey(), fetcher, opts); err != nil {
		t.Fatalf("seed: %v", err)
	}
	cancel := store.Watch(UserProfileKey(), fetcher, opts, nil)
	defer cancel()

	store.Clear()

	if store.Len() != 0 {
		t.Fatalf("expected an empty store, got %d entries", store.Len())
	}

	store.Invalidate(Key{"user-profile"})
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Fatalf("expected the watcher to survive the clear, got %d fetches", n)
	}
}

func TestRetentionEvictsAncientEntries(t *testing.T) {
	store := NewStore()
	now := time.Now()
	store.now = func() time.Time { return now }

	store.Put(UserProfileKey(), "value", 30*time.Second)
	now = now.Add(25 * time.Hour)
	store.Sweep()

	if _, ok := store.Peek(UserProfileKey()); ok {
		t.Fatal("expected the entry evicted past the retention horizon")
	}
}

func TestRetryPolicyBoundsFetchAttempts(t *testing.T) {
	store := NewStore()
	var calls int32
	failing := func(ctx context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("boom")
	}

	_, err := store.Query(context.Background(), PlatformsKey(), failing, Options{
		Retry: func(attempts uint, err error) bool { return attempts < 3 },
	})
	if err == nil {
		t.Fatal("expected the fetch to fail")
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Fatalf("expected 3 attempts, got %d", n)
	}

	atomic.StoreInt32(&calls, 0)
	if _, err := store.Query(context.Background(), UserProfileKey(), failing, Options{}); err == nil {
		t.Fatal("expected the fetch to fail")
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("expected a single attempt under the default policy, got %d", n)
	}
}

func TestStaleTimeForDerivesTheWindowFromTheValue(t *testing.T) {
	store := NewStore()
	now := time.Now()
	store.now = func() time.Time { return now }

	opts := Options{StaleTimeFor: func(any) time.Duration { return 5 * time.Minute }}
	var calls int32
	fetcher := countingFetcher(&calls, "value")

	if _, err := store.Query(context.Background(), SuggestionsKey(false), fetcher, opts); err != nil {
		t.Fatalf("query: %v", err)
	}

	now = now.Add(4 * time.Minute)
	res, err := store.Query(context.Background(), SuggestionsKey(false), fetcher, opts)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if res.Stale {
		t.Fatal("expected the entry fresh inside the derived window")
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("expected 1 fetch, got %d", n)
	}
}

func TestKeyPrefixMatchingIsElementWise(t *testing.T) {
	if !UserMoviesKey("watchlist").HasPrefix(Key{"user-movies"}) {
		t.Fatal("status view must match the user-movies prefix")
	}
	if UserProfileKey().HasPrefix(Key{"user-movies"}) {
		t.Fatal("user-profile must not match the user-movies prefix")
	}
	if (Key{"user-movies-extra"}).HasPrefix(Key{"user-movies"}) {
		t.Fatal("prefix matching must compare whole elements, not characters")
	}
}
