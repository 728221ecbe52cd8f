package cache

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/sourcegraph/conc"
	"golang.org/x/sync/singleflight"
)

var ErrDisabled = errors.New("query disabled")

// defaultRetention keeps stale entries servable for instant redisplay while
// a background refetch runs.
const defaultRetention = 24 * time.Hour

// Fetcher loads the value for one cache key from the server.
type Fetcher func(ctx context.Context) (any, error)

// RetryPolicy decides, given the number of failed attempts so far and the
// last error, whether the fetch should be attempted again.
type RetryPolicy func(attempts uint, err error) bool

// NoRetry is the default policy: a failed fetch is not repeated.
func NoRetry(uint, error) bool { return false }

// Options tune a single query.
type Options struct {
	// Disabled skips fetching entirely; a cached value is still served.
	Disabled bool
	// StaleTime is the freshness window after a successful fetch. Zero
	// means the entry is stale on the next access.
	StaleTime time.Duration
	// StaleTimeFor computes the freshness window from the fetched value
	// and takes precedence over StaleTime when set.
	StaleTimeFor func(value any) time.Duration
	// Retry is the read retry policy, NoRetry when nil.
	Retry RetryPolicy
}

// Result is what a query hands back to its caller.
type Result struct {
	Data      any
	Stale     bool
	FromCache bool
}

type entry struct {
	key       Key
	data      any
	fetchedAt time.Time
	staleAt   time.Time
}

type watcher struct {
	key     Key
	fetcher Fetcher
	opts    Options
	notify  func(Key)
}

// Store is the process-wide resource cache. It owns every server-derived
// entity, tracks staleness per entry, deduplicates concurrent fetches for
// the same key, and refetches observed keys on invalidation. A Store is
// created at session start and cleared on logout or account deletion; pass
// the handle explicitly into anything that reads or writes it.
type Store struct {
	mu          sync.RWMutex
	entries     map[string]*entry
	watchers    map[int]*watcher
	nextWatcher int

	flight    singleflight.Group
	retention time.Duration
	now       func() time.Time
}

// NewStore creates an empty resource cache.
func NewStore() *Store {
	return &Store{
		entries:   make(map[string]*entry),
		watchers:  make(map[int]*watcher),
		retention: defaultRetention,
		now:       time.Now,
	}
}

// Query returns the entry for key, fetching when it is absent or stale.
// A fresh entry is served as-is. A stale entry is served immediately while a
// background refetch runs; concurrent fetches for the same key collapse into
// one request. Disabled queries never fetch.
func (s *Store) Query(ctx context.Context, key Key, fetcher Fetcher, opts Options) (Result, error) {
	now := s.now()
	id := key.String()

	s.mu.Lock()
	ent, ok := s.entries[id]
	if ok && now.After(ent.staleAt.Add(s.retention)) {
		// Past the retention horizon: not servable anymore.
		delete(s.entries, id)
		ok = false
	}
	var data any
	var staleAt time.Time
	if ok {
		data, staleAt = ent.data, ent.staleAt
	}
	s.mu.Unlock()

	if ok && now.Before(staleAt) {
		return Result{Data: data, FromCache: true}, nil
	}

	if ok {
		// Serve the stale value right away and refresh behind it. The
		// refetch deliberately outlives the caller's context: a torn-down
		// caller stops observing but the result still lands in the cache.
		if !opts.Disabled {
			bg := context.WithoutCancel(ctx)
			go func() {
				if _, err := s.refetch(bg, key, fetcher, opts); err != nil {
					log.Printf("[cache] background refetch %q: %v", id, err)
				}
			}()
		}
		return Result{Data: data, Stale: true, FromCache: true}, nil
	}

	if opts.Disabled {
		return Result{}, ErrDisabled
	}

	fetched, err := s.refetch(ctx, key, fetcher, opts)
	if err != nil {
		return Result{}, err
	}
	return Result{Data: fetched}, nil
}

// Watch registers an active observer for key. While registered, an
// invalidation covering the key triggers an immediate refetch and notify.
// The returned cancel detaches the observer; an in-flight refetch is not
// aborted, its result is simply no longer announced.
func (s *Store) Watch(key Key, fetcher Fetcher, opts Options, notify func(Key)) (cancel func()) {
	s.mu.Lock()
	id := s.nextWatcher
	s.nextWatcher++
	s.watchers[id] = &watcher{key: key, fetcher: fetcher, opts: opts, notify: notify}
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}
}

// Invalidate marks every entry whose key starts with prefix as stale and
// refetches the ones currently observed by a watcher. Unobserved entries
// stay servable and refresh on next access. Invalidate returns after the
// observed refetches have landed.
func (s *Store) Invalidate(prefix Key) {
	now := s.now()

	s.mu.Lock()
	for _, ent := range s.entries {
		if ent.key.HasPrefix(prefix) {
			ent.staleAt = now
		}
	}
	var observed []*watcher
	for _, w := range s.watchers {
		if w.key.HasPrefix(prefix) {
			observed = append(observed, w)
		}
	}
	s.mu.Unlock()

	if len(observed) == 0 {
		return
	}

	var wg conc.WaitGroup
	for _, w := range observed {
		w := w
		wg.Go(func() {
			if _, err := s.refetch(context.Background(), w.key, w.fetcher, w.opts); err != nil {
				log.Printf("[cache] invalidation refetch %q: %v", w.key.String(), err)
				return
			}
			if w.notify != nil {
				w.notify(w.key)
			}
		})
	}
	wg.Wait()
}

// Put writes a server-returned value straight into the cache, replacing
// whatever the entry held. Used by the mutation pipeline for optimistic
// profile replacement.
func (s *Store) Put(key Key, data any, staleTime time.Duration) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key.String()] = &entry{
		key:       key,
		data:      data,
		fetchedAt: now,
		staleAt:   now.Add(staleTime),
	}
}

// Peek returns the cached value for key without triggering a fetch.
func (s *Store) Peek(key Key) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ent, ok := s.entries[key.String()]
	if !ok {
		return nil, false
	}
	return ent.data, true
}

// Clear drops every entry. Watchers stay registered.
func (s *Store) Clear() {
	s.mu.Lock()
	s.entries = make(map[string]*entry)
	s.mu.Unlock()
}

// Len reports the number of live entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Sweep evicts entries past the retention horizon.
func (s *Store) Sweep() {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ent := range s.entries {
		if now.After(ent.staleAt.Add(s.retention)) {
			delete(s.entries, id)
		}
	}
}

// refetch runs the fetcher once per key across all concurrent callers and
// stores the result.
func (s *Store) refetch(ctx context.Context, key Key, fetcher Fetcher, opts Options) (any, error) {
	v, err, _ := s.flight.Do(key.String(), func() (any, error) {
		data, err := s.fetch(ctx, fetcher, opts)
		if err != nil {
			return nil, err
		}

		staleTime := opts.StaleTime
		if opts.StaleTimeFor != nil {
			staleTime = opts.StaleTimeFor(data)
		}
		s.Put(key, data, staleTime)
		return data, nil
	})
	return v, err
}

// fetch executes the fetcher under the query's retry policy.
func (s *Store) fetch(ctx context.Context, fetcher Fetcher, opts Options) (any, error) {
	policy := opts.Retry
	if policy == nil {
		policy = NoRetry
	}

	var data any
	var attempts uint
	err := retry.Do(
		func() error {
			v, err := fetcher(ctx)
			if err != nil {
				return err
			}
			data = v
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(0),
		retry.Delay(100*time.Millisecond),
		retry.MaxDelay(2*time.Second),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			attempts++
			return policy(attempts, err)
		}),
	)
	if err != nil {
		return nil, err
	}
	return data, nil
}
