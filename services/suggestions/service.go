// Package suggestions fetches the rate-limited AI suggestion batch with a
// freshness window the server controls per batch.
package suggestions

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"myvod/api"
	"myvod/models"
	"myvod/services/cache"
)

var (
	// ErrNoSuggestions: the server has no batch for this user yet (404).
	// Terminal for this fetch cycle; render an empty state, not an error.
	ErrNoSuggestions = errors.New("no suggestions available")
	// ErrRateLimited: the suggestion quota is exhausted (429). Terminal.
	ErrRateLimited = errors.New("suggestion limit reached")
)

// DefaultStaleTime applies when a batch carries no expiry timestamp.
const DefaultStaleTime = 10 * time.Minute

// maxAttempts bounds the read retries: the initial fetch plus two more.
const maxAttempts = 3

// Service fetches AI suggestion batches through the resource cache.
type Service struct {
	api   *api.Client
	store *cache.Store
	debug bool
	now   func() time.Time
}

// NewService creates the suggestions service. debug carries the development
// bypass for server-side rate limiting into the cache key; config loading
// forces it off in production builds.
func NewService(client *api.Client, store *cache.Store, debug bool) *Service {
	return &Service{api: client, store: store, debug: debug, now: time.Now}
}

// Get returns the current suggestion batch, fetching when the cached one
// has expired. Terminal outcomes come back as ErrNoSuggestions or
// ErrRateLimited and are never retried.
func (s *Service) Get(ctx context.Context) (*models.AISuggestions, error) {
	res, err := s.store.Query(ctx, cache.SuggestionsKey(s.debug), func(ctx context.Context) (any, error) {
		return s.api.GetAISuggestions(ctx, s.debug)
	}, cache.Options{
		StaleTimeFor: s.staleTimeFor,
		Retry:        RetryPolicy,
	})
	if err != nil {
		return nil, terminalOutcome(err)
	}
	return res.Data.(*models.AISuggestions), nil
}

// StaleTime computes the freshness window for one fetched batch: the time
// until the server-supplied expiry, never negative, or DefaultStaleTime
// when the batch has none.
func StaleTime(set *models.AISuggestions, now time.Time) time.Duration {
	if set == nil || set.ExpiresAt == nil {
		return DefaultStaleTime
	}
	remaining := set.ExpiresAt.Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// RetryPolicy suppresses retries on the two expected terminal statuses and
// allows up to maxAttempts total tries otherwise.
func RetryPolicy(attempts uint, err error) bool {
	if api.IsStatus(err, http.StatusNotFound) || api.IsStatus(err, http.StatusTooManyRequests) {
		return false
	}
	return attempts < maxAttempts
}

func (s *Service) staleTimeFor(value any) time.Duration {
	set, _ := value.(*models.AISuggestions)
	return StaleTime(set, s.now())
}

// terminalOutcome maps the two expected rejection statuses onto their
// sentinel errors so callers render a view state instead of a failure.
func terminalOutcome(err error) error {
	switch {
	case api.IsStatus(err, http.StatusNotFound):
		return fmt.Errorf("%w: %s", ErrNoSuggestions, err)
	case api.IsStatus(err, http.StatusTooManyRequests):
		return fmt.Errorf("%w: %s", ErrRateLimited, err)
	default:
		return err
	}
}
