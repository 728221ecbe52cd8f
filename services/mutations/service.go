package mutations

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"myvod/api"
	"myvod/models"
	"myvod/services/cache"
)

var ErrPlatformIDsRequired = errors.New("platform ids are required")

// Class is the user-facing category of a failed mutation. UI layers match on
// the class and never inspect raw status codes.
type Class string

const (
	// ClassAlreadyPresent: the movie is already on the watchlist. An
	// informational notice, not an error state.
	ClassAlreadyPresent Class = "already-present"
	// ClassSessionExpired: authentication is gone. The cache has already
	// been cleared by the time the caller sees this.
	ClassSessionExpired Class = "session-expired"
	// ClassValidation: the server rejected the command payload.
	ClassValidation Class = "validation-failed"
	// ClassNoData: the resource has nothing to return. Terminal.
	ClassNoData Class = "no-data-available"
	// ClassRateLimited: quota exhausted. Terminal for this cycle.
	ClassRateLimited Class = "rate-limited"
	// ClassTransient: server fault or unreachable server. Writes are never
	// auto-retried, so this surfaces as a generic failure.
	ClassTransient Class = "transient-server-error"
)

// Error is a classified mutation failure.
type Error struct {
	Class   Class
	Status  int
	Message string
	cause   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("mutation %s: %s", e.Class, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// ClassOf extracts the classification from an error chain.
func ClassOf(err error) (Class, bool) {
	var mErr *Error
	if errors.As(err, &mErr) {
		return mErr.Class, true
	}
	return "", false
}

// Classify turns a transport failure into a classified outcome. The mapping
// is a pure function of the normalized status (plus the mutation kind for
// the 409 case) and of the message content for proxy-mangled auth failures.
func Classify(kind cache.MutationKind, err error) *Error {
	status, _ := api.StatusOf(err)
	message := err.Error()

	switch {
	case status == http.StatusConflict && kind == cache.MutationAddToWatchlist:
		return &Error{Class: ClassAlreadyPresent, Status: status, Message: "movie is already on the watchlist", cause: err}
	case status == http.StatusUnauthorized || status == http.StatusForbidden,
		strings.Contains(message, "Unauthorized"), strings.Contains(message, "401"), strings.Contains(message, "Forbidden"):
		return &Error{Class: ClassSessionExpired, Status: status, Message: "session expired, log in again", cause: err}
	case status == http.StatusBadRequest:
		return &Error{Class: ClassValidation, Status: status, Message: "the server rejected the request", cause: err}
	case status == http.StatusNotFound:
		return &Error{Class: ClassNoData, Status: status, Message: "nothing to show yet", cause: err}
	case status == http.StatusTooManyRequests:
		return &Error{Class: ClassRateLimited, Status: status, Message: "limit reached, try again later", cause: err}
	default:
		return &Error{Class: ClassTransient, Status: status, Message: "something went wrong, try again later", cause: err}
	}
}

// Pipeline executes write commands against the API and keeps the resource
// cache consistent: every successful mutation applies its invalidation graph
// entry, every failure comes back classified. Mutations are never
// auto-retried; a write must not be silently duplicated.
type Pipeline struct {
	api              *api.Client
	store            *cache.Store
	onSessionExpired func()
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithSessionExpiredHook registers the callback run after an auth failure
// has cleared the cache (token wipe, login redirect).
func WithSessionExpiredHook(hook func()) Option {
	return func(p *Pipeline) { p.onSessionExpired = hook }
}

// NewPipeline creates a mutation pipeline over the given transport and
// cache handle.
func NewPipeline(client *api.Client, store *cache.Store, opts ...Option) *Pipeline {
	p := &Pipeline{api: client, store: store}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AddToWatchlist adds a movie to the watchlist. A 409 comes back as
// ClassAlreadyPresent without touching the cache.
func (p *Pipeline) AddToWatchlist(ctx context.Context, tconst string) (*models.UserMovie, error) {
	movie, err := p.api.AddUserMovie(ctx, tconst)
	if err != nil {
		return nil, p.fail(cache.MutationAddToWatchlist, err)
	}
	p.store.ApplyMutation(cache.MutationAddToWatchlist)
	return movie, nil
}

// DeleteUserMovie soft-deletes an entry; the cache simply evicts it via
// invalidation on success.
func (p *Pipeline) DeleteUserMovie(ctx context.Context, id int) error {
	if err := p.api.DeleteUserMovie(ctx, id); err != nil {
		return p.fail(cache.MutationDeleteUserMovie, err)
	}
	p.store.ApplyMutation(cache.MutationDeleteUserMovie)
	return nil
}

// MarkWatched moves an entry from the watchlist view to the watched view.
func (p *Pipeline) MarkWatched(ctx context.Context, id int) (*models.UserMovie, error) {
	return p.patch(ctx, id, models.ActionMarkAsWatched)
}

// RestoreToWatchlist moves an entry back onto the watchlist.
func (p *Pipeline) RestoreToWatchlist(ctx context.Context, id int) (*models.UserMovie, error) {
	return p.patch(ctx, id, models.ActionRestoreToWatchlist)
}

func (p *Pipeline) patch(ctx context.Context, id int, action string) (*models.UserMovie, error) {
	movie, err := p.api.PatchUserMovie(ctx, id, action)
	if err != nil {
		return nil, p.fail(cache.MutationPatchUserMovie, err)
	}
	p.store.ApplyMutation(cache.MutationPatchUserMovie)
	return movie, nil
}

// UpdatePlatforms replaces the user's platform selection. On success the
// returned profile is written straight into the cache before the
// invalidation edges run, so no stale profile read is possible afterwards.
func (p *Pipeline) UpdatePlatforms(ctx context.Context, platformIDs []int) (*models.UserProfile, error) {
	if platformIDs == nil {
		return nil, &Error{Class: ClassValidation, Status: 0, Message: "platform ids are required", cause: ErrPlatformIDsRequired}
	}

	profile, err := p.api.PatchUserPlatforms(ctx, platformIDs)
	if err != nil {
		return nil, p.fail(cache.MutationUpdatePlatforms, err)
	}

	p.store.Put(cache.UserProfileKey(), profile, cache.ProfileStaleTime)
	p.store.ApplyMutation(cache.MutationUpdatePlatforms)
	return profile, nil
}

// DeleteAccount removes the account and wipes the entire cache so nothing
// from before the deletion can be served, even from memory.
func (p *Pipeline) DeleteAccount(ctx context.Context) error {
	if err := p.api.DeleteAccount(ctx); err != nil {
		return p.fail(cache.MutationDeleteAccount, err)
	}
	p.store.ApplyMutation(cache.MutationDeleteAccount)
	return nil
}

// ListUserMovies reads the user's movies directly from the server,
// bypassing the cache. Used for conflict lookups where a cached view could
// hide the record that just caused a 409.
func (p *Pipeline) ListUserMovies(ctx context.Context, status string) ([]models.UserMovie, error) {
	return p.api.ListUserMovies(ctx, status, "")
}

func (p *Pipeline) fail(kind cache.MutationKind, err error) error {
	classified := Classify(kind, err)
	if classified.Class == ClassSessionExpired {
		p.store.Clear()
		if p.onSessionExpired != nil {
			p.onSessionExpired()
		}
	}
	if classified.Class != ClassAlreadyPresent {
		log.Printf("[mutations] %s failed: %v", kind, err)
	}
	return classified
}
