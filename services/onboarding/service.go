// Package onboarding drives the seed-movies step of the first-run flow: the
// user picks up to three candidate movies, each attached against the remote
// store independently with its own status, under a single submit lock.
package onboarding

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/sourcegraph/conc"

	"myvod/api"
	"myvod/models"
)

const DefaultMaxSelected = 3

var (
	ErrSelectionFull   = errors.New("selection is full")
	ErrAlreadySelected = errors.New("movie is already selected")
	ErrSubmitting      = errors.New("submission in progress")
	ErrNotSelected     = errors.New("movie is not selected")
	ErrItemBusy        = errors.New("operation in progress for this movie")
	ErrItemsFailed     = errors.New("some selections failed")
)

// MovieService is the slice of the mutation pipeline the controller drives.
// List lookups bypass the cache so a 409 conflict can always resolve the
// record that caused it.
type MovieService interface {
	AddToWatchlist(ctx context.Context, tconst string) (*models.UserMovie, error)
	MarkWatched(ctx context.Context, id int) (*models.UserMovie, error)
	RestoreToWatchlist(ctx context.Context, id int) (*models.UserMovie, error)
	DeleteUserMovie(ctx context.Context, id int) error
	ListUserMovies(ctx context.Context, status string) ([]models.UserMovie, error)
}

// Controller owns the ordered candidate list. Per-item attach operations run
// outside the lock; all list bookkeeping happens under it. Successful items
// are immutable, failed items stay in place and retryable, and the submit
// lock keeps Finish and any concurrent edit from interleaving.
type Controller struct {
	mu          sync.Mutex
	movies      MovieService
	maxSelected int
	selected    []models.OnboardingItem
	submitting  bool
	done        bool
	prefilled   bool
}

// NewController creates a controller allowing up to maxSelected picks.
func NewController(movies MovieService, maxSelected int) *Controller {
	if maxSelected <= 0 {
		maxSelected = DefaultMaxSelected
	}
	return &Controller{movies: movies, maxSelected: maxSelected}
}

// Selected returns a snapshot of the candidate list.
func (c *Controller) Selected() []models.OnboardingItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	items := make([]models.OnboardingItem, len(c.selected))
	copy(items, c.selected)
	return items
}

// Submitting reports whether the global submit lock is held.
func (c *Controller) Submitting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submitting
}

// Done reports whether Finish has completed successfully.
func (c *Controller) Done() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Prefill seeds the selection from movies the user has already watched,
// capped at the selection limit. Runs at most once per controller.
func (c *Controller) Prefill(watched []models.UserMovie) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.prefilled || len(c.selected) > 0 {
		return
	}
	c.prefilled = true

	for _, movie := range watched {
		if len(c.selected) >= c.maxSelected {
			break
		}
		c.selected = append(c.selected, models.OnboardingItem{
			Tconst:       movie.Movie.Tconst,
			PrimaryTitle: movie.Movie.PrimaryTitle,
			StartYear:    movie.Movie.StartYear,
			PosterPath:   movie.Movie.PosterPath,
			UserMovieID:  movie.ID,
			Source:       models.SourcePreexistingWatched,
			Status:       models.SelectedSuccess,
		})
	}
}

// Pick selects a candidate and attaches it remotely. The guards run before
// any state transition: a full selection, a duplicate, or a held submit
// lock reject the pick with the list untouched. On attach failure the item
// stays in the list as retryable with a readable error.
func (c *Controller) Pick(ctx context.Context, movie models.MovieSearchResult) error {
	c.mu.Lock()
	if c.submitting {
		c.mu.Unlock()
		return ErrSubmitting
	}
	if len(c.selected) >= c.maxSelected {
		c.mu.Unlock()
		return ErrSelectionFull
	}
	for _, item := range c.selected {
		if item.Tconst == movie.Tconst {
			c.mu.Unlock()
			return ErrAlreadySelected
		}
	}
	c.selected = append(c.selected, models.OnboardingItem{
		Tconst:       movie.Tconst,
		PrimaryTitle: movie.PrimaryTitle,
		StartYear:    movie.StartYear,
		PosterPath:   movie.PosterPath,
		Source:       models.SourceNewlyCreated,
		Status:       models.SelectedLoading,
	})
	c.mu.Unlock()

	return c.attach(ctx, movie.Tconst)
}

// Retry re-attaches a failed item. Successful items are immutable and
// cannot re-enter the loading state.
func (c *Controller) Retry(ctx context.Context, tconst string) error {
	c.mu.Lock()
	if c.submitting {
		c.mu.Unlock()
		return ErrSubmitting
	}
	idx := c.indexOf(tconst)
	if idx < 0 {
		c.mu.Unlock()
		return ErrNotSelected
	}
	switch c.selected[idx].Status {
	case models.SelectedLoading:
		c.mu.Unlock()
		return ErrItemBusy
	case models.SelectedSuccess:
		c.mu.Unlock()
		return nil
	}
	c.selected[idx].Status = models.SelectedLoading
	c.selected[idx].Error = ""
	c.mu.Unlock()

	return c.attach(ctx, tconst)
}

// Undo removes a candidate, rolling back its remote effect according to
// provenance: a newly created entry is deleted, a preexisting one is
// restored to the watchlist. An item that never attached is just dropped.
func (c *Controller) Undo(ctx context.Context, tconst string) error {
	c.mu.Lock()
	if c.submitting {
		c.mu.Unlock()
		return ErrSubmitting
	}
	idx := c.indexOf(tconst)
	if idx < 0 {
		c.mu.Unlock()
		return ErrNotSelected
	}
	item := c.selected[idx]
	if item.Status == models.SelectedLoading {
		c.mu.Unlock()
		return ErrItemBusy
	}
	if item.UserMovieID == 0 {
		c.removeLocked(tconst)
		c.mu.Unlock()
		return nil
	}
	c.selected[idx].Status = models.SelectedLoading
	c.mu.Unlock()

	var err error
	if item.Source == models.SourceNewlyCreated {
		err = c.movies.DeleteUserMovie(ctx, item.UserMovieID)
	} else {
		_, err = c.movies.RestoreToWatchlist(ctx, item.UserMovieID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		// The remote state is unchanged, so the confirmed item stands.
		if idx := c.indexOf(tconst); idx >= 0 {
			c.selected[idx].Status = models.SelectedSuccess
		}
		return fmt.Errorf("undo %s: %w", tconst, err)
	}
	c.removeLocked(tconst)
	return nil
}

// Finish takes the submit lock and drives every item not yet confirmed
// through its attach call, each independently and exactly once. Confirmed
// items are never resubmitted. When any item still fails the lock is
// released so the user can retry; on full success the controller stays
// locked and reports done.
func (c *Controller) Finish(ctx context.Context) error {
	c.mu.Lock()
	if c.submitting {
		c.mu.Unlock()
		return ErrSubmitting
	}
	c.submitting = true

	var pending []string
	for i := range c.selected {
		if c.selected[i].Status != models.SelectedSuccess {
			c.selected[i].Status = models.SelectedLoading
			c.selected[i].Error = ""
			pending = append(pending, c.selected[i].Tconst)
		}
	}
	c.mu.Unlock()

	var wg conc.WaitGroup
	for _, tconst := range pending {
		tconst := tconst
		wg.Go(func() {
			if err := c.attach(ctx, tconst); err != nil {
				log.Printf("[onboarding] attach %s: %v", tconst, err)
			}
		})
	}
	wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, item := range c.selected {
		if item.Status != models.SelectedSuccess {
			c.submitting = false
			return ErrItemsFailed
		}
	}
	c.done = true
	return nil
}

// attach resolves the remote identity of one picked movie and marks it
// watched:
//
//	POST user-movies          201 -> newly created
//	                          409 -> already on watchlist, look the id up
//	PATCH mark_as_watched     200 -> confirmed
//	                          400 -> already watched, look the id up
//
// A failure at any step leaves the item in the error state with the slot
// kept; sibling items are never affected.
func (c *Controller) attach(ctx context.Context, tconst string) error {
	id, source, err := c.resolve(ctx, tconst)

	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.indexOf(tconst)
	if idx < 0 {
		// Removed while the attach was in flight; the result is discarded.
		return nil
	}
	if err != nil {
		c.selected[idx].Status = models.SelectedError
		c.selected[idx].Error = attachMessage(err)
		return err
	}
	c.selected[idx].UserMovieID = id
	c.selected[idx].Source = source
	c.selected[idx].Status = models.SelectedSuccess
	c.selected[idx].Error = ""
	return nil
}

func (c *Controller) resolve(ctx context.Context, tconst string) (int, models.SelectedSource, error) {
	source := models.SourceNewlyCreated
	var id int

	movie, err := c.movies.AddToWatchlist(ctx, tconst)
	switch {
	case err == nil:
		id = movie.ID
	case api.IsStatus(err, http.StatusConflict):
		existing, lookupErr := c.lookup(ctx, models.StatusWatchlist, tconst)
		if lookupErr != nil {
			return 0, source, lookupErr
		}
		if existing == nil {
			return 0, source, fmt.Errorf("movie %s missing from watchlist despite conflict", tconst)
		}
		id = existing.ID
		source = models.SourcePreexistingWatchlist
	default:
		return 0, source, err
	}

	if _, err := c.movies.MarkWatched(ctx, id); err != nil {
		if !api.IsStatus(err, http.StatusBadRequest) {
			return 0, source, err
		}
		// Already watched: the PATCH rejects but the goal is met.
		existing, lookupErr := c.lookup(ctx, models.StatusWatched, tconst)
		if lookupErr != nil {
			return 0, source, lookupErr
		}
		if existing == nil {
			return 0, source, fmt.Errorf("movie %s missing from watched list despite rejection", tconst)
		}
		id = existing.ID
		source = models.SourcePreexistingWatched
	}

	return id, source, nil
}

func (c *Controller) lookup(ctx context.Context, status, tconst string) (*models.UserMovie, error) {
	movies, err := c.movies.ListUserMovies(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", status, err)
	}
	for i := range movies {
		if movies[i].Movie.Tconst == tconst {
			return &movies[i], nil
		}
	}
	return nil, nil
}

func (c *Controller) indexOf(tconst string) int {
	for i := range c.selected {
		if c.selected[i].Tconst == tconst {
			return i
		}
	}
	return -1
}

func (c *Controller) removeLocked(tconst string) {
	idx := c.indexOf(tconst)
	if idx < 0 {
		return
	}
	c.selected = append(c.selected[:idx], c.selected[idx+1:]...)
}

func attachMessage(err error) string {
	status, _ := api.StatusOf(err)
	switch {
	case status >= 500:
		return "server error, try again later"
	case status == 0:
		return "could not reach the server"
	default:
		return "could not mark the movie as watched"
	}
}
