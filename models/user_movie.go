package models

import "time"

// Watch status filters accepted by the user-movies listing endpoint.
const (
	StatusWatchlist = "watchlist"
	StatusWatched   = "watched"
)

// MovieDetail carries the reference data nested inside a user movie entry.
type MovieDetail struct {
	Tconst       string   `json:"tconst"`
	PrimaryTitle string   `json:"primary_title"`
	StartYear    *int     `json:"start_year"`
	Genres       []string `json:"genres"`
	AvgRating    *string  `json:"avg_rating"`
	PosterPath   *string  `json:"poster_path"`
}

// MovieAvailability reports whether a movie can be streamed on one platform.
type MovieAvailability struct {
	PlatformID   int    `json:"platform_id"`
	PlatformName string `json:"platform_name"`
	IsAvailable  *bool  `json:"is_available"`
}

// UserMovie is a single entry on the user's watchlist or watched history.
// Exactly one of the two views contains it at a time, decided by whether
// WatchedAt is set.
type UserMovie struct {
	ID            int                 `json:"id"`
	WatchlistedAt *time.Time          `json:"watchlisted_at"`
	WatchedAt     *time.Time          `json:"watched_at"`
	Movie         MovieDetail         `json:"movie"`
	Availability  []MovieAvailability `json:"availability"`
}

// IsWatched reports whether the entry belongs to the watched view.
func (m UserMovie) IsWatched() bool {
	return m.WatchedAt != nil
}

// AddUserMovieCommand is the request body for adding a movie to the watchlist.
type AddUserMovieCommand struct {
	Tconst string `json:"tconst"`
}

// Patch actions accepted by the user-movies endpoint.
const (
	ActionMarkAsWatched      = "mark_as_watched"
	ActionRestoreToWatchlist = "restore_to_watchlist"
)

// UpdateUserMovieCommand toggles an entry between the watchlist and watched
// views.
type UpdateUserMovieCommand struct {
	Action string `json:"action"`
}

// Partition splits entries into the watchlist and watched views by WatchedAt
// nullity. Every entry lands in exactly one of the two slices.
func Partition(movies []UserMovie) (watchlist, watched []UserMovie) {
	for _, m := range movies {
		if m.IsWatched() {
			watched = append(watched, m)
		} else {
			watchlist = append(watchlist, m)
		}
	}
	return watchlist, watched
}
