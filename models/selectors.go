package models

import (
	"sort"
	"strconv"
	"time"
)

// AvailabilitySummary is a pure projection of an entry's availability against
// the user's selected platforms. It is recomputed on demand and never cached.
type AvailabilitySummary struct {
	IsAvailableOnAny     bool  `json:"isAvailableOnAny"`
	AvailablePlatformIDs []int `json:"availablePlatformIds"`
}

// Summarize reports on which of the user's selected platforms the entry is
// currently available.
func Summarize(availability []MovieAvailability, selectedPlatformIDs []int) AvailabilitySummary {
	selected := make(map[int]bool, len(selectedPlatformIDs))
	for _, id := range selectedPlatformIDs {
		selected[id] = true
	}

	var ids []int
	for _, a := range availability {
		if a.IsAvailable != nil && *a.IsAvailable && selected[a.PlatformID] {
			ids = append(ids, a.PlatformID)
		}
	}
	sort.Ints(ids)

	return AvailabilitySummary{
		IsAvailableOnAny:     len(ids) > 0,
		AvailablePlatformIDs: ids,
	}
}

// SortOption selects the client-side ordering of a movie list.
type SortOption string

const (
	SortAddedDesc  SortOption = "added_desc"
	SortRatingDesc SortOption = "imdb_desc"
	SortYearDesc   SortOption = "year_desc"
	SortYearAsc    SortOption = "year_asc"
)

// SortUserMovies returns a sorted copy of the entries. Added/watched
// timestamps sort newest first with missing values at the end; ratings and
// years fall back to zero when absent.
func SortUserMovies(movies []UserMovie, option SortOption) []UserMovie {
	sorted := make([]UserMovie, len(movies))
	copy(sorted, movies)

	switch option {
	case SortAddedDesc:
		sort.SliceStable(sorted, func(i, j int) bool {
			return timestampOf(sorted[i]).After(timestampOf(sorted[j]))
		})
	case SortRatingDesc:
		sort.SliceStable(sorted, func(i, j int) bool {
			return ratingOf(sorted[i]) > ratingOf(sorted[j])
		})
	case SortYearDesc:
		sort.SliceStable(sorted, func(i, j int) bool {
			return yearOf(sorted[i]) > yearOf(sorted[j])
		})
	case SortYearAsc:
		sort.SliceStable(sorted, func(i, j int) bool {
			return yearOf(sorted[i]) < yearOf(sorted[j])
		})
	}

	return sorted
}

// FilterAvailable keeps entries available on at least one of the user's
// selected platforms.
func FilterAvailable(movies []UserMovie, selectedPlatformIDs []int) []UserMovie {
	filtered := make([]UserMovie, 0, len(movies))
	for _, m := range movies {
		if Summarize(m.Availability, selectedPlatformIDs).IsAvailableOnAny {
			filtered = append(filtered, m)
		}
	}
	return filtered
}

// WatchedAtLabel renders the watched timestamp for display, empty when the
// entry has not been watched.
func (m UserMovie) WatchedAtLabel() string {
	if m.WatchedAt == nil {
		return ""
	}
	return m.WatchedAt.Format("2 January 2006")
}

func timestampOf(m UserMovie) time.Time {
	if m.WatchedAt != nil {
		return *m.WatchedAt
	}
	if m.WatchlistedAt != nil {
		return *m.WatchlistedAt
	}
	return time.Time{}
}

func ratingOf(m UserMovie) float64 {
	if m.Movie.AvgRating == nil {
		return 0
	}
	rating, err := strconv.ParseFloat(*m.Movie.AvgRating, 64)
	if err != nil {
		return 0
	}
	return rating
}

func yearOf(m UserMovie) int {
	if m.Movie.StartYear == nil {
		return 0
	}
	return *m.Movie.StartYear
}
