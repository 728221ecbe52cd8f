package models

// SelectedSource records how an onboarding pick relates to the user's
// existing data, decided at attach time. It determines which endpoint an
// undo has to call.
type SelectedSource string

const (
	SourcePreexistingWatchlist SelectedSource = "preexisting_watchlist"
	SourcePreexistingWatched   SelectedSource = "preexisting_watched"
	SourceNewlyCreated         SelectedSource = "newly_created"
)

// SelectedStatus is the per-item state of the onboarding attach operation.
type SelectedStatus string

const (
	SelectedIdle    SelectedStatus = "idle"
	SelectedLoading SelectedStatus = "loading"
	SelectedSuccess SelectedStatus = "success"
	SelectedError   SelectedStatus = "error"
)

// OnboardingItem is one candidate movie selected during onboarding.
// UserMovieID stays zero until the remote attach resolves.
type OnboardingItem struct {
	Tconst       string         `json:"tconst"`
	PrimaryTitle string         `json:"primary_title"`
	StartYear    *int           `json:"start_year"`
	PosterPath   *string        `json:"poster_path"`
	UserMovieID  int            `json:"userMovieId,omitempty"`
	Source       SelectedSource `json:"source"`
	Status       SelectedStatus `json:"status"`
	Error        string         `json:"error,omitempty"`
}
