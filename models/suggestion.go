package models

import "time"

// SuggestionItem is a single AI-generated movie suggestion.
type SuggestionItem struct {
	Tconst        string              `json:"tconst"`
	PrimaryTitle  string              `json:"primary_title"`
	StartYear     *int                `json:"start_year"`
	Justification string              `json:"justification"`
	PosterPath    *string             `json:"poster_path"`
	Availability  []MovieAvailability `json:"availability"`
}

// AISuggestions is one batch of AI suggestions. The server decides how long
// the batch stays valid via ExpiresAt; a missing timestamp leaves the
// freshness window to the client default.
type AISuggestions struct {
	ExpiresAt   *time.Time       `json:"expires_at"`
	Suggestions []SuggestionItem `json:"suggestions"`
}
