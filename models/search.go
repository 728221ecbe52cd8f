package models

// MovieSearchResult is one row returned by the movie search endpoint.
// AvgRating arrives as a string in API responses.
type MovieSearchResult struct {
	Tconst       string  `json:"tconst"`
	PrimaryTitle string  `json:"primary_title"`
	StartYear    *int    `json:"start_year"`
	AvgRating    *string `json:"avg_rating"`
	PosterPath   *string `json:"poster_path"`
}
