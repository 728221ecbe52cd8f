// Package library is the read side of the client: every listing the UI
// shows goes through the resource cache here, with the freshness window
// that fits the resource.
package library

import (
	"context"

	"myvod/api"
	"myvod/models"
	"myvod/services/cache"
)

// Service reads server-derived entities through the resource cache.
type Service struct {
	api   *api.Client
	store *cache.Store
}

// NewService creates the read service over the given transport and cache
// handle.
func NewService(client *api.Client, store *cache.Store) *Service {
	return &Service{api: client, store: store}
}

// UserMovies lists the user's movies for one status view ("watchlist",
// "watched", or "" for all).
func (s *Service) UserMovies(ctx context.Context, status string) ([]models.UserMovie, error) {
	res, err := s.store.Query(ctx, cache.UserMoviesKey(status), s.userMoviesFetcher(status), cache.Options{
		StaleTime: cache.UserMoviesStaleTime,
	})
	if err != nil {
		return nil, err
	}
	return res.Data.([]models.UserMovie), nil
}

// WatchUserMovies keeps one status view observed: an invalidation covering
// it refetches immediately and calls notify. Cancel with the returned
// function when the surface goes away.
func (s *Service) WatchUserMovies(status string, notify func(cache.Key)) (cancel func()) {
	return s.store.Watch(cache.UserMoviesKey(status), s.userMoviesFetcher(status), cache.Options{
		StaleTime: cache.UserMoviesStaleTime,
	}, notify)
}

// Profile fetches the authenticated user's profile.
func (s *Service) Profile(ctx context.Context) (*models.UserProfile, error) {
	res, err := s.store.Query(ctx, cache.UserProfileKey(), func(ctx context.Context) (any, error) {
		return s.api.GetUserProfile(ctx)
	}, cache.Options{StaleTime: cache.ProfileStaleTime})
	if err != nil {
		return nil, err
	}
	return res.Data.(*models.UserProfile), nil
}

// Platforms fetches the platform catalog.
func (s *Service) Platforms(ctx context.Context) ([]models.Platform, error) {
	res, err := s.store.Query(ctx, cache.PlatformsKey(), func(ctx context.Context) (any, error) {
		return s.api.GetPlatforms(ctx)
	}, cache.Options{StaleTime: cache.PlatformsStaleTime})
	if err != nil {
		return nil, err
	}
	return res.Data.([]models.Platform), nil
}

// Search looks up movies by title. Queries under two runes are disabled and
// return an empty result without touching the network.
func (s *Service) Search(ctx context.Context, query string) ([]models.MovieSearchResult, error) {
	if len([]rune(query)) < 2 {
		return []models.MovieSearchResult{}, nil
	}

	res, err := s.store.Query(ctx, cache.SearchKey(query), func(ctx context.Context) (any, error) {
		return s.api.SearchMovies(ctx, query)
	}, cache.Options{StaleTime: cache.SearchStaleTime})
	if err != nil {
		return nil, err
	}
	return res.Data.([]models.MovieSearchResult), nil
}

func (s *Service) userMoviesFetcher(status string) cache.Fetcher {
	return func(ctx context.Context) (any, error) {
		movies, err := s.api.ListUserMovies(ctx, status, "")
		if err != nil {
			return nil, err
		}
		return movies, nil
	}
}
