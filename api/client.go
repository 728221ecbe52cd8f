package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"myvod/models"
)

var (
	ErrBaseURLRequired  = errors.New("base URL is required")
	ErrNotAuthenticated = errors.New("not authenticated")
)

// TokenSource provides the session token pair and accepts refreshed access
// tokens. Implemented by the session token store.
type TokenSource interface {
	AccessToken() string
	RefreshToken() string
	SetAccessToken(token string) error
}

// Client is the transport adapter for the myVOD API. It normalizes every
// failure into *Error, attaches bearer authentication, and transparently
// refreshes an expired access token once per request.
type Client struct {
	baseURL  string
	httpc    *http.Client
	tokens   TokenSource
	onLogout func()

	// Concurrent 401s share a single refresh call.
	refreshGroup singleflight.Group
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpc *http.Client) Option {
	return func(c *Client) { c.httpc = httpc }
}

// WithTokenSource attaches the session token store.
func WithTokenSource(tokens TokenSource) Option {
	return func(c *Client) { c.tokens = tokens }
}

// WithLogoutHook registers the callback invoked when a token refresh fails
// and the session must end.
func WithLogoutHook(onLogout func()) Option {
	return func(c *Client) { c.onLogout = onLogout }
}

// NewClient creates a transport adapter targeting the given API base URL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, ErrBaseURLRequired
	}

	c := &Client{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Register creates a new account. 400 carries field-level errors.
func (c *Client) Register(ctx context.Context, cmd models.RegisterUserCommand) (*models.RegisteredUser, error) {
	var out models.RegisteredUser
	if err := c.do(ctx, http.MethodPost, "/register/", nil, cmd, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

// Login exchanges credentials for a JWT token pair. 401 means invalid
// credentials.
func (c *Client) Login(ctx context.Context, cmd models.LoginUserCommand) (*models.AuthTokens, error) {
	var out models.AuthTokens
	if err := c.do(ctx, http.MethodPost, "/token/", nil, cmd, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetUserProfile fetches the authenticated user's profile.
func (c *Client) GetUserProfile(ctx context.Context) (*models.UserProfile, error) {
	var out models.UserProfile
	if err := c.do(ctx, http.MethodGet, "/me/", nil, nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// PatchUserPlatforms replaces the user's platform selection. 400 means
// invalid platform IDs.
func (c *Client) PatchUserPlatforms(ctx context.Context, platformIDs []int) (*models.UserProfile, error) {
	cmd := models.UpdateUserProfileCommand{Platforms: platformIDs}
	var out models.UserProfile
	if err := c.do(ctx, http.MethodPatch, "/me/", nil, cmd, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteAccount permanently removes the authenticated user's account.
func (c *Client) DeleteAccount(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/me/", nil, nil, nil, true)
}

// GetPlatforms fetches the immutable VOD platform catalog.
func (c *Client) GetPlatforms(ctx context.Context) ([]models.Platform, error) {
	var out []models.Platform
	if err := c.do(ctx, http.MethodGet, "/platforms/", nil, nil, &out, false); err != nil {
		return nil, err
	}
	return out, nil
}

// SearchMovies searches the movie catalog. Queries shorter than two runes
// never hit the network; results are capped at ten rows.
func (c *Client) SearchMovies(ctx context.Context, query string) ([]models.MovieSearchResult, error) {
	if len([]rune(strings.TrimSpace(query))) < 2 {
		return []models.MovieSearchResult{}, nil
	}

	params := url.Values{"search": {query}}
	var out []models.MovieSearchResult
	if err := c.do(ctx, http.MethodGet, "/movies/", params, nil, &out, true); err != nil {
		return nil, err
	}
	if len(out) > 10 {
		out = out[:10]
	}
	return out, nil
}

// ListUserMovies fetches the user's movies, optionally filtered by status
// ("watchlist" or "watched") and ordered server-side.
func (c *Client) ListUserMovies(ctx context.Context, status, ordering string) ([]models.UserMovie, error) {
	params := url.Values{}
	if status != "" {
		params.Set("status", status)
	}
	if ordering != "" {
		params.Set("ordering", ordering)
	}

	var out []models.UserMovie
	if err := c.do(ctx, http.MethodGet, "/user-movies/", params, nil, &out, true); err != nil {
		return nil, err
	}
	return out, nil
}

// AddUserMovie adds a movie to the watchlist. 409 means it is already
// present.
func (c *Client) AddUserMovie(ctx context.Context, tconst string) (*models.UserMovie, error) {
	cmd := models.AddUserMovieCommand{Tconst: tconst}
	var out models.UserMovie
	if err := c.do(ctx, http.MethodPost, "/user-movies/", nil, cmd, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// PatchUserMovie applies a watch-status action to an entry and returns the
// mutated record.
func (c *Client) PatchUserMovie(ctx context.Context, id int, action string) (*models.UserMovie, error) {
	cmd := models.UpdateUserMovieCommand{Action: action}
	var out models.UserMovie
	endpoint := "/user-movies/" + strconv.Itoa(id) + "/"
	if err := c.do(ctx, http.MethodPatch, endpoint, nil, cmd, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteUserMovie soft-deletes an entry.
func (c *Client) DeleteUserMovie(ctx context.Context, id int) error {
	endpoint := "/user-movies/" + strconv.Itoa(id) + "/"
	return c.do(ctx, http.MethodDelete, endpoint, nil, nil, nil, true)
}

// GetAISuggestions fetches the current AI suggestion batch. 404 means no
// suggestions are available yet, 429 means the quota is exhausted. The debug
// flag bypasses server-side rate limiting and must stay off in production.
func (c *Client) GetAISuggestions(ctx context.Context, debug bool) (*models.AISuggestions, error) {
	params := url.Values{}
	if debug {
		params.Set("debug", "true")
	}

	var out models.AISuggestions
	if err := c.do(ctx, http.MethodGet, "/suggestions/", params, nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// do performs one request against the API, normalizing every failure into
// *Error. Authenticated requests that come back 401 are retried exactly once
// after refreshing the access token.
func (c *Client) do(ctx context.Context, method, endpoint string, params url.Values, body, out any, authed bool) error {
	err := c.doOnce(ctx, method, endpoint, params, body, out, authed)
	if err == nil || !authed || !IsStatus(err, http.StatusUnauthorized) {
		return err
	}

	if refreshErr := c.refreshAccess(ctx); refreshErr != nil {
		if c.onLogout != nil {
			c.onLogout()
		}
		return err
	}

	return c.doOnce(ctx, method, endpoint, params, body, out, authed)
}

func (c *Client) doOnce(ctx context.Context, method, endpoint string, params url.Values, body, out any, authed bool) error {
	target := c.baseURL + endpoint
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return newTransportError(fmt.Sprintf("encode request body: %v", err))
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return newTransportError(fmt.Sprintf("build request: %v", err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if authed && c.tokens != nil {
		if token := c.tokens.AccessToken(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		log.Printf("[api] %s %s: %v", method, endpoint, err)
		return newTransportError("unable to reach the server")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return &Error{
			Status:  resp.StatusCode,
			Data:    json.RawMessage(raw),
			Message: messageFromBody(raw),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return newTransportError(fmt.Sprintf("decode response: %v", err))
	}

	return nil
}

// refreshAccess exchanges the refresh token for a new access token.
// Concurrent callers share a single refresh request.
func (c *Client) refreshAccess(ctx context.Context) error {
	if c.tokens == nil {
		return ErrNotAuthenticated
	}

	_, err, _ := c.refreshGroup.Do("refresh", func() (any, error) {
		refresh := c.tokens.RefreshToken()
		if refresh == "" {
			return nil, ErrNotAuthenticated
		}

		var out struct {
			Access string `json:"access"`
		}
		payload := map[string]string{"refresh": refresh}
		if err := c.doOnce(ctx, http.MethodPost, "/token/refresh/", nil, payload, &out, false); err != nil {
			return nil, err
		}
		if err := c.tokens.SetAccessToken(out.Access); err != nil {
			return nil, fmt.Errorf("store refreshed token: %w", err)
		}
		return nil, nil
	})

	return err
}
