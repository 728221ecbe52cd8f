package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"

	"myvod/models"
)

// TokenStore persists the JWT pair across restarts and hands the access
// token to the transport. Writes go through a temp file rename so a crash
// mid-save never leaves a truncated token file.
type TokenStore struct {
	mu     sync.RWMutex
	fs     afero.Fs
	path   string
	tokens models.AuthTokens
}

// NewTokenStore opens the token file at path, loading any persisted pair.
// A missing file is a logged-out store, not an error.
func NewTokenStore(fs afero.Fs, path string) (*TokenStore, error) {
	s := &TokenStore{fs: fs, path: path}

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read tokens file: %w", err)
	}
	if err := json.Unmarshal(data, &s.tokens); err != nil {
		return nil, fmt.Errorf("parse tokens file: %w", err)
	}
	return s, nil
}

// AccessToken returns the current access token, empty when logged out.
func (s *TokenStore) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens.Access
}

// RefreshToken returns the current refresh token, empty when logged out.
func (s *TokenStore) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens.Refresh
}

// SetAccessToken replaces the access token after a refresh and persists
// the pair.
func (s *TokenStore) SetAccessToken(access string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens.Access = access
	return s.saveLocked()
}

// SetTokens stores a fresh pair after login and persists it.
func (s *TokenStore) SetTokens(tokens models.AuthTokens) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = tokens
	return s.saveLocked()
}

// Clear wipes the pair and removes the token file.
func (s *TokenStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = models.AuthTokens{}
	if err := s.fs.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove tokens file: %w", err)
	}
	return nil
}

// Authenticated reports whether a refresh token is present.
func (s *TokenStore) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens.Refresh != ""
}

func (s *TokenStore) saveLocked() error {
	if err := s.fs.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create tokens dir: %w", err)
	}

	data, err := json.MarshalIndent(s.tokens, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal tokens: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o600); err != nil {
		return fmt.Errorf("write tokens file: %w", err)
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace tokens file: %w", err)
	}
	return nil
}
