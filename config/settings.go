package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Settings represents the client configuration persisted to disk.
type Settings struct {
	Server      ServerSettings      `json:"server"`
	Auth        AuthSettings        `json:"auth"`
	Suggestions SuggestionsSettings `json:"suggestions"`
	Log         LogConfig           `json:"log"`
}

// ServerSettings points the client at the myVOD API.
type ServerSettings struct {
	BaseURL        string `json:"baseUrl"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
}

// AuthSettings controls where the session token pair is kept between runs.
type AuthSettings struct {
	TokensFile string `json:"tokensFile"`
}

// SuggestionsSettings configures the AI suggestions fetch. Debug bypasses
// server-side rate limiting and is forced off outside development builds.
type SuggestionsSettings struct {
	Debug bool `json:"debug"`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	File       string `json:"file"`
	MaxSize    int    `json:"maxSize"`
	MaxAge     int    `json:"maxAge"`
	MaxBackups int    `json:"maxBackups"`
	Compress   bool   `json:"compress"`
}

// DefaultSettings returns the configuration written on first run.
func DefaultSettings() Settings {
	return Settings{
		Server: ServerSettings{
			BaseURL:        "http://localhost:8000/api",
			TimeoutSeconds: 15,
		},
		Auth: AuthSettings{
			TokensFile: filepath.Join("cache", "tokens.json"),
		},
		Log: LogConfig{
			MaxSize:    10,
			MaxAge:     14,
			MaxBackups: 3,
		},
	}
}

// Manager loads and persists the settings file.
type Manager struct {
	path string
}

// NewManager creates a settings manager for the provided path.
func NewManager(configPath string) *Manager {
	return &Manager{path: configPath}
}

// Load reads settings from disk or creates defaults if missing. The
// suggestions debug flag never survives loading outside development builds.
func (m *Manager) Load() (Settings, error) {
	if m.path == "" {
		return Settings{}, errors.New("config path not set")
	}

	if _, err := os.Stat(m.path); errors.Is(err, fs.ErrNotExist) {
		defaults := DefaultSettings()
		if err := m.Save(defaults); err != nil {
			return Settings{}, err
		}
		return defaults, nil
	}

	f, err := os.Open(m.path)
	if err != nil {
		return Settings{}, fmt.Errorf("open settings: %w", err)
	}
	defer f.Close()

	var s Settings
	if err := json.NewDecoder(f).Decode(&s); err != nil {
		return Settings{}, fmt.Errorf("decode settings: %w", err)
	}

	// Backfill defaults when the config predates newer fields
	if strings.TrimSpace(s.Server.BaseURL) == "" {
		s.Server.BaseURL = DefaultSettings().Server.BaseURL
	}
	if s.Server.TimeoutSeconds <= 0 {
		s.Server.TimeoutSeconds = DefaultSettings().Server.TimeoutSeconds
	}
	if strings.TrimSpace(s.Auth.TokensFile) == "" {
		s.Auth.TokensFile = DefaultSettings().Auth.TokensFile
	}

	if s.Suggestions.Debug && os.Getenv("MYVOD_ENV") != "development" {
		s.Suggestions.Debug = false
	}

	return s, nil
}

// Save writes settings to disk atomically.
func (m *Manager) Save(s Settings) error {
	if m.path == "" {
		return errors.New("config path not set")
	}

	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}

	tmp := m.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create settings temp file: %w", err)
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("encode settings: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close settings temp file: %w", err)
	}

	if err := os.Rename(tmp, m.path); err != nil {
		return fmt.Errorf("replace settings file: %w", err)
	}

	return nil
}
