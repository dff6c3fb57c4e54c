// Package config loads encore's settings from a YAML file overlaid with
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sydlexius/encore/internal/logging"
)

// DefaultPath is used when ENCORE_CONFIG_PATH is unset.
const DefaultPath = "/data/config.yaml"

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Logging     logging.Config    `yaml:"logging"`
	SetlistFM   SetlistFMConfig   `yaml:"setlistfm"`
	MusicBrainz MusicBrainzConfig `yaml:"musicbrainz"`
	Spotify     SpotifyConfig     `yaml:"spotify"`
	Scraper     ScraperConfig     `yaml:"scraper"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port     int    `yaml:"port"`
	BasePath string `yaml:"base_path"`
	// RunTimeout bounds one pipeline run.
	RunTimeout time.Duration `yaml:"run_timeout"`
	// TallyEvery and TallyBurst shape the per-IP limit on tally requests.
	TallyEvery time.Duration `yaml:"tally_every"`
	TallyBurst int           `yaml:"tally_burst"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path                string        `yaml:"path"`
	MaintenanceInterval time.Duration `yaml:"maintenance_interval"`
}

// SetlistFMConfig configures the setlist.fm client and its fetcher.
type SetlistFMConfig struct {
	APIKey        string        `yaml:"api_key"`
	BaseURL       string        `yaml:"base_url"`
	MinInterval   time.Duration `yaml:"min_interval"`
	MaxConcurrent int           `yaml:"max_concurrent"`
	MaxRetries    int           `yaml:"max_retries"`
	BaseBackoff   time.Duration `yaml:"base_backoff"`
	// MaxPages caps a history walk; 0 walks every page.
	MaxPages int `yaml:"max_pages"`
}

// MusicBrainzConfig configures the MusicBrainz identity lookups.
type MusicBrainzConfig struct {
	BaseURL     string        `yaml:"base_url"`
	MinInterval time.Duration `yaml:"min_interval"`
	Disabled    bool          `yaml:"disabled"`
}

// SpotifyConfig holds client-credentials for artist-name lookups. Lookups
// are skipped when either value is empty.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// Enabled reports whether both credentials are set.
func (c SpotifyConfig) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// ScraperConfig points at the optional tour-statistics scraper.
type ScraperConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// PipelineConfig tunes the tally pipeline.
type PipelineConfig struct {
	RecentWindow    int `yaml:"recent_window"`
	StreamBuffer    int `yaml:"stream_buffer"`
	RevalidateQueue int `yaml:"revalidate_queue"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:       8080,
			BasePath:   "/",
			RunTimeout: 5 * time.Minute,
			TallyEvery: 6 * time.Second,
			TallyBurst: 10,
		},
		Database: DatabaseConfig{
			Path:                "/data/encore.db",
			MaintenanceInterval: 24 * time.Hour,
		},
		Logging: logging.DefaultConfig(),
		SetlistFM: SetlistFMConfig{
			MinInterval:   500 * time.Millisecond,
			MaxConcurrent: 2,
			MaxRetries:    3,
			BaseBackoff:   time.Second,
		},
		MusicBrainz: MusicBrainzConfig{
			MinInterval: time.Second,
		},
		Pipeline: PipelineConfig{
			RecentWindow:    20,
			StreamBuffer:    64,
			RevalidateQueue: 32,
		},
	}
}

// PathFromEnv returns the config file path from ENCORE_CONFIG_PATH, or
// DefaultPath.
func PathFromEnv() string {
	if v := os.Getenv("ENCORE_CONFIG_PATH"); v != "" {
		return v
	}
	return DefaultPath
}

// Load reads config from a YAML file (if it exists) and overrides with
// environment variables. Environment variables take precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, c)
}

func (c *Config) loadFromEnv() error {
	strs := map[string]*string{
		"ENCORE_BASE_PATH":            &c.Server.BasePath,
		"ENCORE_DB_PATH":              &c.Database.Path,
		"ENCORE_LOG_LEVEL":            &c.Logging.Level,
		"ENCORE_LOG_FORMAT":           &c.Logging.Format,
		"ENCORE_LOG_FILE":             &c.Logging.FilePath,
		"SETLISTFM_API_KEY":           &c.SetlistFM.APIKey,
		"ENCORE_SETLISTFM_BASE_URL":   &c.SetlistFM.BaseURL,
		"ENCORE_MUSICBRAINZ_BASE_URL": &c.MusicBrainz.BaseURL,
		"SPOTIFY_CLIENT_ID":           &c.Spotify.ClientID,
		"SPOTIFY_CLIENT_SECRET":       &c.Spotify.ClientSecret,
		"ENCORE_SCRAPER_URL":          &c.Scraper.BaseURL,
		"ENCORE_SCRAPER_KEY":          &c.Scraper.APIKey,
	}
	for name, dst := range strs {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"ENCORE_PORT":                &c.Server.Port,
		"ENCORE_SETLISTFM_MAX_PAGES": &c.SetlistFM.MaxPages,
	}
	for name, dst := range ints {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*dst = n
	}

	if v := os.Getenv("ENCORE_RUN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("ENCORE_RUN_TIMEOUT: %w", err)
		}
		c.Server.RunTimeout = d
	}
	return nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	if c.SetlistFM.MaxConcurrent < 1 {
		return fmt.Errorf("setlistfm.max_concurrent must be at least 1, got %d", c.SetlistFM.MaxConcurrent)
	}
	if c.SetlistFM.MinInterval < 0 || c.MusicBrainz.MinInterval < 0 {
		return fmt.Errorf("min_interval must not be negative")
	}
	if c.SetlistFM.MaxPages < 0 {
		return fmt.Errorf("setlistfm.max_pages must not be negative, got %d", c.SetlistFM.MaxPages)
	}
	if c.Pipeline.RecentWindow < 1 {
		return fmt.Errorf("pipeline.recent_window must be at least 1, got %d", c.Pipeline.RecentWindow)
	}
	if c.Pipeline.StreamBuffer < 1 || c.Pipeline.RevalidateQueue < 1 {
		return fmt.Errorf("pipeline stream_buffer and revalidate_queue must be positive")
	}
	if (c.Spotify.ClientID == "") != (c.Spotify.ClientSecret == "") {
		return fmt.Errorf("spotify client_id and client_secret must be set together")
	}
	c.Server.BasePath = strings.TrimRight(c.Server.BasePath, "/")
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		c.Server.BasePath = "/" + c.Server.BasePath
	}
	return nil
}
