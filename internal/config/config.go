package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all smartblog configuration.
type Config struct {
	// API server the client talks to
	API APIConfig `yaml:"api"`

	// Autosave debounce settings
	Autosave AutosaveConfig `yaml:"autosave"`

	// Persisted client state
	Session SessionConfig `yaml:"session"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// APIConfig configures the HTTP transport.
type APIConfig struct {
	BaseURL       string `yaml:"base_url"`       // includes the /api prefix
	Timeout       string `yaml:"timeout"`        // REST calls
	StreamTimeout string `yaml:"stream_timeout"` // whole generation stream
}

// AutosaveConfig configures the autosave coordinator.
type AutosaveConfig struct {
	Delay       string `yaml:"delay"`        // quiet period before a flush
	SaveTimeout string `yaml:"save_timeout"` // per-flush deadline
}

// SessionConfig configures where the bearer token survives restarts.
type SessionConfig struct {
	DatabasePath string `yaml:"database_path"`
	TokenSlot    string `yaml:"token_slot"`
}

// Defaults used when a value is missing or unparseable.
const (
	DefaultBaseURL       = "http://localhost:8000/api"
	DefaultTimeout       = 30 * time.Second
	DefaultStreamTimeout = 5 * time.Minute
	DefaultAutosaveDelay = 1500 * time.Millisecond
	DefaultSaveTimeout   = 30 * time.Second
	DefaultTokenSlot     = "smart_blog_token"
)

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:       DefaultBaseURL,
			Timeout:       "30s",
			StreamTimeout: "5m",
		},
		Autosave: AutosaveConfig{
			Delay:       "1500ms",
			SaveTimeout: "30s",
		},
		Session: SessionConfig{
			DatabasePath: filepath.Join(DefaultHome(), "state.db"),
			TokenSlot:    DefaultTokenSlot,
		},
		Logging: LoggingConfig{
			Level:     "info",
			DebugMode: false,
			Dir:       filepath.Join(DefaultHome(), "logs"),
		},
	}
}

// DefaultHome returns ~/.smartblog, or .smartblog when the home directory is unknown.
func DefaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".smartblog"
	}
	return filepath.Join(home, ".smartblog")
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(DefaultHome(), "config.yaml")
}

// Load loads configuration from a YAML file. A .env file in the working
// directory is read first so its values take part in the environment overrides.
func Load(path string) (*Config, error) {
	// Missing .env is fine
	_ = godotenv.Load()

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if u := os.Getenv("SMARTBLOG_API_URL"); u != "" {
		c.API.BaseURL = u
	}
	if path := os.Getenv("SMARTBLOG_DB"); path != "" {
		c.Session.DatabasePath = path
	}
	if d := os.Getenv("SMARTBLOG_AUTOSAVE_DELAY"); d != "" {
		c.Autosave.Delay = d
	}
	if lvl := os.Getenv("SMARTBLOG_LOG_LEVEL"); lvl != "" {
		c.Logging.Level = lvl
	}
	if v := os.Getenv("SMARTBLOG_DEBUG"); v != "" {
		if on, err := strconv.ParseBool(v); err == nil {
			c.Logging.DebugMode = on
		}
	}
}

// GetTimeout returns the REST timeout as a duration.
func (c *Config) GetTimeout() time.Duration {
	return parseDuration(c.API.Timeout, DefaultTimeout)
}

// GetStreamTimeout returns the generation stream timeout as a duration.
func (c *Config) GetStreamTimeout() time.Duration {
	return parseDuration(c.API.StreamTimeout, DefaultStreamTimeout)
}

// GetAutosaveDelay returns the debounce delay as a duration.
func (c *Config) GetAutosaveDelay() time.Duration {
	return parseDuration(c.Autosave.Delay, DefaultAutosaveDelay)
}

// GetSaveTimeout returns the per-flush deadline as a duration.
func (c *Config) GetSaveTimeout() time.Duration {
	return parseDuration(c.Autosave.SaveTimeout, DefaultSaveTimeout)
}

// GetTokenSlot returns the persisted credential slot name.
func (c *Config) GetTokenSlot() string {
	if c.Session.TokenSlot == "" {
		return DefaultTokenSlot
	}
	return c.Session.TokenSlot
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid api.base_url %q: %w", c.API.BaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid api.base_url %q: scheme must be http or https", c.API.BaseURL)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid api.base_url %q: missing host", c.API.BaseURL)
	}
	if c.Autosave.Delay != "" {
		if _, err := time.ParseDuration(c.Autosave.Delay); err != nil {
			return fmt.Errorf("invalid autosave.delay %q: %w", c.Autosave.Delay, err)
		}
	}
	if c.Session.DatabasePath == "" {
		return fmt.Errorf("session.database_path must not be empty")
	}
	return nil
}
