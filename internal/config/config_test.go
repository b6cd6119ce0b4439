package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"SMARTBLOG_API_URL", "SMARTBLOG_DB", "SMARTBLOG_AUTOSAVE_DELAY",
		"SMARTBLOG_LOG_LEVEL", "SMARTBLOG_DEBUG",
	} {
		t.Setenv(k, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.API.BaseURL != "http://localhost:8000/api" {
		t.Errorf("expected default base URL, got %s", cfg.API.BaseURL)
	}
	if cfg.GetAutosaveDelay() != 1500*time.Millisecond {
		t.Errorf("expected 1500ms autosave delay, got %v", cfg.GetAutosaveDelay())
	}
	if cfg.GetTokenSlot() != "smart_blog_token" {
		t.Errorf("expected smart_blog_token slot, got %s", cfg.GetTokenSlot())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestConfig_SaveLoad(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := DefaultConfig()
	cfg.API.BaseURL = "https://blog.example.com/api"
	cfg.Autosave.Delay = "2s"
	cfg.Logging.Categories = map[string]bool{"api": false}

	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://blog.example.com/api", loaded.API.BaseURL)
	assert.Equal(t, 2*time.Second, loaded.GetAutosaveDelay())
	assert.False(t, loaded.Logging.Categories["api"])
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().API, cfg.API)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api: [unterminated"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestConfig_EnvOverrides(t *testing.T) {
	t.Setenv("SMARTBLOG_API_URL", "http://api:9000/api")
	t.Setenv("SMARTBLOG_DB", "/tmp/x.db")
	t.Setenv("SMARTBLOG_AUTOSAVE_DELAY", "250ms")
	t.Setenv("SMARTBLOG_LOG_LEVEL", "debug")
	t.Setenv("SMARTBLOG_DEBUG", "true")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	assert.Equal(t, "http://api:9000/api", cfg.API.BaseURL)
	assert.Equal(t, "/tmp/x.db", cfg.Session.DatabasePath)
	assert.Equal(t, 250*time.Millisecond, cfg.GetAutosaveDelay())
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.DebugMode)
}

func TestConfig_EnvOverrides_BadBoolIgnored(t *testing.T) {
	clearEnv(t)
	t.Setenv("SMARTBLOG_DEBUG", "sometimes")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()
	assert.False(t, cfg.Logging.DebugMode)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"no scheme", func(c *Config) { c.API.BaseURL = "localhost:8000" }, true},
		{"ftp scheme", func(c *Config) { c.API.BaseURL = "ftp://host/api" }, true},
		{"bad delay", func(c *Config) { c.Autosave.Delay = "soon" }, true},
		{"empty db", func(c *Config) { c.Session.DatabasePath = "" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_DurationFallbacks(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, DefaultTimeout, cfg.GetTimeout())
	assert.Equal(t, DefaultStreamTimeout, cfg.GetStreamTimeout())
	assert.Equal(t, DefaultSaveTimeout, cfg.GetSaveTimeout())

	cfg.Autosave.Delay = "-1s"
	assert.Equal(t, DefaultAutosaveDelay, cfg.GetAutosaveDelay())
}

func TestLoggingConfig_IsCategoryEnabled(t *testing.T) {
	lc := LoggingConfig{}
	assert.False(t, lc.IsCategoryEnabled("api"))

	lc.DebugMode = true
	assert.True(t, lc.IsCategoryEnabled("api"))

	lc.Categories = map[string]bool{"api": false}
	assert.False(t, lc.IsCategoryEnabled("api"))
	assert.True(t, lc.IsCategoryEnabled("autosave"))

	opts := lc.Options()
	assert.True(t, opts.DebugMode)
	assert.Equal(t, lc.Categories, opts.Categories)
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, DefaultConfig().Save(path))

	changes := make(chan *Config, 4)
	w, err := NewWatcher(path, func(c *Config) { changes <- c })
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	cfg := DefaultConfig()
	cfg.Logging.Level = "debug"
	require.NoError(t, cfg.Save(path))

	select {
	case got := <-changes:
		assert.Equal(t, "debug", got.Logging.Level)
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not report the change")
	}
}
