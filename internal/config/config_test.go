package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnv_Defaults(t *testing.T) {
	cfg := LoadEnv()

	assert.Equal(t, "larapee.db", cfg.DBPath)
	assert.Equal(t, 30, cfg.API.TimeoutSeconds)
	assert.Equal(t, 10, cfg.Sync.RetryCeiling)
	assert.Equal(t, 100, cfg.Sync.BatchLimit)
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "console", cfg.Logger.Encoding)

	require.NoError(t, cfg.Validate())
}

func TestLoadEnv_Overrides(t *testing.T) {
	t.Setenv("LARAPEE_DB_PATH", "/tmp/other.db")
	t.Setenv("LARAPEE_API_BASE_URL", "https://api.example.com")
	t.Setenv("LARAPEE_API_TIMEOUT", "5")
	t.Setenv("LARAPEE_SYNC_RETRY_CEILING", "3")
	t.Setenv("LOGGER_LEVEL", "debug")

	cfg := LoadEnv()

	assert.Equal(t, "/tmp/other.db", cfg.DBPath)
	assert.Equal(t, "https://api.example.com", cfg.API.BaseURL)
	assert.Equal(t, 5, cfg.API.TimeoutSeconds)
	assert.Equal(t, 3, cfg.Sync.RetryCeiling)
	assert.Equal(t, "debug", cfg.Logger.Level)

	require.NoError(t, cfg.Validate())
}

func TestLoadEnv_BadIntFallsBack(t *testing.T) {
	t.Setenv("LARAPEE_SYNC_BATCH_LIMIT", "not a number")

	cfg := LoadEnv()
	assert.Equal(t, 100, cfg.Sync.BatchLimit)
}

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing db path", func(c *Config) { c.DBPath = "" }},
		{"bad base url", func(c *Config) { c.API.BaseURL = "not a url" }},
		{"zero timeout", func(c *Config) { c.API.TimeoutSeconds = 0 }},
		{"zero retry ceiling", func(c *Config) { c.Sync.RetryCeiling = 0 }},
		{"zero batch limit", func(c *Config) { c.Sync.BatchLimit = 0 }},
		{"bad log level", func(c *Config) { c.Logger.Level = "loud" }},
		{"bad encoding", func(c *Config) { c.Logger.Encoding = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := LoadEnv()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
