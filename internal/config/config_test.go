package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://api.census.gov/data/timeseries/intltrade", cfg.API.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.API.Timeout)
	assert.Equal(t, 2.0, cfg.API.RateLimit)
	assert.Equal(t, 1, cfg.API.MaxRetries)
	assert.Equal(t, 5, cfg.Retrieval.ChunkSize)
	assert.Equal(t, 1, cfg.Retrieval.Concurrency)
	assert.Equal(t, "*", cfg.Retrieval.Wildcard)
	assert.Equal(t, 24*time.Hour, cfg.Cache.TTL)
	assert.Empty(t, cfg.Cache.Path)
	assert.Equal(t, "saved_data", cfg.Output.Dir)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("TRADEQUERY_RETRIEVAL_CHUNK_SIZE", "3")
	t.Setenv("TRADEQUERY_API_KEY", strings.Repeat("a", 40))
	t.Setenv("TRADEQUERY_LOG_FORMAT", "json")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Retrieval.ChunkSize)
	assert.Equal(t, strings.Repeat("a", 40), cfg.API.Key)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFileOverridesEnv(t *testing.T) {
	t.Setenv("TRADEQUERY_RETRIEVAL_CHUNK_SIZE", "3")
	path := filepath.Join(t.TempDir(), "tradequery.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
retrieval:
  chunk_size: 8
  concurrency: 2
cache:
  path: cache.db
  ttl: 1h
output:
  dir: out
  by_year: true
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Retrieval.ChunkSize)
	assert.Equal(t, 2, cfg.Retrieval.Concurrency)
	assert.Equal(t, "cache.db", cfg.Cache.Path)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.Equal(t, "out", cfg.Output.Dir)
	assert.True(t, cfg.Output.ByYear)
	assert.Equal(t, "*", cfg.Retrieval.Wildcard)
}

func TestLoadFileSetsExplicitZero(t *testing.T) {
	t.Setenv("TRADEQUERY_API_MAX_RETRIES", "3")
	t.Setenv("TRADEQUERY_OUTPUT_BY_YEAR", "true")
	path := filepath.Join(t.TempDir(), "tradequery.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api:
  max_retries: 0
output:
  by_year: false
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.API.MaxRetries)
	assert.False(t, cfg.Output.ByYear)

	require.NoError(t, os.WriteFile(path, []byte("retrieval:\n  chunk_size: 4\n"), 0o644))
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.API.MaxRetries)
	assert.True(t, cfg.Output.ByYear)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("TRADEQUERY_API_KEY", "short")
	_, err := Load("")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoadFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("unknown_section: 1\n"), 0o644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestValidateAfterOverride(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Retrieval.Concurrency = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
	cfg.Retrieval.Concurrency = 4
	cfg.Log.Level = "loud"
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}
