package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	Reset()
	t.Setenv("STRATA_CONFIG", filepath.Join(t.TempDir(), "does-not-exist.toml"))

	// Explicit missing file is an error; defaults only apply when no file
	// path was forced.
	_, err := Load()
	assert.Error(t, err)

	Reset()
	t.Setenv("STRATA_CONFIG", "")
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "strata.db", cfg.Database.Path)
	assert.Equal(t, 3, cfg.Enhance.FrequencyThreshold)
	assert.InDelta(t, 0.85, cfg.Enhance.ConfidenceThreshold, 1e-9)
	assert.Equal(t, 30, cfg.Enhance.TickerIntervalSeconds)
	assert.Equal(t, 10, cfg.Enhance.SampleLimit)
	assert.False(t, cfg.Log.JSON)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "strata.toml")
	content := `
[database]
path = "/tmp/custom.db"

[enhance]
frequency_threshold = 5
ticker_interval_seconds = 2
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/custom.db", cfg.Database.Path)
	assert.Equal(t, 5, cfg.Enhance.FrequencyThreshold)
	assert.Equal(t, 2, cfg.Enhance.TickerIntervalSeconds)
	// Unset keys keep defaults
	assert.InDelta(t, 0.85, cfg.Enhance.ConfidenceThreshold, 1e-9)
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
