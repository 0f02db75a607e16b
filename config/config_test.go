package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	cfg, err := unmarshal(v)
	require.NoError(t, err)

	assert.Equal(t, "brandforge.db", cfg.Database.Path)
	assert.Equal(t, 1, cfg.Engine.ItemConcurrency)
	assert.Equal(t, 60, cfg.Generation.MaxPolls)
	assert.Equal(t, 180, cfg.Progress.ExpectedSeconds["video.promo"])
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "brandforge.toml")
	content := `
[database]
path = "/tmp/test.db"

[engine]
item_concurrency = 4

[generation]
max_polls = 10

[progress.expected_seconds]
"video.promo" = 240
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/test.db", cfg.Database.Path)
	assert.Equal(t, 4, cfg.Engine.ItemConcurrency)
	assert.Equal(t, 10, cfg.Generation.MaxPolls)
	assert.Equal(t, 240, cfg.Progress.ExpectedSeconds["video.promo"])
}

func TestValidateRejectsBadValues(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	v.Set("engine.item_concurrency", 0)
	_, err := unmarshal(v)
	assert.Error(t, err)

	v.Set("engine.item_concurrency", 1)
	v.Set("generation.poll_interval_ms", -5)
	_, err = unmarshal(v)
	assert.Error(t, err)

	v.Set("generation.poll_interval_ms", 1000)
	v.Set("server.port", 0)
	_, err = unmarshal(v)
	assert.Error(t, err)
}

func TestValidateGuardsPrivateBackendURL(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	// Defaults point at a local backend and explicitly allow it
	cfg, err := unmarshal(v)
	require.NoError(t, err)
	assert.True(t, cfg.Generation.AllowPrivateBackend)

	// Withdrawing the allowance while base_url stays local must fail at
	// startup, not as per-item failures once jobs run
	v.Set("generation.allow_private_backend", false)
	_, err = unmarshal(v)
	assert.Error(t, err)

	v.Set("generation.base_url", "https://gen.example.com")
	_, err = unmarshal(v)
	assert.NoError(t, err)

	v.Set("generation.base_url", "://bad")
	_, err = unmarshal(v)
	assert.Error(t, err)
}
