package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "bogus"
	cfg.LogLevel = "loud"
	cfg.Producer.DepthLevels = 1

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
	assert.Contains(t, err.Error(), "unknown log_level")
	assert.Contains(t, err.Error(), "depth_levels")
}

func TestLLMRequiresKeyWhenEnabled(t *testing.T) {
	cfg := Defaults()
	cfg.LLM.Enabled = true
	cfg.LLM.APIKey = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key")
}

func TestLoadTOMLAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	data := `
mode = "once"

[producer]
instruments = ["ETHUSDT", "BTCUSDT"]
interval = "15s"

[policy]
high_confidence = 90
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	t.Setenv("BOOKPULSE_PRODUCER_NAME", "bookpulse-test")
	t.Setenv("BOOKPULSE_REDIS_ADDR", "redis:6380")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "once", cfg.Mode)
	assert.Equal(t, []string{"ETHUSDT", "BTCUSDT"}, cfg.Producer.Instruments)
	assert.Equal(t, 90, cfg.Policy.HighConfidence)
	assert.Equal(t, "bookpulse-test", cfg.Producer.Name)
	assert.Equal(t, "redis:6380", cfg.Redis.Addr)
	// Untouched fields keep their defaults.
	assert.Equal(t, 100, cfg.Producer.DepthLevels)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults().Producer.Name, cfg.Producer.Name)
}
