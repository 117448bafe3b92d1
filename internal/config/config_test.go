package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wabridge/internal/constants"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `{"callbackUrl": "https://crm.example.com"}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "https://crm.example.com", cfg.CallbackURL)
	assert.Equal(t, constants.DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, constants.DefaultConfigDir, cfg.ConfigDir)
	assert.Equal(t, constants.DefaultDataDir, cfg.DataDir)
	assert.Equal(t, constants.DefaultMediaDir, cfg.MediaDir)
	assert.Equal(t, constants.DefaultUnmappedLogPath, cfg.UnmappedLogPath)
	assert.Equal(t, constants.DefaultRetentionDays, cfg.RetentionDays)
	assert.Equal(t, "wabridge", cfg.Tracing.ServiceName)
}

func TestLoadConfigMissingCallbackURL(t *testing.T) {
	path := writeConfig(t, `{}`)

	_, err := LoadConfig(path)
	assert.ErrorIs(t, err, ErrMissingCallbackURL)
}

func TestLoadConfigEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, `{"callbackUrl": "https://crm.example.com", "server": {"port": 4000}}`)

	t.Setenv("CALLBACK_URL", "https://override.example.com")
	t.Setenv("PORT", "5005")
	t.Setenv("WABRIDGE_ENV", "staging")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "https://override.example.com", cfg.CallbackURL)
	assert.Equal(t, 5005, cfg.Server.Port)
	assert.Equal(t, "staging", cfg.Tracing.Environment)
}

func TestLoadConfigInvalidJSON(t *testing.T) {
	path := writeConfig(t, `{broken`)

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
