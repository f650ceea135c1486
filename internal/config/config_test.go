package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.NotEmpty(t, cfg.Store.Path)
	assert.NotEmpty(t, cfg.Store.MarkerPath)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "development", cfg.Log.Env)
	assert.Equal(t, 24*time.Hour, cfg.Access.TokenTTL)
	assert.Equal(t, 30*time.Second, cfg.AutoSave.Interval)
	assert.Equal(t, 2*time.Second, cfg.AutoSave.Debounce)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("FISCALBOX_DB_PATH", "/tmp/x.db")
	t.Setenv("FISCALBOX_MARKER_PATH", "/tmp/x.marker")
	t.Setenv("FISCALBOX_LOG_LEVEL", "debug")
	t.Setenv("FISCALBOX_ENV", "production")
	t.Setenv("FISCALBOX_ACCESS_TOKEN_TTL", "1h")
	t.Setenv("FISCALBOX_AUTOSAVE_INTERVAL", "5s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x.db", cfg.Store.Path)
	assert.Equal(t, "/tmp/x.marker", cfg.Store.MarkerPath)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "production", cfg.Log.Env)
	assert.Equal(t, time.Hour, cfg.Access.TokenTTL)
	assert.Equal(t, 5*time.Second, cfg.AutoSave.Interval)
}

func TestDataDirDerivesPaths(t *testing.T) {
	t.Setenv("FISCALBOX_DATA_DIR", "/data/fiscal")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/data/fiscal/fiscalbox.db", cfg.Store.Path)
	assert.Equal(t, "/data/fiscal/active-tenant", cfg.Store.MarkerPath)
}
