package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.NotEmpty(t, cfg.Database.DSN)
	assert.Equal(t, 30*time.Second, cfg.Poller.InboxInterval)
	assert.Equal(t, ".txt", cfg.Ingest.Extension)
	assert.Equal(t, ";", cfg.Ingest.Delimiter)
	assert.Equal(t, 24*time.Hour, cfg.JWT.TokenExpiry)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{
		"server": {"port": 9090, "host": "0.0.0.0"},
		"database": {"dsn": "file:test.db"},
		"ingest": {"dir": "/var/drop"}
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "file:test.db", cfg.Database.DSN)
	assert.Equal(t, "/var/drop", cfg.Ingest.Dir)

	// Unspecified sections keep their defaults.
	assert.Equal(t, 50, cfg.Poller.InboxPageSize)
}

func TestLoadConfigRelativePath(t *testing.T) {
	_, err := LoadConfig("config.json")
	assert.Error(t, err)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestLoadConfigMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("PROVIDER_API_KEY", "env-key")
	t.Setenv("JWT_SECRET", "env-secret")
	t.Setenv("OPERATOR_NAME", "admin")
	t.Setenv("OPERATOR_PASSWORD", "env-password")

	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()

	assert.Equal(t, "env-key", cfg.Provider.APIKey)
	assert.Equal(t, "env-secret", cfg.JWT.Secret)
	assert.Equal(t, "admin", cfg.Bootstrap.OperatorName)
	assert.Equal(t, "env-password", cfg.Bootstrap.OperatorPassword)
}
