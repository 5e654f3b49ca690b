package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Registry.MaxProjects)
	assert.Equal(t, 4, cfg.Registry.MaxListings)
	assert.Equal(t, DriverFile, cfg.Persistence.Driver)
	assert.Equal(t, "@every 30s", cfg.Reconcile.Schedule)
}

func TestLoadConfig_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"registry": {"app_id": 11, "asset_id": 22, "max_projects": 6},
		"persistence": {"driver": "memory"}
	}`), 0o600))

	t.Setenv("AARNA_APP_ID", "1001")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, uint64(1001), cfg.Registry.AppID, "environment wins over file")
	assert.Equal(t, uint64(22), cfg.Registry.AssetID)
	assert.Equal(t, 6, cfg.Registry.MaxProjects)
	assert.Equal(t, DriverMemory, cfg.Persistence.Driver)
}

func TestLoadConfig_InvalidIdentifier(t *testing.T) {
	t.Setenv("AARNA_ASSET_ID", "not-a-number")

	_, err := LoadConfig("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())

	cfg.Persistence.Driver = "cassandra"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Ledger.Mode = "grpc"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Registry.MaxListings = 0
	assert.Error(t, cfg.Validate())
}

func TestUseSimulatedLedger(t *testing.T) {
	cfg := Default()
	assert.False(t, cfg.UseSimulatedLedger())

	cfg.Session.Demo = true
	assert.True(t, cfg.UseSimulatedLedger())
}

func TestLoggingConfig_Build(t *testing.T) {
	logger, err := LoggingConfig{Level: "debug", Development: true}.Build()
	require.NoError(t, err)
	assert.NotNil(t, logger)

	_, err = LoggingConfig{Level: "loud"}.Build()
	assert.Error(t, err)
}
