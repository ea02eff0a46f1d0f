package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.Error(t, err)
	assert.Nil(t, cfg)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "homeledger.db", cfg.Database.Path)
	assert.False(t, cfg.Plaid.Enabled)
	assert.Equal(t, "https://sandbox.plaid.com", cfg.Plaid.BaseURL)
	assert.Equal(t, []string{"US"}, cfg.Plaid.CountryCodes)
	assert.Equal(t, []string{"transactions"}, cfg.Plaid.Products)
	assert.Equal(t, 100, cfg.Plaid.SyncPageSize)
	assert.Equal(t, 200, cfg.Plaid.Usage.FreeMonthlyCallLimit)
	assert.Equal(t, 80, cfg.Plaid.Usage.WarningThresholdPercent)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "homeledger.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9090"
database:
  path: /tmp/test.db
plaid:
  enabled: true
  client_id: yaml-client
  secret: yaml-secret
  sync_page_size: 50
  usage:
    free_monthly_call_limit: 10
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "/tmp/test.db", cfg.Database.Path)
	assert.True(t, cfg.Plaid.Enabled)
	assert.Equal(t, "yaml-client", cfg.Plaid.ClientID)
	assert.Equal(t, 50, cfg.Plaid.SyncPageSize)
	assert.Equal(t, 10, cfg.Plaid.Usage.FreeMonthlyCallLimit)
	// Untouched settings keep their defaults.
	assert.Equal(t, "en", cfg.Plaid.Language)
	assert.Equal(t, 80, cfg.Plaid.Usage.WarningThresholdPercent)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("HOMELEDGER_ADDR", ":7070")
	t.Setenv("PLAID_ENABLED", "true")
	t.Setenv("PLAID_CLIENT_ID", "env-client")
	t.Setenv("PLAID_COUNTRY_CODES", "US, CA")
	t.Setenv("PLAID_SYNC_PAGE_SIZE", "25")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.True(t, cfg.Plaid.Enabled)
	assert.Equal(t, "env-client", cfg.Plaid.ClientID)
	assert.Equal(t, []string{"US", "CA"}, cfg.Plaid.CountryCodes)
	assert.Equal(t, 25, cfg.Plaid.SyncPageSize)
}

func TestLoad_InvalidEnvValues(t *testing.T) {
	t.Setenv("PLAID_ENABLED", "maybe")
	_, err := Load("")
	require.Error(t, err)

	t.Setenv("PLAID_ENABLED", "true")
	t.Setenv("PLAID_SYNC_PAGE_SIZE", "many")
	_, err = Load("")
	require.Error(t, err)
}

func TestLoad_EmptyListsFallBack(t *testing.T) {
	t.Setenv("PLAID_COUNTRY_CODES", "  ")
	t.Setenv("PLAID_PRODUCTS", "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"US"}, cfg.Plaid.CountryCodes)
	assert.Equal(t, []string{"transactions"}, cfg.Plaid.Products)
}
