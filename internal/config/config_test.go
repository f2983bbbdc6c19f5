package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, TransportInproc, cfg.Transport)
	assert.Equal(t, StorageMemory, cfg.Storage)
	assert.Equal(t, 20, cfg.Relay.BatchSize)
	assert.Equal(t, 5, cfg.Relay.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.Relay.BaseDelay)
	assert.Equal(t, 10*time.Minute, cfg.Workers.StuckTimeout)
	assert.Equal(t, int64(1000), cfg.Sales.TaxRateBps)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("BACKOFFICE_RELAY_BATCH_SIZE", "50")
	t.Setenv("BACKOFFICE_TRANSPORT", "kafka")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Relay.BatchSize)
	assert.Equal(t, TransportKafka, cfg.Transport)
}

func TestValidate(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Transport = "carrier-pigeon"
	assert.Error(t, cfg.Validate())

	cfg.Transport = TransportInproc
	cfg.Storage = StorageMySQL
	cfg.MySQL.DSN = ""
	assert.Error(t, cfg.Validate())

	cfg.MySQL.DSN = "user:pass@tcp(localhost:3306)/backoffice?parseTime=true"
	assert.NoError(t, cfg.Validate())

	cfg.Relay.BatchSize = 0
	assert.Error(t, cfg.Validate())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}
