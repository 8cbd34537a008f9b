package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoreDriverPostgres, cfg.StoreDriver)
	assert.Equal(t, "carpool", cfg.DBConfig.DBName)
	assert.Equal(t, 3, cfg.LedgerMaxAttempts)
	assert.Equal(t, time.Minute, cfg.Housekeeping.Interval)
	assert.Equal(t, 200, cfg.Housekeeping.ExpireBatch)
	assert.Equal(t, 50, cfg.Housekeeping.CompleteBatch)
	assert.Equal(t, 6*time.Hour, cfg.Housekeeping.Grace)
	assert.Equal(t, 3*time.Second, cfg.LocationMinInterval)
	assert.True(t, cfg.Housekeeping.Enabled)
	assert.False(t, cfg.DriverVerificationRequired)
	assert.Empty(t, cfg.Mongo.URI)
	assert.Empty(t, cfg.MQTT.Broker)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("CARPOOL_STORE_DRIVER", "memory")
	t.Setenv("CARPOOL_LEDGER_MAX_ATTEMPTS", "5")
	t.Setenv("CARPOOL_DRIVER_VERIFICATION_REQUIRED", "true")
	t.Setenv("CARPOOL_HOUSEKEEPING_INTERVAL", "30s")
	t.Setenv("CARPOOL_HOUSEKEEPING_GRACE", "2h")
	t.Setenv("CARPOOL_MQTT_BROKER", "tcp://mqtt:1883")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoreDriverMemory, cfg.StoreDriver)
	assert.Equal(t, 5, cfg.LedgerMaxAttempts)
	assert.True(t, cfg.DriverVerificationRequired)
	assert.Equal(t, 30*time.Second, cfg.Housekeeping.Interval)
	assert.Equal(t, 2*time.Hour, cfg.Housekeeping.Grace)
	assert.Equal(t, "tcp://mqtt:1883", cfg.MQTT.Broker)
}

func TestLoad_RejectsBadValues(t *testing.T) {
	t.Run("unknown store driver", func(t *testing.T) {
		t.Setenv("CARPOOL_STORE_DRIVER", "sqlite")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("zero ledger attempts", func(t *testing.T) {
		t.Setenv("CARPOOL_LEDGER_MAX_ATTEMPTS", "0")
		_, err := Load()
		assert.Error(t, err)
	})
}
