package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_ReadsPrefixedEnv(t *testing.T) {
	t.Setenv("CARPOOL_DB_HOST", "db.internal")
	t.Setenv("CARPOOL_KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("CARPOOL_SERVICE_PORT", "9000")

	v, err := Load("CARPOOL")
	require.NoError(t, err)

	db := LoadDatabaseConfig(v, "DB_NAME")
	assert.Equal(t, "db.internal", db.Host)
	assert.Equal(t, "5432", db.Port)

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, LoadKafkaConfig(v).Brokers)
	assert.Equal(t, ":9000", GetServicePort(v, "SERVICE_PORT"))
	assert.Equal(t, "development", GetAppEnv(v))
}
