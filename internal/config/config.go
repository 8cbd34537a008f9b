package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/tripshare/service-carpool/internal/platform/config"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// MongoConfig selects the location history database. Empty URI disables it.
type MongoConfig struct {
	URI      string
	Database string
}

// MQTTConfig selects the broker for driver location ingest. Empty Broker disables it.
type MQTTConfig struct {
	Broker   string
	ClientID string
}

// HousekeepingConfig tunes the background sweep.
type HousekeepingConfig struct {
	Enabled       bool
	Interval      time.Duration
	ExpireBatch   int
	CompleteBatch int
	Grace         time.Duration
}

// ServiceConfig holds all configuration for the carpool service.
type ServiceConfig struct {
	Port         string
	AppEnv       string
	StoreDriver  string
	DBConfig     config.DatabaseConfig
	JWTConfig    config.JWTConfig
	KafkaConfig  config.KafkaConfig
	Mongo        MongoConfig
	MQTT         MQTTConfig
	Housekeeping HousekeepingConfig

	LedgerMaxAttempts          int
	DriverVerificationRequired bool
	LocationMinInterval        time.Duration
}

// Load reads configuration from CARPOOL_* environment variables.
func Load() (*ServiceConfig, error) {
	v, err := config.Load("CARPOOL")
	if err != nil {
		return nil, err
	}
	setDefaults(v)

	cfg := &ServiceConfig{
		Port:        config.GetServicePort(v, "SERVICE_PORT"),
		AppEnv:      config.GetAppEnv(v),
		StoreDriver: v.GetString("STORE_DRIVER"),
		DBConfig:    config.LoadDatabaseConfig(v, "DB_NAME"),
		JWTConfig:   config.LoadJWTConfig(v),
		KafkaConfig: config.LoadKafkaConfig(v),
		Mongo: MongoConfig{
			URI:      v.GetString("MONGO_URI"),
			Database: v.GetString("MONGO_DB"),
		},
		MQTT: MQTTConfig{
			Broker:   v.GetString("MQTT_BROKER"),
			ClientID: v.GetString("MQTT_CLIENT_ID"),
		},
		Housekeeping: HousekeepingConfig{
			Enabled:       v.GetBool("HOUSEKEEPING_ENABLED"),
			Interval:      v.GetDuration("HOUSEKEEPING_INTERVAL"),
			ExpireBatch:   v.GetInt("HOUSEKEEPING_EXPIRE_BATCH"),
			CompleteBatch: v.GetInt("HOUSEKEEPING_COMPLETE_BATCH"),
			Grace:         v.GetDuration("HOUSEKEEPING_GRACE"),
		},
		LedgerMaxAttempts:          v.GetInt("LEDGER_MAX_ATTEMPTS"),
		DriverVerificationRequired: v.GetBool("DRIVER_VERIFICATION_REQUIRED"),
		LocationMinInterval:        v.GetDuration("LOCATION_MIN_INTERVAL"),
	}

	if cfg.StoreDriver != StoreDriverPostgres && cfg.StoreDriver != StoreDriverMemory {
		return nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
	if cfg.LedgerMaxAttempts < 1 {
		return nil, fmt.Errorf("LEDGER_MAX_ATTEMPTS must be at least 1, got %d", cfg.LedgerMaxAttempts)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("STORE_DRIVER", StoreDriverPostgres)
	v.SetDefault("DB_NAME", "carpool")
	v.SetDefault("MONGO_DB", "carpool")
	v.SetDefault("MQTT_CLIENT_ID", "service-carpool")
	v.SetDefault("HOUSEKEEPING_ENABLED", true)
	v.SetDefault("HOUSEKEEPING_INTERVAL", "1m")
	v.SetDefault("HOUSEKEEPING_EXPIRE_BATCH", 200)
	v.SetDefault("HOUSEKEEPING_COMPLETE_BATCH", 50)
	v.SetDefault("HOUSEKEEPING_GRACE", "6h")
	v.SetDefault("LEDGER_MAX_ATTEMPTS", 3)
	v.SetDefault("DRIVER_VERIFICATION_REQUIRED", false)
	v.SetDefault("LOCATION_MIN_INTERVAL", "3s")
}
