package config

import (
	"os"
	"strconv"
	"time"

	"gocombat/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	Ops       OpsConfig
	Harmonize HarmonizeConfig
}

// DatabaseConfig holds database connection settings. An empty URL is
// valid: the composition root falls back to in-memory storage.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Enabled reports whether a database was configured at all
func (c DatabaseConfig) Enabled() bool {
	return c.URL != ""
}

// ServerConfig holds REST API server settings
type ServerConfig struct {
	Port            string
	GinMode         string
	ShutdownTimeout time.Duration
}

// OpsConfig holds the health and profiling endpoint settings
type OpsConfig struct {
	Port    string
	Enabled bool
}

// HarmonizeConfig holds the default fitting parameters. Zero values defer
// to the domain defaults; requests may override per call.
type HarmonizeConfig struct {
	Tolerance     float64
	MaxIterations int
	Mode          string
	MaxParallel   int
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Database:  loadDatabaseConfig(),
		Server:    loadServerConfig(),
		Ops:       loadOpsConfig(),
		Harmonize: loadHarmonizeConfig(),
	}

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:             getEnvOrDefault("DATABASE_URL", ""),
		MaxOpenConns:    getEnvIntOrDefault("DB_MAX_OPEN_CONNS", 10),
		MaxIdleConns:    getEnvIntOrDefault("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvDurationOrDefault("DB_CONN_MAX_LIFETIME", 30*time.Minute),
	}
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Port:            getEnvOrDefault("PORT", "8080"),
		GinMode:         getEnvOrDefault("GIN_MODE", "debug"),
		ShutdownTimeout: getEnvDurationOrDefault("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

func loadOpsConfig() OpsConfig {
	return OpsConfig{
		Port:    getEnvOrDefault("OPS_PORT", "6060"),
		Enabled: getEnvBoolOrDefault("OPS_ENABLED", true),
	}
}

func loadHarmonizeConfig() HarmonizeConfig {
	return HarmonizeConfig{
		Tolerance:     getEnvFloatOrDefault("COMBAT_TOLERANCE", 0),
		MaxIterations: getEnvIntOrDefault("COMBAT_MAX_ITERATIONS", 0),
		Mode:          getEnvOrDefault("COMBAT_MODE", ""),
		MaxParallel:   getEnvIntOrDefault("COMBAT_MAX_PARALLEL", 0),
	}
}

func validateConfig(config *Config) error {
	if config.Server.Port == "" {
		return errors.ConfigInvalid("server port is required")
	}
	if config.Harmonize.Tolerance < 0 {
		return errors.ConfigInvalid("COMBAT_TOLERANCE must not be negative")
	}
	if config.Harmonize.MaxIterations < 0 {
		return errors.ConfigInvalid("COMBAT_MAX_ITERATIONS must not be negative")
	}
	if config.Database.Enabled() && config.Database.MaxOpenConns < 1 {
		return errors.ConfigInvalid("DB_MAX_OPEN_CONNS must be at least 1")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
