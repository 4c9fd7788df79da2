// Package config provides configuration loading and management for the application.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Store backends
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config holds all application configuration
type Config struct {
	// HTTP server port
	Port string

	// Storage backend and its location
	StoreBackend string
	SQLitePath   string
	DatabaseURL  string

	// Bearer token signing
	JWTSecret string
	TokenTTL  time.Duration

	// Request rate limiting
	RateLimitRPS   float64
	RateLimitBurst int

	// Cron expression of pool snapshots, empty to disable
	SnapshotCron string

	// Webhook receiving receipts and snapshots, empty to disable
	WebhookURL      string
	WebhookAPIKey   string
	ExportBatchSize int
	ExportInterval  time.Duration

	// OpenTelemetry endpoint for observability
	OtelEndpoint    string
	OtelSampleRatio float64

	// Circuit breaker around budget queries
	BreakerFailures  int
	BreakerCooldown  time.Duration
	BreakerSuccesses int

	// Hex secp256k1 key signing receipt ids, empty for an ephemeral key
	SigningKey string

	// YAML file with the initial admin, balances and pools
	GenesisFile string

	RequestTimeout time.Duration
}

// Load creates a new Config from environment variables
func Load() Config {
	return Config{
		Port:             GetEnvOrDefault("PORT", "8080"),
		StoreBackend:     strings.ToLower(GetEnvOrDefault("STORE_BACKEND", BackendMemory)),
		SQLitePath:       GetEnvOrDefault("SQLITE_PATH", "rewards.db"),
		DatabaseURL:      GetEnvOrDefault("DATABASE_URL", ""),
		JWTSecret:        GetEnvOrDefault("JWT_SECRET", ""),
		TokenTTL:         GetEnvAsDuration("TOKEN_TTL", 15*time.Minute),
		RateLimitRPS:     GetEnvAsFloat("RATE_LIMIT_RPS", 10.0),
		RateLimitBurst:   GetEnvAsInt("RATE_LIMIT_BURST", 20),
		SnapshotCron:     GetEnvOrDefault("SNAPSHOT_CRON", "@every 1m"),
		WebhookURL:       GetEnvOrDefault("WEBHOOK_URL", ""),
		WebhookAPIKey:    GetEnvOrDefault("WEBHOOK_API_KEY", ""),
		ExportBatchSize:  GetEnvAsInt("EXPORT_BATCH_SIZE", 100),
		ExportInterval:   GetEnvAsDuration("EXPORT_INTERVAL", time.Minute),
		OtelEndpoint:     GetEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OtelSampleRatio:  GetEnvAsFloat("OTEL_SAMPLE_RATIO", 1.0),
		BreakerFailures:  GetEnvAsInt("BREAKER_FAILURES", 5),
		BreakerCooldown:  GetEnvAsDuration("BREAKER_COOLDOWN", 30*time.Second),
		BreakerSuccesses: GetEnvAsInt("BREAKER_SUCCESSES", 3),
		SigningKey:       GetEnvOrDefault("SIGNING_KEY", ""),
		GenesisFile:      GetEnvOrDefault("GENESIS_FILE", ""),
		RequestTimeout:   GetEnvAsDuration("REQUEST_TIMEOUT", 10*time.Second),
	}
}

// Validate reports configuration that cannot work
func (c Config) Validate() error {
	switch c.StoreBackend {
	case BackendMemory:
	case BackendSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("config: SQLITE_PATH is required for the sqlite backend")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("config: DATABASE_URL is required for the postgres backend")
		}
	default:
		return fmt.Errorf("config: unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if len(c.JWTSecret) < 16 {
		return fmt.Errorf("config: JWT_SECRET must be at least 16 bytes")
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("config: rate limit must be positive")
	}
	if c.OtelSampleRatio < 0 || c.OtelSampleRatio > 1 {
		return fmt.Errorf("config: OTEL_SAMPLE_RATIO must be within [0, 1]")
	}
	return nil
}

// GetEnv retrieves an environment variable and whether it exists
func GetEnv(key string) (string, bool) {
	value, exists := os.LookupEnv(key)
	return value, exists
}

// GetEnvOrDefault retrieves an environment variable or returns the default value if not set
func GetEnvOrDefault(key, defaultValue string) string {
	if value, exists := GetEnv(key); exists {
		return value
	}
	return defaultValue
}

// GetEnvAsInt retrieves an environment variable as an integer with a default value
func GetEnvAsInt(key string, defaultValue int) int {
	if value, exists := GetEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
		logrus.Warnf("Invalid integer in %s, using default: %v", key, defaultValue)
	}
	return defaultValue
}

// GetEnvAsFloat retrieves an environment variable as a float with a default value
func GetEnvAsFloat(key string, defaultValue float64) float64 {
	if value, exists := GetEnv(key); exists {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
		logrus.Warnf("Invalid float in %s, using default: %v", key, defaultValue)
	}
	return defaultValue
}

// GetEnvAsBool retrieves an environment variable as a boolean with a default value
func GetEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := GetEnv(key); exists {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
		logrus.Warnf("Invalid boolean in %s, using default: %v", key, defaultValue)
	}
	return defaultValue
}

// GetEnvAsDuration retrieves an environment variable as a duration with a default value
func GetEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := GetEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		logrus.Warnf("Invalid duration in %s, using default: %v", key, defaultValue)
	}
	return defaultValue
}
