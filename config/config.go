// Package config handles loading and managing application configuration.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	// Server configuration
	Server ServerConfig

	// Platform backend API configuration
	Backend BackendConfig

	// Payment gateway checkout runtime
	Gateway GatewayConfig

	// Anchor persistence
	Database DatabaseConfig

	// Purchase event publishing
	Kafka KafkaConfig

	// Orchestration policy
	Flow FlowConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port    string
	GinMode string // "debug", "release", or "test"
}

// BackendConfig holds platform backend API configuration.
type BackendConfig struct {
	BaseURL string
	APIKey  string
}

// GatewayConfig holds checkout runtime configuration.
type GatewayConfig struct {
	CheckoutURL string
	WaitTimeout time.Duration
}

// DatabaseConfig holds anchor store configuration. An empty DSN selects the
// in-memory store.
type DatabaseConfig struct {
	DSN            string
	MigrationsPath string
}

// KafkaConfig holds purchase event publishing configuration. No brokers
// disables publishing.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// FlowConfig holds the orchestrator's retry policy.
type FlowConfig struct {
	LedgerRetryAttempts uint
	LedgerRetryDelay    time.Duration
}

// Load reads configuration from environment variables.
// Returns a Config struct with all settings populated.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:    getEnv("PORT", "8080"),
			GinMode: getEnv("GIN_MODE", "debug"),
		},
		Backend: BackendConfig{
			BaseURL: getEnv("PLATFORM_BACKEND_URL", "http://localhost:8000"),
			APIKey:  getEnv("PLATFORM_BACKEND_API_KEY", ""),
		},
		Gateway: GatewayConfig{
			CheckoutURL: getEnv("GATEWAY_CHECKOUT_URL", ""),
			WaitTimeout: getEnvDuration("GATEWAY_WAIT_TIMEOUT", 15*time.Minute),
		},
		Database: DatabaseConfig{
			DSN:            getEnv("ANCHOR_DB_DSN", ""),
			MigrationsPath: getEnv("MIGRATIONS_PATH", "migrations"),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(getEnv("KAFKA_BROKERS", "")),
			Topic:   getEnv("KAFKA_PURCHASE_TOPIC", "purchase-events"),
		},
		Flow: FlowConfig{
			LedgerRetryAttempts: uint(getEnvInt("LEDGER_RETRY_ATTEMPTS", 3)),
			LedgerRetryDelay:    getEnvDuration("LEDGER_RETRY_DELAY", 200*time.Millisecond),
		},
	}
}

// getEnv retrieves an environment variable with a fallback default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an environment variable as an integer with a fallback.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration retrieves an environment variable as a duration with a fallback.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// splitList splits a comma-separated list, dropping empty entries.
func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
