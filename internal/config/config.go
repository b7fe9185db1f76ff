package config

import (
	"os"
	"strconv"
	"strings"
)

// Config holds all configuration for the deployer and its registry server
type Config struct {
	Network   NetworkConfig
	Project   ProjectConfig
	Server    ServerConfig
	Storage   StorageConfig
	Logging   LoggingConfig
	RateLimit RateLimitConfig
	Metrics   MetricsConfig
}

// NetworkConfig holds the target EVM network settings
type NetworkConfig struct {
	Name          string
	RPCURL        string
	ChainID       int64  // 0 = take whatever the node reports
	PrivateKey    string // hex, with or without 0x
	Confirmations int
	DeployTimeout int // seconds, 0 = wait forever
	// Libraries maps fully qualified library names to addresses linked
	// into deployed and verified bytecode
	Libraries map[string]string
}

// ProjectConfig holds the contract project settings
type ProjectConfig struct {
	Dir            string
	Builder        string // "hardhat", "foundry" or "" to detect
	IgnitionDir    string
	MinSolcVersion string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int
	Host         string
	ReadTimeout  int // seconds
	WriteTimeout int // seconds
	IdleTimeout  int // seconds
	// TrustProxy takes the client IP from X-Forwarded-For / X-Real-IP
	TrustProxy bool
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Type     string // "sqlite" or "postgres"
	Postgres PostgresConfig
	SQLite   SQLiteConfig
}

// PostgresConfig holds Postgres connection settings
type PostgresConfig struct {
	URL string
}

// SQLiteConfig holds SQLite settings
type SQLiteConfig struct {
	Path string
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string
	Format string // "text" or "json"
}

// RateLimitConfig holds rate limiting settings
type RateLimitConfig struct {
	Enabled        bool
	RequestsPerMin int
	BurstSize      int
	CleanupMinutes int
}

// MetricsConfig holds Prometheus settings
type MetricsConfig struct {
	Enabled bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Network: NetworkConfig{
			Name:          getEnv("NETWORK", "localhost"),
			RPCURL:        getEnv("RPC_URL", "http://127.0.0.1:8545"),
			ChainID:       getEnvInt64("CHAIN_ID", 0),
			PrivateKey:    getEnv("DEPLOYER_PRIVATE_KEY", ""),
			Confirmations: getEnvInt("CONFIRMATIONS", 1),
			DeployTimeout: getEnvInt("DEPLOY_TIMEOUT", 0),
		},
		Project: ProjectConfig{
			Dir:            getEnv("PROJECT_DIR", "."),
			Builder:        getEnv("ARTIFACT_BUILDER", ""),
			IgnitionDir:    getEnv("IGNITION_DIR", "ignition/deployments"),
			MinSolcVersion: getEnv("MIN_SOLC_VERSION", ""),
		},
		Server: ServerConfig{
			Port:         getEnvInt("PORT", 8080),
			Host:         getEnv("HOST", "0.0.0.0"),
			ReadTimeout:  getEnvInt("SERVER_READ_TIMEOUT", 30),
			WriteTimeout: getEnvInt("SERVER_WRITE_TIMEOUT", 60),
			IdleTimeout:  getEnvInt("SERVER_IDLE_TIMEOUT", 120),
			TrustProxy:   getEnvBool("TRUST_PROXY", false),
		},
		Storage: StorageConfig{
			Type: getEnv("STORAGE_TYPE", "sqlite"),
			Postgres: PostgresConfig{
				URL: getEnv("DATABASE_URL", ""),
			},
			SQLite: SQLiteConfig{
				Path: getEnv("SQLITE_PATH", "./data/piggyfactory.db"),
			},
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
		RateLimit: RateLimitConfig{
			Enabled:        getEnvBool("RATE_LIMIT_ENABLED", true),
			RequestsPerMin: getEnvInt("RATE_LIMIT_RPM", 300),
			BurstSize:      getEnvInt("RATE_LIMIT_BURST", 50),
			CleanupMinutes: getEnvInt("RATE_LIMIT_CLEANUP_MINUTES", 10),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
		},
	}

	// If DATABASE_URL is set, default to postgres
	if cfg.Storage.Postgres.URL != "" && cfg.Storage.Type == "sqlite" {
		cfg.Storage.Type = "postgres"
	}

	if cfg.Network.Confirmations < 1 {
		cfg.Network.Confirmations = 1
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}
