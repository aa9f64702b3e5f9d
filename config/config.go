package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

type Config struct {
	// Server configuration
	Port        string
	Environment string

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Ledger configuration
	LedgerRPCURL string
	// AddressHRP is the bech32 human-readable prefix of payout addresses
	// ("ckb" mainnet, "ckt" testnet).
	AddressHRP    string
	UnitsPerToken int64

	// Price oracle configuration
	OracleURL     string
	OracleAssetID string
	OracleRefresh time.Duration

	// Payment policy
	ToleranceFactor decimal.Decimal

	// Sweep endpoint shared secret. May hold a bcrypt hash of the secret
	// instead of the secret itself.
	CronSecret string

	// Attendance credential issuer
	IssuerID         string
	IssuerPrivateKey string

	// PubNub configuration (optional buyer notifications)
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string

	// Monitoring
	EnableMetrics bool
}

func LoadConfig() *Config {
	return &Config{
		// Server
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// Ledger
		LedgerRPCURL:  getEnv("LEDGER_RPC_URL", ""),
		AddressHRP:    getEnv("LEDGER_ADDRESS_HRP", "ckb"),
		UnitsPerToken: getEnvAsInt64("UNITS_PER_TOKEN", 100_000_000),

		// Oracle
		OracleURL:     getEnv("ORACLE_URL", "https://api.coingecko.com/api/v3"),
		OracleAssetID: getEnv("ORACLE_ASSET_ID", "nervos-network"),
		OracleRefresh: getEnvAsDuration("ORACLE_REFRESH_WINDOW", "60s"),

		// Payment policy
		ToleranceFactor: getEnvAsTolerance("PRICE_TOLERANCE_FACTOR", "0.99"),

		// Sweep
		CronSecret: getEnv("CRON_SECRET", ""),

		// Credential issuer
		IssuerID:         getEnv("ISSUER_ID", ""),
		IssuerPrivateKey: getEnv("ATTENDANCE_ISSUER_PRIVATE_KEY", ""),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}

// getEnvAsTolerance parses the price drift tolerance and enforces the
// policy bounds: strictly positive, strictly below 1.
func getEnvAsTolerance(key string, defaultValue string) decimal.Decimal {
	valueStr := getEnv(key, defaultValue)
	tolerance, err := decimal.NewFromString(valueStr)
	if err != nil {
		log.Fatalf("invalid %s %q: %v", key, valueStr, err)
	}
	if tolerance.LessThanOrEqual(decimal.Zero) || tolerance.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		log.Fatalf("invalid %s %q: must be in (0, 1)", key, valueStr)
	}
	return tolerance
}
