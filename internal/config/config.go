// Package config loads process configuration from the environment (optionally seeded from a
// .env file), matching the recognized options enumerated in spec §6.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the process-wide configuration snapshot, loaded once at startup.
type Config struct {
	// Exchange credentials
	BinanceAPIKey    string
	BinanceAPISecret string
	BinanceTestnet   bool

	// Scheduler
	PriceRefreshCron         string
	PriceRefreshMaxPerMinute int
	KlineCleanupCron         string
	KlineCleanupRetentionDays int
	KlineSyncCheckInterval   time.Duration
	ReconcileCron            string

	// Ambient
	LogLevel        string
	DBPath          string
	HTTPAddr        string
	MetricsAddr     string
	FacadeJWTSecret string
}

// Load reads configuration from the environment, applying a .env file first if present (the
// .env is best-effort: a missing file is not an error, matching godotenv.Load's own contract
// when called with no explicit path in local-dev setups across the example corpus).
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		BinanceAPIKey:    os.Getenv("BINANCE_API_KEY"),
		BinanceAPISecret: os.Getenv("BINANCE_API_SECRET"),
		BinanceTestnet:   getBool("BINANCE_TESTNET", false),

		PriceRefreshCron:          getString("PRICE_REFRESH_CRON", "*/5 * * * *"),
		PriceRefreshMaxPerMinute:  getInt("PRICE_REFRESH_MAX_PER_MINUTE", 1000),
		KlineCleanupCron:          getString("KLINE_CLEANUP_CRON", "0 */1 * * *"),
		KlineCleanupRetentionDays: getInt("KLINE_CLEANUP_RETENTION_DAYS", 14),
		KlineSyncCheckInterval:    time.Duration(getInt("KLINE_SYNC_CHECK_INTERVAL", 10)) * time.Second,
		ReconcileCron:             getString("RECONCILE_CRON", "*/1 * * * *"),

		LogLevel:        getString("LOG_LEVEL", "info"),
		DBPath:          getString("DB_PATH", "perpilot.db"),
		HTTPAddr:        getString("HTTP_ADDR", ":8080"),
		MetricsAddr:     getString("METRICS_ADDR", ":9090"),
		FacadeJWTSecret: getString("FACADE_JWT_SECRET", ""),
	}
}

func getString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
