package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Application
	LogLevel string
	HTTPPort string

	// Simulator
	SimEnabled             bool
	InitialCapital         float64
	QuoteCurrency          string
	LatencyMinMs           int
	LatencyMaxMs           int
	MaxSlippageBps         float64
	MakerFeeBps            float64
	TakerFeeBps            float64
	DeterministicSeed      *int64
	FundingPeriodHours     float64
	FundingRefreshInterval time.Duration
	RefreshInterval        time.Duration

	// Market data feed
	FeedBaseURL         string
	FeedPrimaryExchange string
	FeedRequestTimeout  time.Duration

	// Journal
	JournalMode  string // "postgres" or "console"
	PostgresHost string
	PostgresPort string
	PostgresUser string
	PostgresPass string
	PostgresDB   string
	PostgresSSL  string
}

// LoadFromEnv loads configuration from environment variables with defaults.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		// Application defaults
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
		HTTPPort: getEnvOrDefault("HTTP_PORT", "8080"),

		// Simulator defaults
		SimEnabled:             getBoolOrDefault("SIM_ENABLED", true),
		InitialCapital:         getFloat64OrDefault("SIM_INITIAL_CAPITAL", 10000.0),
		QuoteCurrency:          getEnvOrDefault("SIM_QUOTE_CURRENCY", "USDT"),
		LatencyMinMs:           getIntOrDefault("SIM_LATENCY_MIN_MS", 5),
		LatencyMaxMs:           getIntOrDefault("SIM_LATENCY_MAX_MS", 40),
		MaxSlippageBps:         getFloat64OrDefault("SIM_MAX_SLIPPAGE_BPS", 3.0),
		MakerFeeBps:            getFloat64OrDefault("SIM_MAKER_FEE_BPS", 2.0),
		TakerFeeBps:            getFloat64OrDefault("SIM_TAKER_FEE_BPS", 5.0),
		FundingPeriodHours:     getFloat64OrDefault("SIM_FUNDING_PERIOD_HOURS", 8.0),
		FundingRefreshInterval: getDurationOrDefault("SIM_FUNDING_REFRESH_INTERVAL", 5*time.Minute),
		RefreshInterval:        getDurationOrDefault("SIM_REFRESH_INTERVAL", 15*time.Second),

		// Feed defaults
		FeedBaseURL:         getEnvOrDefault("FEED_BASE_URL", "https://www.okx.com"),
		FeedPrimaryExchange: getEnvOrDefault("FEED_PRIMARY_EXCHANGE", "binance"),
		FeedRequestTimeout:  getDurationOrDefault("FEED_REQUEST_TIMEOUT", 10*time.Second),

		// Journal defaults
		JournalMode:  getEnvOrDefault("JOURNAL_MODE", "console"),
		PostgresHost: getEnvOrDefault("POSTGRES_HOST", "localhost"),
		PostgresPort: getEnvOrDefault("POSTGRES_PORT", "5432"),
		PostgresUser: getEnvOrDefault("POSTGRES_USER", "perpsim"),
		PostgresPass: getEnvOrDefault("POSTGRES_PASSWORD", "perpsim123"),
		PostgresDB:   getEnvOrDefault("POSTGRES_DB", "perpsim"),
		PostgresSSL:  getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
	}

	if raw := os.Getenv("SIM_DETERMINISTIC_SEED"); raw != "" {
		seed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse SIM_DETERMINISTIC_SEED: %w", err)
		}
		cfg.DeterministicSeed = &seed
	}

	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// FundingPeriod returns the configured funding period as a duration.
func (c *Config) FundingPeriod() time.Duration {
	return time.Duration(c.FundingPeriodHours * float64(time.Hour))
}

// Validate checks that configuration values are valid.
func (c *Config) Validate() error {
	if c.HTTPPort == "" {
		return fmt.Errorf("HTTP_PORT cannot be empty")
	}

	if c.InitialCapital <= 0 {
		return fmt.Errorf("SIM_INITIAL_CAPITAL must be positive, got %f", c.InitialCapital)
	}

	if c.LatencyMinMs < 0 || c.LatencyMaxMs < c.LatencyMinMs {
		return fmt.Errorf("invalid latency range [%d, %d]", c.LatencyMinMs, c.LatencyMaxMs)
	}

	if c.MaxSlippageBps < 0 {
		return fmt.Errorf("SIM_MAX_SLIPPAGE_BPS cannot be negative, got %f", c.MaxSlippageBps)
	}

	if c.MakerFeeBps < 0 || c.TakerFeeBps < 0 {
		return fmt.Errorf("fee bps cannot be negative (maker=%f taker=%f)", c.MakerFeeBps, c.TakerFeeBps)
	}

	if c.FundingPeriodHours <= 0 {
		return fmt.Errorf("SIM_FUNDING_PERIOD_HOURS must be positive, got %f", c.FundingPeriodHours)
	}

	if c.RefreshInterval <= 0 {
		return fmt.Errorf("SIM_REFRESH_INTERVAL must be positive, got %s", c.RefreshInterval)
	}

	if c.JournalMode != "console" && c.JournalMode != "postgres" {
		return fmt.Errorf("JOURNAL_MODE must be 'console' or 'postgres', got %q", c.JournalMode)
	}

	return nil
}

func getEnvOrDefault(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}

	return boolVal
}

func getFloat64OrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	floatVal, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}

	return floatVal
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}

	return duration
}
