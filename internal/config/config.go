package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds all runtime configuration for the exchange.
type Config struct {
	Port                     int
	LogLevel                 string
	TradingFeeRate           decimal.Decimal
	SettlementWorkers        int
	SettlementAccountTimeout time.Duration
	SettlementCron           string
	OfferingExpiryInterval   time.Duration
	ReadTimeout              time.Duration
	WriteTimeout             time.Duration
	IdleTimeout              time.Duration
	ShutdownTimeout          time.Duration
}

// Load reads configuration from environment variables, applies defaults,
// and validates values. It returns an error for any invalid value.
func Load() (*Config, error) {
	port, err := getInt("PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}

	logLevel := getStr("LOG_LEVEL", "info")
	if !isValidLogLevel(logLevel) {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %q, must be one of: debug, info, warn, error", logLevel)
	}

	feeRate, err := getDecimal("TRADING_FEE_RATE", "0.001")
	if err != nil {
		return nil, fmt.Errorf("invalid TRADING_FEE_RATE: %w", err)
	}
	if feeRate.IsNegative() || feeRate.Cmp(decimal.NewFromInt(1)) >= 0 {
		return nil, fmt.Errorf("invalid TRADING_FEE_RATE: must be in [0, 1)")
	}

	settlementWorkers, err := getInt("SETTLEMENT_WORKERS", 4)
	if err != nil {
		return nil, fmt.Errorf("invalid SETTLEMENT_WORKERS: %w", err)
	}
	if settlementWorkers < 1 {
		return nil, fmt.Errorf("invalid SETTLEMENT_WORKERS: must be at least 1")
	}

	settlementAccountTimeout, err := getDuration("SETTLEMENT_ACCOUNT_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid SETTLEMENT_ACCOUNT_TIMEOUT: %w", err)
	}

	// Daily at 00:05 UTC by default (seconds field first).
	settlementCron := getStr("SETTLEMENT_CRON", "0 5 0 * * *")

	offeringExpiryInterval, err := getDuration("OFFERING_EXPIRY_INTERVAL", 1*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("invalid OFFERING_EXPIRY_INTERVAL: %w", err)
	}

	readTimeout, err := getDuration("READ_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid READ_TIMEOUT: %w", err)
	}

	writeTimeout, err := getDuration("WRITE_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid WRITE_TIMEOUT: %w", err)
	}

	idleTimeout, err := getDuration("IDLE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid IDLE_TIMEOUT: %w", err)
	}

	shutdownTimeout, err := getDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}

	return &Config{
		Port:                     port,
		LogLevel:                 logLevel,
		TradingFeeRate:           feeRate,
		SettlementWorkers:        settlementWorkers,
		SettlementAccountTimeout: settlementAccountTimeout,
		SettlementCron:           settlementCron,
		OfferingExpiryInterval:   offeringExpiryInterval,
		ReadTimeout:              readTimeout,
		WriteTimeout:             writeTimeout,
		IdleTimeout:              idleTimeout,
		ShutdownTimeout:          shutdownTimeout,
	}, nil
}

func getStr(key, defaultVal string) string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return v
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.Atoi(v)
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return time.ParseDuration(v)
}

func getDecimal(key, defaultVal string) (decimal.Decimal, error) {
	v := os.Getenv(key)
	if v == "" {
		v = defaultVal
	}
	return decimal.NewFromString(v)
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
