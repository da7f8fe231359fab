package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// StockLockTimeout bounds how long a movement waits for a balance row lock.
//
// Set via env:
// - STOCK_LOCK_TIMEOUT_SECONDS (default 30)
func StockLockTimeout() time.Duration {
	return time.Duration(intFromEnv("STOCK_LOCK_TIMEOUT_SECONDS", 30)) * time.Second
}

// UseRedisStockLock takes a redislock front lock per balance key before the row lock.
//
// Set via env:
// - STOCK_REDIS_LOCK=true
func UseRedisStockLock() bool {
	return boolFromEnv("STOCK_REDIS_LOCK")
}

// ReportCacheEnabled turns on the Redis cache for analytics reports.
//
// Set via env:
// - ENABLE_REPORT_CACHE=true
// - REPORT_CACHE_TTL_SECONDS (default 300)
func ReportCacheEnabled() bool {
	return boolFromEnv("ENABLE_REPORT_CACHE")
}

func ReportCacheTTL() time.Duration {
	return time.Duration(intFromEnv("REPORT_CACHE_TTL_SECONDS", 300)) * time.Second
}

// AnalyticsSettings groups the tunables of the analytics reports.
type AnalyticsSettings struct {
	AbcThresholdA   decimal.Decimal
	AbcThresholdB   decimal.Decimal
	CarryingRate    decimal.Decimal
	ForecastPeriods int
}

func DefaultAnalyticsSettings() AnalyticsSettings {
	return AnalyticsSettings{
		AbcThresholdA:   decimal.RequireFromString("0.80"),
		AbcThresholdB:   decimal.RequireFromString("0.15"),
		CarryingRate:    decimal.RequireFromString("0.25"),
		ForecastPeriods: 3,
	}
}

// AnalyticsSettingsFromEnv reads ABC_THRESHOLD_A, ABC_THRESHOLD_B, CARRYING_RATE and
// FORECAST_PERIODS on top of the defaults.
func AnalyticsSettingsFromEnv() AnalyticsSettings {
	s := DefaultAnalyticsSettings()
	s.AbcThresholdA = decimalFromEnv("ABC_THRESHOLD_A", s.AbcThresholdA)
	s.AbcThresholdB = decimalFromEnv("ABC_THRESHOLD_B", s.AbcThresholdB)
	s.CarryingRate = decimalFromEnv("CARRYING_RATE", s.CarryingRate)
	if n := intFromEnv("FORECAST_PERIODS", s.ForecastPeriods); n > 0 {
		s.ForecastPeriods = n
	}
	return s
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func boolFromEnv(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

func decimalFromEnv(key string, def decimal.Decimal) decimal.Decimal {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := decimal.NewFromString(v)
	if err != nil || d.IsNegative() {
		return def
	}
	return d
}
