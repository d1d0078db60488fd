// Package config loads engine configuration from environment variables.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"strategy-enginev1/internal/model"
)

// Config holds all application configuration loaded from environment
// variables.
type Config struct {
	// Broker session credentials
	FeedURL        string
	FeedAPIKey     string
	FeedClientCode string
	FeedTOTPSecret string

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SQLitePath    string
	MetricsAddr   string
	LogLevel      string

	// Engine
	StrategyID   string
	OrderIDTag   string
	LoadState    bool
	QueueSize    int
	BarCapacity  int
	TickCapacity int

	// EMA cross parameters
	Symbol           string
	BarStep          int
	BarAggregation   string
	FastEMAPeriod    int
	SlowEMAPeriod    int
	ATRPeriod        int
	SLATRMultiple    float64
	RiskBp           float64
	CommissionRateBp float64
	HardLimit        int64
	UnitBatchSize    int64
}

// Load reads configuration from environment variables with sensible
// defaults and validates parameter domains.
func Load() (*Config, error) {
	cfg := &Config{
		FeedURL:        mustEnv("FEED_URL"),
		FeedAPIKey:     mustEnv("FEED_API_KEY"),
		FeedClientCode: mustEnv("FEED_CLIENT_CODE"),
		FeedTOTPSecret: mustEnv("FEED_TOTP_SECRET"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		SQLitePath:    getEnv("SQLITE_PATH", "data/fills.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		StrategyID:   getEnv("STRATEGY_ID", "emacross-1"),
		OrderIDTag:   getEnv("ORDER_ID_TAG", "001"),
		LoadState:    getEnvBool("LOAD_STATE", true),
		QueueSize:    getEnvInt("QUEUE_SIZE", 4096),
		BarCapacity:  getEnvInt("BAR_CAPACITY", 40),
		TickCapacity: getEnvInt("TICK_CAPACITY", 100),

		Symbol:           mustEnv("SYMBOL"),
		BarStep:          getEnvInt("BAR_STEP", 1),
		BarAggregation:   getEnv("BAR_AGGREGATION", model.AggMinute),
		FastEMAPeriod:    getEnvInt("FAST_EMA_PERIOD", 10),
		SlowEMAPeriod:    getEnvInt("SLOW_EMA_PERIOD", 20),
		ATRPeriod:        getEnvInt("ATR_PERIOD", 20),
		SLATRMultiple:    getEnvFloat("SL_ATR_MULTIPLE", 2.0),
		RiskBp:           getEnvFloat("RISK_BP", 10),
		CommissionRateBp: getEnvFloat("COMMISSION_RATE_BP", 0.15),
		HardLimit:        int64(getEnvInt("HARD_LIMIT", 0)),
		UnitBatchSize:    int64(getEnvInt("UNIT_BATCH_SIZE", 0)),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects parameter values outside their domain. Construction
// fails rather than running with a silently broken configuration.
func (c *Config) Validate() error {
	if c.FastEMAPeriod <= 0 {
		return fmt.Errorf("FAST_EMA_PERIOD must be positive, got %d", c.FastEMAPeriod)
	}
	if c.SlowEMAPeriod <= c.FastEMAPeriod {
		return fmt.Errorf("SLOW_EMA_PERIOD (%d) must exceed FAST_EMA_PERIOD (%d)", c.SlowEMAPeriod, c.FastEMAPeriod)
	}
	if c.ATRPeriod <= 0 {
		return fmt.Errorf("ATR_PERIOD must be positive, got %d", c.ATRPeriod)
	}
	if c.SLATRMultiple <= 0 {
		return fmt.Errorf("SL_ATR_MULTIPLE must be positive, got %f", c.SLATRMultiple)
	}
	if c.RiskBp <= 0 {
		return fmt.Errorf("RISK_BP must be positive, got %f", c.RiskBp)
	}
	if c.BarStep <= 0 {
		return fmt.Errorf("BAR_STEP must be positive, got %d", c.BarStep)
	}
	if c.BarCapacity <= 0 {
		return fmt.Errorf("BAR_CAPACITY must be positive, got %d", c.BarCapacity)
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("QUEUE_SIZE must be positive, got %d", c.QueueSize)
	}
	return nil
}

// BarType returns the configured bar subscription.
func (c *Config) BarType() model.BarType {
	return model.BarType{
		Symbol: c.Symbol,
		Spec:   model.BarSpec{Step: c.BarStep, Aggregation: c.BarAggregation},
	}
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("[config] required env var %s not set", key)
	}
	return v
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("[config] env var %s: invalid integer %q", key, v)
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Fatalf("[config] env var %s: invalid bool %q", key, v)
	}
	return b
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Fatalf("[config] env var %s: invalid float %q", key, v)
	}
	return f
}
