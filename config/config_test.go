package config

import (
	"testing"

	"strategy-enginev1/internal/model"
)

func validConfig() Config {
	return Config{
		FastEMAPeriod: 10,
		SlowEMAPeriod: 20,
		ATRPeriod:     20,
		SLATRMultiple: 2.0,
		RiskBp:        10,
		BarStep:       1,
		BarCapacity:   40,
		QueueSize:     4096,
		Symbol:        "NIFTY-FUT",
	}
}

func TestValidate_AcceptsDefaults(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}

func TestValidate_RejectsOutOfDomain(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero fast period", func(c *Config) { c.FastEMAPeriod = 0 }},
		{"slow equals fast", func(c *Config) { c.SlowEMAPeriod = c.FastEMAPeriod }},
		{"slow below fast", func(c *Config) { c.SlowEMAPeriod = 5 }},
		{"zero atr period", func(c *Config) { c.ATRPeriod = 0 }},
		{"zero atr multiple", func(c *Config) { c.SLATRMultiple = 0 }},
		{"negative risk", func(c *Config) { c.RiskBp = -1 }},
		{"zero bar step", func(c *Config) { c.BarStep = 0 }},
		{"zero bar capacity", func(c *Config) { c.BarCapacity = 0 }},
		{"zero queue size", func(c *Config) { c.QueueSize = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoad_ReadsEnvironment(t *testing.T) {
	t.Setenv("FEED_URL", "wss://example.test/stream")
	t.Setenv("FEED_API_KEY", "key")
	t.Setenv("FEED_CLIENT_CODE", "C123")
	t.Setenv("FEED_TOTP_SECRET", "JBSWY3DPEHPK3PXP")
	t.Setenv("SYMBOL", "NIFTY-FUT")
	t.Setenv("FAST_EMA_PERIOD", "5")
	t.Setenv("SLOW_EMA_PERIOD", "15")
	t.Setenv("RISK_BP", "25.5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Symbol != "NIFTY-FUT" {
		t.Errorf("symbol: got %s", cfg.Symbol)
	}
	if cfg.FastEMAPeriod != 5 || cfg.SlowEMAPeriod != 15 {
		t.Errorf("periods: got %d/%d, want 5/15", cfg.FastEMAPeriod, cfg.SlowEMAPeriod)
	}
	if cfg.RiskBp != 25.5 {
		t.Errorf("risk bp: got %v, want 25.5", cfg.RiskBp)
	}
	// Defaults survive when unset.
	if cfg.RedisAddr != "localhost:6379" {
		t.Errorf("redis addr default: got %s", cfg.RedisAddr)
	}
	if cfg.BarAggregation != model.AggMinute {
		t.Errorf("bar aggregation default: got %s", cfg.BarAggregation)
	}
}

func TestBarType_BuildsSubscriptionKey(t *testing.T) {
	cfg := validConfig()
	cfg.BarStep = 5
	cfg.BarAggregation = model.AggMinute

	bt := cfg.BarType()
	if bt.Key() != "NIFTY-FUT:5-MINUTE" {
		t.Errorf("bar type key: got %s", bt.Key())
	}
}
