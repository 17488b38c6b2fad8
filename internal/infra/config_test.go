package infra

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
trading:
  mode: MOCK
oms:
  max_open_orders: 7
  order_timeout_sec: 120
resilience:
  max_retries: 5
paper:
  commission_bps: 25
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Trading.Mode != "MOCK" {
		t.Fatalf("mode = %s, want MOCK", cfg.Trading.Mode)
	}
	if cfg.OMS.MaxOpenOrders != 7 {
		t.Fatalf("max open orders = %d, want 7", cfg.OMS.MaxOpenOrders)
	}
	if cfg.OMS.OrderTimeoutSec != 120 {
		t.Fatalf("order timeout = %d, want 120", cfg.OMS.OrderTimeoutSec)
	}
	if cfg.Resilience.MaxRetries != 5 {
		t.Fatalf("max retries = %d, want 5", cfg.Resilience.MaxRetries)
	}
	if cfg.Paper.CommissionBps != 25 {
		t.Fatalf("commission bps = %d, want 25", cfg.Paper.CommissionBps)
	}
	// Untouched sections keep their defaults.
	if cfg.Resilience.FailureThreshold != 5 {
		t.Fatalf("failure threshold = %d, want default 5", cfg.Resilience.FailureThreshold)
	}
}

func TestLoadConfig_RejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"negative open orders", "oms:\n  max_open_orders: -1\n"},
		{"probability above one", "paper:\n  limit_fill_probability: 1.5\n"},
		{"backoff multiplier below one", "resilience:\n  backoff_multiplier: 0.5\n"},
		{"latency range inverted", "paper:\n  latency_min_ms: 100\n  latency_max_ms: 10\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := LoadConfig(writeConfig(t, tc.body)); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "trading:\n  mode: PAPER\n")
	t.Setenv("TRADING_MODE", "MOCK")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Trading.Mode != "MOCK" {
		t.Fatalf("mode = %s, want MOCK from env", cfg.Trading.Mode)
	}
}

func TestLoadConfigOrDefault_MissingFileFallsBack(t *testing.T) {
	cfg, err := LoadConfigOrDefault(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadConfigOrDefault: %v", err)
	}
	if cfg.OMS.MaxOpenOrders != 50 {
		t.Fatalf("max open orders = %d, want default 50", cfg.OMS.MaxOpenOrders)
	}
	if cfg.Trading.Mode != "PAPER" {
		t.Fatalf("mode = %s, want PAPER", cfg.Trading.Mode)
	}
}
