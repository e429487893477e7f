package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Bybit.APIKey = "key"
	cfg.Bybit.APISecret = "secret"
	return cfg
}

func TestDefaultsValidateWithCredentials(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults with credentials should validate: %v", err)
	}
}

func TestValidateTradeModeRequiresKeys(t *testing.T) {
	cfg := Defaults() // bybit enabled, no credentials, mode trade
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected an error for trade mode without API keys")
	}
	if !strings.Contains(err.Error(), "bybit") {
		t.Errorf("error %q should name the venue", err)
	}
}

func TestValidateMonitorModeNeedsNoKeys(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "monitor"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("monitor mode should not require credentials: %v", err)
	}
}

func TestValidateRejectsNoVenue(t *testing.T) {
	cfg := validConfig()
	cfg.Bybit.Enabled = false
	cfg.Binance.Enabled = false
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "at least one venue") {
		t.Fatalf("err = %v, want a no-venue error", err)
	}
}

func TestValidateBounds(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad mode", func(c *Config) { c.Mode = "yolo" }, "unknown mode"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "unknown log_level"},
		{"stop loss out of range", func(c *Config) { c.Saga.DefaultStopLossPct = 1.5 }, "default_stop_loss_pct"},
		{"zero leverage", func(c *Config) { c.Saga.DefaultLeverage = 0 }, "default_leverage"},
		{"zero verify timeout", func(c *Config) { c.Saga.VerifyTimeout = duration{} }, "verify_timeout"},
		{"zero refetch retries", func(c *Config) { c.Saga.RefetchRetries = 0 }, "refetch_retries"},
		{"zero rollback polls", func(c *Config) { c.Saga.RollbackPollTries = 0 }, "rollback_poll_tries"},
		{"bad symbol stop loss", func(c *Config) {
			c.Saga.Symbols = map[string]SymbolConfig{"BTCUSDT": {StopLossPct: 1.2}}
		}, "symbols.BTCUSDT"},
		{"negative symbol leverage", func(c *Config) {
			c.Saga.Symbols = map[string]SymbolConfig{"ETHUSDT": {Leverage: -1}}
		}, "symbols.ETHUSDT"},
		{"stop tolerance out of range", func(c *Config) { c.Stop.Tolerance = 1.0 }, "tolerance"},
		{"max ratio too small", func(c *Config) { c.Stop.MaxRatio = 1.0 }, "max_ratio"},
		{"bad server port", func(c *Config) { c.Server.Port = 70000 }, "port"},
		{"pool min above max", func(c *Config) { c.Database.PoolMinConns = 50 }, "pool_min_conns"},
		{"empty redis addr", func(c *Config) { c.Redis.Addr = "" }, "redis"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected a validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q should mention %q", err, tc.want)
			}
		})
	}
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "yolo"
	cfg.Redis.Addr = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected a validation error")
	}
	if !strings.Contains(err.Error(), "unknown mode") || !strings.Contains(err.Error(), "redis") {
		t.Errorf("error should report every problem, got %q", err)
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
mode = "monitor"
log_level = "debug"

[saga]
verify_timeout = "15s"
default_stop_loss_pct = 0.03
rollback_poll_tries = 5
operation_ttl = "2m"

[saga.symbols.BTCUSDT]
stop_loss_pct = 0.04
leverage = 3

[server]
port = 9090
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Mode != "monitor" || cfg.LogLevel != "debug" {
		t.Errorf("mode/log_level = %q/%q", cfg.Mode, cfg.LogLevel)
	}
	if cfg.Saga.VerifyTimeout.Duration != 15*time.Second {
		t.Errorf("verify_timeout = %v, want 15s", cfg.Saga.VerifyTimeout.Duration)
	}
	if cfg.Saga.DefaultStopLossPct != 0.03 {
		t.Errorf("default_stop_loss_pct = %v, want 0.03", cfg.Saga.DefaultStopLossPct)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("server port = %d, want 9090", cfg.Server.Port)
	}

	if cfg.Saga.RollbackPollTries != 5 {
		t.Errorf("rollback_poll_tries = %d, want 5", cfg.Saga.RollbackPollTries)
	}
	if cfg.Saga.OperationTTL.Duration != 2*time.Minute {
		t.Errorf("operation_ttl = %v, want 2m", cfg.Saga.OperationTTL.Duration)
	}
	sym, ok := cfg.Saga.Symbols["BTCUSDT"]
	if !ok || sym.StopLossPct != 0.04 || sym.Leverage != 3 {
		t.Errorf("symbols.BTCUSDT = %+v, want 0.04/3", sym)
	}

	// Untouched sections keep their defaults.
	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("redis addr = %q, want default", cfg.Redis.Addr)
	}
	if cfg.Saga.StopRetries != 3 {
		t.Errorf("stop_retries = %d, want default 3", cfg.Saga.StopRetries)
	}
	if cfg.Saga.RefetchRetries != 4 {
		t.Errorf("refetch_retries = %d, want default 4", cfg.Saga.RefetchRetries)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("mode = \"monitor\"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("FUTBOT_BYBIT_API_KEY", "env-key")
	t.Setenv("FUTBOT_BYBIT_API_SECRET", "env-secret")
	t.Setenv("FUTBOT_MODE", "trade")
	t.Setenv("FUTBOT_SAGA_VERIFY_TIMEOUT", "30s")
	t.Setenv("FUTBOT_SAGA_ROLLBACK_POLL_TRIES", "20")
	t.Setenv("FUTBOT_SAGA_REFETCH_BACKOFF", "750ms")
	t.Setenv("FUTBOT_RATE_LIMIT_REQUESTS", "25")
	t.Setenv("FUTBOT_NOTIFY_EVENTS", "rollback, recovery")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Bybit.APIKey != "env-key" || cfg.Bybit.APISecret != "env-secret" {
		t.Error("env credentials should override the file")
	}
	if cfg.Mode != "trade" {
		t.Errorf("mode = %q, env must win over the file", cfg.Mode)
	}
	if cfg.Saga.VerifyTimeout.Duration != 30*time.Second {
		t.Errorf("verify_timeout = %v, want 30s", cfg.Saga.VerifyTimeout.Duration)
	}
	if cfg.Saga.RollbackPollTries != 20 {
		t.Errorf("rollback_poll_tries = %d, want 20", cfg.Saga.RollbackPollTries)
	}
	if cfg.Saga.RefetchBackoff.Duration != 750*time.Millisecond {
		t.Errorf("refetch_backoff = %v, want 750ms", cfg.Saga.RefetchBackoff.Duration)
	}
	if cfg.RateLimit.Requests != 25 {
		t.Errorf("rate limit requests = %d, want 25", cfg.RateLimit.Requests)
	}
	if len(cfg.Notify.Events) != 2 || cfg.Notify.Events[0] != "rollback" || cfg.Notify.Events[1] != "recovery" {
		t.Errorf("events = %v, want [rollback recovery]", cfg.Notify.Events)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestDurationRoundTrip(t *testing.T) {
	var d duration
	if err := d.UnmarshalText([]byte("500ms")); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if d.Duration != 500*time.Millisecond {
		t.Errorf("parsed %v", d.Duration)
	}
	out, err := d.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}
	if string(out) != "500ms" {
		t.Errorf("marshaled %q", out)
	}
}
