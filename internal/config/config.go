// Package config defines the top-level configuration for the futures bot and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by FUTBOT_* environment variables.
type Config struct {
	Database  DatabaseConfig  `toml:"database"`
	Redis     RedisConfig     `toml:"redis"`
	Bybit     VenueConfig     `toml:"bybit"`
	Binance   VenueConfig     `toml:"binance"`
	Saga      SagaConfig      `toml:"saga"`
	Stop      StopConfig      `toml:"stop"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// VenueConfig holds per-venue REST/WS credentials and endpoints.
type VenueConfig struct {
	Enabled   bool   `toml:"enabled"`
	APIKey    string `toml:"api_key"`
	APISecret string `toml:"api_secret"`
	BaseURL   string `toml:"base_url"`
	WSURL     string `toml:"ws_url"`
}

// SagaConfig holds position-opening saga parameters. Per-symbol entries
// override the default stop distance and leverage; an explicit value on
// the request still beats both.
type SagaConfig struct {
	DefaultStopLossPct float64                 `toml:"default_stop_loss_pct"`
	DefaultLeverage    int                     `toml:"default_leverage"`
	Symbols            map[string]SymbolConfig `toml:"symbols"`
	VerifyTimeout      duration                `toml:"verify_timeout"`
	VerifyBackoffMin   duration                `toml:"verify_backoff_min"`
	VerifyBackoffMax   duration                `toml:"verify_backoff_max"`
	StopRetries        int                     `toml:"stop_retries"`
	StopRetryBackoff   duration                `toml:"stop_retry_backoff"`
	RefetchRetries     int                     `toml:"refetch_retries"`
	RefetchBackoff     duration                `toml:"refetch_backoff"`
	RollbackPollTries  int                     `toml:"rollback_poll_tries"`
	RollbackPollEvery  duration                `toml:"rollback_poll_every"`
	QuantityTolerance  float64                 `toml:"quantity_tolerance"`
	OperationTTL       duration                `toml:"operation_ttl"`
}

// SymbolConfig carries per-symbol saga defaults. A zero field inherits
// the corresponding SagaConfig default.
type SymbolConfig struct {
	StopLossPct float64 `toml:"stop_loss_pct"`
	Leverage    int     `toml:"leverage"`
}

// StopConfig holds protective-stop acceptance parameters.
type StopConfig struct {
	Tolerance float64 `toml:"tolerance"`
	MaxRatio  float64 `toml:"max_ratio"`
}

// RateLimitConfig bounds the outbound REST request rate per venue.
type RateLimitConfig struct {
	Enabled  bool     `toml:"enabled"`
	Requests int      `toml:"requests"`
	Window   duration `toml:"window"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled bool   `toml:"enabled"`
	Port    int    `toml:"port"`
	APIKey  string `toml:"api_key"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Database: DatabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "futuresbot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		Bybit: VenueConfig{
			Enabled: true,
			BaseURL: "https://api.bybit.com",
			WSURL:   "wss://stream.bybit.com/v5/private",
		},
		Binance: VenueConfig{
			Enabled: false,
			BaseURL: "https://fapi.binance.com",
		},
		Saga: SagaConfig{
			DefaultStopLossPct: 0.02,
			DefaultLeverage:    1,
			VerifyTimeout:      duration{10 * time.Second},
			VerifyBackoffMin:   duration{500 * time.Millisecond},
			VerifyBackoffMax:   duration{2 * time.Second},
			StopRetries:        3,
			StopRetryBackoff:   duration{time.Second},
			RefetchRetries:     4,
			RefetchBackoff:     duration{300 * time.Millisecond},
			RollbackPollTries:  10,
			RollbackPollEvery:  duration{time.Second},
			QuantityTolerance:  0.01,
			OperationTTL:       duration{time.Minute},
		},
		Stop: StopConfig{
			Tolerance: 0.05,
			MaxRatio:  2.0,
		},
		RateLimit: RateLimitConfig{
			Enabled:  true,
			Requests: 10,
			Window:   duration{time.Second},
		},
		Server: ServerConfig{
			Enabled: true,
			Port:    8000,
		},
		Notify: NotifyConfig{
			Events: []string{"position_opened", "position_closed", "rollback", "recovery"},
		},
		Mode:     "trade",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"trade":   true,
	"monitor": true,
	"server":  true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, monitor, server)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if !c.Bybit.Enabled && !c.Binance.Enabled {
		errs = append(errs, "at least one venue must be enabled")
	}
	needsKeys := strings.ToLower(c.Mode) == "trade"
	if needsKeys {
		if c.Bybit.Enabled && (c.Bybit.APIKey == "" || c.Bybit.APISecret == "") {
			errs = append(errs, "bybit: api_key and api_secret are required for trade mode")
		}
		if c.Binance.Enabled && (c.Binance.APIKey == "" || c.Binance.APISecret == "") {
			errs = append(errs, "binance: api_key and api_secret are required for trade mode")
		}
	}

	if strings.TrimSpace(c.Database.DSN) == "" {
		if c.Database.Host == "" {
			errs = append(errs, "database: host must not be empty (or set database.dsn)")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.Database == "" {
			errs = append(errs, "database: database must not be empty")
		}
	}
	if c.Database.PoolMaxConns < 1 {
		errs = append(errs, "database: pool_max_conns must be >= 1")
	}
	if c.Database.PoolMinConns < 0 {
		errs = append(errs, "database: pool_min_conns must be >= 0")
	}
	if c.Database.PoolMinConns > c.Database.PoolMaxConns {
		errs = append(errs, "database: pool_min_conns must not exceed pool_max_conns")
	}

	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	if c.Saga.DefaultStopLossPct <= 0 || c.Saga.DefaultStopLossPct >= 1 {
		errs = append(errs, fmt.Sprintf("saga: default_stop_loss_pct must be in (0, 1), got %g", c.Saga.DefaultStopLossPct))
	}
	if c.Saga.DefaultLeverage < 1 {
		errs = append(errs, "saga: default_leverage must be >= 1")
	}
	if c.Saga.VerifyTimeout.Duration <= 0 {
		errs = append(errs, "saga: verify_timeout must be positive")
	}
	if c.Saga.StopRetries < 1 {
		errs = append(errs, "saga: stop_retries must be >= 1")
	}
	if c.Saga.RefetchRetries < 1 {
		errs = append(errs, "saga: refetch_retries must be >= 1")
	}
	if c.Saga.RollbackPollTries < 1 {
		errs = append(errs, "saga: rollback_poll_tries must be >= 1")
	}
	for sym, s := range c.Saga.Symbols {
		if s.StopLossPct < 0 || s.StopLossPct >= 1 {
			errs = append(errs, fmt.Sprintf("saga: symbols.%s: stop_loss_pct must be in [0, 1), got %g", sym, s.StopLossPct))
		}
		if s.Leverage < 0 {
			errs = append(errs, fmt.Sprintf("saga: symbols.%s: leverage must be >= 0", sym))
		}
	}

	if c.Stop.Tolerance <= 0 || c.Stop.Tolerance >= 1 {
		errs = append(errs, fmt.Sprintf("stop: tolerance must be in (0, 1), got %g", c.Stop.Tolerance))
	}
	if c.Stop.MaxRatio <= 1 {
		errs = append(errs, "stop: max_ratio must be > 1")
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.Requests < 1 {
			errs = append(errs, "rate_limit: requests must be >= 1")
		}
		if c.RateLimit.Window.Duration <= 0 {
			errs = append(errs, "rate_limit: window must be positive")
		}
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
