package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies FUTBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known FUTBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Database ──
	setStr(&cfg.Database.DSN, "FUTBOT_DATABASE_DSN")
	setStr(&cfg.Database.Host, "FUTBOT_DATABASE_HOST")
	setInt(&cfg.Database.Port, "FUTBOT_DATABASE_PORT")
	setStr(&cfg.Database.Database, "FUTBOT_DATABASE_NAME")
	setStr(&cfg.Database.User, "FUTBOT_DATABASE_USER")
	setStr(&cfg.Database.Password, "FUTBOT_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "FUTBOT_DATABASE_SSLMODE")
	setInt(&cfg.Database.PoolMaxConns, "FUTBOT_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "FUTBOT_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "FUTBOT_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "FUTBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "FUTBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "FUTBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "FUTBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "FUTBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "FUTBOT_REDIS_TLS_ENABLED")

	// ── Venues ──
	setBool(&cfg.Bybit.Enabled, "FUTBOT_BYBIT_ENABLED")
	setStr(&cfg.Bybit.APIKey, "FUTBOT_BYBIT_API_KEY")
	setStr(&cfg.Bybit.APISecret, "FUTBOT_BYBIT_API_SECRET")
	setStr(&cfg.Bybit.BaseURL, "FUTBOT_BYBIT_BASE_URL")
	setStr(&cfg.Bybit.WSURL, "FUTBOT_BYBIT_WS_URL")
	setBool(&cfg.Binance.Enabled, "FUTBOT_BINANCE_ENABLED")
	setStr(&cfg.Binance.APIKey, "FUTBOT_BINANCE_API_KEY")
	setStr(&cfg.Binance.APISecret, "FUTBOT_BINANCE_API_SECRET")
	setStr(&cfg.Binance.BaseURL, "FUTBOT_BINANCE_BASE_URL")

	// ── Saga ──
	setFloat64(&cfg.Saga.DefaultStopLossPct, "FUTBOT_SAGA_DEFAULT_STOP_LOSS_PCT")
	setInt(&cfg.Saga.DefaultLeverage, "FUTBOT_SAGA_DEFAULT_LEVERAGE")
	setDuration(&cfg.Saga.VerifyTimeout, "FUTBOT_SAGA_VERIFY_TIMEOUT")
	setDuration(&cfg.Saga.VerifyBackoffMin, "FUTBOT_SAGA_VERIFY_BACKOFF_MIN")
	setDuration(&cfg.Saga.VerifyBackoffMax, "FUTBOT_SAGA_VERIFY_BACKOFF_MAX")
	setInt(&cfg.Saga.StopRetries, "FUTBOT_SAGA_STOP_RETRIES")
	setDuration(&cfg.Saga.StopRetryBackoff, "FUTBOT_SAGA_STOP_RETRY_BACKOFF")
	setInt(&cfg.Saga.RefetchRetries, "FUTBOT_SAGA_REFETCH_RETRIES")
	setDuration(&cfg.Saga.RefetchBackoff, "FUTBOT_SAGA_REFETCH_BACKOFF")
	setInt(&cfg.Saga.RollbackPollTries, "FUTBOT_SAGA_ROLLBACK_POLL_TRIES")
	setDuration(&cfg.Saga.RollbackPollEvery, "FUTBOT_SAGA_ROLLBACK_POLL_EVERY")
	setFloat64(&cfg.Saga.QuantityTolerance, "FUTBOT_SAGA_QUANTITY_TOLERANCE")
	setDuration(&cfg.Saga.OperationTTL, "FUTBOT_SAGA_OPERATION_TTL")

	// ── Stop ──
	setFloat64(&cfg.Stop.Tolerance, "FUTBOT_STOP_TOLERANCE")
	setFloat64(&cfg.Stop.MaxRatio, "FUTBOT_STOP_MAX_RATIO")

	// ── Rate limit ──
	setBool(&cfg.RateLimit.Enabled, "FUTBOT_RATE_LIMIT_ENABLED")
	setInt(&cfg.RateLimit.Requests, "FUTBOT_RATE_LIMIT_REQUESTS")
	setDuration(&cfg.RateLimit.Window, "FUTBOT_RATE_LIMIT_WINDOW")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "FUTBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "FUTBOT_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "FUTBOT_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "FUTBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "FUTBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "FUTBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "FUTBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "FUTBOT_MODE")
	setStr(&cfg.LogLevel, "FUTBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
