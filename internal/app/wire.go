package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/futuresbot/internal/cache/redis"
	"github.com/alanyoungcy/futuresbot/internal/config"
	"github.com/alanyoungcy/futuresbot/internal/domain"
	"github.com/alanyoungcy/futuresbot/internal/notify"
	"github.com/alanyoungcy/futuresbot/internal/platform/binance"
	"github.com/alanyoungcy/futuresbot/internal/platform/bybit"
	"github.com/alanyoungcy/futuresbot/internal/saga"
	"github.com/alanyoungcy/futuresbot/internal/stop"
	"github.com/alanyoungcy/futuresbot/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency the application modes
// need. It is constructed by Wire and torn down by the returned cleanup
// function.
type Dependencies struct {
	// Clients (for health checks and direct access)
	PG    *postgres.Client
	Redis *redis.Client

	// Stores
	PositionStore domain.PositionStore
	OrderStore    domain.OrderStore
	TradeStore    domain.TradeStore
	AuditStore    domain.AuditStore

	// Caches
	PositionCache *redis.PositionCache
	RateLimiter   domain.RateLimiter
	SignalBus     domain.SignalBus

	// Venue
	Exchange domain.Exchange

	// Services
	StopManager  *stop.Manager
	Orchestrator *saga.Orchestrator
	Notifier     *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.PoolMaxConns,
		MinConns: cfg.Database.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Database.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	deps.PG = pgClient
	deps.PositionStore = postgres.NewPositionStore(pgClient)
	deps.OrderStore = postgres.NewOrderStore(pgClient)
	deps.TradeStore = postgres.NewTradeStore(pgClient)
	deps.AuditStore = postgres.NewAuditStore(pgClient)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.Redis = redisClient
	deps.PositionCache = redis.NewPositionCache(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)
	if cfg.RateLimit.Enabled {
		deps.RateLimiter = redis.NewRateLimiter(redisClient, cfg.RateLimit.Requests, cfg.RateLimit.Window.Duration)
	}

	// --- Venue client ---
	// One orchestrator drives one venue; the first enabled venue wins.
	switch {
	case cfg.Bybit.Enabled:
		deps.Exchange = bybit.NewClient(bybit.ClientConfig{
			BaseURL:   cfg.Bybit.BaseURL,
			APIKey:    cfg.Bybit.APIKey,
			APISecret: cfg.Bybit.APISecret,
		}, deps.RateLimiter, logger)
	case cfg.Binance.Enabled:
		deps.Exchange = binance.NewClient(binance.ClientConfig{
			BaseURL:   cfg.Binance.BaseURL,
			APIKey:    cfg.Binance.APIKey,
			APISecret: cfg.Binance.APISecret,
		}, deps.RateLimiter, logger)
	default:
		cleanup()
		return nil, nil, fmt.Errorf("wire: no venue enabled")
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Stop manager + saga orchestrator ---
	deps.StopManager = stop.NewManager(deps.Exchange, stop.Config{
		Tolerance: cfg.Stop.Tolerance,
		MaxRatio:  cfg.Stop.MaxRatio,
	}, logger)

	deps.Orchestrator = saga.NewOrchestrator(
		deps.Exchange,
		deps.StopManager,
		deps.PositionStore,
		deps.OrderStore,
		deps.TradeStore,
		deps.AuditStore,
		deps.PositionCache,
		deps.SignalBus,
		deps.Notifier,
		saga.Config{
			StopLossPct:       cfg.Saga.DefaultStopLossPct,
			Leverage:          cfg.Saga.DefaultLeverage,
			Symbols:           symbolDefaults(cfg.Saga.Symbols),
			VerifyTimeout:     cfg.Saga.VerifyTimeout.Duration,
			VerifyBackoffMin:  cfg.Saga.VerifyBackoffMin.Duration,
			VerifyBackoffMax:  cfg.Saga.VerifyBackoffMax.Duration,
			StopRetries:       cfg.Saga.StopRetries,
			StopRetryBackoff:  cfg.Saga.StopRetryBackoff.Duration,
			RefetchRetries:    cfg.Saga.RefetchRetries,
			RefetchBackoff:    cfg.Saga.RefetchBackoff.Duration,
			RollbackPollTries: cfg.Saga.RollbackPollTries,
			RollbackPollEvery: cfg.Saga.RollbackPollEvery.Duration,
			QuantityTolerance: cfg.Saga.QuantityTolerance,
			OperationTTL:      cfg.Saga.OperationTTL.Duration,
		},
		logger,
	)

	return deps, cleanup, nil
}

func symbolDefaults(symbols map[string]config.SymbolConfig) map[string]saga.SymbolDefaults {
	if len(symbols) == 0 {
		return nil
	}
	out := make(map[string]saga.SymbolDefaults, len(symbols))
	for sym, s := range symbols {
		out[sym] = saga.SymbolDefaults{StopLossPct: s.StopLossPct, Leverage: s.Leverage}
	}
	return out
}
