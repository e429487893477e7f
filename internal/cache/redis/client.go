// Package redis backs the position push cache, the signal bus, and the
// venue rate limiter with one shared go-redis/v9 connection.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Connection fallbacks applied when ClientConfig leaves a field zero.
// They mirror config.Defaults so a partially populated config still
// yields a working client.
const (
	defaultPoolSize    = 20
	defaultMaxRetries  = 3
	defaultDialTimeout = 5 * time.Second
)

// clientName identifies this process in CLIENT LIST output.
const clientName = "futuresbot"

// ClientConfig holds connection parameters for the Redis client.
type ClientConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool
}

// options translates a ClientConfig into driver options, filling in the
// connection fallbacks.
func options(cfg ClientConfig) *redis.Options {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = defaultPoolSize
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}

	opts := &redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		MaxRetries:  cfg.MaxRetries,
		DialTimeout: defaultDialTimeout,
		ClientName:  clientName,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts
}

// Client is the shared connection behind PositionCache, SignalBus, and
// RateLimiter. Its Ping doubles as the Redis probe for the health
// endpoint.
type Client struct {
	rdb *redis.Client
}

// New connects to Redis and verifies connectivity with an initial ping.
// The saga tolerates Redis being down at runtime, but a bot that starts
// without its push cache and alert bus should fail loudly instead.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	rdb := redis.NewClient(options(cfg))

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Ping checks the Redis connection.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Underlying returns the raw *redis.Client shared by the cache, bus, and
// rate limiter constructors in this package.
func (c *Client) Underlying() *redis.Client {
	return c.rdb
}
