package domain

import (
	"context"
	"time"
)

// CachedPosition is the push-fed view of a venue position. It may lag the
// venue or be entirely absent; consumers treat it as one confirmation
// source among several, never as authoritative.
type CachedPosition struct {
	Symbol     string
	Venue      Venue
	Side       PositionSide
	Quantity   float64
	EntryPrice float64
	UpdatedAt  time.Time
}

// PositionCache is the push-cache port. The saga must tolerate its total
// absence (a nil or erroring implementation only removes one verification
// source).
type PositionCache interface {
	// Get returns the cached position for a symbol. ErrNotFound when the
	// feed has not (yet) delivered one.
	Get(ctx context.Context, symbol string, venue Venue) (CachedPosition, error)

	Set(ctx context.Context, pos CachedPosition) error

	// PreRegister marks a symbol as watched before an order is submitted so
	// push updates arriving within milliseconds of the fill are not lost.
	PreRegister(ctx context.Context, symbol string, venue Venue) error

	// Watched reports whether a symbol was pre-registered. The feed uses it
	// to decide whether a flat update for an otherwise unknown symbol is
	// worth caching.
	Watched(ctx context.Context, symbol string, venue Venue) (bool, error)
}

// RateLimiter provides distributed rate limiting for venue REST calls.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// StreamMessage represents a single entry from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams. The saga publishes
// lifecycle events on it and critical rollback alerts that must reach an
// operator.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
