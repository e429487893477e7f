package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

// positionTTL bounds how long a push-fed snapshot stays fresh. A stale entry
// is worse than a missing one: the saga would count a dead snapshot as a
// confirmation source.
const positionTTL = 5 * time.Minute

// watchTTL bounds how long a pre-registration marker lives when no fill ever
// arrives for the symbol.
const watchTTL = time.Minute

// PositionCache implements domain.PositionCache using Redis hashes.
// Each venue position is stored at key "position:{venue}:{symbol}" with
// fields "side", "qty", "entry" and "ts" (Unix nanosecond timestamp).
type PositionCache struct {
	rdb *redis.Client
}

// NewPositionCache creates a PositionCache backed by the given Client.
func NewPositionCache(c *Client) *PositionCache {
	return &PositionCache{rdb: c.Underlying()}
}

func positionKey(venue domain.Venue, symbol string) string {
	return "position:" + string(venue) + ":" + symbol
}

func watchKey(venue domain.Venue, symbol string) string {
	return "position:watch:" + string(venue) + ":" + symbol
}

// Set stores the latest push-fed snapshot of a venue position.
func (pc *PositionCache) Set(ctx context.Context, pos domain.CachedPosition) error {
	key := positionKey(pos.Venue, pos.Symbol)

	ts := pos.UpdatedAt
	if ts.IsZero() {
		ts = time.Now()
	}

	fields := map[string]interface{}{
		"side":  string(pos.Side),
		"qty":   strconv.FormatFloat(pos.Quantity, 'f', -1, 64),
		"entry": strconv.FormatFloat(pos.EntryPrice, 'f', -1, 64),
		"ts":    strconv.FormatInt(ts.UnixNano(), 10),
	}

	pipe := pc.rdb.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, positionTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set position %s: %w", pos.Symbol, err)
	}
	return nil
}

// Get retrieves the cached position for a symbol. It returns
// domain.ErrNotFound when the feed has not delivered a snapshot.
func (pc *PositionCache) Get(ctx context.Context, symbol string, venue domain.Venue) (domain.CachedPosition, error) {
	key := positionKey(venue, symbol)
	vals, err := pc.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return domain.CachedPosition{}, fmt.Errorf("redis: get position %s: %w", symbol, err)
	}
	if len(vals) == 0 {
		return domain.CachedPosition{}, domain.ErrNotFound
	}

	pos := domain.CachedPosition{
		Symbol: symbol,
		Venue:  venue,
		Side:   domain.PositionSide(vals["side"]),
	}

	qtyStr, ok := vals["qty"]
	if !ok {
		return domain.CachedPosition{}, domain.ErrNotFound
	}
	pos.Quantity, err = strconv.ParseFloat(qtyStr, 64)
	if err != nil {
		return domain.CachedPosition{}, fmt.Errorf("redis: parse position qty %s: %w", symbol, err)
	}

	if entryStr, ok := vals["entry"]; ok {
		pos.EntryPrice, err = strconv.ParseFloat(entryStr, 64)
		if err != nil {
			return domain.CachedPosition{}, fmt.Errorf("redis: parse position entry %s: %w", symbol, err)
		}
	}

	if tsStr, ok := vals["ts"]; ok {
		tsNano, err := strconv.ParseInt(tsStr, 10, 64)
		if err != nil {
			return domain.CachedPosition{}, fmt.Errorf("redis: parse position ts %s: %w", symbol, err)
		}
		pos.UpdatedAt = time.Unix(0, tsNano)
	}

	return pos, nil
}

// PreRegister marks a symbol as watched before the entry order is submitted,
// so a push update racing the REST response is not dropped by the feed.
func (pc *PositionCache) PreRegister(ctx context.Context, symbol string, venue domain.Venue) error {
	key := watchKey(venue, symbol)
	if err := pc.rdb.Set(ctx, key, "1", watchTTL).Err(); err != nil {
		return fmt.Errorf("redis: pre-register %s: %w", symbol, err)
	}
	return nil
}

// Watched reports whether a symbol was pre-registered. The feed uses it to
// decide whether an update for an unknown symbol should still be cached.
func (pc *PositionCache) Watched(ctx context.Context, symbol string, venue domain.Venue) (bool, error) {
	n, err := pc.rdb.Exists(ctx, watchKey(venue, symbol)).Result()
	if err != nil {
		return false, fmt.Errorf("redis: watched %s: %w", symbol, err)
	}
	return n > 0, nil
}

// Compile-time interface check.
var _ domain.PositionCache = (*PositionCache)(nil)
