package feed

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

// recordingCache captures Set calls and answers Watched from a fixed set.
type recordingCache struct {
	watched map[string]bool
	sets    []domain.CachedPosition
}

func (c *recordingCache) Get(ctx context.Context, symbol string, venue domain.Venue) (domain.CachedPosition, error) {
	return domain.CachedPosition{}, domain.ErrNotFound
}

func (c *recordingCache) Set(ctx context.Context, pos domain.CachedPosition) error {
	c.sets = append(c.sets, pos)
	return nil
}

func (c *recordingCache) PreRegister(ctx context.Context, symbol string, venue domain.Venue) error {
	if c.watched == nil {
		c.watched = make(map[string]bool)
	}
	c.watched[symbol] = true
	return nil
}

func (c *recordingCache) Watched(ctx context.Context, symbol string, venue domain.Venue) (bool, error) {
	return c.watched[symbol], nil
}

var _ domain.PositionCache = (*recordingCache)(nil)

func positionMessage(t *testing.T, symbol, side, size, entry string) []byte {
	t.Helper()
	msg, err := json.Marshal(map[string]any{
		"topic": "position",
		"data": []map[string]any{{
			"symbol":      symbol,
			"side":        side,
			"size":        size,
			"entryPrice":  entry,
			"updatedTime": "1700000000000",
		}},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return msg
}

func newTestFeed(cache domain.PositionCache) *BybitPositionFeed {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewBybitPositionFeed("", "key", "secret", cache, logger)
}

func TestHandleMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("open position always cached", func(t *testing.T) {
		cache := &recordingCache{}
		f := newTestFeed(cache)
		f.handleMessage(ctx, positionMessage(t, "BTCUSDT", "Buy", "1.5", "50000"))

		if len(cache.sets) != 1 {
			t.Fatalf("Set calls = %d, want 1", len(cache.sets))
		}
		got := cache.sets[0]
		if got.Symbol != "BTCUSDT" || got.Side != domain.PositionSideLong {
			t.Errorf("cached %+v, want long BTCUSDT", got)
		}
		if got.Quantity != 1.5 || got.EntryPrice != 50000 {
			t.Errorf("cached qty/entry = %v/%v, want 1.5/50000", got.Quantity, got.EntryPrice)
		}
	})

	t.Run("flat update cached for watched symbol", func(t *testing.T) {
		cache := &recordingCache{}
		f := newTestFeed(cache)
		if err := cache.PreRegister(ctx, "BTCUSDT", domain.VenueBybit); err != nil {
			t.Fatalf("PreRegister: %v", err)
		}
		f.handleMessage(ctx, positionMessage(t, "BTCUSDT", "", "0", "0"))

		if len(cache.sets) != 1 {
			t.Fatalf("Set calls = %d, want 1 (flat confirmation)", len(cache.sets))
		}
		if cache.sets[0].Quantity != 0 {
			t.Errorf("cached quantity = %v, want 0", cache.sets[0].Quantity)
		}
	})

	t.Run("flat update for unwatched symbol skipped", func(t *testing.T) {
		cache := &recordingCache{}
		f := newTestFeed(cache)
		f.handleMessage(ctx, positionMessage(t, "DOGEUSDT", "", "0", "0"))

		if len(cache.sets) != 0 {
			t.Errorf("Set calls = %d, want 0 for unwatched flat snapshot", len(cache.sets))
		}
	})

	t.Run("non-position topic ignored", func(t *testing.T) {
		cache := &recordingCache{}
		f := newTestFeed(cache)
		f.handleMessage(ctx, []byte(`{"topic":"order","data":[]}`))
		f.handleMessage(ctx, []byte(`not json`))

		if len(cache.sets) != 0 {
			t.Errorf("Set calls = %d, want 0", len(cache.sets))
		}
	})
}
