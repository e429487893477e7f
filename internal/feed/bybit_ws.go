// Package feed connects venue push streams to the position cache.
package feed

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

const (
	defaultPrivateWSURL = "wss://stream.bybit.com/v5/private"
	pingInterval        = 20 * time.Second
	reconnectDelay      = 2 * time.Second
	authWindow          = 10 * time.Second
)

// BybitPositionFeed subscribes to the Bybit private position stream and
// mirrors updates into the position cache. The saga reads the cache as one
// fill-confirmation source; the feed never blocks on consumers. Open
// positions are always cached; a flat update is cached only for symbols
// the saga pre-registered, so snapshot noise from symbols this process
// never traded does not churn the cache.
type BybitPositionFeed struct {
	wsURL     string
	apiKey    string
	apiSecret string
	cache     domain.PositionCache
	logger    *slog.Logger
	closeOnce sync.Once
	done      chan struct{}
}

// NewBybitPositionFeed creates a feed writing into the given cache.
func NewBybitPositionFeed(wsURL, apiKey, apiSecret string, cache domain.PositionCache, logger *slog.Logger) *BybitPositionFeed {
	if wsURL == "" {
		wsURL = defaultPrivateWSURL
	}
	return &BybitPositionFeed{
		wsURL:     wsURL,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		cache:     cache,
		logger:    logger.With(slog.String("component", "bybit_position_feed")),
		done:      make(chan struct{}),
	}
}

// Run connects, authenticates, subscribes to the position topic, and runs
// until ctx is cancelled. Reconnects with a fixed delay on disconnect.
func (f *BybitPositionFeed) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}

		err := f.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			f.logger.Warn("position stream disconnected, reconnecting", slog.String("error", err.Error()))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		case <-time.After(reconnectDelay):
		}
	}
}

func (f *BybitPositionFeed) runConnection(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return fmt.Errorf("feed: dial %s: %w", f.wsURL, err)
	}
	defer conn.Close()

	if err := f.authenticate(conn); err != nil {
		return err
	}

	sub := map[string]any{
		"op":   "subscribe",
		"args": []string{"position"},
	}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("feed: subscribe: %w", err)
	}
	f.logger.Info("position stream subscribed")

	// close the connection when ctx ends so ReadMessage unblocks
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-f.done:
			_ = conn.Close()
		case <-stop:
		}
	}()

	go f.pingLoop(ctx, conn)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("feed: read: %w", err)
		}
		f.handleMessage(ctx, message)
	}
}

// authenticate sends the private-channel auth op: HMAC-SHA256 over
// "GET/realtime" + expiry.
func (f *BybitPositionFeed) authenticate(conn *websocket.Conn) error {
	expires := time.Now().Add(authWindow).UnixMilli()
	h := hmac.New(sha256.New, []byte(f.apiSecret))
	h.Write([]byte("GET/realtime" + strconv.FormatInt(expires, 10)))

	auth := map[string]any{
		"op":   "auth",
		"args": []any{f.apiKey, expires, hex.EncodeToString(h.Sum(nil))},
	}
	if err := conn.WriteJSON(auth); err != nil {
		return fmt.Errorf("feed: auth: %w", err)
	}
	return nil
}

func (f *BybitPositionFeed) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.done:
			return
		case <-ticker.C:
			if err := conn.WriteJSON(map[string]any{"op": "ping"}); err != nil {
				return
			}
		}
	}
}

// positionEvent is the private position topic payload.
type positionEvent struct {
	Topic string `json:"topic"`
	Data  []struct {
		Symbol      string `json:"symbol"`
		Side        string `json:"side"`
		Size        string `json:"size"`
		EntryPrice  string `json:"entryPrice"`
		UpdatedTime string `json:"updatedTime"`
	} `json:"data"`
}

func (f *BybitPositionFeed) handleMessage(ctx context.Context, message []byte) {
	var event positionEvent
	if err := json.Unmarshal(message, &event); err != nil {
		return
	}
	if event.Topic != "position" {
		return
	}

	for _, d := range event.Data {
		size, _ := strconv.ParseFloat(d.Size, 64)
		entry, _ := strconv.ParseFloat(d.EntryPrice, 64)

		// A size-zero update is still meaningful — it confirms flat — but
		// only for symbols the saga registered interest in. When the watch
		// check itself fails, keep the update.
		if size == 0 {
			watched, err := f.cache.Watched(ctx, d.Symbol, domain.VenueBybit)
			if err == nil && !watched {
				continue
			}
		}

		var side domain.PositionSide
		switch d.Side {
		case "Buy":
			side = domain.PositionSideLong
		case "Sell":
			side = domain.PositionSideShort
		}

		updated := time.Now()
		if ms, err := strconv.ParseInt(d.UpdatedTime, 10, 64); err == nil && ms > 0 {
			updated = time.UnixMilli(ms)
		}

		pos := domain.CachedPosition{
			Symbol:     d.Symbol,
			Venue:      domain.VenueBybit,
			Side:       side,
			Quantity:   size,
			EntryPrice: entry,
			UpdatedAt:  updated,
		}
		if err := f.cache.Set(ctx, pos); err != nil {
			f.logger.Warn("cache update failed",
				slog.String("symbol", d.Symbol),
				slog.String("error", err.Error()))
			continue
		}
		f.logger.Debug("position cached",
			slog.String("symbol", d.Symbol),
			slog.Float64("size", size))
	}
}

// Close stops the feed.
func (f *BybitPositionFeed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}
