// Package stop owns detection, validation, and idempotent creation of
// protective stop-loss orders. All placement for a given symbol is
// serialized through a per-symbol lock so concurrent retries can never
// create a duplicate stop or double-count one.
package stop

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/alanyoungcy/futuresbot/internal/domain"
	"github.com/alanyoungcy/futuresbot/internal/norm"
)

const (
	defaultTolerance = 0.05
	defaultMaxRatio  = 2.0
)

// Config holds the thresholds for accepting a pre-existing stop as "close
// enough to reuse". The values are deliberately configurable.
type Config struct {
	// Tolerance is the maximum relative difference between an existing stop
	// price and the target for the existing one to be reused.
	Tolerance float64
	// MaxRatio bounds the ratio between the two prices; it guards against
	// reusing a stop left over from a wildly different earlier entry.
	MaxRatio float64
}

func (c Config) withDefaults() Config {
	if c.Tolerance <= 0 {
		c.Tolerance = defaultTolerance
	}
	if c.MaxRatio <= 0 {
		c.MaxRatio = defaultMaxRatio
	}
	return c
}

// Manager places protective stops on a single venue.
type Manager struct {
	ex     domain.Exchange
	cfg    Config
	locks  *lockRegistry
	logger *slog.Logger
}

// NewManager creates a Manager for the given exchange.
func NewManager(ex domain.Exchange, cfg Config, logger *slog.Logger) *Manager {
	return &Manager{
		ex:     ex,
		cfg:    cfg.withDefaults(),
		locks:  newLockRegistry(),
		logger: logger.With(slog.String("component", "stop_manager"), slog.String("venue", string(ex.Venue()))),
	}
}

// Detect reports whether a protective stop already exists for the symbol,
// and its price. Any detection failure is treated conservatively as "not
// present": a false negative merely causes a redundant creation attempt,
// while a false positive would leave a position unprotected.
func (m *Manager) Detect(ctx context.Context, symbol string, expected domain.PositionSide) (bool, float64) {
	// Position-attached stop first: a present, non-zero value on the
	// position itself is authoritative.
	positions, err := m.ex.FetchPositions(ctx, symbol)
	if err != nil {
		m.logger.WarnContext(ctx, "position fetch failed during stop detection",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
	} else {
		for _, p := range positions {
			if p.Symbol != symbol || p.Size == 0 {
				continue
			}
			if p.Side != "" && p.Side != expected {
				continue
			}
			if p.AttachedStop > 0 {
				return true, p.AttachedStop
			}
		}
	}

	// Secondary pass: scan open conditional orders for something
	// stop-shaped on the closing side.
	orders, err := m.ex.FetchOpenOrders(ctx, symbol, map[string]string{"orderFilter": "StopOrder"})
	if err != nil {
		m.logger.WarnContext(ctx, "open order fetch failed during stop detection",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		return false, 0
	}

	closing := expected.CloseSide()
	for _, raw := range orders {
		price, ok := m.classifyStopOrder(raw, closing)
		if ok {
			return true, price
		}
	}
	return false, 0
}

// classifyStopOrder decides whether a raw open order is a protective stop
// for a position closed by closingSide, and returns its trigger price.
// Candidates on the wrong side are ignored even if otherwise stop-shaped:
// they belong to some unrelated order, not to this position.
func (m *Manager) classifyStopOrder(raw domain.RawOrder, closingSide domain.OrderSide) (float64, bool) {
	o, err := norm.Normalize(raw)
	if err != nil {
		return 0, false
	}
	if o.Side != closingSide {
		return 0, false
	}

	trigger := firstPositive(raw.Data, "triggerPrice", "stopPrice", "stopLoss", "slTriggerPx")
	reduceOnly := boolField(raw.Data, "reduceOnly") || boolField(raw.Data, "closeOnTrigger") || boolField(raw.Data, "closePosition")

	// Signal 1: an explicit stop-order-type tag.
	if tag := stringField(raw.Data, "stopOrderType"); tag != "" {
		if strings.Contains(strings.ToLower(tag), "stop") && trigger > 0 {
			return trigger, true
		}
	}
	// Signal 2: order type contains "stop" combined with reduce-only.
	if strings.Contains(strings.ToLower(string(o.Type)), "stop") && reduceOnly && trigger > 0 {
		return trigger, true
	}
	// Signal 3: a trigger price combined with reduce-only.
	if trigger > 0 && reduceOnly {
		return trigger, true
	}
	return 0, false
}

// Place ensures a protective stop exists for the symbol at (or acceptably
// near) targetPrice. It is idempotent: an existing stop within the
// configured tolerance and ratio bound is returned as already_exists and no
// order is created. The whole body runs under the symbol's lock; the lock
// is released on every exit path.
func (m *Manager) Place(ctx context.Context, symbol string, closingSide domain.OrderSide, amount, targetPrice float64) (domain.StopLossRecord, error) {
	if targetPrice <= 0 {
		return domain.StopLossRecord{}, fmt.Errorf("stop: invalid target price %v for %s", targetPrice, symbol)
	}

	lock, err := m.locks.acquire(ctx, symbol)
	if err != nil {
		return domain.StopLossRecord{}, err
	}
	defer m.locks.release(symbol, lock)

	// The side the position was opened on is the inverse of its closing side.
	expected := domain.PositionSideLong
	if closingSide == domain.OrderSideBuy {
		expected = domain.PositionSideShort
	}

	// Re-detect under the lock: a concurrent Place may have won the race.
	if present, existing := m.Detect(ctx, symbol, expected); present {
		if m.acceptExisting(existing, targetPrice) {
			m.logger.InfoContext(ctx, "protective stop already in place",
				slog.String("symbol", symbol),
				slog.Float64("existing", existing),
				slog.Float64("target", targetPrice),
			)
			return domain.StopLossRecord{Status: domain.StopStatusAlreadyExists, Price: existing}, nil
		}
		m.logger.WarnContext(ctx, "existing stop looks stale, creating a fresh one",
			slog.String("symbol", symbol),
			slog.Float64("existing", existing),
			slog.Float64("target", targetPrice),
		)
	}

	return m.create(ctx, symbol, expected, closingSide, amount, targetPrice)
}

// acceptExisting decides whether an existing stop price is close enough to
// the target to reuse: relative difference within Tolerance and price ratio
// within MaxRatio. A stop at 10000 against a target of 58800 fails the
// ratio bound and is treated as a leftover from an unrelated position.
func (m *Manager) acceptExisting(existing, target float64) bool {
	if existing <= 0 || target <= 0 {
		return false
	}
	relDiff := abs(existing-target) / target
	ratio := existing / target
	if ratio < 1 {
		ratio = 1 / ratio
	}
	return relDiff <= m.cfg.Tolerance && ratio <= m.cfg.MaxRatio
}

// create tries each stop mechanism the venue offers in a fixed priority
// order; the first success wins. Errors from the final attempt propagate to
// the caller unchanged.
func (m *Manager) create(ctx context.Context, symbol string, posSide domain.PositionSide, closingSide domain.OrderSide, amount, targetPrice float64) (domain.StopLossRecord, error) {
	// Mechanism 1: position-attached stop, a single position-indexed call.
	if setter, ok := m.ex.(domain.AttachedStopSetter); ok {
		if err := setter.SetPositionStop(ctx, symbol, posSide, targetPrice); err == nil {
			m.logger.InfoContext(ctx, "position-attached stop set",
				slog.String("symbol", symbol),
				slog.Float64("price", targetPrice),
			)
			return domain.StopLossRecord{Status: domain.StopStatusCreated, Price: targetPrice}, nil
		} else {
			m.logger.WarnContext(ctx, "position-attached stop failed, trying conditional order",
				slog.String("symbol", symbol),
				slog.String("error", err.Error()),
			)
		}
	}

	// Mechanism 2: a standalone conditional/trigger order.
	raw, err := m.ex.CreateOrder(ctx, symbol, domain.OrderTypeStop, closingSide, amount, domain.TriggerParams{
		TriggerPrice:  targetPrice,
		ReduceOnly:    true,
		ClosePosition: true,
	})
	if err == nil {
		m.logger.InfoContext(ctx, "conditional stop order created",
			slog.String("symbol", symbol),
			slog.String("order_id", norm.OrderID(raw)),
			slog.Float64("price", targetPrice),
		)
		return domain.StopLossRecord{Status: domain.StopStatusCreated, Price: targetPrice, OrderID: norm.OrderID(raw)}, nil
	}

	// Mechanism 3: the venue's algorithmic-order endpoint, for symbols that
	// reject the standard conditional order type.
	if placer, ok := m.ex.(domain.AlgoOrderPlacer); ok {
		m.logger.WarnContext(ctx, "conditional stop rejected, trying algo order",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		algoRaw, algoErr := placer.CreateAlgoOrder(ctx, symbol, closingSide, amount, targetPrice)
		if algoErr == nil {
			return domain.StopLossRecord{Status: domain.StopStatusCreated, Price: targetPrice, OrderID: norm.OrderID(algoRaw)}, nil
		}
		err = algoErr
	}

	return domain.StopLossRecord{}, err
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func firstPositive(data map[string]any, keys ...string) float64 {
	for _, k := range keys {
		if v, ok := data[k]; ok {
			if f := floatField(v); f > 0 {
				return f
			}
		}
	}
	if info, ok := data["info"].(map[string]any); ok {
		return firstPositive(info, keys...)
	}
	return 0
}

func floatField(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

func stringField(data map[string]any, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	if info, ok := data["info"].(map[string]any); ok {
		if v, ok := info[key].(string); ok {
			return v
		}
	}
	return ""
}

func boolField(data map[string]any, key string) bool {
	switch v := data[key].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true")
	}
	if info, ok := data["info"].(map[string]any); ok {
		switch v := info[key].(type) {
		case bool:
			return v
		case string:
			return strings.EqualFold(v, "true")
		}
	}
	return false
}
