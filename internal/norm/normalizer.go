// Package norm converts heterogeneous venue order payloads into the
// canonical domain.NormalizedOrder representation. It is the only place in
// the codebase allowed to interpret the shape of a raw venue payload; it is
// pure and keeps no state.
package norm

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

// fillTolerance absorbs venue rounding on market orders: a fill of at least
// amount × fillTolerance counts as complete even before the status flips.
const fillTolerance = 0.999

// Venues place the same semantic value under different keys, sometimes only
// inside a nested metadata block ("info"). Each list is scanned in order;
// the first usable value wins.
var (
	idKeys     = []string{"orderId", "order_id", "orderID", "id", "orderLinkId", "clientOrderId"}
	statusKeys = []string{"orderStatus", "status", "order_status", "state"}
	sideKeys   = []string{"side", "orderSide", "positionSide"}
	amountKeys = []string{"qty", "origQty", "amount", "quantity", "size"}
	filledKeys = []string{"cumExecQty", "executedQty", "filled", "filled_qty", "cumQty"}
	priceKeys  = []string{"price", "limitPrice"}
	avgKeys    = []string{"avgPrice", "avg_price", "average", "averagePrice", "execPrice"}
	symbolKeys = []string{"symbol", "instrument", "pair"}
	typeKeys   = []string{"orderType", "type", "order_type"}
)

// execPriceScanKeys is the best-effort metadata scan order used by
// ExtractExecutionPrice when neither average nor limit price is usable.
var execPriceScanKeys = []string{
	"avgPrice", "avg_price", "average", "execPrice",
	"lastPriceOnCreated", "triggerPrice", "price",
}

// statusMap folds venue-native and already-canonical statuses (compared in
// lower case) into the canonical set. An already-normalized "closed" and a
// venue-native "Filled" must resolve identically.
var statusMap = map[string]domain.OrderStatus{
	"open":                    domain.OrderStatusOpen,
	"new":                     domain.OrderStatusOpen,
	"created":                 domain.OrderStatusOpen,
	"untriggered":             domain.OrderStatusOpen,
	"triggered":               domain.OrderStatusOpen,
	"partiallyfilled":         domain.OrderStatusOpen,
	"partially_filled":        domain.OrderStatusOpen,
	"active":                  domain.OrderStatusOpen,
	"closed":                  domain.OrderStatusClosed,
	"filled":                  domain.OrderStatusClosed,
	"canceled":                domain.OrderStatusCanceled,
	"cancelled":               domain.OrderStatusCanceled,
	"rejected":                domain.OrderStatusCanceled,
	"expired":                 domain.OrderStatusCanceled,
	"deactivated":             domain.OrderStatusCanceled,
	"partiallyfilledcanceled": domain.OrderStatusCanceled,
}

// Normalize converts a venue-tagged raw order payload into the canonical
// representation. It fails with *domain.MissingFieldError when the payload
// does not carry a usable side under any known location: an order with
// unknown direction is unusable, never guessed.
func Normalize(raw domain.RawOrder) (domain.NormalizedOrder, error) {
	side, ok := extractSide(raw.Data)
	if !ok {
		return domain.NormalizedOrder{}, &domain.MissingFieldError{Field: "side", Venue: raw.Venue}
	}

	o := domain.NormalizedOrder{
		ID:     findString(raw.Data, idKeys),
		Status: MapStatus(findString(raw.Data, statusKeys)),
		Side:   side,
		Amount: findFloat(raw.Data, amountKeys),
		Filled: findFloat(raw.Data, filledKeys),
		Symbol: findString(raw.Data, symbolKeys),
		Type:   mapOrderType(findString(raw.Data, typeKeys)),
		Raw:    raw,
	}

	if p := findFloat(raw.Data, priceKeys); p > 0 {
		o.Price = &p
	}
	if a := findFloat(raw.Data, avgKeys); a > 0 {
		o.Average = &a
	}

	return o, nil
}

// OrderID extracts just the order id from a raw payload. Used where a full
// normalization is not possible, e.g. a minimal create-order acknowledgment
// that carries nothing but the id.
func OrderID(raw domain.RawOrder) string {
	return findString(raw.Data, idKeys)
}

// MapStatus folds a venue-native or already-canonical status value into the
// canonical set. Unrecognized values map to unknown, never to a guess.
func MapStatus(status string) domain.OrderStatus {
	if s, ok := statusMap[strings.ToLower(strings.TrimSpace(status))]; ok {
		return s
	}
	return domain.OrderStatusUnknown
}

// IsFilled reports whether the order has executed. A canonical status of
// closed is definitive; for market orders a filled quantity within rounding
// tolerance of the requested amount also counts, because some venues report
// the fill before transitioning the status.
func IsFilled(o domain.NormalizedOrder) bool {
	if o.Status == domain.OrderStatusClosed {
		return true
	}
	if o.Type == domain.OrderTypeMarket && o.Amount > 0 {
		return o.Filled >= o.Amount*fillTolerance
	}
	return false
}

// ExtractExecutionPrice returns the realized execution price of an order:
// average fill price first, then limit price, then a best-effort scan of the
// raw payload and its nested metadata. Returns 0 when nothing usable is
// found; callers decide the fallback (e.g. the request's reference price).
func ExtractExecutionPrice(o domain.NormalizedOrder) float64 {
	if o.Average != nil && *o.Average > 0 {
		return *o.Average
	}
	if o.Price != nil && *o.Price > 0 {
		return *o.Price
	}
	for _, key := range execPriceScanKeys {
		if v, ok := lookup(o.Raw.Data, key); ok {
			if f := toFloat(v); f > 0 {
				return f
			}
		}
	}
	return 0
}

func extractSide(data map[string]any) (domain.OrderSide, bool) {
	v := findString(data, sideKeys)
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "buy", "long":
		return domain.OrderSideBuy, true
	case "sell", "short":
		return domain.OrderSideSell, true
	default:
		return "", false
	}
}

func mapOrderType(typ string) domain.OrderType {
	switch strings.ToLower(strings.TrimSpace(typ)) {
	case "market":
		return domain.OrderTypeMarket
	case "limit":
		return domain.OrderTypeLimit
	case "stop", "stop_market", "stopmarket":
		return domain.OrderTypeStop
	default:
		return domain.OrderType(strings.ToLower(typ))
	}
}

// lookup finds key at the top level of the payload, falling back to the
// nested "info" metadata block some venues wrap their native fields in.
func lookup(data map[string]any, key string) (any, bool) {
	if data == nil {
		return nil, false
	}
	if v, ok := data[key]; ok && v != nil {
		return v, true
	}
	if info, ok := data["info"].(map[string]any); ok {
		if v, ok := info[key]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func findString(data map[string]any, keys []string) string {
	for _, key := range keys {
		if v, ok := lookup(data, key); ok {
			if s := toString(v); s != "" {
				return s
			}
		}
	}
	return ""
}

func findFloat(data map[string]any, keys []string) float64 {
	for _, key := range keys {
		if v, ok := lookup(data, key); ok {
			if f := toFloat(v); f != 0 {
				return f
			}
		}
	}
	return 0
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	default:
		return ""
	}
}

func toFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0
		}
		return f
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0
		}
		return f
	case int64:
		return float64(t)
	case int:
		return float64(t)
	default:
		return 0
	}
}
