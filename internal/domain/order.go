package domain

// Venue identifies the external trading exchange a payload came from.
type Venue string

const (
	VenueBybit   Venue = "bybit"
	VenueBinance Venue = "binance"
)

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Opposite returns the side that closes an exposure opened on s.
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// Valid reports whether s is one of the two known sides.
func (s OrderSide) Valid() bool {
	return s == OrderSideBuy || s == OrderSideSell
}

// OrderStatus is the canonical order lifecycle status. Venue-native statuses
// are mapped into this closed set by the normalizer.
type OrderStatus string

const (
	OrderStatusOpen     OrderStatus = "open"
	OrderStatusClosed   OrderStatus = "closed"
	OrderStatusCanceled OrderStatus = "canceled"
	OrderStatusUnknown  OrderStatus = "unknown"
)

// OrderType is the canonical order type.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
	OrderTypeStop   OrderType = "stop_market"
)

// RawOrder is an opaque, venue-tagged order payload exactly as returned by
// the exchange. Only the normalizer is allowed to interpret its shape; every
// other component carries it around for diagnostics and audit.
type RawOrder struct {
	Venue Venue
	Data  map[string]any
}

// Empty reports whether the payload carries no data at all.
func (r RawOrder) Empty() bool { return len(r.Data) == 0 }

// NormalizedOrder is the canonical order representation produced by the
// normalizer. It is immutable once built. Side is guaranteed non-empty:
// construction fails with MissingFieldError rather than defaulting, because
// an order with unknown direction would make every downstream directional
// decision a guess.
type NormalizedOrder struct {
	ID      string
	Status  OrderStatus
	Side    OrderSide
	Amount  float64
	Filled  float64
	Price   *float64 // limit price, nil when absent
	Average *float64 // average fill price, nil when absent
	Symbol  string
	Type    OrderType
	Raw     RawOrder
}
