package domain

import "context"

// OrderParams carries optional parameters for market order creation.
type OrderParams struct {
	ReduceOnly  bool
	TimeInForce string
}

// TriggerParams carries the conditional-order parameters for the generic
// CreateOrder path.
type TriggerParams struct {
	TriggerPrice  float64
	ReduceOnly    bool
	ClosePosition bool
}

// Exchange is the venue port. One instance per venue; all calls are blocking
// and honour ctx cancellation.
type Exchange interface {
	Venue() Venue

	// CreateMarketOrder submits a market order and returns the raw venue
	// payload. The payload may be minimal (missing fill data); callers
	// re-fetch by id when they need a complete record.
	CreateMarketOrder(ctx context.Context, symbol string, side OrderSide, quantity float64, params OrderParams) (RawOrder, error)

	// FetchOrder retrieves an order by id. Returns ErrNotFound when the
	// venue has no record of it (yet).
	FetchOrder(ctx context.Context, id, symbol string) (RawOrder, error)

	// FetchPositions lists position records, optionally filtered by symbol.
	FetchPositions(ctx context.Context, symbols ...string) ([]VenuePosition, error)

	// FetchOpenOrders lists open orders for a symbol. filter carries
	// venue-specific query params (e.g. conditional-order filters).
	FetchOpenOrders(ctx context.Context, symbol string, filter map[string]string) ([]RawOrder, error)

	// CreateOrder is the generic conditional/trigger order path.
	CreateOrder(ctx context.Context, symbol string, typ OrderType, side OrderSide, amount float64, trigger TriggerParams) (RawOrder, error)

	// SetLeverage adjusts the symbol's leverage. Venues commonly reject the
	// call when the value is already in effect; callers treat failure as
	// non-fatal.
	SetLeverage(ctx context.Context, symbol string, leverage int) error
}

// AttachedStopSetter is implemented by venues that support setting a stop as
// an attribute of the position itself (single position-indexed call).
type AttachedStopSetter interface {
	SetPositionStop(ctx context.Context, symbol string, side PositionSide, stopPrice float64) error
}

// AlgoOrderPlacer is implemented by venues that offer a separate algorithmic
// order endpoint, used as a fallback when the standard conditional order
// type is rejected for a symbol.
type AlgoOrderPlacer interface {
	CreateAlgoOrder(ctx context.Context, symbol string, side OrderSide, amount, triggerPrice float64) (RawOrder, error)
}
