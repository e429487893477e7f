package domain

// PositionRequest is the immutable input to the open-position saga. Optional
// fields override the configured per-symbol defaults for this request only.
type PositionRequest struct {
	Symbol         string
	Venue          Venue
	Side           PositionSide
	Quantity       float64
	ReferencePrice float64

	// Per-request overrides; nil means "use configured default".
	StopLossPct *float64
	Leverage    *int
	TrailingPct *float64
}

// StopStatus describes the outcome of a protective-stop placement call.
type StopStatus string

const (
	StopStatusCreated       StopStatus = "created"
	StopStatusAlreadyExists StopStatus = "already_exists"
)

// StopLossRecord is the outcome of a stop placement or detection: whether a
// stop was freshly created or an acceptable one already existed, the
// effective price, and the venue order id when the stop is a standalone
// order rather than a position attribute.
type StopLossRecord struct {
	Status  StopStatus
	Price   float64
	OrderID string
}

// PositionResult is returned by a successful OpenPositionAtomic call. It
// carries both the realized execution price and the original reference
// price, plus the raw venue payloads for downstream audit.
type PositionResult struct {
	Position       Position
	ExecutionPrice float64
	ReferencePrice float64
	Stop           StopLossRecord
	EntryOrder     NormalizedOrder
}
