package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// PositionStore persists positions. It is the system of record; all state
// transitions are driven by the saga orchestrator.
type PositionStore interface {
	Create(ctx context.Context, pos Position) error
	Update(ctx context.Context, pos Position) error

	// UpdateStatus moves a position to the given status, recording the exit
	// reason (already truncated by the caller) and setting closed_at for
	// terminal states.
	UpdateStatus(ctx context.Context, id string, status PositionStatus, exitReason string) error

	// Activate flips the position to active and records the stop price in
	// the same statement. Keeping both in one update is what guarantees the
	// invariant status==active ⇒ stop_loss_price is set.
	Activate(ctx context.Context, id string, stopPrice float64) error

	GetByID(ctx context.Context, id string) (Position, error)

	// GetByStatus returns positions in any of the given states, oldest
	// first. Used by startup recovery.
	GetByStatus(ctx context.Context, statuses []PositionStatus) ([]Position, error)

	// GetActiveBySymbol returns active positions for a symbol on a venue,
	// used by the defensive duplicate check before activation.
	GetActiveBySymbol(ctx context.Context, symbol string, venue Venue) ([]Position, error)

	ListHistory(ctx context.Context, venue Venue, opts ListOpts) ([]Position, error)
}

// OrderRecord is the audit-trail row for an order the bot submitted.
type OrderRecord struct {
	ID         string // venue order id
	PositionID string
	Symbol     string
	Venue      Venue
	Side       OrderSide
	Type       OrderType
	Amount     float64
	Filled     float64
	Price      *float64
	Status     OrderStatus
	CreatedAt  time.Time
}

// OrderStore persists the order audit trail (best-effort from the saga).
type OrderStore interface {
	Create(ctx context.Context, o OrderRecord) error
	GetByID(ctx context.Context, id string) (OrderRecord, error)
	ListByPosition(ctx context.Context, positionID string) ([]OrderRecord, error)
}

// TradeRecord is the audit-trail row for an executed fill.
type TradeRecord struct {
	ID         string
	PositionID string
	OrderID    string
	Symbol     string
	Venue      Venue
	Side       OrderSide
	Quantity   float64
	Price      float64
	ExecutedAt time.Time
}

// TradeStore persists executed trades (best-effort from the saga).
type TradeStore interface {
	Create(ctx context.Context, t TradeRecord) error
	ListByPosition(ctx context.Context, positionID string) ([]TradeRecord, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

// TxRunner is the transactional-scope primitive. fn runs inside a
// transaction bound to the derived context; nested calls reuse the outer
// transaction through a savepoint, so an inner failure rolls back only the
// inner scope.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}
