package domain

import (
	"time"
)

// PositionSide is the directional exposure of a position.
type PositionSide string

const (
	PositionSideLong  PositionSide = "long"
	PositionSideShort PositionSide = "short"
)

// Valid reports whether s is one of the two known sides.
func (s PositionSide) Valid() bool {
	return s == PositionSideLong || s == PositionSideShort
}

// EntrySide returns the order side that opens a position with this exposure.
func (s PositionSide) EntrySide() OrderSide {
	if s == PositionSideShort {
		return OrderSideSell
	}
	return OrderSideBuy
}

// CloseSide returns the order side that closes a position with this
// exposure: longs close with a sell, shorts with a buy.
func (s PositionSide) CloseSide() OrderSide {
	return s.EntrySide().Opposite()
}

// PositionStatus is the persisted state machine of a position:
//
//	pending_entry → entry_placed → pending_stop → active
//	                     │              │
//	                     └──────► failed / rolled_back / cancelled
//
// A position may only reach active if a stop-loss price is recorded in the
// same update.
type PositionStatus string

const (
	PositionStatusPendingEntry PositionStatus = "pending_entry"
	PositionStatusEntryPlaced  PositionStatus = "entry_placed"
	PositionStatusPendingStop  PositionStatus = "pending_stop"
	PositionStatusActive       PositionStatus = "active"
	PositionStatusFailed       PositionStatus = "failed"
	PositionStatusRolledBack   PositionStatus = "rolled_back"
	PositionStatusCancelled    PositionStatus = "cancelled"
	PositionStatusClosed       PositionStatus = "closed"
)

// Terminal reports whether the status is an end state that recovery must not
// touch.
func (s PositionStatus) Terminal() bool {
	switch s {
	case PositionStatusFailed, PositionStatusRolledBack, PositionStatusCancelled, PositionStatusClosed:
		return true
	default:
		return false
	}
}

// RecoveryStatuses are the non-terminal, non-active states a crashed process
// can leave behind; startup recovery scans for these.
var RecoveryStatuses = []PositionStatus{
	PositionStatusPendingEntry,
	PositionStatusEntryPlaced,
	PositionStatusPendingStop,
}

// ExitReasonMaxLen is the column bound for Position.ExitReason. Writers must
// truncate with a visible marker rather than fail on overflow.
const ExitReasonMaxLen = 255

// TruncateExitReason bounds a free-text exit reason to ExitReasonMaxLen,
// marking the cut with a visible ellipsis.
func TruncateExitReason(reason string) string {
	if len(reason) <= ExitReasonMaxLen {
		return reason
	}
	return reason[:ExitReasonMaxLen-3] + "..."
}

// Position is the persisted trading position. The saga orchestrator owns it
// exclusively during its lifecycle; the store is the system of record but
// never changes state on its own initiative.
type Position struct {
	ID            string
	Symbol        string
	Venue         Venue
	Side          PositionSide
	Quantity      float64
	EntryPrice    float64
	CurrentPrice  float64
	StopLossPrice *float64
	Leverage      int
	Status        PositionStatus
	CreatedAt     time.Time
	ClosedAt      *time.Time
	ExitReason    string
}

// VenuePosition is a position record as reported by the exchange's position
// listing. Side may be empty when the venue reports a flat slot.
type VenuePosition struct {
	Venue        Venue
	Symbol       string
	Side         PositionSide
	Size         float64
	EntryPrice   float64
	MarkPrice    float64
	Leverage     int
	AttachedStop float64 // position-attached stop price; 0 when none
	Raw          map[string]any
}
