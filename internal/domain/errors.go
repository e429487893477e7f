package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrContextDone   = errors.New("context cancelled")

	// ErrSymbolUnavailable marks a venue error meaning the instrument cannot
	// be traded at all (delisted, reduce-only, suspended). Platform clients
	// wrap their venue-specific error codes with this sentinel so the saga
	// can skip compensation: no position was ever opened.
	ErrSymbolUnavailable = errors.New("symbol unavailable for trading")

	// ErrMinimumSize marks a venue rejection for an order below the
	// instrument's minimum quantity. Same propagation rule as
	// ErrSymbolUnavailable.
	ErrMinimumSize = errors.New("order below venue minimum size")
)

// MissingFieldError is returned by normalization when a required attribute
// cannot be determined from the venue payload. It is never silently
// defaulted: an order without a known side is unusable downstream.
type MissingFieldError struct {
	Field string
	Venue Venue
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("normalize %s payload: missing required field %q", e.Venue, e.Field)
}

// OrderRejectedError is a confirmed negative fill: the venue reports the
// order closed with nothing executed.
type OrderRejectedError struct {
	OrderID string
	Symbol  string
}

func (e *OrderRejectedError) Error() string {
	return fmt.Sprintf("order %s for %s rejected by venue: closed with zero fill", e.OrderID, e.Symbol)
}

// VerificationTimeoutError means no source confirmed the position's
// existence within the verification deadline.
type VerificationTimeoutError struct {
	Symbol  string
	Elapsed time.Duration
}

func (e *VerificationTimeoutError) Error() string {
	return fmt.Sprintf("position %s not confirmed by any source after %s", e.Symbol, e.Elapsed)
}

// StopPlacementFailedError means every stop-creation attempt was exhausted.
type StopPlacementFailedError struct {
	Symbol   string
	Attempts int
	Last     error
}

func (e *StopPlacementFailedError) Error() string {
	return fmt.Sprintf("stop placement for %s failed after %d attempts: %v", e.Symbol, e.Attempts, e.Last)
}

func (e *StopPlacementFailedError) Unwrap() error { return e.Last }

// DuplicateActivePositionError is raised by the defensive pre-activation
// check when another active row already exists for the same symbol/venue.
type DuplicateActivePositionError struct {
	Symbol     string
	Venue      Venue
	ExistingID string
}

func (e *DuplicateActivePositionError) Error() string {
	return fmt.Sprintf("another active position %s already exists for %s on %s", e.ExistingID, e.Symbol, e.Venue)
}

// RollbackVerificationFailedError means a compensating close was submitted
// but the position could not be confirmed flat. Callers must assume an open,
// unprotected position remains and escalate to an operator; this error is
// never auto-resolved.
type RollbackVerificationFailedError struct {
	PositionID string
	Symbol     string
	Cause      error
}

func (e *RollbackVerificationFailedError) Error() string {
	return fmt.Sprintf("rollback of position %s (%s) could not be verified: %v", e.PositionID, e.Symbol, e.Cause)
}

func (e *RollbackVerificationFailedError) Unwrap() error { return e.Cause }

// SkipsCompensation reports whether err identifies a venue rejection that
// guarantees no position was opened, so rollback can be skipped in favour of
// a plain cancellation.
func SkipsCompensation(err error) bool {
	return errors.Is(err, ErrSymbolUnavailable) || errors.Is(err, ErrMinimumSize)
}
