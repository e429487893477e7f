package saga

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/futuresbot/internal/domain"
	"github.com/alanyoungcy/futuresbot/internal/metrics"
)

// rollback compensates for a failure after the entry order is known to
// exist: it closes the exposure with an opposing market order and verifies
// the position is actually flat afterwards. It returns the original cause
// on a clean rollback, or a RollbackVerificationFailedError when the
// compensation could not be confirmed — the one condition that is always
// escalated to an operator and never swallowed.
func (o *Orchestrator) rollback(ctx context.Context, log *slog.Logger, pos *domain.Position, entry *domain.NormalizedOrder, cause error) error {
	metrics.SagaOutcomes.WithLabelValues(string(pos.Venue), outcomeLabel(cause)).Inc()

	// A recognized "cannot trade this at all" rejection means no position
	// was ever confirmed to exist; a plain cancellation is the whole story.
	if domain.SkipsCompensation(cause) {
		o.markStatus(ctx, log, pos.ID, domain.PositionStatusCancelled, cause.Error())
		metrics.Rollbacks.WithLabelValues(string(pos.Venue), "skipped").Inc()
		return cause
	}

	log.ErrorContext(ctx, "saga failed, compensating",
		slog.String("position_id", pos.ID),
		slog.String("cause", cause.Error()),
	)

	// The venue's own propagation can race us: poll until the position
	// becomes visible before trying to close it.
	venuePos := o.awaitVenuePosition(ctx, log, pos.Symbol)

	closeSide, err := o.resolveCloseSide(entry, venuePos)
	if err != nil {
		// Closing in a possibly-wrong direction would double the exposure
		// instead of removing it. Abort loudly.
		o.escalate(ctx, log, pos, fmt.Errorf("%v (original failure: %w)", err, cause))
		o.markStatus(ctx, log, pos.ID, domain.PositionStatusFailed, domain.TruncateExitReason(err.Error()))
		metrics.Rollbacks.WithLabelValues(string(pos.Venue), "unverified").Inc()
		return &domain.RollbackVerificationFailedError{PositionID: pos.ID, Symbol: pos.Symbol, Cause: err}
	}

	// Size the compensating order at the original requested quantity, not
	// at "filled so far": after a stop-placement failure the re-fetched
	// fill can read zero while the real exposure is the full request.
	_, err = o.ex.CreateMarketOrder(ctx, pos.Symbol, closeSide, pos.Quantity, domain.OrderParams{ReduceOnly: true})
	if err != nil {
		o.escalate(ctx, log, pos, fmt.Errorf("compensating order failed: %v (original failure: %w)", err, cause))
		o.markStatus(ctx, log, pos.ID, domain.PositionStatusFailed, domain.TruncateExitReason(cause.Error()))
		metrics.Rollbacks.WithLabelValues(string(pos.Venue), "unverified").Inc()
		return &domain.RollbackVerificationFailedError{PositionID: pos.ID, Symbol: pos.Symbol, Cause: err}
	}

	log.InfoContext(ctx, "compensating order submitted",
		slog.String("position_id", pos.ID),
		slog.String("close_side", string(closeSide)),
		slog.Float64("quantity", pos.Quantity),
	)

	if o.verifyFlat(ctx, log, pos.Symbol, pos.Venue) {
		o.markStatus(ctx, log, pos.ID, domain.PositionStatusRolledBack, domain.TruncateExitReason(cause.Error()))
		metrics.Rollbacks.WithLabelValues(string(pos.Venue), "verified").Inc()
		if err := o.audit.Log(ctx, "position_rolled_back", map[string]any{
			"position_id": pos.ID,
			"symbol":      pos.Symbol,
			"cause":       cause.Error(),
		}); err != nil {
			log.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
		}
		return cause
	}

	verr := &domain.RollbackVerificationFailedError{
		PositionID: pos.ID,
		Symbol:     pos.Symbol,
		Cause:      cause,
	}
	o.escalate(ctx, log, pos, verr)
	o.markStatus(ctx, log, pos.ID, domain.PositionStatusRolledBack,
		domain.TruncateExitReason("UNVERIFIED rollback: "+cause.Error()))
	metrics.Rollbacks.WithLabelValues(string(pos.Venue), "unverified").Inc()
	return verr
}

// awaitVenuePosition polls the position listing a bounded number of times
// at a fixed interval until the position is visible. Returns nil when it
// never shows up.
func (o *Orchestrator) awaitVenuePosition(ctx context.Context, log *slog.Logger, symbol string) *domain.VenuePosition {
	for attempt := 0; attempt < o.cfg.RollbackPollTries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, o.cfg.RollbackPollEvery); err != nil {
				return nil
			}
		}
		positions, err := o.ex.FetchPositions(ctx, symbol)
		if err != nil {
			log.WarnContext(ctx, "position poll failed during rollback", slog.String("error", err.Error()))
			continue
		}
		for i := range positions {
			if positions[i].Symbol == symbol && positions[i].Size > 0 {
				return &positions[i]
			}
		}
	}
	return nil
}

// resolveCloseSide determines the side of the compensating order
// defensively: the entry order's recorded side is preferred; if it is ever
// invalid the venue-reported position side is the fallback; if both are
// unusable, closing would be a coin flip and rollback must abort.
func (o *Orchestrator) resolveCloseSide(entry *domain.NormalizedOrder, venuePos *domain.VenuePosition) (domain.OrderSide, error) {
	if entry != nil && entry.Side.Valid() {
		return entry.Side.Opposite(), nil
	}
	if venuePos != nil && venuePos.Side.Valid() {
		return venuePos.Side.CloseSide(), nil
	}
	return "", fmt.Errorf("saga: cannot determine closing side: entry side and venue position side both unusable")
}

// verifyFlat polls the push cache and the direct position query until both
// agree the position is gone, bounded by the rollback poll budget.
func (o *Orchestrator) verifyFlat(ctx context.Context, log *slog.Logger, symbol string, venue domain.Venue) bool {
	for attempt := 0; attempt < o.cfg.RollbackPollTries; attempt++ {
		if err := sleepCtx(ctx, o.cfg.RollbackPollEvery); err != nil {
			return false
		}

		positions, err := o.ex.FetchPositions(ctx, symbol)
		if err != nil {
			log.WarnContext(ctx, "flatness poll failed", slog.String("error", err.Error()))
			continue
		}
		open := false
		for _, p := range positions {
			if p.Symbol == symbol && p.Size > 0 {
				open = true
				break
			}
		}
		if open {
			continue
		}

		if o.cache != nil {
			cached, err := o.cache.Get(ctx, symbol, venue)
			if err == nil && cached.Quantity > 0 {
				// The push cache may simply lag the close; keep polling.
				continue
			}
			if err != nil && !errors.Is(err, domain.ErrNotFound) {
				log.DebugContext(ctx, "cache unavailable during flatness check", slog.String("error", err.Error()))
			}
		}
		return true
	}
	return false
}

// escalate raises a loud, operator-visible alert through every available
// channel. Used only for conditions where an open, unprotected position
// may remain.
func (o *Orchestrator) escalate(ctx context.Context, log *slog.Logger, pos *domain.Position, cause error) {
	log.ErrorContext(ctx, "CRITICAL: rollback could not be verified, manual intervention required",
		slog.String("position_id", pos.ID),
		slog.String("symbol", pos.Symbol),
		slog.String("error", cause.Error()),
	)
	if o.notifier != nil {
		title := fmt.Sprintf("CRITICAL: unverified rollback on %s", pos.Symbol)
		msg := fmt.Sprintf("position %s may still be open and unprotected: %v", pos.ID, cause)
		if err := o.notifier.NotifyAll(ctx, title, msg); err != nil {
			log.ErrorContext(ctx, "critical alert delivery failed", slog.String("error", err.Error()))
		}
	}
	if o.bus != nil {
		payload, _ := json.Marshal(map[string]any{
			"event":       "rollback_unverified",
			"position_id": pos.ID,
			"symbol":      pos.Symbol,
			"error":       cause.Error(),
		})
		if err := o.bus.Publish(ctx, "critical_alerts", payload); err != nil {
			log.WarnContext(ctx, "critical alert publish failed", slog.String("error", err.Error()))
		}
		// Pub/sub is fire-and-forget; the stream copy survives until an
		// operator replays it.
		if err := o.bus.StreamAppend(ctx, "critical_alerts", payload); err != nil {
			log.WarnContext(ctx, "critical alert stream append failed", slog.String("error", err.Error()))
		}
	}
}

// outcomeLabel maps a saga failure to its metrics label.
func outcomeLabel(err error) string {
	var (
		rejected  *domain.OrderRejectedError
		timeout   *domain.VerificationTimeoutError
		stopFail  *domain.StopPlacementFailedError
		duplicate *domain.DuplicateActivePositionError
	)
	switch {
	case domain.SkipsCompensation(err):
		return "cancelled"
	case errors.As(err, &rejected):
		return "rejected"
	case errors.As(err, &timeout):
		return "verification_timeout"
	case errors.As(err, &stopFail):
		return "stop_failed"
	case errors.As(err, &duplicate):
		return "duplicate"
	default:
		return "failed"
	}
}
