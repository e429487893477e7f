package saga

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/futuresbot/internal/domain"
	"github.com/alanyoungcy/futuresbot/internal/metrics"
)

// Recover scans for positions a crashed process left in an intermediate
// state and drives each to a safe outcome: discard what was never
// submitted, protect what is exposed, and close outright what cannot be
// protected. Individual failures are logged and do not stop the scan.
func (o *Orchestrator) Recover(ctx context.Context) error {
	rows, err := o.store.GetByStatus(ctx, domain.RecoveryStatuses)
	if err != nil {
		return fmt.Errorf("saga: recovery scan: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}

	o.logger.InfoContext(ctx, "recovering interrupted positions", slog.Int("count", len(rows)))

	for i := range rows {
		pos := rows[i]
		log := o.logger.With(
			slog.String("position_id", pos.ID),
			slog.String("symbol", pos.Symbol),
			slog.String("status", string(pos.Status)),
		)

		switch pos.Status {
		case domain.PositionStatusPendingEntry:
			// Nothing was ever submitted; the row is safe to discard.
			o.markStatus(ctx, log, pos.ID, domain.PositionStatusFailed, "recovery: entry was never submitted")
			metrics.RecoveredPositions.WithLabelValues("discarded").Inc()

		case domain.PositionStatusPendingStop:
			// The crash may have landed between stop creation and
			// activation: a stop that already exists just needs the
			// activation finished.
			if present, price := o.stops.Detect(ctx, pos.Symbol, pos.Side); present {
				if err := o.store.Activate(ctx, pos.ID, price); err != nil {
					log.ErrorContext(ctx, "recovery activation failed", slog.String("error", err.Error()))
					continue
				}
				log.InfoContext(ctx, "recovered position activated", slog.Float64("stop_price", price))
				metrics.RecoveredPositions.WithLabelValues("activated").Inc()
				continue
			}
			o.recoverUnprotected(ctx, log, pos)

		case domain.PositionStatusEntryPlaced:
			o.recoverUnprotected(ctx, log, pos)
		}
	}
	return nil
}

// recoverUnprotected handles a position whose entry exists but has no
// confirmed stop: place one and activate, or emergency-close the exposure.
func (o *Orchestrator) recoverUnprotected(ctx context.Context, log *slog.Logger, pos domain.Position) {
	req := domain.PositionRequest{
		Symbol:         pos.Symbol,
		Venue:          pos.Venue,
		Side:           pos.Side,
		Quantity:       pos.Quantity,
		ReferencePrice: pos.EntryPrice,
	}

	target := targetStopPrice(pos.EntryPrice, o.cfg.StopLossPct, pos.Side)
	record, err := o.placeStopWithRetry(ctx, log, req, target)
	if err != nil {
		// The position is exposed and cannot be protected: close it
		// outright. The entry side is known from the persisted row, so the
		// compensating direction is not a guess.
		log.ErrorContext(ctx, "recovery stop placement failed, emergency closing", slog.String("error", err.Error()))
		entry := domain.NormalizedOrder{Side: pos.Side.EntrySide()}
		_ = o.rollback(ctx, log, &pos, &entry, err)
		metrics.RecoveredPositions.WithLabelValues("closed").Inc()
		return
	}

	if err := o.store.Activate(ctx, pos.ID, record.Price); err != nil {
		log.ErrorContext(ctx, "recovery activation failed", slog.String("error", err.Error()))
		return
	}
	log.InfoContext(ctx, "recovered position protected and activated",
		slog.Float64("stop_price", record.Price),
		slog.String("stop_status", string(record.Status)),
	)
	metrics.RecoveredPositions.WithLabelValues("activated").Inc()
}
