// Package saga implements the atomic position-creation workflow: place a
// leveraged entry order, verify the fill against multiple sources, attach a
// protective stop, and activate the persisted position — or, on any failure
// after the entry exists, compensate by closing the exposure again. The
// venue offers no cross-request transactions, so atomicity here means
// compensation, not two-phase commit.
package saga

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/futuresbot/internal/domain"
	"github.com/alanyoungcy/futuresbot/internal/metrics"
	"github.com/alanyoungcy/futuresbot/internal/norm"
	"github.com/alanyoungcy/futuresbot/internal/stop"
)

// Alerter delivers operator-visible notifications. Implemented by
// notify.Notifier.
type Alerter interface {
	NotifyAll(ctx context.Context, title, message string) error
}

// Config holds the orchestrator's tunables. Zero values fall back to the
// documented defaults.
type Config struct {
	StopLossPct float64 // default protective stop distance (0.02 = 2%)
	Leverage    int     // default leverage when the request has no override

	// Symbols overrides the stop distance and leverage per symbol. An
	// explicit value on the request still wins over both.
	Symbols map[string]SymbolDefaults

	VerifyTimeout    time.Duration // overall fill-verification deadline (10s)
	VerifyBackoffMin time.Duration // first poll interval (500ms)
	VerifyBackoffMax time.Duration // backoff cap (2s)

	StopRetries      int           // stop placement attempts (3)
	StopRetryBackoff time.Duration // base for exponential stop retry backoff (1s)

	RefetchRetries int           // re-fetches of a minimal create-order response (4)
	RefetchBackoff time.Duration // initial re-fetch delay, grows per attempt (300ms)

	RollbackPollTries int           // position visibility / flatness polls (10)
	RollbackPollEvery time.Duration // fixed interval between rollback polls (1s)

	QuantityTolerance float64       // cache quantity match tolerance (0.01)
	OperationTTL      time.Duration // diagnostics record lifetime after completion
}

// SymbolDefaults carries per-symbol overrides; zero fields inherit the
// global defaults.
type SymbolDefaults struct {
	StopLossPct float64
	Leverage    int
}

func (c Config) withDefaults() Config {
	if c.StopLossPct <= 0 {
		c.StopLossPct = 0.02
	}
	if c.Leverage <= 0 {
		c.Leverage = 1
	}
	if c.VerifyTimeout <= 0 {
		c.VerifyTimeout = 10 * time.Second
	}
	if c.VerifyBackoffMin <= 0 {
		c.VerifyBackoffMin = 500 * time.Millisecond
	}
	if c.VerifyBackoffMax <= 0 {
		c.VerifyBackoffMax = 2 * time.Second
	}
	if c.StopRetries <= 0 {
		c.StopRetries = 3
	}
	if c.StopRetryBackoff <= 0 {
		c.StopRetryBackoff = time.Second
	}
	if c.RefetchRetries <= 0 {
		c.RefetchRetries = 4
	}
	if c.RefetchBackoff <= 0 {
		c.RefetchBackoff = 300 * time.Millisecond
	}
	if c.RollbackPollTries <= 0 {
		c.RollbackPollTries = 10
	}
	if c.RollbackPollEvery <= 0 {
		c.RollbackPollEvery = time.Second
	}
	if c.QuantityTolerance <= 0 {
		c.QuantityTolerance = 0.01
	}
	if c.OperationTTL <= 0 {
		c.OperationTTL = time.Minute
	}
	return c
}

// Orchestrator sequences the open-position saga for one venue.
type Orchestrator struct {
	ex       domain.Exchange
	stops    *stop.Manager
	store    domain.PositionStore
	orders   domain.OrderStore
	trades   domain.TradeStore
	audit    domain.AuditStore
	cache    domain.PositionCache // optional; nil removes one verification source
	bus      domain.SignalBus     // optional
	notifier Alerter              // optional; critical escalation path
	cfg      Config
	ops      *OperationRegistry
	logger   *slog.Logger
}

// NewOrchestrator wires an Orchestrator. cache, bus, and notifier may be
// nil; the saga tolerates their absence.
func NewOrchestrator(
	ex domain.Exchange,
	stops *stop.Manager,
	store domain.PositionStore,
	orders domain.OrderStore,
	trades domain.TradeStore,
	audit domain.AuditStore,
	cache domain.PositionCache,
	bus domain.SignalBus,
	notifier Alerter,
	cfg Config,
	logger *slog.Logger,
) *Orchestrator {
	cfg = cfg.withDefaults()
	return &Orchestrator{
		ex:       ex,
		stops:    stops,
		store:    store,
		orders:   orders,
		trades:   trades,
		audit:    audit,
		cache:    cache,
		bus:      bus,
		notifier: notifier,
		cfg:      cfg,
		ops:      NewOperationRegistry(cfg.OperationTTL),
		logger:   logger.With(slog.String("component", "saga"), slog.String("venue", string(ex.Venue()))),
	}
}

// Operations returns a snapshot of in-flight sagas for diagnostics.
func (o *Orchestrator) Operations() []Operation {
	return o.ops.Snapshot()
}

// OpenPositionAtomic runs the full open-position workflow. On success the
// persisted position is active with a recorded stop price. On failure the
// caller may assume no unprotected position was left open — except when the
// returned error is a *domain.RollbackVerificationFailedError, which means
// the opposite must be assumed and investigated.
func (o *Orchestrator) OpenPositionAtomic(ctx context.Context, req domain.PositionRequest) (domain.PositionResult, error) {
	if err := validateRequest(req); err != nil {
		return domain.PositionResult{}, err
	}

	op := o.ops.Begin(req.Symbol)
	log := o.logger.With(
		slog.String("op_id", op.ID),
		slog.String("symbol", req.Symbol),
		slog.String("side", string(req.Side)),
	)

	slPct, leverage := o.symbolDefaults(req.Symbol)
	if req.StopLossPct != nil {
		slPct = *req.StopLossPct
	}
	if req.Leverage != nil {
		leverage = *req.Leverage
	}

	// Tentative row first: a crash between here and the entry order leaves a
	// pending_entry row that recovery can safely discard.
	pos := domain.Position{
		ID:           uuid.New().String(),
		Symbol:       req.Symbol,
		Venue:        req.Venue,
		Side:         req.Side,
		Quantity:     req.Quantity,
		EntryPrice:   req.ReferencePrice,
		CurrentPrice: req.ReferencePrice,
		Leverage:     leverage,
		Status:       domain.PositionStatusPendingEntry,
		CreatedAt:    time.Now().UTC(),
	}
	if err := o.store.Create(ctx, pos); err != nil {
		o.ops.Finish(op, "failed")
		return domain.PositionResult{}, fmt.Errorf("saga: persist tentative position: %w", err)
	}

	result, err := o.runEntry(ctx, log, &pos, req, slPct, leverage)
	if err != nil {
		o.ops.Finish(op, "failed")
		return domain.PositionResult{}, err
	}
	o.ops.Finish(op, "active")
	return result, nil
}

// symbolDefaults resolves the stop distance and leverage for a symbol:
// per-symbol config entry first, global default otherwise.
func (o *Orchestrator) symbolDefaults(symbol string) (float64, int) {
	slPct := o.cfg.StopLossPct
	leverage := o.cfg.Leverage
	if s, ok := o.cfg.Symbols[symbol]; ok {
		if s.StopLossPct > 0 {
			slPct = s.StopLossPct
		}
		if s.Leverage > 0 {
			leverage = s.Leverage
		}
	}
	return slPct, leverage
}

// runEntry drives PENDING_ENTRY → ACTIVE; every failure after the entry
// order exists routes through rollback.
func (o *Orchestrator) runEntry(ctx context.Context, log *slog.Logger, pos *domain.Position, req domain.PositionRequest, slPct float64, leverage int) (domain.PositionResult, error) {
	// Pre-register with the push cache before ordering so updates arriving
	// within milliseconds of the fill are not lost. Best effort.
	if o.cache != nil {
		if err := o.cache.PreRegister(ctx, req.Symbol, req.Venue); err != nil {
			log.WarnContext(ctx, "cache pre-registration failed", slog.String("error", err.Error()))
		}
	}

	// A leverage-set failure is not worth aborting over: trading proceeds
	// under whatever leverage is already in effect.
	if err := o.ex.SetLeverage(ctx, req.Symbol, leverage); err != nil {
		log.WarnContext(ctx, "set leverage failed, continuing",
			slog.Int("leverage", leverage),
			slog.String("error", err.Error()),
		)
	}

	raw, err := o.ex.CreateMarketOrder(ctx, req.Symbol, req.Side.EntrySide(), req.Quantity, domain.OrderParams{})
	if err != nil {
		if domain.SkipsCompensation(err) {
			// The venue refused the instrument or the size: no position was
			// ever opened, a plain cancellation is enough.
			o.markStatus(ctx, log, pos.ID, domain.PositionStatusCancelled, err.Error())
			metrics.SagaOutcomes.WithLabelValues(string(req.Venue), "cancelled").Inc()
			return domain.PositionResult{}, fmt.Errorf("saga: entry order refused: %w", err)
		}
		o.markStatus(ctx, log, pos.ID, domain.PositionStatusFailed, err.Error())
		metrics.SagaOutcomes.WithLabelValues(string(req.Venue), "failed").Inc()
		return domain.PositionResult{}, fmt.Errorf("saga: place entry order: %w", err)
	}

	raw = o.completeOrder(ctx, log, raw, req.Symbol)

	order, err := norm.Normalize(raw)
	if err != nil {
		// The order exists but its payload is unusable; compensate rather
		// than guess at its direction.
		return domain.PositionResult{}, o.rollback(ctx, log, pos, nil, fmt.Errorf("saga: normalize entry order: %w", err))
	}
	if !norm.IsFilled(order) {
		return domain.PositionResult{}, o.rollback(ctx, log, pos, &order, fmt.Errorf("saga: entry order %s not filled (status=%s filled=%v)", order.ID, order.Status, order.Filled))
	}

	execPrice := o.resolveExecutionPrice(ctx, log, order, req)

	// Persist the realized execution price, not the reference price: a stop
	// computed from a stale reference can be meaningfully wrong after
	// slippage.
	pos.EntryPrice = execPrice
	pos.CurrentPrice = execPrice
	pos.Status = domain.PositionStatusEntryPlaced
	if err := o.store.Update(ctx, *pos); err != nil {
		return domain.PositionResult{}, o.rollback(ctx, log, pos, &order, fmt.Errorf("saga: persist entry: %w", err))
	}

	o.auditEntry(ctx, log, pos, order, execPrice)

	if err := o.verifyFill(ctx, log, req, order); err != nil {
		return domain.PositionResult{}, o.rollback(ctx, log, pos, &order, err)
	}

	// ENTRY_PLACED → PENDING_STOP.
	pos.Status = domain.PositionStatusPendingStop
	if err := o.store.UpdateStatus(ctx, pos.ID, domain.PositionStatusPendingStop, ""); err != nil {
		return domain.PositionResult{}, o.rollback(ctx, log, pos, &order, fmt.Errorf("saga: persist pending_stop: %w", err))
	}

	stopPrice := targetStopPrice(execPrice, slPct, req.Side)
	record, err := o.placeStopWithRetry(ctx, log, req, stopPrice)
	if err != nil {
		return domain.PositionResult{}, o.rollback(ctx, log, pos, &order, err)
	}
	o.auditStop(ctx, log, pos, record)

	// Defensive duplicate check: the saga is not serialized per symbol
	// beyond the stop manager's lock, so two interleaved sagas could both
	// reach this point. Two active rows for one symbol would corrupt the
	// book; route the loser to rollback.
	active, err := o.store.GetActiveBySymbol(ctx, req.Symbol, req.Venue)
	if err != nil {
		return domain.PositionResult{}, o.rollback(ctx, log, pos, &order, fmt.Errorf("saga: duplicate check: %w", err))
	}
	for _, other := range active {
		if other.ID != pos.ID {
			dup := &domain.DuplicateActivePositionError{Symbol: req.Symbol, Venue: req.Venue, ExistingID: other.ID}
			return domain.PositionResult{}, o.rollback(ctx, log, pos, &order, dup)
		}
	}

	// PENDING_STOP → ACTIVE: status and stop price land in one update, so
	// an active row always carries its stop.
	if err := o.store.Activate(ctx, pos.ID, record.Price); err != nil {
		return domain.PositionResult{}, o.rollback(ctx, log, pos, &order, fmt.Errorf("saga: activate: %w", err))
	}
	pos.Status = domain.PositionStatusActive
	pos.StopLossPrice = &record.Price

	log.InfoContext(ctx, "position active",
		slog.String("position_id", pos.ID),
		slog.Float64("entry_price", execPrice),
		slog.Float64("stop_price", record.Price),
		slog.String("stop_status", string(record.Status)),
	)
	metrics.SagaOutcomes.WithLabelValues(string(req.Venue), "active").Inc()
	o.publishEvent(ctx, "position_active", map[string]any{
		"position_id": pos.ID,
		"symbol":      req.Symbol,
		"side":        string(req.Side),
		"entry_price": execPrice,
		"stop_price":  record.Price,
	})

	return domain.PositionResult{
		Position:       *pos,
		ExecutionPrice: execPrice,
		ReferencePrice: req.ReferencePrice,
		Stop:           record,
		EntryOrder:     order,
	}, nil
}

// completeOrder re-fetches a minimal create-order response until a complete
// record is obtained or retries are exhausted. The delay grows per attempt
// to ride out venue-side propagation lag. If the record stays incomplete
// the minimal payload is returned and the normalizer's fail-fast rule
// decides its fate.
func (o *Orchestrator) completeOrder(ctx context.Context, log *slog.Logger, raw domain.RawOrder, symbol string) domain.RawOrder {
	if isCompleteOrder(raw) {
		return raw
	}
	id := norm.OrderID(raw)
	if id == "" {
		return raw
	}

	for attempt := 1; attempt <= o.cfg.RefetchRetries; attempt++ {
		if err := sleepCtx(ctx, time.Duration(attempt)*o.cfg.RefetchBackoff); err != nil {
			return raw
		}
		fetched, err := o.ex.FetchOrder(ctx, id, symbol)
		if err != nil {
			log.WarnContext(ctx, "order re-fetch failed",
				slog.String("order_id", id),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
			continue
		}
		if isCompleteOrder(fetched) {
			return fetched
		}
		raw = fetched
	}
	log.WarnContext(ctx, "order record still incomplete after re-fetches", slog.String("order_id", id))
	return raw
}

// isCompleteOrder reports whether the payload carries enough to normalize
// and judge the fill: a side plus either a fill quantity or a mapped status.
func isCompleteOrder(raw domain.RawOrder) bool {
	order, err := norm.Normalize(raw)
	if err != nil {
		return false
	}
	return order.Filled > 0 || order.Status != domain.OrderStatusUnknown
}

// resolveExecutionPrice extracts the realized price from the order, falls
// back to the venue's reported position entry price, and only as a last
// resort uses the request's reference price.
func (o *Orchestrator) resolveExecutionPrice(ctx context.Context, log *slog.Logger, order domain.NormalizedOrder, req domain.PositionRequest) float64 {
	if p := norm.ExtractExecutionPrice(order); p > 0 {
		return p
	}
	positions, err := o.ex.FetchPositions(ctx, req.Symbol)
	if err == nil {
		for _, p := range positions {
			if p.Symbol == req.Symbol && p.Size > 0 && p.EntryPrice > 0 {
				log.InfoContext(ctx, "using venue position entry price", slog.Float64("price", p.EntryPrice))
				return p.EntryPrice
			}
		}
	}
	log.WarnContext(ctx, "no usable fill price, falling back to reference price",
		slog.Float64("reference_price", req.ReferencePrice),
	)
	return req.ReferencePrice
}

// verifyFill confirms the position exists using three sources in priority
// order under one overall deadline: the order status (authoritative — a
// filled order has executed by definition), the push cache (may lag), and
// the direct position query (may also lag). A confirmed negative from the
// order source fails immediately; otherwise sources that error or have no
// answer yet simply defer to the next poll.
func (o *Orchestrator) verifyFill(ctx context.Context, log *slog.Logger, req domain.PositionRequest, order domain.NormalizedOrder) error {
	deadline := time.Now().Add(o.cfg.VerifyTimeout)
	backoff := o.cfg.VerifyBackoffMin

	for {
		confirmed, negative := o.checkOrderSource(ctx, log, order, req.Symbol)
		if negative != nil {
			return negative
		}
		if confirmed {
			return nil
		}
		if o.checkCacheSource(ctx, log, req) {
			log.InfoContext(ctx, "fill confirmed by push cache")
			return nil
		}
		if o.checkPositionSource(ctx, log, req) {
			log.InfoContext(ctx, "fill confirmed by position query")
			return nil
		}

		if time.Now().After(deadline) {
			return &domain.VerificationTimeoutError{Symbol: req.Symbol, Elapsed: o.cfg.VerifyTimeout}
		}
		if err := sleepCtx(ctx, backoff); err != nil {
			return err
		}
		backoff *= 2
		if backoff > o.cfg.VerifyBackoffMax {
			backoff = o.cfg.VerifyBackoffMax
		}
	}
}

// checkOrderSource re-fetches the entry order. filled > 0 confirms;
// closed with zero fill is a confirmed negative.
func (o *Orchestrator) checkOrderSource(ctx context.Context, log *slog.Logger, order domain.NormalizedOrder, symbol string) (bool, error) {
	raw, err := o.ex.FetchOrder(ctx, order.ID, symbol)
	if err != nil {
		log.DebugContext(ctx, "order source unavailable", slog.String("error", err.Error()))
		return false, nil
	}
	fetched, err := norm.Normalize(raw)
	if err != nil {
		return false, nil
	}
	if fetched.Filled > 0 {
		return true, nil
	}
	if fetched.Status == domain.OrderStatusClosed && fetched.Filled == 0 {
		return false, &domain.OrderRejectedError{OrderID: order.ID, Symbol: symbol}
	}
	return false, nil
}

func (o *Orchestrator) checkCacheSource(ctx context.Context, log *slog.Logger, req domain.PositionRequest) bool {
	if o.cache == nil {
		return false
	}
	cached, err := o.cache.Get(ctx, req.Symbol, req.Venue)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			log.DebugContext(ctx, "cache source unavailable", slog.String("error", err.Error()))
		}
		return false
	}
	if cached.Side != "" && cached.Side != req.Side {
		return false
	}
	diff := cached.Quantity - req.Quantity
	if diff < 0 {
		diff = -diff
	}
	return req.Quantity > 0 && diff/req.Quantity <= o.cfg.QuantityTolerance
}

func (o *Orchestrator) checkPositionSource(ctx context.Context, log *slog.Logger, req domain.PositionRequest) bool {
	positions, err := o.ex.FetchPositions(ctx, req.Symbol)
	if err != nil {
		log.DebugContext(ctx, "position source unavailable", slog.String("error", err.Error()))
		return false
	}
	for _, p := range positions {
		if p.Symbol == req.Symbol && p.Size > 0 {
			return true
		}
	}
	return false
}

// placeStopWithRetry calls the stop manager with bounded retries and
// exponential backoff; exhausting them yields StopPlacementFailedError.
func (o *Orchestrator) placeStopWithRetry(ctx context.Context, log *slog.Logger, req domain.PositionRequest, stopPrice float64) (domain.StopLossRecord, error) {
	var lastErr error
	for attempt := 1; attempt <= o.cfg.StopRetries; attempt++ {
		record, err := o.stops.Place(ctx, req.Symbol, req.Side.CloseSide(), req.Quantity, stopPrice)
		if err == nil {
			metrics.StopPlacements.WithLabelValues(string(req.Venue), string(record.Status)).Inc()
			return record, nil
		}
		lastErr = err
		log.WarnContext(ctx, "stop placement attempt failed",
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
		if attempt < o.cfg.StopRetries {
			if serr := sleepCtx(ctx, o.cfg.StopRetryBackoff*time.Duration(1<<(attempt-1))); serr != nil {
				lastErr = serr
				break
			}
		}
	}
	metrics.StopPlacements.WithLabelValues(string(req.Venue), "failed").Inc()
	return domain.StopLossRecord{}, &domain.StopPlacementFailedError{
		Symbol:   req.Symbol,
		Attempts: o.cfg.StopRetries,
		Last:     lastErr,
	}
}

// targetStopPrice computes the protective stop from the realized execution
// price: below entry for longs, above entry for shorts.
func targetStopPrice(execPrice, slPct float64, side domain.PositionSide) float64 {
	if side == domain.PositionSideShort {
		return execPrice * (1 + slPct)
	}
	return execPrice * (1 - slPct)
}

func (o *Orchestrator) auditEntry(ctx context.Context, log *slog.Logger, pos *domain.Position, order domain.NormalizedOrder, execPrice float64) {
	rec := domain.OrderRecord{
		ID:         order.ID,
		PositionID: pos.ID,
		Symbol:     pos.Symbol,
		Venue:      pos.Venue,
		Side:       order.Side,
		Type:       order.Type,
		Amount:     order.Amount,
		Filled:     order.Filled,
		Status:     order.Status,
		CreatedAt:  time.Now().UTC(),
	}
	if order.Average != nil {
		rec.Price = order.Average
	}
	if err := o.orders.Create(ctx, rec); err != nil {
		log.WarnContext(ctx, "entry order audit write failed", slog.String("error", err.Error()))
	}
	if err := o.trades.Create(ctx, domain.TradeRecord{
		ID:         uuid.New().String(),
		PositionID: pos.ID,
		OrderID:    order.ID,
		Symbol:     pos.Symbol,
		Venue:      pos.Venue,
		Side:       order.Side,
		Quantity:   order.Filled,
		Price:      execPrice,
		ExecutedAt: time.Now().UTC(),
	}); err != nil {
		log.WarnContext(ctx, "trade audit write failed", slog.String("error", err.Error()))
	}
	if err := o.audit.Log(ctx, "entry_filled", map[string]any{
		"position_id": pos.ID,
		"order_id":    order.ID,
		"symbol":      pos.Symbol,
		"exec_price":  execPrice,
	}); err != nil {
		log.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
	}
}

func (o *Orchestrator) auditStop(ctx context.Context, log *slog.Logger, pos *domain.Position, record domain.StopLossRecord) {
	if record.OrderID != "" {
		rec := domain.OrderRecord{
			ID:         record.OrderID,
			PositionID: pos.ID,
			Symbol:     pos.Symbol,
			Venue:      pos.Venue,
			Side:       pos.Side.CloseSide(),
			Type:       domain.OrderTypeStop,
			Amount:     pos.Quantity,
			Price:      &record.Price,
			Status:     domain.OrderStatusOpen,
			CreatedAt:  time.Now().UTC(),
		}
		if err := o.orders.Create(ctx, rec); err != nil {
			log.WarnContext(ctx, "stop order audit write failed", slog.String("error", err.Error()))
		}
	}
	if err := o.audit.Log(ctx, "stop_placed", map[string]any{
		"position_id": pos.ID,
		"symbol":      pos.Symbol,
		"stop_price":  record.Price,
		"status":      string(record.Status),
	}); err != nil {
		log.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
	}
}

// markStatus updates the row's status with a truncated reason, logging
// rather than failing when the write itself errors.
func (o *Orchestrator) markStatus(ctx context.Context, log *slog.Logger, id string, status domain.PositionStatus, reason string) {
	if err := o.store.UpdateStatus(ctx, id, status, domain.TruncateExitReason(reason)); err != nil {
		log.ErrorContext(ctx, "position status update failed",
			slog.String("position_id", id),
			slog.String("status", string(status)),
			slog.String("error", err.Error()),
		)
	}
}

func (o *Orchestrator) publishEvent(ctx context.Context, event string, detail map[string]any) {
	if o.bus == nil {
		return
	}
	detail["event"] = event
	payload, _ := json.Marshal(detail)
	if err := o.bus.Publish(ctx, "saga_events", payload); err != nil {
		o.logger.WarnContext(ctx, "event publish failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func validateRequest(req domain.PositionRequest) error {
	if req.Symbol == "" {
		return fmt.Errorf("saga: request has no symbol")
	}
	if !req.Side.Valid() {
		return fmt.Errorf("saga: request has invalid side %q", req.Side)
	}
	if req.Quantity <= 0 {
		return fmt.Errorf("saga: request quantity must be positive, got %v", req.Quantity)
	}
	if req.ReferencePrice <= 0 {
		return fmt.Errorf("saga: request reference price must be positive, got %v", req.ReferencePrice)
	}
	return nil
}

// sleepCtx sleeps for d unless the context is cancelled first. All backoffs
// in the saga go through here so no retry loop can outlive its deadline.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("saga: wait interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
