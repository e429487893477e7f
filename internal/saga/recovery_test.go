package saga

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

func seedPosition(t *testing.T, store *memPositionStore, id string, status domain.PositionStatus) {
	t.Helper()
	err := store.Create(context.Background(), domain.Position{
		ID:         id,
		Symbol:     "BTCUSDT",
		Venue:      domain.VenueBybit,
		Side:       domain.PositionSideLong,
		Quantity:   1.0,
		EntryPrice: 50000,
		Leverage:   1,
		Status:     status,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
}

func TestRecoverDiscardsPendingEntry(t *testing.T) {
	env := newTestEnv(&stubExchange{})
	seedPosition(t, env.store, "p-1", domain.PositionStatusPendingEntry)

	if err := env.orch.Recover(context.Background()); err != nil {
		t.Fatalf("Recover: %v", err)
	}

	row, err := env.store.GetByID(context.Background(), "p-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if row.Status != domain.PositionStatusFailed {
		t.Errorf("status = %q, want failed", row.Status)
	}
	if !strings.Contains(row.ExitReason, "never submitted") {
		t.Errorf("exit reason %q should say the entry was never submitted", row.ExitReason)
	}
	if n := env.ex.marketCallCount(); n != 0 {
		t.Errorf("market order calls = %d, discarding must not touch the venue", n)
	}
}

func TestRecoverActivatesPendingStopWithExistingStop(t *testing.T) {
	// Crash landed between stop creation and activation: the venue already
	// carries the stop, only the activation needs finishing.
	ex := &stubExchange{
		onPositions: func(marketCalls int) ([]domain.VenuePosition, error) {
			return []domain.VenuePosition{{
				Venue: domain.VenueBybit, Symbol: "BTCUSDT",
				Side: domain.PositionSideLong, Size: 1.0,
				EntryPrice: 50000, AttachedStop: 49000,
			}}, nil
		},
	}
	env := newTestEnv(ex)
	seedPosition(t, env.store, "p-2", domain.PositionStatusPendingStop)

	if err := env.orch.Recover(context.Background()); err != nil {
		t.Fatalf("Recover: %v", err)
	}

	row, _ := env.store.GetByID(context.Background(), "p-2")
	if row.Status != domain.PositionStatusActive {
		t.Errorf("status = %q, want active", row.Status)
	}
	if row.StopLossPrice == nil || *row.StopLossPrice != 49000 {
		t.Errorf("stop = %v, want the detected 49000", row.StopLossPrice)
	}
	if n := env.ex.marketCallCount(); n != 0 {
		t.Errorf("market order calls = %d, want 0", n)
	}
}

func TestRecoverProtectsEntryPlaced(t *testing.T) {
	// Entry exists, no stop anywhere: recovery places one and activates.
	ex := &stubExchange{
		onPositions: func(marketCalls int) ([]domain.VenuePosition, error) {
			return []domain.VenuePosition{{
				Venue: domain.VenueBybit, Symbol: "BTCUSDT",
				Side: domain.PositionSideLong, Size: 1.0, EntryPrice: 50000,
			}}, nil
		},
	}
	env := newTestEnv(ex)
	seedPosition(t, env.store, "p-3", domain.PositionStatusEntryPlaced)

	if err := env.orch.Recover(context.Background()); err != nil {
		t.Fatalf("Recover: %v", err)
	}

	row, _ := env.store.GetByID(context.Background(), "p-3")
	if row.Status != domain.PositionStatusActive {
		t.Errorf("status = %q, want active", row.Status)
	}
	// 2% below the persisted entry price.
	if row.StopLossPrice == nil || *row.StopLossPrice != 49000 {
		t.Errorf("stop = %v, want 49000", row.StopLossPrice)
	}
}

func TestRecoverEmergencyClosesUnprotectable(t *testing.T) {
	ex := &stubExchange{}
	ex.onPositions = func(marketCalls int) ([]domain.VenuePosition, error) {
		if marketCalls >= 1 {
			return nil, nil // flat after the emergency close
		}
		return []domain.VenuePosition{{
			Venue: domain.VenueBybit, Symbol: "BTCUSDT",
			Side: domain.PositionSideLong, Size: 1.0, EntryPrice: 50000,
		}}, nil
	}
	ex.onCreate = func(symbol string, typ domain.OrderType, side domain.OrderSide, amount float64, trigger domain.TriggerParams) (domain.RawOrder, error) {
		return domain.RawOrder{}, errors.New("stop engine down")
	}
	ex.onMarket = func(call int, symbol string, side domain.OrderSide, qty float64) (domain.RawOrder, error) {
		return domain.RawOrder{Venue: domain.VenueBybit, Data: map[string]any{"orderId": "close-1", "side": "Sell"}}, nil
	}
	env := newTestEnv(ex)
	seedPosition(t, env.store, "p-4", domain.PositionStatusEntryPlaced)

	if err := env.orch.Recover(context.Background()); err != nil {
		t.Fatalf("Recover: %v", err)
	}

	row, _ := env.store.GetByID(context.Background(), "p-4")
	if row.Status != domain.PositionStatusRolledBack {
		t.Errorf("status = %q, want rolled_back", row.Status)
	}

	ex.mu.Lock()
	calls := append([]marketCall(nil), ex.marketCalls...)
	ex.mu.Unlock()
	if len(calls) != 1 {
		t.Fatalf("market order calls = %d, want one emergency close", len(calls))
	}
	if calls[0].side != domain.OrderSideSell {
		t.Errorf("close side = %s, want sell for a long", calls[0].side)
	}
	if calls[0].quantity != 1.0 {
		t.Errorf("close quantity = %v, want the persisted 1.0", calls[0].quantity)
	}
}

func TestRecoverLeavesTerminalAndActiveAlone(t *testing.T) {
	env := newTestEnv(&stubExchange{})
	seedPosition(t, env.store, "p-5", domain.PositionStatusActive)
	seedPosition(t, env.store, "p-6", domain.PositionStatusRolledBack)

	if err := env.orch.Recover(context.Background()); err != nil {
		t.Fatalf("Recover: %v", err)
	}

	for id, want := range map[string]domain.PositionStatus{
		"p-5": domain.PositionStatusActive,
		"p-6": domain.PositionStatusRolledBack,
	} {
		row, _ := env.store.GetByID(context.Background(), id)
		if row.Status != want {
			t.Errorf("%s status = %q, want untouched %q", id, row.Status, want)
		}
	}
}
