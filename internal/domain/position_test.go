package domain

import (
	"strings"
	"testing"
)

func TestPositionSideOrderSides(t *testing.T) {
	cases := []struct {
		side  PositionSide
		entry OrderSide
		close OrderSide
	}{
		{PositionSideLong, OrderSideBuy, OrderSideSell},
		{PositionSideShort, OrderSideSell, OrderSideBuy},
	}
	for _, tc := range cases {
		if got := tc.side.EntrySide(); got != tc.entry {
			t.Errorf("%s.EntrySide() = %s, want %s", tc.side, got, tc.entry)
		}
		if got := tc.side.CloseSide(); got != tc.close {
			t.Errorf("%s.CloseSide() = %s, want %s", tc.side, got, tc.close)
		}
	}
}

func TestOrderSideOpposite(t *testing.T) {
	if OrderSideBuy.Opposite() != OrderSideSell {
		t.Error("buy should oppose sell")
	}
	if OrderSideSell.Opposite() != OrderSideBuy {
		t.Error("sell should oppose buy")
	}
}

func TestSideValidity(t *testing.T) {
	if !PositionSideLong.Valid() || !PositionSideShort.Valid() {
		t.Error("known position sides must be valid")
	}
	if PositionSide("").Valid() || PositionSide("LONG").Valid() {
		t.Error("empty and uppercase sides must be invalid")
	}
	if OrderSide("hold").Valid() {
		t.Error("unknown order side must be invalid")
	}
}

func TestPositionStatusTerminal(t *testing.T) {
	terminal := []PositionStatus{
		PositionStatusFailed,
		PositionStatusRolledBack,
		PositionStatusCancelled,
		PositionStatusClosed,
	}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}

	// Recovery scans exactly the non-terminal, non-active intermediate states.
	for _, s := range RecoveryStatuses {
		if s.Terminal() {
			t.Errorf("recovery status %s must not be terminal", s)
		}
		if s == PositionStatusActive {
			t.Error("active positions are not recovery candidates")
		}
	}
}

func TestTruncateExitReason(t *testing.T) {
	t.Run("short reason unchanged", func(t *testing.T) {
		if got := TruncateExitReason("order rejected"); got != "order rejected" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("exact bound unchanged", func(t *testing.T) {
		reason := strings.Repeat("x", ExitReasonMaxLen)
		if got := TruncateExitReason(reason); got != reason {
			t.Error("reason at the bound must not be modified")
		}
	})

	t.Run("overflow truncated with marker", func(t *testing.T) {
		got := TruncateExitReason(strings.Repeat("a", 1000))
		if len(got) != ExitReasonMaxLen {
			t.Errorf("len = %d, want %d", len(got), ExitReasonMaxLen)
		}
		if !strings.HasSuffix(got, "...") {
			t.Errorf("truncated reason should end with an ellipsis, got %q", got[len(got)-8:])
		}
	})
}

func TestRawOrderEmpty(t *testing.T) {
	if !(RawOrder{}).Empty() {
		t.Error("zero RawOrder should be empty")
	}
	if (RawOrder{Data: map[string]any{"orderId": "1"}}).Empty() {
		t.Error("populated RawOrder should not be empty")
	}
}
