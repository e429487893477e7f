package binance

import (
	"strconv"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

// apiError is Binance's error envelope, present on non-2xx responses and on
// some 200s.
type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// apiPosition is the /fapi/v2/positionRisk entry.
type apiPosition struct {
	Symbol       string `json:"symbol"`
	PositionAmt  string `json:"positionAmt"`
	EntryPrice   string `json:"entryPrice"`
	MarkPrice    string `json:"markPrice"`
	Leverage     string `json:"leverage"`
	PositionSide string `json:"positionSide"`
}

// toDomain converts a positionRisk entry into a VenuePosition. Binance
// signals direction through the sign of positionAmt in one-way mode.
func (p apiPosition) toDomain(raw map[string]any) domain.VenuePosition {
	amt, _ := strconv.ParseFloat(p.PositionAmt, 64)
	entry, _ := strconv.ParseFloat(p.EntryPrice, 64)
	mark, _ := strconv.ParseFloat(p.MarkPrice, 64)
	lev, _ := strconv.Atoi(p.Leverage)

	var side domain.PositionSide
	size := amt
	switch {
	case amt > 0:
		side = domain.PositionSideLong
	case amt < 0:
		side = domain.PositionSideShort
		size = -amt
	}

	return domain.VenuePosition{
		Venue:      domain.VenueBinance,
		Symbol:     p.Symbol,
		Side:       side,
		Size:       size,
		EntryPrice: entry,
		MarkPrice:  mark,
		Leverage:   lev,
		Raw:        raw,
	}
}

// orderSide converts a canonical side to Binance's upper-case form.
func orderSide(s domain.OrderSide) string {
	if s == domain.OrderSideSell {
		return "SELL"
	}
	return "BUY"
}

func formatQty(q float64) string {
	return strconv.FormatFloat(q, 'f', -1, 64)
}
