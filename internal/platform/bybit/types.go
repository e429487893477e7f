package bybit

import (
	"encoding/json"
	"strconv"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

// apiResponse is the common Bybit v5 envelope. Result shapes vary per
// endpoint and are decoded by the caller.
type apiResponse struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

// listResult is the generic list-carrying result shape, decoded into raw
// maps so venue payloads survive untouched for the normalizer.
type listResult struct {
	List []map[string]any `json:"list"`
}

// apiPosition is the /v5/position/list entry.
type apiPosition struct {
	Symbol    string `json:"symbol"`
	Side      string `json:"side"`
	Size      string `json:"size"`
	AvgPrice  string `json:"avgPrice"`
	MarkPrice string `json:"markPrice"`
	Leverage  string `json:"leverage"`
	StopLoss  string `json:"stopLoss"`
}

// toDomain converts a venue position entry into a VenuePosition. Side is left
// empty for flat slots (size zero with side "None" or "").
func (p apiPosition) toDomain(raw map[string]any) domain.VenuePosition {
	size, _ := strconv.ParseFloat(p.Size, 64)
	entry, _ := strconv.ParseFloat(p.AvgPrice, 64)
	mark, _ := strconv.ParseFloat(p.MarkPrice, 64)
	lev, _ := strconv.Atoi(p.Leverage)
	stop, _ := strconv.ParseFloat(p.StopLoss, 64)

	var side domain.PositionSide
	switch p.Side {
	case "Buy":
		side = domain.PositionSideLong
	case "Sell":
		side = domain.PositionSideShort
	}

	return domain.VenuePosition{
		Venue:        domain.VenueBybit,
		Symbol:       p.Symbol,
		Side:         side,
		Size:         size,
		EntryPrice:   entry,
		MarkPrice:    mark,
		Leverage:     lev,
		AttachedStop: stop,
		Raw:          raw,
	}
}

// orderSide converts a canonical side to Bybit's capitalised form.
func orderSide(s domain.OrderSide) string {
	if s == domain.OrderSideSell {
		return "Sell"
	}
	return "Buy"
}

// formatQty renders a quantity the way Bybit expects: plain decimal, no
// exponent, no trailing zeros.
func formatQty(q float64) string {
	return strconv.FormatFloat(q, 'f', -1, 64)
}
