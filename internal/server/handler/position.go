package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/futuresbot/internal/domain"
	"github.com/alanyoungcy/futuresbot/internal/saga"
)

// PositionOpener is the saga surface the handler drives.
type PositionOpener interface {
	OpenPositionAtomic(ctx context.Context, req domain.PositionRequest) (domain.PositionResult, error)
	Operations() []saga.Operation
}

// PositionHandler serves position-related HTTP endpoints.
type PositionHandler struct {
	opener PositionOpener
	store  domain.PositionStore
	logger *slog.Logger
}

// NewPositionHandler creates a PositionHandler. opener may be nil in
// read-only modes; the open endpoint then returns 503.
func NewPositionHandler(opener PositionOpener, store domain.PositionStore, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		opener: opener,
		store:  store,
		logger: logger.With(slog.String("handler", "positions")),
	}
}

// openPositionRequest is the JSON body for POST /api/positions.
type openPositionRequest struct {
	Symbol         string   `json:"symbol"`
	Venue          string   `json:"venue"`
	Side           string   `json:"side"`
	Quantity       float64  `json:"quantity"`
	ReferencePrice float64  `json:"reference_price"`
	StopLossPct    *float64 `json:"stop_loss_pct,omitempty"`
	Leverage       *int     `json:"leverage,omitempty"`
	TrailingPct    *float64 `json:"trailing_pct,omitempty"`
}

// OpenPosition runs the open-position saga synchronously and returns the
// final result.
// POST /api/positions
func (h *PositionHandler) OpenPosition(w http.ResponseWriter, r *http.Request) {
	if h.opener == nil {
		writeError(w, http.StatusServiceUnavailable, "trading is disabled in this mode")
		return
	}

	var body openPositionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req := domain.PositionRequest{
		Symbol:         body.Symbol,
		Venue:          domain.Venue(body.Venue),
		Side:           domain.PositionSide(body.Side),
		Quantity:       body.Quantity,
		ReferencePrice: body.ReferencePrice,
		StopLossPct:    body.StopLossPct,
		Leverage:       body.Leverage,
		TrailingPct:    body.TrailingPct,
	}

	result, err := h.opener.OpenPositionAtomic(r.Context(), req)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "open position failed",
			slog.String("symbol", req.Symbol),
			slog.String("error", err.Error()),
		)

		var rbErr *domain.RollbackVerificationFailedError
		switch {
		case errors.As(err, &rbErr):
			// the one case where the caller cannot assume a clean slate
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"error":       err.Error(),
				"unverified":  true,
				"position_id": rbErr.PositionID,
			})
		case errors.Is(err, domain.ErrSymbolUnavailable), errors.Is(err, domain.ErrMinimumSize):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			writeError(w, http.StatusConflict, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// GetPosition returns a single position by id.
// GET /api/positions/{id}
func (h *PositionHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	pos, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "position not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "get position failed",
			slog.String("id", id), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to get position")
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

// ListPositions returns position history for a venue, newest first.
// GET /api/positions?venue=bybit&limit=50&offset=0
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	venue := domain.Venue(r.URL.Query().Get("venue"))
	if venue == "" {
		venue = domain.VenueBybit
	}

	positions, err := h.store.ListHistory(r.Context(), venue, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list positions failed",
			slog.String("venue", string(venue)), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list positions")
		return
	}
	if positions == nil {
		positions = []domain.Position{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"positions": positions})
}

// ListOperations returns in-flight saga operations for diagnostics.
// GET /api/operations
func (h *PositionHandler) ListOperations(w http.ResponseWriter, r *http.Request) {
	if h.opener == nil {
		writeJSON(w, http.StatusOK, map[string]any{"operations": []saga.Operation{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"operations": h.opener.Operations()})
}
