package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alanyoungcy/futuresbot/internal/domain"
	"github.com/alanyoungcy/futuresbot/internal/saga"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubOpener struct {
	result  domain.PositionResult
	err     error
	lastReq domain.PositionRequest
	ops     []saga.Operation
}

func (s *stubOpener) OpenPositionAtomic(ctx context.Context, req domain.PositionRequest) (domain.PositionResult, error) {
	s.lastReq = req
	return s.result, s.err
}

func (s *stubOpener) Operations() []saga.Operation { return s.ops }

type stubStore struct {
	getByID     func(id string) (domain.Position, error)
	listHistory func(venue domain.Venue, opts domain.ListOpts) ([]domain.Position, error)
}

func (s *stubStore) Create(ctx context.Context, pos domain.Position) error { return nil }
func (s *stubStore) Update(ctx context.Context, pos domain.Position) error { return nil }
func (s *stubStore) UpdateStatus(ctx context.Context, id string, status domain.PositionStatus, exitReason string) error {
	return nil
}
func (s *stubStore) Activate(ctx context.Context, id string, stopPrice float64) error { return nil }
func (s *stubStore) GetByID(ctx context.Context, id string) (domain.Position, error) {
	if s.getByID != nil {
		return s.getByID(id)
	}
	return domain.Position{}, domain.ErrNotFound
}
func (s *stubStore) GetByStatus(ctx context.Context, statuses []domain.PositionStatus) ([]domain.Position, error) {
	return nil, nil
}
func (s *stubStore) GetActiveBySymbol(ctx context.Context, symbol string, venue domain.Venue) ([]domain.Position, error) {
	return nil, nil
}
func (s *stubStore) ListHistory(ctx context.Context, venue domain.Venue, opts domain.ListOpts) ([]domain.Position, error) {
	if s.listHistory != nil {
		return s.listHistory(venue, opts)
	}
	return nil, nil
}

var _ domain.PositionStore = (*stubStore)(nil)

func openBody() string {
	return `{"symbol":"BTCUSDT","venue":"bybit","side":"long","quantity":1,"reference_price":50100}`
}

func postOpen(h *PositionHandler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/positions", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.OpenPosition(rec, req)
	return rec
}

func TestOpenPositionSuccess(t *testing.T) {
	stopPrice := 49000.0
	opener := &stubOpener{result: domain.PositionResult{
		Position: domain.Position{
			ID: "p-1", Symbol: "BTCUSDT", Status: domain.PositionStatusActive,
			StopLossPrice: &stopPrice,
		},
		ExecutionPrice: 50000,
		ReferencePrice: 50100,
		Stop:           domain.StopLossRecord{Status: domain.StopStatusCreated, Price: stopPrice},
	}}
	h := NewPositionHandler(opener, &stubStore{}, testLogger())

	rec := postOpen(h, openBody())
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body)
	}
	if opener.lastReq.Symbol != "BTCUSDT" || opener.lastReq.Side != domain.PositionSideLong {
		t.Errorf("request not mapped: %+v", opener.lastReq)
	}
	if opener.lastReq.Quantity != 1 || opener.lastReq.ReferencePrice != 50100 {
		t.Errorf("numeric fields not mapped: %+v", opener.lastReq)
	}
}

func TestOpenPositionUnverifiedRollback(t *testing.T) {
	opener := &stubOpener{err: &domain.RollbackVerificationFailedError{
		PositionID: "p-9", Symbol: "BTCUSDT", Cause: errors.New("still open"),
	}}
	h := NewPositionHandler(opener, &stubStore{}, testLogger())

	rec := postOpen(h, openBody())
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["unverified"] != true {
		t.Errorf("body = %v, want unverified:true", body)
	}
	if body["position_id"] != "p-9" {
		t.Errorf("position_id = %v, want p-9", body["position_id"])
	}
}

func TestOpenPositionVenueRefusal(t *testing.T) {
	for _, sentinel := range []error{domain.ErrSymbolUnavailable, domain.ErrMinimumSize} {
		opener := &stubOpener{err: fmt.Errorf("saga: entry order refused: %w", sentinel)}
		h := NewPositionHandler(opener, &stubStore{}, testLogger())

		rec := postOpen(h, openBody())
		if rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("%v: status = %d, want 422", sentinel, rec.Code)
		}
	}
}

func TestOpenPositionGenericFailure(t *testing.T) {
	opener := &stubOpener{err: errors.New("verification timed out")}
	h := NewPositionHandler(opener, &stubStore{}, testLogger())

	rec := postOpen(h, openBody())
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestOpenPositionDisabledMode(t *testing.T) {
	h := NewPositionHandler(nil, &stubStore{}, testLogger())
	rec := postOpen(h, openBody())
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 with a nil opener", rec.Code)
	}
}

func TestOpenPositionBadBody(t *testing.T) {
	h := NewPositionHandler(&stubOpener{}, &stubStore{}, testLogger())
	rec := postOpen(h, "{not json")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGetPosition(t *testing.T) {
	store := &stubStore{getByID: func(id string) (domain.Position, error) {
		if id == "p-1" {
			return domain.Position{ID: "p-1", Symbol: "BTCUSDT"}, nil
		}
		return domain.Position{}, domain.ErrNotFound
	}}
	h := NewPositionHandler(&stubOpener{}, store, testLogger())

	t.Run("found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/positions/p-1", nil)
		req.SetPathValue("id", "p-1")
		rec := httptest.NewRecorder()
		h.GetPosition(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
	})

	t.Run("missing", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/positions/nope", nil)
		req.SetPathValue("id", "nope")
		rec := httptest.NewRecorder()
		h.GetPosition(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", rec.Code)
		}
	})
}

func TestListPositionsDefaultsAndClamps(t *testing.T) {
	var gotVenue domain.Venue
	var gotOpts domain.ListOpts
	store := &stubStore{listHistory: func(venue domain.Venue, opts domain.ListOpts) ([]domain.Position, error) {
		gotVenue, gotOpts = venue, opts
		return nil, nil
	}}
	h := NewPositionHandler(&stubOpener{}, store, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/positions?limit=9999&offset=10", nil)
	rec := httptest.NewRecorder()
	h.ListPositions(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if gotVenue != domain.VenueBybit {
		t.Errorf("venue = %q, want default bybit", gotVenue)
	}
	if gotOpts.Limit != 500 {
		t.Errorf("limit = %d, want clamped 500", gotOpts.Limit)
	}
	if gotOpts.Offset != 10 {
		t.Errorf("offset = %d, want 10", gotOpts.Offset)
	}

	// nil store result renders an empty array, not null.
	if !strings.Contains(rec.Body.String(), `"positions":[]`) {
		t.Errorf("body = %s, want empty positions array", rec.Body.String())
	}
}

func TestListOperations(t *testing.T) {
	t.Run("nil opener", func(t *testing.T) {
		h := NewPositionHandler(nil, &stubStore{}, testLogger())
		req := httptest.NewRequest(http.MethodGet, "/api/operations", nil)
		rec := httptest.NewRecorder()
		h.ListOperations(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
	})

	t.Run("with operations", func(t *testing.T) {
		opener := &stubOpener{ops: []saga.Operation{{ID: "op-1", Symbol: "BTCUSDT", Status: "running"}}}
		h := NewPositionHandler(opener, &stubStore{}, testLogger())
		req := httptest.NewRequest(http.MethodGet, "/api/operations", nil)
		rec := httptest.NewRecorder()
		h.ListOperations(rec, req)
		if !strings.Contains(rec.Body.String(), "op-1") {
			t.Errorf("body = %s, want op-1 listed", rec.Body.String())
		}
	})
}
