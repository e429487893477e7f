package binance

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(ClientConfig{
		BaseURL:   srv.URL,
		APIKey:    "test-key",
		APISecret: "test-secret",
	}, nil, testLogger())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, _ := json.Marshal(v)
	w.WriteHeader(status)
	w.Write(data)
}

func TestCreateMarketOrderSignsQuery(t *testing.T) {
	var gotQuery url.Values
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/fapi/v1/order", r.URL.Path)
		require.Equal(t, "test-key", r.Header.Get("X-MBX-APIKEY"))
		gotQuery = r.URL.Query()
		writeJSON(w, http.StatusOK, map[string]any{"orderId": 12345, "symbol": "BTCUSDT"})
	})

	raw, err := client.CreateMarketOrder(context.Background(), "BTCUSDT", domain.OrderSideSell, 0.25, domain.OrderParams{ReduceOnly: true})
	require.NoError(t, err)
	require.Equal(t, domain.VenueBinance, raw.Venue)

	require.Equal(t, "SELL", gotQuery.Get("side"))
	require.Equal(t, "MARKET", gotQuery.Get("type"))
	require.Equal(t, "0.25", gotQuery.Get("quantity"))
	require.Equal(t, "true", gotQuery.Get("reduceOnly"))
	require.NotEmpty(t, gotQuery.Get("timestamp"))
	require.NotEmpty(t, gotQuery.Get("signature"))
}

func TestClassifyErrorCodes(t *testing.T) {
	cases := []struct {
		code     int
		sentinel error
	}{
		{codeInvalidSymbol, domain.ErrSymbolUnavailable},
		{codeMinNotional, domain.ErrMinimumSize},
		{codeMinQty, domain.ErrMinimumSize},
		{codeNoSuchOrder, domain.ErrNotFound},
	}
	for _, tc := range cases {
		err := classifyError(apiError{Code: tc.code, Msg: "x"})
		require.ErrorIs(t, err, tc.sentinel, "code %d", tc.code)
	}

	err := classifyError(apiError{Code: -1000, Msg: "unknown"})
	require.NotErrorIs(t, err, domain.ErrSymbolUnavailable)
	require.NotErrorIs(t, err, domain.ErrMinimumSize)
}

func TestFetchOrderNotFoundCode(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, apiError{Code: codeNoSuchOrder, Msg: "Order does not exist."})
	})

	_, err := client.FetchOrder(context.Background(), "999", "BTCUSDT")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFetchPositionsSignedAmount(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/fapi/v2/positionRisk", r.URL.Path)
		writeJSON(w, http.StatusOK, []map[string]any{
			{"symbol": "BTCUSDT", "positionAmt": "0", "entryPrice": "0"},
			{"symbol": "BTCUSDT", "positionAmt": "-2.5", "entryPrice": "50000", "markPrice": "49900", "leverage": "5"},
		})
	})

	positions, err := client.FetchPositions(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.Len(t, positions, 1)

	p := positions[0]
	require.Equal(t, domain.PositionSideShort, p.Side)
	require.Equal(t, 2.5, p.Size, "size must be the absolute amount")
	require.Equal(t, 50000.0, p.EntryPrice)
	require.Equal(t, 5, p.Leverage)
}

func TestCreateOrderStopMarket(t *testing.T) {
	var gotQuery url.Values
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		writeJSON(w, http.StatusOK, map[string]any{"orderId": 7})
	})

	_, err := client.CreateOrder(context.Background(), "BTCUSDT", domain.OrderTypeStop, domain.OrderSideSell, 1, domain.TriggerParams{
		TriggerPrice: 49000,
		ReduceOnly:   true,
	})
	require.NoError(t, err)
	require.Equal(t, "STOP_MARKET", gotQuery.Get("type"))
	require.Equal(t, "49000", gotQuery.Get("stopPrice"))
	require.Equal(t, "1", gotQuery.Get("quantity"))
	require.Equal(t, "true", gotQuery.Get("reduceOnly"))
}

func TestCreateAlgoOrderClosesPosition(t *testing.T) {
	var gotQuery url.Values
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		writeJSON(w, http.StatusOK, map[string]any{"orderId": 8})
	})

	_, err := client.CreateAlgoOrder(context.Background(), "BTCUSDT", domain.OrderSideSell, 1, 49000)
	require.NoError(t, err)
	require.Equal(t, "STOP_MARKET", gotQuery.Get("type"))
	require.Equal(t, "true", gotQuery.Get("closePosition"))
	require.Empty(t, gotQuery.Get("quantity"), "closePosition stops carry no quantity")
}

func TestMinNotionalRefusal(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, apiError{Code: codeMinNotional, Msg: "Order's notional must be no smaller than 5.0"})
	})

	_, err := client.CreateMarketOrder(context.Background(), "BTCUSDT", domain.OrderSideBuy, 0.0001, domain.OrderParams{})
	require.ErrorIs(t, err, domain.ErrMinimumSize)
	require.True(t, domain.SkipsCompensation(err))
}
