package bybit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
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

func okEnvelope(result any) []byte {
	data, _ := json.Marshal(map[string]any{
		"retCode": 0,
		"retMsg":  "OK",
		"result":  result,
	})
	return data
}

func TestCreateMarketOrder(t *testing.T) {
	var gotPayload map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v5/order/create", r.URL.Path)
		require.Equal(t, "test-key", r.Header.Get("X-BAPI-API-KEY"))
		require.NotEmpty(t, r.Header.Get("X-BAPI-SIGN"))
		require.NotEmpty(t, r.Header.Get("X-BAPI-TIMESTAMP"))

		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		w.Write(okEnvelope(map[string]any{"orderId": "ord-1"}))
	})

	raw, err := client.CreateMarketOrder(context.Background(), "BTCUSDT", domain.OrderSideBuy, 0.5, domain.OrderParams{})
	require.NoError(t, err)
	require.Equal(t, domain.VenueBybit, raw.Venue)
	require.Equal(t, "ord-1", raw.Data["orderId"])

	require.Equal(t, "linear", gotPayload["category"])
	require.Equal(t, "Buy", gotPayload["side"])
	require.Equal(t, "Market", gotPayload["orderType"])
	require.Equal(t, "0.5", gotPayload["qty"])
}

func TestClassifyError(t *testing.T) {
	t.Run("invalid symbol", func(t *testing.T) {
		err := classifyError(10001, "Invalid symbol")
		require.ErrorIs(t, err, domain.ErrSymbolUnavailable)
	})
	t.Run("below minimum", func(t *testing.T) {
		err := classifyError(110007, "order qty is lower than the minimum")
		require.ErrorIs(t, err, domain.ErrMinimumSize)
	})
	t.Run("unclassified stays verbatim", func(t *testing.T) {
		err := classifyError(10002, "request expired")
		require.NotErrorIs(t, err, domain.ErrSymbolUnavailable)
		require.NotErrorIs(t, err, domain.ErrMinimumSize)
		require.Contains(t, err.Error(), "10002")
	})
}

func TestCreateMarketOrderRefusal(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		data, _ := json.Marshal(map[string]any{
			"retCode": 10001,
			"retMsg":  "symbol not exist",
		})
		w.Write(data)
	})

	_, err := client.CreateMarketOrder(context.Background(), "NOPEUSDT", domain.OrderSideBuy, 1, domain.OrderParams{})
	require.ErrorIs(t, err, domain.ErrSymbolUnavailable)
}

func TestFetchOrderHistoryFallback(t *testing.T) {
	calls := map[string]int{}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls[r.URL.Path]++
		switch r.URL.Path {
		case "/v5/order/realtime":
			w.Write(okEnvelope(map[string]any{"list": []any{}}))
		case "/v5/order/history":
			w.Write(okEnvelope(map[string]any{"list": []any{
				map[string]any{"orderId": "ord-2", "orderStatus": "Filled"},
			}}))
		default:
			http.NotFound(w, r)
		}
	})

	raw, err := client.FetchOrder(context.Background(), "ord-2", "BTCUSDT")
	require.NoError(t, err)
	require.Equal(t, "ord-2", raw.Data["orderId"])
	require.Equal(t, 1, calls["/v5/order/realtime"])
	require.Equal(t, 1, calls["/v5/order/history"])
}

func TestFetchOrderNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(okEnvelope(map[string]any{"list": []any{}}))
	})

	_, err := client.FetchOrder(context.Background(), "ghost", "BTCUSDT")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFetchPositionsSkipsFlatSlots(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		w.Write(okEnvelope(map[string]any{"list": []any{
			map[string]any{"symbol": "BTCUSDT", "side": "None", "size": "0"},
			map[string]any{
				"symbol": "BTCUSDT", "side": "Buy", "size": "1.5",
				"avgPrice": "50000", "markPrice": "50100",
				"leverage": "3", "stopLoss": "49000",
			},
		}}))
	})

	positions, err := client.FetchPositions(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.Len(t, positions, 1)

	p := positions[0]
	require.Equal(t, domain.PositionSideLong, p.Side)
	require.Equal(t, 1.5, p.Size)
	require.Equal(t, 50000.0, p.EntryPrice)
	require.Equal(t, 49000.0, p.AttachedStop)
	require.Equal(t, 3, p.Leverage)
}

func TestCreateOrderStopTriggerDirection(t *testing.T) {
	var gotPayload map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		w.Write(okEnvelope(map[string]any{"orderId": "stop-1"}))
	})

	_, err := client.CreateOrder(context.Background(), "BTCUSDT", domain.OrderTypeStop, domain.OrderSideSell, 1, domain.TriggerParams{
		TriggerPrice:  49000,
		ReduceOnly:    true,
		ClosePosition: true,
	})
	require.NoError(t, err)

	// A sell stop fires when the price falls to the trigger.
	require.Equal(t, float64(2), gotPayload["triggerDirection"])
	require.Equal(t, "Market", gotPayload["orderType"])
	require.Equal(t, "49000", gotPayload["triggerPrice"])
	require.Equal(t, true, gotPayload["reduceOnly"])
	require.Equal(t, true, gotPayload["closeOnTrigger"])
}

func TestSetPositionStop(t *testing.T) {
	var gotPayload map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v5/position/trading-stop", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		w.Write(okEnvelope(map[string]any{}))
	})

	err := client.SetPositionStop(context.Background(), "BTCUSDT", domain.PositionSideLong, 49000)
	require.NoError(t, err)
	require.Equal(t, "49000", gotPayload["stopLoss"])
	require.Equal(t, "Full", gotPayload["tpslMode"])
	require.Equal(t, float64(0), gotPayload["positionIdx"])
}

func TestDoSurfacesHTTPErrors(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	})

	_, err := client.FetchPositions(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "http 502")
	require.False(t, errors.Is(err, domain.ErrSymbolUnavailable))
}
