// Package bybit implements the venue port for Bybit v5 linear perpetuals.
package bybit

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

const (
	defaultBaseURL = "https://api.bybit.com"
	category       = "linear"
	recvWindow     = 5000
)

// rate limit bucket shared by all REST calls on this venue
const limiterKey = "bybit:rest"

// ClientConfig holds credentials and connection parameters.
type ClientConfig struct {
	BaseURL   string
	APIKey    string
	APISecret string
	Timeout   time.Duration
}

// Client is the Bybit v5 REST client. It implements domain.Exchange and
// domain.AttachedStopSetter.
type Client struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	httpClient *http.Client
	limiter    domain.RateLimiter // optional
	logger     *slog.Logger
}

// NewClient creates a Bybit client. limiter may be nil, in which case calls
// go out unthrottled.
func NewClient(cfg ClientConfig, limiter domain.RateLimiter, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    limiter,
		logger:     logger.With(slog.String("component", "bybit")),
	}
}

// Venue returns the venue identifier.
func (c *Client) Venue() domain.Venue { return domain.VenueBybit }

// sign produces the v5 HMAC-SHA256 signature over
// timestamp + apiKey + recvWindow + params.
func (c *Client) sign(params string, timestamp int64) string {
	toSign := fmt.Sprintf("%d%s%d%s", timestamp, c.apiKey, recvWindow, params)
	h := hmac.New(sha256.New, []byte(c.apiSecret))
	h.Write([]byte(toSign))
	return hex.EncodeToString(h.Sum(nil))
}

// do sends a signed request and returns the decoded result payload. retCode
// errors are classified into domain errors where possible.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload map[string]any) (json.RawMessage, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, limiterKey); err != nil {
			return nil, fmt.Errorf("bybit: rate limit: %w", err)
		}
	}

	timestamp := time.Now().UnixMilli()

	var body []byte
	var paramsStr string
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("bybit: encode request: %w", err)
		}
		paramsStr = string(body)
	} else if len(query) > 0 {
		paramsStr = query.Encode()
		path += "?" + paramsStr
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("bybit: build request: %w", err)
	}

	req.Header.Set("X-BAPI-API-KEY", c.apiKey)
	req.Header.Set("X-BAPI-TIMESTAMP", strconv.FormatInt(timestamp, 10))
	req.Header.Set("X-BAPI-SIGN", c.sign(paramsStr, timestamp))
	req.Header.Set("X-BAPI-RECV-WINDOW", strconv.Itoa(recvWindow))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bybit: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("bybit: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("bybit: %s %s: http %d: %s", method, path, resp.StatusCode, respBody)
	}

	var env apiResponse
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, fmt.Errorf("bybit: decode response: %w", err)
	}
	if env.RetCode != 0 {
		return nil, classifyError(env.RetCode, env.RetMsg)
	}
	return env.Result, nil
}

// classifyError maps retCode/retMsg pairs into domain errors so the saga can
// tell retryable rejections from structural ones.
func classifyError(code int, msg string) error {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "symbol") && (strings.Contains(lower, "invalid") || strings.Contains(lower, "not support") || strings.Contains(lower, "not exist")):
		return fmt.Errorf("bybit: retCode %d: %s: %w", code, msg, domain.ErrSymbolUnavailable)
	case strings.Contains(lower, "minimum") || strings.Contains(lower, "lower than") || strings.Contains(lower, "too small"):
		return fmt.Errorf("bybit: retCode %d: %s: %w", code, msg, domain.ErrMinimumSize)
	default:
		return fmt.Errorf("bybit: retCode %d: %s", code, msg)
	}
}

// CreateMarketOrder submits a market order. The returned payload is Bybit's
// minimal acknowledgement (orderId/orderLinkId only); callers re-fetch when
// they need fill data.
func (c *Client) CreateMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity float64, params domain.OrderParams) (domain.RawOrder, error) {
	payload := map[string]any{
		"category":  category,
		"symbol":    symbol,
		"side":      orderSide(side),
		"orderType": "Market",
		"qty":       formatQty(quantity),
	}
	if params.TimeInForce != "" {
		payload["timeInForce"] = params.TimeInForce
	}
	if params.ReduceOnly {
		payload["reduceOnly"] = true
	}

	result, err := c.do(ctx, http.MethodPost, "/v5/order/create", nil, payload)
	if err != nil {
		return domain.RawOrder{}, fmt.Errorf("bybit: create market order %s: %w", symbol, err)
	}

	var data map[string]any
	if err := json.Unmarshal(result, &data); err != nil {
		return domain.RawOrder{}, fmt.Errorf("bybit: decode order ack: %w", err)
	}

	c.logger.Info("market order submitted",
		slog.String("symbol", symbol),
		slog.String("side", string(side)),
		slog.Float64("qty", quantity))

	return domain.RawOrder{Venue: domain.VenueBybit, Data: data}, nil
}

// FetchOrder retrieves an order by id, checking the realtime set first and
// falling back to order history for orders already off the book.
func (c *Client) FetchOrder(ctx context.Context, id, symbol string) (domain.RawOrder, error) {
	for _, path := range []string{"/v5/order/realtime", "/v5/order/history"} {
		q := url.Values{}
		q.Set("category", category)
		q.Set("symbol", symbol)
		q.Set("orderId", id)

		result, err := c.do(ctx, http.MethodGet, path, q, nil)
		if err != nil {
			return domain.RawOrder{}, fmt.Errorf("bybit: fetch order %s: %w", id, err)
		}

		var lr listResult
		if err := json.Unmarshal(result, &lr); err != nil {
			return domain.RawOrder{}, fmt.Errorf("bybit: decode order list: %w", err)
		}
		if len(lr.List) > 0 {
			return domain.RawOrder{Venue: domain.VenueBybit, Data: lr.List[0]}, nil
		}
	}
	return domain.RawOrder{}, domain.ErrNotFound
}

// FetchPositions lists positions, optionally filtered by symbol.
func (c *Client) FetchPositions(ctx context.Context, symbols ...string) ([]domain.VenuePosition, error) {
	q := url.Values{}
	q.Set("category", category)
	if len(symbols) > 0 {
		q.Set("symbol", symbols[0])
	} else {
		q.Set("settleCoin", "USDT")
	}

	result, err := c.do(ctx, http.MethodGet, "/v5/position/list", q, nil)
	if err != nil {
		return nil, fmt.Errorf("bybit: fetch positions: %w", err)
	}

	var lr listResult
	if err := json.Unmarshal(result, &lr); err != nil {
		return nil, fmt.Errorf("bybit: decode position list: %w", err)
	}

	positions := make([]domain.VenuePosition, 0, len(lr.List))
	for _, raw := range lr.List {
		entry, err := json.Marshal(raw)
		if err != nil {
			continue
		}
		var ap apiPosition
		if err := json.Unmarshal(entry, &ap); err != nil {
			continue
		}
		pos := ap.toDomain(raw)
		if pos.Size == 0 {
			continue
		}
		positions = append(positions, pos)
	}
	return positions, nil
}

// FetchOpenOrders lists open orders for a symbol. filter params (e.g.
// orderFilter=StopOrder) are passed through to the venue.
func (c *Client) FetchOpenOrders(ctx context.Context, symbol string, filter map[string]string) ([]domain.RawOrder, error) {
	q := url.Values{}
	q.Set("category", category)
	q.Set("symbol", symbol)
	q.Set("openOnly", "0")
	for k, v := range filter {
		q.Set(k, v)
	}

	result, err := c.do(ctx, http.MethodGet, "/v5/order/realtime", q, nil)
	if err != nil {
		return nil, fmt.Errorf("bybit: fetch open orders %s: %w", symbol, err)
	}

	var lr listResult
	if err := json.Unmarshal(result, &lr); err != nil {
		return nil, fmt.Errorf("bybit: decode open orders: %w", err)
	}

	orders := make([]domain.RawOrder, 0, len(lr.List))
	for _, raw := range lr.List {
		orders = append(orders, domain.RawOrder{Venue: domain.VenueBybit, Data: raw})
	}
	return orders, nil
}

// CreateOrder places a conditional order. For stop-market orders the trigger
// direction is derived from the order side: a sell stop fires on falling
// price, a buy stop on rising price.
func (c *Client) CreateOrder(ctx context.Context, symbol string, typ domain.OrderType, side domain.OrderSide, amount float64, trigger domain.TriggerParams) (domain.RawOrder, error) {
	payload := map[string]any{
		"category": category,
		"symbol":   symbol,
		"side":     orderSide(side),
		"qty":      formatQty(amount),
	}

	switch typ {
	case domain.OrderTypeStop:
		payload["orderType"] = "Market"
		payload["triggerPrice"] = formatQty(trigger.TriggerPrice)
		if side == domain.OrderSideSell {
			payload["triggerDirection"] = 2 // falls to trigger
		} else {
			payload["triggerDirection"] = 1 // rises to trigger
		}
	case domain.OrderTypeLimit:
		payload["orderType"] = "Limit"
	default:
		payload["orderType"] = "Market"
	}

	if trigger.ReduceOnly {
		payload["reduceOnly"] = true
	}
	if trigger.ClosePosition {
		payload["closeOnTrigger"] = true
	}

	result, err := c.do(ctx, http.MethodPost, "/v5/order/create", nil, payload)
	if err != nil {
		return domain.RawOrder{}, fmt.Errorf("bybit: create %s order %s: %w", typ, symbol, err)
	}

	var data map[string]any
	if err := json.Unmarshal(result, &data); err != nil {
		return domain.RawOrder{}, fmt.Errorf("bybit: decode order ack: %w", err)
	}
	return domain.RawOrder{Venue: domain.VenueBybit, Data: data}, nil
}

// SetLeverage adjusts the symbol's leverage. Bybit rejects the call when the
// value is already in effect; callers treat failure as non-fatal.
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	payload := map[string]any{
		"category":     category,
		"symbol":       symbol,
		"buyLeverage":  strconv.Itoa(leverage),
		"sellLeverage": strconv.Itoa(leverage),
	}
	if _, err := c.do(ctx, http.MethodPost, "/v5/position/set-leverage", nil, payload); err != nil {
		return fmt.Errorf("bybit: set leverage %s: %w", symbol, err)
	}
	return nil
}

// SetPositionStop attaches a stop-loss to the position itself via the
// trading-stop endpoint. One-way mode (positionIdx 0) is assumed.
func (c *Client) SetPositionStop(ctx context.Context, symbol string, side domain.PositionSide, stopPrice float64) error {
	payload := map[string]any{
		"category":    category,
		"symbol":      symbol,
		"stopLoss":    formatQty(stopPrice),
		"tpslMode":    "Full",
		"positionIdx": 0,
	}
	if _, err := c.do(ctx, http.MethodPost, "/v5/position/trading-stop", nil, payload); err != nil {
		return fmt.Errorf("bybit: set position stop %s: %w", symbol, err)
	}

	c.logger.Info("position stop attached",
		slog.String("symbol", symbol),
		slog.String("side", string(side)),
		slog.Float64("stop_price", stopPrice))
	return nil
}

// Compile-time interface checks.
var (
	_ domain.Exchange           = (*Client)(nil)
	_ domain.AttachedStopSetter = (*Client)(nil)
)
