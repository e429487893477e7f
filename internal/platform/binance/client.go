// Package binance implements the venue port for Binance USDT-margined
// futures (fapi).
package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

const (
	defaultBaseURL = "https://fapi.binance.com"
	recvWindow     = 5000
)

const limiterKey = "binance:rest"

// error codes worth classifying; everything else surfaces verbatim
const (
	codeInvalidSymbol = -1121
	codeMinNotional   = -4164
	codeMinQty        = -1013
	codeNoSuchOrder   = -2013
)

// ClientConfig holds credentials and connection parameters.
type ClientConfig struct {
	BaseURL   string
	APIKey    string
	APISecret string
	Timeout   time.Duration
}

// Client is the Binance futures REST client. It implements domain.Exchange
// and domain.AlgoOrderPlacer.
type Client struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	httpClient *http.Client
	limiter    domain.RateLimiter // optional
	logger     *slog.Logger
}

// NewClient creates a Binance futures client. limiter may be nil.
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
		logger:     logger.With(slog.String("component", "binance")),
	}
}

// Venue returns the venue identifier.
func (c *Client) Venue() domain.Venue { return domain.VenueBinance }

// sign appends timestamp/recvWindow and the HMAC-SHA256 signature over the
// encoded query string.
func (c *Client) sign(params url.Values) string {
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	params.Set("recvWindow", strconv.Itoa(recvWindow))

	encoded := params.Encode()
	h := hmac.New(sha256.New, []byte(c.apiSecret))
	h.Write([]byte(encoded))
	return encoded + "&signature=" + hex.EncodeToString(h.Sum(nil))
}

// do sends a signed request. Binance carries all parameters in the query
// string for fapi endpoints, including on POST.
func (c *Client) do(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, limiterKey); err != nil {
			return nil, fmt.Errorf("binance: rate limit: %w", err)
		}
	}
	if params == nil {
		params = url.Values{}
	}

	fullURL := c.baseURL + path + "?" + c.sign(params)
	req, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("binance: build request: %w", err)
	}
	req.Header.Set("X-MBX-APIKEY", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("binance: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("binance: read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Code != 0 {
			return nil, classifyError(apiErr)
		}
		return nil, fmt.Errorf("binance: %s %s: http %d: %s", method, path, resp.StatusCode, body)
	}
	return body, nil
}

// classifyError maps Binance error codes into domain errors.
func classifyError(e apiError) error {
	switch e.Code {
	case codeInvalidSymbol:
		return fmt.Errorf("binance: code %d: %s: %w", e.Code, e.Msg, domain.ErrSymbolUnavailable)
	case codeMinNotional, codeMinQty:
		return fmt.Errorf("binance: code %d: %s: %w", e.Code, e.Msg, domain.ErrMinimumSize)
	case codeNoSuchOrder:
		return fmt.Errorf("binance: code %d: %s: %w", e.Code, e.Msg, domain.ErrNotFound)
	default:
		return fmt.Errorf("binance: code %d: %s", e.Code, e.Msg)
	}
}

func decodeMap(body []byte) (map[string]any, error) {
	var data map[string]any
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("binance: decode response: %w", err)
	}
	return data, nil
}

// CreateMarketOrder submits a MARKET order. The acknowledgement includes the
// order id but fill fields may still be zero; callers re-fetch by id.
func (c *Client) CreateMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity float64, params domain.OrderParams) (domain.RawOrder, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("side", orderSide(side))
	q.Set("type", "MARKET")
	q.Set("quantity", formatQty(quantity))
	if params.ReduceOnly {
		q.Set("reduceOnly", "true")
	}

	body, err := c.do(ctx, http.MethodPost, "/fapi/v1/order", q)
	if err != nil {
		return domain.RawOrder{}, fmt.Errorf("binance: create market order %s: %w", symbol, err)
	}
	data, err := decodeMap(body)
	if err != nil {
		return domain.RawOrder{}, err
	}

	c.logger.Info("market order submitted",
		slog.String("symbol", symbol),
		slog.String("side", string(side)),
		slog.Float64("qty", quantity))

	return domain.RawOrder{Venue: domain.VenueBinance, Data: data}, nil
}

// FetchOrder retrieves an order by id.
func (c *Client) FetchOrder(ctx context.Context, id, symbol string) (domain.RawOrder, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("orderId", id)

	body, err := c.do(ctx, http.MethodGet, "/fapi/v1/order", q)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.RawOrder{}, domain.ErrNotFound
		}
		return domain.RawOrder{}, fmt.Errorf("binance: fetch order %s: %w", id, err)
	}
	data, err := decodeMap(body)
	if err != nil {
		return domain.RawOrder{}, err
	}
	if len(data) == 0 {
		return domain.RawOrder{}, domain.ErrNotFound
	}
	return domain.RawOrder{Venue: domain.VenueBinance, Data: data}, nil
}

// FetchPositions lists non-flat positions via positionRisk.
func (c *Client) FetchPositions(ctx context.Context, symbols ...string) ([]domain.VenuePosition, error) {
	q := url.Values{}
	if len(symbols) > 0 {
		q.Set("symbol", symbols[0])
	}

	body, err := c.do(ctx, http.MethodGet, "/fapi/v2/positionRisk", q)
	if err != nil {
		return nil, fmt.Errorf("binance: fetch positions: %w", err)
	}

	var rawList []map[string]any
	if err := json.Unmarshal(body, &rawList); err != nil {
		return nil, fmt.Errorf("binance: decode position list: %w", err)
	}

	positions := make([]domain.VenuePosition, 0, len(rawList))
	for _, raw := range rawList {
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

// FetchOpenOrders lists open orders for a symbol. Binance has no server-side
// conditional filter, so filter params are ignored here; classification
// happens on the caller's side.
func (c *Client) FetchOpenOrders(ctx context.Context, symbol string, filter map[string]string) ([]domain.RawOrder, error) {
	q := url.Values{}
	q.Set("symbol", symbol)

	body, err := c.do(ctx, http.MethodGet, "/fapi/v1/openOrders", q)
	if err != nil {
		return nil, fmt.Errorf("binance: fetch open orders %s: %w", symbol, err)
	}

	var rawList []map[string]any
	if err := json.Unmarshal(body, &rawList); err != nil {
		return nil, fmt.Errorf("binance: decode open orders: %w", err)
	}

	orders := make([]domain.RawOrder, 0, len(rawList))
	for _, raw := range rawList {
		orders = append(orders, domain.RawOrder{Venue: domain.VenueBinance, Data: raw})
	}
	return orders, nil
}

// CreateOrder places a conditional order. Stop-market maps to STOP_MARKET
// with an explicit quantity and reduceOnly.
func (c *Client) CreateOrder(ctx context.Context, symbol string, typ domain.OrderType, side domain.OrderSide, amount float64, trigger domain.TriggerParams) (domain.RawOrder, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("side", orderSide(side))

	switch typ {
	case domain.OrderTypeStop:
		q.Set("type", "STOP_MARKET")
		q.Set("stopPrice", formatQty(trigger.TriggerPrice))
		q.Set("quantity", formatQty(amount))
		if trigger.ReduceOnly {
			q.Set("reduceOnly", "true")
		}
	case domain.OrderTypeLimit:
		q.Set("type", "LIMIT")
		q.Set("quantity", formatQty(amount))
	default:
		q.Set("type", "MARKET")
		q.Set("quantity", formatQty(amount))
	}

	body, err := c.do(ctx, http.MethodPost, "/fapi/v1/order", q)
	if err != nil {
		return domain.RawOrder{}, fmt.Errorf("binance: create %s order %s: %w", typ, symbol, err)
	}
	data, err := decodeMap(body)
	if err != nil {
		return domain.RawOrder{}, err
	}
	return domain.RawOrder{Venue: domain.VenueBinance, Data: data}, nil
}

// CreateAlgoOrder is the fallback stop path: STOP_MARKET with
// closePosition=true, which carries no quantity and therefore survives
// precision rejections on the explicit-quantity path.
func (c *Client) CreateAlgoOrder(ctx context.Context, symbol string, side domain.OrderSide, amount, triggerPrice float64) (domain.RawOrder, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("side", orderSide(side))
	q.Set("type", "STOP_MARKET")
	q.Set("stopPrice", formatQty(triggerPrice))
	q.Set("closePosition", "true")

	body, err := c.do(ctx, http.MethodPost, "/fapi/v1/order", q)
	if err != nil {
		return domain.RawOrder{}, fmt.Errorf("binance: create algo stop %s: %w", symbol, err)
	}
	data, err := decodeMap(body)
	if err != nil {
		return domain.RawOrder{}, err
	}
	return domain.RawOrder{Venue: domain.VenueBinance, Data: data}, nil
}

// SetLeverage adjusts the symbol's leverage.
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("leverage", strconv.Itoa(leverage))

	if _, err := c.do(ctx, http.MethodPost, "/fapi/v1/leverage", q); err != nil {
		return fmt.Errorf("binance: set leverage %s: %w", symbol, err)
	}
	return nil
}

// Compile-time interface checks.
var (
	_ domain.Exchange        = (*Client)(nil)
	_ domain.AlgoOrderPlacer = (*Client)(nil)
)
