// Package binance is the REST client for the Binance spot market data API:
// order book depth, last price, and a kline-derived short-horizon volatility
// estimate. Market data endpoints are public; no API key is required.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/depthlab/bookpulse/internal/domain"
)

// Config configures the REST client.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// DefaultConfig returns defaults for the public Binance endpoint.
func DefaultConfig() Config {
	return Config{
		BaseURL: "https://api.binance.com",
		Timeout: 10 * time.Second,
	}
}

// Client is the Binance market data client. An optional RateLimiter gates
// every outbound request; pass nil to disable local throttling.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    domain.RateLimiter
}

var (
	_ domain.DepthProvider        = (*Client)(nil)
	_ domain.ReferencePriceSource = (*Client)(nil)
	_ domain.VolatilitySource     = (*Client)(nil)
)

// NewClient creates a new market data client. limiter may be nil.
func NewClient(cfg Config, limiter domain.RateLimiter) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: limiter,
	}
}

// FetchDepth retrieves the order book snapshot for an instrument. levels is
// clamped to the API's accepted ladder sizes.
func (c *Client) FetchDepth(ctx context.Context, instrument domain.Instrument, levels int) (domain.OrderBookSnapshot, error) {
	q := url.Values{}
	q.Set("symbol", instrument.String())
	q.Set("limit", strconv.Itoa(clampDepthLimit(levels)))

	respBody, err := c.doRequest(ctx, "/api/v3/depth", q)
	if err != nil {
		return domain.OrderBookSnapshot{}, fmt.Errorf("binance: fetch depth %s: %w", instrument, err)
	}

	var raw APIDepth
	if err := json.Unmarshal(respBody, &raw); err != nil {
		return domain.OrderBookSnapshot{}, fmt.Errorf("binance: decode depth: %w", err)
	}

	snap, err := raw.ToSnapshot(instrument)
	if err != nil {
		return domain.OrderBookSnapshot{}, fmt.Errorf("binance: depth %s: %w", instrument, err)
	}
	return snap, nil
}

// MidOrLastPrice returns the last traded price for an instrument.
func (c *Client) MidOrLastPrice(ctx context.Context, instrument domain.Instrument) (float64, error) {
	q := url.Values{}
	q.Set("symbol", instrument.String())

	respBody, err := c.doRequest(ctx, "/api/v3/ticker/price", q)
	if err != nil {
		return 0, fmt.Errorf("binance: ticker price %s: %w", instrument, err)
	}

	var raw APIPrice
	if err := json.Unmarshal(respBody, &raw); err != nil {
		return 0, fmt.Errorf("binance: decode ticker price: %w", err)
	}

	price, err := strconv.ParseFloat(raw.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("binance: parse price %q: %w", raw.Price, err)
	}
	return price, nil
}

// ShortHorizonVolatility estimates the last hour's volatility in percent per
// hour from one-minute klines: the population standard deviation of
// close-to-close percentage returns, scaled to the hour.
func (c *Client) ShortHorizonVolatility(ctx context.Context, instrument domain.Instrument) (float64, error) {
	q := url.Values{}
	q.Set("symbol", instrument.String())
	q.Set("interval", "1m")
	q.Set("limit", "60")

	respBody, err := c.doRequest(ctx, "/api/v3/klines", q)
	if err != nil {
		return 0, fmt.Errorf("binance: klines %s: %w", instrument, err)
	}

	closes, err := parseKlineCloses(respBody)
	if err != nil {
		return 0, fmt.Errorf("binance: klines %s: %w", instrument, err)
	}
	if len(closes) < 2 {
		return 0, fmt.Errorf("binance: klines %s: %w", instrument, domain.ErrInsufficientData)
	}
	return hourlyVolatility(closes), nil
}

// parseKlineCloses extracts the close prices (index 4) from the raw kline
// arrays, which mix numbers and strings.
func parseKlineCloses(body []byte) ([]float64, error) {
	var rows [][]json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode klines: %w", err)
	}

	closes := make([]float64, 0, len(rows))
	for _, row := range rows {
		if len(row) < 5 {
			continue
		}
		var s string
		if err := json.Unmarshal(row[4], &s); err != nil {
			return nil, fmt.Errorf("decode kline close: %w", err)
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("parse kline close %q: %w", s, err)
		}
		closes = append(closes, v)
	}
	return closes, nil
}

// hourlyVolatility is the population stddev of per-minute percentage returns
// scaled by sqrt(minutes per hour).
func hourlyVolatility(closes []float64) float64 {
	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] <= 0 {
			continue
		}
		returns = append(returns, (closes[i]-closes[i-1])/closes[i-1]*100)
	}
	if len(returns) == 0 {
		return 0
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var sq float64
	for _, r := range returns {
		d := r - mean
		sq += d * d
	}
	return math.Sqrt(sq/float64(len(returns))) * math.Sqrt(60)
}

// doRequest applies local rate limiting, sends a GET, and reads the body.
func (c *Client) doRequest(ctx context.Context, path string, query url.Values) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, "binance:rest"); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// checkHTTPStatus maps non-2xx status codes to domain errors, surfacing the
// Binance error envelope when present.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	msg := string(body)
	var apiErr APIError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
		msg = fmt.Sprintf("code %d: %s", apiErr.Code, apiErr.Message)
	}

	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, msg)
	case http.StatusTooManyRequests, http.StatusTeapot:
		// 418 is Binance's IP-ban escalation of 429.
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, msg)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, msg)
	}
}

// clampDepthLimit snaps the requested ladder size to the nearest accepted
// API limit, rounding up.
func clampDepthLimit(levels int) int {
	accepted := []int{5, 10, 20, 50, 100, 500, 1000, 5000}
	for _, a := range accepted {
		if levels <= a {
			return a
		}
	}
	return accepted[len(accepted)-1]
}
