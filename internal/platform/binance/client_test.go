package binance

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depthlab/bookpulse/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	return NewClient(cfg, nil)
}

func TestFetchDepth(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/depth", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "100", r.URL.Query().Get("limit"))
		io.WriteString(w, `{
			"lastUpdateId": 1,
			"bids": [["99.5","2.0"],["99.0","1.5"]],
			"asks": [["100.5","1.0"],["101.0","3.0"]]
		}`)
	})

	snap, err := c.FetchDepth(context.Background(), "BTCUSDT", 100)
	require.NoError(t, err)

	require.Len(t, snap.Bids, 2)
	require.Len(t, snap.Asks, 2)
	assert.InDelta(t, 99.5, snap.BestBid(), 1e-9)
	assert.InDelta(t, 100.5, snap.BestAsk(), 1e-9)
	assert.NoError(t, snap.Validate())
}

func TestFetchDepthMalformedLevel(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, `{"bids":[["abc","1"]],"asks":[["100.5","1"]]}`)
	})

	_, err := c.FetchDepth(context.Background(), "BTCUSDT", 100)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidOrderBook))
}

func TestFetchDepthRateLimited(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"code":-1003,"msg":"Too many requests."}`)
	})

	_, err := c.FetchDepth(context.Background(), "BTCUSDT", 100)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrRateLimited))
}

func TestMidOrLastPrice(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/ticker/price", r.URL.Path)
		io.WriteString(w, `{"symbol":"BTCUSDT","price":"64250.10"}`)
	})

	price, err := c.MidOrLastPrice(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.InDelta(t, 64250.10, price, 1e-9)
}

func TestShortHorizonVolatility(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/klines", r.URL.Path)
		assert.Equal(t, "1m", r.URL.Query().Get("interval"))
		// Alternating closes produce a nonzero return deviation.
		io.WriteString(w, `[
			[0,"100","101","99","100.0",0],
			[0,"100","101","99","101.0",0],
			[0,"100","101","99","100.0",0],
			[0,"100","101","99","101.0",0]
		]`)
	})

	vol, err := c.ShortHorizonVolatility(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Greater(t, vol, 0.0)
}

func TestHourlyVolatilityFlatSeriesIsZero(t *testing.T) {
	assert.Zero(t, hourlyVolatility([]float64{100, 100, 100, 100}))
}

func TestClampDepthLimit(t *testing.T) {
	assert.Equal(t, 5, clampDepthLimit(1))
	assert.Equal(t, 100, clampDepthLimit(100))
	assert.Equal(t, 500, clampDepthLimit(101))
	assert.Equal(t, 5000, clampDepthLimit(99999))
}
