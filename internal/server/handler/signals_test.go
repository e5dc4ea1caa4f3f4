package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depthlab/bookpulse/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubSignalStore struct {
	latest domain.SignalResult
	recent []domain.SignalResult
	err    error
}

func (s *stubSignalStore) Insert(context.Context, domain.SignalResult) error { return nil }
func (s *stubSignalStore) GetLatest(context.Context, domain.Instrument) (domain.SignalResult, error) {
	return s.latest, s.err
}
func (s *stubSignalStore) ListRecent(context.Context, domain.Instrument, int) ([]domain.SignalResult, error) {
	return s.recent, s.err
}
func (s *stubSignalStore) ListBefore(context.Context, time.Time) ([]domain.SignalResult, error) {
	return nil, nil
}
func (s *stubSignalStore) DeleteBefore(context.Context, time.Time) (int64, error) { return 0, nil }
func (s *stubSignalStore) Count(context.Context) (int64, error)                   { return 0, nil }

type stubProducer struct {
	res domain.SignalResult
}

func (p *stubProducer) Produce(context.Context, any) domain.SignalResult { return p.res }

func newMux(h *SignalHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/signals/{instrument}/latest", h.GetLatest)
	mux.HandleFunc("GET /api/signals/{instrument}", h.ListRecent)
	mux.HandleFunc("POST /api/analyze", h.Analyze)
	return mux
}

func TestGetLatestSignal(t *testing.T) {
	store := &stubSignalStore{latest: domain.SignalResult{
		ID:         "abc",
		Instrument: "BTCUSDT",
		Signal:     domain.SignalBuy,
		Confidence: 88,
	}}
	h := NewSignalHandler(store, nil, discardLogger())

	rec := httptest.NewRecorder()
	newMux(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/signals/btcusdt/latest", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var res domain.SignalResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "abc", res.ID)
	assert.Equal(t, domain.SignalBuy, res.Signal)
}

func TestGetLatestSignalNotFound(t *testing.T) {
	store := &stubSignalStore{err: domain.ErrNotFound}
	h := NewSignalHandler(store, nil, discardLogger())

	rec := httptest.NewRecorder()
	newMux(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/signals/BTCUSDT/latest", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListRecentSignals(t *testing.T) {
	store := &stubSignalStore{recent: []domain.SignalResult{
		{ID: "1", Signal: domain.SignalNeutral},
		{ID: "2", Signal: domain.SignalBuy},
	}}
	h := NewSignalHandler(store, nil, discardLogger())

	rec := httptest.NewRecorder()
	newMux(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/signals/BTCUSDT?limit=2", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Count   int                   `json:"count"`
		Signals []domain.SignalResult `json:"signals"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
}

func TestAnalyzeOnDemand(t *testing.T) {
	prod := &stubProducer{res: domain.SignalResult{
		Instrument: "ETHUSDT",
		Signal:     domain.SignalSell,
		Confidence: 83,
	}}
	h := NewSignalHandler(&stubSignalStore{}, prod, discardLogger())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader(`{"instrument":"ETHUSDT"}`))
	newMux(h).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var res domain.SignalResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, domain.SignalSell, res.Signal)
}

func TestAnalyzeInvalidInputStatus(t *testing.T) {
	prod := &stubProducer{res: domain.SignalResult{
		Signal:    domain.SignalNeutral,
		ErrorCode: domain.ErrCodeInvalidInput,
	}}
	h := NewSignalHandler(&stubSignalStore{}, prod, discardLogger())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader(`{"instrument":"   "}`))
	newMux(h).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyzeUnavailableWithoutProducer(t *testing.T) {
	h := NewSignalHandler(&stubSignalStore{}, nil, discardLogger())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader(`{"instrument":"BTCUSDT"}`))
	newMux(h).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
