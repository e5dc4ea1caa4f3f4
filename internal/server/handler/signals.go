package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/depthlab/bookpulse/internal/domain"
)

// SignalProducer runs a full on-demand analysis for an instrument. The
// produce pipeline satisfies it.
type SignalProducer interface {
	Produce(ctx context.Context, input any) domain.SignalResult
}

// SignalHandler serves stored signals and on-demand analysis.
type SignalHandler struct {
	store    domain.SignalStore
	producer SignalProducer
	logger   *slog.Logger
}

// NewSignalHandler creates a SignalHandler. producer may be nil, in which
// case on-demand analysis is unavailable.
func NewSignalHandler(store domain.SignalStore, producer SignalProducer, logger *slog.Logger) *SignalHandler {
	return &SignalHandler{
		store:    store,
		producer: producer,
		logger:   logHandler(logger, "signals"),
	}
}

// GetLatest returns the most recent stored signal for an instrument.
// GET /api/signals/{instrument}/latest
func (h *SignalHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	instrument, err := domain.NormalizeInstrument(pathParam(r, "instrument"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid instrument")
		return
	}

	res, err := h.store.GetLatest(r.Context(), instrument)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no signal for instrument")
			return
		}
		h.logger.ErrorContext(r.Context(), "get latest signal failed",
			slog.String("instrument", instrument.String()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load signal")
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// ListRecent returns the most recent stored signals for an instrument,
// newest first. Supports the standard limit query parameter.
// GET /api/signals/{instrument}
func (h *SignalHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	instrument, err := domain.NormalizeInstrument(pathParam(r, "instrument"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid instrument")
		return
	}

	opts := parseListOpts(r)
	signals, err := h.store.ListRecent(r.Context(), instrument, opts.Limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list signals failed",
			slog.String("instrument", instrument.String()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list signals")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"instrument": instrument,
		"count":      len(signals),
		"signals":    signals,
	})
}

// analyzeRequest is the POST body for on-demand analysis.
type analyzeRequest struct {
	Instrument string `json:"instrument"`
}

// Analyze runs a full fetch-and-analyze cycle for the requested instrument
// and returns the produced signal without persisting it.
// POST /api/analyze
func (h *SignalHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	if h.producer == nil {
		writeError(w, http.StatusServiceUnavailable, "on-demand analysis is not available in this mode")
		return
	}

	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res := h.producer.Produce(r.Context(), req.Instrument)
	status := http.StatusOK
	if res.ErrorCode == domain.ErrCodeInvalidInput {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, res)
}
