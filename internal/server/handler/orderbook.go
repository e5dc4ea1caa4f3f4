package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/depthlab/bookpulse/internal/domain"
)

// OrderbookHandler serves cached depth snapshots from the live feed.
type OrderbookHandler struct {
	cache  domain.OrderbookCache
	logger *slog.Logger
}

// NewOrderbookHandler creates an OrderbookHandler.
func NewOrderbookHandler(cache domain.OrderbookCache, logger *slog.Logger) *OrderbookHandler {
	return &OrderbookHandler{
		cache:  cache,
		logger: logHandler(logger, "orderbook"),
	}
}

// GetSnapshot returns the most recent cached depth snapshot for an instrument.
// GET /api/orderbook/{instrument}
func (h *OrderbookHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	instrument, err := domain.NormalizeInstrument(pathParam(r, "instrument"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid instrument")
		return
	}

	snap, err := h.cache.GetSnapshot(r.Context(), instrument)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no cached snapshot for instrument")
			return
		}
		h.logger.ErrorContext(r.Context(), "snapshot load failed",
			slog.String("instrument", instrument.String()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load snapshot")
		return
	}

	writeJSON(w, http.StatusOK, snap)
}
