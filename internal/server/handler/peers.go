package handler

import (
	"log/slog"
	"net/http"

	"github.com/depthlab/bookpulse/internal/domain"
)

// PeerHandler exposes the sibling producers' latest published opinions.
type PeerHandler struct {
	registry domain.PeerSignalRegistry
	logger   *slog.Logger
}

// NewPeerHandler creates a PeerHandler.
func NewPeerHandler(registry domain.PeerSignalRegistry, logger *slog.Logger) *PeerHandler {
	return &PeerHandler{
		registry: registry,
		logger:   logHandler(logger, "peers"),
	}
}

// GetPeers returns every producer's latest signal for an instrument,
// including this one's.
// GET /api/peers/{instrument}
func (h *PeerHandler) GetPeers(w http.ResponseWriter, r *http.Request) {
	instrument, err := domain.NormalizeInstrument(pathParam(r, "instrument"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid instrument")
		return
	}

	peers, err := h.registry.Peers(r.Context(), instrument, "")
	if err != nil {
		h.logger.ErrorContext(r.Context(), "peer snapshot failed",
			slog.String("instrument", instrument.String()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load peer signals")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"instrument": instrument,
		"count":      len(peers),
		"peers":      peers,
	})
}
