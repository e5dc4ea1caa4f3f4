package handler

import (
	"net/http"
	"time"
)

// StatusHandler serves the backend status (mode, producer, instruments) for
// dashboards and health probes.
type StatusHandler struct {
	Mode        string
	Producer    string
	Instruments []string
	StartedAt   time.Time
}

// NewStatusHandler creates a StatusHandler with the given runtime metadata.
func NewStatusHandler(mode, producer string, instruments []string, startedAt time.Time) *StatusHandler {
	return &StatusHandler{
		Mode:        mode,
		Producer:    producer,
		Instruments: instruments,
		StartedAt:   startedAt,
	}
}

// GetStatus responds with the current backend mode, producer name, watched
// instruments, and uptime.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	uptime := int64(time.Since(h.StartedAt).Seconds())
	if uptime < 0 {
		uptime = 0
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.Mode,
		"producer":       h.Producer,
		"instruments":    h.Instruments,
		"uptime_seconds": uptime,
	})
}
