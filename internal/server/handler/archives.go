package handler

import (
	"log/slog"
	"net/http"

	"github.com/depthlab/bookpulse/internal/domain"
)

// ArchiveHandler lists exported signal archives in blob storage.
type ArchiveHandler struct {
	reader domain.BlobReader
	logger *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler.
func NewArchiveHandler(reader domain.BlobReader, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{
		reader: reader,
		logger: logHandler(logger, "archives"),
	}
}

// ListArchives returns the object keys of all exported signal archives.
// GET /api/archives
func (h *ArchiveHandler) ListArchives(w http.ResponseWriter, r *http.Request) {
	infos, err := h.reader.List(r.Context(), "archive/signals/")
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list archives failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list archives")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(infos),
		"archives": infos,
	})
}
