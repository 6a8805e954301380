package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/greenbond-oracle/internal/domain"
)

// JournalHandler serves the oracle event journal.
type JournalHandler struct {
	journal domain.AuditStore
	logger  *slog.Logger
}

// NewJournalHandler creates a JournalHandler.
func NewJournalHandler(journal domain.AuditStore, logger *slog.Logger) *JournalHandler {
	return &JournalHandler{journal: journal, logger: logger}
}

type journalEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt string         `json:"created_at"`
}

// ListEntries returns journal entries newest first.
// GET /api/v1/journal?bond_id=&limit=&offset=&since=&until=
func (h *JournalHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := h.journal.List(r.Context(), opts)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to list journal")
		return
	}

	out := make([]journalEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, journalEntry{
			ID:        e.ID,
			Event:     e.Event,
			Detail:    e.Detail,
			CreatedAt: e.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": out,
		"count":   len(out),
	})
}
