package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// BondCounter reports how many bonds are registered.
type BondCounter interface {
	Count(ctx context.Context) (int, error)
}

// Pinger is a dependency whose reachability is reported by the health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves the root status and health-check endpoints.
type HealthHandler struct {
	bonds     BondCounter
	deps      map[string]Pinger
	mode      string
	startedAt time.Time
	logger    *slog.Logger
}

// NewHealthHandler creates a HealthHandler. deps maps a dependency name to
// its probe and may be nil.
func NewHealthHandler(bonds BondCounter, deps map[string]Pinger, mode string, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		bonds:     bonds,
		deps:      deps,
		mode:      mode,
		startedAt: time.Now().UTC(),
		logger:    logger,
	}
}

// Root reports that the oracle is online and how many bonds it tracks.
// GET /
func (h *HealthHandler) Root(w http.ResponseWriter, r *http.Request) {
	n, err := h.bonds.Count(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to count bonds")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "Oracle Online",
		"active_bonds": n,
	})
}

// HealthCheck responds with the liveness of the server and its optional
// backing services. A failing dependency yields 503.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(h.deps))
	for name, dep := range h.deps {
		if err := dep.Ping(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	writeJSON(w, status, map[string]any{
		"status":         overall,
		"mode":           h.mode,
		"checks":         checks,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}
