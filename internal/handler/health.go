package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	providers := []string{}
	if h.providers != nil {
		for _, p := range h.providers.Available() {
			providers = append(providers, string(p))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"providers": providers,
		"documents": h.documents != nil,
	})
}

// handleDBActivity reports whether the database answers a ping.
func (h *Handler) handleDBActivity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	start := time.Now()
	if err := h.history.Ping(ctx); err != nil {
		slog.Error("database ping failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":   "error",
			"database": "unreachable",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"database":   "connected",
		"latency_ms": time.Since(start).Milliseconds(),
	})
}
