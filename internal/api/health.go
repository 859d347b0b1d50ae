package api

import (
	"context"
	"net/http"
	"time"

	"github.com/erazemk/darila/internal/db"
)

// HealthHandler reports liveness.
type HealthHandler struct {
	DB *db.DB
}

// Health handles GET /api/health.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.DB.PingContext(ctx); err != nil {
		jsonResponse(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "database": "down"})
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"status": "ok", "database": "up"})
}
