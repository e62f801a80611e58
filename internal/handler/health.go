package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/josh-kwaku/console-bank/internal/logging"
)

type pinger interface {
	PingContext(ctx context.Context) error
}

type HealthHandler struct {
	db      pinger
	timeout time.Duration
}

func NewHealthHandler(db pinger) *HealthHandler {
	return &HealthHandler{db: db, timeout: 2 * time.Second}
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Readiness reports 503 while the store cannot be reached.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	dbStatus := "ok"
	httpStatus := http.StatusOK
	if err := h.db.PingContext(ctx); err != nil {
		logging.FromContext(r.Context()).Warn("readiness check failed: database unreachable", "error", err)
		dbStatus = "down"
		httpStatus = http.StatusServiceUnavailable
	}

	RespondJSON(w, httpStatus, map[string]any{
		"status":    dbStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks": map[string]string{
			"database": dbStatus,
		},
	})
}
