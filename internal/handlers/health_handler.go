package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/Dawstr8/polish-peaks/internal/models"
	"github.com/Dawstr8/polish-peaks/internal/services"
)

// Pinger reports whether a backing store is reachable
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler reports liveness of the web tier and its session store.
// The Polish Peaks API is not probed; it has its own health endpoint.
type HealthHandler struct {
	store   Pinger
	clients func() int
	cleanup func() services.JanitorStatus
	now     func() time.Time
}

// NewHealthHandler creates a HealthHandler. store and clients may be nil.
func NewHealthHandler(store Pinger, clients func() int) *HealthHandler {
	return &HealthHandler{store: store, clients: clients, now: time.Now}
}

// WithCleanup adds the session janitor's last run to the report
func (h *HealthHandler) WithCleanup(status func() services.JanitorStatus) *HealthHandler {
	h.cleanup = status
	return h
}

// HealthCheck returns 200 when the session store answers, 503 otherwise
// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} models.HealthResponse
// @Failure 503 {object} models.HealthResponse "Session store unreachable"
// @Router /api/health [get]
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := models.HealthResponse{
		Status:    "healthy",
		Timestamp: h.now().UTC(),
		Checks:    map[string]string{},
	}
	status := http.StatusOK

	if h.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.store.PingContext(ctx); err != nil {
			resp.Status = "degraded"
			resp.Checks["sessions"] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			resp.Checks["sessions"] = "ok"
		}
	}
	if h.clients != nil {
		resp.LiveClients = h.clients()
	}
	if h.cleanup != nil {
		status := h.cleanup()
		resp.Cleanup = &status
	}

	writeJSON(w, status, resp)
}
