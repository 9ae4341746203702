package handlers

import (
	"context"
	"net/http"
	"time"

	"recap/internal/httpkit"
)

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Health reports liveness plus the state of the two backing services.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Checks: map[string]string{}}

	if h.d.Pool != nil {
		if err := h.d.Pool.Ping(ctx); err != nil {
			resp.Status = "degraded"
			resp.Checks["postgres"] = err.Error()
		} else {
			resp.Checks["postgres"] = "ok"
		}
	}
	if h.d.RDB != nil {
		if err := h.d.RDB.Ping(ctx).Err(); err != nil {
			resp.Status = "degraded"
			resp.Checks["redis"] = err.Error()
		} else {
			resp.Checks["redis"] = "ok"
		}
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	httpkit.WriteJSON(w, status, resp)
}
