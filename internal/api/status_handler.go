package api

import (
	"context"
	"net/http"
	"time"
)

// healthTimeout — предел на все проверки /healthz.
const healthTimeout = 2 * time.Second

// GetStatus возвращает состояние экземпляра.
// GET /api/v1/status
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	Success(w, h.status.Status(r.Context()))
}

// Healthz пингует сконфигурированные бэкенды.
// GET /healthz
//
// 200 — все проверки прошли, 503 — хотя бы одна упала.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	resp := HealthResponse{Status: "ok"}
	status := http.StatusOK

	if len(h.checks) > 0 {
		resp.Checks = make(map[string]string, len(h.checks))
	}
	for _, c := range h.checks {
		if err := c.Check(ctx); err != nil {
			h.logger.Warn("health check failed", "check", c.Name, "error", err)
			resp.Checks[c.Name] = err.Error()
			resp.Status = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[c.Name] = "ok"
	}

	JSON(w, status, resp)
}
