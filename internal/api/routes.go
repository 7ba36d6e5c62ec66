package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)

	// Status
	if h.status != nil {
		mux.Handle("GET /api/v1/status", chain(http.HandlerFunc(h.GetStatus)))
	}

	// Jobs
	if h.registry != nil {
		mux.Handle("GET /api/v1/jobs", chain(http.HandlerFunc(h.ListJobs)))
		mux.Handle("GET /api/v1/jobs/{name}", chain(http.HandlerFunc(h.GetJob)))
	}

	// Probes и метрики без логирования запросов
	mux.Handle("GET /healthz", Recovery(h.logger)(http.HandlerFunc(h.Healthz)))
	mux.Handle("GET /metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
}

// NewMux создаёт ServeMux с зарегистрированными маршрутами.
func (h *Handler) NewMux() *http.ServeMux {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return mux
}
