package api

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/shaiso/Metronome/internal/registry"
	"github.com/shaiso/Metronome/internal/scheduler"
)

// StatusSource — источник состояния экземпляра (scheduler.Scheduler).
type StatusSource interface {
	Status(ctx context.Context) scheduler.Status
}

var _ StatusSource = (*scheduler.Scheduler)(nil)

// HealthCheck — проверка доступности бэкенда для /healthz.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	status   StatusSource
	registry *registry.Registry
	checks   []HealthCheck
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// Config — конфигурация для создания Handler.
//
// Status и Registry опциональны: worker отдаёт только /healthz и /metrics.
type Config struct {
	Status   StatusSource
	Registry *registry.Registry
	Checks   []HealthCheck

	// Gatherer — источник метрик (default: prometheus.DefaultGatherer).
	Gatherer prometheus.Gatherer

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		status:   cfg.Status,
		registry: cfg.Registry,
		checks:   cfg.Checks,
		gatherer: gatherer,
		logger:   logger,
	}
}
