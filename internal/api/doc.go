// Package api содержит административный HTTP API.
//
// Структура:
//   - handler.go        — Handler с DI (scheduler, реестр, health checks, метрики)
//   - routes.go         — регистрация маршрутов
//   - middleware.go     — middleware (logging, recovery)
//   - response.go       — унифицированные JSON-ответы и обработка ошибок
//   - dto.go            — Data Transfer Objects
//   - job_handler.go    — обработчики для /jobs
//   - status_handler.go — /status и /healthz
//
// Маршруты:
//
//	GET /api/v1/status       — экземпляр, состояние, лидер, дедлайн lease, счётчики
//	GET /api/v1/jobs         — job с next_due_at и последним исходом
//	GET /api/v1/jobs/{name}  — одна job (404, если нет)
//	GET /healthz             — ping бэкендов
//	GET /metrics             — Prometheus
//
// API только читает: состояние расписаний меняет лидер.
package api
