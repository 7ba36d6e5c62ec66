// Package backend открывает соединения с внешними хранилищами по конфигу.
//
// Структура:
//   - backend.go — Set: Redis, Postgres, RabbitMQ, health checks, Close
//   - stores.go  — выбор реализаций lease.Store, registry.StateStore, queue.Broker
//
// Открываются только бэкенды, которые выбраны в lease.backend,
// registry.backend или queue.backend.
package backend
