// Package repo — хранилища поверх PostgreSQL (pgx).
//
// Структура:
//   - db.go             — пул соединений
//   - schema.go         — EnsureSchema (scheduler_leases, job_states)
//   - lease_repo.go     — lease.Store: upsert с условием по expires_at, epoch
//   - job_state_repo.go — registry.StateStore: upsert состояния job
//
// Время истечения lease считается функцией now() БД.
package repo
