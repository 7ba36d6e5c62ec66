package backend

import (
	"github.com/cockroachdb/errors"

	"github.com/shaiso/Metronome/internal/config"
	"github.com/shaiso/Metronome/internal/lease"
	"github.com/shaiso/Metronome/internal/mq"
	"github.com/shaiso/Metronome/internal/queue"
	"github.com/shaiso/Metronome/internal/redisstore"
	"github.com/shaiso/Metronome/internal/registry"
	"github.com/shaiso/Metronome/internal/repo"
)

// LeaseStore возвращает хранилище lease по lease.backend.
func (s *Set) LeaseStore(cfg *config.Config) (lease.Store, error) {
	switch cfg.Lease.Backend {
	case config.BackendMemory:
		s.logger.Warn("in-memory lease store: leader election works within this process only")
		return lease.NewMemoryStore(), nil
	case config.BackendRedis:
		return redisstore.NewLeaseStore(s.Redis, redisstore.WithLogger(s.logger)), nil
	case config.BackendPostgres:
		return repo.NewLeaseRepo(s.Postgres, s.logger), nil
	}
	return nil, unknownBackend("lease.backend", cfg.Lease.Backend)
}

// StateStore возвращает хранилище состояния расписаний по registry.backend.
func (s *Set) StateStore(cfg *config.Config) (registry.StateStore, error) {
	switch cfg.Registry.Backend {
	case config.BackendMemory:
		return registry.NewMemoryStateStore(), nil
	case config.BackendRedis:
		return redisstore.NewStateStore(s.Redis, redisstore.WithLogger(s.logger)), nil
	case config.BackendPostgres:
		return repo.NewJobStateRepo(s.Postgres), nil
	}
	return nil, unknownBackend("registry.backend", cfg.Registry.Backend)
}

// Broker возвращает брокер для публикации work items по queue.backend.
func (s *Set) Broker(cfg *config.Config) (queue.Broker, error) {
	switch cfg.Queue.Backend {
	case config.BackendMemory:
		s.logger.Warn("in-memory queue: work items are not delivered to workers")
		return queue.NewMemoryBroker(), nil
	case config.BackendRabbitMQ:
		return mq.NewPublisher(s.RabbitMQ, s.logger), nil
	case config.BackendRedis:
		return redisstore.NewQueue(s.Redis, redisstore.WithLogger(s.logger)), nil
	}
	return nil, unknownBackend("queue.backend", cfg.Queue.Backend)
}

func unknownBackend(key, value string) error {
	return errors.Mark(errors.Newf("%s: unknown backend %q", key, value), config.ErrInvalidConfig)
}
