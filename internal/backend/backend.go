package backend

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/shaiso/Metronome/internal/api"
	"github.com/shaiso/Metronome/internal/config"
	"github.com/shaiso/Metronome/internal/mq"
	"github.com/shaiso/Metronome/internal/redisstore"
	"github.com/shaiso/Metronome/internal/repo"
)

// Set — открытые соединения процесса.
type Set struct {
	Redis    *redis.Client
	Postgres *pgxpool.Pool
	RabbitMQ *mq.Connection

	// Checks — ping каждого открытого бэкенда для /healthz.
	Checks []api.HealthCheck

	logger  *slog.Logger
	closers []func() error
}

// Open открывает бэкенды, нужные конфигурации.
//
// Postgres: схема создаётся при открытии (EnsureSchema).
// RabbitMQ: объявляется топология для topics.
// При ошибке уже открытые соединения закрываются.
func Open(ctx context.Context, cfg *config.Config, topics []string, logger *slog.Logger) (*Set, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Set{logger: logger}

	if cfg.UsesBackend(config.BackendRedis) {
		client, err := redisstore.NewClient(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, s.fail(errors.Wrap(err, "open redis"))
		}
		s.Redis = client
		s.closers = append(s.closers, client.Close)
		s.Checks = append(s.Checks, api.HealthCheck{
			Name:  config.BackendRedis,
			Check: func(ctx context.Context) error { return redisstore.Ping(ctx, client) },
		})
		logger.Info("redis connected")
	}

	if cfg.UsesBackend(config.BackendPostgres) {
		pool, err := repo.NewPool(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, s.fail(errors.Wrap(err, "open postgres"))
		}
		s.Postgres = pool
		s.closers = append(s.closers, func() error { pool.Close(); return nil })
		s.Checks = append(s.Checks, api.HealthCheck{
			Name:  config.BackendPostgres,
			Check: pool.Ping,
		})

		if err := repo.EnsureSchema(ctx, pool); err != nil {
			return nil, s.fail(errors.Wrap(err, "ensure postgres schema"))
		}
		logger.Info("postgres connected")
	}

	if cfg.UsesBackend(config.BackendRabbitMQ) {
		conn, err := mq.NewConnection(mq.ConnectionConfig{URL: cfg.RabbitMQ.URL, Logger: logger})
		if err != nil {
			return nil, s.fail(errors.Wrap(err, "open rabbitmq"))
		}
		s.RabbitMQ = conn
		s.closers = append(s.closers, conn.Close)
		s.Checks = append(s.Checks, api.HealthCheck{
			Name:  config.BackendRabbitMQ,
			Check: conn.Ping,
		})

		if err := mq.SetupTopology(ctx, conn, topics); err != nil {
			return nil, s.fail(errors.Wrap(err, "setup rabbitmq topology"))
		}
		logger.Info("rabbitmq connected", "topics", topics)
		logger.Debug(mq.TopologyInfo())
	}

	return s, nil
}

// UpdateTopology объявляет очереди для новых топиков (после перезагрузки конфига).
func (s *Set) UpdateTopology(ctx context.Context, topics []string) error {
	if s.RabbitMQ == nil {
		return nil
	}
	return mq.SetupTopology(ctx, s.RabbitMQ, topics)
}

// Close закрывает соединения в обратном порядке.
func (s *Set) Close() error {
	var errs error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = errors.CombineErrors(errs, s.closers[i]())
	}
	s.closers = nil
	return errs
}

func (s *Set) fail(err error) error {
	if cErr := s.Close(); cErr != nil {
		s.logger.Warn("failed to close backends", "error", cErr)
	}
	return err
}
