package backend

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Metronome/internal/config"
	"github.com/shaiso/Metronome/internal/lease"
	"github.com/shaiso/Metronome/internal/queue"
	"github.com/shaiso/Metronome/internal/redisstore"
	"github.com/shaiso/Metronome/internal/registry"
)

func loadConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv(config.EnvConfigPath, "")
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func TestOpen_Memory(t *testing.T) {
	cfg := loadConfig(t)
	ctx := context.Background()

	s, err := Open(ctx, cfg, cfg.Topics(), nil)
	require.NoError(t, err)
	defer s.Close()

	assert.Nil(t, s.Redis)
	assert.Nil(t, s.Postgres)
	assert.Nil(t, s.RabbitMQ)
	assert.Empty(t, s.Checks)

	ls, err := s.LeaseStore(cfg)
	require.NoError(t, err)
	assert.IsType(t, &lease.MemoryStore{}, ls)

	ss, err := s.StateStore(cfg)
	require.NoError(t, err)
	assert.IsType(t, &registry.MemoryStateStore{}, ss)

	b, err := s.Broker(cfg)
	require.NoError(t, err)
	assert.IsType(t, &queue.MemoryBroker{}, b)

	require.NoError(t, s.UpdateTopology(ctx, []string{"x"}))
}

func TestOpen_Redis(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := loadConfig(t)
	cfg.Lease.Backend = config.BackendRedis
	cfg.Registry.Backend = config.BackendRedis
	cfg.Queue.Backend = config.BackendRedis
	cfg.Redis.URL = "redis://" + mr.Addr() + "/0"
	ctx := context.Background()

	s, err := Open(ctx, cfg, cfg.Topics(), nil)
	require.NoError(t, err)
	defer s.Close()

	require.NotNil(t, s.Redis)
	require.Len(t, s.Checks, 1)
	assert.Equal(t, "redis", s.Checks[0].Name)
	require.NoError(t, s.Checks[0].Check(ctx))

	ls, err := s.LeaseStore(cfg)
	require.NoError(t, err)
	assert.IsType(t, &redisstore.LeaseStore{}, ls)

	ss, err := s.StateStore(cfg)
	require.NoError(t, err)
	assert.IsType(t, &redisstore.StateStore{}, ss)

	b, err := s.Broker(cfg)
	require.NoError(t, err)
	assert.IsType(t, &redisstore.Queue{}, b)

	mr.Close()
	assert.Error(t, s.Checks[0].Check(ctx))
}

func TestOpen_RedisUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := loadConfig(t)
	cfg.Lease.Backend = config.BackendRedis
	cfg.Redis.URL = "redis://" + addr + "/0"

	_, err := Open(context.Background(), cfg, nil, nil)
	require.Error(t, err)
}

func TestStores_UnknownBackend(t *testing.T) {
	cfg := loadConfig(t)
	s, err := Open(context.Background(), cfg, nil, nil)
	require.NoError(t, err)

	cfg.Lease.Backend = "etcd"
	_, err = s.LeaseStore(cfg)
	assert.True(t, errors.Is(err, config.ErrInvalidConfig))
}
