package redisstore

import (
	"context"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"

	"github.com/shaiso/Metronome/internal/domain"
	"github.com/shaiso/Metronome/internal/lease"
)

// Compile-time проверка интерфейса.
var _ lease.Store = (*LeaseStore)(nil)

// renewScript продлевает lease, только если владелец не сменился.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// releaseScript удаляет lease, только если владелец не сменился.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Option настраивает хранилища пакета.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger задаёт логгер.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func applyOptions(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// LeaseStore — lease.Store поверх Redis.
//
// Значение ключа — токен владельца, TTL ключа — время жизни lease.
// Истечение считает сам Redis, поэтому часы экземпляров не участвуют.
type LeaseStore struct {
	client redis.Cmdable
	logger *slog.Logger
}

// NewLeaseStore создаёт LeaseStore.
func NewLeaseStore(client redis.Cmdable, opts ...Option) *LeaseStore {
	o := applyOptions(opts)
	return &LeaseStore{client: client, logger: o.logger}
}

// Acquire — SET key token NX PX ttl.
func (s *LeaseStore) Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, "redis: acquire lease")
	}
	return ok, nil
}

// Renew — compare-and-pexpire.
func (s *LeaseStore) Renew(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	n, err := renewScript.Run(ctx, s.client, []string{key}, token, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, errors.Wrap(err, "redis: renew lease")
	}
	return n == 1, nil
}

// Release — compare-and-del.
func (s *LeaseStore) Release(ctx context.Context, key, token string) error {
	n, err := releaseScript.Run(ctx, s.client, []string{key}, token).Int64()
	if err != nil {
		return errors.Wrap(err, "redis: release lease")
	}
	if n == 0 {
		s.logger.Debug("lease release skipped, not the owner", "key", key)
	}
	return nil
}

// Get возвращает текущий lease или nil.
func (s *LeaseStore) Get(ctx context.Context, key string) (*domain.Lease, error) {
	pipe := s.client.Pipeline()
	getCmd := pipe.Get(ctx, key)
	ttlCmd := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, errors.Wrap(err, "redis: get lease")
	}

	token, err := getCmd.Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "redis: get lease")
	}

	l := &domain.Lease{Key: key, OwnerToken: token}

	// PTTL: -1 — ключ без TTL (записан не нами), -2 — ключ исчез.
	pttl := ttlCmd.Val()
	switch {
	case pttl == -2:
		return nil, nil
	case pttl > 0:
		l.ExpiresAt = time.Now().Add(pttl).UTC()
	}
	return l, nil
}
