package repo

import (
	"context"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Metronome/internal/domain"
	"github.com/shaiso/Metronome/internal/lease"
)

// Compile-time проверка интерфейса.
var _ lease.Store = (*LeaseRepo)(nil)

// LeaseRepo — lease.Store поверх таблицы scheduler_leases.
//
// Истечение считается по часам БД (now()), часы экземпляров не участвуют.
// epoch растёт на каждом захвате и попадает в логи.
type LeaseRepo struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewLeaseRepo создаёт LeaseRepo.
func NewLeaseRepo(pool *pgxpool.Pool, logger *slog.Logger) *LeaseRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &LeaseRepo{pool: pool, logger: logger}
}

// Acquire захватывает lease, если строки нет или она истекла.
func (r *LeaseRepo) Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	query := `
		INSERT INTO scheduler_leases (key, owner_token, epoch, expires_at, updated_at)
		VALUES ($1, $2, 1, now() + ($3 * interval '1 millisecond'), now())
		ON CONFLICT (key) DO UPDATE
		SET owner_token = EXCLUDED.owner_token,
		    epoch       = scheduler_leases.epoch + 1,
		    expires_at  = EXCLUDED.expires_at,
		    updated_at  = now()
		WHERE scheduler_leases.expires_at <= now()
		RETURNING epoch
	`
	var epoch int64
	err := r.pool.QueryRow(ctx, query, key, token, ttl.Milliseconds()).Scan(&epoch)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "acquire lease")
	}

	r.logger.Debug("lease row acquired", "key", key, "epoch", epoch)
	return true, nil
}

// Renew продлевает живой lease владельца.
func (r *LeaseRepo) Renew(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE scheduler_leases
		SET expires_at = now() + ($3 * interval '1 millisecond'), updated_at = now()
		WHERE key = $1 AND owner_token = $2 AND expires_at > now()
	`, key, token, ttl.Milliseconds())
	if err != nil {
		return false, errors.Wrap(err, "renew lease")
	}
	return result.RowsAffected() == 1, nil
}

// Release удаляет lease владельца.
func (r *LeaseRepo) Release(ctx context.Context, key, token string) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM scheduler_leases WHERE key = $1 AND owner_token = $2
	`, key, token)
	if err != nil {
		return errors.Wrap(err, "release lease")
	}
	return nil
}

// Get возвращает живой lease или nil.
func (r *LeaseRepo) Get(ctx context.Context, key string) (*domain.Lease, error) {
	l := domain.Lease{Key: key}
	err := r.pool.QueryRow(ctx, `
		SELECT owner_token, expires_at
		FROM scheduler_leases
		WHERE key = $1 AND expires_at > now()
	`, key).Scan(&l.OwnerToken, &l.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get lease")
	}
	return &l, nil
}
