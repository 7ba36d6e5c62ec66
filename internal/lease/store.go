package lease

import (
	"context"
	"time"

	"github.com/shaiso/Metronome/internal/domain"
)

// Store — контракт хранилища локов.
//
// Любое key-value хранилище с атомарными "set-if-not-exists with TTL",
// "compare-and-extend" и "compare-and-delete" удовлетворяет контракту.
type Store interface {
	// Acquire создаёт lease, только если для key нет живого lease.
	// Из двух одновременных вызовов выигрывает ровно один.
	Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error)

	// Renew продлевает lease, только если token всё ещё владелец.
	// false — владение потеряно.
	Renew(ctx context.Context, key, token string, ttl time.Duration) (bool, error)

	// Release удаляет lease, только если token всё ещё владелец.
	Release(ctx context.Context, key, token string) error

	// Get возвращает живой lease или nil, если лидера нет.
	Get(ctx context.Context, key string) (*domain.Lease, error)
}
