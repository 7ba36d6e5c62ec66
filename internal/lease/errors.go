package lease

import "github.com/cockroachdb/errors"

var (
	// ErrLeaseLost — лидерство потеряно. Завершает текущий эпизод
	// лидерства, но не процесс: экземпляр возвращается к выборам.
	ErrLeaseLost = errors.New("lease lost")

	// ErrStoreUnavailable — хранилище lease недоступно (временная ошибка).
	// Если продлить lease не удалось до истечения ttl, деградирует в ErrLeaseLost.
	ErrStoreUnavailable = errors.New("lease store unavailable")
)
