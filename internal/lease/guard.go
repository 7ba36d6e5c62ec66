package lease

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/shaiso/Metronome/internal/domain"
)

// Default configuration values.
const (
	defaultTTL = 15 * time.Second
)

// GuardConfig — конфигурация Guard.
type GuardConfig struct {
	// Key — ключ lease (идентификатор кластера scheduler'ов).
	Key string

	// InstanceID — идентификатор экземпляра, входит в токен владельца.
	InstanceID string

	// TTL — время жизни lease без продления (default: 15s).
	TTL time.Duration

	// CallTimeout — таймаут одного вызова хранилища.
	// Не больше TTL/3 (default: TTL/3).
	CallTimeout time.Duration

	// Now — источник времени (для тестов).
	Now func() time.Time

	Logger *slog.Logger
}

// Guard даёт экземпляру право диспатчить, пока он держит lease.
//
// Guard потокобезопасен: renewal-горутина и dispatch loop обращаются
// к нему одновременно, состояние лидерства сериализуется через mu.
type Guard struct {
	store       Store
	key         string
	instanceID  string
	ttl         time.Duration
	callTimeout time.Duration
	now         func() time.Time
	logger      *slog.Logger

	mu       sync.Mutex
	held     bool
	token    string
	deadline time.Time
}

// NewGuard создаёт Guard поверх хранилища.
func NewGuard(store Store, cfg GuardConfig) *Guard {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}

	callTimeout := cfg.CallTimeout
	if callTimeout <= 0 || callTimeout > ttl/3 {
		callTimeout = ttl / 3
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Guard{
		store:       store,
		key:         cfg.Key,
		instanceID:  cfg.InstanceID,
		ttl:         ttl,
		callTimeout: callTimeout,
		now:         now,
		logger:      logger,
	}
}

// TryAcquire пытается стать лидером.
//
// Для каждого захвата генерируется новый токен — токен прошлого эпизода
// не может продлить новый lease. Локальный дедлайн отсчитывается от начала
// попытки, поэтому он не позже истечения lease в хранилище.
func (g *Guard) TryAcquire(ctx context.Context) (bool, error) {
	if g.Valid() {
		return true, nil
	}

	token := domain.OwnerToken(g.instanceID, uuid.NewString())
	start := g.now()

	callCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	ok, err := g.store.Acquire(callCtx, g.key, token, g.ttl)
	if err != nil {
		return false, errors.Mark(errors.Wrap(err, "acquire lease"), ErrStoreUnavailable)
	}
	if !ok {
		return false, nil
	}

	g.mu.Lock()
	g.held = true
	g.token = token
	g.deadline = start.Add(g.ttl)
	g.mu.Unlock()

	g.logger.Info("lease acquired",
		"key", g.key,
		"instance_id", g.instanceID,
		"ttl", g.ttl,
	)
	return true, nil
}

// Renew продлевает lease.
//
// Возвращает ErrLeaseLost, если:
//   - локальный дедлайн уже прошёл (ответу хранилища больше не верим)
//   - хранилище сообщило, что владелец другой
//   - хранилище недоступно и дедлайн прошёл, пока ждали ответ
//
// Возвращает ErrStoreUnavailable при временной ошибке до дедлайна.
func (g *Guard) Renew(ctx context.Context) error {
	g.mu.Lock()
	if !g.held {
		g.mu.Unlock()
		return errors.Wrap(ErrLeaseLost, "lease not held")
	}
	if !g.now().Before(g.deadline) {
		g.fenceLocked()
		g.mu.Unlock()
		return errors.Wrap(ErrLeaseLost, "local lease deadline passed")
	}
	token := g.token
	g.mu.Unlock()

	start := g.now()

	callCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	ok, err := g.store.Renew(callCtx, g.key, token, g.ttl)

	g.mu.Lock()
	defer g.mu.Unlock()

	// Пока ждали ответ, lease мог быть отпущен или зафенсен.
	if !g.held || g.token != token {
		return errors.Wrap(ErrLeaseLost, "lease released during renewal")
	}

	if err != nil {
		if !g.now().Before(g.deadline) {
			g.fenceLocked()
			return errors.Mark(errors.Wrap(err, "renew lease past deadline"), ErrLeaseLost)
		}
		return errors.Mark(errors.Wrap(err, "renew lease"), ErrStoreUnavailable)
	}

	if !ok {
		g.fenceLocked()
		return errors.Wrap(ErrLeaseLost, "lease owned by another instance")
	}

	g.deadline = start.Add(g.ttl)
	return nil
}

// Valid — держим lease и локальный дедлайн не наступил.
// Проверяется перед каждой публикацией.
func (g *Guard) Valid() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.held && g.now().Before(g.deadline)
}

// Deadline возвращает локальный дедлайн lease (нулевой, если не держим).
func (g *Guard) Deadline() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.held {
		return time.Time{}
	}
	return g.deadline
}

// Token возвращает токен текущего эпизода.
func (g *Guard) Token() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.held {
		return ""
	}
	return g.token
}

// InstanceID возвращает идентификатор экземпляра.
func (g *Guard) InstanceID() string {
	return g.instanceID
}

// TTL возвращает время жизни lease.
func (g *Guard) TTL() time.Duration {
	return g.ttl
}

// Release отпускает lease (best effort).
//
// Локальное состояние сбрасывается в любом случае: для корректности
// достаточно истечения ttl, release только ускоряет выборы.
func (g *Guard) Release(ctx context.Context) error {
	g.mu.Lock()
	if !g.held {
		g.mu.Unlock()
		return nil
	}
	token := g.token
	g.held = false
	g.token = ""
	g.deadline = time.Time{}
	g.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	if err := g.store.Release(callCtx, g.key, token); err != nil {
		return errors.Mark(errors.Wrap(err, "release lease"), ErrStoreUnavailable)
	}

	g.logger.Info("lease released", "key", g.key, "instance_id", g.instanceID)
	return nil
}

// Leader возвращает текущий живой lease из хранилища.
func (g *Guard) Leader(ctx context.Context) (*domain.Lease, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	l, err := g.store.Get(callCtx, g.key)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "get lease"), ErrStoreUnavailable)
	}
	return l, nil
}

// fenceLocked сбрасывает лидерство. Вызывается под mu.
func (g *Guard) fenceLocked() {
	if g.held {
		g.logger.Warn("lease fenced",
			"key", g.key,
			"instance_id", g.instanceID,
			"deadline", g.deadline,
		)
	}
	g.held = false
	g.token = ""
	g.deadline = time.Time{}
}
