package lease

import (
	"context"
	"sync"
	"time"

	"github.com/shaiso/Metronome/internal/domain"
)

// Compile-time проверка интерфейса.
var _ Store = (*MemoryStore)(nil)

// MemoryStore — in-memory реализация Store.
//
// Атомарность обеспечивается одним mutex. Подходит для тестов и
// single-node режима (один процесс, несколько Guard).
type MemoryStore struct {
	mu     sync.Mutex
	leases map[string]domain.Lease
	now    func() time.Time
}

// MemoryOption настраивает MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

// NewMemoryStore создаёт пустое хранилище.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		leases: make(map[string]domain.Lease),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Acquire захватывает lease, если живого lease нет.
func (s *MemoryStore) Acquire(_ context.Context, key, token string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if l, ok := s.leases[key]; ok && l.IsLive(now) {
		return false, nil
	}

	s.leases[key] = domain.Lease{Key: key, OwnerToken: token, ExpiresAt: now.Add(ttl)}
	return true, nil
}

// Renew продлевает lease владельца.
func (s *MemoryStore) Renew(_ context.Context, key, token string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	l, ok := s.leases[key]
	if !ok || !l.IsLive(now) || l.OwnerToken != token {
		return false, nil
	}

	l.ExpiresAt = now.Add(ttl)
	s.leases[key] = l
	return true, nil
}

// Release удаляет lease владельца.
func (s *MemoryStore) Release(_ context.Context, key, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.leases[key]; ok && l.OwnerToken == token {
		delete(s.leases, key)
	}
	return nil
}

// Get возвращает живой lease.
func (s *MemoryStore) Get(_ context.Context, key string) (*domain.Lease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.leases[key]
	if !ok || !l.IsLive(s.now()) {
		return nil, nil
	}
	return &l, nil
}
