package registry

import (
	"context"
	"sync"

	"github.com/shaiso/Metronome/internal/domain"
)

// StateStore — durable хранилище состояний расписания.
//
// Новый лидер продолжает с next_due_at, сохранённого прошлым лидером.
// Реализации: redisstore.StateStore, repo.JobStateRepo, MemoryStateStore.
type StateStore interface {
	// LoadStates возвращает все сохранённые состояния по имени job.
	LoadStates(ctx context.Context) (map[string]domain.JobState, error)

	// SaveState сохраняет состояние одной job (upsert).
	SaveState(ctx context.Context, state *domain.JobState) error

	// DeleteState удаляет состояние job. Отсутствие — не ошибка.
	DeleteState(ctx context.Context, name string) error
}

// Compile-time проверка интерфейса.
var _ StateStore = (*MemoryStateStore)(nil)

// MemoryStateStore — in-memory StateStore (тесты и single-node режим).
type MemoryStateStore struct {
	mu     sync.Mutex
	states map[string]domain.JobState
}

// NewMemoryStateStore создаёт пустое хранилище.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{states: make(map[string]domain.JobState)}
}

func (s *MemoryStateStore) LoadStates(_ context.Context) (map[string]domain.JobState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]domain.JobState, len(s.states))
	for name, st := range s.states {
		out[name] = st
	}
	return out, nil
}

func (s *MemoryStateStore) SaveState(_ context.Context, state *domain.JobState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.states[state.JobName] = *state
	return nil
}

func (s *MemoryStateStore) DeleteState(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.states, name)
	return nil
}
