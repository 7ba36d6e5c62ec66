package worker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/shaiso/Metronome/internal/domain"
)

// Handler обрабатывает один work item.
//
// Доставка at-least-once: один и тот же item может прийти повторно
// (redelivery, повторный диспатч после смены лидера). Обработчик
// должен быть идемпотентен по DispatchID.
//
// Ошибка, помеченная mq.ErrPoisonMessage, уводит сообщение в DLQ
// без повтора; остальные ошибки приводят к повторной доставке.
type Handler interface {
	Handle(ctx context.Context, item *domain.WorkItem) error
}

// HandlerFunc — адаптер функции к Handler.
type HandlerFunc func(ctx context.Context, item *domain.WorkItem) error

// Handle вызывает f.
func (f HandlerFunc) Handle(ctx context.Context, item *domain.WorkItem) error {
	return f(ctx, item)
}

// Registry — обработчики по имени job.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	fallback Handler
}

// NewRegistry создаёт реестр. fallback вызывается для job без
// своего обработчика; nil — такие job завершаются ErrNoHandler.
func NewRegistry(fallback Handler) *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
		fallback: fallback,
	}
}

// Register задаёт обработчик для job.
func (r *Registry) Register(jobName string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[jobName] = h
}

// Get возвращает обработчик для job.
func (r *Registry) Get(jobName string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if h, ok := r.handlers[jobName]; ok {
		return h, nil
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, errors.Wrapf(ErrNoHandler, "job %q", jobName)
}

// LogHandler — обработчик по умолчанию: пишет item в лог.
func LogHandler(logger *slog.Logger) Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return HandlerFunc(func(_ context.Context, item *domain.WorkItem) error {
		logger.Info("work item received",
			"job", item.JobName,
			"dispatch_id", item.DispatchID,
			"scheduled_for", item.ScheduledFor,
			"topic", item.Topic,
			"payload_bytes", len(item.Payload),
		)
		return nil
	})
}
