package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/shaiso/Metronome/internal/backoff"
	"github.com/shaiso/Metronome/internal/domain"
	"github.com/shaiso/Metronome/internal/mq"
	"github.com/shaiso/Metronome/internal/queue"
	"github.com/shaiso/Metronome/internal/telemetry"
)

// Default configuration values.
const (
	defaultPrefetch   = 5
	defaultPopTimeout = 5 * time.Second
	deadTopicPrefix   = "dlq."

	// DefaultCompletionTopic — топик отчётов job.done.
	DefaultCompletionTopic = "jobs.done"
)

// ListQueue — очередь на списках (redisstore.Queue).
type ListQueue interface {
	Pop(ctx context.Context, topic string, timeout time.Duration) ([]byte, error)
	Publish(ctx context.Context, topic string, body []byte) error
}

// Worker — эталонный потребитель work items.
//
// Worker stateless и масштабируется горизонтально: несколько
// экземпляров потребляют одни и те же топики.
//
// Источники:
//   - RabbitMQ (Conn) — consumer на очередь каждого топика,
//     ack/nack/DLQ делает mq.Consumer
//   - Redis (List) — BRPOP; повтор — возврат в конец списка,
//     poison — в список "dlq.<topic>"
type Worker struct {
	conn     *mq.Connection
	list     ListQueue
	topics   []string
	registry *Registry
	metrics  *telemetry.WorkerMetrics

	completions     *queue.Client
	completionTopic string

	prefetch   int
	popTimeout time.Duration
	backoff    backoff.Strategy

	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// Config — конфигурация Worker.
type Config struct {
	// Conn — соединение с RabbitMQ (опционально).
	Conn *mq.Connection

	// List — очередь в Redis (опционально). Нужен хотя бы один источник.
	List ListQueue

	// Topics — топики для потребления (default: jobs.due).
	Topics []string

	// Registry — обработчики (default: LogHandler для всех job).
	Registry *Registry

	// Metrics — метрики (default: приватный реестр).
	Metrics *telemetry.WorkerMetrics

	// Prefetch — RabbitMQ prefetch (default: 5).
	Prefetch int

	// PopTimeout — таймаут BRPOP (default: 5s).
	PopTimeout time.Duration

	// Completions — клиент для отчётов job.done (nil — отчёты выключены).
	Completions *queue.Client

	// CompletionTopic — топик отчётов (default: jobs.done).
	// Не должен входить в Topics.
	CompletionTopic string

	Logger *slog.Logger
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	topics := cfg.Topics
	if len(topics) == 0 {
		topics = []string{queue.DefaultTopic}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	registry := cfg.Registry
	if registry == nil {
		registry = NewRegistry(LogHandler(logger))
	}

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = telemetry.NewWorkerMetrics(prometheus.NewRegistry())
	}

	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = defaultPrefetch
	}

	popTimeout := cfg.PopTimeout
	if popTimeout <= 0 {
		popTimeout = defaultPopTimeout
	}

	completionTopic := cfg.CompletionTopic
	if completionTopic == "" {
		completionTopic = DefaultCompletionTopic
	}

	return &Worker{
		conn:            cfg.Conn,
		list:            cfg.List,
		topics:          topics,
		registry:        registry,
		metrics:         metrics,
		completions:     cfg.Completions,
		completionTopic: completionTopic,
		prefetch:        prefetch,
		popTimeout:      popTimeout,
		backoff:         backoff.NewExponential(100*time.Millisecond, 10*time.Second),
		logger:          logger,
	}
}

// Start запускает потребление из всех источников.
func (w *Worker) Start(ctx context.Context) error {
	if w.conn == nil && w.list == nil {
		return errors.New("worker: no source configured")
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	w.logger.Info("starting worker", "topics", w.topics)

	for _, topic := range w.topics {
		if w.conn != nil {
			consumer := mq.NewConsumer(w.conn, w.logger, mq.ConsumerConfig{
				Queue:    topic,
				Handler:  w.handleDelivery,
				Prefetch: w.prefetch,
			})

			w.wg.Add(1)
			go func() {
				defer w.wg.Done()
				if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
					w.logger.Error("consumer error", "queue", topic, "error", err)
				}
			}()
		}

		if w.list != nil {
			w.wg.Add(1)
			go func() {
				defer w.wg.Done()
				w.popLoop(ctx, topic)
			}()
		}
	}

	w.logger.Info("worker started")
	return nil
}

// Stop останавливает Worker и ждёт завершения обработчиков.
func (w *Worker) Stop() {
	w.logger.Info("stopping worker...")

	if w.cancelFunc != nil {
		w.cancelFunc()
	}
	w.wg.Wait()

	w.logger.Info("worker stopped")
}

// handleDelivery — обработчик mq.Consumer.
func (w *Worker) handleDelivery(ctx context.Context, d *mq.Delivery) error {
	if d.Redelivered() {
		w.logger.Debug("redelivered message", "message_id", d.Message.ID)
	}
	return w.HandleMessage(ctx, d.Message)
}

// HandleMessage обрабатывает один конверт.
//
// Нераспознанное сообщение или job без обработчика возвращают
// ошибку с mq.ErrPoisonMessage.
func (w *Worker) HandleMessage(ctx context.Context, msg *queue.Message) (err error) {
	item, err := msg.WorkItem()
	if err != nil {
		w.metrics.Processed.WithLabelValues("", "dead").Inc()
		return errors.Mark(errors.Wrapf(err, "message %s", msg.ID), mq.ErrPoisonMessage)
	}

	logger := telemetry.WithDispatchID(telemetry.WithJob(w.logger, item.JobName), item.DispatchID.String())

	h, err := w.registry.Get(item.JobName)
	if err != nil {
		w.metrics.Processed.WithLabelValues(item.JobName, "dead").Inc()
		return errors.Mark(err, mq.ErrPoisonMessage)
	}

	if !item.ScheduledFor.IsZero() {
		w.metrics.Lag.Observe(time.Since(item.ScheduledFor).Seconds())
	}

	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("handler panic: %v", r)
		}

		w.metrics.HandleDuration.WithLabelValues(item.JobName).Observe(time.Since(started).Seconds())

		switch {
		case err == nil:
			w.metrics.Processed.WithLabelValues(item.JobName, "ok").Inc()
			logger.Debug("work item handled", "duration", time.Since(started))
			w.complete(ctx, item, logger)
		case errors.Is(err, mq.ErrPoisonMessage):
			w.metrics.Processed.WithLabelValues(item.JobName, "dead").Inc()
		default:
			w.metrics.Processed.WithLabelValues(item.JobName, "retry").Inc()
		}
	}()

	return h.Handle(telemetry.WithLogger(ctx, logger), item)
}

// complete публикует отчёт job.done.
// Ошибка не возвращается: повтор выполнил бы обработанный work item ещё раз.
func (w *Worker) complete(ctx context.Context, item *domain.WorkItem, logger *slog.Logger) {
	if w.completions == nil {
		return
	}
	done := item.Complete(time.Now())
	if err := w.completions.Send(ctx, w.completionTopic, queue.MessageTypeJobDone, done); err != nil {
		logger.Warn("failed to publish completion", "topic", w.completionTopic, "error", err)
	}
}

// popLoop потребляет топик из Redis до отмены ctx.
func (w *Worker) popLoop(ctx context.Context, topic string) {
	logger := w.logger.With("topic", topic)
	logger.Info("list consumer started")

	attempt, failures := 0, 0
	for {
		if ctx.Err() != nil {
			return
		}

		body, err := w.list.Pop(ctx, topic, w.popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			attempt++
			delay := w.backoff.Delay(attempt)
			logger.Warn("failed to pop work item", "retry_in", delay, "error", err)

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}
		attempt = 0

		if body == nil {
			continue
		}

		if err := w.handleListItem(ctx, topic, body); err != nil && !errors.Is(err, mq.ErrPoisonMessage) {
			// Пауза, чтобы не крутить одну и ту же неудачную job
			failures++
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.backoff.Delay(failures)):
			}
			continue
		}
		failures = 0
	}
}

// handleListItem обрабатывает сообщение из Redis.
//
// В Redis нет nack: повтор — возврат в очередь, poison — в dlq-список.
func (w *Worker) handleListItem(ctx context.Context, topic string, body []byte) error {
	msg, err := queue.Decode(body)
	if err == nil {
		err = w.HandleMessage(ctx, msg)
	} else {
		err = errors.Mark(err, mq.ErrPoisonMessage)
	}
	if err == nil {
		return nil
	}

	// Возврат не должен зависеть от отмены: сообщение уже снято с очереди
	putCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	target := topic
	if errors.Is(err, mq.ErrPoisonMessage) {
		target = deadTopicPrefix + topic
	}

	w.logger.Error("work item failed",
		"topic", topic,
		"moved_to", target,
		"error", err,
	)

	if pErr := w.list.Publish(putCtx, target, body); pErr != nil {
		w.logger.Error("failed to return work item, message lost",
			"topic", target,
			"error", pErr,
		)
	}
	return err
}
