package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/shaiso/Metronome/internal/domain"
)

// Default configuration values.
const (
	DefaultTopic          = "jobs.due"
	defaultPublishTimeout = 5 * time.Second
)

// ClientConfig — конфигурация Client.
type ClientConfig struct {
	Broker Broker

	// DefaultTopic — топик для job без собственного (default: "jobs.due").
	DefaultTopic string

	// PublishTimeout — верхняя граница одной публикации (default: 5s).
	PublishTimeout time.Duration

	// Now — источник времени (для тестов).
	Now func() time.Time

	Logger *slog.Logger
}

// Client публикует work items через Broker.
type Client struct {
	broker         Broker
	defaultTopic   string
	publishTimeout time.Duration
	now            func() time.Time
	logger         *slog.Logger
}

// NewClient создаёт Client.
func NewClient(cfg ClientConfig) *Client {
	topic := cfg.DefaultTopic
	if topic == "" {
		topic = DefaultTopic
	}

	timeout := cfg.PublishTimeout
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		broker:         cfg.Broker,
		defaultTopic:   topic,
		publishTimeout: timeout,
		now:            now,
		logger:         logger,
	}
}

// DefaultTopic возвращает топик по умолчанию.
func (c *Client) DefaultTopic() string {
	return c.defaultTopic
}

// Enqueue публикует work item и ждёт подтверждения брокера.
//
// Дедлайн — меньший из дедлайна ctx и now+PublishTimeout.
// Любая ошибка помечена ErrPublishFailed.
func (c *Client) Enqueue(ctx context.Context, item *domain.WorkItem) error {
	if item.Topic == "" {
		item.Topic = c.defaultTopic
	}

	msg, err := NewMessage(item.DispatchID.String(), MessageTypeJobDue, item, c.now())
	if err != nil {
		return errors.Mark(err, ErrPublishFailed)
	}

	if err := c.publish(ctx, item.Topic, msg); err != nil {
		return errors.Wrapf(err, "enqueue %q", item.JobName)
	}

	c.logger.Debug("work item enqueued",
		"job", item.JobName,
		"dispatch_id", item.DispatchID,
		"topic", item.Topic,
	)
	return nil
}

// Send публикует произвольное сообщение (worker: отчёты job.done).
func (c *Client) Send(ctx context.Context, topic string, msgType MessageType, payload any) error {
	if topic == "" {
		topic = c.defaultTopic
	}

	msg, err := NewMessage(uuid.NewString(), msgType, payload, c.now())
	if err != nil {
		return errors.Mark(err, ErrPublishFailed)
	}
	return c.publish(ctx, topic, msg)
}

func (c *Client) publish(ctx context.Context, topic string, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "marshal message"), ErrPublishFailed)
	}

	pubCtx, cancel := context.WithTimeout(ctx, c.publishTimeout)
	defer cancel()

	if err := c.broker.Publish(pubCtx, topic, body); err != nil {
		return errors.Mark(errors.Wrapf(err, "publish to %s", topic), ErrPublishFailed)
	}

	// Брокер мог вернуть nil, проигнорировав отменённый ctx.
	if err := pubCtx.Err(); err != nil {
		return errors.Mark(errors.Wrapf(err, "publish to %s", topic), ErrPublishFailed)
	}
	return nil
}
