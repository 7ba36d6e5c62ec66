package mq

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Metronome/internal/queue"
)

// Compile-time проверка интерфейса.
var _ queue.Broker = (*Publisher)(nil)

// Publisher публикует сообщения в exchange metronome.jobs.
//
// Publish возвращает nil только после ack брокера (publisher confirms).
type Publisher struct {
	conn   *Connection
	logger *slog.Logger

	// Публикации сериализуются: confirms приходят в порядке публикации.
	mu sync.Mutex
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Publish публикует тело сообщения с routing key = topic и ждёт подтверждения.
func (p *Publisher) Publish(ctx context.Context, topic string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		dc, err := ch.PublishWithDeferredConfirmWithContext(
			ctx,
			string(ExchangeJobs), // exchange
			topic,                // routing key
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
				Timestamp:    time.Now(),
				Body:         body,
			},
		)
		if err != nil {
			return errors.Wrapf(err, "publish to %s/%s", ExchangeJobs, topic)
		}

		acked, err := dc.WaitContext(ctx)
		if err != nil {
			return errors.Wrapf(err, "wait confirm %s/%s", ExchangeJobs, topic)
		}
		if !acked {
			return errors.Newf("broker nacked message to %s/%s", ExchangeJobs, topic)
		}

		p.logger.Debug("published message",
			"exchange", ExchangeJobs,
			"routing_key", topic,
			"delivery_tag", dc.DeliveryTag,
		)

		return nil
	})
}
