package redisstore

import (
	"context"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"

	"github.com/shaiso/Metronome/internal/queue"
)

// Compile-time проверка интерфейса.
var _ queue.Broker = (*Queue)(nil)

// Queue — queue.Broker поверх Redis list.
//
// Publish — LPUSH, ответ Redis и есть подтверждение.
// Pop — BRPOP, порядок FIFO.
type Queue struct {
	client redis.Cmdable
	logger *slog.Logger
}

// NewQueue создаёт Queue.
func NewQueue(client redis.Cmdable, opts ...Option) *Queue {
	o := applyOptions(opts)
	return &Queue{client: client, logger: o.logger}
}

// Publish кладёт сообщение в list топика.
func (q *Queue) Publish(ctx context.Context, topic string, body []byte) error {
	if err := q.client.LPush(ctx, queueKey(topic), body).Err(); err != nil {
		return errors.Wrapf(err, "redis: publish to %s", topic)
	}
	return nil
}

// Pop забирает самое старое сообщение топика, блокируясь до timeout.
// Возвращает nil, nil, если сообщений не было.
func (q *Queue) Pop(ctx context.Context, topic string, timeout time.Duration) ([]byte, error) {
	res, err := q.client.BRPop(ctx, timeout, queueKey(topic)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "redis: pop from %s", topic)
	}
	// [key, value]
	if len(res) != 2 {
		return nil, errors.Newf("redis: unexpected BRPOP reply of %d elements", len(res))
	}
	return []byte(res[1]), nil
}

// Len возвращает длину очереди топика.
func (q *Queue) Len(ctx context.Context, topic string) (int64, error) {
	n, err := q.client.LLen(ctx, queueKey(topic)).Result()
	if err != nil {
		return 0, errors.Wrapf(err, "redis: len of %s", topic)
	}
	return n, nil
}
