package queue

import "context"

// Broker — транспорт очереди.
//
// Publish возвращает nil только после подтверждения брокером.
// Реализация обязана уважать дедлайн ctx: незавершённая публикация
// после отмены ctx считается неудачной.
type Broker interface {
	Publish(ctx context.Context, topic string, body []byte) error
}

// BrokerFunc адаптирует функцию к Broker.
type BrokerFunc func(ctx context.Context, topic string, body []byte) error

func (f BrokerFunc) Publish(ctx context.Context, topic string, body []byte) error {
	return f(ctx, topic, body)
}
