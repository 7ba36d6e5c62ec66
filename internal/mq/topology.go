package mq

import (
	"context"
	"slices"

	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeJobs Exchange = "metronome.jobs"
	ExchangeDLQ  Exchange = "metronome.dlq"
)

// Queues — имена очередей.
const (
	QueueJobsDue Queue = "jobs.due"
	QueueDLQJobs Queue = "dlq.jobs"
)

// Routing keys.
const (
	RoutingKeyDLQJobs RoutingKey = "jobs"
)

// binding — очередь топика: имя очереди совпадает с routing key.
type binding struct {
	queue      Queue
	routingKey RoutingKey
	exchange   Exchange
	args       amqp.Table
}

// topicBindings строит bindings для топиков work items.
// jobs.due объявляется всегда, повторы отбрасываются.
func topicBindings(topics []string) []binding {
	dlqArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQJobs),
	}

	all := append([]string{string(QueueJobsDue)}, topics...)
	slices.Sort(all)
	all = slices.Compact(all)

	bindings := make([]binding, 0, len(all)+1)
	for _, t := range all {
		if t == "" {
			continue
		}
		bindings = append(bindings, binding{
			queue:      Queue(t),
			routingKey: RoutingKey(t),
			exchange:   ExchangeJobs,
			args:       dlqArgs,
		})
	}

	// dlq.jobs — сама DLQ очередь
	bindings = append(bindings, binding{
		queue:      QueueDLQJobs,
		routingKey: RoutingKeyDLQJobs,
		exchange:   ExchangeDLQ,
	})
	return bindings
}

// SetupTopology объявляет exchanges, очереди топиков и DLQ.
func SetupTopology(ctx context.Context, conn *Connection, topics []string) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		// 1. Создаём exchanges
		for _, ex := range []Exchange{ExchangeJobs, ExchangeDLQ} {
			err := ch.ExchangeDeclare(
				string(ex), // name
				"direct",   // type
				true,       // durable
				false,      // auto-deleted
				false,      // internal
				false,      // no-wait
				nil,        // arguments
			)
			if err != nil {
				return errors.Wrapf(err, "declare exchange %s", ex)
			}
		}

		// 2. Создаём queues и привязываем к exchanges
		for _, b := range topicBindings(topics) {
			_, err := ch.QueueDeclare(
				string(b.queue), // name
				true,            // durable
				false,           // delete when unused
				false,           // exclusive
				false,           // no-wait
				b.args,          // arguments
			)
			if err != nil {
				return errors.Wrapf(err, "declare queue %s", b.queue)
			}

			err = ch.QueueBind(
				string(b.queue),      // queue name
				string(b.routingKey), // routing key
				string(b.exchange),   // exchange
				false,                // no-wait
				nil,                  // arguments
			)
			if err != nil {
				return errors.Wrapf(err, "bind queue %s to %s", b.queue, b.exchange)
			}
		}

		return nil
	})
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Metronome RabbitMQ Topology:

    metronome.jobs (direct)
    └── jobs.due [routing: jobs.due]        (+ очередь на каждый topic job)
            Consumer: metronome-worker
            DLQ: dlq.jobs

    metronome.dlq (direct)
    └── dlq.jobs [routing: jobs]
            Manual processing
  `
}
