// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — управление соединением с RabbitMQ (reconnect, confirms, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — queue.Broker: публикация с publisher confirms
//   - consumer.go   — потребление сообщений из очередей
//
// Типы сообщений:
//   - job.due          — work item due job
//
// Exchanges:
//   - metronome.jobs   — work items, routing key = topic
//   - metronome.dlq    — dead letter queue
package mq
