// Package queue — клиент очереди задач.
//
// Структура:
//   - broker.go  — контракт брокера (publish с подтверждением)
//   - message.go — конверт сообщения {id, type, payload, timestamp}
//   - client.go  — Client: Enqueue work items, Send произвольных сообщений
//   - memory.go  — in-memory брокер (тесты и single-node режим)
//
// Брокеры для кластера:
//   - mq.Publisher       — RabbitMQ с publisher confirms
//   - redisstore.Queue   — Redis list (LPUSH metronome:queue:<topic>)
//
// Доставка at-least-once: work item может быть опубликован повторно,
// если лидер упал между публикацией и сохранением next_due_at.
// Обработчики обязаны быть идемпотентны по DispatchID.
package queue
