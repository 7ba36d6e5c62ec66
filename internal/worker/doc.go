// Package worker — эталонный потребитель work items.
//
// # Обзор
//
// Scheduler только публикует work items; выполнение — забота
// потребителей. Worker показывает, как их писать:
//
//   - Получение work items из RabbitMQ (очередь на каждый топик)
//     или из Redis-списков (BRPOP)
//   - Маршрутизация по имени job в зарегистрированный Handler
//   - По умолчанию — LogHandler (структурный лог)
//   - WebhookHandler — отправка work item на HTTP endpoint
//
// # Использование
//
//	reg := worker.NewRegistry(worker.LogHandler(logger))
//	reg.Register("cleanup", worker.HandlerFunc(cleanup))
//
//	w := worker.New(worker.Config{
//	    Conn:     mqConn,
//	    Topics:   []string{"jobs.due"},
//	    Registry: reg,
//	    Logger:   logger,
//	})
//	if err := w.Start(ctx); err != nil {
//	    return err
//	}
//	defer w.Stop()
//
// # Ошибки
//
//   - nil — ack
//   - ошибка — повторная доставка (nack с requeue / возврат в список)
//   - ошибка с mq.ErrPoisonMessage — DLQ без повтора: нераспознанное
//     сообщение, job без обработчика, 4xx от webhook
//
// Доставка at-least-once: обработчики идемпотентны по DispatchID.
package worker
