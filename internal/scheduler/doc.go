// Package scheduler реализует dispatch loop.
//
// Ровно один экземпляр (держатель lease) периодически выбирает due job
// из реестра, публикует work items в очередь и сдвигает next_due_at.
//
// Структура:
//   - scheduler.go — Scheduler, Tick и обработка одной job
//   - run.go       — state machine: выборы, эпизод лидерства, продление, drain
//   - status.go    — Status для административного API
//
// Использование:
//
//	sched := scheduler.New(scheduler.Config{
//	    Registry: reg,
//	    Guard:    guard,
//	    Queue:    queueClient,
//	    Metrics:  metrics,
//	    Logger:   logger,
//	})
//
//	// Блокируется до отмены ctx, на выходе отпускает lease
//	if err := sched.Run(ctx); err != nil {
//	    logger.Error("scheduler failed", "error", err)
//	}
//
// Пропущенные срабатывания (лидер упал или тик опоздал) схлопываются:
// одна публикация на job за тик, next_due_at — первое срабатывание
// строго после времени тика.
package scheduler
