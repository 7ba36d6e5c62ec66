// Package lease реализует leader election поверх хранилища с TTL-локами.
//
// Структура:
//   - store.go  — контракт хранилища (acquire / renew / release / get)
//   - memory.go — in-memory хранилище (тесты и single-node режим)
//   - guard.go  — Guard: токены владельца, продление, fencing
//
// Реализации хранилища для кластера:
//   - redisstore.LeaseStore — SET NX PX + Lua compare-and-extend / compare-and-delete
//   - repo.LeaseRepo        — таблица scheduler_leases в Postgres с epoch
//
// Главное правило безопасности: экземпляр не диспатчит после того, как
// потерял уверенность во владении lease. Guard ведёт локальный дедлайн
// (начало попытки + ttl), который никогда не позже истечения в хранилище.
// После дедлайна Guard считает lease потерянным и не доверяет
// последующим ответам хранилища — новый лидер уже может работать.
//
// Использование:
//
//	guard := lease.NewGuard(store, lease.GuardConfig{
//	    Key:        "metronome:lock",
//	    InstanceID: "scheduler-1",
//	    TTL:        15 * time.Second,
//	})
//
//	ok, err := guard.TryAcquire(ctx)
//	...
//	if err := guard.Renew(ctx); errors.Is(err, lease.ErrLeaseLost) {
//	    // немедленно прекращаем диспатч
//	}
package lease
