// Package redisstore — реализации хранилищ поверх Redis.
//
// Структура:
//   - client.go      — подключение по URL, ping
//   - lease_store.go — lease.Store: SET NX PX, Lua compare-and-pexpire / compare-and-del
//   - state_store.go — registry.StateStore: hash на job + set имён
//   - queue.go       — queue.Broker: LPUSH в list топика, BRPOP для воркера
//   - keys.go        — соглашения об именах ключей
//
// Все типы принимают redis.Cmdable; жизненным циклом клиента
// владеет вызывающий.
//
//	client, err := redisstore.NewClient(ctx, "redis://localhost:6379/0")
//	leases := redisstore.NewLeaseStore(client)
//	states := redisstore.NewStateStore(client)
package redisstore
