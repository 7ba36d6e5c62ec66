// Package registry хранит определения периодических job и их состояние.
//
// Структура:
//   - registry.go — Registry: регистрация, выбор due job, advance, hot reload
//   - store.go    — контракт StateStore и in-memory реализация
//   - errors.go   — sentinel ошибки
//
// Состояние меняет только dispatch loop лидера. Advance пишет в StateStore
// до изменения памяти, поэтому после сбоя новый лидер никогда не увидит
// next_due_at, который не был сохранён.
package registry
