// Package config загружает конфигурацию процессов Metronome.
//
// Структура:
//   - config.go   — Config и его секции
//   - defaults.go — значения по умолчанию
//   - load.go     — Load: файл (YAML/TOML/JSON) + переменные окружения METRONOME_*
//   - validate.go — Validate и JobDefinitions
//   - watcher.go  — Watcher: перезагрузка job при изменении файла
//
// Приоритет (от низшего к высшему): defaults < файл < окружение.
// Ключ "lease.ttl" переопределяется переменной METRONOME_LEASE_TTL.
//
// Использование:
//
//	cfg, err := config.Load(path)
//	if err != nil {
//	    return err
//	}
//	if err := cfg.Validate(); err != nil {
//	    return err // errors.Is(err, config.ErrInvalidConfig)
//	}
//	defs, err := cfg.JobDefinitions()
package config
