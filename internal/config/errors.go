package config

import "github.com/cockroachdb/errors"

// ErrInvalidConfig — конфигурация процесса некорректна, старт невозможен.
var ErrInvalidConfig = errors.New("invalid configuration")
