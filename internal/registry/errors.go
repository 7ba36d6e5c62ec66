package registry

import "github.com/cockroachdb/errors"

var (
	// ErrJobNotFound — job с таким именем не зарегистрирована.
	ErrJobNotFound = errors.New("job not found")

	// ErrDuplicateJob — job с таким именем уже зарегистрирована.
	ErrDuplicateJob = errors.New("duplicate job")

	// ErrInvalidJob — определение job некорректно (например, пустое имя).
	ErrInvalidJob = errors.New("invalid job definition")

	// ErrScheduleRegression — попытка сдвинуть next_due_at назад через Advance.
	ErrScheduleRegression = errors.New("schedule regression")
)
