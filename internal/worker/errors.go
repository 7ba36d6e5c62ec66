package worker

import "github.com/cockroachdb/errors"

// Ошибки воркера.
var (
	// ErrNoHandler — для job нет обработчика и обработчика по умолчанию.
	ErrNoHandler = errors.New("no handler for job")

	// ErrWebhookFailed — webhook вернул ошибку или недоступен.
	ErrWebhookFailed = errors.New("webhook failed")
)
