package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/shaiso/Metronome/internal/domain"
	"github.com/shaiso/Metronome/internal/mq"
)

const defaultWebhookTimeout = 30 * time.Second

// WebhookConfig — конфигурация WebhookHandler.
type WebhookConfig struct {
	// URL — адрес, на который отправляется work item (обязательно).
	URL string

	// Method — HTTP-метод. Default: POST
	Method string

	// Headers — дополнительные заголовки.
	Headers map[string]string

	// Timeout — таймаут запроса. Default: 30s
	Timeout time.Duration

	// Client — HTTP-клиент (default: http.Client без таймаута, таймаут через ctx).
	Client *http.Client
}

// WebhookHandler отправляет work item JSON-ом на HTTP endpoint.
//
// Заголовки запроса:
//   - Content-Type: application/json
//   - Idempotency-Key: dispatch id
//   - X-Metronome-Job: имя job
//
// Ответ 5xx, 429 и сетевые ошибки — повтор. Остальные 4xx — DLQ:
// повторная отправка того же тела ничего не изменит.
type WebhookHandler struct {
	url     string
	method  string
	headers map[string]string
	timeout time.Duration
	client  *http.Client
}

var _ Handler = (*WebhookHandler)(nil)

// NewWebhookHandler создаёт WebhookHandler.
func NewWebhookHandler(cfg WebhookConfig) (*WebhookHandler, error) {
	if cfg.URL == "" {
		return nil, errors.Wrap(ErrWebhookFailed, "url is required")
	}

	method := cfg.Method
	if method == "" {
		method = http.MethodPost
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}

	return &WebhookHandler{
		url:     cfg.URL,
		method:  method,
		headers: cfg.Headers,
		timeout: timeout,
		client:  client,
	}, nil
}

// Handle выполняет HTTP-запрос.
func (h *WebhookHandler) Handle(ctx context.Context, item *domain.WorkItem) error {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	body, err := json.Marshal(item)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "marshal work item"), mq.ErrPoisonMessage)
	}

	req, err := http.NewRequestWithContext(ctx, h.method, h.url, bytes.NewReader(body))
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "create request to %s", h.url), mq.ErrPoisonMessage)
	}

	for key, val := range h.headers {
		req.Header.Set(key, val)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", item.DispatchID.String())
	req.Header.Set("X-Metronome-Job", item.JobName)

	resp, err := h.client.Do(req)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "%s %s", h.method, h.url), ErrWebhookFailed)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 400 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	err = errors.Mark(
		errors.Newf("%s %s: HTTP %d: %s", h.method, h.url, resp.StatusCode, truncate(string(respBody), 200)),
		ErrWebhookFailed,
	)

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return err
	}
	return errors.Mark(err, mq.ErrPoisonMessage)
}

// truncate обрезает строку до указанной длины.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
