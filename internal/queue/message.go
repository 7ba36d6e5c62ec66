package queue

import (
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/shaiso/Metronome/internal/domain"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	// MessageTypeJobDue — work item due job. Потребитель: metronome-worker.
	MessageTypeJobDue MessageType = "job.due"

	// MessageTypeJobDone — отчёт worker'а об обработанном work item.
	MessageTypeJobDone MessageType = "job.done"
)

// Message — конверт сообщения.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	// Для job.due совпадает с DispatchID work item.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload json.RawMessage `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage собирает конверт с JSON payload.
func NewMessage(id string, msgType MessageType, payload any, ts time.Time) (*Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrapf(err, "marshal %s payload", msgType)
	}
	return &Message{
		ID:        id,
		Type:      msgType,
		Payload:   raw,
		Timestamp: ts,
	}, nil
}

// Decode разбирает конверт.
func Decode(body []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, errors.Wrap(err, "unmarshal message")
	}
	if msg.Type == "" {
		return nil, errors.New("message type is empty")
	}
	return &msg, nil
}

// WorkItem извлекает work item из сообщения job.due.
func (m *Message) WorkItem() (*domain.WorkItem, error) {
	if m.Type != MessageTypeJobDue {
		return nil, errors.Newf("unexpected message type %q", m.Type)
	}

	var item domain.WorkItem
	if err := json.Unmarshal(m.Payload, &item); err != nil {
		return nil, errors.Wrap(err, "unmarshal work item")
	}
	if item.JobName == "" {
		return nil, errors.New("work item has no job name")
	}
	return &item, nil
}
