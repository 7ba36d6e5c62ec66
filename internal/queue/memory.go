package queue

import (
	"context"
	"sync"
)

// Compile-time проверка интерфейса.
var _ Broker = (*MemoryBroker)(nil)

// MemoryBroker — in-memory брокер.
//
// Сообщения складываются по топикам. Fail позволяет тестам
// имитировать отказ брокера для отдельных сообщений.
type MemoryBroker struct {
	mu       sync.Mutex
	messages map[string][][]byte

	// Fail — если задан и вернул ошибку, сообщение не сохраняется.
	Fail func(topic string, body []byte) error
}

// NewMemoryBroker создаёт пустой брокер.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{messages: make(map[string][][]byte)}
}

func (b *MemoryBroker) Publish(ctx context.Context, topic string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.Fail != nil {
		if err := b.Fail(topic, body); err != nil {
			return err
		}
	}

	b.messages[topic] = append(b.messages[topic], append([]byte(nil), body...))
	return nil
}

// Messages возвращает копию сообщений топика в порядке публикации.
func (b *MemoryBroker) Messages(topic string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([][]byte, len(b.messages[topic]))
	copy(out, b.messages[topic])
	return out
}

// Len возвращает число сообщений во всех топиках.
func (b *MemoryBroker) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for _, msgs := range b.messages {
		n += len(msgs)
	}
	return n
}
