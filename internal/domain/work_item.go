package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// WorkItem — единица работы, которую dispatch loop публикует в очередь.
//
// Доставка at-least-once; идемпотентность — ответственность обработчика.
type WorkItem struct {
	// JobName — имя job, которая породила work item.
	JobName string `json:"job_name"`

	// DispatchID — уникальный id диспатча (correlation id).
	DispatchID uuid.UUID `json:"dispatch_id"`

	// Topic — топик очереди.
	Topic string `json:"topic"`

	// Payload — полезная нагрузка из JobDefinition.
	Payload json.RawMessage `json:"payload,omitempty"`

	// ScheduledFor — next_due_at, на который пришёлся диспатч.
	ScheduledFor time.Time `json:"scheduled_for"`

	// EnqueuedAt — время публикации.
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// NewWorkItem создаёт work item для due job.
func NewWorkItem(def *JobDefinition, state *JobState, topic string, now time.Time) *WorkItem {
	if def.Topic != "" {
		topic = def.Topic
	}
	return &WorkItem{
		JobName:      def.Name,
		DispatchID:   uuid.New(),
		Topic:        topic,
		Payload:      def.Payload,
		ScheduledFor: state.NextDueAt,
		EnqueuedAt:   now,
	}
}

// Completion — отчёт worker'а об успешной обработке work item.
type Completion struct {
	JobName      string    `json:"job_name"`
	DispatchID   uuid.UUID `json:"dispatch_id"`
	ScheduledFor time.Time `json:"scheduled_for"`
	CompletedAt  time.Time `json:"completed_at"`
}

// Complete создаёт отчёт об обработке.
func (w *WorkItem) Complete(at time.Time) Completion {
	return Completion{
		JobName:      w.JobName,
		DispatchID:   w.DispatchID,
		ScheduledFor: w.ScheduledFor,
		CompletedAt:  at.UTC(),
	}
}
