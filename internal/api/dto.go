package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Metronome/internal/domain"
	"github.com/shaiso/Metronome/internal/registry"
)

// Job DTOs

// JobResponse — job с состоянием расписания.
type JobResponse struct {
	Name     string          `json:"name"`
	Cadence  string          `json:"cadence"`
	Timezone string          `json:"timezone,omitempty"`
	Topic    string          `json:"topic,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Enabled  bool            `json:"enabled"`

	NextDueAt      time.Time            `json:"next_due_at"`
	LastRunAt      *time.Time           `json:"last_run_at,omitempty"`
	LastAttemptAt  *time.Time           `json:"last_attempt_at,omitempty"`
	LastDispatchID *uuid.UUID           `json:"last_dispatch_id,omitempty"`
	LastOutcome    domain.OutcomeStatus `json:"last_outcome,omitempty"`
	LastError      string               `json:"last_error,omitempty"`
	DisabledReason string               `json:"disabled_reason,omitempty"`
}

// JobFromRegistry конвертирует registry.Job в JobResponse.
func JobFromRegistry(j registry.Job) JobResponse {
	return JobResponse{
		Name:           j.Definition.Name,
		Cadence:        j.Definition.Cadence,
		Timezone:       j.Definition.Timezone,
		Topic:          j.Definition.Topic,
		Payload:        j.Definition.Payload,
		Enabled:        j.Definition.Enabled,
		NextDueAt:      j.State.NextDueAt,
		LastRunAt:      j.State.LastRunAt,
		LastAttemptAt:  j.State.LastAttemptAt,
		LastDispatchID: j.State.LastDispatchID,
		LastOutcome:    j.State.LastOutcome,
		LastError:      j.State.LastError,
		DisabledReason: j.State.DisabledReason,
	}
}

// Health DTOs

// HealthResponse — результат /healthz.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}
