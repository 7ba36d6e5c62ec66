package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DefaultTimezone — часовой пояс для cron-выражений по умолчанию.
const DefaultTimezone = "UTC"

// JobDefinition — описание периодической job.
//
// Создаётся на этапе конфигурации. После регистрации меняются только
// Enabled, Cadence, Timezone, Topic и Payload (через перезагрузку конфига).
type JobDefinition struct {
	// Name — уникальное имя job, ключ реестра.
	Name string `json:"name"`

	// Cadence — выражение расписания.
	// Примеры:
	//   "10s", "@every 1m"  — фиксированный интервал
	//   "*/5 * * * *"       — cron (5 полей)
	//   "@hourly"           — дескриптор
	Cadence string `json:"cadence"`

	// Timezone — часовой пояс для cron-выражений. По умолчанию: "UTC".
	Timezone string `json:"timezone,omitempty"`

	// Topic — топик очереди для work items.
	// Пустой — используется топик по умолчанию из конфига.
	Topic string `json:"topic,omitempty"`

	// Payload — непрозрачная полезная нагрузка, передаётся в каждый work item.
	Payload json.RawMessage `json:"payload,omitempty"`

	// Enabled — флаг активности. Выключенная job никогда не попадает в due.
	Enabled bool `json:"enabled"`
}

// CadenceKey — отпечаток расписания: выражение и timezone.
func (d *JobDefinition) CadenceKey() string {
	tz := d.Timezone
	if tz == "" {
		tz = DefaultTimezone
	}
	return d.Cadence + "@" + tz
}

// JobHandle — результат регистрации job.
type JobHandle struct {
	Name string
}

// JobState — состояние расписания одной job.
//
// Меняется только dispatch loop'ом лидера (и явным reschedule администратора).
// NextDueAt никогда не уменьшается, кроме как через явный reschedule.
type JobState struct {
	// JobName — ссылка на JobDefinition.
	JobName string `json:"job_name"`

	// NextDueAt — время следующего запуска.
	NextDueAt time.Time `json:"next_due_at"`

	// LastRunAt — время последнего успешного диспатча.
	LastRunAt *time.Time `json:"last_run_at,omitempty"`

	// LastDispatchID — correlation id последнего work item.
	LastDispatchID *uuid.UUID `json:"last_dispatch_id,omitempty"`

	// LastOutcome — исход последней попытки.
	LastOutcome OutcomeStatus `json:"last_outcome,omitempty"`

	// LastError — текст последней ошибки (пусто после успеха).
	LastError string `json:"last_error,omitempty"`

	// LastAttemptAt — время последней попытки (успешной или нет).
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`

	// DisabledReason — почему job отключена системой (битый cadence).
	DisabledReason string `json:"disabled_reason,omitempty"`

	// Cadence — CadenceKey определения, под которым вычислен NextDueAt.
	// Пусто у состояний, сохранённых до появления поля.
	Cadence string `json:"cadence,omitempty"`
}

// IsDue проверяет, пора ли запускать.
func (s *JobState) IsDue(now time.Time) bool {
	return !s.NextDueAt.After(now)
}

// RecordDispatch записывает успешный диспатч и новое время запуска.
func (s *JobState) RecordDispatch(dispatchID uuid.UUID, nextDue, at time.Time) {
	s.LastRunAt = &at
	s.LastAttemptAt = &at
	s.LastDispatchID = &dispatchID
	s.NextDueAt = nextDue
	s.LastOutcome = OutcomeDispatched
	s.LastError = ""
}

// RecordFailure записывает неудачную попытку, NextDueAt не трогает.
func (s *JobState) RecordFailure(status OutcomeStatus, err error, at time.Time) {
	s.LastAttemptAt = &at
	s.LastOutcome = status
	if err != nil {
		s.LastError = err.Error()
	}
}
