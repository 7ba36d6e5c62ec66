package domain

// SchedulerState — состояние dispatch loop одного экземпляра scheduler.
//
// Жизненный цикл:
//
//	IDLE → ACQUIRING → LEADING → DRAINING → IDLE   (graceful shutdown)
//	                   LEADING → IDLE              (потеря lease)
type SchedulerState string

const (
	// SchedulerStateIdle — экземпляр не участвует в выборах и не диспатчит.
	SchedulerStateIdle SchedulerState = "IDLE"

	// SchedulerStateAcquiring — экземпляр пытается захватить lease.
	SchedulerStateAcquiring SchedulerState = "ACQUIRING"

	// SchedulerStateLeading — экземпляр держит lease и выполняет тики.
	SchedulerStateLeading SchedulerState = "LEADING"

	// SchedulerStateDraining — завершение текущего тика перед освобождением lease.
	SchedulerStateDraining SchedulerState = "DRAINING"
)

// IsLeading возвращает true, если экземпляр имеет право диспатчить.
func (s SchedulerState) IsLeading() bool {
	return s == SchedulerStateLeading
}

// OutcomeStatus — результат последней попытки диспатча job.
type OutcomeStatus string

const (
	// OutcomeNone — job ещё ни разу не диспатчилась.
	OutcomeNone OutcomeStatus = ""

	// OutcomeDispatched — work item опубликован и next_due_at сдвинут.
	OutcomeDispatched OutcomeStatus = "DISPATCHED"

	// OutcomePublishFailed — публикация не удалась, next_due_at не изменён.
	OutcomePublishFailed OutcomeStatus = "PUBLISH_FAILED"

	// OutcomeNotAdvanced — work item опубликован, но состояние не сохранено.
	OutcomeNotAdvanced OutcomeStatus = "NOT_ADVANCED"

	// OutcomeDisabled — job отключена из-за некорректного cadence.
	OutcomeDisabled OutcomeStatus = "DISABLED"
)

// IsFailure возвращает true для неуспешных исходов.
func (s OutcomeStatus) IsFailure() bool {
	switch s {
	case OutcomePublishFailed, OutcomeNotAdvanced, OutcomeDisabled:
		return true
	default:
		return false
	}
}
