package repo

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Metronome/internal/domain"
	"github.com/shaiso/Metronome/internal/registry"
)

// Compile-time проверка интерфейса.
var _ registry.StateStore = (*JobStateRepo)(nil)

// JobStateRepo — репозиторий состояний расписания (таблица job_states).
type JobStateRepo struct {
	pool *pgxpool.Pool
}

// NewJobStateRepo создаёт новый JobStateRepo.
func NewJobStateRepo(pool *pgxpool.Pool) *JobStateRepo {
	return &JobStateRepo{pool: pool}
}

// LoadStates возвращает состояния всех job.
func (r *JobStateRepo) LoadStates(ctx context.Context) (map[string]domain.JobState, error) {
	query := `
		SELECT job_name, next_due_at, last_run_at, last_dispatch_id, last_outcome,
		       last_error, last_attempt_at, disabled_reason, cadence
		FROM job_states
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "list job states")
	}
	defer rows.Close()

	states := make(map[string]domain.JobState)
	for rows.Next() {
		st, err := scanJobState(rows)
		if err != nil {
			return nil, err
		}
		states[st.JobName] = *st
	}
	return states, rows.Err()
}

// Get возвращает состояние одной job.
func (r *JobStateRepo) Get(ctx context.Context, name string) (*domain.JobState, error) {
	query := `
		SELECT job_name, next_due_at, last_run_at, last_dispatch_id, last_outcome,
		       last_error, last_attempt_at, disabled_reason, cadence
		FROM job_states
		WHERE job_name = $1
	`
	st, err := scanJobState(r.pool.QueryRow(ctx, query, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(ErrNotFound, "job state %q", name)
	}
	return st, err
}

// SaveState сохраняет состояние (upsert).
func (r *JobStateRepo) SaveState(ctx context.Context, st *domain.JobState) error {
	query := `
		INSERT INTO job_states (job_name, next_due_at, last_run_at, last_dispatch_id,
		                        last_outcome, last_error, last_attempt_at, disabled_reason, cadence, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (job_name) DO UPDATE
		SET next_due_at      = EXCLUDED.next_due_at,
		    last_run_at      = EXCLUDED.last_run_at,
		    last_dispatch_id = EXCLUDED.last_dispatch_id,
		    last_outcome     = EXCLUDED.last_outcome,
		    last_error       = EXCLUDED.last_error,
		    last_attempt_at  = EXCLUDED.last_attempt_at,
		    disabled_reason  = EXCLUDED.disabled_reason,
		    cadence          = EXCLUDED.cadence,
		    updated_at       = now()
	`
	_, err := r.pool.Exec(ctx, query,
		st.JobName,
		st.NextDueAt,
		st.LastRunAt,
		nullUUID(st.LastDispatchID),
		string(st.LastOutcome),
		st.LastError,
		st.LastAttemptAt,
		st.DisabledReason,
		st.Cadence,
	)
	if err != nil {
		return errors.Wrapf(err, "save job state %q", st.JobName)
	}
	return nil
}

// DeleteState удаляет состояние job. Отсутствие строки — не ошибка.
func (r *JobStateRepo) DeleteState(ctx context.Context, name string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM job_states WHERE job_name = $1`, name); err != nil {
		return errors.Wrapf(err, "delete job state %q", name)
	}
	return nil
}

func scanJobState(row pgx.Row) (*domain.JobState, error) {
	var st domain.JobState
	var outcome string

	err := row.Scan(
		&st.JobName,
		&st.NextDueAt,
		&st.LastRunAt,
		&st.LastDispatchID,
		&outcome,
		&st.LastError,
		&st.LastAttemptAt,
		&st.DisabledReason,
		&st.Cadence,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, errors.Wrap(err, "scan job state")
	}

	st.LastOutcome = domain.OutcomeStatus(outcome)
	st.NextDueAt = st.NextDueAt.UTC()
	return &st, nil
}
