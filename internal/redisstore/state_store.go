package redisstore

import (
	"context"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/shaiso/Metronome/internal/domain"
	"github.com/shaiso/Metronome/internal/registry"
)

// Compile-time проверка интерфейса.
var _ registry.StateStore = (*StateStore)(nil)

// StateStore — registry.StateStore поверх Redis.
//
// Каждая job — hash metronome:state:{name}; имена job — set metronome:jobs.
type StateStore struct {
	client redis.Cmdable
	logger *slog.Logger
}

// NewStateStore создаёт StateStore.
func NewStateStore(client redis.Cmdable, opts ...Option) *StateStore {
	o := applyOptions(opts)
	return &StateStore{client: client, logger: o.logger}
}

// LoadStates читает состояния всех job.
func (s *StateStore) LoadStates(ctx context.Context) (map[string]domain.JobState, error) {
	names, err := s.client.SMembers(ctx, jobsKey).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis: list job states")
	}

	states := make(map[string]domain.JobState, len(names))
	for _, name := range names {
		vals, err := s.client.HGetAll(ctx, stateKey(name)).Result()
		if err != nil {
			return nil, errors.Wrapf(err, "redis: load state %q", name)
		}
		if len(vals) == 0 {
			continue
		}

		st, err := mapToState(name, vals)
		if err != nil {
			s.logger.Warn("skipping corrupted job state", "job", name, "error", err)
			continue
		}
		states[name] = st
	}
	return states, nil
}

// SaveState сохраняет состояние одной job атомарно (MULTI/EXEC).
func (s *StateStore) SaveState(ctx context.Context, state *domain.JobState) error {
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, stateKey(state.JobName), stateToMap(state))
	pipe.SAdd(ctx, jobsKey, state.JobName)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrapf(err, "redis: save state %q", state.JobName)
	}
	return nil
}

// DeleteState удаляет состояние job.
func (s *StateStore) DeleteState(ctx context.Context, name string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, stateKey(name))
	pipe.SRem(ctx, jobsKey, name)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrapf(err, "redis: delete state %q", name)
	}
	return nil
}

func stateToMap(st *domain.JobState) map[string]any {
	m := map[string]any{
		"next_due_at":      formatTime(&st.NextDueAt),
		"last_run_at":      formatTime(st.LastRunAt),
		"last_attempt_at":  formatTime(st.LastAttemptAt),
		"last_outcome":     string(st.LastOutcome),
		"last_error":       st.LastError,
		"disabled_reason":  st.DisabledReason,
		"cadence":          st.Cadence,
		"last_dispatch_id": "",
	}
	if st.LastDispatchID != nil {
		m["last_dispatch_id"] = st.LastDispatchID.String()
	}
	return m
}

func mapToState(name string, vals map[string]string) (domain.JobState, error) {
	st := domain.JobState{
		JobName:        name,
		LastOutcome:    domain.OutcomeStatus(vals["last_outcome"]),
		LastError:      vals["last_error"],
		DisabledReason: vals["disabled_reason"],
		Cadence:        vals["cadence"],
	}

	next, err := parseTime(vals["next_due_at"])
	if err != nil {
		return st, errors.Wrap(err, "next_due_at")
	}
	if next == nil {
		return st, errors.New("next_due_at is missing")
	}
	st.NextDueAt = *next

	if st.LastRunAt, err = parseTime(vals["last_run_at"]); err != nil {
		return st, errors.Wrap(err, "last_run_at")
	}
	if st.LastAttemptAt, err = parseTime(vals["last_attempt_at"]); err != nil {
		return st, errors.Wrap(err, "last_attempt_at")
	}

	if v := vals["last_dispatch_id"]; v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return st, errors.Wrap(err, "last_dispatch_id")
		}
		st.LastDispatchID = &id
	}
	return st, nil
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
