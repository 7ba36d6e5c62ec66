package registry

import (
	"cmp"
	"context"
	"iter"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/shaiso/Metronome/internal/cadence"
	"github.com/shaiso/Metronome/internal/domain"
)

// Config — конфигурация Registry.
type Config struct {
	// Store — durable хранилище состояний. nil — состояние только в памяти.
	Store StateStore

	// Now — источник времени (для тестов).
	Now func() time.Time

	Logger *slog.Logger
}

// Job — определение и состояние job (копия для чтения).
type Job struct {
	Definition domain.JobDefinition
	State      domain.JobState
}

// entry — запись реестра.
type entry struct {
	def     domain.JobDefinition
	cadence cadence.Cadence // nil, если выражение некорректно
	state   domain.JobState
}

// dispatchable — job может попасть в due.
func (e *entry) dispatchable() bool {
	return e.def.Enabled && e.cadence != nil && e.state.DisabledReason == ""
}

// Registry — реестр расписаний.
//
// Один RW mutex: тик лидера пишет, административные запросы читают.
type Registry struct {
	store  StateStore
	now    func() time.Time
	logger *slog.Logger

	mu   sync.RWMutex
	jobs map[string]*entry
}

// New создаёт пустой реестр.
func New(cfg Config) *Registry {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Registry{
		store:  cfg.Store,
		now:    now,
		logger: logger,
		jobs:   make(map[string]*entry),
	}
}

// Register добавляет job в реестр.
//
// Некорректный cadence не отбрасывает job: она регистрируется отключённой
// с DisabledReason, а ошибка (помеченная cadence.ErrInvalidCadence)
// возвращается вместе с handle.
func (r *Registry) Register(def domain.JobDefinition) (domain.JobHandle, error) {
	def.Name = strings.TrimSpace(def.Name)
	if def.Name == "" {
		return domain.JobHandle{}, errors.Wrap(ErrInvalidJob, "job name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[def.Name]; exists {
		return domain.JobHandle{}, errors.Wrapf(ErrDuplicateJob, "register %q", def.Name)
	}

	e, err := r.newEntry(def)
	r.jobs[def.Name] = e

	handle := domain.JobHandle{Name: def.Name}
	if err != nil {
		r.logger.Warn("job registered disabled",
			"job", def.Name,
			"cadence", def.Cadence,
			"error", err,
		)
		return handle, errors.Wrapf(err, "register %q", def.Name)
	}

	r.logger.Debug("job registered",
		"job", def.Name,
		"cadence", def.Cadence,
		"next_due_at", e.state.NextDueAt,
	)
	return handle, nil
}

// newEntry строит запись: парсит cadence и вычисляет первый запуск.
func (r *Registry) newEntry(def domain.JobDefinition) (*entry, error) {
	e := &entry{
		def:   def,
		state: domain.JobState{JobName: def.Name, Cadence: def.CadenceKey()},
	}

	c, err := cadence.Parse(def.Cadence, def.Timezone)
	if err != nil {
		e.state.DisabledReason = err.Error()
		e.state.LastOutcome = domain.OutcomeDisabled
		return e, err
	}

	next, err := cadence.Initial(c, r.now())
	if err != nil {
		e.state.DisabledReason = err.Error()
		e.state.LastOutcome = domain.OutcomeDisabled
		return e, err
	}

	e.cadence = c
	e.state.NextDueAt = next
	return e, nil
}

// ListDue возвращает включённые job с next_due_at <= at.
//
// Порядок: next_due_at по возрастанию, затем имя. Каждый проход по
// итератору берёт свежий снимок под read lock.
func (r *Registry) ListDue(at time.Time) iter.Seq[domain.JobState] {
	return func(yield func(domain.JobState) bool) {
		r.mu.RLock()
		due := make([]domain.JobState, 0, len(r.jobs))
		for _, e := range r.jobs {
			if e.dispatchable() && e.state.IsDue(at) {
				due = append(due, e.state)
			}
		}
		r.mu.RUnlock()

		slices.SortFunc(due, func(a, b domain.JobState) int {
			if c := a.NextDueAt.Compare(b.NextDueAt); c != 0 {
				return c
			}
			return cmp.Compare(a.JobName, b.JobName)
		})

		for _, st := range due {
			if !yield(st) {
				return
			}
		}
	}
}

// NextDue вычисляет схлопнутое время следующего запуска после диспатча в now.
// skipped — число пропущенных срабатываний.
func (r *Registry) NextDue(name string, now time.Time) (next time.Time, skipped int, err error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.jobs[name]
	if !ok {
		return time.Time{}, 0, errors.Wrapf(ErrJobNotFound, "next due %q", name)
	}
	if e.cadence == nil {
		return time.Time{}, 0, errors.Mark(
			errors.Newf("job %q has no valid cadence", name),
			cadence.ErrInvalidCadence,
		)
	}
	return cadence.Coalesce(e.cadence, e.state.NextDueAt, now)
}

// Advance атомарно фиксирует успешный диспатч.
//
// Сначала пишет в StateStore, память меняется только после успеха.
// next_due_at назад не двигается.
func (r *Registry) Advance(ctx context.Context, name string, nextDueAt time.Time, dispatchID uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.jobs[name]
	if !ok {
		return errors.Wrapf(ErrJobNotFound, "advance %q", name)
	}
	if nextDueAt.Before(e.state.NextDueAt) {
		return errors.Wrapf(ErrScheduleRegression, "advance %q: %s is before %s",
			name, nextDueAt.Format(time.RFC3339), e.state.NextDueAt.Format(time.RFC3339))
	}

	updated := e.state
	updated.RecordDispatch(dispatchID, nextDueAt, at)

	if err := r.persist(ctx, &updated); err != nil {
		return errors.Wrapf(err, "advance %q", name)
	}
	e.state = updated
	return nil
}

// RecordFailure записывает неудачную попытку, next_due_at не меняется.
func (r *Registry) RecordFailure(ctx context.Context, name string, status domain.OutcomeStatus, cause error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.jobs[name]
	if !ok {
		return errors.Wrapf(ErrJobNotFound, "record failure %q", name)
	}

	updated := e.state
	updated.RecordFailure(status, cause, r.now())

	// Исход попытки виден в памяти даже при недоступном хранилище.
	e.state = updated
	if err := r.persist(ctx, &updated); err != nil {
		return errors.Wrapf(err, "record failure %q", name)
	}
	return nil
}

// Disable отключает job из-за ошибки вычисления расписания.
func (r *Registry) Disable(ctx context.Context, name, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.jobs[name]
	if !ok {
		return errors.Wrapf(ErrJobNotFound, "disable %q", name)
	}

	updated := e.state
	updated.DisabledReason = reason
	updated.RecordFailure(domain.OutcomeDisabled, nil, r.now())
	updated.LastError = reason

	e.state = updated
	r.logger.Warn("job disabled", "job", name, "reason", reason)

	if err := r.persist(ctx, &updated); err != nil {
		return errors.Wrapf(err, "disable %q", name)
	}
	return nil
}

// SetEnabled включает или выключает job.
//
// Включение снимает DisabledReason, если cadence корректен. Job с
// некорректным выражением включить нельзя.
func (r *Registry) SetEnabled(ctx context.Context, name string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.jobs[name]
	if !ok {
		return errors.Wrapf(ErrJobNotFound, "set enabled %q", name)
	}
	if enabled && e.cadence == nil {
		return errors.Mark(
			errors.Newf("job %q: %s", name, e.state.DisabledReason),
			cadence.ErrInvalidCadence,
		)
	}

	e.def.Enabled = enabled
	if !enabled || e.state.DisabledReason == "" {
		return nil
	}

	updated := e.state
	updated.DisabledReason = ""
	if err := r.persist(ctx, &updated); err != nil {
		return errors.Wrapf(err, "set enabled %q", name)
	}
	e.state = updated
	return nil
}

// Reschedule — административная установка next_due_at (может двигать назад).
func (r *Registry) Reschedule(ctx context.Context, name string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.jobs[name]
	if !ok {
		return errors.Wrapf(ErrJobNotFound, "reschedule %q", name)
	}

	if at.IsZero() {
		return errors.Wrapf(ErrInvalidJob, "reschedule %q: zero time", name)
	}

	updated := e.state
	updated.NextDueAt = at.UTC()
	if err := r.persist(ctx, &updated); err != nil {
		return errors.Wrapf(err, "reschedule %q", name)
	}
	e.state = updated

	r.logger.Info("job rescheduled", "job", name, "next_due_at", updated.NextDueAt)
	return nil
}

// Refresh перечитывает состояния из StateStore.
//
// Вызывается при каждом входе в LEADING: новый лидер продолжает
// с next_due_at прошлого лидера. Job без сохранённого состояния
// сохраняют вычисленный при регистрации запуск.
//
// Сохранённое состояние сверяется с текущим определением:
//   - next_due_at, вычисленный под другим cadence, пересчитывается
//   - отключение снимается, если cadence теперь корректен
//
// Исправленные состояния записываются обратно; ошибка записи
// только логируется, следующий Advance перезапишет состояние.
func (r *Registry) Refresh(ctx context.Context) error {
	if r.store == nil {
		return nil
	}

	states, err := r.store.LoadStates(ctx)
	if err != nil {
		return errors.Wrap(err, "load job states")
	}

	r.mu.Lock()
	restored := 0
	var repaired []domain.JobState
	for name, e := range r.jobs {
		st, ok := states[name]
		if !ok {
			continue
		}
		st.JobName = name
		restored++

		// Причина отключения определяется текущим определением.
		if e.cadence == nil {
			st.DisabledReason = e.state.DisabledReason
			st.Cadence = e.state.Cadence
			e.state = st
			continue
		}

		if r.reconcile(e, &st) {
			repaired = append(repaired, st)
		}
		e.state = st
	}
	total := len(r.jobs)
	r.mu.Unlock()

	for i := range repaired {
		st := &repaired[i]
		if err := r.store.SaveState(ctx, st); err != nil {
			r.logger.Warn("failed to persist reconciled job state", "job", st.JobName, "error", err)
		}
	}

	r.logger.Debug("registry refreshed",
		"jobs", total,
		"restored", restored,
		"reconciled", len(repaired),
	)
	return nil
}

// reconcile приводит сохранённое состояние к текущему определению
// с корректным cadence. Возвращает true, если st изменено. Вызывается под mu.
func (r *Registry) reconcile(e *entry, st *domain.JobState) bool {
	changed := false

	stale := st.Cadence != "" && st.Cadence != e.state.Cadence
	if stale || st.NextDueAt.IsZero() {
		next, err := cadence.Initial(e.cadence, r.now())
		if err != nil {
			next = e.state.NextDueAt
		}
		r.logger.Info("job schedule recomputed",
			"job", st.JobName,
			"stored_cadence", st.Cadence,
			"cadence", e.state.Cadence,
			"next_due_at", next,
		)
		st.NextDueAt = next
		changed = true
	}
	if st.Cadence != e.state.Cadence {
		st.Cadence = e.state.Cadence
		changed = true
	}

	if st.DisabledReason != "" {
		r.logger.Info("job re-enabled, cadence is valid now",
			"job", st.JobName,
			"previous_reason", st.DisabledReason,
		)
		st.DisabledReason = ""
		if st.LastOutcome == domain.OutcomeDisabled {
			st.LastOutcome = domain.OutcomeNone
			st.LastError = ""
		}
		changed = true
	}
	return changed
}

// Sync приводит реестр к набору определений (hot reload конфига).
//
// Новые job регистрируются, у существующих обновляются параметры,
// отсутствующие в defs — удаляются. Смена cadence или timezone
// пересчитывает next_due_at от текущего момента и сразу пишет его
// в StateStore. Ошибки отдельных job собираются и возвращаются вместе,
// остальные job применяются.
func (r *Registry) Sync(ctx context.Context, defs []domain.JobDefinition) error {
	var errs error

	wanted := make(map[string]domain.JobDefinition, len(defs))
	for _, def := range defs {
		def.Name = strings.TrimSpace(def.Name)
		if def.Name == "" {
			errs = errors.CombineErrors(errs, errors.Wrap(ErrInvalidJob, "job name is required"))
			continue
		}
		if _, dup := wanted[def.Name]; dup {
			errs = errors.CombineErrors(errs, errors.Wrapf(ErrDuplicateJob, "sync %q", def.Name))
			continue
		}
		wanted[def.Name] = def
	}

	r.mu.Lock()
	var removed []string
	for name := range r.jobs {
		if _, ok := wanted[name]; !ok {
			delete(r.jobs, name)
			removed = append(removed, name)
		}
	}

	added, updated := 0, 0
	var rebuilt []domain.JobState
	for name, def := range wanted {
		e, exists := r.jobs[name]
		if !exists {
			ne, err := r.newEntry(def)
			r.jobs[name] = ne
			if err != nil {
				errs = errors.CombineErrors(errs, errors.Wrapf(err, "sync %q", name))
			}
			added++
			continue
		}

		if e.def.Cadence != def.Cadence || e.def.Timezone != def.Timezone {
			ne, err := r.newEntry(def)
			ne.state.LastRunAt = e.state.LastRunAt
			ne.state.LastDispatchID = e.state.LastDispatchID
			ne.state.LastAttemptAt = e.state.LastAttemptAt
			if err == nil {
				if e.state.LastOutcome != domain.OutcomeDisabled {
					ne.state.LastOutcome = e.state.LastOutcome
					ne.state.LastError = e.state.LastError
				}
			} else {
				errs = errors.CombineErrors(errs, errors.Wrapf(err, "sync %q", name))
			}
			r.jobs[name] = ne
			rebuilt = append(rebuilt, ne.state)
			updated++
			continue
		}

		if !jobDefinitionEqual(e.def, def) {
			e.def = def
			updated++
		}
	}
	r.mu.Unlock()

	if r.store != nil {
		for _, name := range removed {
			if err := r.store.DeleteState(ctx, name); err != nil {
				errs = errors.CombineErrors(errs, errors.Wrapf(err, "delete state %q", name))
			}
		}
		for i := range rebuilt {
			st := &rebuilt[i]
			if err := r.store.SaveState(ctx, st); err != nil {
				errs = errors.CombineErrors(errs, errors.Wrapf(err, "save state %q", st.JobName))
			}
		}
	}

	r.logger.Info("registry synced",
		"added", added,
		"updated", updated,
		"removed", len(removed),
	)
	return errs
}

// Get возвращает job по имени.
func (r *Registry) Get(name string) (Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.jobs[name]
	if !ok {
		return Job{}, errors.Wrapf(ErrJobNotFound, "get %q", name)
	}
	return Job{Definition: e.def, State: e.state}, nil
}

// Snapshot возвращает копию реестра, отсортированную по имени.
func (r *Registry) Snapshot() []Job {
	r.mu.RLock()
	jobs := make([]Job, 0, len(r.jobs))
	for _, e := range r.jobs {
		jobs = append(jobs, Job{Definition: e.def, State: e.state})
	}
	r.mu.RUnlock()

	slices.SortFunc(jobs, func(a, b Job) int {
		return cmp.Compare(a.Definition.Name, b.Definition.Name)
	})
	return jobs
}

// Len возвращает число зарегистрированных job.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

// persist пишет состояние в StateStore. Вызывается под mu.
func (r *Registry) persist(ctx context.Context, state *domain.JobState) error {
	if r.store == nil {
		return nil
	}
	return r.store.SaveState(ctx, state)
}

func jobDefinitionEqual(a, b domain.JobDefinition) bool {
	return a.Name == b.Name &&
		a.Cadence == b.Cadence &&
		a.Timezone == b.Timezone &&
		a.Topic == b.Topic &&
		a.Enabled == b.Enabled &&
		string(a.Payload) == string(b.Payload)
}
