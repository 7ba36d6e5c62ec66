package registry

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Metronome/internal/cadence"
	"github.com/shaiso/Metronome/internal/domain"
)

var base = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

// failingStore — StateStore, который отказывает по флагу.
type failingStore struct {
	*MemoryStateStore

	mu   sync.Mutex
	fail bool
}

func (s *failingStore) setFail(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fail
}

func (s *failingStore) SaveState(ctx context.Context, state *domain.JobState) error {
	s.mu.Lock()
	fail := s.fail
	s.mu.Unlock()
	if fail {
		return errors.New("store down")
	}
	return s.MemoryStateStore.SaveState(ctx, state)
}

func newTestRegistry(store StateStore) *Registry {
	return New(Config{
		Store: store,
		Now:   func() time.Time { return base },
	})
}

func job(name, expr string) domain.JobDefinition {
	return domain.JobDefinition{Name: name, Cadence: expr, Enabled: true}
}

func names(seq func(func(domain.JobState) bool)) []string {
	var out []string
	for st := range seq {
		out = append(out, st.JobName)
	}
	return out
}

func TestRegister(t *testing.T) {
	r := newTestRegistry(nil)

	h, err := r.Register(job("cleanup", "10s"))
	require.NoError(t, err)
	assert.Equal(t, "cleanup", h.Name)

	j, err := r.Get("cleanup")
	require.NoError(t, err)
	assert.Equal(t, base.Add(10*time.Second), j.State.NextDueAt)
	assert.Equal(t, domain.OutcomeNone, j.State.LastOutcome)
}

func TestRegister_Duplicate(t *testing.T) {
	r := newTestRegistry(nil)

	_, err := r.Register(job("cleanup", "10s"))
	require.NoError(t, err)

	_, err = r.Register(job("cleanup", "1m"))
	assert.True(t, errors.Is(err, ErrDuplicateJob))
}

func TestRegister_EmptyName(t *testing.T) {
	r := newTestRegistry(nil)

	_, err := r.Register(job("  ", "10s"))
	assert.True(t, errors.Is(err, ErrInvalidJob))
	assert.Equal(t, 0, r.Len())
}

func TestRegister_InvalidCadenceKeepsJobDisabled(t *testing.T) {
	r := newTestRegistry(nil)

	h, err := r.Register(job("broken", "not a cadence"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, cadence.ErrInvalidCadence))
	assert.Equal(t, "broken", h.Name)

	j, err := r.Get("broken")
	require.NoError(t, err)
	assert.NotEmpty(t, j.State.DisabledReason)
	assert.Equal(t, domain.OutcomeDisabled, j.State.LastOutcome)

	assert.Empty(t, names(r.ListDue(base.Add(time.Hour))))

	err = r.SetEnabled(context.Background(), "broken", true)
	assert.True(t, errors.Is(err, cadence.ErrInvalidCadence))
}

func TestListDue_Ordering(t *testing.T) {
	r := newTestRegistry(nil)
	ctx := context.Background()

	for _, n := range []string{"charlie", "alpha", "bravo", "delta"} {
		_, err := r.Register(job(n, "10s"))
		require.NoError(t, err)
	}
	// delta раньше остальных
	require.NoError(t, r.Reschedule(ctx, "delta", base.Add(5*time.Second)))

	got := names(r.ListDue(base.Add(10 * time.Second)))
	assert.Equal(t, []string{"delta", "alpha", "bravo", "charlie"}, got)
}

func TestListDue_SkipsDisabledAndFuture(t *testing.T) {
	r := newTestRegistry(nil)
	ctx := context.Background()

	_, err := r.Register(job("a", "10s"))
	require.NoError(t, err)
	_, err = r.Register(job("b", "1h"))
	require.NoError(t, err)
	off := job("c", "10s")
	off.Enabled = false
	_, err = r.Register(off)
	require.NoError(t, err)

	assert.Equal(t, []string{"a"}, names(r.ListDue(base.Add(time.Minute))))

	require.NoError(t, r.SetEnabled(ctx, "c", true))
	assert.Equal(t, []string{"a", "c"}, names(r.ListDue(base.Add(time.Minute))))
}

func TestListDue_Restartable(t *testing.T) {
	r := newTestRegistry(nil)
	ctx := context.Background()

	_, err := r.Register(job("a", "10s"))
	require.NoError(t, err)
	_, err = r.Register(job("b", "10s"))
	require.NoError(t, err)

	due := r.ListDue(base.Add(10 * time.Second))
	assert.Equal(t, []string{"a", "b"}, names(due))

	// Каждый проход — свежий снимок
	require.NoError(t, r.Advance(ctx, "a", base.Add(20*time.Second), uuid.New(), base))
	assert.Equal(t, []string{"b"}, names(due))

	// Ранний выход из range
	for range due {
		break
	}
}

func TestAdvance(t *testing.T) {
	store := NewMemoryStateStore()
	r := newTestRegistry(store)
	ctx := context.Background()

	_, err := r.Register(job("a", "10s"))
	require.NoError(t, err)

	id := uuid.New()
	next := base.Add(20 * time.Second)
	require.NoError(t, r.Advance(ctx, "a", next, id, base.Add(10*time.Second)))

	j, err := r.Get("a")
	require.NoError(t, err)
	assert.Equal(t, next, j.State.NextDueAt)
	assert.Equal(t, domain.OutcomeDispatched, j.State.LastOutcome)
	require.NotNil(t, j.State.LastDispatchID)
	assert.Equal(t, id, *j.State.LastDispatchID)

	states, err := store.LoadStates(ctx)
	require.NoError(t, err)
	assert.Equal(t, next, states["a"].NextDueAt)
}

func TestAdvance_RejectsRegression(t *testing.T) {
	r := newTestRegistry(nil)
	ctx := context.Background()

	_, err := r.Register(job("a", "10s"))
	require.NoError(t, err)

	err = r.Advance(ctx, "a", base, uuid.New(), base)
	assert.True(t, errors.Is(err, ErrScheduleRegression))
}

func TestAdvance_UnknownJob(t *testing.T) {
	r := newTestRegistry(nil)

	err := r.Advance(context.Background(), "ghost", base, uuid.New(), base)
	assert.True(t, errors.Is(err, ErrJobNotFound))
}

func TestAdvance_StoreFailureLeavesStateUnchanged(t *testing.T) {
	store := &failingStore{MemoryStateStore: NewMemoryStateStore()}
	r := newTestRegistry(store)
	ctx := context.Background()

	_, err := r.Register(job("a", "10s"))
	require.NoError(t, err)
	before, err := r.Get("a")
	require.NoError(t, err)

	store.setFail(true)
	err = r.Advance(ctx, "a", base.Add(20*time.Second), uuid.New(), base)
	require.Error(t, err)

	after, err := r.Get("a")
	require.NoError(t, err)
	assert.Equal(t, before.State, after.State)
}

func TestRecordFailure(t *testing.T) {
	r := newTestRegistry(nil)
	ctx := context.Background()

	_, err := r.Register(job("a", "10s"))
	require.NoError(t, err)

	require.NoError(t, r.RecordFailure(ctx, "a", domain.OutcomePublishFailed, errors.New("broker down")))

	j, err := r.Get("a")
	require.NoError(t, err)
	assert.Equal(t, base.Add(10*time.Second), j.State.NextDueAt)
	assert.Equal(t, domain.OutcomePublishFailed, j.State.LastOutcome)
	assert.Equal(t, "broker down", j.State.LastError)
	assert.Nil(t, j.State.LastRunAt)
}

func TestDisable(t *testing.T) {
	r := newTestRegistry(nil)
	ctx := context.Background()

	_, err := r.Register(job("a", "10s"))
	require.NoError(t, err)

	require.NoError(t, r.Disable(ctx, "a", "no future occurrence"))
	assert.Empty(t, names(r.ListDue(base.Add(time.Hour))))

	j, err := r.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "no future occurrence", j.State.DisabledReason)
	assert.Equal(t, domain.OutcomeDisabled, j.State.LastOutcome)

	// Повторное включение снимает причину
	require.NoError(t, r.SetEnabled(ctx, "a", true))
	assert.Equal(t, []string{"a"}, names(r.ListDue(base.Add(time.Hour))))
}

func TestNextDue_Coalesces(t *testing.T) {
	r := newTestRegistry(nil)

	_, err := r.Register(job("a", "10s"))
	require.NoError(t, err)

	// due = base+10s, тик на 95 секунд позже
	next, skipped, err := r.NextDue("a", base.Add(105*time.Second))
	require.NoError(t, err)
	assert.Equal(t, base.Add(110*time.Second), next)
	assert.Equal(t, 9, skipped)
}

func TestRefresh_RestoresPersistedState(t *testing.T) {
	store := NewMemoryStateStore()
	ctx := context.Background()

	prev := newTestRegistry(store)
	_, err := prev.Register(job("a", "10s"))
	require.NoError(t, err)
	_, err = prev.Register(job("b", "10s"))
	require.NoError(t, err)
	require.NoError(t, prev.Advance(ctx, "a", base.Add(time.Hour), uuid.New(), base))

	// Новый лидер с тем же хранилищем
	next := newTestRegistry(store)
	_, err = next.Register(job("a", "10s"))
	require.NoError(t, err)
	_, err = next.Register(job("b", "10s"))
	require.NoError(t, err)
	require.NoError(t, next.Refresh(ctx))

	a, err := next.Get("a")
	require.NoError(t, err)
	assert.Equal(t, base.Add(time.Hour), a.State.NextDueAt)

	b, err := next.Get("b")
	require.NoError(t, err)
	assert.Equal(t, base.Add(10*time.Second), b.State.NextDueAt)
}

func TestRefresh_ClearsDisableWhenCadenceValid(t *testing.T) {
	store := NewMemoryStateStore()
	ctx := context.Background()

	// Отключена прошлым лидером, cadence с тех пор исправлен
	require.NoError(t, store.SaveState(ctx, &domain.JobState{
		JobName:        "a",
		DisabledReason: "old bad cadence",
		LastOutcome:    domain.OutcomeDisabled,
		LastError:      "old bad cadence",
	}))

	r := newTestRegistry(store)
	_, err := r.Register(job("a", "10s"))
	require.NoError(t, err)
	require.NoError(t, r.Refresh(ctx))

	j, err := r.Get("a")
	require.NoError(t, err)
	assert.Empty(t, j.State.DisabledReason)
	assert.Equal(t, domain.OutcomeNone, j.State.LastOutcome)
	assert.Equal(t, base.Add(10*time.Second), j.State.NextDueAt)
	assert.Equal(t, []string{"a"}, names(r.ListDue(base.Add(10*time.Second))))

	states, err := store.LoadStates(ctx)
	require.NoError(t, err)
	assert.Empty(t, states["a"].DisabledReason)
	assert.Equal(t, "10s@UTC", states["a"].Cadence)
}

func TestRefresh_KeepsDisableWhileCadenceInvalid(t *testing.T) {
	store := NewMemoryStateStore()
	ctx := context.Background()

	require.NoError(t, store.SaveState(ctx, &domain.JobState{
		JobName:   "broken",
		NextDueAt: base,
	}))

	r := newTestRegistry(store)
	_, err := r.Register(job("broken", "not a cadence"))
	require.Error(t, err)
	require.NoError(t, r.Refresh(ctx))

	j, err := r.Get("broken")
	require.NoError(t, err)
	assert.NotEmpty(t, j.State.DisabledReason)
	assert.Empty(t, names(r.ListDue(base.Add(time.Hour))))
}

func TestRefresh_RecomputesStateOfChangedCadence(t *testing.T) {
	store := NewMemoryStateStore()
	ctx := context.Background()

	prev := newTestRegistry(store)
	_, err := prev.Register(job("report", "24h"))
	require.NoError(t, err)
	require.NoError(t, prev.Advance(ctx, "report", base.Add(48*time.Hour), uuid.New(), base))

	// Рестарт с отредактированным конфигом
	next := newTestRegistry(store)
	_, err = next.Register(job("report", "10s"))
	require.NoError(t, err)
	require.NoError(t, next.Refresh(ctx))

	j, err := next.Get("report")
	require.NoError(t, err)
	assert.Equal(t, base.Add(10*time.Second), j.State.NextDueAt)
	require.NotNil(t, j.State.LastDispatchID, "history is kept")

	states, err := store.LoadStates(ctx)
	require.NoError(t, err)
	assert.Equal(t, base.Add(10*time.Second), states["report"].NextDueAt)
	assert.Equal(t, "10s@UTC", states["report"].Cadence)
}

func TestRefresh_ZeroNextDueUsesInitial(t *testing.T) {
	store := NewMemoryStateStore()
	ctx := context.Background()

	require.NoError(t, store.SaveState(ctx, &domain.JobState{JobName: "a"}))

	r := newTestRegistry(store)
	_, err := r.Register(job("a", "10s"))
	require.NoError(t, err)
	require.NoError(t, r.Refresh(ctx))

	j, err := r.Get("a")
	require.NoError(t, err)
	assert.Equal(t, base.Add(10*time.Second), j.State.NextDueAt)
}

func TestSync_PersistsChangedCadence(t *testing.T) {
	store := NewMemoryStateStore()
	r := newTestRegistry(store)
	ctx := context.Background()

	_, err := r.Register(job("report", "24h"))
	require.NoError(t, err)
	require.NoError(t, r.Advance(ctx, "report", base.Add(48*time.Hour), uuid.New(), base))

	require.NoError(t, r.Sync(ctx, []domain.JobDefinition{job("report", "10s")}))

	states, err := store.LoadStates(ctx)
	require.NoError(t, err)
	assert.Equal(t, base.Add(10*time.Second), states["report"].NextDueAt)

	// Вход в LEADING не возвращает next_due_at старого cadence
	require.NoError(t, r.Refresh(ctx))

	j, err := r.Get("report")
	require.NoError(t, err)
	assert.Equal(t, base.Add(10*time.Second), j.State.NextDueAt)
	assert.Equal(t, domain.OutcomeDispatched, j.State.LastOutcome)
}

func TestReschedule_RejectsZeroTime(t *testing.T) {
	r := newTestRegistry(nil)

	_, err := r.Register(job("a", "10s"))
	require.NoError(t, err)

	err = r.Reschedule(context.Background(), "a", time.Time{})
	assert.True(t, errors.Is(err, ErrInvalidJob))

	j, err := r.Get("a")
	require.NoError(t, err)
	assert.Equal(t, base.Add(10*time.Second), j.State.NextDueAt)
}

func TestSync(t *testing.T) {
	store := NewMemoryStateStore()
	r := newTestRegistry(store)
	ctx := context.Background()

	_, err := r.Register(job("keep", "10s"))
	require.NoError(t, err)
	_, err = r.Register(job("retime", "10s"))
	require.NoError(t, err)
	_, err = r.Register(job("drop", "10s"))
	require.NoError(t, err)
	require.NoError(t, r.Advance(ctx, "drop", base.Add(20*time.Second), uuid.New(), base))

	keep := job("keep", "10s")
	keep.Payload = json.RawMessage(`{"v":2}`)
	defs := []domain.JobDefinition{
		keep,
		job("retime", "1m"),
		job("fresh", "@hourly"),
		job("bad", "nope"),
	}

	err = r.Sync(ctx, defs)
	require.Error(t, err)
	assert.True(t, errors.Is(err, cadence.ErrInvalidCadence))

	snap := r.Snapshot()
	var got []string
	for _, j := range snap {
		got = append(got, j.Definition.Name)
	}
	assert.Equal(t, []string{"bad", "fresh", "keep", "retime"}, got)

	k, err := r.Get("keep")
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2}`, string(k.Definition.Payload))

	rt, err := r.Get("retime")
	require.NoError(t, err)
	assert.Equal(t, base.Add(time.Minute), rt.State.NextDueAt)

	states, err := store.LoadStates(ctx)
	require.NoError(t, err)
	_, stillThere := states["drop"]
	assert.False(t, stillThere)

	_, err = r.Get("drop")
	assert.True(t, errors.Is(err, ErrJobNotFound))
}

func TestSnapshot_SortedCopy(t *testing.T) {
	r := newTestRegistry(nil)

	for _, n := range []string{"b", "c", "a"} {
		_, err := r.Register(job(n, "10s"))
		require.NoError(t, err)
	}

	snap := r.Snapshot()
	require.Len(t, snap, 3)
	assert.True(t, slices.IsSortedFunc(snap, func(x, y Job) int {
		if x.Definition.Name < y.Definition.Name {
			return -1
		}
		return 1
	}))

	snap[0].State.NextDueAt = time.Time{}
	a, err := r.Get("a")
	require.NoError(t, err)
	assert.False(t, a.State.NextDueAt.IsZero())
}
