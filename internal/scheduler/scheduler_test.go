package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Metronome/internal/domain"
	"github.com/shaiso/Metronome/internal/lease"
	"github.com/shaiso/Metronome/internal/queue"
	"github.com/shaiso/Metronome/internal/registry"
	"github.com/shaiso/Metronome/internal/telemetry"
)

var base = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

const testKey = "metronome:lock"

// fakeClock — управляемые часы для тестов.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// testEnv — scheduler на управляемых часах.
type testEnv struct {
	clock   *fakeClock
	store   *lease.MemoryStore
	guard   *lease.Guard
	reg     *registry.Registry
	broker  *queue.MemoryBroker
	metrics *telemetry.Metrics
	sched   *Scheduler
}

func newTestEnv(t *testing.T, jobs ...domain.JobDefinition) *testEnv {
	t.Helper()

	clock := &fakeClock{now: base}
	store := lease.NewMemoryStore(lease.WithClock(clock.Now))
	guard := lease.NewGuard(store, lease.GuardConfig{
		Key:        testKey,
		InstanceID: "scheduler-1",
		TTL:        15 * time.Second,
		Now:        clock.Now,
	})

	reg := registry.New(registry.Config{Store: registry.NewMemoryStateStore(), Now: clock.Now})
	for _, j := range jobs {
		_, err := reg.Register(j)
		require.NoError(t, err)
	}

	broker := queue.NewMemoryBroker()
	metrics := telemetry.NewMetrics(prometheus.NewRegistry())

	sched := New(Config{
		Registry: reg,
		Guard:    guard,
		Queue:    queue.NewClient(queue.ClientConfig{Broker: broker, Now: clock.Now}),
		Metrics:  metrics,
		Now:      clock.Now,
	})

	return &testEnv{
		clock:   clock,
		store:   store,
		guard:   guard,
		reg:     reg,
		broker:  broker,
		metrics: metrics,
		sched:   sched,
	}
}

func (e *testEnv) lead(t *testing.T) {
	t.Helper()
	ok, err := e.guard.TryAcquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
}

// published возвращает work items из топика по умолчанию.
func (e *testEnv) published(t *testing.T) []*domain.WorkItem {
	t.Helper()

	var items []*domain.WorkItem
	for _, body := range e.broker.Messages(queue.DefaultTopic) {
		msg, err := queue.Decode(body)
		require.NoError(t, err)
		item, err := msg.WorkItem()
		require.NoError(t, err)
		items = append(items, item)
	}
	return items
}

func every10s(name string) domain.JobDefinition {
	return domain.JobDefinition{Name: name, Cadence: "10s", Enabled: true}
}

func TestTick_DispatchesDueJob(t *testing.T) {
	env := newTestEnv(t, every10s("cleanup"))
	env.clock.Advance(10 * time.Second)
	env.lead(t)

	res, err := env.sched.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Dispatched)

	items := env.published(t)
	require.Len(t, items, 1)
	assert.Equal(t, "cleanup", items[0].JobName)
	assert.Equal(t, base.Add(10*time.Second), items[0].ScheduledFor)

	j, err := env.reg.Get("cleanup")
	require.NoError(t, err)
	assert.Equal(t, base.Add(20*time.Second), j.State.NextDueAt)
	require.NotNil(t, j.State.LastDispatchID)
	assert.Equal(t, items[0].DispatchID, *j.State.LastDispatchID)

	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.Dispatched.WithLabelValues("cleanup")))
}

func TestTick_NothingDue(t *testing.T) {
	env := newTestEnv(t, every10s("cleanup"))
	env.lead(t)

	res, err := env.sched.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Due)
	assert.Equal(t, 0, env.broker.Len())
}

func TestTick_CoalescesMissedTicks(t *testing.T) {
	env := newTestEnv(t, every10s("cleanup"))

	// due = T (base+10s), первый тик на T+95s
	env.clock.Advance(105 * time.Second)
	env.lead(t)

	_, err := env.sched.Tick(context.Background())
	require.NoError(t, err)

	assert.Len(t, env.published(t), 1)

	j, err := env.reg.Get("cleanup")
	require.NoError(t, err)
	assert.Equal(t, base.Add(110*time.Second), j.State.NextDueAt)
	assert.Equal(t, 9.0, testutil.ToFloat64(env.metrics.SkippedIntervals.WithLabelValues("cleanup")))

	// Повторный тик в тот же момент ничего не публикует
	_, err = env.sched.Tick(context.Background())
	require.NoError(t, err)
	assert.Len(t, env.published(t), 1)
}

func TestTick_DeterministicOrder(t *testing.T) {
	env := newTestEnv(t, every10s("charlie"), every10s("alpha"), every10s("bravo"))
	env.clock.Advance(10 * time.Second)
	env.lead(t)

	_, err := env.sched.Tick(context.Background())
	require.NoError(t, err)

	var got []string
	for _, item := range env.published(t) {
		got = append(got, item.JobName)
	}
	assert.Equal(t, []string{"alpha", "bravo", "charlie"}, got)
}

func TestTick_PublishFailureIsolation(t *testing.T) {
	env := newTestEnv(t, every10s("job1"), every10s("job2"), every10s("job3"))
	env.broker.Fail = func(_ string, body []byte) error {
		msg, err := queue.Decode(body)
		if err != nil {
			return err
		}
		item, err := msg.WorkItem()
		if err != nil {
			return err
		}
		if item.JobName == "job2" {
			return errors.New("broker rejected message")
		}
		return nil
	}
	env.clock.Advance(10 * time.Second)
	env.lead(t)

	res, err := env.sched.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Dispatched)
	assert.Equal(t, 1, res.Failed)

	for _, name := range []string{"job1", "job3"} {
		j, err := env.reg.Get(name)
		require.NoError(t, err)
		assert.Equal(t, base.Add(20*time.Second), j.State.NextDueAt, name)
		assert.Equal(t, domain.OutcomeDispatched, j.State.LastOutcome, name)
	}

	j2, err := env.reg.Get("job2")
	require.NoError(t, err)
	assert.Equal(t, base.Add(10*time.Second), j2.State.NextDueAt)
	assert.Equal(t, domain.OutcomePublishFailed, j2.State.LastOutcome)
	assert.Contains(t, j2.State.LastError, "broker rejected message")
	assert.Nil(t, j2.State.LastDispatchID)

	// Следующий тик повторяет только job2
	env.broker.Fail = nil
	_, err = env.sched.Tick(context.Background())
	require.NoError(t, err)

	items := env.published(t)
	require.Len(t, items, 3)
	assert.Equal(t, "job2", items[2].JobName)
}

func TestTick_RefusesWithoutLease(t *testing.T) {
	env := newTestEnv(t, every10s("cleanup"))
	env.clock.Advance(10 * time.Second)

	_, err := env.sched.Tick(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, lease.ErrLeaseLost))
	assert.Equal(t, 0, env.broker.Len())
}

func TestTick_StopsWhenLeaseExpiresMidTick(t *testing.T) {
	env := newTestEnv(t, every10s("job1"), every10s("job2"))
	env.clock.Advance(10 * time.Second)
	env.lead(t)

	// Публикация первой job "длится" дольше ttl
	env.broker.Fail = func(string, []byte) error {
		env.clock.Advance(15 * time.Second)
		return nil
	}

	_, err := env.sched.Tick(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, lease.ErrLeaseLost))

	// job1 не сдвинута (лидер не уверен в lease), job2 не опубликована
	assert.Equal(t, 1, env.broker.Len())
	for _, name := range []string{"job1", "job2"} {
		j, err := env.reg.Get(name)
		require.NoError(t, err)
		assert.Equal(t, base.Add(10*time.Second), j.State.NextDueAt, name)
	}
}

func TestTick_NoDispatchAfterOwnershipReassigned(t *testing.T) {
	env := newTestEnv(t, every10s("cleanup"))
	env.clock.Advance(10 * time.Second)
	env.lead(t)
	ctx := context.Background()

	// Lease удалили и захватил другой экземпляр
	require.NoError(t, env.store.Release(ctx, testKey, env.guard.Token()))
	other := lease.NewGuard(env.store, lease.GuardConfig{
		Key:        testKey,
		InstanceID: "scheduler-2",
		TTL:        15 * time.Second,
		Now:        env.clock.Now,
	})
	ok, err := other.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	err = env.guard.Renew(ctx)
	assert.True(t, errors.Is(err, lease.ErrLeaseLost))

	_, err = env.sched.Tick(ctx)
	assert.True(t, errors.Is(err, lease.ErrLeaseLost))
	assert.Equal(t, 0, env.broker.Len())
}

func TestStatus(t *testing.T) {
	env := newTestEnv(t, every10s("a"), every10s("b"))
	ctx := context.Background()

	st := env.sched.Status(ctx)
	assert.Equal(t, "scheduler-1", st.InstanceID)
	assert.Equal(t, domain.SchedulerStateIdle, st.State)
	assert.False(t, st.IsLeader)
	assert.Nil(t, st.Leader)
	assert.Equal(t, 2, st.Jobs)

	env.lead(t)
	env.clock.Advance(10 * time.Second)
	_, err := env.sched.Tick(ctx)
	require.NoError(t, err)

	st = env.sched.Status(ctx)
	assert.True(t, st.IsLeader)
	require.NotNil(t, st.Leader)
	assert.Equal(t, "scheduler-1", st.Leader.Holder())
	require.NotNil(t, st.LeaseDeadline)
	assert.Equal(t, uint64(1), st.Ticks)
	assert.Equal(t, uint64(2), st.Dispatched)
	require.NotNil(t, st.LastTickAt)
	assert.Equal(t, base.Add(10*time.Second), *st.LastTickAt)
}
