package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/shaiso/Metronome/internal/backoff"
	"github.com/shaiso/Metronome/internal/cadence"
	"github.com/shaiso/Metronome/internal/domain"
	"github.com/shaiso/Metronome/internal/lease"
	"github.com/shaiso/Metronome/internal/queue"
	"github.com/shaiso/Metronome/internal/registry"
	"github.com/shaiso/Metronome/internal/telemetry"
)

// Default configuration values.
const (
	defaultTickPeriod   = time.Second
	defaultElectionPoll = 5 * time.Second
	defaultMaxBackoff   = 30 * time.Second
)

// Config — конфигурация Scheduler.
type Config struct {
	Registry *registry.Registry
	Guard    *lease.Guard
	Queue    *queue.Client

	// Metrics — метрики (default: приватный реестр, наружу не экспортируются).
	Metrics *telemetry.Metrics

	// TickPeriod — период тиков лидера (default: 1s).
	TickPeriod time.Duration

	// RenewPeriod — период продления lease (default: ttl/3).
	RenewPeriod time.Duration

	// ElectionPoll — период попыток захвата lease (default: 5s).
	ElectionPoll time.Duration

	// MaxBackoff — предел задержки при недоступном хранилище (default: 30s).
	MaxBackoff time.Duration

	// Now — источник времени (для тестов).
	Now func() time.Time

	Logger *slog.Logger
}

// Scheduler — dispatch loop одного экземпляра.
//
// Владеет реестром, Guard и клиентом очереди. Создаётся в main
// и передаётся явно, глобального состояния нет.
type Scheduler struct {
	registry *registry.Registry
	guard    *lease.Guard
	queue    *queue.Client
	metrics  *telemetry.Metrics
	logger   *slog.Logger
	now      func() time.Time

	tickPeriod   time.Duration
	renewPeriod  time.Duration
	electionPoll time.Duration
	backoff      backoff.Strategy

	// tickMu сериализует тики.
	tickMu sync.Mutex

	// draining выставляется при shutdown: тик не берёт новые job.
	draining atomic.Bool

	mu         sync.RWMutex
	state      domain.SchedulerState
	ticks      uint64
	lastTickAt time.Time
	dispatched uint64
	failures   uint64
}

// New создаёт новый Scheduler.
func New(cfg Config) *Scheduler {
	tickPeriod := cfg.TickPeriod
	if tickPeriod <= 0 {
		tickPeriod = defaultTickPeriod
	}

	renewPeriod := cfg.RenewPeriod
	if maxRenew := cfg.Guard.TTL() / 3; renewPeriod <= 0 || renewPeriod > maxRenew {
		renewPeriod = maxRenew
	}

	electionPoll := cfg.ElectionPoll
	if electionPoll <= 0 {
		electionPoll = defaultElectionPoll
	}

	maxBackoff := cfg.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = defaultMaxBackoff
	}

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = telemetry.NewMetrics(prometheus.NewRegistry())
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Scheduler{
		registry:     cfg.Registry,
		guard:        cfg.Guard,
		queue:        cfg.Queue,
		metrics:      metrics,
		logger:       telemetry.WithInstance(logger, cfg.Guard.InstanceID()),
		now:          now,
		tickPeriod:   tickPeriod,
		renewPeriod:  renewPeriod,
		electionPoll: electionPoll,
		backoff:      backoff.NewExponentialWithJitter(time.Second, maxBackoff),
	}
	s.setState(domain.SchedulerStateIdle)
	return s
}

// TickResult — итог одного тика.
type TickResult struct {
	Due         int
	Dispatched  int
	Failed      int
	Disabled    int
	Interrupted bool // тик прерван shutdown'ом
}

// Tick выполняет один тик диспатча.
//
// 1. Выбирает due job (next_due_at <= now) в детерминированном порядке
// 2. Для каждой вычисляет схлопнутый next_due_at
// 3. Публикует work item с дедлайном не позже дедлайна lease
// 4. Сдвигает next_due_at (Advance)
//
// Guard проверяется перед каждой публикацией и перед каждым Advance.
// Ошибки одной job не блокируют обработку остальных. Ошибка возвращается
// только при потере lease.
func (s *Scheduler) Tick(ctx context.Context) (TickResult, error) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	var res TickResult
	if !s.guard.Valid() {
		return res, errors.Wrap(lease.ErrLeaseLost, "tick")
	}

	now := s.now()
	started := time.Now()
	defer func() {
		s.metrics.Ticks.Inc()
		s.metrics.TickDuration.Observe(time.Since(started).Seconds())

		s.mu.Lock()
		s.ticks++
		s.lastTickAt = now
		s.dispatched += uint64(res.Dispatched)
		s.failures += uint64(res.Failed)
		s.mu.Unlock()
	}()

	for st := range s.registry.ListDue(now) {
		if s.draining.Load() {
			res.Interrupted = true
			break
		}
		res.Due++

		outcome, err := s.dispatch(ctx, st, now)
		if err != nil {
			return res, err
		}

		switch outcome {
		case domain.OutcomeDispatched:
			res.Dispatched++
		case domain.OutcomeDisabled:
			res.Disabled++
		case domain.OutcomePublishFailed, domain.OutcomeNotAdvanced:
			res.Failed++
		}
	}

	if res.Due > 0 {
		s.logger.Info("scheduler tick completed",
			"due", res.Due,
			"dispatched", res.Dispatched,
			"failed", res.Failed,
			"disabled", res.Disabled,
			"interrupted", res.Interrupted,
		)
	}
	return res, nil
}

// dispatch обрабатывает одну due job.
// Ошибка возвращается только при потере lease.
func (s *Scheduler) dispatch(ctx context.Context, st domain.JobState, now time.Time) (domain.OutcomeStatus, error) {
	logger := telemetry.WithJob(s.logger, st.JobName)

	job, err := s.registry.Get(st.JobName)
	if err != nil {
		// Удалена hot reload'ом между снимком и обработкой
		logger.Debug("job vanished during tick", "error", err)
		return domain.OutcomeNone, nil
	}

	// 1. Следующий запуск
	next, skipped, err := s.registry.NextDue(st.JobName, now)
	if err != nil {
		if errors.Is(err, cadence.ErrInvalidCadence) {
			logger.Error("cadence computation failed, disabling job", "error", err)
			if dErr := s.registry.Disable(ctx, st.JobName, err.Error()); dErr != nil {
				logger.Warn("failed to persist disabled job", "error", dErr)
			}
			return domain.OutcomeDisabled, nil
		}
		logger.Error("failed to compute next due", "error", err)
		return domain.OutcomePublishFailed, nil
	}

	item := domain.NewWorkItem(&job.Definition, &st, s.queue.DefaultTopic(), now)
	logger = telemetry.WithDispatchID(logger, item.DispatchID.String())

	// 2. Публикация
	if !s.guard.Valid() {
		return domain.OutcomeNone, errors.Wrap(lease.ErrLeaseLost, "before publish")
	}

	// Публикация не переживает lease: остаток считается по тем же часам, что и дедлайн.
	pubCtx, cancel := context.WithTimeout(ctx, s.guard.Deadline().Sub(s.now()))
	err = s.queue.Enqueue(pubCtx, item)
	cancel()
	if err != nil {
		logger.Warn("failed to publish work item", "error", err)
		s.metrics.PublishFailures.WithLabelValues(st.JobName).Inc()
		if rErr := s.registry.RecordFailure(ctx, st.JobName, domain.OutcomePublishFailed, err); rErr != nil {
			logger.Warn("failed to record publish failure", "error", rErr)
		}
		return domain.OutcomePublishFailed, nil
	}

	// 3. Advance
	if !s.guard.Valid() {
		// Опубликовано, но не сдвинуто: следующий лидер продиспатчит повторно
		logger.Warn("lease lost after publish, next_due_at not advanced")
		return domain.OutcomeNotAdvanced, errors.Wrap(lease.ErrLeaseLost, "before advance")
	}

	if err := s.registry.Advance(ctx, st.JobName, next, item.DispatchID, now); err != nil {
		logger.Error("failed to advance schedule", "error", err)
		s.metrics.PublishFailures.WithLabelValues(st.JobName).Inc()
		if rErr := s.registry.RecordFailure(ctx, st.JobName, domain.OutcomeNotAdvanced, err); rErr != nil {
			logger.Warn("failed to record advance failure", "error", rErr)
		}
		return domain.OutcomeNotAdvanced, nil
	}

	s.metrics.Dispatched.WithLabelValues(st.JobName).Inc()
	if skipped > 0 {
		s.metrics.SkippedIntervals.WithLabelValues(st.JobName).Add(float64(skipped))
		logger.Info("coalesced missed occurrences", "skipped", skipped)
	}

	logger.Info("job dispatched",
		"topic", item.Topic,
		"scheduled_for", item.ScheduledFor,
		"next_due_at", next,
	)
	return domain.OutcomeDispatched, nil
}

// setState меняет состояние и метрику.
func (s *Scheduler) setState(state domain.SchedulerState) {
	s.mu.Lock()
	prev := s.state
	s.state = state
	s.mu.Unlock()

	s.metrics.SetState(string(state), allStates)
	if prev != state && prev != "" {
		s.logger.Debug("scheduler state changed", "from", prev, "to", state)
	}
}

// State возвращает текущее состояние.
func (s *Scheduler) State() domain.SchedulerState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

var allStates = []string{
	string(domain.SchedulerStateIdle),
	string(domain.SchedulerStateAcquiring),
	string(domain.SchedulerStateLeading),
	string(domain.SchedulerStateDraining),
}
