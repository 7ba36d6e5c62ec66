package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/shaiso/Metronome/internal/backoff"
	"github.com/shaiso/Metronome/internal/domain"
	"github.com/shaiso/Metronome/internal/lease"
)

// Run выполняет dispatch loop до отмены ctx.
//
//	IDLE → ACQUIRING → LEADING → DRAINING → IDLE   (отмена ctx)
//	                   LEADING → IDLE → ACQUIRING  (потеря lease)
//
// Потеря lease завершает эпизод лидерства, но не Run.
// При отмене ctx текущая публикация завершается, новые job не берутся,
// lease отпускается, Run возвращает nil.
func (s *Scheduler) Run(ctx context.Context) error {
	s.draining.Store(false)
	stop := context.AfterFunc(ctx, func() {
		s.draining.Store(true)
		s.mu.Lock()
		leading := s.state == domain.SchedulerStateLeading
		s.mu.Unlock()
		if leading {
			s.setState(domain.SchedulerStateDraining)
		}
	})
	defer stop()

	s.logger.Info("scheduler started",
		"tick_period", s.tickPeriod,
		"renew_period", s.renewPeriod,
		"election_poll", s.electionPoll,
		"ttl", s.guard.TTL(),
	)

	for {
		if ctx.Err() != nil {
			break
		}

		s.setState(domain.SchedulerStateAcquiring)
		if err := s.acquire(ctx); err != nil {
			break
		}

		s.lead(ctx)
		s.setState(domain.SchedulerStateIdle)
	}

	s.setState(domain.SchedulerStateIdle)
	s.logger.Info("scheduler stopped")
	return nil
}

// acquire пытается захватить lease, пока не получится или ctx не отменён.
func (s *Scheduler) acquire(ctx context.Context) error {
	attempt := 0
	for {
		ok, err := s.guard.TryAcquire(ctx)

		var delay time.Duration
		switch {
		case err != nil:
			attempt++
			delay = s.backoff.Delay(attempt)
			s.metrics.AcquireAttempts.WithLabelValues("error").Inc()
			s.logger.Warn("lease acquisition failed",
				"attempt", attempt,
				"retry_in", delay,
				"error", err,
			)

		case ok:
			s.metrics.AcquireAttempts.WithLabelValues("acquired").Inc()
			return nil

		default:
			attempt = 0
			// Не дольше electionPoll: standby захватывает lease
			// не позже ttl + electionPoll после падения лидера.
			delay = backoff.Jitter(s.electionPoll*9/10, 0.1)
			s.metrics.AcquireAttempts.WithLabelValues("held").Inc()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// lead — один эпизод лидерства.
//
// Эпизод живёт в собственном контексте: отмена ctx (shutdown) его не
// отменяет, чтобы текущая публикация завершилась. Контекст эпизода
// отменяется только потерей lease.
func (s *Scheduler) lead(ctx context.Context) {
	s.setState(domain.SchedulerStateLeading)
	s.metrics.Leader.Set(1)
	defer s.metrics.Leader.Set(0)

	s.logger.Info("became leader", "lease_deadline", s.guard.Deadline())

	episodeCtx, cancelEpisode := context.WithCancelCause(context.WithoutCancel(ctx))
	defer cancelEpisode(nil)

	if err := s.registry.Refresh(episodeCtx); err != nil {
		s.logger.Error("failed to load job states, stepping down", "error", err)
		s.release(ctx)
		// Пауза, чтобы не захватывать lease в цикле при недоступном хранилище
		select {
		case <-ctx.Done():
		case <-time.After(s.electionPoll):
		}
		return
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.renewLoop(episodeCtx, cancelEpisode)
	}()

	ticker := time.NewTicker(s.tickPeriod)
	defer ticker.Stop()

	s.runTick(episodeCtx, cancelEpisode)

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-episodeCtx.Done():
			break loop
		case <-ticker.C:
			if ctx.Err() != nil {
				break loop
			}
			s.runTick(episodeCtx, cancelEpisode)
		}
	}

	lost := errors.Is(context.Cause(episodeCtx), lease.ErrLeaseLost)
	cancelEpisode(nil)
	wg.Wait()

	if lost {
		s.metrics.LeaseLost.Inc()
		s.logger.Warn("leadership lost", "cause", context.Cause(episodeCtx))
		return
	}

	s.setState(domain.SchedulerStateDraining)
	s.release(ctx)
}

// runTick выполняет тик и завершает эпизод при потере lease.
func (s *Scheduler) runTick(ctx context.Context, cancelEpisode context.CancelCauseFunc) {
	if _, err := s.Tick(ctx); err != nil {
		if errors.Is(err, lease.ErrLeaseLost) {
			cancelEpisode(err)
			return
		}
		s.logger.Error("scheduler tick failed", "error", err)
	}
}

// renewLoop продлевает lease каждые renewPeriod.
// При ErrLeaseLost отменяет эпизод: незавершённая публикация прерывается.
func (s *Scheduler) renewLoop(ctx context.Context, cancelEpisode context.CancelCauseFunc) {
	ticker := time.NewTicker(s.renewPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		err := s.guard.Renew(ctx)
		switch {
		case err == nil:
			continue
		case errors.Is(err, lease.ErrLeaseLost):
			cancelEpisode(err)
			return
		default:
			s.logger.Warn("lease renewal failed, retrying",
				"deadline", s.guard.Deadline(),
				"error", err,
			)
		}
	}
}

// release отпускает lease с отдельным таймаутом (ctx уже может быть отменён).
func (s *Scheduler) release(ctx context.Context) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.guard.TTL()/3)
	defer cancel()

	if err := s.guard.Release(releaseCtx); err != nil {
		s.logger.Warn("failed to release lease", "error", err)
	}
}
