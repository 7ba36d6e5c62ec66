package scheduler

import (
	"context"
	"time"

	"github.com/shaiso/Metronome/internal/domain"
)

// Status — состояние экземпляра для административного API.
type Status struct {
	InstanceID string                `json:"instance_id"`
	State      domain.SchedulerState `json:"state"`
	IsLeader   bool                  `json:"is_leader"`

	// Leader — текущий lease из хранилища (nil — лидера нет).
	Leader *domain.Lease `json:"leader,omitempty"`

	// LeaderError — хранилище lease недоступно.
	LeaderError string `json:"leader_error,omitempty"`

	// LeaseDeadline — локальный дедлайн, если лидер — мы.
	LeaseDeadline *time.Time `json:"lease_deadline,omitempty"`

	Ticks      uint64     `json:"ticks"`
	LastTickAt *time.Time `json:"last_tick_at,omitempty"`
	Dispatched uint64     `json:"dispatched"`
	Failures   uint64     `json:"failures"`
	Jobs       int        `json:"jobs"`
}

// Status собирает состояние экземпляра.
func (s *Scheduler) Status(ctx context.Context) Status {
	s.mu.RLock()
	st := Status{
		InstanceID: s.guard.InstanceID(),
		State:      s.state,
		Ticks:      s.ticks,
		Dispatched: s.dispatched,
		Failures:   s.failures,
	}
	if !s.lastTickAt.IsZero() {
		t := s.lastTickAt
		st.LastTickAt = &t
	}
	s.mu.RUnlock()

	st.IsLeader = s.guard.Valid()
	if st.IsLeader {
		d := s.guard.Deadline()
		st.LeaseDeadline = &d
	}

	leader, err := s.guard.Leader(ctx)
	if err != nil {
		st.LeaderError = err.Error()
	} else {
		st.Leader = leader
	}

	st.Jobs = s.registry.Len()
	return st
}
