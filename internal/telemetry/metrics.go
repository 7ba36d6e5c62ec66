package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics — метрики scheduler'а.
type Metrics struct {
	Leader           prometheus.Gauge
	State            *prometheus.GaugeVec
	Ticks            prometheus.Counter
	Dispatched       *prometheus.CounterVec
	PublishFailures  *prometheus.CounterVec
	LeaseLost        prometheus.Counter
	AcquireAttempts  *prometheus.CounterVec
	TickDuration     prometheus.Histogram
	SkippedIntervals *prometheus.CounterVec
}

// NewMetrics регистрирует метрики в reg.
// В тестах передаётся prometheus.NewRegistry(), в main — DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		Leader: f.NewGauge(prometheus.GaugeOpts{
			Name: "metronome_scheduler_leader",
			Help: "1 if this instance holds the lease",
		}),
		State: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "metronome_scheduler_state",
			Help: "Current scheduler state (1 for the active state)",
		}, []string{"state"}),
		Ticks: f.NewCounter(prometheus.CounterOpts{
			Name: "metronome_scheduler_ticks_total",
			Help: "Total dispatch ticks run by the leader",
		}),
		Dispatched: f.NewCounterVec(prometheus.CounterOpts{
			Name: "metronome_scheduler_dispatched_total",
			Help: "Total work items published and advanced",
		}, []string{"job"}),
		PublishFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "metronome_scheduler_publish_failures_total",
			Help: "Total failed dispatch attempts",
		}, []string{"job"}),
		LeaseLost: f.NewCounter(prometheus.CounterOpts{
			Name: "metronome_scheduler_lease_lost_total",
			Help: "Total leadership episodes ended by lease loss",
		}),
		AcquireAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "metronome_scheduler_acquire_attempts_total",
			Help: "Lease acquisition attempts by result",
		}, []string{"result"}),
		TickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "metronome_scheduler_tick_duration_seconds",
			Help:    "Duration of dispatch ticks",
			Buckets: prometheus.DefBuckets,
		}),
		SkippedIntervals: f.NewCounterVec(prometheus.CounterOpts{
			Name: "metronome_scheduler_skipped_occurrences_total",
			Help: "Missed occurrences coalesced into a single dispatch",
		}, []string{"job"}),
	}
}

// SetState выставляет 1 для активного состояния и 0 для остальных.
func (m *Metrics) SetState(current string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == current {
			v = 1
		}
		m.State.WithLabelValues(s).Set(v)
	}
}

// WorkerMetrics — метрики worker'а.
type WorkerMetrics struct {
	Processed      *prometheus.CounterVec
	HandleDuration *prometheus.HistogramVec
	Lag            prometheus.Histogram
}

// NewWorkerMetrics регистрирует метрики worker'а в reg.
func NewWorkerMetrics(reg prometheus.Registerer) *WorkerMetrics {
	f := promauto.With(reg)

	return &WorkerMetrics{
		Processed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "metronome_worker_processed_total",
			Help: "Work items handled by result (ok, retry, dead)",
		}, []string{"job", "result"}),
		HandleDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "metronome_worker_handle_duration_seconds",
			Help:    "Duration of work item handlers",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
		Lag: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "metronome_worker_lag_seconds",
			Help:    "Delay between scheduled_for and handling start",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 300},
		}),
	}
}
