package scheduler

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/armadaproject/batchsched/internal/scheduler/schedulerobjects"
)

const (
	NAMESPACE = "batchsched"
	SUBSYSTEM = "scheduler"
)

type SchedulerMetrics struct {
	// Time taken by a complete tick, planning to persistence.
	cycleTime prometheus.Histogram
	// Time taken planning and allocating a tick.
	planningTime prometheus.Histogram
	// Number of batches dispatched per tick.
	batches prometheus.Histogram
	// Operations started, by kind.
	dispatchedOperations *prometheus.CounterVec
	// Batches rolled back after a dispatch failure.
	rollbacks prometheus.Counter
	// Batches discarded because an Extract or Restore didn't fit on any host.
	shortfalls prometheus.Counter
	// Full batches predicted not to restore their target.
	inconsistentPredictions prometheus.Counter
	// Entries in the in-flight registry after each tick.
	inFlight prometheus.Gauge
	// 1 for the state the scheduler is in, 0 otherwise.
	state *prometheus.GaugeVec
}

func NewSchedulerMetrics(registerer prometheus.Registerer) (*SchedulerMetrics, error) {
	m := &SchedulerMetrics{
		cycleTime: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: NAMESPACE,
				Subsystem: SUBSYSTEM,
				Name:      "cycle_time_seconds",
				Help:      "Time taken by a scheduling cycle.",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
			},
		),
		planningTime: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: NAMESPACE,
				Subsystem: SUBSYSTEM,
				Name:      "planning_time_seconds",
				Help:      "Time taken planning and allocating batches in a scheduling cycle.",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
			},
		),
		batches: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: NAMESPACE,
				Subsystem: SUBSYSTEM,
				Name:      "batches",
				Help:      "Number of batches dispatched each cycle.",
				Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100},
			},
		),
		dispatchedOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: NAMESPACE,
				Subsystem: SUBSYSTEM,
				Name:      "dispatched_operations_total",
				Help:      "Number of operations dispatched.",
			},
			[]string{"kind"},
		),
		rollbacks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: NAMESPACE,
				Subsystem: SUBSYSTEM,
				Name:      "rollbacks_total",
				Help:      "Number of batches rolled back after a dispatch failure.",
			},
		),
		shortfalls: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: NAMESPACE,
				Subsystem: SUBSYSTEM,
				Name:      "allocation_shortfalls_total",
				Help:      "Number of batches discarded for lack of host capacity.",
			},
		),
		inconsistentPredictions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: NAMESPACE,
				Subsystem: SUBSYSTEM,
				Name:      "inconsistent_predictions_total",
				Help:      "Number of full batches predicted not to restore their target.",
			},
		),
		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: NAMESPACE,
				Subsystem: SUBSYSTEM,
				Name:      "in_flight_operations",
				Help:      "Number of operations in the in-flight registry.",
			},
		),
		state: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: NAMESPACE,
				Subsystem: SUBSYSTEM,
				Name:      "state",
				Help:      "State of the scheduler loop.",
			},
			[]string{"state"},
		),
	}
	for _, c := range []prometheus.Collector{
		m.cycleTime,
		m.planningTime,
		m.batches,
		m.dispatchedOperations,
		m.rollbacks,
		m.shortfalls,
		m.inconsistentPredictions,
		m.inFlight,
		m.state,
	} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (metrics *SchedulerMetrics) ReportCycleTime(cycleTime time.Duration) {
	metrics.cycleTime.Observe(cycleTime.Seconds())
}

func (metrics *SchedulerMetrics) ReportPlan(plan *Plan) {
	metrics.planningTime.Observe(plan.Timings.Scheduled.Seconds())
	metrics.shortfalls.Add(float64(plan.Shortfalls))
	metrics.inconsistentPredictions.Add(float64(plan.Inconsistent))
}

// ReportDispatched records the batches of a tick that were started successfully.
func (metrics *SchedulerMetrics) ReportDispatched(batches []*schedulerobjects.Batch) {
	n := 0
	for _, batch := range batches {
		if len(batch.Executed) == 0 {
			continue
		}
		n++
		for _, op := range batch.Executed {
			metrics.dispatchedOperations.WithLabelValues(op.Kind.String()).Inc()
		}
	}
	metrics.batches.Observe(float64(n))
}

func (metrics *SchedulerMetrics) ReportRollback() {
	metrics.rollbacks.Inc()
}

func (metrics *SchedulerMetrics) ReportInFlight(n int) {
	metrics.inFlight.Set(float64(n))
}

func (metrics *SchedulerMetrics) ReportState(current State) {
	for _, s := range allStates {
		v := 0.0
		if s == current {
			v = 1
		}
		metrics.state.WithLabelValues(s.String()).Set(v)
	}
}
