package scheduler

import (
	"time"

	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/armadaproject/batchsched/internal/common/batchcontext"
	"github.com/armadaproject/batchsched/internal/common/health"
	"github.com/armadaproject/batchsched/internal/common/logging"
	"github.com/armadaproject/batchsched/internal/scheduler/configuration"
	"github.com/armadaproject/batchsched/internal/scheduler/database"
	"github.com/armadaproject/batchsched/internal/scheduler/schedulerobjects"
)

// Scheduler is the main batch scheduling loop.
// Each cycle it plans batches against the targets known to the directory, dispatches them,
// records what was started in the in-flight registry and sleeps until the earliest dispatched
// operation completes.
type Scheduler struct {
	schedulingAlgo SchedulingAlgo
	dispatcher     *Dispatcher
	flags          *database.FlagRepository
	inFlight       *database.InFlightRepository
	config         configuration.SchedulingConfig
	metrics        *SchedulerMetrics
	// Optional. Beats after every step, stating when the next one is due.
	heartbeat *health.HeartbeatChecker
	clock     clock.Clock
	state     State
	// Number of cycles run, attached to log lines.
	tick int
}

func NewScheduler(
	schedulingAlgo SchedulingAlgo,
	dispatcher *Dispatcher,
	flags *database.FlagRepository,
	inFlight *database.InFlightRepository,
	config configuration.SchedulingConfig,
	metrics *SchedulerMetrics,
) *Scheduler {
	return &Scheduler{
		schedulingAlgo: schedulingAlgo,
		dispatcher:     dispatcher,
		flags:          flags,
		inFlight:       inFlight,
		config:         config,
		metrics:        metrics,
		clock:          clock.RealClock{},
		state:          Idle,
	}
}

// CycleResult summarises a scheduling cycle.
type CycleResult struct {
	Plan *Plan
	// Batches for which every operation was started.
	Dispatched []*schedulerobjects.Batch
	// Entries removed from the in-flight registry.
	Pruned int
	// How long to wait before the next cycle.
	Wait time.Duration
}

// WithHeartbeat makes the loop beat heartbeat after every step.
func (s *Scheduler) WithHeartbeat(heartbeat *health.HeartbeatChecker) *Scheduler {
	s.heartbeat = heartbeat
	return s
}

// Run enters the scheduling loop, which runs until ctx is cancelled.
func (s *Scheduler) Run(ctx *batchcontext.Context) error {
	ctx.Log.Infof("Starting scheduler with a time window of %s", s.config.TimeWindow)
	for {
		wait := s.step(ctx)
		if s.heartbeat != nil {
			s.heartbeat.Beat(wait)
		}
		ctx.Log.Debugf("Next cycle in %s", wait)
		select {
		case <-ctx.Done():
			ctx.Log.Infof("Context cancelled, stopping scheduler")
			return nil
		case <-s.clock.After(wait):
			s.setState(Idle)
		}
	}
}

// step runs a cycle if scheduling is enabled and returns how long to wait before the next one.
// Errors never escape a step.
func (s *Scheduler) step(ctx *batchcontext.Context) time.Duration {
	enabled, err := s.flags.Enabled(ctx)
	if err != nil {
		logging.WithStacktrace(ctx.Log, err).Error("failed to read enable flag")
		s.setState(Sleeping)
		return s.config.IdleCyclePeriod
	}
	if !enabled {
		if s.state != Disabled {
			ctx.Log.Info("Scheduling is disabled")
		}
		s.setState(Disabled)
		return s.config.DisabledPollInterval
	}
	if s.state == Disabled {
		ctx.Log.Info("Scheduling is enabled")
	}

	s.tick++
	cycleCtx := batchcontext.WithLogField(ctx, "tick", s.tick)
	result, err := s.cycle(cycleCtx)
	s.setState(Sleeping)
	if err != nil {
		logging.WithStacktrace(cycleCtx.Log, err).Error("scheduling cycle failed")
		return s.config.IdleCyclePeriod
	}
	return result.Wait
}

// cycle plans, dispatches and persists a single tick.
func (s *Scheduler) cycle(ctx *batchcontext.Context) (*CycleResult, error) {
	start := s.clock.Now()
	s.setState(Planning)
	registry, err := s.inFlight.Load(ctx)
	if err != nil {
		return nil, err
	}
	plan, err := s.schedulingAlgo.Schedule(ctx, registry, s.setState)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.ReportPlan(plan)
	}

	s.setState(Dispatching)
	executionStart := s.clock.Now()
	result := &CycleResult{Plan: plan}
	operations := 0
	for _, batch := range plan.Batches {
		batchCtx := batchcontext.WithLogField(ctx, "target", batch.Target.Name)
		executed, err := s.dispatcher.Dispatch(batchCtx, batch)
		if err != nil {
			logging.WithStacktrace(batchCtx.Log, err).Warn("rolled back batch")
			if s.metrics != nil {
				s.metrics.ReportRollback()
			}
			continue
		}
		batch.Executed = executed
		operations += len(executed)
		result.Dispatched = append(result.Dispatched, batch)
	}
	execution := s.clock.Since(executionStart)
	if s.metrics != nil {
		s.metrics.ReportDispatched(plan.Batches)
	}

	s.setState(Persisting)
	persistStart := s.clock.Now()
	now := s.clock.Now()
	result.Pruned = registry.Prune(ctx, s.dispatcher, now)
	for _, batch := range result.Dispatched {
		for _, op := range batch.Executed {
			registry.Record(op)
		}
	}
	if err := s.inFlight.Save(ctx, registry); err != nil {
		logging.WithStacktrace(ctx.Log, err).Error("failed to persist in-flight registry")
	}
	persist := s.clock.Since(persistStart)
	if s.metrics != nil {
		s.metrics.ReportInFlight(registry.Len())
	}

	result.Wait = s.wait(result.Dispatched, s.clock.Now())
	taken := s.clock.Since(start)
	if s.metrics != nil {
		s.metrics.ReportCycleTime(taken)
	}
	ctx.Log.WithFields(logrus.Fields{
		"servers":     plan.Timings.Servers,
		"targetsort":  plan.Timings.TargetSort,
		"preparables": plan.Timings.Preparables,
		"hacking":     plan.Timings.Hacking,
		"preparing":   plan.Timings.Preparing,
		"remaining":   plan.Timings.Remaining,
		"scheduled":   plan.Timings.Scheduled,
		"execution":   execution,
		"persist":     persist,
		"numServers":  plan.Lengths.Servers,
		"numTargets":  plan.Lengths.Targets,
		"numPrepare":  plan.Lengths.Preparables,
		"capacity":    plan.Capacity,
		"batches":     len(result.Dispatched),
		"operations":  operations,
		"pruned":      result.Pruned,
	}).Infof("Completed scheduling cycle in %s", taken)
	return result, nil
}

// wait returns how long to sleep after dispatching batches at now: one time window past the earliest
// completion among the dispatched operations, but no less than the minimum cycle period.
func (s *Scheduler) wait(dispatched []*schedulerobjects.Batch, now time.Time) time.Duration {
	var earliest time.Time
	for _, batch := range dispatched {
		if end, ok := schedulerobjects.EarliestEnd(batch.Executed); ok && (earliest.IsZero() || end.Before(earliest)) {
			earliest = end
		}
	}
	if earliest.IsZero() {
		return s.config.IdleCyclePeriod
	}
	wait := earliest.Sub(now) + s.config.TimeWindow
	if wait < s.config.MinCyclePeriod {
		return s.config.MinCyclePeriod
	}
	return wait
}

func (s *Scheduler) setState(state State) {
	s.state = state
	if s.metrics != nil {
		s.metrics.ReportState(state)
	}
}

// State returns the state of the loop. It must not be called concurrently with Run.
func (s *Scheduler) State() State {
	return s.state
}
