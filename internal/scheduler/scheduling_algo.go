package scheduler

import (
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
	"k8s.io/utils/clock"

	"github.com/armadaproject/batchsched/internal/common/batchcontext"
	"github.com/armadaproject/batchsched/internal/common/logging"
	"github.com/armadaproject/batchsched/internal/common/schederrors"
	"github.com/armadaproject/batchsched/internal/scheduler/configuration"
	"github.com/armadaproject/batchsched/internal/scheduler/database"
	"github.com/armadaproject/batchsched/internal/scheduler/hostdb"
	"github.com/armadaproject/batchsched/internal/scheduler/interfaces"
	"github.com/armadaproject/batchsched/internal/scheduler/planner"
	"github.com/armadaproject/batchsched/internal/scheduler/schedulerobjects"
)

// Number of operations in a batch that includes every stage.
const fullBatchSize = 4

// SchedulingAlgo is the interface between the Scheduler loop and the planning of a tick.
type SchedulingAlgo interface {
	// Schedule produces the batches to be dispatched this tick.
	// Targets with an entry in registry that is still due are only considered once optimized.
	// transition, if not nil, is called with Allocating once planning gives way to allocation.
	Schedule(ctx *batchcontext.Context, registry database.InFlightRegistry, transition func(State)) (*Plan, error)
}

// PlanTimings records how long each step of a tick took.
type PlanTimings struct {
	Servers     time.Duration
	TargetSort  time.Duration
	Preparables time.Duration
	Hacking     time.Duration
	Preparing   time.Duration
	Remaining   time.Duration
	Scheduled   time.Duration
}

// PlanLengths records the size of the inputs of a tick.
type PlanLengths struct {
	// Targets known to the directory.
	Servers int
	// Targets that were estimated and could be planned.
	Targets int
	// Targets needing conditioning after ranking.
	Preparables int
}

type Plan struct {
	Batches []*schedulerobjects.Batch
	Timings PlanTimings
	Lengths PlanLengths
	// Capacity allocatable across hosts before any operation was bound.
	Capacity float64
	// Number of batches discarded because an Extract or Restore didn't fit.
	Shortfalls int
	// Number of full batches predicted not to restore their target.
	Inconsistent int
}

// Len returns the number of operations across all batches.
func (p *Plan) Len() int {
	n := 0
	for _, batch := range p.Batches {
		n += len(batch.Operations)
	}
	return n
}

// BatchSchedulingAlgo ranks targets, then plans and allocates batches against them until hosts, targets
// or the planning budget run out.
type BatchSchedulingAlgo struct {
	config    configuration.SchedulingConfig
	directory interfaces.Directory
	planner   *planner.Planner
	clock     clock.Clock
}

func NewBatchSchedulingAlgo(
	config configuration.SchedulingConfig,
	directory interfaces.Directory,
	clock clock.Clock,
) (*BatchSchedulingAlgo, error) {
	p, err := planner.New(config.Model.Analyzer(), config.CapacityPerUnit, config.ExtractPercent, config.TimeWindow)
	if err != nil {
		return nil, err
	}
	return &BatchSchedulingAlgo{
		config:    config,
		directory: directory,
		planner:   p,
		clock:     clock,
	}, nil
}

// Schedule runs the planning steps of a single tick.
func (l *BatchSchedulingAlgo) Schedule(
	ctx *batchcontext.Context,
	registry database.InFlightRegistry,
	transition func(State),
) (*Plan, error) {
	plan := &Plan{}
	scheduledStart := l.clock.Now()
	defer func() {
		plan.Timings.Scheduled = l.clock.Since(scheduledStart)
	}()

	// Snapshot the directory.
	stepStart := l.clock.Now()
	names, targets, hostDb, err := l.snapshot(ctx, registry)
	if err != nil {
		return nil, err
	}
	plan.Lengths.Servers = len(names)
	plan.Lengths.Targets = len(targets)
	plan.Capacity = hostDb.TotalAllocatable()
	plan.Timings.Servers = l.clock.Since(stepStart)
	ctx.Log.Debugf("Prepared host db:\n%s", hostDb)

	stepStart = l.clock.Now()
	sortTargets(targets, byProductionDescending)
	plan.Timings.TargetSort = l.clock.Since(stepStart)

	stepStart = l.clock.Now()
	ready, conditioning := partitionTargets(targets, l.config.ReadyTargetSlots)
	plan.Lengths.Preparables = len(conditioning)
	plan.Timings.Preparables = l.clock.Since(stepStart)

	if transition != nil {
		transition(Allocating)
	}
	allocator := NewAllocator(hostDb)
	a := &assignment{allocator: allocator, plan: plan, slots: l.config.ReadyTargetSlots}

	stepStart = l.clock.Now()
	if err := a.assign(ctx, ready); err != nil {
		return nil, err
	}
	plan.Timings.Hacking = l.clock.Since(stepStart)

	stepStart = l.clock.Now()
	if err := a.assign(ctx, conditioning); err != nil {
		return nil, err
	}
	plan.Timings.Preparing = l.clock.Since(stepStart)

	stepStart = l.clock.Now()
	conditioning = a.unbatched(conditioning)
	sortTargets(conditioning, byMaxValueDescending)
	anchor := l.clock.Now().Add(l.config.TimeWindow)
	for len(ready) > 0 || len(conditioning) > 0 {
		if remaining, err := allocator.HostsRemaining(); err != nil {
			return nil, err
		} else if !remaining {
			break
		}
		size := len(plan.Batches)
		if err := a.assign(ctx, l.replan(ready, anchor)); err != nil {
			return nil, err
		}
		if err := a.assign(ctx, l.replan(conditioning, anchor)); err != nil {
			return nil, err
		}
		tooManyBatches := len(plan.Batches) > len(names)
		noProgress := size == len(plan.Batches)
		outOfBudget := l.clock.Since(scheduledStart) >= l.config.PlanningBudget
		if tooManyBatches || noProgress || outOfBudget {
			break
		}
		conditioning = a.unbatched(conditioning)
		anchor = anchor.Add(l.config.TimeWindow)
	}
	plan.Timings.Remaining = l.clock.Since(stepStart)
	return plan, nil
}

// snapshot queries the directory for every target and host, returning the estimated targets eligible for
// planning and a HostDb holding the hosts operations may be allocated to.
func (l *BatchSchedulingAlgo) snapshot(
	ctx *batchcontext.Context,
	registry database.InFlightRegistry,
) ([]string, []*schedulerobjects.EstimatedTarget, *hostdb.HostDb, error) {
	queryCtx, cancel := batchcontext.WithTimeout(ctx, l.config.QueryTimeout)
	defer cancel()

	names, err := l.directory.ListTargets(queryCtx)
	if err != nil {
		return nil, nil, nil, errors.WithMessage(err, "failed to list targets")
	}
	level, err := l.directory.CapabilityLevel(queryCtx)
	if err != nil {
		return nil, nil, nil, errors.WithMessage(err, "failed to query capability level")
	}
	hostNames, err := l.directory.ListHosts(queryCtx)
	if err != nil {
		return nil, nil, nil, errors.WithMessage(err, "failed to list hosts")
	}

	now := l.clock.Now()
	targets := make([]*schedulerobjects.EstimatedTarget, 0, len(names))
	for _, name := range names {
		target, err := l.directory.QueryTargetState(queryCtx, name)
		if err != nil {
			logging.WithStacktrace(ctx.Log, err).Warnf("skipping target %s", name)
			continue
		}
		if !planner.Hackable(target, level) {
			continue
		}
		estimate := l.planner.Estimate(target, level, now)
		if len(estimate.Operations) == 0 {
			ctx.Log.Debug(
				(&schederrors.ErrPlanningInfeasible{Target: name, Reason: "planned batch is empty"}).Error(),
			)
			continue
		}
		if !estimate.Optimized() && registry.HasOperationRunning(name, now) {
			ctx.Log.Debugf("skipping target %s with operations in flight", name)
			continue
		}
		targets = append(targets, estimate)
	}

	hosts := make([]*schedulerobjects.Host, 0, len(hostNames))
	for _, name := range hostNames {
		host, err := l.directory.QueryHostState(queryCtx, name)
		if err != nil {
			logging.WithStacktrace(ctx.Log, err).Warnf("skipping host %s", name)
			continue
		}
		hosts = append(hosts, host)
	}
	hostDb, err := hostdb.NewHostDb(l.config.Reserve.Policy(), l.config.MinRemainingCapacity)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := hostDb.Upsert(hosts); err != nil {
		return nil, nil, nil, err
	}
	return names, targets, hostDb, nil
}

// replan returns copies of the targets that fit in one assignment with batches starting at start.
func (l *BatchSchedulingAlgo) replan(targets []*schedulerobjects.EstimatedTarget, start time.Time) []*schedulerobjects.EstimatedTarget {
	if len(targets) > l.config.ReadyTargetSlots {
		targets = targets[:l.config.ReadyTargetSlots]
	}
	rv := make([]*schedulerobjects.EstimatedTarget, len(targets))
	for i, target := range targets {
		replanned := *target
		replanned.Operations = l.planner.Plan(&target.Target, start)
		rv[i] = &replanned
	}
	return rv
}

// assignment accumulates the batches of a tick.
type assignment struct {
	allocator *Allocator
	plan      *Plan
	// Number of targets of each group handed to the allocator per assignment.
	slots int
}

// assign allocates the operations of the first slots targets, appending a batch for each target
// that received at least one operation.
func (a *assignment) assign(ctx *batchcontext.Context, targets []*schedulerobjects.EstimatedTarget) error {
	if len(targets) > a.slots {
		targets = targets[:a.slots]
	}
	for _, target := range targets {
		if remaining, err := a.allocator.HostsRemaining(); err != nil {
			return err
		} else if !remaining {
			return nil
		}
		targetCtx := batchcontext.WithLogField(ctx, "target", target.Name)
		result, err := a.allocator.Allocate(targetCtx, target.Name, target.Operations)
		if err != nil {
			return err
		}
		if result.Shortfall != nil {
			a.plan.Shortfalls++
		}
		if len(result.Operations) == 0 {
			continue
		}
		batch := &schedulerobjects.Batch{
			Target:     target.Target,
			Operations: result.Operations,
			Prediction: planner.Predict(&target.Target, result.Operations),
		}
		if len(result.Operations) == fullBatchSize {
			value, security := planner.Consistent(&target.Target, batch.Prediction)
			if !value || !security {
				a.plan.Inconsistent++
				targetCtx.Log.WithFields(logrus.Fields{
					"value":    batch.Prediction.Value,
					"security": batch.Prediction.Security,
				}).Warn((&schederrors.ErrInconsistentPrediction{
					Target:   target.Name,
					Value:    !value,
					Security: !security,
				}).Error())
			}
		}
		a.plan.Batches = append(a.plan.Batches, batch)
	}
	return nil
}

// unbatched returns the targets for which no batch has been planned yet.
func (a *assignment) unbatched(targets []*schedulerobjects.EstimatedTarget) []*schedulerobjects.EstimatedTarget {
	rv := make([]*schedulerobjects.EstimatedTarget, 0, len(targets))
	for _, target := range targets {
		batched := slices.ContainsFunc(a.plan.Batches, func(batch *schedulerobjects.Batch) bool {
			return batch.Target.Name == target.Name
		})
		if !batched {
			rv = append(rv, target)
		}
	}
	return rv
}
