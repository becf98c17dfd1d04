package planner

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/armadaproject/batchsched/internal/common/schederrors"
	"github.com/armadaproject/batchsched/internal/scheduler/schedulerobjects"
)

const (
	// Number of phases a time window is split into. Extract and Restore complete one phase
	// before the Suppress that follows them.
	batchPhases = 4
	// Minimum growth requested from a Restore.
	minRestoreFactor = 1.1
	// Operations needing more units than this are considered infeasible.
	maxExecutionUnits = math.MaxInt32
)

// operationNamespace is used to derive operation ids, so that planning is deterministic.
var operationNamespace = uuid.MustParse("5f0c4f5e-8d0b-4a57-9a2e-3c1d2b7e6a90")

// Planner produces batches of Extract, Suppress, Restore and Suppress operations whose completions
// land in that order, each separated from the next by a quarter of the time window.
type Planner struct {
	analyzer        Analyzer
	capacityPerUnit schedulerobjects.CapacityPerUnit
	// Percentage of a target's max value to extract per batch, in (0, 100].
	extractPercent float64
	// Time between the start of the first and second Suppress.
	timeWindow time.Duration
}

func New(
	analyzer Analyzer,
	capacityPerUnit schedulerobjects.CapacityPerUnit,
	extractPercent float64,
	timeWindow time.Duration,
) (*Planner, error) {
	if analyzer == nil {
		return nil, errors.WithStack(&schederrors.ErrInvalidArgument{Name: "analyzer", Value: nil, Message: "must not be nil"})
	}
	if !(extractPercent > 0 && extractPercent <= 100) {
		return nil, errors.WithStack(&schederrors.ErrInvalidArgument{
			Name:    "extractPercent",
			Value:   extractPercent,
			Message: "must be in (0, 100]",
		})
	}
	if timeWindow <= 0 {
		return nil, errors.WithStack(&schederrors.ErrInvalidArgument{
			Name:    "timeWindow",
			Value:   timeWindow,
			Message: "must be positive",
		})
	}
	for _, kind := range schedulerobjects.AllOperationKinds {
		if capacityPerUnit.For(kind) <= 0 {
			return nil, errors.WithStack(&schederrors.ErrInvalidArgument{
				Name:    "capacityPerUnit." + kind.String(),
				Value:   capacityPerUnit.For(kind),
				Message: "must be positive",
			})
		}
	}
	return &Planner{
		analyzer:        analyzer,
		capacityPerUnit: capacityPerUnit,
		extractPercent:  extractPercent,
		timeWindow:      timeWindow,
	}, nil
}

func (p *Planner) TimeWindow() time.Duration {
	return p.timeWindow
}

// Plan returns the operations needed to drive target towards, or keep it at, its optimized state
// with the first Suppress starting at start. Operations are ordered Extract, Suppress, Restore, Suppress,
// with any not warranted by the target's state omitted. An empty result means there's nothing to do.
func (p *Planner) Plan(target *schedulerobjects.Target, start time.Time) []*schedulerobjects.Operation {
	if target.Value.Max <= 0 {
		return nil
	}
	canHarvest := target.Optimized()
	value := math.Max(1, target.Value.Available)
	maxValue := target.Value.Max

	extractUnits, extractFeasible := units(p.analyzer.ExtractUnits(target, p.extractPercent/100*maxValue))
	extractValue := math.Min(float64(extractUnits)*p.analyzer.ExtractFraction(target)*maxValue, maxValue)
	extractSecurity := p.analyzer.ExtractSecurity(extractUnits)

	baseline := value
	if canHarvest {
		baseline = maxValue - extractValue
	}
	baseline = math.Max(1, baseline)
	restoreFactor := math.Max(minRestoreFactor, maxValue/baseline)

	suppressPerUnit := p.analyzer.SuppressEffect(1)
	firstSuppress := target.SecurityDelta()
	if canHarvest {
		firstSuppress = extractSecurity
	}
	suppressUnits1, suppress1Feasible := units(divide(firstSuppress, suppressPerUnit))

	restoreUnits, restoreFeasible := units(p.analyzer.RestoreUnits(target, restoreFactor))
	restoreSecurity := p.analyzer.RestoreSecurity(restoreUnits)
	suppressUnits2, suppress2Feasible := units(divide(restoreSecurity, suppressPerUnit))

	includeExtract := canHarvest
	includeSuppress1 := target.Security.Level != target.Security.Min || canHarvest
	includeRestore := target.Value.Available != target.Value.Max || canHarvest
	if (includeExtract && !extractFeasible) ||
		(includeSuppress1 && !suppress1Feasible) ||
		(includeRestore && !(restoreFeasible && suppress2Feasible)) {
		return nil
	}

	quarter := p.timeWindow / batchPhases
	suppressDuration := target.Timing.Suppress
	suppress1 := schedulerobjects.Window{Start: start, End: start.Add(suppressDuration)}

	ops := make([]*schedulerobjects.Operation, 0, batchPhases)
	if includeExtract {
		end := suppress1.End.Add(-quarter)
		ops = append(ops, p.operation(target, schedulerobjects.Extract, extractUnits,
			schedulerobjects.Window{Start: end.Add(-target.Timing.Extract), End: end},
			schedulerobjects.Effect{Value: -extractValue, Security: extractSecurity},
		))
	}
	if includeSuppress1 {
		ops = append(ops, p.operation(target, schedulerobjects.Suppress, suppressUnits1,
			suppress1,
			schedulerobjects.Effect{Security: -float64(suppressUnits1) * suppressPerUnit},
		))
	}
	if includeRestore {
		suppress2Start := start.Add(p.timeWindow)
		suppress2 := schedulerobjects.Window{Start: suppress2Start, End: suppress2Start.Add(suppressDuration)}
		end := suppress2.End.Add(-quarter)
		ops = append(ops,
			p.operation(target, schedulerobjects.Restore, restoreUnits,
				schedulerobjects.Window{Start: end.Add(-target.Timing.Restore), End: end},
				schedulerobjects.Effect{
					Value:    (restoreFactor - 1) * baseline,
					Security: restoreSecurity,
					Growth:   restoreFactor,
				},
			),
			p.operation(target, schedulerobjects.Suppress, suppressUnits2,
				suppress2,
				schedulerobjects.Effect{Security: -float64(suppressUnits2) * suppressPerUnit},
			),
		)
	}
	for i, op := range ops {
		op.Id = operationId(target.Name, start, i)
	}
	return ops
}

func (p *Planner) operation(
	target *schedulerobjects.Target,
	kind schedulerobjects.OperationKind,
	units int,
	window schedulerobjects.Window,
	effect schedulerobjects.Effect,
) *schedulerobjects.Operation {
	return &schedulerobjects.Operation{
		Target:          target.Name,
		Kind:            kind,
		ExecutionUnits:  units,
		CapacityPerUnit: p.capacityPerUnit.For(kind),
		Window:          window,
		Effect:          effect,
	}
}

// units rounds a fractional unit count up, to at least one.
// It returns false if the count can't be represented.
func units(x float64) (int, bool) {
	if math.IsNaN(x) || math.IsInf(x, 0) || x > maxExecutionUnits {
		return 0, false
	}
	return int(math.Max(1, math.Ceil(x))), true
}

func divide(a, b float64) float64 {
	if b <= 0 {
		if a <= 0 {
			return 0
		}
		return math.Inf(1)
	}
	return a / b
}

func operationId(target string, start time.Time, index int) string {
	name := fmt.Sprintf("%s/%d/%d", target, start.UnixNano(), index)
	return uuid.NewSHA1(operationNamespace, []byte(name)).String()
}
