package planner

import (
	"math"
	"time"

	"github.com/armadaproject/batchsched/internal/scheduler/schedulerobjects"
)

// Hackable returns true if operations may be run against target by a caller at capabilityLevel.
func Hackable(target *schedulerobjects.Target, capabilityLevel int) bool {
	return target.HasAccess && capabilityLevel >= target.RequiredLevel && target.Value.Max > 0
}

// Estimate plans a batch against target starting at start and derives the rate at which it yields value.
// Targets that aren't hackable get no operations and a zero rate.
func (p *Planner) Estimate(target *schedulerobjects.Target, capabilityLevel int, start time.Time) *schedulerobjects.EstimatedTarget {
	estimate := &schedulerobjects.EstimatedTarget{
		Target:   *target,
		Hackable: Hackable(target, capabilityLevel),
	}
	if !estimate.Hackable {
		return estimate
	}
	estimate.Operations = p.Plan(target, start)
	if len(estimate.Operations) > 0 {
		first := estimate.Operations[0]
		if first.Kind == schedulerobjects.Extract {
			if ms := float64(first.Window.Duration()) / float64(time.Millisecond); ms > 0 {
				estimate.ProductionPerMillisecond = math.Abs(first.Effect.Value) / ms
			}
		}
	}
	return estimate
}
