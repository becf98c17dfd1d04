package scheduler

import (
	"golang.org/x/exp/slices"

	"github.com/armadaproject/batchsched/internal/scheduler/schedulerobjects"
)

// targetComparator orders estimated targets, returning a negative number if a sorts before b.
type targetComparator func(a, b *schedulerobjects.EstimatedTarget) int

// byProductionDescending puts the targets yielding the most value per millisecond first.
func byProductionDescending(a, b *schedulerobjects.EstimatedTarget) int {
	return compareDescending(a.ProductionPerMillisecond, b.ProductionPerMillisecond)
}

// byMaxValueDescending puts the targets with the highest value ceiling first.
func byMaxValueDescending(a, b *schedulerobjects.EstimatedTarget) int {
	return compareDescending(a.Value.Max, b.Value.Max)
}

// byDeltasDescending puts the targets furthest from optimized first: largest security excess,
// then largest value deficit, then highest value ceiling. Each delta is only compared if one
// of the two targets has a strictly positive delta.
func byDeltasDescending(a, b *schedulerobjects.EstimatedTarget) int {
	if aDelta, bDelta := a.SecurityDelta(), b.SecurityDelta(); aDelta > 0 || bDelta > 0 {
		if c := compareDescending(aDelta, bDelta); c != 0 {
			return c
		}
	}
	if aDelta, bDelta := a.ValueDelta(), b.ValueDelta(); aDelta > 0 || bDelta > 0 {
		if c := compareDescending(aDelta, bDelta); c != 0 {
			return c
		}
	}
	return byMaxValueDescending(a, b)
}

func compareDescending(a, b float64) int {
	switch {
	case a > b:
		return -1
	case a < b:
		return 1
	default:
		return 0
	}
}

// sortTargets stably sorts targets in place.
func sortTargets(targets []*schedulerobjects.EstimatedTarget, cmp targetComparator) {
	slices.SortStableFunc(targets, cmp)
}

// partitionTargets splits the first slots targets into those ready to harvest and those needing conditioning.
// Targets after the first slots are appended to the conditioning targets, furthest from optimized first.
// targets is not modified.
func partitionTargets(targets []*schedulerobjects.EstimatedTarget, slots int) (ready, conditioning []*schedulerobjects.EstimatedTarget) {
	head := targets
	var tail []*schedulerobjects.EstimatedTarget
	if len(targets) > slots {
		head = targets[:slots]
		tail = slices.Clone(targets[slots:])
	}
	for _, target := range head {
		if target.Optimized() {
			ready = append(ready, target)
		} else {
			conditioning = append(conditioning, target)
		}
	}
	sortTargets(tail, byDeltasDescending)
	return ready, append(conditioning, tail...)
}
