package planner

import (
	"math"

	"github.com/armadaproject/batchsched/internal/scheduler/schedulerobjects"
)

// predictionTolerance is the relative error below which a prediction is considered to match.
const predictionTolerance = 1e-9

// Predict returns the state target is expected to be in once every operation in ops has completed.
// Value never exceeds the target's max and security never drops below its min.
func Predict(target *schedulerobjects.Target, ops []*schedulerobjects.Operation) schedulerobjects.TargetState {
	state := target.State()
	for _, op := range ops {
		state.Value = math.Min(state.Value+op.Effect.Value, target.Value.Max)
		state.Security = math.Max(state.Security+op.Effect.Security, target.Security.Min)
	}
	return state
}

// Consistent reports whether a prediction returns target to its current value and security.
func Consistent(target *schedulerobjects.Target, prediction schedulerobjects.TargetState) (value bool, security bool) {
	return approxEqual(target.Value.Available, prediction.Value), approxEqual(target.Security.Level, prediction.Security)
}

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) <= predictionTolerance*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}
