package schedulerobjects

import "time"

// Batch is the causally ordered set of operations planned for one target.
// Present operations are always ordered Extract, Suppress, Restore, Suppress.
type Batch struct {
	Target     Target
	Operations []*Operation
	// Predicted target state once every operation has completed.
	Prediction TargetState
	// Operations which obtained a handle on dispatch.
	Executed []*Operation
}

// EarliestEnd returns the earliest window end across ops, or false if there are none.
func EarliestEnd(ops []*Operation) (time.Time, bool) {
	if len(ops) == 0 {
		return time.Time{}, false
	}
	earliest := ops[0].Window.End
	for _, op := range ops[1:] {
		if op.Window.End.Before(earliest) {
			earliest = op.Window.End
		}
	}
	return earliest, true
}

// EstimatedTarget combines a target snapshot with the batch that would be planned against it.
type EstimatedTarget struct {
	Target
	Hackable   bool
	Operations []*Operation
	// Value extracted per millisecond by the batch's Extract, or zero if there is none.
	ProductionPerMillisecond float64
}
