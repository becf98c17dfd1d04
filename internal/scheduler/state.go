package scheduler

// State is the step of the loop the scheduler is in.
type State int

const (
	Idle State = iota
	Planning
	Allocating
	Dispatching
	Persisting
	Sleeping
	// Scheduling is switched off by the enable flag.
	Disabled
)

var allStates = []State{Idle, Planning, Allocating, Dispatching, Persisting, Sleeping, Disabled}

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Planning:
		return "planning"
	case Allocating:
		return "allocating"
	case Dispatching:
		return "dispatching"
	case Persisting:
		return "persisting"
	case Sleeping:
		return "sleeping"
	case Disabled:
		return "disabled"
	default:
		return "unknown"
	}
}
