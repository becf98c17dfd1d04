package interfaces

import (
	"github.com/armadaproject/batchsched/internal/common/batchcontext"
	"github.com/armadaproject/batchsched/internal/scheduler/schedulerobjects"
)

// Directory lists the targets and hosts known to the scheduler and reports their live state.
type Directory interface {
	ListTargets(ctx *batchcontext.Context) ([]string, error)
	ListHosts(ctx *batchcontext.Context) ([]string, error)
	QueryTargetState(ctx *batchcontext.Context, name string) (*schedulerobjects.Target, error)
	QueryHostState(ctx *batchcontext.Context, name string) (*schedulerobjects.Host, error)
	// CapabilityLevel is compared against each target's required level.
	CapabilityLevel(ctx *batchcontext.Context) (int, error)
}

// ExecutionSubstrate runs operations on hosts.
type ExecutionSubstrate interface {
	// Dispatch starts units execution units of an operation of the given kind on host.
	Dispatch(ctx *batchcontext.Context, kind schedulerobjects.OperationKind, host string, units int, args ...string) (schedulerobjects.Handle, error)
	// Cancel stops a dispatched operation.
	Cancel(ctx *batchcontext.Context, handle schedulerobjects.Handle, host string) error
	// IsRunning reports whether a dispatched operation is still running.
	IsRunning(ctx *batchcontext.Context, handle schedulerobjects.Handle, host string) (bool, error)
}
