package scheduler

import (
	"github.com/pkg/errors"

	"github.com/armadaproject/batchsched/internal/common/batchcontext"
	"github.com/armadaproject/batchsched/internal/common/schederrors"
	"github.com/armadaproject/batchsched/internal/scheduler/hostdb"
	"github.com/armadaproject/batchsched/internal/scheduler/schedulerobjects"
)

// AllocationResult is the outcome of allocating one batch.
type AllocationResult struct {
	// Copies of the allocated operations, in their original order, stamped with a host.
	Operations []*schedulerobjects.Operation
	// Suppress operations left out for lack of capacity.
	Skipped []*schedulerobjects.Operation
	// Set if an Extract or Restore couldn't be placed. No operations are allocated in that case.
	Shortfall *schederrors.ErrAllocationShortfall
}

// Allocator places the operations of a batch onto hosts, best fit first.
type Allocator struct {
	hostDb *hostdb.HostDb
}

func NewAllocator(hostDb *hostdb.HostDb) *Allocator {
	return &Allocator{hostDb: hostDb}
}

// Allocate places each operation, in order, on the host with the least available capacity that fits it.
// A Suppress that fits nowhere is skipped. An Extract or Restore that fits nowhere discards every allocation
// made for the batch, since a partial batch would break its completion order.
// Allocations are committed to the HostDb, so later calls see the reduced capacity. ops is not mutated.
func (a *Allocator) Allocate(ctx *batchcontext.Context, target string, ops []*schedulerobjects.Operation) (*AllocationResult, error) {
	txn := a.hostDb.Txn(true)
	defer txn.Abort()

	result := &AllocationResult{}
	for _, op := range ops {
		host, err := a.hostDb.SelectHostWithTxn(txn, op.CapacityPerUnit, op.ExecutionUnits)
		if err != nil {
			return nil, err
		}
		if host == nil {
			shortfall := &schederrors.ErrAllocationShortfall{
				Target:   target,
				Kind:     op.Kind.String(),
				Units:    op.ExecutionUnits,
				Capacity: op.Capacity(),
			}
			if op.Kind == schedulerobjects.Suppress {
				ctx.Log.Debug(shortfall.Error())
				result.Skipped = append(result.Skipped, op)
				continue
			}
			ctx.Log.Debugf("%s; discarding batch", shortfall)
			return &AllocationResult{Shortfall: shortfall, Skipped: result.Skipped}, nil
		}
		if _, err := a.hostDb.BindWithTxn(txn, host, op.Capacity()); err != nil {
			return nil, errors.WithMessagef(err, "failed to bind %s operation for %s", op.Kind, target)
		}
		result.Operations = append(result.Operations, op.WithHost(host.Name))
	}
	txn.Commit()
	return result, nil
}

// HostsRemaining returns true if at least one host can still receive operations.
func (a *Allocator) HostsRemaining() (bool, error) {
	empty, err := a.hostDb.EmptyWithTxn(a.hostDb.Txn(false))
	return !empty, err
}
