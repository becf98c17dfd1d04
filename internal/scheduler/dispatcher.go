package scheduler

import (
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/armadaproject/batchsched/internal/common/batchcontext"
	"github.com/armadaproject/batchsched/internal/common/schederrors"
	"github.com/armadaproject/batchsched/internal/scheduler/interfaces"
	"github.com/armadaproject/batchsched/internal/scheduler/schedulerobjects"
)

// Dispatcher starts the operations of a batch on their hosts.
type Dispatcher struct {
	substrate    interfaces.ExecutionSubstrate
	queryTimeout time.Duration
}

func NewDispatcher(substrate interfaces.ExecutionSubstrate, queryTimeout time.Duration) *Dispatcher {
	return &Dispatcher{
		substrate:    substrate,
		queryTimeout: queryTimeout,
	}
}

// Dispatch starts every operation of batch in order, returning copies of the operations stamped with their handle.
// If any operation can't be started, the operations already started are cancelled in reverse order and an
// *schederrors.ErrDispatchFailure is returned. Errors cancelling operations are attached to it.
func (d *Dispatcher) Dispatch(ctx *batchcontext.Context, batch *schedulerobjects.Batch) ([]*schedulerobjects.Operation, error) {
	executed := make([]*schedulerobjects.Operation, 0, len(batch.Operations))
	for _, op := range batch.Operations {
		handle, err := d.dispatch(ctx, op)
		if err == nil && handle == "" {
			err = errors.New("no handle returned")
		}
		if err != nil {
			failure := &schederrors.ErrDispatchFailure{
				Target: op.Target,
				Kind:   op.Kind.String(),
				Host:   op.Host,
				Cause:  err,
			}
			if rollbackErr := d.rollback(ctx, executed); rollbackErr != nil {
				return nil, errors.WithStack(&schederrors.ErrDispatchFailure{
					Target: failure.Target,
					Kind:   failure.Kind,
					Host:   failure.Host,
					Cause:  multierror.Append(err, rollbackErr),
				})
			}
			return nil, errors.WithStack(failure)
		}
		executed = append(executed, op.WithHandle(handle))
	}
	return executed, nil
}

func (d *Dispatcher) dispatch(ctx *batchcontext.Context, op *schedulerobjects.Operation) (schedulerobjects.Handle, error) {
	dispatchCtx, cancel := batchcontext.WithTimeout(ctx, d.queryTimeout)
	defer cancel()
	return d.substrate.Dispatch(dispatchCtx, op.Kind, op.Host, op.ExecutionUnits, op.Args()...)
}

// rollback cancels executed in reverse order. Every cancellation is attempted, even after a failure.
func (d *Dispatcher) rollback(ctx *batchcontext.Context, executed []*schedulerobjects.Operation) error {
	var result *multierror.Error
	for i := len(executed) - 1; i >= 0; i-- {
		op := executed[i]
		cancelCtx, cancel := batchcontext.WithTimeout(ctx, d.queryTimeout)
		err := d.substrate.Cancel(cancelCtx, op.Handle, op.Host)
		cancel()
		if err != nil {
			result = multierror.Append(result, errors.WithMessagef(err, "failed to cancel %s %s on %s", op.Kind, op.Handle, op.Host))
		}
	}
	return result.ErrorOrNil()
}

// IsRunning implements database.RunningChecker on top of the execution substrate.
func (d *Dispatcher) IsRunning(ctx *batchcontext.Context, handle schedulerobjects.Handle, host string) (bool, error) {
	queryCtx, cancel := batchcontext.WithTimeout(ctx, d.queryTimeout)
	defer cancel()
	return d.substrate.IsRunning(queryCtx, handle, host)
}
