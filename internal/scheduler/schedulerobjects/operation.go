package schedulerobjects

import (
	"time"
)

// RFC3339Milli is the layout used to pass window start times to workers.
const RFC3339Milli = "2006-01-02T15:04:05.000Z07:00"

// Handle identifies a dispatched operation on the execution substrate.
type Handle string

type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Effect is the predicted change an operation makes to its target once it completes.
type Effect struct {
	Value    float64 `json:"value"`
	Security float64 `json:"security"`
	// Multiplier applied to value, only set by Restore.
	Growth float64 `json:"growth,omitempty"`
}

// Operation is one unit of scheduled work against a target.
type Operation struct {
	Id              string        `json:"id"`
	Target          string        `json:"target"`
	Kind            OperationKind `json:"kind"`
	ExecutionUnits  int           `json:"executionUnits"`
	CapacityPerUnit float64       `json:"capacityPerUnit"`
	Window          Window        `json:"window"`
	Effect          Effect        `json:"effect"`
	// Empty until allocated.
	Host string `json:"host,omitempty"`
	// Empty until dispatched.
	Handle Handle `json:"handle,omitempty"`
}

// Capacity is the host capacity the operation occupies while it runs.
func (op *Operation) Capacity() float64 {
	return float64(op.ExecutionUnits) * op.CapacityPerUnit
}

// Args are the arguments passed to the worker. The worker sleeps until the window start.
func (op *Operation) Args() []string {
	return []string{op.Target, op.Window.Start.UTC().Format(RFC3339Milli)}
}

func (op *Operation) DeepCopy() *Operation {
	if op == nil {
		return nil
	}
	rv := *op
	return &rv
}

// WithHost returns a copy of op allocated to host.
func (op *Operation) WithHost(host string) *Operation {
	rv := op.DeepCopy()
	rv.Host = host
	return rv
}

// WithHandle returns a copy of op marked as dispatched under handle.
func (op *Operation) WithHandle(handle Handle) *Operation {
	rv := op.DeepCopy()
	rv.Handle = handle
	return rv
}

// CapacityPerUnit is the host capacity consumed by a single execution unit of each kind of operation.
type CapacityPerUnit struct {
	Extract  float64 `validate:"gt=0"`
	Restore  float64 `validate:"gt=0"`
	Suppress float64 `validate:"gt=0"`
}

func (c CapacityPerUnit) For(kind OperationKind) float64 {
	switch kind {
	case Extract:
		return c.Extract
	case Restore:
		return c.Restore
	default:
		return c.Suppress
	}
}
