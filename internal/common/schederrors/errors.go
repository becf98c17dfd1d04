// Package schederrors contains the error types returned along the scheduling path.
//
// None of these errors stop the scheduler loop. Callers use errors.As to recover the type and decide whether a
// target or batch should be skipped for the current tick. If several errors occur at once (e.g., when rolling back
// a batch), they are combined with github.com/hashicorp/go-multierror.
package schederrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrInvalidArgument is returned when a caller provides a value outside the accepted range.
// Message is optional and is omitted from the error message if not provided.
type ErrInvalidArgument struct {
	Name    string      // Name of the field referred to, e.g., "extractPercent"
	Value   interface{} // The invalid value that was provided
	Message string      // An optional message explaining why the value is invalid
}

func (err *ErrInvalidArgument) Error() string {
	if err.Message == "" {
		return fmt.Sprintf("value %v is invalid for field %q", err.Value, err.Name)
	}
	return fmt.Sprintf("value %v is invalid for field %q; %s", err.Value, err.Name, err.Message)
}

// ErrNotFound is returned whenever some resource, e.g., a target or a handle, can't be found.
type ErrNotFound struct {
	Type    string
	Value   string
	Message string
}

func (err *ErrNotFound) Error() (s string) {
	if err.Type != "" {
		s = fmt.Sprintf("resource %q of type %q does not exist", err.Value, err.Type)
	} else {
		s = fmt.Sprintf("resource %q does not exist", err.Value)
	}
	if err.Message != "" {
		return s + fmt.Sprintf("; %s", err.Message)
	}
	return s
}

// ErrPlanningInfeasible indicates that no usable operation could be planned for a target.
// The target is left out of the current tick.
type ErrPlanningInfeasible struct {
	Target string
	Reason string
}

func (err *ErrPlanningInfeasible) Error() string {
	return fmt.Sprintf("no operations could be planned for target %q: %s", err.Target, err.Reason)
}

// ErrAllocationShortfall indicates that no host had capacity for an operation.
type ErrAllocationShortfall struct {
	Target   string
	Kind     string
	Units    int
	Capacity float64
}

func (err *ErrAllocationShortfall) Error() string {
	return fmt.Sprintf(
		"no host can fit %d units of %s (%.2f capacity) for target %q",
		err.Units, err.Kind, err.Capacity, err.Target,
	)
}

// ErrDispatchFailure indicates that the execution substrate refused to start an operation.
type ErrDispatchFailure struct {
	Target string
	Kind   string
	Host   string
	Cause  error
}

func (err *ErrDispatchFailure) Error() string {
	msg := fmt.Sprintf("failed to dispatch %s on host %q for target %q", err.Kind, err.Host, err.Target)
	if err.Cause != nil {
		msg += ": " + err.Cause.Error()
	}
	return msg
}

func (err *ErrDispatchFailure) Unwrap() error {
	return err.Cause
}

// ErrInconsistentPrediction is a diagnostic: a full batch is predicted not to return its target to the state it
// started from. It is logged and never blocks dispatch.
type ErrInconsistentPrediction struct {
	Target   string
	Value    bool // True if the predicted value differs from the current one.
	Security bool // True if the predicted security differs from the current one.
}

func (err *ErrInconsistentPrediction) Error() string {
	s := fmt.Sprintf("found instability when predicting batch for %q:", err.Target)
	if err.Value {
		s += " value"
	}
	if err.Security {
		s += " security"
	}
	return s
}

// IsNotFound returns true if err, or any error it wraps, is an *ErrNotFound.
func IsNotFound(err error) bool {
	var e *ErrNotFound
	return errors.As(err, &e)
}
