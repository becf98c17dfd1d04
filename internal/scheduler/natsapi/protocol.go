// Package natsapi exposes the directory and execution substrate over NATS request/reply.
//
// Every request is a JSON object sent to <prefix>.<operation>. Every reply is a JSON envelope holding either
// an error or a result.
package natsapi

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"

	"github.com/armadaproject/batchsched/internal/common/schederrors"
	"github.com/armadaproject/batchsched/internal/scheduler/schedulerobjects"
)

const (
	listTargetsSubject = "targets.list"
	listHostsSubject   = "hosts.list"
	getTargetSubject   = "targets.get"
	getHostSubject     = "hosts.get"
	capabilitySubject  = "capability"
	dispatchSubject    = "dispatch"
	cancelSubject      = "cancel"
	runningSubject     = "running"
	serverQueueGroup   = "batchsched"
)

var allSubjects = []string{
	listTargetsSubject,
	listHostsSubject,
	getTargetSubject,
	getHostSubject,
	capabilitySubject,
	dispatchSubject,
	cancelSubject,
	runningSubject,
}

func subject(prefix, operation string) string {
	return prefix + "." + operation
}

type nameRequest struct {
	Name string `json:"name"`
}

type dispatchRequest struct {
	Kind  schedulerobjects.OperationKind `json:"kind"`
	Host  string                         `json:"host"`
	Units int                            `json:"units"`
	Args  []string                       `json:"args"`
}

type handleRequest struct {
	Handle schedulerobjects.Handle `json:"handle"`
	Host   string                  `json:"host"`
}

type envelope struct {
	Error string `json:"error,omitempty"`
	// At most one of these is set alongside Error, so that clients can recover the type of the error.
	NotFound        *schederrors.ErrNotFound        `json:"notFound,omitempty"`
	InvalidArgument *schederrors.ErrInvalidArgument `json:"invalidArgument,omitempty"`
	Result          json.RawMessage                 `json:"result,omitempty"`
}

func encodeResult(result interface{}) []byte {
	raw, err := json.Marshal(result)
	if err != nil {
		return encodeError(errors.WithStack(err))
	}
	bytes, err := json.Marshal(envelope{Result: raw})
	if err != nil {
		return encodeError(errors.WithStack(err))
	}
	return bytes
}

func encodeError(err error) []byte {
	e := envelope{Error: err.Error()}
	var notFound *schederrors.ErrNotFound
	var invalid *schederrors.ErrInvalidArgument
	switch {
	case errors.As(err, &notFound):
		e.NotFound = notFound
	case errors.As(err, &invalid):
		e.InvalidArgument = &schederrors.ErrInvalidArgument{
			Name:    invalid.Name,
			Value:   fmt.Sprint(invalid.Value),
			Message: invalid.Message,
		}
	}
	bytes, marshalErr := json.Marshal(e)
	if marshalErr != nil {
		bytes, _ = json.Marshal(envelope{Error: err.Error()})
	}
	return bytes
}

// decodeEnvelope unpacks a reply into result, or returns the error it carries.
func decodeEnvelope(data []byte, result interface{}) error {
	var e envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return errors.WithMessage(err, "malformed reply")
	}
	switch {
	case e.NotFound != nil:
		return errors.WithStack(e.NotFound)
	case e.InvalidArgument != nil:
		return errors.WithStack(e.InvalidArgument)
	case e.Error != "":
		return errors.New(e.Error)
	}
	if result == nil || len(e.Result) == 0 {
		return nil
	}
	return errors.WithStack(json.Unmarshal(e.Result, result))
}
