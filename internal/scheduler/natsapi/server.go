package natsapi

import (
	"encoding/json"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"github.com/armadaproject/batchsched/internal/common/batchcontext"
	"github.com/armadaproject/batchsched/internal/common/logging"
	"github.com/armadaproject/batchsched/internal/scheduler/interfaces"
)

// Server answers Client requests using a local directory and execution substrate.
type Server struct {
	conn      *nats.Conn
	prefix    string
	timeout   time.Duration
	directory interfaces.Directory
	substrate interfaces.ExecutionSubstrate
	subs      []*nats.Subscription
}

func NewServer(
	conn *nats.Conn,
	prefix string,
	timeout time.Duration,
	directory interfaces.Directory,
	substrate interfaces.ExecutionSubstrate,
) *Server {
	return &Server{
		conn:      conn,
		prefix:    prefix,
		timeout:   timeout,
		directory: directory,
		substrate: substrate,
	}
}

// Run serves requests until ctx is cancelled.
func (s *Server) Run(ctx *batchcontext.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return s.Stop()
}

// Start subscribes to every request subject. Requests are served on the connection's goroutines.
func (s *Server) Start(ctx *batchcontext.Context) error {
	for _, operation := range allSubjects {
		handler := s.handler(ctx, operation)
		sub, err := s.conn.QueueSubscribe(subject(s.prefix, operation), serverQueueGroup, handler)
		if err != nil {
			return errors.WithMessage(multierror.Append(errors.WithStack(err), s.Stop()).ErrorOrNil(), "failed to subscribe")
		}
		s.subs = append(s.subs, sub)
	}
	if err := s.conn.Flush(); err != nil {
		return errors.WithStack(err)
	}
	ctx.Log.Infof("Serving requests on %s.>", s.prefix)
	return nil
}

// Stop unsubscribes from every request subject.
func (s *Server) Stop() error {
	var result *multierror.Error
	for _, sub := range s.subs {
		if err := sub.Unsubscribe(); err != nil {
			result = multierror.Append(result, errors.WithStack(err))
		}
	}
	s.subs = nil
	return result.ErrorOrNil()
}

func (s *Server) handler(ctx *batchcontext.Context, operation string) nats.MsgHandler {
	log := ctx.Log.WithField("subject", subject(s.prefix, operation))
	return func(msg *nats.Msg) {
		reqCtx, cancel := batchcontext.WithTimeout(batchcontext.New(ctx, log), s.timeout)
		defer cancel()
		result, err := s.serve(reqCtx, operation, msg.Data)
		var reply []byte
		if err != nil {
			log.WithError(err).Debug("request failed")
			reply = encodeError(err)
		} else {
			reply = encodeResult(result)
		}
		if err := msg.Respond(reply); err != nil {
			logging.WithStacktrace(log, err).Warn("failed to respond")
		}
	}
}

func (s *Server) serve(ctx *batchcontext.Context, operation string, data []byte) (interface{}, error) {
	switch operation {
	case listTargetsSubject:
		return s.directory.ListTargets(ctx)
	case listHostsSubject:
		return s.directory.ListHosts(ctx)
	case capabilitySubject:
		return s.directory.CapabilityLevel(ctx)
	case getTargetSubject:
		var req nameRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, errors.WithStack(err)
		}
		return s.directory.QueryTargetState(ctx, req.Name)
	case getHostSubject:
		var req nameRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, errors.WithStack(err)
		}
		return s.directory.QueryHostState(ctx, req.Name)
	case dispatchSubject:
		var req dispatchRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, errors.WithStack(err)
		}
		return s.substrate.Dispatch(ctx, req.Kind, req.Host, req.Units, req.Args...)
	case cancelSubject:
		var req handleRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, errors.WithStack(err)
		}
		return nil, s.substrate.Cancel(ctx, req.Handle, req.Host)
	case runningSubject:
		var req handleRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, errors.WithStack(err)
		}
		return s.substrate.IsRunning(ctx, req.Handle, req.Host)
	default:
		return nil, errors.Errorf("unknown operation %s", operation)
	}
}
