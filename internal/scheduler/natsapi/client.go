package natsapi

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"github.com/armadaproject/batchsched/internal/common/batchcontext"
	"github.com/armadaproject/batchsched/internal/scheduler/schedulerobjects"
)

// Client is a Directory and ExecutionSubstrate backed by a remote Server.
type Client struct {
	conn    *nats.Conn
	prefix  string
	timeout time.Duration
}

// NewClient returns a client issuing requests on subjects under prefix.
// timeout bounds requests made with a context that has no deadline.
func NewClient(conn *nats.Conn, prefix string, timeout time.Duration) *Client {
	return &Client{
		conn:    conn,
		prefix:  prefix,
		timeout: timeout,
	}
}

func (c *Client) ListTargets(ctx *batchcontext.Context) ([]string, error) {
	var names []string
	err := c.request(ctx, listTargetsSubject, struct{}{}, &names)
	return names, err
}

func (c *Client) ListHosts(ctx *batchcontext.Context) ([]string, error) {
	var names []string
	err := c.request(ctx, listHostsSubject, struct{}{}, &names)
	return names, err
}

func (c *Client) QueryTargetState(ctx *batchcontext.Context, name string) (*schedulerobjects.Target, error) {
	target := &schedulerobjects.Target{}
	if err := c.request(ctx, getTargetSubject, nameRequest{Name: name}, target); err != nil {
		return nil, err
	}
	return target, nil
}

func (c *Client) QueryHostState(ctx *batchcontext.Context, name string) (*schedulerobjects.Host, error) {
	host := &schedulerobjects.Host{}
	if err := c.request(ctx, getHostSubject, nameRequest{Name: name}, host); err != nil {
		return nil, err
	}
	return host, nil
}

func (c *Client) CapabilityLevel(ctx *batchcontext.Context) (int, error) {
	var level int
	err := c.request(ctx, capabilitySubject, struct{}{}, &level)
	return level, err
}

func (c *Client) Dispatch(
	ctx *batchcontext.Context,
	kind schedulerobjects.OperationKind,
	host string,
	units int,
	args ...string,
) (schedulerobjects.Handle, error) {
	var handle schedulerobjects.Handle
	err := c.request(ctx, dispatchSubject, dispatchRequest{Kind: kind, Host: host, Units: units, Args: args}, &handle)
	return handle, err
}

func (c *Client) Cancel(ctx *batchcontext.Context, handle schedulerobjects.Handle, host string) error {
	return c.request(ctx, cancelSubject, handleRequest{Handle: handle, Host: host}, nil)
}

func (c *Client) IsRunning(ctx *batchcontext.Context, handle schedulerobjects.Handle, host string) (bool, error) {
	var running bool
	err := c.request(ctx, runningSubject, handleRequest{Handle: handle, Host: host}, &running)
	return running, err
}

func (c *Client) request(ctx *batchcontext.Context, operation string, req, result interface{}) error {
	data, err := json.Marshal(req)
	if err != nil {
		return errors.WithStack(err)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel func()
		ctx, cancel = batchcontext.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	s := subject(c.prefix, operation)
	msg, err := c.conn.RequestWithContext(ctx, s, data)
	if err != nil {
		return errors.Wrapf(err, "request to %s failed", s)
	}
	return decodeEnvelope(msg.Data, result)
}
