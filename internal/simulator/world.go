package simulator

import (
	"container/heap"
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/renstrom/shortuuid"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"k8s.io/utils/clock"

	"github.com/armadaproject/batchsched/internal/common/batchcontext"
	"github.com/armadaproject/batchsched/internal/common/schederrors"
	"github.com/armadaproject/batchsched/internal/scheduler/planner"
	"github.com/armadaproject/batchsched/internal/scheduler/schedulerobjects"
)

// process is an operation running in the world.
type process struct {
	handle   schedulerobjects.Handle
	target   string
	host     string
	kind     schedulerobjects.OperationKind
	units    int
	capacity float64
	end      time.Time
}

// World is an in-process stand-in for the directory and execution substrate.
// Operations hold host capacity from dispatch until they complete, at which point their effect is applied to
// their target. Completions are processed lazily, whenever the world is observed.
// World is safe for concurrent use.
type World struct {
	mu              sync.Mutex
	clock           clock.Clock
	capabilityLevel int
	capacityPerUnit schedulerobjects.CapacityPerUnit
	model           planner.LinearModel
	targets         map[string]*schedulerobjects.Target
	hosts           map[string]*schedulerobjects.Host
	processes       map[schedulerobjects.Handle]*process
	completions     completionLog
	// Sequence number of the next completion.
	sequenceNumber int
}

func NewWorld(spec *WorldSpec, clock clock.Clock) (*World, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}
	w := &World{
		clock:           clock,
		capabilityLevel: spec.CapabilityLevel,
		capacityPerUnit: spec.CapacityPerUnit,
		model:           spec.Model.analyzer(),
		targets:         make(map[string]*schedulerobjects.Target, len(spec.Targets)),
		hosts:           make(map[string]*schedulerobjects.Host, len(spec.Hosts)),
		processes:       make(map[schedulerobjects.Handle]*process),
	}
	for _, target := range spec.Targets {
		t := *target
		w.targets[t.Name] = &t
	}
	for _, host := range spec.Hosts {
		w.hosts[host.Name] = host.DeepCopy()
	}
	return w, nil
}

func (w *World) ListTargets(_ *batchcontext.Context) ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	names := maps.Keys(w.targets)
	slices.Sort(names)
	return names, nil
}

func (w *World) ListHosts(_ *batchcontext.Context) ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	names := maps.Keys(w.hosts)
	slices.Sort(names)
	return names, nil
}

func (w *World) QueryTargetState(_ *batchcontext.Context, name string) (*schedulerobjects.Target, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.advance()
	target, ok := w.targets[name]
	if !ok {
		return nil, errors.WithStack(&schederrors.ErrNotFound{Type: "target", Value: name})
	}
	rv := *target
	return &rv, nil
}

func (w *World) QueryHostState(_ *batchcontext.Context, name string) (*schedulerobjects.Host, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.advance()
	host, ok := w.hosts[name]
	if !ok {
		return nil, errors.WithStack(&schederrors.ErrNotFound{Type: "host", Value: name})
	}
	return host.DeepCopy(), nil
}

func (w *World) CapabilityLevel(_ *batchcontext.Context) (int, error) {
	return w.capabilityLevel, nil
}

// Dispatch starts an operation. args must hold the target name and may hold the time at which the operation
// should start, formatted as schedulerobjects.RFC3339Milli. Operations never start in the past.
func (w *World) Dispatch(
	_ *batchcontext.Context,
	kind schedulerobjects.OperationKind,
	hostName string,
	units int,
	args ...string,
) (schedulerobjects.Handle, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.advance()

	if units <= 0 {
		return "", errors.WithStack(&schederrors.ErrInvalidArgument{Name: "units", Value: units, Message: "must be positive"})
	}
	if len(args) == 0 {
		return "", errors.WithStack(&schederrors.ErrInvalidArgument{Name: "args", Value: args, Message: "missing target"})
	}
	target, ok := w.targets[args[0]]
	if !ok {
		return "", errors.WithStack(&schederrors.ErrNotFound{Type: "target", Value: args[0]})
	}
	host, ok := w.hosts[hostName]
	if !ok {
		return "", errors.WithStack(&schederrors.ErrNotFound{Type: "host", Value: hostName})
	}
	if !host.HasAccess {
		return "", errors.Errorf("no access to host %s", hostName)
	}
	capacity := float64(units) * w.capacityPerUnit.For(kind)
	if available := host.AvailableCapacity(); capacity > available+1e-9 {
		return "", errors.Errorf("host %s has %.2f capacity available, %.2f required", hostName, available, capacity)
	}

	now := w.clock.Now()
	start := now
	if len(args) > 1 {
		t, err := time.Parse(schedulerobjects.RFC3339Milli, args[1])
		if err != nil {
			return "", errors.WithStack(&schederrors.ErrInvalidArgument{Name: "start", Value: args[1], Message: err.Error()})
		}
		if t.After(now) {
			start = t
		}
	}

	p := &process{
		handle:   schedulerobjects.Handle(shortuuid.New()),
		target:   target.Name,
		host:     hostName,
		kind:     kind,
		units:    units,
		capacity: capacity,
		end:      start.Add(target.Timing.For(kind)),
	}
	host.UsedCapacity += capacity
	w.processes[p.handle] = p
	heap.Push(&w.completions, completion{time: p.end, sequenceNumber: w.sequenceNumber, handle: p.handle})
	w.sequenceNumber++
	return p.handle, nil
}

// Cancel stops a running operation without applying its effect. Cancelling a completed operation is a no-op.
func (w *World) Cancel(_ *batchcontext.Context, handle schedulerobjects.Handle, hostName string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.advance()
	p, ok := w.processes[handle]
	if !ok {
		return nil
	}
	if p.host != hostName {
		return errors.WithStack(&schederrors.ErrNotFound{Type: "process", Value: string(handle), Message: "not running on " + hostName})
	}
	w.release(p)
	return nil
}

func (w *World) IsRunning(_ *batchcontext.Context, handle schedulerobjects.Handle, hostName string) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.advance()
	p, ok := w.processes[handle]
	return ok && p.host == hostName, nil
}

// Running returns the number of operations in flight.
func (w *World) Running() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.advance()
	return len(w.processes)
}

// advance completes every operation whose end has passed, in order of completion.
func (w *World) advance() {
	now := w.clock.Now()
	for w.completions.Len() > 0 && !w.completions[0].time.After(now) {
		c := heap.Pop(&w.completions).(completion)
		p, ok := w.processes[c.handle]
		if !ok {
			// Cancelled.
			continue
		}
		w.apply(p)
		w.release(p)
	}
}

func (w *World) release(p *process) {
	delete(w.processes, p.handle)
	if host, ok := w.hosts[p.host]; ok {
		host.UsedCapacity = math.Max(0, host.UsedCapacity-p.capacity)
	}
}

func (w *World) apply(p *process) {
	target, ok := w.targets[p.target]
	if !ok {
		return
	}
	switch p.kind {
	case schedulerobjects.Extract:
		drained := math.Min(float64(p.units)*w.model.ExtractFraction(target)*target.Value.Max, target.Value.Available)
		target.Value.Available -= drained
		target.Security.Level += w.model.ExtractSecurity(p.units)
	case schedulerobjects.Restore:
		grown := math.Max(1, target.Value.Available) * math.Pow(target.GrowthRate, float64(p.units))
		target.Value.Available = math.Min(grown, target.Value.Max)
		target.Security.Level += w.model.RestoreSecurity(p.units)
	case schedulerobjects.Suppress:
		target.Security.Level = math.Max(target.Security.Min, target.Security.Level-w.model.SuppressEffect(p.units))
	}
}
