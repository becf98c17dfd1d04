package scheduler

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/armadaproject/batchsched/internal/common/batchcontext"
	"github.com/armadaproject/batchsched/internal/common/schederrors"
	"github.com/armadaproject/batchsched/internal/scheduler/configuration"
	"github.com/armadaproject/batchsched/internal/scheduler/hostdb"
	"github.com/armadaproject/batchsched/internal/scheduler/schedulerobjects"
)

var (
	baseTime            = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	testCapacityPerUnit = schedulerobjects.CapacityPerUnit{Extract: 1.7, Restore: 1.75, Suppress: 1.75}
)

func testSchedulingConfig() configuration.SchedulingConfig {
	return configuration.SchedulingConfig{
		ExtractPercent:       25,
		TimeWindow:           200 * time.Millisecond,
		PlanningBudget:       time.Second,
		MinCyclePeriod:       100 * time.Millisecond,
		IdleCyclePeriod:      5 * time.Second,
		DisabledPollInterval: 10 * time.Second,
		ReadyTargetSlots:     3,
		QueryTimeout:         time.Second,
		CapacityPerUnit:      testCapacityPerUnit,
		MinRemainingCapacity: 2,
		EnabledByDefault:     true,
		Model: configuration.ModelConfig{
			ExtractSecurityPerUnit: 0.002,
			RestoreSecurityPerUnit: 0.004,
			SuppressPerUnit:        0.05,
		},
	}
}

// testTarget returns a target whose batches need 125 Extract units, given the test config.
func testTarget(name string, available, level float64) *schedulerobjects.Target {
	return &schedulerobjects.Target{
		Name:          name,
		HasAccess:     true,
		RequiredLevel: 10,
		Value:         schedulerobjects.Value{Available: available, Max: 1_000_000},
		Security:      schedulerobjects.Security{Level: level, Min: 5},
		GrowthRate:    1.01,
		ExtractRate:   0.002,
		Timing: schedulerobjects.Timing{
			Extract:  time.Second,
			Restore:  3200 * time.Millisecond,
			Suppress: 4 * time.Second,
		},
	}
}

func optimizedTarget(name string, maxValue float64) *schedulerobjects.Target {
	t := testTarget(name, maxValue, 5)
	t.Value.Max = maxValue
	return t
}

func testHost(name string, capacity float64) *schedulerobjects.Host {
	return &schedulerobjects.Host{Name: name, HasAccess: true, MaxCapacity: capacity}
}

func testHostDb(t *testing.T, minRemaining float64, hosts ...*schedulerobjects.Host) *hostdb.HostDb {
	db, err := hostdb.NewHostDb(hostdb.ReservePolicy{}, minRemaining)
	require.NoError(t, err)
	require.NoError(t, db.Upsert(hosts))
	return db
}

func testOperation(kind schedulerobjects.OperationKind, units int) *schedulerobjects.Operation {
	return &schedulerobjects.Operation{
		Id:              fmt.Sprintf("%s-%d", kind, units),
		Target:          "joesguns",
		Kind:            kind,
		ExecutionUnits:  units,
		CapacityPerUnit: testCapacityPerUnit.For(kind),
		Window:          schedulerobjects.Window{Start: baseTime, End: baseTime.Add(time.Second)},
	}
}

func kinds(ops []*schedulerobjects.Operation) []schedulerobjects.OperationKind {
	rv := make([]schedulerobjects.OperationKind, len(ops))
	for i, op := range ops {
		rv[i] = op.Kind
	}
	return rv
}

// fakeDirectory serves fixed targets and hosts.
type fakeDirectory struct {
	targets    []*schedulerobjects.Target
	hosts      []*schedulerobjects.Host
	level      int
	targetErrs map[string]error
	hostErrs   map[string]error
	listErr    error
}

func newFakeDirectory(targets []*schedulerobjects.Target, hosts ...*schedulerobjects.Host) *fakeDirectory {
	return &fakeDirectory{targets: targets, hosts: hosts, level: 100}
}

func (d *fakeDirectory) ListTargets(_ *batchcontext.Context) ([]string, error) {
	if d.listErr != nil {
		return nil, d.listErr
	}
	names := make([]string, len(d.targets))
	for i, t := range d.targets {
		names[i] = t.Name
	}
	return names, nil
}

func (d *fakeDirectory) ListHosts(_ *batchcontext.Context) ([]string, error) {
	names := make([]string, len(d.hosts))
	for i, h := range d.hosts {
		names[i] = h.Name
	}
	return names, nil
}

func (d *fakeDirectory) QueryTargetState(_ *batchcontext.Context, name string) (*schedulerobjects.Target, error) {
	if err := d.targetErrs[name]; err != nil {
		return nil, err
	}
	for _, t := range d.targets {
		if t.Name == name {
			rv := *t
			return &rv, nil
		}
	}
	return nil, errors.WithStack(&schederrors.ErrNotFound{Type: "target", Value: name})
}

func (d *fakeDirectory) QueryHostState(_ *batchcontext.Context, name string) (*schedulerobjects.Host, error) {
	if err := d.hostErrs[name]; err != nil {
		return nil, err
	}
	for _, h := range d.hosts {
		if h.Name == name {
			return h.DeepCopy(), nil
		}
	}
	return nil, errors.WithStack(&schederrors.ErrNotFound{Type: "host", Value: name})
}

func (d *fakeDirectory) CapabilityLevel(_ *batchcontext.Context) (int, error) {
	return d.level, nil
}

// fakeSubstrate records every call made to it. dispatchErr, if set, decides whether a dispatch fails.
type fakeSubstrate struct {
	mu          sync.Mutex
	dispatched  []*schedulerobjects.Operation
	cancelled   []schedulerobjects.Handle
	running     map[schedulerobjects.Handle]bool
	dispatchErr func(kind schedulerobjects.OperationKind, host string, n int) error
	cancelErr   error
	emptyHandle bool
	calls       int
}

func newFakeSubstrate() *fakeSubstrate {
	return &fakeSubstrate{running: make(map[schedulerobjects.Handle]bool)}
}

func (s *fakeSubstrate) Dispatch(
	_ *batchcontext.Context,
	kind schedulerobjects.OperationKind,
	host string,
	units int,
	args ...string,
) (schedulerobjects.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.calls
	s.calls++
	if s.dispatchErr != nil {
		if err := s.dispatchErr(kind, host, n); err != nil {
			return "", err
		}
	}
	if s.emptyHandle {
		return "", nil
	}
	handle := schedulerobjects.Handle(fmt.Sprintf("handle-%d", n))
	s.running[handle] = true
	s.dispatched = append(s.dispatched, &schedulerobjects.Operation{
		Target:         args[0],
		Kind:           kind,
		Host:           host,
		ExecutionUnits: units,
		Handle:         handle,
	})
	return handle, nil
}

func (s *fakeSubstrate) Cancel(_ *batchcontext.Context, handle schedulerobjects.Handle, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = append(s.cancelled, handle)
	if s.cancelErr != nil {
		return s.cancelErr
	}
	delete(s.running, handle)
	return nil
}

func (s *fakeSubstrate) IsRunning(_ *batchcontext.Context, handle schedulerobjects.Handle, _ string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running[handle], nil
}
