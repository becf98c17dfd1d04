package simulator

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clock "k8s.io/utils/clock/testing"

	"github.com/armadaproject/batchsched/internal/common/batchcontext"
	"github.com/armadaproject/batchsched/internal/common/schederrors"
	"github.com/armadaproject/batchsched/internal/scheduler/schedulerobjects"
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testWorldSpec() *WorldSpec {
	return &WorldSpec{
		CapabilityLevel: 10,
		CapacityPerUnit: schedulerobjects.CapacityPerUnit{Extract: 1.7, Restore: 1.75, Suppress: 1.75},
		Model:           ModelSpec{ExtractSecurityPerUnit: 0.002, RestoreSecurityPerUnit: 0.004, SuppressPerUnit: 0.05},
		Hosts: []*schedulerobjects.Host{
			{Name: "home", HasAccess: true, MaxCapacity: 32},
			{Name: "locked", HasAccess: false, MaxCapacity: 32},
		},
		Targets: []*schedulerobjects.Target{
			{
				Name:        "joesguns",
				HasAccess:   true,
				Value:       schedulerobjects.Value{Available: 1000, Max: 1000},
				Security:    schedulerobjects.Security{Level: 5, Min: 5},
				GrowthRate:  1.01,
				ExtractRate: 0.01,
				Timing: schedulerobjects.Timing{
					Extract:  time.Second,
					Restore:  3 * time.Second,
					Suppress: 4 * time.Second,
				},
			},
		},
	}
}

func newTestWorld(t *testing.T) (*World, *clock.FakeClock) {
	fakeClock := clock.NewFakeClock(baseTime)
	w, err := NewWorld(testWorldSpec(), fakeClock)
	require.NoError(t, err)
	return w, fakeClock
}

func TestWorld_ExtractCompletes(t *testing.T) {
	ctx := batchcontext.Background()
	w, fakeClock := newTestWorld(t)

	handle, err := w.Dispatch(ctx, schedulerobjects.Extract, "home", 10, "joesguns")
	require.NoError(t, err)
	assert.NotEmpty(t, handle)

	host, err := w.QueryHostState(ctx, "home")
	require.NoError(t, err)
	assert.InDelta(t, 17, host.UsedCapacity, 1e-9)
	running, err := w.IsRunning(ctx, handle, "home")
	require.NoError(t, err)
	assert.True(t, running)

	fakeClock.Step(time.Second)

	running, err = w.IsRunning(ctx, handle, "home")
	require.NoError(t, err)
	assert.False(t, running)
	host, err = w.QueryHostState(ctx, "home")
	require.NoError(t, err)
	assert.InDelta(t, 0, host.UsedCapacity, 1e-9)
	target, err := w.QueryTargetState(ctx, "joesguns")
	require.NoError(t, err)
	assert.InDelta(t, 900, target.Value.Available, 1e-9)
	assert.InDelta(t, 5.02, target.Security.Level, 1e-9)
}

func TestWorld_EffectsAreClamped(t *testing.T) {
	ctx := batchcontext.Background()
	w, fakeClock := newTestWorld(t)

	_, err := w.Dispatch(ctx, schedulerobjects.Suppress, "home", 10, "joesguns")
	require.NoError(t, err)
	_, err = w.Dispatch(ctx, schedulerobjects.Restore, "home", 5, "joesguns")
	require.NoError(t, err)
	fakeClock.Step(5 * time.Second)

	target, err := w.QueryTargetState(ctx, "joesguns")
	require.NoError(t, err)
	assert.Equal(t, 1000.0, target.Value.Available)
	// Restore completes before Suppress, which brings security back to its floor.
	assert.Equal(t, 5.0, target.Security.Level)
}

func TestWorld_StartTimeDelaysCompletion(t *testing.T) {
	ctx := batchcontext.Background()
	w, fakeClock := newTestWorld(t)

	start := baseTime.Add(2 * time.Second).Format(schedulerobjects.RFC3339Milli)
	handle, err := w.Dispatch(ctx, schedulerobjects.Extract, "home", 1, "joesguns", start)
	require.NoError(t, err)

	fakeClock.Step(2500 * time.Millisecond)
	running, err := w.IsRunning(ctx, handle, "home")
	require.NoError(t, err)
	assert.True(t, running)

	fakeClock.Step(500 * time.Millisecond)
	running, err = w.IsRunning(ctx, handle, "home")
	require.NoError(t, err)
	assert.False(t, running)
}

func TestWorld_CancelReleasesCapacityWithoutEffect(t *testing.T) {
	ctx := batchcontext.Background()
	w, fakeClock := newTestWorld(t)

	handle, err := w.Dispatch(ctx, schedulerobjects.Extract, "home", 10, "joesguns")
	require.NoError(t, err)
	require.NoError(t, w.Cancel(ctx, handle, "home"))
	assert.Equal(t, 0, w.Running())

	fakeClock.Step(time.Minute)
	target, err := w.QueryTargetState(ctx, "joesguns")
	require.NoError(t, err)
	assert.Equal(t, 1000.0, target.Value.Available)
	host, err := w.QueryHostState(ctx, "home")
	require.NoError(t, err)
	assert.Equal(t, 0.0, host.UsedCapacity)

	// Cancelling again is a no-op.
	assert.NoError(t, w.Cancel(ctx, handle, "home"))
}

func TestWorld_DispatchErrors(t *testing.T) {
	tests := map[string]struct {
		kind       schedulerobjects.OperationKind
		host       string
		units      int
		args       []string
		isNotFound bool
	}{
		"unknown host": {
			kind:       schedulerobjects.Suppress,
			host:       "missing",
			units:      1,
			args:       []string{"joesguns"},
			isNotFound: true,
		},
		"unknown target": {
			kind:       schedulerobjects.Suppress,
			host:       "home",
			units:      1,
			args:       []string{"missing"},
			isNotFound: true,
		},
		"no access": {
			kind:  schedulerobjects.Suppress,
			host:  "locked",
			units: 1,
			args:  []string{"joesguns"},
		},
		"insufficient capacity": {
			kind:  schedulerobjects.Restore,
			host:  "home",
			units: 19,
			args:  []string{"joesguns"},
		},
		"no units": {
			kind: schedulerobjects.Extract,
			host: "home",
			args: []string{"joesguns"},
		},
		"no target": {
			kind:  schedulerobjects.Extract,
			host:  "home",
			units: 1,
		},
		"malformed start": {
			kind:  schedulerobjects.Extract,
			host:  "home",
			units: 1,
			args:  []string{"joesguns", "tomorrow"},
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			ctx := batchcontext.Background()
			w, _ := newTestWorld(t)
			handle, err := w.Dispatch(ctx, tc.kind, tc.host, tc.units, tc.args...)
			require.Error(t, err)
			assert.Empty(t, handle)
			assert.Equal(t, tc.isNotFound, schederrors.IsNotFound(err))
			assert.Equal(t, 0, w.Running())
		})
	}
}

func TestWorld_ListsAreSorted(t *testing.T) {
	ctx := batchcontext.Background()
	w, err := NewWorld(DefaultWorldSpec(), clock.NewFakeClock(baseTime))
	require.NoError(t, err)

	hosts, err := w.ListHosts(ctx)
	require.NoError(t, err)
	assert.IsIncreasing(t, hosts)
	targets, err := w.ListTargets(ctx)
	require.NoError(t, err)
	assert.IsIncreasing(t, targets)
	assert.Len(t, targets, len(DefaultWorldSpec().Targets))
}

func TestWorldSpecFromFilePath(t *testing.T) {
	tests := map[string]struct {
		contents string
		valid    bool
	}{
		"valid": {
			contents: `
capabilityLevel: 10
capacityPerUnit: {extract: 1.7, restore: 1.75, suppress: 1.75}
model: {extractSecurityPerUnit: 0.002, restoreSecurityPerUnit: 0.004, suppressPerUnit: 0.05}
hosts:
  - {name: home, hasAccess: true, maxCapacity: 64}
targets:
  - name: n00dles
    hasAccess: true
    value: {available: 10, max: 100}
    security: {level: 1, min: 1}
    growthRate: 1.01
    extractRate: 0.001
    timing: {extract: 1s, restore: 3200ms, suppress: 4s}
`,
			valid: true,
		},
		"duplicate host": {
			contents: `
capacityPerUnit: {extract: 1.7, restore: 1.75, suppress: 1.75}
hosts:
  - {name: home}
  - {name: home}
`,
		},
		"value above max": {
			contents: `
capacityPerUnit: {extract: 1.7, restore: 1.75, suppress: 1.75}
targets:
  - {name: n00dles, value: {available: 200, max: 100}}
`,
		},
		"missing capacity": {
			contents: `
hosts:
  - {name: home}
`,
		},
		"not yaml": {
			contents: "hosts: [",
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "world.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tc.contents), 0o600))
			spec, err := WorldSpecFromFilePath(path)
			if !tc.valid {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Len(t, spec.Targets, 1)
			assert.Equal(t, 3200*time.Millisecond, spec.Targets[0].Timing.Restore)
			assert.Equal(t, 64.0, spec.Hosts[0].MaxCapacity)
		})
	}
}
