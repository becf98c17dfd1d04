package database

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armadaproject/batchsched/internal/common/batchcontext"
	"github.com/armadaproject/batchsched/internal/scheduler/schedulerobjects"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeRunningChecker struct {
	running map[schedulerobjects.Handle]bool
	failing map[schedulerobjects.Handle]bool
	checked []schedulerobjects.Handle
}

func (c *fakeRunningChecker) IsRunning(_ *batchcontext.Context, handle schedulerobjects.Handle, _ string) (bool, error) {
	c.checked = append(c.checked, handle)
	if c.failing[handle] {
		return false, errors.New("unreachable")
	}
	return c.running[handle], nil
}

func testOperation(target string, handle schedulerobjects.Handle, end time.Time) *schedulerobjects.Operation {
	return &schedulerobjects.Operation{
		Target:         target,
		Kind:           schedulerobjects.Suppress,
		ExecutionUnits: 2,
		Window:         schedulerobjects.Window{Start: end.Add(-time.Second), End: end},
		Host:           "home",
		Handle:         handle,
	}
}

func TestInFlightRegistry_Record(t *testing.T) {
	registry := InFlightRegistry{}
	registry.Record(testOperation("n00dles", "h1", testNow.Add(time.Second)))
	registry.Record(testOperation("n00dles", "h2", testNow.Add(2*time.Second)))
	registry.Record(testOperation("n00dles", "", testNow.Add(2*time.Second)))

	require.Len(t, registry["n00dles"], 2)
	entry := registry["n00dles"]["h1"]
	assert.Equal(t, "home", entry.Host)
	assert.Equal(t, schedulerobjects.Suppress, entry.Kind)
	assert.Equal(t, testNow.Add(time.Second), entry.DueTime)
	assert.Equal(t, []string{"n00dles", "2024-03-01T12:00:00.000Z"}, entry.Args)
	assert.Equal(t, 2, registry.Len())
}

func TestInFlightRegistry_HasOperationRunning(t *testing.T) {
	registry := InFlightRegistry{}
	registry.Record(testOperation("past", "h1", testNow.Add(-time.Second)))
	registry.Record(testOperation("future", "h2", testNow.Add(time.Second)))
	registry.Record(testOperation("mixed", "h3", testNow.Add(-time.Second)))
	registry.Record(testOperation("mixed", "h4", testNow.Add(time.Second)))

	tests := map[string]bool{
		"past":    false,
		"future":  true,
		"mixed":   true,
		"unknown": false,
	}
	for target, expected := range tests {
		t.Run(target, func(t *testing.T) {
			assert.Equal(t, expected, registry.HasOperationRunning(target, testNow))
		})
	}
}

func TestInFlightRegistry_Prune(t *testing.T) {
	registry := InFlightRegistry{}
	registry.Record(testOperation("a", "due", testNow))
	registry.Record(testOperation("a", "running", testNow.Add(time.Second)))
	registry.Record(testOperation("b", "finished", testNow.Add(time.Second)))
	registry.Record(testOperation("c", "unknown", testNow.Add(time.Second)))

	checker := &fakeRunningChecker{
		running: map[schedulerobjects.Handle]bool{"running": true},
		failing: map[schedulerobjects.Handle]bool{"unknown": true},
	}
	pruned := registry.Prune(batchcontext.Background(), checker, testNow)

	assert.Equal(t, 2, pruned)
	assert.NotContains(t, checker.checked, schedulerobjects.Handle("due"))
	assert.Equal(t, []schedulerobjects.Handle{"running"}, handles(registry["a"]))
	assert.NotContains(t, registry, "b")
	assert.Equal(t, []schedulerobjects.Handle{"unknown"}, handles(registry["c"]))
}

func TestInFlightRepository(t *testing.T) {
	ctx := batchcontext.Background()
	store := NewMemoryStateStore()
	repo := NewInFlightRepository(store, "inflight")

	registry, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, registry)

	registry.Record(testOperation("n00dles", "h1", testNow.Add(time.Second)))
	require.NoError(t, repo.Save(ctx, registry))
	loaded, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, registry, loaded)

	// Saving replaces the document rather than merging into it.
	require.NoError(t, repo.Save(ctx, InFlightRegistry{}))
	loaded, err = repo.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestFlagRepository(t *testing.T) {
	tests := map[string]struct {
		enabledByDefault bool
		set              *bool
		expected         bool
	}{
		"default enabled":  {enabledByDefault: true, expected: true},
		"default disabled": {enabledByDefault: false, expected: false},
		"disabled":         {enabledByDefault: true, set: pointer(false), expected: false},
		"enabled":          {enabledByDefault: false, set: pointer(true), expected: true},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			ctx := batchcontext.Background()
			store := NewMemoryStateStore()
			require.NoError(t, store.Write(ctx, "flags", Document{"percent": 25.0}, false))
			repo := NewFlagRepository(store, "flags", tc.enabledByDefault)
			if tc.set != nil {
				require.NoError(t, repo.SetEnabled(ctx, *tc.set))
			}
			enabled, err := repo.Enabled(ctx)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, enabled)

			doc, err := store.Read(ctx, "flags")
			require.NoError(t, err)
			assert.Equal(t, 25.0, doc["percent"], "other fields must survive")
		})
	}
}

func handles(entries map[schedulerobjects.Handle]*InFlightEntry) []schedulerobjects.Handle {
	var rv []schedulerobjects.Handle
	for handle := range entries {
		rv = append(rv, handle)
	}
	return rv
}

func pointer[T any](v T) *T {
	return &v
}
