package database

import (
	"time"

	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/armadaproject/batchsched/internal/common/batchcontext"
	"github.com/armadaproject/batchsched/internal/common/logging"
	"github.com/armadaproject/batchsched/internal/scheduler/schedulerobjects"
)

// InFlightEntry records an operation that has been dispatched and may still be running.
type InFlightEntry struct {
	Handle  schedulerobjects.Handle        `json:"handle"`
	Host    string                         `json:"host"`
	Kind    schedulerobjects.OperationKind `json:"kind"`
	Args    []string                       `json:"args"`
	DueTime time.Time                      `json:"dueTime"`
}

// InFlightRegistry maps target name to the operations outstanding against that target, keyed by handle.
type InFlightRegistry map[string]map[schedulerobjects.Handle]*InFlightEntry

// RunningChecker reports whether a dispatched operation is still running.
type RunningChecker interface {
	IsRunning(ctx *batchcontext.Context, handle schedulerobjects.Handle, host string) (bool, error)
}

// HasOperationRunning returns true if target has at least one operation due after now.
func (r InFlightRegistry) HasOperationRunning(target string, now time.Time) bool {
	for _, entry := range r[target] {
		if entry.DueTime.After(now) {
			return true
		}
	}
	return false
}

// Record adds a dispatched operation to the registry. Operations without a handle are ignored.
func (r InFlightRegistry) Record(op *schedulerobjects.Operation) {
	if op.Handle == "" || op.Target == "" {
		return
	}
	entries, ok := r[op.Target]
	if !ok {
		entries = make(map[schedulerobjects.Handle]*InFlightEntry)
		r[op.Target] = entries
	}
	entries[op.Handle] = &InFlightEntry{
		Handle:  op.Handle,
		Host:    op.Host,
		Kind:    op.Kind,
		Args:    op.Args(),
		DueTime: op.Window.End,
	}
}

// Prune removes entries whose due time has passed or which are no longer running, and returns how many
// were removed. Entries whose state can't be determined are kept.
func (r InFlightRegistry) Prune(ctx *batchcontext.Context, checker RunningChecker, now time.Time) int {
	pruned := 0
	targets := maps.Keys(r)
	slices.Sort(targets)
	for _, target := range targets {
		entries := r[target]
		for handle, entry := range entries {
			if !entry.DueTime.After(now) {
				delete(entries, handle)
				pruned++
				continue
			}
			running, err := checker.IsRunning(ctx, entry.Handle, entry.Host)
			if err != nil {
				logging.WithStacktrace(ctx.Log, err).Warnf("failed to check whether %s on %s is running", entry.Handle, entry.Host)
				continue
			}
			if !running {
				delete(entries, handle)
				pruned++
			}
		}
		if len(entries) == 0 {
			delete(r, target)
		}
	}
	return pruned
}

// Len returns the number of entries across all targets.
func (r InFlightRegistry) Len() int {
	n := 0
	for _, entries := range r {
		n += len(entries)
	}
	return n
}

// InFlightRepository persists the in-flight registry as a single document.
type InFlightRepository struct {
	store StateStore
	key   string
}

func NewInFlightRepository(store StateStore, key string) *InFlightRepository {
	return &InFlightRepository{
		store: store,
		key:   key,
	}
}

func (r *InFlightRepository) Load(ctx *batchcontext.Context) (InFlightRegistry, error) {
	doc, err := r.store.Read(ctx, r.key)
	if err != nil {
		return nil, err
	}
	registry := InFlightRegistry{}
	if err := FromDocument(doc, &registry); err != nil {
		return nil, errors.WithMessagef(err, "error decoding in-flight registry %s", r.key)
	}
	return registry, nil
}

// Save replaces the stored registry.
func (r *InFlightRepository) Save(ctx *batchcontext.Context, registry InFlightRegistry) error {
	doc, err := ToDocument(registry)
	if err != nil {
		return err
	}
	return r.store.Write(ctx, r.key, doc, false)
}
