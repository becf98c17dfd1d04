package hostdb

import (
	"fmt"
	"math"
	"strings"
	"text/tabwriter"

	"github.com/hashicorp/go-memdb"
	"github.com/pkg/errors"

	"github.com/armadaproject/batchsched/internal/common/schederrors"
	"github.com/armadaproject/batchsched/internal/scheduler/schedulerobjects"
)

const (
	hostsTable     = "hosts"
	idIndex        = "id"
	availableIndex = "available"

	// Tolerance applied to capacity comparisons to absorb floating point error.
	capacityEpsilon = 1e-9
)

// HostItem is the HostDb's view of a host for the duration of one cycle.
type HostItem struct {
	Name        string
	MaxCapacity float64
	// Capacity that could be allocated at the start of the cycle, after any reserve.
	Allocatable float64
	// Capacity bound to operations so far this cycle.
	Allocated float64
}

// Available is the capacity still free for allocation.
func (h *HostItem) Available() float64 {
	return h.Allocatable - h.Allocated
}

// Fits returns true if units execution units costing perUnit each can run in the capacity left on the host.
func (h *HostItem) Fits(perUnit float64, units int) bool {
	return h.Available() >= requiredCapacity(perUnit, units)
}

// requiredCapacity is the least available capacity that fits units execution units costing perUnit each.
func requiredCapacity(perUnit float64, units int) float64 {
	if perUnit <= 0 {
		return math.Inf(-1)
	}
	return (float64(units) - capacityEpsilon) * perUnit
}

func (h *HostItem) DeepCopy() *HostItem {
	if h == nil {
		return nil
	}
	rv := *h
	return &rv
}

// HostDb is an in-memory index of host capacity used to allocate operations within a single cycle.
// All allocation happens within memdb transactions, so tentative allocations can be discarded by aborting.
type HostDb struct {
	db *memdb.MemDB
	// Hosts left with this much capacity or less are removed from consideration.
	minRemainingCapacity float64
	reserve              ReservePolicy
	// Sum of allocatable capacity across all hosts upserted.
	totalAllocatable float64
	numHosts         int
}

func NewHostDb(reserve ReservePolicy, minRemainingCapacity float64) (*HostDb, error) {
	if minRemainingCapacity < 0 {
		return nil, errors.WithStack(&schederrors.ErrInvalidArgument{
			Name:    "minRemainingCapacity",
			Value:   minRemainingCapacity,
			Message: "must be non-negative",
		})
	}
	db, err := memdb.NewMemDB(hostDbSchema())
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &HostDb{
		db:                   db,
		minRemainingCapacity: minRemainingCapacity,
		reserve:              reserve,
	}, nil
}

func (hostDb *HostDb) String() string {
	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 1, 1, 1, ' ', 0)
	fmt.Fprintf(w, "Hosts:\t%d\n", hostDb.numHosts)
	fmt.Fprintf(w, "Allocatable capacity:\t%.2f\n", hostDb.totalAllocatable)
	fmt.Fprintf(w, "Min remaining capacity:\t%.2f\n", hostDb.minRemainingCapacity)
	w.Flush()
	return sb.String()
}

// Txn returns a new transaction. Callers must Commit or Abort write transactions.
func (hostDb *HostDb) Txn(write bool) *memdb.Txn {
	return hostDb.db.Txn(write)
}

// TotalAllocatable is the capacity available for allocation across hosts before any binding.
func (hostDb *HostDb) TotalAllocatable() float64 {
	return hostDb.totalAllocatable
}

// Upsert adds hosts to the db. Hosts without access or without any allocatable capacity are skipped.
// The minimum remaining capacity only applies once capacity has been bound to a host.
func (hostDb *HostDb) Upsert(hosts []*schedulerobjects.Host) error {
	txn := hostDb.db.Txn(true)
	defer txn.Abort()
	for _, host := range hosts {
		if !host.HasAccess {
			continue
		}
		allocatable := hostDb.reserve.Allocatable(host)
		if allocatable <= 0 {
			continue
		}
		existing, err := hostDb.GetHostWithTxn(txn, host.Name)
		if err != nil && !schederrors.IsNotFound(err) {
			return err
		}
		if existing != nil {
			hostDb.totalAllocatable -= existing.Allocatable
			hostDb.numHosts--
		}
		item := &HostItem{
			Name:        host.Name,
			MaxCapacity: host.MaxCapacity,
			Allocatable: allocatable,
		}
		if err := txn.Insert(hostsTable, item); err != nil {
			return errors.WithStack(err)
		}
		hostDb.totalAllocatable += allocatable
		hostDb.numHosts++
	}
	txn.Commit()
	return nil
}

func (hostDb *HostDb) GetHostWithTxn(txn *memdb.Txn, name string) (*HostItem, error) {
	obj, err := txn.First(hostsTable, idIndex, name)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if obj == nil {
		return nil, errors.WithStack(&schederrors.ErrNotFound{Type: "host", Value: name})
	}
	return obj.(*HostItem), nil
}

// HostsWithTxn returns all hosts still under consideration, ordered by name.
func (hostDb *HostDb) HostsWithTxn(txn *memdb.Txn) ([]*HostItem, error) {
	it, err := NewHostsIterator(txn)
	if err != nil {
		return nil, err
	}
	var rv []*HostItem
	for host := it.NextHost(); host != nil; host = it.NextHost() {
		rv = append(rv, host)
	}
	return rv, nil
}

// SelectHostWithTxn returns the host with the least available capacity that still fits units
// execution units costing perUnit each, or nil if no host fits.
func (hostDb *HostDb) SelectHostWithTxn(txn *memdb.Txn, perUnit float64, units int) (*HostItem, error) {
	// Index keys round down, so every host that fits sorts at or after the required capacity.
	it, err := NewAvailableCapacityIterator(txn, requiredCapacity(perUnit, units))
	if err != nil {
		return nil, err
	}
	for host := it.NextHost(); host != nil; host = it.NextHost() {
		if host.Fits(perUnit, units) {
			return host, nil
		}
	}
	return nil, nil
}

// BindWithTxn binds capacity to host. A host left with no more than the minimum remaining capacity
// is deleted for the remainder of the transaction. The host item passed in is not mutated.
func (hostDb *HostDb) BindWithTxn(txn *memdb.Txn, host *HostItem, capacity float64) (*HostItem, error) {
	if capacity > host.Available()+capacityEpsilon {
		return nil, errors.Errorf(
			"cannot bind %.2f capacity to host %s with only %.2f available",
			capacity, host.Name, host.Available(),
		)
	}
	bound := host.DeepCopy()
	bound.Allocated += capacity
	if bound.Available() <= hostDb.minRemainingCapacity {
		if err := txn.Delete(hostsTable, host); err != nil {
			return nil, errors.WithStack(err)
		}
		return bound, nil
	}
	if err := txn.Insert(hostsTable, bound); err != nil {
		return nil, errors.WithStack(err)
	}
	return bound, nil
}

func hostDbSchema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			hostsTable: {
				Name: hostsTable,
				Indexes: map[string]*memdb.IndexSchema{
					idIndex: {
						Name:    idIndex,
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "Name"},
					},
					availableIndex: {
						Name:    availableIndex,
						Unique:  false,
						Indexer: &AvailableCapacityIndex{},
					},
				},
			},
		},
	}
}

// EmptyWithTxn returns true if no host is left under consideration.
func (hostDb *HostDb) EmptyWithTxn(txn *memdb.Txn) (bool, error) {
	it, err := NewHostsIterator(txn)
	if err != nil {
		return false, err
	}
	return it.NextHost() == nil, nil
}
