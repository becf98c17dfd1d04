package hostdb

import (
	"encoding/binary"
	"math"

	"github.com/hashicorp/go-memdb"
	"github.com/pkg/errors"
)

// HostsIterator iterates over hosts in the order of an index.
type HostsIterator struct {
	it memdb.ResultIterator
}

// NewHostsIterator returns an iterator over all hosts ordered by name.
func NewHostsIterator(txn *memdb.Txn) (*HostsIterator, error) {
	it, err := txn.LowerBound(hostsTable, idIndex, "")
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &HostsIterator{it: it}, nil
}

// NewAvailableCapacityIterator returns an iterator over the hosts with at least capacity available,
// ordered by available capacity ascending with ties broken by name.
func NewAvailableCapacityIterator(txn *memdb.Txn, capacity float64) (*HostsIterator, error) {
	it, err := txn.LowerBound(hostsTable, availableIndex, capacity)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &HostsIterator{it: it}, nil
}

func (it *HostsIterator) WatchCh() <-chan struct{} {
	panic("not implemented")
}

func (it *HostsIterator) NextHost() *HostItem {
	obj := it.it.Next()
	if obj == nil {
		return nil
	}
	host, ok := obj.(*HostItem)
	if !ok {
		panic(errors.Errorf("expected *HostItem, but got %T", obj))
	}
	return host
}

func (it *HostsIterator) Next() interface{} {
	return it.NextHost()
}

// AvailableCapacityIndex is a memdb index over the allocatable capacity left on a host.
// Capacity is indexed in milli-units so it sorts as a big-endian integer.
type AvailableCapacityIndex struct{}

// FromArgs computes the index key from a single float64 capacity.
func (s *AvailableCapacityIndex) FromArgs(args ...interface{}) ([]byte, error) {
	if len(args) != 1 {
		return nil, errors.New("must provide exactly one argument")
	}
	capacity, ok := args[0].(float64)
	if !ok {
		return nil, errors.Errorf("expected float64, but got %T", args[0])
	}
	return encodeCapacity(capacity), nil
}

// FromObject extracts the index key from a *HostItem object.
func (s *AvailableCapacityIndex) FromObject(raw interface{}) (bool, []byte, error) {
	host, ok := raw.(*HostItem)
	if !ok {
		return false, nil, errors.Errorf("expected *HostItem, but got %T", raw)
	}
	return true, encodeCapacity(host.Available()), nil
}

func encodeCapacity(capacity float64) []byte {
	if capacity < 0 {
		capacity = 0
	}
	return encodeInt(int64(math.Floor(capacity * 1000)))
}

func encodeInt(val int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(val))
	return buf
}
