package hostdb

import "github.com/armadaproject/batchsched/internal/scheduler/schedulerobjects"

// ReservePolicy withholds part of one designated host's capacity from allocation
// once that host's max capacity exceeds a threshold.
type ReservePolicy struct {
	HostName  string
	Threshold float64
	Amount    float64
}

// Reserved returns how much of host's capacity must be left unallocated.
func (p ReservePolicy) Reserved(host *schedulerobjects.Host) float64 {
	if p.HostName == "" || host.Name != p.HostName || host.MaxCapacity <= p.Threshold {
		return 0
	}
	return p.Amount
}

// Allocatable returns the capacity of host that may be allocated, never less than zero.
func (p ReservePolicy) Allocatable(host *schedulerobjects.Host) float64 {
	allocatable := host.AvailableCapacity() - p.Reserved(host)
	if allocatable < 0 {
		return 0
	}
	return allocatable
}
