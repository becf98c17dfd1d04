package simulator

import (
	"time"

	"github.com/armadaproject/batchsched/internal/scheduler/schedulerobjects"
)

// completion is the scheduled end of a dispatched operation.
type completion struct {
	// Time at which the operation completes.
	time time.Time
	// Completions with equal time are ordered by their sequence number.
	sequenceNumber int
	handle         schedulerobjects.Handle
	// Maintained by the heap.Interface methods.
	index int
}

// completionLog is a min-heap of completions, ordered first by time and second by sequence number.
type completionLog []completion

func (cl completionLog) Len() int { return len(cl) }

func (cl completionLog) Less(i, j int) bool {
	if cl[i].time.Equal(cl[j].time) {
		return cl[i].sequenceNumber < cl[j].sequenceNumber
	}
	return cl[j].time.After(cl[i].time)
}

func (cl completionLog) Swap(i, j int) {
	cl[i], cl[j] = cl[j], cl[i]
	cl[i].index = i
	cl[j].index = j
}

func (cl *completionLog) Push(x any) {
	n := len(*cl)
	item := x.(completion)
	item.index = n
	*cl = append(*cl, item)
}

func (cl *completionLog) Pop() any {
	old := *cl
	n := len(old)
	item := old[n-1]
	old[n-1] = completion{}
	item.index = -1
	*cl = old[0 : n-1]
	return item
}
