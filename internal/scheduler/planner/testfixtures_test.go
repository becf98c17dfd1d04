package planner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/armadaproject/batchsched/internal/scheduler/schedulerobjects"
)

const testTimeWindow = 200 * time.Millisecond

var (
	testModel = LinearModel{
		ExtractSecurityPerUnit: 0.002,
		RestoreSecurityPerUnit: 0.004,
		SuppressPerUnit:        0.05,
	}
	testCapacityPerUnit = schedulerobjects.CapacityPerUnit{Extract: 1.7, Restore: 1.75, Suppress: 1.75}
	testStart           = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
)

func testPlanner(t *testing.T) *Planner {
	p, err := New(testModel, testCapacityPerUnit, 25, testTimeWindow)
	require.NoError(t, err)
	return p
}

func testTarget(available, level float64) *schedulerobjects.Target {
	return &schedulerobjects.Target{
		Name:          "joesguns",
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

func kinds(ops []*schedulerobjects.Operation) []schedulerobjects.OperationKind {
	rv := make([]schedulerobjects.OperationKind, len(ops))
	for i, op := range ops {
		rv[i] = op.Kind
	}
	return rv
}
