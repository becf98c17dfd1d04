package hostdb

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armadaproject/batchsched/internal/scheduler/schedulerobjects"
)

func testHosts() []*schedulerobjects.Host {
	return []*schedulerobjects.Host{
		{Name: "home", HasAccess: true, MaxCapacity: 64, UsedCapacity: 8},
		{Name: "n00dles", HasAccess: true, MaxCapacity: 4},
		{Name: "foodnstuff", HasAccess: true, MaxCapacity: 16, UsedCapacity: 2},
		{Name: "sigma", HasAccess: false, MaxCapacity: 128},
		{Name: "tiny", HasAccess: true, MaxCapacity: 2},
	}
}

func newTestHostDb(t *testing.T, hosts []*schedulerobjects.Host) *HostDb {
	db, err := NewHostDb(ReservePolicy{HostName: "home", Threshold: 32, Amount: 32}, 2)
	require.NoError(t, err)
	require.NoError(t, db.Upsert(hosts))
	return db
}

func TestUpsert(t *testing.T) {
	db := newTestHostDb(t, testHosts())

	hosts, err := db.HostsWithTxn(db.Txn(false))
	require.NoError(t, err)

	names := make([]string, len(hosts))
	for i, host := range hosts {
		names[i] = host.Name
	}
	// sigma has no access. tiny is admitted even though it has no more than the minimum remaining capacity.
	assert.Equal(t, []string{"foodnstuff", "home", "n00dles", "tiny"}, names)
	assert.Equal(t, 24.0+4+14+2, db.TotalAllocatable())
	assert.Regexp(t, `Hosts:\s+4\n`, db.String())
	assert.Regexp(t, `Allocatable capacity:\s+44.00\n`, db.String())

	home, err := db.GetHostWithTxn(db.Txn(false), "home")
	require.NoError(t, err)
	assert.Equal(t, 24.0, home.Allocatable)
}

func TestUpsertReplacesExisting(t *testing.T) {
	db := newTestHostDb(t, testHosts())
	require.NoError(t, db.Upsert([]*schedulerobjects.Host{{Name: "n00dles", HasAccess: true, MaxCapacity: 8}}))

	host, err := db.GetHostWithTxn(db.Txn(false), "n00dles")
	require.NoError(t, err)
	assert.Equal(t, 8.0, host.Allocatable)
	assert.Equal(t, 24.0+8+14+2, db.TotalAllocatable())
}

func TestGetHostNotFound(t *testing.T) {
	db := newTestHostDb(t, testHosts())
	_, err := db.GetHostWithTxn(db.Txn(false), "sigma")
	assert.Error(t, err)
}

func TestSelectHost(t *testing.T) {
	tests := map[string]struct {
		PerUnit      float64
		Units        int
		ExpectedHost string
	}{
		"smallest host that fits": {
			PerUnit:      1.75,
			Units:        2,
			ExpectedHost: "n00dles",
		},
		"skips hosts that are too small": {
			PerUnit:      1.75,
			Units:        3,
			ExpectedHost: "foodnstuff",
		},
		"exact fit": {
			PerUnit:      1.75,
			Units:        8,
			ExpectedHost: "foodnstuff",
		},
		"largest host": {
			PerUnit:      1.7,
			Units:        14,
			ExpectedHost: "home",
		},
		"nothing fits": {
			PerUnit: 1.75,
			Units:   14,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			db := newTestHostDb(t, testHosts())
			host, err := db.SelectHostWithTxn(db.Txn(false), tc.PerUnit, tc.Units)
			require.NoError(t, err)
			if tc.ExpectedHost == "" {
				assert.Nil(t, host)
			} else {
				require.NotNil(t, host)
				assert.Equal(t, tc.ExpectedHost, host.Name)
			}
		})
	}
}

func TestUpsertSkipsHostsWithoutCapacity(t *testing.T) {
	db := newTestHostDb(t, []*schedulerobjects.Host{
		{Name: "full", HasAccess: true, MaxCapacity: 8, UsedCapacity: 8},
		{Name: "reserved", HasAccess: true, MaxCapacity: 40, UsedCapacity: 16},
		{Name: "home", HasAccess: true, MaxCapacity: 64, UsedCapacity: 40},
	})
	hosts, err := db.HostsWithTxn(db.Txn(false))
	require.NoError(t, err)
	require.Len(t, hosts, 1)
	assert.Equal(t, "reserved", hosts[0].Name)
}

func TestSelectHostAgreesWithFits(t *testing.T) {
	var hosts []*schedulerobjects.Host
	for i, capacity := range []float64{0.3, 1.75, 3.5, 5.249999999, 5.25, 7.000000001, 10.2} {
		hosts = append(hosts, &schedulerobjects.Host{Name: fmt.Sprintf("host-%d", i), HasAccess: true, MaxCapacity: capacity})
	}
	db, err := NewHostDb(ReservePolicy{}, 0)
	require.NoError(t, err)
	require.NoError(t, db.Upsert(hosts))
	all, err := db.HostsWithTxn(db.Txn(false))
	require.NoError(t, err)

	for _, perUnit := range []float64{0.1, 1.7, 1.75} {
		for units := 1; units <= 7; units++ {
			var expected *HostItem
			for _, host := range all {
				if host.Fits(perUnit, units) && (expected == nil || host.Available() < expected.Available()) {
					expected = host
				}
			}
			selected, err := db.SelectHostWithTxn(db.Txn(false), perUnit, units)
			require.NoError(t, err)
			assert.Equal(t, expected, selected, "%d units at %.2f", units, perUnit)
		}
	}
}

func TestBindWithTxn(t *testing.T) {
	db := newTestHostDb(t, testHosts())
	txn := db.Txn(true)
	defer txn.Abort()

	host, err := db.GetHostWithTxn(txn, "home")
	require.NoError(t, err)
	bound, err := db.BindWithTxn(txn, host, 10)
	require.NoError(t, err)
	assert.Equal(t, 14.0, bound.Available())
	assert.Equal(t, 24.0, host.Available(), "input must not be mutated")

	host, err = db.GetHostWithTxn(txn, "home")
	require.NoError(t, err)
	assert.Equal(t, 14.0, host.Available())

	_, err = db.BindWithTxn(txn, host, 15)
	assert.Error(t, err)

	// Binding down to the minimum remaining capacity removes the host.
	_, err = db.BindWithTxn(txn, host, 12)
	require.NoError(t, err)
	_, err = db.GetHostWithTxn(txn, "home")
	assert.Error(t, err)
}

func TestAbortDiscardsBindings(t *testing.T) {
	db := newTestHostDb(t, testHosts())

	txn := db.Txn(true)
	host, err := db.GetHostWithTxn(txn, "n00dles")
	require.NoError(t, err)
	_, err = db.BindWithTxn(txn, host, 3)
	require.NoError(t, err)
	txn.Abort()

	host, err = db.GetHostWithTxn(db.Txn(false), "n00dles")
	require.NoError(t, err)
	assert.Equal(t, 4.0, host.Available())
}

func TestCommitKeepsBindings(t *testing.T) {
	db := newTestHostDb(t, testHosts())

	txn := db.Txn(true)
	host, err := db.GetHostWithTxn(txn, "foodnstuff")
	require.NoError(t, err)
	_, err = db.BindWithTxn(txn, host, 3.5)
	require.NoError(t, err)
	txn.Commit()

	host, err = db.GetHostWithTxn(db.Txn(false), "foodnstuff")
	require.NoError(t, err)
	assert.Equal(t, 10.5, host.Available())
}

func TestReservePolicy(t *testing.T) {
	policy := ReservePolicy{HostName: "home", Threshold: 32, Amount: 32}
	tests := map[string]struct {
		Host                *schedulerobjects.Host
		ExpectedAllocatable float64
	}{
		"home above threshold": {
			Host:                &schedulerobjects.Host{Name: "home", MaxCapacity: 128, UsedCapacity: 16},
			ExpectedAllocatable: 80,
		},
		"home at threshold": {
			Host:                &schedulerobjects.Host{Name: "home", MaxCapacity: 32},
			ExpectedAllocatable: 32,
		},
		"reserve exceeds available": {
			Host:                &schedulerobjects.Host{Name: "home", MaxCapacity: 64, UsedCapacity: 40},
			ExpectedAllocatable: 0,
		},
		"other host": {
			Host:                &schedulerobjects.Host{Name: "sigma", MaxCapacity: 128},
			ExpectedAllocatable: 128,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.ExpectedAllocatable, policy.Allocatable(tc.Host))
		})
	}
	assert.Equal(t, 0.0, ReservePolicy{}.Reserved(&schedulerobjects.Host{Name: "home", MaxCapacity: 1024}))
}

func benchmarkSelectAndBind(numHosts int, b *testing.B) {
	hosts := make([]*schedulerobjects.Host, numHosts)
	for i := range hosts {
		hosts[i] = &schedulerobjects.Host{Name: fmt.Sprintf("host-%d", i), HasAccess: true, MaxCapacity: float64(8 + i%64)}
	}
	db, err := NewHostDb(ReservePolicy{}, 2)
	if !assert.NoError(b, err) {
		return
	}
	if !assert.NoError(b, db.Upsert(hosts)) {
		return
	}
	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		txn := db.Txn(true)
		for i := 0; i < 16; i++ {
			host, err := db.SelectHostWithTxn(txn, 1.75, 2)
			if !assert.NoError(b, err) || host == nil {
				break
			}
			if _, err := db.BindWithTxn(txn, host, 3.5); !assert.NoError(b, err) {
				break
			}
		}
		txn.Abort()
	}
}

func BenchmarkSelectAndBind1(b *testing.B)     { benchmarkSelectAndBind(1, b) }
func BenchmarkSelectAndBind100(b *testing.B)   { benchmarkSelectAndBind(100, b) }
func BenchmarkSelectAndBind10000(b *testing.B) { benchmarkSelectAndBind(10000, b) }
