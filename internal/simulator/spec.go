package simulator

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/armadaproject/batchsched/internal/scheduler/planner"
	"github.com/armadaproject/batchsched/internal/scheduler/schedulerobjects"
)

// WorldSpec describes the initial state of a simulated world.
type WorldSpec struct {
	// Level compared against each target's required level.
	CapabilityLevel int                              `yaml:"capabilityLevel"`
	CapacityPerUnit schedulerobjects.CapacityPerUnit `yaml:"capacityPerUnit"`
	Model           ModelSpec                        `yaml:"model"`
	Hosts           []*schedulerobjects.Host         `yaml:"hosts"`
	Targets         []*schedulerobjects.Target       `yaml:"targets"`
}

// ModelSpec sets how operations change the targets they run against.
// It should match the model used by the scheduler, otherwise predictions won't hold.
type ModelSpec struct {
	ExtractSecurityPerUnit float64 `yaml:"extractSecurityPerUnit"`
	RestoreSecurityPerUnit float64 `yaml:"restoreSecurityPerUnit"`
	SuppressPerUnit        float64 `yaml:"suppressPerUnit"`
}

func (m ModelSpec) analyzer() planner.LinearModel {
	return planner.LinearModel{
		ExtractSecurityPerUnit: m.ExtractSecurityPerUnit,
		RestoreSecurityPerUnit: m.RestoreSecurityPerUnit,
		SuppressPerUnit:        m.SuppressPerUnit,
	}
}

// WorldSpecFromFilePath reads a WorldSpec from a yaml file.
func WorldSpecFromFilePath(filePath string) (*WorldSpec, error) {
	bytes, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	rv := &WorldSpec{}
	if err := yaml.Unmarshal(bytes, rv); err != nil {
		err = errors.WithMessagef(err, "failed to unmarshal WorldSpec %s", filePath)
		return nil, errors.WithStack(err)
	}
	if err := rv.validate(); err != nil {
		return nil, errors.WithMessagef(err, "invalid WorldSpec %s", filePath)
	}
	return rv, nil
}

func (spec *WorldSpec) validate() error {
	seen := make(map[string]bool)
	for _, host := range spec.Hosts {
		if host == nil || host.Name == "" {
			return errors.New("hosts must be named")
		}
		if seen[host.Name] {
			return errors.Errorf("duplicate host %s", host.Name)
		}
		seen[host.Name] = true
	}
	seen = make(map[string]bool)
	for _, target := range spec.Targets {
		if target == nil || target.Name == "" {
			return errors.New("targets must be named")
		}
		if seen[target.Name] {
			return errors.Errorf("duplicate target %s", target.Name)
		}
		seen[target.Name] = true
		if target.Value.Available > target.Value.Max {
			return errors.Errorf("target %s has more value available than its max", target.Name)
		}
		if target.Security.Level < target.Security.Min {
			return errors.Errorf("target %s has security below its min", target.Name)
		}
	}
	if spec.CapacityPerUnit.Extract <= 0 || spec.CapacityPerUnit.Restore <= 0 || spec.CapacityPerUnit.Suppress <= 0 {
		return errors.New("capacityPerUnit must be positive for every kind")
	}
	return nil
}

// DefaultWorldSpec returns a small world with a handful of targets and hosts.
func DefaultWorldSpec() *WorldSpec {
	return &WorldSpec{
		CapabilityLevel: 50,
		CapacityPerUnit: schedulerobjects.CapacityPerUnit{Extract: 1.7, Restore: 1.75, Suppress: 1.75},
		Model: ModelSpec{
			ExtractSecurityPerUnit: 0.002,
			RestoreSecurityPerUnit: 0.004,
			SuppressPerUnit:        0.05,
		},
		Hosts: []*schedulerobjects.Host{
			{Name: "home", HasAccess: true, MaxCapacity: 64},
			{Name: "n00dles", HasAccess: true, MaxCapacity: 4},
			{Name: "foodnstuff", HasAccess: true, MaxCapacity: 16},
			{Name: "sigma-cosmetics", HasAccess: true, MaxCapacity: 16},
			{Name: "joesguns", HasAccess: true, MaxCapacity: 16},
			{Name: "iron-gym", HasAccess: false, MaxCapacity: 32},
		},
		Targets: []*schedulerobjects.Target{
			defaultTarget("n00dles", 1, 70_000, 1_750_000, 1, 1.0025, 0.0004),
			defaultTarget("foodnstuff", 1, 2_000_000, 50_000_000, 3, 1.005, 0.0006),
			defaultTarget("sigma-cosmetics", 5, 2_300_000, 57_500_000, 3, 1.01, 0.0007),
			defaultTarget("joesguns", 10, 2_500_000, 62_500_000, 5, 1.01, 0.0008),
			defaultTarget("hong-fang-tea", 30, 3_000_000, 75_000_000, 5, 1.01, 0.0009),
			defaultTarget("iron-gym", 100, 20_000_000, 500_000_000, 10, 1.01, 0.001),
		},
	}
}

func defaultTarget(name string, level int, available, maxValue, minSecurity, growth, extractRate float64) *schedulerobjects.Target {
	return &schedulerobjects.Target{
		Name:          name,
		HasAccess:     true,
		RequiredLevel: level,
		Value:         schedulerobjects.Value{Available: available, Max: maxValue},
		Security:      schedulerobjects.Security{Level: minSecurity * 3, Min: minSecurity},
		GrowthRate:    growth,
		ExtractRate:   extractRate,
		Timing: schedulerobjects.Timing{
			Extract:  time.Duration(level+10) * 100 * time.Millisecond,
			Restore:  time.Duration(level+10) * 320 * time.Millisecond,
			Suppress: time.Duration(level+10) * 400 * time.Millisecond,
		},
	}
}
