package schedulerobjects

import "time"

type Value struct {
	Available float64 `json:"available" yaml:"available"`
	Max       float64 `json:"max" yaml:"max"`
}

type Security struct {
	Level float64 `json:"level" yaml:"level"`
	Min   float64 `json:"min" yaml:"min"`
}

// Timing holds how long each kind of operation takes against a target at its current state.
type Timing struct {
	Extract  time.Duration `json:"extract" yaml:"extract"`
	Restore  time.Duration `json:"restore" yaml:"restore"`
	Suppress time.Duration `json:"suppress" yaml:"suppress"`
}

func (t Timing) For(kind OperationKind) time.Duration {
	switch kind {
	case Extract:
		return t.Extract
	case Restore:
		return t.Restore
	default:
		return t.Suppress
	}
}

// Target is a snapshot of a remote stateful target, as reported by the directory.
// Snapshots are never mutated; a fresh one is read every cycle.
type Target struct {
	Name          string   `json:"name" yaml:"name"`
	HasAccess     bool     `json:"hasAccess" yaml:"hasAccess"`
	RequiredLevel int      `json:"requiredLevel" yaml:"requiredLevel"`
	Value         Value    `json:"value" yaml:"value"`
	Security      Security `json:"security" yaml:"security"`
	// Multiplier applied to available value per Restore unit.
	GrowthRate float64 `json:"growthRate" yaml:"growthRate"`
	// Fraction of Value.Max drained per Extract unit.
	ExtractRate float64 `json:"extractRate" yaml:"extractRate"`
	Timing      Timing  `json:"timing" yaml:"timing"`
}

// Optimized returns true if the target is at its security floor and its value ceiling,
// i.e. it's ready to be harvested.
func (t *Target) Optimized() bool {
	return t.Security.Level == t.Security.Min && t.Value.Available == t.Value.Max
}

// SecurityDelta is how far security sits above its floor.
func (t *Target) SecurityDelta() float64 {
	return t.Security.Level - t.Security.Min
}

// ValueDelta is how far value sits below its ceiling.
func (t *Target) ValueDelta() float64 {
	return t.Value.Max - t.Value.Available
}

// TargetState is the mutable part of a target: its available value and its security level.
type TargetState struct {
	Value    float64 `json:"value"`
	Security float64 `json:"security"`
}

func (t *Target) State() TargetState {
	return TargetState{Value: t.Value.Available, Security: t.Security.Level}
}
