package planner

import (
	"math"

	"github.com/armadaproject/batchsched/internal/scheduler/schedulerobjects"
)

// Analyzer is the unit cost model used by the planner. It relates execution units to their effect on a target.
// Implementations must be monotonic: more units never have less effect.
type Analyzer interface {
	// ExtractUnits returns the (fractional) number of Extract units needed to drain amount from target.
	ExtractUnits(target *schedulerobjects.Target, amount float64) float64
	// ExtractFraction returns the fraction of the target's max value drained by a single Extract unit.
	ExtractFraction(target *schedulerobjects.Target) float64
	// ExtractSecurity returns the security increase caused by units Extract units.
	ExtractSecurity(units int) float64
	// RestoreUnits returns the (fractional) number of Restore units needed to multiply the target's value by factor.
	RestoreUnits(target *schedulerobjects.Target, factor float64) float64
	// RestoreSecurity returns the security increase caused by units Restore units.
	RestoreSecurity(units int) float64
	// SuppressEffect returns the security decrease caused by units Suppress units.
	SuppressEffect(units int) float64
}

// LinearModel is an Analyzer whose security effects are linear in the number of units.
// Extraction drains a fixed fraction of max value per unit and restoration compounds the target's growth rate.
type LinearModel struct {
	ExtractSecurityPerUnit float64
	RestoreSecurityPerUnit float64
	SuppressPerUnit        float64
}

func (m LinearModel) ExtractUnits(target *schedulerobjects.Target, amount float64) float64 {
	fraction := m.ExtractFraction(target)
	if fraction <= 0 || target.Value.Max <= 0 {
		return math.Inf(1)
	}
	return amount / (fraction * target.Value.Max)
}

func (m LinearModel) ExtractFraction(target *schedulerobjects.Target) float64 {
	return target.ExtractRate
}

func (m LinearModel) ExtractSecurity(units int) float64 {
	return float64(units) * m.ExtractSecurityPerUnit
}

func (m LinearModel) RestoreUnits(target *schedulerobjects.Target, factor float64) float64 {
	if factor <= 1 {
		return 0
	}
	if target.GrowthRate <= 1 {
		return math.Inf(1)
	}
	return math.Log(factor) / math.Log(target.GrowthRate)
}

func (m LinearModel) RestoreSecurity(units int) float64 {
	return float64(units) * m.RestoreSecurityPerUnit
}

func (m LinearModel) SuppressEffect(units int) float64 {
	return float64(units) * m.SuppressPerUnit
}
