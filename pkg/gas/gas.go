// Package gas evaluates chamber atmosphere and capture progress.
//
// Everything here is a pure function of device readings and the previous
// tick's cached values. The cycle controller calls these once per tick and
// keeps the cache; nothing is recomputed retroactively.
package gas

import (
	"github.com/daviddao/airlock/pkg/config"
	"github.com/daviddao/airlock/pkg/device"
)

// ChamberOxygen is the mean oxygen reading across vents, or 0 with no vents.
// A chamber without vents never meets a completion threshold and always
// runs to the safety cap.
func ChamberOxygen(vents []device.Vent) float64 {
	if len(vents) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vents {
		sum += v.OxygenLevel()
	}
	return sum / float64(len(vents))
}

// TankFill reads a tank's filled ratio; a nil tank reads 0.
func TankFill(t device.Tank) float64 {
	if t == nil {
		return 0
	}
	return t.FilledRatio()
}

// AnyVentCanPressurize reports whether at least one vent can hold pressure.
func AnyVentCanPressurize(vents []device.Vent) bool {
	for _, v := range vents {
		if v.CanPressurize() {
			return true
		}
	}
	return false
}

// Policy applies the configured thresholds.
type Policy struct {
	t config.Tuning
}

// NewPolicy returns a policy over the given tuning.
func NewPolicy(t config.Tuning) Policy { return Policy{t: t} }

// Capturing reports capture progress between two consecutive ticks: room
// oxygen fell by more than the capture epsilon, or the tank fill rose by
// more than the minimal delta.
func (p Policy) Capturing(lastO2, o2, lastFill, fill float64) bool {
	return lastO2-o2 > p.t.CaptureEpsilon || fill-lastFill > p.t.MinProcDelta
}

// DepressurizeDone decides whether the outer door may open. elapsed is the
// number of Depressurize evaluations so far.
//
// Inside the band just above vacuum, measurable capture progress is
// accepted as done so sensor noise around VacOK cannot hold the cycle.
func (p Policy) DepressurizeDone(elapsed int, o2 float64, capturing bool) bool {
	if elapsed < p.t.MinDepressTicks {
		return false
	}
	return o2 <= p.t.VacOK ||
		elapsed >= p.t.TimeoutTicks ||
		(capturing && o2 <= p.t.VacOK+p.t.VacBand)
}

// StalledWarning reports whether a stalled-capture warning is due.
func (p Policy) StalledWarning(elapsed int, capturing bool) bool {
	return !capturing && p.t.WarnEvery > 0 && elapsed%p.t.WarnEvery == 0
}

// Steady reports whether oxygen is flat or rising since the last tick.
func (p Policy) Steady(lastO2, o2 float64) bool {
	return o2 >= lastO2-p.t.StableEpsilon
}

// NextStable advances a stability counter: +1 when steady, else reset.
func (p Policy) NextStable(stable int, lastO2, o2 float64) int {
	if p.Steady(lastO2, o2) {
		return stable + 1
	}
	return 0
}

// PressurizeInput is one Pressurize evaluation.
type PressurizeInput struct {
	Elapsed       int     // Pressurize evaluations so far, including this one
	Oxygen        float64 // current chamber oxygen
	Baseline      float64 // oxygen when supply was enabled
	Stable        int     // consecutive steady ticks
	CanPressurize bool    // at least one vent can hold pressure
}

// PressurizeDone decides whether the chamber is ready for the inner door.
func (p Policy) PressurizeDone(in PressurizeInput) bool {
	if in.Elapsed < p.t.MinPressTicks {
		return false
	}
	stableOK := in.Stable >= p.t.StableTicks
	full := in.Oxygen >= p.t.PressOK && stableOK
	risen := in.Oxygen >= in.Baseline+p.t.MinO2Delta
	return full || (risen && in.CanPressurize && stableOK) || in.Elapsed >= p.t.TimeoutTicks
}

// TimedOut reports whether a phase has hit the absolute safety cap.
func (p Policy) TimedOut(elapsed int) bool {
	return elapsed >= p.t.TimeoutTicks
}
