// Package effects saves and restores the look of an airlock's lights around
// a cycle. While the chamber is isolated the lights blink red.
package effects

import "github.com/daviddao/airlock/pkg/device"

// Alert pattern.
const (
	AlertInterval = 1.0 // seconds
	AlertLength   = 60  // percent of interval lit
	AlertOffset   = 0
)

// LightState is what Snapshot records for one fixture.
type LightState struct {
	Color    device.Color `json:"color"`
	Interval float64      `json:"interval"`
	Length   float64      `json:"length"`
	Offset   float64      `json:"offset"`
	Enabled  bool         `json:"enabled"`
}

// Capture reads the current state of l.
func Capture(l device.Light) LightState {
	return LightState{
		Color:    l.Color(),
		Interval: l.BlinkInterval(),
		Length:   l.BlinkLength(),
		Offset:   l.BlinkOffset(),
		Enabled:  l.Enabled(),
	}
}

// Apply writes s to l.
func (s LightState) Apply(l device.Light) {
	l.SetColor(s.Color)
	l.SetBlinkInterval(s.Interval)
	l.SetBlinkLength(s.Length)
	l.SetBlinkOffset(s.Offset)
	l.SetEnabled(s.Enabled)
}

// Steady is the fallback for fixtures with no recorded state: white, no
// blink. Power is left as it is.
var Steady = LightState{Color: device.White}

// Backup maps fixtures to their state before the cycle. Keyed by handle so
// fixtures sharing a name never collide.
type Backup map[device.Handle]LightState

// Snapshot records every fixture in lights.
func Snapshot(lights []device.Light) Backup {
	b := make(Backup, len(lights))
	for _, l := range lights {
		b[l.Handle()] = Capture(l)
	}
	return b
}

// ApplyAlert turns every fixture on, blinking red.
func ApplyAlert(lights []device.Light) {
	for _, l := range lights {
		l.SetEnabled(true)
		l.SetColor(device.Red)
		l.SetBlinkInterval(AlertInterval)
		l.SetBlinkLength(AlertLength)
		l.SetBlinkOffset(AlertOffset)
	}
}

// Restore replays the recorded state of each fixture. Fixtures missing from
// b, such as ones added after the snapshot, are set to Steady.
func Restore(lights []device.Light, b Backup) {
	for _, l := range lights {
		if s, ok := b[l.Handle()]; ok {
			s.Apply(l)
			continue
		}
		l.SetBlinkLength(Steady.Length)
		l.SetBlinkInterval(Steady.Interval)
		l.SetBlinkOffset(Steady.Offset)
		l.SetColor(Steady.Color)
	}
}
