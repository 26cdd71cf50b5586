// Package devicetest provides scriptable in-memory devices for tests.
//
// Fakes change state immediately when commanded unless told otherwise, and
// count the commands they receive so tests can assert idempotence.
package devicetest

import (
	"sync/atomic"

	"github.com/daviddao/airlock/pkg/device"
)

var nextHandle atomic.Uint64

func newBase(name string, kind device.Kind) base {
	return base{handle: device.Handle(nextHandle.Add(1)), name: name, kind: kind, attached: true}
}

type base struct {
	handle   device.Handle
	name     string
	kind     device.Kind
	attached bool
	enabled  bool
}

func (b *base) Handle() device.Handle { return b.handle }
func (b *base) Name() string { return b.name }
func (b *base) Kind() device.Kind { return b.kind }
func (b *base) Attached() bool { return b.attached }
func (b *base) Enabled() bool { return b.enabled }
func (b *base) SetEnabled(on bool) { b.enabled = on }

// Detach marks the block unreachable.
func (b *base) Detach() { b.attached = false }

// Door is a fake door. With Stuck set it ignores commands.
type Door struct {
	base
	status     device.DoorStatus
	Stuck      bool
	OpenCalls  int
	CloseCalls int
	Changes    int
}

// NewDoor returns an enabled, closed door.
func NewDoor(name string) *Door {
	d := &Door{base: newBase(name, device.KindDoor)}
	d.enabled = true
	return d
}

func (d *Door) Open() {
	d.OpenCalls++
	if d.Stuck || !d.enabled || d.status == device.DoorOpen {
		return
	}
	d.status = device.DoorOpen
	d.Changes++
}

func (d *Door) Close() {
	d.CloseCalls++
	if d.Stuck || !d.enabled || d.status == device.DoorClosed {
		return
	}
	d.status = device.DoorClosed
	d.Changes++
}

func (d *Door) Status() device.DoorStatus { return d.status }

// SetStatus forces a status, as if someone operated the door by hand.
func (d *Door) SetStatus(s device.DoorStatus) { d.status = s }

// Vent is a fake vent whose oxygen reading is set by the test.
type Vent struct {
	base
	Oxygen      float64
	depress     bool
	CanPress    bool
	DepressSets int
}

// NewVent returns a vent reading oxygen that can pressurize.
func NewVent(name string, oxygen float64) *Vent {
	return &Vent{base: newBase(name, device.KindVent), Oxygen: oxygen, CanPress: true}
}

func (v *Vent) SetDepressurize(on bool) {
	v.DepressSets++
	v.depress = on
}
func (v *Vent) Depressurizing() bool { return v.depress }
func (v *Vent) OxygenLevel() float64 { return v.Oxygen }
func (v *Vent) CanPressurize() bool { return v.CanPress }

// Tank is a fake gas tank.
type Tank struct {
	base
	capture bool
	Fill    float64
}

// NewTank returns a tank with the given fill and on/off state.
func NewTank(name string, fill float64, enabled bool) *Tank {
	t := &Tank{base: newBase(name, device.KindTank), Fill: fill}
	t.enabled = enabled
	return t
}

func (t *Tank) CaptureMode() bool { return t.capture }
func (t *Tank) SetCaptureMode(on bool) { t.capture = on }
func (t *Tank) FilledRatio() float64 { return t.Fill }

// Generator is a fake gas generator.
type Generator struct {
	base
}

// NewGenerator returns a generator with the given on/off state.
func NewGenerator(name string, enabled bool) *Generator {
	g := &Generator{base: newBase(name, device.KindGenerator)}
	g.enabled = enabled
	return g
}

// Light is a fake lighting fixture.
type Light struct {
	base
	color    device.Color
	interval float64
	length   float64
	offset   float64
}

// NewLight returns a powered, steady light of the given color.
func NewLight(name string, c device.Color) *Light {
	l := &Light{base: newBase(name, device.KindLight), color: c}
	l.enabled = true
	return l
}

func (l *Light) Color() device.Color { return l.color }
func (l *Light) SetColor(c device.Color) { l.color = c }
func (l *Light) BlinkInterval() float64 { return l.interval }
func (l *Light) SetBlinkInterval(s float64) { l.interval = s }
func (l *Light) BlinkLength() float64 { return l.length }
func (l *Light) SetBlinkLength(p float64) { l.length = p }
func (l *Light) BlinkOffset() float64 { return l.offset }
func (l *Light) SetBlinkOffset(p float64) { l.offset = p }

// Panel is a fake button panel or sensor; it has no capability beyond Block.
type Panel struct {
	base
}

// NewPanel returns a block of the given kind (button or sensor).
func NewPanel(name string, kind device.Kind) *Panel {
	return &Panel{base: newBase(name, kind)}
}
