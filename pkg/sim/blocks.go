package sim

import "github.com/daviddao/airlock/pkg/device"

// DoorTravelTicks is how long a door takes to open or close.
const DoorTravelTicks = 3

type base struct {
	handle   device.Handle
	name     string
	kind     device.Kind
	room     string
	attached bool
	enabled  bool
}

func (b *base) Handle() device.Handle { return b.handle }
func (b *base) Name() string { return b.name }
func (b *base) Kind() device.Kind { return b.kind }
func (b *base) Attached() bool { return b.attached }
func (b *base) Enabled() bool { return b.enabled }
func (b *base) SetEnabled(on bool) { b.enabled = on }

// Room returns the id of the room the block sits in.
func (b *base) Room() string { return b.room }

// SetAttached connects or disconnects the block from the construct.
func (b *base) SetAttached(on bool) { b.attached = on }

// Door moves between closed and open over DoorTravelTicks. It connects its
// room to LeadsTo.
type Door struct {
	base
	leadsTo string
	status  device.DoorStatus
	travel  int
}

func (d *Door) Open() {
	if !d.enabled || !d.attached {
		return
	}
	switch d.status {
	case device.DoorClosed, device.DoorClosing:
		d.status = device.DoorOpening
		d.travel = DoorTravelTicks
	}
}

func (d *Door) Close() {
	if !d.enabled || !d.attached {
		return
	}
	switch d.status {
	case device.DoorOpen, device.DoorOpening:
		d.status = device.DoorClosing
		d.travel = DoorTravelTicks
	}
}

func (d *Door) Status() device.DoorStatus { return d.status }

// LeadsTo is the room on the far side of the door, or model.Space.
func (d *Door) LeadsTo() string { return d.leadsTo }

func (d *Door) step() {
	if d.travel == 0 {
		return
	}
	d.travel--
	if d.travel > 0 {
		return
	}
	switch d.status {
	case device.DoorOpening:
		d.status = device.DoorOpen
	case device.DoorClosing:
		d.status = device.DoorClosed
	}
}

// Vent moves gas between its room and the gas network.
type Vent struct {
	base
	w       *World
	depress bool
}

func (v *Vent) SetDepressurize(on bool) { v.depress = on }
func (v *Vent) Depressurizing() bool { return v.depress }

func (v *Vent) OxygenLevel() float64 {
	if r, ok := v.w.rooms[v.room]; ok {
		return r.Oxygen
	}
	return 0
}

// CanPressurize reports whether every door of the vent's room is closed.
func (v *Vent) CanPressurize() bool { return v.w.sealed(v.room) }

// Tank stores gas as a fill fraction.
type Tank struct {
	base
	fill    float64
	capture bool
}

func (t *Tank) CaptureMode() bool { return t.capture }
func (t *Tank) SetCaptureMode(on bool) { t.capture = on }
func (t *Tank) FilledRatio() float64 { return t.fill }

// SetFill overrides the fill level.
func (t *Tank) SetFill(f float64) { t.fill = clamp01(f) }

// Generator makes gas from nothing while enabled.
type Generator struct {
	base
}

// Light is a fixture with a blink pattern.
type Light struct {
	base
	color    device.Color
	interval float64
	length   float64
	offset   float64
}

func (l *Light) Color() device.Color { return l.color }
func (l *Light) SetColor(c device.Color) { l.color = c }
func (l *Light) BlinkInterval() float64 { return l.interval }
func (l *Light) SetBlinkInterval(s float64) { l.interval = s }
func (l *Light) BlinkLength() float64 { return l.length }
func (l *Light) SetBlinkLength(p float64) { l.length = p }
func (l *Light) BlinkOffset() float64 { return l.offset }
func (l *Light) SetBlinkOffset(p float64) { l.offset = p }

// Panel is a button panel or a sensor. The controller only inventories
// them.
type Panel struct {
	base
}
