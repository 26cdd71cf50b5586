// Package device defines the actuator and sensor capabilities the airlock
// controller drives.
//
// Each block on a station implements Block plus whichever capability fits its
// hardware. Callers depend on the capability, never on a concrete kind: a
// pressure door and a hangar door both satisfy Door, an oxygen tank and a
// hydrogen tank both satisfy Tank.
//
// All setters must be idempotent. The controller reissues the same command
// every tick until the physical state converges, so commanding an open door
// to open (or an enabled tank to enable) must not change anything.
package device

import "fmt"

// Handle is a stable identity for a block. Two blocks may share a display
// name; they never share a handle.
type Handle uint64

// Kind names the hardware family of a block.
type Kind string

const (
	KindDoor      Kind = "door"
	KindVent      Kind = "vent"
	KindTank      Kind = "tank"
	KindGenerator Kind = "generator"
	KindLight     Kind = "light"
	KindButton    Kind = "button"
	KindSensor    Kind = "sensor"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindDoor, KindVent, KindTank, KindGenerator, KindLight, KindButton, KindSensor:
		return true
	}
	return false
}

// Block is the part every station block has in common.
type Block interface {
	Handle() Handle
	Name() string
	Kind() Kind
	// Attached reports whether the block is still reachable and belongs to
	// the construct this controller runs on.
	Attached() bool
}

// Switchable is the on/off capability.
type Switchable interface {
	Block
	Enabled() bool
	SetEnabled(on bool)
}

// DoorStatus is the live position of a door.
type DoorStatus int

const (
	DoorClosed DoorStatus = iota
	DoorOpening
	DoorOpen
	DoorClosing
)

func (s DoorStatus) String() string {
	switch s {
	case DoorClosed:
		return "closed"
	case DoorOpening:
		return "opening"
	case DoorOpen:
		return "open"
	case DoorClosing:
		return "closing"
	default:
		return fmt.Sprintf("DoorStatus(%d)", int(s))
	}
}

// ParseDoorStatus is the inverse of DoorStatus.String.
func ParseDoorStatus(s string) (DoorStatus, error) {
	switch s {
	case "closed", "":
		return DoorClosed, nil
	case "opening":
		return DoorOpening, nil
	case "open":
		return DoorOpen, nil
	case "closing":
		return DoorClosing, nil
	}
	return DoorClosed, fmt.Errorf("unknown door status %q", s)
}

// Door opens and closes. A disabled door ignores commands.
type Door interface {
	Switchable
	Open()
	Close()
	Status() DoorStatus
}

// Vent exchanges gas between its room and the gas network.
type Vent interface {
	Block
	SetDepressurize(on bool)
	Depressurizing() bool
	// OxygenLevel is the room oxygen fraction seen by this vent, in [0,1].
	OxygenLevel() float64
	// CanPressurize reports whether the room is airtight enough to hold
	// pressure.
	CanPressurize() bool
}

// Tank stores gas. In capture (stockpile) mode it only accepts gas.
type Tank interface {
	Switchable
	CaptureMode() bool
	SetCaptureMode(on bool)
	// FilledRatio is the fill fraction in [0,1].
	FilledRatio() float64
}

// Generator produces gas while enabled.
type Generator interface {
	Switchable
}

// Color is an 8-bit RGB light color.
type Color struct {
	R, G, B uint8
}

var (
	Red   = Color{R: 255}
	White = Color{R: 255, G: 255, B: 255}
)

func (c Color) String() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// ParseColor parses the "#rrggbb" form produced by Color.String.
func ParseColor(s string) (Color, error) {
	var c Color
	if len(s) != 7 || s[0] != '#' {
		return c, fmt.Errorf("invalid color %q: want #rrggbb", s)
	}
	if _, err := fmt.Sscanf(s, "#%02x%02x%02x", &c.R, &c.G, &c.B); err != nil {
		return Color{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return c, nil
}

// Light is a lighting fixture with a blink pattern.
type Light interface {
	Switchable
	Color() Color
	SetColor(c Color)
	BlinkInterval() float64
	SetBlinkInterval(seconds float64)
	BlinkLength() float64
	SetBlinkLength(percent float64)
	BlinkOffset() float64
	SetBlinkOffset(percent float64)
}
