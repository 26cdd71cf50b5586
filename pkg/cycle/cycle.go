// Package cycle is the airlock cycle controller: a tick-driven state machine
// that walks one airlock through sealing, depressurizing, opening to space,
// repressurizing and reopening to the habitat.
//
// At most one cycle runs at a time. The controller is not goroutine-safe; it
// is stepped by the scheduler and commands reach it between ticks.
package cycle

import (
	"errors"

	"github.com/daviddao/airlock/pkg/device"
	"github.com/daviddao/airlock/pkg/isolation"
)

// Start errors. Returned wrapped with the airlock id; match with errors.Is.
var (
	ErrUnknownAirlock = errors.New("unknown airlock")
	ErrBusy           = errors.New("cycle in progress")
	ErrNoProcessTank  = errors.New("no process tank")
)

// Direction is which way the occupant is going.
type Direction string

const (
	Enter Direction = "enter" // space to habitat
	Exit  Direction = "exit"  // habitat to space
)

// Phase is a step of the cycle.
type Phase string

const (
	Idle           Phase = "idle"
	ExitOpenInner  Phase = "exit_open_inner"
	ExitWaitIn     Phase = "exit_wait_in"
	ExitCloseInner Phase = "exit_close_inner"
	Seal           Phase = "seal"
	Isolate        Phase = "isolate"
	DepressInit    Phase = "depress_init"
	Depressurize   Phase = "depressurize"
	OpenOuter      Phase = "open_outer"
	WaitOuter      Phase = "wait_outer"
	CloseOuter     Phase = "close_outer"
	PressInit      Phase = "press_init"
	Pressurize     Phase = "pressurize"
	OpenInner      Phase = "open_inner"
	WaitInner      Phase = "wait_inner"
	CloseInner     Phase = "close_inner"
	Restore        Phase = "restore"
	Done           Phase = "done"
)

// Phases lists every phase in sequence order.
var Phases = []Phase{
	Idle, ExitOpenInner, ExitWaitIn, ExitCloseInner, Seal, Isolate,
	DepressInit, Depressurize, OpenOuter, WaitOuter, CloseOuter, PressInit,
	Pressurize, OpenInner, WaitInner, CloseInner, Restore, Done,
}

// Isolating reports whether the chamber is cut off from the habitat supply
// while the cycle sits in this phase. Isolate itself is still pending.
func (p Phase) Isolating() bool {
	switch p {
	case Idle, ExitOpenInner, ExitWaitIn, ExitCloseInner, Seal, Isolate, Done:
		return false
	}
	return true
}

// Status is a read-only view of the running cycle.
type Status struct {
	ID        string // cycle id, unique per start
	Airlock   string
	Direction Direction
	Phase     Phase
	Wait      int // dwell ticks left before the phase runs
	Elapsed   int // phase-local tick counter
	Stable    int
	Tank      string
	TankFill  float64
	Oxygen    float64 // chamber oxygen when the status was taken
	Baseline  float64 // oxygen at the start of the current gas phase
	Ticks     int     // controller steps since start
}

// Observer receives cycle events. Calls are made synchronously from Tick and
// the start operations; implementations must not call back into the
// controller.
type Observer interface {
	CycleStarted(s Status)
	PhaseChanged(s Status, from Phase)
	CaptureStalled(s Status)
	IsolationMismatch(s Status, d isolation.Diagnostic)
	DoorTimeout(s Status, doors []device.Door)
	CycleDone(s Status)
}

// NopObserver ignores every event. Embed it to implement a subset.
type NopObserver struct{}

func (NopObserver) CycleStarted(Status) {}
func (NopObserver) PhaseChanged(Status, Phase) {}
func (NopObserver) CaptureStalled(Status) {}
func (NopObserver) IsolationMismatch(Status, isolation.Diagnostic) {}
func (NopObserver) DoorTimeout(Status, []device.Door) {}
func (NopObserver) CycleDone(Status) {}

// Observers fans events out to several observers in order.
type Observers []Observer

func (o Observers) CycleStarted(s Status) {
	for _, x := range o {
		x.CycleStarted(s)
	}
}

func (o Observers) PhaseChanged(s Status, from Phase) {
	for _, x := range o {
		x.PhaseChanged(s, from)
	}
}

func (o Observers) CaptureStalled(s Status) {
	for _, x := range o {
		x.CaptureStalled(s)
	}
}

func (o Observers) IsolationMismatch(s Status, d isolation.Diagnostic) {
	for _, x := range o {
		x.IsolationMismatch(s, d)
	}
}

func (o Observers) DoorTimeout(s Status, doors []device.Door) {
	for _, x := range o {
		x.DoorTimeout(s, doors)
	}
}

func (o Observers) CycleDone(s Status) {
	for _, x := range o {
		x.CycleDone(s)
	}
}
