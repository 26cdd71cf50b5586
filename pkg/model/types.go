// Package model defines the persisted records of an airlock station.
//
// A station is a set of rooms and the blocks placed in them. The simulated
// plant is rebuilt from these records on every run and written back when it
// stops. Cycles themselves are never persisted; what survives a run is the
// append-only event journal.
package model

import "time"

// Space is the pseudo-room on the far side of an outer door.
const Space = "space"

// Room is an enclosed volume of air.
type Room struct {
	ID     string  `json:"id"`
	Oxygen float64 `json:"oxygen"`
}

// BlockState is the mutable part of a block, stored as JSON. Only the fields
// that apply to the block's kind are set.
type BlockState struct {
	Enabled       bool    `json:"enabled"`
	Door          string  `json:"door,omitempty"`   // door status
	Travel        int     `json:"travel,omitempty"` // ticks until a moving door stops
	Depressurize  bool    `json:"depressurize,omitempty"`
	Fill          float64 `json:"fill,omitempty"`
	Capture       bool    `json:"capture,omitempty"`
	Color         string  `json:"color,omitempty"`
	BlinkInterval float64 `json:"blink_interval,omitempty"`
	BlinkLength   float64 `json:"blink_length,omitempty"`
	BlinkOffset   float64 `json:"blink_offset,omitempty"`
}

// Block is one device on the station.
type Block struct {
	Handle   uint64     `json:"handle"`
	Name     string     `json:"name"`
	Kind     string     `json:"kind"`
	Room     string     `json:"room,omitempty"`
	LeadsTo  string     `json:"leads_to,omitempty"` // doors only: the room on the other side, or Space
	Attached bool       `json:"attached"`
	State    BlockState `json:"state"`
}

// Station is everything the store keeps about the plant.
type Station struct {
	Rooms  []Room  `json:"rooms"`
	Blocks []Block `json:"blocks"`
}

// EventKind enumerates the types of events in the journal.
type EventKind string

const (
	EventCycleStarted      EventKind = "cycle_started"
	EventPhase             EventKind = "phase"
	EventCaptureStalled    EventKind = "capture_stalled"
	EventIsolationMismatch EventKind = "isolation_mismatch"
	EventDoorTimeout       EventKind = "door_timeout"
	EventCycleDone         EventKind = "cycle_done"
	EventAutoClose         EventKind = "auto_close"
	EventSeal              EventKind = "seal"
	EventRescan            EventKind = "rescan"
)

// EventKinds lists every kind in the order above.
var EventKinds = []EventKind{
	EventCycleStarted, EventPhase, EventCaptureStalled, EventIsolationMismatch,
	EventDoorTimeout, EventCycleDone, EventAutoClose, EventSeal, EventRescan,
}

// Valid reports whether k is a known kind.
func (k EventKind) Valid() bool {
	for _, x := range EventKinds {
		if k == x {
			return true
		}
	}
	return false
}

// Warning reports whether events of this kind signal something an operator
// should look at.
func (k EventKind) Warning() bool {
	switch k {
	case EventCaptureStalled, EventIsolationMismatch, EventDoorTimeout:
		return true
	}
	return false
}

// Event is a single entry in the journal, stamped with the scheduler tick.
type Event struct {
	ID        int64     `json:"id"`
	CycleID   string    `json:"cycle_id,omitempty"`
	Airlock   string    `json:"airlock,omitempty"`
	Kind      EventKind `json:"kind"`
	Phase     string    `json:"phase,omitempty"`
	Tick      int64     `json:"tick"`
	Body      string    `json:"body,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
