// Package autoclose closes ordinary doors that have been left open too long.
//
// Airlock doors are never tracked; the inventory leaves them out of the
// list this timer is built from.
package autoclose

import (
	"github.com/daviddao/airlock/pkg/device"
	"github.com/daviddao/airlock/pkg/inventory"
)

// Entry is one watched door.
type Entry struct {
	Door  device.Door
	Limit int // ticks open before closing
	Count int // consecutive ticks seen open
}

// Closed reports a door the timer closed on this tick.
type Closed struct {
	Door  device.Door
	Limit int
}

// Timer counts how long each watched door has been open.
type Timer struct {
	entries []Entry
	enabled bool
}

// New returns a timer over doors. A disabled timer does nothing on Tick.
func New(doors []inventory.AutoCloseDoor, enabled bool) *Timer {
	t := &Timer{enabled: enabled}
	t.Rebuild(doors)
	return t
}

// Rebuild replaces every entry. Running counters are dropped.
func (t *Timer) Rebuild(doors []inventory.AutoCloseDoor) {
	t.entries = make([]Entry, 0, len(doors))
	for _, d := range doors {
		if d.Door == nil {
			continue
		}
		t.entries = append(t.entries, Entry{Door: d.Door, Limit: d.LimitTicks})
	}
}

// Enabled reports whether the timer is active.
func (t *Timer) Enabled() bool { return t.enabled }

// Entries returns a copy of the current entries.
func (t *Timer) Entries() []Entry {
	return append([]Entry(nil), t.entries...)
}

// Tick advances every counter by one tick and closes doors that reached
// their limit. It returns the doors it closed.
func (t *Timer) Tick() []Closed {
	if !t.enabled {
		return nil
	}
	var closed []Closed
	for i := range t.entries {
		e := &t.entries[i]
		if !e.Door.Attached() {
			e.Count = 0
			continue
		}
		if e.Door.Status() != device.DoorOpen {
			e.Count = 0
			continue
		}
		e.Count++
		if e.Count >= e.Limit {
			e.Door.Close()
			e.Count = 0
			closed = append(closed, Closed{Door: e.Door, Limit: e.Limit})
		}
	}
	return closed
}
