// Package inventory builds the per-airlock view of a station from its
// blocks.
//
// Blocks opt into an airlock through bracketed name tags:
//
//	Doors:          [A1:Inner] / [A1:Outer]
//	Vents:          [A1:Vent]
//	Process tanks:  [A1:ProcessTank]   (one tank may serve several airlocks)
//	Lights:         [A1:Light]
//	Buttons:        [A1:InnerButton] / [A1:OuterButton]
//	Sensors:        [A1:InnerSensor] / [A1:OuterSensor]
//	Base tanks:     [BaseTank]         (default: every other attached tank)
//	Generators:     [O2H2]
//	Door timers:    [AUTOCLOSE:5] / [NOAUTOCLOSE] / [KEEPOPEN]
//
// Tag parsing is private to this package; the controller only sees the typed
// Inventory. An Inventory is immutable once built and is replaced wholesale
// on rescan.
package inventory

import (
	"sort"
	"strconv"
	"strings"

	"github.com/daviddao/airlock/pkg/device"
)

const (
	roleInner       = "INNER"
	roleOuter       = "OUTER"
	roleVent        = "VENT"
	roleInnerButton = "INNERBUTTON"
	roleOuterButton = "OUTERBUTTON"
	roleInnerSensor = "INNERSENSOR"
	roleOuterSensor = "OUTERSENSOR"
	roleLight       = "LIGHT"
	roleProcessTank = "PROCESSTANK"

	tagBaseTank    = "BASETANK"
	tagGenerator   = "O2H2"
	tagAutoClose   = "AUTOCLOSE"
	tagNoAutoClose = "NOAUTOCLOSE"
	tagKeepOpen    = "KEEPOPEN"
)

var airlockRoles = map[string]bool{
	roleInner: true, roleOuter: true, roleVent: true,
	roleInnerButton: true, roleOuterButton: true,
	roleInnerSensor: true, roleOuterSensor: true,
	roleLight: true, roleProcessTank: true,
}

// Airlock is one chamber and everything tagged to it.
type Airlock struct {
	ID           string
	Inner        []device.Door // habitat side
	Outer        []device.Door // space side
	Vents        []device.Vent
	ButtonsInner []device.Block
	ButtonsOuter []device.Block
	SensorsInner []device.Block
	SensorsOuter []device.Block
	Lights       []device.Light
	ProcessTanks []device.Tank
}

// AttachedProcessTanks returns the process tanks that belong to this
// construct, in discovery order.
func (a *Airlock) AttachedProcessTanks() []device.Tank {
	var out []device.Tank
	for _, t := range a.ProcessTanks {
		if t != nil && t.Attached() {
			out = append(out, t)
		}
	}
	return out
}

// AutoCloseDoor is a door the auto-close timer should watch.
type AutoCloseDoor struct {
	Door       device.Door
	LimitTicks int
}

// Options controls discovery defaults.
type Options struct {
	// DefaultAutoCloseTicks applies to doors without an [AUTOCLOSE:n] tag.
	DefaultAutoCloseTicks int
	// TicksPerSecond converts [AUTOCLOSE:n] seconds into ticks.
	TicksPerSecond int
}

// Inventory is the discovered station.
type Inventory struct {
	locks      map[string]*Airlock
	ids        []string
	baseTanks  []device.Tank
	generators []device.Generator
	process    []device.Tank
	autoClose  []AutoCloseDoor
	lockDoors  map[device.Handle]bool
}

// Empty returns an inventory with nothing in it.
func Empty() *Inventory {
	return &Inventory{locks: map[string]*Airlock{}, lockDoors: map[device.Handle]bool{}}
}

func key(id string) string { return strings.ToLower(id) }

// Build discovers airlocks, base tanks, generators and auto-close doors
// from blocks. Discovery order is the order of blocks.
func Build(blocks []device.Block, opts Options) *Inventory {
	inv := Empty()

	// Airlock ids come from any block carrying a role tag, attached or not.
	for _, b := range blocks {
		for _, tag := range tagsOf(b.Name()) {
			if len(tag) >= 2 && airlockRoles[strings.ToUpper(tag[1])] {
				k := key(tag[0])
				if _, ok := inv.locks[k]; !ok {
					inv.locks[k] = &Airlock{ID: tag[0]}
					inv.ids = append(inv.ids, tag[0])
				}
			}
		}
	}
	sort.Slice(inv.ids, func(i, j int) bool { return key(inv.ids[i]) < key(inv.ids[j]) })

	processSeen := map[device.Handle]bool{}
	for _, b := range blocks {
		if !b.Attached() {
			continue
		}
		if t, ok := b.(device.Tank); ok && b.Kind() == device.KindTank && hasTag(b.Name(), tagBaseTank) {
			inv.baseTanks = append(inv.baseTanks, t)
		}
		if g, ok := b.(device.Generator); ok && b.Kind() == device.KindGenerator && hasTag(b.Name(), tagGenerator) {
			inv.generators = append(inv.generators, g)
		}
		for _, tag := range tagsOf(b.Name()) {
			if len(tag) < 2 {
				continue
			}
			al, ok := inv.locks[key(tag[0])]
			if !ok {
				continue
			}
			inv.assign(al, strings.ToUpper(tag[1]), b, processSeen)
		}
	}

	if len(inv.baseTanks) == 0 {
		for _, b := range blocks {
			t, ok := b.(device.Tank)
			if !ok || b.Kind() != device.KindTank || !b.Attached() || processSeen[b.Handle()] {
				continue
			}
			inv.baseTanks = append(inv.baseTanks, t)
		}
	}

	inv.autoClose = discoverAutoClose(blocks, inv.lockDoors, opts)
	return inv
}

func (inv *Inventory) assign(al *Airlock, role string, b device.Block, processSeen map[device.Handle]bool) {
	switch b.Kind() {
	case device.KindDoor:
		d, ok := b.(device.Door)
		if !ok || inv.lockDoors[b.Handle()] {
			return
		}
		switch role {
		case roleInner:
			al.Inner = append(al.Inner, d)
		case roleOuter:
			al.Outer = append(al.Outer, d)
		default:
			return
		}
		inv.lockDoors[b.Handle()] = true
	case device.KindVent:
		if v, ok := b.(device.Vent); ok && role == roleVent {
			al.Vents = append(al.Vents, v)
		}
	case device.KindButton:
		switch role {
		case roleInnerButton:
			al.ButtonsInner = append(al.ButtonsInner, b)
		case roleOuterButton:
			al.ButtonsOuter = append(al.ButtonsOuter, b)
		}
	case device.KindSensor:
		switch role {
		case roleInnerSensor:
			al.SensorsInner = append(al.SensorsInner, b)
		case roleOuterSensor:
			al.SensorsOuter = append(al.SensorsOuter, b)
		}
	case device.KindLight:
		if l, ok := b.(device.Light); ok && role == roleLight {
			al.Lights = append(al.Lights, l)
		}
	case device.KindTank:
		if t, ok := b.(device.Tank); ok && role == roleProcessTank {
			al.ProcessTanks = append(al.ProcessTanks, t)
			if !processSeen[b.Handle()] {
				processSeen[b.Handle()] = true
				inv.process = append(inv.process, t)
			}
		}
	}
}

func discoverAutoClose(blocks []device.Block, lockDoors map[device.Handle]bool, opts Options) []AutoCloseDoor {
	var out []AutoCloseDoor
	for _, b := range blocks {
		d, ok := b.(device.Door)
		if !ok || b.Kind() != device.KindDoor || !b.Attached() || lockDoors[b.Handle()] {
			continue
		}
		limit := opts.DefaultAutoCloseTicks
		skip := false
		for _, tag := range tagsOf(b.Name()) {
			k := strings.ToUpper(tag[0])
			if k == tagNoAutoClose || k == tagKeepOpen {
				skip = true
				break
			}
			if k == tagAutoClose && len(tag) >= 2 {
				if s, err := strconv.Atoi(tag[1]); err == nil && s > 0 && opts.TicksPerSecond > 0 {
					limit = s * opts.TicksPerSecond
				}
			}
		}
		if !skip {
			out = append(out, AutoCloseDoor{Door: d, LimitTicks: limit})
		}
	}
	return out
}

// Airlock looks up an airlock by id, ignoring case.
func (inv *Inventory) Airlock(id string) (*Airlock, bool) {
	al, ok := inv.locks[key(id)]
	return al, ok
}

// IDs returns the airlock ids sorted case-insensitively.
func (inv *Inventory) IDs() []string {
	return append([]string(nil), inv.ids...)
}

// Airlocks returns every airlock in IDs order.
func (inv *Inventory) Airlocks() []*Airlock {
	out := make([]*Airlock, 0, len(inv.ids))
	for _, id := range inv.ids {
		out = append(out, inv.locks[key(id)])
	}
	return out
}

// BaseTanks returns the tanks that supply the habitat in normal operation.
func (inv *Inventory) BaseTanks() []device.Tank { return inv.baseTanks }

// Generators returns the tagged gas generators.
func (inv *Inventory) Generators() []device.Generator { return inv.generators }

// ProcessTanks returns every process tank across all airlocks, once each.
func (inv *Inventory) ProcessTanks() []device.Tank { return inv.process }

// AutoClose returns the doors the auto-close timer should watch.
func (inv *Inventory) AutoClose() []AutoCloseDoor { return inv.autoClose }

// IsAirlockDoor reports whether the door belongs to any airlock.
func (inv *Inventory) IsAirlockDoor(h device.Handle) bool { return inv.lockDoors[h] }

// Doors returns every airlock door, inner then outer, across all airlocks.
func (inv *Inventory) Doors() []device.Door {
	var out []device.Door
	for _, al := range inv.Airlocks() {
		out = append(out, al.Inner...)
		out = append(out, al.Outer...)
	}
	return out
}
