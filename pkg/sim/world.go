// Package sim is a deterministic model of a small station: rooms holding
// air, doors between them, vents, tanks and generators on one shared gas
// network, plus lights and panels.
//
// Every block implements the matching device capability, so the airlock
// controller drives a World exactly as it would real hardware. World.Step
// advances the physics by one scheduler tick.
//
// A World is not goroutine-safe. It is stepped by the scheduler goroutine.
package sim

import (
	"errors"
	"fmt"
	"math"

	"github.com/daviddao/airlock/pkg/device"
	"github.com/daviddao/airlock/pkg/model"
)

// Physics, per tick.
const (
	VentRate  = 0.04 // room oxygen fraction one vent moves
	TankRatio = 0.1  // tank fill gained per unit of room oxygen
	SpaceLeak = 0.5  // share of a room's oxygen lost through a door to space
	Equalize  = 0.25 // share of the difference two joined rooms even out
)

// ErrInvalidStation is returned for records that cannot form a world.
var ErrInvalidStation = errors.New("invalid station")

// World is the simulated station.
type World struct {
	rooms     map[string]*model.Room
	roomOrder []string

	blocks []device.Block
	doors  []*Door
	vents  []*Vent
	tanks  []*Tank
	gens   []*Generator
	lights []*Light
	panels []*Panel
}

// New builds a world from store records. Blocks with handle 0 get the next
// free handle.
func New(st model.Station) (*World, error) {
	w := &World{rooms: make(map[string]*model.Room, len(st.Rooms))}
	for _, r := range st.Rooms {
		if r.ID == "" || r.ID == model.Space {
			return nil, fmt.Errorf("%w: bad room id %q", ErrInvalidStation, r.ID)
		}
		if _, dup := w.rooms[r.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate room %q", ErrInvalidStation, r.ID)
		}
		room := r
		room.Oxygen = clamp01(room.Oxygen)
		w.rooms[r.ID] = &room
		w.roomOrder = append(w.roomOrder, r.ID)
	}

	var maxHandle uint64
	seen := map[uint64]bool{}
	for _, b := range st.Blocks {
		if b.Handle == 0 {
			continue
		}
		if seen[b.Handle] {
			return nil, fmt.Errorf("%w: duplicate handle %d", ErrInvalidStation, b.Handle)
		}
		seen[b.Handle] = true
		maxHandle = max(maxHandle, b.Handle)
	}

	for _, rec := range st.Blocks {
		if rec.Handle == 0 {
			maxHandle++
			rec.Handle = maxHandle
		}
		if err := w.add(rec); err != nil {
			return nil, err
		}
	}
	return w, nil
}

func (w *World) add(rec model.Block) error {
	kind := device.Kind(rec.Kind)
	if !kind.Valid() {
		return fmt.Errorf("%w: block %q: unknown kind %q", ErrInvalidStation, rec.Name, rec.Kind)
	}
	if rec.Room != "" {
		if _, ok := w.rooms[rec.Room]; !ok {
			return fmt.Errorf("%w: block %q: unknown room %q", ErrInvalidStation, rec.Name, rec.Room)
		}
	}
	b := base{
		handle:   device.Handle(rec.Handle),
		name:     rec.Name,
		kind:     kind,
		room:     rec.Room,
		attached: rec.Attached,
		enabled:  rec.State.Enabled,
	}
	s := rec.State

	switch kind {
	case device.KindDoor:
		if rec.LeadsTo != model.Space && rec.LeadsTo != "" {
			if _, ok := w.rooms[rec.LeadsTo]; !ok {
				return fmt.Errorf("%w: door %q: unknown room %q", ErrInvalidStation, rec.Name, rec.LeadsTo)
			}
		}
		status, err := device.ParseDoorStatus(s.Door)
		if err != nil {
			return fmt.Errorf("%w: door %q: %v", ErrInvalidStation, rec.Name, err)
		}
		d := &Door{base: b, leadsTo: rec.LeadsTo, status: status, travel: s.Travel}
		w.doors = append(w.doors, d)
		w.blocks = append(w.blocks, d)
	case device.KindVent:
		if rec.Room == "" {
			return fmt.Errorf("%w: vent %q has no room", ErrInvalidStation, rec.Name)
		}
		v := &Vent{base: b, w: w, depress: s.Depressurize}
		w.vents = append(w.vents, v)
		w.blocks = append(w.blocks, v)
	case device.KindTank:
		t := &Tank{base: b, fill: clamp01(s.Fill), capture: s.Capture}
		w.tanks = append(w.tanks, t)
		w.blocks = append(w.blocks, t)
	case device.KindGenerator:
		g := &Generator{base: b}
		w.gens = append(w.gens, g)
		w.blocks = append(w.blocks, g)
	case device.KindLight:
		c := device.White
		if s.Color != "" {
			var err error
			if c, err = device.ParseColor(s.Color); err != nil {
				return fmt.Errorf("%w: light %q: %v", ErrInvalidStation, rec.Name, err)
			}
		}
		l := &Light{base: b, color: c, interval: s.BlinkInterval, length: s.BlinkLength, offset: s.BlinkOffset}
		w.lights = append(w.lights, l)
		w.blocks = append(w.blocks, l)
	default:
		p := &Panel{base: b}
		w.panels = append(w.panels, p)
		w.blocks = append(w.blocks, p)
	}
	return nil
}

// Blocks returns every block in record order.
func (w *World) Blocks() []device.Block { return w.blocks }

// Room returns a room by id.
func (w *World) Room(id string) (*model.Room, bool) {
	r, ok := w.rooms[id]
	return r, ok
}

// Find returns the first block with the given name.
func (w *World) Find(name string) (device.Block, bool) {
	for _, b := range w.blocks {
		if b.Name() == name {
			return b, true
		}
	}
	return nil, false
}

// sealed reports whether every attached door touching room is closed.
func (w *World) sealed(room string) bool {
	for _, d := range w.doors {
		if !d.attached || (d.room != room && d.leadsTo != room) {
			continue
		}
		if d.status != device.DoorClosed {
			return false
		}
	}
	return true
}

// Step advances the world by one tick: doors move, air flows through open
// doors, then vents exchange gas with the network.
func (w *World) Step() {
	for _, d := range w.doors {
		d.step()
	}
	for _, d := range w.doors {
		if !d.attached || d.status == device.DoorClosed {
			continue
		}
		w.flowThrough(d)
	}
	for _, v := range w.vents {
		if !v.attached {
			continue
		}
		room, ok := w.rooms[v.room]
		if !ok {
			continue
		}
		if v.depress {
			w.drain(room)
		} else if w.sealed(v.room) {
			w.fill(room)
		}
	}
}

func (w *World) flowThrough(d *Door) {
	a, ok := w.rooms[d.room]
	if !ok {
		return
	}
	if d.leadsTo == model.Space {
		a.Oxygen *= 1 - SpaceLeak
		return
	}
	b, ok := w.rooms[d.leadsTo]
	if !ok {
		return
	}
	diff := (a.Oxygen - b.Oxygen) * Equalize
	a.Oxygen -= diff
	b.Oxygen += diff
}

// drain pushes room air into the first enabled tank with headroom.
func (w *World) drain(room *model.Room) {
	for _, t := range w.tanks {
		if !t.attached || !t.enabled || t.fill >= 1 {
			continue
		}
		moved := math.Min(VentRate, room.Oxygen)
		moved = math.Min(moved, (1-t.fill)/TankRatio)
		room.Oxygen -= moved
		t.fill = clamp01(t.fill + moved*TankRatio)
		return
	}
}

// fill pulls air from an enabled generator, or else from the first enabled
// tank that is not capturing and has gas.
func (w *World) fill(room *model.Room) {
	want := math.Min(VentRate, 1-room.Oxygen)
	if want <= 0 {
		return
	}
	for _, g := range w.gens {
		if g.attached && g.enabled {
			room.Oxygen = clamp01(room.Oxygen + want)
			return
		}
	}
	for _, t := range w.tanks {
		if !t.attached || !t.enabled || t.capture || t.fill <= 0 {
			continue
		}
		moved := math.Min(want, t.fill/TankRatio)
		room.Oxygen = clamp01(room.Oxygen + moved)
		t.fill = clamp01(t.fill - moved*TankRatio)
		return
	}
}

// Station converts the world back into store records.
func (w *World) Station() model.Station {
	st := model.Station{
		Rooms:  make([]model.Room, 0, len(w.roomOrder)),
		Blocks: make([]model.Block, 0, len(w.blocks)),
	}
	for _, id := range w.roomOrder {
		st.Rooms = append(st.Rooms, *w.rooms[id])
	}
	for _, b := range w.blocks {
		st.Blocks = append(st.Blocks, record(b))
	}
	return st
}

func record(b device.Block) model.Block {
	rec := model.Block{
		Handle:   uint64(b.Handle()),
		Name:     b.Name(),
		Kind:     string(b.Kind()),
		Attached: b.Attached(),
	}
	switch x := b.(type) {
	case *Door:
		rec.Room, rec.LeadsTo = x.room, x.leadsTo
		rec.State = model.BlockState{Enabled: x.enabled, Door: x.status.String(), Travel: x.travel}
	case *Vent:
		rec.Room = x.room
		rec.State = model.BlockState{Enabled: x.enabled, Depressurize: x.depress}
	case *Tank:
		rec.Room = x.room
		rec.State = model.BlockState{Enabled: x.enabled, Fill: x.fill, Capture: x.capture}
	case *Generator:
		rec.Room = x.room
		rec.State = model.BlockState{Enabled: x.enabled}
	case *Light:
		rec.Room = x.room
		rec.State = model.BlockState{
			Enabled: x.enabled, Color: x.color.String(),
			BlinkInterval: x.interval, BlinkLength: x.length, BlinkOffset: x.offset,
		}
	case *Panel:
		rec.Room = x.room
		rec.State = model.BlockState{Enabled: x.enabled}
	}
	return rec
}

func clamp01(f float64) float64 {
	return math.Max(0, math.Min(1, f))
}
