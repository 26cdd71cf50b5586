package sim

import (
	"errors"
	"math"
	"testing"

	"github.com/daviddao/airlock/pkg/device"
	"github.com/daviddao/airlock/pkg/model"
)

func testStation() model.Station {
	return model.Station{
		Rooms: []model.Room{{ID: "habitat", Oxygen: 1}, {ID: "a1", Oxygen: 0.95}},
		Blocks: []model.Block{
			{Name: "Door [A1:Inner]", Kind: "door", Room: "a1", LeadsTo: "habitat", Attached: true, State: model.BlockState{Enabled: true}},
			{Name: "Door [A1:Outer]", Kind: "door", Room: "a1", LeadsTo: model.Space, Attached: true, State: model.BlockState{Enabled: true}},
			{Name: "Vent [A1:Vent]", Kind: "vent", Room: "a1", Attached: true, State: model.BlockState{Enabled: true}},
			{Name: "O2 [A1:ProcessTank]", Kind: "tank", Attached: true, State: model.BlockState{Fill: 0.1}},
			{Name: "O2 [BaseTank]", Kind: "tank", Attached: true, State: model.BlockState{Enabled: true, Fill: 0.8}},
			{Name: "Gen [O2H2]", Kind: "generator", Attached: true, State: model.BlockState{Enabled: true}},
			{Name: "Light [A1:Light]", Kind: "light", Room: "a1", Attached: true, State: model.BlockState{Enabled: true, Color: "#00ff00"}},
			{Name: "Button [A1:InnerButton]", Kind: "button", Room: "habitat", Attached: true},
		},
	}
}

func mustWorld(t *testing.T, st model.Station) *World {
	t.Helper()
	w, err := New(st)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return w
}

func find[T device.Block](t *testing.T, w *World, name string) T {
	t.Helper()
	b, ok := w.Find(name)
	if !ok {
		t.Fatalf("no block %q", name)
	}
	x, ok := b.(T)
	if !ok {
		t.Fatalf("block %q has type %T", name, b)
	}
	return x
}

func TestNew_AssignsHandles(t *testing.T) {
	st := testStation()
	st.Blocks[2].Handle = 40
	w := mustWorld(t, st)
	seen := map[device.Handle]bool{}
	for _, b := range w.Blocks() {
		if b.Handle() == 0 || seen[b.Handle()] {
			t.Fatalf("bad handle %d for %s", b.Handle(), b.Name())
		}
		seen[b.Handle()] = true
	}
	if h := find[*Vent](t, w, "Vent [A1:Vent]").Handle(); h != 40 {
		t.Fatalf("explicit handle changed to %d", h)
	}
	if h := w.Blocks()[0].Handle(); h != 41 {
		t.Fatalf("first free handle = %d, want 41", h)
	}
}

func TestNew_Invalid(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*model.Station)
	}{
		{"unknown kind", func(s *model.Station) { s.Blocks[0].Kind = "turret" }},
		{"unknown room", func(s *model.Station) { s.Blocks[2].Room = "b1" }},
		{"vent without room", func(s *model.Station) { s.Blocks[2].Room = "" }},
		{"door to nowhere", func(s *model.Station) { s.Blocks[0].LeadsTo = "b1" }},
		{"bad door status", func(s *model.Station) { s.Blocks[0].State.Door = "ajar" }},
		{"bad color", func(s *model.Station) { s.Blocks[6].State.Color = "green" }},
		{"duplicate room", func(s *model.Station) { s.Rooms = append(s.Rooms, model.Room{ID: "a1"}) }},
		{"room named space", func(s *model.Station) { s.Rooms[0].ID = model.Space }},
		{"duplicate handle", func(s *model.Station) { s.Blocks[0].Handle, s.Blocks[1].Handle = 7, 7 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := testStation()
			tc.mutate(&st)
			if _, err := New(st); !errors.Is(err, ErrInvalidStation) {
				t.Fatalf("err = %v, want ErrInvalidStation", err)
			}
		})
	}
}

func TestDoor_Travel(t *testing.T) {
	w := mustWorld(t, testStation())
	d := find[*Door](t, w, "Door [A1:Outer]")
	d.Open()
	if d.Status() != device.DoorOpening {
		t.Fatalf("status = %s, want opening", d.Status())
	}
	d.Open() // no restart of travel
	for i := 0; i < DoorTravelTicks-1; i++ {
		w.Step()
		if d.Status() != device.DoorOpening {
			t.Fatalf("tick %d: status = %s", i, d.Status())
		}
	}
	w.Step()
	if d.Status() != device.DoorOpen {
		t.Fatalf("status = %s, want open", d.Status())
	}

	d.SetEnabled(false)
	d.Close()
	if d.Status() != device.DoorOpen {
		t.Fatal("disabled door must ignore commands")
	}
}

func TestSpaceLeakAndSeal(t *testing.T) {
	w := mustWorld(t, testStation())
	room, _ := w.Room("a1")
	vent := find[*Vent](t, w, "Vent [A1:Vent]")
	outer := find[*Door](t, w, "Door [A1:Outer]")
	if !vent.CanPressurize() {
		t.Fatal("sealed room should pressurize")
	}
	outer.Open()
	if vent.CanPressurize() {
		t.Fatal("room with a moving door is not sealed")
	}
	for i := 0; i < DoorTravelTicks+5; i++ {
		w.Step()
	}
	if room.Oxygen > 0.05 {
		t.Fatalf("oxygen = %.3f after venting to space", room.Oxygen)
	}
}

func TestVent_DrainIntoTank(t *testing.T) {
	w := mustWorld(t, testStation())
	room, _ := w.Room("a1")
	vent := find[*Vent](t, w, "Vent [A1:Vent]")
	proc := find[*Tank](t, w, "O2 [A1:ProcessTank]")
	base := find[*Tank](t, w, "O2 [BaseTank]")
	base.SetEnabled(false)

	vent.SetDepressurize(true)
	w.Step()
	if room.Oxygen != 0.95 {
		t.Fatal("no enabled tank: nothing should move")
	}

	proc.SetEnabled(true)
	proc.SetCaptureMode(true)
	w.Step()
	if math.Abs(room.Oxygen-(0.95-VentRate)) > 1e-9 {
		t.Fatalf("oxygen = %v", room.Oxygen)
	}
	if math.Abs(proc.FilledRatio()-(0.1+VentRate*TankRatio)) > 1e-9 {
		t.Fatalf("fill = %v", proc.FilledRatio())
	}
}

func TestVent_FillSources(t *testing.T) {
	w := mustWorld(t, testStation())
	room, _ := w.Room("a1")
	room.Oxygen = 0.5
	proc := find[*Tank](t, w, "O2 [A1:ProcessTank]")
	base := find[*Tank](t, w, "O2 [BaseTank]")
	gen := find[*Generator](t, w, "Gen [O2H2]")

	w.Step()
	if math.Abs(room.Oxygen-(0.5+VentRate)) > 1e-9 || base.FilledRatio() != 0.8 {
		t.Fatalf("generator should supply first: o2=%v base=%v", room.Oxygen, base.FilledRatio())
	}

	gen.SetEnabled(false)
	w.Step()
	if base.FilledRatio() >= 0.8 {
		t.Fatal("base tank should supply once the generator is off")
	}

	base.SetEnabled(false)
	proc.SetEnabled(true)
	proc.SetCaptureMode(true)
	before := room.Oxygen
	w.Step()
	if room.Oxygen != before {
		t.Fatal("capturing tank must not supply")
	}
	proc.SetCaptureMode(false)
	w.Step()
	if room.Oxygen <= before {
		t.Fatal("supplying tank should fill the room")
	}
}

func TestStation_Records(t *testing.T) {
	w := mustWorld(t, testStation())
	find[*Door](t, w, "Door [A1:Inner]").Open()
	find[*Tank](t, w, "O2 [A1:ProcessTank]").SetCaptureMode(true)
	find[*Light](t, w, "Light [A1:Light]").SetBlinkLength(60)

	st := w.Station()
	if len(st.Rooms) != 2 || len(st.Blocks) != 8 {
		t.Fatalf("station has %d rooms, %d blocks", len(st.Rooms), len(st.Blocks))
	}
	inner := st.Blocks[0]
	if inner.State.Door != "opening" || inner.State.Travel != DoorTravelTicks || inner.LeadsTo != "habitat" {
		t.Fatalf("door record = %+v", inner)
	}
	if !st.Blocks[3].State.Capture {
		t.Fatal("tank capture not recorded")
	}
	if st.Blocks[6].State.Color != "#00ff00" || st.Blocks[6].State.BlinkLength != 60 {
		t.Fatalf("light record = %+v", st.Blocks[6].State)
	}

	again := mustWorld(t, st)
	if got := find[*Door](t, again, "Door [A1:Inner]"); got.Status() != device.DoorOpening || got.Handle() != 1 {
		t.Fatalf("reloaded door = %s handle %d", got.Status(), got.Handle())
	}
}
