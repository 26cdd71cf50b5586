package cycle

import (
	"bytes"
	"errors"
	"log/slog"
	"math"
	"reflect"
	"testing"

	"github.com/daviddao/airlock/internal/devicetest"
	"github.com/daviddao/airlock/pkg/config"
	"github.com/daviddao/airlock/pkg/device"
	"github.com/daviddao/airlock/pkg/effects"
	"github.com/daviddao/airlock/pkg/inventory"
	"github.com/daviddao/airlock/pkg/isolation"
)

// recorder keeps every event it sees.
type recorder struct {
	NopObserver
	started      []Status
	phases       []Phase
	changes      []Status
	stalled      []Status
	mismatches   []isolation.Diagnostic
	doorTimeouts []Status
	done         []Status
}

func (r *recorder) CycleStarted(s Status) { r.started = append(r.started, s) }
func (r *recorder) PhaseChanged(s Status, _ Phase) {
	r.phases = append(r.phases, s.Phase)
	r.changes = append(r.changes, s)
}
func (r *recorder) CaptureStalled(s Status) { r.stalled = append(r.stalled, s) }
func (r *recorder) IsolationMismatch(_ Status, d isolation.Diagnostic) {
	r.mismatches = append(r.mismatches, d)
}
func (r *recorder) DoorTimeout(s Status, _ []device.Door) { r.doorTimeouts = append(r.doorTimeouts, s) }
func (r *recorder) CycleDone(s Status) { r.done = append(r.done, s) }

// tickOf returns the controller tick at which the cycle entered p.
func (r *recorder) tickOf(p Phase) int {
	for _, s := range r.changes {
		if s.Phase == p {
			return s.Ticks
		}
	}
	return -1
}

// rig is one airlock (A1) with a habitat supply and a simple gas plant.
type rig struct {
	inner, outer *devicetest.Door
	vent         *devicetest.Vent
	light        *devicetest.Light
	procA, procB *devicetest.Tank
	base         *devicetest.Tank
	gen          *devicetest.Generator
	office       *devicetest.Door

	// drop is the oxygen removed per tick while capturing.
	drop float64

	ctrl *Controller
	rec  *recorder
}

func newRig(t *testing.T, tuning config.Tuning) *rig {
	t.Helper()
	r := &rig{
		inner:  devicetest.NewDoor("Door [A1:Inner]"),
		outer:  devicetest.NewDoor("Door [A1:Outer]"),
		vent:   devicetest.NewVent("Vent [A1:Vent]", 0.95),
		light:  devicetest.NewLight("Light [A1:Light]", device.Color{G: 180, B: 40}),
		procA:  devicetest.NewTank("O2 [A1:ProcessTank]", 0.10, false),
		procB:  devicetest.NewTank("O2 [A1:ProcessTank][B1:ProcessTank]", 0.40, true),
		base:   devicetest.NewTank("O2 main [BaseTank]", 0.8, true),
		gen:    devicetest.NewGenerator("Gen [O2H2]", true),
		office: devicetest.NewDoor("Office"),
		drop:   0.03,
		rec:    &recorder{},
	}
	r.procB.SetCaptureMode(true)
	r.light.SetBlinkInterval(2)
	r.light.SetBlinkLength(25)
	r.light.SetBlinkOffset(5)

	inv := inventory.Build([]device.Block{
		r.inner, r.outer, r.vent, r.light, r.procA, r.procB, r.base, r.gen, r.office,
	}, inventory.Options{DefaultAutoCloseTicks: 60, TicksPerSecond: 6})
	r.ctrl = New(inv, Options{Tuning: tuning, Logger: quiet(), Observer: r.rec})
	r.ctrl.Prepare()
	return r
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)) }

// plant moves gas like the real station would: a depressurizing vent feeds
// a capturing tank, a sealed chamber fills from a supplying tank.
func (r *rig) plant() {
	v := r.vent
	tank := r.procA
	switch {
	case v.Depressurizing() && tank.Enabled() && tank.CaptureMode():
		if r.drop > 0 {
			v.Oxygen = math.Max(0.01, v.Oxygen-r.drop)
			tank.Fill += 0.005
		}
	case !v.Depressurizing() && tank.Enabled() && !tank.CaptureMode() && r.outer.Status() == device.DoorClosed:
		v.Oxygen = math.Min(0.92, v.Oxygen+0.03)
	}
}

// checkIsolated fails if more than the selected tank is feeding the station
// while the chamber is isolated.
func (r *rig) checkIsolated(t *testing.T) {
	t.Helper()
	s, ok := r.ctrl.Status()
	if !ok || !s.Phase.Isolating() {
		return
	}
	if r.base.Enabled() || r.gen.Enabled() {
		t.Fatalf("phase %s tick %d: base tank or generator enabled", s.Phase, s.Ticks)
	}
	if r.procB.Enabled() {
		t.Fatalf("phase %s tick %d: unselected process tank enabled", s.Phase, s.Ticks)
	}
	if !r.procA.Enabled() {
		t.Fatalf("phase %s tick %d: selected tank off", s.Phase, s.Ticks)
	}
	if want := capturing(s.Phase); r.procA.CaptureMode() != want {
		t.Fatalf("phase %s tick %d: selected tank capture=%t, want %t", s.Phase, s.Ticks, r.procA.CaptureMode(), want)
	}
}

// capturing reports whether the selected tank must be in capture mode while
// the cycle shows phase p. The switch to supply happens as the outer door
// closes, so CloseOuter itself still captures.
func capturing(p Phase) bool {
	switch p {
	case DepressInit, Depressurize, OpenOuter, WaitOuter, CloseOuter:
		return true
	}
	return false
}

// run ticks the controller and plant until the cycle finishes.
func (r *rig) run(t *testing.T, max int) int {
	t.Helper()
	for i := 1; i <= max; i++ {
		r.ctrl.Tick()
		r.plant()
		r.checkIsolated(t)
		if !r.ctrl.Active() {
			return i
		}
	}
	t.Fatalf("cycle still active after %d ticks", max)
	return max
}

func TestStart_UnknownAirlock(t *testing.T) {
	r := newRig(t, config.DefaultTuning())
	for _, start := range []func(string) (Status, error){r.ctrl.StartEnter, r.ctrl.StartExit} {
		if _, err := start("Z9"); !errors.Is(err, ErrUnknownAirlock) {
			t.Fatalf("err = %v, want ErrUnknownAirlock", err)
		}
		if r.ctrl.Active() {
			t.Fatal("no cycle should exist")
		}
	}
	if len(r.rec.started) != 0 {
		t.Fatal("no start event expected")
	}
}

func TestStart_Busy(t *testing.T) {
	r := newRig(t, config.DefaultTuning())
	if _, err := r.ctrl.StartEnter("a1"); err != nil {
		t.Fatalf("StartEnter: %v", err)
	}
	for i := 0; i < 5; i++ {
		r.ctrl.Tick()
	}
	before, _ := r.ctrl.Status()

	if _, err := r.ctrl.StartExit("A1"); !errors.Is(err, ErrBusy) {
		t.Fatalf("err = %v, want ErrBusy", err)
	}
	if _, err := r.ctrl.StartEnter("A1"); !errors.Is(err, ErrBusy) {
		t.Fatalf("err = %v, want ErrBusy", err)
	}
	// Unknown ids are reported before busy.
	if _, err := r.ctrl.StartEnter("nope"); !errors.Is(err, ErrUnknownAirlock) {
		t.Fatalf("err = %v, want ErrUnknownAirlock", err)
	}
	after, _ := r.ctrl.Status()
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("running cycle changed: %+v -> %+v", before, after)
	}
}

func TestStart_NoProcessTank(t *testing.T) {
	inner := devicetest.NewDoor("Door [C1:Inner]")
	outer := devicetest.NewDoor("Door [C1:Outer]")
	lost := devicetest.NewTank("O2 [D1:ProcessTank]", 0, false)
	lost.Detach()
	inv := inventory.Build([]device.Block{inner, outer, lost}, inventory.Options{})
	c := New(inv, Options{Logger: quiet()})

	for _, id := range []string{"C1", "D1"} {
		if _, err := c.StartEnter(id); !errors.Is(err, ErrNoProcessTank) {
			t.Fatalf("%s: err = %v, want ErrNoProcessTank", id, err)
		}
	}
	for i := 0; i < 10; i++ {
		c.Tick()
	}
	if c.Active() {
		t.Fatal("no cycle should run")
	}
}

func TestPickProcessTank(t *testing.T) {
	a := devicetest.NewTank("a", 0.3, false)
	b := devicetest.NewTank("b", 0.1, false)
	c := devicetest.NewTank("c", 0.1, false)
	al := &inventory.Airlock{ID: "A1", ProcessTanks: []device.Tank{a, b, c}}
	if got := PickProcessTank(al); got != b {
		t.Fatalf("picked %s, want b (lowest fill, first on tie)", got.Name())
	}
	b.Detach()
	if got := PickProcessTank(al); got != c {
		t.Fatalf("picked %s, want c once b is detached", got.Name())
	}
}

func TestScenario_Enter(t *testing.T) {
	r := newRig(t, config.DefaultTuning())
	lightBefore := effects.Capture(r.light)

	s, err := r.ctrl.StartEnter("A1")
	if err != nil {
		t.Fatalf("StartEnter: %v", err)
	}
	if s.Phase != Seal || s.Tank != r.procA.Name() || s.ID == "" {
		t.Fatalf("start status = %+v", s)
	}
	if r.procB.Enabled() {
		t.Fatal("Prepare should have declamped every process tank")
	}

	r.run(t, 2000)

	want := []Phase{Isolate, DepressInit, Depressurize, OpenOuter, WaitOuter, CloseOuter,
		PressInit, Pressurize, OpenInner, WaitInner, CloseInner, Restore, Done}
	if !reflect.DeepEqual(r.rec.phases, want) {
		t.Fatalf("phases = %v\nwant     %v", r.rec.phases, want)
	}
	for _, ch := range r.rec.changes {
		switch ch.Phase {
		case OpenOuter:
			if ch.Oxygen > config.VacOK+config.VacBand {
				t.Errorf("outer opened at o2=%.3f", ch.Oxygen)
			}
		case OpenInner:
			if ch.Oxygen < config.PressOK {
				t.Errorf("inner opened at o2=%.3f", ch.Oxygen)
			}
		}
	}
	if d := r.rec.tickOf(OpenOuter) - r.rec.tickOf(Depressurize); d < config.SettleTicks+config.MinDepressTicks {
		t.Errorf("depressurize lasted %d ticks, below the floor", d)
	}

	if got := effects.Capture(r.light); got != lightBefore {
		t.Errorf("light = %+v, want restored %+v", got, lightBefore)
	}
	if r.procA.Enabled() || r.procA.CaptureMode() {
		t.Error("process tank should end off")
	}
	if !r.base.Enabled() || !r.gen.Enabled() {
		t.Error("base supply should be back on")
	}
	if r.vent.Depressurizing() {
		t.Error("vent left depressurizing")
	}
	if r.inner.Status() != device.DoorClosed || r.outer.Status() != device.DoorClosed {
		t.Error("doors should end closed")
	}
	if r.inner.Changes != 2 || r.outer.Changes != 2 {
		t.Errorf("door changes inner=%d outer=%d, want one open and one close each", r.inner.Changes, r.outer.Changes)
	}
	if len(r.rec.started) != 1 || len(r.rec.done) != 1 || r.rec.done[0].Direction != Enter {
		t.Fatalf("start/done events = %d/%d", len(r.rec.started), len(r.rec.done))
	}
	if len(r.rec.mismatches) != 0 || len(r.rec.doorTimeouts) != 0 {
		t.Errorf("unexpected mismatches=%d doorTimeouts=%d", len(r.rec.mismatches), len(r.rec.doorTimeouts))
	}
}

func TestScenario_Exit(t *testing.T) {
	r := newRig(t, config.DefaultTuning())
	lightBefore := effects.Capture(r.light)

	s, err := r.ctrl.StartExit("A1")
	if err != nil {
		t.Fatalf("StartExit: %v", err)
	}
	if s.Phase != ExitOpenInner {
		t.Fatalf("first phase = %s", s.Phase)
	}

	r.ctrl.Tick()
	if r.inner.Status() != device.DoorOpen {
		t.Fatal("inner door should open first")
	}
	if r.outer.Status() != device.DoorClosed {
		t.Fatal("outer door must stay closed while inner is open")
	}
	if r.vent.Oxygen != 0.95 {
		t.Fatal("chamber should still be pressurized")
	}

	r.run(t, 2000)

	want := []Phase{ExitWaitIn, ExitCloseInner, Seal, Isolate, DepressInit, Depressurize,
		OpenOuter, WaitOuter, CloseOuter, PressInit, Pressurize, Restore, Done}
	if !reflect.DeepEqual(r.rec.phases, want) {
		t.Fatalf("phases = %v\nwant     %v", r.rec.phases, want)
	}
	if r.inner.Changes != 2 {
		t.Errorf("inner door changed %d times, want open+close only", r.inner.Changes)
	}
	if got := effects.Capture(r.light); got != lightBefore {
		t.Errorf("light = %+v, want restored %+v", got, lightBefore)
	}
	if len(r.rec.done) != 1 || r.rec.done[0].Direction != Exit {
		t.Fatal("expected one exit completion")
	}
}

func TestScenario_NoCapture(t *testing.T) {
	r := newRig(t, config.DefaultTuning())
	r.drop = 0
	r.vent.Oxygen = 0.6
	if _, err := r.ctrl.StartEnter("A1"); err != nil {
		t.Fatalf("StartEnter: %v", err)
	}
	for r.ctrl.Active() {
		r.ctrl.Tick()
		r.plant()
		if s, _ := r.ctrl.Status(); s.Phase == OpenOuter {
			break
		}
	}

	// SettleTicks of dwell, then TimeoutTicks evaluations.
	if d := r.rec.tickOf(OpenOuter) - r.rec.tickOf(Depressurize); d != config.SettleTicks+config.TimeoutTicks {
		t.Fatalf("forced after %d ticks, want %d", d, config.SettleTicks+config.TimeoutTicks)
	}
	if got := len(r.rec.stalled); got != config.TimeoutTicks/config.WarnEvery-1 {
		t.Fatalf("stalled warnings = %d, want %d", got, config.TimeoutTicks/config.WarnEvery-1)
	}
	if r.vent.Oxygen < 0.5 {
		t.Fatal("oxygen should not have dropped")
	}
}

func TestDoorCommandsIdempotent(t *testing.T) {
	r := newRig(t, config.DefaultTuning())
	r.inner.SetStatus(device.DoorOpen)
	if _, err := r.ctrl.StartExit("A1"); err != nil {
		t.Fatal(err)
	}
	r.ctrl.Tick()
	if r.inner.Changes != 0 || r.inner.OpenCalls != 1 {
		t.Fatalf("open on open door: changes=%d calls=%d", r.inner.Changes, r.inner.OpenCalls)
	}
	if s, _ := r.ctrl.Status(); s.Phase != ExitWaitIn {
		t.Fatalf("phase = %s, want exit_wait_in", s.Phase)
	}
}

func TestDoorLagReissuesCommand(t *testing.T) {
	r := newRig(t, config.DefaultTuning())
	r.inner.Stuck = true
	if _, err := r.ctrl.StartExit("A1"); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		r.ctrl.Tick()
	}
	if s, _ := r.ctrl.Status(); s.Phase != ExitOpenInner {
		t.Fatalf("phase = %s, want exit_open_inner while door lags", s.Phase)
	}
	r.inner.Stuck = false
	r.ctrl.Tick()
	if r.inner.OpenCalls != 6 || r.inner.Changes != 1 {
		t.Fatalf("calls=%d changes=%d", r.inner.OpenCalls, r.inner.Changes)
	}
	if s, _ := r.ctrl.Status(); s.Phase != ExitWaitIn {
		t.Fatalf("phase = %s, want exit_wait_in", s.Phase)
	}
}

func TestDoorPhaseLiveness(t *testing.T) {
	r := newRig(t, config.DefaultTuning())
	r.outer.SetStatus(device.DoorOpen)
	r.outer.Stuck = true
	if _, err := r.ctrl.StartEnter("A1"); err != nil {
		t.Fatal(err)
	}
	for i := 1; i < config.TimeoutTicks; i++ {
		r.ctrl.Tick()
	}
	if s, _ := r.ctrl.Status(); s.Phase != Seal {
		t.Fatalf("phase = %s before the cap, want seal", s.Phase)
	}
	r.ctrl.Tick()
	if s, _ := r.ctrl.Status(); s.Phase != Isolate {
		t.Fatalf("phase = %s at the cap, want isolate", s.Phase)
	}
	if len(r.rec.doorTimeouts) != 1 || r.rec.doorTimeouts[0].Phase != Seal {
		t.Fatalf("door timeouts = %+v", r.rec.doorTimeouts)
	}
}

func TestIsolationMismatchReported(t *testing.T) {
	r := newRig(t, config.DefaultTuning())
	if _, err := r.ctrl.StartEnter("A1"); err != nil {
		t.Fatal(err)
	}
	for {
		r.ctrl.Tick()
		if s, _ := r.ctrl.Status(); s.Phase == DepressInit {
			break
		}
	}
	r.base.SetEnabled(true) // someone flips the base tank back on
	for len(r.rec.mismatches) == 0 {
		if s, _ := r.ctrl.Status(); s.Phase != DepressInit && s.Phase != Depressurize {
			t.Fatalf("no mismatch reported by phase %s", s.Phase)
		}
		r.ctrl.Tick()
	}
	d := r.rec.mismatches[0]
	if d.Expected != isolation.Capture || d.BaseOn != 1 || d.Hint == "" {
		t.Fatalf("diagnostic = %+v", d)
	}
}

func TestSealOnly(t *testing.T) {
	r := newRig(t, config.DefaultTuning())
	if err := r.ctrl.SealOnly("X1"); !errors.Is(err, ErrUnknownAirlock) {
		t.Fatalf("err = %v, want ErrUnknownAirlock", err)
	}
	r.inner.SetStatus(device.DoorOpen)
	r.outer.SetStatus(device.DoorOpen)
	r.vent.SetDepressurize(true)
	if err := r.ctrl.SealOnly("a1"); err != nil {
		t.Fatalf("SealOnly: %v", err)
	}
	if r.inner.Status() != device.DoorClosed || r.outer.Status() != device.DoorClosed {
		t.Fatal("both doors should be closed")
	}
	if r.vent.Depressurizing() {
		t.Fatal("vent should stop depressurizing")
	}
	if r.ctrl.Active() {
		t.Fatal("seal must not start a cycle")
	}
}

func TestSetInventory(t *testing.T) {
	r := newRig(t, config.DefaultTuning())
	if _, err := r.ctrl.StartEnter("A1"); err != nil {
		t.Fatal(err)
	}
	if err := r.ctrl.SetInventory(inventory.Empty()); !errors.Is(err, ErrBusy) {
		t.Fatalf("err = %v, want ErrBusy during a cycle", err)
	}
	r.run(t, 2000)

	fresh := devicetest.NewTank("O2 [E1:ProcessTank]", 0.5, true)
	fresh.SetCaptureMode(true)
	if err := r.ctrl.SetInventory(inventory.Build([]device.Block{fresh}, inventory.Options{})); err != nil {
		t.Fatalf("SetInventory: %v", err)
	}
	if fresh.Enabled() || fresh.CaptureMode() {
		t.Fatal("new process tanks should be declamped")
	}
	if _, ok := r.ctrl.Inventory().Airlock("E1"); !ok {
		t.Fatal("new inventory not in use")
	}
}

func TestLockManual(t *testing.T) {
	tuning := config.DefaultTuning()
	tuning.LockManual = true
	r := newRig(t, tuning)
	if r.inner.Enabled() || r.outer.Enabled() {
		t.Fatal("Prepare should disable airlock doors")
	}
	if !r.office.Enabled() {
		t.Fatal("ordinary doors are not locked")
	}
	if _, err := r.ctrl.StartExit("A1"); err != nil {
		t.Fatal(err)
	}
	r.ctrl.Tick()
	if !r.inner.Enabled() || r.inner.Status() != device.DoorOpen {
		t.Fatal("controller should take over a locked door")
	}
	r.run(t, 2000)
	if r.inner.Enabled() || r.outer.Enabled() {
		t.Fatal("doors should be locked again after the cycle")
	}
}

func TestTickIdle(t *testing.T) {
	c := New(nil, Options{Logger: quiet()})
	c.Tick()
	if s, ok := c.Status(); ok || s.Phase != Idle {
		t.Fatalf("Status = %+v, %v", s, ok)
	}
}

func TestPhaseIsolating(t *testing.T) {
	var got []Phase
	for _, p := range Phases {
		if p.Isolating() {
			got = append(got, p)
		}
	}
	want := []Phase{DepressInit, Depressurize, OpenOuter, WaitOuter, CloseOuter,
		PressInit, Pressurize, OpenInner, WaitInner, CloseInner, Restore}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("isolating phases = %v", got)
	}
}

func TestCaptureModeUntilOuterCloses(t *testing.T) {
	r := newRig(t, config.DefaultTuning())
	if _, err := r.ctrl.StartExit("A1"); err != nil {
		t.Fatal(err)
	}
	seen := map[Phase]bool{}
	for i := 0; i < 5000 && r.ctrl.Active(); i++ {
		r.ctrl.Tick()
		r.plant()
		if s, ok := r.ctrl.Status(); ok {
			seen[s.Phase] = r.procA.CaptureMode()
		}
	}
	if r.ctrl.Active() {
		t.Fatal("exit cycle did not finish")
	}
	for _, p := range []Phase{Depressurize, OpenOuter, WaitOuter, CloseOuter} {
		if capture, ok := seen[p]; !ok || !capture {
			t.Errorf("phase %s: capture=%t seen=%t, want capturing", p, capture, ok)
		}
	}
	for _, p := range []Phase{PressInit, Pressurize, Restore} {
		if capture, ok := seen[p]; !ok || capture {
			t.Errorf("phase %s: capture=%t seen=%t, want supplying", p, capture, ok)
		}
	}
}

func TestStatusOxygenIsLive(t *testing.T) {
	r := newRig(t, config.DefaultTuning())
	if _, err := r.ctrl.StartExit("A1"); err != nil {
		t.Fatal(err)
	}
	r.vent.Oxygen = 0.42
	s, ok := r.ctrl.Status()
	if !ok || s.Phase != ExitOpenInner {
		t.Fatalf("status = %+v, %v", s, ok)
	}
	if s.Oxygen != 0.42 {
		t.Fatalf("Status().Oxygen = %v during %s, want the current reading 0.42", s.Oxygen, s.Phase)
	}
}
