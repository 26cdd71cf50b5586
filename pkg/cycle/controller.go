package cycle

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/daviddao/airlock/pkg/config"
	"github.com/daviddao/airlock/pkg/device"
	"github.com/daviddao/airlock/pkg/effects"
	"github.com/daviddao/airlock/pkg/gas"
	"github.com/daviddao/airlock/pkg/inventory"
	"github.com/daviddao/airlock/pkg/isolation"
)

// run is the state of the one in-flight cycle.
type run struct {
	id        string
	al        *inventory.Airlock
	direction Direction
	phase     Phase
	wait      int
	elapsed   int
	stable    int
	tank      device.Tank
	startO2   float64
	lastO2    float64
	fillStart float64
	fillLast  float64
	lights    effects.Backup
	ticks     int
}

// Options configures a Controller. Zero values select the defaults.
type Options struct {
	Tuning   config.Tuning
	Logger   *slog.Logger
	Observer Observer
}

// Controller runs airlock cycles over one inventory.
type Controller struct {
	inv    *inventory.Inventory
	iso    *isolation.Manager
	tuning config.Tuning
	policy gas.Policy
	logger *slog.Logger
	log    *slog.Logger
	obs    Observer
	run    *run
}

// New returns an idle controller over inv.
func New(inv *inventory.Inventory, opts Options) *Controller {
	if opts.Tuning == (config.Tuning{}) {
		opts.Tuning = config.DefaultTuning()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Observer == nil {
		opts.Observer = NopObserver{}
	}
	if inv == nil {
		inv = inventory.Empty()
	}
	return &Controller{
		inv:    inv,
		iso:    isolation.New(inv, opts.Logger),
		tuning: opts.Tuning,
		policy: gas.NewPolicy(opts.Tuning),
		logger: opts.Logger,
		log:    opts.Logger.With("component", "cycle"),
		obs:    opts.Observer,
	}
}

// Inventory returns the inventory the controller runs on.
func (c *Controller) Inventory() *inventory.Inventory { return c.inv }

// Tuning returns the controller's tuning.
func (c *Controller) Tuning() config.Tuning { return c.tuning }

// Prepare puts the station into its idle state: every process tank off and,
// with manual locking, every airlock door disabled. Call once at startup.
func (c *Controller) Prepare() {
	c.iso.DeclampAll()
	for _, al := range c.inv.Airlocks() {
		c.releaseDoors(al.Inner)
		c.releaseDoors(al.Outer)
	}
}

// SetInventory swaps in a rebuilt inventory and prepares it. Refused with
// ErrBusy while a cycle runs.
func (c *Controller) SetInventory(inv *inventory.Inventory) error {
	if c.run != nil {
		return fmt.Errorf("%w: %s", ErrBusy, c.run.al.ID)
	}
	if inv == nil {
		inv = inventory.Empty()
	}
	c.inv = inv
	c.iso = isolation.New(inv, c.logger)
	c.Prepare()
	return nil
}

// Active reports whether a cycle is running.
func (c *Controller) Active() bool { return c.run != nil }

// Status returns the running cycle, if any.
func (c *Controller) Status() (Status, bool) {
	if c.run == nil {
		return Status{Phase: Idle}, false
	}
	return c.status(), true
}

func (c *Controller) status() Status {
	r := c.run
	s := Status{
		ID:        r.id,
		Airlock:   r.al.ID,
		Direction: r.direction,
		Phase:     r.phase,
		Wait:      r.wait,
		Elapsed:   r.elapsed,
		Stable:    r.stable,
		TankFill:  r.fillLast,
		Oxygen:    gas.ChamberOxygen(r.al.Vents),
		Baseline:  r.startO2,
		Ticks:     r.ticks,
	}
	if r.tank != nil {
		s.Tank = r.tank.Name()
	}
	return s
}

// StartEnter begins a cycle that brings someone in from space.
func (c *Controller) StartEnter(id string) (Status, error) {
	return c.start(id, Enter, Seal)
}

// StartExit begins a cycle that lets someone out to space. The inner door
// opens first while the chamber is still pressurized.
func (c *Controller) StartExit(id string) (Status, error) {
	return c.start(id, Exit, ExitOpenInner)
}

func (c *Controller) start(id string, dir Direction, first Phase) (Status, error) {
	al, ok := c.inv.Airlock(id)
	if !ok {
		return Status{}, fmt.Errorf("%w: %s", ErrUnknownAirlock, id)
	}
	if c.run != nil {
		return Status{}, fmt.Errorf("%w: %s", ErrBusy, c.run.al.ID)
	}
	tank := PickProcessTank(al)
	if tank == nil {
		return Status{}, fmt.Errorf("%w: %s", ErrNoProcessTank, al.ID)
	}
	o2 := gas.ChamberOxygen(al.Vents)
	c.run = &run{
		id:        uuid.NewString(),
		al:        al,
		direction: dir,
		phase:     first,
		tank:      tank,
		startO2:   o2,
		lastO2:    o2,
	}
	s := c.status()
	c.log.Info("cycle started", "airlock", al.ID, "direction", dir, "tank", tank.Name(), "cycle", s.ID)
	c.obs.CycleStarted(s)
	return s, nil
}

// PickProcessTank returns the emptiest attached process tank of al, or nil.
// Ties go to the first discovered.
func PickProcessTank(al *inventory.Airlock) device.Tank {
	var best device.Tank
	for _, t := range al.AttachedProcessTanks() {
		if best == nil || t.FilledRatio() < best.FilledRatio() {
			best = t
		}
	}
	return best
}

// SealOnly closes both door sets of an airlock and stops its vents from
// depressurizing. It may run during a cycle.
func (c *Controller) SealOnly(id string) error {
	al, ok := c.inv.Airlock(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAirlock, id)
	}
	c.closeAll(al.Inner)
	c.closeAll(al.Outer)
	setDepressurize(al.Vents, false)
	c.log.Info("sealed", "airlock", al.ID)
	return nil
}

// Tick advances the running cycle by one step. It does nothing when idle.
func (c *Controller) Tick() {
	r := c.run
	if r == nil {
		return
	}
	r.ticks++
	c.log.Debug("tick", "airlock", r.al.ID, "direction", r.direction, "phase", r.phase,
		"t", r.elapsed, "wait", r.wait, "o2", gas.ChamberOxygen(r.al.Vents))

	if r.wait > 0 {
		r.wait--
		return
	}

	al := r.al
	t := c.tuning
	switch r.phase {
	case ExitOpenInner:
		c.closeAll(al.Outer)
		setDepressurize(al.Vents, false)
		c.openAll(al.Inner)
		if c.converged(allOpen(al.Inner), al.Inner) {
			c.next(ExitWaitIn, t.WaitPass)
		}

	case ExitWaitIn:
		c.next(ExitCloseInner, t.WaitShort)

	case ExitCloseInner:
		c.closeAll(al.Inner)
		if c.converged(allClosed(al.Inner), al.Inner) {
			c.next(Seal, 1)
		}

	case Seal:
		c.closeAll(al.Inner)
		c.closeAll(al.Outer)
		setDepressurize(al.Vents, false)
		doors := append(append([]device.Door(nil), al.Inner...), al.Outer...)
		if c.converged(allClosed(doors), doors) {
			c.next(Isolate, 1)
		}

	case Isolate:
		c.iso.Isolate(r.tank)
		r.stable = 0
		r.startO2 = gas.ChamberOxygen(al.Vents)
		r.lastO2 = r.startO2
		r.fillStart = gas.TankFill(r.tank)
		r.fillLast = r.fillStart
		r.lights = effects.Snapshot(al.Lights)
		effects.ApplyAlert(al.Lights)
		c.next(DepressInit, 1)

	case DepressInit:
		setDepressurize(al.Vents, true)
		c.next(Depressurize, t.SettleTicks)

	case Depressurize:
		c.depressurize()

	case OpenOuter:
		c.openAll(al.Outer)
		if c.converged(allOpen(al.Outer), al.Outer) {
			c.next(WaitOuter, t.WaitPass)
		}

	case WaitOuter:
		c.next(CloseOuter, t.WaitShort)

	case CloseOuter:
		c.closeAll(al.Outer)
		if c.converged(allClosed(al.Outer), al.Outer) {
			isolation.Set(r.tank, isolation.Supply)
			c.next(PressInit, t.SettleTicks)
		}

	case PressInit:
		setDepressurize(al.Vents, false)
		r.startO2 = gas.ChamberOxygen(al.Vents)
		r.lastO2 = r.startO2
		r.stable = 0
		c.next(Pressurize, 1)

	case Pressurize:
		c.pressurize()

	case OpenInner:
		c.openAll(al.Inner)
		if c.converged(allOpen(al.Inner), al.Inner) {
			c.next(WaitInner, t.WaitPass)
		}

	case WaitInner:
		c.next(CloseInner, t.WaitShort)

	case CloseInner:
		c.closeAll(al.Inner)
		if c.converged(allClosed(al.Inner), al.Inner) {
			c.next(Restore, 1)
		}

	case Restore:
		setDepressurize(al.Vents, false)
		effects.Restore(al.Lights, r.lights)
		r.lights = nil
		c.iso.Restore(r.tank)
		c.releaseDoors(al.Inner)
		c.releaseDoors(al.Outer)
		c.next(Done, 1)

	case Done:
		s := c.status()
		c.log.Info("cycle done", "airlock", al.ID, "direction", r.direction, "ticks", r.ticks, "cycle", r.id)
		c.run = nil
		c.obs.CycleDone(s)
	}
}

func (c *Controller) depressurize() {
	r := c.run
	r.elapsed++
	if r.elapsed == 1 {
		c.checkIsolation(isolation.Capture)
	}

	o2 := gas.ChamberOxygen(r.al.Vents)
	fill := gas.TankFill(r.tank)
	capturing := c.policy.Capturing(r.lastO2, o2, r.fillLast, fill)
	r.lastO2 = o2
	r.fillLast = fill

	switch {
	case c.policy.DepressurizeDone(r.elapsed, o2, capturing):
		if c.policy.TimedOut(r.elapsed) {
			c.log.Warn("depressurize timed out, opening anyway", "airlock", r.al.ID, "o2", o2)
		}
		c.next(OpenOuter, 1)
	case c.policy.StalledWarning(r.elapsed, capturing):
		c.log.Warn("no capture, check the gas path and process tank", "airlock", r.al.ID,
			"t", r.elapsed, "o2", o2, "fill", fill)
		c.obs.CaptureStalled(c.status())
	}
}

func (c *Controller) pressurize() {
	r := c.run
	if r.elapsed == 0 {
		c.checkIsolation(isolation.Supply)
	}
	c.iso.Supply(r.tank)

	o2 := gas.ChamberOxygen(r.al.Vents)
	r.stable = c.policy.NextStable(r.stable, r.lastO2, o2)
	r.lastO2 = o2
	r.fillLast = gas.TankFill(r.tank)
	r.elapsed++

	done := c.policy.PressurizeDone(gas.PressurizeInput{
		Elapsed:       r.elapsed,
		Oxygen:        o2,
		Baseline:      r.startO2,
		Stable:        r.stable,
		CanPressurize: gas.AnyVentCanPressurize(r.al.Vents),
	})
	if !done {
		return
	}
	if c.policy.TimedOut(r.elapsed) {
		c.log.Warn("pressurize timed out, continuing", "airlock", r.al.ID, "o2", o2)
	}
	if r.direction == Enter {
		c.next(OpenInner, 1)
	} else {
		c.next(Restore, 1)
	}
}

func (c *Controller) checkIsolation(expected isolation.Mode) {
	d := c.iso.Check(c.run.al.ID, c.run.tank, expected)
	if !d.OK {
		c.obs.IsolationMismatch(c.status(), d)
	}
}

// converged reports whether a door phase may advance: the doors reached the
// commanded position, or the phase hit the safety cap.
func (c *Controller) converged(ok bool, doors []device.Door) bool {
	if ok {
		return true
	}
	r := c.run
	r.elapsed++
	if !c.policy.TimedOut(r.elapsed) {
		return false
	}
	c.log.Warn("doors did not reach position, advancing", "airlock", r.al.ID, "phase", r.phase,
		"stuck", stuckNames(doors, r.phase))
	c.obs.DoorTimeout(c.status(), doors)
	return true
}

// next moves to phase p after delay ticks and resets the phase counter.
func (c *Controller) next(p Phase, delay int) {
	r := c.run
	from := r.phase
	r.phase = p
	r.wait = delay
	r.elapsed = 0
	c.log.Debug("phase", "airlock", r.al.ID, "from", from, "to", p, "wait", delay)
	c.obs.PhaseChanged(c.status(), from)
}

// ensureDoorCtrl re-enables a door disabled by manual locking before the
// controller commands it.
func (c *Controller) ensureDoorCtrl(d device.Door) {
	if c.tuning.LockManual && !d.Enabled() {
		d.SetEnabled(true)
	}
}

func (c *Controller) openAll(doors []device.Door) {
	for _, d := range doors {
		c.ensureDoorCtrl(d)
		d.Open()
	}
}

func (c *Controller) closeAll(doors []device.Door) {
	for _, d := range doors {
		c.ensureDoorCtrl(d)
		d.Close()
	}
}

// releaseDoors hands the doors back to manual operation. With manual
// locking that means disabled; otherwise they are left as they are.
func (c *Controller) releaseDoors(doors []device.Door) {
	if !c.tuning.LockManual {
		return
	}
	for _, d := range doors {
		if d.Enabled() {
			d.SetEnabled(false)
		}
	}
}

func allOpen(doors []device.Door) bool {
	for _, d := range doors {
		if d.Status() != device.DoorOpen {
			return false
		}
	}
	return true
}

func allClosed(doors []device.Door) bool {
	for _, d := range doors {
		if d.Status() != device.DoorClosed {
			return false
		}
	}
	return true
}

func stuckNames(doors []device.Door, p Phase) []string {
	want := device.DoorClosed
	switch p {
	case ExitOpenInner, OpenOuter, OpenInner:
		want = device.DoorOpen
	}
	var out []string
	for _, d := range doors {
		if d.Status() != want {
			out = append(out, d.Name())
		}
	}
	return out
}

func setDepressurize(vents []device.Vent, on bool) {
	for _, v := range vents {
		if v.Depressurizing() != on {
			v.SetDepressurize(on)
		}
	}
}
