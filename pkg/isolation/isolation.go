// Package isolation switches the station's gas sources so that, while a
// cycle holds an airlock, the selected process tank is the only gas path.
//
// Outside a cycle the base tanks and generators supply the habitat and every
// process tank is off. During a cycle:
//
//	Isolate .. CloseOuter   process tank on, capture mode
//	CloseOuter .. Restore   process tank on, supply mode
//
// and every base tank and generator is off. All writes are idempotent: a
// tank already in the requested state is not touched.
package isolation

import (
	"log/slog"

	"github.com/daviddao/airlock/pkg/device"
	"github.com/daviddao/airlock/pkg/inventory"
)

// Mode is the requested state of a process tank.
type Mode int

const (
	Off Mode = iota
	Capture
	Supply
)

func (m Mode) String() string {
	switch m {
	case Capture:
		return "capture"
	case Supply:
		return "supply"
	default:
		return "off"
	}
}

// Manager owns the station-wide gas sources of one inventory.
type Manager struct {
	base    []device.Tank
	gens    []device.Generator
	process []device.Tank
	log     *slog.Logger
}

// New returns a manager over the gas sources of inv. A nil logger uses
// slog.Default.
func New(inv *inventory.Inventory, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		base:    inv.BaseTanks(),
		gens:    inv.Generators(),
		process: inv.ProcessTanks(),
		log:     log.With("component", "isolation"),
	}
}

// Set puts a tank into mode. Capture mode is written before the tank is
// enabled so an enabling tank never briefly supplies.
func Set(t device.Tank, mode Mode) {
	if t == nil {
		return
	}
	capture := mode == Capture
	on := mode != Off
	if t.CaptureMode() != capture {
		t.SetCaptureMode(capture)
	}
	if t.Enabled() != on {
		t.SetEnabled(on)
	}
}

func setAll[T device.Switchable](blocks []T, on bool) {
	for _, b := range blocks {
		if b.Enabled() != on {
			b.SetEnabled(on)
		}
	}
}

// DisableGenerators turns every generator off.
func (m *Manager) DisableGenerators() { setAll(m.gens, false) }

// DisableBaseTanks turns every base tank off.
func (m *Manager) DisableBaseTanks() { setAll(m.base, false) }

// DeclampAll turns every attached process tank off and out of capture mode,
// across all airlocks. Run at startup and after a rescan so no tank is left
// holding a chamber's gas from an interrupted cycle.
func (m *Manager) DeclampAll() {
	for _, t := range m.process {
		if t.Attached() {
			Set(t, Off)
		}
	}
}

// Isolate cuts every source except sel and puts sel in capture mode.
func (m *Manager) Isolate(sel device.Tank) {
	m.DisableGenerators()
	m.DisableBaseTanks()
	m.DeclampAll()
	Set(sel, Capture)
}

// Supply makes sel the sole supply. Called every Pressurize tick.
func (m *Manager) Supply(sel device.Tank) {
	Set(sel, Supply)
	m.DisableBaseTanks()
	m.DisableGenerators()
}

// Restore turns sel off and hands the habitat back to the base tanks and
// generators.
func (m *Manager) Restore(sel device.Tank) {
	Set(sel, Off)
	setAll(m.base, true)
	setAll(m.gens, true)
}

// Diagnostic is the observed state of the gas sources against an expected
// process tank mode.
type Diagnostic struct {
	Expected    Mode
	BaseOn      int
	GensOn      int
	ProcOn      bool
	ProcCapture bool
	OK          bool
	Hint        string
}

// Check compares the live gas sources with what a cycle in the expected mode
// needs, and logs a corrective hint when they disagree. It never changes
// anything.
func (m *Manager) Check(id string, sel device.Tank, expected Mode) Diagnostic {
	d := Diagnostic{Expected: expected}
	for _, t := range m.base {
		if t.Enabled() {
			d.BaseOn++
		}
	}
	for _, g := range m.gens {
		if g.Enabled() {
			d.GensOn++
		}
	}
	if sel != nil {
		d.ProcOn = sel.Enabled()
		d.ProcCapture = sel.CaptureMode()
	}
	wantOn := expected != Off
	wantCapture := expected == Capture
	d.OK = d.ProcOn == wantOn && d.ProcCapture == wantCapture
	if wantOn {
		d.OK = d.OK && d.BaseOn == 0 && d.GensOn == 0
	}

	if !d.OK {
		switch expected {
		case Capture:
			d.Hint = "need process tank on in capture mode and all base tanks and generators off"
		case Supply:
			d.Hint = "need process tank on, not in capture mode, and all base tanks and generators off"
		default:
			d.Hint = "need process tank off"
		}
		m.log.Warn("isolation mismatch", "airlock", id, "expect", expected,
			"base_on", d.BaseOn, "gens_on", d.GensOn, "proc_on", d.ProcOn,
			"proc_capture", d.ProcCapture, "hint", d.Hint)
	} else {
		m.log.Debug("isolation ok", "airlock", id, "expect", expected, "base_on", d.BaseOn, "gens_on", d.GensOn)
	}
	return d
}
