package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/daviddao/airlock/pkg/autoclose"
	"github.com/daviddao/airlock/pkg/clock"
	"github.com/daviddao/airlock/pkg/cycle"
	"github.com/daviddao/airlock/pkg/device"
	"github.com/daviddao/airlock/pkg/isolation"
	"github.com/daviddao/airlock/pkg/model"
	"github.com/daviddao/airlock/pkg/store"
)

// journal writes controller activity to the event log, one event per hook,
// stamped with the current scheduler tick. Write failures are logged and
// never stop a cycle.
type journal struct {
	store store.StoreInterface
	clock *clock.Clock
	log   *slog.Logger
}

func newJournal(s store.StoreInterface, c *clock.Clock, log *slog.Logger) *journal {
	return &journal{store: s, clock: c, log: log.With("component", "journal")}
}

func (j *journal) record(e model.Event) {
	if e.Tick == 0 {
		e.Tick = j.clock.Value()
	}
	if _, err := j.store.InsertEvent(&e); err != nil {
		j.log.Warn("journal write failed", "kind", e.Kind, "airlock", e.Airlock, "err", err)
	}
}

func fromStatus(kind model.EventKind, s cycle.Status) model.Event {
	return model.Event{CycleID: s.ID, Airlock: s.Airlock, Kind: kind, Phase: string(s.Phase)}
}

func (j *journal) CycleStarted(s cycle.Status) {
	e := fromStatus(model.EventCycleStarted, s)
	e.Body = fmt.Sprintf("%s tank=%q o2=%.3f", s.Direction, s.Tank, s.Oxygen)
	j.record(e)
}

func (j *journal) PhaseChanged(s cycle.Status, from cycle.Phase) {
	e := fromStatus(model.EventPhase, s)
	e.Body = "from " + string(from)
	j.record(e)
}

func (j *journal) CaptureStalled(s cycle.Status) {
	e := fromStatus(model.EventCaptureStalled, s)
	e.Body = fmt.Sprintf("t=%d o2=%.3f fill=%.3f", s.Elapsed, s.Oxygen, s.TankFill)
	j.record(e)
}

func (j *journal) IsolationMismatch(s cycle.Status, d isolation.Diagnostic) {
	e := fromStatus(model.EventIsolationMismatch, s)
	e.Body = fmt.Sprintf("expect=%s base_on=%d gens_on=%d proc_on=%t proc_capture=%t: %s",
		d.Expected, d.BaseOn, d.GensOn, d.ProcOn, d.ProcCapture, d.Hint)
	j.record(e)
}

func (j *journal) DoorTimeout(s cycle.Status, doors []device.Door) {
	names := make([]string, 0, len(doors))
	for _, d := range doors {
		names = append(names, fmt.Sprintf("%s=%s", d.Name(), d.Status()))
	}
	e := fromStatus(model.EventDoorTimeout, s)
	e.Body = strings.Join(names, ", ")
	j.record(e)
}

func (j *journal) CycleDone(s cycle.Status) {
	e := fromStatus(model.EventCycleDone, s)
	e.Body = fmt.Sprintf("%s in %d ticks", s.Direction, s.Ticks)
	j.record(e)
}

// AutoClosed records a door closed by the timer on tick.
func (j *journal) AutoClosed(tick int64, c autoclose.Closed) {
	j.record(model.Event{
		Kind: model.EventAutoClose,
		Tick: tick,
		Body: fmt.Sprintf("%s after %d ticks", c.Door.Name(), c.Limit),
	})
}

// Sealed records a seal-only command.
func (j *journal) Sealed(airlock string) {
	j.record(model.Event{Kind: model.EventSeal, Airlock: airlock})
}

// Rescanned records an inventory rebuild.
func (j *journal) Rescanned(airlocks, autoDoors int) {
	j.record(model.Event{
		Kind: model.EventRescan,
		Body: fmt.Sprintf("airlocks=%d auto_close=%d", airlocks, autoDoors),
	})
}

var _ cycle.Observer = (*journal)(nil)
