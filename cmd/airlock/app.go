package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/daviddao/airlock/pkg/autoclose"
	"github.com/daviddao/airlock/pkg/clock"
	"github.com/daviddao/airlock/pkg/config"
	"github.com/daviddao/airlock/pkg/cycle"
	"github.com/daviddao/airlock/pkg/inventory"
	"github.com/daviddao/airlock/pkg/metrics"
	"github.com/daviddao/airlock/pkg/scheduler"
	"github.com/daviddao/airlock/pkg/sim"
	"github.com/daviddao/airlock/pkg/store"
)

// app holds shared state for all CLI subcommands.
type app struct {
	cfg   config.Config
	store store.StoreInterface
	log   *slog.Logger
}

// newApp reads the configuration, installs the logger and opens the
// database. The directory of the default database is created on demand.
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := newLogger(cfg.LogLevel)
	slog.SetDefault(log)

	if cfg.DB == config.DefaultDB() {
		dir := filepath.Dir(cfg.DB)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("cannot create %s: %w", dir, err)
		}
	}
	s, err := store.New(cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("cannot open database %q: %w", cfg.DB, err)
	}
	return &app{cfg: cfg, store: s, log: log}, nil
}

func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// Close releases the database connection.
func (a *app) Close() { a.store.Close() }

// fail prints err the way every subcommand reports errors and returns the
// error exit code.
func (a *app) fail(cmd string, err error) int {
	fmt.Fprintf(os.Stderr, "airlock: %s: %v\n", cmd, err)
	return 1
}

// runtime is a station loaded from the database with the controller, the
// auto-close timer and the scheduler wired over it.
type runtime struct {
	world   *sim.World
	ctrl    *cycle.Controller
	sched   *scheduler.Scheduler
	journal *journal
	metrics *metrics.Metrics
	outcome *outcome
}

// outcome keeps the status the controller reported when the last cycle
// finished.
type outcome struct {
	cycle.NopObserver
	done *cycle.Status
}

func (o *outcome) CycleDone(s cycle.Status) { o.done = &s }

// load rebuilds the runtime from the stored station. With trace set the
// controller logs every tick regardless of the configured level.
func (a *app) load(trace bool) (*runtime, error) {
	st, err := a.store.LoadStation()
	if err != nil {
		return nil, err
	}
	world, err := sim.New(st)
	if err != nil {
		return nil, err
	}

	log := a.log
	if trace {
		log = newLogger(slog.LevelDebug)
	}
	clk := &clock.Clock{}
	clk.Set(a.store.MaxTick())

	rt := &runtime{
		world:   world,
		journal: newJournal(a.store, clk, log),
		metrics: metrics.New(),
		outcome: &outcome{},
	}
	inv := a.inventory(world)
	rt.ctrl = cycle.New(inv, cycle.Options{
		Tuning:   a.cfg.Tuning,
		Logger:   log,
		Observer: cycle.Observers{rt.journal, rt.metrics, rt.outcome},
	})
	rt.ctrl.Prepare()
	rt.sched = scheduler.New(rt.ctrl, autoclose.New(inv.AutoClose(), a.cfg.AutoCloseEnabled), scheduler.Options{
		Plant:  world,
		Clock:  clk,
		Logger: log,
		OnAutoClose: func(tick int64, c autoclose.Closed) {
			rt.journal.AutoClosed(tick, c)
			rt.metrics.AutoClosed(tick, c)
		},
	})
	return rt, nil
}

func (a *app) inventory(w *sim.World) *inventory.Inventory {
	return inventory.Build(w.Blocks(), inventory.Options{
		DefaultAutoCloseTicks: a.cfg.AutoCloseDefaultTicks(),
		TicksPerSecond:        a.cfg.TicksPerSecond,
	})
}

// rescanner returns the rescan hook for a command dispatcher: rebuild the
// inventory from the world's current blocks and hand it to the scheduler.
func (a *app) rescanner(rt *runtime) func() error {
	return func() error {
		inv := a.inventory(rt.world)
		if err := rt.sched.Rescan(inv); err != nil {
			return err
		}
		rt.journal.Rescanned(len(inv.IDs()), len(inv.AutoClose()))
		return nil
	}
}

// persist writes the world's block states back to the database.
func (a *app) persist(rt *runtime) error {
	if err := a.store.SaveStates(rt.world.Station()); err != nil {
		return fmt.Errorf("save station: %w", err)
	}
	return nil
}
