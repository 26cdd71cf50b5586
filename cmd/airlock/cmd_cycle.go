package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/daviddao/airlock/pkg/command"
	"github.com/daviddao/airlock/pkg/scheduler"
	"github.com/daviddao/airlock/pkg/sim"
)

// splitID takes the airlock id off args. The id may come before or after
// the flags.
func splitID(flags *flag.FlagSet, args []string) (string, error) {
	var id string
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		id, args = args[0], args[1:]
	}
	if err := flags.Parse(args); err != nil {
		return "", err
	}
	if id == "" {
		id = flags.Arg(0)
	} else if flags.NArg() > 0 {
		return "", fmt.Errorf("unexpected argument %q", flags.Arg(0))
	}
	if id == "" {
		return "", errors.New("airlock id is required")
	}
	return id, nil
}

func (a *app) cmdRescan(args []string) int {
	flags := flag.NewFlagSet("rescan", flag.ContinueOnError)
	if err := flags.Parse(args); err != nil {
		return 1
	}
	rt, err := a.load(false)
	if err != nil {
		return a.fail("rescan", err)
	}
	d := command.NewDispatcher(rt.ctrl, a.rescanner(rt), os.Stdout)
	if err := d.Execute(command.Command{Verb: command.Rescan}); err != nil {
		return a.fail("rescan", err)
	}
	if err := a.persist(rt); err != nil {
		return a.fail("rescan", err)
	}
	return 0
}

func (a *app) cmdTest(args []string) int {
	flags := flag.NewFlagSet("test", flag.ContinueOnError)
	id, err := splitID(flags, args)
	if err != nil {
		return a.fail("test", err)
	}
	rt, err := a.load(false)
	if err != nil {
		return a.fail("test", err)
	}
	d := command.NewDispatcher(rt.ctrl, nil, os.Stdout)
	if err := d.Execute(command.Command{Verb: command.Test, ID: id}); err != nil {
		return a.fail("test", err)
	}
	// Let the doors finish travelling before the state is saved.
	for range sim.DoorTravelTicks {
		rt.sched.Step()
	}
	rt.journal.Sealed(id)
	if err := a.persist(rt); err != nil {
		return a.fail("test", err)
	}
	return 0
}

func (a *app) cmdCycle(name string, args []string) int {
	flags := flag.NewFlagSet(name, flag.ContinueOnError)
	maxTicks := flags.Int("max-ticks", 5000, "give up after this many ticks (0 = no limit)")
	trace := flags.Bool("trace", false, "log every controller tick")
	realtime := flags.Bool("realtime", false, "tick at the configured rate instead of as fast as possible")
	id, err := splitID(flags, args)
	if err != nil {
		return a.fail(name, err)
	}

	rt, err := a.load(*trace)
	if err != nil {
		return a.fail(name, err)
	}
	d := command.NewDispatcher(rt.ctrl, nil, os.Stdout)
	if err := d.Execute(command.Command{Verb: command.Verb(name), ID: id}); err != nil {
		return a.fail(name, err)
	}

	var ticks int
	if *realtime {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		ticks, err = runRealtime(ctx, rt.sched, a.cfg.TickPeriod(), *maxTicks)
	} else {
		ticks, err = rt.sched.RunCycle(*maxTicks)
	}

	code := 0
	switch {
	case err == nil && rt.outcome.done != nil:
		fmt.Print(newPrinter().Cycle(*rt.outcome.done, ticks))
	case errors.Is(err, scheduler.ErrMaxTicks):
		fmt.Fprintf(os.Stderr, "airlock: %s: %v\n", name, err)
		code = 2
	case err != nil:
		fmt.Fprintf(os.Stderr, "airlock: %s: %v\n", name, err)
		code = 1
	}
	if err := a.persist(rt); err != nil {
		return a.fail(name, err)
	}
	return code
}

// runRealtime steps the scheduler once per period until the cycle is done,
// maxTicks is reached or ctx is cancelled.
func runRealtime(ctx context.Context, s *scheduler.Scheduler, period time.Duration, maxTicks int) (int, error) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	n := 0
	for s.Controller().Active() {
		if maxTicks > 0 && n >= maxTicks {
			return n, fmt.Errorf("%w: %d ticks", scheduler.ErrMaxTicks, n)
		}
		select {
		case <-ctx.Done():
			return n, fmt.Errorf("interrupted after %d ticks: %w", n, ctx.Err())
		case <-ticker.C:
			s.Step()
			n++
		}
	}
	return n, nil
}
