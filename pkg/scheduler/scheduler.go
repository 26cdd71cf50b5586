// Package scheduler drives the airlock on a fixed tick.
//
// Each tick runs, in order: the auto-close timer, one step of the cycle
// controller when a cycle is active, then the plant hook (the simulated
// station's physics). Commands submitted from other goroutines are queued
// and run on the scheduler goroutine between ticks, so nothing the tick
// touches needs a lock.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/daviddao/airlock/pkg/autoclose"
	"github.com/daviddao/airlock/pkg/clock"
	"github.com/daviddao/airlock/pkg/cycle"
	"github.com/daviddao/airlock/pkg/inventory"
)

// ErrMaxTicks is returned by RunCycle when the cycle outlives its budget.
var ErrMaxTicks = errors.New("tick budget exhausted")

// ErrQueueFull is returned by Submit when the command queue is full.
var ErrQueueFull = errors.New("command queue full")

// Plant advances whatever the actuators are attached to by one tick.
type Plant interface {
	Step()
}

// AutoCloseFunc is told about every door the timer closes.
type AutoCloseFunc func(tick int64, c autoclose.Closed)

// Options configures a Scheduler.
type Options struct {
	Plant       Plant
	Clock       *clock.Clock
	OnAutoClose AutoCloseFunc
	Logger      *slog.Logger
	QueueSize   int
}

type request struct {
	fn   func() error
	done chan error
}

// Scheduler owns the controller and the timer and steps them.
type Scheduler struct {
	ctrl    *cycle.Controller
	timer   *autoclose.Timer
	plant   Plant
	clock   *clock.Clock
	onClose AutoCloseFunc
	log     *slog.Logger
	queue   chan request
}

// New returns a scheduler. Nil options fall back to a fresh clock, no plant
// and slog.Default.
func New(ctrl *cycle.Controller, timer *autoclose.Timer, opts Options) *Scheduler {
	if opts.Clock == nil {
		opts.Clock = &clock.Clock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 16
	}
	return &Scheduler{
		ctrl:    ctrl,
		timer:   timer,
		plant:   opts.Plant,
		clock:   opts.Clock,
		onClose: opts.OnAutoClose,
		log:     opts.Logger.With("component", "scheduler"),
		queue:   make(chan request, opts.QueueSize),
	}
}

// Controller returns the cycle controller.
func (s *Scheduler) Controller() *cycle.Controller { return s.ctrl }

// Timer returns the auto-close timer.
func (s *Scheduler) Timer() *autoclose.Timer { return s.timer }

// Now returns the last tick number.
func (s *Scheduler) Now() int64 { return s.clock.Value() }

// Step runs one tick and returns its number.
func (s *Scheduler) Step() int64 {
	n := s.clock.Tick()
	for _, c := range s.timer.Tick() {
		s.log.Info("auto-closed door", "door", c.Door.Name(), "limit", c.Limit, "tick", n)
		if s.onClose != nil {
			s.onClose(n, c)
		}
	}
	if s.ctrl.Active() {
		s.ctrl.Tick()
	}
	if s.plant != nil {
		s.plant.Step()
	}
	return n
}

// Rescan swaps in a rebuilt inventory for both the controller and the
// timer. Refused with cycle.ErrBusy while a cycle runs.
func (s *Scheduler) Rescan(inv *inventory.Inventory) error {
	if err := s.ctrl.SetInventory(inv); err != nil {
		return err
	}
	s.timer.Rebuild(inv.AutoClose())
	s.log.Info("rescanned", "airlocks", len(inv.IDs()), "auto_close", len(inv.AutoClose()))
	return nil
}

// RunCycle steps until the active cycle completes, without waiting between
// ticks. It returns the number of ticks taken.
func (s *Scheduler) RunCycle(maxTicks int) (int, error) {
	n := 0
	for s.ctrl.Active() {
		if maxTicks > 0 && n >= maxTicks {
			st, _ := s.ctrl.Status()
			return n, fmt.Errorf("%w: %d ticks, still in %s", ErrMaxTicks, n, st.Phase)
		}
		s.Step()
		n++
	}
	return n, nil
}

// Submit queues fn to run on the scheduler goroutine between ticks and
// waits for its result.
func (s *Scheduler) Submit(ctx context.Context, fn func() error) error {
	req := request{fn: fn, done: make(chan error, 1)}
	select {
	case s.queue <- req:
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// drainPending runs every queued command without blocking.
func (s *Scheduler) drainPending() {
	for {
		select {
		case req := <-s.queue:
			req.done <- req.fn()
		default:
			return
		}
	}
}

// Run ticks every period until ctx is done. Queued commands run before each
// tick, and also while waiting for the next one.
func (s *Scheduler) Run(ctx context.Context, period time.Duration) error {
	if period <= 0 {
		return fmt.Errorf("invalid tick period %v", period)
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	s.log.Info("scheduler running", "period", period, "tick", s.clock.Value())
	for {
		select {
		case <-ctx.Done():
			s.drainPending()
			s.log.Info("scheduler stopped", "tick", s.clock.Value())
			return nil
		case req := <-s.queue:
			req.done <- req.fn()
		case <-ticker.C:
			s.drainPending()
			s.Step()
		}
	}
}
