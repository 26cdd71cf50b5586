package scheduler

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/daviddao/airlock/internal/devicetest"
	"github.com/daviddao/airlock/pkg/autoclose"
	"github.com/daviddao/airlock/pkg/cycle"
	"github.com/daviddao/airlock/pkg/device"
	"github.com/daviddao/airlock/pkg/inventory"
)

type countingPlant struct {
	steps int
	seen  []bool // controller active at each plant step
	ctrl  *cycle.Controller
}

func (p *countingPlant) Step() {
	p.steps++
	p.seen = append(p.seen, p.ctrl.Active())
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)) }

func setup(t *testing.T, blocks ...device.Block) (*Scheduler, *countingPlant) {
	t.Helper()
	inv := inventory.Build(blocks, inventory.Options{DefaultAutoCloseTicks: 60, TicksPerSecond: 6})
	ctrl := cycle.New(inv, cycle.Options{Logger: quiet()})
	plant := &countingPlant{ctrl: ctrl}
	s := New(ctrl, autoclose.New(inv.AutoClose(), true), Options{Plant: plant, Logger: quiet()})
	return s, plant
}

func TestStep_AutoCloseScenario(t *testing.T) {
	hangar := devicetest.NewDoor("Hangar [AUTOCLOSE:5]")
	cargo := devicetest.NewDoor("Cargo [KEEPOPEN]")
	s, plant := setup(t, hangar, cargo)

	var closedAt []int64
	s.onClose = func(tick int64, c autoclose.Closed) {
		if c.Door != hangar {
			t.Errorf("closed %s, want hangar", c.Door.Name())
		}
		closedAt = append(closedAt, tick)
	}

	hangar.Open()
	cargo.Open()
	for i := 0; i < 40; i++ {
		s.Step()
	}
	if len(closedAt) != 1 || closedAt[0] != 30 {
		t.Fatalf("closed at %v, want [30]", closedAt)
	}
	if cargo.Status() != device.DoorOpen {
		t.Fatal("KEEPOPEN door closed")
	}
	if s.Now() != 40 || plant.steps != 40 {
		t.Fatalf("now=%d plant steps=%d, want 40", s.Now(), plant.steps)
	}
}

func TestRunCycle(t *testing.T) {
	inner := devicetest.NewDoor("Door [A1:Inner]")
	outer := devicetest.NewDoor("Door [A1:Outer]")
	tank := devicetest.NewTank("O2 [A1:ProcessTank]", 0, false)
	s, plant := setup(t, inner, outer, tank)

	if n, err := s.RunCycle(10); err != nil || n != 0 {
		t.Fatalf("idle RunCycle = %d, %v", n, err)
	}
	if _, err := s.Controller().StartEnter("A1"); err != nil {
		t.Fatal(err)
	}
	// No vents: oxygen never rises, so pressurize runs to the safety cap and
	// a small budget runs out.
	if _, err := s.RunCycle(100); !errors.Is(err, ErrMaxTicks) {
		t.Fatalf("err = %v, want ErrMaxTicks", err)
	}
	n, err := s.RunCycle(0)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if s.Controller().Active() {
		t.Fatal("cycle should be done")
	}
	if int64(n+100) != s.Now() {
		t.Fatalf("ticks %d+100 != clock %d", n, s.Now())
	}
	if plant.seen[len(plant.seen)-1] {
		t.Fatal("plant should step after the controller finished the cycle")
	}
}

func TestRescan(t *testing.T) {
	inner := devicetest.NewDoor("Door [A1:Inner]")
	tank := devicetest.NewTank("O2 [A1:ProcessTank]", 0, false)
	s, _ := setup(t, inner, tank)

	office := devicetest.NewDoor("Office")
	next := inventory.Build([]device.Block{inner, tank, office}, inventory.Options{DefaultAutoCloseTicks: 6})

	if _, err := s.Controller().StartEnter("A1"); err != nil {
		t.Fatal(err)
	}
	if err := s.Rescan(next); !errors.Is(err, cycle.ErrBusy) {
		t.Fatalf("err = %v, want ErrBusy", err)
	}
	if len(s.Timer().Entries()) != 0 {
		t.Fatal("timer must not change when rescan is refused")
	}
	if _, err := s.RunCycle(0); err != nil {
		t.Fatal(err)
	}
	if err := s.Rescan(next); err != nil {
		t.Fatalf("Rescan: %v", err)
	}
	if e := s.Timer().Entries(); len(e) != 1 || e[0].Door != office {
		t.Fatalf("timer entries = %+v", e)
	}
}

func TestRun_CommandsBetweenTicks(t *testing.T) {
	s, _ := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx, time.Millisecond) }()

	ran := false
	err := s.Submit(context.Background(), func() error {
		ran = true
		return errors.New("boom")
	})
	if err == nil || err.Error() != "boom" {
		t.Fatalf("Submit err = %v", err)
	}
	if !ran {
		t.Fatal("command did not run")
	}

	time.Sleep(20 * time.Millisecond)
	cancel()
	if err := <-errc; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if s.Now() == 0 {
		t.Fatal("scheduler never ticked")
	}
}

func TestRun_InvalidPeriod(t *testing.T) {
	s, _ := setup(t)
	if err := s.Run(context.Background(), 0); err == nil {
		t.Fatal("expected error for zero period")
	}
}

func TestSubmit_Cancelled(t *testing.T) {
	s, _ := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// Nothing drains the queue; the request is queued, then the wait is
	// cancelled.
	if err := s.Submit(ctx, func() error { return nil }); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
