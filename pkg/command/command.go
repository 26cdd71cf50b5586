// Package command parses the one-line operator commands and dispatches them
// to the controller.
//
// The grammar is the one the station console accepts:
//
//	(empty)      discovery summary
//	list         discovery details
//	rescan       rebuild the inventory
//	test <id>    seal an airlock without cycling
//	enter <id>   cycle from space to habitat
//	exit <id>    cycle from habitat to space
//	status       show the running cycle
//
// Verbs are case-insensitive. Airlock ids are matched case-insensitively by
// the inventory.
package command

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/daviddao/airlock/pkg/cycle"
	"github.com/daviddao/airlock/pkg/report"
)

// Usage is printed for anything Parse rejects.
const Usage = "Args: (none)=summary | list | rescan | test <ID> | enter <ID> | exit <ID> | status"

// ErrUsage is returned for unrecognized input.
var ErrUsage = errors.New("unrecognized command")

// Verb names a command.
type Verb string

const (
	Summary Verb = "summary"
	List    Verb = "list"
	Rescan  Verb = "rescan"
	Test    Verb = "test"
	Enter   Verb = "enter"
	Exit    Verb = "exit"
	Status  Verb = "status"
)

// Command is a parsed command line.
type Command struct {
	Verb Verb
	ID   string // airlock id for test, enter and exit
}

func (c Command) String() string {
	if c.ID == "" {
		return string(c.Verb)
	}
	return string(c.Verb) + " " + c.ID
}

// Parse maps a line to a command.
func Parse(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{Verb: Summary}, nil
	}
	verb := Verb(strings.ToLower(fields[0]))
	switch verb {
	case List, Rescan, Status, Summary:
		if len(fields) == 1 {
			return Command{Verb: verb}, nil
		}
	case Test, Enter, Exit:
		if len(fields) == 2 {
			return Command{Verb: verb, ID: fields[1]}, nil
		}
	}
	return Command{}, fmt.Errorf("%w: %q", ErrUsage, strings.TrimSpace(line))
}

// Dispatcher executes commands against one controller.
type Dispatcher struct {
	ctrl    *cycle.Controller
	rescan  func() error
	printer *report.Printer
	out     io.Writer
}

// NewDispatcher writes command output to out. rescan rebuilds the
// inventory; it is called for the rescan verb.
func NewDispatcher(ctrl *cycle.Controller, rescan func() error, out io.Writer) *Dispatcher {
	return &Dispatcher{ctrl: ctrl, rescan: rescan, printer: report.NewPrinter(out), out: out}
}

// Execute runs cmd. Start and seal errors come back unchanged so callers can
// match them with errors.Is.
func (d *Dispatcher) Execute(cmd Command) error {
	switch cmd.Verb {
	case Summary:
		fmt.Fprint(d.out, d.printer.Summary(d.ctrl.Inventory()))
	case List:
		fmt.Fprint(d.out, d.printer.Details(d.ctrl.Inventory()))
	case Rescan:
		if d.rescan == nil {
			return errors.New("rescan not available")
		}
		if err := d.rescan(); err != nil {
			return err
		}
		fmt.Fprintln(d.out, "Rescanned.")
		fmt.Fprint(d.out, d.printer.Summary(d.ctrl.Inventory()))
	case Test:
		if err := d.ctrl.SealOnly(cmd.ID); err != nil {
			return err
		}
		fmt.Fprintf(d.out, "Sealed %s\n", cmd.ID)
	case Enter, Exit:
		start := d.ctrl.StartEnter
		if cmd.Verb == Exit {
			start = d.ctrl.StartExit
		}
		s, err := start(cmd.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(d.out, "%s %s started with %s (cycle %s)\n", s.Airlock, s.Direction, s.Tank, s.ID)
	case Status:
		s, ok := d.ctrl.Status()
		if !ok {
			fmt.Fprintln(d.out, "idle")
			return nil
		}
		fmt.Fprintf(d.out, "%s %s: phase=%s wait=%d t=%d o2=%.3f tank=%s fill=%.3f\n",
			s.Airlock, s.Direction, s.Phase, s.Wait, s.Elapsed, s.Oxygen, s.Tank, s.TankFill)
	default:
		return fmt.Errorf("%w: %q", ErrUsage, cmd.Verb)
	}
	return nil
}

// ExecuteLine parses and executes one line.
func (d *Dispatcher) ExecuteLine(line string) error {
	cmd, err := Parse(line)
	if err != nil {
		return err
	}
	return d.Execute(cmd)
}
