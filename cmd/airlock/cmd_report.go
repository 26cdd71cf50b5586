package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/daviddao/airlock/pkg/model"
	"github.com/daviddao/airlock/pkg/report"
)

func newPrinter() *report.Printer { return report.NewPrinter(os.Stdout) }

func printJSON(v any) {
	if err := report.WriteJSON(os.Stdout, v); err != nil {
		fmt.Fprintf(os.Stderr, "airlock: json: %v\n", err)
	}
}

func (a *app) cmdSummary(args []string) int { return a.discovery("summary", args) }

func (a *app) cmdList(args []string) int { return a.discovery("list", args) }

// discovery prints what the inventory found, as the summary counts or the
// per-airlock name lists.
func (a *app) discovery(name string, args []string) int {
	flags := flag.NewFlagSet(name, flag.ContinueOnError)
	jsonOut := flags.Bool("json", false, "JSON output")
	if err := flags.Parse(args); err != nil {
		return 1
	}

	rt, err := a.load(false)
	if err != nil {
		return a.fail(name, err)
	}
	inv := rt.ctrl.Inventory()

	switch {
	case *jsonOut:
		printJSON(report.Build(inv))
	case name == "list":
		fmt.Print(newPrinter().Details(inv))
	default:
		fmt.Print(newPrinter().Summary(inv))
	}
	return 0
}

func (a *app) cmdLog(args []string) int {
	flags := flag.NewFlagSet("log", flag.ContinueOnError)
	since := flags.Int64("since", 0, "fetch events with tick >= this")
	limit := flags.Int("limit", 50, "max events to return")
	cycleID := flags.String("cycle", "", "only events of this cycle id")
	kind := flags.String("kind", "", "filter by event kind")
	jsonOut := flags.Bool("json", false, "JSON output")
	if err := flags.Parse(args); err != nil {
		return 1
	}
	if *kind != "" && !model.EventKind(*kind).Valid() {
		fmt.Fprintf(os.Stderr, "airlock: log: unknown event kind %q\n", *kind)
		return 1
	}

	var (
		events []model.Event
		err    error
	)
	if *cycleID != "" {
		events, err = a.store.ListEventsForCycle(*cycleID)
	} else {
		events, err = a.store.ListEvents(*since, *limit)
	}
	if err != nil {
		return a.fail("log", err)
	}

	if *kind != "" {
		filtered := events[:0]
		for _, e := range events {
			if string(e.Kind) == *kind {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}

	if *jsonOut {
		if events == nil {
			events = []model.Event{}
		}
		printJSON(map[string]any{"events": events, "count": len(events)})
		return 0
	}
	fmt.Print(newPrinter().Events(events))
	return 0
}
