package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/daviddao/airlock/pkg/layout"
	"github.com/daviddao/airlock/pkg/sim"
	"github.com/daviddao/airlock/pkg/store"
)

func (a *app) cmdInit(args []string) int {
	flags := flag.NewFlagSet("init", flag.ContinueOnError)
	path := flags.String("layout", "", "station layout file (YAML)")
	force := flags.Bool("force", false, "replace an existing station")
	if err := flags.Parse(args); err != nil {
		return 1
	}
	if *path == "" {
		fmt.Fprintln(os.Stderr, "airlock: init: --layout is required")
		return 1
	}

	st, err := layout.LoadFile(*path)
	if err != nil {
		return a.fail("init", err)
	}
	// Build the world once so anything the simulator rejects is caught
	// before the database is touched.
	world, err := sim.New(st)
	if err != nil {
		return a.fail("init", err)
	}

	if _, err := a.store.LoadStation(); err == nil && !*force {
		return a.fail("init", errors.New("a station is already imported (use --force to replace it)"))
	} else if err != nil && !errors.Is(err, store.ErrNoStation) {
		return a.fail("init", err)
	}

	if err := a.store.ReplaceStation(world.Station()); err != nil {
		return a.fail("init", err)
	}
	inv := a.inventory(world)
	fmt.Printf("Imported %d rooms, %d blocks from %s\n", len(st.Rooms), len(st.Blocks), *path)
	fmt.Print(newPrinter().Summary(inv))
	return 0
}
