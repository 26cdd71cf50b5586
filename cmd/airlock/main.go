// Command airlock runs airlock cycles on a simulated station backed by
// SQLite: import a layout, inspect what was discovered, cycle an airlock,
// and read the event journal.
package main

import (
	"fmt"
	"os"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "--help", "-h", "help":
		printUsage()
		return
	case "--version", "-v", "version":
		fmt.Println("airlock", version)
		return
	}

	a, err := newApp()
	if err != nil {
		fatal("%v", err)
	}
	defer a.Close()

	os.Exit(a.run(os.Args[1], os.Args[2:]))
}

// run dispatches one subcommand and returns the process exit code.
func (a *app) run(name string, args []string) int {
	switch name {
	// Setup
	case "init":
		return a.cmdInit(args)

	// Inspection
	case "summary":
		return a.cmdSummary(args)
	case "list":
		return a.cmdList(args)
	case "log":
		return a.cmdLog(args)

	// Operations
	case "rescan":
		return a.cmdRescan(args)
	case "test":
		return a.cmdTest(args)
	case "enter", "exit":
		return a.cmdCycle(name, args)
	case "serve":
		return a.cmdServe(args)

	default:
		fmt.Fprintf(os.Stderr, "airlock: unknown command %q\n", name)
		fmt.Fprintln(os.Stderr, "Run 'airlock --help' for usage.")
		return 1
	}
}

func printUsage() {
	fmt.Print(`airlock — airlock cycle controller for a simulated station

Seals an airlock, captures its air into a process tank, opens to space,
and gives the air back on the way in. The station lives in SQLite.

Usage:
  airlock <command> [flags]

Setup:
  init --layout FILE        Import a station layout (YAML)

Inspection:
  summary                   Per-airlock block counts
  list                      Block names per airlock
  log [--since N]           Query the event journal

Operations:
  rescan                    Rebuild the inventory, turn process tanks off
  test <id>                 Seal an airlock without cycling
  enter <id>                Cycle from space into the habitat
  exit <id>                 Cycle from the habitat out to space
  serve                     Run the tick loop, read commands from stdin,
                            expose Prometheus metrics

Environment:
  AIRLOCK_DB            SQLite database path (default: .airlock/airlock.db)
  AIRLOCK_LOG_LEVEL     debug | info | warn | error (default: info)
  AIRLOCK_METRICS_ADDR  serve metrics listen address (default: :9464)
  AIRLOCK_*             every tuning constant, e.g. AIRLOCK_TIMEOUT_TICKS

summary, list and log support --json for machine-readable output.

Exit codes:
  0  success
  1  error
  2  cycle did not finish within --max-ticks
`)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "airlock: "+format+"\n", args...)
	os.Exit(1)
}
