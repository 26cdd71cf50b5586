package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/daviddao/airlock/pkg/command"
)

func (a *app) cmdServe(args []string) int {
	flags := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := flags.String("addr", a.cfg.MetricsAddr, "metrics listen address (empty disables)")
	trace := flags.Bool("trace", false, "log every controller tick")
	if err := flags.Parse(args); err != nil {
		return 1
	}

	rt, err := a.load(*trace)
	if err != nil {
		return a.fail("serve", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = a.serve(ctx, rt, *addr, os.Stdin, os.Stdout)
	if perr := a.persist(rt); perr != nil {
		err = errors.Join(err, perr)
	}
	if err != nil {
		return a.fail("serve", err)
	}
	return 0
}

// serve runs the tick loop, the metrics endpoint and the command reader
// until ctx is cancelled. Commands are read one per line from in and run on
// the scheduler goroutine; their output goes to out.
func (a *app) serve(ctx context.Context, rt *runtime, addr string, in io.Reader, out io.Writer) error {
	g, ctx := errgroup.WithContext(ctx)
	d := command.NewDispatcher(rt.ctrl, a.rescanner(rt), out)

	g.Go(func() error {
		return rt.sched.Run(ctx, a.cfg.TickPeriod())
	})

	if addr != "" {
		srv := &http.Server{
			Addr:              addr,
			Handler:           metricsMux(rt),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			a.log.Info("metrics listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	// The scanner blocks on in, so it lives outside the group and feeds a
	// channel the group can abandon on shutdown.
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	g.Go(func() error {
		src := lines
		for {
			select {
			case <-ctx.Done():
				return nil
			case line, ok := <-src:
				if !ok {
					// Input closed; keep ticking until signalled.
					src = nil
					continue
				}
				err := rt.sched.Submit(ctx, func() error {
					if err := d.ExecuteLine(line); err != nil {
						return err
					}
					return a.persist(rt)
				})
				switch {
				case errors.Is(err, command.ErrUsage):
					fmt.Fprintln(out, command.Usage)
				case errors.Is(err, context.Canceled):
					return nil
				case err != nil:
					fmt.Fprintf(out, "error: %v\n", err)
				}
			}
		}
	})

	return g.Wait()
}

func metricsMux(rt *runtime) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", rt.metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	return mux
}
