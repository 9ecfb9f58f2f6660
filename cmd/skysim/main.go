// Command skysim steps the sky from the command line and prints where every
// body stands after each step.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/signalsfoundry/thyrannic-sky/calendar"
	"github.com/signalsfoundry/thyrannic-sky/core"
	"github.com/signalsfoundry/thyrannic-sky/internal/config"
	"github.com/signalsfoundry/thyrannic-sky/internal/ephemeris"
	"github.com/signalsfoundry/thyrannic-sky/internal/logging"
	"github.com/signalsfoundry/thyrannic-sky/kb"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "skysim: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("skysim", flag.ContinueOnError)
	fs.SetOutput(out)
	cfgPath := fs.String("config", "", "path to a YAML or JSON config file (default $SKY_CONFIG)")
	steps := fs.Int("steps", 24, "number of steps to simulate")
	step := fs.Float64("step", 0, "step size; overrides clock.step")
	unit := fs.String("unit", "", "step unit (minute, hour, day, week, month, year); overrides clock.unit")
	start := fs.Float64("start", 0, "start time value in hours; overrides clock.start")
	asJSON := fs.Bool("json", false, "print one JSON frame per line")
	record := fs.String("ephemeris", "", "also record frames to this SQLite file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "step":
			cfg.Clock.Step = *step
		case "unit":
			cfg.Clock.Unit = *unit
		case "start":
			cfg.Clock.Start = *start
		}
	})
	// the command line never waits on the wall clock
	cfg.Clock.Mode = "accelerated"
	if err := cfg.Validate(); err != nil {
		return err
	}
	log := cfg.Log.Logger()

	store := kb.NewKnowledgeBase()
	summary, err := core.BuildScenario(store, cfg.Sky)
	if err != nil {
		return fmt.Errorf("build sky: %w", err)
	}
	engine := core.NewSimulationEngine(store, core.WithLogger(log))

	var rec *ephemeris.Recorder
	if *record != "" {
		if rec, err = ephemeris.Open(*record, ephemeris.WithLogger(log)); err != nil {
			return err
		}
		defer rec.Close()
	}

	tc, err := cfg.Clock.Controller()
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Sky of %s: primary %s, bodies %v\n", summary.Observer, summary.PrimaryID, summary.BodyIDs)

	var tickErr error
	emit := func(now float64) {
		if tickErr != nil {
			return
		}
		if err := engine.TickContext(ctx, now); err != nil {
			tickErr = err
			return
		}
		frame := core.NewFrame(now, store.ListBodies())
		if rec != nil {
			if err := rec.Record(ctx, frame); err != nil {
				log.Warn(ctx, "ephemeris record failed", logging.Err(err))
			}
		}
		if *asJSON {
			_ = json.NewEncoder(out).Encode(frame)
			return
		}
		printFrame(out, frame)
	}
	tc.AddListener(func(now calendar.DateTime) { emit(now.Value()) })

	emit(tc.Now().Value())
	<-tc.Start(ctx, *steps)
	if tickErr != nil {
		return tickErr
	}

	if !*asJSON {
		fmt.Fprintln(out, "Simulation complete.")
	}
	return nil
}

func printFrame(out io.Writer, f core.Frame) {
	fmt.Fprintf(out, "[%s, %s] t=%.2fh\n", f.Clock, f.Date, f.TimeValue)
	for _, b := range f.Bodies {
		state := "below horizon"
		if b.Altitude > 0 {
			state = "up"
		}
		fmt.Fprintf(out, "  %-8s alt=%7.2f° ha=%7.2f° ra=%7.2f° dia=%.3f° %s\n",
			b.Name, b.Altitude, b.HourAngle, b.RightAscension, b.AngularDiameter, state)
	}
}
