package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/banshee-data/wayfinder/internal/config"
	"github.com/banshee-data/wayfinder/internal/db"
	"github.com/banshee-data/wayfinder/internal/milestone"
	"github.com/banshee-data/wayfinder/internal/navigation"
	"github.com/banshee-data/wayfinder/internal/plotting"
	"github.com/banshee-data/wayfinder/internal/progress"
	"github.com/banshee-data/wayfinder/internal/route"
	"github.com/banshee-data/wayfinder/internal/security"
	"github.com/banshee-data/wayfinder/internal/telemetry"
	"github.com/banshee-data/wayfinder/internal/timeutil"
)

type replayOptions struct {
	RoutePath  string
	TracePath  string
	ConfigPath string
	DBPath     string
	PlotDir    string
}

type replaySummary struct {
	SessionID  string
	Fixes      int
	Milestones int
	OffRoute   int
	Arrived    bool
	Remaining  float64
	Traveled   float64
	Plots      []string
}

func handleReplay(args []string) {
	fs := flag.NewFlagSet("replay", flag.ExitOnError)
	var opts replayOptions
	fs.StringVar(&opts.RoutePath, "route", "", "Directions document (JSON)")
	fs.StringVar(&opts.TracePath, "trace", "", "Trace file, one JSON fix per line")
	fs.StringVar(&opts.ConfigPath, "config", "", "Navigation config (.json, .yaml or .toml)")
	fs.StringVar(&opts.DBPath, "db", "", "Store telemetry and fixes in this database")
	fs.StringVar(&opts.PlotDir, "plot", "", "Write track and progress plots to this directory")
	fs.Parse(args)

	if opts.RoutePath == "" || opts.TracePath == "" {
		fmt.Fprintln(os.Stderr, "replay: -route and -trace are required")
		fs.Usage()
		os.Exit(1)
	}

	if _, err := runReplay(context.Background(), opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "replay: %v\n", err)
		os.Exit(1)
	}
}

func loadRoute(path string) (*route.Route, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return route.DecodeFirst(f)
}

func loadTrace(path string) ([]route.Fix, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return route.DecodeTrace(f)
}

func loadNavigationConfig(path string) (*config.NavigationConfig, error) {
	if path == "" {
		return nil, nil
	}
	return config.Load(path)
}

// runReplay feeds a trace through a fresh engine. The engine clock is held
// at the first fix, so telemetry timestamps follow the trace.
func runReplay(ctx context.Context, opts replayOptions, out io.Writer) (replaySummary, error) {
	var sum replaySummary

	r, err := loadRoute(opts.RoutePath)
	if err != nil {
		return sum, fmt.Errorf("route: %w", err)
	}
	fixes, err := loadTrace(opts.TracePath)
	if err != nil {
		return sum, fmt.Errorf("trace: %w", err)
	}
	if len(fixes) == 0 {
		return sum, errors.New("trace has no fixes")
	}
	nav, err := loadNavigationConfig(opts.ConfigPath)
	if err != nil {
		return sum, err
	}

	var (
		database *db.DB
		sink     telemetry.Sink
	)
	if opts.DBPath != "" {
		database, err = db.NewDB(opts.DBPath)
		if err != nil {
			return sum, err
		}
		defer database.Close()
		sink = db.NewTelemetryStore(database)
	}

	start := fixes[0].Time
	engine, err := navigation.New(navigation.Config{
		Navigation: nav,
		Clock:      timeutil.NewMockClock(start),
		Sink:       sink,
	})
	if err != nil {
		return sum, err
	}

	var (
		mu   sync.Mutex
		last progress.RouteProgress
	)
	d := engine.Listeners()
	d.Progress.Add(func(fix route.Fix, p progress.RouteProgress) {
		mu.Lock()
		defer mu.Unlock()
		sum.Fixes++
		last = p
	})
	d.Milestone.Add(func(p progress.RouteProgress, instruction string, id int) {
		mu.Lock()
		defer mu.Unlock()
		sum.Milestones++
		if id == milestone.ArrivalID {
			sum.Arrived = true
		}
		fmt.Fprintf(out, "%8s  %-40s  %s to go\n", elapsed(start, p.Fix().Time), instruction, meters(p.RouteDistanceRemaining()))
	})
	d.OffRoute.Add(func(fix route.Fix) {
		mu.Lock()
		defer mu.Unlock()
		sum.OffRoute++
		fmt.Fprintf(out, "%8s  off route at %.6f,%.6f\n", elapsed(start, fix.Time), fix.Latitude, fix.Longitude)
	})
	if database != nil {
		d.RawLocation.Add(func(fix route.Fix) {
			if err := database.RecordFix(engine.SessionID(), fix); err != nil {
				logf("failed to record fix: %v", err)
			}
		})
	}
	var plotter *plotting.TrackPlotter
	if opts.PlotDir != "" {
		if err := security.ValidateOutputPath(opts.PlotDir); err != nil {
			return sum, err
		}
		plotter = plotting.NewTrackPlotter()
		plotter.Attach(d)
	}

	if err := engine.Start(r); err != nil {
		return sum, err
	}
	for _, f := range fixes {
		if err := engine.Enqueue(f); err != nil {
			return sum, err
		}
	}
	st, err := engine.SessionState(ctx)
	if err != nil {
		return sum, err
	}
	if err := engine.Stop(ctx); err != nil {
		return sum, err
	}

	mu.Lock()
	sum.SessionID = st.SessionID
	sum.Remaining = last.RouteDistanceRemaining()
	sum.Traveled = last.RouteDistanceTraveled()
	mu.Unlock()

	if plotter != nil {
		plotter.Detach()
		sum.Plots, err = plotter.Save(opts.PlotDir)
		if err != nil {
			return sum, err
		}
	}

	fmt.Fprintf(out, "\nsession %s: %s fixes, %d milestones, %d off-route, %s traveled, %s remaining\n",
		sum.SessionID, humanize.Comma(int64(sum.Fixes)), sum.Milestones, sum.OffRoute,
		meters(sum.Traveled), meters(sum.Remaining))
	for _, p := range sum.Plots {
		fmt.Fprintf(out, "wrote %s\n", p)
	}
	return sum, nil
}

func elapsed(start, t time.Time) string {
	return t.Sub(start).Truncate(time.Second).String()
}

func meters(m float64) string {
	if m >= 1000 {
		return humanize.CommafWithDigits(m/1000, 2) + " km"
	}
	return humanize.CommafWithDigits(m, 0) + " m"
}
