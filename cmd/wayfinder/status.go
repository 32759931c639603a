package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/banshee-data/wayfinder/internal/api"
	"github.com/banshee-data/wayfinder/internal/httputil"
	"github.com/banshee-data/wayfinder/internal/units"
)

func handleStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	server := fs.String("server", "http://localhost:8080", "Base URL of a running wayfinder serve")
	timeout := fs.Duration("timeout", 5*time.Second, "Request timeout")
	system := fs.String("units", units.Metric, "Speed units: "+units.GetValidSystemsString())
	fs.Parse(args)

	if !units.IsValid(*system) {
		fmt.Fprintf(os.Stderr, "status: unknown units %q\n", *system)
		os.Exit(1)
	}
	c := api.NewClient(*server, httputil.NewStandardClient(&http.Client{Timeout: *timeout}))
	if err := printStatus(c, os.Stdout, *system); err != nil {
		fmt.Fprintf(os.Stderr, "status: %v\n", err)
		os.Exit(1)
	}
}

// printStatus reports the running session and its latest progress. A
// server that is not navigating is not an error.
func printStatus(c *api.Client, out io.Writer, system string) error {
	session, err := c.Session()
	var se *httputil.StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusConflict {
		fmt.Fprintln(out, "navigation: idle")
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "navigation: running")
	fmt.Fprintf(out, "session:    %s (trip %s)\n", session.SessionID, session.TripID)
	if session.Started != nil {
		fmt.Fprintf(out, "departed:   %s\n", humanize.Time(*session.Started))
	}
	fmt.Fprintf(out, "reroutes:   %d\n", session.RerouteCount)

	p, err := c.Progress()
	if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
		fmt.Fprintln(out, "progress:   waiting for the first fix")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "route:      %s\n", p.RouteID)
	fmt.Fprintf(out, "step:       %d.%d %s\n", p.Leg, p.Step, p.StepName)
	fmt.Fprintf(out, "remaining:  %s (%.0f%% traveled)\n", meters(p.RouteDistanceRemaining), p.FractionTraveled*100)
	fmt.Fprintf(out, "speed:      %.0f %s\n", units.ConvertSpeed(p.Fix.Speed, system), units.SpeedLabel(system))
	if p.OffRoute {
		fmt.Fprintf(out, "off route:  %s from the route\n", meters(p.FromRoute))
	}
	return nil
}
