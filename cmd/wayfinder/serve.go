package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/wayfinder/internal/api"
	"github.com/banshee-data/wayfinder/internal/db"
	"github.com/banshee-data/wayfinder/internal/navigation"
	"github.com/banshee-data/wayfinder/internal/route"
	"github.com/banshee-data/wayfinder/internal/serialmux"
	"github.com/banshee-data/wayfinder/internal/timeutil"
)

type serveOptions struct {
	Listen     string
	ConfigPath string
	DBPath     string
	RoutePath  string
	GPSPort    string
	GPSBaud    int
	GPSMock    string
	Accuracy   float64
}

// app is everything serve runs, assembled before any goroutine starts.
type app struct {
	engine   *navigation.Engine
	database *db.DB
	gps      serialmux.SerialMuxInterface
	source   *serialmux.Source
	server   *api.Server
	handler  http.Handler
}

func handleServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	var opts serveOptions
	fs.StringVar(&opts.Listen, "listen", ":8080", "Listen address")
	fs.StringVar(&opts.ConfigPath, "config", "", "Navigation config (.json, .yaml or .toml)")
	fs.StringVar(&opts.DBPath, "db", defaultDBPath, "Telemetry database path")
	fs.StringVar(&opts.RoutePath, "route", "", "Start navigating this directions document on launch")
	fs.StringVar(&opts.GPSPort, "gps", "", "Serial port of an NMEA GPS receiver, e.g. /dev/ttyUSB0")
	fs.IntVar(&opts.GPSBaud, "gps-baud", 0, "GPS baud rate (default 9600)")
	fs.StringVar(&opts.GPSMock, "gps-mock", "", "Replay this trace as a simulated GPS receiver")
	fs.Float64Var(&opts.Accuracy, "gps-accuracy", 10, "Accuracy in meters assumed until the receiver reports HDOP")
	fs.Parse(args)

	if opts.Listen == "" {
		log.Fatal("Listen address is required")
	}
	if opts.GPSPort != "" && opts.GPSMock != "" {
		log.Fatal("-gps and -gps-mock are mutually exclusive")
	}

	a, err := newApp(opts)
	if err != nil {
		log.Fatalf("failed to start: %v", err)
	}
	defer a.Close()

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run the monitor routine to manage IO on the GPS port
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.gps.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("failed to monitor GPS port: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	if a.source != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.source.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("GPS source stopped: %v", err)
			}
			log.Print("GPS source routine terminated")
		}()
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		server := &http.Server{
			Addr:    opts.Listen,
			Handler: a.handler,
		}

		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()
		log.Printf("listening on %s", opts.Listen)

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}

// newApp opens the store, builds the engine, the GPS source and the HTTP
// handler.
func newApp(opts serveOptions) (*app, error) {
	nav, err := loadNavigationConfig(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	database, err := db.NewDB(opts.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	store := db.NewTelemetryStore(database)

	engine, err := navigation.New(navigation.Config{Navigation: nav, Sink: store})
	if err != nil {
		database.Close()
		return nil, err
	}
	a := &app{engine: engine, database: database}
	engine.Listeners().RawLocation.Add(a.recordFix)

	if err := a.openGPS(opts); err != nil {
		a.Close()
		return nil, err
	}

	a.server = api.NewServer(api.Config{
		Engine: engine,
		Store:  store,
		GPS:    a.gps,
		Source: a.source,
	})
	mux := a.server.ServeMux()
	a.server.AttachAdminRoutes(mux)
	a.handler = api.LoggingMiddleware(mux)

	if opts.RoutePath != "" {
		r, err := loadRoute(opts.RoutePath)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("route: %w", err)
		}
		if err := engine.Start(r); err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

func (a *app) openGPS(opts serveOptions) error {
	switch {
	case opts.GPSPort != "":
		m, err := serialmux.NewRealSerialMux(opts.GPSPort, serialmux.PortOptions{BaudRate: opts.GPSBaud})
		if err != nil {
			return fmt.Errorf("failed to open GPS port: %w", err)
		}
		if err := m.Initialize(); err != nil {
			m.Close()
			return fmt.Errorf("failed to initialize GPS receiver: %w", err)
		}
		a.gps = m
	case opts.GPSMock != "":
		fixes, err := loadTrace(opts.GPSMock)
		if err != nil {
			return fmt.Errorf("gps mock: %w", err)
		}
		a.gps = serialmux.NewReplaySerialMux(fixes, timeutil.RealClock{})
	default:
		a.gps = serialmux.NewDisabledSerialMux()
		return nil
	}
	a.source = serialmux.NewSource(a.gps, a.enqueue, serialmux.SourceOptions{DefaultAccuracy: opts.Accuracy})
	return nil
}

// enqueue passes GPS fixes to the engine, dropping them while idle.
func (a *app) enqueue(fix route.Fix) error {
	err := a.engine.Enqueue(fix)
	if errors.Is(err, navigation.ErrNotRunning) {
		return nil
	}
	return err
}

func (a *app) recordFix(fix route.Fix) {
	id := a.engine.SessionID()
	if id == "" {
		return
	}
	if err := a.database.RecordFix(id, fix); err != nil {
		logf("failed to record fix: %v", err)
	}
}

// Close stops the engine, flushing telemetry, then releases the port and
// the database.
func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.engine.Stop(ctx); err != nil {
		logf("engine stop: %v", err)
	}
	if a.server != nil {
		a.server.Close()
	}
	if a.gps != nil {
		a.gps.Close()
	}
	a.database.Close()
}
