// Package api serves the navigation state over HTTP: the live progress and
// telemetry session of the engine, the stored telemetry events and a few
// debugging charts.
package api

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"tailscale.com/tsweb"

	"github.com/banshee-data/wayfinder/internal/db"
	"github.com/banshee-data/wayfinder/internal/dispatch"
	"github.com/banshee-data/wayfinder/internal/monitoring"
	"github.com/banshee-data/wayfinder/internal/navigation"
	"github.com/banshee-data/wayfinder/internal/progress"
	"github.com/banshee-data/wayfinder/internal/route"
	"github.com/banshee-data/wayfinder/internal/serialmux"
	"github.com/banshee-data/wayfinder/internal/telemetry"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// DefaultHistorySize is the number of progress samples kept for charts.
const DefaultHistorySize = 3600

// Config assembles a Server. Only Engine is required.
type Config struct {
	Engine *navigation.Engine
	// Store serves stored telemetry. Nil disables the event endpoints.
	Store *db.TelemetryStore
	// GPS and Source describe the serial location source, if any.
	GPS         serialmux.SerialMuxInterface
	Source      *serialmux.Source
	HistorySize int
}

type Server struct {
	engine *navigation.Engine
	store  *db.TelemetryStore
	gps    serialmux.SerialMuxInterface
	source *serialmux.Source

	listener dispatch.Handle
	running  dispatch.Handle

	mu      sync.Mutex
	history *telemetry.RingBuffer[Sample]
}

// NewServer registers a progress listener on the engine that feeds the
// chart history. Close removes it.
func NewServer(cfg Config) *Server {
	size := cfg.HistorySize
	if size <= 0 {
		size = DefaultHistorySize
	}
	s := &Server{
		engine:  cfg.Engine,
		store:   cfg.Store,
		gps:     cfg.GPS,
		source:  cfg.Source,
		history: telemetry.NewRingBuffer[Sample](size),
	}
	s.listener = cfg.Engine.Listeners().Progress.Add(s.record)
	s.running = cfg.Engine.Listeners().Running.Add(s.resetHistory)
	return s
}

// Close unregisters the server's listeners.
func (s *Server) Close() {
	s.engine.Listeners().Progress.Remove(s.listener)
	s.engine.Listeners().Running.Remove(s.running)
}

// resetHistory starts the chart afresh with every session.
func (s *Server) resetHistory(running bool) {
	if !running {
		return
	}
	s.mu.Lock()
	s.history.Clear()
	s.mu.Unlock()
}

func (s *Server) record(fix route.Fix, p progress.RouteProgress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history.Push(Sample{
		Time:      fix.Time,
		Remaining: p.RouteDistanceRemaining(),
		Traveled:  p.RouteDistanceTraveled(),
		FromRoute: p.DistanceFromRoute(),
		OffRoute:  p.OffRoute(),
	})
}

// History returns the recorded samples, oldest first.
func (s *Server) History() []Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Items()
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/progress", s.showProgress)
	mux.HandleFunc("/api/history", s.showHistory)
	mux.HandleFunc("/api/session", s.showSession)
	mux.HandleFunc("/api/milestones", s.listMilestones)
	mux.HandleFunc("/api/milestones/", s.toggleMilestone)
	mux.HandleFunc("/api/route", s.setRoute)
	mux.HandleFunc("/api/location", s.enqueueLocation)
	mux.HandleFunc("/api/feedback", s.createFeedback)
	mux.HandleFunc("/api/feedback/", s.changeFeedback)
	mux.HandleFunc("/api/sessions", s.listSessions)
	mux.HandleFunc("/api/events", s.listEvents)
	mux.HandleFunc("/api/events/", s.eventByID)
	mux.HandleFunc("/api/gps", s.showGPS)
	mux.HandleFunc("/charts/progress", s.progressChart)
	return mux
}

// AttachAdminRoutes adds the navigation summary to the /debug/ index and
// the GPS debugging routes when a receiver is attached.
func (s *Server) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.KVFunc("Navigation", func() any {
		if !s.engine.Running() {
			return "idle"
		}
		return "running"
	})
	debug.KVFunc("Queued jobs", func() any { return humanize.Comma(int64(s.engine.Pending())) })
	debug.KVFunc("Remaining", func() any {
		p, ok := s.engine.Progress()
		if !ok {
			return "-"
		}
		return humanize.CommafWithDigits(p.RouteDistanceRemaining(), 0) + " m"
	})
	debug.KVFunc("Progress samples", func() any { return humanize.Comma(int64(len(s.History()))) })
	if s.source != nil {
		debug.KVFunc("GPS fixes", func() any { return humanize.Comma(int64(s.source.Stats().Fixes)) })
	}
	debug.Handle("progress-chart", "Distance remaining over time", http.HandlerFunc(s.progressChart))
	if s.gps != nil {
		s.gps.AttachAdminRoutes(mux)
	}
}
