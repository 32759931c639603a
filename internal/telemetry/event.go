package telemetry

import (
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/banshee-data/wayfinder/internal/geo"
	"github.com/banshee-data/wayfinder/internal/monitoring"
)

// Kind names a telemetry event.
type Kind string

const (
	KindDepart   Kind = "depart"
	KindArrive   Kind = "arrive"
	KindCancel   Kind = "cancel"
	KindReroute  Kind = "reroute"
	KindFeedback Kind = "feedback"
)

// Metrics is the route progress at the time an event is sent.
type Metrics struct {
	DistanceRemaining float64
	DurationRemaining float64
	DistanceTraveled  float64
	LegIndex          int
	StepIndex         int
}

// Event is one telemetry record.
type Event struct {
	ID    string
	Kind  Kind
	Time  time.Time
	State SessionState
	Metrics

	// reroute only
	NewGeometry          []geo.Point
	NewDistanceRemaining float64
	NewDurationRemaining float64

	// feedback only
	FeedbackType string
	Description  string
	Source       string
	Screenshot   string
}

// Payload flattens e into JSON-compatible values.
func (e Event) Payload() map[string]interface{} {
	p := map[string]interface{}{
		"event_id":                   e.ID,
		"event":                      string(e.Kind),
		"created":                    e.Time.UTC().Format(time.RFC3339Nano),
		"session_id":                 e.State.SessionID,
		"trip_id":                    e.State.TripID,
		"session_version":            e.State.Version,
		"reroute_count":              e.State.RerouteCount,
		"distance_completed":         e.State.DistanceCompleted,
		"seconds_since_last_reroute": e.State.SecondsSinceLastReroute,
		"mock_location":              e.State.MockLocation,
		"leg_index":                  e.LegIndex,
		"step_index":                 e.StepIndex,
		"distance_remaining":         e.DistanceRemaining,
		"duration_remaining":         e.DurationRemaining,
		"distance_traveled":          e.DistanceTraveled,
	}
	if !e.State.StartTimestamp.IsZero() {
		p["start_timestamp"] = e.State.StartTimestamp.UTC().Format(time.RFC3339Nano)
	}
	if !e.State.ArrivalTimestamp.IsZero() {
		p["arrival_timestamp"] = e.State.ArrivalTimestamp.UTC().Format(time.RFC3339Nano)
	}
	if r := e.State.OriginalRoute; r != nil {
		p["original_route_id"] = r.ID
	}
	if r := e.State.CurrentRoute; r != nil {
		p["current_route_id"] = r.ID
	}
	switch e.Kind {
	case KindReroute:
		coords := make([]interface{}, len(e.NewGeometry))
		for i, pt := range e.NewGeometry {
			coords[i] = []interface{}{pt.Lon, pt.Lat}
		}
		p["new_geometry"] = coords
		p["new_distance_remaining"] = e.NewDistanceRemaining
		p["new_duration_remaining"] = e.NewDurationRemaining
	case KindFeedback:
		p["feedback_type"] = e.FeedbackType
		p["description"] = e.Description
		p["source"] = e.Source
		p["screenshot"] = e.Screenshot
	}
	if e.Kind == KindReroute || e.Kind == KindFeedback {
		p["before_event_fixes"] = float64(len(e.State.BeforeEventFixes))
		p["after_event_fixes"] = float64(len(e.State.AfterEventFixes))
	}
	return p
}

// Sink receives finished telemetry events.
type Sink interface {
	Send(Event) error
}

// MemorySink keeps events in memory.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

func (m *MemorySink) Send(e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

// Events returns a copy of the received events.
func (m *MemorySink) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

// OfKind returns the received events of kind k.
func (m *MemorySink) OfKind(k Kind) []Event {
	var out []Event
	for _, e := range m.Events() {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}

// LogSink writes a one-line summary of each event to the monitoring log.
type LogSink struct{}

func (LogSink) Send(e Event) error {
	monitoring.Logf("telemetry: %s session=%s trip=%s traveled=%sm remaining=%sm reroutes=%d",
		e.Kind, e.State.SessionID, e.State.TripID,
		humanize.CommafWithDigits(e.DistanceTraveled, 0),
		humanize.CommafWithDigits(e.DistanceRemaining, 0),
		e.State.RerouteCount)
	return nil
}

// MultiSink sends every event to each sink in turn and returns the first
// error.
type MultiSink []Sink

func (ms MultiSink) Send(e Event) error {
	var first error
	for _, s := range ms {
		if err := s.Send(e); err != nil && first == nil {
			first = err
		}
	}
	return first
}
