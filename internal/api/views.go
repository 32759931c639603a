package api

import (
	"math"
	"time"

	"github.com/banshee-data/wayfinder/internal/db"
	"github.com/banshee-data/wayfinder/internal/geo"
	"github.com/banshee-data/wayfinder/internal/progress"
	"github.com/banshee-data/wayfinder/internal/route"
	"github.com/banshee-data/wayfinder/internal/serialmux"
	"github.com/banshee-data/wayfinder/internal/telemetry"
)

// ProgressView is the JSON form of a progress snapshot.
type ProgressView struct {
	RouteID   string    `json:"route_id"`
	Leg       int       `json:"leg"`
	Step      int       `json:"step"`
	StepName  string    `json:"step_name"`
	Upcoming  string    `json:"upcoming_step,omitempty"`
	Sequence  uint64    `json:"sequence"`
	Fix       route.Fix `json:"fix"`
	Snapped   geo.Point `json:"snapped"`
	OffRoute  bool      `json:"off_route"`
	FromRoute float64   `json:"distance_from_route"`

	StepDistanceRemaining  float64 `json:"step_distance_remaining"`
	LegDistanceRemaining   float64 `json:"leg_distance_remaining"`
	RouteDistanceRemaining float64 `json:"route_distance_remaining"`
	RouteDistanceTraveled  float64 `json:"route_distance_traveled"`
	RouteDurationRemaining float64 `json:"route_duration_remaining"`
	FractionTraveled       float64 `json:"fraction_traveled"`
}

// NewProgressView flattens p.
func NewProgressView(p progress.RouteProgress) ProgressView {
	v := ProgressView{
		Leg:                    p.Cursor().LegIndex,
		Step:                   p.Cursor().StepIndex,
		Sequence:               p.Sequence(),
		Fix:                    jsonSafe(p.Fix()),
		Snapped:                p.SnappedPoint(),
		OffRoute:               p.OffRoute(),
		FromRoute:              p.DistanceFromRoute(),
		StepDistanceRemaining:  p.StepDistanceRemaining(),
		LegDistanceRemaining:   p.LegDistanceRemaining(),
		RouteDistanceRemaining: p.RouteDistanceRemaining(),
		RouteDistanceTraveled:  p.RouteDistanceTraveled(),
		RouteDurationRemaining: p.RouteDurationRemaining(),
		FractionTraveled:       p.FractionTraveled(),
	}
	if r := p.Route(); r != nil {
		v.RouteID = r.ID
	}
	if s, ok := p.CurrentStep(); ok {
		v.StepName = s.Name
	}
	if s, ok := p.UpcomingStep(); ok {
		v.Upcoming = s.Name
	}
	return v
}

// jsonSafe clears a NaN bearing, which encoding/json rejects.
func jsonSafe(f route.Fix) route.Fix {
	if math.IsNaN(f.Bearing) || math.IsInf(f.Bearing, 0) {
		f.Bearing = 0
	}
	return f
}

// SessionView is the JSON form of the telemetry state.
type SessionView struct {
	SessionID               string      `json:"session_id"`
	TripID                  string      `json:"trip_id"`
	Version                 int         `json:"version"`
	Started                 *time.Time  `json:"started,omitempty"`
	Arrived                 *time.Time  `json:"arrived,omitempty"`
	RerouteCount            int         `json:"reroute_count"`
	DistanceCompleted       float64     `json:"distance_completed"`
	OffRoute                bool        `json:"off_route"`
	OffRouteHistory         []time.Time `json:"off_route_history"`
	SecondsSinceLastReroute int         `json:"seconds_since_last_reroute"`
	MockLocation            bool        `json:"mock_location"`
	LegIndex                int         `json:"leg_index"`
	Departed                bool        `json:"departed"`
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// NewSessionView flattens s.
func NewSessionView(s telemetry.SessionState) SessionView {
	history := s.OffRouteHistory
	if history == nil {
		history = []time.Time{}
	}
	return SessionView{
		SessionID:               s.SessionID,
		TripID:                  s.TripID,
		Version:                 s.Version,
		Started:                 optionalTime(s.StartTimestamp),
		Arrived:                 optionalTime(s.ArrivalTimestamp),
		RerouteCount:            s.RerouteCount,
		DistanceCompleted:       s.DistanceCompleted,
		OffRoute:                s.OffRoute,
		OffRouteHistory:         history,
		SecondsSinceLastReroute: s.SecondsSinceLastReroute,
		MockLocation:            s.MockLocation,
		LegIndex:                s.LegIndex,
		Departed:                s.Departed,
	}
}

// EventView is the JSON form of a stored telemetry event.
type EventView struct {
	EventID           string                 `json:"event_id"`
	SessionID         string                 `json:"session_id"`
	TripID            string                 `json:"trip_id"`
	Kind              telemetry.Kind         `json:"kind"`
	Created           time.Time              `json:"created"`
	RerouteCount      int                    `json:"reroute_count"`
	DistanceTraveled  float64                `json:"distance_traveled"`
	DistanceRemaining float64                `json:"distance_remaining"`
	Payload           map[string]interface{} `json:"payload"`
}

// NewEventView converts a stored event.
func NewEventView(e db.StoredEvent) EventView {
	return EventView{
		EventID:           e.EventID,
		SessionID:         e.SessionID,
		TripID:            e.TripID,
		Kind:              e.Kind,
		Created:           e.Created,
		RerouteCount:      e.RerouteCount,
		DistanceTraveled:  e.DistanceTraveled,
		DistanceRemaining: e.DistanceRemaining,
		Payload:           e.Payload.AsMap(),
	}
}

// SessionSummaryView is the JSON form of db.SessionSummary.
type SessionSummaryView struct {
	SessionID string    `json:"session_id"`
	Events    int       `json:"events"`
	Reroutes  int       `json:"reroutes"`
	First     time.Time `json:"first"`
	Last      time.Time `json:"last"`
}

// MilestoneView reports a registered milestone.
type MilestoneView struct {
	ID      int  `json:"id"`
	Enabled bool `json:"enabled"`
}

// GPSView reports the serial location source.
type GPSView struct {
	Enabled bool                  `json:"enabled"`
	Stats   serialmux.SourceStats `json:"stats"`
	Last    *route.Fix            `json:"last,omitempty"`
}

// FeedbackRequest creates or updates a feedback event.
type FeedbackRequest struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Source      string `json:"source,omitempty"`
	Screenshot  string `json:"screenshot,omitempty"`
}

// FeedbackResponse carries the id of a created feedback event.
type FeedbackResponse struct {
	ID string `json:"id"`
}

// Sample is one point of the progress history kept for charts.
type Sample struct {
	Time      time.Time `json:"time"`
	Remaining float64   `json:"remaining"`
	Traveled  float64   `json:"traveled"`
	FromRoute float64   `json:"from_route"`
	OffRoute  bool      `json:"off_route"`
}
