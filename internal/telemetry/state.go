package telemetry

import (
	"time"

	"github.com/banshee-data/wayfinder/internal/route"
)

// SessionState is a snapshot of a trip's telemetry lifecycle. It is a value:
// the With methods return modified copies and never touch the receiver.
type SessionState struct {
	SessionID string
	TripID    string
	// Version increases with every change.
	Version int

	OriginalRoute *route.Route
	CurrentRoute  *route.Route

	StartTimestamp   time.Time
	ArrivalTimestamp time.Time
	EventTimestamp   time.Time

	RerouteCount      int
	DistanceCompleted float64
	OffRoute          bool
	// OffRouteHistory holds the time of every off-route edge.
	OffRouteHistory []time.Time
	// SecondsSinceLastReroute is -1 until the first reroute.
	SecondsSinceLastReroute int
	MockLocation            bool

	EventLocation    route.Fix
	BeforeEventFixes []route.Fix
	AfterEventFixes  []route.Fix

	LegIndex int
	Departed bool
}

// inProgress reports whether the session departed and has not arrived.
func (s SessionState) inProgress() bool {
	return !s.StartTimestamp.IsZero() && s.ArrivalTimestamp.IsZero()
}

func (s SessionState) bump() SessionState {
	s.Version++
	return s
}

// WithDeparture marks the current leg as departed at t.
func (s SessionState) WithDeparture(t time.Time) SessionState {
	s.StartTimestamp = t
	s.Departed = true
	return s.bump()
}

// WithLeg moves to leg index, clearing the departure so the new leg can
// depart again.
func (s SessionState) WithLeg(index int) SessionState {
	s.LegIndex = index
	s.Departed = false
	s.StartTimestamp = time.Time{}
	s.ArrivalTimestamp = time.Time{}
	return s.bump()
}

// WithLegIndex rebases the leg index for a replacement route whose
// cursor starts over. The departure stands.
func (s SessionState) WithLegIndex(index int) SessionState {
	s.LegIndex = index
	return s.bump()
}

// WithArrival stamps the arrival time.
func (s SessionState) WithArrival(t time.Time) SessionState {
	s.ArrivalTimestamp = t
	return s.bump()
}

// WithOffRoute records an off-route edge at t, adding traveled to the
// distance completed so far.
func (s SessionState) WithOffRoute(t time.Time, traveled float64) SessionState {
	s.OffRoute = true
	s.DistanceCompleted += traveled
	history := make([]time.Time, len(s.OffRouteHistory), len(s.OffRouteHistory)+1)
	copy(history, s.OffRouteHistory)
	s.OffRouteHistory = append(history, t)
	return s.bump()
}

// WithRoute replaces the current route without a reroute. The leg index
// follows progress, not the route.
func (s SessionState) WithRoute(r *route.Route) SessionState {
	s.CurrentRoute = r
	return s.bump()
}

// WithReroute replaces the current route after an off-route edge.
func (s SessionState) WithReroute(r *route.Route, tripID string) SessionState {
	s.CurrentRoute = r
	s.OffRoute = false
	s.RerouteCount++
	s.TripID = tripID
	return s.bump()
}

// WithEvent stamps the context of a queued event.
func (s SessionState) WithEvent(t time.Time, at route.Fix, secondsSinceReroute int) SessionState {
	s.EventTimestamp = t
	s.EventLocation = at
	s.SecondsSinceLastReroute = secondsSinceReroute
	s.MockLocation = at.IsMock()
	return s.bump()
}

// WithEventFixes attaches the fixes recorded around the event.
func (s SessionState) WithEventFixes(before, after []route.Fix) SessionState {
	s.BeforeEventFixes = append([]route.Fix(nil), before...)
	s.AfterEventFixes = append([]route.Fix(nil), after...)
	return s.bump()
}
