// Package telemetry tracks a navigation session's lifecycle (depart,
// reroute, arrival, cancel) and decides which events to emit.
//
// A Session is owned by a single goroutine; it does no locking of its own.
package telemetry

import (
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/wayfinder/internal/geo"
	"github.com/banshee-data/wayfinder/internal/monitoring"
	"github.com/banshee-data/wayfinder/internal/progress"
	"github.com/banshee-data/wayfinder/internal/route"
	"github.com/banshee-data/wayfinder/internal/timeutil"
)

const (
	// FinalizeWindow is how long a queued event waits for location
	// context after it happened.
	FinalizeWindow = 20 * time.Second
	// LocationBufferSize is the number of recent fixes kept for event
	// context.
	LocationBufferSize = 40
)

var logf = monitoring.Prefixed("telemetry")

type queuedEvent struct {
	Event
	hasGeometry bool
}

// Session is the telemetry state machine for one navigation attempt.
type Session struct {
	clock timeutil.Clock
	sink  Sink

	active  bool
	state   SessionState
	buffer  *RingBuffer[route.Fix]
	lastFix route.Fix
	hasFix  bool
	metrics Metrics

	queue       []*queuedEvent
	lastReroute time.Time
}

// NewSession returns an idle session sending events to sink. A nil clock
// uses the wall clock.
func NewSession(clock timeutil.Clock, sink Sink) *Session {
	if clock == nil {
		clock = &timeutil.RealClock{}
	}
	if sink == nil {
		sink = LogSink{}
	}
	return &Session{
		clock:  clock,
		sink:   sink,
		buffer: NewRingBuffer[route.Fix](LocationBufferSize),
	}
}

// now follows the location stream once fixes arrive so replayed traces
// keep their own timeline.
func (s *Session) now() time.Time {
	if s.hasFix && !s.lastFix.Time.IsZero() {
		return s.lastFix.Time
	}
	return s.clock.Now()
}

// Active reports whether a session is running.
func (s *Session) Active() bool { return s.active }

// State returns the current session state.
func (s *Session) State() SessionState { return s.state }

// Pending returns the number of queued reroute and feedback events.
func (s *Session) Pending() int { return len(s.queue) }

// Start begins a session on r, discarding any previous one.
func (s *Session) Start(r *route.Route) {
	s.active = true
	s.queue = nil
	s.lastReroute = time.Time{}
	s.metrics = Metrics{}
	s.state = SessionState{
		SessionID:               uuid.NewString(),
		TripID:                  uuid.NewString(),
		Version:                 1,
		OriginalRoute:           r,
		CurrentRoute:            r,
		SecondsSinceLastReroute: -1,
		MockLocation:            s.hasFix && s.lastFix.IsMock(),
	}
	logf("session %s started", s.state.SessionID)
}

// OnLocation records a raw fix and sends queued events whose window has
// passed.
func (s *Session) OnLocation(fix route.Fix) {
	s.buffer.Push(fix)
	s.lastFix = fix
	s.hasFix = true
	if !s.active {
		return
	}

	now := s.now()
	kept := s.queue[:0]
	for _, q := range s.queue {
		if now.Sub(q.State.EventTimestamp) > FinalizeWindow {
			s.send(q)
			continue
		}
		kept = append(kept, q)
	}
	s.queue = kept
}

// OnProgress records the latest progress and emits the departure the
// first time the traveler covers distance on a leg.
func (s *Session) OnProgress(p progress.RouteProgress) {
	s.metrics = Metrics{
		DistanceRemaining: p.RouteDistanceRemaining(),
		DurationRemaining: p.RouteDurationRemaining(),
		DistanceTraveled:  p.RouteDistanceTraveled(),
		LegIndex:          p.Cursor().LegIndex,
		StepIndex:         p.Cursor().StepIndex,
	}
	if !s.active {
		return
	}
	if leg := p.Cursor().LegIndex; leg != s.state.LegIndex {
		s.state = s.state.WithLeg(leg)
	}
	if !s.state.Departed && p.LegDistanceTraveled() > 0 {
		s.state = s.state.WithDeparture(s.now())
		s.emit(KindDepart)
	}
}

// OnOffRoute queues a reroute event on the first off-route fix. Further
// calls are ignored until the route is replaced.
func (s *Session) OnOffRoute(fix route.Fix) {
	if !s.active || s.state.OffRoute {
		return
	}
	now := s.now()
	s.state = s.state.WithOffRoute(now, s.metrics.DistanceTraveled)
	q := &queuedEvent{Event: Event{
		ID:    uuid.NewString(),
		Kind:  KindReroute,
		State: s.state.WithEvent(now, fix, s.secondsSinceReroute(now)),
	}}
	s.queue = append(s.queue, q)
}

// UpdateRoute switches the session to r. After an off-route edge this is
// a reroute: the count goes up, a new trip id is issued and the pending
// reroute event learns the new route.
func (s *Session) UpdateRoute(r *route.Route) {
	if !s.active {
		return
	}
	// a different route restarts the cursor at leg 0 of the same trip
	if !progress.SameRoute(s.state.CurrentRoute, r) && s.state.LegIndex != 0 {
		s.state = s.state.WithLegIndex(0)
	}
	if !s.state.OffRoute {
		s.state = s.state.WithRoute(r)
		return
	}
	s.state = s.state.WithReroute(r, uuid.NewString())
	s.lastReroute = s.now()
	for i := len(s.queue) - 1; i >= 0; i-- {
		q := s.queue[i]
		if q.Kind != KindReroute {
			continue
		}
		q.NewGeometry = routeGeometry(r)
		q.NewDistanceRemaining = r.Length()
		q.NewDurationRemaining = r.Duration
		q.hasGeometry = len(q.NewGeometry) > 0
		break
	}
}

// OnArrival emits the arrival event once per leg.
func (s *Session) OnArrival(p progress.RouteProgress) {
	if !s.active || !s.state.ArrivalTimestamp.IsZero() {
		return
	}
	s.OnProgress(p)
	s.state = s.state.WithArrival(s.now())
	s.emit(KindArrive)
}

// RecordFeedback queues a feedback event and returns its id, or "" when
// no session is running.
func (s *Session) RecordFeedback(feedbackType, description, source string) string {
	if !s.active {
		return ""
	}
	now := s.now()
	state := s.state
	state.DistanceCompleted += s.metrics.DistanceTraveled
	q := &queuedEvent{Event: Event{
		ID:           uuid.NewString(),
		Kind:         KindFeedback,
		State:        state.WithEvent(now, s.lastFix, s.secondsSinceReroute(now)),
		FeedbackType: feedbackType,
		Description:  description,
		Source:       source,
	}}
	s.queue = append(s.queue, q)
	return q.ID
}

// UpdateFeedback changes a queued feedback event.
func (s *Session) UpdateFeedback(id, feedbackType, description, screenshot string) bool {
	q := s.find(id)
	if q == nil || q.Kind != KindFeedback {
		logf("feedback %s not queued, update skipped", id)
		return false
	}
	q.FeedbackType = feedbackType
	q.Description = description
	q.Screenshot = screenshot
	return true
}

// CancelFeedback drops a queued feedback event.
func (s *Session) CancelFeedback(id string) bool {
	for i, q := range s.queue {
		if q.ID == id && q.Kind == KindFeedback {
			s.queue = append(s.queue[:i:i], s.queue[i+1:]...)
			return true
		}
	}
	logf("feedback %s not queued, cancel skipped", id)
	return false
}

// End sends every queued event, emits a cancel for a trip that departed
// but never arrived, and returns the session to idle.
func (s *Session) End() {
	if !s.active {
		return
	}
	for _, q := range s.queue {
		s.send(q)
	}
	s.queue = nil
	if s.state.inProgress() {
		s.emit(KindCancel)
	}
	logf("session %s ended", s.state.SessionID)
	s.active = false
	s.state = SessionState{}
}

// Stop is End.
func (s *Session) Stop() { s.End() }

func (s *Session) find(id string) *queuedEvent {
	for _, q := range s.queue {
		if q.ID == id {
			return q
		}
	}
	return nil
}

func (s *Session) secondsSinceReroute(now time.Time) int {
	if s.lastReroute.IsZero() {
		return -1
	}
	return int(now.Sub(s.lastReroute) / time.Second)
}

func (s *Session) emit(kind Kind) {
	s.deliver(Event{
		ID:      uuid.NewString(),
		Kind:    kind,
		Time:    s.now(),
		State:   s.state,
		Metrics: s.metrics,
	})
}

// send finalizes a queued event with the fixes around it. Events that
// cannot be finalized are dropped.
func (s *Session) send(q *queuedEvent) {
	if q.State.StartTimestamp.IsZero() {
		logf("%s %s before departure, skipped", q.Kind, q.ID)
		return
	}
	if q.Kind == KindReroute && !q.hasGeometry {
		logf("reroute %s has no new route, skipped", q.ID)
		return
	}
	var before, after []route.Fix
	at := q.State.EventTimestamp
	for _, f := range s.buffer.Items() {
		switch {
		case f.Time.Before(at):
			before = append(before, f)
		case f.Time.After(at):
			after = append(after, f)
		}
	}
	e := q.Event
	e.State = e.State.WithEventFixes(before, after)
	e.Time = s.now()
	e.Metrics = s.metrics
	s.deliver(e)
}

func (s *Session) deliver(e Event) {
	if err := s.sink.Send(e); err != nil {
		logf("failed to send %s event %s: %v", e.Kind, e.ID, err)
	}
}

// routeGeometry returns the route's overview line, or the concatenated
// step geometry when the route has none.
func routeGeometry(r *route.Route) []geo.Point {
	if r == nil {
		return nil
	}
	if len(r.Geometry) > 0 {
		return append([]geo.Point(nil), r.Geometry...)
	}
	var out []geo.Point
	for _, l := range r.Legs {
		for _, st := range l.Steps {
			for _, p := range st.Geometry {
				if n := len(out); n > 0 && out[n-1] == p {
					continue
				}
				out = append(out, p)
			}
		}
	}
	return out
}
