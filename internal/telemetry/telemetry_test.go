package telemetry

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/wayfinder/internal/geo"
	"github.com/banshee-data/wayfinder/internal/progress"
	"github.com/banshee-data/wayfinder/internal/route"
	"github.com/banshee-data/wayfinder/internal/testutil"
	"github.com/banshee-data/wayfinder/internal/timeutil"
)

// trip drives a session along the first step of a route, one fix per
// second.
type trip struct {
	t       *testing.T
	r       *route.Route
	session *Session
	sink    *MemorySink
	clock   *timeutil.MockClock
	sec     int
}

func newTrip(t *testing.T) *trip {
	sink := &MemorySink{}
	clock := timeutil.NewMockClock(testutil.Epoch)
	tr := &trip{t: t, r: testutil.TwoStepRoute(), sink: sink, clock: clock}
	tr.session = NewSession(clock, sink)
	return tr
}

// move reports a fix meters along step 0 and the progress it produces.
func (tr *trip) move(meters float64) (route.Fix, progress.RouteProgress) {
	at := tr.r.Legs[0].Steps[0].Geometry[0]
	if meters > 0 {
		at = geo.Destination(at, 0, meters)
	}
	fix := testutil.Fix(at, 0, testutil.Epoch.Add(time.Duration(tr.sec)*time.Second))
	tr.sec++
	p := progress.New(tr.r, route.Cursor{}, fix)
	tr.session.OnLocation(fix)
	tr.session.OnProgress(p)
	return fix, p
}

func TestDepartOnce(t *testing.T) {
	t.Parallel()
	tr := newTrip(t)
	tr.session.Start(tr.r)
	require.True(t, tr.session.Active())
	st := tr.session.State()
	assert.NotEmpty(t, st.SessionID)
	assert.NotEmpty(t, st.TripID)
	assert.Same(t, tr.r, st.OriginalRoute)
	assert.Equal(t, -1, st.SecondsSinceLastReroute)

	tr.move(0)
	assert.Empty(t, tr.sink.Events())
	assert.True(t, tr.session.State().StartTimestamp.IsZero())

	tr.move(5)
	tr.move(10)
	tr.move(15)

	departs := tr.sink.OfKind(KindDepart)
	require.Len(t, departs, 1)
	assert.False(t, departs[0].State.StartTimestamp.IsZero())
	assert.Equal(t, testutil.Epoch.Add(time.Second), departs[0].State.StartTimestamp)
	assert.True(t, tr.session.State().Departed)
	assert.NotEmpty(t, departs[0].ID)
}

func TestDepartResetsOnNewLeg(t *testing.T) {
	t.Parallel()
	sink := &MemorySink{}
	s := NewSession(timeutil.NewMockClock(testutil.Epoch), sink)
	r := testutil.BuildRoute(testutil.Origin,
		[]testutil.Segment{{Bearing: 0, Meters: 100}},
		[]testutil.Segment{{Bearing: 90, Meters: 100}},
	)
	s.Start(r)

	at := func(c route.Cursor, meters float64, sec int) {
		step := r.Legs[c.LegIndex].Steps[c.StepIndex]
		p := step.Geometry[0]
		if meters > 0 {
			p = geo.Destination(p, step.Maneuver.BearingAfter, meters)
		}
		f := testutil.Fix(p, step.Maneuver.BearingAfter,
			testutil.Epoch.Add(time.Duration(sec)*time.Second))
		s.OnLocation(f)
		s.OnProgress(progress.New(r, c, f))
	}
	at(route.Cursor{}, 10, 1)
	at(route.Cursor{}, 20, 2)
	at(route.Cursor{LegIndex: 1}, 0, 3)
	assert.False(t, s.State().Departed)
	assert.True(t, s.State().StartTimestamp.IsZero())
	at(route.Cursor{LegIndex: 1}, 10, 4)
	at(route.Cursor{LegIndex: 1}, 20, 5)

	departs := sink.OfKind(KindDepart)
	require.Len(t, departs, 2)
	assert.Equal(t, 0, departs[0].State.LegIndex)
	assert.Equal(t, 1, departs[1].State.LegIndex)
}

func TestRerouteOnLaterLegKeepsDeparture(t *testing.T) {
	t.Parallel()
	sink := &MemorySink{}
	s := NewSession(timeutil.NewMockClock(testutil.Epoch), sink)
	r := testutil.BuildRoute(testutil.Origin,
		[]testutil.Segment{{Bearing: 0, Meters: 100}},
		[]testutil.Segment{{Bearing: 90, Meters: 100}},
	)
	s.Start(r)

	report := func(rt *route.Route, c route.Cursor, meters float64, sec int) route.Fix {
		step := rt.Legs[c.LegIndex].Steps[c.StepIndex]
		p := geo.Destination(step.Geometry[0], step.Maneuver.BearingAfter, meters)
		f := testutil.Fix(p, step.Maneuver.BearingAfter, testutil.Epoch.Add(time.Duration(sec)*time.Second))
		s.OnLocation(f)
		s.OnProgress(progress.New(rt, c, f))
		return f
	}
	report(r, route.Cursor{}, 10, 1)
	report(r, route.Cursor{LegIndex: 1}, 10, 2)
	off := report(r, route.Cursor{LegIndex: 1}, 20, 3)
	require.Len(t, sink.OfKind(KindDepart), 2)
	started := s.State().StartTimestamp

	s.OnOffRoute(off)
	detour := testutil.BuildRoute(off.Point(), []testutil.Segment{{Bearing: 180, Meters: 150}})
	s.UpdateRoute(detour)
	assert.Equal(t, 0, s.State().LegIndex)

	report(detour, route.Cursor{}, 10, 4)
	report(detour, route.Cursor{}, 20, 5)

	st := s.State()
	assert.Len(t, sink.OfKind(KindDepart), 2)
	assert.True(t, st.Departed)
	assert.Equal(t, started, st.StartTimestamp)
	assert.Equal(t, 1, st.RerouteCount)
}

func TestRerouteLifecycle(t *testing.T) {
	t.Parallel()
	tr := newTrip(t)
	tr.session.Start(tr.r)
	tr.move(0)
	tr.move(10)
	fix, _ := tr.move(20)

	tr.session.OnOffRoute(fix)
	tr.session.OnOffRoute(fix)
	tr.session.OnOffRoute(fix)
	assert.Equal(t, 1, tr.session.Pending())
	st := tr.session.State()
	assert.True(t, st.OffRoute)
	assert.Len(t, st.OffRouteHistory, 1)
	assert.InDelta(t, 20, st.DistanceCompleted, 0.05)
	tripBefore := st.TripID

	newRoute := testutil.BuildRoute(fix.Point(), []testutil.Segment{{Bearing: 90, Meters: 200}})
	tr.session.UpdateRoute(newRoute)
	st = tr.session.State()
	assert.Equal(t, 1, st.RerouteCount)
	assert.False(t, st.OffRoute)
	assert.NotEqual(t, tripBefore, st.TripID)
	assert.Same(t, newRoute, st.CurrentRoute)
	assert.Same(t, tr.r, st.OriginalRoute)

	// a route update while on route is not a reroute
	tr.session.UpdateRoute(newRoute)
	assert.Equal(t, 1, tr.session.State().RerouteCount)

	// the event waits out the window then carries fixes from both sides
	for i := 0; i < 20; i++ {
		tr.move(20)
	}
	assert.Empty(t, tr.sink.OfKind(KindReroute))
	tr.move(20)

	reroutes := tr.sink.OfKind(KindReroute)
	require.Len(t, reroutes, 1)
	e := reroutes[0]
	assert.Equal(t, 0, tr.session.Pending())
	assert.Equal(t, newRoute.Geometry, e.NewGeometry)
	assert.Equal(t, 200.0, e.NewDistanceRemaining)
	assert.Equal(t, 20.0, e.NewDurationRemaining)
	assert.Equal(t, fix.Time, e.State.EventTimestamp)
	assert.Equal(t, fix, e.State.EventLocation)
	assert.Len(t, e.State.BeforeEventFixes, 2)
	assert.Len(t, e.State.AfterEventFixes, 21)
	assert.Equal(t, -1, e.State.SecondsSinceLastReroute)
}

func TestSecondsSinceLastReroute(t *testing.T) {
	t.Parallel()
	tr := newTrip(t)
	tr.session.Start(tr.r)
	tr.move(0)
	fix, _ := tr.move(10)
	tr.session.OnOffRoute(fix)
	tr.session.UpdateRoute(testutil.TwoStepRoute())

	for i := 0; i < 7; i++ {
		tr.move(10)
	}
	fix, _ = tr.move(10)
	tr.session.OnOffRoute(fix)
	tr.session.UpdateRoute(testutil.TwoStepRoute())
	assert.Equal(t, 2, tr.session.State().RerouteCount)

	tr.session.End()
	reroutes := tr.sink.OfKind(KindReroute)
	require.Len(t, reroutes, 2)
	assert.Equal(t, -1, reroutes[0].State.SecondsSinceLastReroute)
	assert.Equal(t, 8, reroutes[1].State.SecondsSinceLastReroute)
}

func TestRerouteSkippedWithoutRouteOrDeparture(t *testing.T) {
	t.Parallel()

	t.Run("no new route", func(t *testing.T) {
		tr := newTrip(t)
		tr.session.Start(tr.r)
		tr.move(0)
		fix, _ := tr.move(10)
		tr.session.OnOffRoute(fix)
		tr.session.End()
		assert.Empty(t, tr.sink.OfKind(KindReroute))
		assert.Len(t, tr.sink.OfKind(KindCancel), 1)
	})

	t.Run("not departed", func(t *testing.T) {
		tr := newTrip(t)
		tr.session.Start(tr.r)
		fix, _ := tr.move(0)
		tr.session.OnOffRoute(fix)
		tr.session.UpdateRoute(testutil.TwoStepRoute())
		tr.session.End()
		assert.Empty(t, tr.sink.Events())
	})
}

func TestFeedback(t *testing.T) {
	t.Parallel()
	tr := newTrip(t)
	assert.Empty(t, tr.session.RecordFeedback("general", "", "user"))

	tr.session.Start(tr.r)
	tr.move(0)
	tr.move(30)

	keep := tr.session.RecordFeedback("road_closed", "closed", "user")
	drop := tr.session.RecordFeedback("confusing_instruction", "", "reroute")
	require.NotEmpty(t, keep)
	require.NotEqual(t, keep, drop)
	assert.Equal(t, 2, tr.session.Pending())

	assert.True(t, tr.session.UpdateFeedback(keep, "not_allowed", "no left turn", "base64png"))
	assert.False(t, tr.session.UpdateFeedback("missing", "x", "", ""))
	assert.True(t, tr.session.CancelFeedback(drop))
	assert.False(t, tr.session.CancelFeedback(drop))

	tr.session.End()
	fb := tr.sink.OfKind(KindFeedback)
	require.Len(t, fb, 1)
	assert.Equal(t, keep, fb[0].ID)
	assert.Equal(t, "not_allowed", fb[0].FeedbackType)
	assert.Equal(t, "no left turn", fb[0].Description)
	assert.Equal(t, "base64png", fb[0].Screenshot)
	assert.Equal(t, "user", fb[0].Source)
	assert.InDelta(t, 30, fb[0].State.DistanceCompleted, 0.05)
}

func TestEndEmitsCancelOnlyForUnfinishedTrips(t *testing.T) {
	t.Parallel()

	t.Run("never departed", func(t *testing.T) {
		tr := newTrip(t)
		tr.session.Start(tr.r)
		tr.move(0)
		tr.session.End()
		assert.Empty(t, tr.sink.Events())
		assert.False(t, tr.session.Active())
	})

	t.Run("departed", func(t *testing.T) {
		tr := newTrip(t)
		tr.session.Start(tr.r)
		tr.move(0)
		tr.move(10)
		id := tr.session.State().SessionID
		tr.session.Stop()
		cancels := tr.sink.OfKind(KindCancel)
		require.Len(t, cancels, 1)
		assert.Equal(t, id, cancels[0].State.SessionID)
		assert.Empty(t, tr.session.State().SessionID)
	})

	t.Run("arrived", func(t *testing.T) {
		tr := newTrip(t)
		tr.session.Start(tr.r)
		tr.move(0)
		_, p := tr.move(100)
		tr.session.OnArrival(p)
		tr.session.OnArrival(p)
		tr.session.End()
		arrivals := tr.sink.OfKind(KindArrive)
		require.Len(t, arrivals, 1)
		assert.False(t, arrivals[0].State.ArrivalTimestamp.IsZero())
		assert.Empty(t, tr.sink.OfKind(KindCancel))
	})

	t.Run("end twice", func(t *testing.T) {
		tr := newTrip(t)
		tr.session.Start(tr.r)
		tr.move(0)
		tr.move(10)
		tr.session.End()
		tr.session.End()
		assert.Len(t, tr.sink.OfKind(KindCancel), 1)
	})
}

func TestMockLocationFlag(t *testing.T) {
	t.Parallel()
	tr := newTrip(t)
	f := testutil.Fix(testutil.Origin, 0, testutil.Epoch)
	f.Provider = route.ProviderMock
	tr.session.OnLocation(f)
	tr.session.Start(tr.r)
	assert.True(t, tr.session.State().MockLocation)
}

func TestStateIsCopyOnWrite(t *testing.T) {
	t.Parallel()
	base := SessionState{Version: 1}
	off := base.WithOffRoute(testutil.Epoch, 12)
	assert.False(t, base.OffRoute)
	assert.Empty(t, base.OffRouteHistory)
	assert.Equal(t, 2, off.Version)

	again := off.WithOffRoute(testutil.Epoch.Add(time.Second), 3)
	assert.Len(t, off.OffRouteHistory, 1)
	assert.Len(t, again.OffRouteHistory, 2)
	assert.Equal(t, 15.0, again.DistanceCompleted)

	rer := again.WithReroute(&route.Route{ID: "x"}, "trip-2")
	assert.True(t, again.OffRoute)
	assert.False(t, rer.OffRoute)
	assert.Equal(t, 1, rer.RerouteCount)
}

type failingSink struct{ calls int }

func (f *failingSink) Send(Event) error {
	f.calls++
	return errors.New("disk full")
}

func TestSinkErrorsAreLogged(t *testing.T) {
	t.Parallel()
	sink := &failingSink{}
	mem := &MemorySink{}
	s := NewSession(timeutil.NewMockClock(testutil.Epoch), MultiSink{sink, mem})
	r := testutil.TwoStepRoute()
	s.Start(r)
	f := testutil.Fix(geo.Destination(testutil.Origin, 0, 10), 0, testutil.Epoch)
	s.OnLocation(f)
	assert.NotPanics(t, func() { s.OnProgress(progress.New(r, route.Cursor{}, f)) })
	assert.Equal(t, 1, sink.calls)
	assert.Len(t, mem.Events(), 1)
	assert.Error(t, MultiSink{sink}.Send(Event{}))
}

func TestPayload(t *testing.T) {
	t.Parallel()
	e := Event{
		ID:   "e1",
		Kind: KindReroute,
		Time: testutil.Epoch,
		State: SessionState{
			SessionID:      "s1",
			StartTimestamp: testutil.Epoch,
			CurrentRoute:   &route.Route{ID: "r1"},
		},
		NewGeometry: []geo.Point{{Lat: 1, Lon: 2}},
	}
	p := e.Payload()
	assert.Equal(t, "reroute", p["event"])
	assert.Equal(t, "s1", p["session_id"])
	assert.Equal(t, "r1", p["current_route_id"])
	assert.Equal(t, []interface{}{[]interface{}{2.0, 1.0}}, p["new_geometry"])
	assert.Contains(t, p, "start_timestamp")
	assert.NotContains(t, p, "arrival_timestamp")
	assert.NotContains(t, p, "feedback_type")
}

func TestRingBuffer(t *testing.T) {
	t.Parallel()
	b := NewRingBuffer[int](3)
	assert.Empty(t, b.Items())
	b.Push(1)
	b.Push(2)
	assert.Equal(t, []int{1, 2}, b.Items())
	b.Push(3)
	b.Push(4)
	b.Push(5)
	assert.Equal(t, []int{3, 4, 5}, b.Items())
	assert.Equal(t, 3, b.Len())
	assert.Equal(t, 3, b.Cap())
	b.Clear()
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, 1, NewRingBuffer[int](0).Cap())

	fixes := NewRingBuffer[route.Fix](LocationBufferSize)
	for i := 0; i < 100; i++ {
		fixes.Push(route.Fix{Time: testutil.Epoch.Add(time.Duration(i) * time.Second)})
	}
	items := fixes.Items()
	require.Len(t, items, 40)
	assert.Equal(t, testutil.Epoch.Add(60*time.Second), items[0].Time)
}
