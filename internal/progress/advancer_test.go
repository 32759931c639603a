package progress

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/banshee-data/wayfinder/internal/geo"
	"github.com/banshee-data/wayfinder/internal/route"
	"github.com/banshee-data/wayfinder/internal/testutil"
)

func TestShouldAdvance(t *testing.T) {
	t.Parallel()
	r := testutil.TwoStepRoute()
	start := r.Legs[0].Steps[0].Geometry[0]
	corner := r.Legs[0].Steps[0].Geometry[1]
	adv := StepAdvancer{MaxTurnCompletionOffset: 30, ManeuverZoneRadius: 40}
	calc := &Calculator{}

	at := func(p geo.Point, bearing float64) (route.Fix, RouteProgress) {
		f := testutil.Fix(p, bearing, testutil.Epoch)
		return f, calc.Compute(f, route.Cursor{}, r, nil)
	}

	tests := []struct {
		name    string
		point   geo.Point
		bearing float64
		speed   float64
		want    bool
	}{
		{"far from maneuver", start, 90, 10, false},
		{"in zone, wrong heading", geo.Destination(start, 0, 80), 0, 10, false},
		{"in zone, heading matches", geo.Destination(start, 0, 80), 75, 10, true},
		{"at corner, heading matches", corner, 90, 10, true},
		{"heading just outside offset", corner, 125, 10, false},
		{"heading at offset limit", corner, 120, 10, true},
		{"stationary at corner", corner, 0, 0, true},
		{"stationary before corner", geo.Destination(start, 0, 90), 0, 0, false},
		{"unknown heading at corner", corner, math.NaN(), 10, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, p := at(tt.point, tt.bearing)
			f.Speed = tt.speed
			assert.Equal(t, tt.want, adv.ShouldAdvance(f, p))
		})
	}

	t.Run("no upcoming step", func(t *testing.T) {
		end := r.Legs[0].Steps[1].Geometry[1]
		f := testutil.Fix(end, 90, testutil.Epoch)
		p := calc.Compute(f, route.Cursor{StepIndex: 1}, r, nil)
		assert.False(t, adv.ShouldAdvance(f, p))
	})
}

func TestShouldAdvanceNormalizesBearings(t *testing.T) {
	t.Parallel()
	r := testutil.BuildRoute(testutil.Origin, []testutil.Segment{
		{Bearing: 90, Meters: 60},
		{Bearing: 359, Meters: 60},
	})
	corner := r.Legs[0].Steps[0].Geometry[1]
	adv := StepAdvancer{MaxTurnCompletionOffset: 30, ManeuverZoneRadius: 40}
	f := testutil.Fix(corner, 1, testutil.Epoch)
	p := (&Calculator{}).Compute(f, route.Cursor{}, r, nil)
	assert.True(t, adv.ShouldAdvance(f, p))

	f.Bearing = -361
	assert.True(t, adv.ShouldAdvance(f, p))
}

func TestAdvance(t *testing.T) {
	t.Parallel()
	twoLegs := testutil.BuildRoute(testutil.Origin,
		[]testutil.Segment{{Bearing: 0, Meters: 50}, {Bearing: 90, Meters: 50}, {Bearing: 90, Meters: 1}},
		[]testutil.Segment{{Bearing: 180, Meters: 50}, {Bearing: 270, Meters: 50}},
	)
	tests := []struct {
		name string
		from route.Cursor
		want route.Cursor
	}{
		{"within leg", route.Cursor{LegIndex: 0, StepIndex: 0}, route.Cursor{LegIndex: 0, StepIndex: 1}},
		{"second to last rolls to next leg", route.Cursor{LegIndex: 0, StepIndex: 1}, route.Cursor{LegIndex: 1, StepIndex: 0}},
		{"last of non-final leg rolls over", route.Cursor{LegIndex: 0, StepIndex: 2}, route.Cursor{LegIndex: 1, StepIndex: 0}},
		{"final leg increments", route.Cursor{LegIndex: 1, StepIndex: 0}, route.Cursor{LegIndex: 1, StepIndex: 1}},
		{"end of route stays", route.Cursor{LegIndex: 1, StepIndex: 1}, route.Cursor{LegIndex: 1, StepIndex: 1}},
		{"invalid cursor unchanged", route.Cursor{LegIndex: 5, StepIndex: 0}, route.Cursor{LegIndex: 5, StepIndex: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StepAdvancer{}.Advance(tt.from, twoLegs))
		})
	}

	assert.Equal(t, route.Cursor{LegIndex: 0, StepIndex: 1}, Advance(route.Cursor{}, testutil.TwoStepRoute()))
	assert.Equal(t, route.Cursor{}, Advance(route.Cursor{}, nil))
}

func TestUpcomingAndFollowOn(t *testing.T) {
	t.Parallel()
	r := testutil.BuildRoute(testutil.Origin,
		[]testutil.Segment{{Name: "a", Bearing: 0, Meters: 50}, {Name: "b", Bearing: 90, Meters: 50}},
		[]testutil.Segment{{Name: "c", Bearing: 180, Meters: 50}, {Name: "d", Bearing: 270, Meters: 50}},
	)
	p := New(r, route.Cursor{}, testutil.Fix(testutil.Origin, 0, testutil.Epoch))

	cur, ok := p.CurrentStep()
	assert.True(t, ok)
	assert.Equal(t, "a", cur.Name)

	// the second-to-last step hands over to the next leg
	up, ok := p.UpcomingStep()
	assert.True(t, ok)
	assert.Equal(t, "c", up.Name)

	follow, ok := p.FollowOnStep()
	assert.True(t, ok)
	assert.Equal(t, "d", follow.Name)

	last := New(r, route.Cursor{LegIndex: 1, StepIndex: 1}, testutil.Fix(testutil.Origin, 0, testutil.Epoch))
	_, ok = last.UpcomingStep()
	assert.False(t, ok)
	_, ok = last.FollowOnStep()
	assert.False(t, ok)
	assert.True(t, last.IsLastLeg())
	assert.True(t, last.IsLastStep())
	assert.False(t, last.IsPenultimateStep())
}
