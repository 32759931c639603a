// Package progress computes where a traveler is along a route and decides
// when the (leg, step) cursor advances.
package progress

import (
	"github.com/banshee-data/wayfinder/internal/geo"
	"github.com/banshee-data/wayfinder/internal/route"
)

// HistorySize is the number of off-route samples a snapshot carries.
const HistorySize = 8

// Sample is the route-distance reading of one cycle.
type Sample struct {
	DistanceFromRoute float64
	// LookaheadDistance is the distance from the route of the fix projected
	// forward along its heading by the dead-reckoning interval.
	LookaheadDistance float64
	Accuracy          float64
}

// RouteProgress is an immutable snapshot of progress along a route. A new
// snapshot is produced every cycle; existing ones are never modified.
type RouteProgress struct {
	route  *route.Route
	cursor route.Cursor
	fix    route.Fix

	snapped      geo.Point
	snapIndex    int
	stepGeomLen  float64
	stepRemain   float64
	stepTraveled float64
	legRemain    float64
	legTraveled  float64
	routeRemain  float64
	routeTravel  float64

	stepDurRemain  float64
	legDurRemain   float64
	routeDurRemain float64

	distanceFromRoute float64
	offRoute          bool
	history           []Sample
	sequence          uint64
}

// New builds a snapshot for fix at cursor, measuring from scratch. It is
// Compute without a previous snapshot.
func New(r *route.Route, cursor route.Cursor, fix route.Fix) RouteProgress {
	return (&Calculator{}).Compute(fix, cursor, r, nil)
}

func (p RouteProgress) Route() *route.Route  { return p.route }
func (p RouteProgress) Cursor() route.Cursor { return p.cursor }
func (p RouteProgress) Fix() route.Fix       { return p.fix }

// SnappedPoint is the fix projected onto the current step.
func (p RouteProgress) SnappedPoint() geo.Point { return p.snapped }

// SnappedSegment is the index of the step geometry segment holding the
// snapped point.
func (p RouteProgress) SnappedSegment() int { return p.snapIndex }

func (p RouteProgress) StepDistanceRemaining() float64  { return p.stepRemain }
func (p RouteProgress) StepDistanceTraveled() float64   { return p.stepTraveled }
func (p RouteProgress) LegDistanceRemaining() float64   { return p.legRemain }
func (p RouteProgress) LegDistanceTraveled() float64    { return p.legTraveled }
func (p RouteProgress) RouteDistanceRemaining() float64 { return p.routeRemain }
func (p RouteProgress) RouteDistanceTraveled() float64  { return p.routeTravel }
func (p RouteProgress) StepDurationRemaining() float64  { return p.stepDurRemain }
func (p RouteProgress) LegDurationRemaining() float64   { return p.legDurRemain }
func (p RouteProgress) RouteDurationRemaining() float64 { return p.routeDurRemain }

// DistanceFromRoute is the distance between the fix and the snapped point.
func (p RouteProgress) DistanceFromRoute() float64 { return p.distanceFromRoute }

// OffRoute is the off-route verdict recorded for this cycle.
func (p RouteProgress) OffRoute() bool { return p.offRoute }

// Sequence counts cycles since the first snapshot of the session.
func (p RouteProgress) Sequence() uint64 { return p.sequence }

// History returns recent samples on the current route, oldest first. The
// last entry belongs to this snapshot.
func (p RouteProgress) History() []Sample {
	out := make([]Sample, len(p.history))
	copy(out, p.history)
	return out
}

// FractionTraveled is the share of the route already covered, in [0, 1].
func (p RouteProgress) FractionTraveled() float64 {
	total := p.routeTravel + p.routeRemain
	if total <= 0 {
		return 0
	}
	return p.routeTravel / total
}

// CurrentStep returns the step at the cursor.
func (p RouteProgress) CurrentStep() (route.Step, bool) {
	if p.route == nil {
		return route.Step{}, false
	}
	return p.route.Step(p.cursor)
}

// UpcomingStep returns the step the cursor would move to next.
func (p RouteProgress) UpcomingStep() (route.Step, bool) {
	next := Advance(p.cursor, p.route)
	if next == p.cursor {
		return route.Step{}, false
	}
	return p.route.Step(next)
}

// FollowOnStep returns the step after the upcoming one.
func (p RouteProgress) FollowOnStep() (route.Step, bool) {
	next := Advance(p.cursor, p.route)
	if next == p.cursor {
		return route.Step{}, false
	}
	after := Advance(next, p.route)
	if after == next {
		return route.Step{}, false
	}
	return p.route.Step(after)
}

func (p RouteProgress) IsFirstStep() bool { return p.cursor.StepIndex == 0 }

func (p RouteProgress) IsLastStep() bool {
	if p.route == nil || !p.cursor.Valid(p.route) {
		return false
	}
	return p.cursor.StepIndex == len(p.route.Legs[p.cursor.LegIndex].Steps)-1
}

// IsPenultimateStep reports whether the cursor is on the second-to-last
// step of its leg.
func (p RouteProgress) IsPenultimateStep() bool {
	if p.route == nil || !p.cursor.Valid(p.route) {
		return false
	}
	return p.cursor.StepIndex == len(p.route.Legs[p.cursor.LegIndex].Steps)-2
}

func (p RouteProgress) IsFirstLeg() bool { return p.cursor.LegIndex == 0 }

func (p RouteProgress) IsLastLeg() bool {
	if p.route == nil {
		return false
	}
	return p.cursor.LegIndex == len(p.route.Legs)-1
}

// IsZero reports whether p is the zero snapshot.
func (p RouteProgress) IsZero() bool { return p.route == nil && p.sequence == 0 }

// WithOffRoute returns a copy of p carrying the off-route verdict.
func (p RouteProgress) WithOffRoute(offRoute bool) RouteProgress {
	p.offRoute = offRoute
	return p
}

// WithFix returns a copy of p reporting fix as the cycle's location. Used
// when the displayed fix is snapped onto the route.
func (p RouteProgress) WithFix(fix route.Fix) RouteProgress {
	p.fix = fix
	return p
}

// SameRoute reports whether a and b describe the same route, either the
// same value or identical geometry.
func SameRoute(a, b *route.Route) bool {
	if a == b {
		return true
	}
	return a.SameGeometry(b)
}
