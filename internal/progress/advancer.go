package progress

import (
	"github.com/banshee-data/wayfinder/internal/geo"
	"github.com/banshee-data/wayfinder/internal/route"
)

// StepAdvancer decides when the traveler has completed the current step.
type StepAdvancer struct {
	// MaxTurnCompletionOffset is the largest heading difference, in degrees,
	// from the upcoming step's bearing that still counts as completing the
	// turn.
	MaxTurnCompletionOffset float64
	// ManeuverZoneRadius is the remaining step distance, in meters, below
	// which the maneuver can complete.
	ManeuverZoneRadius float64
}

// ShouldAdvance reports whether fix completes the step p is on. A fix
// without a usable heading completes the step only once nothing of it
// remains.
func (a StepAdvancer) ShouldAdvance(fix route.Fix, p RouteProgress) bool {
	upcoming, ok := p.UpcomingStep()
	if !ok {
		return false
	}
	remaining := p.StepDistanceRemaining()
	if remaining >= a.ManeuverZoneRadius {
		return false
	}
	if !fix.HasBearing() {
		return remaining == 0
	}
	return geo.BearingDifference(fix.Bearing, upcoming.Maneuver.BearingAfter) <= a.MaxTurnCompletionOffset
}

// Advance moves c by one step. From the last two steps of a leg it moves to
// the first step of the next leg when there is one; on the final step of
// the route it stays put.
func Advance(c route.Cursor, r *route.Route) route.Cursor {
	if r == nil || !c.Valid(r) {
		return c
	}
	steps := len(r.Legs[c.LegIndex].Steps)
	if c.StepIndex >= steps-2 && c.LegIndex+1 < len(r.Legs) {
		return route.Cursor{LegIndex: c.LegIndex + 1}
	}
	if c.StepIndex+1 < steps {
		return route.Cursor{LegIndex: c.LegIndex, StepIndex: c.StepIndex + 1}
	}
	return c
}

// Advance is StepAdvancer's cursor move; see the package-level Advance.
func (StepAdvancer) Advance(c route.Cursor, r *route.Route) route.Cursor {
	return Advance(c, r)
}
