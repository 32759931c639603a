package progress

import (
	"math"
	"time"

	"github.com/banshee-data/wayfinder/internal/geo"
	"github.com/banshee-data/wayfinder/internal/route"
)

// Calculator turns a fix and cursor into a RouteProgress snapshot.
type Calculator struct {
	// DeadReckoning is how far ahead in time the lookahead sample projects
	// the fix along its heading.
	DeadReckoning time.Duration
}

// NewCalculator returns a Calculator projecting lookahead samples by
// deadReckoning.
func NewCalculator(deadReckoning time.Duration) *Calculator {
	return &Calculator{DeadReckoning: deadReckoning}
}

// Compute snaps fix onto the cursor's step and measures remaining distance
// for step, leg and route. prev may be nil.
//
// Within an unchanged route and cursor, distance remaining never grows: a
// fix older than prev's keeps prev's measurements, and a fix that snaps
// behind the previous position is held at the previous remaining distance.
func (c *Calculator) Compute(fix route.Fix, cursor route.Cursor, r *route.Route, prev *RouteProgress) RouteProgress {
	var seq uint64 = 1
	if prev != nil {
		seq = prev.sequence + 1
	}
	if r == nil || !cursor.Valid(r) {
		return RouteProgress{route: r, cursor: cursor, fix: fix, sequence: seq}
	}

	sameStep := prev != nil && prev.cursor == cursor && SameRoute(prev.route, r)
	if sameStep && fix.Time.Before(prev.fix.Time) {
		held := *prev
		held.route = r
		held.sequence = seq
		return held
	}

	step := r.Legs[cursor.LegIndex].Steps[cursor.StepIndex]
	p := RouteProgress{route: r, cursor: cursor, fix: fix, sequence: seq}

	snapped, ok := geo.NearestPointOnLine(step.Geometry, fix.Point())
	if ok {
		p.snapped = snapped.Point
		p.snapIndex = snapped.Index
		p.distanceFromRoute = snapped.Distance
		p.stepGeomLen = geo.Length(step.Geometry)
		p.stepRemain = geo.Length(geo.SliceFrom(step.Geometry, snapped))
	} else {
		p.snapped = fix.Point()
	}
	if sameStep && p.stepRemain > prev.stepRemain {
		p.stepRemain = prev.stepRemain
	}
	p.stepTraveled = math.Max(0, p.stepGeomLen-p.stepRemain)

	leg := r.Legs[cursor.LegIndex]
	var before, after float64
	var durAfter float64
	for i, s := range leg.Steps {
		switch {
		case i < cursor.StepIndex:
			before += s.Length()
		case i > cursor.StepIndex:
			after += s.Length()
			durAfter += s.Duration
		}
	}
	p.legRemain = p.stepRemain + after
	p.legTraveled = before + p.stepTraveled

	if p.stepGeomLen > 0 {
		p.stepDurRemain = step.Duration * p.stepRemain / p.stepGeomLen
	}
	p.legDurRemain = p.stepDurRemain + durAfter

	var legsBefore, legsAfter, legsDurAfter float64
	for i, l := range r.Legs {
		switch {
		case i < cursor.LegIndex:
			legsBefore += l.Length()
		case i > cursor.LegIndex:
			legsAfter += l.Length()
			legsDurAfter += l.Duration
		}
	}
	p.routeRemain = p.legRemain + legsAfter
	p.routeTravel = legsBefore + p.legTraveled
	p.routeDurRemain = p.legDurRemain + legsDurAfter

	sample := Sample{
		DistanceFromRoute: p.distanceFromRoute,
		LookaheadDistance: c.lookahead(fix, step.Geometry, p.distanceFromRoute),
		Accuracy:          fix.HorizontalAccuracy(),
	}
	var history []Sample
	if prev != nil && SameRoute(prev.route, r) {
		history = prev.history
	}
	p.history = appendSample(history, sample)
	return p
}

func (c *Calculator) lookahead(fix route.Fix, line []geo.Point, fallback float64) float64 {
	if c.DeadReckoning <= 0 || fix.Speed <= 0 || !fix.HasBearing() || len(line) == 0 {
		return fallback
	}
	ahead := geo.Destination(fix.Point(), fix.Bearing, fix.Speed*c.DeadReckoning.Seconds())
	s, ok := geo.NearestPointOnLine(line, ahead)
	if !ok {
		return fallback
	}
	return s.Distance
}

// appendSample returns a new slice holding history plus s, trimmed to
// HistorySize. history is never modified.
func appendSample(history []Sample, s Sample) []Sample {
	start := 0
	if len(history) >= HistorySize {
		start = len(history) - HistorySize + 1
	}
	out := make([]Sample, 0, len(history)-start+1)
	out = append(out, history[start:]...)
	return append(out, s)
}
