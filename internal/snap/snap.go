// Package snap corrects the displayed fix onto the route line.
package snap

import (
	"github.com/banshee-data/wayfinder/internal/geo"
	"github.com/banshee-data/wayfinder/internal/progress"
	"github.com/banshee-data/wayfinder/internal/route"
)

// MaxBearingCorrection is the largest heading change, in degrees, ToRoute
// applies. Beyond it the fix keeps its own bearing.
const MaxBearingCorrection = 45.0

// Snapper returns the fix to display for a cycle.
type Snapper interface {
	Snap(fix route.Fix, p progress.RouteProgress) route.Fix
}

// New returns ToRoute when enabled, Passthrough otherwise.
func New(enabled bool) Snapper {
	if enabled {
		return ToRoute{}
	}
	return Passthrough{}
}

// ToRoute moves the fix onto the snapped point and aligns its bearing
// with the route segment under it. Off-route fixes are left alone.
type ToRoute struct{}

func (ToRoute) Snap(fix route.Fix, p progress.RouteProgress) route.Fix {
	if p.OffRoute() || p.Route() == nil {
		return fix
	}
	step, ok := p.CurrentStep()
	if !ok || len(step.Geometry) == 0 {
		return fix
	}

	snapped := p.SnappedPoint()
	fix.Latitude = snapped.Lat
	fix.Longitude = snapped.Lon

	if b, ok := segmentBearing(step.Geometry, p.SnappedSegment()); ok {
		if !fix.HasBearing() || geo.BearingDifference(b, fix.Bearing) <= MaxBearingCorrection {
			fix.Bearing = b
		}
	}
	return fix
}

func segmentBearing(line []geo.Point, i int) (float64, bool) {
	if i < 0 || i+1 >= len(line) || line[i] == line[i+1] {
		return 0, false
	}
	return geo.Bearing(line[i], line[i+1]), true
}

// Passthrough returns fixes unchanged.
type Passthrough struct{}

func (Passthrough) Snap(fix route.Fix, _ progress.RouteProgress) route.Fix { return fix }
