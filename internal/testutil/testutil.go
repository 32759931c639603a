// Package testutil builds synthetic routes and fix streams for tests.
package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/wayfinder/internal/geo"
	"github.com/banshee-data/wayfinder/internal/route"
)

// Origin is the default start point for synthetic routes.
var Origin = geo.Point{Lat: 37.7749, Lon: -122.4194}

// Epoch is the default timestamp of the first synthetic fix.
var Epoch = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

// Segment describes one straight step of a synthetic route.
type Segment struct {
	Name    string
	Bearing float64
	Meters  float64
}

// BuildRoute lays out legs of straight steps starting at origin. Each leg
// starts where the previous one ended. Step durations assume 10 m/s.
func BuildRoute(origin geo.Point, legs ...[]Segment) *route.Route {
	r := &route.Route{ID: uuid.NewString()}
	cur := origin
	r.Geometry = append(r.Geometry, cur)
	for li, segs := range legs {
		var leg route.Leg
		for si, seg := range segs {
			end := geo.Destination(cur, seg.Bearing, seg.Meters)
			kind := "turn"
			switch {
			case li == 0 && si == 0:
				kind = "depart"
			case si == 0:
				kind = "continue"
			}
			step := route.Step{
				Name:     seg.Name,
				Geometry: []geo.Point{cur, end},
				Distance: seg.Meters,
				Duration: seg.Meters / 10,
				Maneuver: route.Maneuver{
					Type:         kind,
					BearingAfter: seg.Bearing,
					Location:     cur,
				},
			}
			leg.Steps = append(leg.Steps, step)
			leg.Distance += step.Distance
			leg.Duration += step.Duration
			r.Geometry = append(r.Geometry, end)
			cur = end
		}
		r.Legs = append(r.Legs, leg)
		r.Distance += leg.Distance
		r.Duration += leg.Duration
	}
	return r
}

// TwoStepRoute is a single leg heading north 100 m then east 50 m.
func TwoStepRoute() *route.Route {
	return BuildRoute(Origin, []Segment{
		{Name: "Market Street", Bearing: 0, Meters: 100},
		{Name: "Valencia Street", Bearing: 90, Meters: 50},
	})
}

// Fix returns a moving fix at p.
func Fix(p geo.Point, bearing float64, at time.Time) route.Fix {
	return route.Fix{
		Latitude:  p.Lat,
		Longitude: p.Lon,
		Bearing:   bearing,
		Speed:     10,
		Accuracy:  5,
		Time:      at,
	}
}

// Along returns points every spacing meters along line, starting at the
// first vertex and always including the final vertex.
func Along(line []geo.Point, spacing float64) []geo.Point {
	if len(line) == 0 {
		return nil
	}
	out := []geo.Point{line[0]}
	for i := 1; i < len(line); i++ {
		a, b := line[i-1], line[i]
		segLen := geo.Distance(a, b)
		bearing := geo.Bearing(a, b)
		for d := spacing; d < segLen-0.01; d += spacing {
			out = append(out, geo.Destination(a, bearing, d))
		}
		out = append(out, b)
	}
	return out
}

// Walk turns points into fixes one second apart, each heading toward the
// next point. The final fix keeps the previous heading.
func Walk(points []geo.Point, start time.Time) []route.Fix {
	fixes := make([]route.Fix, 0, len(points))
	var bearing float64
	for i, p := range points {
		if i+1 < len(points) {
			bearing = geo.Bearing(p, points[i+1])
		}
		fixes = append(fixes, Fix(p, bearing, start.Add(time.Duration(i)*time.Second)))
	}
	return fixes
}
