// Package route holds the navigation data model: position fixes and the
// leg/step structure of a planned route.
package route

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/wayfinder/internal/geo"
)

// ErrInvalidRoute is returned for routes that cannot be navigated.
var ErrInvalidRoute = errors.New("invalid route")

// ProviderMock marks fixes produced by a simulator or replay.
const ProviderMock = "mock"

// Point is a WGS84 coordinate.
type Point = geo.Point

// Fix is one position sample from a location provider.
type Fix struct {
	Latitude  float64   `json:"lat"`
	Longitude float64   `json:"lon"`
	Bearing   float64   `json:"bearing"`
	Speed     float64   `json:"speed"`
	Accuracy  float64   `json:"accuracy"`
	Time      time.Time `json:"time"`
	Provider  string    `json:"provider,omitempty"`
}

// Point returns the fix position.
func (f Fix) Point() Point {
	return Point{Lat: f.Latitude, Lon: f.Longitude}
}

// Valid reports whether the fix has a usable position.
func (f Fix) Valid() bool {
	return f.Point().Valid()
}

// HorizontalAccuracy returns Accuracy in meters, or 0 when the provider
// reported none or a non-finite value.
func (f Fix) HorizontalAccuracy() float64 {
	if math.IsNaN(f.Accuracy) || math.IsInf(f.Accuracy, 0) || f.Accuracy < 0 {
		return 0
	}
	return f.Accuracy
}

// HasBearing reports whether Bearing carries heading information. Providers
// report 0 for stationary or heading-less fixes.
func (f Fix) HasBearing() bool {
	if math.IsNaN(f.Bearing) || math.IsInf(f.Bearing, 0) {
		return false
	}
	return !(f.Bearing == 0 && f.Speed < 1)
}

// IsMock reports whether the fix came from a simulated provider.
func (f Fix) IsMock() bool {
	return f.Provider == ProviderMock
}

// Maneuver describes the action at the start of a step.
type Maneuver struct {
	Type          string  `json:"type"`
	Modifier      string  `json:"modifier,omitempty"`
	BearingBefore float64 `json:"bearing_before"`
	BearingAfter  float64 `json:"bearing_after"`
	Location      Point   `json:"location"`
	Instruction   string  `json:"instruction,omitempty"`
}

// Step is one maneuver-to-maneuver segment of a leg.
type Step struct {
	Name     string
	Geometry []Point
	Distance float64
	Duration float64
	Maneuver Maneuver
}

// Length returns the declared distance, or the geometry length when the
// step declares none.
func (s Step) Length() float64 {
	if s.Distance > 0 {
		return s.Distance
	}
	return geo.Length(s.Geometry)
}

// Leg is an origin-to-waypoint part of a route.
type Leg struct {
	Summary  string
	Steps    []Step
	Distance float64
	Duration float64
}

// Length returns the declared distance, or the sum of step lengths.
func (l Leg) Length() float64 {
	if l.Distance > 0 {
		return l.Distance
	}
	var total float64
	for _, s := range l.Steps {
		total += s.Length()
	}
	return total
}

// Route is a planned route. Routes are not modified once handed to the
// engine; a reroute supplies a new value.
type Route struct {
	ID       string
	Legs     []Leg
	Distance float64
	Duration float64
	Geometry []Point
}

// Validate checks the route has at least one leg and every leg at least one
// step.
func (r *Route) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: nil route", ErrInvalidRoute)
	}
	if len(r.Legs) == 0 {
		return fmt.Errorf("%w: no legs", ErrInvalidRoute)
	}
	for i, l := range r.Legs {
		if len(l.Steps) == 0 {
			return fmt.Errorf("%w: leg %d has no steps", ErrInvalidRoute, i)
		}
	}
	return nil
}

// Step returns the step at c.
func (r *Route) Step(c Cursor) (Step, bool) {
	if !c.Valid(r) {
		return Step{}, false
	}
	return r.Legs[c.LegIndex].Steps[c.StepIndex], true
}

// Length returns the declared distance, or the sum of leg lengths.
func (r *Route) Length() float64 {
	if r.Distance > 0 {
		return r.Distance
	}
	var total float64
	for _, l := range r.Legs {
		total += l.Length()
	}
	return total
}

// SameGeometry reports whether r and other trace exactly the same steps.
func (r *Route) SameGeometry(other *Route) bool {
	if r == nil || other == nil {
		return r == other
	}
	if len(r.Legs) != len(other.Legs) {
		return false
	}
	for i := range r.Legs {
		a, b := r.Legs[i].Steps, other.Legs[i].Steps
		if len(a) != len(b) {
			return false
		}
		for j := range a {
			if !samePoints(a[j].Geometry, b[j].Geometry) {
				return false
			}
		}
	}
	return true
}

func samePoints(a, b []Point) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Cursor is the traveler's (leg, step) position within a route.
type Cursor struct {
	LegIndex  int `json:"leg_index"`
	StepIndex int `json:"step_index"`
}

// Valid reports whether c indexes a step of r.
func (c Cursor) Valid(r *Route) bool {
	if r == nil || c.LegIndex < 0 || c.LegIndex >= len(r.Legs) {
		return false
	}
	return c.StepIndex >= 0 && c.StepIndex < len(r.Legs[c.LegIndex].Steps)
}

func (c Cursor) String() string {
	return fmt.Sprintf("leg %d step %d", c.LegIndex, c.StepIndex)
}
