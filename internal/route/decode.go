package route

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// Directions response documents follow the Mapbox/OSRM directions shape with
// GeoJSON geometries.
type directionsDoc struct {
	UUID   string     `json:"uuid"`
	Code   string     `json:"code"`
	Routes []routeDoc `json:"routes"`
}

type lineString struct {
	Coordinates []Point `json:"coordinates"`
}

type routeDoc struct {
	Distance float64    `json:"distance"`
	Duration float64    `json:"duration"`
	Geometry lineString `json:"geometry"`
	Legs     []legDoc   `json:"legs"`
}

type legDoc struct {
	Summary  string    `json:"summary"`
	Distance float64   `json:"distance"`
	Duration float64   `json:"duration"`
	Steps    []stepDoc `json:"steps"`
}

type stepDoc struct {
	Name     string     `json:"name"`
	Distance float64    `json:"distance"`
	Duration float64    `json:"duration"`
	Geometry lineString `json:"geometry"`
	Maneuver Maneuver   `json:"maneuver"`
}

// Decode reads a directions document and returns all of its routes. Routes
// are given the document uuid suffixed with their index, or a fresh uuid
// when the document carries none.
func Decode(r io.Reader) ([]*Route, error) {
	var doc directionsDoc
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode directions: %w", err)
	}
	if doc.Code != "" && doc.Code != "Ok" {
		return nil, fmt.Errorf("%w: directions code %q", ErrInvalidRoute, doc.Code)
	}
	if len(doc.Routes) == 0 {
		return nil, fmt.Errorf("%w: directions contain no routes", ErrInvalidRoute)
	}

	base := doc.UUID
	if base == "" {
		base = uuid.NewString()
	}

	routes := make([]*Route, 0, len(doc.Routes))
	for i, rd := range doc.Routes {
		rt := &Route{
			ID:       fmt.Sprintf("%s-%d", base, i),
			Distance: rd.Distance,
			Duration: rd.Duration,
			Geometry: rd.Geometry.Coordinates,
			Legs:     make([]Leg, 0, len(rd.Legs)),
		}
		for _, ld := range rd.Legs {
			leg := Leg{
				Summary:  ld.Summary,
				Distance: ld.Distance,
				Duration: ld.Duration,
				Steps:    make([]Step, 0, len(ld.Steps)),
			}
			for _, sd := range ld.Steps {
				leg.Steps = append(leg.Steps, Step{
					Name:     sd.Name,
					Geometry: sd.Geometry.Coordinates,
					Distance: sd.Distance,
					Duration: sd.Duration,
					Maneuver: sd.Maneuver,
				})
			}
			rt.Legs = append(rt.Legs, leg)
		}
		if err := rt.Validate(); err != nil {
			return nil, fmt.Errorf("route %d: %w", i, err)
		}
		routes = append(routes, rt)
	}
	return routes, nil
}

// DecodeFirst returns the primary route of a directions document.
func DecodeFirst(r io.Reader) (*Route, error) {
	routes, err := Decode(r)
	if err != nil {
		return nil, err
	}
	return routes[0], nil
}
