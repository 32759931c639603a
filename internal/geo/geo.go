// Package geo holds the great-circle and planar geometry used to place a fix
// on a route polyline.
package geo

import (
	"encoding/json"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r2"
)

// EarthRadiusMeters is the mean earth radius used for haversine distances.
const EarthRadiusMeters = 6371000.0

// Point is a WGS84 position. It encodes to JSON as a GeoJSON [lon, lat] pair.
type Point struct {
	Lat float64
	Lon float64
}

// Valid reports whether p is a finite, in-range coordinate.
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lon, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

func (p Point) String() string {
	return fmt.Sprintf("(%.6f,%.6f)", p.Lat, p.Lon)
}

// MarshalJSON encodes p as [lon, lat].
func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{p.Lon, p.Lat})
}

// UnmarshalJSON decodes a [lon, lat] pair. Extra elements (altitude) are ignored.
func (p *Point) UnmarshalJSON(data []byte) error {
	var pair []float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("point: %w", err)
	}
	if len(pair) < 2 {
		return fmt.Errorf("point: expected [lon, lat], got %d values", len(pair))
	}
	p.Lon, p.Lat = pair[0], pair[1]
	return nil
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
func degrees(rad float64) float64 { return rad * 180 / math.Pi }

// Distance returns the haversine distance between a and b in meters.
func Distance(a, b Point) float64 {
	phi1 := radians(a.Lat)
	phi2 := radians(b.Lat)
	deltaPhi := radians(b.Lat - a.Lat)
	deltaLambda := radians(b.Lon - a.Lon)

	h := math.Sin(deltaPhi/2)*math.Sin(deltaPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(deltaLambda/2)*math.Sin(deltaLambda/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusMeters * c
}

// Bearing returns the initial bearing from a to b in degrees [0, 360).
func Bearing(a, b Point) float64 {
	phi1 := radians(a.Lat)
	phi2 := radians(b.Lat)
	deltaLambda := radians(b.Lon - a.Lon)

	x := math.Sin(deltaLambda) * math.Cos(phi2)
	y := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(deltaLambda)

	return NormalizeBearing(degrees(math.Atan2(x, y)))
}

// NormalizeBearing wraps b into [0, 360).
func NormalizeBearing(b float64) float64 {
	b = math.Mod(b, 360)
	if b < 0 {
		b += 360
	}
	return b
}

// BearingDifference returns the smaller angle between two bearings, in
// [0, 180]. Both inputs are normalized first.
func BearingDifference(a, b float64) float64 {
	d := math.Abs(NormalizeBearing(a) - NormalizeBearing(b))
	if d > 180 {
		d = 360 - d
	}
	return d
}

// Destination returns the point reached by travelling dist meters from p
// on the given initial bearing.
func Destination(p Point, bearing, dist float64) Point {
	delta := dist / EarthRadiusMeters
	theta := radians(bearing)
	phi1 := radians(p.Lat)
	lambda1 := radians(p.Lon)

	phi2 := math.Asin(math.Sin(phi1)*math.Cos(delta) + math.Cos(phi1)*math.Sin(delta)*math.Cos(theta))
	lambda2 := lambda1 + math.Atan2(math.Sin(theta)*math.Sin(delta)*math.Cos(phi1),
		math.Cos(delta)-math.Sin(phi1)*math.Sin(phi2))

	return Point{Lat: degrees(phi2), Lon: NormalizeLongitude(degrees(lambda2))}
}

// NormalizeLongitude wraps lon into [-180, 180).
func NormalizeLongitude(lon float64) float64 {
	return math.Mod(lon+540, 360) - 180
}

// Length returns the haversine length of line in meters.
func Length(line []Point) float64 {
	if len(line) < 2 {
		return 0
	}
	segs := make([]float64, len(line)-1)
	for i := 1; i < len(line); i++ {
		segs[i-1] = Distance(line[i-1], line[i])
	}
	return floats.Sum(segs)
}

// plane is a local equirectangular projection in meters around an origin.
// Good enough for snapping over the few hundred meters a step spans.
type plane struct {
	origin Point
	kx, ky float64
}

func newPlane(origin Point) plane {
	ky := EarthRadiusMeters * math.Pi / 180
	return plane{origin: origin, kx: ky * math.Cos(radians(origin.Lat)), ky: ky}
}

func (pl plane) project(p Point) r2.Vec {
	dLon := NormalizeLongitude(p.Lon - pl.origin.Lon)
	return r2.Vec{X: dLon * pl.kx, Y: (p.Lat - pl.origin.Lat) * pl.ky}
}

func (pl plane) unproject(v r2.Vec) Point {
	lon := pl.origin.Lon
	if pl.kx != 0 {
		lon += v.X / pl.kx
	}
	return Point{Lat: pl.origin.Lat + v.Y/pl.ky, Lon: NormalizeLongitude(lon)}
}

// Snapped is the result of placing a point on a polyline.
type Snapped struct {
	// Point is the closest point on the line.
	Point Point
	// Index is the index of the segment start vertex the point lies on.
	Index int
	// Distance is the haversine distance from the query point to Point.
	Distance float64
}

// NearestPointOnLine returns the closest point on line to p. Ties are broken
// by the first segment encountered. A single-vertex line snaps to that
// vertex; an empty line returns ok=false.
func NearestPointOnLine(line []Point, p Point) (Snapped, bool) {
	switch len(line) {
	case 0:
		return Snapped{}, false
	case 1:
		return Snapped{Point: line[0], Index: 0, Distance: Distance(p, line[0])}, true
	}

	pl := newPlane(p)
	best := Snapped{Index: -1}
	bestSq := math.Inf(1)
	for i := 0; i < len(line)-1; i++ {
		a, b := line[i], line[i+1]
		va, vb := pl.project(a), pl.project(b)
		seg := r2.Sub(vb, va)
		denom := r2.Dot(seg, seg)

		// query point is the plane origin
		var t float64
		if denom > 0 {
			t = r2.Dot(r2.Scale(-1, va), seg) / denom
		}

		var snapped Point
		var proj r2.Vec
		switch {
		case t <= 0:
			snapped, proj = a, va
		case t >= 1:
			snapped, proj = b, vb
		default:
			proj = r2.Add(va, r2.Scale(t, seg))
			snapped = pl.unproject(proj)
		}

		if sq := r2.Dot(proj, proj); sq < bestSq {
			bestSq = sq
			best = Snapped{Point: snapped, Index: i}
		}
	}
	best.Distance = Distance(p, best.Point)
	return best, true
}

// SliceFrom returns the part of line from the snapped point to the final
// vertex. When the snapped point is the final vertex the result holds only
// that point and has zero length.
func SliceFrom(line []Point, s Snapped) []Point {
	if len(line) == 0 {
		return nil
	}
	last := line[len(line)-1]
	if s.Point == last || s.Index >= len(line)-1 {
		return []Point{last}
	}
	out := make([]Point, 0, len(line)-s.Index)
	out = append(out, s.Point)
	for _, v := range line[s.Index+1:] {
		if v == out[len(out)-1] {
			continue
		}
		out = append(out, v)
	}
	return out
}
