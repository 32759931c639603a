package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/wayfinder/internal/geo"
)

func TestTwoStepRoute(t *testing.T) {
	t.Parallel()
	r := TwoStepRoute()
	require.NoError(t, r.Validate())
	require.Len(t, r.Legs, 1)
	require.Len(t, r.Legs[0].Steps, 2)

	s0, s1 := r.Legs[0].Steps[0], r.Legs[0].Steps[1]
	assert.InDelta(t, 100, geo.Length(s0.Geometry), 1e-3)
	assert.InDelta(t, 50, geo.Length(s1.Geometry), 1e-3)
	assert.Equal(t, s0.Geometry[1], s1.Geometry[0])
	assert.Equal(t, 90.0, s1.Maneuver.BearingAfter)
	assert.Equal(t, 150.0, r.Distance)
}

func TestAlongIncludesEnds(t *testing.T) {
	t.Parallel()
	line := TwoStepRoute().Legs[0].Steps[0].Geometry
	pts := Along(line, 25)
	require.Len(t, pts, 5)
	assert.Equal(t, line[0], pts[0])
	assert.Equal(t, line[1], pts[4])
}

func TestWalkHeadings(t *testing.T) {
	t.Parallel()
	pts := Along(TwoStepRoute().Legs[0].Steps[0].Geometry, 50)
	fixes := Walk(pts, Epoch)
	require.Len(t, fixes, 3)
	for _, f := range fixes {
		assert.InDelta(t, 0, geo.BearingDifference(f.Bearing, 0), 0.01)
	}
	assert.Equal(t, Epoch.Add(2e9), fixes[2].Time)
}
