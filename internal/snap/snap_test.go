package snap

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/banshee-data/wayfinder/internal/geo"
	"github.com/banshee-data/wayfinder/internal/progress"
	"github.com/banshee-data/wayfinder/internal/route"
	"github.com/banshee-data/wayfinder/internal/testutil"
)

func TestNew(t *testing.T) {
	t.Parallel()
	assert.Equal(t, ToRoute{}, New(true))
	assert.Equal(t, Passthrough{}, New(false))
}

func TestToRoute(t *testing.T) {
	t.Parallel()
	r := testutil.TwoStepRoute()
	start := r.Legs[0].Steps[0].Geometry[0]
	beside := geo.Destination(geo.Destination(start, 0, 50), 90, 8)

	t.Run("moves onto line and aligns bearing", func(t *testing.T) {
		f := testutil.Fix(beside, 12, testutil.Epoch)
		p := progress.New(r, route.Cursor{}, f)
		got := ToRoute{}.Snap(f, p)
		assert.Equal(t, p.SnappedPoint(), got.Point())
		assert.InDelta(t, 0, geo.BearingDifference(got.Bearing, 0), 1e-6)
		assert.Equal(t, f.Time, got.Time)
		assert.Equal(t, f.Speed, got.Speed)
	})

	t.Run("keeps bearing when far from route heading", func(t *testing.T) {
		f := testutil.Fix(beside, 120, testutil.Epoch)
		got := ToRoute{}.Snap(f, progress.New(r, route.Cursor{}, f))
		assert.Equal(t, 120.0, got.Bearing)
	})

	t.Run("off-route fix untouched", func(t *testing.T) {
		f := testutil.Fix(beside, 12, testutil.Epoch)
		p := progress.New(r, route.Cursor{}, f).WithOffRoute(true)
		assert.Equal(t, f, ToRoute{}.Snap(f, p))
	})

	t.Run("no route", func(t *testing.T) {
		f := testutil.Fix(beside, 12, testutil.Epoch)
		assert.Equal(t, f, ToRoute{}.Snap(f, progress.RouteProgress{}))
	})
}

func TestPassthrough(t *testing.T) {
	t.Parallel()
	r := testutil.TwoStepRoute()
	f := testutil.Fix(geo.Destination(testutil.Origin, 90, 10), 33, testutil.Epoch)
	assert.Equal(t, f, Passthrough{}.Snap(f, progress.New(r, route.Cursor{}, f)))
}
