package offroute

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/wayfinder/internal/config"
	"github.com/banshee-data/wayfinder/internal/geo"
	"github.com/banshee-data/wayfinder/internal/progress"
	"github.com/banshee-data/wayfinder/internal/route"
	"github.com/banshee-data/wayfinder/internal/testutil"
)

// offsetFix is a fix beside the first step, meters east of its midpoint,
// heading north.
func offsetFix(r *route.Route, meters float64, at time.Time) route.Fix {
	mid := geo.Destination(r.Legs[0].Steps[0].Geometry[0], 0, 50)
	return testutil.Fix(geo.Destination(mid, 90, meters), 0, at)
}

func TestNew(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		want Detector
	}{
		{"", DistanceDetector{}},
		{config.StrategyDistance, DistanceDetector{}},
		{config.StrategyDrift, DriftTolerantDetector{}},
		{config.StrategyDisabled, Disabled{}},
	}
	for _, tt := range tests {
		d, err := New(tt.name)
		require.NoError(t, err)
		assert.Equal(t, tt.want, d)
	}

	_, err := New("hybrid")
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestDistanceDetector(t *testing.T) {
	t.Parallel()
	r := testutil.TwoStepRoute()
	opts := config.DefaultOptions()
	calc := progress.NewCalculator(opts.DeadReckoningInterval)
	d := DistanceDetector{}

	tests := []struct {
		name   string
		meters float64
		want   bool
	}{
		{"on the line", 0, false},
		{"inside threshold", 30, false},
		{"just inside", 49.5, false},
		{"beyond threshold", 80, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := offsetFix(r, tt.meters, testutil.Epoch)
			p := calc.Compute(f, route.Cursor{}, r, nil)
			assert.Equal(t, tt.want, d.IsOffRoute(f, p, opts))
		})
	}

	t.Run("pure", func(t *testing.T) {
		f := offsetFix(r, 80, testutil.Epoch)
		p := calc.Compute(f, route.Cursor{}, r, nil)
		for i := 0; i < 5; i++ {
			assert.True(t, d.IsOffRoute(f, p, opts))
		}
	})

	t.Run("no route", func(t *testing.T) {
		assert.False(t, d.IsOffRoute(route.Fix{}, progress.RouteProgress{}, opts))
	})
}

func TestDriftTolerantDetector(t *testing.T) {
	t.Parallel()
	r := testutil.TwoStepRoute()
	opts := config.DefaultOptions()
	opts.MinConsecutiveOffRoute = 3
	calc := progress.NewCalculator(opts.DeadReckoningInterval)
	d := DriftTolerantDetector{}

	run := func(offsets []float64, accuracy float64) []bool {
		var prev *progress.RouteProgress
		out := make([]bool, 0, len(offsets))
		for i, m := range offsets {
			f := offsetFix(r, m, testutil.Epoch.Add(time.Duration(i)*time.Second))
			f.Accuracy = accuracy
			p := calc.Compute(f, route.Cursor{}, r, prev)
			out = append(out, d.IsOffRoute(f, p, opts))
			prev = &p
		}
		return out
	}

	t.Run("needs consecutive readings", func(t *testing.T) {
		got := run([]float64{80, 80, 80, 80}, 5)
		assert.Equal(t, []bool{false, false, true, true}, got)
	})

	t.Run("single spike ignored", func(t *testing.T) {
		got := run([]float64{80, 80, 0, 80, 80}, 5)
		assert.Equal(t, []bool{false, false, false, false, false}, got)
	})

	t.Run("poor accuracy widens threshold", func(t *testing.T) {
		got := run([]float64{80, 80, 80, 80}, 40)
		assert.Equal(t, []bool{false, false, false, false}, got)
	})

	t.Run("unusable accuracy", func(t *testing.T) {
		assert.Equal(t, []bool{false, false, false, false}, run([]float64{0, 0, 0, 0}, math.NaN()))
		assert.Equal(t, []bool{false, false, false, false}, run([]float64{0, 0, 0, 0}, math.Inf(1)))
		assert.Equal(t, []bool{false, false, true, true}, run([]float64{80, 80, 80, 80}, math.NaN()))
	})

	t.Run("no route", func(t *testing.T) {
		assert.False(t, d.IsOffRoute(route.Fix{}, progress.RouteProgress{}, opts))
	})
}

func TestDisabled(t *testing.T) {
	t.Parallel()
	r := testutil.TwoStepRoute()
	f := offsetFix(r, 500, testutil.Epoch)
	p := progress.New(r, route.Cursor{}, f)
	assert.False(t, Disabled{}.IsOffRoute(f, p, config.DefaultOptions()))
}
