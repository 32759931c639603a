package plotting

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/wayfinder/internal/geo"
	"github.com/banshee-data/wayfinder/internal/navigation"
	"github.com/banshee-data/wayfinder/internal/testutil"
	"github.com/banshee-data/wayfinder/internal/timeutil"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func TestSaveWithoutSamples(t *testing.T) {
	t.Parallel()
	tp := NewTrackPlotter()
	_, err := tp.Save(t.TempDir())
	assert.ErrorIs(t, err, ErrNoSamples)
}

func TestLocalFrame(t *testing.T) {
	t.Parallel()
	o := testutil.Origin
	assert.Equal(t, 0.0, local(o, o).X)

	north := local(o, geo.Destination(o, 0, 100))
	assert.InDelta(t, 0, north.X, 0.01)
	assert.InDelta(t, 100, north.Y, 0.01)

	east := local(o, geo.Destination(o, 90, 50))
	assert.InDelta(t, 50, east.X, 0.01)
	assert.InDelta(t, 0, east.Y, 0.01)
}

func TestRecordAndSave(t *testing.T) {
	t.Parallel()
	engine, err := navigation.New(navigation.Config{Clock: timeutil.NewMockClock(testutil.Epoch)})
	require.NoError(t, err)
	defer engine.Stop(context.Background())

	tp := NewTrackPlotter()
	tp.Attach(engine.Listeners())

	r := testutil.TwoStepRoute()
	fixes := testutil.Walk(testutil.Along(r.Geometry, 10), testutil.Epoch)
	// one fix well away from the route
	fixes = append(fixes, testutil.Fix(geo.Destination(r.Geometry[len(r.Geometry)-1], 180, 200), 180, fixes[len(fixes)-1].Time.Add(time.Second)))

	require.NoError(t, engine.Start(r))
	for _, f := range fixes {
		require.NoError(t, engine.Enqueue(f))
	}
	require.Eventually(t, func() bool { return len(tp.Samples()) == len(fixes) }, 2*time.Second, 5*time.Millisecond)
	tp.Detach()

	samples := tp.Samples()
	assert.Greater(t, samples[0].Remaining, samples[len(samples)-2].Remaining)
	assert.Greater(t, samples[len(samples)-1].FromRoute, 100.0)

	dir := t.TempDir()
	paths, err := tp.Save(dir)
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, filepath.Join(dir, "track-"+r.ID+".png"), paths[0])
	for _, p := range paths {
		data, err := os.ReadFile(p)
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(data, pngMagic), p)
	}

	// detached plotters stop recording
	require.NoError(t, engine.Enqueue(fixes[0]))
	_, err = engine.SessionState(context.Background())
	require.NoError(t, err)
	assert.Len(t, tp.Samples(), len(fixes))
}
