package dispatch

import (
	"bytes"
	"fmt"
	"log"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/wayfinder/internal/milestone"
	"github.com/banshee-data/wayfinder/internal/monitoring"
	"github.com/banshee-data/wayfinder/internal/progress"
	"github.com/banshee-data/wayfinder/internal/route"
	"github.com/banshee-data/wayfinder/internal/testutil"
)

// captureLog redirects monitoring output for the duration of the test.
func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var mu sync.Mutex
	var buf bytes.Buffer
	monitoring.SetLogger(func(format string, v ...interface{}) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(&buf, format+"\n", v...)
	})
	t.Cleanup(func() { monitoring.SetLogger(log.Printf) })
	return &buf
}

func TestRegistryIdentityIsTheHandle(t *testing.T) {
	captureLog(t)
	r := NewRegistry[func() int]("test")
	calls := 0
	l := func() int { calls++; return calls }

	h1 := r.Add(l)
	h2 := r.Add(l)
	assert.NotEqual(t, h1, h2)
	assert.Equal(t, 2, r.Len())
	r.Each(func(f func() int) { f() })
	assert.Equal(t, 2, calls)

	// a fixed handle makes adding the same listener idempotent
	r.RemoveAll()
	require.True(t, r.Register("plotter", l))
	assert.False(t, r.Register("plotter", l))
	assert.Equal(t, 1, r.Len())
}

func TestRegistryOrderAndIdempotence(t *testing.T) {
	buf := captureLog(t)
	r := NewRegistry[func() string]("test")

	h1 := r.Add(func() string { return "a" })
	h2 := r.Add(func() string { return "b" })
	require.True(t, r.Register("fixed", func() string { return "c" }))
	assert.False(t, r.Register("fixed", func() string { return "dup" }))
	assert.Contains(t, buf.String(), "WARN dispatch: test listener fixed already registered")
	assert.NotEqual(t, h1, h2)
	assert.Equal(t, 3, r.Len())

	var got []string
	r.Each(func(f func() string) { got = append(got, f()) })
	assert.Equal(t, []string{"a", "b", "c"}, got)

	assert.True(t, r.Remove(h1))
	assert.False(t, r.Remove(h1))
	assert.Contains(t, buf.String(), "not registered")

	got = nil
	r.Each(func(f func() string) { got = append(got, f()) })
	assert.Equal(t, []string{"b", "c"}, got)
	assert.Equal(t, "test(2)", r.String())

	r.RemoveAll()
	assert.Equal(t, 0, r.Len())
}

func TestRegistryIsolatesPanics(t *testing.T) {
	buf := captureLog(t)
	r := NewRegistry[func()]("progress")
	var ran []int
	r.Add(func() { ran = append(ran, 1) })
	r.Add(func() { panic("boom") })
	r.Add(func() { ran = append(ran, 3) })

	assert.NotPanics(t, func() { r.Each(func(f func()) { f() }) })
	assert.Equal(t, []int{1, 3}, ran)
	assert.Contains(t, buf.String(), "progress listener panicked: boom")

	// the next cycle still reaches everyone
	r.Each(func(f func()) { f() })
	assert.Equal(t, []int{1, 3, 1, 3}, ran)
}

func TestRegistryListenerMayRemoveItself(t *testing.T) {
	r := NewRegistry[func()]("running")
	var h Handle
	calls := 0
	h = r.Add(func() {
		calls++
		r.Remove(h)
	})
	r.Each(func(f func()) { f() })
	r.Each(func(f func()) { f() })
	assert.Equal(t, 1, calls)
}

func TestDispatcherFanOut(t *testing.T) {
	t.Parallel()
	d := New()
	rt := testutil.TwoStepRoute()
	fix := testutil.Fix(testutil.Origin, 0, testutil.Epoch)
	p := progress.New(rt, route.Cursor{}, fix)

	var events []string
	d.Running.Add(func(running bool) { events = append(events, fmt.Sprint("running ", running)) })
	d.Progress.Add(func(f route.Fix, got progress.RouteProgress) {
		events = append(events, fmt.Sprintf("progress %d", got.Sequence()))
	})
	d.Milestone.Add(func(_ progress.RouteProgress, text string, id int) {
		events = append(events, fmt.Sprintf("milestone %d %s", id, text))
	})
	d.OffRoute.Add(func(route.Fix) { events = append(events, "off-route") })
	d.FasterRoute.Add(func(r *route.Route) { events = append(events, "faster "+r.ID) })
	d.RawLocation.Add(func(route.Fix) { events = append(events, "raw") })

	d.DispatchRunning(true)
	d.DispatchRawLocation(fix)
	d.DispatchProgress(fix, p)
	d.DispatchMilestone(milestone.Fired{ID: milestone.NewStepID, Instruction: "go", Progress: p})
	d.DispatchOffRoute(fix)
	d.DispatchFasterRoute(&route.Route{ID: "r2"})
	d.DispatchRunning(false)

	assert.Equal(t, []string{
		"running true", "raw", "progress 1", "milestone 1 go", "off-route", "faster r2", "running false",
	}, events)

	d.RemoveAll()
	d.DispatchRunning(true)
	assert.Len(t, events, 7)
}

func TestArrivalClearsOffRouteListeners(t *testing.T) {
	t.Parallel()
	d := New()
	offRoute := 0
	d.OffRoute.Add(func(route.Fix) { offRoute++ })

	d.DispatchMilestone(milestone.Fired{ID: milestone.UrgentTurnID})
	d.DispatchOffRoute(route.Fix{})
	assert.Equal(t, 1, offRoute)

	d.DispatchMilestone(milestone.Fired{ID: milestone.ArrivalID})
	d.DispatchOffRoute(route.Fix{})
	assert.Equal(t, 1, offRoute)
	assert.Equal(t, 0, d.OffRoute.Len())
}
