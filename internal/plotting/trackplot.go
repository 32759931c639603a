// Package plotting draws PNG plots of a navigation run: the route with the
// raw and snapped fixes laid over it, and distance remaining over time.
package plotting

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/wayfinder/internal/dispatch"
	"github.com/banshee-data/wayfinder/internal/geo"
	"github.com/banshee-data/wayfinder/internal/progress"
	"github.com/banshee-data/wayfinder/internal/route"
	"github.com/banshee-data/wayfinder/internal/security"
)

// ErrNoSamples is returned by Save before anything was recorded.
var ErrNoSamples = errors.New("plotting: no samples recorded")

var (
	routeColor   = color.RGBA{R: 120, G: 120, B: 120, A: 255}
	rawColor     = color.RGBA{R: 30, G: 110, B: 220, A: 255}
	snappedColor = color.RGBA{R: 20, G: 160, B: 60, A: 255}
	offColor     = color.RGBA{R: 210, G: 40, B: 40, A: 255}
)

// TrackSample is one progress update.
type TrackSample struct {
	Time      time.Time
	Raw       geo.Point
	Display   geo.Point
	Remaining float64
	FromRoute float64
	OffRoute  bool
}

// TrackPlotter records what the engine saw during a run.
type TrackPlotter struct {
	mu      sync.Mutex
	route   *route.Route
	lastRaw geo.Point
	hasRaw  bool
	samples []TrackSample
	edges   []geo.Point

	d       *dispatch.Dispatcher
	handles [3]dispatch.Handle
}

func NewTrackPlotter() *TrackPlotter {
	return &TrackPlotter{}
}

// Attach registers the plotter's listeners on d.
func (tp *TrackPlotter) Attach(d *dispatch.Dispatcher) {
	tp.d = d
	tp.handles[0] = d.RawLocation.Add(tp.onRaw)
	tp.handles[1] = d.Progress.Add(tp.onProgress)
	tp.handles[2] = d.OffRoute.Add(tp.onOffRoute)
}

// Detach removes the listeners registered by Attach.
func (tp *TrackPlotter) Detach() {
	if tp.d == nil {
		return
	}
	tp.d.RawLocation.Remove(tp.handles[0])
	tp.d.Progress.Remove(tp.handles[1])
	tp.d.OffRoute.Remove(tp.handles[2])
	tp.d = nil
}

func (tp *TrackPlotter) onRaw(fix route.Fix) {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	tp.lastRaw = fix.Point()
	tp.hasRaw = true
}

func (tp *TrackPlotter) onProgress(fix route.Fix, p progress.RouteProgress) {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	if r := p.Route(); r != nil {
		tp.route = r
	}
	raw := fix.Point()
	if tp.hasRaw {
		raw = tp.lastRaw
	}
	tp.samples = append(tp.samples, TrackSample{
		Time:      fix.Time,
		Raw:       raw,
		Display:   fix.Point(),
		Remaining: p.RouteDistanceRemaining(),
		FromRoute: p.DistanceFromRoute(),
		OffRoute:  p.OffRoute(),
	})
}

func (tp *TrackPlotter) onOffRoute(fix route.Fix) {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	tp.edges = append(tp.edges, fix.Point())
}

// Samples returns a copy of the recorded samples.
func (tp *TrackPlotter) Samples() []TrackSample {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	return append([]TrackSample(nil), tp.samples...)
}

// Save writes the track and progress plots into outputDir and returns the
// paths written. File names carry the route id when a route was seen.
func (tp *TrackPlotter) Save(outputDir string) ([]string, error) {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	if len(tp.samples) == 0 {
		return nil, ErrNoSamples
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	track, err := tp.trackPlot()
	if err != nil {
		return nil, err
	}
	suffix := ""
	if tp.route != nil {
		suffix = "-" + security.SanitizeFilename(tp.route.ID)
	}

	trackFile := filepath.Join(outputDir, "track"+suffix+".png")
	if err := track.Save(8*vg.Inch, 8*vg.Inch, trackFile); err != nil {
		return nil, fmt.Errorf("save track plot: %w", err)
	}

	prog, err := tp.progressPlot()
	if err != nil {
		return nil, err
	}
	progressFile := filepath.Join(outputDir, "progress"+suffix+".png")
	if err := prog.Save(14*vg.Inch, 6*vg.Inch, progressFile); err != nil {
		return nil, fmt.Errorf("save progress plot: %w", err)
	}
	return []string{trackFile, progressFile}, nil
}

// origin anchors the local east/north frame at the start of the route, or
// at the first fix when no route was seen.
func (tp *TrackPlotter) origin() geo.Point {
	if tp.route != nil && len(tp.route.Geometry) > 0 {
		return tp.route.Geometry[0]
	}
	return tp.samples[0].Raw
}

// local returns the east and north offsets of p from o in meters.
func local(o, p geo.Point) plotter.XY {
	d := geo.Distance(o, p)
	if d == 0 {
		return plotter.XY{}
	}
	b := geo.Bearing(o, p) * math.Pi / 180
	return plotter.XY{X: d * math.Sin(b), Y: d * math.Cos(b)}
}

func (tp *TrackPlotter) trackPlot() (*plot.Plot, error) {
	o := tp.origin()
	p := plot.New()
	p.Title.Text = "Track"
	p.X.Label.Text = "East (m)"
	p.Y.Label.Text = "North (m)"
	if tp.route != nil {
		p.Title.Text = fmt.Sprintf("Track - route %s", tp.route.ID)
		line := make(plotter.XYs, 0, len(tp.route.Geometry))
		for _, pt := range tp.route.Geometry {
			line = append(line, local(o, pt))
		}
		l, err := plotter.NewLine(line)
		if err != nil {
			return nil, fmt.Errorf("route line: %w", err)
		}
		l.Color = routeColor
		l.Width = vg.Points(3)
		p.Add(l)
		p.Legend.Add("route", l)
	}

	raw := make(plotter.XYs, 0, len(tp.samples))
	snapped := make(plotter.XYs, 0, len(tp.samples))
	for _, s := range tp.samples {
		raw = append(raw, local(o, s.Raw))
		snapped = append(snapped, local(o, s.Display))
	}
	if err := addScatter(p, "raw", raw, rawColor, draw.CircleGlyph{}); err != nil {
		return nil, err
	}
	if err := addScatter(p, "displayed", snapped, snappedColor, draw.CrossGlyph{}); err != nil {
		return nil, err
	}
	if len(tp.edges) > 0 {
		edges := make(plotter.XYs, 0, len(tp.edges))
		for _, e := range tp.edges {
			edges = append(edges, local(o, e))
		}
		if err := addScatter(p, "off route", edges, offColor, draw.TriangleGlyph{}); err != nil {
			return nil, err
		}
	}
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

func addScatter(p *plot.Plot, name string, pts plotter.XYs, c color.Color, g draw.GlyphDrawer) error {
	s, err := plotter.NewScatter(pts)
	if err != nil {
		return fmt.Errorf("%s scatter: %w", name, err)
	}
	s.GlyphStyle.Color = c
	s.GlyphStyle.Shape = g
	s.GlyphStyle.Radius = vg.Points(2.5)
	p.Add(s)
	p.Legend.Add(name, s)
	return nil
}

func (tp *TrackPlotter) progressPlot() (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Progress"
	p.X.Label.Text = "Elapsed (s)"
	p.Y.Label.Text = "Distance (m)"

	start := tp.samples[0].Time
	remaining := make(plotter.XYs, 0, len(tp.samples))
	fromRoute := make(plotter.XYs, 0, len(tp.samples))
	for _, s := range tp.samples {
		x := s.Time.Sub(start).Seconds()
		remaining = append(remaining, plotter.XY{X: x, Y: s.Remaining})
		fromRoute = append(fromRoute, plotter.XY{X: x, Y: s.FromRoute})
	}

	rl, err := plotter.NewLine(remaining)
	if err != nil {
		return nil, fmt.Errorf("remaining line: %w", err)
	}
	rl.Color = snappedColor
	rl.Width = vg.Points(1)
	p.Add(rl)
	p.Legend.Add("remaining", rl)

	fl, err := plotter.NewLine(fromRoute)
	if err != nil {
		return nil, fmt.Errorf("from route line: %w", err)
	}
	fl.Color = offColor
	fl.Width = vg.Points(1)
	p.Add(fl)
	p.Legend.Add("from route", fl)

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}
