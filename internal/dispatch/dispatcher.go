package dispatch

import (
	"github.com/banshee-data/wayfinder/internal/milestone"
	"github.com/banshee-data/wayfinder/internal/progress"
	"github.com/banshee-data/wayfinder/internal/route"
)

type (
	// RunningListener hears navigation start (true) and end (false).
	RunningListener func(running bool)
	// ProgressListener hears every processed cycle.
	ProgressListener func(fix route.Fix, p progress.RouteProgress)
	// MilestoneListener hears fired milestones.
	MilestoneListener func(p progress.RouteProgress, instruction string, id int)
	// OffRouteListener hears the on-to-off route edge.
	OffRouteListener func(fix route.Fix)
	// FasterRouteListener hears of a faster alternative route.
	FasterRouteListener func(r *route.Route)
	// RawLocationListener hears every fix as received, before processing.
	RawLocationListener func(fix route.Fix)
)

// Dispatcher holds one registry per listener category.
type Dispatcher struct {
	Running     *Registry[RunningListener]
	Progress    *Registry[ProgressListener]
	Milestone   *Registry[MilestoneListener]
	OffRoute    *Registry[OffRouteListener]
	FasterRoute *Registry[FasterRouteListener]
	RawLocation *Registry[RawLocationListener]
}

// New returns a dispatcher with empty registries.
func New() *Dispatcher {
	return &Dispatcher{
		Running:     NewRegistry[RunningListener]("running"),
		Progress:    NewRegistry[ProgressListener]("progress"),
		Milestone:   NewRegistry[MilestoneListener]("milestone"),
		OffRoute:    NewRegistry[OffRouteListener]("off-route"),
		FasterRoute: NewRegistry[FasterRouteListener]("faster-route"),
		RawLocation: NewRegistry[RawLocationListener]("raw-location"),
	}
}

// RemoveAll clears every category.
func (d *Dispatcher) RemoveAll() {
	d.Running.RemoveAll()
	d.Progress.RemoveAll()
	d.Milestone.RemoveAll()
	d.OffRoute.RemoveAll()
	d.FasterRoute.RemoveAll()
	d.RawLocation.RemoveAll()
}

func (d *Dispatcher) DispatchRunning(running bool) {
	d.Running.Each(func(l RunningListener) { l(running) })
}

func (d *Dispatcher) DispatchProgress(fix route.Fix, p progress.RouteProgress) {
	d.Progress.Each(func(l ProgressListener) { l(fix, p) })
}

// DispatchMilestone delivers f. Once arrival has been announced the
// off-route listeners are dropped so nothing reroutes at the destination.
func (d *Dispatcher) DispatchMilestone(f milestone.Fired) {
	d.Milestone.Each(func(l MilestoneListener) { l(f.Progress, f.Instruction, f.ID) })
	if f.ID == milestone.ArrivalID {
		d.OffRoute.RemoveAll()
	}
}

func (d *Dispatcher) DispatchOffRoute(fix route.Fix) {
	d.OffRoute.Each(func(l OffRouteListener) { l(fix) })
}

func (d *Dispatcher) DispatchFasterRoute(r *route.Route) {
	d.FasterRoute.Each(func(l FasterRouteListener) { l(r) })
}

func (d *Dispatcher) DispatchRawLocation(fix route.Fix) {
	d.RawLocation.Each(func(l RawLocationListener) { l(fix) })
}
