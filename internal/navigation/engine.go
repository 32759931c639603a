// Package navigation runs the navigation loop: every fix is measured
// against the active route on a single worker goroutine, and the results
// are handed to the dispatcher and the telemetry session.
package navigation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/wayfinder/internal/config"
	"github.com/banshee-data/wayfinder/internal/dispatch"
	"github.com/banshee-data/wayfinder/internal/geo"
	"github.com/banshee-data/wayfinder/internal/milestone"
	"github.com/banshee-data/wayfinder/internal/monitoring"
	"github.com/banshee-data/wayfinder/internal/offroute"
	"github.com/banshee-data/wayfinder/internal/progress"
	"github.com/banshee-data/wayfinder/internal/route"
	"github.com/banshee-data/wayfinder/internal/snap"
	"github.com/banshee-data/wayfinder/internal/telemetry"
	"github.com/banshee-data/wayfinder/internal/timeutil"
)

var (
	// ErrInvalidRoute is returned by Start and UpdateRoute for a route
	// without legs or steps.
	ErrInvalidRoute = route.ErrInvalidRoute
	// ErrNotRunning is returned for work submitted before Start.
	ErrNotRunning = errors.New("navigation: not running")
	// ErrEngineStopped is returned for work submitted after Stop.
	ErrEngineStopped = errors.New("navigation: engine stopped")
)

// maxDeadReckoning bounds how many intervals a silent location source is
// projected forward.
const maxDeadReckoning = 5

var logf = monitoring.Prefixed("navigation")

type status int

const (
	statusIdle status = iota
	statusRunning
	statusStopped
)

// Config assembles an Engine. Zero fields take defaults.
type Config struct {
	// Navigation holds the thresholds. Nil uses the defaults.
	Navigation *config.NavigationConfig
	Clock      timeutil.Clock
	// Sink receives telemetry events. Nil logs them.
	Sink telemetry.Sink
	// Detector overrides the configured off-route strategy.
	Detector offroute.Detector
	// Snapper overrides the configured snap setting.
	Snapper    snap.Snapper
	Dispatcher *dispatch.Dispatcher
}

// worker is the state owned by the worker goroutine.
type worker struct {
	route  *route.Route
	gen    uint64
	cursor route.Cursor

	prev    progress.RouteProgress
	hasPrev bool

	offLatched bool
	lastEdge   time.Time
	hasEdge    bool

	lastRaw   route.Fix
	hasRaw    bool
	lastRawAt time.Time

	// arrival announced but not yet reported to telemetry
	arrivalPending bool
}

// Engine is the navigation loop. All computation and every telemetry
// update happen on one worker goroutine, one job at a time, in the order
// the jobs were submitted.
type Engine struct {
	opts       config.Options
	clock      timeutil.Clock
	calc       *progress.Calculator
	advancer   progress.StepAdvancer
	detector   offroute.Detector
	snapper    snap.Snapper
	milestones *milestone.Engine
	dispatcher *dispatch.Dispatcher
	session    *telemetry.Session

	queue  *queue
	stopCh chan struct{}
	done   chan struct{}

	mu         sync.Mutex
	status     status
	generation uint64
	ticker     timeutil.Ticker
	last       progress.RouteProgress
	hasLast    bool
	sessionID  string

	w worker
}

// New validates cfg and returns an idle engine.
func New(cfg Config) (*Engine, error) {
	nav := cfg.Navigation
	if nav == nil {
		nav = config.DefaultNavigationConfig()
	}
	if err := nav.Validate(); err != nil {
		return nil, fmt.Errorf("navigation: %w", err)
	}
	opts := nav.Options()

	detector := cfg.Detector
	if detector == nil {
		d, err := offroute.New(opts.OffRouteStrategy)
		if err != nil {
			return nil, fmt.Errorf("navigation: %w", err)
		}
		detector = d
	}
	snapper := cfg.Snapper
	if snapper == nil {
		snapper = snap.New(opts.SnapToRoute)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	d := cfg.Dispatcher
	if d == nil {
		d = dispatch.New()
	}
	ms := milestone.NewEngine()
	if opts.DefaultMilestones {
		ms = milestone.NewEngine(milestone.Defaults(opts)...)
	}

	return &Engine{
		opts:  opts,
		clock: clock,
		calc:  progress.NewCalculator(opts.DeadReckoningInterval),
		advancer: progress.StepAdvancer{
			MaxTurnCompletionOffset: opts.MaxTurnCompletionOffset,
			ManeuverZoneRadius:      opts.ManeuverZoneRadius,
		},
		detector:   detector,
		snapper:    snapper,
		milestones: ms,
		dispatcher: d,
		session:    telemetry.NewSession(clock, cfg.Sink),
		queue:      newQueue(),
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}, nil
}

// Options returns the resolved thresholds.
func (e *Engine) Options() config.Options { return e.opts }

// Listeners returns the dispatcher listeners register with.
func (e *Engine) Listeners() *dispatch.Dispatcher { return e.dispatcher }

// Running reports whether the worker is running.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status == statusRunning
}

// Pending returns the number of queued jobs.
func (e *Engine) Pending() int { return e.queue.len() }

// Progress returns the most recently published snapshot.
func (e *Engine) Progress() (progress.RouteProgress, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last, e.hasLast
}

// SessionID returns the id of the active telemetry session, or "" between
// sessions. Unlike SessionState it does not wait for the worker, so
// listeners may call it.
func (e *Engine) SessionID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessionID
}

// Start begins a session on r, starting the worker on first use. Starting
// again while running ends the current session and begins a new one.
func (e *Engine) Start(r *route.Route) error {
	if err := r.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.status {
	case statusStopped:
		return ErrEngineStopped
	case statusIdle:
		e.status = statusRunning
		var ticks <-chan time.Time
		if e.opts.DeadReckoningInterval > 0 {
			e.ticker = e.clock.NewTicker(e.opts.DeadReckoningInterval)
			ticks = e.ticker.C()
		}
		go e.run(ticks)
	}
	e.generation++
	gen := e.generation
	e.queue.push(func() { e.startSession(r, gen) })
	return nil
}

// UpdateRoute replaces the active route. A route with the same geometry
// keeps the cursor; any other route starts again from its first step.
func (e *Engine) UpdateRoute(r *route.Route) error {
	if err := r.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.acceptingLocked(); err != nil {
		return err
	}
	e.generation++
	gen := e.generation
	e.queue.push(func() { e.replaceRoute(r, gen) })
	return nil
}

// Enqueue submits a fix. It never blocks and never drops.
func (e *Engine) Enqueue(fix route.Fix) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.acceptingLocked(); err != nil {
		return err
	}
	gen := e.generation
	e.queue.push(func() { e.handleFix(fix, gen) })
	return nil
}

// SuggestRoute tells the faster-route listeners about r.
func (e *Engine) SuggestRoute(r *route.Route) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.acceptingLocked(); err != nil {
		return err
	}
	e.queue.push(func() { e.dispatcher.DispatchFasterRoute(r) })
	return nil
}

// Stop drains the queue, ends the session and halts the worker. It
// returns ctx's error if ctx ends first; the worker still finishes.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	switch e.status {
	case statusIdle:
		e.status = statusStopped
		close(e.done)
	case statusRunning:
		e.status = statusStopped
		close(e.stopCh)
	}
	e.mu.Unlock()

	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AddMilestone registers m after the existing milestones.
func (e *Engine) AddMilestone(m milestone.Milestone) bool { return e.milestones.Add(m) }

// RemoveMilestone unregisters the milestone with id.
func (e *Engine) RemoveMilestone(id int) bool { return e.milestones.Remove(id) }

// RemoveAllMilestones clears every milestone.
func (e *Engine) RemoveAllMilestones() { e.milestones.RemoveAll() }

// SetMilestoneEnabled enables or disables the milestone with id.
func (e *Engine) SetMilestoneEnabled(id int, enabled bool) bool {
	return e.milestones.SetEnabled(id, enabled)
}

// Milestones returns the registered milestones.
func (e *Engine) Milestones() []milestone.Milestone { return e.milestones.Milestones() }

// SessionState returns the telemetry state once every job queued before
// the call has run.
func (e *Engine) SessionState(ctx context.Context) (telemetry.SessionState, error) {
	var st telemetry.SessionState
	if err := e.call(ctx, func() { st = e.session.State() }); err != nil {
		return telemetry.SessionState{}, err
	}
	return st, nil
}

// RecordFeedback queues a feedback event and returns its id.
func (e *Engine) RecordFeedback(ctx context.Context, feedbackType, description, source string) (string, error) {
	var id string
	if err := e.call(ctx, func() { id = e.session.RecordFeedback(feedbackType, description, source) }); err != nil {
		return "", err
	}
	return id, nil
}

// UpdateFeedback changes a queued feedback event.
func (e *Engine) UpdateFeedback(ctx context.Context, id, feedbackType, description, screenshot string) (bool, error) {
	var ok bool
	if err := e.call(ctx, func() { ok = e.session.UpdateFeedback(id, feedbackType, description, screenshot) }); err != nil {
		return false, err
	}
	return ok, nil
}

// CancelFeedback drops a queued feedback event.
func (e *Engine) CancelFeedback(ctx context.Context, id string) (bool, error) {
	var ok bool
	if err := e.call(ctx, func() { ok = e.session.CancelFeedback(id) }); err != nil {
		return false, err
	}
	return ok, nil
}

func (e *Engine) acceptingLocked() error {
	switch e.status {
	case statusIdle:
		return ErrNotRunning
	case statusStopped:
		return ErrEngineStopped
	}
	return nil
}

// call runs fn on the worker and waits for it. Callers must not read
// anything fn writes when call returns an error.
func (e *Engine) call(ctx context.Context, fn func()) error {
	ran := make(chan struct{})
	e.mu.Lock()
	if err := e.acceptingLocked(); err != nil {
		e.mu.Unlock()
		return err
	}
	e.queue.push(func() {
		defer close(ran)
		fn()
	})
	e.mu.Unlock()

	select {
	case <-ran:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) run(ticks <-chan time.Time) {
	defer close(e.done)
	for {
		e.drain()
		select {
		case <-e.queue.notify:
		case <-ticks:
			e.deadReckon()
		case <-e.stopCh:
			e.drain()
			e.finish()
			return
		}
	}
}

func (e *Engine) drain() {
	for {
		j, ok := e.queue.pop()
		if !ok {
			return
		}
		j()
	}
}

func (e *Engine) finish() {
	if e.ticker != nil {
		e.ticker.Stop()
	}
	e.session.End()
	e.setSessionID("")
	e.dispatcher.DispatchRunning(false)
	logf("stopped")
}

func (e *Engine) startSession(r *route.Route, gen uint64) {
	if e.session.Active() {
		e.session.End()
	}
	raw, hasRaw, rawAt := e.w.lastRaw, e.w.hasRaw, e.w.lastRawAt
	e.w = worker{route: r, gen: gen, lastRaw: raw, hasRaw: hasRaw, lastRawAt: rawAt}
	e.milestones.Reset()
	e.unpublish()
	e.session.Start(r)
	e.setSessionID(e.session.State().SessionID)
	logf("started on route %s", r.ID)
	e.dispatcher.DispatchRunning(true)
}

func (e *Engine) replaceRoute(r *route.Route, gen uint64) {
	same := progress.SameRoute(e.w.route, r)
	e.w.route = r
	e.w.gen = gen
	if !same {
		e.w.cursor = route.Cursor{}
		e.w.prev = progress.RouteProgress{}
		e.w.hasPrev = false
		e.w.offLatched = false
		e.w.arrivalPending = false
		e.milestones.Reset()
		logf("route replaced by %s", r.ID)
	}
	e.session.UpdateRoute(r)
}

func (e *Engine) handleFix(fix route.Fix, gen uint64) {
	if !fix.Valid() {
		logf("skipping invalid fix %.6f,%.6f", fix.Latitude, fix.Longitude)
		return
	}
	e.dispatcher.DispatchRawLocation(fix)
	e.session.OnLocation(fix)
	e.w.lastRaw = fix
	e.w.hasRaw = true
	e.w.lastRawAt = e.clock.Now()

	if e.w.route == nil {
		return
	}
	if gen != e.w.gen {
		logf("fix queued for route generation %d measured against generation %d", gen, e.w.gen)
	}
	e.cycle(fix, true)
}

// deadReckon projects the last fix forward along its heading when the
// location source has gone quiet.
func (e *Engine) deadReckon() {
	if e.w.route == nil || !e.w.hasRaw || !e.w.hasPrev {
		return
	}
	fix := e.w.lastRaw
	elapsed := e.clock.Since(e.w.lastRawAt)
	if elapsed < e.opts.DeadReckoningInterval || fix.Speed <= 0 || !fix.HasBearing() {
		return
	}
	if limit := maxDeadReckoning * e.opts.DeadReckoningInterval; elapsed > limit {
		elapsed = limit
	}
	p := geo.Destination(fix.Point(), fix.Bearing, fix.Speed*elapsed.Seconds())
	fix.Latitude, fix.Longitude = p.Lat, p.Lon
	e.cycle(fix, false)
}

// cycle measures fix and publishes the result. Projected fixes update
// progress and milestones but never change the off-route verdict or reach
// telemetry. An arrival announced on a projected fix is reported to
// telemetry with the next measured one.
func (e *Engine) cycle(fix route.Fix, measured bool) {
	w := &e.w
	var prev *progress.RouteProgress
	if w.hasPrev {
		prev = &w.prev
	}

	cursor := w.cursor
	p := e.calc.Compute(fix, cursor, w.route, prev)
	stale := prev != nil && fix.Time.Before(prev.Fix().Time)
	if !stale && e.advancer.ShouldAdvance(fix, p) {
		if next := e.advancer.Advance(cursor, w.route); next != cursor {
			cursor = next
			p = e.calc.Compute(fix, cursor, w.route, prev)
		}
	}

	edge := false
	switch {
	case !measured:
		p = p.WithOffRoute(prev != nil && prev.OffRoute())
	case e.detector.IsOffRoute(fix, p, e.opts):
		p = p.WithOffRoute(true)
		if !w.offLatched && e.cooledDown(fix.Time) {
			edge = true
			w.offLatched = true
			w.lastEdge = fix.Time
			w.hasEdge = true
		}
	default:
		w.offLatched = false
	}

	display := e.snapper.Snap(fix, p)
	p = p.WithFix(display)
	fired := e.milestones.Evaluate(prev, p)

	w.cursor = cursor
	w.prev = p
	w.hasPrev = true
	e.publish(p)

	e.dispatcher.DispatchProgress(display, p)
	for _, f := range fired {
		e.dispatcher.DispatchMilestone(f)
		if f.ID == milestone.ArrivalID {
			w.arrivalPending = true
		}
	}
	if edge {
		logf("off route at %s, %.1fm from %s", fix.Point(), p.DistanceFromRoute(), cursor)
		e.dispatcher.DispatchOffRoute(fix)
	}

	if !measured {
		return
	}
	e.session.OnProgress(p)
	if edge {
		e.session.OnOffRoute(fix)
	}
	if w.arrivalPending {
		w.arrivalPending = false
		e.session.OnArrival(p)
	}
}

// cooledDown reports whether the reroute cooldown since the last off-route
// edge has passed at fix time t. Repeated timestamps never pass it.
func (e *Engine) cooledDown(t time.Time) bool {
	if !e.w.hasEdge {
		return true
	}
	return t.Sub(e.w.lastEdge) >= e.opts.RerouteCooldown
}

func (e *Engine) publish(p progress.RouteProgress) {
	e.mu.Lock()
	e.last = p
	e.hasLast = true
	e.mu.Unlock()
}

func (e *Engine) setSessionID(id string) {
	e.mu.Lock()
	e.sessionID = id
	e.mu.Unlock()
}

func (e *Engine) unpublish() {
	e.mu.Lock()
	e.last = progress.RouteProgress{}
	e.hasLast = false
	e.mu.Unlock()
}
