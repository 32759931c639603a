// Package offroute decides whether a traveler has left the planned route.
// Detectors are pure: the engine tracks the on/off edges.
package offroute

import (
	"fmt"

	"github.com/banshee-data/wayfinder/internal/config"
	"github.com/banshee-data/wayfinder/internal/progress"
	"github.com/banshee-data/wayfinder/internal/route"
)

// Detector reports whether fix, placed by p, is off the route.
type Detector interface {
	IsOffRoute(fix route.Fix, p progress.RouteProgress, opts config.Options) bool
}

// New returns the detector registered under name.
func New(name string) (Detector, error) {
	switch name {
	case config.StrategyDistance, "":
		return DistanceDetector{}, nil
	case config.StrategyDrift:
		return DriftTolerantDetector{}, nil
	case config.StrategyDisabled:
		return Disabled{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown off-route strategy %q", config.ErrInvalid, name)
	}
}

// DistanceDetector flags a fix further than MaxDistanceOffRoute from its
// snapped point.
type DistanceDetector struct{}

func (DistanceDetector) IsOffRoute(_ route.Fix, p progress.RouteProgress, opts config.Options) bool {
	if p.Route() == nil {
		return false
	}
	return p.DistanceFromRoute() > opts.MaxDistanceOffRoute
}

// DriftTolerantDetector widens the threshold by each fix's horizontal
// accuracy and only flags the traveler after MinConsecutiveOffRoute
// readings in a row, where the dead-reckoned lookahead is also off the
// route.
type DriftTolerantDetector struct{}

func (DriftTolerantDetector) IsOffRoute(_ route.Fix, p progress.RouteProgress, opts config.Options) bool {
	if p.Route() == nil {
		return false
	}
	need := opts.MinConsecutiveOffRoute
	if need < 1 {
		need = 1
	}
	history := p.History()
	streak := 0
	for i := len(history) - 1; i >= 0; i-- {
		s := history[i]
		limit := opts.MaxDistanceOffRoute + s.Accuracy
		if s.DistanceFromRoute <= limit || s.LookaheadDistance <= limit {
			break
		}
		streak++
	}
	return streak >= need
}

// Disabled never reports off-route.
type Disabled struct{}

func (Disabled) IsOffRoute(route.Fix, progress.RouteProgress, config.Options) bool { return false }
