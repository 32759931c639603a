// Package milestone evaluates rule trees against consecutive progress
// snapshots and fires announcements such as new-step, urgent-turn and
// arrival.
package milestone

import (
	"fmt"
	"strings"

	"github.com/banshee-data/wayfinder/internal/progress"
)

// Property is a named value read from a (previous, current) snapshot pair.
// Boolean properties read as 1 or 0.
type Property int

const (
	StepDistanceTotalMeters Property = iota
	StepDurationTotalSeconds
	StepDistanceRemainingMeters
	StepDurationRemainingSeconds
	StepDistanceTraveledMeters
	StepIndex
	NewStep
	FirstStep
	LastStep
	PenultimateStep
	NextStepDistanceMeters
	NextStepDurationSeconds
	FirstLeg
	LastLeg
	LegDistanceRemainingMeters
	RouteDistanceRemainingMeters
)

var propertyNames = [...]string{
	StepDistanceTotalMeters:      "step_distance_total_meters",
	StepDurationTotalSeconds:     "step_duration_total_seconds",
	StepDistanceRemainingMeters:  "step_distance_remaining_meters",
	StepDurationRemainingSeconds: "step_duration_remaining_seconds",
	StepDistanceTraveledMeters:   "step_distance_traveled_meters",
	StepIndex:                    "step_index",
	NewStep:                      "new_step",
	FirstStep:                    "first_step",
	LastStep:                     "last_step",
	PenultimateStep:              "penultimate_step",
	NextStepDistanceMeters:       "next_step_distance_meters",
	NextStepDurationSeconds:      "next_step_duration_seconds",
	FirstLeg:                     "first_leg",
	LastLeg:                      "last_leg",
	LegDistanceRemainingMeters:   "leg_distance_remaining_meters",
	RouteDistanceRemainingMeters: "route_distance_remaining_meters",
}

func (p Property) String() string {
	if p < 0 || int(p) >= len(propertyNames) {
		return fmt.Sprintf("property(%d)", int(p))
	}
	return propertyNames[p]
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Value reads p from the snapshot pair. prev is nil on the first cycle.
func (p Property) Value(prev *progress.RouteProgress, cur progress.RouteProgress) float64 {
	switch p {
	case StepDistanceTotalMeters:
		s, _ := cur.CurrentStep()
		return s.Length()
	case StepDurationTotalSeconds:
		s, _ := cur.CurrentStep()
		return s.Duration
	case StepDistanceRemainingMeters:
		return cur.StepDistanceRemaining()
	case StepDurationRemainingSeconds:
		return cur.StepDurationRemaining()
	case StepDistanceTraveledMeters:
		return cur.StepDistanceTraveled()
	case StepIndex:
		return float64(cur.Cursor().StepIndex)
	case NewStep:
		return b2f(IsNewStep(prev, cur))
	case FirstStep:
		return b2f(cur.IsFirstStep())
	case LastStep:
		return b2f(cur.IsLastStep())
	case PenultimateStep:
		return b2f(cur.IsPenultimateStep())
	case NextStepDistanceMeters:
		s, _ := cur.UpcomingStep()
		return s.Length()
	case NextStepDurationSeconds:
		s, _ := cur.UpcomingStep()
		return s.Duration
	case FirstLeg:
		return b2f(cur.IsFirstLeg())
	case LastLeg:
		return b2f(cur.IsLastLeg())
	case LegDistanceRemainingMeters:
		return cur.LegDistanceRemaining()
	case RouteDistanceRemainingMeters:
		return cur.RouteDistanceRemaining()
	}
	return 0
}

// IsNewStep reports whether cur is on a different step than prev. A route
// replaced by one with identical geometry keeps its step.
func IsNewStep(prev *progress.RouteProgress, cur progress.RouteProgress) bool {
	if prev == nil || prev.Route() == nil {
		return false
	}
	return prev.Cursor() != cur.Cursor() || !progress.SameRoute(prev.Route(), cur.Route())
}

// Operator compares a property value with a constant.
type Operator int

const (
	OpEq Operator = iota
	OpNeq
	OpGt
	OpGte
	OpLt
	OpLte
)

var operatorSymbols = [...]string{OpEq: "==", OpNeq: "!=", OpGt: ">", OpGte: ">=", OpLt: "<", OpLte: "<="}

func (o Operator) String() string {
	if o < 0 || int(o) >= len(operatorSymbols) {
		return "?"
	}
	return operatorSymbols[o]
}

func (o Operator) apply(a, b float64) bool {
	switch o {
	case OpEq:
		return a == b
	case OpNeq:
		return a != b
	case OpGt:
		return a > b
	case OpGte:
		return a >= b
	case OpLt:
		return a < b
	case OpLte:
		return a <= b
	}
	return false
}

// Statement is a trigger expression. Evaluation has no side effects.
type Statement interface {
	Evaluate(prev *progress.RouteProgress, cur progress.RouteProgress) bool
	String() string
}

type comparison struct {
	prop  Property
	op    Operator
	value float64
}

func (c comparison) Evaluate(prev *progress.RouteProgress, cur progress.RouteProgress) bool {
	return c.op.apply(c.prop.Value(prev, cur), c.value)
}

func (c comparison) String() string {
	return fmt.Sprintf("%s %s %g", c.prop, c.op, c.value)
}

func Eq(p Property, v float64) Statement  { return comparison{p, OpEq, v} }
func Neq(p Property, v float64) Statement { return comparison{p, OpNeq, v} }
func Gt(p Property, v float64) Statement  { return comparison{p, OpGt, v} }
func Gte(p Property, v float64) Statement { return comparison{p, OpGte, v} }
func Lt(p Property, v float64) Statement  { return comparison{p, OpLt, v} }
func Lte(p Property, v float64) Statement { return comparison{p, OpLte, v} }

// Is is true when the boolean property p holds.
func Is(p Property) Statement { return Eq(p, 1) }

// Not is true when the boolean property p does not hold.
func Not(p Property) Statement { return Eq(p, 0) }

type kind int

const (
	kindAll kind = iota
	kindAny
	kindNone
)

type composite struct {
	kind  kind
	terms []Statement
}

// All is true when every statement is. It stops at the first false one.
func All(s ...Statement) Statement { return composite{kindAll, s} }

// Any is true when at least one statement is. It stops at the first true one.
func Any(s ...Statement) Statement { return composite{kindAny, s} }

// None is true when no statement is. It stops at the first true one.
func None(s ...Statement) Statement { return composite{kindNone, s} }

func (c composite) Evaluate(prev *progress.RouteProgress, cur progress.RouteProgress) bool {
	switch c.kind {
	case kindAll:
		for _, s := range c.terms {
			if !s.Evaluate(prev, cur) {
				return false
			}
		}
		return true
	case kindAny:
		for _, s := range c.terms {
			if s.Evaluate(prev, cur) {
				return true
			}
		}
		return false
	default:
		for _, s := range c.terms {
			if s.Evaluate(prev, cur) {
				return false
			}
		}
		return true
	}
}

func (c composite) String() string {
	names := [...]string{kindAll: "all", kindAny: "any", kindNone: "none"}
	parts := make([]string, len(c.terms))
	for i, s := range c.terms {
		parts[i] = s.String()
	}
	return names[c.kind] + "(" + strings.Join(parts, ", ") + ")"
}
