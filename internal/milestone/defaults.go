package milestone

import (
	"fmt"
	"math"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/banshee-data/wayfinder/internal/config"
	"github.com/banshee-data/wayfinder/internal/progress"
	"github.com/banshee-data/wayfinder/internal/route"
	"github.com/banshee-data/wayfinder/internal/units"
)

// UrgentTurnSeconds is how close in time to the end of a step the urgent
// turn milestone fires.
const UrgentTurnSeconds = 15

// Defaults returns the new-step, urgent-turn and arrival milestones.
func Defaults(opts config.Options) []Milestone {
	return []Milestone{
		{
			ID:          NewStepID,
			Trigger:     Is(NewStep),
			Instruction: continueInstruction(opts.Units),
		},
		{
			ID: UrgentTurnID,
			Trigger: All(
				Not(LastStep),
				Gt(StepDistanceTotalMeters, 0),
				Lte(StepDurationRemainingSeconds, UrgentTurnSeconds),
			),
			Instruction: turnInstruction(opts.Units),
		},
		{
			ID: ArrivalID,
			Trigger: All(
				Is(LastLeg),
				Any(Is(LastStep), Is(PenultimateStep)),
				Lt(RouteDistanceRemainingMeters, opts.ArrivalThreshold),
			),
			Instruction: func(progress.RouteProgress) string { return "You have arrived" },
		},
	}
}

func continueInstruction(system string) InstructionBuilder {
	return func(p progress.RouteProgress) string {
		dist := FormatDistance(p.StepDistanceRemaining(), system)
		step, _ := p.CurrentStep()
		if step.Name == "" {
			return "Continue for " + dist
		}
		return fmt.Sprintf("Continue on %s for %s", step.Name, dist)
	}
}

func turnInstruction(system string) InstructionBuilder {
	return func(p progress.RouteProgress) string {
		dist := FormatDistance(p.StepDistanceRemaining(), system)
		next, ok := p.UpcomingStep()
		if !ok {
			return "In " + dist + ", arrive"
		}
		return fmt.Sprintf("In %s, %s", dist, describe(next))
	}
}

// describe renders the maneuver at the start of s, preferring the text
// the directions service supplied.
func describe(s route.Step) string {
	if s.Maneuver.Instruction != "" {
		return lowerFirst(s.Maneuver.Instruction)
	}
	verb := s.Maneuver.Type
	if verb == "" {
		verb = "continue"
	}
	parts := []string{verb}
	if s.Maneuver.Modifier != "" {
		parts = append(parts, s.Maneuver.Modifier)
	}
	if s.Name != "" {
		parts = append(parts, "onto", s.Name)
	}
	return strings.Join(parts, " ")
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// FormatDistance renders meters for announcements, rounded the way a
// driver hears them.
func FormatDistance(meters float64, system string) string {
	if meters < 0 || math.IsNaN(meters) {
		meters = 0
	}
	if system == units.Imperial {
		if !units.ShortDistance(meters) {
			return humanize.FtoaWithDigits(units.MetersToMiles(meters), 1) + " mi"
		}
		feet := roundTo(units.MetersToFeet(meters), 50)
		return humanize.Comma(int64(feet)) + " ft"
	}
	if meters >= 1000 {
		return humanize.SIWithDigits(roundTo(meters, 100), 1, "m")
	}
	if meters >= 100 {
		return humanize.Ftoa(roundTo(meters, 50)) + " m"
	}
	return humanize.Ftoa(roundTo(meters, 5)) + " m"
}

func roundTo(v, step float64) float64 {
	return math.Round(v/step) * step
}
