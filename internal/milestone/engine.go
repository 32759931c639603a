package milestone

import (
	"sync"

	"github.com/banshee-data/wayfinder/internal/monitoring"
	"github.com/banshee-data/wayfinder/internal/progress"
)

// Default milestone identifiers.
const (
	NewStepID    = 1
	UrgentTurnID = 2
	ArrivalID    = 3
)

// InstructionBuilder renders the announcement for a fired milestone.
type InstructionBuilder func(p progress.RouteProgress) string

// Milestone pairs a trigger with the instruction it announces.
type Milestone struct {
	ID          int
	Trigger     Statement
	Instruction InstructionBuilder
	Disabled    bool
}

// Fired is a milestone that fired in a cycle.
type Fired struct {
	ID          int
	Instruction string
	Progress    progress.RouteProgress
}

type entry struct {
	m Milestone
	// active is true while the trigger has held since it last fired.
	active bool
}

// Engine holds registered milestones and fires each at most once per
// continuously-true interval of its trigger.
type Engine struct {
	mu      sync.Mutex
	entries []*entry
}

// NewEngine returns an engine holding ms in order.
func NewEngine(ms ...Milestone) *Engine {
	e := &Engine{}
	for _, m := range ms {
		e.Add(m)
	}
	return e
}

// Add registers m after the existing milestones. A milestone whose ID is
// already registered is ignored with a warning.
func (e *Engine) Add(m Milestone) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, en := range e.entries {
		if en.m.ID == m.ID {
			monitoring.Warnf("milestone", "milestone %d already added", m.ID)
			return false
		}
	}
	e.entries = append(e.entries, &entry{m: m})
	return true
}

// Remove unregisters the milestone with id, warning when it is absent.
func (e *Engine) Remove(id int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, en := range e.entries {
		if en.m.ID == id {
			e.entries = append(e.entries[:i:i], e.entries[i+1:]...)
			return true
		}
	}
	monitoring.Warnf("milestone", "milestone %d not found, nothing removed", id)
	return false
}

// RemoveAll clears every milestone.
func (e *Engine) RemoveAll() {
	e.mu.Lock()
	e.entries = nil
	e.mu.Unlock()
}

// SetEnabled enables or disables the milestone with id. A disabled
// milestone re-arms, so it can fire as soon as it is enabled again.
func (e *Engine) SetEnabled(id int, enabled bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, en := range e.entries {
		if en.m.ID == id {
			en.m.Disabled = !enabled
			if !enabled {
				en.active = false
			}
			return true
		}
	}
	monitoring.Warnf("milestone", "milestone %d not found", id)
	return false
}

// Milestones returns the registered milestones in order.
func (e *Engine) Milestones() []Milestone {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Milestone, len(e.entries))
	for i, en := range e.entries {
		out[i] = en.m
	}
	return out
}

// Reset re-arms every milestone.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, en := range e.entries {
		en.active = false
	}
}

// Evaluate runs every enabled trigger against (prev, cur) and returns the
// milestones that became true, in registration order.
func (e *Engine) Evaluate(prev *progress.RouteProgress, cur progress.RouteProgress) []Fired {
	e.mu.Lock()
	defer e.mu.Unlock()
	var fired []Fired
	for _, en := range e.entries {
		if en.m.Disabled || en.m.Trigger == nil {
			continue
		}
		ok := en.m.Trigger.Evaluate(prev, cur)
		if ok && !en.active {
			f := Fired{ID: en.m.ID, Progress: cur}
			if en.m.Instruction != nil {
				f.Instruction = en.m.Instruction(cur)
			}
			fired = append(fired, f)
		}
		en.active = ok
	}
	return fired
}
