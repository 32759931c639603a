package timeutil

import (
	"sync"
	"time"
)

// Stopwatch measures elapsed time between Start and Stop against a Clock.
// A zero Stopwatch uses RealClock. Safe for concurrent use.
type Stopwatch struct {
	mu      sync.Mutex
	clock   Clock
	start   time.Time
	end     time.Time
	running bool
}

// NewStopwatch returns a stopped stopwatch reading from clock.
func NewStopwatch(clock Clock) *Stopwatch {
	if clock == nil {
		clock = RealClock{}
	}
	return &Stopwatch{clock: clock}
}

func (s *Stopwatch) now() time.Time {
	if s.clock == nil {
		s.clock = RealClock{}
	}
	return s.clock.Now()
}

// Start begins timing. Starting a running stopwatch restarts it.
func (s *Stopwatch) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.start = s.now()
	s.end = time.Time{}
	s.running = true
}

// Stop freezes the elapsed time. Stopping a stopped stopwatch is a no-op.
func (s *Stopwatch) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.end = s.now()
	s.running = false
}

// Running reports whether the stopwatch is timing.
func (s *Stopwatch) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Elapsed returns the time between Start and Stop, or between Start and now
// while running. It is zero if the stopwatch was never started.
func (s *Stopwatch) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.start.IsZero():
		return 0
	case s.running:
		return s.now().Sub(s.start)
	default:
		return s.end.Sub(s.start)
	}
}

// Seconds is Elapsed in whole seconds, truncated.
func (s *Stopwatch) Seconds() int64 {
	return int64(s.Elapsed() / time.Second)
}
