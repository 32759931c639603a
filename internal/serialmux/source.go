package serialmux

import (
	"context"
	"errors"
	"sync"

	"github.com/adrianmo/go-nmea"

	"github.com/banshee-data/wayfinder/internal/monitoring"
	"github.com/banshee-data/wayfinder/internal/route"
)

// ProviderGPS marks fixes read from a serial receiver.
const ProviderGPS = "gps"

var logf = monitoring.Prefixed("gps")

// FixHandler receives each decoded fix, typically navigation.Engine.Enqueue.
type FixHandler func(route.Fix) error

// SourceOptions tunes how sentences become fixes.
type SourceOptions struct {
	// DefaultAccuracy is used until a GGA sentence reports HDOP.
	DefaultAccuracy float64
	// Provider is stamped on every fix. Empty means ProviderGPS.
	Provider string
}

// SourceStats counts what a Source has read.
type SourceStats struct {
	Lines   int `json:"lines"`
	Fixes   int `json:"fixes"`
	NoFix   int `json:"no_fix"`
	Errors  int `json:"errors"`
	Dropped int `json:"dropped"`
}

// Source turns the NMEA lines of a mux into fixes.
type Source struct {
	mux    SerialMuxInterface
	handle FixHandler
	opts   SourceOptions

	mu       sync.Mutex
	accuracy float64
	last     route.Fix
	hasLast  bool
	stats    SourceStats
}

// NewSource reads lines from mux and passes each fix to handle.
func NewSource(mux SerialMuxInterface, handle FixHandler, opts SourceOptions) *Source {
	if opts.Provider == "" {
		opts.Provider = ProviderGPS
	}
	return &Source{mux: mux, handle: handle, opts: opts, accuracy: opts.DefaultAccuracy}
}

// Run subscribes to the mux and handles lines until ctx is done or the mux
// closes the subscription.
func (s *Source) Run(ctx context.Context) error {
	id, lines := s.mux.Subscribe()
	defer s.mux.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := s.HandleLine(line); err != nil {
				logf("%v: %q", err, line)
			}
		}
	}
}

// HandleLine decodes one line. Sentences other than RMC and GGA are
// ignored, as are sentences reporting no fix.
func (s *Source) HandleLine(line string) error {
	s.mu.Lock()
	s.stats.Lines++
	s.mu.Unlock()

	sentence, err := ParseSentence(line)
	if errors.Is(err, ErrNoFix) {
		s.noFix()
		return nil
	}
	if err != nil {
		return s.failed(err)
	}

	switch sentence.(type) {
	case nmea.GGA:
		acc, err := ParseGGAAccuracy(sentence)
		if errors.Is(err, ErrNoFix) {
			s.noFix()
			return nil
		}
		if err != nil {
			return s.failed(err)
		}
		s.mu.Lock()
		s.accuracy = acc
		s.mu.Unlock()
		return nil

	case nmea.RMC:
		fix, err := ParseRMC(sentence)
		if errors.Is(err, ErrNoFix) {
			s.noFix()
			return nil
		}
		if err != nil {
			return s.failed(err)
		}
		s.mu.Lock()
		fix.Accuracy = s.accuracy
		fix.Provider = s.opts.Provider
		s.last, s.hasLast = fix, true
		s.stats.Fixes++
		s.mu.Unlock()

		if err := s.handle(fix); err != nil {
			s.mu.Lock()
			s.stats.Dropped++
			s.mu.Unlock()
			return err
		}
	}
	return nil
}

func (s *Source) noFix() {
	s.mu.Lock()
	s.stats.NoFix++
	s.mu.Unlock()
}

func (s *Source) failed(err error) error {
	s.mu.Lock()
	s.stats.Errors++
	s.mu.Unlock()
	return err
}

// Last returns the most recent fix decoded.
func (s *Source) Last() (route.Fix, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.hasLast
}

// Stats returns a copy of the counters.
func (s *Source) Stats() SourceStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
