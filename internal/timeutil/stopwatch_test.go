package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStopwatch(t *testing.T) {
	clock := NewMockClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	sw := NewStopwatch(clock)

	assert.Zero(t, sw.Elapsed(), "never started")
	assert.False(t, sw.Running())

	sw.Start()
	clock.Advance(1500 * time.Millisecond)
	assert.True(t, sw.Running())
	assert.Equal(t, 1500*time.Millisecond, sw.Elapsed())
	assert.Equal(t, int64(1), sw.Seconds())

	sw.Stop()
	clock.Advance(time.Minute)
	assert.Equal(t, 1500*time.Millisecond, sw.Elapsed(), "stopped stopwatch is frozen")

	// second Stop is a no-op
	sw.Stop()
	assert.Equal(t, 1500*time.Millisecond, sw.Elapsed())

	// restart resets
	sw.Start()
	clock.Advance(2 * time.Second)
	assert.Equal(t, 2*time.Second, sw.Elapsed())
}

func TestStopwatch_ZeroValueUsesRealClock(t *testing.T) {
	var sw Stopwatch
	sw.Start()
	time.Sleep(2 * time.Millisecond)
	sw.Stop()
	assert.GreaterOrEqual(t, sw.Elapsed(), 2*time.Millisecond)
}
