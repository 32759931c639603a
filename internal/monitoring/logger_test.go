package monitoring

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) {
		called = true
	})
	Logf("test message")
	assert.True(t, called, "custom logger was not called")

	// nil installs a no-op; must not panic
	SetLogger(nil)
	Logf("test message")
}

func TestPrefixed(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var got string
	logf := Prefixed("navigation")

	// SetLogger after Prefixed must still take effect.
	SetLogger(func(format string, v ...interface{}) {
		got = fmt.Sprintf(format, v...)
	})
	logf("cycle %d", 3)
	assert.Equal(t, "navigation: cycle 3", got)
}

func TestWarnf(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var got string
	SetLogger(func(format string, v ...interface{}) {
		got = fmt.Sprintf(format, v...)
	})
	Warnf("dispatch", "listener %s already registered", "abc")
	assert.Equal(t, "WARN dispatch: listener abc already registered", got)
}
