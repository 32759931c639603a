package serialmux

import (
	"io"
	"time"
)

// SerialPorter is what a GPS receiver port must provide.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// SerialPortMode holds line settings, independent of the serial library.
type SerialPortMode struct {
	BaudRate int
	DataBits int
	Parity   Parity
	StopBits StopBits
}

type Parity int

const (
	NoParity Parity = iota
	OddParity
	EvenParity
)

type StopBits int

const (
	OneStopBit StopBits = iota
	TwoStopBits
)

// DefaultSerialPortMode returns the NMEA 0183 default of 9600 8N1.
func DefaultSerialPortMode() *SerialPortMode {
	return &SerialPortMode{
		BaudRate: 9600,
		DataBits: 8,
		Parity:   NoParity,
		StopBits: OneStopBit,
	}
}

// SerialPortFactory opens ports. Tests swap in MockSerialPortFactory.
type SerialPortFactory interface {
	Open(path string, mode *SerialPortMode) (SerialPorter, error)
}

// TimeoutSerialPorter is implemented by ports whose reads can time out.
// Open sets receiverReadTimeout on them so a silent receiver does not pin
// the monitor loop after cancellation.
type TimeoutSerialPorter interface {
	SerialPorter
	SetReadTimeout(timeout time.Duration) error
}

const receiverReadTimeout = 2 * time.Second
