package serialmux

import (
	"fmt"

	"go.bug.st/serial"
)

// RealSerialPortFactory opens hardware serial ports.
type RealSerialPortFactory struct{}

// NewRealSerialPortFactory returns a factory backed by go.bug.st/serial.
func NewRealSerialPortFactory() *RealSerialPortFactory {
	return &RealSerialPortFactory{}
}

// Open opens the port at path. A nil mode uses DefaultSerialPortMode.
func (f *RealSerialPortFactory) Open(path string, mode *SerialPortMode) (SerialPorter, error) {
	if mode == nil {
		mode = DefaultSerialPortMode()
	}
	port, err := serial.Open(path, convertMode(mode))
	if err != nil {
		return nil, err
	}
	return port, nil
}

func convertMode(m *SerialPortMode) *serial.Mode {
	out := &serial.Mode{
		BaudRate: m.BaudRate,
		DataBits: m.DataBits,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	switch m.Parity {
	case OddParity:
		out.Parity = serial.OddParity
	case EvenParity:
		out.Parity = serial.EvenParity
	}
	if m.StopBits == TwoStopBits {
		out.StopBits = serial.TwoStopBits
	}
	return out
}

// NewRealSerialMux creates a SerialMux instance backed by a real serial port at the
// given path using the provided serial options.
func NewRealSerialMux(path string, opts PortOptions) (*SerialMux[serial.Port], error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}

	return NewSerialMux[serial.Port](port), nil
}

// Open opens path through factory with opts and wraps the port in a mux.
func Open(factory SerialPortFactory, path string, opts PortOptions) (*SerialMux[SerialPorter], error) {
	mode, err := opts.PortMode()
	if err != nil {
		return nil, err
	}
	port, err := factory.Open(path, mode)
	if err != nil {
		return nil, err
	}
	if tp, ok := port.(TimeoutSerialPorter); ok {
		if err := tp.SetReadTimeout(receiverReadTimeout); err != nil {
			port.Close()
			return nil, fmt.Errorf("set read timeout on %s: %w", path, err)
		}
	}
	return NewSerialMux(port), nil
}
