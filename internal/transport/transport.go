// Package transport implements the SerialTransport abstraction (§4.2): a
// byte-level contract for talking to the datáfono, with a real serial
// adapter and an in-memory mock sharing one interface.
package transport

import (
	"errors"
	"fmt"
)

// ErrAlreadyOpen is returned by Open when the transport is already open.
var ErrAlreadyOpen = errors.New("transport: already open")

// ErrClosed is returned by Write on a transport that is not open, and
// delivered to the registered error sink when Close runs. Closing a
// transport that is already closed returns nil.
var ErrClosed = errors.New("transport: closed")

// Config describes how to open the serial device.
type Config struct {
	PortPath string
	Baud     int
	DataBits int
	StopBits int
	Parity   string
}

// DefaultConfig returns the 9600-8-N-1 default (§4.2).
func DefaultConfig(portPath string) Config {
	return Config{
		PortPath: portPath,
		Baud:     9600,
		DataBits: 8,
		StopBits: 1,
		Parity:   "none",
	}
}

// BytesSink receives every inbound chunk of bytes as it arrives.
type BytesSink func([]byte)

// ErrorSink receives transport-level failures.
type ErrorSink func(error)

// SerialTransport is the abstract byte-level I/O contract both the real
// serial adapter and the mock implement (§4.2).
type SerialTransport interface {
	// Open acquires the device. Re-opening an already-open transport
	// returns ErrAlreadyOpen.
	Open(cfg Config) error

	// Write enqueues bytes for transmission, preserving order.
	Write(data []byte) error

	// Close releases the device and fails all observers with ErrClosed.
	Close() error

	// OnBytes registers the single sink invoked for every inbound chunk.
	OnBytes(sink BytesSink)

	// OnError registers the single sink invoked on transport failure.
	OnError(sink ErrorSink)

	// IsOpen reports whether the transport is currently open.
	IsOpen() bool
}

func wrapOpenError(portPath string, cause error) error {
	return fmt.Errorf("transport: open %q: %w", portPath, cause)
}
