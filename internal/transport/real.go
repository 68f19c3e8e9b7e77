package transport

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"go.bug.st/serial"
)

// RealTransport drives an actual serial port via go.bug.st/serial, 9600-8-N-1
// by default, auto-draining the write buffer after every write.
type RealTransport struct {
	mu        sync.Mutex
	port      serial.Port
	open      bool
	bytesSink BytesSink
	errorSink ErrorSink
	stopRead  chan struct{}
}

// NewRealTransport constructs an unopened real serial transport.
func NewRealTransport() *RealTransport {
	return &RealTransport{}
}

func parityFromString(p string) serial.Parity {
	switch p {
	case "odd":
		return serial.OddParity
	case "even":
		return serial.EvenParity
	case "mark":
		return serial.MarkParity
	case "space":
		return serial.SpaceParity
	default:
		return serial.NoParity
	}
}

func stopBitsFromInt(n int) serial.StopBits {
	switch n {
	case 2:
		return serial.TwoStopBits
	default:
		return serial.OneStopBit
	}
}

// Open acquires the serial device, resolving a configured "COM3" to a real
// POSIX tty path on non-Windows hosts (§4.2).
func (t *RealTransport) Open(cfg Config) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.open {
		return ErrAlreadyOpen
	}

	portPath, err := resolvePortPath(cfg.PortPath)
	if err != nil {
		return wrapOpenError(cfg.PortPath, err)
	}

	mode := &serial.Mode{
		BaudRate: cfg.Baud,
		DataBits: cfg.DataBits,
		Parity:   parityFromString(cfg.Parity),
		StopBits: stopBitsFromInt(cfg.StopBits),
	}

	port, err := serial.Open(portPath, mode)
	if err != nil {
		return wrapOpenError(portPath, err)
	}

	t.port = port
	t.open = true
	t.stopRead = make(chan struct{})
	go t.readLoop(t.stopRead)

	slog.Info("serial transport opened", "port", portPath, "baud", cfg.Baud)
	return nil
}

// readLoop hands inbound bytes to the registered sink from a dedicated
// goroutine; the coordinator is responsible for serializing them.
func (t *RealTransport) readLoop(stop chan struct{}) {
	buf := make([]byte, 256)
	for {
		select {
		case <-stop:
			return
		default:
		}

		n, err := t.port.Read(buf)
		if err != nil {
			if err == io.EOF {
				return
			}
			t.mu.Lock()
			sink := t.errorSink
			t.mu.Unlock()
			if sink != nil {
				sink(fmt.Errorf("serial read: %w", err))
			}
			return
		}
		if n == 0 {
			continue
		}

		t.mu.Lock()
		sink := t.bytesSink
		t.mu.Unlock()
		if sink != nil {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			sink(chunk)
		}
	}
}

// Write enqueues bytes for transmission and drains the write buffer.
func (t *RealTransport) Write(data []byte) error {
	t.mu.Lock()
	port := t.port
	open := t.open
	t.mu.Unlock()

	if !open {
		return ErrClosed
	}

	if _, err := port.Write(data); err != nil {
		return fmt.Errorf("serial write: %w", err)
	}
	return port.Drain()
}

// Close releases the device, stops the read loop and delivers ErrClosed to
// the registered error sink.
func (t *RealTransport) Close() error {
	t.mu.Lock()
	if !t.open {
		t.mu.Unlock()
		return nil
	}
	close(t.stopRead)
	err := t.port.Close()
	t.open = false
	t.port = nil
	sink := t.errorSink
	t.mu.Unlock()

	if sink != nil {
		sink(ErrClosed)
	}
	return err
}

// OnBytes registers the sink invoked for every inbound chunk.
func (t *RealTransport) OnBytes(sink BytesSink) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bytesSink = sink
}

// OnError registers the sink invoked on transport failure.
func (t *RealTransport) OnError(sink ErrorSink) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errorSink = sink
}

// IsOpen reports whether the device is currently open.
func (t *RealTransport) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.open
}

var _ SerialTransport = (*RealTransport)(nil)
