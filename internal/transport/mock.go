package transport

import (
	"sync"
	"time"
)

// approvedPurchaseFixture is a canned approved-purchase response frame
// (response code "00"), used verbatim so the coordinator's decode path
// through the mock is byte-identical to its path through the real
// transport (§4.2).
var approvedPurchaseFixture = buildApprovedFixture()

// MockConfig tunes the mock transport's canned behavior, separate from
// SerialTransport's Config (which the mock otherwise ignores).
type MockConfig struct {
	// ResponseDelay is how long after a Write the canned response is
	// delivered to the bytes sink. Defaults to 50ms.
	ResponseDelay time.Duration
}

// MockTransport ignores input writes (beyond recording them for tests) and,
// after a fixed delay, delivers a canned approved-purchase response frame —
// modeling a datáfono without hardware, per §4.2 and §9 "Mock mode".
type MockTransport struct {
	mu       sync.Mutex
	open     bool
	bytesSink BytesSink
	errorSink ErrorSink
	written   [][]byte
	delay     time.Duration
	timer     *time.Timer
}

// NewMockTransport constructs a mock transport with the given response
// delay (zero uses the 50ms default).
func NewMockTransport(cfg MockConfig) *MockTransport {
	delay := cfg.ResponseDelay
	if delay <= 0 {
		delay = 50 * time.Millisecond
	}
	return &MockTransport{delay: delay}
}

// Open transitions the mock to Open; it never actually touches hardware.
func (m *MockTransport) Open(cfg Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.open {
		return ErrAlreadyOpen
	}
	m.open = true
	return nil
}

// Write records the bytes (for test assertions) and, for anything other
// than a single-byte write (such as a bare ACK/NACK reply), schedules the
// canned approved-purchase response. A coordinator's ACK to a decoded frame would otherwise bounce
// back into another canned response forever.
func (m *MockTransport) Write(data []byte) error {
	m.mu.Lock()
	if !m.open {
		m.mu.Unlock()
		return ErrClosed
	}
	m.written = append(m.written, append([]byte(nil), data...))
	sink := m.bytesSink
	delay := m.delay
	isHandshakeByte := len(data) == 1
	m.mu.Unlock()

	if sink != nil && !isHandshakeByte {
		m.timer = time.AfterFunc(delay, func() {
			sink(approvedPurchaseFixture)
		})
	}
	return nil
}

// Close releases the mock, cancels any pending canned response and, if the
// mock was open, delivers ErrClosed to the registered error sink.
func (m *MockTransport) Close() error {
	m.mu.Lock()
	if m.timer != nil {
		m.timer.Stop()
	}
	wasOpen := m.open
	m.open = false
	sink := m.errorSink
	m.mu.Unlock()

	if wasOpen && sink != nil {
		sink(ErrClosed)
	}
	return nil
}

// OnBytes registers the inbound-chunk sink.
func (m *MockTransport) OnBytes(sink BytesSink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bytesSink = sink
}

// OnError registers the error sink (invoked by the mock only from Close).
func (m *MockTransport) OnError(sink ErrorSink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorSink = sink
}

// IsOpen reports whether the mock is open.
func (m *MockTransport) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

// WrittenFrames returns every frame written so far, for test assertions.
func (m *MockTransport) WrittenFrames() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.written))
	copy(out, m.written)
	return out
}

var _ SerialTransport = (*MockTransport)(nil)
