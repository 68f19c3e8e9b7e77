package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/backend/internal/circuitbreaker"
	"github.com/ocx/backend/internal/tef"
	"github.com/ocx/backend/internal/transport"
)

func samplePurchase() tef.PurchaseRequest {
	return tef.PurchaseRequest{
		AmountCents:   5000000,
		TerminalID:    "TERM01",
		TransactionID: "TX0001",
		CashierID:     "CASH01",
	}
}

func TestSendPurchaseApproved(t *testing.T) {
	mt := transport.NewMockTransport(transport.MockConfig{ResponseDelay: 5 * time.Millisecond})
	c := New(mt, nil)
	require.NoError(t, c.Connect(transport.DefaultConfig("mock")))

	resp, err := c.SendPurchase(context.Background(), samplePurchase())
	require.NoError(t, err)
	assert.True(t, resp.Approved)
	assert.Equal(t, "917107", resp.AuthCode())

	frames := mt.WrittenFrames()
	require.Len(t, frames, 2)
	assert.Equal(t, byte(tef.ACK), frames[1][0])
	assert.Len(t, frames[1], 1)

	assert.Equal(t, "IDLE", c.Status().State)
	assert.False(t, c.Status().Pending)
}

func TestSendPurchaseBusyFailsFast(t *testing.T) {
	mt := transport.NewMockTransport(transport.MockConfig{ResponseDelay: 100 * time.Millisecond})
	c := New(mt, nil)
	require.NoError(t, c.Connect(transport.DefaultConfig("mock")))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = c.SendPurchase(context.Background(), samplePurchase())
	}()

	time.Sleep(20 * time.Millisecond)
	_, err := c.SendPurchase(context.Background(), samplePurchase())
	assert.ErrorIs(t, err, ErrBusy)

	wg.Wait()
}

func TestSendPurchaseNotConnected(t *testing.T) {
	mt := transport.NewMockTransport(transport.MockConfig{})
	c := New(mt, nil)

	_, err := c.SendPurchase(context.Background(), samplePurchase())
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestInvalidRequestNeverTouchesState(t *testing.T) {
	mt := transport.NewMockTransport(transport.MockConfig{})
	c := New(mt, nil)
	require.NoError(t, c.Connect(transport.DefaultConfig("mock")))

	invalid := tef.PurchaseRequest{TransactionID: "TX1"} // AmountCents is zero
	_, err := c.SendPurchase(context.Background(), invalid)
	assert.ErrorIs(t, err, tef.ErrInvalidRequest)
	assert.Empty(t, mt.WrittenFrames())
	assert.Equal(t, "IDLE", c.Status().State)
}

// silentTransport never delivers a response, modeling a datáfono that is
// connected but unreachable — used to exercise the timeout path without
// waiting on DefaultTimeout.
type silentTransport struct {
	mu   sync.Mutex
	open bool
}

func (s *silentTransport) Open(transport.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = true
	return nil
}
func (s *silentTransport) Write([]byte) error { return nil }
func (s *silentTransport) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
	return nil
}
func (s *silentTransport) OnBytes(transport.BytesSink) {}
func (s *silentTransport) OnError(transport.ErrorSink) {}
func (s *silentTransport) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

func TestSendPurchaseTimesOut(t *testing.T) {
	st := &silentTransport{}
	c := New(st, nil)
	require.NoError(t, c.Connect(transport.DefaultConfig("silent")))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := c.SendPurchase(ctx, samplePurchase())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, "IDLE", c.Status().State)
	assert.False(t, c.Status().Pending)
}

func TestReassemblyAcrossFragmentsAndGarbage(t *testing.T) {
	mt := transport.NewMockTransport(transport.MockConfig{ResponseDelay: time.Hour})
	c := New(mt, nil)
	require.NoError(t, c.Connect(transport.DefaultConfig("mock")))

	frame, err := tef.EncodePurchase(samplePurchase())
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		_, sendErr := c.SendPurchase(context.Background(), samplePurchase())
		assert.NoError(t, sendErr)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)

	garbage := []byte{0x00, 0xFF, 0x10}
	mid := len(frame) / 2
	c.onBytes(garbage)
	c.onBytes(frame[:mid])
	c.onBytes(frame[mid:])

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for reassembled response")
	}

	frames := mt.WrittenFrames()
	require.Len(t, frames, 2)
	assert.Equal(t, byte(tef.ACK), frames[1][0])
}

// failingTransport reports itself open but always fails to write, modeling
// a jammed serial line rather than a slow one.
type failingTransport struct {
	mu   sync.Mutex
	open bool
}

func (f *failingTransport) Open(transport.Config) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = true
	return nil
}
func (f *failingTransport) Write([]byte) error { return errors.New("line jammed") }
func (f *failingTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = false
	return nil
}
func (f *failingTransport) OnBytes(transport.BytesSink) {}
func (f *failingTransport) OnError(transport.ErrorSink) {}
func (f *failingTransport) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func TestLinkBreakerTripsAfterRepeatedWriteFailures(t *testing.T) {
	ft := &failingTransport{}
	c := New(ft, nil)
	require.NoError(t, c.Connect(transport.DefaultConfig("jammed")))

	for i := 0; i < 3; i++ {
		_, err := c.SendPurchase(context.Background(), samplePurchase())
		require.Error(t, err)
	}

	assert.Equal(t, "open", c.Status().LinkBreaker)

	_, err := c.SendPurchase(context.Background(), samplePurchase())
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
}

func TestReassemblyDiscardsUndecodableFrame(t *testing.T) {
	mt := transport.NewMockTransport(transport.MockConfig{})
	c := New(mt, nil)
	require.NoError(t, c.Connect(transport.DefaultConfig("mock")))

	corrupt := []byte{tef.STX, '0', '0', '0', '5', 'x', 'y', 'z', tef.ETX, 0xAB}
	c.onBytes(corrupt)

	assert.Equal(t, "IDLE", c.Status().State)
	assert.Empty(t, c.buffer)
}
