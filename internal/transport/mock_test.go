package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockTransportDeliversApprovedFixture(t *testing.T) {
	m := NewMockTransport(MockConfig{ResponseDelay: 10 * time.Millisecond})
	require.NoError(t, m.Open(DefaultConfig("mock")))

	received := make(chan []byte, 1)
	m.OnBytes(func(b []byte) { received <- b })

	require.NoError(t, m.Write([]byte("anything")))

	select {
	case b := <-received:
		assert.Equal(t, approvedPurchaseFixture, b)
		assert.Equal(t, byte(0x02), b[0])
		assert.Equal(t, byte(0x03), b[len(b)-2])
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for canned response")
	}

	assert.Len(t, m.WrittenFrames(), 1)
}

func TestMockTransportReopenFails(t *testing.T) {
	m := NewMockTransport(MockConfig{})
	require.NoError(t, m.Open(DefaultConfig("mock")))
	assert.ErrorIs(t, m.Open(DefaultConfig("mock")), ErrAlreadyOpen)
}

func TestMockTransportWriteAfterCloseFails(t *testing.T) {
	m := NewMockTransport(MockConfig{})
	require.NoError(t, m.Open(DefaultConfig("mock")))
	require.NoError(t, m.Close())
	assert.ErrorIs(t, m.Write([]byte("x")), ErrClosed)
	assert.False(t, m.IsOpen())
}

func TestResolvePortPathNonCOM3Passthrough(t *testing.T) {
	resolved, err := resolvePortPath("/dev/ttyUSB0")
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB0", resolved)
}
