package coordinator

import "errors"

// Sentinel errors for the coordinator-level failure kinds of §7 that carry
// no payload beyond their identity.
var (
	ErrBusy         = errors.New("coordinator: busy")
	ErrNotConnected = errors.New("coordinator: not connected")
	ErrTimeout      = errors.New("coordinator: timeout")
	ErrClosed       = errors.New("coordinator: closed")
)

// TransportError wraps a transport-level failure that aborted a pending
// transaction.
type TransportError struct {
	Cause error
}

func (e *TransportError) Error() string {
	return "coordinator: transport error: " + e.Cause.Error()
}

func (e *TransportError) Unwrap() error { return e.Cause }
