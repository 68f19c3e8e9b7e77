// Package coordinator implements the TransactionCoordinator (§4.3): the
// stateful orchestrator that turns a FrameCodec and a SerialTransport into a
// request/response exchange with a datáfono, one transaction at a time.
package coordinator

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ocx/backend/internal/circuitbreaker"
	"github.com/ocx/backend/internal/metrics"
	"github.com/ocx/backend/internal/tef"
	"github.com/ocx/backend/internal/transport"
)

// DefaultTimeout is the per-transaction deadline (§4.3) applied when the
// caller's context carries no earlier deadline.
const DefaultTimeout = 60 * time.Second

// pendingTransaction tracks the single in-flight exchange, if any.
type pendingTransaction struct {
	done chan result
}

// result is delivered to the waiting sendAndReceive call exactly once.
type result struct {
	resp tef.TerminalResponse
	err  error
}

// TransactionCoordinator serializes purchase/reversal exchanges over a
// SerialTransport, reassembling inbound bytes into frames and enforcing
// at-most-one pending transaction (§4.3).
type TransactionCoordinator struct {
	mu        sync.Mutex
	transport transport.SerialTransport
	state     state
	pending   *pendingTransaction
	buffer    []byte
	log       *slog.Logger
	metrics   *metrics.Metrics
	breaker   *circuitbreaker.CircuitBreaker
	timeout   time.Duration
}

// WithMetrics attaches a Metrics recorder, returning c for chaining at
// construction time. A coordinator with no metrics attached skips recording.
func (c *TransactionCoordinator) WithMetrics(m *metrics.Metrics) *TransactionCoordinator {
	c.metrics = m
	return c
}

// WithTimeout overrides the per-transaction deadline (§6 tef.timeout_ms),
// returning c for chaining at construction time. A zero or negative d
// leaves DefaultTimeout in effect.
func (c *TransactionCoordinator) WithTimeout(d time.Duration) *TransactionCoordinator {
	if d > 0 {
		c.timeout = d
	}
	return c
}

// New wires a coordinator to the given transport, registering the
// reassembly callback. The transport is not opened here; call Connect.
func New(t transport.SerialTransport, log *slog.Logger) *TransactionCoordinator {
	if log == nil {
		log = slog.Default()
	}
	c := &TransactionCoordinator{
		transport: t,
		state:     stateIdle,
		log:       log,
		breaker:   circuitbreaker.New(circuitbreaker.DefaultConfig("datafono-link")),
		timeout:   DefaultTimeout,
	}
	t.OnBytes(c.onBytes)
	t.OnError(c.onTransportError)
	return c
}

// Connect opens the underlying transport.
func (c *TransactionCoordinator) Connect(cfg transport.Config) error {
	return c.transport.Open(cfg)
}

// Disconnect closes the underlying transport and fails any pending
// transaction with ErrClosed.
func (c *TransactionCoordinator) Disconnect() error {
	c.mu.Lock()
	c.state = stateClosed
	pending := c.pending
	c.pending = nil
	c.buffer = nil
	c.mu.Unlock()

	c.recordState()
	if pending != nil {
		pending.done <- result{err: ErrClosed}
	}
	return c.transport.Close()
}

// Status reports the coordinator's current state for the /status endpoint
// (§9 "Mock mode" and the supplemented status payload in SPEC_FULL.md).
type Status struct {
	State       string
	Connected   bool
	Pending     bool
	LinkBreaker string
}

// Status returns a snapshot of the coordinator's state.
func (c *TransactionCoordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		State:       c.state.String(),
		Connected:   c.transport.IsOpen(),
		Pending:     c.pending != nil,
		LinkBreaker: strings.ToLower(c.breaker.State().String()),
	}
}

// SendPurchase validates and encodes req, then runs it through the
// coordinator. Validation happens before any coordinator state is touched,
// so an invalid request never affects transport state (§7).
func (c *TransactionCoordinator) SendPurchase(ctx context.Context, req tef.PurchaseRequest) (tef.TerminalResponse, error) {
	frame, err := tef.EncodePurchase(req)
	if err != nil {
		return tef.TerminalResponse{}, err
	}
	return c.sendAndReceive(ctx, "purchase", frame)
}

// SendReversal validates and encodes req, then runs it through the
// coordinator.
func (c *TransactionCoordinator) SendReversal(ctx context.Context, req tef.ReversalRequest) (tef.TerminalResponse, error) {
	frame, err := tef.EncodeReversal(req)
	if err != nil {
		return tef.TerminalResponse{}, err
	}
	return c.sendAndReceive(ctx, "reversal", frame)
}

// sendAndReceive is the generic core of §4.3: it fails fast if a
// transaction is already pending or the transport is closed, writes the
// frame, and waits for either the reassembly loop to deliver a decoded
// response or the transaction's deadline to elapse.
func (c *TransactionCoordinator) sendAndReceive(ctx context.Context, operation string, frame []byte) (tef.TerminalResponse, error) {
	start := time.Now()
	c.mu.Lock()
	if c.state == stateClosed || !c.transport.IsOpen() {
		c.mu.Unlock()
		return tef.TerminalResponse{}, ErrNotConnected
	}
	if c.pending != nil {
		c.mu.Unlock()
		return tef.TerminalResponse{}, ErrBusy
	}
	if err := c.breaker.Allow(); err != nil {
		c.mu.Unlock()
		return tef.TerminalResponse{}, err
	}

	pending := &pendingTransaction{done: make(chan result, 1)}
	c.pending = pending
	c.state = stateAwaiting
	c.mu.Unlock()
	c.recordState()

	if err := c.transport.Write(frame); err != nil {
		c.breaker.RecordFailure()
		c.clearPending(pending)
		c.recordOutcome(operation, "error", start)
		return tef.TerminalResponse{}, &TransportError{Cause: err}
	}

	deadline := c.timeout
	if deadline <= 0 {
		deadline = DefaultTimeout
	}
	if dl, ok := ctx.Deadline(); ok {
		if remaining := time.Until(dl); remaining < deadline {
			deadline = remaining
		}
	}
	timer := time.NewTimer(deadline)
	defer timer.Stop()

	select {
	case r := <-pending.done:
		outcome := "error"
		if r.err == nil {
			c.breaker.RecordSuccess()
			outcome = "declined"
			if r.resp.Approved {
				outcome = "approved"
			}
		} else {
			c.breaker.RecordFailure()
		}
		c.recordOutcome(operation, outcome, start)
		return r.resp, r.err
	case <-timer.C:
		c.breaker.RecordFailure()
		c.clearPending(pending)
		c.recordOutcome(operation, "timeout", start)
		return tef.TerminalResponse{}, ErrTimeout
	case <-ctx.Done():
		c.clearPending(pending)
		c.recordOutcome(operation, "canceled", start)
		return tef.TerminalResponse{}, ctx.Err()
	}
}

// recordOutcome reports a completed exchange to the metrics recorder, if
// one is attached.
func (c *TransactionCoordinator) recordOutcome(operation, outcome string, start time.Time) {
	if c.metrics != nil {
		c.metrics.RecordTransaction(operation, outcome, time.Since(start).Seconds())
	}
}

// recordState mirrors the coordinator's current state into the state gauge.
func (c *TransactionCoordinator) recordState() {
	if c.metrics == nil {
		return
	}
	c.mu.Lock()
	s := strings.ToLower(c.state.String())
	c.mu.Unlock()
	c.metrics.SetCoordinatorState(s)
}

// clearPending removes p as the coordinator's pending transaction if it is
// still current, and returns the coordinator to Idle. A pending transaction
// that has already been completed elsewhere is left alone. It reports
// whether p was still current and has now been removed.
func (c *TransactionCoordinator) clearPending(p *pendingTransaction) bool {
	c.mu.Lock()
	cleared := c.pending == p
	if cleared {
		c.pending = nil
		if c.state != stateClosed {
			c.state = stateIdle
		}
	}
	c.mu.Unlock()
	c.recordState()
	return cleared
}

// onTransportError fails the pending transaction, if any, with the
// transport's error.
func (c *TransactionCoordinator) onTransportError(err error) {
	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	if c.state != stateClosed {
		c.state = stateIdle
	}
	c.mu.Unlock()
	c.recordState()

	if pending != nil {
		pending.done <- result{err: &TransportError{Cause: err}}
	}
}

// onBytes is the reassembly callback (§4.3): it accumulates inbound bytes,
// locates complete frames bounded by STX/ETX, and decodes each one in turn.
// A single ACK byte (the terminal's handshake reply) is subsumed by the
// general STX search below: it never matches STX, so it is discarded as
// stale like any other noise byte preceding a real frame.
func (c *TransactionCoordinator) onBytes(chunk []byte) {
	c.mu.Lock()
	c.buffer = append(c.buffer, chunk...)

	for {
		stxIdx := -1
		for i, b := range c.buffer {
			if b == tef.STX {
				stxIdx = i
				break
			}
		}
		if stxIdx < 0 {
			// Nothing recognizable yet; drop accumulated noise to bound
			// buffer growth and wait for more bytes.
			c.buffer = nil
			c.mu.Unlock()
			return
		}
		if stxIdx > 0 {
			c.buffer = c.buffer[stxIdx:]
		}

		etxIdx := -1
		for i := 1; i < len(c.buffer)-1; i++ {
			if c.buffer[i] == tef.ETX {
				etxIdx = i
				break
			}
		}
		if etxIdx < 0 {
			// Frame not yet complete; wait for the next chunk.
			c.mu.Unlock()
			return
		}

		frameEnd := etxIdx + 2 // ETX plus the trailing LRC byte
		if frameEnd > len(c.buffer) {
			c.mu.Unlock()
			return
		}

		candidate := c.buffer[:frameEnd]
		c.buffer = c.buffer[frameEnd:]

		resp, err := tef.Decode(candidate)
		pending := c.pending
		c.mu.Unlock()

		if err != nil {
			c.log.Warn("tef: discarding undecodable frame", "error", err)
			if c.metrics != nil {
				c.metrics.RecordDecodeFailure()
			}
			c.mu.Lock()
			continue
		}

		if werr := c.transport.Write([]byte{tef.ACK}); werr != nil {
			c.log.Warn("tef: failed to send ACK", "error", werr)
		} else if c.metrics != nil {
			c.metrics.RecordFrameACKed()
		}

		if pending != nil && c.clearPending(pending) {
			pending.done <- result{resp: resp}
		}

		c.mu.Lock()
	}
}
