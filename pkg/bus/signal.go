package bus

import (
	"fmt"
	"time"
)

// SignalCode identifies a control signal sent from the manager to a
// worker. The numeric values are part of the protocol.
type SignalCode int

const (
	// SignalStop orders the worker to flush one final packet and exit.
	SignalStop SignalCode = 0
	// SignalSaveState orders the worker to serialize its state to the
	// path carried by the signal, acknowledge and continue.
	SignalSaveState SignalCode = 1
	// SignalPause orders the worker to acknowledge and then block on
	// its pause gate.
	SignalPause SignalCode = 2
)

// String returns the protocol name of the signal code.
func (c SignalCode) String() string {
	switch c {
	case SignalStop:
		return "stop_immediate"
	case SignalSaveState:
		return "save_state"
	case SignalPause:
		return "pause_and_ack"
	default:
		return fmt.Sprintf("unknown(%d)", int(c))
	}
}

// Signal is one control message. Path is only meaningful for
// SignalSaveState.
type Signal struct {
	Code SignalCode
	Path string
}

// Ack is a worker's acknowledgement of a processed signal.
type Ack struct {
	Code SignalCode
	Err  error
}

// Endpoint is the duplex per-worker signal channel. Each worker has
// its own endpoint, so there is no contention across workers. The
// manager holds the sending side, the worker polls between iterations.
type Endpoint struct {
	signals chan Signal
	acks    chan Ack
}

const endpointDepth = 8

// NewEndpoint creates a duplex endpoint with a small buffer on both
// directions.
func NewEndpoint() *Endpoint {
	return &Endpoint{
		signals: make(chan Signal, endpointDepth),
		acks:    make(chan Ack, endpointDepth),
	}
}

// Send enqueues a signal for the worker. Fails if the worker has
// stopped draining its endpoint.
func (e *Endpoint) Send(sig Signal) error {
	select {
	case e.signals <- sig:
		return nil
	default:
		return fmt.Errorf("signal endpoint full, %s not delivered", sig.Code)
	}
}

// Poll performs a non-blocking read of the next pending signal.
func (e *Endpoint) Poll() (Signal, bool) {
	select {
	case sig := <-e.signals:
		return sig, true
	default:
		return Signal{}, false
	}
}

// Acknowledge reports a processed signal back to the manager. Best
// effort: if the manager is not collecting acks the slot is dropped.
func (e *Endpoint) Acknowledge(code SignalCode, err error) {
	select {
	case e.acks <- Ack{Code: code, Err: err}:
	default:
	}
}

// WaitAck blocks until an ack for code arrives or timeout elapses.
// Acks for other codes received in the meantime are discarded.
func (e *Endpoint) WaitAck(code SignalCode, timeout time.Duration) (Ack, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		select {
		case ack := <-e.acks:
			if ack.Code == code {
				return ack, nil
			}
		case <-deadline.C:
			return Ack{}, fmt.Errorf("timed out waiting for %s ack", code)
		}
	}
}
