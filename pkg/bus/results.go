package bus

import (
	"context"
	"time"

	"github.com/glompo-dev/glompo/pkg/opt"
)

// ResultQueue is the bounded channel all workers deliver their
// iteration results into. A full queue blocks the producing worker,
// which naturally throttles it against a slow manager.
type ResultQueue struct {
	ch chan opt.IterationResult
}

// NewResultQueue creates a queue with the given capacity.
func NewResultQueue(capacity int) *ResultQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &ResultQueue{ch: make(chan opt.IterationResult, capacity)}
}

// Put delivers one result, blocking while the queue is full. Returns
// ctx.Err() if the worker's context is cancelled first.
func (q *ResultQueue) Put(ctx context.Context, r opt.IterationResult) error {
	select {
	case q.ch <- r:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get blocks up to timeout for the next result.
func (q *ResultQueue) Get(timeout time.Duration) (opt.IterationResult, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case r := <-q.ch:
		return r, true
	case <-timer.C:
		return opt.IterationResult{}, false
	}
}

// TryGet performs a non-blocking read.
func (q *ResultQueue) TryGet() (opt.IterationResult, bool) {
	select {
	case r := <-q.ch:
		return r, true
	default:
		return opt.IterationResult{}, false
	}
}

// Len returns the number of queued results.
func (q *ResultQueue) Len() int { return len(q.ch) }
