// Package manager implements the scheduling core: it spawns workers
// through a selector under a bounded slot budget, drains their
// results into the log, hunts unpromising optimizers, checks global
// convergence and checkpoints the run.
package manager

import (
	"context"
	"fmt"
	"time"

	"github.com/glompo-dev/glompo/pkg/bus"
	"github.com/glompo-dev/glompo/pkg/worker"
)

// WorkerState is the lifecycle state of a managed worker.
type WorkerState int

const (
	// StatePending is assigned between selection and spawn.
	StatePending WorkerState = iota
	// StateRunning means the worker goroutine is iterating.
	StateRunning
	// StatePaused means the worker's gate is cleared; it still
	// occupies its slots.
	StatePaused
	// StateKilled means a hunter fired and the stop signal was sent.
	StateKilled
	// StateConverged means the worker ended on its own terms.
	StateConverged
	// StateCrashed means the worker panicked or was force-terminated.
	StateCrashed
	// StateReaped means the terminal state has been recorded and the
	// worker joined.
	StateReaped
)

// String returns the lowercase state name.
func (s WorkerState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateKilled:
		return "killed"
	case StateConverged:
		return "converged"
	case StateCrashed:
		return "crashed"
	case StateReaped:
		return "reaped"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Terminal reports whether the state absorbs all transitions except
// the one to StateReaped.
func (s WorkerState) Terminal() bool {
	switch s {
	case StateKilled, StateConverged, StateCrashed, StateReaped:
		return true
	}
	return false
}

var allowedTransitions = map[WorkerState][]WorkerState{
	StatePending:   {StateRunning},
	StateRunning:   {StatePaused, StateKilled, StateConverged, StateCrashed},
	StatePaused:    {StateRunning, StateKilled, StateConverged, StateCrashed},
	StateKilled:    {StateReaped},
	StateConverged: {StateReaped},
	StateCrashed:   {StateReaped},
	StateReaped:    {},
}

// workerHandle is the manager-side record of one spawned worker.
type workerHandle struct {
	id          uint32
	factoryName string
	slots       int
	startPoint  []float64

	state    WorkerState
	endState WorkerState
	endCond  string

	driver   *worker.Driver
	endpoint *bus.Endpoint
	gate     *bus.Gate
	cancel   context.CancelFunc

	startTime time.Time
	finalSeen bool
	reaped    bool
}

// transition moves the handle to a new state, enforcing the lifecycle
// graph. Terminal states are absorbing.
func (h *workerHandle) transition(to WorkerState) error {
	for _, ok := range allowedTransitions[h.state] {
		if ok == to {
			if to == StateReaped {
				h.endState = h.state
				h.reaped = true
			}
			h.state = to
			return nil
		}
	}
	return fmt.Errorf("worker %d: illegal transition %s -> %s", h.id, h.state, to)
}

// occupiesSlots reports whether the handle counts against the budget.
func (h *workerHandle) occupiesSlots() bool {
	return h.state == StateRunning || h.state == StatePaused
}

// live reports whether the worker goroutine may still be producing.
func (h *workerHandle) live() bool {
	return !h.reaped
}
