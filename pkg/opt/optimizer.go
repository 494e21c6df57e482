package opt

// MinimizeResult is what an optimizer hands back to its driver when
// its loop ends, naturally or on order.
type MinimizeResult struct {
	X       []float64
	Fx      float64
	Success bool
	EndCond string
}

// Control is the driver-side handle an optimizer uses at every
// iteration boundary. Report is the single cooperative suspension
// point of the worker contract: it delivers the iteration to the
// manager, polls and acknowledges control signals, and blocks on the
// pause gate. It returns ErrStopRequested once the manager has ordered
// the worker to stop; the optimizer must then return from Minimize.
type Control interface {
	// Report delivers one iteration. iFcalls is the number of function
	// evaluations performed in this iteration, not cumulative.
	Report(nIter, iFcalls int, x []float64, fx float64) error
	// Stopped reports whether a stop order has been received.
	Stopped() bool
	// OptID is the worker identity assigned by the manager.
	OptID() uint32
}

// Optimizer is the contract every worker algorithm implements. The
// core never interprets what happens inside Minimize beyond the
// Control protocol.
type Optimizer interface {
	// Minimize runs the optimizer from x0 until convergence or until
	// Report returns ErrStopRequested. It must not panic past its top
	// frame; the driver treats an escaped panic as a crash.
	Minimize(ctl Control, task Task, x0 []float64, bounds []Bound) MinimizeResult
	// SaveState serializes the optimizer state to path so a later run
	// can resume from it.
	SaveState(path string) error
}

// Factory models an optimizer class: how to construct a fresh
// instance and how to restore one from a saved state.
type Factory struct {
	// Name identifies the class in logs, metadata and checkpoints.
	Name string
	// New constructs a fresh instance.
	New func() Optimizer
	// Restore rebuilds an instance from state saved by SaveState.
	// Optional; classes without it cannot resume from a checkpoint.
	Restore func(path string) (Optimizer, error)
}
