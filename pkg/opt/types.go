// Package opt defines the data model shared by the manager and its
// workers, the worker contract every optimizer implementation must
// honor, and a small reference optimizer.
package opt

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Bound is a closed search-space interval for one parameter.
type Bound struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Valid reports whether the bound spans a positive range.
func (b Bound) Valid() bool {
	return b.Min < b.Max && !math.IsNaN(b.Min) && !math.IsNaN(b.Max)
}

// Contains reports whether v lies inside the bound.
func (b Bound) Contains(v float64) bool {
	return v >= b.Min && v <= b.Max
}

// Range returns the width of the bound.
func (b Bound) Range() float64 {
	return b.Max - b.Min
}

// InBounds reports whether x is coordinate-wise inside bounds. The
// vector must have exactly one coordinate per bound.
func InBounds(x []float64, bounds []Bound) bool {
	if len(x) != len(bounds) {
		return false
	}
	for i, v := range x {
		if !bounds[i].Contains(v) {
			return false
		}
	}
	return true
}

// IterationResult is the atomic unit of worker output. Fx of +Inf
// denotes an invalid evaluation. Timestamp is seconds since manager
// start, assigned on arrival at the manager.
type IterationResult struct {
	OptID     uint32    `json:"opt_id"`
	NIter     int       `json:"n_iter"`
	IFcalls   int       `json:"i_fcalls"`
	X         []float64 `json:"x"`
	Fx        float64   `json:"fx"`
	Final     bool      `json:"final"`
	Timestamp float64   `json:"timestamp"`
	Extras    []float64 `json:"extras,omitempty"`
}

// Metadata describes one spawned optimizer for the log and the final
// result origin.
type Metadata struct {
	OptID         uint32    `json:"opt_id"`
	Type          string    `json:"type"`
	InitNote      string    `json:"init_note,omitempty"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time,omitempty"`
	EndCond       string    `json:"end_cond,omitempty"`
	Slots         int       `json:"slots"`
	StartingPoint []float64 `json:"starting_point"`
}

// RunStats summarizes a finished managed run.
type RunStats struct {
	FCalls        uint64        `json:"f_calls"`
	Iterations    int           `json:"iterations"`
	OptsStarted   int           `json:"opts_started"`
	OptsKilled    int           `json:"opts_killed"`
	OptsConverged int           `json:"opts_converged"`
	OptsCrashed   int           `json:"opts_crashed"`
	Elapsed       time.Duration `json:"elapsed"`
}

// Origin records which optimizer produced the winning point.
type Origin struct {
	OptID         uint32    `json:"opt_id"`
	OptType       string    `json:"opt_type"`
	StartingPoint []float64 `json:"starting_point"`
	EndCond       string    `json:"end_cond"`
}

// Result is the manager's return value. With an empty log X is nil
// and Fx is +Inf.
type Result struct {
	X      []float64 `json:"x"`
	Fx     float64   `json:"fx"`
	Stats  RunStats  `json:"stats"`
	Origin Origin    `json:"origin"`
}

// ErrStopRequested is returned by Control.Report once the manager has
// ordered the worker to stop. The optimizer must unwind its loop and
// return from Minimize.
var ErrStopRequested = errors.New("stop requested by manager")

// SanitizeFx maps non-finite objective values onto the +Inf failure
// marker so they flow through the log without special cases.
func SanitizeFx(fx float64) float64 {
	if math.IsNaN(fx) || math.IsInf(fx, -1) {
		return math.Inf(1)
	}
	return fx
}

// Task is the objective function under optimization.
type Task interface {
	Eval(x []float64) float64
}

// TaskFunc adapts a plain function to the Task interface.
type TaskFunc func(x []float64) float64

// Eval implements Task.
func (f TaskFunc) Eval(x []float64) float64 { return f(x) }

// ResidualTask is an optional capability for residuals-based
// optimizers.
type ResidualTask interface {
	Task
	Resids(x []float64) []float64
}

// validateBounds is shared by constructors that accept a bounds slice.
func validateBounds(bounds []Bound) error {
	if len(bounds) == 0 {
		return errors.New("bounds must not be empty")
	}
	for i, b := range bounds {
		if !b.Valid() {
			return fmt.Errorf("bound %d invalid: min=%v max=%v", i, b.Min, b.Max)
		}
	}
	return nil
}

// ValidateBounds checks that every bound spans a positive range.
func ValidateBounds(bounds []Bound) error { return validateBounds(bounds) }
