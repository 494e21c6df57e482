// Package worker runs one optimizer inside its own goroutine and
// enforces the worker contract: result delivery, signal polling,
// cooperative pause and crash containment.
package worker

import (
	"context"
	"fmt"
	"math"
	"runtime/debug"
	"sync"
	"time"

	"github.com/glompo-dev/glompo/pkg/bus"
	"github.com/glompo-dev/glompo/pkg/common"
	"github.com/glompo-dev/glompo/pkg/opt"
)

// ExitStatus is the driver's report to the manager once the worker
// goroutine has unwound.
type ExitStatus struct {
	OptID   uint32
	EndCond string
	Crashed bool
	Err     error
}

// Driver supervises a single optimizer. It owns the worker side of
// the signal endpoint and the pause gate, and is the only code in the
// worker goroutine that talks to the manager.
type Driver struct {
	id        uint32
	optimizer opt.Optimizer
	task      opt.Task
	x0        []float64
	bounds    []opt.Bound

	results  *bus.ResultQueue
	endpoint *bus.Endpoint
	gate     *bus.Gate
	ctx      context.Context
	logger   *common.Logger

	done chan ExitStatus

	mu         sync.Mutex
	stopped    bool
	stopReason string
	lastN      int
	bestX      []float64
	bestFx     float64
}

// Config gathers everything a Driver needs; all fields are required
// except Logger.
type Config struct {
	OptID     uint32
	Optimizer opt.Optimizer
	Task      opt.Task
	X0        []float64
	Bounds    []opt.Bound
	Results   *bus.ResultQueue
	Endpoint  *bus.Endpoint
	Gate      *bus.Gate
	Ctx       context.Context
	Logger    *common.Logger
}

// New creates a driver. Start must be called to launch the worker.
func New(cfg Config) *Driver {
	logger := cfg.Logger
	if logger == nil {
		logger = common.DefaultLogger()
	}
	return &Driver{
		id:        cfg.OptID,
		optimizer: cfg.Optimizer,
		task:      cfg.Task,
		x0:        cfg.X0,
		bounds:    cfg.Bounds,
		results:   cfg.Results,
		endpoint:  cfg.Endpoint,
		gate:      cfg.Gate,
		ctx:       cfg.Ctx,
		logger:    logger.With("opt_id", fmt.Sprintf("%d", cfg.OptID)),
		done:      make(chan ExitStatus, 1),
		bestFx:    math.Inf(1),
	}
}

// Start launches the worker goroutine. wg is released when the
// goroutine has fully unwound.
func (d *Driver) Start(wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		d.run()
	}()
}

// Done delivers the exit status exactly once.
func (d *Driver) Done() <-chan ExitStatus { return d.done }

func (d *Driver) run() {
	var status ExitStatus
	status.OptID = d.id

	defer func() {
		if r := recover(); r != nil {
			status.Crashed = true
			status.Err = fmt.Errorf("optimizer panic: %v", r)
			status.EndCond = fmt.Sprintf("crashed: %v", r)
			d.logger.Error("worker crashed: %v\n%s", r, debug.Stack())
			d.emitFinal(d.bestSnapshot())
		}
		d.done <- status
	}()

	res := d.optimizer.Minimize(d, d.task, d.x0, d.bounds)

	d.mu.Lock()
	stopped, reason := d.stopped, d.stopReason
	d.mu.Unlock()

	switch {
	case stopped:
		status.EndCond = reason
	case res.EndCond != "":
		status.EndCond = res.EndCond
	default:
		status.EndCond = "optimizer convergence"
	}

	final := res
	if final.X == nil {
		final = d.bestSnapshot()
	}
	d.emitFinal(final)
}

func (d *Driver) bestSnapshot() opt.MinimizeResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	return opt.MinimizeResult{X: d.bestX, Fx: d.bestFx}
}

// emitFinal flushes the one final packet every worker owes the
// manager. Delivery is abandoned if the manager cancelled the context.
func (d *Driver) emitFinal(res opt.MinimizeResult) {
	d.mu.Lock()
	n := d.lastN + 1
	d.mu.Unlock()

	packet := opt.IterationResult{
		OptID: d.id,
		NIter: n,
		X:     res.X,
		Fx:    opt.SanitizeFx(res.Fx),
		Final: true,
	}
	if err := d.results.Put(d.ctx, packet); err != nil {
		d.logger.Debug("final packet dropped: %v", err)
	}
}

// Report implements opt.Control. It is the worker's only suspension
// point: deliver, poll signals, honor the pause gate.
func (d *Driver) Report(nIter, iFcalls int, x []float64, fx float64) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return opt.ErrStopRequested
	}
	d.lastN = nIter
	fx = opt.SanitizeFx(fx)
	if fx < d.bestFx {
		d.bestFx = fx
		d.bestX = append([]float64(nil), x...)
	}
	d.mu.Unlock()

	r := opt.IterationResult{
		OptID:   d.id,
		NIter:   nIter,
		IFcalls: iFcalls,
		X:       append([]float64(nil), x...),
		Fx:      fx,
	}
	if err := d.results.Put(d.ctx, r); err != nil {
		d.markStopped("aborted: manager gone")
		return opt.ErrStopRequested
	}

	if err := d.pollSignals(); err != nil {
		return err
	}

	if err := d.waitGate(); err != nil {
		return err
	}

	if d.ctx.Err() != nil {
		d.markStopped("aborted: context cancelled")
		return opt.ErrStopRequested
	}
	return nil
}

// waitGate blocks while the pause gate is cleared, continuing to
// serve stop and save_state signals so a paused worker can still be
// checkpointed or killed.
func (d *Driver) waitGate() error {
	for {
		open, err := d.gate.WaitTimeout(d.ctx, 20*time.Millisecond)
		if err != nil {
			d.markStopped("aborted: context cancelled while paused")
			return opt.ErrStopRequested
		}
		if open {
			return nil
		}
		if err := d.pollSignals(); err != nil {
			return err
		}
	}
}

// pollSignals drains the inbound endpoint and acts on each code.
func (d *Driver) pollSignals() error {
	for {
		sig, ok := d.endpoint.Poll()
		if !ok {
			return nil
		}
		switch sig.Code {
		case bus.SignalStop:
			d.endpoint.Acknowledge(sig.Code, nil)
			d.markStopped("stop signal received")
			return opt.ErrStopRequested
		case bus.SignalSaveState:
			err := d.optimizer.SaveState(sig.Path)
			if err != nil {
				d.logger.Warn("save_state failed: %v", err)
			}
			d.endpoint.Acknowledge(sig.Code, err)
		case bus.SignalPause:
			d.endpoint.Acknowledge(sig.Code, nil)
			if err := d.waitGate(); err != nil {
				return err
			}
		default:
			d.logger.Warn("unknown signal code %d ignored", int(sig.Code))
			d.endpoint.Acknowledge(sig.Code, fmt.Errorf("unknown signal code %d", int(sig.Code)))
		}
	}
}

func (d *Driver) markStopped(reason string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.stopped {
		d.stopped = true
		d.stopReason = reason
	}
}

// Stopped implements opt.Control.
func (d *Driver) Stopped() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopped
}

// OptID implements opt.Control.
func (d *Driver) OptID() uint32 { return d.id }
