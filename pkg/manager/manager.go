package manager

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/glompo-dev/glompo/pkg/bus"
	"github.com/glompo-dev/glompo/pkg/common"
	"github.com/glompo-dev/glompo/pkg/logbook"
	"github.com/glompo-dev/glompo/pkg/opt"
	"github.com/glompo-dev/glompo/pkg/selector"
	"github.com/glompo-dev/glompo/pkg/worker"
)

// drainTimeout bounds the blocking read of the drain step so the
// manager keeps servicing hunts, checks and checkpoints.
const drainTimeout = 100 * time.Millisecond

// reapTimeout bounds the wait for a worker's exit status after its
// final packet arrived.
const reapTimeout = 2 * time.Second

// Manager owns the iteration log, the worker handles and the main
// scheduling loop. Its loop runs single-threaded; workers communicate
// only through the result queue and their signal endpoints.
type Manager struct {
	cfg    Config
	logger *common.Logger

	runID   string
	log     *logbook.Log
	results *bus.ResultQueue

	handles map[uint32]*workerHandle
	order   []uint32

	rootCtx    context.Context
	rootCancel context.CancelFunc
	wg         sync.WaitGroup

	t0     time.Time
	nextID uint32

	killCount      int
	convergedCount int
	crashedCount   int

	converged        bool
	selectorDone     bool
	resultsSinceHunt int

	lastStatus          time.Time
	lastCheckpoint      time.Time
	lastCheckpointCalls uint64
	checkpointedAtConv  bool
}

// New validates the configuration and assembles a manager. The run
// starts with Start.
func New(cfg Config) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logPath := ""
	if cfg.LogFile != "" {
		logPath = cfg.LogFile
		if !filepath.IsAbs(logPath) {
			logPath = filepath.Join(cfg.WorkingDir, logPath)
		}
	}
	runID := uuid.NewString()
	logger := cfg.Logger.With("run_id", runID[:8])
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:        cfg,
		logger:     logger,
		runID:      runID,
		log:        logbook.New(logPath, logger),
		results:    bus.NewResultQueue(cfg.ResultBuffer),
		handles:    make(map[uint32]*workerHandle),
		rootCtx:    ctx,
		rootCancel: cancel,
	}, nil
}

// RunID returns the unique identity of this run.
func (m *Manager) RunID() string { return m.runID }

// Log exposes the iteration log for inspection after the run.
func (m *Manager) Log() *logbook.Log { return m.log }

// Start executes the managed optimization to completion and returns
// the best point observed across all optimizers.
func (m *Manager) Start() (opt.Result, error) {
	m.t0 = time.Now()
	m.lastStatus = m.t0
	m.lastCheckpoint = m.t0
	m.logger.Info("optimization started: max_jobs=%d bounds=%d checker=%s",
		m.cfg.MaxJobs, len(m.cfg.Bounds), m.cfg.Checker)

	for {
		if !m.converged && !m.selectorDone {
			if err := m.fillUp(); err != nil {
				m.abort(err)
				return opt.Result{}, err
			}
		}

		m.drain()

		if m.cfg.Hunters != nil && !m.converged && m.resultsSinceHunt >= m.cfg.HuntInterval {
			m.huntRound()
			m.resultsSinceHunt = 0
		}

		if !m.converged {
			m.cfg.Checker.Reset()
			if m.cfg.Checker.Evaluate(m) {
				m.converged = true
				m.logger.Info("converged: %s", m.cfg.Checker.StringWithResult())
				m.broadcastStop()
			}
		}

		m.maybeCheckpoint()
		m.maybeStatus()

		if m.converged {
			break
		}
		if m.liveCount() == 0 && m.selectorDone && m.results.Len() == 0 {
			m.logger.Info("selector exhausted and all workers finished")
			break
		}
	}

	m.shutdown()
	return m.finish()
}

// check.View implementation. Evaluated synchronously on the manager
// thread against the live log.

// FuncCalls implements check.View.
func (m *Manager) FuncCalls() uint64 { return m.log.FCallsTotal() }

// Elapsed implements check.View.
func (m *Manager) Elapsed() time.Duration { return time.Since(m.t0) }

// BestFx implements check.View.
func (m *Manager) BestFx() float64 {
	if best, ok := m.log.BestIter(); ok {
		return best.Fx
	}
	return math.Inf(1)
}

// KillCount implements check.View.
func (m *Manager) KillCount() int { return m.killCount }

// ConvergedCount implements check.View.
func (m *Manager) ConvergedCount() int { return m.convergedCount }

// freeSlots is MaxJobs minus the slots of all running and paused
// workers.
func (m *Manager) freeSlots() int {
	used := 0
	for _, h := range m.handles {
		if h.occupiesSlots() {
			used += h.slots
		}
	}
	return m.cfg.MaxJobs - used
}

func (m *Manager) liveCount() int {
	n := 0
	for _, h := range m.handles {
		if h.live() {
			n++
		}
	}
	return n
}

func (m *Manager) runningCount() int {
	n := 0
	for _, h := range m.handles {
		if h.occupiesSlots() {
			n++
		}
	}
	return n
}

// fillUp spawns workers while the selector produces packages that fit
// the free slots. An out-of-bounds startpoint aborts the run.
func (m *Manager) fillUp() error {
	for {
		free := m.freeSlots()
		if free <= 0 {
			return nil
		}
		pkg, more := m.cfg.Selector.Select(free, selector.Context{
			TotalFCalls: m.log.FCallsTotal(),
			Started:     len(m.handles),
			Running:     m.runningCount(),
		})
		if pkg == nil {
			if !more {
				m.selectorDone = true
				m.logger.Debug("selector exhausted after %d spawns", len(m.handles))
			}
			return nil
		}
		x0 := m.cfg.Generator.Generate(m.cfg.Bounds)
		if !opt.InBounds(x0, m.cfg.Bounds) {
			return fmt.Errorf("manager: generator produced out-of-bounds startpoint %v", x0)
		}
		optimizer := pkg.Factory.New()
		if _, err := m.spawn(pkg.Factory.Name, pkg.Slots, optimizer, x0, false); err != nil {
			return err
		}
	}
}

// spawn registers a handle and launches the worker goroutine. With
// restored true the log stream already exists from a checkpoint.
func (m *Manager) spawn(factoryName string, slots int, optimizer opt.Optimizer, x0 []float64, restored bool) (*workerHandle, error) {
	var id uint32
	if restored {
		id = m.nextID // caller pre-set via spawnRestored
	} else {
		m.nextID++
		id = m.nextID
	}

	if !restored {
		meta := opt.Metadata{
			OptID:         id,
			Type:          factoryName,
			StartTime:     time.Now(),
			Slots:         slots,
			StartingPoint: append([]float64(nil), x0...),
		}
		if err := m.log.AddOptimizer(meta); err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithCancel(m.rootCtx)
	endpoint := bus.NewEndpoint()
	gate := bus.NewGate(true)
	driver := worker.New(worker.Config{
		OptID:     id,
		Optimizer: optimizer,
		Task:      m.cfg.Task,
		X0:        x0,
		Bounds:    m.cfg.Bounds,
		Results:   m.results,
		Endpoint:  endpoint,
		Gate:      gate,
		Ctx:       ctx,
		Logger:    m.logger,
	})

	h := &workerHandle{
		id:          id,
		factoryName: factoryName,
		slots:       slots,
		startPoint:  append([]float64(nil), x0...),
		state:       StatePending,
		driver:      driver,
		endpoint:    endpoint,
		gate:        gate,
		cancel:      cancel,
		startTime:   time.Now(),
	}
	m.handles[id] = h
	m.order = append(m.order, id)

	driver.Start(&m.wg)
	if err := h.transition(StateRunning); err != nil {
		return nil, err
	}
	m.logger.Info("spawned optimizer %d (%s, %d slots) at %v", id, factoryName, slots, x0)
	return h, nil
}

// drain blocks briefly for the next result, then absorbs everything
// already queued and sweeps for silently finished workers.
func (m *Manager) drain() {
	if r, ok := m.results.Get(drainTimeout); ok {
		m.ingest(r)
		for {
			r, ok := m.results.TryGet()
			if !ok {
				break
			}
			m.ingest(r)
		}
	}
	m.sweepDone()
}

// ingest appends one result to the log and reaps the sender if it was
// final.
func (m *Manager) ingest(r opt.IterationResult) {
	err := m.log.PutIteration(r)
	switch {
	case err == nil:
		m.resultsSinceHunt++
	case errors.Is(err, logbook.ErrOutOfOrder):
		// Already recorded by the log; the iteration is dropped.
	default:
		m.logger.Debug("result from optimizer %d dropped: %v", r.OptID, err)
	}

	if r.Final {
		if h, ok := m.handles[r.OptID]; ok && !h.finalSeen {
			h.finalSeen = true
			m.reap(h, nil)
		}
	}
}

// sweepDone catches workers whose goroutine ended without the manager
// having processed a final packet, e.g. after a crash.
func (m *Manager) sweepDone() {
	for _, h := range m.handles {
		if !h.live() || h.finalSeen {
			continue
		}
		select {
		case status := <-h.driver.Done():
			m.reap(h, &status)
		default:
		}
	}
}

// reap joins a finished worker, records its terminal state and end
// condition and releases its slots. status may be pre-fetched by the
// caller.
func (m *Manager) reap(h *workerHandle, status *worker.ExitStatus) {
	if h.reaped {
		return
	}
	if status == nil {
		select {
		case st := <-h.driver.Done():
			status = &st
		case <-time.After(reapTimeout):
			status = &worker.ExitStatus{OptID: h.id, EndCond: "exit status missing", Crashed: true}
			h.cancel()
		}
	}

	endCond := h.endCond
	if endCond == "" {
		endCond = status.EndCond
	}

	if !h.state.Terminal() {
		target := StateConverged
		if status.Crashed {
			target = StateCrashed
		}
		if err := h.transition(target); err != nil {
			m.logger.Warn("reap of optimizer %d: %v", h.id, err)
		}
	}

	switch h.state {
	case StateConverged:
		m.convergedCount++
	case StateCrashed:
		m.crashedCount++
	}

	if err := m.log.MarkEnd(h.id, endCond); err == nil {
		m.log.PutMessage(h.id, endCond)
	}
	if err := h.transition(StateReaped); err != nil {
		m.logger.Warn("reap of optimizer %d: %v", h.id, err)
	}
	h.cancel()
	m.logger.Info("optimizer %d reaped: %s (%s)", h.id, h.endState, endCond)
}

// broadcastStop orders every live worker to stop, opening gates so
// paused workers can reach their iteration boundary.
func (m *Manager) broadcastStop() {
	for _, h := range m.handles {
		if !h.live() || h.finalSeen {
			continue
		}
		h.gate.Set()
		if err := h.endpoint.Send(bus.Signal{Code: bus.SignalStop}); err != nil {
			m.logger.Warn("stop signal to optimizer %d: %v", h.id, err)
		}
	}
}

// abort tears the run down after a fatal setup error.
func (m *Manager) abort(cause error) {
	m.logger.Error("aborting run: %v", cause)
	m.broadcastStop()
	m.shutdown()
	if err := m.log.Close(); err != nil {
		m.logger.Warn("log close failed: %v", err)
	}
}

// shutdown drains workers within the end timeout, then force-reaps
// the survivors as crashed.
func (m *Manager) shutdown() {
	m.broadcastStop()
	deadline := time.Now().Add(m.cfg.EndTimeout)
	for m.liveCount() > 0 && time.Now().Before(deadline) {
		m.drain()
	}

	for _, h := range m.handles {
		if !h.live() {
			continue
		}
		h.cancel()
		h.endCond = "timeout"
		if !h.state.Terminal() {
			if err := h.transition(StateCrashed); err != nil {
				m.logger.Warn("force reap of optimizer %d: %v", h.id, err)
			}
		}
		m.crashedCount++
		if err := m.log.MarkEnd(h.id, "timeout"); err == nil {
			m.log.PutMessage(h.id, "force-terminated: no final result within end timeout")
		}
		if err := h.transition(StateReaped); err != nil {
			m.logger.Warn("force reap of optimizer %d: %v", h.id, err)
		}
		m.logger.Warn("optimizer %d force-terminated after end timeout", h.id)
	}

	m.waitWorkers(2 * time.Second)
	m.rootCancel()
}

// waitWorkers joins the worker goroutines with an upper bound; a task
// stuck inside an objective evaluation must not hang the manager.
func (m *Manager) waitWorkers(limit time.Duration) {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(limit):
		m.logger.Warn("some workers did not unwind within %v", limit)
	}
}

// finish closes the log, writes the optional summary files and
// assembles the final result.
func (m *Manager) finish() (opt.Result, error) {
	if err := m.log.Close(); err != nil {
		m.logger.Warn("log close failed: %v", err)
	}
	if m.cfg.SummaryFiles {
		if err := m.log.SaveSummary(filepath.Join(m.cfg.WorkingDir, "glompo_summary.yml")); err != nil {
			m.logger.Warn("summary write failed: %v", err)
		}
		if err := m.log.SaveOptimizerFiles(filepath.Join(m.cfg.WorkingDir, "glompo_optimizers")); err != nil {
			m.logger.Warn("optimizer files write failed: %v", err)
		}
	}

	res := opt.Result{
		Fx: math.Inf(1),
		Stats: opt.RunStats{
			FCalls:        m.log.FCallsTotal(),
			Iterations:    m.log.Len(),
			OptsStarted:   len(m.handles),
			OptsKilled:    m.killCount,
			OptsConverged: m.convergedCount,
			OptsCrashed:   m.crashedCount,
			Elapsed:       time.Since(m.t0),
		},
	}
	if best, ok := m.log.BestIter(); ok {
		res.X = best.X
		res.Fx = best.Fx
		if meta, found := m.log.Meta(best.OptID); found {
			res.Origin = opt.Origin{
				OptID:         best.OptID,
				OptType:       meta.Type,
				StartingPoint: meta.StartingPoint,
				EndCond:       meta.EndCond,
			}
		}
	}
	m.logger.Info("optimization finished: fx=%v f_calls=%d started=%d killed=%d converged=%d crashed=%d",
		res.Fx, res.Stats.FCalls, res.Stats.OptsStarted, res.Stats.OptsKilled,
		res.Stats.OptsConverged, res.Stats.OptsCrashed)
	return res, nil
}

// maybeStatus logs a one-line summary every StatusFrequency.
func (m *Manager) maybeStatus() {
	if time.Since(m.lastStatus) < m.cfg.StatusFrequency {
		return
	}
	m.lastStatus = time.Now()
	m.logger.Info("status: running=%d slots_free=%d f_calls=%d iterations=%d best=%v kills=%d",
		m.runningCount(), m.freeSlots(), m.log.FCallsTotal(), m.log.Len(), m.BestFx(), m.killCount)
}
