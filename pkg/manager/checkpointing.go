package manager

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/glompo-dev/glompo/pkg/bus"
	"github.com/glompo-dev/glompo/pkg/checkpoint"
	"github.com/glompo-dev/glompo/pkg/selector"
)

// ackTimeout bounds the wait for each worker's pause and save acks
// during a checkpoint.
const ackTimeout = 5 * time.Second

// maybeCheckpoint takes a checkpoint when the policy demands one.
// Checkpoint failures are logged and never fatal.
func (m *Manager) maybeCheckpoint() {
	p := m.cfg.Checkpointing
	if !p.Enabled() {
		return
	}
	due := false
	switch {
	case p.Interval > 0 && time.Since(m.lastCheckpoint) >= p.Interval:
		due = true
	case p.EveryFuncCalls > 0 && m.log.FCallsTotal()-m.lastCheckpointCalls >= p.EveryFuncCalls:
		due = true
	case p.AtConvergence && m.converged && !m.checkpointedAtConv:
		due = true
		m.checkpointedAtConv = true
	}
	if !due {
		return
	}
	if err := m.checkpointNow(); err != nil {
		m.logger.Error("checkpoint failed: %v", err)
	}
	m.lastCheckpoint = time.Now()
	m.lastCheckpointCalls = m.log.FCallsTotal()
}

// checkpointNow executes the checkpoint protocol: pause everyone,
// write the manager state, let every worker save itself, commit the
// directory atomically, resume.
func (m *Manager) checkpointNow() error {
	final := filepath.Join(m.cfg.Checkpointing.Dir,
		fmt.Sprintf("checkpoint_%s_%s", time.Now().Format("20060102_150405"), m.runID[:8]))
	tmp, err := checkpoint.Begin(final)
	if err != nil {
		return err
	}

	// Drain ahead of the pause so no worker is blocked on a full
	// queue when the pause acks are collected.
	m.drainQueued()
	paused := m.pauseAll()
	defer m.resumeAll(paused)
	m.drainQueued()

	st := &checkpoint.State{
		RunID:          m.runID,
		CapturedAt:     time.Now(),
		MaxJobs:        m.cfg.MaxJobs,
		Bounds:         m.cfg.Bounds,
		FCallsOverall:  m.log.FCallsTotal(),
		KillCount:      m.killCount,
		ConvergedCount: m.convergedCount,
		CrashedCount:   m.crashedCount,
		NextOptID:      m.nextID,
		Streams:        checkpoint.StreamsFromLog(m.log.Dump()),
	}

	if s, ok := m.cfg.Selector.(selector.Stateful); ok {
		if st.SelectorState, err = s.CaptureState(); err != nil {
			return fmt.Errorf("selector state capture: %w", err)
		}
	}
	if g, ok := m.cfg.Generator.(selector.Stateful); ok {
		if st.GeneratorState, err = g.CaptureState(); err != nil {
			return fmt.Errorf("generator state capture: %w", err)
		}
	}

	for _, id := range m.order {
		h := m.handles[id]
		hs := checkpoint.HandleState{
			OptID:      h.id,
			Factory:    h.factoryName,
			Slots:      h.slots,
			StartPoint: h.startPoint,
			State:      h.state.String(),
		}
		if h.occupiesSlots() {
			wd, err := checkpoint.WorkerDir(tmp, h.id)
			if err != nil {
				return err
			}
			statePath := filepath.Join(wd, "state.json")
			if err := h.endpoint.Send(bus.Signal{Code: bus.SignalSaveState, Path: statePath}); err != nil {
				m.logger.Warn("save_state signal to optimizer %d: %v", h.id, err)
			} else if ack, err := h.endpoint.WaitAck(bus.SignalSaveState, ackTimeout); err != nil {
				m.logger.Warn("optimizer %d save_state: %v", h.id, err)
			} else if ack.Err != nil {
				m.logger.Warn("optimizer %d save_state: %v", h.id, ack.Err)
			} else {
				rel, _ := filepath.Rel(tmp, wd)
				hs.WorkerDir = rel
			}
		}
		st.Handles = append(st.Handles, hs)
	}

	if err := checkpoint.WriteState(tmp, st); err != nil {
		return err
	}
	if err := checkpoint.Commit(tmp, final); err != nil {
		return err
	}
	m.logger.Info("checkpoint written to %s", final)
	return nil
}

// drainQueued absorbs everything currently sitting in the result
// queue without blocking.
func (m *Manager) drainQueued() {
	for {
		r, ok := m.results.TryGet()
		if !ok {
			return
		}
		m.ingest(r)
	}
}

// pauseAll clears the gates of all running workers and collects their
// pause acks. Returns the handles that were paused.
func (m *Manager) pauseAll() []*workerHandle {
	var paused []*workerHandle
	for _, id := range m.order {
		h := m.handles[id]
		if h.state != StateRunning {
			continue
		}
		if err := h.endpoint.Send(bus.Signal{Code: bus.SignalPause}); err != nil {
			m.logger.Warn("pause signal to optimizer %d: %v", h.id, err)
			continue
		}
		h.gate.Clear()
		if err := h.transition(StatePaused); err != nil {
			m.logger.Warn("pause of optimizer %d: %v", h.id, err)
			continue
		}
		paused = append(paused, h)
	}
	for _, h := range paused {
		if _, err := h.endpoint.WaitAck(bus.SignalPause, ackTimeout); err != nil {
			m.logger.Warn("optimizer %d pause: %v", h.id, err)
		}
	}
	return paused
}

// resumeAll reopens the gates of previously paused workers.
func (m *Manager) resumeAll(paused []*workerHandle) {
	for _, h := range paused {
		h.gate.Set()
		if h.state == StatePaused {
			if err := h.transition(StateRunning); err != nil {
				m.logger.Warn("resume of optimizer %d: %v", h.id, err)
			}
		}
	}
}
