package manager

import (
	"fmt"
	"path/filepath"

	"github.com/glompo-dev/glompo/pkg/checkpoint"
	"github.com/glompo-dev/glompo/pkg/opt"
	"github.com/glompo-dev/glompo/pkg/selector"
)

// Resume rebuilds a manager from a committed checkpoint directory.
// factories maps optimizer class names to their factories; every
// class that was running at capture time must be present and able to
// Restore. The returned manager continues the run with Start.
func Resume(cfg Config, dir string, factories map[string]opt.Factory) (*Manager, error) {
	st, err := checkpoint.Load(dir)
	if err != nil {
		return nil, fmt.Errorf("manager: failed to load checkpoint: %w", err)
	}

	m, err := New(cfg)
	if err != nil {
		return nil, err
	}

	dumps, err := checkpoint.StreamsToLog(st.Streams)
	if err != nil {
		return nil, fmt.Errorf("manager: corrupt checkpoint log: %w", err)
	}
	if err := m.log.Restore(dumps); err != nil {
		return nil, fmt.Errorf("manager: failed to restore log: %w", err)
	}

	m.runID = st.RunID
	m.nextID = st.NextOptID
	m.killCount = st.KillCount
	m.convergedCount = st.ConvergedCount
	m.crashedCount = st.CrashedCount

	if len(st.SelectorState) > 0 {
		if s, ok := m.cfg.Selector.(selector.Stateful); ok {
			if err := s.RestoreState(st.SelectorState); err != nil {
				return nil, fmt.Errorf("manager: failed to restore selector state: %w", err)
			}
		}
	}
	if len(st.GeneratorState) > 0 {
		if g, ok := m.cfg.Generator.(selector.Stateful); ok {
			if err := g.RestoreState(st.GeneratorState); err != nil {
				return nil, fmt.Errorf("manager: failed to restore generator state: %w", err)
			}
		}
	}

	for _, hs := range st.Handles {
		if hs.State != StateRunning.String() && hs.State != StatePaused.String() {
			continue
		}
		factory, ok := factories[hs.Factory]
		if !ok {
			return nil, fmt.Errorf("manager: checkpoint references unknown optimizer class %q", hs.Factory)
		}
		if factory.Restore == nil {
			return nil, fmt.Errorf("manager: optimizer class %q cannot restore state", hs.Factory)
		}
		if hs.WorkerDir == "" {
			m.logger.Warn("optimizer %d has no saved state, not respawned", hs.OptID)
			continue
		}
		optimizer, err := factory.Restore(filepath.Join(dir, hs.WorkerDir, "state.json"))
		if err != nil {
			return nil, fmt.Errorf("manager: failed to restore optimizer %d: %w", hs.OptID, err)
		}
		m.nextID = hs.OptID
		if _, err := m.spawnRestored(factory.Name, hs.Slots, optimizer, hs.StartPoint); err != nil {
			return nil, err
		}
	}
	m.nextID = st.NextOptID
	m.logger.Info("resumed run %s from %s: %d streams, %d workers respawned",
		m.runID[:8], dir, len(st.Streams), m.runningCount())
	return m, nil
}

// spawnRestored relaunches a worker whose log stream already exists.
func (m *Manager) spawnRestored(factoryName string, slots int, optimizer opt.Optimizer, x0 []float64) (*workerHandle, error) {
	return m.spawn(factoryName, slots, optimizer, x0, true)
}
