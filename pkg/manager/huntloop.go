package manager

import (
	"fmt"

	"github.com/glompo-dev/glompo/pkg/bus"
	"github.com/glompo-dev/glompo/pkg/hunt"
)

// huntRound evaluates the configured hunters for every running
// victim. The pairing rule: every running or paused worker whose best
// value is strictly better than the victim's hunts it, tried in spawn
// order; the first hunter that fires kills the victim.
func (m *Manager) huntRound() {
	for _, victimID := range m.order {
		victim := m.handles[victimID]
		if victim == nil || !victim.occupiesSlots() {
			continue
		}
		victimBest := m.log.FxBest(victimID)

		for _, hunterID := range m.order {
			if hunterID == victimID {
				continue
			}
			hunter := m.handles[hunterID]
			if hunter == nil || !hunter.occupiesSlots() {
				continue
			}
			if !(m.log.FxBest(hunterID) < victimBest) {
				continue
			}

			args := hunt.Args{Log: m.log, HunterID: hunterID, VictimID: victimID}
			if m.cfg.KillingConditions != nil {
				m.cfg.KillingConditions.Reset()
				if !m.cfg.KillingConditions.Evaluate(args) {
					continue
				}
			}
			m.cfg.Hunters.Reset()
			if m.cfg.Hunters.Evaluate(args) {
				m.kill(victim, hunterID)
				break
			}
		}
	}
}

// kill dispatches the stop signal to a hunted victim and records the
// verdict. The victim stops counting against the slot budget as soon
// as it is marked killed; its handle is reaped once its final packet
// is drained.
func (m *Manager) kill(victim *workerHandle, hunterID uint32) {
	victim.gate.Set()
	if err := victim.endpoint.Send(bus.Signal{Code: bus.SignalStop}); err != nil {
		m.logger.Warn("kill signal to optimizer %d: %v", victim.id, err)
		return
	}
	if err := victim.transition(StateKilled); err != nil {
		m.logger.Warn("kill of optimizer %d: %v", victim.id, err)
		return
	}
	m.killCount++
	victim.endCond = fmt.Sprintf("killed by optimizer %d", hunterID)
	m.log.PutMessage(victim.id, fmt.Sprintf(
		"hunt: optimizer %d terminated in favor of optimizer %d [%s]",
		victim.id, hunterID, m.cfg.Hunters.StringWithResult()))
	m.logger.Info("optimizer %d killed by optimizer %d", victim.id, hunterID)
}
