package logbook

import (
	"math"

	"github.com/glompo-dev/glompo/pkg/opt"
)

// StreamDump is the full content of one optimizer stream, used by the
// checkpointing layer.
type StreamDump struct {
	Meta     opt.Metadata
	Extra    map[string]string
	Iters    []Iteration
	Messages []string
	Final    bool
}

// Dump returns the complete log content in insertion order.
func (l *Log) Dump() []StreamDump {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]StreamDump, 0, len(l.order))
	for _, id := range l.order {
		s := l.streams[id]
		out = append(out, StreamDump{
			Meta:     s.meta,
			Extra:    copyMap(s.extra),
			Iters:    append([]Iteration(nil), s.iters...),
			Messages: append([]string(nil), s.messages...),
			Final:    s.final,
		})
	}
	return out
}

// Restore rebuilds the log from a Dump. The log must be empty.
// Per-stream running values and the global best are recomputed from
// the iterations, honoring the earliest-arrival tie break implied by
// the stored order.
func (l *Log) Restore(dumps []StreamDump) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.streams) != 0 {
		return ErrDuplicateOptimizer
	}
	var bestTS float64
	for _, d := range dumps {
		if _, exists := l.streams[d.Meta.OptID]; exists {
			return ErrDuplicateOptimizer
		}
		s := &stream{
			meta:     d.Meta,
			extra:    copyMap(d.Extra),
			iters:    append([]Iteration(nil), d.Iters...),
			messages: append([]string(nil), d.Messages...),
			final:    d.Final,
			fxBest:   math.Inf(1),
			iBest:    -1,
		}
		for _, it := range s.iters {
			if it.Fx < s.fxBest {
				s.fxBest = it.Fx
				s.iBest = it.NIter
			}
			s.fcalls = it.FCallOpt
			if it.FCallOverall > l.fcallsOverall {
				l.fcallsOverall = it.FCallOverall
			}
			// Equal values keep the earlier arrival, whichever stream
			// it belongs to.
			if it.Fx < l.best.Fx || (l.hasBest && it.Fx == l.best.Fx && it.Timestamp < bestTS) {
				l.best = BestIter{OptID: d.Meta.OptID, NIter: it.NIter, X: it.X, Fx: it.Fx}
				l.hasBest = true
				bestTS = it.Timestamp
			}
			l.total++
		}
		l.streams[d.Meta.OptID] = s
		l.order = append(l.order, d.Meta.OptID)
	}
	return nil
}

func copyMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
