// Package hunt provides the termination heuristics ("hunters")
// evaluated by the manager against pairs of running optimizers. A
// hunter firing means the victim should be killed. Hunters compose
// with And/Or through the cond tree.
package hunt

import (
	"math"

	"github.com/glompo-dev/glompo/pkg/cond"
	"github.com/glompo-dev/glompo/pkg/logbook"
	"github.com/glompo-dev/glompo/pkg/opt"
)

// Args is the evaluation context handed to every hunter leaf: the
// iteration log plus the identities of the hunting and the hunted
// optimizer. Leaves must not retain the log across calls.
type Args struct {
	Log      *logbook.Log
	HunterID uint32
	VictimID uint32
}

// Hunter is a hunter predicate tree.
type Hunter = cond.Node[Args]

// history fetches a track, mapping lookup failures onto an empty
// series so hunters degrade to "don't fire".
func history(log *logbook.Log, optID uint32, track logbook.Track) []float64 {
	h, err := log.GetHistory(optID, track)
	if err != nil {
		return nil
	}
	return h
}

// normDistance is the bound-normalized euclidean distance between two
// points, scaled by the square root of the dimensionality so it stays
// a fraction of the search-space diagonal.
func normDistance(a, b []float64, bounds []opt.Bound) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if len(bounds) < n {
		n = len(bounds)
	}
	var sum float64
	for i := 0; i < n; i++ {
		d := (a[i] - b[i]) / bounds[i].Range()
		sum += d * d
	}
	return math.Sqrt(sum) / math.Sqrt(float64(len(bounds)))
}

// relativeUnmoved reports whether cur has moved from ref by no more
// than tol as a fraction of |ref|.
func relativeUnmoved(cur, ref, tol float64) bool {
	return math.Abs(cur-ref) <= math.Abs(ref*tol)
}
