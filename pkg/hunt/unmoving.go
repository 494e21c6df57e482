package hunt

import (
	"fmt"

	"github.com/glompo-dev/glompo/pkg/cond"
	"github.com/glompo-dev/glompo/pkg/logbook"
	"github.com/glompo-dev/glompo/pkg/opt"
)

type bestUnmoving struct {
	iters int
	tol   float64
}

// BestUnmoving fires when the victim's best value has improved by no
// more than tol (relative) over its last iters iterations.
func BestUnmoving(iters int, tol float64) *Hunter {
	if iters < 1 {
		panic(fmt.Sprintf("hunt: BestUnmoving requires iters >= 1, got %d", iters))
	}
	if tol < 0 {
		panic(fmt.Sprintf("hunt: BestUnmoving requires tol >= 0, got %v", tol))
	}
	return cond.New[Args](&bestUnmoving{iters: iters, tol: tol})
}

func (h *bestUnmoving) Evaluate(a Args) bool {
	best := history(a.Log, a.VictimID, logbook.TrackFxBest)
	if len(best) <= h.iters {
		return false
	}
	cur := best[len(best)-1]
	ref := best[len(best)-1-h.iters]
	return relativeUnmoved(cur, ref, h.tol)
}

func (h *bestUnmoving) String() string {
	return fmt.Sprintf("BestUnmoving(iters=%d, tol=%v)", h.iters, h.tol)
}

type evaluationsUnmoving struct {
	calls int
	tol   float64
}

// EvaluationsUnmoving is BestUnmoving with the window measured in the
// victim's function evaluations instead of iterations.
func EvaluationsUnmoving(calls int, tol float64) *Hunter {
	if calls < 1 {
		panic(fmt.Sprintf("hunt: EvaluationsUnmoving requires calls >= 1, got %d", calls))
	}
	if tol < 0 {
		panic(fmt.Sprintf("hunt: EvaluationsUnmoving requires tol >= 0, got %v", tol))
	}
	return cond.New[Args](&evaluationsUnmoving{calls: calls, tol: tol})
}

func (h *evaluationsUnmoving) Evaluate(a Args) bool {
	best := history(a.Log, a.VictimID, logbook.TrackFxBest)
	fcalls := history(a.Log, a.VictimID, logbook.TrackFCallOpt)
	if len(best) == 0 || len(fcalls) != len(best) {
		return false
	}
	last := len(fcalls) - 1
	ref := -1
	for j := last - 1; j >= 0; j-- {
		if fcalls[last]-fcalls[j] >= float64(h.calls) {
			ref = j
			break
		}
	}
	if ref < 0 {
		return false
	}
	return relativeUnmoved(best[last], best[ref], h.tol)
}

func (h *evaluationsUnmoving) String() string {
	return fmt.Sprintf("EvaluationsUnmoving(calls=%d, tol=%v)", h.calls, h.tol)
}

type pseudoConverged struct {
	calls int
	tol   float64
}

// PseudoConverged walks the victim's history back until a window of
// calls function evaluations is covered, then fires if the best value
// moved by no more than tol (relative) across that window. Unlike
// EvaluationsUnmoving it requires the victim to have used more than
// calls evaluations in total before it can fire.
func PseudoConverged(calls int, tol float64) *Hunter {
	if calls < 1 {
		panic(fmt.Sprintf("hunt: PseudoConverged requires calls >= 1, got %d", calls))
	}
	if tol < 0 {
		panic(fmt.Sprintf("hunt: PseudoConverged requires tol >= 0, got %v", tol))
	}
	return cond.New[Args](&pseudoConverged{calls: calls, tol: tol})
}

func (h *pseudoConverged) Evaluate(a Args) bool {
	vals := history(a.Log, a.VictimID, logbook.TrackFxBest)
	fcalls := history(a.Log, a.VictimID, logbook.TrackFCallOpt)
	if len(vals) == 0 || len(fcalls) != len(vals) {
		return false
	}
	last := len(fcalls) - 1
	if fcalls[last] <= float64(h.calls) {
		return false
	}

	// Walk back through the call counts until the window is covered.
	// Optimizers with many calls per iteration can run out of history
	// before covering it; they are not considered converged yet.
	i := -1
	nearest := fcalls[last]
	for fcalls[last]-nearest < float64(h.calls) {
		i++
		idx := last - 1 - i
		if idx < 0 {
			return false
		}
		nearest = fcalls[idx]
	}
	ref := vals[last-1-i]
	return relativeUnmoved(vals[last], ref, h.tol)
}

func (h *pseudoConverged) String() string {
	return fmt.Sprintf("PseudoConverged(calls=%d, tol=%v)", h.calls, h.tol)
}

type stepSize struct {
	bounds []opt.Bound
	calls  int
	tol    float64
}

// StepSize fires when the victim's mean normalized step size over its
// last calls function evaluations has shrunk to tol or below,
// indicating it is polishing a point rather than exploring.
func StepSize(bounds []opt.Bound, calls int, tol float64) *Hunter {
	if err := opt.ValidateBounds(bounds); err != nil {
		panic(fmt.Sprintf("hunt: StepSize: %v", err))
	}
	if calls < 1 {
		panic(fmt.Sprintf("hunt: StepSize requires calls >= 1, got %d", calls))
	}
	if tol <= 0 {
		panic(fmt.Sprintf("hunt: StepSize requires tol > 0, got %v", tol))
	}
	return cond.New[Args](&stepSize{bounds: bounds, calls: calls, tol: tol})
}

func (h *stepSize) Evaluate(a Args) bool {
	xs, err := a.Log.GetHistoryX(a.VictimID)
	if err != nil {
		return false
	}
	fcalls := history(a.Log, a.VictimID, logbook.TrackFCallOpt)
	if len(xs) < 2 || len(fcalls) != len(xs) {
		return false
	}
	last := len(fcalls) - 1
	start := last
	for start > 0 && fcalls[last]-fcalls[start-1] < float64(h.calls) {
		start--
	}
	if start == last {
		return false
	}
	var sum float64
	var steps int
	for i := start; i < last; i++ {
		sum += normDistance(xs[i], xs[i+1], h.bounds)
		steps++
	}
	return sum/float64(steps) <= h.tol
}

func (h *stepSize) String() string {
	return fmt.Sprintf("StepSize(calls=%d, tol=%v)", h.calls, h.tol)
}
