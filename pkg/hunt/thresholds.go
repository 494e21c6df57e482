package hunt

import (
	"fmt"
	"math"

	"github.com/glompo-dev/glompo/pkg/cond"
	"github.com/glompo-dev/glompo/pkg/logbook"
)

type minIterations struct {
	n int
}

// MinIterations fires once the victim has logged at least n
// iterations. Usually combined with a stagnation hunter to protect
// young optimizers.
func MinIterations(n int) *Hunter {
	if n < 1 {
		panic(fmt.Sprintf("hunt: MinIterations requires n >= 1, got %d", n))
	}
	return cond.New[Args](&minIterations{n: n})
}

func (h *minIterations) Evaluate(a Args) bool {
	return a.Log.LenOpt(a.VictimID) >= h.n
}

func (h *minIterations) String() string {
	return fmt.Sprintf("MinIterations(n=%d)", h.n)
}

type minFuncCalls struct {
	n int
}

// MinFuncCalls fires once the victim has used at least n function
// evaluations.
func MinFuncCalls(n int) *Hunter {
	if n < 1 {
		panic(fmt.Sprintf("hunt: MinFuncCalls requires n >= 1, got %d", n))
	}
	return cond.New[Args](&minFuncCalls{n: n})
}

func (h *minFuncCalls) Evaluate(a Args) bool {
	fcalls := history(a.Log, a.VictimID, logbook.TrackFCallOpt)
	if len(fcalls) == 0 {
		return false
	}
	return fcalls[len(fcalls)-1] >= float64(h.n)
}

func (h *minFuncCalls) String() string {
	return fmt.Sprintf("MinFuncCalls(n=%d)", h.n)
}

type lastPointsInvalid struct {
	k int
}

// LastPointsInvalid fires when the victim's last k evaluations were
// all invalid (+Inf).
func LastPointsInvalid(k int) *Hunter {
	if k < 1 {
		panic(fmt.Sprintf("hunt: LastPointsInvalid requires k >= 1, got %d", k))
	}
	return cond.New[Args](&lastPointsInvalid{k: k})
}

func (h *lastPointsInvalid) Evaluate(a Args) bool {
	fx := history(a.Log, a.VictimID, logbook.TrackFx)
	if len(fx) < h.k {
		return false
	}
	for _, v := range fx[len(fx)-h.k:] {
		if !math.IsInf(v, 1) {
			return false
		}
	}
	return true
}

func (h *lastPointsInvalid) String() string {
	return fmt.Sprintf("LastPointsInvalid(k=%d)", h.k)
}

type typeHunter struct {
	class string
}

// TypeHunter fires when the victim was started from the named
// optimizer class. Useful to scope other hunters to one class via
// conjunction.
func TypeHunter(class string) *Hunter {
	if class == "" {
		panic("hunt: TypeHunter requires a class name")
	}
	return cond.New[Args](&typeHunter{class: class})
}

func (h *typeHunter) Evaluate(a Args) bool {
	return a.Log.TypeOf(a.VictimID) == h.class
}

func (h *typeHunter) String() string {
	return fmt.Sprintf("TypeHunter(class=%s)", h.class)
}
