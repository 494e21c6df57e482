package hunt

import (
	"fmt"

	"github.com/glompo-dev/glompo/pkg/cond"
	"github.com/glompo-dev/glompo/pkg/opt"
)

type parameterDistance struct {
	bounds  []opt.Bound
	relDist float64
	testAll bool
}

// ParameterDistance fires when the victim's last point lies within
// relDist (bound-normalized) of the hunter's last point — or, with
// testAll, of any other optimizer's last point. Two optimizers that
// close together are exploring the same basin and one of them is
// redundant.
func ParameterDistance(bounds []opt.Bound, relDist float64, testAll bool) *Hunter {
	if err := opt.ValidateBounds(bounds); err != nil {
		panic(fmt.Sprintf("hunt: ParameterDistance: %v", err))
	}
	if relDist <= 0 {
		panic(fmt.Sprintf("hunt: ParameterDistance requires relDist > 0, got %v", relDist))
	}
	return cond.New[Args](&parameterDistance{bounds: bounds, relDist: relDist, testAll: testAll})
}

func (h *parameterDistance) Evaluate(a Args) bool {
	victim, err := a.Log.GetHistoryX(a.VictimID)
	if err != nil || len(victim) == 0 {
		return false
	}
	vLast := victim[len(victim)-1]

	var candidates []uint32
	if h.testAll {
		for _, id := range a.Log.OptimizerIDs() {
			if id != a.VictimID {
				candidates = append(candidates, id)
			}
		}
	} else {
		candidates = []uint32{a.HunterID}
	}

	for _, id := range candidates {
		xs, err := a.Log.GetHistoryX(id)
		if err != nil || len(xs) == 0 {
			continue
		}
		if normDistance(vLast, xs[len(xs)-1], h.bounds) <= h.relDist {
			return true
		}
	}
	return false
}

func (h *parameterDistance) String() string {
	return fmt.Sprintf("ParameterDistance(relDist=%v, testAll=%v)", h.relDist, h.testAll)
}
