package hunt

import (
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/glompo-dev/glompo/pkg/cond"
	"github.com/glompo-dev/glompo/pkg/logbook"
)

type timeAnnealing struct {
	critRatio float64
	mu        sync.Mutex
	rng       *rand.Rand
}

// TimeAnnealing probabilistically fires based on the ratio of the
// victim's to the hunter's iteration counts: the further the victim
// lags behind, the more likely the kill. The victim survives a draw
// of U(0, critRatio) not exceeding victimIters/hunterIters, so larger
// critRatio values make the hunter more aggressive. Each leaf owns a
// seeded RNG for reproducibility.
func TimeAnnealing(critRatio float64, seed int64) *Hunter {
	if critRatio <= 0 {
		panic(fmt.Sprintf("hunt: TimeAnnealing requires critRatio > 0, got %v", critRatio))
	}
	return cond.New[Args](&timeAnnealing{
		critRatio: critRatio,
		rng:       rand.New(rand.NewSource(seed)),
	})
}

func (h *timeAnnealing) Evaluate(a Args) bool {
	nHunter := a.Log.LenOpt(a.HunterID)
	nVictim := a.Log.LenOpt(a.VictimID)
	if nHunter == 0 || nVictim == 0 {
		return false
	}
	ratio := float64(nVictim) / float64(nHunter)
	h.mu.Lock()
	draw := h.rng.Float64() * h.critRatio
	h.mu.Unlock()
	return draw > ratio
}

func (h *timeAnnealing) String() string {
	return fmt.Sprintf("TimeAnnealing(critRatio=%v)", h.critRatio)
}

type valueAnnealing struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// ValueAnnealing probabilistically fires as the victim's best value
// falls behind the hunter's. It never fires while the victim is at
// least as good as the hunter; beyond that the survival probability
// decays exponentially with the relative gap. Each leaf owns a seeded
// RNG for reproducibility.
func ValueAnnealing(seed int64) *Hunter {
	return cond.New[Args](&valueAnnealing{rng: rand.New(rand.NewSource(seed))})
}

func (h *valueAnnealing) Evaluate(a Args) bool {
	hunterHist := history(a.Log, a.HunterID, logbook.TrackFxBest)
	victimHist := history(a.Log, a.VictimID, logbook.TrackFxBest)
	if len(hunterHist) == 0 || len(victimHist) == 0 {
		return false
	}
	hb := hunterHist[len(hunterHist)-1]
	vb := victimHist[len(victimHist)-1]
	if vb <= hb || math.IsInf(hb, 1) {
		return false
	}

	var survival float64
	if hb == 0 || math.IsInf(vb, 1) {
		survival = 0
	} else {
		survival = math.Exp(-(vb - hb) / math.Abs(hb))
	}
	h.mu.Lock()
	draw := h.rng.Float64()
	h.mu.Unlock()
	return draw > survival
}

func (h *valueAnnealing) String() string {
	return "ValueAnnealing()"
}
