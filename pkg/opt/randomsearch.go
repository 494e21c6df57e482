package opt

import (
	"fmt"
	"math"
	"math/rand"
	"os"

	"github.com/glompo-dev/glompo/pkg/jsonutil"
)

// RandomSearch is the reference optimizer: seeded uniform sampling
// within bounds. It exists so the manager can be exercised end to end
// without external optimizer collaborators.
type RandomSearch struct {
	seed    int64
	maxIter int
	rng     *rand.Rand
	draws   int64
	bestX   []float64
	bestFx  float64
	nIter   int
}

// NewRandomSearch creates a random search optimizer. maxIter of 0
// means it runs until stopped by the manager.
func NewRandomSearch(seed int64, maxIter int) *RandomSearch {
	return &RandomSearch{
		seed:    seed,
		maxIter: maxIter,
		rng:     rand.New(rand.NewSource(seed)),
		bestFx:  math.Inf(1),
	}
}

// RandomSearchFactory returns a Factory spawning NewRandomSearch
// instances with seeds derived from base.
func RandomSearchFactory(base int64, maxIter int) Factory {
	next := base
	return Factory{
		Name: "RandomSearch",
		New: func() Optimizer {
			next++
			return NewRandomSearch(next, maxIter)
		},
		Restore: RestoreRandomSearch,
	}
}

// Minimize implements Optimizer.
func (r *RandomSearch) Minimize(ctl Control, task Task, x0 []float64, bounds []Bound) MinimizeResult {
	x := append([]float64(nil), x0...)
	for {
		fx := SanitizeFx(task.Eval(x))
		r.nIter++
		if fx < r.bestFx {
			r.bestFx = fx
			r.bestX = append([]float64(nil), x...)
		}
		if err := ctl.Report(r.nIter, 1, x, fx); err != nil {
			return MinimizeResult{X: r.bestX, Fx: r.bestFx, Success: false, EndCond: "stopped by manager"}
		}
		if r.maxIter > 0 && r.nIter >= r.maxIter {
			return MinimizeResult{
				X:       r.bestX,
				Fx:      r.bestFx,
				Success: !math.IsInf(r.bestFx, 1),
				EndCond: fmt.Sprintf("iteration budget of %d reached", r.maxIter),
			}
		}
		x = r.sample(bounds)
	}
}

func (r *RandomSearch) sample(bounds []Bound) []float64 {
	x := make([]float64, len(bounds))
	for i, b := range bounds {
		x[i] = b.Min + r.rng.Float64()*b.Range()
		r.draws++
	}
	return x
}

// randomSearchState is the serialized form written by SaveState.
type randomSearchState struct {
	Seed    int64     `json:"seed"`
	MaxIter int       `json:"max_iter"`
	Draws   int64     `json:"draws"`
	NIter   int       `json:"n_iter"`
	BestX   []float64 `json:"best_x"`
	BestFx  string    `json:"best_fx"`
}

// SaveState implements Optimizer. The RNG position is stored as the
// number of draws so Restore can replay to the same point.
func (r *RandomSearch) SaveState(path string) error {
	st := randomSearchState{
		Seed:    r.seed,
		MaxIter: r.maxIter,
		Draws:   r.draws,
		NIter:   r.nIter,
		BestX:   r.bestX,
		BestFx:  FormatFx(r.bestFx),
	}
	data, err := jsonutil.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to serialize random search state: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	return nil
}

// RestoreRandomSearch rebuilds a RandomSearch from a SaveState file.
func RestoreRandomSearch(path string) (Optimizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}
	var st randomSearchState
	if err := jsonutil.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to decode random search state: %w", err)
	}
	r := NewRandomSearch(st.Seed, st.MaxIter)
	for i := int64(0); i < st.Draws; i++ {
		r.rng.Float64()
	}
	r.draws = st.Draws
	r.nIter = st.NIter
	r.bestX = st.BestX
	fx, err := ParseFx(st.BestFx)
	if err != nil {
		return nil, err
	}
	r.bestFx = fx
	return r, nil
}

