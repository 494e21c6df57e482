package selector

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/glompo-dev/glompo/pkg/jsonutil"
	"github.com/glompo-dev/glompo/pkg/opt"
)

// Generator supplies initial parameter vectors. Implementations must
// return points inside the given bounds.
type Generator interface {
	Generate(bounds []opt.Bound) []float64
}

// Uniform draws startpoints uniformly within bounds from a seeded
// RNG.
type Uniform struct {
	mu    sync.Mutex
	seed  int64
	draws int64
	rng   *rand.Rand
}

// NewUniform creates a seeded uniform startpoint generator.
func NewUniform(seed int64) *Uniform {
	return &Uniform{seed: seed, rng: rand.New(rand.NewSource(seed))}
}

// Generate implements Generator.
func (g *Uniform) Generate(bounds []opt.Bound) []float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	x := make([]float64, len(bounds))
	for i, b := range bounds {
		x[i] = b.Min + g.rng.Float64()*b.Range()
		g.draws++
	}
	return x
}

type rngState struct {
	Seed  int64 `json:"seed"`
	Draws int64 `json:"draws"`
}

// CaptureState implements Stateful.
func (g *Uniform) CaptureState() ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return jsonutil.Marshal(rngState{Seed: g.seed, Draws: g.draws})
}

// RestoreState implements Stateful, replaying the RNG to the saved
// position.
func (g *Uniform) RestoreState(data []byte) error {
	var st rngState
	if err := jsonutil.Unmarshal(data, &st); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seed = st.Seed
	g.rng = rand.New(rand.NewSource(st.Seed))
	for i := int64(0); i < st.Draws; i++ {
		g.rng.Float64()
	}
	g.draws = st.Draws
	return nil
}

// Perturb draws startpoints from a gaussian around a center point,
// clamped to bounds. Sigma is relative to each bound's range.
type Perturb struct {
	mu     sync.Mutex
	center []float64
	sigma  float64
	seed   int64
	draws  int64
	rng    *rand.Rand
}

// NewPerturb creates a seeded perturbation generator around center.
func NewPerturb(center []float64, sigma float64, seed int64) *Perturb {
	if sigma <= 0 {
		panic(fmt.Sprintf("selector: Perturb requires sigma > 0, got %v", sigma))
	}
	return &Perturb{
		center: append([]float64(nil), center...),
		sigma:  sigma,
		seed:   seed,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Generate implements Generator.
func (g *Perturb) Generate(bounds []opt.Bound) []float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	x := make([]float64, len(bounds))
	for i, b := range bounds {
		center := (b.Min + b.Max) / 2
		if i < len(g.center) {
			center = g.center[i]
		}
		v := center + g.rng.NormFloat64()*g.sigma*b.Range()
		g.draws++
		if v < b.Min {
			v = b.Min
		}
		if v > b.Max {
			v = b.Max
		}
		x[i] = v
	}
	return x
}

// CaptureState implements Stateful.
func (g *Perturb) CaptureState() ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return jsonutil.Marshal(rngState{Seed: g.seed, Draws: g.draws})
}

// RestoreState implements Stateful.
func (g *Perturb) RestoreState(data []byte) error {
	var st rngState
	if err := jsonutil.Unmarshal(data, &st); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seed = st.Seed
	g.rng = rand.New(rand.NewSource(st.Seed))
	for i := int64(0); i < st.Draws; i++ {
		g.rng.NormFloat64()
	}
	g.draws = st.Draws
	return nil
}
