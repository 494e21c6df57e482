// Package selector decides which optimizer class to spawn next and
// where in the search space it starts.
package selector

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/glompo-dev/glompo/pkg/jsonutil"
	"github.com/glompo-dev/glompo/pkg/opt"
)

// Context is the slice of manager state a selector may consult.
type Context struct {
	TotalFCalls uint64
	Started     int
	Running     int
}

// Package is one spawn decision: the class to instantiate and the
// compute slots the worker will occupy.
type Package struct {
	Factory opt.Factory
	Slots   int
}

// Choice is one configured optimizer class available to a selector.
// MaxSpawns of 0 means unlimited.
type Choice struct {
	Factory   opt.Factory
	Slots     int
	MaxSpawns int
}

func validateChoices(choices []Choice) {
	if len(choices) == 0 {
		panic("selector: at least one choice is required")
	}
	for i, c := range choices {
		if c.Factory.New == nil {
			panic(fmt.Sprintf("selector: choice %d has no factory constructor", i))
		}
		if c.Slots < 1 {
			panic(fmt.Sprintf("selector: choice %d requires slots >= 1, got %d", i, c.Slots))
		}
	}
}

// Selector chooses the next optimizer package. A nil package with
// more=true means nothing fits the free slots right now; more=false
// means the selector is exhausted and will never produce again.
type Selector interface {
	Select(slotsFree int, ctx Context) (pkg *Package, more bool)
}

// Stateful is an optional capability: selectors and generators that
// implement it participate in checkpointing.
type Stateful interface {
	CaptureState() ([]byte, error)
	RestoreState(data []byte) error
}

// Random picks uniformly among its choices, honoring per-class spawn
// limits.
type Random struct {
	mu      sync.Mutex
	choices []Choice
	spawned []int
	seed    int64
	draws   int64
	rng     *rand.Rand
}

// NewRandom creates a seeded random selector.
func NewRandom(seed int64, choices ...Choice) *Random {
	validateChoices(choices)
	return &Random{
		choices: choices,
		spawned: make([]int, len(choices)),
		seed:    seed,
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// Select implements Selector.
func (s *Random) Select(slotsFree int, _ Context) (*Package, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var open []int
	fits := false
	for i, c := range s.choices {
		if c.MaxSpawns > 0 && s.spawned[i] >= c.MaxSpawns {
			continue
		}
		open = append(open, i)
		if c.Slots <= slotsFree {
			fits = true
		}
	}
	if len(open) == 0 {
		return nil, false
	}
	if !fits {
		return nil, true
	}
	for {
		// A plain Float64 draw keeps the RNG replayable from a saved
		// draw count regardless of the open-set size.
		draw := int(s.rng.Float64() * float64(len(open)))
		if draw == len(open) {
			draw--
		}
		idx := open[draw]
		s.draws++
		if s.choices[idx].Slots <= slotsFree {
			s.spawned[idx]++
			return &Package{Factory: s.choices[idx].Factory, Slots: s.choices[idx].Slots}, true
		}
	}
}

type randomState struct {
	Seed    int64 `json:"seed"`
	Draws   int64 `json:"draws"`
	Spawned []int `json:"spawned"`
}

// CaptureState implements Stateful.
func (s *Random) CaptureState() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return jsonutil.Marshal(randomState{Seed: s.seed, Draws: s.draws, Spawned: append([]int(nil), s.spawned...)})
}

// RestoreState implements Stateful. The RNG is replayed to the saved
// position so the spawn sequence continues deterministically.
func (s *Random) RestoreState(data []byte) error {
	var st randomState
	if err := jsonutil.Unmarshal(data, &st); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(st.Spawned) != len(s.choices) {
		return fmt.Errorf("selector: state has %d choices, selector has %d", len(st.Spawned), len(s.choices))
	}
	s.seed = st.Seed
	s.rng = rand.New(rand.NewSource(st.Seed))
	for i := int64(0); i < st.Draws; i++ {
		s.rng.Float64()
	}
	s.draws = st.Draws
	copy(s.spawned, st.Spawned)
	return nil
}

// Cycle walks its choices round-robin.
type Cycle struct {
	mu      sync.Mutex
	choices []Choice
	spawned []int
	next    int
}

// NewCycle creates a round-robin selector.
func NewCycle(choices ...Choice) *Cycle {
	validateChoices(choices)
	return &Cycle{choices: choices, spawned: make([]int, len(choices))}
}

// Select implements Selector.
func (s *Cycle) Select(slotsFree int, _ Context) (*Package, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exhausted := true
	for i, c := range s.choices {
		if c.MaxSpawns == 0 || s.spawned[i] < c.MaxSpawns {
			exhausted = false
			break
		}
	}
	if exhausted {
		return nil, false
	}

	for probes := 0; probes < len(s.choices); probes++ {
		idx := s.next % len(s.choices)
		s.next++
		c := s.choices[idx]
		if c.MaxSpawns > 0 && s.spawned[idx] >= c.MaxSpawns {
			continue
		}
		if c.Slots > slotsFree {
			// Keep the cursor on this choice so the cycle order is
			// preserved once slots free up.
			s.next--
			return nil, true
		}
		s.spawned[idx]++
		return &Package{Factory: c.Factory, Slots: c.Slots}, true
	}
	return nil, true
}

type cycleState struct {
	Next    int   `json:"next"`
	Spawned []int `json:"spawned"`
}

// CaptureState implements Stateful.
func (s *Cycle) CaptureState() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return jsonutil.Marshal(cycleState{Next: s.next, Spawned: append([]int(nil), s.spawned...)})
}

// RestoreState implements Stateful.
func (s *Cycle) RestoreState(data []byte) error {
	var st cycleState
	if err := jsonutil.Unmarshal(data, &st); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(st.Spawned) != len(s.choices) {
		return fmt.Errorf("selector: state has %d choices, selector has %d", len(st.Spawned), len(s.choices))
	}
	s.next = st.Next
	copy(s.spawned, st.Spawned)
	return nil
}

// Stage is one link of a Chain: use Choice until the run's total
// function calls reach Until. The final stage usually has Until of 0,
// meaning forever.
type Stage struct {
	Choice Choice
	Until  uint64
}

// Chain runs one optimizer class until the run's function call count
// passes a threshold, then switches to the next.
type Chain struct {
	mu      sync.Mutex
	stages  []Stage
	spawned []int
}

// NewChain creates a chain selector.
func NewChain(stages ...Stage) *Chain {
	if len(stages) == 0 {
		panic("selector: chain requires at least one stage")
	}
	choices := make([]Choice, len(stages))
	for i, st := range stages {
		choices[i] = st.Choice
	}
	validateChoices(choices)
	return &Chain{stages: stages, spawned: make([]int, len(stages))}
}

func (s *Chain) stageFor(fcalls uint64) int {
	for i, st := range s.stages {
		if st.Until == 0 || fcalls < st.Until {
			return i
		}
	}
	return len(s.stages) - 1
}

// Select implements Selector.
func (s *Chain) Select(slotsFree int, ctx Context) (*Package, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.stageFor(ctx.TotalFCalls)
	c := s.stages[idx].Choice
	if c.MaxSpawns > 0 && s.spawned[idx] >= c.MaxSpawns {
		// The current stage is used up; later stages only open once
		// the call count advances.
		if idx == len(s.stages)-1 {
			return nil, false
		}
		return nil, true
	}
	if c.Slots > slotsFree {
		return nil, true
	}
	s.spawned[idx]++
	return &Package{Factory: c.Factory, Slots: c.Slots}, true
}

type chainState struct {
	Spawned []int `json:"spawned"`
}

// CaptureState implements Stateful.
func (s *Chain) CaptureState() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return jsonutil.Marshal(chainState{Spawned: append([]int(nil), s.spawned...)})
}

// RestoreState implements Stateful.
func (s *Chain) RestoreState(data []byte) error {
	var st chainState
	if err := jsonutil.Unmarshal(data, &st); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(st.Spawned) != len(s.stages) {
		return fmt.Errorf("selector: state has %d stages, selector has %d", len(st.Spawned), len(s.stages))
	}
	copy(s.spawned, st.Spawned)
	return nil
}
