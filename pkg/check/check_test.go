package check

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeView is a static manager view for checker tests.
type fakeView struct {
	fcalls    uint64
	elapsed   time.Duration
	bestFx    float64
	kills     int
	converged int
}

func (v fakeView) FuncCalls() uint64      { return v.fcalls }
func (v fakeView) Elapsed() time.Duration { return v.elapsed }
func (v fakeView) BestFx() float64        { return v.bestFx }
func (v fakeView) KillCount() int         { return v.kills }
func (v fakeView) ConvergedCount() int    { return v.converged }

func TestMaxFuncCalls(t *testing.T) {
	c := MaxFuncCalls(100)
	assert.False(t, c.Evaluate(fakeView{fcalls: 99}))
	assert.True(t, c.Evaluate(fakeView{fcalls: 100}))
	assert.True(t, c.Evaluate(fakeView{fcalls: 5000}))
	assert.Panics(t, func() { MaxFuncCalls(0) })
}

func TestMaxSeconds(t *testing.T) {
	c := MaxSeconds(time.Minute)
	assert.False(t, c.Evaluate(fakeView{elapsed: 59 * time.Second}))
	assert.True(t, c.Evaluate(fakeView{elapsed: time.Minute}))
	assert.Panics(t, func() { MaxSeconds(0) })
}

func TestTargetValue(t *testing.T) {
	c := TargetValue(0.01)
	assert.False(t, c.Evaluate(fakeView{bestFx: 1.0}))
	assert.False(t, c.Evaluate(fakeView{bestFx: math.Inf(1)}))
	assert.True(t, c.Evaluate(fakeView{bestFx: 0.005}))
	assert.True(t, c.Evaluate(fakeView{bestFx: -3}))
}

func TestKillsAfterConvergence(t *testing.T) {
	c := KillsAfterConvergence(3, 1)
	assert.False(t, c.Evaluate(fakeView{kills: 5, converged: 0}))
	assert.False(t, c.Evaluate(fakeView{kills: 2, converged: 1}))
	assert.True(t, c.Evaluate(fakeView{kills: 3, converged: 1}))
	assert.Panics(t, func() { KillsAfterConvergence(0, 1) })
}

func TestNOptConverged(t *testing.T) {
	c := NOptConverged(2)
	assert.False(t, c.Evaluate(fakeView{converged: 1}))
	assert.True(t, c.Evaluate(fakeView{converged: 2}))
}

func TestCheckerComposition(t *testing.T) {
	c := MaxFuncCalls(100).Or(TargetValue(0.01).And(NOptConverged(1)))
	c.Reset()
	assert.True(t, c.Evaluate(fakeView{fcalls: 10, bestFx: 0.001, converged: 1}))
	assert.Equal(t,
		"[MaxFuncCalls(n=100) | [TargetValue(target=0.01) & NOptConverged(n=1)]]",
		c.String())

	// Both operands carry results even though the disjunction was
	// already decided.
	for _, leaf := range c.LeafNodes() {
		_, ok := leaf.LastResult()
		assert.True(t, ok)
	}
}
