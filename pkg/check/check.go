// Package check provides the global convergence predicates
// ("checkers") evaluated by the manager against its own view of the
// run. A checker firing ends the whole optimization.
package check

import (
	"fmt"
	"time"

	"github.com/glompo-dev/glompo/pkg/cond"
)

// View is the manager-side state a checker may inspect. The manager
// implements it; tests substitute fakes.
type View interface {
	// FuncCalls is the cumulative function call count across all
	// optimizers.
	FuncCalls() uint64
	// Elapsed is the wall-clock time since the run started.
	Elapsed() time.Duration
	// BestFx is the best objective value seen so far, +Inf while the
	// log is empty.
	BestFx() float64
	// KillCount is the number of optimizers killed by hunters.
	KillCount() int
	// ConvergedCount is the number of optimizers that ended by natural
	// convergence.
	ConvergedCount() int
}

// Checker is a checker predicate tree.
type Checker = cond.Node[View]

type maxFuncCalls struct {
	n uint64
}

// MaxFuncCalls fires once the run has used at least n function
// evaluations in total.
func MaxFuncCalls(n uint64) *Checker {
	if n == 0 {
		panic("check: MaxFuncCalls requires n >= 1")
	}
	return cond.New[View](&maxFuncCalls{n: n})
}

func (c *maxFuncCalls) Evaluate(v View) bool {
	return v.FuncCalls() >= c.n
}

func (c *maxFuncCalls) String() string {
	return fmt.Sprintf("MaxFuncCalls(n=%d)", c.n)
}

type maxSeconds struct {
	limit time.Duration
}

// MaxSeconds fires once the run has been going for at least the
// given wall-clock duration.
func MaxSeconds(limit time.Duration) *Checker {
	if limit <= 0 {
		panic("check: MaxSeconds requires a positive duration")
	}
	return cond.New[View](&maxSeconds{limit: limit})
}

func (c *maxSeconds) Evaluate(v View) bool {
	return v.Elapsed() >= c.limit
}

func (c *maxSeconds) String() string {
	return fmt.Sprintf("MaxSeconds(limit=%v)", c.limit)
}

type targetValue struct {
	target float64
}

// TargetValue fires once the best objective value reaches target or
// below.
func TargetValue(target float64) *Checker {
	return cond.New[View](&targetValue{target: target})
}

func (c *targetValue) Evaluate(v View) bool {
	return v.BestFx() <= c.target
}

func (c *targetValue) String() string {
	return fmt.Sprintf("TargetValue(target=%v)", c.target)
}

type killsAfterConvergence struct {
	kills int
	conv  int
}

// KillsAfterConvergence fires once at least kills optimizers have
// been hunted down while at least conv optimizers have converged
// naturally. The usual configuration is conv=1: after the first real
// convergence, a streak of kills means the field has nothing better
// to offer.
func KillsAfterConvergence(kills, conv int) *Checker {
	if kills < 1 || conv < 1 {
		panic(fmt.Sprintf("check: KillsAfterConvergence requires kills, conv >= 1, got %d, %d", kills, conv))
	}
	return cond.New[View](&killsAfterConvergence{kills: kills, conv: conv})
}

func (c *killsAfterConvergence) Evaluate(v View) bool {
	return v.ConvergedCount() >= c.conv && v.KillCount() >= c.kills
}

func (c *killsAfterConvergence) String() string {
	return fmt.Sprintf("KillsAfterConvergence(kills=%d, conv=%d)", c.kills, c.conv)
}

type nOptConverged struct {
	n int
}

// NOptConverged fires once n optimizers have converged naturally.
func NOptConverged(n int) *Checker {
	if n < 1 {
		panic(fmt.Sprintf("check: NOptConverged requires n >= 1, got %d", n))
	}
	return cond.New[View](&nOptConverged{n: n})
}

func (c *nOptConverged) Evaluate(v View) bool {
	return v.ConvergedCount() >= c.n
}

func (c *nOptConverged) String() string {
	return fmt.Sprintf("NOptConverged(n=%d)", c.n)
}
