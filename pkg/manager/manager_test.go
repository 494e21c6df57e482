package manager

import (
	"math"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glompo-dev/glompo/pkg/check"
	"github.com/glompo-dev/glompo/pkg/cond"
	"github.com/glompo-dev/glompo/pkg/hunt"
	"github.com/glompo-dev/glompo/pkg/opt"
	"github.com/glompo-dev/glompo/pkg/selector"
)

var _ check.View = (*Manager)(nil)

// scripted is a deterministic test optimizer. It either replays a
// fixed fx series or evaluates the task for a number of iterations.
type scripted struct {
	values  []float64
	loop    bool
	delay   time.Duration
	useTask bool
	iters   int
	panicAt int
}

func (s *scripted) Minimize(ctl opt.Control, task opt.Task, x0 []float64, bounds []opt.Bound) opt.MinimizeResult {
	best := math.Inf(1)
	var bestX []float64
	n := 0
	emit := func(v float64) error {
		n++
		if s.panicAt > 0 && n >= s.panicAt {
			panic("scripted failure")
		}
		if v < best {
			best = v
			bestX = append([]float64(nil), x0...)
		}
		if s.delay > 0 {
			time.Sleep(s.delay)
		}
		return ctl.Report(n, 1, x0, v)
	}

	if s.useTask {
		for i := 0; i < s.iters; i++ {
			if err := emit(task.Eval(x0)); err != nil {
				return opt.MinimizeResult{X: bestX, Fx: best, EndCond: "stopped"}
			}
		}
		return opt.MinimizeResult{X: bestX, Fx: best, Success: true, EndCond: "scripted convergence"}
	}

	for _, v := range s.values {
		if err := emit(v); err != nil {
			return opt.MinimizeResult{X: bestX, Fx: best, EndCond: "stopped"}
		}
	}
	for s.loop {
		if err := emit(s.values[len(s.values)-1]); err != nil {
			return opt.MinimizeResult{X: bestX, Fx: best, EndCond: "stopped"}
		}
	}
	return opt.MinimizeResult{X: bestX, Fx: best, Success: true, EndCond: "scripted convergence"}
}

func (s *scripted) SaveState(path string) error {
	return os.WriteFile(path, []byte("{}"), 0o644)
}

// scriptedFactory hands out the given optimizers in order.
func scriptedFactory(name string, opts ...*scripted) opt.Factory {
	i := 0
	return opt.Factory{
		Name: name,
		New: func() opt.Optimizer {
			o := opts[i%len(opts)]
			i++
			return o
		},
	}
}

// killsChecker ends the run once n hunters have fired.
type killsChecker struct{ n int }

func (c *killsChecker) Evaluate(v check.View) bool { return v.KillCount() >= c.n }
func (c *killsChecker) String() string             { return "KillsChecker()" }

func flatTask() opt.Task {
	return opt.TaskFunc(func(x []float64) float64 { return 0 })
}

func unitBounds() []opt.Bound {
	return []opt.Bound{{Min: 0, Max: 1}, {Min: 0, Max: 1}}
}

func baseConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		Bounds:     unitBounds(),
		Task:       flatTask(),
		MaxJobs:    4,
		Generator:  selector.NewUniform(11),
		WorkingDir: t.TempDir(),
		EndTimeout: 3 * time.Second,
	}
}

func TestConfigValidation(t *testing.T) {
	valid := baseConfig(t)
	valid.Checker = check.MaxFuncCalls(10)
	valid.Selector = selector.NewCycle(selector.Choice{
		Factory: scriptedFactory("S", &scripted{values: []float64{1}}), Slots: 1, MaxSpawns: 1,
	})
	_, err := New(valid)
	require.NoError(t, err)

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no bounds", func(c *Config) { c.Bounds = nil }},
		{"bad bound", func(c *Config) { c.Bounds = []opt.Bound{{Min: 1, Max: 1}} }},
		{"no task", func(c *Config) { c.Task = nil }},
		{"no jobs", func(c *Config) { c.MaxJobs = 0 }},
		{"no checker", func(c *Config) { c.Checker = nil }},
		{"no selector", func(c *Config) { c.Selector = nil }},
		{"no generator", func(c *Config) { c.Generator = nil }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid
			tc.mutate(&cfg)
			_, err := New(cfg)
			assert.Error(t, err)
		})
	}
}

// Scenario: two workers with disjoint best values; the manager must
// return the global winner with its origin metadata.
func TestTwoWorkersDisjointBest(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Checker = check.MaxFuncCalls(10)
	cfg.Selector = selector.NewCycle(
		selector.Choice{
			Factory: scriptedFactory("First", &scripted{values: []float64{10, 5}}),
			Slots:   1, MaxSpawns: 1,
		},
		selector.Choice{
			Factory: scriptedFactory("Second", &scripted{values: []float64{3}}),
			Slots:   1, MaxSpawns: 1,
		},
	)

	mgr, err := New(cfg)
	require.NoError(t, err)
	res, err := mgr.Start()
	require.NoError(t, err)

	assert.Equal(t, 3.0, res.Fx)
	assert.Equal(t, uint32(2), res.Origin.OptID)
	assert.Equal(t, "Second", res.Origin.OptType)
	assert.Equal(t, "scripted convergence", res.Origin.EndCond)
	assert.Equal(t, 2, res.Stats.OptsStarted)
	assert.Equal(t, 2, res.Stats.OptsConverged)
	assert.Equal(t, 0, res.Stats.OptsKilled)

	// Invariant: the returned value is the minimum over the log.
	for _, id := range mgr.Log().OptimizerIDs() {
		fx, err := mgr.Log().GetHistory(id, "fx")
		require.NoError(t, err)
		for _, v := range fx {
			assert.GreaterOrEqual(t, v, res.Fx)
		}
	}
}

// Scenario: a stagnating victim is hunted down by a better worker.
func TestHunterKill(t *testing.T) {
	cfg := baseConfig(t)
	cfg.MaxJobs = 2
	cfg.Checker = cond.New[check.View](&killsChecker{n: 1})
	cfg.Hunters = hunt.MinIterations(10).And(hunt.BestUnmoving(20, 0))
	cfg.Selector = selector.NewCycle(
		selector.Choice{
			Factory: scriptedFactory("Hunter", &scripted{values: []float64{1}, loop: true, delay: 2 * time.Millisecond}),
			Slots:   1, MaxSpawns: 1,
		},
		selector.Choice{
			Factory: scriptedFactory("Victim", &scripted{values: []float64{100}, loop: true, delay: 2 * time.Millisecond}),
			Slots:   1, MaxSpawns: 1,
		},
	)

	mgr, err := New(cfg)
	require.NoError(t, err)
	res, err := mgr.Start()
	require.NoError(t, err)

	assert.Equal(t, 1.0, res.Fx)
	assert.Equal(t, uint32(1), res.Origin.OptID)
	assert.Equal(t, 1, res.Stats.OptsKilled)

	// The victim logged at least the 21 iterations the hunter needed.
	assert.GreaterOrEqual(t, mgr.Log().LenOpt(2), 21)

	meta, ok := mgr.Log().Meta(2)
	require.True(t, ok)
	assert.Equal(t, "killed by optimizer 1", meta.EndCond)

	found := false
	for _, msg := range mgr.Log().Messages(2) {
		if len(msg) > 4 && msg[:4] == "hunt" {
			found = true
		}
	}
	assert.True(t, found, "kill message missing from the victim's stream")
}

// Scenario: a TargetValue checker ends the run as soon as a worker
// reaches the target.
func TestConvergenceViaTargetValue(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Checker = check.TargetValue(0.01)
	cfg.Selector = selector.NewCycle(selector.Choice{
		Factory: scriptedFactory("S", &scripted{
			values: []float64{1.0, 0.5, 0.005}, loop: true, delay: time.Millisecond,
		}),
		Slots: 1, MaxSpawns: 1,
	})

	mgr, err := New(cfg)
	require.NoError(t, err)
	res, err := mgr.Start()
	require.NoError(t, err)

	assert.LessOrEqual(t, res.Fx, 0.01)
	assert.Equal(t, 0, res.Stats.OptsKilled)
	assert.Equal(t, 1, res.Stats.OptsStarted)
}

// Invariant: concurrently used slots never exceed the budget. With
// two-slot workers and three slots total only one worker fits at a
// time.
func TestSlotBudgetHonored(t *testing.T) {
	var cur, peak int64
	task := opt.TaskFunc(func(x []float64) float64 {
		c := atomic.AddInt64(&cur, 1)
		for {
			p := atomic.LoadInt64(&peak)
			if c <= p || atomic.CompareAndSwapInt64(&peak, p, c) {
				break
			}
		}
		time.Sleep(3 * time.Millisecond)
		atomic.AddInt64(&cur, -1)
		return 1
	})

	cfg := baseConfig(t)
	cfg.Task = task
	cfg.MaxJobs = 3
	cfg.Checker = check.MaxFuncCalls(1000)
	cfg.Selector = selector.NewCycle(selector.Choice{
		Factory: scriptedFactory("Wide",
			&scripted{useTask: true, iters: 5},
			&scripted{useTask: true, iters: 5},
			&scripted{useTask: true, iters: 5},
		),
		Slots: 2, MaxSpawns: 3,
	})

	mgr, err := New(cfg)
	require.NoError(t, err)
	res, err := mgr.Start()
	require.NoError(t, err)

	assert.Equal(t, 3, res.Stats.OptsStarted)
	assert.LessOrEqual(t, peak, int64(1), "slot budget exceeded: %d workers ran concurrently", peak)
}

// Every worker crashing still yields a valid (empty-best) result.
func TestAllWorkersCrashed(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Checker = check.MaxFuncCalls(1000)
	cfg.Selector = selector.NewCycle(selector.Choice{
		Factory: scriptedFactory("Broken", &scripted{values: []float64{5}, panicAt: 1}),
		Slots:   1, MaxSpawns: 2,
	})

	mgr, err := New(cfg)
	require.NoError(t, err)
	res, err := mgr.Start()
	require.NoError(t, err)

	assert.True(t, math.IsInf(res.Fx, 1))
	assert.Nil(t, res.X)
	assert.Equal(t, 2, res.Stats.OptsCrashed)
	assert.Equal(t, 0, res.Stats.OptsConverged)
}

// badGenerator produces points outside the bounds.
type badGenerator struct{}

func (badGenerator) Generate(bounds []opt.Bound) []float64 {
	out := make([]float64, len(bounds))
	for i := range out {
		out[i] = bounds[i].Max + 1
	}
	return out
}

func TestOutOfBoundsStartpointAborts(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Generator = badGenerator{}
	cfg.Checker = check.MaxFuncCalls(1000)
	cfg.Selector = selector.NewCycle(selector.Choice{
		Factory: scriptedFactory("S", &scripted{values: []float64{1}}),
		Slots:   1, MaxSpawns: 1,
	})

	mgr, err := New(cfg)
	require.NoError(t, err)
	_, err = mgr.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out-of-bounds")
}

func TestHandleTransitions(t *testing.T) {
	h := &workerHandle{id: 1, state: StatePending}

	require.NoError(t, h.transition(StateRunning))
	require.NoError(t, h.transition(StatePaused))
	require.NoError(t, h.transition(StateRunning))
	require.NoError(t, h.transition(StateKilled))

	// Terminal states absorb everything but the reap.
	assert.Error(t, h.transition(StateRunning))
	assert.Error(t, h.transition(StateConverged))
	require.NoError(t, h.transition(StateReaped))
	assert.Error(t, h.transition(StateRunning))

	assert.Equal(t, StateKilled, h.endState)
	assert.True(t, h.reaped)
}

func TestWorkerStateStrings(t *testing.T) {
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "reaped", StateReaped.String())
	assert.True(t, StateKilled.Terminal())
	assert.False(t, StatePaused.Terminal())
}
