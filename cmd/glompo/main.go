// Command glompo runs a demonstration managed optimization: several
// random search workers race on a multimodal test function while the
// manager hunts the stragglers.
package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/glompo-dev/glompo/pkg/check"
	"github.com/glompo-dev/glompo/pkg/common"
	"github.com/glompo-dev/glompo/pkg/hunt"
	"github.com/glompo-dev/glompo/pkg/jsonutil"
	"github.com/glompo-dev/glompo/pkg/manager"
	"github.com/glompo-dev/glompo/pkg/opt"
	"github.com/glompo-dev/glompo/pkg/selector"
)

// rastrigin is the classic multimodal benchmark; global minimum 0 at
// the origin.
func rastrigin(x []float64) float64 {
	sum := 10.0 * float64(len(x))
	for _, v := range x {
		sum += v*v - 10*math.Cos(2*math.Pi*v)
	}
	return sum
}

func loadConfig(path string) (*common.Config, error) {
	cfg := common.DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := jsonutil.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func main() {
	configPath := flag.String("config", "", "path to JSON configuration file")
	dims := flag.Int("dims", 4, "dimensionality of the test problem")
	maxCalls := flag.Uint64("max-calls", 50000, "function evaluation budget")
	seed := flag.Int64("seed", 42, "RNG seed for optimizers and startpoint generator")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		common.Error("%v", err)
		os.Exit(1)
	}

	level := common.ParseLevel(cfg.Logging.Level)
	var logger *common.Logger
	if cfg.Logging.Console {
		logger = common.NewConsoleLogger("glompo", level)
	} else {
		logger = common.NewLogger(os.Stderr, "glompo", level)
	}

	if cfg.Manager.Seed != 0 {
		*seed = cfg.Manager.Seed
	}
	maxJobs := cfg.Manager.MaxJobs
	if maxJobs < 1 {
		maxJobs = 4
	}

	bounds := make([]opt.Bound, *dims)
	for i := range bounds {
		bounds[i] = opt.Bound{Min: -5.12, Max: 5.12}
	}

	factory := opt.RandomSearchFactory(*seed, 0)
	mgrCfg := manager.Config{
		Bounds:  bounds,
		Task:    opt.TaskFunc(rastrigin),
		MaxJobs: maxJobs,
		Checker: check.MaxFuncCalls(*maxCalls).Or(
			check.MaxSeconds(5 * time.Minute)),
		Hunters: hunt.MinIterations(200).And(
			hunt.BestUnmoving(100, 0.01)).Or(
			hunt.LastPointsInvalid(25)),
		Selector: selector.NewCycle(
			selector.Choice{Factory: factory, Slots: 1},
		),
		Generator:       selector.NewUniform(*seed),
		StatusFrequency: time.Duration(cfg.Manager.StatusSeconds) * time.Second,
		HuntInterval:    cfg.Manager.HuntInterval,
		EndTimeout:      time.Duration(cfg.Manager.EndTimeoutSeconds) * time.Second,
		WorkingDir:      cfg.Manager.WorkingDir,
		LogFile:         "glompo_log.db",
		SummaryFiles:    true,
		Logger:          logger,
	}

	mgr, err := manager.New(mgrCfg)
	if err != nil {
		logger.Error("invalid configuration: %v", err)
		os.Exit(1)
	}

	result, err := mgr.Start()
	if err != nil {
		logger.Error("run failed: %v", err)
		os.Exit(1)
	}

	fmt.Printf("best value: %g\n", result.Fx)
	fmt.Printf("best point: %v\n", result.X)
	fmt.Printf("found by:   optimizer %d (%s), ended: %s\n",
		result.Origin.OptID, result.Origin.OptType, result.Origin.EndCond)
	fmt.Printf("stats:      %d calls, %d iterations, %d started, %d killed, %d converged in %v\n",
		result.Stats.FCalls, result.Stats.Iterations, result.Stats.OptsStarted,
		result.Stats.OptsKilled, result.Stats.OptsConverged, result.Stats.Elapsed.Round(time.Millisecond))
}
