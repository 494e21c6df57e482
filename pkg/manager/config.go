package manager

import (
	"errors"
	"fmt"
	"time"

	"github.com/glompo-dev/glompo/pkg/check"
	"github.com/glompo-dev/glompo/pkg/checkpoint"
	"github.com/glompo-dev/glompo/pkg/common"
	"github.com/glompo-dev/glompo/pkg/hunt"
	"github.com/glompo-dev/glompo/pkg/opt"
	"github.com/glompo-dev/glompo/pkg/selector"
)

// Config assembles a managed run. Bounds, Task, Checker, Selector and
// Generator are required; everything else has a usable default.
type Config struct {
	// Bounds are the search-space limits; every startpoint and every
	// logged x lies coordinate-wise inside them.
	Bounds []opt.Bound
	// Task is the objective function handed to every worker.
	Task opt.Task
	// MaxJobs is the total number of concurrent compute slots.
	MaxJobs int
	// Checker ends the run when it evaluates true.
	Checker *check.Checker
	// Hunters, if set, are evaluated against hunter/victim pairs;
	// a true result kills the victim. Nil disables killing.
	Hunters *hunt.Hunter
	// KillingConditions is an optional pre-filter: a victim is only
	// presented to Hunters while it evaluates true.
	KillingConditions *hunt.Hunter
	// Selector chooses which optimizer class to spawn next.
	Selector selector.Selector
	// Generator supplies startpoints within Bounds.
	Generator selector.Generator
	// StatusFrequency is the interval between logged status summaries.
	StatusFrequency time.Duration
	// Checkpointing controls when and where checkpoints are taken.
	Checkpointing *checkpoint.Policy
	// HuntInterval evaluates hunters every N freshly logged results.
	HuntInterval int
	// EndTimeout is the grace period for workers to exit after a stop
	// order before they are force-reaped.
	EndTimeout time.Duration
	// WorkingDir hosts the log database and summary files.
	WorkingDir string
	// LogFile is the SQLite file the log flushes into on close;
	// empty disables persistence.
	LogFile string
	// SummaryFiles writes the YAML summary and per-optimizer files
	// after the run.
	SummaryFiles bool
	// ResultBuffer is the capacity of the shared result queue; zero
	// means DefaultResultBuffer per slot.
	ResultBuffer int
	// Logger receives manager and worker output.
	Logger *common.Logger
}

// Validate checks the configuration and fills defaults. It is called
// by New; a failure means no run starts.
func (c *Config) Validate() error {
	if err := opt.ValidateBounds(c.Bounds); err != nil {
		return fmt.Errorf("manager: %w", err)
	}
	if c.Task == nil {
		return errors.New("manager: a task is required")
	}
	if c.MaxJobs < 1 {
		return fmt.Errorf("manager: max jobs must be >= 1, got %d", c.MaxJobs)
	}
	if c.Checker == nil {
		return errors.New("manager: a convergence checker is required")
	}
	if c.Selector == nil {
		return errors.New("manager: an optimizer selector is required")
	}
	if c.Generator == nil {
		return errors.New("manager: a startpoint generator is required")
	}
	if c.HuntInterval < 1 {
		c.HuntInterval = common.DefaultHuntInterval
	}
	if c.EndTimeout <= 0 {
		c.EndTimeout = common.DefaultEndTimeoutSeconds * time.Second
	}
	if c.StatusFrequency <= 0 {
		c.StatusFrequency = common.DefaultStatusSeconds * time.Second
	}
	if c.WorkingDir == "" {
		c.WorkingDir = "."
	}
	if c.ResultBuffer < 1 {
		c.ResultBuffer = common.DefaultResultBuffer * c.MaxJobs
	}
	if c.Logger == nil {
		c.Logger = common.DefaultLogger()
	}
	return nil
}
