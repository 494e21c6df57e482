package common

const (
	// DefaultConfigFile is the default configuration file name
	DefaultConfigFile = "glompo.json"

	// DefaultResultBuffer is the per-slot capacity of the shared
	// iteration result queue. Workers block once it is full.
	DefaultResultBuffer = 64

	// DefaultEndTimeoutSeconds is the grace period granted to workers
	// between a stop order and a forced reap.
	DefaultEndTimeoutSeconds = 10

	// DefaultStatusSeconds is the interval between status summaries.
	DefaultStatusSeconds = 60

	// DefaultHuntInterval is the number of freshly logged iterations
	// between evaluations of the kill conditions.
	DefaultHuntInterval = 1
)

// Config represents the application configuration for the demo binary
// and any embedding service.
type Config struct {
	// Manager configuration
	Manager ManagerConfig `json:"manager,omitempty"`
	// Logging configuration
	Logging LoggingConfig `json:"logging,omitempty"`
}

// ManagerConfig holds runtime settings of the optimization manager.
type ManagerConfig struct {
	// MaxJobs is the total number of concurrent compute slots
	MaxJobs int `json:"max_jobs,omitempty"`
	// EndTimeoutSeconds bounds the post-stop drain of workers
	EndTimeoutSeconds int `json:"end_timeout_seconds,omitempty"`
	// StatusSeconds is the interval between logged status summaries
	StatusSeconds int `json:"status_seconds,omitempty"`
	// HuntInterval is the number of new results between hunt rounds
	HuntInterval int `json:"hunt_interval,omitempty"`
	// WorkingDir is where log, summary and checkpoint files are kept
	WorkingDir string `json:"working_dir,omitempty"`
	// Seed makes optimizer and startpoint generator randomness reproducible
	Seed int64 `json:"seed,omitempty"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is one of "debug", "info", "warn", "error"
	Level string `json:"level,omitempty"`
	// Console switches to human-readable console output
	Console bool `json:"console,omitempty"`
}

// DefaultConfig returns a configuration populated with defaults.
func DefaultConfig() *Config {
	return &Config{
		Manager: ManagerConfig{
			MaxJobs:           1,
			EndTimeoutSeconds: DefaultEndTimeoutSeconds,
			StatusSeconds:     DefaultStatusSeconds,
			HuntInterval:      DefaultHuntInterval,
			WorkingDir:        ".",
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// ParseLevel maps a configuration string to a LogLevel. Unknown values
// fall back to InfoLevel.
func ParseLevel(s string) LogLevel {
	switch s {
	case "debug":
		return DebugLevel
	case "warn":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}
