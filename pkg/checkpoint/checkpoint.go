// Package checkpoint captures and restores the durable state of a
// managed run. The manager state lives in a bbolt database inside the
// checkpoint directory; each running worker serializes itself into a
// per-worker subdirectory. Directories are written under a temporary
// name and atomically renamed on commit.
package checkpoint

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/glompo-dev/glompo/pkg/jsonutil"
	"github.com/glompo-dev/glompo/pkg/logbook"
	"github.com/glompo-dev/glompo/pkg/opt"
)

// Policy controls when checkpoints are taken. Zero values disable the
// corresponding trigger; a nil policy or empty Dir disables
// checkpointing entirely.
type Policy struct {
	Dir            string
	Interval       time.Duration
	EveryFuncCalls uint64
	AtConvergence  bool
}

// Enabled reports whether the policy can ever trigger.
func (p *Policy) Enabled() bool {
	return p != nil && p.Dir != "" &&
		(p.Interval > 0 || p.EveryFuncCalls > 0 || p.AtConvergence)
}

// Bucket names inside manager_state.db.
var (
	bucketManager = []byte("manager")
	bucketStreams = []byte("streams")

	keyState = []byte("state")
)

const dbName = "manager_state.db"

// workersDir is the subdirectory holding per-worker saved states.
const workersDir = "workers"

// IterationState is the wire form of one logged iteration. Objective
// values are strings so the +Inf failure marker survives JSON.
type IterationState struct {
	NIter        int       `json:"n_iter"`
	FCallOverall uint64    `json:"f_call_overall"`
	FCallOpt     int       `json:"f_call_opt"`
	X            []float64 `json:"x"`
	Fx           string    `json:"fx"`
	IBest        int       `json:"i_best"`
	FxBest       string    `json:"fx_best"`
	Timestamp    float64   `json:"timestamp"`
	Extras       []float64 `json:"extras,omitempty"`
}

// StreamState is the wire form of one optimizer stream.
type StreamState struct {
	Meta     opt.Metadata      `json:"meta"`
	Extra    map[string]string `json:"extra,omitempty"`
	Iters    []IterationState  `json:"iters"`
	Messages []string          `json:"messages,omitempty"`
	Final    bool              `json:"final"`
}

// HandleState records one worker handle so a restore can respawn it.
type HandleState struct {
	OptID      uint32    `json:"opt_id"`
	Factory    string    `json:"factory"`
	Slots      int       `json:"slots"`
	StartPoint []float64 `json:"start_point"`
	State      string    `json:"state"`
	WorkerDir  string    `json:"worker_dir,omitempty"`
}

// State is everything the manager needs to resume a run, minus the
// worker-internal states which live in the per-worker subdirectories.
type State struct {
	RunID          string        `json:"run_id"`
	CapturedAt     time.Time     `json:"captured_at"`
	MaxJobs        int           `json:"max_jobs"`
	Bounds         []opt.Bound   `json:"bounds"`
	FCallsOverall  uint64        `json:"f_calls_overall"`
	KillCount      int           `json:"kill_count"`
	ConvergedCount int           `json:"converged_count"`
	CrashedCount   int           `json:"crashed_count"`
	NextOptID      uint32        `json:"next_opt_id"`
	Handles        []HandleState `json:"handles"`
	SelectorState  []byte        `json:"selector_state,omitempty"`
	GeneratorState []byte        `json:"generator_state,omitempty"`

	// Streams is populated by Load and consumed by WriteState through
	// its own bucket; it is not part of the manager JSON blob.
	Streams []StreamState `json:"-"`
}

// StreamsFromLog converts a log dump to wire form.
func StreamsFromLog(dumps []logbook.StreamDump) []StreamState {
	out := make([]StreamState, len(dumps))
	for i, d := range dumps {
		iters := make([]IterationState, len(d.Iters))
		for j, it := range d.Iters {
			iters[j] = IterationState{
				NIter:        it.NIter,
				FCallOverall: it.FCallOverall,
				FCallOpt:     it.FCallOpt,
				X:            it.X,
				Fx:           opt.FormatFx(it.Fx),
				IBest:        it.IBest,
				FxBest:       opt.FormatFx(it.FxBest),
				Timestamp:    it.Timestamp,
				Extras:       it.Extras,
			}
		}
		out[i] = StreamState{
			Meta:     d.Meta,
			Extra:    d.Extra,
			Iters:    iters,
			Messages: d.Messages,
			Final:    d.Final,
		}
	}
	return out
}

// StreamsToLog converts wire form back to a log dump.
func StreamsToLog(streams []StreamState) ([]logbook.StreamDump, error) {
	out := make([]logbook.StreamDump, len(streams))
	for i, s := range streams {
		iters := make([]logbook.Iteration, len(s.Iters))
		for j, it := range s.Iters {
			fx, err := opt.ParseFx(it.Fx)
			if err != nil {
				return nil, fmt.Errorf("stream %d iteration %d: %w", s.Meta.OptID, it.NIter, err)
			}
			fxBest, err := opt.ParseFx(it.FxBest)
			if err != nil {
				return nil, fmt.Errorf("stream %d iteration %d: %w", s.Meta.OptID, it.NIter, err)
			}
			iters[j] = logbook.Iteration{
				NIter:        it.NIter,
				FCallOverall: it.FCallOverall,
				FCallOpt:     it.FCallOpt,
				X:            it.X,
				Fx:           fx,
				IBest:        it.IBest,
				FxBest:       fxBest,
				Timestamp:    it.Timestamp,
				Extras:       it.Extras,
			}
		}
		out[i] = logbook.StreamDump{
			Meta:     s.Meta,
			Extra:    s.Extra,
			Iters:    iters,
			Messages: s.Messages,
			Final:    s.Final,
		}
	}
	return out, nil
}

// Begin creates the temporary checkpoint directory next to the final
// location, including the workers subdirectory.
func Begin(final string) (string, error) {
	tmp := final + ".tmp"
	if err := os.RemoveAll(tmp); err != nil {
		return "", fmt.Errorf("failed to clear stale checkpoint temp: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(tmp, workersDir), 0o755); err != nil {
		return "", fmt.Errorf("failed to create checkpoint temp: %w", err)
	}
	return tmp, nil
}

// WorkerDir returns (and creates) the per-worker state directory
// inside a checkpoint directory.
func WorkerDir(dir string, optID uint32) (string, error) {
	p := filepath.Join(dir, workersDir, fmt.Sprintf("%04d", optID))
	if err := os.MkdirAll(p, 0o755); err != nil {
		return "", fmt.Errorf("failed to create worker state dir: %w", err)
	}
	return p, nil
}

// WriteState writes the manager state database into dir.
func WriteState(dir string, st *State) error {
	db, err := bolt.Open(filepath.Join(dir, dbName), 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return fmt.Errorf("failed to open checkpoint database: %w", err)
	}
	defer db.Close()

	return db.Update(func(tx *bolt.Tx) error {
		mb, err := tx.CreateBucketIfNotExists(bucketManager)
		if err != nil {
			return err
		}
		blob, err := jsonutil.Marshal(st)
		if err != nil {
			return fmt.Errorf("failed to serialize manager state: %w", err)
		}
		if err := mb.Put(keyState, blob); err != nil {
			return err
		}

		sb, err := tx.CreateBucketIfNotExists(bucketStreams)
		if err != nil {
			return err
		}
		for _, s := range st.Streams {
			data, err := jsonutil.Marshal(s)
			if err != nil {
				return fmt.Errorf("failed to serialize stream %d: %w", s.Meta.OptID, err)
			}
			key := []byte(fmt.Sprintf("%08d", s.Meta.OptID))
			if err := sb.Put(key, data); err != nil {
				return err
			}
		}
		return nil
	})
}

// Commit atomically renames the temp directory to its final name,
// replacing any previous checkpoint of that name.
func Commit(tmp, final string) error {
	if err := os.RemoveAll(final); err != nil {
		return fmt.Errorf("failed to remove previous checkpoint: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("failed to commit checkpoint: %w", err)
	}
	return nil
}

// Load reads a committed checkpoint directory.
func Load(dir string) (*State, error) {
	db, err := bolt.Open(filepath.Join(dir, dbName), 0o600, &bolt.Options{
		Timeout:  5 * time.Second,
		ReadOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint database: %w", err)
	}
	defer db.Close()

	var st State
	err = db.View(func(tx *bolt.Tx) error {
		mb := tx.Bucket(bucketManager)
		if mb == nil {
			return fmt.Errorf("checkpoint has no manager bucket")
		}
		blob := mb.Get(keyState)
		if blob == nil {
			return fmt.Errorf("checkpoint has no manager state")
		}
		if err := jsonutil.Unmarshal(blob, &st); err != nil {
			return fmt.Errorf("failed to decode manager state: %w", err)
		}
		sb := tx.Bucket(bucketStreams)
		if sb == nil {
			return nil
		}
		return sb.ForEach(func(_, v []byte) error {
			var s StreamState
			if err := jsonutil.Unmarshal(v, &s); err != nil {
				return fmt.Errorf("failed to decode stream: %w", err)
			}
			st.Streams = append(st.Streams, s)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return &st, nil
}
