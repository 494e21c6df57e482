// Package logbook holds the central iteration log all optimizers
// write into (through the manager) and all predicates query. One
// writer, concurrent readers.
package logbook

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/glompo-dev/glompo/pkg/common"
	"github.com/glompo-dev/glompo/pkg/opt"
)

// Track selects one series of a per-optimizer history.
type Track string

const (
	// TrackFCallOverall is the cumulative function call count across
	// all optimizers at the arrival of each iteration.
	TrackFCallOverall Track = "f_call_overall"
	// TrackFCallOpt is the cumulative function call count of the
	// optimizer itself.
	TrackFCallOpt Track = "f_call_opt"
	// TrackFx is the objective value of each iteration.
	TrackFx Track = "fx"
	// TrackFxBest is the running best objective value.
	TrackFxBest Track = "fx_best"
	// TrackIBest is the iteration number holding the running best.
	TrackIBest Track = "i_best"
	// TrackNIter is the per-optimizer step counter.
	TrackNIter Track = "n_iter"
	// TrackTimestamp is seconds since manager start, assigned on
	// arrival.
	TrackTimestamp Track = "timestamp"
)

var (
	// ErrUnknownOptimizer is returned for operations on an opt_id that
	// was never added.
	ErrUnknownOptimizer = errors.New("logbook: unknown optimizer")
	// ErrDuplicateOptimizer is returned when an opt_id is added twice.
	ErrDuplicateOptimizer = errors.New("logbook: optimizer already registered")
	// ErrStreamClosed is returned for appends after the final packet.
	ErrStreamClosed = errors.New("logbook: optimizer already sent final result")
	// ErrOutOfOrder is returned for an iteration whose n_iter does not
	// increase. The iteration is discarded.
	ErrOutOfOrder = errors.New("logbook: out-of-order iteration discarded")
	// ErrUnknownTrack is returned for an unrecognized history track.
	ErrUnknownTrack = errors.New("logbook: unknown history track")
)

// Iteration is one fully annotated log entry.
type Iteration struct {
	NIter        int       `json:"n_iter"`
	FCallOverall uint64    `json:"f_call_overall"`
	FCallOpt     int       `json:"f_call_opt"`
	X            []float64 `json:"x"`
	Fx           float64   `json:"-"`
	IBest        int       `json:"i_best"`
	FxBest       float64   `json:"-"`
	Timestamp    float64   `json:"timestamp"`
	Extras       []float64 `json:"extras,omitempty"`
}

// BestIter identifies the global best point seen so far.
type BestIter struct {
	OptID uint32
	NIter int
	X     []float64
	Fx    float64
}

type stream struct {
	meta     opt.Metadata
	extra    map[string]string
	iters    []Iteration
	messages []string
	final    bool
	fxBest   float64
	iBest    int
	fcalls   int
}

// Log is the append-only iteration history of a managed run.
type Log struct {
	mu            sync.RWMutex
	streams       map[uint32]*stream
	order         []uint32
	total         int
	fcallsOverall uint64
	best          BestIter
	hasBest       bool
	t0            time.Time
	closed        bool
	dbPath        string
	logger        *common.Logger
}

// New creates an empty log. dbPath, if non-empty, is the SQLite file
// Close flushes into.
func New(dbPath string, logger *common.Logger) *Log {
	if logger == nil {
		logger = common.DefaultLogger()
	}
	return &Log{
		streams: make(map[uint32]*stream),
		t0:      time.Now(),
		dbPath:  dbPath,
		logger:  logger,
		best:    BestIter{Fx: math.Inf(1)},
	}
}

// StartTime returns the instant the log was created; iteration
// timestamps are relative to it.
func (l *Log) StartTime() time.Time { return l.t0 }

// AddOptimizer creates a new per-worker stream.
func (l *Log) AddOptimizer(meta opt.Metadata) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.streams[meta.OptID]; exists {
		return fmt.Errorf("%w: opt_id %d", ErrDuplicateOptimizer, meta.OptID)
	}
	l.streams[meta.OptID] = &stream{
		meta:   meta,
		extra:  make(map[string]string),
		fxBest: math.Inf(1),
		iBest:  -1,
	}
	l.order = append(l.order, meta.OptID)
	return nil
}

// PutIteration appends one iteration. A zero Timestamp is replaced by
// the arrival time. Out-of-order iterations are discarded with
// ErrOutOfOrder; appends after the final packet fail with
// ErrStreamClosed.
func (l *Log) PutIteration(r opt.IterationResult) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.streams[r.OptID]
	if !ok {
		return fmt.Errorf("%w: opt_id %d", ErrUnknownOptimizer, r.OptID)
	}
	if s.final {
		return fmt.Errorf("%w: opt_id %d", ErrStreamClosed, r.OptID)
	}
	if n := len(s.iters); n > 0 && r.NIter <= s.iters[n-1].NIter {
		l.logger.Warn("optimizer %d sent n_iter %d after %d, discarded",
			r.OptID, r.NIter, s.iters[n-1].NIter)
		return fmt.Errorf("%w: opt_id %d n_iter %d", ErrOutOfOrder, r.OptID, r.NIter)
	}

	fx := opt.SanitizeFx(r.Fx)
	if fx < s.fxBest {
		s.fxBest = fx
		s.iBest = r.NIter
	}
	s.fcalls += r.IFcalls
	l.fcallsOverall += uint64(r.IFcalls)

	ts := r.Timestamp
	if ts == 0 {
		ts = time.Since(l.t0).Seconds()
	}

	s.iters = append(s.iters, Iteration{
		NIter:        r.NIter,
		FCallOverall: l.fcallsOverall,
		FCallOpt:     s.fcalls,
		X:            r.X,
		Fx:           fx,
		IBest:        s.iBest,
		FxBest:       s.fxBest,
		Timestamp:    ts,
		Extras:       r.Extras,
	})
	l.total++

	// Ties keep the earliest arrival.
	if fx < l.best.Fx {
		l.best = BestIter{OptID: r.OptID, NIter: r.NIter, X: r.X, Fx: fx}
		l.hasBest = true
	}
	if r.Final {
		s.final = true
	}
	return nil
}

// PutMetadata attaches a free-form key/value annotation to a stream.
func (l *Log) PutMetadata(optID uint32, key, value string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.streams[optID]
	if !ok {
		return fmt.Errorf("%w: opt_id %d", ErrUnknownOptimizer, optID)
	}
	s.extra[key] = value
	return nil
}

// PutMessage appends a free-form message to a stream.
func (l *Log) PutMessage(optID uint32, text string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.streams[optID]
	if !ok {
		return fmt.Errorf("%w: opt_id %d", ErrUnknownOptimizer, optID)
	}
	s.messages = append(s.messages, text)
	return nil
}

// MarkEnd records an optimizer's end condition and end time.
func (l *Log) MarkEnd(optID uint32, endCond string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.streams[optID]
	if !ok {
		return fmt.Errorf("%w: opt_id %d", ErrUnknownOptimizer, optID)
	}
	s.meta.EndCond = endCond
	s.meta.EndTime = time.Now()
	return nil
}

// GetHistory returns one numeric series of an optimizer's history.
// The parameter vector track is served by GetHistoryX.
func (l *Log) GetHistory(optID uint32, track Track) ([]float64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.streams[optID]
	if !ok {
		return nil, fmt.Errorf("%w: opt_id %d", ErrUnknownOptimizer, optID)
	}
	switch track {
	case TrackFCallOverall, TrackFCallOpt, TrackFx, TrackFxBest, TrackIBest, TrackNIter, TrackTimestamp:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTrack, track)
	}
	out := make([]float64, len(s.iters))
	for i, it := range s.iters {
		switch track {
		case TrackFCallOverall:
			out[i] = float64(it.FCallOverall)
		case TrackFCallOpt:
			out[i] = float64(it.FCallOpt)
		case TrackFx:
			out[i] = it.Fx
		case TrackFxBest:
			out[i] = it.FxBest
		case TrackIBest:
			out[i] = float64(it.IBest)
		case TrackNIter:
			out[i] = float64(it.NIter)
		case TrackTimestamp:
			out[i] = it.Timestamp
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownTrack, track)
		}
	}
	return out, nil
}

// GetHistoryX returns the parameter vectors tried by an optimizer.
func (l *Log) GetHistoryX(optID uint32) ([][]float64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.streams[optID]
	if !ok {
		return nil, fmt.Errorf("%w: opt_id %d", ErrUnknownOptimizer, optID)
	}
	out := make([][]float64, len(s.iters))
	for i, it := range s.iters {
		out[i] = it.X
	}
	return out, nil
}

// GetMetadata returns a free-form annotation previously attached with
// PutMetadata.
func (l *Log) GetMetadata(optID uint32, key string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.streams[optID]
	if !ok {
		return "", false
	}
	v, ok := s.extra[key]
	return v, ok
}

// Meta returns a copy of an optimizer's structured metadata.
func (l *Log) Meta(optID uint32) (opt.Metadata, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.streams[optID]
	if !ok {
		return opt.Metadata{}, false
	}
	return s.meta, true
}

// TypeOf returns the optimizer class name of a stream.
func (l *Log) TypeOf(optID uint32) string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if s, ok := l.streams[optID]; ok {
		return s.meta.Type
	}
	return ""
}

// Messages returns a copy of a stream's messages.
func (l *Log) Messages(optID uint32) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.streams[optID]
	if !ok {
		return nil
	}
	return append([]string(nil), s.messages...)
}

// OptimizerIDs returns all known opt_ids in insertion order.
func (l *Log) OptimizerIDs() []uint32 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]uint32(nil), l.order...)
}

// LenOpt returns the number of iterations logged for one optimizer.
func (l *Log) LenOpt(optID uint32) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if s, ok := l.streams[optID]; ok {
		return len(s.iters)
	}
	return 0
}

// Len returns the total number of iterations across all optimizers.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.total
}

// FCallsTotal returns the cumulative function call count across all
// optimizers.
func (l *Log) FCallsTotal() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.fcallsOverall
}

// FxBest returns an optimizer's running best value, +Inf when it has
// not logged anything yet.
func (l *Log) FxBest(optID uint32) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if s, ok := l.streams[optID]; ok {
		return s.fxBest
	}
	return math.Inf(1)
}

// BestIter returns the global best point; ok is false while the log
// is empty.
func (l *Log) BestIter() (BestIter, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.best, l.hasBest
}
