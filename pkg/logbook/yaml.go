package logbook

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// SaveOptimizerFiles writes one YAML file per optimizer into dir,
// named NN_Type.yml, with DETAILS, MESSAGES and ITERATION_HISTORY
// sections.
func (l *Log) SaveOptimizerFiles(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	dumps := l.Dump()
	digits := 1
	for _, d := range dumps {
		if n := len(fmt.Sprintf("%d", d.Meta.OptID)); n > digits {
			digits = n
		}
	}
	for _, d := range dumps {
		name := fmt.Sprintf("%0*d_%s.yml", digits, d.Meta.OptID, d.Meta.Type)
		if err := writeOptimizerFile(filepath.Join(dir, name), d); err != nil {
			return err
		}
	}
	return nil
}

func writeOptimizerFile(path string, d StreamDump) error {
	details := map[string]interface{}{
		"Optimizer ID":   d.Meta.OptID,
		"Optimizer Type": d.Meta.Type,
		"Start Time":     d.Meta.StartTime.Format("2006-01-02 15:04:05"),
		"Slots":          d.Meta.Slots,
		"Starting Point": d.Meta.StartingPoint,
	}
	if d.Meta.EndCond != "" {
		details["End Condition"] = d.Meta.EndCond
		details["End Time"] = d.Meta.EndTime.Format("2006-01-02 15:04:05")
	}
	for k, v := range d.Extra {
		details[k] = v
	}

	history := make(map[int]map[string]interface{}, len(d.Iters))
	for _, it := range d.Iters {
		history[it.NIter] = map[string]interface{}{
			"f_call_overall": it.FCallOverall,
			"f_call_opt":     it.FCallOpt,
			"fx":             it.Fx,
			"i_best":         it.IBest,
			"fx_best":        it.FxBest,
			"x":              it.X,
		}
	}

	doc := map[string]interface{}{
		"DETAILS":           details,
		"MESSAGES":          d.Messages,
		"ITERATION_HISTORY": history,
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to render optimizer file: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write optimizer file: %w", err)
	}
	return nil
}

// summaryEntry is the per-optimizer record of the summary file.
type summaryEntry struct {
	EndCond string    `yaml:"end_cond"`
	FCalls  int       `yaml:"f_calls"`
	FBest   float64   `yaml:"f_best"`
	XBest   []float64 `yaml:"x_best"`
}

// SaveSummary writes a YAML map opt_id -> {end_cond, f_calls, f_best,
// x_best} for human inspection.
func (l *Log) SaveSummary(path string) error {
	sum := make(map[uint32]summaryEntry)
	for _, d := range l.Dump() {
		entry := summaryEntry{EndCond: d.Meta.EndCond}
		if n := len(d.Iters); n > 0 {
			last := d.Iters[n-1]
			entry.FCalls = last.FCallOpt
			entry.FBest = last.FxBest
			for _, it := range d.Iters {
				if it.NIter == last.IBest {
					entry.XBest = it.X
					break
				}
			}
		}
		sum[d.Meta.OptID] = entry
	}
	data, err := yaml.Marshal(sum)
	if err != nil {
		return fmt.Errorf("failed to render summary: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return nil
}
