// Package report writes finished estimations to disk.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"battery-estimator/internal/analysis"
	"battery-estimator/internal/estimate"
	"battery-estimator/internal/model"

	"github.com/sirupsen/logrus"
)

// KeyParametersFile collects one row per estimated cycle of a battery.
const KeyParametersFile = "key_parameters.csv"

var keyParameterHeader = []string{"qMax", "R0", "wr"}

// StateColumns is the per-cycle simulation table layout after t and v.
var StateColumns = []string{"tb", "Vo", "Vsn", "Vsp", "qnB", "qnS", "qpB", "qpS", "qMax", "Ro", "D"}

// Writer persists outcomes under Dir/<batch>/Battery<n>/.
// It implements estimate.Emitter.
type Writer struct {
	Dir string
	Log logrus.FieldLogger
}

// NewWriter returns a Writer rooted at dir.
func NewWriter(dir string, log logrus.FieldLogger) *Writer {
	return &Writer{Dir: dir, Log: log}
}

// BatteryDir is the directory holding every file for one battery.
func (w *Writer) BatteryDir(batch string, battery int) string {
	return filepath.Join(w.Dir, batch, fmt.Sprintf("Battery%d", battery))
}

// Emit writes the key-parameter row, the per-cycle state table, the
// evaluation ledger and the JSON summary.
func (w *Writer) Emit(e estimate.Emission) error {
	if e.Outcome == nil {
		return fmt.Errorf("outcome is nil")
	}
	dir := w.BatteryDir(e.Batch, e.Battery)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	c := e.Outcome.Candidate
	if err := AppendKeyParameters(filepath.Join(dir, KeyParametersFile), c); err != nil {
		return fmt.Errorf("key parameters: %w", err)
	}
	cycle := strconv.Itoa(e.Cycle)
	if err := WriteStatesCSV(filepath.Join(dir, cycle+".csv"), e.Outcome.Simulated); err != nil {
		return fmt.Errorf("states: %w", err)
	}
	if err := WriteLedgerCSV(filepath.Join(dir, cycle+"_evaluations.csv"), e.Outcome.Keys, e.Outcome.Ledger); err != nil {
		return fmt.Errorf("ledger: %w", err)
	}
	if err := WriteSummaryJSON(filepath.Join(dir, cycle+".json"), NewSummary(e)); err != nil {
		return fmt.Errorf("summary: %w", err)
	}

	if w.Log != nil {
		w.Log.WithFields(logrus.Fields{
			"batch":   e.Batch,
			"battery": e.Battery,
			"cycle":   e.Cycle,
			"dir":     dir,
		}).Info("Wrote estimation results")
	}
	return nil
}

// AppendKeyParameters appends c to path, writing the header when the file is new.
func AppendKeyParameters(path string, c model.Candidate) error {
	_, statErr := os.Stat(path)
	fresh := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if fresh {
		if err := w.Write(keyParameterHeader); err != nil {
			return err
		}
	}
	if err := w.Write([]string{fmtFloat(c.QMax), fmtFloat(c.Ro), fmtFloat(c.Wr)}); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// WriteStatesCSV writes one row per simulated sample. State cells are empty
// when the series carries no states.
func WriteStatesCSV(path string, s model.SimulatedSeries) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	header := append([]string{"t", "v"}, StateColumns...)
	if err := w.Write(header); err != nil {
		return err
	}
	for i, t := range s.Times {
		row := make([]string, 0, len(header))
		row = append(row, fmtFloat(t), fmtFloat(s.Outputs[i].V))
		for _, name := range StateColumns {
			cell := ""
			if i < len(s.States) {
				if v, ok := s.States[i][name]; ok {
					cell = fmtFloat(v)
				}
			}
			row = append(row, cell)
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// WriteLedgerCSV writes the optimizer's evaluations in call order.
func WriteLedgerCSV(path string, keys []string, ledger []estimate.LedgerRow) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	header := []string{"index"}
	header = append(header, keys...)
	header = append(header, "score", "failed", "best_score")
	if err := w.Write(header); err != nil {
		return err
	}
	for _, r := range ledger {
		row := []string{strconv.Itoa(r.Index)}
		for _, k := range keys {
			row = append(row, fmtFloat(r.Params[k]))
		}
		row = append(row, fmtFloat(r.Score), strconv.FormatBool(r.Failed), fmtFloat(r.BestScore))
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// Summary is the JSON view of one estimation, with both curves on the SOC grid.
type Summary struct {
	Batch       string                 `json:"batch"`
	Battery     int                    `json:"battery"`
	Cycle       int                    `json:"cycle"`
	Parameters  map[string]float64     `json:"parameters"`
	Score       float64                `json:"score"`
	Evaluations int                    `json:"evaluations"`
	Optimizer   string                 `json:"optimizer"`
	Condition   model.WorkingCondition `json:"condition"`
	Alignment   *analysis.Alignment    `json:"alignment,omitempty"`
	Stats       *analysis.Stats        `json:"stats,omitempty"`
	Observed    []float64              `json:"observed"`
	Warnings    []string               `json:"warnings,omitempty"`
	Duration    string                 `json:"duration"`
	WrittenAt   time.Time              `json:"written_at"`
}

// NewSummary builds the summary for e.
func NewSummary(e estimate.Emission) Summary {
	out := e.Outcome
	s := Summary{
		Batch:       e.Batch,
		Battery:     e.Battery,
		Cycle:       e.Cycle,
		Parameters:  out.Candidate.Params(),
		Score:       out.Score,
		Evaluations: out.Evaluations,
		Optimizer:   out.Optimizer,
		Condition:   out.Condition,
		Alignment:   out.Alignment,
		Observed:    e.Observed,
		Warnings:    out.Warnings,
		Duration:    out.Duration.String(),
		WrittenAt:   time.Now().UTC(),
	}
	if out.Alignment != nil {
		st := out.Alignment.Stats()
		s.Stats = &st
	}
	return s
}

// WriteSummaryJSON writes s as indented JSON.
func WriteSummaryJSON(path string, s Summary) error {
	raw, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

func fmtFloat(x float64) string {
	return strconv.FormatFloat(x, 'g', -1, 64)
}
