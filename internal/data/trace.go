package data

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"battery-estimator/internal/analysis"
	"battery-estimator/internal/model"
)

var (
	ErrEmptyTrace     = errors.New("trace has no samples")
	ErrRaggedTrace    = errors.New("trace channels differ in length")
	ErrMissingColumn  = errors.New("trace is missing a required column")
	ErrUnorderedTrace = errors.New("trace times must be strictly increasing")
)

// Trace is one measured discharge: time in seconds, current in A,
// terminal voltage in V and temperature in °C.
//
// Current may be empty, in which case a constant load is assumed.
type Trace struct {
	Times       []float64 `json:"times"`
	Current     []float64 `json:"current,omitempty"`
	Voltage     []float64 `json:"voltage"`
	Temperature []float64 `json:"temperature"`
}

func (tr Trace) Len() int { return len(tr.Times) }

// Validate checks the channels line up and time moves forward.
func (tr Trace) Validate() error {
	if len(tr.Times) == 0 {
		return ErrEmptyTrace
	}
	n := len(tr.Times)
	if len(tr.Voltage) != n || len(tr.Temperature) != n || (len(tr.Current) != 0 && len(tr.Current) != n) {
		return fmt.Errorf("%w: times=%d current=%d voltage=%d temperature=%d",
			ErrRaggedTrace, n, len(tr.Current), len(tr.Voltage), len(tr.Temperature))
	}
	for i := 1; i < n; i++ {
		if !(tr.Times[i] > tr.Times[i-1]) {
			return fmt.Errorf("%w: t[%d]=%g after t[%d]=%g", ErrUnorderedTrace, i, tr.Times[i], i-1, tr.Times[i-1])
		}
	}
	return nil
}

// WithCurrent returns a copy of tr with every current sample set to i.
func (tr Trace) WithCurrent(i float64) Trace {
	out := tr
	out.Current = make([]float64, len(tr.Times))
	for k := range out.Current {
		out.Current[k] = i
	}
	return out
}

// Records converts the trace to the record form accepted by estimate.Normalize:
// inputs {"i"} and outputs {"t", "v"}.
func (tr Trace) Records() (times []float64, inputs, outputs []map[string]float64) {
	times = make([]float64, len(tr.Times))
	copy(times, tr.Times)
	inputs = make([]map[string]float64, len(tr.Times))
	outputs = make([]map[string]float64, len(tr.Times))
	for k := range tr.Times {
		i := 0.0
		if k < len(tr.Current) {
			i = tr.Current[k]
		}
		inputs[k] = map[string]float64{"i": i}
		outputs[k] = map[string]float64{"t": tr.Temperature[k], "v": tr.Voltage[k]}
	}
	return times, inputs, outputs
}

// Run converts the trace to a typed run.
func (tr Trace) Run() model.Run {
	times, inputs, outputs := tr.Records()
	run := model.Run{Times: times}
	for k := range times {
		run.Inputs = append(run.Inputs, model.Input{I: inputs[k]["i"]})
		run.Outputs = append(run.Outputs, model.Output{T: outputs[k]["t"], V: outputs[k]["v"]})
	}
	return run
}

// TraceFromRun is the inverse of Trace.Run.
func TraceFromRun(r model.Run) Trace {
	tr := Trace{
		Times:       make([]float64, r.Len()),
		Current:     make([]float64, r.Len()),
		Voltage:     r.Voltages(),
		Temperature: r.Temperatures(),
	}
	copy(tr.Times, r.Times)
	for k, in := range r.Inputs {
		tr.Current[k] = in.I
	}
	return tr
}

// Resample interpolates voltage and temperature onto a regular grid starting at 0.
//
// The grid has floor(max(t)/interval)+1 points evenly spanning [0, floor(max(t))],
// interpolated with a not-a-knot cubic spline. Grid points before the first sample
// take the first measured value. Current is resampled as a step function.
func Resample(tr Trace, interval float64) (Trace, error) {
	if err := tr.Validate(); err != nil {
		return Trace{}, err
	}
	if interval <= 0 || math.IsNaN(interval) {
		return Trace{}, fmt.Errorf("resample interval must be positive, got %g", interval)
	}
	if tr.Len() < 4 {
		return Trace{}, fmt.Errorf("%w: cubic resampling needs 4 samples, got %d", analysis.ErrInsufficientSamples, tr.Len())
	}

	end := tr.Times[tr.Len()-1]
	n := int(math.Floor(end/interval)) + 1
	grid := linspace(0, math.Floor(end), n)

	v, err := analysis.FitNotAKnot(tr.Times, tr.Voltage)
	if err != nil {
		return Trace{}, fmt.Errorf("fit voltage: %w", err)
	}
	temp, err := analysis.FitNotAKnot(tr.Times, tr.Temperature)
	if err != nil {
		return Trace{}, fmt.Errorf("fit temperature: %w", err)
	}

	out := Trace{
		Times:       grid,
		Voltage:     make([]float64, n),
		Temperature: make([]float64, n),
	}
	if len(tr.Current) > 0 {
		out.Current = make([]float64, n)
	}
	j := 0
	for k, t := range grid {
		out.Voltage[k] = v.Predict(t)
		out.Temperature[k] = temp.Predict(t)
		if out.Current != nil {
			for j+1 < tr.Len() && tr.Times[j+1] <= t {
				j++
			}
			out.Current[k] = tr.Current[j]
		}
	}
	return out, nil
}

func linspace(lo, hi float64, n int) []float64 {
	out := make([]float64, n)
	if n == 1 {
		out[0] = lo
		return out
	}
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	out[n-1] = hi
	return out
}

// LoadTraceJSON reads a Trace document.
func LoadTraceJSON(path string) (Trace, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Trace{}, err
	}
	var tr Trace
	if err := json.Unmarshal(raw, &tr); err != nil {
		return Trace{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := tr.Validate(); err != nil {
		return Trace{}, fmt.Errorf("%s: %w", path, err)
	}
	return tr, nil
}

// Column names accepted by ReadTraceCSV, lower-cased.
var traceColumns = map[string][]string{
	"time":        {"t", "time", "times"},
	"current":     {"i", "current"},
	"voltage":     {"v", "voltage"},
	"temperature": {"temp", "temperature", "tb_c"},
}

// LoadTraceCSV reads a trace from a CSV file with a header row.
func LoadTraceCSV(path string) (Trace, error) {
	f, err := os.Open(path)
	if err != nil {
		return Trace{}, err
	}
	defer f.Close()
	tr, err := ReadTraceCSV(f)
	if err != nil {
		return Trace{}, fmt.Errorf("%s: %w", path, err)
	}
	return tr, nil
}

// ReadTraceCSV parses a trace. Time, voltage and temperature columns are
// required, current is optional.
func ReadTraceCSV(r io.Reader) (Trace, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Trace{}, ErrEmptyTrace
		}
		return Trace{}, err
	}

	idx := map[string]int{}
	for col, name := range header {
		name = strings.ToLower(strings.TrimSpace(name))
		for channel, aliases := range traceColumns {
			for _, a := range aliases {
				if name == a {
					idx[channel] = col
				}
			}
		}
	}
	for _, required := range []string{"time", "voltage", "temperature"} {
		if _, ok := idx[required]; !ok {
			return Trace{}, fmt.Errorf("%w: %s", ErrMissingColumn, required)
		}
	}

	var tr Trace
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Trace{}, err
		}
		line++
		field := func(channel string) (float64, error) {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[idx[channel]]), 64)
			if err != nil {
				return 0, fmt.Errorf("line %d %s: %w", line, channel, err)
			}
			return v, nil
		}
		t, err := field("time")
		if err != nil {
			return Trace{}, err
		}
		v, err := field("voltage")
		if err != nil {
			return Trace{}, err
		}
		temp, err := field("temperature")
		if err != nil {
			return Trace{}, err
		}
		tr.Times = append(tr.Times, t)
		tr.Voltage = append(tr.Voltage, v)
		tr.Temperature = append(tr.Temperature, temp)
		if _, ok := idx["current"]; ok {
			i, err := field("current")
			if err != nil {
				return Trace{}, err
			}
			tr.Current = append(tr.Current, i)
		}
	}
	if err := tr.Validate(); err != nil {
		return Trace{}, err
	}
	return tr, nil
}

// LoadTrace picks the loader from the file extension.
func LoadTrace(path string) (Trace, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return LoadTraceCSV(path)
	case ".json":
		return LoadTraceJSON(path)
	}
	return Trace{}, fmt.Errorf("unsupported trace format: %s", path)
}

// WriteTraceCSV writes tr with a t,i,v,temp header. The i column is
// omitted when tr carries no current.
func WriteTraceCSV(w io.Writer, tr Trace) error {
	if err := tr.Validate(); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	withCurrent := len(tr.Current) > 0
	header := []string{"t", "v", "temp"}
	if withCurrent {
		header = []string{"t", "i", "v", "temp"}
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for k := range tr.Times {
		row := []string{strconv.FormatFloat(tr.Times[k], 'g', -1, 64)}
		if withCurrent {
			row = append(row, strconv.FormatFloat(tr.Current[k], 'g', -1, 64))
		}
		row = append(row,
			strconv.FormatFloat(tr.Voltage[k], 'g', -1, 64),
			strconv.FormatFloat(tr.Temperature[k], 'g', -1, 64),
		)
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// SaveTrace writes tr to path as CSV or JSON depending on the extension,
// creating parent directories as needed.
func SaveTrace(path string, tr Trace) error {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".csv" && ext != ".json" {
		return fmt.Errorf("unsupported trace format: %s", path)
	}
	if err := tr.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if ext == ".json" {
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		return enc.Encode(tr)
	}
	return WriteTraceCSV(f, tr)
}
