package estimate

import (
	"fmt"
	"reflect"

	"battery-estimator/internal/model"
)

// Normalize returns the runs of a request.
//
// Pre-built runs are returned as they are. Otherwise times, inputs and outputs
// must all be given; each is either one flat series (one run) or a sequence of
// series (one per run), decided by whether its first element is itself a sequence.
// Input and output elements are converted into model.Input and model.Output.
func Normalize(runs []model.Run, times, inputs, outputs any) ([]model.Run, error) {
	if runs != nil {
		out := make([]model.Run, len(runs))
		copy(out, runs)
		return out, nil
	}
	if times == nil || inputs == nil || outputs == nil {
		return nil, ErrMissingRunData
	}
	if err := validateSeries(times, inputs, outputs); err != nil {
		return nil, err
	}

	ts := batches(reflect.ValueOf(times))
	is := batches(reflect.ValueOf(inputs))
	ous := batches(reflect.ValueOf(outputs))
	if len(ts) != len(is) || len(is) != len(ous) {
		return nil, fmt.Errorf("%w: %d time series, %d input series, %d output series", ErrLengthMismatch, len(ts), len(is), len(ous))
	}

	out := make([]model.Run, len(ts))
	for r := range ts {
		run, err := buildRun(ts[r], is[r], ous[r])
		if err != nil {
			return nil, fmt.Errorf("run %d: %w", r, err)
		}
		out[r] = run
	}
	return out, nil
}

// batches splits a series into per-run series.
func batches(v reflect.Value) []reflect.Value {
	v = indirect(v)
	if v.Len() > 0 && isSequence(v.Index(0)) {
		out := make([]reflect.Value, v.Len())
		for i := range out {
			out[i] = indirect(v.Index(i))
		}
		return out
	}
	return []reflect.Value{v}
}

func buildRun(times, inputs, outputs reflect.Value) (model.Run, error) {
	if !isSequence(times) || !isSequence(inputs) || !isSequence(outputs) {
		return model.Run{}, ErrUnorderedData
	}
	n := times.Len()
	if inputs.Len() != n || outputs.Len() != n {
		return model.Run{}, fmt.Errorf("%w: times=%d, inputs=%d, outputs=%d", ErrLengthMismatch, n, inputs.Len(), outputs.Len())
	}
	if n == 0 {
		return model.Run{}, ErrEmptyData
	}

	run := model.Run{
		Times:   make([]float64, n),
		Inputs:  make([]model.Input, n),
		Outputs: make([]model.Output, n),
	}
	for k := 0; k < n; k++ {
		t, ok := toFloat(times.Index(k))
		if !ok {
			return model.Run{}, fmt.Errorf("%w: time %d is not a number", ErrInvalidRecord, k)
		}
		in, err := toInput(inputs.Index(k))
		if err != nil {
			return model.Run{}, fmt.Errorf("input %d: %w", k, err)
		}
		o, err := toOutput(outputs.Index(k))
		if err != nil {
			return model.Run{}, fmt.Errorf("output %d: %w", k, err)
		}
		run.Times[k], run.Inputs[k], run.Outputs[k] = t, in, o
	}
	return run, nil
}

func toInput(v reflect.Value) (model.Input, error) {
	v = indirect(v)
	if !v.IsValid() {
		return model.Input{}, fmt.Errorf("%w: nil input", ErrInvalidRecord)
	}
	if in, ok := v.Interface().(model.Input); ok {
		return in, nil
	}
	m, ok := toScalarMap(v)
	if !ok {
		return model.Input{}, fmt.Errorf("%w: %s is not an input record", ErrInvalidRecord, v.Type())
	}
	in, err := model.InputFromMap(m)
	if err != nil {
		return model.Input{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return in, nil
}

func toOutput(v reflect.Value) (model.Output, error) {
	v = indirect(v)
	if !v.IsValid() {
		return model.Output{}, fmt.Errorf("%w: nil output", ErrInvalidRecord)
	}
	if o, ok := v.Interface().(model.Output); ok {
		return o, nil
	}
	m, ok := toScalarMap(v)
	if !ok {
		return model.Output{}, fmt.Errorf("%w: %s is not an output record", ErrInvalidRecord, v.Type())
	}
	o, err := model.OutputFromMap(m)
	if err != nil {
		return model.Output{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return o, nil
}
