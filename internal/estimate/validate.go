package estimate

import (
	"fmt"
	"reflect"

	"battery-estimator/internal/model"
)

// ParseKeys turns a key list into strings. nil selects model.DefaultKeys.
// A mapping or struct is rejected with ErrInvalidKeyOrdering because keys are
// later matched to bounds by position.
func ParseKeys(keys any) ([]string, error) {
	if keys == nil {
		out := make([]string, len(model.DefaultKeys))
		copy(out, model.DefaultKeys)
		return out, nil
	}
	if ks, ok := keys.([]string); ok {
		out := make([]string, len(ks))
		copy(out, ks)
		return out, nil
	}
	v := indirect(reflect.ValueOf(keys))
	if !isSequence(v) {
		return nil, fmt.Errorf("%w: got %T", ErrInvalidKeyOrdering, keys)
	}
	out := make([]string, v.Len())
	for i := range out {
		e := indirect(v.Index(i))
		if !e.IsValid() || e.Kind() != reflect.String {
			return nil, fmt.Errorf("%w: key %d is not a name", ErrUnknownParameter, i)
		}
		out[i] = e.String()
	}
	return out, nil
}

// ValidateKeys parses keys and checks every one is a model parameter.
func ValidateKeys(keys any, names []string) ([]string, error) {
	ks, err := ParseKeys(keys)
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(names))
	for _, n := range names {
		known[n] = true
	}
	for _, k := range ks {
		if !known[k] {
			return nil, fmt.Errorf("%w: %q", ErrUnknownParameter, k)
		}
	}
	return ks, nil
}

// ValidateInputs checks keys against the model's parameter names and the
// shape of the three series, in that order.
func ValidateInputs(keys any, names []string, times, inputs, outputs any) error {
	if _, err := ValidateKeys(keys, names); err != nil {
		return err
	}
	return validateSeries(times, inputs, outputs)
}

// validateSeries checks that times, inputs and outputs are equally long, non-empty sequences.
func validateSeries(times, inputs, outputs any) error {
	series := []struct {
		name string
		v    reflect.Value
	}{
		{"times", reflect.ValueOf(times)},
		{"inputs", reflect.ValueOf(inputs)},
		{"outputs", reflect.ValueOf(outputs)},
	}
	for _, s := range series {
		v := indirect(s.v)
		if !v.IsValid() {
			continue
		}
		if !isSequence(v) {
			return fmt.Errorf("%w: %s is %s", ErrUnorderedData, s.name, v.Type())
		}
	}

	nt, ni, no := seqLen(series[0].v), seqLen(series[1].v), seqLen(series[2].v)
	if nt != ni || ni != no {
		return fmt.Errorf("%w: times=%d, inputs=%d, outputs=%d", ErrLengthMismatch, nt, ni, no)
	}
	if nt == 0 {
		return ErrEmptyData
	}
	return nil
}

// validateRun applies the series checks to a typed run.
func validateRun(r model.Run) error {
	return validateSeries(r.Times, r.Inputs, r.Outputs)
}
