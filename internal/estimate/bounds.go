package estimate

import (
	"fmt"
	"reflect"
	"sort"

	"battery-estimator/internal/model"
)

// ResolveBounds turns a bounds specification into one bound per key, in key order.
//
// A mapping is looked up per key; keys it does not mention are unbounded, and
// mapping entries that are not model parameters only produce a warning.
// An ordered sequence must hold exactly one (lower, upper) pair per key.
// lower <= upper is not checked.
func ResolveBounds(spec any, keys []string, names []string) ([]model.Bound, []string, error) {
	v := indirect(reflect.ValueOf(spec))
	switch {
	case !v.IsValid():
		return nil, nil, fmt.Errorf("%w: got nil", ErrInvalidBoundsType)
	case v.Kind() == reflect.Map:
		return boundsFromMap(v, keys, names)
	case isSequence(v):
		bounds, err := boundsFromSequence(v, keys)
		return bounds, nil, err
	}
	return nil, nil, fmt.Errorf("%w: got %s", ErrInvalidBoundsType, v.Type())
}

// DefaultBounds is the fully unbounded specification used when a request gives none.
func DefaultBounds(keys []string) []model.Bound {
	out := make([]model.Bound, len(keys))
	for i := range out {
		out[i] = model.Unbounded()
	}
	return out
}

func boundsFromMap(v reflect.Value, keys, names []string) ([]model.Bound, []string, error) {
	if v.Type().Key().Kind() != reflect.String {
		return nil, nil, fmt.Errorf("%w: mapping keys must be names, got %s", ErrInvalidBoundsType, v.Type().Key())
	}
	known := make(map[string]bool, len(names))
	for _, n := range names {
		known[n] = true
	}

	entries := make(map[string]reflect.Value, v.Len())
	var warnings []string
	iter := v.MapRange()
	for iter.Next() {
		name := iter.Key().String()
		entries[name] = iter.Value()
		if !known[name] {
			warnings = append(warnings, fmt.Sprintf("%s is not a valid parameter", name))
		}
	}
	sort.Strings(warnings)

	out := make([]model.Bound, len(keys))
	for i, k := range keys {
		e, ok := entries[k]
		if !ok {
			out[i] = model.Unbounded()
			continue
		}
		b, err := boundPair(e)
		if err != nil {
			return nil, warnings, fmt.Errorf("bound for %q: %w", k, err)
		}
		out[i] = b
	}
	return out, warnings, nil
}

func boundsFromSequence(v reflect.Value, keys []string) ([]model.Bound, error) {
	if v.Len() != len(keys) {
		return nil, fmt.Errorf("%w: %d bounds for %d keys, use a mapping for partial bounds", ErrBoundsLengthMismatch, v.Len(), len(keys))
	}
	out := make([]model.Bound, v.Len())
	for i := range out {
		b, err := boundPair(v.Index(i))
		if err != nil {
			return nil, fmt.Errorf("bound %d: %w", i, err)
		}
		out[i] = b
	}
	return out, nil
}

// boundPair accepts a model.Bound or any two-element sequence of numbers.
func boundPair(v reflect.Value) (model.Bound, error) {
	v = indirect(v)
	if !v.IsValid() {
		return model.Bound{}, fmt.Errorf("%w: got nil", ErrInvalidBoundShape)
	}
	if b, ok := v.Interface().(model.Bound); ok {
		return b, nil
	}
	if isUnordered(v) {
		return model.Bound{}, fmt.Errorf("%w: got unordered %s", ErrInvalidBoundShape, v.Type())
	}
	if !isSequence(v) || v.Len() != 2 {
		return model.Bound{}, fmt.Errorf("%w: got %s", ErrInvalidBoundShape, v.Type())
	}
	lo, okLo := toFloat(v.Index(0))
	hi, okHi := toFloat(v.Index(1))
	if !okLo || !okHi {
		return model.Bound{}, fmt.Errorf("%w: elements must be numbers", ErrInvalidBoundShape)
	}
	return model.Bound{Lower: lo, Upper: hi}, nil
}
