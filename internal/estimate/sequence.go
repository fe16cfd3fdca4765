package estimate

import (
	"encoding/json"
	"reflect"
)

// Decoded documents arrive as any. These helpers classify them without
// caring whether they came from JSON, YAML or a typed Go caller.

// indirect unwraps interfaces and pointers.
func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Interface || v.Kind() == reflect.Pointer) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

// isSequence reports an ordered container: a slice or array that is not a string.
func isSequence(v reflect.Value) bool {
	v = indirect(v)
	return v.IsValid() && (v.Kind() == reflect.Slice || v.Kind() == reflect.Array)
}

// isUnordered reports a keyed container: a map or a struct.
func isUnordered(v reflect.Value) bool {
	v = indirect(v)
	return v.IsValid() && (v.Kind() == reflect.Map || v.Kind() == reflect.Struct)
}

// seqLen is the length of a sequence, 0 for anything else.
func seqLen(v reflect.Value) int {
	v = indirect(v)
	if !isSequence(v) {
		return 0
	}
	return v.Len()
}

// toFloat converts any numeric value.
func toFloat(v reflect.Value) (float64, bool) {
	v = indirect(v)
	if !v.IsValid() {
		return 0, false
	}
	if n, ok := v.Interface().(json.Number); ok {
		f, err := n.Float64()
		return f, err == nil
	}
	switch v.Kind() {
	case reflect.Float32, reflect.Float64:
		return v.Float(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(v.Uint()), true
	}
	return 0, false
}

// toScalarMap converts a string-keyed mapping of numbers.
func toScalarMap(v reflect.Value) (map[string]float64, bool) {
	v = indirect(v)
	if !v.IsValid() || v.Kind() != reflect.Map || v.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(map[string]float64, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		f, ok := toFloat(iter.Value())
		if !ok {
			return nil, false
		}
		out[iter.Key().String()] = f
	}
	return out, true
}
