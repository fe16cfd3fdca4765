package model

import (
	"fmt"
	"math"
)

// Input is one load sample fed to the simulator.
type Input struct {
	// I is the discharge current in A.
	I float64 `json:"i" yaml:"i"`
}

// Output is one measured or simulated sample.
// Units:
// - T: °C
// - V: V (terminal voltage)
type Output struct {
	T float64 `json:"t" yaml:"t"`
	V float64 `json:"v" yaml:"v"`
}

// InputFromMap builds an Input from a plain {"i": current} record.
func InputFromMap(m map[string]float64) (Input, error) {
	i, ok := m["i"]
	if !ok {
		return Input{}, fmt.Errorf("input record missing %q", "i")
	}
	return Input{I: i}, nil
}

// Map returns the record as a plain scalar mapping.
func (in Input) Map() map[string]float64 {
	return map[string]float64{"i": in.I}
}

// OutputFromMap builds an Output from a plain {"t": temperature, "v": voltage} record.
// Temperature is optional and defaults to 0.
func OutputFromMap(m map[string]float64) (Output, error) {
	v, ok := m["v"]
	if !ok {
		return Output{}, fmt.Errorf("output record missing %q", "v")
	}
	return Output{T: m["t"], V: v}, nil
}

// Map returns the record as a plain scalar mapping.
func (o Output) Map() map[string]float64 {
	return map[string]float64{"t": o.T, "v": o.V}
}

// Run is one aligned (times, inputs, outputs) experiment.
// len(Times) == len(Inputs) == len(Outputs) for every valid run.
type Run struct {
	Times   []float64 `json:"times"`
	Inputs  []Input   `json:"inputs"`
	Outputs []Output  `json:"outputs"`
}

func (r Run) Len() int { return len(r.Times) }

// Voltages extracts the voltage channel.
func (r Run) Voltages() []float64 {
	out := make([]float64, len(r.Outputs))
	for i, o := range r.Outputs {
		out[i] = o.V
	}
	return out
}

// Temperatures extracts the temperature channel.
func (r Run) Temperatures() []float64 {
	out := make([]float64, len(r.Outputs))
	for i, o := range r.Outputs {
		out[i] = o.T
	}
	return out
}

// Bound is an inclusive [Lower, Upper] search interval for one parameter.
type Bound struct {
	Lower float64 `json:"lower" yaml:"lower"`
	Upper float64 `json:"upper" yaml:"upper"`
}

// Unbounded is the default bound for keys a mapping does not mention.
func Unbounded() Bound {
	return Bound{Lower: math.Inf(-1), Upper: math.Inf(1)}
}

// Finite reports whether both ends are finite numbers.
func (b Bound) Finite() bool {
	return !math.IsInf(b.Lower, 0) && !math.IsInf(b.Upper, 0) && !math.IsNaN(b.Lower) && !math.IsNaN(b.Upper)
}

// Pair returns the bound as a two element array.
func (b Bound) Pair() [2]float64 { return [2]float64{b.Lower, b.Upper} }
