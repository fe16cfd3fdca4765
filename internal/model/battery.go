package model

import "sort"

// Parameter keys estimated by default.
const (
	KeyQMax = "qMax"
	KeyRo   = "Ro"
	KeyWr   = "wr"
)

// DefaultKeys is the ordered key list used when a request does not name its own.
var DefaultKeys = []string{KeyQMax, KeyRo, KeyWr}

// State is a named view of a simulator's internal state vector.
type State map[string]float64

// Clone returns an independent copy.
func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Keys returns the state names in ascending order.
func (s State) Keys() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Candidate is one proposed parameter set.
// Units:
// - QMax: maximum mobile charge, C
// - Ro: ohmic resistance, Ohm
// - Wr: growth of Ro per coulomb discharged, Ohm/C
//
// Extra carries any further estimable parameters keyed by name.
type Candidate struct {
	QMax  float64            `json:"qMax"`
	Ro    float64            `json:"Ro"`
	Wr    float64            `json:"wr"`
	Extra map[string]float64 `json:"extra,omitempty"`
}

// Get returns the value stored under key.
func (c Candidate) Get(key string) (float64, bool) {
	switch key {
	case KeyQMax:
		return c.QMax, true
	case KeyRo:
		return c.Ro, true
	case KeyWr:
		return c.Wr, true
	}
	v, ok := c.Extra[key]
	return v, ok
}

// With returns a copy of c with key set to v.
func (c Candidate) With(key string, v float64) Candidate {
	switch key {
	case KeyQMax:
		c.QMax = v
	case KeyRo:
		c.Ro = v
	case KeyWr:
		c.Wr = v
	default:
		extra := make(map[string]float64, len(c.Extra)+1)
		for k, x := range c.Extra {
			extra[k] = x
		}
		extra[key] = v
		c.Extra = extra
	}
	return c
}

// CandidateFromVector maps an optimizer vector positionally onto keys,
// starting from base for anything keys do not cover.
func CandidateFromVector(keys []string, x []float64, base Candidate) Candidate {
	c := base
	for i, k := range keys {
		if i >= len(x) {
			break
		}
		c = c.With(k, x[i])
	}
	return c
}

// Vector is the inverse of CandidateFromVector.
func (c Candidate) Vector(keys []string) []float64 {
	out := make([]float64, len(keys))
	for i, k := range keys {
		out[i], _ = c.Get(k)
	}
	return out
}

// Params flattens the candidate into a name -> value mapping.
func (c Candidate) Params() map[string]float64 {
	out := map[string]float64{KeyQMax: c.QMax, KeyRo: c.Ro, KeyWr: c.Wr}
	for k, v := range c.Extra {
		out[k] = v
	}
	return out
}
