package analysis

import "gonum.org/v1/gonum/floats"

// Rescale linearly maps xs onto [lo, hi], preserving order.
// A constant input maps every element to the midpoint (lo+hi)/2.
func Rescale(xs []float64, lo, hi float64) []float64 {
	out := make([]float64, len(xs))
	if len(xs) == 0 {
		return out
	}
	mn, mx := floats.Min(xs), floats.Max(xs)
	if mx == mn {
		for i := range out {
			out[i] = (lo + hi) / 2
		}
		return out
	}
	for i, x := range xs {
		out[i] = (x-mn)/(mx-mn)*(hi-lo) + lo
	}
	return out
}

// UnitRamp returns n evenly spaced points k/(n-1) covering [0, 1].
// A single point is returned as [0].
func UnitRamp(n int) []float64 {
	if n <= 0 {
		return nil
	}
	out := make([]float64, n)
	if n == 1 {
		return out
	}
	for k := range out {
		out[k] = float64(k) / float64(n-1)
	}
	return out
}
