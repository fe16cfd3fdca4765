package analysis

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/mat"
)

// ErrSingularSpline is returned when the spline slope system has a zero pivot.
var ErrSingularSpline = errors.New("spline slope system is singular")

// FitNotAKnot fits a cubic spline through (xs, ys) whose third derivative is
// continuous across the second and the second-to-last knot.
//
// The knot slopes come from a tridiagonal system solved in linear time, so the
// fit scales to curves of any length. xs must be strictly increasing and hold
// at least 4 points. Predictions outside [xs[0], xs[n-1]] are clamped to the
// end values.
func FitNotAKnot(xs, ys []float64) (*interp.PiecewiseCubic, error) {
	n := len(xs)
	if n != len(ys) {
		return nil, fmt.Errorf("spline: %d positions but %d values", n, len(ys))
	}
	if n < minCubicSamples {
		return nil, fmt.Errorf("%w: spline needs %d points, got %d", ErrInsufficientSamples, minCubicSamples, n)
	}

	h := make([]float64, n-1)
	delta := make([]float64, n-1)
	for i := range h {
		h[i] = xs[i+1] - xs[i]
		if !(h[i] > 0) || math.IsInf(h[i], 0) {
			return nil, fmt.Errorf("%w at index %d", ErrDegenerateAxis, i+1)
		}
		delta[i] = (ys[i+1] - ys[i]) / h[i]
	}

	lower := make([]float64, n)
	diag := make([]float64, n)
	upper := make([]float64, n)
	rhs := make([]float64, n)

	first := h[0] + h[1]
	diag[0] = h[1]
	upper[0] = first
	rhs[0] = ((h[0]+2*first)*h[1]*delta[0] + h[0]*h[0]*delta[1]) / first

	for i := 1; i < n-1; i++ {
		lower[i] = h[i]
		diag[i] = 2 * (h[i-1] + h[i])
		upper[i] = h[i-1]
		rhs[i] = 3 * (h[i]*delta[i-1] + h[i-1]*delta[i])
	}

	last := h[n-3] + h[n-2]
	lower[n-1] = last
	diag[n-1] = h[n-3]
	rhs[n-1] = (h[n-2]*h[n-2]*delta[n-3] + (2*last+h[n-2])*h[n-3]*delta[n-2]) / last

	slopes, err := solveTridiagonal(lower, diag, upper, rhs)
	if err != nil {
		return nil, err
	}
	for i, s := range slopes {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return nil, fmt.Errorf("%w: slope at index %d", ErrNonFinite, i)
		}
	}

	var pc interp.PiecewiseCubic
	pc.FitWithDerivatives(xs, ys, slopes)
	return &pc, nil
}

// solveTridiagonal solves the system with sub-diagonal lower, diagonal diag and
// super-diagonal upper. lower[0] and upper[n-1] are ignored. The inputs are not
// modified.
func solveTridiagonal(lower, diag, upper, rhs []float64) ([]float64, error) {
	n := len(diag)
	dl := append([]float64(nil), lower[1:]...)
	d := append([]float64(nil), diag...)
	du := append([]float64(nil), upper[:n-1]...)
	a := mat.NewTridiag(n, dl, d, du)

	var x mat.VecDense
	if err := a.SolveVecTo(&x, false, mat.NewVecDense(n, append([]float64(nil), rhs...))); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingularSpline, err)
	}
	return x.RawVector().Data, nil
}
