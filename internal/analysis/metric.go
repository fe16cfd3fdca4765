package analysis

import (
	"errors"
	"fmt"
	"math"

	"battery-estimator/internal/model"
)

// DefaultSOCSamples is the size of the shared SOC grid both curves are resampled onto.
const DefaultSOCSamples = 100

// minCubicSamples is the fewest points a not-a-knot cubic spline can be fitted to.
const minCubicSamples = 4

// overshootWeight multiplies the squared error wherever the simulated curve sits above the observed one.
const overshootWeight = 2

var (
	// ErrInsufficientSamples is returned when a curve is too short to interpolate.
	ErrInsufficientSamples = errors.New("insufficient samples")

	// ErrNonFinite is returned when interpolation produced NaN or Inf.
	ErrNonFinite = errors.New("non-finite value in aligned curve")

	// ErrDegenerateAxis is returned when SOC positions are not strictly increasing,
	// e.g. for a zero-width SOC window.
	ErrDegenerateAxis = errors.New("SOC axis is not strictly increasing")
)

// Alignment holds a simulated and an observed voltage curve resampled onto one SOC grid.
// SOC ascends; voltages at the same index belong to the same SOC.
type Alignment struct {
	SOC       []float64 `json:"soc"`
	Simulated []float64 `json:"simulated"`
	Observed  []float64 `json:"observed"`
}

// Align resamples both curves onto a grid of samples points spanning the
// working condition's SOC window.
//
// Observed samples are taken as uniformly spaced across the SOC window, simulated
// samples as uniformly spaced across the full 0..1 range. Both are discharges, so
// sample 0 sits at the high SOC end.
func Align(simulated, observed []float64, wc model.WorkingCondition, samples int) (*Alignment, error) {
	if samples < 2 {
		return nil, fmt.Errorf("%w: SOC grid needs at least 2 points, got %d", ErrInsufficientSamples, samples)
	}
	if len(simulated) < minCubicSamples {
		return nil, fmt.Errorf("%w: simulated curve has %d points, need %d", ErrInsufficientSamples, len(simulated), minCubicSamples)
	}
	if len(observed) < minCubicSamples {
		return nil, fmt.Errorf("%w: observed curve has %d points, need %d", ErrInsufficientSamples, len(observed), minCubicSamples)
	}

	lo, hi := wc.SOCWindow()
	grid := Rescale(UnitRamp(samples), lo, hi)

	obs, err := resampleDischarge(Rescale(UnitRamp(len(observed)), lo, hi), observed, grid)
	if err != nil {
		return nil, fmt.Errorf("observed curve: %w", err)
	}
	sim, err := resampleDischarge(Rescale(UnitRamp(len(simulated)), 0, 1), simulated, grid)
	if err != nil {
		return nil, fmt.Errorf("simulated curve: %w", err)
	}

	return &Alignment{SOC: grid, Simulated: sim, Observed: obs}, nil
}

// resampleDischarge fits a not-a-knot cubic spline through voltages placed on
// the reversed SOC axis and evaluates it on grid. axis must ascend.
func resampleDischarge(axis, voltages, grid []float64) ([]float64, error) {
	ys := make([]float64, len(voltages))
	for i, v := range voltages {
		ys[len(voltages)-1-i] = v
	}
	spline, err := FitNotAKnot(axis, ys)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(grid))
	for i, x := range grid {
		y := spline.Predict(x)
		if math.IsNaN(y) || math.IsInf(y, 0) {
			return nil, fmt.Errorf("%w at soc=%g", ErrNonFinite, x)
		}
		out[i] = y
	}
	return out, nil
}

// Score is the negative asymmetric squared error: overshoot counts double.
// 0 is a perfect match; larger is better.
func (a *Alignment) Score() float64 {
	sum := 0.0
	for i := range a.SOC {
		d := a.Simulated[i] - a.Observed[i]
		w := d * d
		if d > 0 {
			w *= overshootWeight
		}
		sum += w
	}
	return -sum
}

// Stats summarises the plain (unweighted) residuals.
type Stats struct {
	RMSE   float64 `json:"rmse"`
	MaxAbs float64 `json:"max_abs"`
	Bias   float64 `json:"bias"`
}

func (a *Alignment) Stats() Stats {
	if len(a.SOC) == 0 {
		return Stats{}
	}
	var sq, bias, maxAbs float64
	for i := range a.SOC {
		d := a.Simulated[i] - a.Observed[i]
		sq += d * d
		bias += d
		maxAbs = math.Max(maxAbs, math.Abs(d))
	}
	n := float64(len(a.SOC))
	return Stats{RMSE: math.Sqrt(sq / n), MaxAbs: maxAbs, Bias: bias / n}
}

// WeightedError aligns both curves and returns their score.
func WeightedError(simulated, observed []float64, wc model.WorkingCondition, samples int) (float64, error) {
	a, err := Align(simulated, observed, wc, samples)
	if err != nil {
		return 0, err
	}
	return a.Score(), nil
}
