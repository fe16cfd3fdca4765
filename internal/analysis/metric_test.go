package analysis

import (
	"math"
	"testing"

	"battery-estimator/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cubicOCV is exactly representable by a cubic spline.
func cubicOCV(soc float64) float64 {
	return 3.0 + 1.1*soc - 0.4*soc*soc + 0.2*soc*soc*soc
}

// dischargeCurve samples f at n points that walk the SOC axis [lo, hi] from hi down to lo.
func dischargeCurve(f func(float64) float64, n int, lo, hi float64) []float64 {
	axis := Rescale(UnitRamp(n), lo, hi)
	out := make([]float64, n)
	for k := range out {
		out[k] = f(axis[n-1-k])
	}
	return out
}

func linearCurve(n int) []float64 {
	out := make([]float64, n)
	for k := range out {
		out[k] = 4.0 - 1.2*float64(k)/float64(n-1)
	}
	return out
}

func TestWeightedErrorIsZeroForMatchingCurves(t *testing.T) {
	for _, batch := range []string{"batch01", "batch06", "batch09", "batch15", "batch21"} {
		wc, err := model.LookupWorkingCondition(batch)
		require.NoError(t, err)
		lo, hi := wc.SOCWindow()

		observed := dischargeCurve(cubicOCV, 37, lo, hi)
		simulated := dischargeCurve(cubicOCV, 211, 0, 1)

		score, err := WeightedError(simulated, observed, wc, DefaultSOCSamples)
		require.NoError(t, err, batch)
		assert.InDelta(t, 0, score, 1e-20, batch)
	}
}

func TestWeightedErrorIdenticalArraysFullWindow(t *testing.T) {
	wc := model.WorkingCondition{MidSOC: 0.5, DOD: 1.0}
	v := linearCurve(250)
	score, err := WeightedError(v, v, wc, DefaultSOCSamples)
	require.NoError(t, err)
	assert.InDelta(t, 0, score, 1e-20)
}

func TestWeightedErrorPenalisesOvershootTwice(t *testing.T) {
	const n = 50
	const delta = 0.05
	wc := model.WorkingCondition{MidSOC: 0.5, DOD: 1.0}
	observed := linearCurve(n)

	up := append([]float64(nil), observed...)
	up[10] += delta
	down := append([]float64(nil), observed...)
	down[10] -= delta

	upScore, err := WeightedError(up, observed, wc, n)
	require.NoError(t, err)
	downScore, err := WeightedError(down, observed, wc, n)
	require.NoError(t, err)

	assert.InDelta(t, -2*delta*delta, upScore, 1e-12)
	assert.InDelta(t, -delta*delta, downScore, 1e-12)
	assert.Less(t, upScore, downScore)
	assert.InDelta(t, 2, upScore/downScore, 1e-9)
}

func TestAlignOrdersSOCAscending(t *testing.T) {
	wc := model.WorkingCondition{MidSOC: 0.8, DOD: 0.2}
	a, err := Align(linearCurve(300), linearCurve(40), wc, 11)
	require.NoError(t, err)
	require.Len(t, a.SOC, 11)
	assert.InDelta(t, 0.7, a.SOC[0], 1e-12)
	assert.InDelta(t, 0.9, a.SOC[10], 1e-12)

	// discharge curves: higher SOC means higher voltage
	assert.Greater(t, a.Observed[10], a.Observed[0])
	assert.InDelta(t, 4.0, a.Observed[10], 1e-9)
	assert.InDelta(t, 2.8, a.Observed[0], 1e-9)
	// the simulated curve covers 0..1, so the window only sees its upper part
	assert.InDelta(t, 4.0-1.2*0.1, a.Simulated[10], 1e-6)
}

func TestAlignStats(t *testing.T) {
	wc := model.WorkingCondition{MidSOC: 0.5, DOD: 1.0}
	obs := linearCurve(20)
	sim := make([]float64, len(obs))
	for i := range sim {
		sim[i] = obs[i] - 0.01
	}
	a, err := Align(sim, obs, wc, 20)
	require.NoError(t, err)
	s := a.Stats()
	assert.InDelta(t, 0.01, s.RMSE, 1e-9)
	assert.InDelta(t, 0.01, s.MaxAbs, 1e-9)
	assert.InDelta(t, -0.01, s.Bias, 1e-9)
	assert.InDelta(t, -20*0.01*0.01, a.Score(), 1e-9)
}

func TestWeightedErrorInsufficientSamples(t *testing.T) {
	wc := model.WorkingCondition{MidSOC: 0.5, DOD: 0.4}
	long := linearCurve(30)
	for _, n := range []int{0, 1, 2, 3} {
		short := linearCurve(30)[:n]
		_, err := WeightedError(short, long, wc, DefaultSOCSamples)
		assert.ErrorIs(t, err, ErrInsufficientSamples, "simulated n=%d", n)
		_, err = WeightedError(long, short, wc, DefaultSOCSamples)
		assert.ErrorIs(t, err, ErrInsufficientSamples, "observed n=%d", n)
	}
	_, err := WeightedError(long, long, wc, 1)
	assert.ErrorIs(t, err, ErrInsufficientSamples)

	_, err = WeightedError(linearCurve(4), linearCurve(4), wc, DefaultSOCSamples)
	assert.NoError(t, err)
}

func TestWeightedErrorZeroWidthWindow(t *testing.T) {
	wc := model.WorkingCondition{MidSOC: 0.5, DOD: 0}
	_, err := WeightedError(linearCurve(30), linearCurve(30), wc, DefaultSOCSamples)
	assert.ErrorIs(t, err, ErrDegenerateAxis)
}

func TestWeightedErrorRejectsNaN(t *testing.T) {
	wc := model.WorkingCondition{MidSOC: 0.5, DOD: 1.0}
	sim := linearCurve(30)
	sim[5] = math.NaN()
	_, err := WeightedError(sim, linearCurve(30), wc, DefaultSOCSamples)
	assert.Error(t, err)
}

func TestWeightedErrorLongCurves(t *testing.T) {
	knee := func(soc float64) float64 { return 3.2 + 0.9*soc - 0.3*math.Exp(-8*soc) }
	for _, batch := range []string{"batch06", "batch21"} {
		wc, err := model.LookupWorkingCondition(batch)
		require.NoError(t, err)
		lo, hi := wc.SOCWindow()

		observed := dischargeCurve(knee, 1400, lo, hi)
		simulated := dischargeCurve(knee, 3600, 0, 1)

		a, err := Align(simulated, observed, wc, DefaultSOCSamples)
		require.NoError(t, err, batch)
		assert.InDeltaSlice(t, a.Observed, a.Simulated, 1e-9, batch)
		assert.InDelta(t, 0, a.Score(), 1e-15, batch)

		shifted := make([]float64, len(simulated))
		for i, v := range simulated {
			shifted[i] = v + 0.01
		}
		score, err := WeightedError(shifted, observed, wc, DefaultSOCSamples)
		require.NoError(t, err, batch)
		assert.InDelta(t, -2*DefaultSOCSamples*0.01*0.01, score, 1e-9, batch)
	}
}
