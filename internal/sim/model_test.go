package sim

import (
	"errors"
	"testing"

	"battery-estimator/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietModel(t *testing.T) *Model {
	t.Helper()
	m := New()
	require.NoError(t, m.SetParameter(ParamProcessNoise, 0))
	require.NoError(t, m.SetParameter(ParamMeasurementNoise, 0))
	require.NoError(t, m.SetParameter(ParamVEOD, 2.75))
	return m
}

// withCapacity sets qMax and rescales the charge pools like a fully charged cell of that capacity.
func withCapacity(t *testing.T, m *Model, qMax float64) {
	t.Helper()
	x0 := m.InitialState()
	scale := qMax / (3800 / 0.7)
	for _, k := range []string{"qnB", "qnS", "qpB", "qpS"} {
		x0[k] *= scale
	}
	x0["qMax"] = qMax
	require.NoError(t, m.SetParameter(ParamQMax, qMax))
	require.NoError(t, m.SetInitialState(x0))
}

func TestInitialStateIsCharged(t *testing.T) {
	m := New()
	x0 := m.InitialState()
	assert.Len(t, x0, len(m.StateNames()))
	assert.Equal(t, defaultAmbient, x0["tb"])
	assert.Zero(t, x0["Vo"])
	assert.InDelta(t, 3800/0.7*0.6*0.9, x0["qnB"], 1e-9)
	assert.InDelta(t, 3800/0.7*0.4*0.1, x0["qpS"], 1e-9)

	z := m.Output(x0)
	assert.InDelta(t, 4.15, z.V, 0.05)
	assert.InDelta(t, defaultAmbient-kelvinOffset, z.T, 1e-9)
}

func TestSimulateToThreshold(t *testing.T) {
	m := quietModel(t)
	series, err := m.SimulateToThreshold(ConstantLoad(5.2), Options{Dt: 2})
	require.NoError(t, err)

	n := series.Len()
	require.Greater(t, n, 100)
	v := series.Voltages()
	assert.Less(t, v[n-1], 2.75)
	for i := 0; i < n-1; i++ {
		assert.GreaterOrEqual(t, v[i], 2.75, "sample %d", i)
	}
	assert.Zero(t, series.Times[0])
	assert.InDelta(t, 2.0, series.Times[1]-series.Times[0], 1e-12)
	assert.InDelta(t, float64(n-1)*2, series.Times[n-1], 1e-9)

	// the cell heats under load
	temps := series.Temperatures()
	assert.Greater(t, temps[n-1], temps[0])
	assert.Empty(t, series.States)
}

func TestSimulateRecordsStates(t *testing.T) {
	m := quietModel(t)
	require.NoError(t, m.SetParameter(ParamWr, 1e-5))
	series, err := m.SimulateToThreshold(ConstantLoad(5.2), Options{Dt: 2, RecordStates: true})
	require.NoError(t, err)
	require.Len(t, series.States, series.Len())

	last := series.States[len(series.States)-1]
	elapsed := series.Times[series.Len()-1]
	assert.InDelta(t, 0.117215+1e-5*5.2*elapsed, last["Ro"], 1e-9)
	assert.InDelta(t, 3800/0.7-1e-2*5.2*elapsed, last["qMax"], 1e-6)
	assert.InDelta(t, 1e-2*5.2*elapsed, last["D"], 1e-6)
}

func TestLargerCapacityDischargesLonger(t *testing.T) {
	small := quietModel(t)
	withCapacity(t, small, 5000)
	large := quietModel(t)
	withCapacity(t, large, 9000)

	a, err := small.SimulateToThreshold(ConstantLoad(5.2), Options{Dt: 2})
	require.NoError(t, err)
	b, err := large.SimulateToThreshold(ConstantLoad(5.2), Options{Dt: 2})
	require.NoError(t, err)
	assert.Greater(t, b.Len(), a.Len())
}

func TestHigherResistanceLowersVoltage(t *testing.T) {
	low := quietModel(t)
	high := quietModel(t)
	require.NoError(t, high.SetInitialStateField("Ro", 0.2))

	a, err := low.SimulateToThreshold(ConstantLoad(5.2), Options{Dt: 2})
	require.NoError(t, err)
	b, err := high.SimulateToThreshold(ConstantLoad(5.2), Options{Dt: 2})
	require.NoError(t, err)
	assert.Less(t, b.Outputs[20].V, a.Outputs[20].V)
	assert.Less(t, b.Len(), a.Len())
}

func TestHorizonStopsEarly(t *testing.T) {
	m := quietModel(t)
	series, err := m.SimulateToThreshold(ConstantLoad(5.2), Options{Dt: 2, Horizon: 20})
	require.NoError(t, err)
	assert.Equal(t, 11, series.Len())
	assert.Greater(t, series.Outputs[10].V, 2.75)
}

func TestInvalidOptions(t *testing.T) {
	m := quietModel(t)
	_, err := m.SimulateToThreshold(ConstantLoad(5.2), Options{Dt: -1})
	assert.ErrorIs(t, err, ErrInvalidOptions)
}

func TestNextStateMatchesSimulation(t *testing.T) {
	m := quietModel(t)
	series, err := m.SimulateToThreshold(ConstantLoad(5.2), Options{Dt: 2, Horizon: 2, RecordStates: true})
	require.NoError(t, err)
	require.Len(t, series.States, 2)

	next := m.NextState(m.InitialState(), model.Input{I: 5.2}, 2)
	for _, name := range m.StateNames() {
		assert.InDelta(t, series.States[1][name], next[name], 1e-12, name)
	}
	assert.InDelta(t, series.Outputs[1].V, m.Output(next).V, 1e-12)
}

func TestCloneIsIndependent(t *testing.T) {
	m := quietModel(t)
	c := m.Clone()
	require.NoError(t, c.SetParameter(ParamRo, 0.5))
	require.NoError(t, c.SetInitialStateField("Ro", 0.5))

	v, _ := m.Parameter(ParamRo)
	assert.Equal(t, 0.117215, v)
	assert.Equal(t, 0.117215, m.InitialState()["Ro"])
	assert.Equal(t, 0.5, c.InitialState()["Ro"])
}

func TestSeedMakesNoiseReproducible(t *testing.T) {
	m := quietModel(t)
	quiet, err := m.SimulateToThreshold(ConstantLoad(5.2), Options{Dt: 2, Horizon: 200})
	require.NoError(t, err)

	require.NoError(t, m.SetParameter(ParamMeasurementNoise, 0.01))
	run := func(seed int64) model.SimulatedSeries {
		m.Seed(seed)
		s, err := m.SimulateToThreshold(ConstantLoad(5.2), Options{Dt: 2, Horizon: 200})
		require.NoError(t, err)
		return s
	}
	a, b, c := run(4), run(4), run(5)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a.Voltages(), c.Voltages())

	// noise only touches the outputs, never the trajectory
	require.Equal(t, quiet.Len(), a.Len())
	for k := range a.Outputs {
		assert.InDelta(t, quiet.Outputs[k].V, a.Outputs[k].V, 0.06)
	}
}

func TestParameterErrors(t *testing.T) {
	m := New()
	err := m.SetParameter("nope", 1)
	var unknown *UnknownParameterError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "nope", unknown.Name)

	assert.Error(t, m.SetInitialStateField("nope", 1))
	assert.Error(t, m.SetInitialState(model.State{"tb": 300}))
	assert.Contains(t, m.ParameterNames(), ParamQMaxThreshold)
}

func TestDivergenceIsReported(t *testing.T) {
	m := quietModel(t)
	require.NoError(t, m.SetInitialStateField("qnS", -1))
	_, err := m.SimulateToThreshold(ConstantLoad(5.2), Options{Dt: 2})
	assert.ErrorIs(t, err, ErrDiverged)
}

func TestNewWithParameters(t *testing.T) {
	m, err := NewWithParameters(map[string]float64{ParamQMaxThreshold: 7000, ParamRo: 0.2})
	require.NoError(t, err)

	base := New().InitialState()
	x0 := m.InitialState()
	assert.InDelta(t, base["qnB"]*7000/3800, x0["qnB"], 1e-9)
	assert.Equal(t, 0.2, x0["Ro"])

	_, err = NewWithParameters(map[string]float64{"nope": 1})
	var unknown *UnknownParameterError
	assert.True(t, errors.As(err, &unknown))
}
