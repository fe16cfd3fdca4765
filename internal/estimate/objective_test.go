package estimate

import (
	"errors"
	"math"
	"testing"

	"battery-estimator/internal/model"
	"battery-estimator/internal/sim"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateTruthScoresZero(t *testing.T) {
	obj := newObjective(t, syntheticRun(t, truth))

	ev, err := obj.Evaluate(truth)
	require.NoError(t, err)
	assert.Equal(t, 0.0, ev.Score)
	assert.Len(t, ev.Alignment.SOC, 100)
	for _, o := range ev.Simulated.Outputs {
		assert.Greater(t, o.V, 2.7)
		assert.Less(t, o.V, 4.5)
	}
}

func TestEvaluateDoesNotAccumulateState(t *testing.T) {
	obj := newObjective(t, syntheticRun(t, truth))
	other := model.Candidate{QMax: 7000, Ro: 0.15, Wr: 1e-5}

	a, err := obj.Evaluate(other)
	require.NoError(t, err)
	_, err = obj.Evaluate(truth)
	require.NoError(t, err)
	b, err := obj.Evaluate(other)
	require.NoError(t, err)

	assert.Equal(t, a.Score, b.Score)
	assert.Less(t, a.Score, 0.0)
}

func TestEvaluateWorseCandidatesScoreLower(t *testing.T) {
	obj := newObjective(t, syntheticRun(t, truth))
	near := obj.Score(model.Candidate{QMax: 9100, Ro: 0.092, Wr: 7e-6})
	far := obj.Score(model.Candidate{QMax: 6000, Ro: 0.18, Wr: 1.2e-5})
	assert.Less(t, far, near)
	assert.Less(t, near, 0.0)
}

func TestScoreRisesSteadilyTowardsTruth(t *testing.T) {
	obj := newObjective(t, syntheticRun(t, truth))
	score := func(f float64) float64 {
		return obj.Score(model.Candidate{QMax: truth.QMax * f, Ro: truth.Ro, Wr: truth.Wr})
	}

	// neighbouring capacities end the discharge on different samples
	below := []float64{score(0.998), score(0.999), score(1)}
	above := []float64{score(1), score(1.001), score(1.002)}
	assert.Less(t, below[0], below[1])
	assert.Less(t, below[1], below[2])
	assert.Greater(t, above[0], above[1])
	assert.Greater(t, above[1], above[2])
	assert.Equal(t, 0.0, below[2])
}

func TestEvaluateRecordsStates(t *testing.T) {
	obj := newObjective(t, syntheticRun(t, truth))
	ev, err := obj.EvaluateWithStates(truth)
	require.NoError(t, err)
	require.Len(t, ev.Simulated.States, ev.Simulated.Len())
	assert.InDelta(t, 0.09, ev.Simulated.States[0]["Ro"], 0.01)
	assert.Greater(t, ev.Simulated.States[ev.Simulated.Len()-1]["Ro"], ev.Simulated.States[0]["Ro"])
}

func TestScoreReturnsSentinelOnDivergence(t *testing.T) {
	obj := newObjective(t, syntheticRun(t, truth))
	bad := model.Candidate{QMax: -9000, Ro: 0.09, Wr: 7e-6}

	_, err := obj.Evaluate(bad)
	var evalErr *EvaluationError
	require.True(t, errors.As(err, &evalErr))
	assert.Equal(t, bad, evalErr.Candidate)

	assert.NotPanics(t, func() {
		assert.Equal(t, -1e6, obj.Score(bad))
	})
}

type panickingSim struct{ *sim.Model }

func (panickingSim) SimulateToThreshold(sim.Load, sim.Options) (model.SimulatedSeries, error) {
	panic("solver exploded")
}

func TestEvaluateRecoversPanics(t *testing.T) {
	obj, err := NewObjective(ObjectiveParams{
		Simulator: panickingSim{sim.New()},
		Run:       placeholderRun(),
		Condition: fullWindow,
		Log:       quietLogger(),
	})
	require.NoError(t, err)

	_, err = obj.Evaluate(truth)
	var evalErr *EvaluationError
	require.True(t, errors.As(err, &evalErr))
	assert.Equal(t, StagePanic, evalErr.Stage)
	assert.Contains(t, err.Error(), "solver exploded")
	assert.Equal(t, -1e6, obj.Score(truth))
}

func TestEvaluateStateEstimationFailure(t *testing.T) {
	failing := StateEstimatorFunc(func(sim.Dynamics, model.State, model.Run) (model.State, error) {
		return nil, errors.New("filter diverged")
	})
	obj, err := NewObjective(ObjectiveParams{
		Simulator:      sim.New(),
		StateEstimator: failing,
		Run:            placeholderRun(),
		Reference:      referenceRun(),
		Condition:      fullWindow,
		Settings:       Settings{Sentinel: -42},
		Log:            quietLogger(),
	})
	require.NoError(t, err)

	_, err = obj.Evaluate(truth)
	assert.ErrorIs(t, err, ErrStateEstimation)
	var evalErr *EvaluationError
	require.True(t, errors.As(err, &evalErr))
	assert.Equal(t, StageStateEstimation, evalErr.Stage)
	assert.Equal(t, -42.0, obj.Score(truth))
}

func TestEvaluateFeedsReferenceAtFixedCurrent(t *testing.T) {
	var seen model.Run
	var x0 model.State
	spy := StateEstimatorFunc(func(_ sim.Dynamics, x model.State, ref model.Run) (model.State, error) {
		seen, x0 = ref, x.Clone()
		return x, nil
	})
	ref := referenceRun()
	ref.Inputs[0].I = 1

	obj, err := NewObjective(ObjectiveParams{
		Simulator:      sim.New(),
		StateEstimator: spy,
		Run:            placeholderRun(),
		Reference:      ref,
		Condition:      fullWindow,
		Log:            quietLogger(),
	})
	require.NoError(t, err)
	_, _ = obj.Evaluate(truth)

	assert.Equal(t, []model.Input{{I: 5.2}}, seen.Inputs)
	assert.Equal(t, 1.0, ref.Inputs[0].I)

	// candidate and ambient applied to the initial state, charge pools scaled to capacity
	charged := sim.New().InitialState()
	scale := truth.QMax / (3800 / 0.7)
	assert.Equal(t, truth.QMax, x0["qMax"])
	assert.Equal(t, truth.Ro, x0["Ro"])
	assert.InDelta(t, 274.15, x0["tb"], 1e-12)
	assert.InDelta(t, charged["qnB"]*scale, x0["qnB"], 1e-9)
	assert.InDelta(t, charged["qpS"]*scale, x0["qpS"], 1e-9)
}

func TestCloneOwnsSimulator(t *testing.T) {
	obj := newObjective(t, syntheticRun(t, truth))
	clone := obj.Clone()
	require.NotSame(t, obj.sim, clone.sim)

	c := model.Candidate{QMax: 8000, Ro: 0.1, Wr: 8e-6}
	a, err := obj.Evaluate(c)
	require.NoError(t, err)
	b, err := clone.Evaluate(c)
	require.NoError(t, err)
	assert.Equal(t, a.Score, b.Score)
}

func TestObjectiveSimulateMatchesEvaluation(t *testing.T) {
	obj := newObjective(t, model.Run{
		Times:   []float64{0},
		Inputs:  []model.Input{{I: 5.2}},
		Outputs: []model.Output{{T: 25, V: 4.1}},
	})

	series, err := obj.Simulate(truth)
	require.NoError(t, err)
	require.Greater(t, series.Len(), 100)
	assert.Len(t, series.States, series.Len())

	run := syntheticRun(t, truth)
	assert.Equal(t, run.Times, series.Times)
	assert.Equal(t, run.Outputs, series.Outputs)

	// A single observed sample cannot be scored.
	_, err = obj.Evaluate(truth)
	var evalErr *EvaluationError
	require.ErrorAs(t, err, &evalErr)
	assert.Equal(t, StageMetric, evalErr.Stage)
}

func TestObjectiveSimulateMeasuredIsSeeded(t *testing.T) {
	obj := newObjective(t, syntheticRun(t, truth))
	clean, err := obj.Simulate(truth)
	require.NoError(t, err)

	a, err := obj.SimulateMeasured(truth, 0.005, 11)
	require.NoError(t, err)
	b, err := obj.SimulateMeasured(truth, 0.005, 11)
	require.NoError(t, err)
	c, err := obj.SimulateMeasured(truth, 0.005, 12)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a.Voltages(), c.Voltages())

	n := min(a.Len(), clean.Len()) - 10
	require.Greater(t, n, 100)
	sq := 0.0
	for k := 0; k < n; k++ {
		d := a.Outputs[k].V - clean.Outputs[k].V
		sq += d * d
	}
	assert.InDelta(t, 0.005, math.Sqrt(sq/float64(n)), 0.001)

	// the next evaluation is noise-free again
	ev, err := obj.Evaluate(truth)
	require.NoError(t, err)
	assert.Equal(t, 0.0, ev.Score)

	_, err = obj.SimulateMeasured(truth, -1, 0)
	assert.Error(t, err)
}
