package estimate

import (
	"testing"

	"battery-estimator/internal/model"
	"battery-estimator/internal/sim"
	"battery-estimator/internal/ukf"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

var fullWindow = model.WorkingCondition{MidSOC: 0.5, DOD: 1.0}

var truth = model.Candidate{QMax: 9000, Ro: 0.09, Wr: 7e-6}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return l
}

func referenceRun() model.Run {
	return model.Run{
		Times:   []float64{0},
		Inputs:  []model.Input{{I: 5.2}},
		Outputs: []model.Output{{T: 25, V: 3.95}},
	}
}

func placeholderRun() model.Run {
	r := model.Run{}
	for i := 0; i < 10; i++ {
		r.Times = append(r.Times, float64(2*i))
		r.Inputs = append(r.Inputs, model.Input{I: 5.2})
		r.Outputs = append(r.Outputs, model.Output{T: 25, V: 4 - 0.1*float64(i)})
	}
	return r
}

func newObjective(t *testing.T, run model.Run) *Objective {
	t.Helper()
	obj, err := NewObjective(ObjectiveParams{
		Simulator:      sim.New(),
		StateEstimator: ukf.Estimator{},
		Run:            run,
		Reference:      referenceRun(),
		Condition:      fullWindow,
		Log:            quietLogger(),
	})
	require.NoError(t, err)
	return obj
}

// syntheticRun is the noise-free discharge the objective itself simulates for c.
func syntheticRun(t *testing.T, c model.Candidate) model.Run {
	t.Helper()
	ev, err := newObjective(t, placeholderRun()).Evaluate(c)
	require.NoError(t, err)

	run := model.Run{
		Times:   ev.Simulated.Times,
		Outputs: ev.Simulated.Outputs,
	}
	for range run.Times {
		run.Inputs = append(run.Inputs, model.Input{I: 5.2})
	}
	require.Greater(t, run.Len(), 100)
	return run
}
