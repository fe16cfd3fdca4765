package estimate

import (
	"battery-estimator/internal/model"
	"battery-estimator/internal/sim"
)

// Simulator is the battery model an Objective drives.
type Simulator = sim.Simulator

// StateEstimator calibrates an initial state against a reference trace.
// It must not modify x0.
type StateEstimator interface {
	Estimate(dyn sim.Dynamics, x0 model.State, reference model.Run) (model.State, error)
}

// StateEstimatorFunc adapts a function to StateEstimator.
type StateEstimatorFunc func(dyn sim.Dynamics, x0 model.State, reference model.Run) (model.State, error)

func (f StateEstimatorFunc) Estimate(dyn sim.Dynamics, x0 model.State, reference model.Run) (model.State, error) {
	return f(dyn, x0, reference)
}

// Emission is everything an Emitter receives about one finished request.
type Emission struct {
	Batch    string
	Battery  int
	Cycle    int
	Outcome  *Outcome
	Observed []float64
}

// Emitter persists or publishes a finished estimation.
type Emitter interface {
	Emit(e Emission) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(e Emission) error

func (f EmitterFunc) Emit(e Emission) error { return f(e) }
