package ukf

import (
	"errors"
	"fmt"

	"battery-estimator/internal/model"
	"battery-estimator/internal/sim"
)

// ErrEmptyReference is returned when the reference run has no samples.
var ErrEmptyReference = errors.New("empty reference run")

// Estimator re-estimates an initial state from the leading samples of a reference run.
type Estimator struct {
	Options Options

	// Samples is how many reference samples are filtered. Zero means 1.
	Samples int
}

// Estimate filters x0 through the first Samples points of reference and returns the posterior mean.
func (e Estimator) Estimate(dyn sim.Dynamics, x0 model.State, reference model.Run) (model.State, error) {
	if reference.Len() == 0 || len(reference.Inputs) == 0 || len(reference.Outputs) == 0 {
		return nil, ErrEmptyReference
	}
	n := e.Samples
	if n <= 0 {
		n = 1
	}
	n = min(n, reference.Len(), len(reference.Inputs), len(reference.Outputs))

	opts := e.Options
	if opts == (Options{}) {
		opts = DefaultOptions()
	}
	t0 := min(0, reference.Times[0])
	f, err := New(dyn, x0, t0, opts)
	if err != nil {
		return nil, err
	}
	for k := 0; k < n; k++ {
		if err := f.Estimate(reference.Times[k], reference.Inputs[k], reference.Outputs[k]); err != nil {
			return nil, fmt.Errorf("reference sample %d: %w", k, err)
		}
	}
	return f.Mean(), nil
}
