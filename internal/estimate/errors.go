package estimate

import (
	"errors"
	"fmt"

	"battery-estimator/internal/analysis"
	"battery-estimator/internal/model"
)

// Request validation errors. All of them abort before the optimizer runs.
var (
	ErrInvalidKeyOrdering   = errors.New("parameter keys must be an ordered sequence")
	ErrUnknownParameter     = errors.New("unknown model parameter")
	ErrUnorderedData        = errors.New("times, inputs and outputs must be ordered sequences")
	ErrLengthMismatch       = errors.New("times, inputs and outputs differ in length")
	ErrEmptyData            = errors.New("times, inputs and outputs are empty")
	ErrMissingRunData       = errors.New("either runs or all of times, inputs and outputs are required")
	ErrInvalidRecord        = errors.New("record cannot be converted")
	ErrBoundsLengthMismatch = errors.New("bounds length does not match keys")
	ErrInvalidBoundShape    = errors.New("bound must be an ordered (lower, upper) pair")
	ErrInvalidBoundsType    = errors.New("bounds must be a mapping or an ordered sequence of pairs")
	ErrUnsupportedMultiRun  = errors.New("only a single run can be scored")
)

// ErrStateEstimation wraps any failure of the state estimator during an evaluation.
var ErrStateEstimation = errors.New("state estimation failed")

// Re-exported so callers can match every request failure from this package.
var (
	ErrUnknownBatch        = model.ErrUnknownBatch
	ErrInsufficientSamples = analysis.ErrInsufficientSamples
)

// Evaluation stages reported by EvaluationError.
const (
	StageConfigure       = "configure"
	StageStateEstimation = "state-estimation"
	StageSimulation      = "simulation"
	StageMetric          = "metric"
	StagePanic           = "panic"
)

// EvaluationError is a failed objective evaluation.
type EvaluationError struct {
	Stage     string
	Candidate model.Candidate
	Err       error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluate qMax=%g Ro=%g wr=%g: %s: %v", e.Candidate.QMax, e.Candidate.Ro, e.Candidate.Wr, e.Stage, e.Err)
}

func (e *EvaluationError) Unwrap() error { return e.Err }
