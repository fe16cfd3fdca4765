package estimate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"battery-estimator/internal/analysis"
	"battery-estimator/internal/model"
	"battery-estimator/internal/optimizer"

	"github.com/sirupsen/logrus"
)

// Request is one estimation job.
//
// Data comes either as Runs or as the three series Times, Inputs and Outputs,
// which may be typed slices or decoded JSON/YAML documents.
type Request struct {
	Batch   string `json:"batch"`
	Battery int    `json:"battery"`
	Cycle   int    `json:"cycle"`

	// Condition overrides the working condition registered for Batch.
	Condition *model.WorkingCondition `json:"condition,omitempty"`

	// Keys lists the estimated parameters in optimizer order. nil means model.DefaultKeys.
	Keys any `json:"keys,omitempty"`

	// Bounds is a mapping from key to (lower, upper) or one pair per key.
	// nil leaves every key unbounded.
	Bounds any `json:"bounds,omitempty"`

	Runs    []model.Run `json:"runs,omitempty"`
	Times   any         `json:"times,omitempty"`
	Inputs  any         `json:"inputs,omitempty"`
	Outputs any         `json:"outputs,omitempty"`

	// InitialState is restored before every evaluation. nil uses the simulator's.
	InitialState model.State `json:"initial_state,omitempty"`

	// Iterations overrides Settings.Iterations.
	Iterations int `json:"iterations,omitempty"`
}

// Outcome is the result of Estimate.
type Outcome struct {
	model.Result

	Keys      []string               `json:"keys"`
	Bounds    []model.Bound          `json:"bounds"`
	Condition model.WorkingCondition `json:"condition"`
	Optimizer string                 `json:"optimizer"`
	Alignment *analysis.Alignment    `json:"alignment"`
	Ledger    []LedgerRow            `json:"ledger,omitempty"`
	Warnings  []string               `json:"warnings,omitempty"`
	Duration  time.Duration          `json:"duration"`
}

// Estimator fits model parameters to an observed discharge.
// An Estimator is not safe for concurrent use because its Optimizer keeps history.
type Estimator struct {
	Simulator      Simulator
	StateEstimator StateEstimator

	// Reference calibrates the initial state. When empty, the observed run's
	// first sample is used.
	Reference model.Run

	Optimizer optimizer.Optimizer
	Emitter   Emitter
	Settings  Settings
	Log       logrus.FieldLogger
}

// Prepared is a validated request ready for optimization.
type Prepared struct {
	Keys      []string
	Bounds    []model.Bound
	Warnings  []string
	Run       model.Run
	Condition model.WorkingCondition
	Objective *Objective
	Base      model.Candidate
}

// Prepare validates req and builds its objective without running the optimizer.
func (e *Estimator) Prepare(req Request) (*Prepared, error) {
	if e.Simulator == nil {
		return nil, fmt.Errorf("simulator is nil")
	}
	log := e.logger()
	names := e.Simulator.ParameterNames()

	keys, err := ValidateKeys(req.Keys, names)
	if err != nil {
		return nil, err
	}
	if req.Runs == nil && req.Times != nil && req.Inputs != nil && req.Outputs != nil {
		if err := validateSeries(req.Times, req.Inputs, req.Outputs); err != nil {
			return nil, err
		}
	}
	runs, err := Normalize(req.Runs, req.Times, req.Inputs, req.Outputs)
	if err != nil {
		return nil, err
	}
	for i, r := range runs {
		if err := validateRun(r); err != nil {
			return nil, fmt.Errorf("run %d: %w", i, err)
		}
	}
	if len(runs) == 0 {
		return nil, ErrEmptyData
	}

	spec := req.Bounds
	if spec == nil {
		spec = DefaultBounds(keys)
	}
	bounds, warnings, err := ResolveBounds(spec, keys, names)
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		log.Warn(w)
	}

	if len(runs) > 1 {
		return nil, fmt.Errorf("%w: got %d runs", ErrUnsupportedMultiRun, len(runs))
	}
	run := runs[0]

	var wc model.WorkingCondition
	if req.Condition != nil {
		wc = *req.Condition
	} else if wc, err = model.LookupWorkingCondition(req.Batch); err != nil {
		return nil, err
	}

	if run.Len() < 4 {
		return nil, fmt.Errorf("%w: observed run has %d samples", ErrInsufficientSamples, run.Len())
	}

	ref := e.Reference
	if ref.Len() == 0 && e.StateEstimator != nil {
		ref = leadingSample(run)
	}
	obj, err := NewObjective(ObjectiveParams{
		Simulator:      e.Simulator,
		StateEstimator: e.StateEstimator,
		InitialState:   req.InitialState,
		Run:            run,
		Reference:      ref,
		Condition:      wc,
		Settings:       e.Settings,
		Log:            log,
	})
	if err != nil {
		return nil, err
	}

	return &Prepared{
		Keys:      keys,
		Bounds:    bounds,
		Warnings:  warnings,
		Run:       run,
		Condition: wc,
		Objective: obj,
		Base:      e.baseCandidate(),
	}, nil
}

// Estimate validates req, runs the optimizer, re-evaluates the best candidate
// and hands the outcome to the Emitter.
func (e *Estimator) Estimate(ctx context.Context, req Request) (*Outcome, error) {
	if e.Optimizer == nil {
		return nil, fmt.Errorf("optimizer is nil")
	}
	start := time.Now()
	prep, err := e.Prepare(req)
	if err != nil {
		return nil, err
	}
	log := e.logger().WithFields(logrus.Fields{
		"batch":     req.Batch,
		"battery":   req.Battery,
		"cycle":     req.Cycle,
		"optimizer": e.Optimizer.Name(),
	})

	settings := e.Settings.WithDefaults()
	iterations := req.Iterations
	if iterations <= 0 {
		iterations = settings.Iterations
	}

	objective := func(x []float64) float64 {
		return prep.Objective.Score(model.CandidateFromVector(prep.Keys, x, prep.Base))
	}
	log.WithFields(logrus.Fields{"keys": prep.Keys, "iterations": iterations}).Info("Starting estimation")
	if err := e.Optimizer.Maximize(ctx, objective, prep.Bounds, iterations); err != nil {
		return nil, fmt.Errorf("optimize: %w", err)
	}

	best, ok := e.Optimizer.Best()
	if !ok {
		return nil, errors.New("optimizer recorded no evaluations")
	}
	candidate := model.CandidateFromVector(prep.Keys, best.X, prep.Base)
	final, err := prep.Objective.EvaluateWithStates(candidate)
	if err != nil {
		return nil, fmt.Errorf("final evaluation: %w", err)
	}

	history := e.Optimizer.History()
	out := &Outcome{
		Result: model.Result{
			Candidate:   candidate,
			Score:       final.Score,
			Evaluations: len(history),
			Simulated:   final.Simulated,
		},
		Keys:      prep.Keys,
		Bounds:    prep.Bounds,
		Condition: prep.Condition,
		Optimizer: e.Optimizer.Name(),
		Alignment: final.Alignment,
		Ledger:    NewLedger(prep.Keys, history, settings.Sentinel),
		Warnings:  prep.Warnings,
		Duration:  time.Since(start),
	}
	log.WithFields(logrus.Fields{
		"qMax":        candidate.QMax,
		"Ro":          candidate.Ro,
		"wr":          candidate.Wr,
		"score":       final.Score,
		"evaluations": len(history),
	}).Info("Estimation finished")

	if e.Emitter != nil {
		if err := e.Emitter.Emit(Emission{
			Batch:    req.Batch,
			Battery:  req.Battery,
			Cycle:    req.Cycle,
			Outcome:  out,
			Observed: prep.Objective.Observed(),
		}); err != nil {
			return nil, fmt.Errorf("emit: %w", err)
		}
	}
	return out, nil
}

// leadingSample is the reference used when none is configured.
func leadingSample(r model.Run) model.Run {
	return model.Run{
		Times:   r.Times[:1:1],
		Inputs:  r.Inputs[:1:1],
		Outputs: r.Outputs[:1:1],
	}
}

// baseCandidate reads the simulator's current values for the default keys.
func (e *Estimator) baseCandidate() model.Candidate {
	var c model.Candidate
	c.QMax, _ = e.Simulator.Parameter(model.KeyQMax)
	c.Ro, _ = e.Simulator.Parameter(model.KeyRo)
	c.Wr, _ = e.Simulator.Parameter(model.KeyWr)
	return c
}

func (e *Estimator) logger() logrus.FieldLogger {
	if e.Log == nil {
		return logrus.StandardLogger()
	}
	return e.Log
}
