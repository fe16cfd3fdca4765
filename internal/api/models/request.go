package models

import (
	"battery-estimator/internal/data"
	"battery-estimator/internal/model"
	"battery-estimator/internal/optimizer"
)

// EstimateRequest represents the request body for a parameter estimation.
type EstimateRequest struct {
	Batch   string `json:"batch"`
	Battery int    `json:"battery,omitempty"`
	Cycle   int    `json:"cycle,omitempty"`

	// Condition overrides the working condition registered for Batch.
	Condition *model.WorkingCondition `json:"condition,omitempty"`

	Keys   any `json:"keys,omitempty"`   // ordered parameter names, default ["qMax","Ro","wr"]
	Bounds any `json:"bounds,omitempty"` // {"Ro": [lo, hi]} or [[lo, hi], ...]

	Data       DataConfig      `json:"data"`
	Optimizer  OptimizerConfig `json:"optimizer,omitempty"`
	Iterations int             `json:"iterations,omitempty"`
	Options    EstimateOptions `json:"options,omitempty"`
}

// DataConfig carries the observed discharge in one of three forms:
// a measured trace, pre-built runs, or the times/inputs/outputs series.
type DataConfig struct {
	Trace *data.Trace `json:"trace,omitempty"`

	// ResampleInterval resamples Trace onto a regular grid (seconds). 0 keeps it as is.
	ResampleInterval float64 `json:"resample_interval,omitempty"`

	Runs    []model.Run `json:"runs,omitempty"`
	Times   any         `json:"times,omitempty"`
	Inputs  any         `json:"inputs,omitempty"`
	Outputs any         `json:"outputs,omitempty"`
}

// OptimizerConfig selects and tunes the optimizer. Empty fields use the server config.
type OptimizerConfig struct {
	Name   string            `json:"name,omitempty"`
	Params *optimizer.Params `json:"params,omitempty"`
}

// EstimateOptions contains optional response parameters
type EstimateOptions struct {
	IncludeLedger bool `json:"include_ledger,omitempty"` // default: false
	IncludeStates bool `json:"include_states,omitempty"` // default: false
}

// ScoreRequest scores one candidate against an observed discharge.
type ScoreRequest struct {
	Batch     string                  `json:"batch"`
	Condition *model.WorkingCondition `json:"condition,omitempty"`
	Candidate model.Candidate         `json:"candidate"`
	Data      DataConfig              `json:"data"`
}
