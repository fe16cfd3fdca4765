package models

import (
	"time"

	"battery-estimator/internal/analysis"
	"battery-estimator/internal/estimate"
	"battery-estimator/internal/model"
)

// EstimateResponse represents the result of an estimation
type EstimateResponse struct {
	ID        string                 `json:"id,omitempty"`
	Status    string                 `json:"status"`
	Summary   EstimateSummary        `json:"summary"`
	Alignment *analysis.Alignment    `json:"alignment,omitempty"`
	Simulated *model.SimulatedSeries `json:"simulated,omitempty"`
	Ledger    []estimate.LedgerRow   `json:"ledger,omitempty"`
	Warnings  []string               `json:"warnings,omitempty"`
}

// EstimateSummary contains the fitted parameters and how they were found
type EstimateSummary struct {
	Batch       string                 `json:"batch"`
	Battery     int                    `json:"battery"`
	Cycle       int                    `json:"cycle"`
	Parameters  map[string]float64     `json:"parameters"`
	Score       float64                `json:"score"`
	Stats       *analysis.Stats        `json:"stats,omitempty"`
	Evaluations int                    `json:"evaluations"`
	Optimizer   string                 `json:"optimizer"`
	Keys        []string               `json:"keys"`
	Bounds      []BoundInfo            `json:"bounds"`
	Condition   model.WorkingCondition `json:"condition"`
	DurationMS  int64                  `json:"duration_ms"`
	CreatedAt   time.Time              `json:"created_at,omitempty"`
}

// BoundInfo is one search bound. A nil side is unbounded.
type BoundInfo struct {
	Lower *float64 `json:"lower"`
	Upper *float64 `json:"upper"`
}

// ScoreResponse is the result of scoring one candidate
type ScoreResponse struct {
	Score     float64             `json:"score"`
	Stats     analysis.Stats      `json:"stats"`
	Alignment *analysis.Alignment `json:"alignment"`
}

// RankResponse lists the best evaluations of a stored estimation
type RankResponse struct {
	ID       string    `json:"id"`
	Rankings []Ranking `json:"rankings"`
}

// Ranking is one evaluation in rank order
type Ranking struct {
	Rank       int                `json:"rank"`
	Index      int                `json:"index"`
	Parameters map[string]float64 `json:"parameters"`
	Score      float64            `json:"score"`
}

// BatchInfo describes one registered working condition
type BatchInfo struct {
	Batch   string  `json:"batch"`
	MidSOC  float64 `json:"mid_soc"`
	DOD     float64 `json:"dod"`
	SOCLow  float64 `json:"soc_low"`
	SOCHigh float64 `json:"soc_high"`
}

// OptimizerInfo describes an available optimizer
type OptimizerInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  []ParameterInfo `json:"parameters"`
}

// ParameterInfo describes a tunable parameter
type ParameterInfo struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Description string      `json:"description,omitempty"`
	Default     interface{} `json:"default"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}
