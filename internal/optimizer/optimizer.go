// Package optimizer provides black-box maximizers over a bounded box.
package optimizer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"battery-estimator/internal/model"
)

var (
	// ErrNoDimensions is returned for an empty bounds list.
	ErrNoDimensions = errors.New("no search dimensions")

	// ErrUnboundedSearch is returned when a bound is infinite or NaN.
	ErrUnboundedSearch = errors.New("search bounds must be finite")

	// ErrInvalidBound is returned when a lower bound exceeds its upper bound.
	ErrInvalidBound = errors.New("lower bound exceeds upper bound")

	// ErrUnknownOptimizer is returned by New for an unregistered name.
	ErrUnknownOptimizer = errors.New("unknown optimizer")
)

// Objective scores a parameter vector; larger is better. It must not return NaN.
type Objective func(x []float64) float64

// Observation is one evaluated point.
type Observation struct {
	X     []float64 `json:"x"`
	Value float64   `json:"value"`
}

// Optimizer maximizes an Objective inside a box.
//
// Maximize may be called again; it starts a fresh search and clears the history.
type Optimizer interface {
	Name() string
	Maximize(ctx context.Context, objective Objective, bounds []model.Bound, iterations int) error
	Best() (Observation, bool)
	History() []Observation
}

// Params configures any optimizer built by New. Zero values select defaults.
type Params struct {
	Seed int64 `json:"seed" yaml:"seed"`

	// Bayesian
	InitPoints        int     `json:"init_points" yaml:"init_points"`
	Xi                float64 `json:"xi" yaml:"xi"`
	Candidates        int     `json:"candidates" yaml:"candidates"`
	PolishEvaluations int     `json:"polish_evaluations" yaml:"polish_evaluations"`

	// Nelder-Mead
	Restarts    int     `json:"restarts" yaml:"restarts"`
	SimplexSize float64 `json:"simplex_size" yaml:"simplex_size"`
}

// Info describes a registered optimizer.
type Info struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Available lists the optimizers New can build.
func Available() []Info {
	return []Info{
		{
			Name:        NameBayesian,
			Description: "Gaussian-process surrogate with probability-of-improvement acquisition. Spends init_points random evaluations, one evaluation per iteration, then polish_evaluations on Nelder-Mead refinement of the best point.",
		},
		{
			Name:        NameNelderMead,
			Description: "Derivative-free simplex search over the normalised box with random restarts. Iterations is the evaluation budget.",
		},
	}
}

// New builds the optimizer registered under name.
func New(name string, p Params) (Optimizer, error) {
	switch name {
	case NameBayesian, "":
		return NewBayesian(BayesianParams{
			Seed:              p.Seed,
			InitPoints:        p.InitPoints,
			Xi:                p.Xi,
			Candidates:        p.Candidates,
			PolishEvaluations: p.PolishEvaluations,
		}), nil
	case NameNelderMead:
		return NewNelderMead(NelderMeadParams{
			Seed:        p.Seed,
			Restarts:    p.Restarts,
			SimplexSize: p.SimplexSize,
		}), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownOptimizer, name)
}

// box maps between the unit cube and the caller's bounds.
type box []model.Bound

func newBox(bounds []model.Bound) (box, error) {
	if len(bounds) == 0 {
		return nil, ErrNoDimensions
	}
	for i, b := range bounds {
		if !b.Finite() {
			return nil, fmt.Errorf("%w: dimension %d is [%g, %g]", ErrUnboundedSearch, i, b.Lower, b.Upper)
		}
		if b.Lower > b.Upper {
			return nil, fmt.Errorf("%w: dimension %d is [%g, %g]", ErrInvalidBound, i, b.Lower, b.Upper)
		}
	}
	out := make(box, len(bounds))
	copy(out, bounds)
	return out, nil
}

// point clamps u into the unit cube and scales it into the box.
func (b box) point(u []float64) []float64 {
	x := make([]float64, len(b))
	for i, bd := range b {
		x[i] = bd.Lower + clamp01(u[i])*(bd.Upper-bd.Lower)
	}
	return x
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// recorder is the evaluation history shared by all optimizers.
// gonum's optimize package calls back from its own goroutine.
type recorder struct {
	mu      sync.Mutex
	history []Observation
	best    int
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = nil
	r.best = -1
}

func (r *recorder) record(x []float64, v float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append(r.history, Observation{X: x, Value: v})
	if r.best < 0 || v > r.history[r.best].Value {
		r.best = len(r.history) - 1
	}
}

func (r *recorder) Best() (Observation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.best < 0 || r.best >= len(r.history) {
		return Observation{}, false
	}
	return r.history[r.best], true
}

func (r *recorder) History() []Observation {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Observation, len(r.history))
	copy(out, r.history)
	return out
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.history)
}

// Top returns up to n observations ordered best first.
func Top(history []Observation, n int) []Observation {
	out := make([]Observation, len(history))
	copy(out, history)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Value > out[j].Value })
	if n < len(out) {
		out = out[:n]
	}
	return out
}
