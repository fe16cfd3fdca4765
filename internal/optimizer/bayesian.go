package optimizer

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"battery-estimator/internal/model"

	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	NameBayesian   = "bayesian"
	NameNelderMead = "nelder-mead"
)

// Defaults for BayesianParams.
const (
	DefaultInitPoints        = 5
	DefaultXi                = 3e-5
	DefaultCandidates        = 2000
	DefaultPolishEvaluations = 300
)

// Polish rounds restart from the best observation with a simplex half the
// size of the previous round's.
const (
	polishRoundEvaluations = 100
	polishSimplexSize      = 0.1
)

// BayesianParams configures Bayesian.
type BayesianParams struct {
	// Seed makes runs reproducible. Zero is a valid seed.
	Seed int64

	// InitPoints random evaluations precede the guided ones.
	InitPoints int

	// Xi is the exploration margin of the probability-of-improvement acquisition,
	// in objective units.
	Xi float64

	// Candidates random points seed each acquisition search.
	Candidates int

	// PolishEvaluations extra evaluations go to Nelder-Mead rounds on the true
	// objective, each started from the best point so far. Zero selects
	// DefaultPolishEvaluations; a negative value disables the polish.
	PolishEvaluations int
}

// Bayesian maximizes an expensive objective with a Gaussian-process surrogate.
//
// Notes:
//   - Each iteration evaluates the point with the highest probability of improving
//     on the incumbent by at least Xi. Points are ranked on the log scale so the
//     ranking survives where the probability underflows.
//   - The acquisition is maximized by random sampling followed by a short
//     Nelder-Mead refinement of the best samples.
//   - The surrogate works in the unit cube; bounds only rescale.
type Bayesian struct {
	params BayesianParams
	recorder
}

func NewBayesian(p BayesianParams) *Bayesian {
	if p.InitPoints <= 0 {
		p.InitPoints = DefaultInitPoints
	}
	if p.Xi == 0 {
		p.Xi = DefaultXi
	}
	if p.Candidates <= 0 {
		p.Candidates = DefaultCandidates
	}
	if p.PolishEvaluations == 0 {
		p.PolishEvaluations = DefaultPolishEvaluations
	}
	return &Bayesian{params: p, recorder: recorder{best: -1}}
}

func (b *Bayesian) Name() string { return NameBayesian }

// Maximize evaluates InitPoints random points, then iterations guided points,
// then the polish rounds.
func (b *Bayesian) Maximize(ctx context.Context, objective Objective, bounds []model.Bound, iterations int) error {
	bx, err := newBox(bounds)
	if err != nil {
		return err
	}
	b.reset()
	rng := rand.New(rand.NewSource(b.params.Seed))
	dim := len(bx)

	var us [][]float64
	var ys []float64
	eval := func(u []float64) float64 {
		x := bx.point(u)
		v := objective(x)
		b.record(x, v)
		us = append(us, u)
		ys = append(ys, v)
		return v
	}

	for i := 0; i < b.params.InitPoints; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		eval(randomPoint(rng, dim))
	}

	for i := 0; i < iterations; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		next, err := b.suggest(rng, us, ys)
		if err != nil {
			next = randomPoint(rng, dim)
		}
		eval(next)
	}

	incumbent := func() ([]float64, float64) {
		best := 0
		for i := range ys {
			if ys[i] > ys[best] {
				best = i
			}
		}
		return append([]float64(nil), us[best]...), ys[best]
	}
	if b.params.PolishEvaluations > 0 {
		if err := b.polish(ctx, incumbent, eval); err != nil {
			return fmt.Errorf("polish: %w", err)
		}
	}
	return nil
}

// suggest returns the next point to evaluate in unit-cube coordinates.
func (b *Bayesian) suggest(rng *rand.Rand, us [][]float64, ys []float64) ([]float64, error) {
	gp, err := fitGP(us, ys)
	if err != nil {
		return nil, err
	}
	incumbent := math.Inf(-1)
	for _, y := range ys {
		incumbent = math.Max(incumbent, gp.normalise(y))
	}
	xi := b.params.Xi / gp.scale

	score := func(u []float64) float64 {
		mu, sigma := gp.predict(u)
		return logProbabilityOfImprovement((mu - incumbent - xi) / sigma)
	}

	dim := len(us[0])
	type candidate struct {
		u     []float64
		logPI float64
	}
	top := make([]candidate, 0, 6)
	for i := 0; i < b.params.Candidates; i++ {
		u := randomPoint(rng, dim)
		top = append(top, candidate{u, score(u)})
		for j := len(top) - 1; j > 0 && top[j].logPI > top[j-1].logPI; j-- {
			top[j], top[j-1] = top[j-1], top[j]
		}
		if len(top) > 5 {
			top = top[:5]
		}
	}

	best := top[0]
	for _, c := range top {
		// the evaluation limit is the usual way out; only a missing result matters
		res, _ := optimize.Minimize(optimize.Problem{
			Func: func(u []float64) float64 {
				return -score(clampAll(u)) + boxPenalty(u)
			},
		}, c.u, &optimize.Settings{FuncEvaluations: 200}, &optimize.NelderMead{SimplexSize: 0.05})
		if res == nil {
			continue
		}
		u := clampAll(res.X)
		if v := score(u); v > best.logPI {
			best = candidate{u, v}
		}
	}
	if tooClose(best.u, us) {
		return nil, fmt.Errorf("acquisition maximum %v duplicates an observation", best.u)
	}
	return best.u, nil
}

// ProbabilityOfImprovement is the acquisition value of a standardised improvement z.
func ProbabilityOfImprovement(z float64) float64 {
	return distuv.UnitNormal.CDF(z)
}

// logProbabilityOfImprovement is log ProbabilityOfImprovement(z). Below z = -30
// the normal CDF underflows and the Mills ratio expansion takes over.
func logProbabilityOfImprovement(z float64) float64 {
	if z > -30 {
		return math.Log(ProbabilityOfImprovement(z))
	}
	r := 1 / (z * z)
	return -z*z/2 - math.Log(-z) - 0.5*math.Log(2*math.Pi) + math.Log1p(-r+3*r*r)
}

// polish runs rounds of Nelder-Mead on the true objective until
// PolishEvaluations are spent. Each round starts from the incumbent.
func (b *Bayesian) polish(ctx context.Context, incumbent func() ([]float64, float64), eval func([]float64) float64) error {
	remaining := b.params.PolishEvaluations
	size := polishSimplexSize
	for remaining > 0 {
		x0, best := incumbent()
		spent := 0
		res, err := optimize.Minimize(optimize.Problem{
			Func: func(u []float64) float64 {
				spent++
				return -eval(clampAll(u)) + boxPenalty(u)
			},
			Status: contextStatus(ctx),
		}, x0, &optimize.Settings{
			FuncEvaluations: min(remaining, polishRoundEvaluations),
			InitValues:      &optimize.Location{F: -best},
		}, &optimize.NelderMead{SimplexSize: size})
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if res == nil {
			return err
		}
		if spent == 0 {
			return nil
		}
		remaining -= spent
		size /= 2
	}
	return nil
}

func randomPoint(rng *rand.Rand, dim int) []float64 {
	u := make([]float64, dim)
	for i := range u {
		u[i] = rng.Float64()
	}
	return u
}

func clampAll(u []float64) []float64 {
	out := make([]float64, len(u))
	for i, v := range u {
		out[i] = clamp01(v)
	}
	return out
}

// boxPenalty grows quadratically outside the unit cube so simplex vertices drift back in.
func boxPenalty(u []float64) float64 {
	p := 0.0
	for _, v := range u {
		if v < 0 {
			p += v * v
		} else if v > 1 {
			p += (v - 1) * (v - 1)
		}
	}
	return 1e3 * p
}

func tooClose(u []float64, us [][]float64) bool {
	for _, o := range us {
		d := 0.0
		for i := range u {
			d += (u[i] - o[i]) * (u[i] - o[i])
		}
		if d < 1e-16 {
			return true
		}
	}
	return false
}

func contextStatus(ctx context.Context) func() (optimize.Status, error) {
	return func() (optimize.Status, error) {
		if err := ctx.Err(); err != nil {
			return optimize.Failure, err
		}
		return optimize.NotTerminated, nil
	}
}
