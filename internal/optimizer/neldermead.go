package optimizer

import (
	"context"
	"math/rand"

	"battery-estimator/internal/model"

	"gonum.org/v1/gonum/optimize"
)

// Defaults for NelderMeadParams.
const (
	DefaultRestarts    = 3
	DefaultSimplexSize = 0.25
)

// NelderMeadParams configures NelderMead.
type NelderMeadParams struct {
	Seed int64

	// Restarts splits the budget across this many searches. The first starts at
	// the centre of the box, later ones at random points.
	Restarts int

	// SimplexSize is the initial simplex edge in unit-cube coordinates.
	SimplexSize float64
}

// NelderMead maximizes with gonum's simplex search. The iteration budget counts
// objective evaluations.
type NelderMead struct {
	params NelderMeadParams
	recorder
}

func NewNelderMead(p NelderMeadParams) *NelderMead {
	if p.Restarts <= 0 {
		p.Restarts = DefaultRestarts
	}
	if p.SimplexSize <= 0 {
		p.SimplexSize = DefaultSimplexSize
	}
	return &NelderMead{params: p, recorder: recorder{best: -1}}
}

func (n *NelderMead) Name() string { return NameNelderMead }

func (n *NelderMead) Maximize(ctx context.Context, objective Objective, bounds []model.Bound, iterations int) error {
	bx, err := newBox(bounds)
	if err != nil {
		return err
	}
	n.reset()
	rng := rand.New(rand.NewSource(n.params.Seed))

	restarts := n.params.Restarts
	if iterations < restarts*(len(bx)+2) {
		restarts = 1
	}
	for r := 0; r < restarts; r++ {
		budget := (iterations - n.len()) / (restarts - r)
		if budget <= 0 {
			break
		}
		start := make([]float64, len(bx))
		for i := range start {
			start[i] = 0.5
		}
		if r > 0 {
			start = randomPoint(rng, len(bx))
		}

		res, err := optimize.Minimize(optimize.Problem{
			Func: func(u []float64) float64 {
				x := bx.point(u)
				v := objective(x)
				n.record(x, v)
				return -v + boxPenalty(u)
			},
			Status: contextStatus(ctx),
		}, start, &optimize.Settings{FuncEvaluations: budget}, &optimize.NelderMead{SimplexSize: n.params.SimplexSize})
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if res == nil {
			return err
		}
	}
	return nil
}
