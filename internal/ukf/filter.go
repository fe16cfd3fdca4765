// Package ukf implements an unscented Kalman filter over a sim.Dynamics model.
package ukf

import (
	"errors"
	"fmt"
	"math"

	"battery-estimator/internal/model"
	"battery-estimator/internal/sim"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrNotPositiveDefinite is returned when a covariance cannot be factorized.
	ErrNotPositiveDefinite = errors.New("covariance is not positive definite")

	// ErrNonFinite is returned when the posterior contains NaN or Inf.
	ErrNonFinite = errors.New("non-finite filter state")

	// ErrTimeReversed is returned when an estimate is older than the filter time.
	ErrTimeReversed = errors.New("measurement time precedes filter time")
)

// Options tunes the sigma point spread and the noise model.
// Noise terms are variances, applied to every state and to both outputs.
type Options struct {
	Alpha float64 `json:"alpha" yaml:"alpha"`
	Beta  float64 `json:"beta" yaml:"beta"`
	Kappa float64 `json:"kappa" yaml:"kappa"`

	ProcessNoise       float64 `json:"process_noise" yaml:"process_noise"`
	MeasurementNoise   float64 `json:"measurement_noise" yaml:"measurement_noise"`
	InitialUncertainty float64 `json:"initial_uncertainty" yaml:"initial_uncertainty"`
}

// DefaultOptions returns alpha=1, beta=0, kappa=0 with small noise terms.
func DefaultOptions() Options {
	return Options{
		Alpha:              1,
		Beta:               0,
		Kappa:              0,
		ProcessNoise:       1e-3,
		MeasurementNoise:   2e-2,
		InitialUncertainty: 1e-3,
	}
}

// Filter tracks the mean and covariance of a model's state.
type Filter struct {
	dyn   sim.Dynamics
	names []string
	opts  Options

	t float64
	x *mat.VecDense
	p *mat.SymDense

	wm, wc []float64
	lambda float64
}

// New starts a filter at x0 and time t0 with a diagonal initial covariance.
func New(dyn sim.Dynamics, x0 model.State, t0 float64, opts Options) (*Filter, error) {
	names := dyn.StateNames()
	n := len(names)
	if n == 0 {
		return nil, errors.New("model has no states")
	}
	if opts.Alpha == 0 {
		opts.Alpha = 1
	}

	x := mat.NewVecDense(n, nil)
	for i, name := range names {
		v, ok := x0[name]
		if !ok {
			return nil, fmt.Errorf("initial state missing %q", name)
		}
		x.SetVec(i, v)
	}
	p := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		p.SetSym(i, i, opts.InitialUncertainty)
	}

	f := &Filter{dyn: dyn, names: names, opts: opts, t: t0, x: x, p: p}
	f.weights()
	return f, nil
}

func (f *Filter) weights() {
	n := float64(len(f.names))
	a := f.opts.Alpha
	f.lambda = a*a*(n+f.opts.Kappa) - n

	count := 2*len(f.names) + 1
	f.wm = make([]float64, count)
	f.wc = make([]float64, count)
	f.wm[0] = f.lambda / (n + f.lambda)
	f.wc[0] = f.wm[0] + (1 - a*a + f.opts.Beta)
	for i := 1; i < count; i++ {
		f.wm[i] = 1 / (2 * (n + f.lambda))
		f.wc[i] = f.wm[i]
	}
}

// Time is the time of the latest estimate.
func (f *Filter) Time() float64 { return f.t }

// Mean returns the current state estimate.
func (f *Filter) Mean() model.State {
	out := make(model.State, len(f.names))
	for i, name := range f.names {
		out[name] = f.x.AtVec(i)
	}
	return out
}

// Covariance returns a copy of the current state covariance.
func (f *Filter) Covariance() *mat.SymDense {
	out := mat.NewSymDense(len(f.names), nil)
	out.CopySym(f.p)
	return out
}

// Estimate advances the filter to t under input u and folds in measurement z.
// The prediction step is skipped when t equals the filter time.
func (f *Filter) Estimate(t float64, u model.Input, z model.Output) error {
	dt := t - f.t
	if dt < 0 {
		return fmt.Errorf("%w: %g < %g", ErrTimeReversed, t, f.t)
	}
	if dt > 0 {
		if err := f.predict(u, dt); err != nil {
			return fmt.Errorf("predict: %w", err)
		}
	}
	if err := f.update(z); err != nil {
		return fmt.Errorf("update: %w", err)
	}
	f.t = t
	for i := 0; i < f.x.Len(); i++ {
		if v := f.x.AtVec(i); math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s", ErrNonFinite, f.names[i])
		}
	}
	return nil
}

// sigmaPoints returns the 2n+1 columns x, x±sqrt((n+λ)P).
func (f *Filter) sigmaPoints() (*mat.Dense, error) {
	n := len(f.names)
	scaled := mat.NewSymDense(n, nil)
	scaled.ScaleSym(float64(n)+f.lambda, f.p)

	var chol mat.Cholesky
	if ok := chol.Factorize(scaled); !ok {
		return nil, ErrNotPositiveDefinite
	}
	var l mat.TriDense
	chol.LTo(&l)

	pts := mat.NewDense(n, 2*n+1, nil)
	for r := 0; r < n; r++ {
		xr := f.x.AtVec(r)
		pts.Set(r, 0, xr)
		for c := 0; c < n; c++ {
			pts.Set(r, 1+c, xr+l.At(r, c))
			pts.Set(r, 1+n+c, xr-l.At(r, c))
		}
	}
	return pts, nil
}

func (f *Filter) column(pts *mat.Dense, c int) model.State {
	s := make(model.State, len(f.names))
	for r, name := range f.names {
		s[name] = pts.At(r, c)
	}
	return s
}

func (f *Filter) predict(u model.Input, dt float64) error {
	pts, err := f.sigmaPoints()
	if err != nil {
		return err
	}
	n, count := pts.Dims()
	next := mat.NewDense(n, count, nil)
	for c := 0; c < count; c++ {
		x := f.dyn.NextState(f.column(pts, c), u, dt)
		for r, name := range f.names {
			next.Set(r, c, x[name])
		}
	}

	mean := f.weightedMean(next)
	cov := f.weightedCovariance(next, mean, next, mean)
	for i := 0; i < n; i++ {
		cov.Set(i, i, cov.At(i, i)+f.opts.ProcessNoise)
	}
	f.x = mean
	f.p = symmetrize(cov)
	return nil
}

func (f *Filter) update(z model.Output) error {
	pts, err := f.sigmaPoints()
	if err != nil {
		return err
	}
	n, count := pts.Dims()
	zs := mat.NewDense(2, count, nil)
	for c := 0; c < count; c++ {
		out := f.dyn.Output(f.column(pts, c))
		zs.Set(0, c, out.T)
		zs.Set(1, c, out.V)
	}
	zMean := f.weightedMean(zs)
	xMean := f.weightedMean(pts)

	s := f.weightedCovariance(zs, zMean, zs, zMean)
	for i := 0; i < 2; i++ {
		s.Set(i, i, s.At(i, i)+f.opts.MeasurementNoise)
	}
	pxz := f.weightedCovariance(pts, xMean, zs, zMean)

	var sInv mat.Dense
	if err := sInv.Inverse(s); err != nil {
		return fmt.Errorf("innovation covariance: %w", err)
	}
	gain := mat.NewDense(n, 2, nil)
	gain.Mul(pxz, &sInv)

	innovation := mat.NewVecDense(2, []float64{z.T - zMean.AtVec(0), z.V - zMean.AtVec(1)})
	var correction mat.VecDense
	correction.MulVec(gain, innovation)
	f.x.AddVec(xMean, &correction)

	var ks, ksk mat.Dense
	ks.Mul(gain, s)
	ksk.Mul(&ks, gain.T())
	var post mat.Dense
	post.Sub(f.p, &ksk)
	f.p = symmetrize(&post)
	return nil
}

func (f *Filter) weightedMean(pts *mat.Dense) *mat.VecDense {
	rows, cols := pts.Dims()
	out := mat.NewVecDense(rows, nil)
	for r := 0; r < rows; r++ {
		sum := 0.0
		for c := 0; c < cols; c++ {
			sum += f.wm[c] * pts.At(r, c)
		}
		out.SetVec(r, sum)
	}
	return out
}

// weightedCovariance returns Σ wc (a - am)(b - bm)^T over sigma point columns.
func (f *Filter) weightedCovariance(a *mat.Dense, am *mat.VecDense, b *mat.Dense, bm *mat.VecDense) *mat.Dense {
	ra, cols := a.Dims()
	rb, _ := b.Dims()
	out := mat.NewDense(ra, rb, nil)
	for c := 0; c < cols; c++ {
		w := f.wc[c]
		for i := 0; i < ra; i++ {
			di := a.At(i, c) - am.AtVec(i)
			for j := 0; j < rb; j++ {
				out.Set(i, j, out.At(i, j)+w*di*(b.At(j, c)-bm.AtVec(j)))
			}
		}
	}
	return out
}

func symmetrize(m mat.Matrix) *mat.SymDense {
	n, _ := m.Dims()
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			out.SetSym(i, j, (m.At(i, j)+m.At(j, i))/2)
		}
	}
	return out
}
