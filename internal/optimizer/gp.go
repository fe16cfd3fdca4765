package optimizer

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// lengthScales is the grid searched for the Matérn kernel length-scale in unit-cube coordinates.
var lengthScales = []float64{0.05, 0.1, 0.2, 0.3, 0.5, 0.8, 1.2, 2.0}

var errSingularKernel = errors.New("kernel matrix is singular")

// gaussianProcess is a zero-mean GP over normalised targets with an isotropic Matérn 5/2 kernel.
type gaussianProcess struct {
	xs          [][]float64
	mean, scale float64
	length      float64
	noise       float64

	chol  mat.Cholesky
	alpha *mat.VecDense
}

func matern52(a, b []float64, length float64) float64 {
	d := 0.0
	for i := range a {
		diff := a[i] - b[i]
		d += diff * diff
	}
	r := math.Sqrt(5*d) / length
	return (1 + r + r*r/3) * math.Exp(-r)
}

// fitGP picks the length-scale with the highest log marginal likelihood.
func fitGP(xs [][]float64, ys []float64) (*gaussianProcess, error) {
	mean, std := stat.MeanStdDev(ys, nil)
	if !(std > 0) || math.IsNaN(std) {
		std = 1
	}
	norm := make([]float64, len(ys))
	for i, y := range ys {
		norm[i] = (y - mean) / std
	}
	target := mat.NewVecDense(len(norm), norm)

	var best *gaussianProcess
	bestLL := math.Inf(-1)
	for _, noise := range []float64{1e-6, 1e-4, 1e-2} {
		for _, length := range lengthScales {
			gp := &gaussianProcess{xs: xs, mean: mean, scale: std, length: length, noise: noise}
			ll, ok := gp.factorize(target)
			if ok && ll > bestLL {
				best, bestLL = gp, ll
			}
		}
		if best != nil {
			return best, nil
		}
	}
	return nil, errSingularKernel
}

// factorize builds K, solves for alpha and returns the log marginal likelihood.
func (gp *gaussianProcess) factorize(y *mat.VecDense) (float64, bool) {
	n := len(gp.xs)
	k := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := matern52(gp.xs[i], gp.xs[j], gp.length)
			if i == j {
				v += gp.noise
			}
			k.SetSym(i, j, v)
		}
	}
	if ok := gp.chol.Factorize(k); !ok {
		return 0, false
	}
	gp.alpha = mat.NewVecDense(n, nil)
	if err := gp.chol.SolveVecTo(gp.alpha, y); err != nil {
		return 0, false
	}
	ll := -0.5*mat.Dot(y, gp.alpha) - 0.5*gp.chol.LogDet() - 0.5*float64(n)*math.Log(2*math.Pi)
	if math.IsNaN(ll) || math.IsInf(ll, 0) {
		return 0, false
	}
	return ll, true
}

// predict returns the posterior mean and standard deviation at u in normalised target units.
func (gp *gaussianProcess) predict(u []float64) (mu, sigma float64) {
	n := len(gp.xs)
	ks := mat.NewVecDense(n, nil)
	for i, x := range gp.xs {
		ks.SetVec(i, matern52(u, x, gp.length))
	}
	mu = mat.Dot(ks, gp.alpha)

	v := mat.NewVecDense(n, nil)
	if err := gp.chol.SolveVecTo(v, ks); err != nil {
		return mu, 0
	}
	variance := 1 - mat.Dot(ks, v)
	if variance < 1e-12 {
		variance = 1e-12
	}
	return mu, math.Sqrt(variance)
}

// normalise maps a raw target value onto the GP's scale.
func (gp *gaussianProcess) normalise(y float64) float64 {
	return (y - gp.mean) / gp.scale
}
