package sim

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"battery-estimator/internal/model"
)

var (
	// ErrDiverged is returned when integration produced a non-finite state or output.
	ErrDiverged = errors.New("simulation diverged")

	// ErrInvalidOptions is returned for a non-positive step or horizon.
	ErrInvalidOptions = errors.New("invalid simulation options")
)

// State vector layout.
const (
	idxTb = iota
	idxVo
	idxVsn
	idxVsp
	idxQnB
	idxQnS
	idxQpB
	idxQpS
	idxQMax
	idxRo
	idxD
	numStates
)

var stateNames = [numStates]string{"tb", "Vo", "Vsn", "Vsp", "qnB", "qnS", "qpB", "qpS", "qMax", "Ro", "D"}

// knee sharpens the negative electrode potential as its surface empties.
const knee = 0.005

type vec [numStates]float64

// Model is a lumped two-electrode lithium-ion discharge model.
//
// Each electrode holds charge in a bulk and a surface pool coupled by diffusion.
// Terminal voltage is the open-circuit difference of the surface potentials less
// the ohmic and surface overpotentials. Temperature follows Joule heating against
// Newtonian cooling to the ambient parameter. qMax, Ro and D drift with the
// absolute current (wq, wr, wd).
type Model struct {
	params map[string]float64
	x0     vec
	rng    *rand.Rand
}

var _ Simulator = (*Model)(nil)

// New returns a model with DefaultParameters and the matching fully charged initial state.
func New() *Model {
	m := &Model{
		params: DefaultParameters(),
		rng:    rand.New(rand.NewSource(1)),
	}
	m.x0 = m.chargedState()
	return m
}

// NewWithParameters is New with overrides applied before the initial state is derived.
func NewWithParameters(overrides map[string]float64) (*Model, error) {
	m := New()
	for _, name := range sortedKeys(overrides) {
		if err := m.SetParameter(name, overrides[name]); err != nil {
			return nil, err
		}
	}
	m.x0 = m.chargedState()
	return m, nil
}

// chargedState is the fully charged state of a cell whose capacity is qMaxThreshold/0.7.
func (m *Model) chargedState() vec {
	p := m.params
	qRef := p[ParamQMaxThreshold] / 0.7
	f := p[ParamVolSFraction]
	var x vec
	x[idxTb] = p[ParamAmbient]
	x[idxQnB] = qRef * p[ParamXnMax] * (1 - f)
	x[idxQnS] = qRef * p[ParamXnMax] * f
	x[idxQpB] = qRef * p[ParamXpMin] * (1 - f)
	x[idxQpS] = qRef * p[ParamXpMin] * f
	x[idxQMax] = p[ParamQMax]
	x[idxRo] = p[ParamRo]
	return x
}

func (m *Model) Seed(seed int64) {
	m.rng = rand.New(rand.NewSource(seed))
}

func (m *Model) ParameterNames() []string { return sortedKeys(m.params) }

func (m *Model) Parameter(name string) (float64, bool) {
	v, ok := m.params[name]
	return v, ok
}

func (m *Model) SetParameter(name string, v float64) error {
	if _, ok := m.params[name]; !ok {
		return &UnknownParameterError{Name: name}
	}
	m.params[name] = v
	return nil
}

func (m *Model) StateNames() []string {
	out := make([]string, numStates)
	copy(out, stateNames[:])
	return out
}

func (m *Model) InitialState() model.State { return toState(m.x0) }

// SetInitialState replaces the initial state. Every state name must be present.
func (m *Model) SetInitialState(x model.State) error {
	var next vec
	for i, name := range stateNames {
		v, ok := x[name]
		if !ok {
			return fmt.Errorf("initial state missing %q", name)
		}
		next[i] = v
	}
	m.x0 = next
	return nil
}

func (m *Model) SetInitialStateField(name string, v float64) error {
	for i, n := range stateNames {
		if n == name {
			m.x0[i] = v
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", name)
}

// Clone returns a deep copy with its own noise generator.
func (m *Model) Clone() Simulator {
	params := make(map[string]float64, len(m.params))
	for k, v := range m.params {
		params[k] = v
	}
	return &Model{
		params: params,
		x0:     m.x0,
		rng:    rand.New(rand.NewSource(m.rng.Int63())),
	}
}

// NextState advances x by one forward-Euler step of length dt. Noise is never applied.
func (m *Model) NextState(x model.State, u model.Input, dt float64) model.State {
	p := resolve(m.params)
	next := step(&p, fromState(x), u.I, dt)
	return toState(next)
}

// Output returns temperature (°C) and terminal voltage for x.
func (m *Model) Output(x model.State) model.Output {
	p := resolve(m.params)
	return output(&p, fromState(x))
}

// SimulateToThreshold integrates from the initial state under load until the
// voltage falls below VEOD or the horizon is reached. The initial sample is included.
func (m *Model) SimulateToThreshold(load Load, opts Options) (model.SimulatedSeries, error) {
	opts = opts.withDefaults()
	if !(opts.Dt > 0) || !(opts.Horizon > 0) {
		return model.SimulatedSeries{}, fmt.Errorf("%w: dt=%g horizon=%g", ErrInvalidOptions, opts.Dt, opts.Horizon)
	}
	p := resolve(m.params)

	capacity := int(math.Min(opts.Horizon/opts.Dt, 1<<16)) + 1
	series := model.SimulatedSeries{
		Times:   make([]float64, 0, capacity),
		Outputs: make([]model.Output, 0, capacity),
	}

	x := m.x0
	t := 0.0
	for {
		z := output(&p, x)
		if p.measurementNoise > 0 {
			z.V += m.rng.NormFloat64() * p.measurementNoise
			z.T += m.rng.NormFloat64() * p.measurementNoise
		}
		if !finite(x) || math.IsNaN(z.V) || math.IsInf(z.V, 0) {
			return series, fmt.Errorf("%w at t=%g", ErrDiverged, t)
		}
		series.Times = append(series.Times, t)
		series.Outputs = append(series.Outputs, z)
		if opts.RecordStates {
			series.States = append(series.States, toState(x))
		}
		if z.V < p.veod || t >= opts.Horizon {
			return series, nil
		}

		x = step(&p, x, load(t).I, opts.Dt)
		if p.processNoise > 0 {
			for i := range x {
				x[i] += m.rng.NormFloat64() * p.processNoise
			}
		}
		t += opts.Dt
	}
}

func step(p *params, x vec, i, dt float64) vec {
	d := derivative(p, x, i)
	for k := range x {
		x[k] += d[k] * dt
	}
	return x
}

func derivative(p *params, x vec, i float64) vec {
	var d vec

	cnBulk := x[idxQnB] / p.volB
	cnSurface := x[idxQnS] / p.volS
	cpBulk := x[idxQpB] / p.volB
	cpSurface := x[idxQpS] / p.volS
	diffN := (cnBulk - cnSurface) / p.tDiffusion
	diffP := (cpBulk - cpSurface) / p.tDiffusion

	d[idxQnB] = -diffN
	d[idxQnS] = diffN - i
	d[idxQpB] = -diffP
	d[idxQpS] = diffP + i

	xnS, xpS := surfaceFractions(p, x)
	rtaf := gasConstant * x[idxTb] / (faradayConst * p.alpha)

	jn0 := p.kn * math.Pow((1-xnS)*xnS, p.alpha)
	jp0 := p.kp * math.Pow((1-xpS)*xpS, p.alpha)
	vsnNominal := rtaf * math.Asinh(i/p.sn/(2*jn0))
	vspNominal := rtaf * math.Asinh(i/p.sp/(2*jp0))

	d[idxVo] = (i*x[idxRo] - x[idxVo]) / p.to
	d[idxVsn] = (vsnNominal - x[idxVsn]) / p.tsn
	d[idxVsp] = (vspNominal - x[idxVsp]) / p.tsp

	heat := i * (x[idxVo] + x[idxVsn] + x[idxVsp])
	d[idxTb] = (heat - p.hA*(x[idxTb]-p.ambient)) / p.mC

	abs := math.Abs(i)
	d[idxQMax] = p.wq * abs
	d[idxRo] = p.wr * abs
	d[idxD] = p.wd * abs
	return d
}

func surfaceFractions(p *params, x vec) (xn, xp float64) {
	qSMax := x[idxQMax] * p.volS / p.vol
	return x[idxQnS] / qSMax, x[idxQpS] / qSMax
}

func output(p *params, x vec) model.Output {
	xnS, xpS := surfaceFractions(p, x)
	rtf := gasConstant * x[idxTb] / faradayConst

	un := p.u0n + rtf*math.Log((1-xnS)/xnS) + knee/xnS
	up := p.u0p - p.kpSlope*(xpS-p.xpMin) + rtf*math.Log((1-xpS)/xpS)

	v := up - un - x[idxVo] - x[idxVsn] - x[idxVsp]
	return model.Output{T: x[idxTb] - kelvinOffset, V: v}
}

func finite(x vec) bool {
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func toState(x vec) model.State {
	s := make(model.State, numStates)
	for i, name := range stateNames {
		s[name] = x[i]
	}
	return s
}

// fromState reads x in stateNames order; absent names read as zero.
func fromState(s model.State) vec {
	var x vec
	for i, name := range stateNames {
		x[i] = s[name]
	}
	return x
}
