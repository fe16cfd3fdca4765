package estimate

import (
	"errors"
	"fmt"
	"math"

	"battery-estimator/internal/analysis"
	"battery-estimator/internal/model"
	"battery-estimator/internal/sim"

	"github.com/sirupsen/logrus"
)

// chargePoolRatio relates qMaxThreshold to the capacity the default charge pools were sized for.
const chargePoolRatio = 0.7

var chargePools = []string{"qnS", "qnB", "qpS", "qpB"}

// ObjectiveParams configures NewObjective.
type ObjectiveParams struct {
	Simulator      Simulator
	StateEstimator StateEstimator

	// InitialState is restored before every evaluation. nil takes the simulator's current initial state.
	InitialState model.State

	// Run is the observed discharge under test.
	Run model.Run

	// Reference calibrates the initial state. Its inputs are replaced by Settings.Current.
	Reference model.Run

	Condition model.WorkingCondition
	Settings  Settings
	Log       logrus.FieldLogger
}

// Evaluation is the outcome of one successful objective evaluation.
type Evaluation struct {
	Candidate model.Candidate
	Score     float64
	Simulated model.SimulatedSeries
	Alignment *analysis.Alignment
}

// Objective scores candidates against one observed run.
//
// An Objective owns its simulator; it is not safe for concurrent use.
// Use Clone to give each worker its own.
type Objective struct {
	sim       Simulator
	estimator StateEstimator
	x0        model.State
	run       model.Run
	observed  []float64
	reference model.Run
	condition model.WorkingCondition
	settings  Settings
	log       logrus.FieldLogger
}

func NewObjective(p ObjectiveParams) (*Objective, error) {
	if p.Simulator == nil {
		return nil, fmt.Errorf("simulator is nil")
	}
	if err := validateRun(p.Run); err != nil {
		return nil, fmt.Errorf("observed run: %w", err)
	}
	x0 := p.InitialState
	if x0 == nil {
		x0 = p.Simulator.InitialState()
	}
	settings := p.Settings.WithDefaults()

	ref := p.Reference
	if ref.Len() > 0 {
		inputs := make([]model.Input, len(ref.Inputs))
		for i := range inputs {
			inputs[i] = model.Input{I: settings.Current}
		}
		ref.Inputs = inputs
	}
	log := p.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Objective{
		sim:       p.Simulator,
		estimator: p.StateEstimator,
		x0:        x0.Clone(),
		run:       p.Run,
		observed:  p.Run.Voltages(),
		reference: ref,
		condition: p.Condition,
		settings:  settings,
		log:       log,
	}, nil
}

// Clone returns an Objective with its own simulator instance.
func (o *Objective) Clone() *Objective {
	c := *o
	c.sim = o.sim.Clone()
	c.x0 = o.x0.Clone()
	return &c
}

// Observed returns the observed voltage curve.
func (o *Objective) Observed() []float64 { return o.observed }

// Evaluate simulates c and scores it. Failures are returned as *EvaluationError.
func (o *Objective) Evaluate(c model.Candidate) (Evaluation, error) {
	return o.evaluate(c, false)
}

// EvaluateWithStates is Evaluate with every simulated state kept in the result.
func (o *Objective) EvaluateWithStates(c model.Candidate) (Evaluation, error) {
	return o.evaluate(c, true)
}

// Score is Evaluate with failures logged and replaced by the sentinel.
func (o *Objective) Score(c model.Candidate) float64 {
	ev, err := o.Evaluate(c)
	if err != nil {
		fields := logrus.Fields{"qMax": c.QMax, "Ro": c.Ro, "wr": c.Wr}
		var evalErr *EvaluationError
		if errors.As(err, &evalErr) {
			fields["stage"] = evalErr.Stage
		}
		o.log.WithFields(fields).WithError(err).Warn("candidate scored as sentinel")
		return o.settings.Sentinel
	}
	return ev.Score
}

// Simulate runs the discharge for c exactly as Evaluate does, without scoring it.
// States are always recorded.
func (o *Objective) Simulate(c model.Candidate) (model.SimulatedSeries, error) {
	return o.SimulateMeasured(c, 0, 0)
}

// SimulateMeasured is Simulate with Gaussian noise of standard deviation sigma
// on both measured outputs, drawn from a generator seeded with seed.
// The noise is switched off again by the next evaluation.
func (o *Objective) SimulateMeasured(c model.Candidate, sigma float64, seed int64) (series model.SimulatedSeries, err error) {
	defer func() {
		if r := recover(); r != nil {
			series = model.SimulatedSeries{}
			err = &EvaluationError{Stage: StagePanic, Candidate: c, Err: fmt.Errorf("%v", r)}
		}
	}()
	if sigma < 0 || math.IsNaN(sigma) {
		return model.SimulatedSeries{}, fmt.Errorf("measurement noise must be >= 0, got %g", sigma)
	}
	return o.simulate(c, true, measurement{sigma: sigma, seed: seed})
}

// measurement is the output noise applied to one simulation.
type measurement struct {
	sigma float64
	seed  int64
}

func (o *Objective) evaluate(c model.Candidate, record bool) (ev Evaluation, err error) {
	defer func() {
		if r := recover(); r != nil {
			ev = Evaluation{}
			err = &EvaluationError{Stage: StagePanic, Candidate: c, Err: fmt.Errorf("%v", r)}
		}
	}()

	series, err := o.simulate(c, record, measurement{})
	if err != nil {
		return Evaluation{}, err
	}
	alignment, err := analysis.Align(series.Voltages(), o.observed, o.condition, o.settings.SOCSamples)
	if err != nil {
		return Evaluation{}, &EvaluationError{Stage: StageMetric, Candidate: c, Err: err}
	}
	score := alignment.Score()
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return Evaluation{}, &EvaluationError{Stage: StageMetric, Candidate: c, Err: analysis.ErrNonFinite}
	}
	return Evaluation{Candidate: c, Score: score, Simulated: series, Alignment: alignment}, nil
}

// simulate configures the simulator for c, calibrates its initial state and
// returns the windowed discharge.
func (o *Objective) simulate(c model.Candidate, record bool, noise measurement) (model.SimulatedSeries, error) {
	fail := func(stage string, err error) (model.SimulatedSeries, error) {
		return model.SimulatedSeries{}, &EvaluationError{Stage: stage, Candidate: c, Err: err}
	}

	if err := o.configure(c); err != nil {
		return fail(StageConfigure, err)
	}

	if o.estimator != nil && o.reference.Len() > 0 {
		x, err := o.estimator.Estimate(o.sim, o.sim.InitialState(), o.reference)
		if err != nil {
			return fail(StageStateEstimation, fmt.Errorf("%w: %w", ErrStateEstimation, err))
		}
		if err := o.sim.SetInitialState(x); err != nil {
			return fail(StageStateEstimation, fmt.Errorf("%w: %w", ErrStateEstimation, err))
		}
	}

	if noise.sigma > 0 {
		if err := o.sim.SetParameter(sim.ParamMeasurementNoise, noise.sigma); err != nil {
			return fail(StageConfigure, err)
		}
		o.sim.Seed(noise.seed)
	}

	series, err := o.sim.SimulateToThreshold(sim.ConstantLoad(o.settings.Current), sim.Options{
		Dt:           o.settings.Dt,
		Horizon:      o.settings.Horizon,
		RecordStates: record,
	})
	if err != nil {
		return fail(StageSimulation, err)
	}
	return series.Window(o.settings.VoltageMin, o.settings.VoltageMax), nil
}

// configure resets the simulator to the request's initial state and applies c.
func (o *Objective) configure(c model.Candidate) error {
	for name, v := range c.Params() {
		if err := o.sim.SetParameter(name, v); err != nil {
			return err
		}
	}

	ambient := o.run.Times[0] + o.settings.TempOffset
	fixed := map[string]float64{
		sim.ParamAmbient:          ambient,
		sim.ParamVEOD:             o.settings.VEOD,
		sim.ParamProcessNoise:     0,
		sim.ParamMeasurementNoise: 0,
	}
	for name, v := range fixed {
		if err := o.sim.SetParameter(name, v); err != nil {
			return err
		}
	}

	threshold, ok := o.sim.Parameter(sim.ParamQMaxThreshold)
	if !ok || threshold == 0 {
		return fmt.Errorf("simulator has no usable %s", sim.ParamQMaxThreshold)
	}
	scale := c.QMax / (threshold / chargePoolRatio)

	if err := o.sim.SetInitialState(o.x0); err != nil {
		return err
	}
	fields := map[string]float64{
		model.KeyQMax: c.QMax,
		model.KeyRo:   c.Ro,
		"tb":          ambient,
	}
	for _, pool := range chargePools {
		fields[pool] = o.x0[pool] * scale
	}
	for name, v := range fields {
		if err := o.sim.SetInitialStateField(name, v); err != nil {
			return err
		}
	}
	return nil
}
