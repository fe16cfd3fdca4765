package sim

import "battery-estimator/internal/model"

// Dynamics is the part of a battery model a state estimator needs.
type Dynamics interface {
	StateNames() []string
	NextState(x model.State, u model.Input, dt float64) model.State
	Output(x model.State) model.Output
}

// Simulator is a configurable battery model that can run a discharge to its
// end-of-discharge threshold.
//
// A Simulator is not safe for concurrent use. Give every goroutine its own Clone.
type Simulator interface {
	Dynamics

	ParameterNames() []string
	Parameter(name string) (float64, bool)
	SetParameter(name string, v float64) error

	InitialState() model.State
	SetInitialState(x model.State) error
	SetInitialStateField(name string, v float64) error

	SimulateToThreshold(load Load, opts Options) (model.SimulatedSeries, error)

	// Seed reseeds the generator behind process and measurement noise.
	Seed(seed int64)

	Clone() Simulator
}

// Load returns the input applied at time t.
type Load func(t float64) model.Input

// ConstantLoad draws current i for the whole run.
func ConstantLoad(i float64) Load {
	return func(float64) model.Input { return model.Input{I: i} }
}

// Options controls SimulateToThreshold.
type Options struct {
	// Dt is the integration step in seconds.
	Dt float64 `json:"dt" yaml:"dt"`

	// Horizon stops the run after this many seconds even if the threshold was not reached.
	// Zero means DefaultHorizon.
	Horizon float64 `json:"horizon" yaml:"horizon"`

	// RecordStates keeps a copy of every intermediate state in the returned series.
	RecordStates bool `json:"record_states" yaml:"record_states"`
}

const (
	DefaultDt      = 2.0
	DefaultHorizon = 24 * 3600.0
)

func (o Options) withDefaults() Options {
	if o.Dt == 0 {
		o.Dt = DefaultDt
	}
	if o.Horizon == 0 {
		o.Horizon = DefaultHorizon
	}
	return o
}
