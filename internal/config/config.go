package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"battery-estimator/internal/data"
	"battery-estimator/internal/estimate"
	"battery-estimator/internal/model"
	"battery-estimator/internal/optimizer"
	"battery-estimator/internal/sim"
	"battery-estimator/internal/ukf"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config is the on-disk configuration shape (YAML).
type Config struct {
	LogLevel   string           `yaml:"log_level"`
	Estimation EstimationConfig `yaml:"estimation"`
	Optimizer  OptimizerConfig  `yaml:"optimizer"`
	Simulation SimulationConfig `yaml:"simulation"`
	Reference  ReferenceConfig  `yaml:"reference"`
	Filter     FilterConfig     `yaml:"filter"`
	Output     OutputConfig     `yaml:"output"`
}

type EstimationConfig struct {
	// Keys are the estimated parameters in optimizer order.
	Keys []string `yaml:"keys"`

	// Bounds maps a key to [lower, upper]. Keys left out are unbounded.
	Bounds map[string][]float64 `yaml:"bounds"`

	Iterations int     `yaml:"iterations"`
	SOCSamples int     `yaml:"soc_samples"`
	Sentinel   float64 `yaml:"sentinel"`
	VoltageMin float64 `yaml:"voltage_min"`
	VoltageMax float64 `yaml:"voltage_max"`
}

type OptimizerConfig struct {
	Name              string  `yaml:"name"`
	Seed              int64   `yaml:"seed"`
	InitPoints        int     `yaml:"init_points"`
	Xi                float64 `yaml:"xi"`
	Candidates        int     `yaml:"candidates"`
	PolishEvaluations int     `yaml:"polish_evaluations"`
	Restarts          int     `yaml:"restarts"`
	SimplexSize       float64 `yaml:"simplex_size"`
}

type SimulationConfig struct {
	// Optional: load model parameters from a separate YAML file.
	// Entries in Parameters override the file.
	ParametersFile string             `yaml:"parameters_file"`
	Parameters     map[string]float64 `yaml:"parameters"`

	Current    float64 `yaml:"current"`
	Dt         float64 `yaml:"dt"`
	Horizon    float64 `yaml:"horizon"`
	VEOD       float64 `yaml:"veod"`
	TempOffset float64 `yaml:"temp_offset"`
}

type ReferenceConfig struct {
	// File is a JSON or CSV trace used to calibrate the initial state.
	File string `yaml:"file"`

	// Samples is how many leading reference samples the filter consumes.
	Samples int `yaml:"samples"`
}

type FilterConfig struct {
	Alpha              float64 `yaml:"alpha"`
	Beta               float64 `yaml:"beta"`
	Kappa              float64 `yaml:"kappa"`
	ProcessNoise       float64 `yaml:"process_noise"`
	MeasurementNoise   float64 `yaml:"measurement_noise"`
	InitialUncertainty float64 `yaml:"initial_uncertainty"`
}

type OutputConfig struct {
	Dir string `yaml:"dir"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func Load(path string) (*Config, error) {
	c, err := LoadUnchecked(path)
	if err != nil {
		return nil, err
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadUnchecked loads and merges config, but does not validate it.
func LoadUnchecked(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if c.Simulation.ParametersFile != "" {
		loaded, err := loadParametersFile(resolvePath(path, c.Simulation.ParametersFile))
		if err != nil {
			return nil, err
		}
		c.Simulation.Parameters = MergeParameters(loaded, c.Simulation.Parameters)
	}
	if c.Reference.File != "" {
		c.Reference.File = resolvePath(path, c.Reference.File)
	}
	return &c, nil
}

// resolvePath interprets rel relative to the config file directory when that
// file exists, and relative to the working directory otherwise.
func resolvePath(configPath, rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	cand := filepath.Join(filepath.Dir(configPath), rel)
	if _, err := os.Stat(cand); err == nil {
		return cand
	}
	return rel
}

func (c *Config) applyDefaults() {
	d := estimate.DefaultSettings()
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	e := &c.Estimation
	if len(e.Keys) == 0 {
		e.Keys = []string{"qMax", "Ro", "wr"}
	}
	if e.Iterations == 0 {
		e.Iterations = d.Iterations
	}
	if e.SOCSamples == 0 {
		e.SOCSamples = d.SOCSamples
	}
	if e.Sentinel == 0 {
		e.Sentinel = d.Sentinel
	}
	if e.VoltageMin == 0 && e.VoltageMax == 0 {
		e.VoltageMin, e.VoltageMax = d.VoltageMin, d.VoltageMax
	}
	if c.Optimizer.Name == "" {
		c.Optimizer.Name = optimizer.NameBayesian
	}
	s := &c.Simulation
	if s.Current == 0 {
		s.Current = d.Current
	}
	if s.Dt == 0 {
		s.Dt = d.Dt
	}
	if s.VEOD == 0 {
		s.VEOD = d.VEOD
	}
	if s.TempOffset == 0 {
		s.TempOffset = d.TempOffset
	}
	if c.Reference.Samples == 0 {
		c.Reference.Samples = 1
	}
	if c.Filter == (FilterConfig{}) {
		o := ukf.DefaultOptions()
		c.Filter = FilterConfig{
			Alpha:              o.Alpha,
			Beta:               o.Beta,
			Kappa:              o.Kappa,
			ProcessNoise:       o.ProcessNoise,
			MeasurementNoise:   o.MeasurementNoise,
			InitialUncertainty: o.InitialUncertainty,
		}
	}
	if c.Output.Dir == "" {
		c.Output.Dir = "results"
	}
}

func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}

	m, err := c.NewSimulator()
	if err != nil {
		return fmt.Errorf("simulation.parameters: %w", err)
	}
	names := m.ParameterNames()
	keys, err := estimate.ValidateKeys(c.Estimation.Keys, names)
	if err != nil {
		return fmt.Errorf("estimation.keys: %w", err)
	}
	if spec := c.BoundsSpec(); spec != nil {
		if _, _, err := estimate.ResolveBounds(spec, keys, names); err != nil {
			return fmt.Errorf("estimation.bounds: %w", err)
		}
	}

	e := c.Estimation
	if e.Iterations <= 0 {
		return errors.New("estimation.iterations must be > 0")
	}
	if e.SOCSamples < 2 {
		return errors.New("estimation.soc_samples must be >= 2")
	}
	if e.VoltageMin >= e.VoltageMax {
		return fmt.Errorf("estimation voltage window (%g, %g) is empty", e.VoltageMin, e.VoltageMax)
	}
	if c.Simulation.Dt <= 0 {
		return errors.New("simulation.dt must be > 0")
	}
	if c.Simulation.Horizon < 0 {
		return errors.New("simulation.horizon must be >= 0")
	}
	if _, err := optimizer.New(c.Optimizer.Name, c.OptimizerParams()); err != nil {
		return fmt.Errorf("optimizer.name: %w", err)
	}
	if c.Filter.Alpha <= 0 {
		return errors.New("filter.alpha must be > 0")
	}
	return nil
}

// Settings returns the evaluation settings described by c.
func (c *Config) Settings() estimate.Settings {
	return estimate.Settings{
		Current:    c.Simulation.Current,
		TempOffset: c.Simulation.TempOffset,
		VEOD:       c.Simulation.VEOD,
		VoltageMin: c.Estimation.VoltageMin,
		VoltageMax: c.Estimation.VoltageMax,
		SOCSamples: c.Estimation.SOCSamples,
		Sentinel:   c.Estimation.Sentinel,
		Dt:         c.Simulation.Dt,
		Horizon:    c.Simulation.Horizon,
		Iterations: c.Estimation.Iterations,
	}
}

func (c *Config) OptimizerParams() optimizer.Params {
	o := c.Optimizer
	return optimizer.Params{
		Seed:              o.Seed,
		InitPoints:        o.InitPoints,
		Xi:                o.Xi,
		Candidates:        o.Candidates,
		PolishEvaluations: o.PolishEvaluations,
		Restarts:          o.Restarts,
		SimplexSize:       o.SimplexSize,
	}
}

// NewOptimizer builds the configured optimizer.
func (c *Config) NewOptimizer() (optimizer.Optimizer, error) {
	return optimizer.New(c.Optimizer.Name, c.OptimizerParams())
}

// NewSimulator builds a model with the configured parameter overrides.
func (c *Config) NewSimulator() (*sim.Model, error) {
	return sim.NewWithParameters(c.Simulation.Parameters)
}

// StateEstimator returns the configured UKF estimator.
func (c *Config) StateEstimator() ukf.Estimator {
	f := c.Filter
	return ukf.Estimator{
		Options: ukf.Options{
			Alpha:              f.Alpha,
			Beta:               f.Beta,
			Kappa:              f.Kappa,
			ProcessNoise:       f.ProcessNoise,
			MeasurementNoise:   f.MeasurementNoise,
			InitialUncertainty: f.InitialUncertainty,
		},
		Samples: c.Reference.Samples,
	}
}

// ReferenceRun loads the reference trace at the configured current.
// It returns an empty run when no reference file is configured.
func (c *Config) ReferenceRun() (model.Run, error) {
	if c.Reference.File == "" {
		return model.Run{}, nil
	}
	tr, err := data.LoadTrace(c.Reference.File)
	if err != nil {
		return model.Run{}, fmt.Errorf("reference: %w", err)
	}
	return tr.WithCurrent(c.Simulation.Current).Run(), nil
}

// BoundsSpec returns the bounds in the form estimate.ResolveBounds accepts,
// or nil when none are configured.
func (c *Config) BoundsSpec() any {
	if len(c.Estimation.Bounds) == 0 {
		return nil
	}
	return c.Estimation.Bounds
}

type parametersFileWrapper struct {
	Parameters map[string]float64 `yaml:"parameters"`
}

func loadParametersFile(path string) (map[string]float64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var w parametersFileWrapper
	if err := yaml.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return w.Parameters, nil
}

// MergeParameters overlays override onto base.
func MergeParameters(base, override map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}
