package estimate

import "battery-estimator/internal/analysis"

// Settings holds the fixed numerics of an evaluation.
type Settings struct {
	// Current is the constant discharge current in A, for both the simulation
	// and the reference trace fed to the state estimator.
	Current float64 `json:"current" yaml:"current"`

	// TempOffset is added to the run's first time sample to give the ambient
	// and initial battery temperature in K.
	TempOffset float64 `json:"temp_offset" yaml:"temp_offset"`

	// VEOD is the end-of-discharge voltage.
	VEOD float64 `json:"veod" yaml:"veod"`

	// VoltageMin and VoltageMax bound the simulated samples kept for scoring (exclusive).
	VoltageMin float64 `json:"voltage_min" yaml:"voltage_min"`
	VoltageMax float64 `json:"voltage_max" yaml:"voltage_max"`

	SOCSamples int     `json:"soc_samples" yaml:"soc_samples"`
	Sentinel   float64 `json:"sentinel" yaml:"sentinel"`

	// Dt is the simulation step and Horizon the simulation time limit, both in s.
	Dt      float64 `json:"dt" yaml:"dt"`
	Horizon float64 `json:"horizon" yaml:"horizon"`

	Iterations int `json:"iterations" yaml:"iterations"`
}

// DefaultSettings returns the settings of the original retired-battery study.
func DefaultSettings() Settings {
	return Settings{
		Current:    5.2,
		TempOffset: 274.15,
		VEOD:       2.75,
		VoltageMin: 2.7,
		VoltageMax: 4.5,
		SOCSamples: analysis.DefaultSOCSamples,
		Sentinel:   -1e6,
		Dt:         0.5,
		Iterations: 80,
	}
}

// WithDefaults fills every zero field from DefaultSettings.
func (s Settings) WithDefaults() Settings {
	d := DefaultSettings()
	if s.Current == 0 {
		s.Current = d.Current
	}
	if s.TempOffset == 0 {
		s.TempOffset = d.TempOffset
	}
	if s.VEOD == 0 {
		s.VEOD = d.VEOD
	}
	if s.VoltageMin == 0 && s.VoltageMax == 0 {
		s.VoltageMin, s.VoltageMax = d.VoltageMin, d.VoltageMax
	}
	if s.SOCSamples == 0 {
		s.SOCSamples = d.SOCSamples
	}
	if s.Sentinel == 0 {
		s.Sentinel = d.Sentinel
	}
	if s.Dt == 0 {
		s.Dt = d.Dt
	}
	if s.Iterations == 0 {
		s.Iterations = d.Iterations
	}
	return s
}
