package model

// SimulatedSeries is the time-ordered output of one simulator run.
// States is aligned with Times and may be empty when the simulator does not record it.
type SimulatedSeries struct {
	Times   []float64 `json:"times"`
	Outputs []Output  `json:"outputs"`
	States  []State   `json:"states,omitempty"`
}

func (s SimulatedSeries) Len() int { return len(s.Times) }

// Voltages extracts the voltage channel.
func (s SimulatedSeries) Voltages() []float64 {
	out := make([]float64, len(s.Outputs))
	for i, o := range s.Outputs {
		out[i] = o.V
	}
	return out
}

// Temperatures extracts the temperature channel.
func (s SimulatedSeries) Temperatures() []float64 {
	out := make([]float64, len(s.Outputs))
	for i, o := range s.Outputs {
		out[i] = o.T
	}
	return out
}

// Window keeps only samples whose voltage lies strictly inside (lo, hi).
// NaN voltages are dropped.
func (s SimulatedSeries) Window(lo, hi float64) SimulatedSeries {
	out := SimulatedSeries{}
	for i, o := range s.Outputs {
		if !(o.V > lo && o.V < hi) {
			continue
		}
		out.Times = append(out.Times, s.Times[i])
		out.Outputs = append(out.Outputs, o)
		if i < len(s.States) {
			out.States = append(out.States, s.States[i])
		}
	}
	return out
}

// Result is the outcome of one estimation request.
type Result struct {
	Candidate

	// Score is the metric value at Candidate (0 is a perfect match, more negative is worse).
	Score float64 `json:"score"`

	// Evaluations counts objective calls spent by the optimizer.
	Evaluations int `json:"evaluations"`

	// Simulated is the final simulated trace at Candidate, already windowed.
	Simulated SimulatedSeries `json:"simulated"`
}
