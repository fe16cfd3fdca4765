package model

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownBatch is returned when a batch identifier has no registered working condition.
var ErrUnknownBatch = errors.New("unknown batch")

// WorkingCondition is the operating point a batch of cells was cycled at.
// Units: fractions of nominal capacity, 0..1.
type WorkingCondition struct {
	MidSOC float64 `json:"mid_soc" yaml:"mid_soc"`
	DOD    float64 `json:"dod" yaml:"dod"`
}

// SOCWindow returns the SOC span traversed by one discharge, low end first.
func (w WorkingCondition) SOCWindow() (lo, hi float64) {
	return w.MidSOC - w.DOD/2, w.MidSOC + w.DOD/2
}

// Keep these stable; batch identifiers appear in result paths.
var workingConditions = map[string]WorkingCondition{
	"batch01": {MidSOC: 0.8, DOD: 0.2},
	"batch02": {MidSOC: 0.7, DOD: 0.2},
	"batch03": {MidSOC: 0.5, DOD: 0.2},
	"batch04": {MidSOC: 0.4, DOD: 0.2},
	"batch05": {MidSOC: 0.3, DOD: 0.2},
	"batch06": {MidSOC: 0.2, DOD: 0.2},
	"batch07": {MidSOC: 0.75, DOD: 0.3},
	"batch08": {MidSOC: 0.6, DOD: 0.3},
	"batch09": {MidSOC: 0.5, DOD: 0.3},
	"batch10": {MidSOC: 0.45, DOD: 0.3},
	"batch11": {MidSOC: 0.7, DOD: 0.4},
	"batch12": {MidSOC: 0.55, DOD: 0.4},
	"batch13": {MidSOC: 0.5, DOD: 0.4},
	"batch14": {MidSOC: 0.4, DOD: 0.4},
	"batch15": {MidSOC: 0.3, DOD: 0.4},
	"batch16": {MidSOC: 0.5, DOD: 0.5},
	"batch17": {MidSOC: 0.35, DOD: 0.5},
	"batch18": {MidSOC: 0.5, DOD: 0.6},
	"batch19": {MidSOC: 0.5, DOD: 0.7},
	"batch20": {MidSOC: 0.5, DOD: 0.8},
	"batch21": {MidSOC: 0.5, DOD: 1.0},
}

// LookupWorkingCondition returns the operating point registered for batch.
func LookupWorkingCondition(batch string) (WorkingCondition, error) {
	wc, ok := workingConditions[batch]
	if !ok {
		return WorkingCondition{}, fmt.Errorf("%w: %q", ErrUnknownBatch, batch)
	}
	return wc, nil
}

// Batches lists every registered batch identifier in ascending order.
func Batches() []string {
	out := make([]string, 0, len(workingConditions))
	for k := range workingConditions {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
