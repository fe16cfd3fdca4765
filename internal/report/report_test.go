package report

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"battery-estimator/internal/analysis"
	"battery-estimator/internal/estimate"
	"battery-estimator/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func emission(cycle int, c model.Candidate) estimate.Emission {
	state := model.State{"tb": 298.15, "Vo": 0.1, "Vsn": 0, "Vsp": 0, "qnB": 1, "qnS": 2, "qpB": 3, "qpS": 4, "qMax": c.QMax, "Ro": c.Ro, "D": 0}
	return estimate.Emission{
		Batch:   "batch03",
		Battery: 2,
		Cycle:   cycle,
		Outcome: &estimate.Outcome{
			Result: model.Result{
				Candidate:   c,
				Score:       -0.25,
				Evaluations: 2,
				Simulated: model.SimulatedSeries{
					Times:   []float64{0, 2},
					Outputs: []model.Output{{T: 25, V: 4.1}, {T: 25.1, V: 4.05}},
					States:  []model.State{state, state},
				},
			},
			Keys:      []string{"qMax", "Ro", "wr"},
			Optimizer: "bayesian",
			Condition: model.WorkingCondition{MidSOC: 0.5, DOD: 1.0},
			Alignment: &analysis.Alignment{
				SOC:       []float64{0, 1},
				Simulated: []float64{3.0, 4.1},
				Observed:  []float64{3.1, 4.1},
			},
			Ledger: []estimate.LedgerRow{
				{Index: 0, Params: map[string]float64{"qMax": 7000, "Ro": 0.1, "wr": 1e-5}, Score: -1e6, Failed: true, BestScore: -1e6},
				{Index: 1, Params: c.Params(), Score: -0.25, BestScore: -0.25},
			},
			Duration: 1500 * time.Millisecond,
		},
		Observed: []float64{4.1, 3.5, 3.1},
	}
}

func TestWriterEmit(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, nil)
	c := model.Candidate{QMax: 9000, Ro: 0.09, Wr: 7e-6}

	require.NoError(t, w.Emit(emission(12, c)))
	require.NoError(t, w.Emit(emission(13, model.Candidate{QMax: 8900, Ro: 0.095, Wr: 7.5e-6})))

	base := filepath.Join(dir, "batch03", "Battery2")
	assert.Equal(t, base, w.BatteryDir("batch03", 2))

	keys := readCSV(t, filepath.Join(base, KeyParametersFile))
	assert.Equal(t, [][]string{
		{"qMax", "R0", "wr"},
		{"9000", "0.09", "7e-06"},
		{"8900", "0.095", "7.5e-06"},
	}, keys)

	states := readCSV(t, filepath.Join(base, "12.csv"))
	require.Len(t, states, 3)
	assert.Equal(t, []string{"t", "v", "tb", "Vo", "Vsn", "Vsp", "qnB", "qnS", "qpB", "qpS", "qMax", "Ro", "D"}, states[0])
	assert.Equal(t, []string{"2", "4.05", "298.15", "0.1", "0", "0", "1", "2", "3", "4", "9000", "0.09", "0"}, states[2])

	ledger := readCSV(t, filepath.Join(base, "12_evaluations.csv"))
	assert.Equal(t, []string{"index", "qMax", "Ro", "wr", "score", "failed", "best_score"}, ledger[0])
	assert.Equal(t, []string{"0", "7000", "0.1", "1e-05", "-1e+06", "true", "-1e+06"}, ledger[1])

	raw, err := os.ReadFile(filepath.Join(base, "12.json"))
	require.NoError(t, err)
	var s Summary
	require.NoError(t, json.Unmarshal(raw, &s))
	assert.Equal(t, 12, s.Cycle)
	assert.Equal(t, 9000.0, s.Parameters["qMax"])
	assert.Equal(t, "1.5s", s.Duration)
	assert.Equal(t, []float64{4.1, 3.5, 3.1}, s.Observed)
	require.NotNil(t, s.Stats)
	assert.InDelta(t, 0.1, s.Stats.MaxAbs, 1e-12)
}

func TestWriteStatesWithoutStates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "1.csv")
	require.NoError(t, WriteStatesCSV(path, model.SimulatedSeries{
		Times:   []float64{0},
		Outputs: []model.Output{{V: 4.2}},
	}))
	rows := readCSV(t, path)
	assert.Equal(t, []string{"0", "4.2", "", "", "", "", "", "", "", "", "", "", ""}, rows[1])
}

func TestEmitNeedsOutcome(t *testing.T) {
	w := NewWriter(t.TempDir(), nil)
	assert.Error(t, w.Emit(estimate.Emission{Batch: "batch01"}))
}

func TestWriterIsEmitter(t *testing.T) {
	var _ estimate.Emitter = NewWriter("", nil)
}
