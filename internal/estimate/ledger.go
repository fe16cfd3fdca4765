package estimate

import "battery-estimator/internal/optimizer"

// LedgerRow is one optimizer evaluation in call order.
type LedgerRow struct {
	Index int `json:"index"`

	Params map[string]float64 `json:"params"`
	Score  float64            `json:"score"`

	// Failed marks an evaluation that was replaced by the sentinel.
	Failed bool `json:"failed"`

	// BestScore is the best score seen up to and including this row.
	BestScore float64 `json:"best_score"`
}

// NewLedger converts optimizer history into ledger rows keyed by parameter name.
func NewLedger(keys []string, history []optimizer.Observation, sentinel float64) []LedgerRow {
	ledger := make([]LedgerRow, 0, len(history))
	best := 0.0
	for idx, o := range history {
		params := make(map[string]float64, len(keys))
		for i, k := range keys {
			if i < len(o.X) {
				params[k] = o.X[i]
			}
		}
		if idx == 0 || o.Value > best {
			best = o.Value
		}
		ledger = append(ledger, LedgerRow{
			Index:     idx,
			Params:    params,
			Score:     o.Value,
			Failed:    o.Value == sentinel,
			BestScore: best,
		})
	}
	return ledger
}
