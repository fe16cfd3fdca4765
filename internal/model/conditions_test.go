package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupWorkingCondition(t *testing.T) {
	cases := map[string]WorkingCondition{
		"batch01": {0.8, 0.2},
		"batch06": {0.2, 0.2},
		"batch07": {0.75, 0.3},
		"batch10": {0.45, 0.3},
		"batch12": {0.55, 0.4},
		"batch17": {0.35, 0.5},
		"batch21": {0.5, 1.0},
	}
	for batch, want := range cases {
		got, err := LookupWorkingCondition(batch)
		require.NoError(t, err, batch)
		assert.Equal(t, want, got, batch)
	}
}

func TestLookupWorkingConditionUnknown(t *testing.T) {
	for _, batch := range []string{"", "batch00", "batch22", "Batch01", "batch1"} {
		_, err := LookupWorkingCondition(batch)
		assert.ErrorIs(t, err, ErrUnknownBatch, batch)
	}
}

func TestBatchesAreOrderedAndValid(t *testing.T) {
	batches := Batches()
	require.Len(t, batches, 21)
	assert.Equal(t, "batch01", batches[0])
	assert.Equal(t, "batch21", batches[20])

	for _, b := range batches {
		wc, err := LookupWorkingCondition(b)
		require.NoError(t, err)
		lo, hi := wc.SOCWindow()
		assert.GreaterOrEqual(t, lo, -1e-12, b)
		assert.LessOrEqual(t, hi, 1+1e-12, b)
		assert.InDelta(t, wc.DOD, hi-lo, 1e-12, b)
	}
}
