package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"battery-estimator/internal/api/models"
	"battery-estimator/internal/config"
	"battery-estimator/internal/data"
	"battery-estimator/internal/model"
	"battery-estimator/internal/sim"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T, cfg *config.Config) (*gin.Engine, *data.ResultStore) {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	store := data.NewResultStore(time.Hour)
	t.Cleanup(store.Close)
	r, err := NewRouter(Options{Config: cfg, Store: store, Log: log})
	require.NoError(t, err)
	return r, store
}

// observedRun is a noise-free simulated discharge, thinned to every tenth sample.
func observedRun(t *testing.T) model.Run {
	t.Helper()
	m, err := sim.NewWithParameters(map[string]float64{
		sim.ParamProcessNoise:     0,
		sim.ParamMeasurementNoise: 0,
		sim.ParamVEOD:             2.75,
		sim.ParamQMax:             9000,
	})
	require.NoError(t, err)
	series, err := m.SimulateToThreshold(sim.ConstantLoad(5.2), sim.Options{Dt: 2})
	require.NoError(t, err)

	var run model.Run
	for i := 0; i < series.Len(); i += 10 {
		run.Times = append(run.Times, series.Times[i])
		run.Inputs = append(run.Inputs, model.Input{I: 5.2})
		run.Outputs = append(run.Outputs, series.Outputs[i])
	}
	require.Greater(t, run.Len(), 10)
	return run
}

func do(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) models.ErrorDetail {
	t.Helper()
	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Error
}

var searchBounds = map[string][]float64{
	"qMax": {5500, 15000},
	"Ro":   {0.04, 0.2},
	"wr":   {4e-6, 12e-6},
}

func TestHealth(t *testing.T) {
	r, _ := newTestRouter(t, nil)
	w := do(t, r, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestBatches(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	w := do(t, r, http.MethodGet, "/api/v1/batches", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Batches []models.BatchInfo `json:"batches"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list.Batches, len(model.Batches()))

	w = do(t, r, http.MethodGet, "/api/v1/batches/batch21", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var b models.BatchInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &b))
	assert.Equal(t, models.BatchInfo{Batch: "batch21", MidSOC: 0.5, DOD: 1.0, SOCLow: 0, SOCHigh: 1}, b)

	w = do(t, r, http.MethodGet, "/api/v1/batches/batch99", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "UNKNOWN_BATCH", decodeError(t, w).Code)
}

func TestOptimizersAndParameters(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	w := do(t, r, http.MethodGet, "/api/v1/optimizers", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var opts struct {
		Optimizers []models.OptimizerInfo `json:"optimizers"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &opts))
	require.Len(t, opts.Optimizers, 2)
	assert.Equal(t, "bayesian", opts.Optimizers[0].Name)
	assert.NotEmpty(t, opts.Optimizers[0].Parameters)

	w = do(t, r, http.MethodGet, "/api/v1/parameters", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var params struct {
		Parameters  []models.ParameterInfo `json:"parameters"`
		DefaultKeys []string               `json:"default_keys"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &params))
	assert.Equal(t, []string{"qMax", "Ro", "wr"}, params.DefaultKeys)
	assert.Len(t, params.Parameters, len(sim.DefaultParameters()))
}

func TestEstimateRejections(t *testing.T) {
	r, _ := newTestRouter(t, nil)
	run := observedRun(t)

	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"malformed", "not an object", http.StatusBadRequest, "INVALID_REQUEST"},
		{"unknown batch", models.EstimateRequest{Batch: "batch99", Bounds: searchBounds, Data: models.DataConfig{Runs: []model.Run{run}}}, http.StatusBadRequest, "UNKNOWN_BATCH"},
		{"unbounded", models.EstimateRequest{Batch: "batch21", Data: models.DataConfig{Runs: []model.Run{run}}}, http.StatusBadRequest, "UNBOUNDED_SEARCH"},
		{"multi run", models.EstimateRequest{Batch: "batch21", Bounds: searchBounds, Data: models.DataConfig{Runs: []model.Run{run, run}}}, http.StatusBadRequest, "UNSUPPORTED_MULTI_RUN"},
		{"no data", models.EstimateRequest{Batch: "batch21", Bounds: searchBounds}, http.StatusBadRequest, "MISSING_RUN_DATA"},
		{"bad keys", models.EstimateRequest{Batch: "batch21", Keys: []string{"qMax", "nope"}, Data: models.DataConfig{Runs: []model.Run{run}}}, http.StatusBadRequest, "UNKNOWN_PARAMETER"},
		{"bad optimizer", models.EstimateRequest{Batch: "batch21", Optimizer: models.OptimizerConfig{Name: "annealing"}, Data: models.DataConfig{Runs: []model.Run{run}}}, http.StatusBadRequest, "UNKNOWN_OPTIMIZER"},
		{"ragged trace", models.EstimateRequest{Batch: "batch21", Data: models.DataConfig{Trace: &data.Trace{Times: []float64{0, 1}, Voltage: []float64{4}, Temperature: []float64{24, 24}}}}, http.StatusBadRequest, "INVALID_TRACE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, r, http.MethodPost, "/api/v1/estimate", tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.code, decodeError(t, w).Code)
		})
	}
}

func TestEstimateRoundTrip(t *testing.T) {
	cfg := config.Default()
	cfg.Optimizer.Name = "nelder-mead"
	cfg.Optimizer.Restarts = 1
	r, store := newTestRouter(t, cfg)

	w := do(t, r, http.MethodPost, "/api/v1/estimate", models.EstimateRequest{
		Batch:      "batch21",
		Battery:    4,
		Cycle:      9,
		Bounds:     searchBounds,
		Data:       models.DataConfig{Runs: []model.Run{observedRun(t)}},
		Iterations: 6,
		Options:    models.EstimateOptions{IncludeLedger: true},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.EstimateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.ID)
	assert.Equal(t, "completed", resp.Status)
	assert.Equal(t, "nelder-mead", resp.Summary.Optimizer)
	assert.GreaterOrEqual(t, resp.Summary.Evaluations, 2)
	assert.Len(t, resp.Ledger, resp.Summary.Evaluations)
	assert.LessOrEqual(t, resp.Summary.Score, 0.0)
	require.Len(t, resp.Summary.Bounds, 3)
	assert.Equal(t, 5500.0, *resp.Summary.Bounds[0].Lower)
	require.NotNil(t, resp.Alignment)
	assert.Len(t, resp.Alignment.SOC, 100)

	_, ok := store.Get(resp.ID)
	require.True(t, ok)

	w = do(t, r, http.MethodGet, "/api/v1/estimates/"+resp.ID+"?include_states=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got models.EstimateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, resp.Summary.Parameters, got.Summary.Parameters)
	assert.Empty(t, got.Ledger)
	require.NotNil(t, got.Simulated)
	assert.NotEmpty(t, got.Simulated.States)

	w = do(t, r, http.MethodGet, "/api/v1/estimates/"+resp.ID+"/rank?n=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var rank models.RankResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rank))
	require.Len(t, rank.Rankings, 2)
	assert.Equal(t, 1, rank.Rankings[0].Rank)
	assert.GreaterOrEqual(t, rank.Rankings[0].Score, rank.Rankings[1].Score)
	assert.Equal(t, resp.Summary.Score, rank.Rankings[0].Score)

	w = do(t, r, http.MethodGet, "/api/v1/estimates/"+resp.ID+"/rank?n=zero", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodGet, "/api/v1/estimates", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Estimates []models.EstimateResponse `json:"estimates"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Estimates, 1)
	assert.Equal(t, resp.ID, list.Estimates[0].ID)

	w = do(t, r, http.MethodGet, "/api/v1/estimates/unknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEstimateFromTrace(t *testing.T) {
	cfg := config.Default()
	cfg.Optimizer.Name = "nelder-mead"
	r, _ := newTestRouter(t, cfg)

	tr := data.TraceFromRun(observedRun(t))
	tr.Current = nil
	w := do(t, r, http.MethodPost, "/api/v1/estimate", models.EstimateRequest{
		Batch:      "batch21",
		Bounds:     searchBounds,
		Data:       models.DataConfig{Trace: &tr, ResampleInterval: 4},
		Iterations: 3,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestScore(t *testing.T) {
	r, _ := newTestRouter(t, nil)
	run := observedRun(t)

	w := do(t, r, http.MethodPost, "/api/v1/score", models.ScoreRequest{
		Batch:     "batch21",
		Candidate: model.Candidate{QMax: 9000, Ro: 0.117215, Wr: 1e-6},
		Data:      models.DataConfig{Runs: []model.Run{run}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp models.ScoreResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.LessOrEqual(t, resp.Score, 0.0)
	assert.Len(t, resp.Alignment.Observed, 100)

	w = do(t, r, http.MethodPost, "/api/v1/score", models.ScoreRequest{
		Batch:     "batch21",
		Candidate: model.Candidate{QMax: -9000, Ro: 0.1, Wr: 1e-6},
		Data:      models.DataConfig{Runs: []model.Run{run}},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	detail := decodeError(t, w)
	assert.Equal(t, "EVALUATION_FAILED", detail.Code)
	assert.NotEmpty(t, detail.Details["stage"])
}

func TestCORSPreflight(t *testing.T) {
	r, _ := newTestRouter(t, nil)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/estimate", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	w = do(t, r, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPanicRecovery(t *testing.T) {
	r, _ := newTestRouter(t, nil)
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := do(t, r, http.MethodGet, "/boom", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	detail := decodeError(t, w)
	assert.Equal(t, "INTERNAL_ERROR", detail.Code)
	assert.Equal(t, "boom", detail.Message)
}

func TestNoRoute(t *testing.T) {
	r, _ := newTestRouter(t, nil)
	w := do(t, r, http.MethodGet, "/api/v1/nothing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
