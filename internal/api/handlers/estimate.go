package handlers

import (
	"errors"
	"math"
	"net/http"
	"sort"
	"strconv"

	"battery-estimator/internal/api/models"
	"battery-estimator/internal/config"
	"battery-estimator/internal/data"
	"battery-estimator/internal/estimate"
	"battery-estimator/internal/model"
	"battery-estimator/internal/optimizer"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// EstimateHandler handles estimation requests
type EstimateHandler struct {
	cfg       *config.Config
	reference model.Run
	store     *data.ResultStore
	emitter   estimate.Emitter
	log       logrus.FieldLogger
}

// NewEstimateHandler creates a new estimate handler.
// A nil cfg uses config.Default().
func NewEstimateHandler(cfg *config.Config, store *data.ResultStore, log logrus.FieldLogger) (*EstimateHandler, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	ref, err := cfg.ReferenceRun()
	if err != nil {
		return nil, err
	}
	if ref.Len() > 0 {
		log.Infof("EstimateHandler: Using reference trace %s (%d samples)", cfg.Reference.File, ref.Len())
	}
	return &EstimateHandler{cfg: cfg, reference: ref, store: store, log: log}, nil
}

// SetEmitter makes every finished estimation also go to e.
func (h *EstimateHandler) SetEmitter(e estimate.Emitter) {
	h.emitter = e
}

// RunEstimate handles POST /api/v1/estimate
func (h *EstimateHandler) RunEstimate(c *gin.Context) {
	var req models.EstimateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "INVALID_REQUEST", err)
		return
	}

	opt, err := h.buildOptimizer(req.Optimizer)
	if err != nil {
		writeError(c, err)
		return
	}
	est, err := h.buildEstimator(opt)
	if err != nil {
		writeError(c, err)
		return
	}
	estReq, err := h.buildRequest(req.Batch, req.Battery, req.Cycle, req.Condition, req.Keys, req.Bounds, req.Data)
	if err != nil {
		writeError(c, err)
		return
	}
	estReq.Iterations = req.Iterations

	h.log.Infof("EstimateHandler: Estimating %s battery %d cycle %d with %s", req.Batch, req.Battery, req.Cycle, opt.Name())
	out, err := est.Estimate(c.Request.Context(), estReq)
	if err != nil {
		h.log.WithError(err).Warn("EstimateHandler: Estimation failed")
		writeError(c, err)
		return
	}

	id := h.store.Put(req.Batch, req.Battery, req.Cycle, out)
	stored := &data.StoredResult{ID: id, Batch: req.Batch, Battery: req.Battery, Cycle: req.Cycle, Outcome: out}
	if r, ok := h.store.Get(id); ok {
		stored = r
	}
	c.JSON(http.StatusOK, buildEstimateResponse(stored, req.Options))
}

// GetEstimate handles GET /api/v1/estimates/:id
func (h *EstimateHandler) GetEstimate(c *gin.Context) {
	r, ok := h.store.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error: models.ErrorDetail{
				Code:    "NOT_FOUND",
				Message: "Estimation not found or expired",
			},
		})
		return
	}
	opts := models.EstimateOptions{
		IncludeLedger: c.Query("include_ledger") == "true",
		IncludeStates: c.Query("include_states") == "true",
	}
	c.JSON(http.StatusOK, buildEstimateResponse(r, opts))
}

// ListEstimates handles GET /api/v1/estimates
func (h *EstimateHandler) ListEstimates(c *gin.Context) {
	results := h.store.List()
	out := make([]models.EstimateResponse, 0, len(results))
	for _, r := range results {
		out = append(out, buildEstimateResponse(r, models.EstimateOptions{}))
	}
	c.JSON(http.StatusOK, gin.H{"estimates": out})
}

// RankEvaluations handles GET /api/v1/estimates/:id/rank
func (h *EstimateHandler) RankEvaluations(c *gin.Context) {
	id := c.Param("id")
	r, ok := h.store.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error: models.ErrorDetail{
				Code:    "NOT_FOUND",
				Message: "Estimation not found or expired",
			},
		})
		return
	}
	n := 10
	if v := c.Query("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			badRequest(c, "INVALID_REQUEST", errors.New("n must be a positive integer"))
			return
		}
		n = parsed
	}

	rows := make([]estimate.LedgerRow, len(r.Outcome.Ledger))
	copy(rows, r.Outcome.Ledger)
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Score > rows[j].Score })
	if n < len(rows) {
		rows = rows[:n]
	}
	resp := models.RankResponse{ID: id, Rankings: make([]models.Ranking, 0, len(rows))}
	for i, row := range rows {
		resp.Rankings = append(resp.Rankings, models.Ranking{
			Rank:       i + 1,
			Index:      row.Index,
			Parameters: row.Params,
			Score:      row.Score,
		})
	}
	c.JSON(http.StatusOK, resp)
}

// ScoreCandidate handles POST /api/v1/score
func (h *EstimateHandler) ScoreCandidate(c *gin.Context) {
	var req models.ScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "INVALID_REQUEST", err)
		return
	}
	est, err := h.buildEstimator(nil)
	if err != nil {
		writeError(c, err)
		return
	}
	estReq, err := h.buildRequest(req.Batch, 0, 0, req.Condition, nil, nil, req.Data)
	if err != nil {
		writeError(c, err)
		return
	}
	prep, err := est.Prepare(estReq)
	if err != nil {
		writeError(c, err)
		return
	}
	ev, err := prep.Objective.Evaluate(req.Candidate)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.ScoreResponse{
		Score:     ev.Score,
		Stats:     ev.Alignment.Stats(),
		Alignment: ev.Alignment,
	})
}

func (h *EstimateHandler) buildOptimizer(req models.OptimizerConfig) (optimizer.Optimizer, error) {
	name := h.cfg.Optimizer.Name
	if req.Name != "" {
		name = req.Name
	}
	params := h.cfg.OptimizerParams()
	if req.Params != nil {
		params = *req.Params
	}
	return optimizer.New(name, params)
}

func (h *EstimateHandler) buildEstimator(opt optimizer.Optimizer) (*estimate.Estimator, error) {
	simulator, err := h.cfg.NewSimulator()
	if err != nil {
		return nil, err
	}
	return &estimate.Estimator{
		Simulator:      simulator,
		StateEstimator: h.cfg.StateEstimator(),
		Reference:      h.reference,
		Optimizer:      opt,
		Emitter:        h.emitter,
		Settings:       h.cfg.Settings(),
		Log:            h.log,
	}, nil
}

// buildRequest fills server defaults and turns a trace into a run.
func (h *EstimateHandler) buildRequest(batch string, battery, cycle int, wc *model.WorkingCondition, keys, bounds any, d models.DataConfig) (estimate.Request, error) {
	if keys == nil {
		keys = h.cfg.Estimation.Keys
	}
	if bounds == nil {
		bounds = h.cfg.BoundsSpec()
	}
	req := estimate.Request{
		Batch:     batch,
		Battery:   battery,
		Cycle:     cycle,
		Condition: wc,
		Keys:      keys,
		Bounds:    bounds,
		Runs:      d.Runs,
		Times:     d.Times,
		Inputs:    d.Inputs,
		Outputs:   d.Outputs,
	}
	if d.Trace == nil {
		return req, nil
	}

	tr := *d.Trace
	if err := tr.Validate(); err != nil {
		return req, err
	}
	if d.ResampleInterval > 0 {
		var err error
		if tr, err = data.Resample(tr, d.ResampleInterval); err != nil {
			return req, err
		}
	}
	if len(tr.Current) == 0 {
		tr = tr.WithCurrent(h.cfg.Simulation.Current)
	}
	req.Runs = []model.Run{tr.Run()}
	return req, nil
}

func buildEstimateResponse(r *data.StoredResult, opts models.EstimateOptions) models.EstimateResponse {
	out := r.Outcome
	resp := models.EstimateResponse{
		ID:     r.ID,
		Status: "completed",
		Summary: models.EstimateSummary{
			Batch:       r.Batch,
			Battery:     r.Battery,
			Cycle:       r.Cycle,
			Parameters:  out.Candidate.Params(),
			Score:       out.Score,
			Evaluations: out.Evaluations,
			Optimizer:   out.Optimizer,
			Keys:        out.Keys,
			Bounds:      boundInfos(out.Bounds),
			Condition:   out.Condition,
			DurationMS:  out.Duration.Milliseconds(),
			CreatedAt:   r.CreatedAt,
		},
		Alignment: out.Alignment,
		Warnings:  out.Warnings,
	}
	if out.Alignment != nil {
		st := out.Alignment.Stats()
		resp.Summary.Stats = &st
	}
	if opts.IncludeLedger {
		resp.Ledger = out.Ledger
	}
	if opts.IncludeStates {
		sim := out.Simulated
		resp.Simulated = &sim
	}
	return resp
}

func boundInfos(bounds []model.Bound) []models.BoundInfo {
	out := make([]models.BoundInfo, len(bounds))
	for i, b := range bounds {
		if !math.IsInf(b.Lower, 0) {
			lo := b.Lower
			out[i].Lower = &lo
		}
		if !math.IsInf(b.Upper, 0) {
			hi := b.Upper
			out[i].Upper = &hi
		}
	}
	return out
}
