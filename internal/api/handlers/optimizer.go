package handlers

import (
	"net/http"

	"battery-estimator/internal/api/models"
	"battery-estimator/internal/optimizer"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// OptimizerHandler handles optimizer-related requests
type OptimizerHandler struct {
	log logrus.FieldLogger
}

// NewOptimizerHandler creates a new optimizer handler
func NewOptimizerHandler(log logrus.FieldLogger) *OptimizerHandler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &OptimizerHandler{log: log}
}

// ListOptimizers handles GET /api/v1/optimizers
func (h *OptimizerHandler) ListOptimizers(c *gin.Context) {
	h.log.Debug("OptimizerHandler: ListOptimizers called")
	infos := []models.OptimizerInfo{}
	for _, o := range optimizer.Available() {
		infos = append(infos, models.OptimizerInfo{
			Name:        o.Name,
			Description: o.Description,
			Parameters:  optimizerParameters[o.Name],
		})
	}
	c.JSON(http.StatusOK, gin.H{"optimizers": infos})
}

var optimizerParameters = map[string][]models.ParameterInfo{
	optimizer.NameBayesian: {
		{
			Name:        "seed",
			Type:        "int",
			Description: "Random seed for warm-up and acquisition candidates",
			Default:     0,
		},
		{
			Name:        "init_points",
			Type:        "int",
			Description: "Random evaluations before the surrogate is used",
			Default:     optimizer.DefaultInitPoints,
		},
		{
			Name:        "xi",
			Type:        "float",
			Description: "Exploration margin of the probability of improvement",
			Default:     optimizer.DefaultXi,
		},
		{
			Name:        "candidates",
			Type:        "int",
			Description: "Random points scored by the acquisition per iteration",
			Default:     optimizer.DefaultCandidates,
		},
		{
			Name:        "polish_evaluations",
			Type:        "int",
			Description: "Nelder-Mead evaluations spent refining the best point (negative disables)",
			Default:     optimizer.DefaultPolishEvaluations,
		},
	},
	optimizer.NameNelderMead: {
		{
			Name:        "seed",
			Type:        "int",
			Description: "Random seed for restart points",
			Default:     0,
		},
		{
			Name:        "restarts",
			Type:        "int",
			Description: "Number of simplex starts sharing the evaluation budget",
			Default:     optimizer.DefaultRestarts,
		},
		{
			Name:        "simplex_size",
			Type:        "float",
			Description: "Initial simplex edge in normalised box units",
			Default:     optimizer.DefaultSimplexSize,
		},
	},
}
