// Package api wires the HTTP handlers into a gin engine.
package api

import (
	"net/http"
	"strings"

	"battery-estimator/internal/api/handlers"
	"battery-estimator/internal/api/middleware"
	"battery-estimator/internal/config"
	"battery-estimator/internal/data"
	"battery-estimator/internal/estimate"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Options configures NewRouter.
type Options struct {
	Config *config.Config
	Store  *data.ResultStore
	Log    logrus.FieldLogger

	// Emitter, when set, also receives every finished estimation.
	Emitter estimate.Emitter
}

// NewRouter builds the API engine.
func NewRouter(opts Options) (*gin.Engine, error) {
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	router := gin.New()
	router.Use(middleware.CORS())
	router.Use(middleware.Logger(log))
	router.Use(middleware.ErrorHandler(log))

	estimateHandler, err := handlers.NewEstimateHandler(opts.Config, opts.Store, log)
	if err != nil {
		return nil, err
	}
	if opts.Emitter != nil {
		estimateHandler.SetEmitter(opts.Emitter)
	}
	optimizerHandler := handlers.NewOptimizerHandler(log)

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// API routes
	v1 := router.Group("/api/v1")
	{
		v1.POST("/estimate", estimateHandler.RunEstimate)
		v1.GET("/estimates", estimateHandler.ListEstimates)
		v1.GET("/estimates/:id", estimateHandler.GetEstimate)
		v1.GET("/estimates/:id/rank", estimateHandler.RankEvaluations)
		v1.POST("/score", estimateHandler.ScoreCandidate)

		v1.GET("/batches", handlers.ListBatches)
		v1.GET("/batches/:batch", handlers.GetBatch)
		v1.GET("/optimizers", optimizerHandler.ListOptimizers)
		v1.GET("/parameters", handlers.ListParameters)
	}

	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api") {
			c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
			return
		}
		c.String(http.StatusNotFound, "404 page not found")
	})
	return router, nil
}
