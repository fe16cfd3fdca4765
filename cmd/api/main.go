package main

import (
	"fmt"
	"os"

	"battery-estimator/internal/api"
	"battery-estimator/internal/config"
	"battery-estimator/internal/data"
	"battery-estimator/internal/estimate"
	"battery-estimator/internal/logging"
	"battery-estimator/internal/report"

	"github.com/gin-gonic/gin"
)

func main() {
	// Get configuration from environment
	port := os.Getenv("API_PORT")
	if port == "" {
		port = "8080"
	}

	cfg := config.Default()
	if path := os.Getenv("ESTIMATOR_CONFIG"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config %s: %v\n", path, err)
			os.Exit(1)
		}
		cfg = loaded
	}
	log := logging.NewLogger(cfg.LogLevel)
	log.Infof("Using optimizer %s with %d iterations", cfg.Optimizer.Name, cfg.Estimation.Iterations)

	if os.Getenv("API_ENV") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	store := data.NewResultStoreFromEnv()
	defer store.Close()

	// Results are only written to disk when RESULTS_DIR is set.
	var emitter estimate.Emitter
	if dir := os.Getenv("RESULTS_DIR"); dir != "" {
		emitter = report.NewWriter(dir, log)
		log.Infof("Writing estimation results to %s", dir)
	}

	router, err := api.NewRouter(api.Options{
		Config:  cfg,
		Store:   store,
		Log:     log,
		Emitter: emitter,
	})
	if err != nil {
		log.Fatalf("Failed to build router: %v", err)
	}

	// Start server
	addr := fmt.Sprintf(":%s", port)
	log.Infof("Starting API server on %s", addr)
	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
