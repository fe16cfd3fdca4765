package main

import (
	"context"
	"fmt"
	"os"

	"battery-estimator/internal/config"
	"battery-estimator/internal/estimate"
	"battery-estimator/internal/logging"
	"battery-estimator/internal/model"
	"battery-estimator/internal/optimizer"

	"github.com/spf13/cobra"
)

// Demo:
// - Simulate a batch21 discharge for a known parameter set
// - Thin it out and add measurement noise
// - Estimate the parameters back and compare
func main() {
	var (
		cfgPath    string
		iterations int
		optName    string
		seed       int64
		noise      float64
		every      int
	)
	truth := model.Candidate{QMax: 9000, Ro: 0.09, Wr: 7e-6}

	cmd := &cobra.Command{
		Use:          "demo",
		Short:        "Recover known parameters from a synthetic discharge",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Default()
			if cfgPath != "" {
				var err error
				if cfg, err = config.Load(cfgPath); err != nil {
					return err
				}
			}
			if len(cfg.Estimation.Bounds) == 0 {
				cfg.Estimation.Bounds = map[string][]float64{
					model.KeyQMax: {5500, 15000},
					model.KeyRo:   {0.04, 0.2},
					model.KeyWr:   {4e-6, 12e-6},
				}
			}
			log := logging.NewLogger(cfg.LogLevel)

			simulator, err := cfg.NewSimulator()
			if err != nil {
				return err
			}
			start := model.Run{
				Times:   []float64{0},
				Inputs:  []model.Input{{I: cfg.Simulation.Current}},
				Outputs: []model.Output{{}},
			}
			obj, err := estimate.NewObjective(estimate.ObjectiveParams{
				Simulator: simulator.Clone(),
				Run:       start,
				Settings:  cfg.Settings(),
				Log:       log,
			})
			if err != nil {
				return err
			}
			series, err := obj.SimulateMeasured(truth, noise, seed)
			if err != nil {
				return err
			}

			if every < 1 {
				every = 1
			}
			var observed model.Run
			for k := 0; k < series.Len(); k += every {
				observed.Times = append(observed.Times, series.Times[k])
				observed.Inputs = append(observed.Inputs, model.Input{I: cfg.Simulation.Current})
				observed.Outputs = append(observed.Outputs, series.Outputs[k])
			}
			fmt.Printf("Simulated %d samples, kept %d with noise sigma=%g\n", series.Len(), observed.Len(), noise)

			params := cfg.OptimizerParams()
			params.Seed = seed
			if optName == "" {
				optName = cfg.Optimizer.Name
			}
			opt, err := optimizer.New(optName, params)
			if err != nil {
				return err
			}
			est := &estimate.Estimator{
				Simulator: simulator,
				Optimizer: opt,
				Settings:  cfg.Settings(),
				Log:       log,
			}
			res, err := est.Estimate(context.Background(), estimate.Request{
				Batch:      "batch21",
				Keys:       cfg.Estimation.Keys,
				Bounds:     cfg.BoundsSpec(),
				Runs:       []model.Run{observed},
				Iterations: iterations,
			})
			if err != nil {
				return err
			}

			fmt.Printf("\n%-6s %-12s %-12s %-8s\n", "param", "truth", "estimate", "error")
			for _, k := range res.Keys {
				want, _ := truth.Get(k)
				got, _ := res.Get(k)
				fmt.Printf("%-6s %-12.6g %-12.6g %+.2f%%\n", k, want, got, 100*(got-want)/want)
			}
			fmt.Printf("\nDone. score=%g after %d evaluations with %s in %s\n",
				res.Score, res.Evaluations, res.Optimizer, res.Duration)
			return nil
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "", "YAML config (optional)")
	cmd.Flags().IntVar(&iterations, "iterations", 40, "optimizer budget")
	cmd.Flags().StringVar(&optName, "optimizer", "", "optimizer name (default from config)")
	cmd.Flags().Int64Var(&seed, "seed", 1, "random seed for noise and optimizer")
	cmd.Flags().Float64Var(&noise, "noise", 0.005, "voltage noise standard deviation in V")
	cmd.Flags().IntVar(&every, "every", 40, "keep every n-th simulated sample")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
