package cli

import (
	"fmt"

	"battery-estimator/internal/data"
	"battery-estimator/internal/estimate"
	"battery-estimator/internal/model"

	"github.com/spf13/cobra"
)

// candidateFlags name one parameter set.
type candidateFlags struct {
	qMax, ro, wr float64
}

func (f *candidateFlags) register(cmd *cobra.Command, qMax, ro, wr float64) {
	cmd.Flags().Float64Var(&f.qMax, "qmax", qMax, "maximum mobile charge in C")
	cmd.Flags().Float64Var(&f.ro, "ro", ro, "ohmic resistance in Ohm")
	cmd.Flags().Float64Var(&f.wr, "wr", wr, "Ro growth per coulomb discharged")
}

func (f *candidateFlags) candidate() model.Candidate {
	return model.Candidate{QMax: f.qMax, Ro: f.ro, Wr: f.wr}
}

func newSimulateCommand(g *globals) *cobra.Command {
	var (
		cf       candidateFlags
		outPath  string
		interval float64
		noise    float64
		seed     int64
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Write the discharge the estimator predicts for known parameters",
		Long: `Simulates a constant-current discharge exactly as the estimator does when
scoring a candidate and writes it as a trace. Useful for synthetic test data.
--noise adds seeded Gaussian noise to the simulated voltage and temperature.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := g.load(cmd)
			if err != nil {
				return err
			}
			simulator, err := cfg.NewSimulator()
			if err != nil {
				return err
			}
			ref, err := cfg.ReferenceRun()
			if err != nil {
				return err
			}

			// Only the start time of the run is read when simulating.
			obj, err := estimate.NewObjective(estimate.ObjectiveParams{
				Simulator:      simulator,
				StateEstimator: cfg.StateEstimator(),
				Run: model.Run{
					Times:   []float64{0},
					Inputs:  []model.Input{{I: cfg.Simulation.Current}},
					Outputs: []model.Output{{}},
				},
				Reference: ref,
				Settings:  cfg.Settings(),
				Log:       log,
			})
			if err != nil {
				return err
			}
			series, err := obj.SimulateMeasured(cf.candidate(), noise, seed)
			if err != nil {
				return err
			}
			if series.Len() == 0 {
				return fmt.Errorf("simulation left no samples inside %g..%g V", cfg.Estimation.VoltageMin, cfg.Estimation.VoltageMax)
			}

			tr := data.Trace{
				Times:       series.Times,
				Voltage:     series.Voltages(),
				Temperature: series.Temperatures(),
			}
			tr = tr.WithCurrent(cfg.Simulation.Current)
			if interval > 0 {
				if tr, err = data.Resample(tr, interval); err != nil {
					return err
				}
			}
			if err := data.SaveTrace(outPath, tr); err != nil {
				return err
			}
			last := tr.Len() - 1
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d samples to %s (%.0fs, %.3fV -> %.3fV)\n",
				tr.Len(), outPath, tr.Times[last]-tr.Times[0], tr.Voltage[0], tr.Voltage[last])
			return nil
		},
	}
	cf.register(cmd, 9000, 0.09, 7e-6)
	cmd.Flags().StringVar(&outPath, "out", "", "output trace path (.csv or .json)")
	cmd.Flags().Float64Var(&interval, "interval", 0, "resample to this interval in seconds (0 keeps the simulation step)")
	cmd.Flags().Float64Var(&noise, "noise", 0, "measurement noise standard deviation (V for voltage, °C for temperature)")
	cmd.Flags().Int64Var(&seed, "seed", 1, "random seed for the measurement noise")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}
