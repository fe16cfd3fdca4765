package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"battery-estimator/internal/config"
	"battery-estimator/internal/data"
	"battery-estimator/internal/estimate"
	"battery-estimator/internal/model"
	"battery-estimator/internal/optimizer"
	"battery-estimator/internal/report"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// traceFlags select and condition the observed discharge.
type traceFlags struct {
	path     string
	resample float64
	batch    string
	midSOC   float64
	dod      float64
}

func (f *traceFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.path, "trace", "", "observed discharge trace (.csv or .json)")
	cmd.Flags().Float64Var(&f.resample, "resample", 0, "resample the trace to this interval in seconds (0 keeps it as measured)")
	cmd.Flags().StringVar(&f.batch, "batch", "", "batch identifier selecting the working condition")
	cmd.Flags().Float64Var(&f.midSOC, "mid-soc", 0, "working-condition mid SOC, overrides --batch")
	cmd.Flags().Float64Var(&f.dod, "dod", 0, "working-condition depth of discharge, overrides --batch")
	_ = cmd.MarkFlagRequired("trace")
}

// condition returns the explicit working condition, or nil to look up the batch.
func (f *traceFlags) condition(cmd *cobra.Command) *model.WorkingCondition {
	if !cmd.Flags().Changed("mid-soc") && !cmd.Flags().Changed("dod") {
		return nil
	}
	return &model.WorkingCondition{MidSOC: f.midSOC, DOD: f.dod}
}

// run loads the trace as a single run at the configured current when the
// trace has none.
func (f *traceFlags) run(cfg *config.Config) (model.Run, error) {
	tr, err := data.LoadTrace(f.path)
	if err != nil {
		return model.Run{}, err
	}
	if f.resample > 0 {
		if tr, err = data.Resample(tr, f.resample); err != nil {
			return model.Run{}, fmt.Errorf("resample %s: %w", f.path, err)
		}
	}
	if len(tr.Current) == 0 {
		tr = tr.WithCurrent(cfg.Simulation.Current)
	}
	return tr.Run(), nil
}

// request builds the estimation request for the trace with the config's keys and bounds.
func (f *traceFlags) request(cmd *cobra.Command, cfg *config.Config) (estimate.Request, error) {
	run, err := f.run(cfg)
	if err != nil {
		return estimate.Request{}, err
	}
	return estimate.Request{
		Batch:     f.batch,
		Condition: f.condition(cmd),
		Keys:      cfg.Estimation.Keys,
		Bounds:    cfg.BoundsSpec(),
		Runs:      []model.Run{run},
	}, nil
}

// newEstimator wires the configured collaborators. opt may be nil when only
// Prepare is needed.
func newEstimator(cfg *config.Config, opt optimizer.Optimizer, log logrus.FieldLogger) (*estimate.Estimator, error) {
	simulator, err := cfg.NewSimulator()
	if err != nil {
		return nil, err
	}
	ref, err := cfg.ReferenceRun()
	if err != nil {
		return nil, err
	}
	return &estimate.Estimator{
		Simulator:      simulator,
		StateEstimator: cfg.StateEstimator(),
		Reference:      ref,
		Optimizer:      opt,
		Settings:       cfg.Settings(),
		Log:            log,
	}, nil
}

func newEstimateCommand(g *globals) *cobra.Command {
	var (
		tf         traceFlags
		battery    int
		cycle      int
		optName    string
		iterations int
		seed       int64
		outDir     string
		noOutput   bool
		top        int
	)
	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Fit qMax, Ro and wr to an observed discharge",
		Example: `  battery-estimator estimate --config examples/estimator.yaml \
    --trace data/batch21_b1_c10.csv --batch batch21 --battery 1 --cycle 10`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := g.load(cmd)
			if err != nil {
				return err
			}

			params := cfg.OptimizerParams()
			if cmd.Flags().Changed("seed") {
				params.Seed = seed
			}
			if optName == "" {
				optName = cfg.Optimizer.Name
			}
			opt, err := optimizer.New(optName, params)
			if err != nil {
				return err
			}
			est, err := newEstimator(cfg, opt, log)
			if err != nil {
				return err
			}
			var writer *report.Writer
			if !noOutput {
				if outDir == "" {
					outDir = cfg.Output.Dir
				}
				writer = report.NewWriter(outDir, log)
				est.Emitter = writer
			}

			req, err := tf.request(cmd, cfg)
			if err != nil {
				return err
			}
			req.Battery = battery
			req.Cycle = cycle
			req.Iterations = iterations

			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt)
			defer stop()
			out, err := est.Estimate(ctx, req)
			if err != nil {
				return err
			}
			printOutcome(cmd, out, opt.History(), top)
			if writer != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote results to %s\n", writer.BatteryDir(req.Batch, battery))
			}
			return nil
		},
	}
	tf.register(cmd)
	cmd.Flags().IntVar(&battery, "battery", 0, "battery number within the batch")
	cmd.Flags().IntVar(&cycle, "cycle", 0, "cycle number of the trace")
	cmd.Flags().StringVar(&optName, "optimizer", "", "optimizer name (default from config)")
	cmd.Flags().IntVar(&iterations, "iterations", 0, "optimizer budget (default from config)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "optimizer random seed")
	cmd.Flags().StringVar(&outDir, "out", "", "results directory (default from config)")
	cmd.Flags().BoolVar(&noOutput, "no-output", false, "print the result without writing files")
	cmd.Flags().IntVar(&top, "top", 5, "number of best evaluations to list")
	return cmd
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func printOutcome(cmd *cobra.Command, out *estimate.Outcome, history []optimizer.Observation, top int) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "qMax=%g Ro=%g wr=%g\n", out.QMax, out.Ro, out.Wr)
	fmt.Fprintf(w, "score=%g evaluations=%d optimizer=%s duration=%s\n", out.Score, out.Evaluations, out.Optimizer, out.Duration.Round(time.Millisecond))
	if out.Alignment != nil {
		st := out.Alignment.Stats()
		fmt.Fprintf(w, "rmse=%.4fV max=%.4fV bias=%+.4fV\n", st.RMSE, st.MaxAbs, st.Bias)
	}
	if top <= 0 || len(history) == 0 {
		return
	}

	fmt.Fprintf(w, "\n%-4s %-14s", "rank", "score")
	for _, k := range out.Keys {
		fmt.Fprintf(w, " %-14s", k)
	}
	fmt.Fprintln(w)
	for i, obs := range optimizer.Top(history, top) {
		fmt.Fprintf(w, "%-4d %-14.6g", i+1, obs.Value)
		for _, x := range obs.X {
			fmt.Fprintf(w, " %-14.6g", x)
		}
		fmt.Fprintln(w)
	}
}
