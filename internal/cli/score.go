package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newScoreCommand(g *globals) *cobra.Command {
	var (
		tf traceFlags
		cf candidateFlags
	)
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score one parameter set against an observed discharge",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := g.load(cmd)
			if err != nil {
				return err
			}
			est, err := newEstimator(cfg, nil, log)
			if err != nil {
				return err
			}
			req, err := tf.request(cmd, cfg)
			if err != nil {
				return err
			}
			prep, err := est.Prepare(req)
			if err != nil {
				return err
			}
			ev, err := prep.Objective.Evaluate(cf.candidate())
			if err != nil {
				return err
			}

			st := ev.Alignment.Stats()
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "score=%g\n", ev.Score)
			fmt.Fprintf(w, "rmse=%.4fV max=%.4fV bias=%+.4fV\n", st.RMSE, st.MaxAbs, st.Bias)
			fmt.Fprintf(w, "simulated samples=%d observed samples=%d\n", ev.Simulated.Len(), prep.Run.Len())
			return nil
		},
	}
	tf.register(cmd)
	cf.register(cmd, 0, 0, 0)
	_ = cmd.MarkFlagRequired("qmax")
	_ = cmd.MarkFlagRequired("ro")
	return cmd
}
