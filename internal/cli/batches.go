package cli

import (
	"fmt"

	"battery-estimator/internal/model"

	"github.com/spf13/cobra"
)

func newBatchesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "batches",
		Short: "List the registered working conditions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%-8s %-8s %-6s %-12s\n", "batch", "mid_soc", "dod", "soc_window")
			for _, b := range model.Batches() {
				wc, err := model.LookupWorkingCondition(b)
				if err != nil {
					return err
				}
				lo, hi := wc.SOCWindow()
				fmt.Fprintf(w, "%-8s %-8.2f %-6.2f %.2f-%.2f\n", b, wc.MidSOC, wc.DOD, lo, hi)
			}
			return nil
		},
	}
}
