// Package cli holds the cobra commands of the estimator binary.
package cli

import (
	"battery-estimator/internal/config"
	"battery-estimator/internal/logging"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// globals are the persistent flags shared by every subcommand.
type globals struct {
	configPath string
	logLevel   string
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:   "battery-estimator",
		Short: "Fit electrochemical battery parameters to measured discharges",
		Long: `Estimates the maximum charge (qMax), ohmic resistance (Ro) and its drift (wr)
of a battery from a constant-current discharge trace. Use 'estimate --help' for options.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", "", "YAML config file (built-in defaults when empty)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "override log_level from the config")

	root.AddCommand(
		newEstimateCommand(g),
		newSimulateCommand(g),
		newScoreCommand(g),
		newBatchesCommand(),
	)
	return root
}

// Execute runs the command tree against os.Args.
func Execute() error {
	return NewRootCommand().Execute()
}

// load reads the config named by --config and builds the logger it asks for.
// Log output goes to the command's error stream.
func (g *globals) load(cmd *cobra.Command) (*config.Config, *logrus.Logger, error) {
	cfg := config.Default()
	if g.configPath != "" {
		var err error
		if cfg, err = config.Load(g.configPath); err != nil {
			return nil, nil, err
		}
	}
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
	return cfg, logging.New(cmd.ErrOrStderr(), cfg.LogLevel, false), nil
}
