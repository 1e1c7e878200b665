package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/smukkama/tsa/internal/logger"
	"github.com/smukkama/tsa/pkg/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "tsa",
	Short: "Evaluate boolean conditions over sensor time series",
	Long: `tsa evaluates collections of conditions over station sensor
observations and reports, per condition, when it was true, false or unknown.

Examples:
  tsa validate -f conditions.yaml
  tsa run -f conditions.yaml -o results.json
  tsa migrate --dir migrations
  tsa import -f observations.csv`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if err := logger.Init(cfg.Log.Level, cfg.Log.Development); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
}

func init() {
	rootCmd.AddCommand(runCmd, validateCmd, migrateCmd, importCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
