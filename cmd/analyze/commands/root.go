// Package commands implements the analyze CLI: one-shot property analyses,
// portal downloads and local OCR comparisons without running the API.
package commands

import (
	"os"

	"github.com/spf13/cobra"

	"property-analyzer/cmd/analyze/ui"
	"property-analyzer/internal/shared/config"
	"property-analyzer/internal/shared/telemetry"
)

var (
	verbose bool
	noColor bool
	cfg     config.Config
	out     *ui.UI
)

var rootCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Property document analyzer",
	Long: `Downloads recorded documents for a subdivision query from the county portal,
runs every OCR backend on each PDF, keeps the best-scoring text and writes an
analysis report.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.Load()
		level := cfg.LogLevel
		if verbose {
			level = "debug"
		}
		telemetry.Configure(os.Stderr, level)
		out = ui.New(cmd.ErrOrStderr(), noColor)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
