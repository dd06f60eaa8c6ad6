package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	cpiName    string
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cpictl",
		Short: "cpictl - drive external CPI executables",
		Long: `cpictl invokes Cloud Provider Interface executables the way the director does.

Every call writes one JSON request to the CPI's stdin with a sanitized
environment, reads one JSON response from its stdout and reports the result
or the typed CPI error.

Features:
  - Named CPIs from a YAML config file
  - Call journal and director UUID in SQLite
  - Prometheus metrics and OpenTelemetry traces per call
  - Config hot reload`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "cpictl.yml", "config file path")
	rootCmd.PersistentFlags().StringVar(&cpiName, "cpi", "", "CPI to use (default: the configured default_cpi)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newCallCommand())
	rootCmd.AddCommand(newPingCommand())
	rootCmd.AddCommand(newMethodsCommand())
	rootCmd.AddCommand(newErrorsCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newDirectorCommand())
	rootCmd.AddCommand(newServeCommand())

	return rootCmd
}
