// Package main implements the dummy-cpi binary.
// It reads one CPI request from stdin, writes one response to stdout and
// keeps its state in files, so consecutive invocations see each other's
// objects.
package main

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/openfroyo/externalcpi/pkg/cpi"
	"github.com/openfroyo/externalcpi/pkg/cpi/protocol"
	"github.com/openfroyo/externalcpi/pkg/dummy"
)

// Version information (set via ldflags during build)
var Version = "dev"

func main() {
	// Diagnostics go to stderr; stdout carries only the response.
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	cmd := newRootCommand(logger)
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		logger.Error().Err(err).Msg("dummy cpi failed")
		os.Exit(1)
	}
}

func newRootCommand(logger zerolog.Logger) *cobra.Command {
	var (
		baseDir     string
		logLevel    string
		currentVMID string
		maxDiskMiB  int64
	)

	cmd := &cobra.Command{
		Use:           "dummy-cpi",
		Short:         "File-backed reference CPI",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			level, err := zerolog.ParseLevel(logLevel)
			if err != nil {
				level = zerolog.InfoLevel
			}

			server, err := dummy.New(dummy.Options{
				BaseDir:        baseDir,
				Logger:         logger.Level(level),
				CurrentVMID:    currentVMID,
				MaxDiskSizeMiB: maxDiskMiB,
			})
			if err != nil {
				logger.Error().Err(err).Msg("Failed to open state")
				resp := protocol.NewErrorResponse(cpi.TypeCpiError, err.Error(), false, "")
				return protocol.EncodeResponse(os.Stdout, resp)
			}

			return server.Serve(cmd.Context(), os.Stdin, os.Stdout)
		},
	}

	cmd.Flags().StringVar(&baseDir, "base-dir", dummy.DefaultBaseDir(), "directory holding the dummy cloud state")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&currentVMID, "current-vm-id", dummy.DefaultCurrentVMID, "CID reported by current_vm_id")
	cmd.Flags().Int64Var(&maxDiskMiB, "max-disk-size", dummy.DefaultMaxDiskSizeMiB, "largest disk in MiB before NoDiskSpace is raised")

	return cmd
}
