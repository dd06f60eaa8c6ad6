package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/externalcpi/pkg/config"
	"github.com/openfroyo/externalcpi/pkg/cpi"
)

func newValidateCommand() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "validate [path]",
		Short: "Validate the config file",
		Long: `Validate the cpictl config file.

This command checks:
  - YAML syntax and unknown keys
  - Required fields, CPI name uniqueness and the director UUID format
  - That default_cpi names a configured CPI

With --strict every exec_path must also be an executable file.`,
		Example: `  # Validate the default config file
  cpictl validate

  # Validate a specific file, checking executables too
  cpictl validate --strict /var/vcap/jobs/director/config/cpictl.yml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath
			if len(args) > 0 {
				path = args[0]
			}

			log.Debug().Str("path", path).Bool("strict", strict).Msg("Validating configuration")

			cfg, err := config.Load(path)
			if err != nil {
				return err
			}

			if strict {
				for _, c := range cfg.CPIs {
					if err := cpi.CheckExecutable(c.ExecPath); err != nil {
						return fmt.Errorf("cpi %s: %w", c.Name, err)
					}
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s is valid: %d cpi(s), default %s\n", path, len(cfg.CPIs), cfg.DefaultCPI)
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "also check that every exec_path is executable")

	return cmd
}
