package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/externalcpi/pkg/config"
)

const configTemplate = `# cpictl configuration

director:
  name: %s
  # uuid: pin the director uuid; generated and kept in the journal when unset

default_cpi: %s

cpis:
  - name: %s
    exec_path: %s

journal:
  enabled: true
  path: director.db
  retention: 720h

telemetry:
  logging:
    level: info
    format: console
  tracing:
    enabled: false
  metrics:
    enabled: true
    listen_address: ":9090"
    path: /metrics
`

func newInitCommand() *cobra.Command {
	var (
		directorName string
		name         string
		execPath     string
		force        bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file",
		Long: `Write a config file declaring a single CPI.

The file is validated after writing. Existing files are kept unless --force
is given.`,
		Example: `  # Config for the dummy CPI
  cpictl init --cpi-name dummy --exec-path /usr/local/bin/dummy-cpi

  # Custom location
  cpictl init -c /etc/cpictl.yml --cpi-name aws --exec-path /var/vcap/jobs/aws_cpi/bin/cpi`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !filepath.IsAbs(execPath) {
				return fmt.Errorf("--exec-path must be absolute, got %q", execPath)
			}

			if _, err := os.Stat(configPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}

			log.Info().
				Str("config", configPath).
				Str("cpi", name).
				Str("exec_path", execPath).
				Msg("Writing config")

			if dir := filepath.Dir(configPath); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("failed to create directory %s: %w", dir, err)
				}
			}

			content := fmt.Sprintf(configTemplate, directorName, name, name, execPath)
			if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}

			if _, err := config.Load(configPath); err != nil {
				return fmt.Errorf("written config does not validate: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Created config file: %s\n", configPath)
			fmt.Fprintf(cmd.OutOrStdout(), "Next: cpictl -c %s ping\n", configPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&directorName, "director-name", "bosh", "director name")
	cmd.Flags().StringVar(&name, "cpi-name", "default", "name of the CPI")
	cmd.Flags().StringVar(&execPath, "exec-path", "", "absolute path of the CPI executable")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	_ = cmd.MarkFlagRequired("exec-path")

	return cmd
}
