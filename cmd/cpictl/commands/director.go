package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDirectorCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "director",
		Short: "Show the director identity sent to CPIs",
		Long: `Show the director name and the UUID sent in every request context.

When the config does not pin a UUID, one is generated on first start and kept
in the journal database.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close(cmd.Context())

			out := struct {
				Name       string   `json:"name"`
				UUID       string   `json:"uuid"`
				DefaultCPI string   `json:"default_cpi"`
				CPIs       []string `json:"cpis"`
			}{
				Name:       a.cfg.Director.Name,
				UUID:       a.identity.DirectorUUID(),
				DefaultCPI: a.registry.DefaultName(),
				CPIs:       a.registry.Names(),
			}

			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), out)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Name:        %s\n", out.Name)
			fmt.Fprintf(w, "UUID:        %s\n", out.UUID)
			fmt.Fprintf(w, "Default CPI: %s\n", out.DefaultCPI)
			fmt.Fprintf(w, "CPIs:        %v\n", out.CPIs)
			return nil
		},
	}

	return cmd
}
