package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/openfroyo/externalcpi/pkg/providers"
)

func newPingCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Ping every configured CPI",
		Long: `Call ping on every configured CPI concurrently and report the answers.

The command fails when any CPI does not answer.`,
		Example: `  cpictl ping
  cpictl ping --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close(cmd.Context())

			results := a.registry.PingAll(a.telemetry.WithContext(cmd.Context()))
			if err := printPingResults(cmd, results, a.registry.DefaultName()); err != nil {
				return err
			}

			failed := 0
			for _, r := range results {
				if r.Err != nil {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d cpis failed to answer ping", failed, len(results))
			}
			return nil
		},
	}

	return cmd
}

func printPingResults(cmd *cobra.Command, results []providers.PingResult, defaultName string) error {
	if jsonOutput {
		type row struct {
			Name     string `json:"name"`
			Default  bool   `json:"default"`
			Response string `json:"response,omitempty"`
			Error    string `json:"error,omitempty"`
		}
		rows := make([]row, 0, len(results))
		for _, r := range results {
			out := row{Name: r.Name, Default: r.Name == defaultName, Response: r.Response}
			if r.Err != nil {
				out.Error = r.Err.Error()
			}
			rows = append(rows, out)
		}
		return printJSON(cmd.OutOrStdout(), rows)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CPI\tSTATUS\tRESPONSE")
	for _, r := range results {
		name := r.Name
		if name == defaultName {
			name += " (default)"
		}
		if r.Err != nil {
			fmt.Fprintf(tw, "%s\tfailed\t%v\n", name, r.Err)
			continue
		}
		fmt.Fprintf(tw, "%s\tok\t%s\n", name, r.Response)
	}
	return tw.Flush()
}
