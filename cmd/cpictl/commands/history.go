package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/openfroyo/externalcpi/pkg/stores"
)

func newHistoryCommand() *cobra.Command {
	var (
		method    string
		outcome   string
		requestID string
		since     time.Duration
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show journaled CPI calls",
		Long: `Show CPI calls recorded in the journal, newest first.

Outcomes are ok, cpi_error, protocol_error, invalid_arguments and failed.`,
		Example: `  # Last 20 calls
  cpictl history --limit 20

  # Failed create_vm calls of the last hour on one CPI
  cpictl --cpi aws history --method create_vm --outcome cpi_error --since 1h

  # Everything sent for one director task
  cpictl history --request-id 4b5c...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close(cmd.Context())

			store, err := a.requireStore()
			if err != nil {
				return err
			}

			filter := stores.CallFilter{
				CPI:       cpiName,
				Method:    method,
				RequestID: requestID,
				Outcome:   outcome,
				Limit:     limit,
			}
			if since > 0 {
				filter.Since = time.Now().Add(-since)
			}

			entries, err := store.ListCalls(cmd.Context(), filter)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), entries)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "STARTED\tCPI\tMETHOD\tDURATION\tEXIT\tOUTCOME\tERROR")
			for _, e := range entries {
				errText := e.ErrorMessage
				if e.ErrorType != "" {
					errText = e.ErrorType + ": " + errText
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
					e.StartedAt.Local().Format(time.RFC3339),
					e.CPI,
					e.Method,
					e.Duration.Round(time.Millisecond),
					e.ExitStatus,
					e.Outcome,
					errText,
				)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&method, "method", "", "only calls of this method")
	cmd.Flags().StringVar(&outcome, "outcome", "", "only calls with this outcome")
	cmd.Flags().StringVar(&requestID, "request-id", "", "only calls with this request id")
	cmd.Flags().DurationVar(&since, "since", 0, "only calls started within this duration")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of calls to show")

	return cmd
}
