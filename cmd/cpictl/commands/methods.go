package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/openfroyo/externalcpi/pkg/cpi"
)

func newMethodsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "methods",
		Short: "List the CPI methods and their parameters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			specs := cpi.Methods()

			if jsonOutput {
				type param struct {
					Name     string `json:"name"`
					Type     string `json:"type"`
					Nullable bool   `json:"nullable"`
				}
				type method struct {
					Name   string  `json:"name"`
					Params []param `json:"params"`
				}
				out := make([]method, 0, len(specs))
				for _, s := range specs {
					m := method{Name: s.Name, Params: []param{}}
					for _, p := range s.Params {
						m.Params = append(m.Params, param{Name: p.Name, Type: string(p.Type), Nullable: p.Nullable})
					}
					out = append(out, m)
				}
				return printJSON(cmd.OutOrStdout(), out)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "METHOD\tPARAMETERS")
			for _, s := range specs {
				params := make([]string, 0, len(s.Params))
				for _, p := range s.Params {
					typ := string(p.Type)
					if p.Nullable {
						typ += "?"
					}
					params = append(params, p.Name+":"+typ)
				}
				fmt.Fprintf(tw, "%s\t%s\n", s.Name, strings.Join(params, ", "))
			}
			return tw.Flush()
		},
	}

	return cmd
}

func newErrorsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "errors",
		Short: "List the CPI error types the director understands",
		Long: `List the wire error types and the kind each one maps to.

Types outside this list are reported as unknown errors. Only kinds marked
retryable expose the CPI's ok_to_retry flag.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries := cpi.DefaultErrorRegistry().Entries()

			if jsonOutput {
				type entry struct {
					Type      string `json:"type"`
					Kind      string `json:"kind"`
					Retryable bool   `json:"carries_retry_flag"`
				}
				out := make([]entry, 0, len(entries))
				for _, e := range entries {
					out = append(out, entry{Type: e.Type, Kind: string(e.Kind), Retryable: e.CarriesRetryFlag})
				}
				return printJSON(cmd.OutOrStdout(), out)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TYPE\tKIND\tRETRY FLAG")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%v\n", e.Type, e.Kind, e.CarriesRetryFlag)
			}
			return tw.Flush()
		},
	}

	return cmd
}
