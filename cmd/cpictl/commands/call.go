package commands

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/externalcpi/pkg/cpi"
	"github.com/openfroyo/externalcpi/pkg/telemetry"
)

func newCallCommand() *cobra.Command {
	var (
		argsFile  string
		requestID string
	)

	cmd := &cobra.Command{
		Use:   "call <method> [arguments]",
		Short: "Invoke one CPI method",
		Long: `Invoke a CPI method and print its result.

Arguments are a JSON array of positional parameters. They are checked against
the method's declaration before the CPI process is started. Use "cpictl methods"
to list the declarations.

A CPI error is printed with its type, message and retry flag and makes the
command exit non-zero.`,
		Example: `  # Ping the default CPI
  cpictl call ping

  # Create a disk of 1 GiB on a named CPI
  cpictl --cpi aws call create_disk '[1024, null]'

  # Read arguments from a file
  cpictl call create_vm --args-file create_vm.json`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			method := args[0]

			var raw []byte
			switch {
			case len(args) == 2 && argsFile != "":
				return errors.New("pass arguments inline or with --args-file, not both")
			case len(args) == 2:
				raw = []byte(args[1])
			case argsFile == "-":
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("failed to read arguments: %w", err)
				}
				raw = data
			case argsFile != "":
				data, err := os.ReadFile(argsFile)
				if err != nil {
					return fmt.Errorf("failed to read arguments: %w", err)
				}
				raw = data
			}

			callArgs, err := parseArguments(raw)
			if err != nil {
				return err
			}

			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close(cmd.Context())

			client, err := a.registry.Get(cpiName)
			if err != nil {
				return err
			}

			ctx := a.telemetry.WithContext(cmd.Context())
			if requestID != "" {
				ctx = cpi.WithRequestID(ctx, requestID)
			}
			op := telemetry.StartOperation(ctx, "call")

			log.Debug().
				Str("cpi", client.Name()).
				Str("method", method).
				Str("request_id", op.RequestID).
				Msg("Calling cpi")

			result, err := client.Call(op.Ctx, method, callArgs...)
			op.End(err)
			if err != nil {
				printCallError(cmd.OutOrStdout(), err)
				return err
			}

			return printResult(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringVar(&argsFile, "args-file", "", "read the JSON arguments array from a file (- for stdin)")
	cmd.Flags().StringVar(&requestID, "request-id", "", "request id to send in the context block (default: generated)")

	return cmd
}

// parseArguments decodes a JSON array of positional arguments. Numbers are
// kept as json.Number so integers survive unchanged.
func parseArguments(raw []byte) ([]interface{}, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return []interface{}{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var args []interface{}
	if err := dec.Decode(&args); err != nil {
		return nil, fmt.Errorf("arguments must be a JSON array: %w", err)
	}
	if dec.More() {
		return nil, errors.New("arguments must be a single JSON array")
	}
	if args == nil {
		args = []interface{}{}
	}
	return args, nil
}

func printResult(w io.Writer, result json.RawMessage) error {
	if jsonOutput {
		return printJSON(w, map[string]json.RawMessage{"result": result})
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, result, "", "  "); err != nil {
		pretty.Reset()
		pretty.Write(result)
	}
	fmt.Fprintln(w, pretty.String())
	return nil
}

func printCallError(w io.Writer, err error) {
	var cpiErr *cpi.Error
	if !errors.As(err, &cpiErr) {
		return
	}

	if jsonOutput {
		_ = printJSON(w, map[string]interface{}{
			"error": map[string]interface{}{
				"kind":        cpiErr.Kind,
				"type":        cpiErr.Type,
				"message":     cpiErr.Message,
				"ok_to_retry": cpi.IsRetryable(cpiErr),
			},
		})
		return
	}

	fmt.Fprintf(w, "Kind:    %s\n", cpiErr.Kind)
	if cpiErr.Type != "" {
		fmt.Fprintf(w, "Type:    %s\n", cpiErr.Type)
	}
	fmt.Fprintf(w, "Message: %s\n", cpiErr.Message)
	if cpiErr.CarriesRetryFlag() {
		fmt.Fprintf(w, "Retry:   %v\n", cpiErr.OkToRetry)
	}
}
