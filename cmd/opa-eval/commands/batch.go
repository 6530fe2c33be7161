package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/meigma/opaclient"
	"github.com/meigma/opaclient/internal/cli"
)

func newBatchCmd() *cobra.Command {
	var (
		inputsFile   string
		fallback     bool
		rejectErrors bool
	)

	cmd := &cobra.Command{
		Use:   "batch <path>",
		Short: "Evaluate the policy at a path for many inputs",
		Long: `Evaluate the document at a path once per keyed input.

The inputs file holds an object mapping keys to input documents.
Failed keys are reported next to successful ones unless --reject-errors
is set.

Examples:
  opa-eval batch authz/allow --inputs-file inputs.yaml
  opa-eval batch authz/allow --inputs-file - --fallback < inputs.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			inputs, err := cli.ReadInputs(inputsFile, cmd.InOrStdin())
			if err != nil {
				return err
			}

			res, err := e.client.EvaluateBatch(cmd.Context(), args[0], inputs,
				opaclient.WithFallback(fallback),
				opaclient.WithRejectErrors(rejectErrors),
			)
			if err != nil {
				if opaclient.IsBatchUnsupported(err) && !fallback {
					return fmt.Errorf("evaluate batch %s: %w (retry with --fallback)", args[0], err)
				}
				return fmt.Errorf("evaluate batch %s: %w", args[0], err)
			}
			return cli.PrintBatch(cmd.OutOrStdout(), res, e.cfg.Format)
		},
	}
	cmd.Flags().StringVar(&inputsFile, "inputs-file", "", `File holding the keyed inputs ("-" for stdin)`)
	cmd.Flags().BoolVar(&fallback, "fallback", false, "Evaluate inputs one by one if the server lacks the batch endpoint")
	cmd.Flags().BoolVar(&rejectErrors, "reject-errors", false, "Fail if any input fails")
	_ = cmd.MarkFlagRequired("inputs-file")
	return cmd
}
