package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newEvalCmd() *cobra.Command {
	var flags inputFlags

	cmd := &cobra.Command{
		Use:   "eval <path>",
		Short: "Evaluate the policy at a path",
		Long: `Evaluate the document at a path, such as authz/allow.

Without an input the policy is queried with no input document.

Examples:
  opa-eval eval test/p_bool
  opa-eval eval authz/allow --input '{"user": "alice"}' --format yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			opts, err := flags.options(cmd.InOrStdin())
			if err != nil {
				return err
			}

			res, err := e.client.Evaluate(cmd.Context(), args[0], opts...)
			if err != nil {
				return fmt.Errorf("evaluate %s: %w", args[0], err)
			}
			return printResult(cmd, e, res)
		},
	}
	flags.register(cmd)
	return cmd
}

func newDefaultCmd() *cobra.Command {
	var flags inputFlags

	cmd := &cobra.Command{
		Use:   "default",
		Short: "Evaluate the server's default decision",
		Long: `Evaluate the default decision configured on the server.

Without an input an empty object is sent.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			opts, err := flags.options(cmd.InOrStdin())
			if err != nil {
				return err
			}

			res, err := e.client.EvaluateDefault(cmd.Context(), opts...)
			if err != nil {
				return fmt.Errorf("evaluate default decision: %w", err)
			}
			return printResult(cmd, e, res)
		},
	}
	flags.register(cmd)
	return cmd
}
