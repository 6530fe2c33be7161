// Package commands implements the opa-eval command line.
package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/meigma/opaclient"
	"github.com/meigma/opaclient/internal/cli"
)

// Execute runs the root command with the process streams.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd := NewRootCmd()
	cmd.SetIn(os.Stdin)
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)
	return cmd.ExecuteContext(ctx)
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "opa-eval",
		Short: "Evaluate policies on an Open Policy Agent server",
		Long: `opa-eval evaluates policies through the OPA REST API.

Configuration is read from flags and OPA_* environment variables,
for example OPA_SERVER_URL.

Examples:
  opa-eval eval authz/allow --input '{"user": "alice"}'
  opa-eval default --input-file request.yaml
  opa-eval batch authz/allow --inputs-file inputs.json --fallback --format table`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cli.RegisterFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(
		newEvalCmd(),
		newDefaultCmd(),
		newBatchCmd(),
	)
	return rootCmd
}

// env is the state shared by subcommands.
type env struct {
	cfg    *cli.Config
	client *opaclient.Client
}

func setup(cmd *cobra.Command) (*env, error) {
	v, err := cli.NewViper(cmd.Flags())
	if err != nil {
		return nil, err
	}
	cfg, err := cli.Load(v)
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	client, err := cfg.NewClient(cfg.Logger(cmd.ErrOrStderr()))
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	return &env{cfg: cfg, client: client}, nil
}

// inputFlags are the flags selecting a single input document.
type inputFlags struct {
	input     string
	inputFile string
}

func (f *inputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.input, "input", "i", "", "Input document (JSON or YAML)")
	cmd.Flags().StringVarP(&f.inputFile, "input-file", "f", "", `File holding the input document ("-" for stdin)`)
	cmd.MarkFlagsMutuallyExclusive("input", "input-file")
}

// options returns WithInput when an input was given.
func (f *inputFlags) options(stdin io.Reader) ([]opaclient.RequestOption, error) {
	var (
		input any
		err   error
	)
	switch {
	case f.inputFile != "":
		input, err = cli.ReadInput(f.inputFile, stdin)
	case f.input != "":
		input, err = cli.ParseInput([]byte(f.input))
	default:
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []opaclient.RequestOption{opaclient.WithInput(input)}, nil
}

func printResult(cmd *cobra.Command, e *env, res opaclient.Result) error {
	return cli.PrintResult(cmd.OutOrStdout(), res, e.cfg.Format)
}
