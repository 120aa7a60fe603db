package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/fedq/internal/algebra"
)

// ExplainOptions holds flags for the explain command.
type ExplainOptions struct {
	*RootOptions
	File string
	Raw  bool
}

// ExplainResult is the JSON payload of the explain command.
type ExplainResult struct {
	Plan string `json:"plan"`
}

// NewExplainCommand creates the explain command.
func NewExplainCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExplainOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "explain [sparql]",
		Short: "Print the optimized query tree",
		Long: `Parse and optimize a query against the configured members and print
the resulting tree. Owned nodes show which member each subtree is
dispatched to.

Examples:
  fedq explain --file q.rq
  fedq explain --raw 'SELECT * WHERE { ?s ?p ?o }'`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExplain(opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "read the query from a file (- for stdin)")
	cmd.Flags().BoolVar(&opts.Raw, "raw", false, "print the parsed tree without optimizing it")

	return cmd
}

func runExplain(opts *ExplainOptions, args []string, cmd *cobra.Command) error {
	formatter := formatterFor(opts.RootOptions, cmd)

	text, err := readQuery(args, opts.File, cmd.InOrStdin())
	if err != nil {
		return reportError(formatter, ErrCodeUsage, asExitError(err))
	}

	sess, err := openSession(opts.RootOptions, cmd)
	if err != nil {
		return reportError(formatter, ErrCodeUsage, asExitError(err))
	}
	defer sess.Close()

	root, err := sess.fed.Parse(text)
	if err != nil {
		exitErr, code := queryError(err)
		return reportError(formatter, code, exitErr)
	}

	var plan string
	if opts.Raw {
		plan = algebra.Format(root)
	} else if plan, err = sess.fed.Explain(root); err != nil {
		return reportError(formatter, ErrCodeQuery, WrapExitError(ExitFailure, "optimization failed", err))
	}

	if opts.Format == "json" {
		return formatter.Success(ExplainResult{Plan: plan})
	}
	fmt.Fprint(cmd.OutOrStdout(), plan)
	return nil
}
