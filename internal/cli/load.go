package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/fedq/internal/ir"
	"github.com/roach88/fedq/internal/member"
	"github.com/roach88/fedq/internal/store"
)

// LoadOptions holds flags for the load command.
type LoadOptions struct {
	*RootOptions
	Graph string
}

// LoadResult is the JSON payload of the load command.
type LoadResult struct {
	Member   string `json:"member"`
	Inserted int    `json:"inserted"`
	Total    int64  `json:"total"`
	Graphs   int64  `json:"graphs"`
}

// NewLoadCommand creates the load command.
func NewLoadCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LoadOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "load <member> <file>...",
		Short: "Load N-Triples into a local member",
		Long: `Load N-Triples or N-Quads files into the store of a local member.
Triples already present are skipped. Use - to read from stdin.

Examples:
  fedq load local people.nt
  fedq load local --graph urn:g:import - < dump.nq`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(opts, args[0], args[1:], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Graph, "graph", "", "load every triple into this named graph")

	return cmd
}

func runLoad(opts *LoadOptions, id string, files []string, cmd *cobra.Command) error {
	formatter := formatterFor(opts.RootOptions, cmd)

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return reportError(formatter, ErrCodeUsage, asExitError(err))
	}
	m, ok := cfg.Member(id)
	if !ok {
		return reportError(formatter, ErrCodeUsage, NewExitError(ExitCommandError, fmt.Sprintf("unknown member %q", id)))
	}
	if m.Kind != member.KindLocal {
		return reportError(formatter, ErrCodeUsage, NewExitError(ExitCommandError, fmt.Sprintf("member %s is %s, only local members can be loaded", id, m.Kind)))
	}
	var graph ir.Term
	if opts.Graph != "" {
		graph = ir.IRI(opts.Graph)
	}

	st, err := store.Open(cfg.StorePath(m))
	if err != nil {
		return reportError(formatter, ErrCodeUsage, WrapExitError(ExitCommandError, "failed to open store", err))
	}
	defer st.Close()

	ctx := cmd.Context()
	inserted := 0
	for _, file := range files {
		n, err := loadFile(cmd, st, file, graph)
		if err != nil {
			return reportError(formatter, ErrCodeQuery, WrapExitError(ExitFailure, fmt.Sprintf("failed to load %s", file), err))
		}
		formatter.VerboseLog("%s: %d triples inserted", file, n)
		inserted += n
	}
	sum, err := st.Summarize(ctx)
	if err != nil {
		return reportError(formatter, ErrCodeQuery, WrapExitError(ExitFailure, "failed to count triples", err))
	}

	if opts.Format == "json" {
		return formatter.Success(LoadResult{Member: id, Inserted: inserted, Total: sum.Triples, Graphs: sum.Graphs})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d triples inserted, %d total\n", id, inserted, sum.Triples)
	return nil
}

func loadFile(cmd *cobra.Command, st *store.Store, file string, graph ir.Term) (int, error) {
	var r io.Reader = cmd.InOrStdin()
	if file != "-" {
		f, err := os.Open(file)
		if err != nil {
			return 0, err
		}
		defer f.Close()
		r = f
	}
	return st.LoadNTriples(cmd.Context(), r, file, graph)
}
