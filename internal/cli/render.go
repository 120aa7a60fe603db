package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/fedq/internal/algebra"
	"github.com/roach88/fedq/internal/member"
	"github.com/roach88/fedq/internal/render"
)

// RenderOptions holds flags for the render command.
type RenderOptions struct {
	*RootOptions
	File   string
	Member string
}

// RenderedQuery is the text one member receives for an owned subtree.
type RenderedQuery struct {
	Member string `json:"member"`
	Query  string `json:"query,omitempty"`
	// Local is set when the member takes no query text and the engine
	// evaluates the subtree itself.
	Local bool   `json:"local,omitempty"`
	Error string `json:"error,omitempty"`
}

// NewRenderCommand creates the render command.
func NewRenderCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RenderOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "render [sparql]",
		Short: "Print the query text sent to each member",
		Long: `Optimize a query and print, for every owned subtree, the SPARQL text
its member receives before any bound-join VALUES block is added.

Examples:
  fedq render --file q.rq
  fedq render --member wiki --file q.rq`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "read the query from a file (- for stdin)")
	cmd.Flags().StringVar(&opts.Member, "member", "", "only show subtrees owned by this member")

	return cmd
}

func runRender(opts *RenderOptions, args []string, cmd *cobra.Command) error {
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
	if err := sess.fed.Optimize(root); err != nil {
		return reportError(formatter, ErrCodeQuery, WrapExitError(ExitFailure, "optimization failed", err))
	}

	queries := renderOwned(sess.fed.Members(), root, opts.Member)

	if opts.Format == "json" {
		return formatter.Success(queries)
	}
	w := cmd.OutOrStdout()
	if len(queries) == 0 {
		fmt.Fprintln(w, "No subtree is owned by a single member.")
		return nil
	}
	for i, q := range queries {
		if i > 0 {
			fmt.Fprintln(w)
		}
		switch {
		case q.Error != "":
			fmt.Fprintf(w, "# %s: not renderable, evaluated locally: %s\n", q.Member, q.Error)
		case q.Local:
			fmt.Fprintf(w, "# %s: evaluated locally\n", q.Member)
		default:
			fmt.Fprintf(w, "# %s\n%s\n", q.Member, q.Query)
		}
	}
	return nil
}

// renderOwned renders every outermost Owned node of root, in tree order.
func renderOwned(members *member.Registry, root *algebra.Root, only string) []RenderedQuery {
	var out []RenderedQuery
	algebra.Inspect(root, func(n algebra.Node) bool {
		o, ok := n.(*algebra.Owned)
		if !ok {
			return true
		}
		if only != "" && o.Member != only {
			return false
		}
		q := RenderedQuery{Member: o.Member}
		if h, err := members.Resolve(o.Member); err == nil && h.Kind != member.KindSPARQL {
			q.Local = true
		} else if q.Query, err = render.NewSPARQLRenderer(o.Member).Render(o.Arg); err != nil {
			q.Error = err.Error()
		}
		out = append(out, q)
		return false
	})
	return out
}
