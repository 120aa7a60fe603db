package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/roach88/fedq/internal/algebra"
	"github.com/roach88/fedq/internal/engine"
	"github.com/roach88/fedq/internal/federation"
	"github.com/roach88/fedq/internal/ir"
	"github.com/roach88/fedq/internal/member/sparqlhttp"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	File    string
	Bind    []string
	Graph   string
	Timeout time.Duration
	Metrics bool
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query [sparql]",
		Short: "Run a query across the federation",
		Long: `Run a SPARQL SELECT or ASK query across the configured federation.

Text output is a tab-separated table with one column per result
variable; JSON output carries SPARQL JSON results and the query id.
With --metrics the engine counters of the run are written to stderr in
the Prometheus text format.

Exit codes:
  0 - Query succeeded
  1 - Query failed during evaluation
  2 - Command error (configuration, syntax, bindings)

Examples:
  fedq query 'SELECT ?s WHERE { ?s a <urn:Person> }'
  fedq query --file q.rq --bind 's=<urn:alice>'
  fedq query --config ./federation --format json --file -`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "read the query from a file (- for stdin)")
	cmd.Flags().StringArrayVar(&opts.Bind, "bind", nil, "initial binding name=term (repeatable)")
	cmd.Flags().StringVar(&opts.Graph, "graph", "", "restrict the default graph to this IRI")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "cancel the query after this duration (0 = none)")
	cmd.Flags().BoolVar(&opts.Metrics, "metrics", false, "write engine metrics to stderr after the query")

	return cmd
}

func runQuery(opts *QueryOptions, args []string, cmd *cobra.Command) error {
	formatter := formatterFor(opts.RootOptions, cmd)

	text, err := readQuery(args, opts.File, cmd.InOrStdin())
	if err != nil {
		return reportError(formatter, ErrCodeUsage, asExitError(err))
	}
	bindings, err := parseBindings(opts.Bind)
	if err != nil {
		return reportError(formatter, ErrCodeUsage, asExitError(err))
	}
	var ds engine.Dataset
	if opts.Graph != "" {
		ds.DefaultGraph = ir.IRI(opts.Graph)
	}

	var fedOpts []federation.Option
	if opts.Metrics {
		reg := prometheus.NewRegistry()
		fedOpts = append(fedOpts, federation.WithRegisterer(reg))
		defer func() {
			if err := writeMetrics(cmd.ErrOrStderr(), reg); err != nil {
				formatter.VerboseLog("metrics: %v", err)
			}
		}()
	}

	sess, err := openSession(opts.RootOptions, cmd, fedOpts...)
	if err != nil {
		return reportError(formatter, ErrCodeUsage, asExitError(err))
	}
	defer sess.Close()

	root, err := sess.fed.Parse(text)
	if err != nil {
		exitErr, code := queryError(err)
		return reportError(formatter, code, exitErr)
	}

	ctx, stop := queryContext(cmd, opts.Timeout)
	defer stop()

	res, err := sess.fed.Query(ctx, root, bindings, ds)
	if err != nil {
		exitErr, code := queryError(err)
		return reportError(formatter, code, exitErr)
	}
	rows, err := ir.Collect(ctx, res)
	if err != nil {
		exitErr, code := queryError(err)
		return reportError(formatter, code, exitErr)
	}
	formatter.VerboseLog("query %s: %d rows", res.ID, len(rows))

	if opts.Format == "json" {
		results := sparqlhttp.NewSelectResults(res.Vars, rows)
		if res.Form == algebra.FormAsk {
			results = sparqlhttp.NewAskResults(len(rows) > 0)
		}
		return formatter.QueryResult(res.ID, results)
	}

	if res.Form == algebra.FormAsk {
		fmt.Fprintln(cmd.OutOrStdout(), len(rows) > 0)
		return nil
	}
	return formatter.Table(res.Vars, rows)
}

// writeMetrics writes every family gathered from g in the text exposition
// format.
func writeMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

// queryContext derives the evaluation context: cancelled on interrupt
// and, when timeout is positive, after timeout.
func queryContext(cmd *cobra.Command, timeout time.Duration) (context.Context, func()) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stopSignals := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	if timeout <= 0 {
		return ctx, stopSignals
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stopSignals()
	}
}
