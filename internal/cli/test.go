package cli

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/fedq/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Filter string
	Golden string
	Update bool
}

// TestResult is the JSON payload of the test command.
type TestResult struct {
	Total     int               `json:"total"`
	Passed    int               `json:"passed"`
	Failed    int               `json:"failed"`
	Scenarios []ScenarioOutcome `json:"scenarios"`
}

// ScenarioOutcome is the outcome of one scenario.
type ScenarioOutcome struct {
	Name   string   `json:"name"`
	Path   string   `json:"path"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios>",
		Short: "Run YAML federation scenarios",
		Long: `Run scenario files against in-memory members and check their
expectations and assertions. The argument is a scenario file or a
directory searched recursively for .yaml and .yml files.

With --golden, each scenario's output is also compared with
<golden>/<name>.golden; --update rewrites those files instead.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (path not found, invalid flags)

Examples:
  fedq test testdata/scenarios
  fedq test testdata/scenarios --filter 'bound_*'
  fedq test testdata/scenarios --golden testdata/golden --update`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTest(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "only run scenarios whose name matches this glob")
	cmd.Flags().StringVar(&opts.Golden, "golden", "", "directory of golden files to compare against")
	cmd.Flags().BoolVar(&opts.Update, "update", false, "rewrite golden files instead of comparing")

	return cmd
}

func runTest(opts *TestOptions, path string, cmd *cobra.Command) error {
	formatter := formatterFor(opts.RootOptions, cmd)

	if opts.Filter != "" {
		if _, err := filepath.Match(opts.Filter, ""); err != nil {
			return reportError(formatter, ErrCodeUsage, WrapExitError(ExitCommandError, "invalid --filter", err))
		}
	}
	if opts.Update && opts.Golden == "" {
		return reportError(formatter, ErrCodeUsage, NewExitError(ExitCommandError, "--update requires --golden"))
	}

	paths, err := harness.Discover(path)
	if err != nil {
		return reportError(formatter, ErrCodeUsage, WrapExitError(ExitCommandError, "failed to find scenarios", err))
	}

	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())
	result := TestResult{Scenarios: []ScenarioOutcome{}}
	for _, p := range paths {
		scenario, err := harness.LoadScenario(p)
		if err != nil {
			result.add(ScenarioOutcome{Name: filepath.Base(p), Path: p, Errors: []string{err.Error()}})
			continue
		}
		if opts.Filter != "" {
			if ok, _ := filepath.Match(opts.Filter, scenario.Name); !ok {
				continue
			}
		}
		result.add(runScenario(cmd, opts, p, scenario, logger))
	}

	if opts.Format == "json" {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		writeTestReport(cmd, result)
	}
	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenarios failed", result.Failed, result.Total))
	}
	return nil
}

func runScenario(cmd *cobra.Command, opts *TestOptions, path string, scenario *harness.Scenario, logger *slog.Logger) ScenarioOutcome {
	outcome := ScenarioOutcome{Name: scenario.Name, Path: path}
	res, err := harness.Run(cmd.Context(), scenario, harness.WithLogger(logger))
	if err != nil {
		outcome.Errors = []string{err.Error()}
		return outcome
	}
	outcome.Errors = res.Errors
	if opts.Golden != "" {
		if err := checkGolden(opts, scenario, res); err != nil {
			outcome.Errors = append(outcome.Errors, err.Error())
		}
	}
	outcome.Pass = len(outcome.Errors) == 0
	return outcome
}

// checkGolden compares the run's snapshot with its golden file, or
// rewrites the file when updating. A missing golden file is not a
// failure.
func checkGolden(opts *TestOptions, scenario *harness.Scenario, res *harness.Result) error {
	file := filepath.Join(opts.Golden, scenario.Name+".golden")
	got := harness.Snapshot(scenario, res)
	if opts.Update {
		if err := os.MkdirAll(opts.Golden, 0o755); err != nil {
			return err
		}
		return os.WriteFile(file, got, 0o644)
	}
	want, err := os.ReadFile(file)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if !bytes.Equal(want, got) {
		return fmt.Errorf("output differs from %s:\n%s", file, got)
	}
	return nil
}

func (r *TestResult) add(o ScenarioOutcome) {
	r.Total++
	if o.Pass {
		r.Passed++
	} else {
		r.Failed++
	}
	r.Scenarios = append(r.Scenarios, o)
}

func writeTestReport(cmd *cobra.Command, result TestResult) {
	w := cmd.OutOrStdout()
	for _, o := range result.Scenarios {
		if o.Pass {
			fmt.Fprintf(w, "✓ %s\n", o.Name)
			continue
		}
		fmt.Fprintf(w, "✗ %s (%s)\n", o.Name, o.Path)
		for _, msg := range o.Errors {
			fmt.Fprintf(w, "    %s\n", msg)
		}
	}
	fmt.Fprintf(w, "\n%d scenarios: %d passed, %d failed\n", result.Total, result.Passed, result.Failed)
}
