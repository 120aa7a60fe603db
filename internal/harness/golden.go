package harness

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Snapshot renders the observable outcome of a run as stable text:
// the result variables, then one solution per line in canonical binding
// form. Solutions are sorted unless the scenario fixes their order.
func Snapshot(scenario *Scenario, result *Result) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario: %s\n", scenario.Name)

	switch {
	case result.QueryError != "":
		fmt.Fprintf(&b, "error: %s\n", result.QueryError)
		return []byte(b.String())
	case result.Ask != nil:
		fmt.Fprintf(&b, "ask: %t\n", *result.Ask)
		return []byte(b.String())
	}

	fmt.Fprintf(&b, "vars: %s\n", strings.Join(result.Vars, " "))
	lines := make([]string, len(result.Rows))
	for i, row := range result.Rows {
		lines[i] = formatRow(row)
	}
	if !scenario.Expect.Ordered {
		slices.Sort(lines)
	}
	fmt.Fprintf(&b, "rows: %d\n", len(lines))
	for _, line := range lines {
		fmt.Fprintf(&b, "  %s\n", line)
	}
	return []byte(b.String())
}

// formatRow writes row like ir.BindingSet.String.
func formatRow(row Row) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, name := range slices.Sorted(maps.Keys(row)) {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(row[name])
	}
	b.WriteByte(']')
	return b.String()
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails. Test failure (via goldie)
// occurs if the snapshot doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	AssertGolden(t, scenario, result)
	return result, nil
}

// AssertGolden compares an existing result against the scenario's golden
// file without re-running it.
func AssertGolden(t *testing.T, scenario *Scenario, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, Snapshot(scenario, result))
}
