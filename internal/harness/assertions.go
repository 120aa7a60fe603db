package harness

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/fedq/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
	// Solutions produced by the query, for context.
	Solutions []ir.BindingSet
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Solutions) > 0 {
		fmt.Fprintf(&buf, "\nSolutions:\n")
		for i, bs := range e.Solutions {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, bs)
		}
	}

	return buf.String()
}

// checkExpectation compares the run against the scenario's expectation.
func checkExpectation(expect Expectation, result *Result, solutions []ir.BindingSet) []string {
	if expect.Error != "" {
		if !strings.Contains(result.QueryError, expect.Error) {
			return []string{(&AssertionError{
				Type:      "error",
				Expected:  fmt.Sprintf("query error containing %q", expect.Error),
				Actual:    describeError(result.QueryError),
				Solutions: solutions,
			}).Error()}
		}
		return nil
	}
	if result.QueryError != "" {
		return []string{fmt.Sprintf("query failed: %s", result.QueryError)}
	}

	var errs []string
	if expect.Ask != nil {
		if result.Ask == nil || *result.Ask != *expect.Ask {
			errs = append(errs, (&AssertionError{
				Type:     "ask",
				Expected: fmt.Sprintf("%t", *expect.Ask),
				Actual:   describeAsk(result.Ask),
			}).Error())
		}
		return errs
	}

	if expect.Vars != nil && !slices.Equal(expect.Vars, result.Vars) {
		errs = append(errs, (&AssertionError{
			Type:     "vars",
			Expected: fmt.Sprintf("%v", expect.Vars),
			Actual:   fmt.Sprintf("%v", result.Vars),
		}).Error())
	}

	want, err := rowBindings(expect.Rows)
	if err != nil {
		return append(errs, err.Error())
	}
	if err := compareSolutions(want, solutions, expect.Ordered); err != nil {
		errs = append(errs, err.Error())
	}
	return errs
}

// compareSolutions reports whether got equals want, as a sequence when
// ordered and as a multiset otherwise.
func compareSolutions(want, got []ir.BindingSet, ordered bool) error {
	mismatch := func(actual string) error {
		return &AssertionError{
			Type:      "rows",
			Expected:  fmt.Sprintf("%d solutions %s", len(want), describeRows(want)),
			Actual:    actual,
			Solutions: got,
		}
	}

	if len(want) != len(got) {
		return mismatch(fmt.Sprintf("%d solutions", len(got)))
	}
	if ordered {
		for i := range want {
			if ir.BindingHash(want[i]) != ir.BindingHash(got[i]) {
				return mismatch(fmt.Sprintf("solution %d is %s", i+1, got[i]))
			}
		}
		return nil
	}

	remaining := make(map[string]int, len(want))
	for _, bs := range want {
		remaining[ir.BindingHash(bs)]++
	}
	for _, bs := range got {
		h := ir.BindingHash(bs)
		if remaining[h] == 0 {
			return mismatch(fmt.Sprintf("unexpected solution %s", bs))
		}
		remaining[h]--
	}
	return nil
}

// EvaluateAssertions evaluates all assertions against a run.
// Returns a list of error messages for failed assertions.
func EvaluateAssertions(result *Result, solutions []ir.BindingSet, assertions []Assertion) []string {
	var errs []string
	for i, assertion := range assertions {
		if err := evaluateAssertion(result, solutions, assertion); err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d (%s): %v", i, assertion.Type, err))
		}
	}
	return errs
}

// evaluateAssertion dispatches to the appropriate assertion function.
func evaluateAssertion(result *Result, solutions []ir.BindingSet, assertion Assertion) error {
	switch assertion.Type {
	case AssertRowCount:
		return assertRowCount(solutions, assertion)
	case AssertContainsRow:
		return assertContainsRow(solutions, assertion)
	case AssertDispatchCount:
		return assertDispatchCount(result, assertion)
	case AssertPlanContains:
		return assertPlanContains(result, assertion)
	default:
		return fmt.Errorf("unknown assertion type: %s", assertion.Type)
	}
}

func assertRowCount(solutions []ir.BindingSet, assertion Assertion) error {
	if len(solutions) != assertion.Count {
		return &AssertionError{
			Type:      AssertRowCount,
			Expected:  fmt.Sprintf("%d solutions", assertion.Count),
			Actual:    fmt.Sprintf("%d solutions", len(solutions)),
			Solutions: solutions,
		}
	}
	return nil
}

// assertContainsRow checks that some solution binds every value of the
// assertion's row (subset match).
func assertContainsRow(solutions []ir.BindingSet, assertion Assertion) error {
	want, err := rowBindings([]Row{assertion.Row})
	if err != nil {
		return err
	}
	for _, bs := range solutions {
		if bs.Project(want[0].Names()).Equal(want[0]) {
			return nil
		}
	}
	return &AssertionError{
		Type:      AssertContainsRow,
		Expected:  fmt.Sprintf("a solution binding %s", want[0]),
		Actual:    "not found",
		Solutions: solutions,
	}
}

func assertDispatchCount(result *Result, assertion Assertion) error {
	if n := result.Dispatches[assertion.Member]; n != assertion.Count {
		return &AssertionError{
			Type:     AssertDispatchCount,
			Expected: fmt.Sprintf("%d requests to %s", assertion.Count, assertion.Member),
			Actual:   fmt.Sprintf("%d requests", n),
		}
	}
	return nil
}

func assertPlanContains(result *Result, assertion Assertion) error {
	if !strings.Contains(result.Plan, assertion.Text) {
		return &AssertionError{
			Type:     AssertPlanContains,
			Expected: fmt.Sprintf("plan containing %q", assertion.Text),
			Actual:   result.Plan,
		}
	}
	return nil
}

// rowBindings parses rows written in N-Triples syntax.
func rowBindings(rows []Row) ([]ir.BindingSet, error) {
	out := make([]ir.BindingSet, 0, len(rows))
	for i, row := range rows {
		var pairs []ir.Binding
		for _, name := range slices.Sorted(maps.Keys(row)) {
			term, err := ir.ParseTerm(row[name])
			if err != nil {
				return nil, fmt.Errorf("row %d: %s: %w", i, name, err)
			}
			pairs = append(pairs, ir.B(name, term))
		}
		out = append(out, ir.NewBindingSet(pairs...))
	}
	return out, nil
}

func describeRows(rows []ir.BindingSet) string {
	parts := make([]string, len(rows))
	for i, bs := range rows {
		parts[i] = bs.String()
	}
	return strings.Join(parts, " ")
}

func describeError(msg string) string {
	if msg == "" {
		return "query succeeded"
	}
	return msg
}

func describeAsk(answer *bool) string {
	if answer == nil {
		return "no ASK answer"
	}
	return fmt.Sprintf("%t", *answer)
}
