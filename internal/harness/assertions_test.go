package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fedq/internal/ir"
)

func solutions(rows ...Row) []ir.BindingSet {
	out, err := rowBindings(rows)
	if err != nil {
		panic(err)
	}
	return out
}

func TestCompareSolutions(t *testing.T) {
	a := Row{"s": "<urn:s1>"}
	b := Row{"s": "<urn:s2>"}

	assert.NoError(t, compareSolutions(solutions(a, b), solutions(b, a), false), "multiset ignores order")
	assert.Error(t, compareSolutions(solutions(a, b), solutions(b, a), true))
	assert.NoError(t, compareSolutions(solutions(a, b), solutions(a, b), true))
	assert.Error(t, compareSolutions(solutions(a, a), solutions(a, b), false), "multiplicity counts")
	assert.Error(t, compareSolutions(solutions(a), solutions(a, a), false))
	assert.NoError(t, compareSolutions(nil, nil, false))
}

func TestCompareSolutions_LiteralForms(t *testing.T) {
	want := solutions(Row{"n": `"1"^^<http://www.w3.org/2001/XMLSchema#integer>`})
	got := []ir.BindingSet{ir.NewBindingSet(ir.B("n", ir.NewInteger(1)))}
	assert.NoError(t, compareSolutions(want, got, true))
}

func TestCheckExpectation(t *testing.T) {
	yes, no := true, false
	rows := solutions(Row{"s": "<urn:s1>"})

	tests := []struct {
		name      string
		expect    Expectation
		result    Result
		solutions []ir.BindingSet
		failures  int
	}{
		{
			name:      "rows match",
			expect:    Expectation{Vars: []string{"s"}, Rows: []Row{{"s": "<urn:s1>"}}},
			result:    Result{Vars: []string{"s"}},
			solutions: rows,
		},
		{
			name:      "vars differ",
			expect:    Expectation{Vars: []string{"o"}, Rows: []Row{{"s": "<urn:s1>"}}},
			result:    Result{Vars: []string{"s"}},
			solutions: rows,
			failures:  1,
		},
		{
			name:     "unexpected query error",
			expect:   Expectation{},
			result:   Result{QueryError: "boom"},
			failures: 1,
		},
		{
			name:   "expected query error",
			expect: Expectation{Error: "boom"},
			result: Result{QueryError: "member x: boom"},
		},
		{
			name:     "expected error missing",
			expect:   Expectation{Error: "boom"},
			failures: 1,
		},
		{
			name:   "ask matches",
			expect: Expectation{Ask: &yes},
			result: Result{Ask: &yes},
		},
		{
			name:     "ask differs",
			expect:   Expectation{Ask: &yes},
			result:   Result{Ask: &no},
			failures: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := checkExpectation(tt.expect, &tt.result, tt.solutions)
			assert.Len(t, errs, tt.failures, "%v", errs)
		})
	}
}

func TestEvaluateAssertions(t *testing.T) {
	rows := solutions(
		Row{"s": "<urn:s1>", "x": `"x1"`},
		Row{"s": "<urn:s2>", "x": `"x2"`},
	)
	result := &Result{
		Plan:       "Owned remote\n  Pattern ?o <urn:r> ?x\n",
		Dispatches: map[string]int{"remote": 2},
	}

	passing := []Assertion{
		{Type: AssertRowCount, Count: 2},
		{Type: AssertContainsRow, Row: Row{"x": `"x2"`}},
		{Type: AssertDispatchCount, Member: "remote", Count: 2},
		{Type: AssertDispatchCount, Member: "local", Count: 0},
		{Type: AssertPlanContains, Text: "Owned remote"},
	}
	assert.Empty(t, EvaluateAssertions(result, rows, passing))

	failing := []Assertion{
		{Type: AssertRowCount, Count: 3},
		{Type: AssertContainsRow, Row: Row{"x": `"x3"`}},
		{Type: AssertDispatchCount, Member: "remote", Count: 1},
		{Type: AssertPlanContains, Text: "Owned other"},
	}
	errs := EvaluateAssertions(result, rows, failing)
	require.Len(t, errs, 4)
	assert.Contains(t, errs[0], "assertion 0 (row_count)")
	assert.Contains(t, errs[1], "not found")
	assert.Contains(t, errs[2], "1 requests to remote")
	assert.Contains(t, errs[3], `plan containing "Owned other"`)
}

func TestAssertionError_ListsSolutions(t *testing.T) {
	err := &AssertionError{
		Type:      AssertRowCount,
		Expected:  "1 solutions",
		Actual:    "2 solutions",
		Solutions: solutions(Row{"s": "<urn:s1>"}, Row{"s": "<urn:s2>"}),
	}
	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: row_count")
	assert.Contains(t, msg, "[1] [s=<urn:s1>]")
	assert.Contains(t, msg, "[2] [s=<urn:s2>]")
}
