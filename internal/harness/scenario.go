package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/fedq/internal/ir"
	"github.com/roach88/fedq/internal/member"
)

// Scenario defines an end-to-end federation scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Default is the member plain triple patterns are evaluated against.
	// Defaults to the first member.
	Default string `yaml:"default,omitempty"`

	// BatchSize is the bound-join batch size. Zero keeps the engine
	// default.
	BatchSize int `yaml:"batch_size,omitempty"`

	// QueryID is the fixed query id logged for the run. Defaults to
	// "test-query-default".
	QueryID string `yaml:"query_id,omitempty"`

	// Members are registered in order.
	Members []MemberSpec `yaml:"members"`

	// Query is the SPARQL text to run.
	Query string `yaml:"query"`

	// Bindings are the initial bindings, variable name to N-Triples term.
	Bindings map[string]string `yaml:"bindings,omitempty"`

	// Expect is checked against the solutions.
	Expect Expectation `yaml:"expect"`

	// Assertions are additional checks on the run.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// MemberSpec declares one scenario member.
type MemberSpec struct {
	ID string `yaml:"id"`

	// Ref is the SERVICE IRI. Defaults to the id.
	Ref string `yaml:"ref,omitempty"`

	// Kind is "local" (triple source) or "sparql" (query text). Defaults
	// to "local".
	Kind string `yaml:"kind,omitempty"`

	// Data is the member's content in N-Triples or N-Quads.
	Data string `yaml:"data,omitempty"`

	// Refuse makes every connection attempt fail with this message.
	Refuse string `yaml:"refuse,omitempty"`
}

// Expectation describes the solutions a scenario must produce.
type Expectation struct {
	// Vars are the expected result variables, in order.
	Vars []string `yaml:"vars,omitempty"`

	// Rows are the expected solutions. Compared as a multiset unless
	// Ordered is set.
	Rows []Row `yaml:"rows,omitempty"`

	// Ordered requires the solutions in exactly the listed order.
	Ordered bool `yaml:"ordered,omitempty"`

	// Ask is the expected answer of an ASK query.
	Ask *bool `yaml:"ask,omitempty"`

	// Error, when set, expects the query to fail with an error containing
	// this text. Rows are not checked.
	Error string `yaml:"error,omitempty"`
}

// Assertion is an additional check on the run.
type Assertion struct {
	// Type specifies the assertion type:
	// - "row_count": exactly Count solutions
	// - "contains_row": some solution binds at least Row
	// - "dispatch_count": Member received exactly Count requests
	// - "plan_contains": the optimized tree contains Text
	Type string `yaml:"type"`

	// Count is used by row_count and dispatch_count.
	Count int `yaml:"count,omitempty"`

	// Member is the member id (used by dispatch_count).
	Member string `yaml:"member,omitempty"`

	// Row is the expected partial solution (used by contains_row).
	Row Row `yaml:"row,omitempty"`

	// Text is the expected plan fragment (used by plan_contains).
	Text string `yaml:"text,omitempty"`
}

// Assertion type constants.
const (
	AssertRowCount      = "row_count"
	AssertContainsRow   = "contains_row"
	AssertDispatchCount = "dispatch_count"
	AssertPlanContains  = "plan_contains"
)

// LoadScenario reads and validates a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Reject unknown fields so typos fail loudly.
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Query == "" {
		return fmt.Errorf("query is required")
	}

	if len(s.Members) == 0 {
		return fmt.Errorf("members list is required and must be non-empty")
	}

	if s.BatchSize < 0 {
		return fmt.Errorf("batch_size must be non-negative")
	}

	seen := make(map[string]bool)
	for i, m := range s.Members {
		if m.ID == "" {
			return fmt.Errorf("members[%d]: id is required", i)
		}
		if seen[m.ID] {
			return fmt.Errorf("members[%d]: duplicate id %q", i, m.ID)
		}
		seen[m.ID] = true
		switch member.Kind(m.Kind) {
		case "", member.KindLocal, member.KindSPARQL:
		default:
			return fmt.Errorf("members[%d]: unsupported kind %q", i, m.Kind)
		}
	}
	if s.Default != "" && !seen[s.Default] {
		return fmt.Errorf("default member %q is not declared", s.Default)
	}

	for name, text := range s.Bindings {
		if _, err := ir.ParseTerm(text); err != nil {
			return fmt.Errorf("bindings.%s: %w", name, err)
		}
	}

	if err := validateRows("expect.rows", s.Expect.Rows); err != nil {
		return err
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion, seen); err != nil {
			return err
		}
	}

	return nil
}

func validateRows(field string, rows []Row) error {
	for i, row := range rows {
		for name, text := range row {
			if _, err := ir.ParseTerm(text); err != nil {
				return fmt.Errorf("%s[%d].%s: %w", field, i, name, err)
			}
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, members map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertRowCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for row_count", index)
		}
	case AssertContainsRow:
		if len(a.Row) == 0 {
			return fmt.Errorf("assertions[%d]: row is required for contains_row", index)
		}
		return validateRows(fmt.Sprintf("assertions[%d].row", index), []Row{a.Row})
	case AssertDispatchCount:
		if !members[a.Member] {
			return fmt.Errorf("assertions[%d]: unknown member %q for dispatch_count", index, a.Member)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for dispatch_count", index)
		}
	case AssertPlanContains:
		if a.Text == "" {
			return fmt.Errorf("assertions[%d]: text is required for plan_contains", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
