package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSnapshot(t *testing.T) {
	s := &Scenario{Name: "snap"}
	result := &Result{
		Vars: []string{"s", "x"},
		Rows: []Row{
			{"s": "<urn:s2>", "x": `"b"`},
			{"s": "<urn:s1>", "x": `"a"`},
		},
	}

	assert.Equal(t, "scenario: snap\nvars: s x\nrows: 2\n"+
		"  [s=<urn:s1>;x=\"a\"]\n"+
		"  [s=<urn:s2>;x=\"b\"]\n", string(Snapshot(s, result)), "unordered rows are sorted")

	s.Expect.Ordered = true
	assert.Equal(t, "scenario: snap\nvars: s x\nrows: 2\n"+
		"  [s=<urn:s2>;x=\"b\"]\n"+
		"  [s=<urn:s1>;x=\"a\"]\n", string(Snapshot(s, result)))
}

func TestSnapshot_AskAndError(t *testing.T) {
	yes := true
	s := &Scenario{Name: "snap"}

	assert.Equal(t, "scenario: snap\nask: true\n", string(Snapshot(s, &Result{Ask: &yes})))
	assert.Equal(t, "scenario: snap\nerror: boom\n", string(Snapshot(s, &Result{QueryError: "boom"})))
}

func TestFormatRow(t *testing.T) {
	assert.Equal(t, "[]", formatRow(Row{}))
	assert.Equal(t, `[a=<urn:x>;b="1"]`, formatRow(Row{"b": `"1"`, "a": "<urn:x>"}))
}
