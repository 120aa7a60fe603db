package cli

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fedq/internal/ir"
	"github.com/roach88/fedq/internal/store"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "federation.cue"), []byte(testFederation), 0o644))
	file := filepath.Join(dir, "people.nt")
	require.NoError(t, os.WriteFile(file, []byte(localData), 0o644))

	out, err := execute(t, "--config", dir, "load", "local", file)
	require.NoError(t, err)
	assert.Equal(t, "local: 3 triples inserted, 3 total\n", out)

	out, err = execute(t, "--config", dir, "--format", "json", "load", "local", file)
	require.NoError(t, err)
	var resp struct {
		Data LoadResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, LoadResult{Member: "local", Inserted: 0, Total: 3}, resp.Data, "reloading inserts nothing")

	out, err = execute(t, "--config", dir, "query", "SELECT ?n WHERE { <urn:bob> <urn:name> ?n }")
	require.NoError(t, err)
	assert.Contains(t, out, `"Bob"`)
}

func TestLoad_Stdin(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "federation.cue"), []byte(testFederation), 0o644))

	cmd := NewRootCommand()
	out := &strings.Builder{}
	cmd.SetOut(out)
	cmd.SetIn(strings.NewReader(mirrorData))
	cmd.SetArgs([]string{"--config", dir, "load", "mirror", "--graph", "urn:g:ages", "-"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "2 triples inserted")

	st, err := store.Open(filepath.Join(dir, "mirror.db"))
	require.NoError(t, err)
	defer st.Close()
	graphs, err := st.Graphs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []ir.Term{ir.IRI("urn:g:ages")}, graphs)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	src := `federation: members: {
	local: {kind: "local", path: "local.db"}
	wiki: {kind: "sparql", endpoint: "http://wiki.example.org/sparql"}
}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "federation.cue"), []byte(src), 0o644))
	bad := filepath.Join(dir, "bad.nt")
	require.NoError(t, os.WriteFile(bad, []byte("<urn:a> <urn:b>\n"), 0o644))

	tests := []struct {
		name string
		args []string
		code int
		want string
	}{
		{"unknown member", []string{"load", "nope", bad}, ExitCommandError, `unknown member "nope"`},
		{"remote member", []string{"load", "wiki", bad}, ExitCommandError, "only local members"},
		{"missing file", []string{"load", "local", filepath.Join(dir, "missing.nt")}, ExitFailure, "missing.nt"},
		{"bad syntax", []string{"load", "local", bad}, ExitFailure, "bad.nt: line 1"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out, err := execute(t, append([]string{"--config", dir}, tc.args...)...)
			require.Error(t, err)
			assert.Equal(t, tc.code, GetExitCode(err))
			assert.Contains(t, out, tc.want)
		})
	}
}
