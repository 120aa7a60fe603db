package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/fedq/internal/store"
)

const testFederation = `federation: {
	default: "local"
	members: {
		local: {kind: "local", path: "local.db"}
		mirror: {kind: "local", path: "mirror.db", queryable: true, ref: "urn:m:mirror"}
	}
}
`

const localData = `<urn:alice> <urn:name> "Alice" .
<urn:bob> <urn:name> "Bob" .
<urn:alice> <urn:knows> <urn:bob> .
`

const mirrorData = `<urn:alice> <urn:age> "42" .
<urn:bob> <urn:age> "37" .
`

// setupFederation writes the test configuration to a temp directory,
// fills its stores and returns the directory.
func setupFederation(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "federation.cue"), []byte(testFederation), 0o644))
	fill(t, filepath.Join(dir, "local.db"), localData)
	fill(t, filepath.Join(dir, "mirror.db"), mirrorData)
	return dir
}

func fill(t *testing.T, path, data string) {
	t.Helper()
	st, err := store.Open(path)
	require.NoError(t, err)
	defer st.Close()
	_, err = st.LoadNTriples(context.Background(), strings.NewReader(data), filepath.Base(path), nil)
	require.NoError(t, err)
}

// execute runs the root command with args and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}
