package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	dir := setupFederation(t)

	out, err := execute(t, "--config", dir, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "✓")
	assert.Contains(t, out, "2 members")
	assert.Contains(t, out, "(default)")
	assert.Contains(t, out, "urn:m:mirror")
}

func TestValidate_JSON(t *testing.T) {
	dir := setupFederation(t)

	out, err := execute(t, "--config", dir, "--format", "json", "validate")
	require.NoError(t, err)

	var resp struct {
		Status string         `json:"status"`
		Data   ValidateResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, []MemberSummary{
		{ID: "local", Kind: "local", Ref: "local", Default: true},
		{ID: "mirror", Kind: "local", Ref: "urn:m:mirror"},
	}, resp.Data.Members)
}

func TestValidate_Open(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "federation.cue"), []byte(testFederation), 0o644))

	_, err := execute(t, "--config", dir, "validate", "--open")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "local.db"))
	assert.FileExists(t, filepath.Join(dir, "mirror.db"))
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []string
	}{
		{
			name: "missing path",
			src:  "federation: {\n\tmembers: x: {kind: \"local\"}\n}\n",
			want: []string{"E102", "federation.cue:2:"},
		},
		{
			name: "unknown default",
			src:  `federation: {default: "y", members: x: {kind: "local", path: "x.db"}}`,
			want: []string{"E104"},
		},
		{
			name: "no federation block",
			src:  `members: {}`,
			want: []string{"E101"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(dir, "federation.cue"), []byte(tc.src), 0o644))

			out, err := execute(t, "--config", dir, "validate")
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			for _, want := range tc.want {
				assert.Contains(t, out, want)
			}
		})
	}
}

func TestValidate_NoFiles(t *testing.T) {
	out, err := execute(t, "--config", t.TempDir(), "--format", "json", "validate")
	require.Error(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E003", resp.Error.Code)
}
