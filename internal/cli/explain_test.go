package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExplain(t *testing.T) {
	dir := setupFederation(t)

	out, err := execute(t, "--config", dir, "explain", joinQuery)
	require.NoError(t, err)
	assert.Contains(t, out, "Root")
	assert.Contains(t, out, "Owned mirror")
}

func TestExplain_Raw(t *testing.T) {
	dir := setupFederation(t)

	out, err := execute(t, "--config", dir, "explain", "--raw", joinQuery)
	require.NoError(t, err)
	assert.Contains(t, out, "Service")
	assert.NotContains(t, out, "Owned")
}

func TestExplain_JSON(t *testing.T) {
	dir := setupFederation(t)

	out, err := execute(t, "--config", dir, "--format", "json", "explain", joinQuery)
	require.NoError(t, err)

	var resp struct {
		Status string        `json:"status"`
		Data   ExplainResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Contains(t, resp.Data.Plan, "Owned mirror")
}

func TestRender(t *testing.T) {
	dir := setupFederation(t)

	out, err := execute(t, "--config", dir, "render", joinQuery)
	require.NoError(t, err)
	assert.Contains(t, out, "# mirror\n")
	assert.Contains(t, out, "SELECT")
	assert.Contains(t, out, "<urn:age>")
}

func TestRender_MemberFilter(t *testing.T) {
	dir := setupFederation(t)

	out, err := execute(t, "--config", dir, "--format", "json", "render", "--member", "other", joinQuery)
	require.NoError(t, err)

	var resp struct {
		Data []RenderedQuery `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Empty(t, resp.Data)
}

func TestRender_NothingOwned(t *testing.T) {
	dir := setupFederation(t)

	out, err := execute(t, "--config", dir, "render", "--member", "mirror", "SELECT ?n WHERE { ?p <urn:name> ?n }")
	require.NoError(t, err)
	assert.Contains(t, out, "No subtree is owned")
}
