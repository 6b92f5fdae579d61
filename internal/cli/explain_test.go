package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExplainText(t *testing.T) {
	out, err := execute(t, "explain", "-m", shopModel, filepath.Join(queries, "by-name.yaml"), "-p", "name=null", "--tree")
	require.NoError(t, err)

	for _, want := range []string{
		"Query: ",
		"Rows:  many\n",
		"== translate ==\n",
		"== infer ==\n",
		"== nulls ==\n",
		"queryir.Select",
		"== command (not cacheable) ==\n",
		`WHERE "c"."Name" IS NULL;`,
	} {
		assert.Contains(t, out, want)
	}
}

func TestExplainJSON(t *testing.T) {
	out, err := execute(t, "explain", "-m", shopModel, filepath.Join(queries, "by-name.yaml"), "-p", "name=Ann", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string        `json:"status"`
		Data   ExplainResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotEmpty(t, resp.Data.Key)
	assert.True(t, resp.Data.Cacheable)
	assert.Contains(t, resp.Data.SQL, `= @name`)

	names := make([]string, len(resp.Data.Stages))
	for i, st := range resp.Data.Stages {
		names[i] = st.Name
		assert.Empty(t, st.Tree, "trees are only dumped with --tree")
	}
	assert.Equal(t, []string{"translate", "infer", "nulls"}, names)
}

func TestExplainRejectedQuery(t *testing.T) {
	out, err := execute(t, "explain", "-m", shopModel, filepath.Join(queries, "bad.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ NOT_SUPPORTED:")
	assert.NotContains(t, out, "== command")
}

func TestExplainSingleDocument(t *testing.T) {
	out, err := execute(t, "explain", "-m", shopModel, filepath.Join(queries, "batch.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "explain takes a single query document, found 2")
}
