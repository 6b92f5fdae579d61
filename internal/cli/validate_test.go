package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/relq/internal/store"
	"github.com/roach88/relq/internal/testutil"
)

func TestValidateModel(t *testing.T) {
	out, err := execute(t, "validate", shopModel)
	require.NoError(t, err)

	assert.Contains(t, out, "✓ Model valid: 3 entit(ies)")
	assert.Contains(t, out, "Customer (Customers): 6 propert(ies), 1 navigation(s)")
	assert.NotContains(t, out, "CREATE TABLE")
}

func TestValidateModelFlag(t *testing.T) {
	out, err := execute(t, "validate", "-m", shopModel, "--ddl")
	require.NoError(t, err)
	assert.Contains(t, out, "CREATE TABLE \"Items\" (\n    \"Id\" INTEGER NOT NULL,")
}

func TestValidateJSON(t *testing.T) {
	out, err := execute(t, "validate", shopModel, "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	require.Len(t, resp.Data.Entities, 3)

	want, err := store.ModelHash(testutil.ShopModel())
	require.NoError(t, err)
	assert.Equal(t, want, resp.Data.Hash)
}

func TestValidateInvalidModel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.cue")
	require.NoError(t, os.WriteFile(path, []byte(`entity: Person: {key: ["Id"], properties: Id: {kind: "float128"}}`), 0644))

	out, err := execute(t, "validate", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error ["+ErrCodeModel+"]")
}

func TestValidateNoModel(t *testing.T) {
	out, err := execute(t, "validate")
	require.Error(t, err)
	assert.Contains(t, out, "--model is required")
}
