package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	runCmd, _, err := cmd.Find([]string{"run"})
	require.NoError(t, err)

	dbFlag := runCmd.Flags().Lookup("db")
	require.NotNil(t, dbFlag)
	// --db is required, so default is empty
	assert.Equal(t, "", dbFlag.DefValue)
}

func TestRunQuery(t *testing.T) {
	db := filepath.Join(t.TempDir(), "shop.db")
	byName := filepath.Join(queries, "by-name.yaml")

	out, err := execute(t, "run", "-m", shopModel, "--db", db, "--seed", filepath.Join("testdata", "seed.yaml"), byName, "-p", "name=Bob")
	require.NoError(t, err)
	assert.Contains(t, out, "Id\n3\n")
	assert.Contains(t, out, "(1 row(s))")

	// The database keeps its rows: later runs need no seed.
	out, err = execute(t, "run", "-m", shopModel, "--db", db, byName, "-p", "name=null", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string    `json:"status"`
		Data   RunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, []string{"Id"}, resp.Data.Columns)
	assert.Equal(t, [][]any{{2.0}}, resp.Data.Rows)
	assert.Contains(t, resp.Data.SQL, "IS NULL")
}

func TestRunInitIsIdempotent(t *testing.T) {
	db := filepath.Join(t.TempDir(), "shop.db")
	bad := filepath.Join(queries, "bad.yaml")

	for i := 0; i < 2; i++ {
		_, err := execute(t, "run", "-m", shopModel, "--db", db, "--init", bad)
		require.Error(t, err)
		// The schema is created before the query is rejected.
		assert.Equal(t, ExitFailure, GetExitCode(err))
	}
}

func TestRunErrors(t *testing.T) {
	byName := filepath.Join(queries, "by-name.yaml")

	t.Run("missing db flag", func(t *testing.T) {
		_, err := execute(t, "run", "-m", shopModel, byName, "-p", "name=Bob")
		require.Error(t, err)
		assert.Contains(t, err.Error(), `required flag(s) "db" not set`)
	})

	t.Run("no tables", func(t *testing.T) {
		db := filepath.Join(t.TempDir(), "empty.db")
		out, err := execute(t, "run", "-m", shopModel, "--db", db, byName, "-p", "name=Bob")
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
		assert.Contains(t, out, "no such table")
	})

	t.Run("malformed seed", func(t *testing.T) {
		db := filepath.Join(t.TempDir(), "shop.db")
		out, err := execute(t, "run", "-m", shopModel, "--db", db, "--seed", filepath.Join("testdata", "queries", "bad.yaml"), byName, "-p", "name=Bob")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, out, "Error ["+ErrCodeDecode+"]")
	})
}
