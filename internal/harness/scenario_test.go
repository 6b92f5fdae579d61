package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/relq/internal/queryir"
)

const minimalCase = `
cases:
  - name: all
    query: {from: Person}
    expect:
      rows: []
`

func TestLoadScenario_ResolvesSchema(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "people.cue"), []byte(peopleCUE), 0644))
	path := filepath.Join(dir, "people.yaml")
	content := "name: people\ndescription: schema next to the scenario\nschema: people.cue\n" + minimalCase
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	s, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "people", s.Name)
	assert.Equal(t, filepath.Join(dir, "people.cue"), s.Schema)
	require.Len(t, s.Cases, 1)
	assert.NotNil(t, s.Cases[0].Query.Query)
}

func TestLoadScenario_MissingSchema(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.yaml")
	content := "name: broken\ndescription: no schema file\nschema: nowhere.cue\n" + minimalCase
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema not found")
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_Params(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: params
description: declared parameters
model: "entity: Person: {key: [\"Id\"], properties: Id: {kind: \"int64\"}}"
cases:
  - name: by ids
    query:
      from: Person
      params:
        ids: {kind: array, element: int64}
      ops:
        - [Where, ["=>", p, [.Contains, $ids, p.Id]]]
    params: {ids: [1, 2]}
    expect:
      cacheable: true
`))
	require.NoError(t, err)

	c := s.Cases[0]
	assert.Equal(t, queryir.KindArray, c.Query.Params["ids"].Kind)
	assert.Equal(t, queryir.KindInt64, c.Query.Params["ids"].Elem)
	assert.Equal(t, []any{1, 2}, c.Params["ids"])
	require.NotNil(t, c.Expect.Cacheable)
	assert.True(t, *c.Expect.Cacheable)
}

func TestParseScenario_Invalid(t *testing.T) {
	const header = "name: x\ndescription: y\nmodel: \"entity: Person: {}\"\n"

	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"missing name", "description: y\nmodel: m\n" + minimalCase, "name is required"},
		{"missing description", "name: x\nmodel: m\n" + minimalCase, "description is required"},
		{"no model", "name: x\ndescription: y\n" + minimalCase, "exactly one of schema and model"},
		{"both models", "name: x\ndescription: y\nmodel: m\nschema: s.cue\n" + minimalCase, "exactly one of schema and model"},
		{"no cases", header + "cases: []\n", "cases list is required"},
		{"unknown field", header + "extra: 1\n" + minimalCase, "field extra not found"},
		{
			"duplicate case",
			header + `
cases:
  - {name: a, query: {from: Person}, expect: {rows: []}}
  - {name: a, query: {from: Person}, expect: {rows: []}}
`,
			`duplicate name "a"`,
		},
		{
			"no expectation",
			header + `
cases:
  - {name: a, query: {from: Person}, expect: {}}
`,
			"expect needs at least one of",
		},
		{
			"error with rows",
			header + `
cases:
  - {name: a, query: {from: Person}, expect: {error: NOT_SUPPORTED, rows: []}}
`,
			"expect.error excludes sql and rows",
		},
		{
			"undeclared parameter value",
			header + `
cases:
  - {name: a, query: {from: Person}, params: {id: 1}, expect: {rows: []}}
`,
			`"id" is not declared`,
		},
		{
			"undeclared parameter in query",
			header + `
cases:
  - name: a
    query:
      from: Person
      ops: [[Where, ["=>", p, ["==", p.Id, $id]]]]
    expect: {rows: []}
`,
			"undeclared parameter $id",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadDir(t *testing.T) {
	scenarios, err := LoadDir("testdata/scenarios")
	require.NoError(t, err)
	require.NotEmpty(t, scenarios)
	for _, s := range scenarios {
		assert.NotEmpty(t, s.Cases, s.Name)
		assert.True(t, fileExists(s.Schema), s.Schema)
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
