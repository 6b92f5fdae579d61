package harness

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const peopleCUE = `
entity: Person: {
	table: "People"
	key: ["Id"]
	properties: {
		Id:   {kind: "int64"}
		Name: {kind: "string", nullable: true}
		Age:  {kind: "int64"}
	}
}
`

func peopleScenario(t *testing.T, cases string) *Scenario {
	t.Helper()
	s, err := ParseScenario([]byte(`
name: people
description: inline model
model: |
  entity: Person: {
  	table: "People"
  	key: ["Id"]
  	properties: {
  		Id:   {kind: "int64"}
  		Name: {kind: "string", nullable: true}
  		Age:  {kind: "int64"}
  	}
  }
seed:
  Person:
    - {Id: 1, Name: Ann, Age: 30}
    - {Id: 2, Name: Bo, Age: 12}
    - {Id: 3, Age: 40}
` + cases))
	require.NoError(t, err)
	return s
}

func TestRun_InlineModel(t *testing.T) {
	s := peopleScenario(t, `
cases:
  - name: adults
    query:
      from: Person
      ops:
        - [Where, ["=>", p, [">=", p.Age, 18]]]
        - [Select, ["=>", p, p.Name]]
    expect:
      rows: [[null], [Ann]]
  - name: oldest first
    query:
      from: Person
      ops:
        - [OrderByDescending, ["=>", p, p.Age]]
        - [Select, ["=>", p, p.Id]]
    expect:
      rows: [[3], [1], [2]]
      ordered: true
  - name: named
    query:
      from: Person
      params: {name: string}
      ops:
        - [Where, ["=>", p, ["!=", p.Name, $name]]]
        - [Select, ["=>", p, p.Id]]
    params: {name: Bo}
    expect:
      rows: [[1], [3]]
`)

	result, err := Run(context.Background(), s, Options{})
	require.NoError(t, err)
	require.True(t, result.Pass, Format(result))
	require.Len(t, result.Cases, 3)

	assert.Contains(t, result.Cases[0].SQL, `FROM "People" AS "p"`)
	assert.Len(t, result.Cases[1].Rows, 3)
}

func TestRun_ReportsFailures(t *testing.T) {
	s := peopleScenario(t, `
cases:
  - name: wrong sql
    query: {from: Person, ops: [[Select, ["=>", p, p.Id]]]}
    expect:
      sql: SELECT 1
  - name: wrong rows
    query: {from: Person, ops: [[Select, ["=>", p, p.Id]]]}
    expect:
      rows: [[1], [2]]
  - name: wrong order
    query:
      from: Person
      ops:
        - [OrderBy, ["=>", p, p.Id]]
        - [Select, ["=>", p, p.Id]]
    expect:
      rows: [[3], [2], [1]]
      ordered: true
  - name: error expected
    query: {from: Person}
    expect:
      error: NOT_SUPPORTED
  - name: wrong error
    query: {from: Person, ops: [[Where, ["=>", p, p.Nope]]]}
    expect:
      error: NOT_SUPPORTED
  - name: wrong cacheability
    query: {from: Person}
    expect:
      cacheable: false
`)

	result, err := Run(context.Background(), s, Options{})
	require.NoError(t, err)
	assert.False(t, result.Pass)

	byName := make(map[string]CaseResult, len(result.Cases))
	for _, c := range result.Cases {
		assert.False(t, c.Pass, c.Name)
		require.NotEmpty(t, c.Failures, c.Name)
		byName[c.Name] = c
	}

	assert.Contains(t, byName["wrong sql"].Failures[0], "--- expected")
	assert.Contains(t, byName["wrong sql"].Failures[0], "-SELECT 1")
	assert.Contains(t, byName["wrong rows"].Failures[0], "2 expected, 3 read")
	assert.Contains(t, byName["wrong rows"].Failures[0], "+[3]")
	assert.Contains(t, byName["wrong order"].Failures[0], "rows differ")
	assert.Contains(t, byName["error expected"].Failures[0], `expected error "NOT_SUPPORTED"`)
	assert.Equal(t, "UNKNOWN_MEMBER", byName["wrong error"].Code)
	assert.Contains(t, byName["wrong cacheability"].Failures[0], "cacheable = true")

	report := Format(result)
	assert.Contains(t, report, "FAIL people/wrong sql\n")
	assert.NotContains(t, report, "ok  ")
}

func TestRun_BadSeed(t *testing.T) {
	s := peopleScenario(t, `
cases:
  - {name: all, query: {from: Person}, expect: {cacheable: true}}
`)
	s.Seed["Pet"] = []map[string]any{{"Id": 1}}

	_, err := Run(context.Background(), s, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown entities [Pet]")
}

func TestRunWithGolden_Scenarios(t *testing.T) {
	scenarios, err := LoadDir("testdata/scenarios")
	require.NoError(t, err)
	for _, s := range scenarios {
		t.Run(s.Name, func(t *testing.T) {
			RunWithGolden(t, s)
		})
	}
}

func TestSnapshot(t *testing.T) {
	r := NewResult("x")
	r.Cases = []CaseResult{
		{Name: "a", SQL: "SELECT 1"},
		{Name: "b", Error: "boom", Code: "NOT_SUPPORTED"},
		{Name: "c", Error: "params: bad"},
	}
	want := "-- a\nSELECT 1\n\n-- b\n-- error: NOT_SUPPORTED\n\n-- c\n-- error: params: bad\n"
	assert.Equal(t, want, string(Snapshot(r)))
}

func TestRenderValue(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"null", nil, "null"},
		{"true", true, "1"},
		{"false", false, "0"},
		{"int", 3, "3"},
		{"int64", int64(-4), "-4"},
		{"uint64", uint64(18446744073709551615), "18446744073709551615"},
		{"integral float", 3.0, "3"},
		{"fraction", 2.5, "2.5"},
		{"string", "Ann", `"Ann"`},
		{"bytes", []byte{0x0a, 0xff}, "x'0aff'"},
		{"time", time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC), `"2024-01-02 10:00:00"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, renderValue(tt.in))
		})
	}
}
