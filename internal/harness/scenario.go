package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/relq/internal/query"
)

// Scenario is a set of queries checked against one model and data set.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario checks.
	Description string `yaml:"description"`

	// Schema is a CUE file or directory holding the entity model, relative
	// to the scenario file. Model holds it inline instead.
	Schema string `yaml:"schema,omitempty"`
	Model  string `yaml:"model,omitempty"`

	// RelationalNulls compiles every case without null compensation.
	RelationalNulls bool `yaml:"relational_nulls,omitempty"`

	// Seed lists rows per entity name, inserted before any case runs.
	Seed map[string][]map[string]any `yaml:"seed,omitempty"`

	Cases []Case `yaml:"cases"`
}

// Case is one query with its parameter values and expectations.
type Case struct {
	Name   string         `yaml:"name"`
	Query  query.Document `yaml:"query"`
	Params map[string]any `yaml:"params,omitempty"`
	Expect Expect         `yaml:"expect"`
}

// Expect lists what a case must produce. Unset fields are not checked.
type Expect struct {
	// SQL is the exact command text. Surrounding whitespace is ignored.
	SQL string `yaml:"sql,omitempty"`

	// Rows are the expected result rows. Unless Ordered is set they are
	// compared as a multiset.
	Rows    [][]any `yaml:"rows,omitempty"`
	Ordered bool    `yaml:"ordered,omitempty"`

	// Error is the expected error code (UNTRANSLATABLE, NOT_SUPPORTED,
	// UNKNOWN_MEMBER, INVALID_QUERY) or a substring of the message.
	Error string `yaml:"error,omitempty"`

	// Cacheable, when set, is the expected cacheability of the command.
	Cacheable *bool `yaml:"cacheable,omitempty"`
}

// LoadScenario reads a scenario file. Unknown fields are rejected and the
// schema path is resolved relative to the file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	s, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if s.Schema != "" && !filepath.IsAbs(s.Schema) {
		s.Schema = filepath.Join(filepath.Dir(path), s.Schema)
	}
	if s.Schema != "" {
		if _, err := os.Stat(s.Schema); err != nil {
			return nil, fmt.Errorf("%s: schema not found: %s", path, s.Schema)
		}
	}
	return s, nil
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

// LoadDir loads every *.yaml scenario in dir, sorted by file name.
func LoadDir(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	out := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if (s.Schema == "") == (s.Model == "") {
		return fmt.Errorf("exactly one of schema and model is required")
	}
	if len(s.Cases) == 0 {
		return fmt.Errorf("cases list is required and must be non-empty")
	}

	seen := make(map[string]bool, len(s.Cases))
	for i, c := range s.Cases {
		if c.Name == "" {
			return fmt.Errorf("cases[%d]: name is required", i)
		}
		if seen[c.Name] {
			return fmt.Errorf("cases[%d]: duplicate name %q", i, c.Name)
		}
		seen[c.Name] = true
		if c.Query.Query == nil {
			return fmt.Errorf("cases[%d]: query is required", i)
		}
		e := c.Expect
		if e.SQL == "" && e.Rows == nil && e.Error == "" && e.Cacheable == nil {
			return fmt.Errorf("cases[%d]: expect needs at least one of sql, rows, error, cacheable", i)
		}
		if e.Error != "" && (e.SQL != "" || e.Rows != nil) {
			return fmt.Errorf("cases[%d]: expect.error excludes sql and rows", i)
		}
		for name := range c.Params {
			if _, ok := c.Query.Params[name]; !ok {
				return fmt.Errorf("cases[%d]: params: %q is not declared by the query", i, name)
			}
		}
	}
	return nil
}
