package harness

import "fmt"

// Result is the outcome of a scenario.
type Result struct {
	Scenario string       `json:"scenario"`
	Pass     bool         `json:"pass"`
	Cases    []CaseResult `json:"cases"`
}

// NewResult creates a passing result with no cases.
func NewResult(scenario string) *Result {
	return &Result{Scenario: scenario, Pass: true, Cases: []CaseResult{}}
}

// CaseResult is the outcome of one case.
type CaseResult struct {
	Name string `json:"name"`
	Pass bool   `json:"pass"`

	// SQL is the compiled command text, empty when compilation failed.
	SQL string `json:"sql,omitempty"`

	// Rows are the rows read, when the case expected rows.
	Rows [][]any `json:"rows,omitempty"`

	// Error and Code describe a compilation failure.
	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`

	// Failures explains every unmet expectation.
	Failures []string `json:"failures,omitempty"`
}

func (c *CaseResult) fail(format string, args ...any) {
	c.Failures = append(c.Failures, fmt.Sprintf(format, args...))
	c.Pass = false
}
