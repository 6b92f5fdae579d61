package harness

import (
	"context"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Snapshot renders the compiled SQL of every case in case order. Failed
// compilations show their error code, or the message when there is none. It is the content of a scenario's golden file.
func Snapshot(r *Result) []byte {
	var b strings.Builder
	for i, c := range r.Cases {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("-- " + c.Name + "\n")
		switch {
		case c.SQL != "":
			b.WriteString(c.SQL + "\n")
		case c.Code != "":
			b.WriteString("-- error: " + c.Code + "\n")
		default:
			b.WriteString("-- error: " + c.Error + "\n")
		}
	}
	return []byte(b.String())
}

// RunWithGolden runs a scenario, fails t for failed cases and compares the
// generated SQL against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, s *Scenario) *Result {
	t.Helper()

	result, err := Run(context.Background(), s, Options{})
	if err != nil {
		t.Fatalf("scenario %s: %v", s.Name, err)
	}
	if !result.Pass {
		t.Errorf("scenario %s failed:\n%s", s.Name, Format(result))
	}
	AssertGolden(t, s.Name, result)
	return result
}

// AssertGolden compares the snapshot of an existing result against its
// golden file.
func AssertGolden(t *testing.T, name string, r *Result) {
	t.Helper()
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, Snapshot(r))
}
