package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/roach88/relq/internal/compiler"
	"github.com/roach88/relq/internal/schema"
	"github.com/roach88/relq/internal/sqlite"
	"github.com/roach88/relq/internal/sqltranslate"
	"github.com/roach88/relq/internal/store"
)

// Options configures Run.
type Options struct {
	// Logger receives harness and pipeline events. Nil discards them.
	Logger *slog.Logger
}

// Run executes a scenario in a fresh in-memory database: the model's
// tables are created, the seed rows inserted, and every case compiled,
// checked and, when rows are expected, executed.
//
// An error is returned when the scenario itself cannot be set up. Case
// failures are reported in the Result.
func Run(ctx context.Context, s *Scenario, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	logger = logger.With("scenario", s.Name)

	model, err := loadModel(s)
	if err != nil {
		return nil, err
	}
	dialect := sqlite.New()

	st, err := store.Open(":memory:", logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	if err := st.CreateSchema(ctx, model, dialect.Mappings()); err != nil {
		return nil, err
	}
	if err := st.Seed(ctx, model, dialect.Mappings(), s.Seed); err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}

	comp, err := compiler.New(model, dialect, compiler.Options{
		RelationalNulls: s.RelationalNulls,
		Logger:          logger,
	})
	if err != nil {
		return nil, err
	}

	h := &harness{store: st, compiler: comp, logger: logger}
	result := NewResult(s.Name)
	for _, c := range s.Cases {
		result.Cases = append(result.Cases, h.runCase(ctx, c))
	}
	for _, c := range result.Cases {
		if !c.Pass {
			result.Pass = false
		}
	}
	logger.Debug("scenario finished", "pass", result.Pass, "cases", len(result.Cases))
	return result, nil
}

type harness struct {
	store    *store.Store
	compiler *compiler.Compiler
	logger   *slog.Logger
}

func (h *harness) runCase(ctx context.Context, c Case) CaseResult {
	res := CaseResult{Name: c.Name, Pass: true}

	params, err := caseParams(c)
	if err != nil {
		res.fail("params: %v", err)
		return res
	}

	compiled, err := h.compiler.Compile(c.Query.Query, params)
	if err != nil {
		res.Error, res.Code = err.Error(), errorCode(err)
		checkError(&res, c.Expect, err)
		return res
	}
	res.SQL = compiled.Command.Text
	if c.Expect.Error != "" {
		res.fail("expected error %q, compiled to:\n%s", c.Expect.Error, res.SQL)
		return res
	}
	if c.Expect.SQL != "" {
		checkSQL(&res, c.Expect.SQL, res.SQL)
	}
	if want := c.Expect.Cacheable; want != nil && *want != compiled.Command.Cacheable {
		res.fail("cacheable = %v, expected %v", compiled.Command.Cacheable, *want)
	}
	if c.Expect.Rows == nil {
		return res
	}

	rows, err := h.store.Query(ctx, compiled.Command, params)
	if err != nil {
		res.fail("execute: %v", err)
		return res
	}
	res.Rows = rows.Values
	checkRows(&res, c.Expect.Rows, rows.Values, c.Expect.Ordered)
	h.logger.Debug("case finished", "case", c.Name, "pass", res.Pass, "rows", len(rows.Values))
	return res
}

// caseParams converts YAML parameter values to the declared kinds. A
// declared parameter with no value is NULL.
func caseParams(c Case) (map[string]any, error) {
	out := make(map[string]any, len(c.Query.Params))
	for name, spec := range c.Query.Params {
		v, err := store.Coerce(spec.Kind, spec.Elem, c.Params[name])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}

func errorCode(err error) string {
	var te *sqltranslate.TranslationError
	if errors.As(err, &te) {
		return string(te.Code)
	}
	return ""
}

func loadModel(s *Scenario) (*schema.StaticModel, error) {
	if s.Model != "" {
		m, err := schema.LoadString(s.Model)
		if err != nil {
			return nil, fmt.Errorf("model: %w", err)
		}
		return m, nil
	}
	return schema.LoadPath(s.Schema)
}

// Format renders a result as a short report, one line per case and the
// failure details indented below it.
func Format(r *Result) string {
	var b strings.Builder
	for _, c := range r.Cases {
		status := "ok  "
		if !c.Pass {
			status = "FAIL"
		}
		fmt.Fprintf(&b, "%s %s/%s\n", status, r.Scenario, c.Name)
		for _, f := range c.Failures {
			for _, line := range strings.Split(strings.TrimRight(f, "\n"), "\n") {
				b.WriteString("      " + line + "\n")
			}
		}
	}
	return b.String()
}
