package compiler_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/relq/internal/compiler"
	q "github.com/roach88/relq/internal/query"
	"github.com/roach88/relq/internal/queryir"
	"github.com/roach88/relq/internal/sqlite"
	"github.com/roach88/relq/internal/sqltranslate"
	"github.com/roach88/relq/internal/testutil"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func newCompiler(t *testing.T, opts compiler.Options) (*compiler.Compiler, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	opts.Registerer = reg
	opts.Logger = quiet
	c, err := compiler.New(testutil.ShopModel(), sqlite.New(), opts)
	require.NoError(t, err)
	return c, reg
}

// counter reads one sample from reg. Labels must match exactly.
func counter(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			if labelsMatch(m, labels) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func labelsMatch(m *dto.Metric, want map[string]string) bool {
	if len(m.GetLabel()) != len(want) {
		return false
	}
	for _, l := range m.GetLabel() {
		if want[l.GetName()] != l.GetValue() {
			return false
		}
	}
	return true
}

func byName() *q.Builder {
	return q.From("Customer").
		Where("c", q.Eq(q.F("c.Name"), q.P("name", queryir.KindString))).
		Select("c", q.F("c.Id"))
}

func TestCompileParameterNullness(t *testing.T) {
	c, _ := newCompiler(t, compiler.Options{})

	tests := []struct {
		name      string
		value     any
		want      string
		cacheable bool
	}{
		{"value", "Jo", "SELECT \"c\".\"Id\"\nFROM \"Customers\" AS \"c\"\nWHERE \"c\".\"Name\" = @name", true},
		{"null", nil, "SELECT \"c\".\"Id\"\nFROM \"Customers\" AS \"c\"\nWHERE \"c\".\"Name\" IS NULL", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := c.Compile(byName().Expr(), map[string]any{"name": tt.value})
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Command.Text)
			assert.Equal(t, tt.cacheable, out.Command.Cacheable)
		})
	}
}

func TestCachesAreSharedAcrossValues(t *testing.T) {
	c, reg := newCompiler(t, compiler.Options{})

	first, err := c.Compile(byName().Expr(), map[string]any{"name": "Jo"})
	require.NoError(t, err)
	second, err := c.Compile(byName().Expr(), map[string]any{"name": "Al"})
	require.NoError(t, err)
	null, err := c.Compile(byName().Expr(), map[string]any{"name": nil})
	require.NoError(t, err)

	assert.Same(t, first.Plan, second.Plan)
	assert.Same(t, first.Command, second.Command)
	assert.Same(t, first.Plan, null.Plan)
	assert.NotSame(t, first.Command, null.Command)

	const plans = "relq_compiler_plan_cache_lookups_total"
	const commands = "relq_compiler_command_cache_lookups_total"
	assert.Equal(t, 2.0, counter(t, reg, plans, map[string]string{"result": "hit"}))
	assert.Equal(t, 1.0, counter(t, reg, plans, map[string]string{"result": "miss"}))
	assert.Equal(t, 1.0, counter(t, reg, commands, map[string]string{"result": "hit"}))
	assert.Equal(t, 2.0, counter(t, reg, commands, map[string]string{"result": "miss"}))
}

func TestConstantsArePartOfTheShape(t *testing.T) {
	c, _ := newCompiler(t, compiler.Options{})
	over := func(n int) q.Expr {
		return q.From("Order").Where("o", q.Gt(q.F("o.Quantity"), q.C(n))).Expr()
	}

	a, err := c.Plan(over(5))
	require.NoError(t, err)
	b, err := c.Plan(over(6))
	require.NoError(t, err)
	again, err := c.Plan(over(5))
	require.NoError(t, err)

	assert.NotEqual(t, a.Key, b.Key)
	assert.Same(t, a, again)
}

func TestCachingDisabled(t *testing.T) {
	c, reg := newCompiler(t, compiler.Options{CacheSize: -1})

	a, err := c.Plan(byName().Expr())
	require.NoError(t, err)
	b, err := c.Plan(byName().Expr())
	require.NoError(t, err)

	assert.NotSame(t, a, b)
	assert.Equal(t, a.Key, b.Key)
	assert.Zero(t, counter(t, reg, "relq_compiler_plan_cache_lookups_total", map[string]string{"result": "miss"}))
}

func TestPlanRecordsResultShape(t *testing.T) {
	c, _ := newCompiler(t, compiler.Options{})

	p, err := c.Plan(q.From("Order").Count().Expr())
	require.NoError(t, err)
	assert.Equal(t, "scalar", p.Cardinality.String())
	assert.True(t, p.Shape.Scalar())
	assert.Empty(t, p.Params)

	p, err = c.Plan(byName().FirstOrDefault().Expr())
	require.NoError(t, err)
	assert.Equal(t, "one-or-default", p.Cardinality.String())
	require.Len(t, p.Params, 1)
	assert.Equal(t, "name", p.Params[0].Name)
}

func TestRejectedQueriesAreCounted(t *testing.T) {
	c, reg := newCompiler(t, compiler.Options{})

	_, err := c.Compile(q.From("Order").OrderBy("o", q.F("o.Total")).Expr(), nil)
	require.Error(t, err)
	assert.True(t, sqltranslate.IsNotSupported(err))

	_, err = c.Compile(q.From("Order").Where("o", q.F("o.Nope")).Expr(), nil)
	require.Error(t, err)
	assert.True(t, sqltranslate.IsUnknownMember(err))

	const name = "relq_compiler_rejected_queries_total"
	assert.Equal(t, 1.0, counter(t, reg, name, map[string]string{"code": "NOT_SUPPORTED"}))
	assert.Equal(t, 1.0, counter(t, reg, name, map[string]string{"code": "UNKNOWN_MEMBER"}))
}

func TestApplyJoinFailsValidation(t *testing.T) {
	c, reg := newCompiler(t, compiler.Options{})
	e := q.From("Customer").SelectMany("c",
		q.Sub(q.From("Order").Where("o", q.Eq(q.F("o.CustomerId"), q.F("c.Id"))).Take(q.C(2))), nil).Expr()

	_, err := c.Plan(e)
	require.NoError(t, err)

	_, err = c.Compile(e, nil)
	var invalid *queryir.ValidationError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, 1.0, counter(t, reg, "relq_compiler_rejected_queries_total", map[string]string{"code": "INVALID_TREE"}))
}

func TestMissingParameterValue(t *testing.T) {
	c, _ := newCompiler(t, compiler.Options{})

	_, err := c.Compile(byName().Expr(), map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name")
}

func TestRelationalNullsOption(t *testing.T) {
	c, _ := newCompiler(t, compiler.Options{RelationalNulls: true})
	e := q.From("Customer").
		Where("c", q.Eq(q.F("c.Name"), q.F("c.Email"))).
		Select("c", q.F("c.Id")).Expr()

	out, err := c.Compile(e, nil)
	require.NoError(t, err)
	assert.Equal(t, "SELECT \"c\".\"Id\"\nFROM \"Customers\" AS \"c\"\nWHERE \"c\".\"Name\" = \"c\".\"Email\"", out.Command.Text)
}

func TestRegisteringTwiceFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	opts := compiler.Options{Registerer: reg, Logger: quiet}

	_, err := compiler.New(testutil.ShopModel(), sqlite.New(), opts)
	require.NoError(t, err)
	_, err = compiler.New(testutil.ShopModel(), sqlite.New(), opts)
	assert.Error(t, err)
}

func TestCompileAll(t *testing.T) {
	c, _ := newCompiler(t, compiler.Options{})
	reqs := []compiler.Request{
		{Name: "by name", Query: byName().Expr(), Params: map[string]any{"name": "Jo"}},
		{Name: "count", Query: q.From("Order").Count().Expr()},
		{Name: "bad", Query: q.From("Order").OrderBy("o", q.F("o.Total")).Expr()},
	}

	out, err := c.CompileAll(context.Background(), reqs, 2)
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.Equal(t, "by name", out[0].Name)
	assert.NoError(t, out[0].Err)
	assert.Equal(t, "SELECT COUNT(*)\nFROM \"Orders\" AS \"o\"", out[1].Compiled.Command.Text)
	assert.True(t, sqltranslate.IsNotSupported(out[2].Err))
	assert.Nil(t, out[2].Compiled)
}

func TestCompileAllCancelled(t *testing.T) {
	c, _ := newCompiler(t, compiler.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.CompileAll(ctx, []compiler.Request{{Name: "count", Query: q.From("Order").Count().Expr()}}, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExplainKeepsEveryStage(t *testing.T) {
	c, reg := newCompiler(t, compiler.Options{})

	ex, err := c.Explain(byName().Expr(), map[string]any{"name": nil})
	require.NoError(t, err)

	names := make([]string, len(ex.Stages))
	for i, s := range ex.Stages {
		names[i] = s.Name
	}
	assert.Equal(t, []string{"translate", "infer", "nulls"}, names)
	assert.Equal(t, "SELECT \"c\".\"Id\"\nFROM \"Customers\" AS \"c\"\nWHERE \"c\".\"Name\" = @name", ex.Stages[1].SQL)
	assert.Equal(t, "SELECT \"c\".\"Id\"\nFROM \"Customers\" AS \"c\"\nWHERE \"c\".\"Name\" IS NULL", ex.Command.Text)
	assert.False(t, ex.Command.Cacheable)
	assert.Zero(t, counter(t, reg, "relq_compiler_plan_cache_lookups_total", map[string]string{"result": "miss"}))
}

func TestArrayElementNullability(t *testing.T) {
	c, _ := newCompiler(t, compiler.Options{})
	ids := q.PA("ids", queryir.KindInt64)

	notIn := q.From("Order").Where("o", q.Not(q.M(ids, "Contains", q.F("o.Id")))).Select("o", q.F("o.Id"))
	compiled, err := c.Compile(notIn.Expr(), map[string]any{"ids": []any{int64(1), nil}})
	require.NoError(t, err)
	assert.Contains(t, compiled.Command.Text, "NOT EXISTS")
	assert.NotContains(t, compiled.Command.Text, `NOT "o"."Id" IN`)

	names := q.From("Customer").
		Where("c", q.M(q.PA("names", queryir.KindString), "Contains", q.F("c.Name"))).
		Select("c", q.F("c.Id"))
	compiled, err = c.Compile(names.Expr(), map[string]any{"names": []any{"Ann"}})
	require.NoError(t, err)
	assert.Contains(t, compiled.Command.Text, `"c"."Name" IS NULL`)

	// Stored scores never hold null, so membership stays a plain IN.
	scores := q.From("Order").Where("o", q.M(q.F("o.Scores"), "Contains", q.F("o.Quantity"))).Select("o", q.F("o.Id"))
	compiled, err = c.Compile(scores.Expr(), nil)
	require.NoError(t, err)
	assert.Contains(t, compiled.Command.Text, `"o"."Quantity" IN (`)
	assert.NotContains(t, compiled.Command.Text, "EXISTS")
}
