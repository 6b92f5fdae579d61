package nullsem_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/relq/internal/nullsem"
	"github.com/roach88/relq/internal/queryir"
	"github.com/roach88/relq/internal/querysql"
	"github.com/roach88/relq/internal/sqlite"
	"github.com/roach88/relq/internal/testutil"
)

var (
	// a and b are nullable integers, n is a required integer, s a nullable
	// string and c a required string.
	a = intCol("a", true)
	b = intCol("b", true)
	n = intCol("n", false)
	s = &queryir.ColumnRef{Table: "t", Name: "s", Kind: queryir.KindString, Nullable: true, TypeMapping: sqlite.String}
	c = &queryir.ColumnRef{Table: "t", Name: "c", Kind: queryir.KindString, TypeMapping: sqlite.String}
)

func intCol(name string, nullable bool) *queryir.ColumnRef {
	return &queryir.ColumnRef{Table: "t", Name: name, Kind: queryir.KindInt64, Nullable: nullable, TypeMapping: sqlite.Int64}
}

func num(v int64) *queryir.Constant { return queryir.NewConstant(v, queryir.KindInt64, sqlite.Int64) }

func str(v string) *queryir.Constant {
	return queryir.NewConstant(v, queryir.KindString, sqlite.String)
}

func null() *queryir.Constant { return queryir.NewConstant(nil, queryir.KindInt64, sqlite.Int64) }

func param(name string) *queryir.Parameter {
	return &queryir.Parameter{Name: name, Kind: queryir.KindInt64, TypeMapping: sqlite.Int64}
}

func bin(op queryir.BinaryOp, l, r queryir.SqlExpr) *queryir.Binary {
	return queryir.NewBinary(op, l, r, sqlite.Bool)
}

func not(e queryir.SqlExpr) queryir.SqlExpr { return queryir.Not(e, sqlite.Bool) }

func concat(l, r queryir.SqlExpr) *queryir.Binary {
	return queryir.NewBinary(queryir.OpConcat, l, r, sqlite.String)
}

func add(l, r queryir.SqlExpr) *queryir.Binary {
	return queryir.NewBinary(queryir.OpAdd, l, r, sqlite.Int64)
}

func coalesce(args ...queryir.SqlExpr) *queryir.Function {
	return queryir.NewFunction("COALESCE", args, make([]bool, len(args)), true, args[0].Type(), args[0].Mapping())
}

func table() *queryir.Table { return &queryir.Table{Name: "T", Alias: "t"} }

func newProcessor(opts nullsem.Options) *nullsem.Processor {
	d := sqlite.New()
	opts.Extensions = append(opts.Extensions, d.NullExtension())
	return nullsem.New(d.Mappings(), opts)
}

// where processes pred as a WHERE clause and returns the rewritten clause,
// nil when it folded away.
func where(t *testing.T, p *nullsem.Processor, pred queryir.SqlExpr, params map[string]any) (queryir.SqlExpr, bool) {
	t.Helper()
	sel := &queryir.Select{Tables: []queryir.TableSource{table()}, Predicate: pred}
	out, cacheable, err := p.Process(sel, params)
	require.NoError(t, err)
	return out.Predicate, cacheable
}

// project processes e as a projected value.
func project(t *testing.T, p *nullsem.Processor, e queryir.SqlExpr, params map[string]any) queryir.SqlExpr {
	t.Helper()
	sel := &queryir.Select{
		Tables:      []queryir.TableSource{table()},
		Projections: []queryir.Projection{{Expr: e, Alias: "v"}},
	}
	out, _, err := p.Process(sel, params)
	require.NoError(t, err)
	return out.Projections[0].Expr
}

func render(t *testing.T, e queryir.SqlExpr) string {
	t.Helper()
	if e == nil {
		return ""
	}
	text, err := querysql.NewGenerator(sqlite.New().Generator()).GenerateExpr(e)
	require.NoError(t, err)
	return text
}

func TestPredicates(t *testing.T) {
	p := newProcessor(nullsem.Options{})

	tests := []struct {
		name string
		expr queryir.SqlExpr
		want string
	}{
		{"equal both nullable", bin(queryir.OpEqual, a, b), `"t"."a" = "t"."b" OR "t"."a" IS NULL AND "t"."b" IS NULL`},
		{"equal one nullable", bin(queryir.OpEqual, a, n), `"t"."a" = "t"."n"`},
		{"equal required", bin(queryir.OpEqual, n, num(1)), `"t"."n" = 1`},
		{"not equal one nullable", bin(queryir.OpNotEqual, a, n), `"t"."a" <> "t"."n" OR "t"."a" IS NULL`},
		{"equal null constant", bin(queryir.OpEqual, a, null()), `"t"."a" IS NULL`},
		{"not equal null constant", bin(queryir.OpNotEqual, null(), a), `"t"."a" IS NOT NULL`},
		{"required equal null", bin(queryir.OpEqual, n, null()), `0`},
		{"less than", bin(queryir.OpLessThan, a, b), `"t"."a" < "t"."b"`},
		{"less than null", bin(queryir.OpLessThan, a, null()), `0`},
		{"not over equality", not(bin(queryir.OpEqual, a, n)), `NOT ("t"."a" = "t"."n" AND "t"."a" IS NOT NULL)`},
		{"not over is null", not(queryir.IsNull(a, sqlite.Bool)), `"t"."a" IS NOT NULL`},
		{"double not", not(not(bin(queryir.OpEqual, n, num(1)))), `"t"."n" = 1`},
		{"required is not null", queryir.IsNotNull(n, sqlite.Bool), ``},
		{"required is null", queryir.IsNull(n, sqlite.Bool), `0`},
		{"is null distributes", queryir.IsNull(add(a, b), sqlite.Bool), `"t"."a" IS NULL OR "t"."b" IS NULL`},
		{"is null skips required operand", queryir.IsNull(add(a, n), sqlite.Bool), `"t"."a" IS NULL`},
		{"is not null distributes", queryir.IsNotNull(add(a, b), sqlite.Bool), `"t"."a" IS NOT NULL AND "t"."b" IS NOT NULL`},
		{"coalesce is never null", queryir.IsNull(coalesce(a, n), sqlite.Bool), `0`},
		{"concat compensates", bin(queryir.OpEqual, concat(s, str("x")), str("x")), `COALESCE("t"."s", '') || 'x' = 'x'`},
		{"in with null", queryir.NewIn(a, []queryir.SqlExpr{num(1), null()}), `"t"."a" IN (1) OR "t"."a" IS NULL`},
		{"in with null on required item", queryir.NewIn(n, []queryir.SqlExpr{num(1), null()}), `"t"."n" IN (1)`},
		{"in only null", queryir.NewIn(a, []queryir.SqlExpr{null()}), `"t"."a" IS NULL`},
		{"in empty", queryir.NewIn(a, nil), `0`},
		{"in nullable value", queryir.NewIn(a, []queryir.SqlExpr{b, num(2)}),
			`"t"."a" = "t"."b" OR "t"."a" IS NULL AND "t"."b" IS NULL OR "t"."a" = 2`},
		{"and folds true", bin(queryir.OpAnd, queryir.IsNotNull(n, sqlite.Bool), bin(queryir.OpEqual, n, num(1))), `"t"."n" = 1`},
		{"or folds true", bin(queryir.OpOr, queryir.IsNotNull(n, sqlite.Bool), bin(queryir.OpEqual, a, b)), ``},
		{"and folds false", bin(queryir.OpAnd, queryir.IsNull(n, sqlite.Bool), bin(queryir.OpEqual, a, b)), `0`},
		{"like null pattern", &queryir.Like{Match: s, Pattern: queryir.NewConstant(nil, queryir.KindString, sqlite.String)}, `0`},
		{"glob", &sqlite.Glob{Match: s, Pattern: str("a*")}, `"t"."s" GLOB 'a*'`},
		{"not glob folds", not(&sqlite.Glob{Match: c, Pattern: str("a*")}), `"t"."c" NOT GLOB 'a*'`},
		{"not glob nullable", not(&sqlite.Glob{Match: s, Pattern: str("a*")}), `NOT ("t"."s" GLOB 'a*' AND "t"."s" IS NOT NULL)`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, cacheable := where(t, p, tt.expr, nil)
			assert.True(t, cacheable)
			assert.Equal(t, tt.want, render(t, out))
		})
	}
}

func TestProjections(t *testing.T) {
	p := newProcessor(nullsem.Options{})

	tests := []struct {
		name string
		expr queryir.SqlExpr
		want string
	}{
		{"equal both nullable", bin(queryir.OpEqual, a, b),
			`"t"."a" = "t"."b" AND "t"."a" IS NOT NULL AND "t"."b" IS NOT NULL OR "t"."a" IS NULL AND "t"."b" IS NULL`},
		{"equal one nullable", bin(queryir.OpEqual, a, n), `"t"."a" = "t"."n" AND "t"."a" IS NOT NULL`},
		{"not equal both nullable", bin(queryir.OpNotEqual, a, b),
			`("t"."a" <> "t"."b" OR "t"."a" IS NULL OR "t"."b" IS NULL) AND ("t"."a" IS NOT NULL OR "t"."b" IS NOT NULL)`},
		{"less than", bin(queryir.OpLessThan, a, n), `"t"."a" < "t"."n" AND "t"."a" IS NOT NULL`},
		{"in guarded", queryir.NewIn(a, []queryir.SqlExpr{num(1), num(2)}), `"t"."a" IN (1, 2) AND "t"."a" IS NOT NULL`},
		{"like guarded", &queryir.Like{Match: s, Pattern: str("a%")}, `"t"."s" LIKE 'a%' AND "t"."s" IS NOT NULL`},
		{"glob guarded", &sqlite.Glob{Match: s, Pattern: str("a*")}, `"t"."s" GLOB 'a*' AND "t"."s" IS NOT NULL`},
		{"concat", concat(s, concat(str("-"), s)), `COALESCE("t"."s", '') || '-' || COALESCE("t"."s", '')`},
		{"arithmetic untouched", add(a, b), `"t"."a" + "t"."b"`},
		{"required untouched", bin(queryir.OpEqual, n, num(1)), `"t"."n" = 1`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, render(t, project(t, p, tt.expr, nil)))
		})
	}
}

func TestParameters(t *testing.T) {
	p := newProcessor(nullsem.Options{})
	pred := bin(queryir.OpEqual, a, param("p"))

	t.Run("null value", func(t *testing.T) {
		out, cacheable := where(t, p, pred, map[string]any{"p": nil})
		assert.False(t, cacheable)
		assert.Equal(t, `"t"."a" IS NULL`, render(t, out))
	})

	t.Run("non-null value", func(t *testing.T) {
		out, cacheable := where(t, p, pred, map[string]any{"p": int64(3)})
		assert.True(t, cacheable)
		assert.Equal(t, `"t"."a" = @p`, render(t, out))
	})

	t.Run("unknown value", func(t *testing.T) {
		out, cacheable := where(t, p, pred, nil)
		assert.True(t, cacheable)
		assert.Equal(t, `"t"."a" = @p OR "t"."a" IS NULL AND @p IS NULL`, render(t, out))
	})

	t.Run("null value in list", func(t *testing.T) {
		in := queryir.NewIn(n, []queryir.SqlExpr{num(1), param("p")})
		out, cacheable := where(t, p, in, map[string]any{"p": nil})
		assert.False(t, cacheable)
		assert.Equal(t, `"t"."n" IN (1)`, render(t, out))
	})
}

func TestRelationalNulls(t *testing.T) {
	p := newProcessor(nullsem.Options{RelationalNulls: true})

	tests := []struct {
		name string
		expr queryir.SqlExpr
		want string
	}{
		{"equal", bin(queryir.OpEqual, a, b), `"t"."a" = "t"."b"`},
		{"not equal", bin(queryir.OpNotEqual, a, n), `"t"."a" <> "t"."n"`},
		{"concat", bin(queryir.OpEqual, concat(s, str("x")), str("x")), `"t"."s" || 'x' = 'x'`},
		{"in keeps null", queryir.NewIn(a, []queryir.SqlExpr{num(1), null()}), `"t"."a" IN (1, NULL)`},
		{"still folds required", queryir.IsNull(n, sqlite.Bool), `0`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, render(t, project(t, p, tt.expr, nil)))
		})
	}
}

func TestJoinPredicateKeepsEquality(t *testing.T) {
	p := newProcessor(nullsem.Options{})
	other := &queryir.ColumnRef{Table: "u", Name: "a", Kind: queryir.KindInt64, Nullable: true, TypeMapping: sqlite.Int64}
	sel := &queryir.Select{
		Tables: []queryir.TableSource{
			table(),
			&queryir.Join{Kind: queryir.JoinLeft, Table: &queryir.Table{Name: "U", Alias: "u"}, On: bin(queryir.OpEqual, a, other)},
		},
		Predicate: bin(queryir.OpEqual, a, other),
	}
	out, _, err := p.Process(sel, nil)
	require.NoError(t, err)

	join := out.Tables[1].(*queryir.Join)
	assert.Equal(t, `"t"."a" = "u"."a"`, render(t, join.On))
	assert.Equal(t, `"t"."a" = "u"."a" OR "t"."a" IS NULL AND "u"."a" IS NULL`, render(t, out.Predicate))
}

func TestInSubquery(t *testing.T) {
	p := newProcessor(nullsem.Options{})
	x := &queryir.ColumnRef{Table: "u", Name: "x", Kind: queryir.KindInt64, Nullable: true, TypeMapping: sqlite.Int64}
	sub := &queryir.Select{
		Tables:      []queryir.TableSource{&queryir.Table{Name: "U", Alias: "u"}},
		Projections: []queryir.Projection{{Expr: x, Alias: "x"}},
	}

	t.Run("rewritten to exists", func(t *testing.T) {
		out, _ := where(t, p, queryir.NewInSubquery(a, sub), nil)
		assert.Equal(t, `EXISTS (
    SELECT 1
    FROM "U" AS "u"
    WHERE "u"."x" = "t"."a" OR "u"."x" IS NULL AND "t"."a" IS NULL)`, render(t, out))
	})

	t.Run("limited subquery guarded", func(t *testing.T) {
		limited := sub.WithLimit(num(1))
		out := project(t, p, queryir.NewInSubquery(n, limited), nil)
		assert.Equal(t, `"t"."n" IN (
    SELECT "u"."x"
    FROM "U" AS "u"
    LIMIT 1) AND ("t"."n" IN (
    SELECT "u"."x"
    FROM "U" AS "u"
    LIMIT 1)) IS NOT NULL`, render(t, out))
	})

	t.Run("required on both sides", func(t *testing.T) {
		req := sub.WithProjections(queryir.Projection{Expr: intColOf("u", "y"), Alias: "y"})
		in := queryir.NewInSubquery(n, req)
		out, _ := where(t, p, in, nil)
		assert.Same(t, in, out)
	})
}

func intColOf(table, name string) *queryir.ColumnRef {
	return &queryir.ColumnRef{Table: table, Name: name, Kind: queryir.KindInt64, TypeMapping: sqlite.Int64}
}

func TestUnchangedQueryIsShared(t *testing.T) {
	p := newProcessor(nullsem.Options{})
	sel := &queryir.Select{
		Tables:      []queryir.TableSource{table()},
		Projections: []queryir.Projection{{Expr: n, Alias: "n"}},
		Predicate:   bin(queryir.OpGreaterThan, n, num(1)),
		Orderings:   []queryir.Ordering{queryir.NewOrdering(n, true)},
	}
	out, cacheable, err := p.Process(sel, map[string]any{})
	require.NoError(t, err)
	assert.True(t, cacheable)
	assert.Same(t, sel, out)
}

func TestProcessNil(t *testing.T) {
	_, _, err := newProcessor(nullsem.Options{}).Process(nil, nil)
	assert.Error(t, err)
}

// TestSourceSemantics checks the rewrite against a two-valued reference:
// for every combination of null and non-null inputs, the processed SQL
// evaluated with SQL's three-valued rules must select the same rows and
// project the same values as the original expression evaluated with the
// source language's rules.
func TestSourceSemantics(t *testing.T) {
	p := newProcessor(nullsem.Options{})

	exprs := map[string]queryir.SqlExpr{
		"a = b":                  bin(queryir.OpEqual, a, b),
		"a <> b":                 bin(queryir.OpNotEqual, a, b),
		"a = n":                  bin(queryir.OpEqual, a, n),
		"a <> n":                 bin(queryir.OpNotEqual, a, n),
		"a < b":                  bin(queryir.OpLessThan, a, b),
		"a >= n":                 bin(queryir.OpGreaterThanOrEqual, a, n),
		"not a = b":              not(bin(queryir.OpEqual, a, b)),
		"not a <> b":             not(bin(queryir.OpNotEqual, a, b)),
		"not a < b":              not(bin(queryir.OpLessThan, a, b)),
		"a = b and a < 2":        bin(queryir.OpAnd, bin(queryir.OpEqual, a, b), bin(queryir.OpLessThan, a, num(2))),
		"a = b or a < n":         bin(queryir.OpOr, bin(queryir.OpEqual, a, b), bin(queryir.OpLessThan, a, n)),
		"not (a < n or b < n)":   not(bin(queryir.OpOr, bin(queryir.OpLessThan, a, n), bin(queryir.OpLessThan, b, n))),
		"a + b = 3":              bin(queryir.OpEqual, add(a, b), num(3)),
		"(a + b) is null":        queryir.IsNull(add(a, b), sqlite.Bool),
		"not (a + b) is null":    not(queryir.IsNull(add(a, b), sqlite.Bool)),
		"coalesce(a, n) = b":     bin(queryir.OpEqual, coalesce(a, n), b),
		"a in (1, null)":         queryir.NewIn(a, []queryir.SqlExpr{num(1), null()}),
		"not a in (1, null)":     not(queryir.NewIn(a, []queryir.SqlExpr{num(1), null()})),
		"a in (b, 2)":            queryir.NewIn(a, []queryir.SqlExpr{b, num(2)}),
		"not a in (b, 2)":        not(queryir.NewIn(a, []queryir.SqlExpr{b, num(2)})),
		"a in (1, 2)":            queryir.NewIn(a, []queryir.SqlExpr{num(1), num(2)}),
		"not a in (1, 2)":        not(queryir.NewIn(a, []queryir.SqlExpr{num(1), num(2)})),
		"s like 'a%'":            &queryir.Like{Match: s, Pattern: str("a%")},
		"not s like 'a%'":        not(&queryir.Like{Match: s, Pattern: str("a%")}),
		"s || 'x' = 'x'":         bin(queryir.OpEqual, concat(s, str("x")), str("x")),
		"s || s <> 'abab'":       bin(queryir.OpNotEqual, concat(s, s), str("abab")),
		"case when a = b":        queryir.NewCase(nil, []queryir.CaseWhen{{Test: bin(queryir.OpEqual, a, b), Result: num(1)}}, num(0)),
		"case when not a < b":    queryir.NewCase(nil, []queryir.CaseWhen{{Test: not(bin(queryir.OpLessThan, a, b)), Result: num(1)}}, num(0)),
		"(a = b) = (b = n)":      bin(queryir.OpEqual, bin(queryir.OpEqual, a, b), bin(queryir.OpEqual, b, n)),
		"a = @p":                 bin(queryir.OpEqual, a, param("p")),
		"not a = @p":             not(bin(queryir.OpEqual, a, param("p"))),
		"a in (@p, 1)":           queryir.NewIn(a, []queryir.SqlExpr{param("p"), num(1)}),
		"@p <> n":                bin(queryir.OpNotEqual, param("p"), n),
		"not (a = 1 and b = @p)": not(bin(queryir.OpAnd, bin(queryir.OpEqual, a, num(1)), bin(queryir.OpEqual, b, param("p")))),
	}

	ints := []any{nil, int64(1), int64(2)}
	strs := []any{nil, "ab", "x"}

	for name, expr := range exprs {
		t.Run(name, func(t *testing.T) {
			for _, av := range ints {
				for _, bv := range ints {
					for _, sv := range strs {
						for _, pv := range ints {
							row := testutil.Row{"t.a": av, "t.b": bv, "t.n": int64(1), "t.s": sv, "t.c": "ab", "@p": pv}
							params := map[string]any{"p": pv}
							desc := fmt.Sprintf("a=%v b=%v s=%v p=%v", av, bv, sv, pv)

							want, err := testutil.Eval(expr, row, testutil.Source)
							require.NoError(t, err)

							if expr.Type() == queryir.KindBool {
								pred, _ := where(t, p, expr, params)
								got := true
								if pred != nil {
									got, err = testutil.Matches(pred, row, testutil.SQL)
									require.NoError(t, err)
								}
								assert.Equal(t, want, got, "WHERE %s", desc)
							}

							proj, err := testutil.Eval(project(t, p, expr, params), row, testutil.SQL)
							require.NoError(t, err)
							assert.Equal(t, want, proj, "projection %s", desc)
						}
					}
				}
			}
		})
	}
}
