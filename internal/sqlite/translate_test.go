package sqlite_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	q "github.com/roach88/relq/internal/query"
	"github.com/roach88/relq/internal/queryir"
	"github.com/roach88/relq/internal/querysql"
	"github.com/roach88/relq/internal/sqlite"
	"github.com/roach88/relq/internal/sqltranslate"
	"github.com/roach88/relq/internal/testutil"
	"github.com/roach88/relq/internal/typeinfer"
)

type fixture struct {
	dialect    *sqlite.Dialect
	translator *sqltranslate.Translator
	scope      *sqltranslate.Scope
}

// newFixture binds o to an Order and c to a Customer.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	d := sqlite.New()
	model := testutil.ShopModel()
	tr := sqltranslate.New(model, d.Mappings(), d.Plugins())

	order, ok := model.Entity("Order")
	require.True(t, ok)
	customer, ok := model.Entity("Customer")
	require.True(t, ok)

	scope := sqltranslate.NewScope(nil).
		Bind("o", tr.Factory().Entity(order, "o", false)).
		Bind("c", tr.Factory().Entity(customer, "c", false))
	return &fixture{dialect: d, translator: tr, scope: scope}
}

func (fx *fixture) translate(t *testing.T, e q.Expr) (queryir.SqlExpr, error) {
	t.Helper()
	return fx.translator.TranslateScalar(e, fx.scope)
}

// render infers the mappings the translator leaves open, then renders e.
func (fx *fixture) render(t *testing.T, e queryir.SqlExpr) string {
	t.Helper()
	sel := &queryir.Select{Projections: []queryir.Projection{{Expr: e}}}
	sel, _ = typeinfer.New(fx.dialect.Mappings(), nil).Infer(sel)
	text, err := querysql.NewGenerator(fx.dialect.Generator()).GenerateExpr(sel.Projections[0].Expr)
	require.NoError(t, err)
	return text
}

func TestTranslate(t *testing.T) {
	fx := newFixture(t)

	tests := []struct {
		name string
		expr q.Expr
		want string
	}{
		// decimal emulation
		{"decimal add", q.Add(q.F("o.Total"), q.C(1.5)), `ef_add("o"."Total", '1.5')`},
		{"decimal subtract", q.Minus(q.F("o.Total"), q.F("o.Total")), `ef_add("o"."Total", ef_negate("o"."Total"))`},
		{"decimal multiply", q.Mul(q.F("o.Total"), q.F("o.Total")), `ef_multiply("o"."Total", "o"."Total")`},
		{"decimal compare", q.Gt(q.F("o.Total"), q.C(10)), `ef_compare("o"."Total", '10.0') > 0`},
		{"decimal negate", q.Neg(q.F("o.Total")), `ef_negate("o"."Total")`},

		// strings
		{"length", q.F("c.Name.Length"), `length("c"."Name")`},
		{"upper", q.M(q.F("c.Name"), "ToUpper"), `upper("c"."Name")`},
		{"trim chars", q.M(q.F("c.Name"), "Trim", q.C("x")), `trim("c"."Name", 'x')`},
		{"starts with escapes", q.M(q.F("c.Name"), "StartsWith", q.C("a%")), `"c"."Name" LIKE 'a\%%' ESCAPE '\'`},
		{"ends with", q.M(q.F("c.Name"), "EndsWith", q.C("x")), `"c"."Name" LIKE '%x'`},
		{"starts with parameter", q.M(q.F("c.Name"), "StartsWith", q.P("p", queryir.KindString)),
			`@p IS NOT NULL AND substr("c"."Name", 1, length(@p)) = @p`},
		{"contains", q.M(q.F("c.Name"), "Contains", q.C("b")), `instr("c"."Name", 'b') > 0`},
		{"index of", q.M(q.F("c.Name"), "IndexOf", q.C("b")), `instr("c"."Name", 'b') - 1`},
		{"index of empty", q.M(q.F("c.Name"), "IndexOf", q.C("")), `0`},
		{"substring", q.M(q.F("c.Name"), "Substring", q.C(1), q.C(2)), `substr("c"."Name", 2, 2)`},
		{"concat", q.Add(q.F("c.Name"), q.C("!")), `"c"."Name" || '!'`},
		{"coalesce", q.Coalesce(q.F("c.Name"), q.C("x")), `COALESCE("c"."Name", 'x')`},
		{"is null or empty", q.S("string", "IsNullOrEmpty", q.F("c.Name")), `"c"."Name" IS NULL OR "c"."Name" = ''`},

		// dates and times
		{"year", q.F("o.Placed.Year"), `CAST(strftime('%Y', "o"."Placed") AS INTEGER)`},
		{"add days", q.M(q.F("o.Placed"), "AddDays", q.C(3)),
			`rtrim(rtrim(strftime('%Y-%m-%d %H:%M:%f', "o"."Placed", '3 days'), '0'), '.')`},
		{"add days computed", q.M(q.F("o.Placed"), "AddDays", q.F("o.Quantity")),
			`rtrim(rtrim(strftime('%Y-%m-%d %H:%M:%f', "o"."Placed", CAST("o"."Quantity" AS TEXT) || ' days'), '0'), '.')`},
		{"datetime difference", q.Minus(q.F("o.Placed"), q.F("o.Placed")),
			`ef_timespan(julianday("o"."Placed") - julianday("o"."Placed"))`},
		{"timespan compare", q.Lt(q.F("o.Window"), q.F("o.Window")), `ef_days("o"."Window") < ef_days("o"."Window")`},
		{"date add", q.M(q.F("o.Due"), "AddMonths", q.C(1)), `date("o"."Due", '1 months')`},

		// math
		{"abs", q.S("Math", "Abs", q.F("o.Quantity")), `abs("o"."Quantity")`},
		{"log base", q.S("Math", "Log", q.F("o.Quantity"), q.C(2)), `ln("o"."Quantity") / ln(2)`},
		{"round digits", q.S("Math", "Round", q.F("o.Discount"), q.C(2)), `round("o"."Discount", 2)`},

		// patterns
		{"regex", q.S("Regex", "IsMatch", q.F("c.Name"), q.C("^a")), `"c"."Name" REGEXP '^a'`},
		{"glob", q.S("EF.Functions", "Glob", q.F("c.Name"), q.C("a*")), `"c"."Name" GLOB 'a*'`},
		{"like", q.S("EF.Functions", "Like", q.F("c.Name"), q.C("a%")), `"c"."Name" LIKE 'a%'`},

		// JSON
		{"collection count", q.F("c.Tags.Count"), `json_array_length("c"."Tags")`},
		{"constant index", q.Idx(q.F("o.Scores"), q.C(0)), `"o"."Scores" ->> '$[0]'`},
		{"computed index", q.Idx(q.F("o.Scores"), q.F("o.Quantity")),
			`json_extract("o"."Scores", '$[' || "o"."Quantity" || ']')`},
		{"owned field", q.F("c.Address.Street"), `"c"."Address" ->> '$.Street'`},

		// bytes and conversions
		{"blob length", q.F("o.Blob.Length"), `length("o"."Blob")`},
		{"hex", q.S("EF.Functions", "Hex", q.F("o.Blob")), `hex("o"."Blob")`},
		{"int to bool", q.Conv(q.F("o.Quantity"), queryir.KindBool), `"o"."Quantity" <> 0`},
		{"int to string", q.M(q.F("o.Quantity"), "ToString"), `CAST("o"."Quantity" AS TEXT)`},
		{"bool to string", q.M(q.F("o.Rush"), "ToString"), `CASE
    WHEN "o"."Rush" THEN 'True'
    WHEN NOT "o"."Rush" THEN 'False'
END`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := fx.translate(t, tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, fx.render(t, e))
		})
	}
}

func TestTranslateRefusals(t *testing.T) {
	fx := newFixture(t)

	tests := []struct {
		name  string
		expr  q.Expr
		check func(error) bool
	}{
		{"uint64 ordering", q.Lt(q.F("o.Priority"), q.C(5)), sqltranslate.IsNotSupported},
		{"uint64 negation", q.Neg(q.F("o.Priority")), sqltranslate.IsNotSupported},
		{"uint64 conversion", q.Conv(q.F("o.Priority"), queryir.KindFloat64), sqltranslate.IsNotSupported},
		{"offset member", q.F("o.Stamp.Year"), sqltranslate.IsNotSupported},
		{"offset arithmetic", q.Lt(q.F("o.Stamp"), q.F("o.Stamp")), sqltranslate.IsNotSupported},
		{"decimal math", q.S("Math", "Abs", q.F("o.Total")), sqltranslate.IsNotSupported},
		{"unknown method", q.M(q.F("c.Name"), "Frobnicate"), sqltranslate.IsUntranslatable},
		{"unknown static", q.S("Math", "Frobnicate", q.F("o.Quantity")), sqltranslate.IsUntranslatable},
		{"unknown member", q.F("c.Nmae"), sqltranslate.IsUnknownMember},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fx.translate(t, tt.expr)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error: %v", err)
		})
	}
}

func TestUnknownMemberSuggestion(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.translate(t, q.F("c.Nmae"))

	var te *sqltranslate.TranslationError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "Name", te.Suggestion)
	assert.Equal(t, "c.Nmae", te.Expr)
}

func TestRestrictions(t *testing.T) {
	fx := newFixture(t)
	d := fx.dialect

	for _, k := range []queryir.Kind{queryir.KindDecimal, queryir.KindUint64, queryir.KindTimeSpan, queryir.KindDateTimeOffset} {
		assert.True(t, sqltranslate.IsNotSupported(d.CheckOrdering(k)), "ordering by %s", k)
	}
	for _, k := range []queryir.Kind{queryir.KindInt64, queryir.KindString, queryir.KindDateTime, queryir.KindFloat64} {
		assert.NoError(t, d.CheckOrdering(k), "ordering by %s", k)
	}

	total, err := fx.translate(t, q.F("o.Total"))
	require.NoError(t, err)
	quantity, err := fx.translate(t, q.F("o.Quantity"))
	require.NoError(t, err)
	f := fx.translator.Factory()

	max, err := d.Aggregate(f, "Max", total)
	require.NoError(t, err)
	assert.Equal(t, `ef_max("o"."Total")`, fx.render(t, max))

	_, err = d.Aggregate(f, "Sum", total)
	assert.True(t, sqltranslate.IsNotSupported(err))

	std, err := d.Aggregate(f, "Sum", quantity)
	require.NoError(t, err)
	assert.Nil(t, std)
}
