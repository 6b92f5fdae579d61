package querytranslate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	q "github.com/roach88/relq/internal/query"
	"github.com/roach88/relq/internal/queryir"
	"github.com/roach88/relq/internal/querysql"
	"github.com/roach88/relq/internal/querytranslate"
	"github.com/roach88/relq/internal/sqlite"
	"github.com/roach88/relq/internal/sqltranslate"
	"github.com/roach88/relq/internal/testutil"
	"github.com/roach88/relq/internal/typeinfer"
)

var dialect = sqlite.New()

func translate(t *testing.T, b *q.Builder) (*querytranslate.Result, error) {
	t.Helper()
	return querytranslate.New(testutil.ShopModel(), dialect, nil).Translate(b.Expr())
}

// render translates b, infers open type mappings and renders the SQL.
func render(t *testing.T, b *q.Builder) string {
	t.Helper()
	res, err := translate(t, b)
	require.NoError(t, err)
	sel, _ := typeinfer.New(dialect.Mappings(), nil).Infer(res.Select)
	cmd, err := querysql.NewGenerator(dialect.Generator()).Generate(sel)
	require.NoError(t, err)
	return cmd.Text
}

const items = `"i"."Id", "i"."OrderId", "i"."Product", "i"."Price", "i"."Count"`

func TestTranslateSequences(t *testing.T) {
	tests := []struct {
		name  string
		query *q.Builder
		want  string
	}{
		{
			"entity set",
			q.From("Item"),
			"SELECT " + items + "\nFROM \"Items\" AS \"i\"",
		},
		{
			"where and select",
			q.From("Order").Where("o", q.Gt(q.F("o.Quantity"), q.C(5))).Select("o", q.F("o.Id")),
			"SELECT \"o\".\"Id\"\nFROM \"Orders\" AS \"o\"\nWHERE \"o\".\"Quantity\" > 5",
		},
		{
			"two wheres are joined with AND",
			q.From("Order").Where("o", q.F("o.Rush")).Where("o", q.Gt(q.F("o.Quantity"), q.C(5))).Select("o", q.F("o.Id")),
			"SELECT \"o\".\"Id\"\nFROM \"Orders\" AS \"o\"\nWHERE \"o\".\"Rush\" AND \"o\".\"Quantity\" > 5",
		},
		{
			"ordering and paging",
			q.From("Customer").
				OrderBy("c", q.F("c.City")).ThenByDescending("c", q.F("c.Id")).
				Skip(q.C(10)).Take(q.C(5)).
				Select("c", q.F("c.City")),
			"SELECT \"c\".\"City\"\nFROM \"Customers\" AS \"c\"\nORDER BY \"c\".\"City\", \"c\".\"Id\" DESC\nLIMIT 5 OFFSET 10",
		},
		{
			"skip without take",
			q.From("Customer").Skip(q.P("skip", queryir.KindInt32)).Select("c", q.F("c.Id")),
			"SELECT \"c\".\"Id\"\nFROM \"Customers\" AS \"c\"\nLIMIT -1 OFFSET @skip",
		},
		{
			"anonymous object",
			q.From("Customer").Select("c", q.Obj(q.Fld("Key", q.F("c.Id")), q.Fld("City", q.F("c.City")))),
			"SELECT \"c\".\"Id\" AS \"Key\", \"c\".\"City\"\nFROM \"Customers\" AS \"c\"",
		},
		{
			"distinct",
			q.From("Customer").Select("c", q.F("c.City")).Distinct(),
			"SELECT DISTINCT \"c\".\"City\"\nFROM \"Customers\" AS \"c\"",
		},
		{
			"where after take nests",
			q.From("Order").Select("o", q.F("o.Quantity")).Take(q.C(3)).Where("n", q.Gt(q.F("n"), q.C(1))),
			"SELECT \"t\".\"Quantity\"\nFROM (\n    SELECT \"o\".\"Quantity\"\n    FROM \"Orders\" AS \"o\"\n    LIMIT 3\n) AS \"t\"\nWHERE \"t\".\"Quantity\" > 1",
		},
		{
			"nested entity keeps outer ordering",
			q.From("Item").OrderBy("i", q.F("i.Id")).Take(q.C(2)).Where("x", q.Gt(q.F("x.Count"), q.C(1))),
			"SELECT \"t\".\"Id\", \"t\".\"OrderId\", \"t\".\"Product\", \"t\".\"Price\", \"t\".\"Count\"\nFROM (\n" +
				"    SELECT " + items + "\n    FROM \"Items\" AS \"i\"\n    ORDER BY \"i\".\"Id\"\n    LIMIT 2\n) AS \"t\"\n" +
				"WHERE \"t\".\"Count\" > 1\nORDER BY \"t\".\"Id\"",
		},
		{
			"optional navigation is a left join",
			q.From("Order").Select("o", q.F("o.Customer.Name")),
			"SELECT \"c\".\"Name\"\nFROM \"Orders\" AS \"o\"\nLEFT JOIN \"Customers\" AS \"c\" ON \"o\".\"CustomerId\" = \"c\".\"Id\"",
		},
		{
			"navigation joined once",
			q.From("Order").Select("o", q.Obj(q.Fld("A", q.F("o.Customer.Name")), q.Fld("B", q.F("o.Customer.City")))),
			"SELECT \"c\".\"Name\" AS \"A\", \"c\".\"City\" AS \"B\"\nFROM \"Orders\" AS \"o\"\nLEFT JOIN \"Customers\" AS \"c\" ON \"o\".\"CustomerId\" = \"c\".\"Id\"",
		},
		{
			"required navigation is an inner join",
			q.From("Item").Select("i", q.F("i.Order.Quantity")),
			"SELECT \"o\".\"Quantity\"\nFROM \"Items\" AS \"i\"\nINNER JOIN \"Orders\" AS \"o\" ON \"i\".\"OrderId\" = \"o\".\"Id\"",
		},
		{
			"collection count",
			q.From("Customer").Select("c", q.Obj(q.Fld("Id", q.F("c.Id")), q.Fld("N", q.M(q.F("c.Orders"), "Count")))),
			"SELECT \"c\".\"Id\", (\n    SELECT COUNT(*)\n    FROM \"Orders\" AS \"o\"\n    WHERE \"c\".\"Id\" = \"o\".\"CustomerId\") AS \"N\"\nFROM \"Customers\" AS \"c\"",
		},
		{
			"collection any",
			q.From("Customer").Where("c", q.M(q.F("c.Orders"), "Any", q.L("o", q.F("o.Rush")))).Select("c", q.F("c.Id")),
			"SELECT \"c\".\"Id\"\nFROM \"Customers\" AS \"c\"\nWHERE EXISTS (\n    SELECT 1\n    FROM \"Orders\" AS \"o\"\n    WHERE \"c\".\"Id\" = \"o\".\"CustomerId\" AND \"o\".\"Rush\")",
		},
		{
			"parameter collection contains",
			q.From("Order").Where("o", q.M(q.PA("ids", queryir.KindInt64), "Contains", q.F("o.Id"))).Select("o", q.F("o.Id")),
			"SELECT \"o\".\"Id\"\nFROM \"Orders\" AS \"o\"\nWHERE \"o\".\"Id\" IN (\n    SELECT \"i\".\"value\"\n    FROM json_each(@ids) AS \"i\")",
		},
		{
			"parameter collection count",
			q.From("Order").Where("o", q.Gt(q.M(q.PA("ids", queryir.KindInt64), "Count"), q.C(0))).Select("o", q.F("o.Id")),
			"SELECT \"o\".\"Id\"\nFROM \"Orders\" AS \"o\"\nWHERE json_array_length(@ids) > 0",
		},
		{
			"group by with aggregates",
			q.From("Order").GroupBy("o", q.F("o.CustomerId")).Select("g", q.Obj(
				q.Fld("Key", q.F("g.Key")),
				q.Fld("N", q.M(q.F("g"), "Count")),
				q.Fld("Total", q.M(q.F("g"), "Sum", q.L("x", q.F("x.Quantity")))),
			)),
			"SELECT \"o\".\"CustomerId\" AS \"Key\", COUNT(*) AS \"N\", COALESCE(SUM(\"o\".\"Quantity\"), 0) AS \"Total\"\nFROM \"Orders\" AS \"o\"\nGROUP BY \"o\".\"CustomerId\"",
		},
		{
			"where on groups is having",
			q.From("Order").GroupBy("o", q.F("o.CustomerId")).
				Where("g", q.Gt(q.M(q.F("g"), "Count"), q.C(2))).
				Select("g", q.F("g.Key")),
			"SELECT \"o\".\"CustomerId\"\nFROM \"Orders\" AS \"o\"\nGROUP BY \"o\".\"CustomerId\"\nHAVING COUNT(*) > 2",
		},
		{
			"inner join",
			q.From("Order").Join(q.From("Customer"), "o", q.F("o.CustomerId"), "c", q.F("c.Id"),
				q.L2("o", "c", q.Obj(q.Fld("Id", q.F("o.Id")), q.Fld("City", q.F("c.City"))))),
			"SELECT \"o\".\"Id\", \"c\".\"City\"\nFROM \"Orders\" AS \"o\"\nINNER JOIN \"Customers\" AS \"c\" ON \"o\".\"CustomerId\" = \"c\".\"Id\"",
		},
		{
			"left join",
			q.From("Order").LeftJoin(q.From("Customer"), "o", q.F("o.CustomerId"), "c", q.F("c.Id"),
				q.L2("o", "c", q.Obj(q.Fld("Id", q.F("o.Id")), q.Fld("City", q.F("c.City"))))),
			"SELECT \"o\".\"Id\", \"c\".\"City\"\nFROM \"Orders\" AS \"o\"\nLEFT JOIN \"Customers\" AS \"c\" ON \"o\".\"CustomerId\" = \"c\".\"Id\"",
		},
		{
			"select many over a navigation",
			q.From("Customer").SelectMany("c", q.F("c.Orders"), nil).Select("o", q.F("o.Id")),
			"SELECT \"o\".\"Id\"\nFROM \"Customers\" AS \"c\"\nINNER JOIN \"Orders\" AS \"o\" ON \"c\".\"Id\" = \"o\".\"CustomerId\"",
		},
		{
			"select many over a primitive collection",
			q.From("Order").SelectMany("o", q.F("o.Scores"),
				q.L2("o", "s", q.Obj(q.Fld("Id", q.F("o.Id")), q.Fld("Score", q.F("s"))))),
			"SELECT \"o\".\"Id\", \"s\".\"value\" AS \"Score\"\nFROM \"Orders\" AS \"o\"\nCROSS JOIN json_each(\"o\".\"Scores\") AS \"s\"",
		},
		{
			"union",
			q.From("Customer").Select("c", q.F("c.City")).Union(q.From("Customer").Select("c", q.F("c.Name"))),
			"SELECT \"u\".\"City\"\nFROM (\n    SELECT \"c\".\"City\"\n    FROM \"Customers\" AS \"c\"\n    UNION\n    SELECT \"c0\".\"Name\"\n    FROM \"Customers\" AS \"c0\"\n) AS \"u\"",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, render(t, tt.query))
		})
	}
}

func TestTranslateTerminals(t *testing.T) {
	tests := []struct {
		name  string
		query *q.Builder
		card  querytranslate.Cardinality
		want  string
	}{
		{
			"count",
			q.From("Order").Where("o", q.F("o.Rush")).Count(),
			querytranslate.Scalar,
			"SELECT COUNT(*)\nFROM \"Orders\" AS \"o\"\nWHERE \"o\".\"Rush\"",
		},
		{
			"count of distinct values nests",
			q.From("Customer").Select("c", q.F("c.City")).Distinct().Count(),
			querytranslate.Scalar,
			"SELECT COUNT(*)\nFROM (\n    SELECT DISTINCT \"c\".\"City\"\n    FROM \"Customers\" AS \"c\"\n) AS \"t\"",
		},
		{
			"any",
			q.From("Order").Any(),
			querytranslate.Scalar,
			"SELECT EXISTS (\n    SELECT 1\n    FROM \"Orders\" AS \"o\")",
		},
		{
			"all",
			q.From("Order").All("o", q.F("o.Rush")),
			querytranslate.Scalar,
			"SELECT NOT EXISTS (\n    SELECT 1\n    FROM \"Orders\" AS \"o\"\n    WHERE NOT \"o\".\"Rush\")",
		},
		{
			"average of integers",
			q.From("Order").Average("o", q.F("o.Quantity")),
			querytranslate.Scalar,
			"SELECT AVG(CAST(\"o\".\"Quantity\" AS REAL))\nFROM \"Orders\" AS \"o\"",
		},
		{
			"decimal max",
			q.From("Order").Max("o", q.F("o.Total")),
			querytranslate.Scalar,
			"SELECT ef_max(\"o\".\"Total\")\nFROM \"Orders\" AS \"o\"",
		},
		{
			"first",
			q.From("Customer").OrderBy("c", q.F("c.Id")).Select("c", q.F("c.City")).First(),
			querytranslate.One,
			"SELECT \"c\".\"City\"\nFROM \"Customers\" AS \"c\"\nORDER BY \"c\".\"Id\"\nLIMIT 1",
		},
		{
			"single reads two rows",
			q.From("Customer").Where("c", q.Eq(q.F("c.Id"), q.P("id", queryir.KindInt64))).Select("c", q.F("c.City")).SingleOrDefault(),
			querytranslate.OneOrDefault,
			"SELECT \"c\".\"City\"\nFROM \"Customers\" AS \"c\"\nWHERE \"c\".\"Id\" = @id\nLIMIT 2",
		},
		{
			"element at",
			q.From("Customer").OrderBy("c", q.F("c.Id")).Select("c", q.F("c.City")).ElementAt(q.C(3)),
			querytranslate.One,
			"SELECT \"c\".\"City\"\nFROM \"Customers\" AS \"c\"\nORDER BY \"c\".\"Id\"\nLIMIT 1 OFFSET 3",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := translate(t, tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.card, res.Cardinality)
			assert.Equal(t, tt.want, render(t, tt.query))
		})
	}
}

func TestTranslateRefusals(t *testing.T) {
	tests := []struct {
		name  string
		query *q.Builder
		check func(error) bool
	}{
		{"order by decimal", q.From("Order").OrderBy("o", q.F("o.Total")), sqltranslate.IsNotSupported},
		{"sum of decimals", q.From("Order").Sum("o", q.F("o.Total")), sqltranslate.IsNotSupported},
		{"max of timespans", q.From("Order").Max("o", q.F("o.Window")), sqltranslate.IsNotSupported},
		{"collection projection", q.From("Customer").Select("c", q.F("c.Orders")), sqltranslate.IsUntranslatable},
		{"nested sequence", q.From("Customer").Select("c", q.M(q.F("c.Orders"), "Where", q.L("o", q.F("o.Rush")))), sqltranslate.IsUntranslatable},
		{"returned group", q.From("Order").GroupBy("o", q.F("o.CustomerId")), sqltranslate.IsUntranslatable},
		{"unknown entity", q.From("Custmer"), sqltranslate.IsUnknownMember},
		{"unknown member", q.From("Order").Where("o", q.F("o.Rsh")), sqltranslate.IsUnknownMember},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := translate(t, tt.query)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error: %v", err)
		})
	}
}

func TestUnknownEntitySuggestion(t *testing.T) {
	_, err := translate(t, q.From("Custmer"))
	var te *sqltranslate.TranslationError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "Customer", te.Suggestion)
}

func TestOrderingErrorNamesExpression(t *testing.T) {
	_, err := translate(t, q.From("Order").OrderBy("o", q.F("o.Total")))
	var te *sqltranslate.TranslationError
	require.ErrorAs(t, err, &te)
	assert.Contains(t, te.Expr, "o.Total")
}

func TestThenByNeedsOrderBy(t *testing.T) {
	_, err := translate(t, q.From("Order").ThenBy("o", q.F("o.Id")))
	var te *sqltranslate.TranslationError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, sqltranslate.ErrCodeInvalidQuery, te.Code)
}

func TestEntityShape(t *testing.T) {
	res, err := translate(t, q.From("Item"))
	require.NoError(t, err)

	assert.Equal(t, querytranslate.Many, res.Cardinality)
	assert.Equal(t, "Item", res.Shape.Entity)
	assert.False(t, res.Shape.Scalar())
	require.Len(t, res.Shape.Fields, 5)
	assert.Equal(t, "Price", res.Shape.Fields[3].Name)
	assert.Equal(t, 3, res.Shape.Fields[3].Shape.Column)
}

func TestObjectShape(t *testing.T) {
	res, err := translate(t, q.From("Order").Join(q.From("Customer"), "o", q.F("o.CustomerId"), "c", q.F("c.Id"),
		q.L2("o", "c", q.Obj(q.Fld("Order", q.F("o")), q.Fld("City", q.F("c.City"))))))
	require.NoError(t, err)

	order := res.Shape.Fields[0].Shape
	assert.Equal(t, "Order", order.Entity)
	city := res.Shape.Fields[1]
	assert.Equal(t, "City", city.Name)
	assert.Equal(t, len(order.Fields), city.Shape.Column)
	assert.Len(t, res.Select.Projections, len(order.Fields)+1)
}

func TestDuplicateColumnNamesAreSuffixed(t *testing.T) {
	res, err := translate(t, q.From("Order").Join(q.From("Customer"), "o", q.F("o.CustomerId"), "c", q.F("c.Id"),
		q.L2("o", "c", q.Obj(q.Fld("O", q.F("o")), q.Fld("C", q.F("c"))))))
	require.NoError(t, err)

	aliases := make(map[string]bool)
	for _, p := range res.Select.Projections {
		require.False(t, aliases[p.Alias], "duplicate alias %q", p.Alias)
		aliases[p.Alias] = true
	}
	assert.True(t, aliases["Id0"])
}

func TestCorrelatedSelectManyNeedsApply(t *testing.T) {
	res, err := translate(t, q.From("Customer").SelectMany("c",
		q.Sub(q.From("Order").Where("o", q.Eq(q.F("o.CustomerId"), q.F("c.Id"))).Take(q.C(2))), nil))
	require.NoError(t, err)

	join, ok := res.Select.Tables[1].(*queryir.Join)
	require.True(t, ok)
	assert.Equal(t, queryir.JoinCrossApply, join.Kind)
	assert.Error(t, queryir.Validate(res.Select, dialect.Capabilities()))
}

func TestFilteredNavigationJoinsDerivedTable(t *testing.T) {
	sql := render(t, q.From("Customer").
		SelectMany("c", q.M(q.F("c.Orders"), "Where", q.L("o", q.F("o.Rush"))), nil).
		Select("o", q.F("o.Id")))

	assert.Contains(t, sql, "INNER JOIN (\n")
	assert.Contains(t, sql, "WHERE \"o\".\"Rush\"")
	assert.Contains(t, sql, "\"o\".\"CustomerId\" AS \"Key\"")
	assert.Contains(t, sql, ") AS \"t\" ON \"c\".\"Id\" = \"t\".\"Key\"")
	assert.NotContains(t, sql, "APPLY")
}

func TestPrimitiveCollectionFirst(t *testing.T) {
	sql := render(t, q.From("Order").Select("o", q.M(q.F("o.Scores"), "First")))
	assert.Equal(t, "SELECT \"o\".\"Scores\" ->> '$[0]'\nFROM \"Orders\" AS \"o\"", sql)
}

func TestPrimitiveCollectionOrderedByPosition(t *testing.T) {
	sql := render(t, q.From("Order").Select("o", q.M(q.M(q.F("o.Scores"), "Skip", q.C(1)), "Count")))
	assert.Contains(t, sql, "ORDER BY \"s\".\"key\"")
	assert.Contains(t, sql, "LIMIT -1 OFFSET 1")
}

func TestGroupFilteredCount(t *testing.T) {
	sql := render(t, q.From("Order").GroupBy("o", q.F("o.CustomerId")).Select("g",
		q.M(q.F("g"), "Count", q.L("x", q.F("x.Rush")))))
	assert.Contains(t, sql, "COUNT(CASE\n    WHEN \"o\".\"Rush\" THEN 1\nEND)")
}

func TestTranslatorIsReusable(t *testing.T) {
	tr := querytranslate.New(testutil.ShopModel(), dialect, nil)
	query := q.From("Order").Select("o", q.F("o.Customer.Name")).Expr()

	first, err := tr.Translate(query)
	require.NoError(t, err)
	second, err := tr.Translate(query)
	require.NoError(t, err)
	assert.True(t, queryir.EqualSelect(first.Select, second.Select), "aliases must restart per query")
}
