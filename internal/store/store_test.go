package store_test

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/relq/internal/compiler"
	q "github.com/roach88/relq/internal/query"
	"github.com/roach88/relq/internal/queryir"
	"github.com/roach88/relq/internal/schema"
	"github.com/roach88/relq/internal/sqlite"
	"github.com/roach88/relq/internal/store"
	"github.com/roach88/relq/internal/testutil"
)

var (
	quiet   = slog.New(slog.NewTextHandler(io.Discard, nil))
	dialect = sqlite.New()
)

func open(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:", quiet)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

const peopleCUE = `
entity: Person: {
	table: "People"
	key: ["Id"]
	properties: {
		Id:   {kind: "int64"}
		Name: {kind: "string", nullable: true}
		Tags: {kind: "array", element: "string"}
		Born: {kind: "date", column: "born_on"}
	}
}
`

func TestDDL(t *testing.T) {
	model, err := schema.LoadString(peopleCUE)
	require.NoError(t, err)

	ddl := store.DDL(model, dialect.Mappings())
	require.Len(t, ddl, 1)
	assert.Equal(t, "CREATE TABLE \"People\" (\n"+
		"    \"Id\" INTEGER NOT NULL,\n"+
		"    \"Name\" TEXT,\n"+
		"    \"Tags\" TEXT NOT NULL,\n"+
		"    \"born_on\" TEXT NOT NULL,\n"+
		"    PRIMARY KEY (\"Id\")\n"+
		")", ddl[0])
}

func TestCreateSchemaIsIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "shop.db")
	shop := testutil.ShopModel()

	s, err := store.Open(path, quiet)
	require.NoError(t, err)
	require.NoError(t, s.CreateSchema(ctx, shop, dialect.Mappings()))
	require.NoError(t, s.CreateSchema(ctx, shop, dialect.Mappings()))
	require.NoError(t, s.Close())

	s, err = store.Open(path, quiet)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.CreateSchema(ctx, shop, dialect.Mappings()))

	people, err := schema.LoadString(peopleCUE)
	require.NoError(t, err)
	assert.ErrorIs(t, s.CreateSchema(ctx, people, dialect.Mappings()), store.ErrModelChanged)

	var mode string
	require.NoError(t, s.DB().QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestModelHashTracksLayout(t *testing.T) {
	a, err := store.ModelHash(testutil.ShopModel())
	require.NoError(t, err)
	b, err := store.ModelHash(testutil.ShopModel())
	require.NoError(t, err)
	people, err := schema.LoadString(peopleCUE)
	require.NoError(t, err)
	c, err := store.ModelHash(people)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestInsertRejectsBadRows(t *testing.T) {
	ctx := context.Background()
	model, err := schema.LoadString(peopleCUE)
	require.NoError(t, err)
	s := open(t)
	require.NoError(t, s.CreateSchema(ctx, model, dialect.Mappings()))
	person, _ := model.Entity("Person")

	tests := []struct {
		name string
		row  map[string]any
		want string
	}{
		{"unknown property", map[string]any{"Id": 1, "Tags": []any{}, "Born": "2000-01-01", "Age": 3}, `no property "Age"`},
		{"missing required", map[string]any{"Id": 1, "Tags": []any{}}, "Born is required"},
		{"bad date", map[string]any{"Id": 1, "Tags": []any{}, "Born": "someday"}, "Born"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Insert(ctx, person, dialect.Mappings(), []map[string]any{tt.row})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	err = s.Seed(ctx, model, dialect.Mappings(), map[string][]map[string]any{"Pet": {{"Id": 1}}})
	assert.ErrorContains(t, err, "Pet")
}

func TestInsertConvertsToStoredForm(t *testing.T) {
	ctx := context.Background()
	model, err := schema.LoadString(peopleCUE)
	require.NoError(t, err)
	s := open(t)
	require.NoError(t, s.CreateSchema(ctx, model, dialect.Mappings()))
	person, _ := model.Entity("Person")

	require.NoError(t, s.Insert(ctx, person, dialect.Mappings(), []map[string]any{
		{"Id": 1, "Tags": []any{"a", "b"}, "Born": "1990-05-17"},
	}))

	var name any
	var tags, born string
	require.NoError(t, s.DB().QueryRow(`SELECT "Name", "Tags", "born_on" FROM "People"`).Scan(&name, &tags, &born))
	assert.Nil(t, name)
	assert.Equal(t, `["a","b"]`, tags)
	assert.Equal(t, "1990-05-17", born)
}

// shop opens a store with the shop model and a few rows:
//
//	customers 1 Ann/Berlin, 2 (no name)/Paris, 3 Bob/Bonn
//	orders    1 -> customer 1, 2 -> customer 3, 3 -> no customer
func shop(t *testing.T) (*store.Store, *compiler.Compiler) {
	t.Helper()
	ctx := context.Background()
	model := testutil.ShopModel()
	s := open(t)
	require.NoError(t, s.CreateSchema(ctx, model, dialect.Mappings()))

	order := func(id int, customer any, total string, scores []any) map[string]any {
		return map[string]any{
			"Id": id, "CustomerId": customer, "Total": total, "Quantity": 1,
			"Placed": "2024-01-02 10:00:00", "Window": "01:00:00",
			"Stamp": "2024-01-02T10:00:00+02:00", "Code": "6f1c2a34-0000-4000-8000-000000000001",
			"Priority": 1, "Rush": false, "Scores": scores, "Visits": []any{},
		}
	}
	require.NoError(t, s.Seed(ctx, model, dialect.Mappings(), map[string][]map[string]any{
		"Customer": {
			{"Id": 1, "Name": "Ann", "City": "Berlin", "Tags": []any{"vip"}},
			{"Id": 2, "City": "Paris", "Tags": []any{}},
			{"Id": 3, "Name": "Bob", "City": "Bonn", "Tags": []any{}},
		},
		"Order": {
			order(1, 1, "10.25", []any{1, 2}),
			order(2, 3, "12.5", []any{5}),
			order(3, nil, "9.0", []any{}),
		},
	}))

	c, err := compiler.New(model, dialect, compiler.Options{Logger: quiet})
	require.NoError(t, err)
	return s, c
}

func run(t *testing.T, s *store.Store, c *compiler.Compiler, b *q.Builder, params map[string]any) [][]any {
	t.Helper()
	compiled, err := c.Compile(b.Expr(), params)
	require.NoError(t, err)
	rows, err := s.Query(context.Background(), compiled.Command, params)
	require.NoError(t, err, compiled.Command.Text)
	return rows.Values
}

func TestCompiledQueriesRun(t *testing.T) {
	s, c := shop(t)
	byName := q.From("Customer").
		Where("c", q.Eq(q.F("c.Name"), q.P("name", queryir.KindString))).
		Select("c", q.F("c.Id"))

	tests := []struct {
		name   string
		query  *q.Builder
		params map[string]any
		want   [][]any
	}{
		{"parameter value", byName, map[string]any{"name": "Bob"}, [][]any{{int64(3)}}},
		{"null parameter matches null", byName, map[string]any{"name": nil}, [][]any{{int64(2)}}},
		{
			"decimal arithmetic",
			q.From("Order").
				Where("o", q.Gt(q.Add(q.F("o.Total"), q.C(1.5)), q.C(11))).
				OrderBy("o", q.F("o.Id")).
				Select("o", q.F("o.Id")),
			nil,
			[][]any{{int64(1)}, {int64(2)}},
		},
		{
			"decimal max",
			q.From("Order").Max("o", q.F("o.Total")),
			nil,
			[][]any{{"12.5"}},
		},
		{
			"regular expression",
			q.From("Customer").
				Where("c", q.S("Regex", "IsMatch", q.F("c.City"), q.C("^B"))).
				OrderBy("c", q.F("c.Id")).
				Select("c", q.F("c.Id")),
			nil,
			[][]any{{int64(1)}, {int64(3)}},
		},
		{
			"primitive collection count",
			q.From("Order").
				Where("o", q.Gt(q.M(q.F("o.Scores"), "Count"), q.C(0))).
				OrderBy("o", q.F("o.Id")).
				Select("o", q.F("o.Id")),
			nil,
			[][]any{{int64(1)}, {int64(2)}},
		},
		{
			"optional navigation",
			q.From("Order").OrderBy("o", q.F("o.Id")).Select("o", q.F("o.Customer.Name")),
			nil,
			[][]any{{"Ann"}, {"Bob"}, {nil}},
		},
		{
			"count",
			q.From("Customer").CountWhere("c", q.Ne(q.F("c.Name"), q.C("Ann"))),
			nil,
			[][]any{{int64(2)}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, run(t, s, c, tt.query, tt.params))
		})
	}
}
