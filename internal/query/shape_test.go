package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/relq/internal/queryir"
)

func TestShapeKeyIgnoresParameterValues(t *testing.T) {
	build := func() Expr {
		return From("Order").Where("o", Gt(F("o.Total"), P("min", queryir.KindInt64))).Expr()
	}

	k1, err := ShapeKey(build())
	require.NoError(t, err)
	k2, err := ShapeKey(build())
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
}

func TestShapeKeyDistinguishesShapes(t *testing.T) {
	base := From("Order")
	variants := []Expr{
		base.Expr(),
		base.Where("o", Gt(F("o.Total"), C(10))).Expr(),
		base.Where("o", Gt(F("o.Total"), C(11))).Expr(),
		base.Where("o", Ge(F("o.Total"), C(10))).Expr(),
		base.Where("o", Gt(F("o.Total"), P("min", queryir.KindInt64))).Expr(),
		base.Where("o", Gt(F("o.Total"), P("min", queryir.KindDecimal))).Expr(),
		base.Take(C(1)).Expr(),
		base.OrderBy("o", F("o.Id")).Expr(),
		base.OrderByDescending("o", F("o.Id")).Expr(),
	}

	seen := map[string]int{}
	for i, v := range variants {
		k, err := ShapeKey(v)
		require.NoError(t, err)
		if j, dup := seen[k]; dup {
			t.Fatalf("variants %d and %d share shape key %s", j, i, k)
		}
		seen[k] = i
	}
}

func TestParamsFirstAppearanceOrder(t *testing.T) {
	e := From("Order").
		Where("o", And(
			Gt(F("o.Total"), P("b", queryir.KindInt64)),
			Lt(F("o.Total"), P("a", queryir.KindInt64)))).
		Take(P("b", queryir.KindInt64)).
		Expr()

	var names []string
	for _, p := range Params(e) {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"b", "a"}, names)
}

func TestFormat(t *testing.T) {
	e := From("Customer").
		Where("c", And(M(F("c.Name"), "StartsWith", C("Jo")), Not(F("c.Archived")))).
		Take(P("n", queryir.KindInt32)).
		Expr()

	assert.Equal(t,
		`Customer.Where(c => (c.Name.StartsWith("Jo") && !c.Archived)).Take(@n)`,
		Format(e))
}
