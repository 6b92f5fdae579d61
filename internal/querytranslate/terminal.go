package querytranslate

import (
	"github.com/roach88/relq/internal/query"
	"github.com/roach88/relq/internal/queryir"
	"github.com/roach88/relq/internal/sqltranslate"
)

func isElementOperator(name string) bool {
	switch name {
	case "First", "FirstOrDefault", "Single", "SingleOrDefault", "ElementAt", "ElementAtOrDefault":
		return true
	}
	return false
}

// terminal translates an operator that ends a query into a single value.
func (c *compilation) terminal(call *query.Call, scope *sqltranslate.Scope) (queryir.SqlExpr, error) {
	src, err := c.query(call.Target, scope)
	if err != nil {
		return nil, err
	}
	var v queryir.SqlExpr
	switch call.Method {
	case "Count", "LongCount":
		v, err = c.count(src, call, scope)
	case "Sum", "Average", "Min", "Max":
		v, err = c.aggregate(src, call, scope)
	case "Any":
		v, err = c.anyOp(src, call, scope)
	case "All":
		v, err = c.all(src, call, scope)
	case "Contains":
		v, err = c.contains(src, call, scope)
	default:
		if !isElementOperator(call.Method) {
			return nil, sqltranslate.Untranslatable(query.Format(call), "%s is not a terminal operator", call.Method)
		}
		v, err = c.single(src, call, scope)
	}
	if err != nil {
		return nil, annotate(err, call)
	}
	return v, nil
}

// filter applies an optional predicate argument, as in Count(x => ...).
func (c *compilation) filter(src *source, call *query.Call, scope *sqltranslate.Scope) (*source, error) {
	if len(call.Args) == 0 {
		return src, nil
	}
	l, err := lambdaArg(call, 0, 1)
	if err != nil {
		return nil, err
	}
	if src.sel == nil {
		pred, err := c.predicate(l, scope, src.elem)
		if err != nil {
			return nil, err
		}
		src.group.filter = c.f.And(src.group.filter, pred)
		return src, nil
	}
	return c.where(src, l, scope)
}

// subquery finishes src as a scalar subquery over agg. Orderings cannot
// change an aggregate and are dropped.
func (c *compilation) subquery(src *source, agg queryir.SqlExpr) *queryir.ScalarSubquery {
	sel := src.sel.WithProjections(queryir.Projection{Expr: agg})
	if !src.limited() {
		sel = sel.WithOrderings()
	}
	return &queryir.ScalarSubquery{Subquery: sel, Kind: agg.Type(), TypeMapping: agg.Mapping()}
}

func (c *compilation) count(src *source, call *query.Call, scope *sqltranslate.Scope) (queryir.SqlExpr, error) {
	kind := queryir.KindInt32
	if call.Method == "LongCount" {
		kind = queryir.KindInt64
	}
	src, err := c.filter(src, call, scope)
	if err != nil {
		return nil, err
	}
	if src.sel == nil {
		var arg queryir.SqlExpr = &queryir.Fragment{SQL: "*"}
		if src.group.distinct {
			e, ok := src.elem.(queryir.SqlExpr)
			if !ok {
				return nil, sqltranslate.Untranslatable(query.Format(call), "only single values can be counted distinct")
			}
			arg = &queryir.Distinct{Operand: c.when(src.group.filter, e)}
		} else if src.group.filter != nil {
			arg = c.when(src.group.filter, c.f.Int(1))
		}
		return c.f.Aggregate("COUNT", kind, false, arg), nil
	}
	if src.plainExpansion() {
		return c.f.Function("json_array_length", kind, src.exp.arr), nil
	}
	if src.composite() {
		if src, err = c.pushdown(src); err != nil {
			return nil, err
		}
	}
	return c.subquery(src, c.f.Aggregate("COUNT", kind, false, &queryir.Fragment{SQL: "*"})), nil
}

// when is CASE WHEN test THEN v END, or v when there is no test.
func (c *compilation) when(test, v queryir.SqlExpr) queryir.SqlExpr {
	if test == nil {
		return v
	}
	return c.f.Case([]queryir.CaseWhen{{Test: test, Result: v}}, nil)
}

func (c *compilation) aggregate(src *source, call *query.Call, scope *sqltranslate.Scope) (queryir.SqlExpr, error) {
	if len(call.Args) > 1 {
		return nil, sqltranslate.InvalidQuery(query.Format(call), "%s takes an optional selector", call.Method)
	}
	if src.sel != nil && src.composite() {
		var err error
		if src, err = c.pushdown(src); err != nil {
			return nil, err
		}
	}
	var arg queryir.SqlExpr
	if len(call.Args) == 1 {
		l, err := lambdaArg(call, 0, 1)
		if err != nil {
			return nil, err
		}
		if arg, err = c.scalars.ScalarLambda(l, scope, src.elem); err != nil {
			return nil, err
		}
	} else {
		e, ok := src.elem.(queryir.SqlExpr)
		if !ok {
			return nil, sqltranslate.Untranslatable(query.Format(call), "%s needs a selector over %T rows", call.Method, src.elem)
		}
		arg = e
	}

	var filter queryir.SqlExpr
	distinct := false
	if src.sel == nil {
		filter, distinct = src.group.filter, src.group.distinct
	}
	agg, err := c.aggregateOf(call.Method, arg, filter, distinct)
	if err != nil {
		return nil, err
	}
	if src.sel == nil {
		return agg, nil
	}
	return c.subquery(src, agg), nil
}

// aggregateOf builds Sum, Average, Min or Max over arg, restricted to the
// rows passing filter.
func (c *compilation) aggregateOf(name string, arg, filter queryir.SqlExpr, distinct bool) (queryir.SqlExpr, error) {
	kind := arg.Type()
	switch name {
	case "Sum", "Average":
		if !kind.IsNumeric() {
			return nil, sqltranslate.Untranslatable("", "%s over %s values", name, kind)
		}
	default:
		if !kind.Comparable() {
			return nil, sqltranslate.Untranslatable("", "%s over %s values", name, kind)
		}
	}
	if name == "Average" && kind != queryir.KindFloat64 && kind != queryir.KindDecimal {
		arg = c.f.Convert(arg, queryir.KindFloat64)
	}
	arg = c.when(filter, arg)
	if distinct {
		arg = &queryir.Distinct{Operand: arg}
	}

	custom, err := c.dialect.Aggregate(c.f, name, arg)
	if err != nil {
		return nil, err
	}
	if custom != nil {
		return custom, nil
	}
	switch name {
	case "Sum":
		zero, err := queryir.Normalize(int64(0), kind)
		if err != nil {
			return nil, sqltranslate.InvalidQuery("", "%v", err)
		}
		return c.f.Coalesce(c.f.Aggregate("SUM", kind, true, arg), c.f.Constant(zero, kind)), nil
	case "Average":
		return c.f.Aggregate("AVG", arg.Type(), true, arg), nil
	case "Min":
		return c.f.Aggregate("MIN", kind, true, arg), nil
	default:
		return c.f.Aggregate("MAX", kind, true, arg), nil
	}
}

func (c *compilation) anyOp(src *source, call *query.Call, scope *sqltranslate.Scope) (queryir.SqlExpr, error) {
	src, err := c.filter(src, call, scope)
	if err != nil {
		return nil, err
	}
	if src.sel == nil {
		count := c.f.Aggregate("COUNT", queryir.KindInt32, false, c.when(src.group.filter, c.f.Int(1)))
		return c.f.Binary(queryir.OpGreaterThan, count, c.f.Int(0)), nil
	}
	if src.plainExpansion() {
		n := c.f.Function("json_array_length", queryir.KindInt32, src.exp.arr)
		return c.f.Binary(queryir.OpGreaterThan, n, c.f.Int(0)), nil
	}
	return &queryir.Exists{Subquery: rows(src)}, nil
}

// rows is src as the subquery of EXISTS: no projection, no ordering
// unless a limit depends on it.
func rows(src *source) *queryir.Select {
	sel := src.sel.WithProjections()
	if !src.limited() {
		sel = sel.WithOrderings()
	}
	return sel
}

func (c *compilation) all(src *source, call *query.Call, scope *sqltranslate.Scope) (queryir.SqlExpr, error) {
	l, err := lambdaArg(call, 0, 1)
	if err != nil {
		return nil, err
	}
	if src.sel == nil {
		return nil, sqltranslate.Untranslatable(query.Format(call), "All over the rows of a group")
	}
	if src.limited() || src.sel.Distinct {
		if src, err = c.pushdown(src); err != nil {
			return nil, err
		}
	}
	pred, err := c.predicate(l, scope, src.elem)
	if err != nil {
		return nil, err
	}
	if src.sel.IsGrouped() {
		src.sel = src.sel.WithHaving(c.f.And(src.sel.Having, c.f.Not(pred)))
	} else {
		src.sel = src.sel.WithPredicate(c.f.And(src.sel.Predicate, c.f.Not(pred)))
	}
	return c.f.Not(&queryir.Exists{Subquery: rows(src)}), nil
}

func (c *compilation) contains(src *source, call *query.Call, scope *sqltranslate.Scope) (queryir.SqlExpr, error) {
	if len(call.Args) != 1 {
		return nil, sqltranslate.InvalidQuery(query.Format(call), "Contains takes one value")
	}
	if src.sel == nil {
		return nil, sqltranslate.Untranslatable(query.Format(call), "Contains over the rows of a group")
	}
	item, err := c.scalars.Translate(call.Args[0], scope)
	if err != nil {
		return nil, err
	}
	switch it := item.(type) {
	case *queryir.EntityProjection:
		elem, ok := src.elem.(*queryir.EntityProjection)
		if !ok || elem.Entity != it.Entity {
			return nil, sqltranslate.Untranslatable(query.Format(call), "Contains of a %s in a query of %T", it.Entity, src.elem)
		}
		ent, ok := c.model.Entity(it.Entity)
		if !ok {
			return nil, sqltranslate.InvalidQuery(query.Format(call), "unknown entity %q", it.Entity)
		}
		if src.limited() || src.sel.Distinct {
			if src, err = c.pushdown(src); err != nil {
				return nil, err
			}
			elem = src.elem.(*queryir.EntityProjection)
		}
		match, err := c.keyJoin(elem, it, ent.Key, ent.Key)
		if err != nil {
			return nil, err
		}
		src.sel = src.sel.WithPredicate(c.f.And(src.sel.Predicate, match))
		return &queryir.Exists{Subquery: rows(src)}, nil
	case queryir.SqlExpr:
		elem, ok := src.elem.(queryir.SqlExpr)
		if !ok {
			return nil, sqltranslate.Untranslatable(query.Format(call), "Contains of a single value in a query of %T", src.elem)
		}
		sel := src.sel.WithProjections(queryir.Projection{Expr: elem})
		if !src.limited() {
			sel = sel.WithOrderings()
		}
		return queryir.NewInSubquery(it, sel), nil
	}
	return nil, sqltranslate.Untranslatable(query.Format(call), "Contains of %T", item)
}

// single translates First, Single and ElementAt in scalar position.
func (c *compilation) single(src *source, call *query.Call, scope *sqltranslate.Scope) (queryir.SqlExpr, error) {
	if src.plainExpansion() && (call.Method == "ElementAt" || call.Method == "First") {
		var i queryir.SqlExpr = c.f.Int(0)
		if call.Method == "ElementAt" {
			if len(call.Args) != 1 {
				return nil, sqltranslate.InvalidQuery(query.Format(call), "ElementAt takes an index")
			}
			var err error
			if i, err = c.scalars.TranslateScalar(call.Args[0], scope); err != nil {
				return nil, err
			}
		} else if len(call.Args) > 0 {
			return c.elementValue(src, call, scope)
		}
		elem := queryir.ElementOf(src.exp.arr)
		return &queryir.JsonScalar{
			Json:        src.exp.arr,
			Path:        []queryir.PathSegment{{Index: i}},
			Kind:        elem,
			Nullable:    true,
			TypeMapping: c.f.Mapping(elem),
		}, nil
	}
	return c.elementValue(src, call, scope)
}

// elementValue reads the one row of src as a scalar subquery. The row
// must be a single value.
func (c *compilation) elementValue(src *source, call *query.Call, scope *sqltranslate.Scope) (queryir.SqlExpr, error) {
	src, err := c.element(src, call, scope, false)
	if err != nil {
		return nil, err
	}
	v, ok := src.elem.(queryir.SqlExpr)
	if !ok {
		return nil, sqltranslate.Untranslatable(query.Format(call), "%s can only read a single value here; project one with Select", call.Method)
	}
	sel := src.sel.WithProjections(queryir.Projection{Expr: v})
	return &queryir.ScalarSubquery{Subquery: sel, Kind: v.Type(), TypeMapping: v.Mapping()}, nil
}

// element limits src to the row First, Single or ElementAt reads. A Single
// at the root reads two rows so the caller can tell one from many.
func (c *compilation) element(src *source, call *query.Call, scope *sqltranslate.Scope, root bool) (*source, error) {
	if src.sel == nil {
		return nil, sqltranslate.Untranslatable(query.Format(call), "%s over the rows of a group", call.Method)
	}
	var err error
	switch call.Method {
	case "ElementAt", "ElementAtOrDefault":
		if len(call.Args) != 1 {
			return nil, sqltranslate.InvalidQuery(query.Format(call), "%s takes an index", call.Method)
		}
		i, err := c.scalars.TranslateScalar(call.Args[0], scope)
		if err != nil {
			return nil, err
		}
		if !i.Type().IsIntegral() {
			return nil, sqltranslate.InvalidQuery(query.Format(call), "index is %s, not an integer", i.Type())
		}
		if src.limited() {
			if src, err = c.pushdown(src); err != nil {
				return nil, err
			}
		}
		c.keyOrder(src)
		src.sel = src.sel.WithOffset(i).WithLimit(c.f.Int(1))
		return src, nil
	}

	if src, err = c.filter(src, call, scope); err != nil {
		return nil, err
	}
	if src.sel.Limit != nil {
		if src, err = c.pushdown(src); err != nil {
			return nil, err
		}
	}
	n := int64(1)
	if root && (call.Method == "Single" || call.Method == "SingleOrDefault") {
		n = 2
	}
	c.keyOrder(src)
	src.sel = src.sel.WithLimit(c.f.Int(n))
	return src, nil
}
