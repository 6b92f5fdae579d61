package querytranslate

import (
	"github.com/roach88/relq/internal/query"
	"github.com/roach88/relq/internal/queryir"
	"github.com/roach88/relq/internal/sqltranslate"
)

// apply applies one sequence operator to src.
func (c *compilation) apply(src *source, call *query.Call, scope *sqltranslate.Scope) (*source, error) {
	if src.sel == nil {
		return c.applyGroup(src, call, scope)
	}
	switch call.Method {
	case "Where":
		l, err := lambdaArg(call, 0, 1)
		if err != nil {
			return nil, err
		}
		return c.where(src, l, scope)
	case "Select":
		return c.selectOp(src, call, scope)
	case "OrderBy", "OrderByDescending", "ThenBy", "ThenByDescending":
		return c.order(src, call, scope)
	case "Skip", "Take":
		return c.page(src, call, scope)
	case "Distinct":
		if src.limited() {
			var err error
			if src, err = c.pushdown(src); err != nil {
				return nil, err
			}
		}
		src.sel = src.sel.WithDistinct(true)
		return src, nil
	case "GroupBy":
		return c.groupBy(src, call, scope)
	case "Join", "LeftJoin":
		return c.join(src, call, scope)
	case "SelectMany":
		return c.selectMany(src, call, scope)
	case "Union", "Concat", "Intersect", "Except":
		return c.setOperation(src, call, scope)
	}
	return nil, sqltranslate.Untranslatable(query.Format(call), "unknown query operator %s", call.Method)
}

// applyGroup applies an operator to the rows of one group. Only operators
// an aggregate can absorb are allowed.
func (c *compilation) applyGroup(src *source, call *query.Call, scope *sqltranslate.Scope) (*source, error) {
	switch call.Method {
	case "Where":
		l, err := lambdaArg(call, 0, 1)
		if err != nil {
			return nil, err
		}
		pred, err := c.predicate(l, scope, src.elem)
		if err != nil {
			return nil, err
		}
		src.group.filter = c.f.And(src.group.filter, pred)
		return src, nil
	case "Select":
		l, err := lambdaArg(call, 0, 1)
		if err != nil {
			return nil, err
		}
		n, err := c.scalars.Lambda(l, scope, src.elem)
		if err != nil {
			return nil, err
		}
		src.elem = n
		return src, nil
	case "Distinct":
		src.group.distinct = true
		return src, nil
	}
	return nil, sqltranslate.Untranslatable(query.Format(call),
		"%s is not supported on the rows of a group; only Where, Select and Distinct can precede an aggregate", call.Method)
}

func (c *compilation) predicate(l *query.Lambda, scope *sqltranslate.Scope, elem queryir.Node) (queryir.SqlExpr, error) {
	pred, err := c.scalars.ScalarLambda(l, scope, elem)
	if err != nil {
		return nil, err
	}
	if pred.Type() != queryir.KindBool {
		return nil, sqltranslate.InvalidQuery(query.Format(l), "predicate is %s, not bool", pred.Type())
	}
	return pred, nil
}

func (c *compilation) where(src *source, l *query.Lambda, scope *sqltranslate.Scope) (*source, error) {
	if src.limited() || src.sel.Distinct {
		var err error
		if src, err = c.pushdown(src); err != nil {
			return nil, err
		}
	}
	pred, err := c.predicate(l, scope, src.elem)
	if err != nil {
		return nil, err
	}
	if src.sel.IsGrouped() {
		src.sel = src.sel.WithHaving(c.f.And(src.sel.Having, pred))
	} else {
		src.sel = src.sel.WithPredicate(c.f.And(src.sel.Predicate, pred))
	}
	return src, nil
}

func (c *compilation) selectOp(src *source, call *query.Call, scope *sqltranslate.Scope) (*source, error) {
	l, err := lambdaArg(call, 0, 1)
	if err != nil {
		return nil, err
	}
	if src.sel.Distinct {
		if src, err = c.pushdown(src); err != nil {
			return nil, err
		}
	}
	n, err := c.scalars.Lambda(l, scope, src.elem)
	if err != nil {
		return nil, err
	}
	if _, ok := n.(*queryir.CollectionNavigation); ok {
		return nil, sqltranslate.Untranslatable(query.Format(l), "collection-valued projections are not supported")
	}
	src.elem = n
	return src, nil
}

func (c *compilation) order(src *source, call *query.Call, scope *sqltranslate.Scope) (*source, error) {
	l, err := lambdaArg(call, 0, 1)
	if err != nil {
		return nil, err
	}
	then := call.Method == "ThenBy" || call.Method == "ThenByDescending"
	asc := call.Method == "OrderBy" || call.Method == "ThenBy"
	if then && len(src.sel.Orderings) == 0 {
		return nil, sqltranslate.InvalidQuery(query.Format(call), "%s must follow OrderBy", call.Method)
	}
	if !then && src.limited() {
		if src, err = c.pushdown(src); err != nil {
			return nil, err
		}
	}
	key, err := c.scalars.ScalarLambda(l, scope, src.elem)
	if err != nil {
		return nil, err
	}
	if !key.Type().Comparable() {
		return nil, sqltranslate.Untranslatable(query.Format(l), "values of kind %s cannot be ordered", key.Type())
	}
	if err := c.dialect.CheckOrdering(key.Type()); err != nil {
		return nil, annotate(err, l)
	}
	o := queryir.NewOrdering(key, asc)
	if then {
		src.sel = src.sel.AddOrdering(o)
	} else {
		src.sel = src.sel.WithOrderings(o)
	}
	return src, nil
}

func (c *compilation) page(src *source, call *query.Call, scope *sqltranslate.Scope) (*source, error) {
	if len(call.Args) != 1 {
		return nil, sqltranslate.InvalidQuery(query.Format(call), "%s takes a count", call.Method)
	}
	n, err := c.scalars.TranslateScalar(call.Args[0], scope)
	if err != nil {
		return nil, err
	}
	if !n.Type().IsIntegral() {
		return nil, sqltranslate.InvalidQuery(query.Format(call), "%s count is %s, not an integer", call.Method, n.Type())
	}
	// Take after Skip composes; anything else after a limit nests.
	if src.sel.Limit != nil || (call.Method == "Skip" && src.sel.Offset != nil) {
		if src, err = c.pushdown(src); err != nil {
			return nil, err
		}
	}
	c.keyOrder(src)
	if call.Method == "Skip" {
		src.sel = src.sel.WithOffset(n)
	} else {
		src.sel = src.sel.WithLimit(n)
	}
	return src, nil
}

func (c *compilation) groupBy(src *source, call *query.Call, scope *sqltranslate.Scope) (*source, error) {
	l, err := lambdaArg(call, 0, 1)
	if err != nil {
		return nil, err
	}
	if src.composite() {
		if src, err = c.pushdown(src); err != nil {
			return nil, err
		}
	}
	key, err := c.scalars.Lambda(l, scope, src.elem)
	if err != nil {
		return nil, err
	}
	keys, err := scalars(key)
	if err != nil {
		return nil, annotate(err, l)
	}
	src.sel = src.sel.WithGroupBy(keys...).WithOrderings()
	src.elem = &queryir.GroupingProjection{Key: key, Element: src.elem}
	src.exp = nil
	return src, nil
}

// scalars lists the columns of a grouping or join key.
func scalars(n queryir.Node) ([]queryir.SqlExpr, error) {
	switch n := n.(type) {
	case queryir.SqlExpr:
		return []queryir.SqlExpr{n}, nil
	case *queryir.EntityProjection:
		out := make([]queryir.SqlExpr, len(n.Columns))
		for i, pc := range n.Columns {
			out[i] = pc.Column
		}
		return out, nil
	case *queryir.ObjectProjection:
		var out []queryir.SqlExpr
		for _, f := range n.Fields {
			s, err := scalars(f.Value)
			if err != nil {
				return nil, err
			}
			out = append(out, s...)
		}
		return out, nil
	}
	return nil, sqltranslate.Untranslatable("", "a key must be made of single values")
}

// simple reports whether src is a bare table that can be joined as is.
func simple(src *source) bool {
	sel := src.sel
	if len(sel.Tables) != 1 || sel.Predicate != nil || src.composite() || len(sel.Orderings) > 0 {
		return false
	}
	_, ok := sel.Tables[0].(*queryir.Table)
	return ok
}

func (c *compilation) join(src *source, call *query.Call, scope *sqltranslate.Scope) (*source, error) {
	if len(call.Args) != 4 {
		return nil, sqltranslate.InvalidQuery(query.Format(call), "%s takes a query, two key selectors and a result selector", call.Method)
	}
	outerKeyL, err := lambdaArg(call, 1, 1)
	if err != nil {
		return nil, err
	}
	innerKeyL, err := lambdaArg(call, 2, 1)
	if err != nil {
		return nil, err
	}
	resultL, err := lambdaArg(call, 3, 2)
	if err != nil {
		return nil, err
	}
	if src.composite() {
		if src, err = c.pushdown(src); err != nil {
			return nil, err
		}
	}
	inner, err := c.query(call.Args[0], scope)
	if err != nil {
		return nil, err
	}
	if inner.sel == nil {
		return nil, sqltranslate.Untranslatable(query.Format(call.Args[0]), "a group cannot be joined")
	}

	outerKey, err := c.scalars.Lambda(outerKeyL, scope, src.elem)
	if err != nil {
		return nil, err
	}
	innerKey, err := c.scalars.Lambda(innerKeyL, scope, inner.elem)
	if err != nil {
		return nil, err
	}
	if !simple(inner) {
		// Carry the key out of the derived table with the element.
		inner.elem = &queryir.ObjectProjection{Fields: []queryir.Field{{Value: inner.elem}, {Name: "Key", Value: innerKey}}}
		if inner, err = c.pushdown(inner); err != nil {
			return nil, err
		}
		obj := inner.elem.(*queryir.ObjectProjection)
		inner.elem, innerKey = obj.Fields[0].Value, obj.Fields[1].Value
	}

	okeys, err := scalars(outerKey)
	if err != nil {
		return nil, annotate(err, outerKeyL)
	}
	ikeys, err := scalars(innerKey)
	if err != nil {
		return nil, annotate(err, innerKeyL)
	}
	if len(okeys) != len(ikeys) {
		return nil, sqltranslate.InvalidQuery(query.Format(call), "join keys have %d and %d parts", len(okeys), len(ikeys))
	}
	var on queryir.SqlExpr
	for i := range okeys {
		on = c.f.And(on, c.f.Equal(okeys[i], ikeys[i]))
	}

	kind := queryir.JoinInner
	innerElem := inner.elem
	if call.Method == "LeftJoin" {
		kind = queryir.JoinLeft
		innerElem = nullable(innerElem)
	}
	src.sel = src.sel.AddTable(&queryir.Join{Kind: kind, Table: inner.sel.Tables[0], On: on})
	c.adopt(inner, src)

	res, err := c.scalars.Lambda(resultL, scope, src.elem, innerElem)
	if err != nil {
		return nil, err
	}
	src.elem = res
	src.exp = nil
	return src, nil
}

// nullable marks every column of n as possibly NULL, for the optional side
// of a left join.
func nullable(n queryir.Node) queryir.Node {
	switch n := n.(type) {
	case *queryir.ColumnRef:
		cp := *n
		cp.Nullable = true
		return &cp
	case *queryir.EntityProjection:
		out := &queryir.EntityProjection{Entity: n.Entity, Table: n.Table, Nullable: true}
		for _, pc := range n.Columns {
			out.Columns = append(out.Columns, queryir.PropertyColumn{Property: pc.Property, Column: nullable(pc.Column).(*queryir.ColumnRef)})
		}
		return out
	case *queryir.ObjectProjection:
		out := &queryir.ObjectProjection{Fields: make([]queryir.Field, len(n.Fields))}
		for i, f := range n.Fields {
			out.Fields[i] = queryir.Field{Name: f.Name, Value: nullable(f.Value)}
		}
		return out
	}
	return n
}

func (c *compilation) selectMany(src *source, call *query.Call, scope *sqltranslate.Scope) (*source, error) {
	if len(call.Args) == 0 || len(call.Args) > 2 {
		return nil, sqltranslate.InvalidQuery(query.Format(call), "SelectMany takes a collection selector and an optional result selector")
	}
	collL, err := lambdaArg(call, 0, 1)
	if err != nil {
		return nil, err
	}
	var resultL *query.Lambda
	if len(call.Args) == 2 {
		if resultL, err = lambdaArg(call, 1, 2); err != nil {
			return nil, err
		}
	}
	if src.composite() {
		if src, err = c.pushdown(src); err != nil {
			return nil, err
		}
	}
	inner, err := c.query(collL.Body, scope.Bind(collL.Params[0], src.elem))
	if err != nil {
		return nil, err
	}
	if inner.sel == nil {
		return nil, sqltranslate.Untranslatable(query.Format(collL), "the rows of a group cannot be flattened")
	}

	table, err := c.navigationJoin(src, inner)
	if err != nil {
		return nil, err
	}
	switch {
	case table != nil:
	case inner.plainExpansion():
		table = &queryir.Join{Kind: queryir.JoinCross, Table: inner.sel.Tables[0]}
	default:
		kind := queryir.JoinCross
		if correlated(inner.sel, src.sel) {
			kind = queryir.JoinCrossApply
		}
		if !simple(inner) {
			if inner, err = c.pushdown(inner); err != nil {
				return nil, err
			}
		}
		table = &queryir.Join{Kind: kind, Table: inner.sel.Tables[0]}
	}
	src.sel = src.sel.AddTable(table)
	c.adopt(inner, src)

	if resultL == nil {
		src.elem = inner.elem
	} else {
		res, err := c.scalars.Lambda(resultL, scope, src.elem, inner.elem)
		if err != nil {
			return nil, err
		}
		src.elem = res
	}
	src.exp = nil
	return src, nil
}

// navigationJoin joins the rows of a collection navigation to their owner
// on the foreign key. A filtered navigation is joined as a derived table;
// one with a limit is left to an apply join, since its limit counts rows
// per owner. It returns nil when inner is not such a source.
func (c *compilation) navigationJoin(src, inner *source) (queryir.TableSource, error) {
	if inner.corr == nil {
		return nil, nil
	}
	rest, ok := stripConjunct(inner.sel.Predicate, inner.corr)
	if !ok {
		return nil, nil
	}
	trial := &source{sel: inner.sel.WithPredicate(rest), elem: inner.elem}
	if trial.limited() || correlated(trial.sel, src.sel) {
		return nil, nil
	}
	if simple(trial) {
		inner.sel = trial.sel
		return &queryir.Join{Kind: queryir.JoinInner, Table: trial.sel.Tables[0], On: inner.corr}, nil
	}

	pairs := equalities(inner.corr)
	fields := []queryir.Field{{Value: trial.elem}}
	for _, p := range pairs {
		fields = append(fields, queryir.Field{Name: "Key", Value: p[1]})
	}
	trial.elem = &queryir.ObjectProjection{Fields: fields}
	pushed, err := c.pushdown(trial)
	if err != nil {
		return nil, err
	}
	obj := pushed.elem.(*queryir.ObjectProjection)
	var on queryir.SqlExpr
	for i, p := range pairs {
		on = c.f.And(on, c.f.Equal(p[0], obj.Fields[i+1].Value.(queryir.SqlExpr)))
	}
	c.adopt(pushed, inner)
	inner.sel, inner.elem = pushed.sel, obj.Fields[0].Value
	return &queryir.Join{Kind: queryir.JoinInner, Table: pushed.sel.Tables[0], On: on}, nil
}

// stripConjunct removes part from the AND chain pred.
func stripConjunct(pred, part queryir.SqlExpr) (queryir.SqlExpr, bool) {
	if pred == part {
		return nil, true
	}
	b, ok := pred.(*queryir.Binary)
	if !ok || b.Op != queryir.OpAnd {
		return nil, false
	}
	if b.Right == part {
		return b.Left, true
	}
	if rest, ok := stripConjunct(b.Left, part); ok {
		if rest == nil {
			return b.Right, true
		}
		return queryir.And(rest, b.Right, b.TypeMapping), true
	}
	return nil, false
}

// equalities lists the owner and dependent sides of a correlation.
func equalities(corr queryir.SqlExpr) [][2]queryir.SqlExpr {
	b, ok := corr.(*queryir.Binary)
	if !ok {
		return nil
	}
	switch b.Op {
	case queryir.OpAnd:
		return append(equalities(b.Left), equalities(b.Right)...)
	case queryir.OpEqual:
		return [][2]queryir.SqlExpr{{b.Left, b.Right}}
	}
	return nil
}

var setOps = map[string]queryir.SetOp{
	"Union":     queryir.SetUnion,
	"Concat":    queryir.SetUnionAll,
	"Intersect": queryir.SetIntersect,
	"Except":    queryir.SetExcept,
}

func (c *compilation) setOperation(src *source, call *query.Call, scope *sqltranslate.Scope) (*source, error) {
	if len(call.Args) != 1 {
		return nil, sqltranslate.InvalidQuery(query.Format(call), "%s takes one query", call.Method)
	}
	other, err := c.query(call.Args[0], scope)
	if err != nil {
		return nil, err
	}
	if other.sel == nil {
		return nil, sqltranslate.Untranslatable(query.Format(call.Args[0]), "a group cannot be combined")
	}
	left, lprojs, err := operand(src)
	if err != nil {
		return nil, err
	}
	right, rprojs, err := operand(other)
	if err != nil {
		return nil, err
	}
	if len(lprojs) != len(rprojs) {
		return nil, sqltranslate.Untranslatable(query.Format(call), "%s operands have different shapes", call.Method)
	}
	nulls := make([]bool, len(lprojs))
	for i := range lprojs {
		if lprojs[i].Expr.Type() != rprojs[i].Expr.Type() {
			return nil, sqltranslate.Untranslatable(query.Format(call), "%s operands differ in column %d: %s and %s",
				call.Method, i, lprojs[i].Expr.Type(), rprojs[i].Expr.Type())
		}
		nulls[i] = mayBeNull(lprojs[i].Expr) || mayBeNull(rprojs[i].Expr)
	}

	alias := c.alias("u")
	next := 0
	out := &source{
		sel: &queryir.Select{Tables: []queryir.TableSource{&queryir.SetOperation{
			Op: setOps[call.Method], Left: left, Right: right, Alias: alias,
		}}},
		elem: rebind(src.elem, alias, lprojs, nulls, &next),
	}
	c.owners[alias] = out
	return out, nil
}

// operand lays a set operation side out as named columns. Orderings
// without a limit have no effect inside a set operation and are dropped.
func operand(src *source) (*queryir.Select, []queryir.Projection, error) {
	fl := newFlattener(true)
	if _, err := fl.node(src.elem, ""); err != nil {
		return nil, nil, err
	}
	sel := src.sel.WithProjections(fl.projs...)
	if !src.limited() {
		sel = sel.WithOrderings()
	}
	return sel, fl.projs, nil
}

// lambdaArg returns argument i of call, which must be a lambda of the
// given arity.
func lambdaArg(call *query.Call, i, params int) (*query.Lambda, error) {
	if i >= len(call.Args) {
		return nil, sqltranslate.InvalidQuery(query.Format(call), "%s is missing argument %d", call.Method, i+1)
	}
	l, ok := call.Args[i].(*query.Lambda)
	if !ok || len(l.Params) != params {
		return nil, sqltranslate.InvalidQuery(query.Format(call), "argument %d of %s must be a lambda of %d parameters", i+1, call.Method, params)
	}
	return l, nil
}
