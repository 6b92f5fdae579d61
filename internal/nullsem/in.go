package nullsem

import (
	"github.com/roach88/relq/internal/queryir"
)

// in gives IN the source semantics of a Contains call: a null item is
// contained in a list that holds a null.
//
//	a IN (1, NULL)  ->  a IN (1) OR a IS NULL
//	a IN (b, c)     ->  a = b OR a = c          (b or c nullable)
//	a IN ()         ->  false
func (v *Visitor) in(e *queryir.In, allowOptimized bool) (queryir.SqlExpr, bool) {
	if e.Subquery != nil {
		return v.inSubquery(e, allowOptimized)
	}

	item, itemNullable := v.Visit(e.Item, false)
	var (
		values  []queryir.SqlExpr
		hasNull bool
	)
	for _, val := range e.Values {
		pv, pn := v.Visit(val, false)
		switch {
		case queryir.IsNullConstant(pv):
			hasNull = true
		case pn && !v.RelationalNulls():
			// A value that may be null at run time cannot be decided in
			// the list; compare it on its own.
			return v.expandIn(e, allowOptimized)
		default:
			values = append(values, pv)
		}
	}

	if v.RelationalNulls() {
		if hasNull {
			values = append(values, queryir.NewConstant(nil, item.Type(), item.Mapping()))
		}
		return v.inList(e, item, values), true
	}

	if len(values) == 0 {
		if hasNull {
			return v.IsNull(item, itemNullable), false
		}
		return v.Bool(false), false
	}
	out := v.inList(e, item, values)
	if hasNull && itemNullable {
		return v.or(out, v.IsNull(item, itemNullable)), false
	}
	return v.Guard(out, allowOptimized, Operand{item, itemNullable})
}

func (v *Visitor) inList(e *queryir.In, item queryir.SqlExpr, values []queryir.SqlExpr) queryir.SqlExpr {
	if item == e.Item && len(values) == len(e.Values) {
		same := true
		for i := range values {
			same = same && values[i] == e.Values[i]
		}
		if same {
			return e
		}
	}
	return queryir.NewIn(item, values)
}

// expandIn rewrites the list as a chain of equalities, each processed with
// the equality rules.
func (v *Visitor) expandIn(e *queryir.In, allowOptimized bool) (queryir.SqlExpr, bool) {
	var out queryir.SqlExpr
	for _, val := range e.Values {
		eq := queryir.NewBinary(queryir.OpEqual, e.Item, val, v.boolMap)
		if out == nil {
			out = eq
		} else {
			out = v.or(out, eq)
		}
	}
	return v.Visit(out, allowOptimized)
}

// inSubquery handles item IN (subquery). When the item or the projected
// column may be null, the membership test becomes a correlated EXISTS with
// null-aware equality, as long as the subquery can take an extra
// predicate without changing its rows.
//
//	a IN (SELECT x ...)  ->  EXISTS (SELECT 1 ... WHERE x = a OR (x IS NULL AND a IS NULL))
func (v *Visitor) inSubquery(e *queryir.In, allowOptimized bool) (queryir.SqlExpr, bool) {
	item, itemNullable := v.Visit(e.Item, false)
	sub := v.subquery(e.Subquery)
	_, projNullable := v.Visit(sub.Projections[0].Expr, false)

	if !itemNullable && !projNullable {
		if item == e.Item && sub == e.Subquery {
			return e, false
		}
		return queryir.NewInSubquery(item, sub), false
	}
	if v.RelationalNulls() || !composable(sub) {
		out := queryir.SqlExpr(e)
		if item != e.Item || sub != e.Subquery {
			out = queryir.NewInSubquery(item, sub)
		}
		// A null row in the subquery makes a miss NULL rather than false.
		// Guarding the test itself turns that NULL into false.
		return v.Guard(out, allowOptimized, Operand{item, itemNullable}, Operand{out, projNullable})
	}

	proj := sub.Projections[0].Expr
	saved := v.join
	v.join = 0
	match, _ := v.equality(queryir.NewBinary(queryir.OpEqual, proj, item, v.boolMap), true)
	v.join = saved
	exists := sub.
		WithPredicate(queryir.And(sub.Predicate, match, v.boolMap)).
		WithProjections()
	return &queryir.Exists{Subquery: exists}, false
}

// composable reports whether sel can take an extra WHERE term without
// changing which rows it produces.
func composable(sel *queryir.Select) bool {
	return sel.Limit == nil && sel.Offset == nil && !sel.IsGrouped() && sel.Having == nil
}
