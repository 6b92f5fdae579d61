package nullsem

import (
	"strings"

	"github.com/roach88/relq/internal/queryir"
)

// Visitor is the per-call state of one Process run. Extensions receive it
// to process the operands of their nodes.
type Visitor struct {
	p         *Processor
	params    map[string]any
	cacheable bool
	boolMap   *queryir.TypeMapping
	join      int // > 0 while processing a join predicate
}

// RelationalNulls reports whether null compensation is disabled.
func (v *Visitor) RelationalNulls() bool {
	return v.p.opts.RelationalNulls
}

// Visit processes e and reports whether the result can be NULL.
//
// allowOptimized is true in predicate positions, where a NULL result is
// treated the same as false. Otherwise the rewrite must be exact: a boolean
// result that could be NULL where the source expression is false gains
// explicit guards.
func (v *Visitor) Visit(e queryir.SqlExpr, allowOptimized bool) (queryir.SqlExpr, bool) {
	switch e := e.(type) {
	case *queryir.ColumnRef:
		return e, e.Nullable
	case *queryir.Constant:
		return e, e.Value == nil
	case *queryir.Parameter:
		return v.parameter(e)
	case *queryir.Unary:
		return v.unary(e, allowOptimized)
	case *queryir.Binary:
		return v.binary(e, allowOptimized)
	case *queryir.Function:
		return v.function(e)
	case *queryir.Case:
		return v.caseExpr(e)
	case *queryir.Exists:
		return v.exists(e), false
	case *queryir.In:
		return v.in(e, allowOptimized)
	case *queryir.ScalarSubquery:
		if s := v.subquery(e.Subquery); s != e.Subquery {
			return &queryir.ScalarSubquery{Subquery: s, Kind: e.Kind, TypeMapping: e.TypeMapping}, true
		}
		return e, true
	case *queryir.JsonScalar:
		doc, nullable := v.Visit(e.Json, false)
		path, changed := v.path(e.Path)
		if doc != e.Json || changed {
			c := *e
			c.Json, c.Path = doc, path
			return &c, nullable || e.Nullable
		}
		return e, nullable || e.Nullable
	case *queryir.Collate:
		op, nullable := v.Visit(e.Operand, false)
		if op != e.Operand {
			return &queryir.Collate{Operand: op, Collation: e.Collation}, nullable
		}
		return e, nullable
	case *queryir.Distinct:
		op, nullable := v.Visit(e.Operand, false)
		if op != e.Operand {
			return &queryir.Distinct{Operand: op}, nullable
		}
		return e, nullable
	case *queryir.Like:
		return v.like(e, allowOptimized)
	case *queryir.Fragment:
		return e, false
	case queryir.CustomExpr:
		return v.custom(e, allowOptimized)
	}
	return e, true
}

func (v *Visitor) parameter(p *queryir.Parameter) (queryir.SqlExpr, bool) {
	if v.params == nil {
		return p, true
	}
	val, ok := v.params[p.Name]
	if !ok {
		return p, true
	}
	if val == nil {
		v.cacheable = false
		return &queryir.Constant{Kind: p.Kind, ElementKind: p.ElementKind, TypeMapping: p.TypeMapping}, true
	}
	return p, false
}

func (v *Visitor) subquery(sel *queryir.Select) *queryir.Select {
	saved := v.join
	v.join = 0
	defer func() { v.join = saved }()
	return v.selectExpr(sel)
}

func (v *Visitor) exists(e *queryir.Exists) queryir.SqlExpr {
	if s := v.subquery(e.Subquery); s != e.Subquery {
		return &queryir.Exists{Subquery: s}
	}
	return e
}

func (v *Visitor) path(path []queryir.PathSegment) ([]queryir.PathSegment, bool) {
	var out []queryir.PathSegment
	for i, s := range path {
		if s.Index == nil {
			continue
		}
		idx, _ := v.Visit(s.Index, false)
		if idx == s.Index {
			continue
		}
		if out == nil {
			out = append([]queryir.PathSegment(nil), path...)
		}
		out[i].Index = idx
	}
	if out == nil {
		return path, false
	}
	return out, true
}

// Bool returns the boolean constant b.
func (v *Visitor) Bool(b bool) *queryir.Constant {
	return queryir.NewConstant(b, queryir.KindBool, v.boolMap)
}

func (v *Visitor) and(l, r queryir.SqlExpr) queryir.SqlExpr {
	return queryir.And(l, r, v.boolMap)
}

func (v *Visitor) or(l, r queryir.SqlExpr) queryir.SqlExpr {
	return queryir.Or(l, r, v.boolMap)
}

// IsNull builds e IS NULL, simplified for operands of known nullness.
func (v *Visitor) IsNull(e queryir.SqlExpr, nullable bool) queryir.SqlExpr {
	return v.nullTest(e, nullable, queryir.OpIsNull)
}

// IsNotNull builds e IS NOT NULL, simplified for operands of known
// nullness.
func (v *Visitor) IsNotNull(e queryir.SqlExpr, nullable bool) queryir.SqlExpr {
	return v.nullTest(e, nullable, queryir.OpIsNotNull)
}

// nullTest builds a null test over an already processed operand.
//
// A test on a non-nullable operand folds to a constant. A test on an
// operator or function that is NULL exactly when one of its operands is
// NULL distributes over those operands:
//
//	(a + b) IS NULL      ->  a IS NULL OR b IS NULL
//	f(a, b) IS NOT NULL  ->  a IS NOT NULL AND b IS NOT NULL
func (v *Visitor) nullTest(e queryir.SqlExpr, nullable bool, op queryir.UnaryOp) queryir.SqlExpr {
	isNull := op == queryir.OpIsNull
	if !nullable {
		return v.Bool(!isNull)
	}
	if queryir.IsNullConstant(e) {
		return v.Bool(isNull)
	}
	if parts := v.propagatingOperands(e); parts != nil {
		var out queryir.SqlExpr
		for _, part := range parts {
			// part is already processed; visiting it again only measures it.
			if _, pn := v.Visit(part, false); !pn {
				continue
			}
			t := v.nullTest(part, true, op)
			switch {
			case out == nil:
				out = t
			case isNull:
				out = v.or(out, t)
			default:
				out = v.and(out, t)
			}
		}
		if out != nil {
			return out
		}
	}
	return queryir.NewUnary(op, e, v.boolMap)
}

// propagatingOperands returns the operands of e when e is NULL if and only
// if one of them is, or nil.
func (v *Visitor) propagatingOperands(e queryir.SqlExpr) []queryir.SqlExpr {
	switch e := e.(type) {
	case *queryir.Binary:
		if e.Op.IsArithmetic() || e.Op == queryir.OpBitAnd || e.Op == queryir.OpBitOr {
			return []queryir.SqlExpr{e.Left, e.Right}
		}
		if e.Op == queryir.OpConcat && v.RelationalNulls() {
			return []queryir.SqlExpr{e.Left, e.Right}
		}
	case *queryir.Unary:
		if e.Op == queryir.OpNegate || e.Op == queryir.OpBitNot || e.Op == queryir.OpConvert {
			return []queryir.SqlExpr{e.Operand}
		}
	case *queryir.Function:
		if strictlyPropagating(e) {
			return e.Args
		}
	}
	return nil
}

// strictlyPropagating reports whether f is NULL exactly when one of its
// arguments is NULL: it may return NULL and every argument propagates.
func strictlyPropagating(f *queryir.Function) bool {
	if f.Aggregate || !f.Nullable || len(f.Args) == 0 {
		return false
	}
	for _, p := range f.ArgsPropagateNull {
		if !p {
			return false
		}
	}
	return true
}

func (v *Visitor) unary(e *queryir.Unary, allowOptimized bool) (queryir.SqlExpr, bool) {
	switch e.Op {
	case queryir.OpIsNull, queryir.OpIsNotNull:
		op, nullable := v.Visit(e.Operand, false)
		return v.nullTest(op, nullable, e.Op), false

	case queryir.OpNot:
		op, nullable := v.Visit(e.Operand, false)
		switch x := op.(type) {
		case *queryir.Constant:
			if b, ok := x.Value.(bool); ok {
				return v.Bool(!b), false
			}
		case Negatable:
			if !nullable {
				return x.Negate(), false
			}
		case *queryir.Unary:
			switch x.Op {
			case queryir.OpNot:
				return x.Operand, nullable
			case queryir.OpIsNull:
				return queryir.NewUnary(queryir.OpIsNotNull, x.Operand, v.boolMap), false
			case queryir.OpIsNotNull:
				return queryir.NewUnary(queryir.OpIsNull, x.Operand, v.boolMap), false
			}
		}
		if op == e.Operand {
			return e, nullable
		}
		return queryir.NewUnary(queryir.OpNot, op, e.TypeMapping), nullable
	}

	op, nullable := v.Visit(e.Operand, false)
	if op == e.Operand {
		return e, nullable
	}
	c := *e
	c.Operand = op
	return &c, nullable
}

func (v *Visitor) binary(e *queryir.Binary, allowOptimized bool) (queryir.SqlExpr, bool) {
	switch {
	case e.Op.IsLogical():
		return v.logical(e, allowOptimized)
	case e.Op == queryir.OpEqual || e.Op == queryir.OpNotEqual:
		return v.equality(e, allowOptimized)
	case e.Op.IsComparison():
		l, ln := v.Visit(e.Left, false)
		r, rn := v.Visit(e.Right, false)
		if queryir.IsNullConstant(l) || queryir.IsNullConstant(r) {
			if v.RelationalNulls() {
				return rebuild(e, l, r), true
			}
			// Nothing is ordered against null.
			return v.Bool(false), false
		}
		return v.Guard(rebuild(e, l, r), allowOptimized, Operand{l, ln}, Operand{r, rn})
	case e.Op == queryir.OpConcat:
		l, ln := v.Visit(e.Left, false)
		r, rn := v.Visit(e.Right, false)
		if v.RelationalNulls() {
			return rebuild(e, l, r), ln || rn
		}
		// Null strings concatenate as empty.
		if ln {
			l = v.emptyIfNull(l)
		}
		if rn {
			r = v.emptyIfNull(r)
		}
		return rebuild(e, l, r), false
	}
	l, ln := v.Visit(e.Left, false)
	r, rn := v.Visit(e.Right, false)
	return rebuild(e, l, r), ln || rn
}

func rebuild(e *queryir.Binary, l, r queryir.SqlExpr) queryir.SqlExpr {
	if l == e.Left && r == e.Right {
		return e
	}
	c := *e
	c.Left, c.Right = l, r
	return &c
}

func (v *Visitor) emptyIfNull(e queryir.SqlExpr) queryir.SqlExpr {
	empty := queryir.NewConstant("", queryir.KindString, e.Mapping())
	if queryir.IsNullConstant(e) {
		return empty
	}
	return queryir.NewFunction("COALESCE", []queryir.SqlExpr{e, empty}, []bool{false, false}, false, e.Type(), e.Mapping())
}

// logical keeps the three-valued truth table of AND and OR, which already
// agrees with the source semantics once the operands are null-correct, and
// folds constant operands.
func (v *Visitor) logical(e *queryir.Binary, allowOptimized bool) (queryir.SqlExpr, bool) {
	l, ln := v.Visit(e.Left, allowOptimized)
	r, rn := v.Visit(e.Right, allowOptimized)

	identity := e.Op == queryir.OpAnd // true AND x = x; false OR x = x
	switch {
	case queryir.IsBoolConstant(l, identity):
		return r, rn
	case queryir.IsBoolConstant(r, identity):
		return l, ln
	case queryir.IsBoolConstant(l, !identity), queryir.IsBoolConstant(r, !identity):
		// false AND x is false and true OR x is true, even for a NULL x.
		return v.Bool(!identity), false
	}
	return rebuild(e, l, r), ln || rn
}

// equality gives = and <> the source semantics, where null equals null
// and never equals a value:
//
//	a = b   ->  a = b OR (a IS NULL AND b IS NULL)
//	a <> b  ->  (a <> b OR a IS NULL OR b IS NULL) AND (a IS NOT NULL OR b IS NOT NULL)
//
// with the terms for non-nullable operands removed. Join predicates keep
// plain equality: null keys never join.
func (v *Visitor) equality(e *queryir.Binary, allowOptimized bool) (queryir.SqlExpr, bool) {
	l, ln := v.Visit(e.Left, false)
	r, rn := v.Visit(e.Right, false)
	equal := e.Op == queryir.OpEqual

	lnull, rnull := queryir.IsNullConstant(l), queryir.IsNullConstant(r)
	switch {
	case lnull && rnull:
		if v.RelationalNulls() {
			return rebuild(e, l, r), true
		}
		return v.Bool(equal), false
	case lnull || rnull:
		if v.RelationalNulls() {
			return rebuild(e, l, r), true
		}
		operand, nullable := l, ln
		if lnull {
			operand, nullable = r, rn
		}
		if equal {
			return v.IsNull(operand, nullable), false
		}
		return v.IsNotNull(operand, nullable), false
	}

	out := rebuild(e, l, r)
	if !ln && !rn {
		return out, false
	}
	if v.RelationalNulls() {
		return out, true
	}
	if v.join > 0 && equal {
		return out, true
	}

	if equal {
		if allowOptimized && (!ln || !rn) {
			// One side is never null: a NULL result can only mean the
			// nullable side is null, which is false either way.
			return out, true
		}
		if ln && rn {
			bothNull := v.and(v.IsNull(l, true), v.IsNull(r, true))
			if allowOptimized {
				return v.or(out, bothNull), true
			}
			return v.or(v.and(v.and(out, v.IsNotNull(l, true)), v.IsNotNull(r, true)), bothNull), false
		}
		nullable := l
		if !ln {
			nullable = r
		}
		return v.and(out, v.IsNotNull(nullable, true)), false
	}

	if ln && rn {
		anyNull := v.or(v.or(out, v.IsNull(l, true)), v.IsNull(r, true))
		notBoth := v.or(v.IsNotNull(l, true), v.IsNotNull(r, true))
		return v.and(anyNull, notBoth), false
	}
	nullable := l
	if !ln {
		nullable = r
	}
	return v.or(out, v.IsNull(nullable, true)), false
}

// Operand is a processed operand and its nullability.
type Operand struct {
	Expr     queryir.SqlExpr
	Nullable bool
}

// Guard completes a predicate that is NULL when one of its operands is
// NULL and should then be false. In optimized positions the NULL already
// behaves as false and pred is returned as is; in exact positions each
// nullable operand gains an IS NOT NULL guard.
func (v *Visitor) Guard(pred queryir.SqlExpr, allowOptimized bool, operands ...Operand) (queryir.SqlExpr, bool) {
	nullable := false
	for _, o := range operands {
		nullable = nullable || o.Nullable
	}
	if !nullable {
		return pred, false
	}
	if allowOptimized || v.RelationalNulls() {
		return pred, true
	}
	out := pred
	for _, o := range operands {
		if o.Nullable {
			out = v.and(out, v.IsNotNull(o.Expr, true))
		}
	}
	return out, false
}

func (v *Visitor) function(f *queryir.Function) (queryir.SqlExpr, bool) {
	args := f.Args
	nullables := make([]bool, len(f.Args))
	for i, a := range f.Args {
		na, n := v.Visit(a, false)
		nullables[i] = n
		if na != a {
			if sameSlice(args, f.Args) {
				args = append([]queryir.SqlExpr(nil), f.Args...)
			}
			args[i] = na
		}
	}
	out := queryir.SqlExpr(f)
	if !sameSlice(args, f.Args) {
		c := *f
		c.Args = args
		out = &c
	}
	return out, functionNullable(f, nullables)
}

func sameSlice(a, b []queryir.SqlExpr) bool {
	return len(a) == len(b) && (len(a) == 0 || &a[0] == &b[0])
}

// functionNullable derives a call's nullability. A call whose arguments all
// propagate is NULL only through them. COALESCE is NULL only when all of
// its arguments are. Other calls that may return NULL are assumed to.
func functionNullable(f *queryir.Function, args []bool) bool {
	if !f.Nullable {
		return false
	}
	if f.Aggregate {
		return true
	}
	if strings.EqualFold(f.Name, "COALESCE") {
		for _, n := range args {
			if !n {
				return false
			}
		}
		return true
	}
	if !strictlyPropagating(f) {
		return true
	}
	for _, n := range args {
		if n {
			return true
		}
	}
	return false
}

func (v *Visitor) caseExpr(e *queryir.Case) (queryir.SqlExpr, bool) {
	changed := false
	operand := e.Operand
	if operand != nil {
		operand, _ = v.Visit(e.Operand, false)
		changed = operand != e.Operand
	}
	nullable := e.Else == nil
	whens := make([]queryir.CaseWhen, len(e.Whens))
	for i, w := range e.Whens {
		// A WHEN that is NULL does not match, like one that is false.
		test, _ := v.Visit(w.Test, operand == nil)
		result, rn := v.Visit(w.Result, false)
		nullable = nullable || rn
		whens[i] = queryir.CaseWhen{Test: test, Result: result}
		changed = changed || test != w.Test || result != w.Result
	}
	els := e.Else
	if els != nil {
		var en bool
		els, en = v.Visit(e.Else, false)
		nullable = nullable || en
		changed = changed || els != e.Else
	}
	if !changed {
		return e, nullable
	}
	return &queryir.Case{Operand: operand, Whens: whens, Else: els, Kind: e.Kind, TypeMapping: e.TypeMapping}, nullable
}

func (v *Visitor) like(e *queryir.Like, allowOptimized bool) (queryir.SqlExpr, bool) {
	m, mn := v.Visit(e.Match, false)
	p, pn := v.Visit(e.Pattern, false)
	var esc queryir.SqlExpr
	en := false
	if e.Escape != nil {
		esc, en = v.Visit(e.Escape, false)
	}
	if queryir.IsNullConstant(m) || queryir.IsNullConstant(p) {
		if !v.RelationalNulls() {
			return v.Bool(false), false
		}
	}
	out := queryir.SqlExpr(e)
	if m != e.Match || p != e.Pattern || esc != e.Escape {
		out = &queryir.Like{Match: m, Pattern: p, Escape: esc}
	}
	return v.Guard(out, allowOptimized, Operand{m, mn}, Operand{p, pn}, Operand{esc, en})
}

func (v *Visitor) custom(e queryir.CustomExpr, allowOptimized bool) (queryir.SqlExpr, bool) {
	for _, ext := range v.p.opts.Extensions {
		if out, nullable, ok := ext.Visit(v, e, allowOptimized); ok {
			return out, nullable
		}
	}
	children := e.Children()
	next := make([]queryir.SqlExpr, len(children))
	changed := false
	for i, c := range children {
		next[i], _ = v.Visit(c, false)
		changed = changed || next[i] != c
	}
	if changed {
		return e.WithChildren(next), true
	}
	return e, true
}
