package query

import (
	"strings"

	"github.com/roach88/relq/internal/queryir"
)

// Builder composes a query fluently:
//
//	q := query.From("Order").
//		Where("o", query.Gt(query.F("o.Total"), query.C(10))).
//		OrderBy("o", query.F("o.Id")).
//		Skip(query.C(5)).
//		Take(query.C(10))
//
// Each method returns a new Builder; a Builder can be reused as the base of
// several queries.
type Builder struct {
	expr Expr
}

// From starts a query over an entity set.
func From(entity string) *Builder {
	return &Builder{expr: &Entity{Name: entity}}
}

// Over starts a query over any collection-valued expression, such as a
// navigation (F("c.Orders")), a primitive collection or an array parameter.
func Over(source Expr) *Builder {
	return &Builder{expr: source}
}

// Expr returns the built expression tree.
func (b *Builder) Expr() Expr {
	return b.expr
}

func (b *Builder) call(method string, args ...Expr) *Builder {
	return &Builder{expr: &Call{Target: b.expr, Method: method, Args: args}}
}

func (b *Builder) Where(param string, pred Expr) *Builder {
	return b.call("Where", L(param, pred))
}

func (b *Builder) Select(param string, selector Expr) *Builder {
	return b.call("Select", L(param, selector))
}

func (b *Builder) OrderBy(param string, key Expr) *Builder {
	return b.call("OrderBy", L(param, key))
}

func (b *Builder) OrderByDescending(param string, key Expr) *Builder {
	return b.call("OrderByDescending", L(param, key))
}

func (b *Builder) ThenBy(param string, key Expr) *Builder {
	return b.call("ThenBy", L(param, key))
}

func (b *Builder) ThenByDescending(param string, key Expr) *Builder {
	return b.call("ThenByDescending", L(param, key))
}

func (b *Builder) Skip(n Expr) *Builder { return b.call("Skip", n) }
func (b *Builder) Take(n Expr) *Builder { return b.call("Take", n) }
func (b *Builder) Distinct() *Builder   { return b.call("Distinct") }

func (b *Builder) Count() *Builder     { return b.call("Count") }
func (b *Builder) LongCount() *Builder { return b.call("LongCount") }

// CountWhere is Count(param => pred).
func (b *Builder) CountWhere(param string, pred Expr) *Builder {
	return b.call("Count", L(param, pred))
}

func (b *Builder) Sum(param string, selector Expr) *Builder {
	return b.call("Sum", L(param, selector))
}

func (b *Builder) Average(param string, selector Expr) *Builder {
	return b.call("Average", L(param, selector))
}

func (b *Builder) Min(param string, selector Expr) *Builder {
	return b.call("Min", L(param, selector))
}

func (b *Builder) Max(param string, selector Expr) *Builder {
	return b.call("Max", L(param, selector))
}

func (b *Builder) Any() *Builder { return b.call("Any") }

// AnyWhere is Any(param => pred).
func (b *Builder) AnyWhere(param string, pred Expr) *Builder {
	return b.call("Any", L(param, pred))
}

func (b *Builder) All(param string, pred Expr) *Builder {
	return b.call("All", L(param, pred))
}

func (b *Builder) Contains(item Expr) *Builder { return b.call("Contains", item) }

func (b *Builder) First() *Builder          { return b.call("First") }
func (b *Builder) FirstOrDefault() *Builder { return b.call("FirstOrDefault") }
func (b *Builder) Single() *Builder         { return b.call("Single") }
func (b *Builder) SingleOrDefault() *Builder {
	return b.call("SingleOrDefault")
}

// FirstWhere is First(param => pred).
func (b *Builder) FirstWhere(param string, pred Expr) *Builder {
	return b.call("First", L(param, pred))
}

func (b *Builder) ElementAt(i Expr) *Builder { return b.call("ElementAt", i) }
func (b *Builder) ElementAtOrDefault(i Expr) *Builder {
	return b.call("ElementAtOrDefault", i)
}

func (b *Builder) Union(other *Builder) *Builder     { return b.call("Union", other.expr) }
func (b *Builder) Concat(other *Builder) *Builder    { return b.call("Concat", other.expr) }
func (b *Builder) Intersect(other *Builder) *Builder { return b.call("Intersect", other.expr) }
func (b *Builder) Except(other *Builder) *Builder    { return b.call("Except", other.expr) }

// GroupBy groups by key. The result is a sequence of groupings with a Key
// member, usually followed by Select over aggregates.
func (b *Builder) GroupBy(param string, key Expr) *Builder {
	return b.call("GroupBy", L(param, key))
}

// Join is an inner equi-join. result receives the outer and inner element.
func (b *Builder) Join(inner *Builder, outerParam string, outerKey Expr, innerParam string, innerKey Expr, result *Lambda) *Builder {
	return b.call("Join", inner.expr, L(outerParam, outerKey), L(innerParam, innerKey), result)
}

// LeftJoin is a left outer equi-join; the inner element may be null in
// result.
func (b *Builder) LeftJoin(inner *Builder, outerParam string, outerKey Expr, innerParam string, innerKey Expr, result *Lambda) *Builder {
	return b.call("LeftJoin", inner.expr, L(outerParam, outerKey), L(innerParam, innerKey), result)
}

// SelectMany flattens the collection selected for each element. result may
// be nil, in which case the collection elements are the result.
func (b *Builder) SelectMany(param string, collection Expr, result *Lambda) *Builder {
	if result == nil {
		return b.call("SelectMany", L(param, collection))
	}
	return b.call("SelectMany", L(param, collection), result)
}

// Expression helpers.

// C is a constant.
func C(v any) *Const { return &Const{Value: v} }

// CK is a constant of an explicit kind, e.g. a NULL string.
func CK(v any, kind queryir.Kind) *Const { return &Const{Value: v, Kind: kind} }

// P is a scalar parameter.
func P(name string, kind queryir.Kind) *Param { return &Param{Name: name, Kind: kind} }

// PA is an array parameter with elements of kind elem.
func PA(name string, elem queryir.Kind) *Param {
	return &Param{Name: name, Kind: queryir.KindArray, Elem: elem}
}

// F parses a dotted member path rooted at a lambda parameter: "o.Customer.Name".
func F(path string) Expr {
	parts := strings.Split(path, ".")
	var e Expr = &Ref{Name: parts[0]}
	for _, p := range parts[1:] {
		e = &Member{Target: e, Name: p}
	}
	return e
}

// M is a method call on target.
func M(target Expr, method string, args ...Expr) *Call {
	return &Call{Target: target, Method: method, Args: args}
}

// S is a static call.
func S(typ, method string, args ...Expr) *Static {
	return &Static{Type: typ, Method: method, Args: args}
}

// L is a one-parameter lambda.
func L(param string, body Expr) *Lambda {
	return &Lambda{Params: []string{param}, Body: body}
}

// L2 is a two-parameter lambda, as used by join result selectors.
func L2(a, b string, body Expr) *Lambda {
	return &Lambda{Params: []string{a, b}, Body: body}
}

// Obj is an anonymous object.
func Obj(fields ...Field) *New { return &New{Fields: fields} }

// Fld is one anonymous object field.
func Fld(name string, value Expr) Field { return Field{Name: name, Value: value} }

// Sub wraps a built query so it can be used as an expression.
func Sub(b *Builder) Expr { return b.expr }

func bin(op BinaryOp) func(l, r Expr) *Binary {
	return func(l, r Expr) *Binary { return &Binary{Op: op, Left: l, Right: r} }
}

var (
	Add      = bin(OpAdd)
	Minus    = bin(OpSub)
	Mul      = bin(OpMul)
	Div      = bin(OpDiv)
	Mod      = bin(OpMod)
	And      = bin(OpAndAlso)
	Or       = bin(OpOrElse)
	Eq       = bin(OpEq)
	Ne       = bin(OpNe)
	Lt       = bin(OpLt)
	Le       = bin(OpLe)
	Gt       = bin(OpGt)
	Ge       = bin(OpGe)
	Coalesce = bin(OpCoalesce)
)

// Not is logical negation.
func Not(e Expr) *Unary { return &Unary{Op: OpNot, Operand: e} }

// Neg is arithmetic negation.
func Neg(e Expr) *Unary { return &Unary{Op: OpNegate, Operand: e} }

// If is the conditional operator.
func If(test, then, els Expr) *Cond { return &Cond{Test: test, Then: then, Else: els} }

// Conv is an explicit conversion.
func Conv(e Expr, kind queryir.Kind) *Convert { return &Convert{Operand: e, Kind: kind} }

// Idx indexes a collection.
func Idx(target, i Expr) *Index { return &Index{Target: target, Index: i} }
