// Package query is the source-level query model: the expression tree a
// caller composes and hands to the compiler.
//
// A query is a chain of operator calls rooted at an entity set:
//
//	Take(OrderBy(Where(Entity(Order), o => o.Total > 10), o => o.Id), 10)
//
// Operators are ordinary method calls (Call) whose target is the query so
// far; the same nodes appear inside lambdas for subqueries such as
// o.Items.Count(). Build trees with the fluent Builder or decode them from
// YAML/JSON documents with Decode.
package query

import (
	"github.com/roach88/relq/internal/queryir"
)

// Expr is a node of the source expression tree.
//
// This is a sealed interface - only types in this package implement it.
type Expr interface {
	expr() // Marker method - seals interface to this package
}

// Const is a literal value. Kind is derived from the Go value when zero.
type Const struct {
	Value any
	Kind  queryir.Kind
}

// Param is a named parameter whose value is supplied at execution time.
type Param struct {
	Name string
	Kind queryir.Kind
	Elem queryir.Kind // element kind when Kind is KindArray
}

// Ref refers to a lambda parameter in scope.
type Ref struct {
	Name string
}

// Member is Target.Name: a property, navigation, JSON field or a built-in
// member such as string Length.
type Member struct {
	Target Expr
	Name   string
}

// Call is Target.Method(Args...). Query operators are Calls whose target
// is a query.
type Call struct {
	Target Expr
	Method string
	Args   []Expr
}

// Static is Type.Method(Args...), e.g. Math.Abs(x) or
// Functions.Like(s, pattern).
type Static struct {
	Type   string
	Method string
	Args   []Expr
}

// BinaryOp enumerates source-level binary operators.
type BinaryOp int

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpAndAlso // &&
	OpOrElse  // ||
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpCoalesce // ??
	OpBitAnd
	OpBitOr
)

var binaryTokens = [...]string{
	"+", "-", "*", "/", "%", "&&", "||",
	"==", "!=", "<", "<=", ">", ">=", "??", "&", "|",
}

func (o BinaryOp) String() string { return binaryTokens[o] }

// Binary is Left Op Right.
type Binary struct {
	Op    BinaryOp
	Left  Expr
	Right Expr
}

// UnaryOp enumerates source-level unary operators.
type UnaryOp int

const (
	OpNot UnaryOp = iota
	OpNegate
	OpBitNot
)

var unaryTokens = [...]string{"!", "neg", "~"}

func (o UnaryOp) String() string { return unaryTokens[o] }

// Unary is Op Operand.
type Unary struct {
	Op      UnaryOp
	Operand Expr
}

// Cond is Test ? Then : Else.
type Cond struct {
	Test Expr
	Then Expr
	Else Expr
}

// Lambda is (Params...) => Body.
type Lambda struct {
	Params []string
	Body   Expr
}

// Field is one member of an anonymous object.
type Field struct {
	Name  string
	Value Expr
}

// New is an anonymous object: new { A = x, B = y }.
type New struct {
	Fields []Field
}

// Entity is the root set of an entity type.
type Entity struct {
	Name string
}

// Index is Target[Index] on a collection.
type Index struct {
	Target Expr
	Index  Expr
}

// Convert is an explicit conversion of Operand to Kind.
type Convert struct {
	Operand Expr
	Kind    queryir.Kind
}

func (*Const) expr()   {}
func (*Param) expr()   {}
func (*Ref) expr()     {}
func (*Member) expr()  {}
func (*Call) expr()    {}
func (*Static) expr()  {}
func (*Binary) expr()  {}
func (*Unary) expr()   {}
func (*Cond) expr()    {}
func (*Lambda) expr()  {}
func (*New) expr()     {}
func (*Entity) expr()  {}
func (*Index) expr()   {}
func (*Convert) expr() {}

// ConstKind returns the kind of a constant, deriving it from the value
// when unset.
func (c *Const) ConstKind() queryir.Kind {
	if c.Kind != queryir.KindUnknown {
		return c.Kind
	}
	return queryir.KindOf(c.Value)
}

// Params collects every parameter in e, in first-appearance order.
func Params(e Expr) []*Param {
	var out []*Param
	seen := map[string]bool{}
	Walk(e, func(n Expr) {
		if p, ok := n.(*Param); ok && !seen[p.Name] {
			seen[p.Name] = true
			out = append(out, p)
		}
	})
	return out
}

// Walk calls f for e and every descendant, in pre-order.
func Walk(e Expr, f func(Expr)) {
	if e == nil {
		return
	}
	f(e)
	switch n := e.(type) {
	case *Member:
		Walk(n.Target, f)
	case *Call:
		Walk(n.Target, f)
		for _, a := range n.Args {
			Walk(a, f)
		}
	case *Static:
		for _, a := range n.Args {
			Walk(a, f)
		}
	case *Binary:
		Walk(n.Left, f)
		Walk(n.Right, f)
	case *Unary:
		Walk(n.Operand, f)
	case *Cond:
		Walk(n.Test, f)
		Walk(n.Then, f)
		Walk(n.Else, f)
	case *Lambda:
		Walk(n.Body, f)
	case *New:
		for _, fld := range n.Fields {
			Walk(fld.Value, f)
		}
	case *Index:
		Walk(n.Target, f)
		Walk(n.Index, f)
	case *Convert:
		Walk(n.Operand, f)
	}
}
