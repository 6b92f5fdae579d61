package queryir

import (
	"fmt"
	"reflect"
)

// Children returns the direct scalar operands of e in a fixed order. Nested
// Select nodes (EXISTS, IN subquery, scalar subquery) are not included.
func Children(e SqlExpr) []SqlExpr {
	switch n := e.(type) {
	case *Unary:
		return []SqlExpr{n.Operand}
	case *Binary:
		return []SqlExpr{n.Left, n.Right}
	case *Function:
		return n.Args
	case *Case:
		var out []SqlExpr
		if n.Operand != nil {
			out = append(out, n.Operand)
		}
		for _, w := range n.Whens {
			out = append(out, w.Test, w.Result)
		}
		if n.Else != nil {
			out = append(out, n.Else)
		}
		return out
	case *In:
		return append([]SqlExpr{n.Item}, n.Values...)
	case *JsonScalar:
		out := []SqlExpr{n.Json}
		for _, seg := range n.Path {
			if seg.Index != nil {
				out = append(out, seg.Index)
			}
		}
		return out
	case *Collate:
		return []SqlExpr{n.Operand}
	case *Like:
		if n.Escape != nil {
			return []SqlExpr{n.Match, n.Pattern, n.Escape}
		}
		return []SqlExpr{n.Match, n.Pattern}
	case *Distinct:
		return []SqlExpr{n.Operand}
	case CustomExpr:
		return n.Children()
	}
	return nil
}

// MapChildren returns e with f applied to each direct operand. If f returns
// every operand unchanged, e itself is returned, so unchanged subtrees stay
// shared.
func MapChildren(e SqlExpr, f func(SqlExpr) SqlExpr) SqlExpr {
	switch n := e.(type) {
	case *Unary:
		op := f(n.Operand)
		if op == n.Operand {
			return n
		}
		c := *n
		c.Operand = op
		return &c
	case *Binary:
		l, r := f(n.Left), f(n.Right)
		if l == n.Left && r == n.Right {
			return n
		}
		c := *n
		c.Left, c.Right = l, r
		return &c
	case *Function:
		args, changed := mapList(n.Args, f)
		if !changed {
			return n
		}
		c := *n
		c.Args = args
		return &c
	case *Case:
		changed := false
		c := *n
		if n.Operand != nil {
			c.Operand = f(n.Operand)
			changed = c.Operand != n.Operand
		}
		c.Whens = make([]CaseWhen, len(n.Whens))
		for i, w := range n.Whens {
			c.Whens[i] = CaseWhen{Test: f(w.Test), Result: f(w.Result)}
			changed = changed || c.Whens[i].Test != w.Test || c.Whens[i].Result != w.Result
		}
		if n.Else != nil {
			c.Else = f(n.Else)
			changed = changed || c.Else != n.Else
		}
		if !changed {
			return n
		}
		return &c
	case *In:
		item := f(n.Item)
		values, changed := mapList(n.Values, f)
		if item == n.Item && !changed {
			return n
		}
		c := *n
		c.Item, c.Values = item, values
		return &c
	case *JsonScalar:
		json := f(n.Json)
		changed := json != n.Json
		path := make([]PathSegment, len(n.Path))
		for i, seg := range n.Path {
			path[i] = seg
			if seg.Index != nil {
				path[i].Index = f(seg.Index)
				changed = changed || path[i].Index != seg.Index
			}
		}
		if !changed {
			return n
		}
		c := *n
		c.Json, c.Path = json, path
		return &c
	case *Collate:
		op := f(n.Operand)
		if op == n.Operand {
			return n
		}
		return &Collate{Operand: op, Collation: n.Collation}
	case *Like:
		m, p := f(n.Match), f(n.Pattern)
		var esc SqlExpr
		if n.Escape != nil {
			esc = f(n.Escape)
		}
		if m == n.Match && p == n.Pattern && esc == n.Escape {
			return n
		}
		return &Like{Match: m, Pattern: p, Escape: esc}
	case *Distinct:
		op := f(n.Operand)
		if op == n.Operand {
			return n
		}
		return &Distinct{Operand: op}
	case CustomExpr:
		children, changed := mapList(n.Children(), f)
		if !changed {
			return n
		}
		return n.WithChildren(children)
	}
	return e
}

func mapList(list []SqlExpr, f func(SqlExpr) SqlExpr) ([]SqlExpr, bool) {
	if len(list) == 0 {
		return list, false
	}
	out := make([]SqlExpr, len(list))
	changed := false
	for i, e := range list {
		out[i] = f(e)
		changed = changed || out[i] != e
	}
	return out, changed
}

// MappingSetter is implemented by custom nodes that carry a type mapping.
type MappingSetter interface {
	WithMapping(m *TypeMapping) CustomExpr
}

// WithTypeMapping returns a copy of e carrying mapping m. Nodes whose
// mapping is derived from their operands are returned unchanged.
func WithTypeMapping(e SqlExpr, m *TypeMapping) SqlExpr {
	switch n := e.(type) {
	case *ColumnRef:
		c := *n
		c.TypeMapping = m
		return &c
	case *Constant:
		c := *n
		c.TypeMapping = m
		return &c
	case *Parameter:
		c := *n
		c.TypeMapping = m
		return &c
	case *Unary:
		c := *n
		c.TypeMapping = m
		return &c
	case *Binary:
		c := *n
		c.TypeMapping = m
		return &c
	case *Function:
		c := *n
		c.TypeMapping = m
		return &c
	case *Case:
		c := *n
		c.TypeMapping = m
		return &c
	case *ScalarSubquery:
		c := *n
		c.TypeMapping = m
		return &c
	case *JsonScalar:
		c := *n
		c.TypeMapping = m
		return &c
	case MappingSetter:
		return n.WithMapping(m)
	}
	return e
}

// Inspect walks e depth-first in pre-order, calling f for each expression.
// Walking stops descending below a node when f returns false. When
// subqueries is set, the walk also enters every expression of nested
// Select nodes.
func Inspect(e SqlExpr, subqueries bool, f func(SqlExpr) bool) {
	if e == nil || !f(e) {
		return
	}
	for _, c := range Children(e) {
		Inspect(c, subqueries, f)
	}
	if !subqueries {
		return
	}
	switch n := e.(type) {
	case *Exists:
		InspectSelect(n.Subquery, f)
	case *In:
		if n.Subquery != nil {
			InspectSelect(n.Subquery, f)
		}
	case *ScalarSubquery:
		InspectSelect(n.Subquery, f)
	}
}

// InspectSelect applies Inspect to every expression in sel, including its
// table sources and nested queries.
func InspectSelect(sel *Select, f func(SqlExpr) bool) {
	for _, e := range sel.Exprs() {
		Inspect(e, true, f)
	}
	for _, t := range sel.Tables {
		inspectTable(t, f)
	}
}

func inspectTable(t TableSource, f func(SqlExpr) bool) {
	switch n := t.(type) {
	case *Join:
		inspectTable(n.Table, f)
		Inspect(n.On, true, f)
	case *DerivedTable:
		InspectSelect(n.Select, f)
	case *SetOperation:
		InspectSelect(n.Left, f)
		InspectSelect(n.Right, f)
	case *TableFunction:
		for _, a := range n.Args {
			Inspect(a, true, f)
		}
	}
}

// Exprs returns the top-level expressions of sel's own clauses, in clause
// order. Join predicates and table function arguments are not included.
func (s *Select) Exprs() []SqlExpr {
	var out []SqlExpr
	for _, p := range s.Projections {
		out = append(out, p.Expr)
	}
	if s.Predicate != nil {
		out = append(out, s.Predicate)
	}
	out = append(out, s.GroupBy...)
	if s.Having != nil {
		out = append(out, s.Having)
	}
	for _, o := range s.Orderings {
		out = append(out, o.Expr)
	}
	if s.Limit != nil {
		out = append(out, s.Limit)
	}
	if s.Offset != nil {
		out = append(out, s.Offset)
	}
	return out
}

// MapExprs returns a copy of sel with f applied to every clause expression,
// join predicate and table function argument of this node. Nested Select
// nodes are left to f.
func (s *Select) MapExprs(f func(SqlExpr) SqlExpr) *Select {
	c := s.Clone()
	for i, p := range c.Projections {
		c.Projections[i].Expr = f(p.Expr)
	}
	if c.Predicate != nil {
		c.Predicate = f(c.Predicate)
	}
	for i, g := range c.GroupBy {
		c.GroupBy[i] = f(g)
	}
	if c.Having != nil {
		c.Having = f(c.Having)
	}
	for i, o := range c.Orderings {
		c.Orderings[i].Expr = f(o.Expr)
	}
	if c.Limit != nil {
		c.Limit = f(c.Limit)
	}
	if c.Offset != nil {
		c.Offset = f(c.Offset)
	}
	for i, t := range c.Tables {
		c.Tables[i] = mapTableExprs(t, f)
	}
	return c
}

func mapTableExprs(t TableSource, f func(SqlExpr) SqlExpr) TableSource {
	switch n := t.(type) {
	case *Join:
		j := *n
		j.Table = mapTableExprs(n.Table, f)
		if n.On != nil {
			j.On = f(n.On)
		}
		return &j
	case *TableFunction:
		args, changed := mapList(n.Args, f)
		if !changed {
			return n
		}
		return &TableFunction{Name: n.Name, Args: args, Alias: n.Alias}
	}
	return t
}

// Equal reports whether two expressions are structurally equal. Type
// mappings compare by identity.
func Equal(a, b SqlExpr) bool {
	return reflect.DeepEqual(a, b)
}

// EqualSelect reports whether two query nodes are structurally equal.
func EqualSelect(a, b *Select) bool {
	return reflect.DeepEqual(a, b)
}

// Describe renders a short human-readable form of e for diagnostics.
func Describe(e SqlExpr) string {
	switch n := e.(type) {
	case nil:
		return "<nil>"
	case *ColumnRef:
		return n.Table + "." + n.Name
	case *Constant:
		return fmt.Sprintf("%v", n.Value)
	case *Parameter:
		return "@" + n.Name
	case *Unary:
		return fmt.Sprintf("%s(%s)", n.Op, Describe(n.Operand))
	case *Binary:
		return fmt.Sprintf("(%s %s %s)", Describe(n.Left), n.Op, Describe(n.Right))
	case *Function:
		return n.Name + "(...)"
	}
	return fmt.Sprintf("%T", e)
}
