package queryir

import (
	"fmt"
	"strings"
)

// Capabilities describes what a dialect can express. Validate rejects trees
// that need more.
type Capabilities struct {
	// SupportsApply is false for dialects without correlated (lateral)
	// joins, such as SQLite.
	SupportsApply bool
}

// ValidationError lists every problem Validate found.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return "invalid query: " + e.Problems[0]
	}
	return fmt.Sprintf("invalid query: %d problems: %s", len(e.Problems), strings.Join(e.Problems, "; "))
}

// Validate is the final check before SQL generation. It reports:
//  1. duplicate table aliases within one query node
//  2. column references to aliases not in scope
//  3. grouped queries projecting non-key, non-aggregate columns
//  4. function nodes whose null-propagation flags do not match their
//     arguments
//  5. apply joins when the dialect cannot express them
//
// Validate is a pure function with no side effects.
func Validate(sel *Select, caps Capabilities) error {
	v := &validator{caps: caps}
	v.validateSelect(sel, nil)
	if len(v.problems) == 0 {
		return nil
	}
	return &ValidationError{Problems: v.problems}
}

// validator accumulates problems during traversal.
type validator struct {
	caps     Capabilities
	problems []string
}

func (v *validator) addProblem(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

// scope is the chain of aliases visible to a query node: its own tables
// followed by those of enclosing nodes.
type scope struct {
	aliases map[string]bool
	outer   *scope
}

func (s *scope) has(alias string) bool {
	for ; s != nil; s = s.outer {
		if s.aliases[alias] {
			return true
		}
	}
	return false
}

func (v *validator) validateSelect(sel *Select, outer *scope) {
	if sel == nil {
		v.addProblem("nil query node")
		return
	}
	sc := &scope{aliases: map[string]bool{}, outer: outer}

	for _, t := range sel.Tables {
		alias := t.TableAlias()
		if alias == "" {
			v.addProblem("table source %T has no alias", Unwrap(t))
		} else if sc.aliases[alias] {
			v.addProblem("duplicate table alias %q", alias)
		}

		v.validateTable(t, sc, outer)
		sc.aliases[alias] = true

		if j, ok := t.(*Join); ok && j.On != nil {
			v.validateExpr(j.On, sc)
		}
	}

	for _, e := range sel.Exprs() {
		v.validateExpr(e, sc)
	}

	if sel.IsGrouped() {
		for _, p := range sel.Projections {
			if !v.groupSafe(p.Expr, sel.GroupBy) {
				v.addProblem("projection %s is neither a grouping key nor an aggregate", Describe(p.Expr))
			}
		}
	}
}

// validateTable checks one table source. Tables to the left of an apply
// join are visible inside it; other nested queries only see enclosing
// scopes.
func (v *validator) validateTable(t TableSource, sc, outer *scope) {
	switch n := t.(type) {
	case *Join:
		if n.Kind.IsApply() {
			if !v.caps.SupportsApply {
				v.addProblem("%s on %q is not supported by this database", n.Kind, n.TableAlias())
			}
			v.validateTable(n.Table, sc, sc)
			return
		}
		if (n.Kind == JoinInner || n.Kind == JoinLeft) && n.On == nil {
			v.addProblem("%s on %q has no join predicate", n.Kind, n.TableAlias())
		}
		v.validateTable(n.Table, sc, outer)
	case *DerivedTable:
		v.validateSelect(n.Select, outer)
	case *SetOperation:
		v.validateSelect(n.Left, outer)
		v.validateSelect(n.Right, outer)
		if len(n.Left.Projections) != len(n.Right.Projections) {
			v.addProblem("%s operands project %d and %d columns",
				n.Op, len(n.Left.Projections), len(n.Right.Projections))
		}
	case *TableFunction:
		for _, a := range n.Args {
			v.validateExpr(a, sc)
		}
	case *Table:
		if n.Name == "" {
			v.addProblem("table %q has no name", n.Alias)
		}
	}
}

func (v *validator) validateExpr(e SqlExpr, sc *scope) {
	Inspect(e, false, func(n SqlExpr) bool {
		switch x := n.(type) {
		case *ColumnRef:
			if !sc.has(x.Table) {
				v.addProblem("column %s.%s references a table that is not in scope", x.Table, x.Name)
			}
		case *Function:
			if len(x.Args) != len(x.ArgsPropagateNull) {
				v.addProblem("function %s has %d arguments but %d null-propagation flags",
					x.Name, len(x.Args), len(x.ArgsPropagateNull))
			}
		case *Exists:
			v.validateSelect(x.Subquery, sc)
		case *In:
			if (x.Subquery == nil) == (x.Values == nil) {
				v.addProblem("IN must have either a value list or a subquery")
			}
			if x.Subquery != nil {
				v.validateSelect(x.Subquery, sc)
			}
		case *ScalarSubquery:
			v.validateSelect(x.Subquery, sc)
		}
		return true
	})
}

// groupSafe reports whether e only depends on grouping keys, aggregates and
// values constant within a group.
func (v *validator) groupSafe(e SqlExpr, keys []SqlExpr) bool {
	for _, k := range keys {
		if Equal(e, k) {
			return true
		}
	}
	switch n := e.(type) {
	case *ColumnRef:
		return false
	case *Function:
		if n.Aggregate {
			return true
		}
	case *Constant, *Parameter, *Fragment, *Exists, *ScalarSubquery:
		return true
	}
	for _, c := range Children(e) {
		if !v.groupSafe(c, keys) {
			return false
		}
	}
	return true
}
