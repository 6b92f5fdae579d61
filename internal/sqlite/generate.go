package sqlite

import (
	"fmt"

	"github.com/roach88/relq/internal/queryir"
	"github.com/roach88/relq/internal/querysql"
)

// generator renders SQLite syntax where it departs from the standard
// rules.
type generator struct {
	querysql.Standard
}

// WriteLimitOffset renders LIMIT -1 when only an offset is present; SQLite
// has no OFFSET without LIMIT.
func (generator) WriteLimitOffset(w *querysql.Writer, limit, offset queryir.SqlExpr) error {
	w.Newline()
	w.WriteString("LIMIT ")
	if limit == nil {
		w.WriteString("-1")
	} else if err := w.Expr(limit); err != nil {
		return err
	}
	if offset != nil {
		w.WriteString(" OFFSET ")
		return w.Expr(offset)
	}
	return nil
}

// WriteSetOperand renders compound-select operands bare. SQLite rejects
// parenthesized operands and ORDER BY or LIMIT inside one, so an operand
// with those is wrapped in a derived table.
func (generator) WriteSetOperand(w *querysql.Writer, operand *queryir.Select) error {
	if len(operand.Orderings) == 0 && operand.Limit == nil && operand.Offset == nil {
		return w.Select(operand)
	}
	w.WriteString("SELECT * FROM ")
	return w.Subquery(operand)
}

// WriteJSONScalar uses the ->> operator for a compile-time path and
// json_extract when an index is computed.
func (g generator) WriteJSONScalar(w *querysql.Writer, e *queryir.JsonScalar) error {
	path, ok := querysql.ConstantPath(e.Path)
	if !ok {
		return g.Standard.WriteJSONScalar(w, e)
	}
	if err := w.Operand(e, e.Json, false); err != nil {
		return err
	}
	w.WriteString(" ->> ")
	w.WriteString(quote(path))
	return nil
}

func (generator) JSONPrecedence(e *queryir.JsonScalar) int {
	if _, ok := querysql.ConstantPath(e.Path); ok {
		return querysql.PrecConcat
	}
	return querysql.PrecPrimary
}

func (generator) WriteCustom(w *querysql.Writer, e queryir.CustomExpr) error {
	var (
		match, pattern queryir.SqlExpr
		keyword        string
		negated        bool
	)
	switch n := e.(type) {
	case *Glob:
		match, pattern, keyword, negated = n.Match, n.Pattern, "GLOB", n.Negated
	case *Regexp:
		match, pattern, keyword, negated = n.Match, n.Pattern, "REGEXP", n.Negated
	default:
		return fmt.Errorf("sqlite cannot render %T", e)
	}
	if err := w.Operand(e, match, false); err != nil {
		return err
	}
	if negated {
		w.WriteString(" NOT")
	}
	w.WriteString(" " + keyword + " ")
	return w.Operand(e, pattern, true)
}

func (generator) CustomPrecedence(e queryir.CustomExpr) int {
	switch e.(type) {
	case *Glob, *Regexp:
		return querysql.PrecEquality
	}
	return querysql.PrecPrimary
}
