package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/relq/internal/queryir"
)

// Dialect supplies the rendering rules that differ between databases.
// Implementations are immutable and shared by all generations.
type Dialect interface {
	// QuoteIdentifier quotes a table, column or alias name.
	QuoteIdentifier(name string) string

	// Placeholder renders the placeholder of a named parameter.
	Placeholder(name string) string

	// WriteLimitOffset renders the row-limiting clause. Either argument may
	// be nil; it is not called when both are.
	WriteLimitOffset(w *Writer, limit, offset queryir.SqlExpr) error

	// WriteSetOperand renders one side of a set operation.
	WriteSetOperand(w *Writer, operand *queryir.Select) error

	// WriteJSONScalar renders a JSON path read.
	WriteJSONScalar(w *Writer, e *queryir.JsonScalar) error
	JSONPrecedence(e *queryir.JsonScalar) int

	// WriteCustom renders a dialect node.
	WriteCustom(w *Writer, e queryir.CustomExpr) error
	CustomPrecedence(e queryir.CustomExpr) int
}

// Standard renders ANSI-style SQL. Dialects embed it and override what
// differs.
type Standard struct{}

var _ Dialect = Standard{}

func (Standard) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (Standard) Placeholder(name string) string {
	return "@" + name
}

func (Standard) WriteLimitOffset(w *Writer, limit, offset queryir.SqlExpr) error {
	if limit != nil {
		w.Newline()
		w.WriteString("LIMIT ")
		if err := w.Expr(limit); err != nil {
			return err
		}
	}
	if offset != nil {
		if limit == nil {
			w.Newline()
		} else {
			w.WriteString(" ")
		}
		w.WriteString("OFFSET ")
		return w.Expr(offset)
	}
	return nil
}

func (Standard) WriteSetOperand(w *Writer, operand *queryir.Select) error {
	w.WriteString("(")
	if err := w.Select(operand); err != nil {
		return err
	}
	w.WriteString(")")
	return nil
}

// WriteJSONScalar renders json_extract(json, '$.path').
func (Standard) WriteJSONScalar(w *Writer, e *queryir.JsonScalar) error {
	w.WriteString("json_extract(")
	if err := w.Expr(e.Json); err != nil {
		return err
	}
	w.WriteString(", ")
	if err := WriteJSONPath(w, e.Path); err != nil {
		return err
	}
	w.WriteString(")")
	return nil
}

func (Standard) JSONPrecedence(*queryir.JsonScalar) int {
	return PrecPrimary
}

func (Standard) WriteCustom(_ *Writer, e queryir.CustomExpr) error {
	return fmt.Errorf("no rendering for %T", e)
}

func (Standard) CustomPrecedence(queryir.CustomExpr) int {
	return PrecPrimary
}

// ConstantPath returns the JSONPath text of path when every segment is
// known at compile time.
func ConstantPath(path []queryir.PathSegment) (string, bool) {
	var b strings.Builder
	b.WriteString("$")
	for _, s := range path {
		if s.Index == nil {
			writePathProperty(&b, s.Property)
			continue
		}
		c, ok := s.Index.(*queryir.Constant)
		if !ok || c.Value == nil {
			return "", false
		}
		fmt.Fprintf(&b, "[%v]", c.Value)
	}
	return b.String(), true
}

func writePathProperty(b *strings.Builder, name string) {
	plain := name != ""
	for _, r := range name {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			plain = false
			break
		}
	}
	if plain {
		b.WriteString("." + name)
		return
	}
	b.WriteString(`."` + strings.ReplaceAll(name, `"`, `\"`) + `"`)
}

// WriteJSONPath renders path as a string literal, or as a concatenation
// when some index is computed: '$.a[' || "i" || ']'.
func WriteJSONPath(w *Writer, path []queryir.PathSegment) error {
	if p, ok := ConstantPath(path); ok {
		w.WriteString(quoteString(p))
		return nil
	}
	var lit strings.Builder
	lit.WriteString("$")
	first := true
	flush := func() {
		if lit.Len() == 0 {
			return
		}
		if !first {
			w.WriteString(" || ")
		}
		w.WriteString(quoteString(lit.String()))
		lit.Reset()
		first = false
	}
	for _, s := range path {
		if s.Index == nil {
			writePathProperty(&lit, s.Property)
			continue
		}
		lit.WriteString("[")
		flush()
		w.WriteString(" || ")
		if err := w.Operand(&queryir.Binary{Op: queryir.OpConcat}, s.Index, true); err != nil {
			return err
		}
		lit.WriteString("]")
	}
	flush()
	return nil
}

func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
