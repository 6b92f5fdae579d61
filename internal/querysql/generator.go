package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/relq/internal/queryir"
)

// Generator renders IR trees to SQL commands for one dialect. It holds no
// per-call state and is safe for concurrent use.
type Generator struct {
	dialect Dialect
}

// NewGenerator returns a generator for dialect.
func NewGenerator(dialect Dialect) *Generator {
	return &Generator{dialect: dialect}
}

// Generate renders sel. The tree must already have passed type inference,
// null-semantics rewriting and validation.
func (g *Generator) Generate(sel *queryir.Select) (*Command, error) {
	if sel == nil {
		return nil, fmt.Errorf("cannot generate SQL for a nil query")
	}
	w := &Writer{dialect: g.dialect, seen: map[string]bool{}}
	if err := w.Select(sel); err != nil {
		return nil, err
	}
	return &Command{Text: w.b.String(), Parameters: w.params, Cacheable: true}, nil
}

// GenerateExpr renders a single scalar expression, for diagnostics and
// tests.
func (g *Generator) GenerateExpr(e queryir.SqlExpr) (string, error) {
	w := &Writer{dialect: g.dialect, seen: map[string]bool{}}
	if err := w.Expr(e); err != nil {
		return "", err
	}
	return w.b.String(), nil
}

// Writer accumulates the text and parameters of one generation. Dialect
// hooks use it to render their parts.
type Writer struct {
	dialect Dialect
	b       strings.Builder
	indent  int
	params  []Parameter
	seen    map[string]bool
}

// WriteString appends raw SQL text.
func (w *Writer) WriteString(s string) {
	w.b.WriteString(s)
}

// Newline starts a new line at the current indentation.
func (w *Writer) Newline() {
	w.b.WriteString("\n")
	w.b.WriteString(strings.Repeat("    ", w.indent))
}

// Identifier appends a quoted identifier.
func (w *Writer) Identifier(name string) {
	w.b.WriteString(w.dialect.QuoteIdentifier(name))
}

// Operand renders child under parent, parenthesized when precedence
// requires it.
func (w *Writer) Operand(parent, child queryir.SqlExpr, right bool) error {
	if !w.needsParens(parent, child, right) {
		return w.Expr(child)
	}
	return w.parenthesized(child)
}

// Subquery renders sel as an indented parenthesized block.
func (w *Writer) Subquery(sel *queryir.Select) error {
	w.WriteString("(")
	w.indent++
	w.Newline()
	err := w.Select(sel)
	w.indent--
	w.WriteString(")")
	return err
}

// Select renders a full SELECT statement.
func (w *Writer) Select(sel *queryir.Select) error {
	w.WriteString("SELECT ")
	if sel.Distinct {
		w.WriteString("DISTINCT ")
	}
	if err := w.projections(sel.Projections); err != nil {
		return err
	}

	if len(sel.Tables) > 0 {
		w.Newline()
		w.WriteString("FROM ")
		for i, t := range sel.Tables {
			if i > 0 {
				w.Newline()
			}
			if err := w.tableEntry(t, i == 0); err != nil {
				return err
			}
		}
	}

	if sel.Predicate != nil {
		w.Newline()
		w.WriteString("WHERE ")
		if err := w.Expr(sel.Predicate); err != nil {
			return err
		}
	}

	if len(sel.GroupBy) > 0 {
		w.Newline()
		w.WriteString("GROUP BY ")
		if err := w.list(sel.GroupBy); err != nil {
			return err
		}
	}

	if sel.Having != nil {
		w.Newline()
		w.WriteString("HAVING ")
		if err := w.Expr(sel.Having); err != nil {
			return err
		}
	}

	if len(sel.Orderings) > 0 {
		w.Newline()
		w.WriteString("ORDER BY ")
		for i, o := range sel.Orderings {
			if i > 0 {
				w.WriteString(", ")
			}
			if err := w.Expr(o.Expr); err != nil {
				return err
			}
			if !o.Ascending {
				w.WriteString(" DESC")
			}
		}
	}

	if sel.Limit != nil || sel.Offset != nil {
		return w.dialect.WriteLimitOffset(w, sel.Limit, sel.Offset)
	}
	return nil
}

func (w *Writer) projections(ps []queryir.Projection) error {
	if len(ps) == 0 {
		w.WriteString("1")
		return nil
	}
	for i, p := range ps {
		if i > 0 {
			w.WriteString(", ")
		}
		if err := w.Expr(p.Expr); err != nil {
			return err
		}
		if p.Alias == "" {
			continue
		}
		if c, ok := p.Expr.(*queryir.ColumnRef); ok && c.Name == p.Alias {
			continue
		}
		w.WriteString(" AS ")
		w.Identifier(p.Alias)
	}
	return nil
}

func (w *Writer) list(es []queryir.SqlExpr) error {
	for i, e := range es {
		if i > 0 {
			w.WriteString(", ")
		}
		if err := w.Expr(e); err != nil {
			return err
		}
	}
	return nil
}

// tableEntry renders one entry of the FROM list. Entries after the first
// that are not joins are cross joined.
func (w *Writer) tableEntry(t queryir.TableSource, first bool) error {
	j, ok := t.(*queryir.Join)
	if !ok {
		if !first {
			w.WriteString("CROSS JOIN ")
		}
		return w.table(t)
	}
	if j.Kind.IsApply() {
		return fmt.Errorf("%s cannot be rendered by this database", j.Kind)
	}
	w.WriteString(j.Kind.String())
	w.WriteString(" ")
	if err := w.table(j.Table); err != nil {
		return err
	}
	if j.On != nil {
		w.WriteString(" ON ")
		return w.Expr(j.On)
	}
	return nil
}

func (w *Writer) table(t queryir.TableSource) error {
	switch t := t.(type) {
	case *queryir.Table:
		if t.Schema != "" {
			w.Identifier(t.Schema)
			w.WriteString(".")
		}
		w.Identifier(t.Name)
	case *queryir.DerivedTable:
		if err := w.block(func() error { return w.Select(t.Select) }); err != nil {
			return err
		}
	case *queryir.SetOperation:
		err := w.block(func() error {
			if err := w.dialect.WriteSetOperand(w, t.Left); err != nil {
				return err
			}
			w.Newline()
			w.WriteString(t.Op.String())
			w.Newline()
			return w.dialect.WriteSetOperand(w, t.Right)
		})
		if err != nil {
			return err
		}
	case *queryir.TableFunction:
		w.WriteString(t.Name)
		w.WriteString("(")
		if err := w.list(t.Args); err != nil {
			return err
		}
		w.WriteString(")")
	case *queryir.Join:
		return fmt.Errorf("nested join on %q", t.TableAlias())
	default:
		return fmt.Errorf("unknown table source %T", t)
	}
	w.WriteString(" AS ")
	w.Identifier(t.TableAlias())
	return nil
}

// block renders body as "(\n    ...\n)".
func (w *Writer) block(body func() error) error {
	w.WriteString("(")
	w.indent++
	w.Newline()
	if err := body(); err != nil {
		return err
	}
	w.indent--
	w.Newline()
	w.WriteString(")")
	return nil
}

func (w *Writer) parameter(p *queryir.Parameter) {
	if !w.seen[p.Name] {
		w.seen[p.Name] = true
		w.params = append(w.params, Parameter{Name: p.Name, Kind: p.Kind, Mapping: p.TypeMapping})
	}
	w.WriteString(w.dialect.Placeholder(p.Name))
}

// Expr renders a scalar expression without outer parentheses.
func (w *Writer) Expr(e queryir.SqlExpr) error {
	switch e := e.(type) {
	case *queryir.ColumnRef:
		w.Identifier(e.Table)
		w.WriteString(".")
		w.Identifier(e.Name)
	case *queryir.Constant:
		return w.constant(e)
	case *queryir.Parameter:
		w.parameter(e)
	case *queryir.Unary:
		return w.unary(e)
	case *queryir.Binary:
		if err := w.Operand(e, e.Left, false); err != nil {
			return err
		}
		w.WriteString(" " + e.Op.String() + " ")
		if e.Op == queryir.OpSubtract && startsNegative(e.Right) {
			return w.parenthesized(e.Right)
		}
		return w.Operand(e, e.Right, true)
	case *queryir.Function:
		return w.function(e)
	case *queryir.Case:
		return w.caseExpr(e)
	case *queryir.Exists:
		w.WriteString("EXISTS ")
		return w.Subquery(e.Subquery)
	case *queryir.In:
		return w.in(e)
	case *queryir.ScalarSubquery:
		return w.Subquery(e.Subquery)
	case *queryir.JsonScalar:
		return w.dialect.WriteJSONScalar(w, e)
	case *queryir.Collate:
		if err := w.Operand(e, e.Operand, false); err != nil {
			return err
		}
		w.WriteString(" COLLATE " + e.Collation)
	case *queryir.Like:
		if err := w.Operand(e, e.Match, false); err != nil {
			return err
		}
		w.WriteString(" LIKE ")
		if err := w.Operand(e, e.Pattern, true); err != nil {
			return err
		}
		if e.Escape != nil {
			w.WriteString(" ESCAPE ")
			return w.Operand(e, e.Escape, true)
		}
	case *queryir.Fragment:
		w.WriteString(e.SQL)
	case *queryir.Distinct:
		w.WriteString("DISTINCT ")
		return w.Expr(e.Operand)
	case queryir.CustomExpr:
		return w.dialect.WriteCustom(w, e)
	default:
		return fmt.Errorf("cannot render %T", e)
	}
	return nil
}

func (w *Writer) constant(c *queryir.Constant) error {
	if c.Value == nil {
		w.WriteString("NULL")
		return nil
	}
	if c.TypeMapping == nil {
		return fmt.Errorf("constant %v has no type mapping", c.Value)
	}
	lit, err := c.TypeMapping.GenerateLiteral(c.Value)
	if err != nil {
		return fmt.Errorf("render constant: %w", err)
	}
	w.WriteString(lit)
	return nil
}

func (w *Writer) unary(e *queryir.Unary) error {
	switch e.Op {
	case queryir.OpNot:
		w.WriteString("NOT ")
		return w.Operand(e, e.Operand, true)
	case queryir.OpNegate, queryir.OpBitNot:
		w.WriteString(e.Op.String())
		if startsNegative(e.Operand) {
			return w.parenthesized(e.Operand)
		}
		return w.Operand(e, e.Operand, true)
	case queryir.OpIsNull, queryir.OpIsNotNull:
		if err := w.Operand(e, e.Operand, false); err != nil {
			return err
		}
		w.WriteString(" " + e.Op.String())
		return nil
	case queryir.OpConvert:
		if e.TypeMapping == nil {
			return fmt.Errorf("CAST without a target type mapping")
		}
		w.WriteString("CAST(")
		if err := w.Expr(e.Operand); err != nil {
			return err
		}
		w.WriteString(" AS " + e.TypeMapping.StoreType + ")")
		return nil
	}
	return fmt.Errorf("unknown unary operator %d", e.Op)
}

func (w *Writer) parenthesized(e queryir.SqlExpr) error {
	w.WriteString("(")
	if err := w.Expr(e); err != nil {
		return err
	}
	w.WriteString(")")
	return nil
}

// startsNegative reports whether e renders with a leading minus, which
// after another minus would open a "--" comment.
func startsNegative(e queryir.SqlExpr) bool {
	switch e := e.(type) {
	case *queryir.Constant:
		return isNegativeNumber(e.Value)
	case *queryir.Unary:
		return e.Op == queryir.OpNegate
	}
	return false
}

func (w *Writer) function(f *queryir.Function) error {
	w.WriteString(f.Name)
	if f.Niladic {
		return nil
	}
	w.WriteString("(")
	if err := w.list(f.Args); err != nil {
		return err
	}
	w.WriteString(")")
	return nil
}

func (w *Writer) caseExpr(c *queryir.Case) error {
	w.WriteString("CASE")
	if c.Operand != nil {
		w.WriteString(" ")
		if err := w.Expr(c.Operand); err != nil {
			return err
		}
	}
	w.indent++
	for _, wh := range c.Whens {
		w.Newline()
		w.WriteString("WHEN ")
		if err := w.Expr(wh.Test); err != nil {
			return err
		}
		w.WriteString(" THEN ")
		if err := w.Expr(wh.Result); err != nil {
			return err
		}
	}
	if c.Else != nil {
		w.Newline()
		w.WriteString("ELSE ")
		if err := w.Expr(c.Else); err != nil {
			return err
		}
	}
	w.indent--
	w.Newline()
	w.WriteString("END")
	return nil
}

func (w *Writer) in(e *queryir.In) error {
	if err := w.Operand(e, e.Item, false); err != nil {
		return err
	}
	w.WriteString(" IN ")
	if e.Subquery != nil {
		return w.Subquery(e.Subquery)
	}
	w.WriteString("(")
	if err := w.list(e.Values); err != nil {
		return err
	}
	w.WriteString(")")
	return nil
}
