// Package typeinfer fills in the store-type mappings the translator could
// not decide locally.
//
// Constants and parameters leave the translator without a mapping: a
// parameter compared to a uuid column must be sent in the column's text
// form, which only the comparison knows. Inference looks, in order, at
//
//   - sibling operands of the same operation
//   - the element mapping of a json_each source the node reads from
//   - the dialect's default mapping for the node's kind
//
// A json_each over a parameter has no element mapping of its own. It is
// discovered from how the expanded value is used, such as a comparison
// against a typed column in the same query or an enclosing IN, and then
// applied to the parameter and to every read of the value column. Reads of
// the value column go through the element mapping's FromJSON conversion.
//
// Mappings set at construction are never replaced, so running Infer on
// its own output changes nothing.
package typeinfer

import (
	"log/slog"
	"strings"

	"github.com/roach88/relq/internal/queryir"
)

// JSON table function and column names recognized as collection
// expansions.
const (
	JSONEach    = "json_each"
	ValueColumn = "value"
)

// Inferrer runs the inference pass. It holds only the dialect's mapping
// catalog and is safe for concurrent use.
type Inferrer struct {
	mappings queryir.MappingSource
	logger   *slog.Logger
}

// New returns an Inferrer over source. A nil logger means slog.Default().
func New(source queryir.MappingSource, logger *slog.Logger) *Inferrer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Inferrer{mappings: source, logger: logger}
}

// Infer returns sel with every resolvable mapping filled in, and the
// number of nodes that received one. When nothing changed sel itself is
// returned.
func (in *Inferrer) Infer(sel *queryir.Select) (*queryir.Select, int) {
	if sel == nil {
		return nil, 0
	}
	w := &walker{mappings: in.mappings}
	out := w.query(sel, nil, nil)
	if w.count > 0 {
		in.logger.Debug("type mappings inferred", "count", w.count)
	}
	return out, w.count
}

// scope is the table information visible to one query node and the nodes
// nested in it.
type scope struct {
	parent *scope
	// elements maps a json_each alias to its element mapping.
	elements map[string]*queryir.TypeMapping
	// columns maps a derived table or set operation alias to the mappings
	// of the columns it exposes.
	columns map[string]map[string]*queryir.TypeMapping
}

func newScope(parent *scope) *scope {
	return &scope{
		parent:   parent,
		elements: map[string]*queryir.TypeMapping{},
		columns:  map[string]map[string]*queryir.TypeMapping{},
	}
}

func (s *scope) element(alias string) (*queryir.TypeMapping, bool) {
	for ; s != nil; s = s.parent {
		if m, ok := s.elements[alias]; ok {
			return m, true
		}
	}
	return nil, false
}

func (s *scope) column(alias, name string) *queryir.TypeMapping {
	for ; s != nil; s = s.parent {
		if cols, ok := s.columns[alias]; ok {
			return cols[name]
		}
	}
	return nil
}

type walker struct {
	mappings queryir.MappingSource
	count    int
}

// query infers one query node. hint, when set, is the mapping the
// enclosing expression expects of a single projected column.
func (w *walker) query(sel *queryir.Select, parent *scope, hint *queryir.TypeMapping) *queryir.Select {
	before := w.count
	sc := newScope(parent)

	discovered := w.discover(sel, hint)
	tables := make([]queryir.TableSource, len(sel.Tables))
	for i, t := range sel.Tables {
		tables[i] = w.table(t, sc, discovered)
	}

	out := sel.Clone()
	out.Tables = tables
	for i, p := range out.Projections {
		var h *queryir.TypeMapping
		if len(out.Projections) == 1 {
			h = hint
		}
		out.Projections[i].Expr = w.expr(p.Expr, h, sc)
	}
	out.Predicate = w.expr(out.Predicate, nil, sc)
	for i, g := range out.GroupBy {
		out.GroupBy[i] = w.expr(g, nil, sc)
	}
	out.Having = w.expr(out.Having, nil, sc)
	for i, o := range out.Orderings {
		out.Orderings[i].Expr = w.expr(o.Expr, nil, sc)
	}
	out.Limit = w.expr(out.Limit, nil, sc)
	out.Offset = w.expr(out.Offset, nil, sc)

	if w.count == before {
		return sel
	}
	return out
}

// discover finds element mappings for json_each sources of sel whose
// argument has none, from comparisons of the value column against typed
// operands and from the enclosing expression's hint.
func (w *walker) discover(sel *queryir.Select, hint *queryir.TypeMapping) map[string]*queryir.TypeMapping {
	var open []string
	for _, t := range sel.Tables {
		if fn, ok := queryir.Unwrap(t).(*queryir.TableFunction); ok && isExpansion(fn) && fn.Args[0].Mapping() == nil {
			open = append(open, fn.Alias)
		}
	}
	if len(open) == 0 {
		return nil
	}
	found := map[string]*queryir.TypeMapping{}
	note := func(value, other queryir.SqlExpr) {
		col, ok := value.(*queryir.ColumnRef)
		if !ok || col.Name != ValueColumn || col.TypeMapping != nil {
			return
		}
		if _, done := found[col.Table]; done {
			return
		}
		if m := other.Mapping(); compatible(m, col.Kind) {
			found[col.Table] = m
		}
	}

	if hint != nil && len(sel.Projections) == 1 {
		note(sel.Projections[0].Expr, &queryir.Constant{TypeMapping: hint})
	}
	queryir.InspectSelect(sel, func(e queryir.SqlExpr) bool {
		switch n := e.(type) {
		case *queryir.Binary:
			if n.Op.IsComparison() {
				note(n.Left, n.Right)
				note(n.Right, n.Left)
			}
		case *queryir.In:
			for _, v := range n.Values {
				note(n.Item, v)
				note(v, n.Item)
			}
		}
		return true
	})

	for alias := range found {
		if !contains(open, alias) {
			delete(found, alias)
		}
	}
	return found
}

func (w *walker) table(t queryir.TableSource, sc *scope, discovered map[string]*queryir.TypeMapping) queryir.TableSource {
	switch n := t.(type) {
	case *queryir.Join:
		inner := w.table(n.Table, sc, discovered)
		on := w.expr(n.On, nil, sc)
		if inner == n.Table && on == n.On {
			return n
		}
		return &queryir.Join{Kind: n.Kind, Table: inner, On: on}

	case *queryir.DerivedTable:
		sub := w.query(n.Select, sc, nil)
		sc.columns[n.Alias] = exposed(sub)
		if sub == n.Select {
			return n
		}
		return &queryir.DerivedTable{Select: sub, Alias: n.Alias}

	case *queryir.SetOperation:
		left := w.query(n.Left, sc, nil)
		right := w.query(n.Right, sc, nil)
		cols := exposed(right)
		for name, m := range exposed(left) {
			cols[name] = m
		}
		sc.columns[n.Alias] = cols
		if left == n.Left && right == n.Right {
			return n
		}
		return &queryir.SetOperation{Op: n.Op, Left: left, Right: right, Alias: n.Alias}

	case *queryir.TableFunction:
		if !isExpansion(n) {
			args, changed := w.list(n.Args, nil, sc)
			if !changed {
				return n
			}
			return &queryir.TableFunction{Name: n.Name, Args: args, Alias: n.Alias}
		}
		return w.expansion(n, sc, discovered[n.Alias])
	}
	return t
}

// expansion resolves the argument of a json_each and records the element
// mapping that reads of its value column use.
func (w *walker) expansion(fn *queryir.TableFunction, sc *scope, found *queryir.TypeMapping) queryir.TableSource {
	arg := fn.Args[0]
	var elem *queryir.TypeMapping
	if m := arg.Mapping(); m != nil {
		elem = m.Element
		if elem == nil {
			elem = w.mappings.Default(queryir.ElementOf(arg))
		}
	} else {
		elem = found
		if elem == nil {
			elem = w.mappings.Default(queryir.ElementOf(arg))
		}
		if leaf(arg) {
			arg = queryir.WithTypeMapping(arg, w.mappings.Collection(elem))
			w.count++
		} else {
			arg = w.expr(arg, nil, sc)
		}
	}
	sc.elements[fn.Alias] = elem

	rest, changed := w.list(fn.Args[1:], nil, sc)
	if arg == fn.Args[0] && !changed {
		return fn
	}
	return &queryir.TableFunction{Name: fn.Name, Args: append([]queryir.SqlExpr{arg}, rest...), Alias: fn.Alias}
}

func (w *walker) expr(e queryir.SqlExpr, hint *queryir.TypeMapping, sc *scope) queryir.SqlExpr {
	switch n := e.(type) {
	case nil:
		return nil

	case *queryir.ColumnRef:
		if n.TypeMapping != nil {
			return n
		}
		if elem, ok := sc.element(n.Table); ok && n.Name == ValueColumn {
			m := elem
			if m == nil {
				m = w.fallback(n)
			}
			if m == nil {
				return n
			}
			w.count++
			read := queryir.WithTypeMapping(n, m)
			if m.FromJSON != nil {
				return m.FromJSON(read)
			}
			return read
		}
		if m := sc.column(n.Table, n.Name); m != nil {
			w.count++
			return queryir.WithTypeMapping(n, m)
		}
		return w.assign(n, hint)

	case *queryir.Constant, *queryir.Parameter:
		if e.Mapping() != nil {
			return e
		}
		return w.assign(e, hint)

	case *queryir.Unary:
		var h *queryir.TypeMapping
		if n.Op == queryir.OpNegate {
			h = pick(n.Kind, n.TypeMapping, hint)
		}
		op := w.expr(n.Operand, h, sc)
		out := queryir.MapChildren(n, func(queryir.SqlExpr) queryir.SqlExpr { return op })
		return w.own(out, n.Kind, op.Mapping())

	case *queryir.Binary:
		return w.binary(n, hint, sc)

	case *queryir.Function:
		var h *queryir.TypeMapping
		if isCoalesce(n.Name) {
			h = pick(n.Kind, n.TypeMapping, known(n.Kind, n.Args), hint)
		}
		args, changed := w.list(n.Args, h, sc)
		var out queryir.SqlExpr = n
		if changed {
			c := *n
			c.Args = args
			out = &c
		}
		var derived *queryir.TypeMapping
		if isCoalesce(n.Name) {
			derived = known(n.Kind, args)
		}
		return w.own(out, n.Kind, pick(n.Kind, derived, hint))

	case *queryir.Case:
		return w.caseExpr(n, hint, sc)

	case *queryir.In:
		return w.in(n, sc)

	case *queryir.Exists:
		sub := w.query(n.Subquery, sc, nil)
		if sub == n.Subquery {
			return n
		}
		return &queryir.Exists{Subquery: sub}

	case *queryir.ScalarSubquery:
		sub := w.query(n.Subquery, sc, pick(n.Kind, n.TypeMapping, hint))
		var out queryir.SqlExpr = n
		if sub != n.Subquery {
			c := *n
			c.Subquery = sub
			out = &c
		}
		return w.own(out, n.Kind, pick(n.Kind, sub.Projections[0].Expr.Mapping()))

	case *queryir.JsonScalar:
		out := queryir.MapChildren(n, func(c queryir.SqlExpr) queryir.SqlExpr { return w.expr(c, nil, sc) })
		return w.own(out, n.Kind, nil)

	case *queryir.Like:
		h := known(queryir.KindString, []queryir.SqlExpr{n.Match, n.Pattern, n.Escape})
		return queryir.MapChildren(n, func(c queryir.SqlExpr) queryir.SqlExpr { return w.expr(c, h, sc) })

	case *queryir.Collate, *queryir.Distinct:
		return queryir.MapChildren(n, func(c queryir.SqlExpr) queryir.SqlExpr { return w.expr(c, hint, sc) })

	case queryir.CustomExpr:
		children := n.Children()
		h := known(queryir.KindUnknown, children)
		return queryir.MapChildren(n, func(c queryir.SqlExpr) queryir.SqlExpr {
			if h != nil && h.Kind != c.Type() {
				return w.expr(c, nil, sc)
			}
			return w.expr(c, h, sc)
		})
	}
	return e
}

// binary resolves the operand with a mapping first and hands that mapping
// to the other one.
func (w *walker) binary(n *queryir.Binary, hint *queryir.TypeMapping, sc *scope) queryir.SqlExpr {
	var outer *queryir.TypeMapping
	if !n.Op.IsComparison() && !n.Op.IsLogical() {
		outer = pick(n.Kind, n.TypeMapping, hint)
	}
	var l, r queryir.SqlExpr
	switch {
	case n.Op.IsLogical():
		l, r = w.expr(n.Left, nil, sc), w.expr(n.Right, nil, sc)
	case leaf(n.Left) && !leaf(n.Right):
		r = w.expr(n.Right, pick(n.Right.Type(), n.Left.Mapping(), outer), sc)
		l = w.expr(n.Left, pick(n.Left.Type(), r.Mapping(), outer), sc)
	default:
		l = w.expr(n.Left, pick(n.Left.Type(), n.Right.Mapping(), outer), sc)
		r = w.expr(n.Right, pick(n.Right.Type(), l.Mapping(), outer), sc)
	}
	var out queryir.SqlExpr = n
	if l != n.Left || r != n.Right {
		c := *n
		c.Left, c.Right = l, r
		out = &c
	}
	if n.Op.IsComparison() || n.Op.IsLogical() {
		return w.own(out, n.Kind, nil)
	}
	return w.own(out, n.Kind, pick(n.Kind, l.Mapping(), r.Mapping(), hint))
}

func (w *walker) caseExpr(n *queryir.Case, hint *queryir.TypeMapping, sc *scope) queryir.SqlExpr {
	var testHint *queryir.TypeMapping
	if n.Operand != nil {
		tests := []queryir.SqlExpr{n.Operand}
		for _, wh := range n.Whens {
			tests = append(tests, wh.Test)
		}
		testHint = known(n.Operand.Type(), tests)
	}
	results := []queryir.SqlExpr{n.Else}
	for _, wh := range n.Whens {
		results = append(results, wh.Result)
	}
	resultHint := pick(n.Kind, n.TypeMapping, known(n.Kind, results), hint)

	out := queryir.MapChildren(n, func(c queryir.SqlExpr) queryir.SqlExpr {
		if c == n.Else {
			return w.expr(c, resultHint, sc)
		}
		for _, wh := range n.Whens {
			switch c {
			case wh.Result:
				return w.expr(c, resultHint, sc)
			case wh.Test:
				if n.Operand == nil {
					return w.expr(c, nil, sc)
				}
			}
		}
		return w.expr(c, testHint, sc)
	})
	var derived *queryir.TypeMapping
	if cs, ok := out.(*queryir.Case); ok {
		rs := []queryir.SqlExpr{cs.Else}
		for _, wh := range cs.Whens {
			rs = append(rs, wh.Result)
		}
		derived = known(n.Kind, rs)
	}
	return w.own(out, n.Kind, pick(n.Kind, derived, hint))
}

func (w *walker) in(n *queryir.In, sc *scope) queryir.SqlExpr {
	if n.Subquery != nil {
		var (
			item queryir.SqlExpr
			sub  *queryir.Select
		)
		if leaf(n.Item) {
			sub = w.query(n.Subquery, sc, nil)
			item = w.expr(n.Item, pick(n.Item.Type(), sub.Projections[0].Expr.Mapping()), sc)
		} else {
			item = w.expr(n.Item, nil, sc)
			sub = w.query(n.Subquery, sc, item.Mapping())
		}
		if item == n.Item && sub == n.Subquery {
			return n
		}
		return &queryir.In{Item: item, Subquery: sub}
	}

	h := known(n.Item.Type(), append([]queryir.SqlExpr{n.Item}, n.Values...))
	return queryir.MapChildren(n, func(c queryir.SqlExpr) queryir.SqlExpr { return w.expr(c, h, sc) })
}

func (w *walker) list(list []queryir.SqlExpr, hint *queryir.TypeMapping, sc *scope) ([]queryir.SqlExpr, bool) {
	out := make([]queryir.SqlExpr, len(list))
	changed := false
	for i, e := range list {
		var h *queryir.TypeMapping
		if hint != nil && compatible(hint, e.Type()) {
			h = hint
		}
		out[i] = w.expr(e, h, sc)
		changed = changed || out[i] != e
	}
	return out, changed
}

// assign gives a leaf the hint when its kind fits, the default otherwise.
func (w *walker) assign(e queryir.SqlExpr, hint *queryir.TypeMapping) queryir.SqlExpr {
	m := hint
	if !compatible(m, e.Type()) {
		m = w.fallback(e)
	}
	if m == nil {
		return e
	}
	w.count++
	return queryir.WithTypeMapping(e, m)
}

// own sets the mapping of a composite node that has none: derived when
// given, the default for kind otherwise.
func (w *walker) own(e queryir.SqlExpr, kind queryir.Kind, derived *queryir.TypeMapping) queryir.SqlExpr {
	if e.Mapping() != nil {
		return e
	}
	m := derived
	if m == nil {
		m = w.mappings.Default(kind)
	}
	if m == nil {
		return e
	}
	out := queryir.WithTypeMapping(e, m)
	if out == e {
		return e
	}
	w.count++
	return out
}

func (w *walker) fallback(e queryir.SqlExpr) *queryir.TypeMapping {
	if e.Type() == queryir.KindArray {
		if elem := queryir.ElementOf(e); elem != queryir.KindUnknown {
			return w.mappings.Collection(w.mappings.Default(elem))
		}
	}
	return w.mappings.Default(e.Type())
}

// exposed returns the mappings of the columns a query node projects, by
// output name.
func exposed(sel *queryir.Select) map[string]*queryir.TypeMapping {
	cols := make(map[string]*queryir.TypeMapping, len(sel.Projections))
	for _, p := range sel.Projections {
		name := p.Alias
		if name == "" {
			if c, ok := p.Expr.(*queryir.ColumnRef); ok {
				name = c.Name
			}
		}
		if name != "" && p.Expr.Mapping() != nil {
			cols[name] = p.Expr.Mapping()
		}
	}
	return cols
}

// leaf reports whether e is a value node still waiting for a mapping.
func leaf(e queryir.SqlExpr) bool {
	switch e.(type) {
	case *queryir.Constant, *queryir.Parameter, *queryir.ColumnRef:
		return e.Mapping() == nil
	}
	return false
}

func compatible(m *queryir.TypeMapping, kind queryir.Kind) bool {
	return m != nil && (kind == queryir.KindUnknown || m.Kind == kind)
}

// pick returns the first candidate usable for kind.
func pick(kind queryir.Kind, candidates ...*queryir.TypeMapping) *queryir.TypeMapping {
	for _, m := range candidates {
		if compatible(m, kind) {
			return m
		}
	}
	return nil
}

// known returns the first mapping among exprs usable for kind. With
// KindUnknown any mapping qualifies.
func known(kind queryir.Kind, exprs []queryir.SqlExpr) *queryir.TypeMapping {
	for _, e := range exprs {
		if e == nil {
			continue
		}
		if m := e.Mapping(); m != nil && (kind == queryir.KindUnknown || m.Kind == kind) {
			return m
		}
	}
	return nil
}

func isExpansion(fn *queryir.TableFunction) bool {
	return strings.EqualFold(fn.Name, JSONEach) && len(fn.Args) > 0
}

func isCoalesce(name string) bool {
	return strings.EqualFold(name, "COALESCE") || strings.EqualFold(name, "IFNULL")
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
