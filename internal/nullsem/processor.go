package nullsem

import (
	"errors"
	"log/slog"

	"github.com/roach88/relq/internal/queryir"
)

// Options configures a Processor.
type Options struct {
	// RelationalNulls keeps SQL's three-valued comparisons as written: no
	// null compensation is added. Null parameters and constant folding are
	// still processed.
	RelationalNulls bool

	// Extensions process dialect nodes, in order.
	Extensions []Extension

	// Logger receives debug output. nil means slog.Default().
	Logger *slog.Logger
}

// Processor rewrites query trees so that SQL's three-valued logic
// reproduces the two-valued semantics of the source expressions. It holds
// only immutable configuration and is safe for concurrent use.
type Processor struct {
	mappings queryir.MappingSource
	opts     Options
	logger   *slog.Logger
}

// New returns a processor that builds new boolean and string nodes with
// mappings from source.
func New(source queryir.MappingSource, opts Options) *Processor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{mappings: source, opts: opts, logger: logger}
}

// Process rewrites sel for the given parameter values. Parameters whose
// value is nil become NULL constants; when that happens the result depends
// on parameter nullness and cacheable is false.
//
// params may be nil, in which case every parameter is treated as possibly
// null and left in place.
func (p *Processor) Process(sel *queryir.Select, params map[string]any) (out *queryir.Select, cacheable bool, err error) {
	if sel == nil {
		return nil, false, errors.New("nullsem: nil query")
	}
	v := &Visitor{
		p:         p,
		params:    params,
		cacheable: true,
		boolMap:   p.mappings.Default(queryir.KindBool),
	}
	out = v.selectExpr(sel)
	if !v.cacheable {
		p.logger.Debug("null parameter folded into query; command is not cacheable")
	}
	return out, v.cacheable, nil
}

// selectExpr processes every expression position of a query node.
// Predicates may use optimized expansion; values are exact.
func (v *Visitor) selectExpr(sel *queryir.Select) *queryir.Select {
	out := sel.Clone()
	changed := false
	set := func(dst *queryir.SqlExpr, e queryir.SqlExpr) {
		if e != *dst {
			*dst = e
			changed = true
		}
	}

	for i, t := range sel.Tables {
		if nt := v.table(t); nt != t {
			out.Tables[i] = nt
			changed = true
		}
	}
	for i, pr := range sel.Projections {
		e, _ := v.Visit(pr.Expr, false)
		set(&out.Projections[i].Expr, e)
	}
	if sel.Predicate != nil {
		set(&out.Predicate, v.predicate(sel.Predicate))
	}
	for i, g := range sel.GroupBy {
		e, _ := v.Visit(g, false)
		set(&out.GroupBy[i], e)
	}
	if sel.Having != nil {
		set(&out.Having, v.predicate(sel.Having))
	}
	for i, o := range sel.Orderings {
		e, _ := v.Visit(o.Expr, false)
		set(&out.Orderings[i].Expr, e)
	}
	if sel.Limit != nil {
		e, _ := v.Visit(sel.Limit, false)
		set(&out.Limit, e)
	}
	if sel.Offset != nil {
		e, _ := v.Visit(sel.Offset, false)
		set(&out.Offset, e)
	}
	if !changed {
		return sel
	}
	return out
}

// predicate processes a WHERE or HAVING clause. A predicate that folds to
// true is dropped.
func (v *Visitor) predicate(e queryir.SqlExpr) queryir.SqlExpr {
	out, _ := v.Visit(e, true)
	if queryir.IsBoolConstant(out, true) {
		return nil
	}
	return out
}

func (v *Visitor) table(t queryir.TableSource) queryir.TableSource {
	switch t := t.(type) {
	case *queryir.Join:
		inner := v.table(t.Table)
		on := t.On
		if on != nil {
			v.join++
			on, _ = v.Visit(on, true)
			v.join--
		}
		if inner == t.Table && on == t.On {
			return t
		}
		return &queryir.Join{Kind: t.Kind, Table: inner, On: on}
	case *queryir.DerivedTable:
		if s := v.selectExpr(t.Select); s != t.Select {
			return &queryir.DerivedTable{Select: s, Alias: t.Alias}
		}
	case *queryir.SetOperation:
		l, r := v.selectExpr(t.Left), v.selectExpr(t.Right)
		if l != t.Left || r != t.Right {
			return &queryir.SetOperation{Op: t.Op, Left: l, Right: r, Alias: t.Alias}
		}
	case *queryir.TableFunction:
		args, changed := make([]queryir.SqlExpr, len(t.Args)), false
		for i, a := range t.Args {
			args[i], _ = v.Visit(a, false)
			changed = changed || args[i] != a
		}
		if changed {
			return &queryir.TableFunction{Name: t.Name, Args: args, Alias: t.Alias}
		}
	}
	return t
}
