package querytranslate

import (
	"strconv"

	"github.com/roach88/relq/internal/query"
	"github.com/roach88/relq/internal/queryir"
	"github.com/roach88/relq/internal/schema"
	"github.com/roach88/relq/internal/sqltranslate"
	"github.com/roach88/relq/internal/typeinfer"
)

// source is a query under construction: a Select and the element each of
// its rows stands for. Operators replace sel and elem in place so that
// owners entries stay valid.
type source struct {
	sel  *queryir.Select
	elem queryir.Node

	// group is set instead of sel for the rows of one group inside an
	// aggregate: g.Where(...).Count() filters and counts within the
	// enclosing grouped Select.
	group *groupSource

	// exp is set when the rows come from expanding a JSON array.
	exp *expansion

	// corr is the correlation predicate of a collection navigation
	// source, also present in sel.Predicate.
	corr queryir.SqlExpr
}

type groupSource struct {
	filter   queryir.SqlExpr
	distinct bool
}

type expansion struct {
	arr   queryir.SqlExpr
	alias string
	value *queryir.ColumnRef
}

// limited reports whether the Select has a row limit or offset, which any
// further filtering or ordering must not cross.
func (s *source) limited() bool {
	return s.sel.Limit != nil || s.sel.Offset != nil
}

// composite reports whether adding a clause would change the meaning of
// the clauses already present.
func (s *source) composite() bool {
	return s.limited() || s.sel.Distinct || s.sel.IsGrouped()
}

// plainExpansion reports whether the source is an untouched json_each over
// an array, so it can be replaced by a JSON function on the array.
func (s *source) plainExpansion() bool {
	if s.exp == nil || s.sel == nil {
		return false
	}
	sel := s.sel
	return s.elem == queryir.Node(s.exp.value) && len(sel.Tables) == 1 && sel.Predicate == nil &&
		sel.Limit == nil && sel.Offset == nil && !sel.Distinct && len(sel.Orderings) == 0
}

// query translates a query-valued expression to a source.
func (c *compilation) query(e query.Expr, scope *sqltranslate.Scope) (*source, error) {
	switch e := e.(type) {
	case *query.Entity:
		ent, ok := c.model.Entity(e.Name)
		if !ok {
			names := make([]string, 0)
			for _, ent := range c.model.Entities() {
				names = append(names, ent.Name)
			}
			return nil, annotate(sqltranslate.UnknownMember("model", e.Name, names), e)
		}
		return c.entitySource(ent), nil
	case *query.Call:
		if sqltranslate.IsSequenceOperator(e.Method) {
			src, err := c.query(e.Target, scope)
			if err != nil {
				return nil, err
			}
			src, err = c.apply(src, e, scope)
			if err != nil {
				return nil, annotate(err, e)
			}
			return src, nil
		}
		if sqltranslate.IsQueryOperator(e.Method) {
			return nil, sqltranslate.InvalidQuery(query.Format(e), "%s does not return a sequence", e.Method)
		}
	}

	n, err := c.scalars.Translate(e, scope)
	if err != nil {
		return nil, err
	}
	switch n := n.(type) {
	case *queryir.CollectionNavigation:
		src, err := c.navigationSource(n)
		return src, annotate(err, e)
	case *queryir.GroupingProjection:
		return &source{elem: n.Element, group: &groupSource{}}, nil
	case queryir.SqlExpr:
		if n.Type() == queryir.KindArray {
			return c.expansionSource(n), nil
		}
	}
	return nil, sqltranslate.Untranslatable(query.Format(e), "expected a query")
}

func (c *compilation) entitySource(ent *schema.Entity) *source {
	alias := c.alias(ent.Name)
	src := &source{
		sel:  &queryir.Select{Tables: []queryir.TableSource{&queryir.Table{Name: ent.Table, Schema: ent.Schema, Alias: alias}}},
		elem: c.f.Entity(ent, alias, false),
	}
	c.owners[alias] = src
	return src
}

// navigationSource reads the dependents of a collection navigation,
// correlated to the owner by the foreign key.
func (c *compilation) navigationSource(n *queryir.CollectionNavigation) (*source, error) {
	owner, ok := c.model.Entity(n.Owner.Entity)
	if !ok {
		return nil, sqltranslate.InvalidQuery("", "unknown entity %q", n.Owner.Entity)
	}
	nav, ok := owner.Navigation(n.Navigation)
	if !ok {
		return nil, sqltranslate.UnknownMember(owner.Name, n.Navigation, owner.MemberNames())
	}
	target, ok := c.model.Entity(n.Target)
	if !ok {
		return nil, sqltranslate.InvalidQuery("", "navigation %s targets unknown entity %q", nav.Name, n.Target)
	}
	src := c.entitySource(target)
	corr, err := c.keyJoin(src.elem.(*queryir.EntityProjection), n.Owner, nav.ForeignKey, principalKey(nav, owner))
	if err != nil {
		return nil, err
	}
	// Written owner side first, as the join reads.
	if b, ok := corr.(*queryir.Binary); ok && b.Op == queryir.OpEqual {
		corr = c.f.Equal(b.Right, b.Left)
	}
	src.sel = src.sel.WithPredicate(corr)
	src.corr = corr
	return src, nil
}

// expansionSource reads the elements of a JSON array through json_each.
func (c *compilation) expansionSource(arr queryir.SqlExpr) *source {
	name := "j"
	switch a := arr.(type) {
	case *queryir.Parameter:
		name = a.Name
	case *queryir.ColumnRef:
		name = a.Name
	}
	alias := c.alias(name)
	value := &queryir.ColumnRef{
		Table:    alias,
		Name:     typeinfer.ValueColumn,
		Kind:     queryir.ElementOf(arr),
		Nullable: queryir.ElementMayBeNull(arr),
	}
	src := &source{
		sel: &queryir.Select{Tables: []queryir.TableSource{
			&queryir.TableFunction{Name: typeinfer.JSONEach, Args: []queryir.SqlExpr{arr}, Alias: alias},
		}},
		elem: value,
		exp:  &expansion{arr: arr, alias: alias, value: value},
	}
	c.owners[alias] = src
	return src
}

// keyOrder orders an array expansion by element position when nothing
// else orders it, so Skip, Take and First follow array order.
func (c *compilation) keyOrder(src *source) {
	if src.exp == nil || len(src.sel.Orderings) > 0 {
		return
	}
	if _, ok := src.sel.TableByAlias(src.exp.alias); !ok {
		return
	}
	key := &queryir.ColumnRef{Table: src.exp.alias, Name: "key", Kind: queryir.KindInt64, TypeMapping: c.f.Mapping(queryir.KindInt64)}
	src.sel = src.sel.AddOrdering(queryir.NewOrdering(key, true))
}

// adopt records that the tables of from now live in to.
func (c *compilation) adopt(from, to *source) {
	for alias, s := range c.owners {
		if s == from {
			c.owners[alias] = to
		}
	}
}

// pushdown wraps the source's Select in a derived table so further clauses
// apply to its result. The element is rebound to the derived table's
// columns; orderings on projected columns are carried outward.
func (c *compilation) pushdown(src *source) (*source, error) {
	elem := src.elem
	if g, ok := elem.(*queryir.GroupingProjection); ok {
		elem = g.Key
	}
	fl := newFlattener(true)
	if _, err := fl.node(elem, ""); err != nil {
		return nil, err
	}
	inner := src.sel.WithProjections(fl.projs...)
	alias := c.alias("t")

	nulls := make([]bool, len(fl.projs))
	for i, p := range fl.projs {
		nulls[i] = mayBeNull(p.Expr)
	}
	next := 0
	outer := &source{
		sel:  &queryir.Select{},
		elem: rebind(elem, alias, fl.projs, nulls, &next),
	}
	for _, o := range inner.Orderings {
		for i, p := range fl.projs {
			if queryir.Equal(p.Expr, o.Expr) {
				outer.sel.Orderings = append(outer.sel.Orderings, queryir.Ordering{
					Expr:      column(alias, p, nulls[i]),
					Ascending: o.Ascending,
				})
				break
			}
		}
	}
	if !src.limited() {
		inner = inner.WithOrderings()
	}
	outer.sel.Tables = []queryir.TableSource{&queryir.DerivedTable{Select: inner, Alias: alias}}
	c.owners[alias] = outer
	return outer, nil
}

// flattener lays a structural element out as projection columns.
type flattener struct {
	projs []queryir.Projection
	used  map[string]int
	// named requires an alias on every column, as derived tables and set
	// operation operands do.
	named bool
}

func newFlattener(named bool) *flattener {
	return &flattener{used: make(map[string]int), named: named}
}

func (fl *flattener) node(n queryir.Node, name string) (*Shape, error) {
	switch n := n.(type) {
	case queryir.SqlExpr:
		if name == "" {
			if col, ok := n.(*queryir.ColumnRef); ok {
				name = col.Name
			} else if fl.named {
				name = "c"
			}
		}
		return &Shape{Column: fl.add(n, name)}, nil
	case *queryir.EntityProjection:
		s := &Shape{Column: -1, Entity: n.Entity}
		for _, pc := range n.Columns {
			s.Fields = append(s.Fields, ShapeField{Name: pc.Property, Shape: &Shape{Column: fl.add(pc.Column, pc.Column.Name)}})
		}
		return s, nil
	case *queryir.ObjectProjection:
		s := &Shape{Column: -1}
		for _, f := range n.Fields {
			fs, err := fl.node(f.Value, f.Name)
			if err != nil {
				return nil, err
			}
			s.Fields = append(s.Fields, ShapeField{Name: f.Name, Shape: fs})
		}
		return s, nil
	case *queryir.GroupingProjection:
		return nil, sqltranslate.Untranslatable("", "a group must be projected with Select before it is returned")
	case *queryir.CollectionNavigation:
		return nil, sqltranslate.Untranslatable("", "collection navigation %s cannot be projected", n.Navigation)
	}
	return nil, sqltranslate.Untranslatable("", "cannot project %T", n)
}

func (fl *flattener) add(e queryir.SqlExpr, name string) int {
	if name != "" {
		name = fl.unique(name)
	}
	fl.projs = append(fl.projs, queryir.Projection{Expr: e, Alias: name})
	return len(fl.projs) - 1
}

// unique suffixes repeated names with a counter: Id, Id0, Id1.
func (fl *flattener) unique(name string) string {
	n, taken := fl.used[name]
	if !taken {
		fl.used[name] = 0
		return name
	}
	for {
		cand := name + strconv.Itoa(n)
		n++
		if _, clash := fl.used[cand]; !clash {
			fl.used[name] = n
			fl.used[cand] = 0
			return cand
		}
	}
}

// rebind rebuilds n over the columns a flattener laid it out as, read
// from the table source alias.
func rebind(n queryir.Node, alias string, projs []queryir.Projection, nulls []bool, next *int) queryir.Node {
	switch n := n.(type) {
	case queryir.SqlExpr:
		i := *next
		*next++
		return column(alias, projs[i], nulls[i])
	case *queryir.EntityProjection:
		out := &queryir.EntityProjection{Entity: n.Entity, Table: alias, Nullable: n.Nullable}
		for _, pc := range n.Columns {
			i := *next
			*next++
			out.Columns = append(out.Columns, queryir.PropertyColumn{Property: pc.Property, Column: column(alias, projs[i], nulls[i])})
		}
		return out
	case *queryir.ObjectProjection:
		out := &queryir.ObjectProjection{Fields: make([]queryir.Field, len(n.Fields))}
		for i, f := range n.Fields {
			out.Fields[i] = queryir.Field{Name: f.Name, Value: rebind(f.Value, alias, projs, nulls, next)}
		}
		return out
	}
	return n
}

func column(alias string, p queryir.Projection, nullable bool) *queryir.ColumnRef {
	name := p.Alias
	if name == "" {
		if col, ok := p.Expr.(*queryir.ColumnRef); ok {
			name = col.Name
		}
	}
	col := &queryir.ColumnRef{
		Table:       alias,
		Name:        name,
		Kind:        p.Expr.Type(),
		ElementKind: queryir.ElementOf(p.Expr),
		Nullable:    nullable,
		TypeMapping: p.Expr.Mapping(),
	}
	if col.Kind == queryir.KindArray {
		col.ElementNullable = queryir.ElementMayBeNull(p.Expr)
	}
	return col
}

// mayBeNull approximates whether e can produce NULL. It errs towards true;
// nullsem only loses an optimization when it does.
func mayBeNull(e queryir.SqlExpr) bool {
	switch e := e.(type) {
	case *queryir.ColumnRef:
		return e.Nullable
	case *queryir.Constant:
		return e.Value == nil
	case *queryir.Exists, *queryir.Like:
		return false
	case *queryir.In:
		return mayBeNull(e.Item)
	case *queryir.Function:
		if e.Nullable {
			return true
		}
		for i, a := range e.Args {
			if i < len(e.ArgsPropagateNull) && e.ArgsPropagateNull[i] && mayBeNull(a) {
				return true
			}
		}
		return false
	case *queryir.Binary:
		if e.Op == queryir.OpEqual || e.Op == queryir.OpNotEqual {
			return false
		}
		return mayBeNull(e.Left) || mayBeNull(e.Right)
	case *queryir.Unary:
		if e.Op == queryir.OpIsNull || e.Op == queryir.OpIsNotNull {
			return false
		}
		return mayBeNull(e.Operand)
	case *queryir.Case:
		if e.Else == nil {
			return true
		}
		for _, w := range e.Whens {
			if mayBeNull(w.Result) {
				return true
			}
		}
		return mayBeNull(e.Else)
	case *queryir.JsonScalar:
		return e.Nullable || mayBeNull(e.Json)
	case *queryir.Collate:
		return mayBeNull(e.Operand)
	case *queryir.Distinct:
		return mayBeNull(e.Operand)
	}
	return true
}

// correlated reports whether inner reads a column of one of outer's own
// tables.
func correlated(inner, outer *queryir.Select) bool {
	own := make(map[string]bool)
	for _, t := range outer.Tables {
		own[t.TableAlias()] = true
	}
	found := false
	visit := func(e queryir.SqlExpr) bool {
		if col, ok := e.(*queryir.ColumnRef); ok && own[col.Table] {
			found = true
		}
		return !found
	}
	queryir.InspectSelect(inner, visit)
	return found
}

// Shape maps result columns back to the element a row stands for.
type Shape struct {
	// Column is the projection index of a scalar element, -1 for an
	// entity or object.
	Column int
	// Entity names the entity type of an entity element.
	Entity string
	Fields []ShapeField
}

// ShapeField is one member of an entity or object element.
type ShapeField struct {
	Name  string
	Shape *Shape
}

// Scalar reports whether the element is a single column.
func (s *Shape) Scalar() bool {
	return s.Column >= 0
}
