package queryir

import "fmt"

// Select is a query node.
//
// Semantics:
//
//	SELECT [DISTINCT] <projections>
//	FROM <tables>
//	WHERE <predicate>
//	GROUP BY <group by> HAVING <having>
//	ORDER BY <orderings>
//	LIMIT <limit> OFFSET <offset>
//
// Projections and predicates may only reference columns of the node's own
// tables, or of enclosing nodes when the Select is nested as a correlated
// subquery. A Select with GroupBy may only project grouping keys and
// aggregates. Validate checks both.
type Select struct {
	Distinct    bool
	Projections []Projection
	Tables      []TableSource
	Predicate   SqlExpr // nil when there is no WHERE
	GroupBy     []SqlExpr
	Having      SqlExpr
	Orderings   []Ordering
	Limit       SqlExpr
	Offset      SqlExpr
}

// Projection is one column of a Select's result.
type Projection struct {
	Expr  SqlExpr
	Alias string
}

// Ordering is one ORDER BY entry.
type Ordering struct {
	Expr      SqlExpr
	Ascending bool
}

// NewOrdering builds an ordering. It panics if expr's kind has no order.
func NewOrdering(expr SqlExpr, ascending bool) Ordering {
	if !expr.Type().Comparable() {
		panic(fmt.Sprintf("queryir: cannot order by expression of kind %s", expr.Type()))
	}
	return Ordering{Expr: expr, Ascending: ascending}
}

// Clone returns a shallow copy: slices are copied, nodes are shared.
func (s *Select) Clone() *Select {
	c := *s
	c.Projections = append([]Projection(nil), s.Projections...)
	c.Tables = append([]TableSource(nil), s.Tables...)
	c.GroupBy = append([]SqlExpr(nil), s.GroupBy...)
	c.Orderings = append([]Ordering(nil), s.Orderings...)
	return &c
}

func (s *Select) WithPredicate(p SqlExpr) *Select {
	c := s.Clone()
	c.Predicate = p
	return c
}

func (s *Select) WithHaving(p SqlExpr) *Select {
	c := s.Clone()
	c.Having = p
	return c
}

func (s *Select) WithProjections(p ...Projection) *Select {
	c := s.Clone()
	c.Projections = p
	return c
}

func (s *Select) WithTables(t ...TableSource) *Select {
	c := s.Clone()
	c.Tables = t
	return c
}

// AddTable returns a copy with t appended to the table list.
func (s *Select) AddTable(t TableSource) *Select {
	c := s.Clone()
	c.Tables = append(c.Tables, t)
	return c
}

func (s *Select) WithGroupBy(keys ...SqlExpr) *Select {
	c := s.Clone()
	c.GroupBy = keys
	return c
}

func (s *Select) WithOrderings(o ...Ordering) *Select {
	c := s.Clone()
	c.Orderings = o
	return c
}

// AddOrdering returns a copy with o appended after the existing orderings.
func (s *Select) AddOrdering(o Ordering) *Select {
	c := s.Clone()
	c.Orderings = append(c.Orderings, o)
	return c
}

func (s *Select) WithLimit(e SqlExpr) *Select {
	c := s.Clone()
	c.Limit = e
	return c
}

func (s *Select) WithOffset(e SqlExpr) *Select {
	c := s.Clone()
	c.Offset = e
	return c
}

func (s *Select) WithDistinct(d bool) *Select {
	c := s.Clone()
	c.Distinct = d
	return c
}

// IsGrouped reports whether the node has a GROUP BY.
func (s *Select) IsGrouped() bool {
	return len(s.GroupBy) > 0
}

// TableByAlias finds one of the node's own table sources by alias,
// unwrapping joins.
func (s *Select) TableByAlias(alias string) (TableSource, bool) {
	for _, t := range s.Tables {
		if t.TableAlias() == alias {
			return Unwrap(t), true
		}
	}
	return nil, false
}
