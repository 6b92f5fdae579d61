package sqlite

import (
	"github.com/roach88/relq/internal/queryir"
)

// Glob is match GLOB pattern, or match NOT GLOB pattern when Negated. The
// pattern uses Unix wildcards and is case sensitive.
type Glob struct {
	queryir.Custom
	Match   queryir.SqlExpr
	Pattern queryir.SqlExpr
	Negated bool
}

// Regexp is match REGEXP pattern, or match NOT REGEXP pattern when Negated.
type Regexp struct {
	queryir.Custom
	Match   queryir.SqlExpr
	Pattern queryir.SqlExpr
	Negated bool
}

func (*Glob) Type() queryir.Kind              { return queryir.KindBool }
func (*Glob) Mapping() *queryir.TypeMapping   { return Bool }
func (g *Glob) Children() []queryir.SqlExpr   { return []queryir.SqlExpr{g.Match, g.Pattern} }
func (*Regexp) Type() queryir.Kind            { return queryir.KindBool }
func (*Regexp) Mapping() *queryir.TypeMapping { return Bool }
func (r *Regexp) Children() []queryir.SqlExpr { return []queryir.SqlExpr{r.Match, r.Pattern} }

func (g *Glob) WithChildren(c []queryir.SqlExpr) queryir.CustomExpr {
	if c[0] == g.Match && c[1] == g.Pattern {
		return g
	}
	return &Glob{Match: c[0], Pattern: c[1], Negated: g.Negated}
}

func (r *Regexp) WithChildren(c []queryir.SqlExpr) queryir.CustomExpr {
	if c[0] == r.Match && c[1] == r.Pattern {
		return r
	}
	return &Regexp{Match: c[0], Pattern: c[1], Negated: r.Negated}
}

// Negate returns the node with the opposite sense.
func (g *Glob) Negate() queryir.SqlExpr {
	return &Glob{Match: g.Match, Pattern: g.Pattern, Negated: !g.Negated}
}

// Negate returns the node with the opposite sense.
func (r *Regexp) Negate() queryir.SqlExpr {
	return &Regexp{Match: r.Match, Pattern: r.Pattern, Negated: !r.Negated}
}
