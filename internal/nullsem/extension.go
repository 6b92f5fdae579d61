package nullsem

import "github.com/roach88/relq/internal/queryir"

// Extension processes the dialect nodes it owns. Visit returns ok false
// for any other node. Implementations process operands with v.Visit and
// usually finish with v.Guard, so that their predicates follow the same
// rules as built-in comparisons.
type Extension interface {
	Visit(v *Visitor, e queryir.CustomExpr, allowOptimized bool) (out queryir.SqlExpr, nullable bool, ok bool)
}

// ExtensionFunc adapts a function to Extension.
type ExtensionFunc func(v *Visitor, e queryir.CustomExpr, allowOptimized bool) (queryir.SqlExpr, bool, bool)

func (f ExtensionFunc) Visit(v *Visitor, e queryir.CustomExpr, allowOptimized bool) (queryir.SqlExpr, bool, bool) {
	return f(v, e, allowOptimized)
}

// Negatable is implemented by dialect predicates with a negated form, such
// as NOT GLOB. NOT over a non-nullable one is folded into the node.
type Negatable interface {
	queryir.CustomExpr
	Negate() queryir.SqlExpr
}
