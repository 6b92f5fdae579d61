package sqltranslate

import (
	"github.com/roach88/relq/internal/query"
	"github.com/roach88/relq/internal/queryir"
	"github.com/roach88/relq/internal/schema"
)

// Host is the query-shape side of translation. The scalar translator calls
// back into it for everything that needs a table source: joining a
// reference navigation, and query-valued expressions inside a scalar
// position such as o.Items.Count() or ids.Contains(o.Id).
type Host interface {
	// Navigate returns the projection of the entity a reference navigation
	// points to, joining its table when needed. Repeated navigations of the
	// same owner must reuse the same join.
	Navigate(owner *queryir.EntityProjection, nav *schema.Navigation) (queryir.Node, error)

	// Subquery translates a query-valued expression to a scalar (an
	// aggregate, EXISTS, IN or a scalar subquery) or to the projection of
	// a single element.
	Subquery(e query.Expr, scope *Scope) (queryir.Node, error)
}

// Scope binds lambda parameter names to what they stand for. Scopes are
// immutable; Bind returns a child.
type Scope struct {
	parent   *Scope
	name     string
	value    queryir.Node
	host     Host
	hasValue bool
}

// NewScope returns an empty scope whose subqueries are handled by host.
// host may be nil when only plain scalar expressions are translated.
func NewScope(host Host) *Scope {
	return &Scope{host: host}
}

// Bind returns a child scope where name refers to value.
func (s *Scope) Bind(name string, value queryir.Node) *Scope {
	return &Scope{parent: s, name: name, value: value, host: s.host, hasValue: true}
}

// WithHost returns a child scope with the same bindings and another host.
func (s *Scope) WithHost(host Host) *Scope {
	return &Scope{parent: s, host: host}
}

// Lookup resolves a bound name, innermost binding first.
func (s *Scope) Lookup(name string) (queryir.Node, bool) {
	for c := s; c != nil; c = c.parent {
		if c.hasValue && c.name == name {
			return c.value, true
		}
	}
	return nil, false
}

// Host returns the scope's host, or nil.
func (s *Scope) Host() Host {
	return s.host
}
