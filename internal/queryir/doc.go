// Package queryir is the relational intermediate representation (IR) that
// relq compiles source queries into before rendering SQL.
//
// ARCHITECTURE:
//
// The IR sits between the two translators and the rendering passes:
//
//	[source query] → [querytranslate + sqltranslate] → [Query IR]
//	[Query IR] → [typeinfer] → [nullsem] → [Validate] → [querysql]
//
// It has three node families:
//   - SqlExpr: scalar computation (columns, constants, parameters,
//     operators, function calls, CASE, EXISTS/IN, JSON paths, LIKE)
//   - TableSource: what a Select reads from (tables, derived tables,
//     set operations, table-valued functions, joins)
//   - Select: a query node owning its table sources and clauses
//
// SEALED INTERFACES:
//
// SqlExpr and TableSource are sealed interfaces using the marker method
// pattern, as are the structural projections. Passes can switch
// exhaustively over the built-in node types:
//
//	switch e := expr.(type) {
//	case *ColumnRef:
//	case *Binary:
//	...
//	case CustomExpr:
//	    // dialect node, handled through Children/WithChildren
//	}
//
// Dialect packages add nodes (GLOB, REGEXP) by embedding Custom and
// implementing CustomExpr. Every generic pass treats them through that
// interface, so the core never needs to know which dialect is loaded.
//
// IMMUTABILITY:
//
// Nodes are never mutated after construction. Passes rebuild the path from
// a changed node to the root and share every unchanged subtree (see
// MapChildren and the Select.WithX helpers). A finished tree can therefore
// be cached and read concurrently by many compilations.
//
// Type mappings are the exception to value semantics: a *TypeMapping is
// shared by pointer across all nodes that render the same way and is
// substituted, never copied or modified.
//
// INVARIANTS:
//
// Constructors panic when handed ill-formed input (a function whose
// null-propagation flags do not match its arguments, an ordering over a
// kind that cannot be ordered). Those are defects in the translators, not
// user errors. Validate is the final pass that rejects well-formed trees the
// target dialect cannot express.
package queryir
