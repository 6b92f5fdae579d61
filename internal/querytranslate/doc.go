// Package querytranslate turns a query expression, a root entity set with
// a chain of query operators applied to it, into a SELECT tree.
//
// Each operator is applied to a source: a Select under construction plus
// the element its rows stand for (an entity, an anonymous object, a scalar
// or a group). Scalar lambdas are handed to sqltranslate, which calls back
// through the Host interface for navigations and nested queries. When an
// operator cannot be expressed on the current Select, such as Where after
// Take, the Select is pushed down into a derived table first.
//
// Terminal operators (Count, Sum, Any, First and the like) produce a scalar
// in subquery position, or the root query when they end the chain.
package querytranslate
