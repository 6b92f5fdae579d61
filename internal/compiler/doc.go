// Package compiler runs the query pipeline end to end.
//
// A query expression is compiled in two stages. The first depends only on
// the query's shape and is cached as a Plan:
//
//	query.Expr -> querytranslate -> typeinfer -> Plan
//
// The second depends on which parameter values are NULL and is cached as a
// Command keyed by the plan and that null pattern:
//
//	Plan -> nullsem -> queryir.Validate -> querysql -> Command
//
// Both caches are bounded LRU caches. Cache activity, translation failures
// and compile latency are exported as prometheus metrics when a Registerer
// is configured.
package compiler
