// Package nullsem rewrites query trees so that SQL's three-valued NULL
// logic reproduces the two-valued semantics the source expressions were
// written against.
//
// Source comparisons never produce an unknown value: null equals null,
// null never equals a value and nothing orders against null. SQL instead
// yields NULL for any comparison with a NULL operand. The processor walks
// every expression position of a query in one bottom-up pass, tracking
// for each node whether it can be NULL, and inserts the guards needed to
// close the gap.
//
// Two modes apply. In optimized positions (WHERE, HAVING, join conditions
// and CASE tests) a NULL result is treated as false, so cheaper forms
// suffice. Everywhere else, including the operand of NOT, the rewrite is
// exact and boolean results are made non-nullable.
//
// Parameters supplied as nil are folded to NULL constants before the
// rules run. The resulting SQL then depends on which parameters were null,
// which Process reports by returning cacheable false.
//
// Dialects take part through Extensions, which handle their custom
// predicate nodes with the same Guard helper the built-in rules use.
package nullsem
