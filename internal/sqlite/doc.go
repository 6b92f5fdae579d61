// Package sqlite is the SQLite dialect: type mappings, translator plugins,
// restrictions and rendering rules.
//
// SQLite stores few types natively. Decimals, datetimes, timespans and
// uuids are TEXT in a fixed format, uint64 wraps to INTEGER and primitive
// collections are JSON arrays. The plugins here translate operations on
// those kinds into SQL that works on the stored form:
//
//   - decimal arithmetic and comparison call ef_add, ef_multiply, ef_divide,
//     ef_mod, ef_negate and ef_compare
//   - timespan arithmetic goes through ef_days and ef_timespan
//   - datetime parts and AddX methods use strftime with date modifiers
//   - ORDER BY, Sum, Average, Min and Max over kinds whose stored form does
//     not sort or add correctly are refused at translation time
//
// The ef_* functions and regexp are not built into SQLite. Connections
// that run generated SQL must register them; internal/store does.
//
// Example rendering:
//
//	o.Total + 1.5m          ef_add("o"."Total", '1.5')
//	o.Name.StartsWith("a%") "o"."Name" LIKE 'a\%%' ESCAPE '\'
//	o.Tags[0]               "o"."Tags" ->> '$[0]'
package sqlite
