// Package store executes compiled commands on SQLite.
//
// Connections are opened through a driver that registers the functions
// generated SQL depends on but SQLite lacks:
//   - ef_add, ef_multiply, ef_divide, ef_mod and ef_negate do decimal
//     arithmetic on the stored TEXT form with 28 significant digits, and
//     fail on overflow and division by zero
//   - ef_compare orders two decimals
//   - ef_max and ef_min aggregate decimals numerically
//   - ef_days and ef_timespan convert between timespan text and days
//   - regexp backs the REGEXP operator
//
// The store also creates tables for a model and loads seed rows, so tests
// and the CLI can run queries end to end. Results are returned as raw rows;
// turning rows into objects is left to the caller.
package store
