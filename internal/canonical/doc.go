// Package canonical provides deterministic serialization and hashing for
// query shapes.
//
// A query shape is the identity of a compiled query up to parameter values.
// The compiler keys its plan cache on the hash of the canonical form of the
// source expression tree, so this package must produce byte-identical output
// for structurally identical inputs regardless of map iteration order or
// Unicode normalization form.
//
// Serialization follows RFC 8785 (JSON Canonicalization Scheme):
//   - object keys sorted by UTF-16 code units
//   - no HTML escaping
//   - strings NFC normalized
//   - numbers in shortest round-trip form
//
// This package imports nothing internal.
package canonical
