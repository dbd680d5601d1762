// Package query defines the value types shared by the access layer (SQL
// requests, normalized results, filter descriptions) and the deterministic
// faceted search builder.
//
// The builder is a stateless translation: equal (by value) inputs always
// produce byte-identical SQL and parameter slices, which is what lets the
// result cache deduplicate logically-identical searches. Identifiers are
// validated against a per-catalog allow-list; values only ever travel as
// bound parameters.
package query
