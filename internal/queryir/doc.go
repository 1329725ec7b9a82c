// Package queryir provides the structured intermediate representation of a
// JSON:API read request.
//
// ARCHITECTURE:
//
// The IR sits between the query-parameter normalizer and the SQL compilers:
//
//	[query string] → [queryparams.Parse] → [Request] → [querysql / include] → [SQL]
//
// A Request is immutable once normalized. It carries the include paths,
// sparse fieldsets, sort keys, page parameters and the filter tree.
//
// SEALED INTERFACES:
//
// FilterNode is a sealed interface using the marker method pattern. Only
// Comparison and Boolean implement it, which keeps type switches in the
// compilers exhaustive:
//
//	switch n := node.(type) {
//	case *Comparison:
//	    // leaf
//	case *Boolean:
//	    // and / or group
//	}
//
// DEGRADATION:
//
// Nothing in this package fails on client input. Unknown operators become
// equality, malformed filter items are dropped, and empty groups are left
// for the compiler to omit. Validate reports what was degraded so callers
// can log it.
package queryir
