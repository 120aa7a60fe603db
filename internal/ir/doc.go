// Package ir provides the value-level types shared by every fedq package:
// RDF terms, binding sets, and the pull-based Stream of binding sets that
// evaluation produces.
//
// This package contains type definitions and small helpers only. All other
// internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Term is sealed; only IRI, BNode, and Literal implement it
//   - BindingSet is a value type; With and Merge return copies
//   - Canonical keys and hashes are NFC normalised so that equal terms
//     arriving from different members group together
package ir
