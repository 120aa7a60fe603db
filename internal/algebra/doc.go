// Package algebra defines the query algebra tree that the optimizer rewrites
// and the engine evaluates.
//
// Node is a sealed interface: only the node types in this package implement
// it, so type switches over Node are exhaustive. Every node except the tree
// root knows its parent, and every structural edit goes through
// ReplaceChild (or a helper built on it) so parent links stay consistent.
//
// Node kinds:
//   - Root: holder of the whole tree, so replacing the top node is a local edit
//   - Pattern: a triple pattern with optional graph context
//   - NaryJoin, Join, LeftJoin, Union: combinators
//   - Projection, Filter, Extension, Order, Slice, Distinct: unary modifiers
//   - Values, Empty, Singleton: constant relations
//   - Service: an explicit SERVICE <ref> { ... } block
//   - ServiceCall, KeywordSearch, Rank: capability-described remote calls
//   - Owned: a subtree dispatched as a whole to one federation member
//
// Binding names are computed on demand from the current tree shape and are
// never cached, so they stay correct across rewrites.
package algebra
