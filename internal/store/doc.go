// Package store provides the local federation member: a SQLite-backed
// quad store.
//
// Terms are stored in their N-Triples text form, so equality in SQL is
// term equality. Each quad carries a seq column assigned at insertion;
// every read orders by it, which keeps pattern matches deterministic
// across runs.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait on lock contention
//
// A Store is a member.Connector: Connect hands out lightweight
// connections that share the database handle, and Close on the store
// releases it.
package store
