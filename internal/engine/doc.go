// Package engine evaluates optimized algebra trees against the members of
// a federation.
//
// ARCHITECTURE:
//
// Pull Streams, Push Tasks:
// Every node evaluates to an ir.Stream. Cheap operators (filters,
// projections, slices) wrap their argument's stream and run in the
// consumer's goroutine. Operators that talk to members in bulk run as
// background tasks:
// - Each n-ary join step beyond the first argument is one producer task
// - Union branches are two producer tasks sharing one queue
// - A pushed Order over a Union merges one task per branch
//
// Producers push row blocks into a bounded blockQueue; the consumer pulls
// them in arrival order. A full queue blocks its producers, which is the
// only backpressure between a slow consumer and fast members.
//
// Join Strategies:
// 1. Owned argument, owner takes SPARQL text: bound join. Left rows are
// batched (WithBatchSize), sent as one VALUES block with an ?__index
// column, and the results are grouped back to their left row.
// 2. Any other argument: nested loop, one evaluation per left row.
//
// Each batch or row is a task in an errgroup limited by WithParallelism.
// The first failing task cancels its siblings and terminates the stream
// with its error.
//
// Cancellation:
// Closing a stream cancels its producer's context and waits for the
// producer to return. Producers close every stream and connection they
// opened on every exit path, so after Close returns no task is running and
// no member connection is held. Errors that only result from the close are
// dropped.
//
// Local Fallback:
// An owned subtree whose owner takes no query text, or which the renderer
// rejects, is evaluated here with the owner as triple source.
//
// The optimizer mutates trees in place and is not thread-safe. Evaluate
// must only be called on a tree no pass will touch again; the engine
// itself never mutates the tree.
package engine
