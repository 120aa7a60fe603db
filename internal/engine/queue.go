package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/fedq/internal/ir"
)

// errQueueClosed is returned by Enqueue after Close.
var errQueueClosed = errors.New("queue closed")

// blockQueue is a bounded FIFO of row blocks shared by the producer tasks
// of one operator and its single consumer.
//
// A block is the rows one task produced for one unit of work (a bound-join
// batch, one left-hand row, one union row), so rows sharing a left-hand
// binding stay contiguous. Blocks from different tasks arrive in whatever
// order the tasks finish.
//
// Producers block in Enqueue while the queue is full; that is the
// backpressure between a slow consumer and fast members. Both sides wait
// with select so a cancelled context always unblocks them.
type blockQueue struct {
	mu     sync.Mutex
	blocks [][]ir.BindingSet
	limit  int
	closed bool
	ready  chan struct{} // Signals block availability (buffered, size 1)
	space  chan struct{} // Signals free capacity (buffered, size 1)
}

// newBlockQueue creates a queue holding at most limit blocks.
func newBlockQueue(limit int) *blockQueue {
	if limit < 1 {
		limit = 1
	}
	return &blockQueue{
		blocks: make([][]ir.BindingSet, 0, limit),
		limit:  limit,
		ready:  make(chan struct{}, 1),
		space:  make(chan struct{}, 1),
	}
}

// notify performs a non-blocking send; the size-1 buffer coalesces
// signals.
func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Enqueue appends a block, waiting for capacity. Empty blocks are
// dropped. Returns ctx.Err() if the context ends first and errQueueClosed
// after Close.
func (q *blockQueue) Enqueue(ctx context.Context, rows []ir.BindingSet) error {
	if len(rows) == 0 {
		return nil
	}
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			notify(q.space)
			return errQueueClosed
		}
		if len(q.blocks) < q.limit {
			q.blocks = append(q.blocks, rows)
			more := len(q.blocks) < q.limit
			q.mu.Unlock()
			notify(q.ready)
			if more {
				// Pass the wake-up on to the next blocked producer.
				notify(q.space)
			}
			return nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.space:
		}
	}
}

// TryDequeue removes the front block without blocking.
func (q *blockQueue) TryDequeue() ([]ir.BindingSet, bool) {
	q.mu.Lock()
	if len(q.blocks) == 0 {
		q.mu.Unlock()
		return nil, false
	}
	rows := q.blocks[0]
	q.blocks[0] = nil
	q.blocks = q.blocks[1:]
	if len(q.blocks) == 0 {
		q.blocks = q.blocks[:0:0]
	}
	left := len(q.blocks)
	q.mu.Unlock()

	notify(q.space)
	if left > 0 {
		notify(q.ready)
	}
	return rows, true
}

// Dequeue waits for the front block. It returns ok=false once the queue
// is closed and drained, and ctx.Err() if the context ends first.
func (q *blockQueue) Dequeue(ctx context.Context) ([]ir.BindingSet, bool, error) {
	for {
		if rows, ok := q.TryDequeue(); ok {
			return rows, true, nil
		}
		q.mu.Lock()
		done := q.closed && len(q.blocks) == 0
		q.mu.Unlock()
		if done {
			return nil, false, nil
		}

		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case <-q.ready:
		}
	}
}

// Len returns the number of queued blocks.
func (q *blockQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.blocks)
}

// Close signals that no more blocks will be enqueued. Blocks already
// queued can still be dequeued.
func (q *blockQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	notify(q.ready)
	notify(q.space)
}
