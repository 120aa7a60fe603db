package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/roach88/fedq/internal/ir"
)

// producer fills q from a background goroutine. It must return once ctx
// is cancelled and must close every stream and connection it opened
// before returning.
type producer func(ctx context.Context, q *blockQueue) error

// taskStream serves the blocks a background producer pushes into a
// bounded queue.
//
// Close cancels the producer and waits for it to return, so every task it
// started has released its member connections by the time Close returns.
// Errors the producer reports after Close are dropped.
type taskStream struct {
	queue   *blockQueue
	cancel  context.CancelFunc
	done    chan struct{}
	err     error // Written by the producer goroutine before done closes
	closing atomic.Bool
	buf     []ir.BindingSet
	once    sync.Once
}

// start runs p in a new goroutine and returns the stream of its rows.
func (e *Engine) start(ctx context.Context, p producer) *taskStream {
	ctx, cancel := context.WithCancel(ctx)
	s := &taskStream{
		queue:  newBlockQueue(e.queueSize),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		err := p(ctx, s.queue)
		if err != nil && !s.closing.Load() && !errors.Is(err, errQueueClosed) {
			s.err = err
		}
		s.queue.Close()
	}()
	return s
}

// Next implements ir.Stream.
func (s *taskStream) Next(ctx context.Context) (ir.BindingSet, bool, error) {
	if s.closing.Load() {
		return ir.BindingSet{}, false, nil
	}
	for len(s.buf) == 0 {
		rows, ok, err := s.queue.Dequeue(ctx)
		if err != nil {
			return ir.BindingSet{}, false, err
		}
		if !ok {
			<-s.done
			return ir.BindingSet{}, false, s.err
		}
		s.buf = rows
	}
	row := s.buf[0]
	s.buf = s.buf[1:]
	return row, true, nil
}

// Close implements ir.Stream.
func (s *taskStream) Close() error {
	s.once.Do(func() {
		s.closing.Store(true)
		s.cancel()
		<-s.done
		s.buf = nil
	})
	return nil
}

// pump runs n and forwards its rows to q, one block per row so the
// consumer sees each row as soon as it arrives.
func (e *Engine) pump(ctx context.Context, ev env, n nodeEval, q *blockQueue) error {
	s, err := n(ctx, ev)
	if err != nil {
		return err
	}
	defer s.Close()
	for {
		row, ok, err := s.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := q.Enqueue(ctx, []ir.BindingSet{row}); err != nil {
			return err
		}
	}
}

// nodeEval defers the evaluation of one node until a task runs it.
type nodeEval func(ctx context.Context, env env) (ir.Stream, error)

// closerStream closes extra resources, such as a member connection,
// together with the stream it wraps.
type closerStream struct {
	ir.Stream
	closers []func() error
	once    sync.Once
	err     error
}

func withClose(s ir.Stream, closers ...func() error) ir.Stream {
	return &closerStream{Stream: s, closers: closers}
}

func (c *closerStream) Close() error {
	c.once.Do(func() {
		errs := []error{c.Stream.Close()}
		for _, fn := range c.closers {
			errs = append(errs, fn())
		}
		c.err = errors.Join(errs...)
	})
	return c.err
}

// flatStream expands every upstream row into zero or more rows.
type flatStream struct {
	src  ir.Stream
	fn   func(ctx context.Context, row ir.BindingSet) ([]ir.BindingSet, error)
	buf  []ir.BindingSet
	once sync.Once
	err  error
}

func flatMap(src ir.Stream, fn func(ctx context.Context, row ir.BindingSet) ([]ir.BindingSet, error)) ir.Stream {
	return &flatStream{src: src, fn: fn}
}

func (f *flatStream) Next(ctx context.Context) (ir.BindingSet, bool, error) {
	for len(f.buf) == 0 {
		row, ok, err := f.src.Next(ctx)
		if err != nil || !ok {
			return ir.BindingSet{}, false, err
		}
		out, err := f.fn(ctx, row)
		if err != nil {
			return ir.BindingSet{}, false, err
		}
		f.buf = out
	}
	row := f.buf[0]
	f.buf = f.buf[1:]
	return row, true, nil
}

func (f *flatStream) Close() error {
	f.once.Do(func() { f.err = f.src.Close() })
	return f.err
}
