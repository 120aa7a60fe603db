package ir

import (
	"context"
	"sync"
)

// Stream is a pull-based sequence of binding sets.
//
// Next returns the next binding set with ok=true, or ok=false at the end of
// the stream. A non-nil error terminates the stream. Close releases every
// resource held by the stream, including background work and member
// connections; it is safe to call more than once and only the first call
// has an effect.
type Stream interface {
	Next(ctx context.Context) (BindingSet, bool, error)
	Close() error
}

// sliceStream serves binding sets from memory.
type sliceStream struct {
	rows    []BindingSet
	pos     int
	onClose func() error
	once    sync.Once
	err     error
}

// NewSliceStream returns a stream over rows.
func NewSliceStream(rows ...BindingSet) Stream {
	return &sliceStream{rows: rows}
}

// NewSliceStreamWithClose returns a stream over rows that calls onClose
// exactly once when closed.
func NewSliceStreamWithClose(rows []BindingSet, onClose func() error) Stream {
	return &sliceStream{rows: rows, onClose: onClose}
}

func (s *sliceStream) Next(ctx context.Context) (BindingSet, bool, error) {
	if err := ctx.Err(); err != nil {
		return BindingSet{}, false, err
	}
	if s.pos >= len(s.rows) {
		return BindingSet{}, false, nil
	}
	row := s.rows[s.pos]
	s.pos++
	return row, true, nil
}

func (s *sliceStream) Close() error {
	s.once.Do(func() {
		s.pos = len(s.rows)
		if s.onClose != nil {
			s.err = s.onClose()
		}
	})
	return s.err
}

// EmptyStream returns a stream with no rows.
func EmptyStream() Stream {
	return &sliceStream{}
}

// Collect drains the stream into a slice and closes it.
func Collect(ctx context.Context, s Stream) ([]BindingSet, error) {
	defer s.Close()

	var rows []BindingSet
	for {
		row, ok, err := s.Next(ctx)
		if err != nil {
			return rows, err
		}
		if !ok {
			return rows, nil
		}
		rows = append(rows, row)
	}
}

// mapStream applies a row function to an upstream stream. Rows for which
// fn returns keep=false are skipped.
type mapStream struct {
	src  Stream
	fn   func(BindingSet) (BindingSet, bool, error)
	once sync.Once
	err  error
}

// MapStream returns a stream that transforms or filters each upstream row.
// Closing the returned stream closes src.
func MapStream(src Stream, fn func(BindingSet) (BindingSet, bool, error)) Stream {
	return &mapStream{src: src, fn: fn}
}

func (m *mapStream) Next(ctx context.Context) (BindingSet, bool, error) {
	for {
		row, ok, err := m.src.Next(ctx)
		if err != nil || !ok {
			return BindingSet{}, false, err
		}
		out, keep, err := m.fn(row)
		if err != nil {
			return BindingSet{}, false, err
		}
		if keep {
			return out, true, nil
		}
	}
}

func (m *mapStream) Close() error {
	m.once.Do(func() { m.err = m.src.Close() })
	return m.err
}
