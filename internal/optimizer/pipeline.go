package optimizer

import (
	"log/slog"
	"strings"

	"github.com/roach88/fedq/internal/algebra"
	"github.com/roach88/fedq/internal/member"
)

// Members is the part of the member registry the optimizer reads.
// *member.Registry satisfies it.
type Members interface {
	Resolve(ref string) (member.Handle, error)
	Capabilities(h member.Handle) (*member.Descriptor, bool)
}

// Pass is one tree rewrite. Apply edits the tree in place and reports
// whether anything changed.
type Pass interface {
	Name() string
	Apply(root *algebra.Root) (bool, error)
}

// Pipeline runs the rewrite passes in their fixed order.
//
// A Pipeline holds no per-query state and may be reused, but the tree it
// is given must not be touched by anyone else until Optimize returns.
type Pipeline struct {
	passes []Pass
	logger *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger for per-pass tracing.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// NewPipeline creates the standard pipeline:
//
//  1. n-ary join extraction
//  2. dead-node removal of join identities and empty branches
//  3. service-clause extraction
//  4. hint-aware join ordering
//  5. single-owner detection
//  6. order pushdown
//  7. slice pushdown
//  8. a final dead-node sweep
//
// Dead nodes from the parsed query are cleared before owner detection
// looks at join arguments; the last sweep clears those left by service
// extraction and the later rewrites.
func NewPipeline(members Members, opts ...Option) *Pipeline {
	p := &Pipeline{logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	p.passes = []Pass{
		NaryJoinPass{},
		DeadNodePass{},
		&ServicePass{Members: members},
		JoinOrderPass{},
		&OwnerPass{Members: members},
		OrderPass{},
		SlicePass{},
		DeadNodePass{},
	}
	return p
}

// Passes returns the passes in run order.
func (p *Pipeline) Passes() []Pass {
	return append([]Pass(nil), p.passes...)
}

// Optimize runs every pass over root. The first failing pass aborts the
// run; the tree may then be partially rewritten and must not be evaluated.
func (p *Pipeline) Optimize(root *algebra.Root) error {
	for _, pass := range p.passes {
		changed, err := pass.Apply(root)
		if err != nil {
			p.logger.Debug("optimizer pass failed", "pass", pass.Name(), "error", err)
			return &PassError{Pass: pass.Name(), Err: err}
		}
		p.logger.Debug("optimizer pass", "pass", pass.Name(), "changed", changed)
	}
	if problems := algebra.Validate(root); len(problems) > 0 {
		return &algebra.StructureError{Node: algebra.KindRoot, Message: strings.Join(problems, "; ")}
	}
	return nil
}
