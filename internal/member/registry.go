package member

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
)

type entry struct {
	handle     Handle
	connector  Connector
	descriptor *Descriptor
}

// Registry maps member ids and reference IRIs to connectors.
//
// Thread-safety: all methods are safe for concurrent use. Registration is
// expected to finish before queries run, but nothing depends on it.
type Registry struct {
	mu     sync.RWMutex
	byID   map[string]*entry
	byRef  map[string]*entry
	def    string
	logger *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the logger used for connection diagnostics.
func WithRegistryLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = l
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		byID:   make(map[string]*entry),
		byRef:  make(map[string]*entry),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a member. The descriptor is nil for members that are not
// capability-described services. The first registered member becomes the
// default until SetDefault is called.
func (r *Registry) Register(h Handle, c Connector, d *Descriptor) error {
	if h.ID == "" {
		return errors.New("member id is empty")
	}
	if c == nil {
		return fmt.Errorf("member %s: connector is nil", h.ID)
	}
	if h.Ref == "" {
		h.Ref = h.ID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[h.ID]; ok {
		return fmt.Errorf("%w: id %s", ErrDuplicateMember, h.ID)
	}
	if _, ok := r.byRef[h.Ref]; ok {
		return fmt.Errorf("%w: ref %s", ErrDuplicateMember, h.Ref)
	}
	e := &entry{handle: h, connector: c, descriptor: d}
	r.byID[h.ID] = e
	r.byRef[h.Ref] = e
	if r.def == "" {
		r.def = h.ID
	}
	return nil
}

// SetDefault selects the member that answers patterns no other member owns.
func (r *Registry) SetDefault(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return &UnknownMemberError{Ref: id}
	}
	r.def = id
	return nil
}

// Default returns the default member.
func (r *Registry) Default() (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byID[r.def]
	if !ok {
		return Handle{}, false
	}
	return e.handle, true
}

// Resolve maps a reference IRI or a member id to its handle.
func (r *Registry) Resolve(ref string) (Handle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.byRef[ref]; ok {
		return e.handle, nil
	}
	if e, ok := r.byID[ref]; ok {
		return e.handle, nil
	}
	return Handle{}, &UnknownMemberError{Ref: ref}
}

// Connect opens a new connection to the member. The caller owns the
// connection and must close it.
func (r *Registry) Connect(ctx context.Context, h Handle) (Connection, error) {
	r.mu.RLock()
	e, ok := r.byID[h.ID]
	r.mu.RUnlock()
	if !ok {
		return nil, &UnknownMemberError{Ref: h.ID}
	}

	conn, err := e.connector.Connect(ctx)
	if err != nil {
		var ce *ConnectionError
		if errors.As(err, &ce) {
			return nil, err
		}
		return nil, &ConnectionError{Member: h.ID, Err: err}
	}
	r.logger.Debug("member connection opened", "member", h.ID)
	return conn, nil
}

// Capabilities returns the service descriptor of a capability-described
// member.
func (r *Registry) Capabilities(h Handle) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byID[h.ID]
	if !ok || e.descriptor == nil {
		return nil, false
	}
	return e.descriptor, true
}

// Described returns every member with a service descriptor, ordered by id.
func (r *Registry) Described() []Handle {
	var out []Handle
	for _, h := range r.Handles() {
		if _, ok := r.Capabilities(h); ok {
			out = append(out, h)
		}
	}
	return out
}

// Handles returns all registered members ordered by id.
func (r *Registry) Handles() []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Handle, 0, len(r.byID))
	for _, e := range r.byID {
		out = append(out, e.handle)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Close closes every connector that holds resources of its own, such as
// the local store's database handle.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for _, e := range r.byID {
		if c, ok := e.connector.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("member %s: %w", e.handle.ID, err))
			}
		}
	}
	return errors.Join(errs...)
}
