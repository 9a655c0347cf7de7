package collector

import (
	"context"
	"errors"
	"fmt"

	"github.com/nao1215/grantscan/internal/model"
)

// Collector fetches opportunities from one source.
//
// Collect must honor ctx: when it is cancelled, in-flight requests are
// abandoned and ctx.Err() (or an error wrapping it) is returned. Records
// returned on error are discarded by the caller.
type Collector interface {
	// Name returns the source identifier, e.g. "grants_gov".
	Name() string

	// Collect performs one collection attempt.
	Collect(ctx context.Context) ([]*model.Opportunity, error)
}

// Registry errors.
var (
	// ErrUnknownSource is returned by Select for a name that is not registered.
	ErrUnknownSource = errors.New("unknown source")

	// ErrDuplicateSource is returned by Register for a name registered twice.
	ErrDuplicateSource = errors.New("source already registered")
)

// Registry keeps the available collectors in registration order.
type Registry struct {
	order      []string
	collectors map[string]Collector
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{collectors: map[string]Collector{}}
}

// Register adds a collector. Names must be unique.
func (r *Registry) Register(c Collector) error {
	name := c.Name()
	if _, ok := r.collectors[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateSource, name)
	}
	r.collectors[name] = c
	r.order = append(r.order, name)
	return nil
}

// Names returns the registered source names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Get returns a collector by name.
func (r *Registry) Get(name string) (Collector, bool) {
	c, ok := r.collectors[name]
	return c, ok
}

// Select returns the collectors for names, in the order given. An empty
// list selects every registered collector. Repeated names are scheduled once.
func (r *Registry) Select(names []string) ([]Collector, error) {
	if len(names) == 0 {
		out := make([]Collector, 0, len(r.order))
		for _, name := range r.order {
			out = append(out, r.collectors[name])
		}
		return out, nil
	}

	seen := make(map[string]bool, len(names))
	out := make([]Collector, 0, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		c, ok := r.collectors[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSource, name)
		}
		seen[name] = true
		out = append(out, c)
	}
	return out, nil
}
