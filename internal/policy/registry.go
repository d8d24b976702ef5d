package policy

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds a policy from shared hyperparameters.
type Factory func(cfg Config) (Policy, error)

// Registry maps policy names to factories so commands can pick an
// implementation by flag.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under a unique name.
func (r *Registry) Register(name string, f Factory) error {
	if name == "" {
		return fmt.Errorf("policy: empty policy name")
	}
	if f == nil {
		return fmt.Errorf("policy: nil factory for %q", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("policy: %q already registered", name)
	}
	r.factories[name] = f
	return nil
}

// Build constructs the named policy.
func (r *Registry) Build(name string, cfg Config) (Policy, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
	}
	return f(cfg)
}

// Names lists registered policies in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry returns a registry with the built-in policies.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	_ = r.Register("softmax", func(cfg Config) (Policy, error) {
		return NewSoftmax(cfg), nil
	})
	return r
}
