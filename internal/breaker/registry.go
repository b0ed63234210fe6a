package breaker

import "sync"

// Registry holds one independently configured breaker per collaborator.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{breakers: make(map[string]*Breaker)}
}

// GetOrCreate returns the named breaker, creating it with cfg on first use.
// The config of an existing breaker is not changed.
func (r *Registry) GetOrCreate(name string, cfg Config) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	b := New(name, cfg)
	r.breakers[name] = b
	return b
}

// Get returns the named breaker or nil.
func (r *Registry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.breakers[name]
}

// Snapshot returns metrics for every registered breaker, for health and
// operator introspection.
func (r *Registry) Snapshot() []Metrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Metrics, 0, len(r.breakers))
	for _, b := range r.breakers {
		out = append(out, b.Snapshot())
	}
	return out
}

// ResetAll forces every breaker back to CLOSED. Operator use only.
func (r *Registry) ResetAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.breakers {
		b.Reset()
	}
}
