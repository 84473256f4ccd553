package provider

import "fmt"

// Registry is an ordered, read-only set of providers keyed by id.
// It is safe for concurrent use once constructed.
type Registry struct {
	order []Provider
	byID  map[string]int
}

// NewRegistry builds a registry from compiled providers. Registration order is
// preserved; duplicate ids are rejected.
func NewRegistry(providers ...Provider) (*Registry, error) {
	r := &Registry{
		order: make([]Provider, 0, len(providers)),
		byID:  make(map[string]int, len(providers)),
	}
	for _, p := range providers {
		if p.ID == "" || p.name == nil || p.phone == nil {
			return nil, fmt.Errorf("provider %q was not compiled", p.ID)
		}
		if _, dup := r.byID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate provider id %q", p.ID)
		}
		r.byID[p.ID] = len(r.order)
		r.order = append(r.order, p)
	}
	return r, nil
}

// Lookup resolves a provider by exact, case-sensitive id.
func (r *Registry) Lookup(id string) (Provider, error) {
	if r != nil {
		if i, ok := r.byID[id]; ok {
			return r.order[i], nil
		}
	}
	return Provider{}, &UnknownProviderError{ID: id}
}

// All returns the providers in registration order. The slice is a copy.
func (r *Registry) All() []Provider {
	if r == nil {
		return nil
	}
	out := make([]Provider, len(r.order))
	copy(out, r.order)
	return out
}

// Default returns the first registered provider.
func (r *Registry) Default() (Provider, bool) {
	if r == nil || len(r.order) == 0 {
		return Provider{}, false
	}
	return r.order[0], true
}

// Len reports the number of registered providers.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.order)
}

// WithDefault returns a registry whose first provider is id, the others
// keeping their relative order. An empty id returns r unchanged.
func (r *Registry) WithDefault(id string) (*Registry, error) {
	if id == "" {
		return r, nil
	}
	p, err := r.Lookup(id)
	if err != nil {
		return nil, err
	}
	ordered := make([]Provider, 0, len(r.order))
	ordered = append(ordered, p)
	for _, q := range r.order {
		if q.ID != id {
			ordered = append(ordered, q)
		}
	}
	return NewRegistry(ordered...)
}
