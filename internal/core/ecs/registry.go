package ecs

// Registry tracks all component stores and supports bulk cleanup on actor destroy.
type Registry struct {
	stores []Removable
}

func NewRegistry() *Registry {
	return &Registry{
		stores: make([]Removable, 0, 8),
	}
}

// Register adds a component store to the registry.
func (r *Registry) Register(store Removable) {
	r.stores = append(r.stores, store)
}

// RemoveAll clears the given actor from every registered component store.
func (r *Registry) RemoveAll(id ActorID) {
	for _, s := range r.stores {
		s.Remove(id)
	}
}
