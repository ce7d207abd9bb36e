package ecs

import "sort"

// Removable is implemented by all component stores so the Registry can
// bulk-remove an actor's data from every store on destroy.
type Removable interface {
	Remove(id ActorID)
}

// PtrComponentStore is a generic typed map store for actor components.
type PtrComponentStore[T any] struct {
	data map[ActorID]*T
}

func NewPtrComponentStore[T any]() *PtrComponentStore[T] {
	return &PtrComponentStore[T]{
		data: make(map[ActorID]*T, 256),
	}
}

func (s *PtrComponentStore[T]) Set(id ActorID, c *T) {
	s.data[id] = c
}

func (s *PtrComponentStore[T]) Get(id ActorID) (*T, bool) {
	c, ok := s.data[id]
	return c, ok
}

func (s *PtrComponentStore[T]) Remove(id ActorID) {
	delete(s.data, id)
}

func (s *PtrComponentStore[T]) Has(id ActorID) bool {
	_, ok := s.data[id]
	return ok
}

func (s *PtrComponentStore[T]) Len() int {
	return len(s.data)
}

// Each visits every component in unspecified order.
func (s *PtrComponentStore[T]) Each(fn func(ActorID, *T)) {
	for id, c := range s.data {
		fn(id, c)
	}
}

// IDs returns the stored actor ids in a stable (byte-wise) order, for code
// that must produce deterministic output such as snapshots.
func (s *PtrComponentStore[T]) IDs() []ActorID {
	ids := make([]ActorID, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	SortIDs(ids)
	return ids
}

// SortIDs orders ids by their canonical string form.
func SortIDs(ids []ActorID) {
	sort.Slice(ids, func(i, j int) bool {
		return ids[i].String() < ids[j].String()
	})
}
