package ecs

// World is the top-level actor container. It owns the actor pool, the
// component registry, and a deferred destruction queue flushed by
// CleanupSystem at the end of each tick.
type World struct {
	pool         *ActorPool
	registry     *Registry
	destroyQueue []ActorID
	queued       map[ActorID]struct{}
}

func NewWorld() *World {
	return &World{
		pool:         NewActorPool(),
		registry:     NewRegistry(),
		destroyQueue: make([]ActorID, 0, 64),
		queued:       make(map[ActorID]struct{}, 64),
	}
}

func (w *World) Pool() *ActorPool    { return w.pool }
func (w *World) Registry() *Registry { return w.registry }

func (w *World) CreateActor() ActorID {
	return w.pool.Create()
}

// AdoptActor registers an id chosen elsewhere (bootstrap tables, restores).
func (w *World) AdoptActor(id ActorID) bool {
	return w.pool.Adopt(id)
}

// Alive reports whether the actor exists and is not queued for destruction.
func (w *World) Alive(id ActorID) bool {
	if _, q := w.queued[id]; q {
		return false
	}
	return w.pool.Alive(id)
}

// MarkForDestruction queues an actor for end-of-tick cleanup. Marking twice
// is harmless.
func (w *World) MarkForDestruction(id ActorID) {
	if _, q := w.queued[id]; q || !w.pool.Alive(id) {
		return
	}
	w.queued[id] = struct{}{}
	w.destroyQueue = append(w.destroyQueue, id)
}

// PendingDestruction returns the number of queued actors.
func (w *World) PendingDestruction() int { return len(w.destroyQueue) }

// FlushDestroyQueue destroys all queued actors and clears their components.
// Returns the destroyed ids in queue order.
func (w *World) FlushDestroyQueue() []ActorID {
	if len(w.destroyQueue) == 0 {
		return nil
	}
	flushed := make([]ActorID, len(w.destroyQueue))
	copy(flushed, w.destroyQueue)
	for _, id := range w.destroyQueue {
		w.registry.RemoveAll(id)
		w.pool.Destroy(id)
		delete(w.queued, id)
	}
	w.destroyQueue = w.destroyQueue[:0]
	return flushed
}
