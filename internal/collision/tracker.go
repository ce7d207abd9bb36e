// Package collision keeps per-actor contact reference counts fed by trigger
// notifications from simulating clients.
package collision

import (
	"github.com/scenesync/server/internal/core/ecs"
)

// Tracker counts how many contacts each actor currently has. Counts are per
// actor, not per pair: two overlapping triggers count twice. An actor with
// no contacts has no entry.
type Tracker struct {
	counts map[ecs.ActorID]int
}

func NewTracker() *Tracker {
	return &Tracker{counts: make(map[ecs.ActorID]int)}
}

// Enter records a contact start and returns the new count.
func (t *Tracker) Enter(actor ecs.ActorID) int {
	t.counts[actor]++
	return t.counts[actor]
}

// Exit records a contact end and returns the new count. An exit without a
// matching enter is clamped at zero.
func (t *Tracker) Exit(actor ecs.ActorID) int {
	n, ok := t.counts[actor]
	if !ok {
		return 0
	}
	if n <= 1 {
		delete(t.counts, actor)
		return 0
	}
	t.counts[actor] = n - 1
	return n - 1
}

func (t *Tracker) Count(actor ecs.ActorID) int { return t.counts[actor] }

// Active reports whether the actor has at least one contact.
func (t *Tracker) Active(actor ecs.ActorID) bool { return t.counts[actor] > 0 }

// Forget discards the actor's entry whatever its count.
func (t *Tracker) Forget(actor ecs.ActorID) { delete(t.counts, actor) }

func (t *Tracker) Len() int { return len(t.counts) }
