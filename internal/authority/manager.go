// Package authority arbitrates which connected client drives the physics of
// each simulated actor.
package authority

import (
	"errors"

	"go.uber.org/zap"

	"github.com/scenesync/server/internal/core/ecs"
)

var (
	ErrOwnershipConflict = errors.New("authority: actor is owned by another client")
	ErrNotOwner          = errors.New("authority: client does not own actor")
	ErrUnknownActor      = errors.New("authority: actor is not simulated")
)

// Result is the answer to a request or release. A declined result carries
// the reason in Err and the unchanged current owner.
type Result struct {
	Actor    ecs.ActorID
	Accepted bool
	Owner    ecs.ClientID
	Err      error
}

// Reason says why ownership changed.
type Reason string

const (
	ReasonRequest    Reason = "request"
	ReasonRelease    Reason = "release"
	ReasonDisconnect Reason = "disconnect"
)

// Change is one ownership transition. Owner is NilClientID when the actor
// became unowned.
type Change struct {
	Actor    ecs.ActorID
	Previous ecs.ClientID
	Owner    ecs.ClientID
	Reason   Reason
}

// Manager holds the ownership record. It is owned by the game loop and is
// not safe for concurrent use; transitions are serialized by the loop.
//
// Only tracked actors can be owned. An unowned actor is simulated by the
// primary client, the longest-connected one.
type Manager struct {
	owners   map[ecs.ActorID]ecs.ClientID
	clients  []ecs.ClientID
	onChange func(Change)
	log      *zap.Logger
}

func NewManager(log *zap.Logger) *Manager {
	return &Manager{
		owners: make(map[ecs.ActorID]ecs.ClientID),
		log:    log,
	}
}

// OnChange registers the single observer invoked after every transition.
func (m *Manager) OnChange(fn func(Change)) { m.onChange = fn }

// Track makes an actor eligible for ownership, initially unowned.
// Tracking an already tracked actor keeps its owner.
func (m *Manager) Track(actor ecs.ActorID) {
	if _, ok := m.owners[actor]; ok {
		return
	}
	m.owners[actor] = ecs.NilClientID
}

// Forget drops the actor's record without notifying; used when the actor
// is removed from the scene and its removal patch supersedes the owner.
func (m *Manager) Forget(actor ecs.ActorID) {
	delete(m.owners, actor)
}

func (m *Manager) Tracked(actor ecs.ActorID) bool {
	_, ok := m.owners[actor]
	return ok
}

// Owner returns the owning client. The bool is false for unowned and
// untracked actors.
func (m *Manager) Owner(actor ecs.ActorID) (ecs.ClientID, bool) {
	c := m.owners[actor]
	return c, !c.IsNil()
}

// Request asks for ownership of actor on behalf of client. The first
// request for an unowned actor wins; the owner asking again is accepted
// without a change; anyone else is declined and may retry later.
func (m *Manager) Request(actor ecs.ActorID, client ecs.ClientID) Result {
	cur, tracked := m.owners[actor]
	switch {
	case !tracked:
		return Result{Actor: actor, Err: ErrUnknownActor}
	case cur == client:
		return Result{Actor: actor, Accepted: true, Owner: client}
	case !cur.IsNil():
		m.log.Debug("ownership request declined",
			zap.Stringer("actor", actor),
			zap.Stringer("client", client),
			zap.Stringer("owner", cur))
		return Result{Actor: actor, Owner: cur, Err: ErrOwnershipConflict}
	}
	m.owners[actor] = client
	m.notify(Change{Actor: actor, Previous: cur, Owner: client, Reason: ReasonRequest})
	return Result{Actor: actor, Accepted: true, Owner: client}
}

// Release gives up ownership. Only the current owner may release.
func (m *Manager) Release(actor ecs.ActorID, client ecs.ClientID) Result {
	cur, tracked := m.owners[actor]
	if !tracked {
		return Result{Actor: actor, Err: ErrUnknownActor}
	}
	if cur.IsNil() || cur != client {
		return Result{Actor: actor, Owner: cur, Err: ErrNotOwner}
	}
	m.owners[actor] = ecs.NilClientID
	m.notify(Change{Actor: actor, Previous: cur, Owner: ecs.NilClientID, Reason: ReasonRelease})
	return Result{Actor: actor, Accepted: true}
}

// Connect registers a client. It reports whether the client became primary.
func (m *Manager) Connect(client ecs.ClientID) bool {
	for _, c := range m.clients {
		if c == client {
			return m.clients[0] == client
		}
	}
	m.clients = append(m.clients, client)
	return len(m.clients) == 1
}

// Disconnect unregisters a client and releases every actor it owned, in
// actor id order. Primary passes to the next-longest-connected client.
func (m *Manager) Disconnect(client ecs.ClientID) []Change {
	for i, c := range m.clients {
		if c == client {
			m.clients = append(m.clients[:i], m.clients[i+1:]...)
			break
		}
	}
	owned := m.OwnedBy(client)
	changes := make([]Change, 0, len(owned))
	for _, actor := range owned {
		m.owners[actor] = ecs.NilClientID
		ch := Change{Actor: actor, Previous: client, Owner: ecs.NilClientID, Reason: ReasonDisconnect}
		m.notify(ch)
		changes = append(changes, ch)
	}
	if len(changes) > 0 {
		m.log.Info("released ownership on disconnect",
			zap.Stringer("client", client),
			zap.Int("actors", len(changes)))
	}
	return changes
}

// Primary returns the longest-connected client, or NilClientID.
func (m *Manager) Primary() ecs.ClientID {
	if len(m.clients) == 0 {
		return ecs.NilClientID
	}
	return m.clients[0]
}

func (m *Manager) Connected(client ecs.ClientID) bool {
	for _, c := range m.clients {
		if c == client {
			return true
		}
	}
	return false
}

// Simulator returns the client that drives actor's physics: its owner, or
// the primary when unowned. Untracked actors have no simulator.
func (m *Manager) Simulator(actor ecs.ActorID) ecs.ClientID {
	cur, tracked := m.owners[actor]
	if !tracked {
		return ecs.NilClientID
	}
	if !cur.IsNil() {
		return cur
	}
	return m.Primary()
}

// OwnedBy lists the actors client owns, sorted by id.
func (m *Manager) OwnedBy(client ecs.ClientID) []ecs.ActorID {
	var out []ecs.ActorID
	for actor, c := range m.owners {
		if c == client && !c.IsNil() {
			out = append(out, actor)
		}
	}
	ecs.SortIDs(out)
	return out
}

// Len returns the number of tracked actors.
func (m *Manager) Len() int { return len(m.owners) }

func (m *Manager) notify(ch Change) {
	if m.onChange != nil {
		m.onChange(ch)
	}
}
