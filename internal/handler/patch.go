package handler

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/scenesync/server/internal/core/ecs"
	"github.com/scenesync/server/internal/lifecycle"
	"github.com/scenesync/server/internal/patch"
	"github.com/scenesync/server/internal/protocol"
	"github.com/scenesync/server/internal/scene"
)

// HandlePatch applies motion reported by the peer that simulates each
// addressed actor and relays the result to the other peers.
//
// The whole message is checked before anything is applied: every path must
// be valid, sit under ["actors", id, "transform"|"rigidBody"], and address
// an actor the sender simulates. Entries for actors that are already
// retiring are dropped so a late report cannot move a parked actor.
// The relayed patch is read back from the scene, so peers receive the
// merged component state rather than the sender's partial values.
func HandlePatch(_ context.Context, sess Peer, msg protocol.Envelope, deps *Deps) error {
	var m protocol.PatchMsg
	if err := msg.DecodePayload(&m); err != nil {
		return err
	}
	if err := m.Entries.Validate(); err != nil {
		return err
	}

	client := sess.ClientID()
	groups := make(map[ecs.ActorID]patch.Patch)
	var order []ecs.ActorID
	for i, e := range m.Entries {
		if len(e.Path) < 3 || e.Path[0] != scene.ActorsKey {
			return fmt.Errorf("%w: entry %d (%s)", scene.ErrReadOnlyPath, i, e)
		}
		if e.Path[2] != "transform" && e.Path[2] != "rigidBody" {
			return fmt.Errorf("%w: entry %d (%s)", scene.ErrReadOnlyPath, i, e)
		}
		id, err := ecs.ParseActorID(e.Path[1])
		if err != nil {
			return fmt.Errorf("%w: entry %d: %v", protocol.ErrInvalidMessage, i, err)
		}
		if !deps.Scene.Exists(id) {
			return fmt.Errorf("%w: %s", scene.ErrUnknownActor, id)
		}
		if !simulates(deps.Owners, id, client) {
			return fmt.Errorf("%w: %s", protocol.ErrNotSimulator, id)
		}
		if _, ok := groups[id]; !ok {
			order = append(order, id)
		}
		groups[id] = append(groups[id], e)
	}

	var relay patch.Patch
	defer func() { deps.Out.BroadcastExcept(relay, sess.SessionID()) }()

	for _, id := range order {
		if st := deps.Sequencer.State(id); st != lifecycle.Active {
			sess.Log().Debug("motion for inactive actor dropped",
				zap.Stringer("actor", id), zap.Stringer("state", st))
			continue
		}
		entries := groups[id]
		if err := deps.Scene.ApplyMotion(id, entries); err != nil {
			return err
		}
		paths := make([][]string, len(entries))
		for i, e := range entries {
			paths[i] = e.Path[2:]
		}
		p, err := deps.Scene.PatchFor(id, paths...)
		if err != nil {
			return err
		}
		relay = append(relay, p...)
	}
	return nil
}
