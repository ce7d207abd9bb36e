package handler

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/scenesync/server/internal/core/ecs"
	"github.com/scenesync/server/internal/core/event"
	"github.com/scenesync/server/internal/protocol"
)

// HandleHello joins the peer: it assigns the client id, registers the
// client for arbitration and sends the welcome followed by a full snapshot.
// A peer may reclaim its previous client id unless that id is still
// connected.
func HandleHello(_ context.Context, sess Peer, msg protocol.Envelope, deps *Deps) error {
	var h protocol.Hello
	if err := msg.DecodePayload(&h); err != nil {
		return err
	}

	client := ecs.NewClientID()
	if h.ClientID != "" {
		prev, err := ecs.ParseClientID(h.ClientID)
		if err != nil {
			return fmt.Errorf("%w: hello clientId: %v", protocol.ErrInvalidMessage, err)
		}
		if !prev.IsNil() && !deps.Owners.Connected(prev) {
			client = prev
		}
	}

	primary := deps.Owners.Connect(client)
	sess.SetClientID(client)
	sess.SetState(protocol.StateJoined)

	err := sess.SendMessage(protocol.TypeWelcome, protocol.Welcome{
		ClientID: client,
		Primary:  primary,
		Version:  protocol.Version,
	})
	if err != nil {
		return err
	}
	if err := sess.SendMessage(protocol.TypePatch, protocol.PatchMsg{Entries: deps.Scene.SnapshotPatch()}); err != nil {
		return err
	}

	event.Emit(deps.Bus, event.ClientJoined{Client: client, Primary: primary})
	sess.Log().Info("peer joined",
		zap.Stringer("client", client),
		zap.String("name", h.Name),
		zap.Bool("primary", primary),
		zap.Int("actors", deps.Scene.Len()),
	)
	return nil
}

// HandleDisconnect unregisters the peer's client and releases every actor
// it owned. The owner patches go out through the ownership observer.
// When the primary leaves, the remaining peers learn the new one.
// Peers that never said hello have nothing to release.
func HandleDisconnect(sess Peer, deps *Deps) {
	client := sess.ClientID()
	if client.IsNil() {
		return
	}
	wasPrimary := deps.Owners.Primary() == client
	changes := deps.Owners.Disconnect(client)
	event.Emit(deps.Bus, event.ClientLeft{Client: client})

	fields := []zap.Field{
		zap.Stringer("client", client),
		zap.Int("released", len(changes)),
	}
	if wasPrimary {
		next := deps.Owners.Primary()
		fields = append(fields, zap.Stringer("primary", next))
		if !next.IsNil() {
			deps.Out.Announce(protocol.TypePrimary, protocol.Primary{ClientID: next})
		}
	}
	sess.Log().Info("peer left", fields...)
}
