package handler

import (
	"context"

	"go.uber.org/zap"

	"github.com/scenesync/server/internal/authority"
	"github.com/scenesync/server/internal/collision"
	"github.com/scenesync/server/internal/config"
	"github.com/scenesync/server/internal/core/ecs"
	"github.com/scenesync/server/internal/core/event"
	"github.com/scenesync/server/internal/lifecycle"
	"github.com/scenesync/server/internal/patch"
	"github.com/scenesync/server/internal/protocol"
	"github.com/scenesync/server/internal/scene"
)

// Peer is the connection a message arrived on. *net.Session implements it.
type Peer interface {
	SessionID() uint64
	ClientID() ecs.ClientID
	SetClientID(ecs.ClientID)
	State() protocol.SessionState
	SetState(protocol.SessionState)
	SendMessage(typ string, payload any) error
	Log() *zap.Logger
}

// Outbound queues patches and announcements for the joined peers.
type Outbound interface {
	Broadcast(patch.Patch)
	BroadcastExcept(p patch.Patch, sessionID uint64)
	Announce(typ string, payload any)
}

// Deps holds shared dependencies injected into all message handlers.
type Deps struct {
	Config    *config.Config
	Log       *zap.Logger
	Scene     *scene.Scene
	Owners    *authority.Manager
	Tracker   *collision.Tracker
	Sequencer *lifecycle.Sequencer
	Bus       *event.Bus
	Out       Outbound
	Digests   *DigestHistory
}

// RegisterAll registers all message handlers into the registry.
func RegisterAll(reg *protocol.Registry, deps *Deps) {
	reg.Register(protocol.TypeHello,
		[]protocol.SessionState{protocol.StateConnected},
		func(ctx context.Context, sess any, msg protocol.Envelope) error {
			return HandleHello(ctx, sess.(Peer), msg, deps)
		},
	)

	joined := []protocol.SessionState{protocol.StateJoined}
	reg.Register(protocol.TypePatch, joined,
		func(ctx context.Context, sess any, msg protocol.Envelope) error {
			return HandlePatch(ctx, sess.(Peer), msg, deps)
		},
	)
	reg.Register(protocol.TypeTrigger, joined,
		func(ctx context.Context, sess any, msg protocol.Envelope) error {
			return HandleTrigger(ctx, sess.(Peer), msg, deps)
		},
	)
	reg.Register(protocol.TypeOwnershipRequest, joined,
		func(ctx context.Context, sess any, msg protocol.Envelope) error {
			return HandleOwnershipRequest(ctx, sess.(Peer), msg, deps)
		},
	)
	reg.Register(protocol.TypeOwnershipRelease, joined,
		func(ctx context.Context, sess any, msg protocol.Envelope) error {
			return HandleOwnershipRelease(ctx, sess.(Peer), msg, deps)
		},
	)
	reg.Register(protocol.TypeDigest, joined,
		func(ctx context.Context, sess any, msg protocol.Envelope) error {
			return HandleDigest(ctx, sess.(Peer), msg, deps)
		},
	)
}

// simulates reports whether client drives actor. Actors without a rigid
// body are not arbitrated and belong to the primary.
func simulates(owners *authority.Manager, actor ecs.ActorID, client ecs.ClientID) bool {
	if client.IsNil() {
		return false
	}
	if owners.Tracked(actor) {
		return owners.Simulator(actor) == client
	}
	return owners.Primary() == client
}
