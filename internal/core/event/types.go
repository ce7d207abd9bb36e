package event

import (
	"github.com/scenesync/server/internal/core/ecs"
)

// TriggerEntered is reported by the simulating client when Other starts
// touching the trigger collider of Actor.
type TriggerEntered struct {
	Actor  ecs.ActorID
	Other  ecs.ActorID
	Client ecs.ClientID
}

type TriggerExited struct {
	Actor  ecs.ActorID
	Other  ecs.ActorID
	Client ecs.ClientID
}

// OwnershipChanged follows every accepted transition. Owner is nil when the
// actor became unowned.
type OwnershipChanged struct {
	Actor    ecs.ActorID
	Previous ecs.ClientID
	Owner    ecs.ClientID
	Reason   string
}

// ActorRemoved fires once per actor after its removal patch was broadcast.
type ActorRemoved struct {
	Actor ecs.ActorID
}

type ClientJoined struct {
	Client  ecs.ClientID
	Primary bool
}

type ClientLeft struct {
	Client ecs.ClientID
}
