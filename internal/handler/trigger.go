package handler

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/scenesync/server/internal/core/event"
	"github.com/scenesync/server/internal/protocol"
	"github.com/scenesync/server/internal/scene"
)

// HandleTrigger records a trigger overlap reported by the simulating peer.
// The sender must simulate either side of the contact. Both sides gain or
// lose one contact; a side that is already gone is skipped.
func HandleTrigger(_ context.Context, sess Peer, msg protocol.Envelope, deps *Deps) error {
	var m protocol.Trigger
	if err := msg.DecodePayload(&m); err != nil {
		return err
	}

	// Exits for actors removed after their settle delay are expected.
	if !deps.Scene.Exists(m.ActorID) {
		if m.Phase == protocol.PhaseExit {
			sess.Log().Debug("late trigger exit ignored", zap.Stringer("actor", m.ActorID))
			return nil
		}
		return fmt.Errorf("%w: %s", scene.ErrUnknownActor, m.ActorID)
	}

	client := sess.ClientID()
	if !simulates(deps.Owners, m.ActorID, client) && !simulates(deps.Owners, m.OtherID, client) {
		return fmt.Errorf("%w: %s", protocol.ErrNotSimulator, m.ActorID)
	}
	otherAlive := !m.OtherID.IsNil() && m.OtherID != m.ActorID && deps.Scene.Exists(m.OtherID)

	switch m.Phase {
	case protocol.PhaseEnter:
		deps.Tracker.Enter(m.ActorID)
		if otherAlive {
			deps.Tracker.Enter(m.OtherID)
		}
		event.Emit(deps.Bus, event.TriggerEntered{Actor: m.ActorID, Other: m.OtherID, Client: client})
	case protocol.PhaseExit:
		deps.Tracker.Exit(m.ActorID)
		if otherAlive {
			deps.Tracker.Exit(m.OtherID)
		}
		event.Emit(deps.Bus, event.TriggerExited{Actor: m.ActorID, Other: m.OtherID, Client: client})
	default:
		return fmt.Errorf("%w: trigger phase %q", protocol.ErrInvalidMessage, m.Phase)
	}
	return nil
}
