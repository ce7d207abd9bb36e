package handler

import (
	"context"

	"github.com/scenesync/server/internal/authority"
	"github.com/scenesync/server/internal/protocol"
)

// HandleOwnershipRequest arbitrates a request and answers the sender. A
// declined request is an answer, not an error: the response carries the
// current owner and the reason code.
func HandleOwnershipRequest(_ context.Context, sess Peer, msg protocol.Envelope, deps *Deps) error {
	var m protocol.OwnershipRequest
	if err := msg.DecodePayload(&m); err != nil {
		return err
	}
	return respond(sess, deps.Owners.Request(m.ActorID, sess.ClientID()))
}

func HandleOwnershipRelease(_ context.Context, sess Peer, msg protocol.Envelope, deps *Deps) error {
	var m protocol.OwnershipRequest
	if err := msg.DecodePayload(&m); err != nil {
		return err
	}
	return respond(sess, deps.Owners.Release(m.ActorID, sess.ClientID()))
}

func respond(sess Peer, res authority.Result) error {
	return sess.SendMessage(protocol.TypeOwnershipResponse, protocol.OwnershipResponse{
		ActorID:  res.Actor,
		Accepted: res.Accepted,
		Owner:    res.Owner,
		Code:     protocol.CodeFor(res.Err),
	})
}
