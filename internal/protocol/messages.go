// Package protocol defines the JSON messages exchanged between the host and
// its peers, their schemas, and the type-to-handler registry.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/oklog/ulid/v2"

	"github.com/scenesync/server/internal/core/ecs"
	"github.com/scenesync/server/internal/patch"
)

const Version = "1"

// Message types.
const (
	TypeHello             = "hello"
	TypeWelcome           = "welcome"
	TypePrimary           = "primary"
	TypePatch             = "patch"
	TypeTrigger           = "trigger"
	TypeOwnershipRequest  = "ownership_request"
	TypeOwnershipRelease  = "ownership_release"
	TypeOwnershipResponse = "ownership_response"
	TypeDigest            = "digest"
	TypeError             = "error"
)

// Envelope wraps every message on the wire.
type Envelope struct {
	Type    string          `json:"type"`
	ID      ulid.ULID       `json:"id"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewID returns a fresh, monotonic-per-millisecond message id.
func NewID() ulid.ULID { return ulid.Make() }

// Encode marshals payload into a new envelope of the given type.
func Encode(typ string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", typ, err)
	}
	return json.Marshal(Envelope{Type: typ, ID: NewID(), Payload: raw})
}

// DecodePayload unmarshals the envelope payload into dst. An absent
// payload leaves dst untouched.
func (e Envelope) DecodePayload(dst any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrInvalidMessage, e.Type, err)
	}
	return nil
}

// Hello is the first message of a peer. A peer reconnecting after a drop
// may ask for its previous client id.
type Hello struct {
	ClientID string `json:"clientId,omitempty"`
	Name     string `json:"name,omitempty"`
}

type Welcome struct {
	ClientID ecs.ClientID `json:"clientId"`
	Primary  bool         `json:"primary"`
	Version  string       `json:"version"`
}

// Primary names the client that simulates every unowned actor. It is sent
// to all joined peers whenever the role moves after a disconnect.
type Primary struct {
	ClientID ecs.ClientID `json:"clientId"`
}

// PatchMsg carries scene changes in both directions.
type PatchMsg struct {
	Entries patch.Patch `json:"entries"`
}

// Trigger phases.
const (
	PhaseEnter = "enter"
	PhaseExit  = "exit"
)

// Trigger reports a trigger overlap seen by the simulating peer.
type Trigger struct {
	ActorID ecs.ActorID `json:"actorId"`
	OtherID ecs.ActorID `json:"otherId"`
	Phase   string      `json:"phase"`
}

// OwnershipRequest is the payload of ownership_request and
// ownership_release.
type OwnershipRequest struct {
	ActorID ecs.ActorID `json:"actorId"`
}

type OwnershipResponse struct {
	ActorID  ecs.ActorID  `json:"actorId"`
	Accepted bool         `json:"accepted"`
	Owner    ecs.ClientID `json:"owner"`
	Code     string       `json:"code,omitempty"`
}

// Digest carries the hex BLAKE2b-256 digest of a scene snapshot.
type Digest struct {
	Digest string `json:"digest"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
	// Ref is the id of the inbound message that caused the error.
	Ref string `json:"ref,omitempty"`
}
