package ecs

import (
	"fmt"

	"github.com/google/uuid"
)

// ActorID is the stable identifier of a scene actor. The zero value is the
// reserved nil identifier and never names a live actor.
type ActorID uuid.UUID

// NilActorID is the reserved "no actor" identifier.
var NilActorID ActorID

func NewActorID() ActorID { return ActorID(uuid.New()) }

// ParseActorID parses the canonical textual form. Empty input yields NilActorID.
func ParseActorID(s string) (ActorID, error) {
	if s == "" {
		return NilActorID, nil
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return NilActorID, fmt.Errorf("parse actor id %q: %w", s, err)
	}
	return ActorID(u), nil
}

func (id ActorID) IsNil() bool    { return id == NilActorID }
func (id ActorID) String() string { return uuid.UUID(id).String() }

func (id ActorID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *ActorID) UnmarshalText(b []byte) error {
	v, err := ParseActorID(string(b))
	if err != nil {
		return err
	}
	*id = v
	return nil
}

// ClientID identifies a connected remote peer. NilClientID means "nobody",
// which the ownership manager uses for unowned actors.
type ClientID uuid.UUID

var NilClientID ClientID

func NewClientID() ClientID { return ClientID(uuid.New()) }

func ParseClientID(s string) (ClientID, error) {
	if s == "" {
		return NilClientID, nil
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return NilClientID, fmt.Errorf("parse client id %q: %w", s, err)
	}
	return ClientID(u), nil
}

func (id ClientID) IsNil() bool    { return id == NilClientID }
func (id ClientID) String() string { return uuid.UUID(id).String() }

func (id ClientID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *ClientID) UnmarshalText(b []byte) error {
	v, err := ParseClientID(string(b))
	if err != nil {
		return err
	}
	*id = v
	return nil
}

// AssetID names an externally created mesh or material. Names from the scene
// table map to stable ids so every host restart agrees on them.
type AssetID uuid.UUID

var NilAssetID AssetID

var assetNamespace = uuid.MustParse("6f1d3a52-8c8b-4f0e-9d4e-2b7c1a0c5e11")

// AssetIDFromName derives a deterministic asset id from its table name.
func AssetIDFromName(name string) AssetID {
	return AssetID(uuid.NewSHA1(assetNamespace, []byte(name)))
}

func ParseAssetID(s string) (AssetID, error) {
	if s == "" {
		return NilAssetID, nil
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return NilAssetID, fmt.Errorf("parse asset id %q: %w", s, err)
	}
	return AssetID(u), nil
}

func (id AssetID) IsNil() bool    { return id == NilAssetID }
func (id AssetID) String() string { return uuid.UUID(id).String() }

// ActorPool tracks which actor ids are alive. Ids are random UUIDs rather
// than generational indices because they cross process boundaries.
type ActorPool struct {
	alive map[ActorID]struct{}
}

func NewActorPool() *ActorPool {
	return &ActorPool{alive: make(map[ActorID]struct{}, 256)}
}

// Create allocates a fresh id and marks it alive.
func (p *ActorPool) Create() ActorID {
	for {
		id := NewActorID()
		if _, dup := p.alive[id]; !dup {
			p.alive[id] = struct{}{}
			return id
		}
	}
}

// Adopt marks an externally chosen id alive. Returns false for the nil id or
// an id that is already alive.
func (p *ActorPool) Adopt(id ActorID) bool {
	if id.IsNil() {
		return false
	}
	if _, dup := p.alive[id]; dup {
		return false
	}
	p.alive[id] = struct{}{}
	return true
}

func (p *ActorPool) Alive(id ActorID) bool {
	_, ok := p.alive[id]
	return ok
}

func (p *ActorPool) Destroy(id ActorID) {
	delete(p.alive, id)
}

func (p *ActorPool) Len() int { return len(p.alive) }
