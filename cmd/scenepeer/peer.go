package main

import (
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/scenesync/server/internal/core/ecs"
	"github.com/scenesync/server/internal/patch"
	"github.com/scenesync/server/internal/protocol"
	"github.com/scenesync/server/internal/replica"
	"github.com/scenesync/server/internal/scene"
)

// sendFunc writes one message to the host.
type sendFunc func(typ string, payload any) error

// peer mirrors the host scene from patches. It is driven by one goroutine.
type peer struct {
	send    sendFunc
	mirror  *scene.Mirror
	client  ecs.ClientID
	primary bool

	// own is "", "first" or an actor id to request after the snapshot.
	own       string
	requested bool
	origin    map[ecs.ActorID]replica.Vector3

	patches int
	resyncs int
	log     *zap.Logger
}

func newPeer(send sendFunc, own string, log *zap.Logger) *peer {
	return &peer{
		send:   send,
		mirror: scene.NewMirror(),
		own:    own,
		origin: make(map[ecs.ActorID]replica.Vector3),
		log:    log,
	}
}

func (p *peer) handle(env protocol.Envelope) error {
	switch env.Type {
	case protocol.TypeWelcome:
		var w protocol.Welcome
		if err := env.DecodePayload(&w); err != nil {
			return err
		}
		p.client = w.ClientID
		p.primary = w.Primary
		p.log.Info("joined",
			zap.Stringer("client", w.ClientID),
			zap.Bool("primary", w.Primary),
			zap.String("version", w.Version))

	case protocol.TypePrimary:
		var m protocol.Primary
		if err := env.DecodePayload(&m); err != nil {
			return err
		}
		p.primary = m.ClientID == p.client
		p.log.Info("primary moved", zap.Stringer("primary", m.ClientID), zap.Bool("self", p.primary))

	case protocol.TypePatch:
		var msg protocol.PatchMsg
		if err := env.DecodePayload(&msg); err != nil {
			return err
		}
		p.patches++
		if err := p.mirror.Apply(msg.Entries); err != nil {
			p.log.Warn("patch not applied, asking for resync", zap.Error(err))
			p.resyncs++
			return p.sendDigest()
		}
		return p.requestOwnership()

	case protocol.TypeOwnershipResponse:
		var r protocol.OwnershipResponse
		if err := env.DecodePayload(&r); err != nil {
			return err
		}
		p.log.Info("ownership response",
			zap.Stringer("actor", r.ActorID),
			zap.Bool("accepted", r.Accepted),
			zap.Stringer("owner", r.Owner),
			zap.String("code", r.Code))

	case protocol.TypeError:
		var e protocol.Error
		if err := env.DecodePayload(&e); err != nil {
			return err
		}
		p.log.Warn("host error", zap.String("code", e.Code), zap.String("message", e.Message), zap.String("ref", e.Ref))

	default:
		p.log.Debug("unhandled message", zap.String("type", env.Type))
	}
	return nil
}

// requestOwnership asks once for the configured actor.
func (p *peer) requestOwnership() error {
	if p.own == "" || p.requested || p.client.IsNil() {
		return nil
	}
	var target ecs.ActorID
	if p.own == "first" {
		for _, id := range p.mirror.Actors() {
			if _, ok := p.mirror.Lookup(scene.ActorsKey, id.String(), "rigidBody"); ok {
				target = id
				break
			}
		}
		if target.IsNil() {
			return nil
		}
	} else {
		id, err := ecs.ParseActorID(p.own)
		if err != nil {
			return fmt.Errorf("own: %w", err)
		}
		target = id
	}
	p.requested = true
	return p.send(protocol.TypeOwnershipRequest, protocol.OwnershipRequest{ActorID: target})
}

func (p *peer) sendDigest() error {
	d, err := p.mirror.Digest()
	if err != nil {
		return err
	}
	return p.send(protocol.TypeDigest, protocol.Digest{Digest: hex.EncodeToString(d[:])})
}

// owned lists mirrored actors whose owner is this peer.
func (p *peer) owned() []ecs.ActorID {
	if p.client.IsNil() {
		return nil
	}
	var out []ecs.ActorID
	for _, id := range p.mirror.Actors() {
		v, ok := p.mirror.Lookup(scene.ActorsKey, id.String(), "owner")
		if !ok {
			continue
		}
		if s, _ := v.Str(); s == p.client.String() {
			out = append(out, id)
		}
	}
	return out
}

// drive bobs every owned actor around the position it had when first
// driven, sending full vectors.
func (p *peer) drive(elapsed time.Duration) error {
	ids := p.owned()
	if len(ids) == 0 {
		return nil
	}
	var out patch.Patch
	for _, id := range ids {
		origin, ok := p.origin[id]
		if !ok {
			v, found := p.mirror.Lookup(scene.ActorsKey, id.String(), "transform")
			if !found {
				continue
			}
			tr := replica.NewTransform()
			if err := tr.CopyValue(v); err != nil {
				return err
			}
			origin = tr.App.Position
			p.origin[id] = origin
		}
		pos := origin.Add(replica.Vector3{Y: 0.25 * math.Sin(elapsed.Seconds()*2)})
		out.Set(pos.ToWireValue(), scene.ActorsKey, id.String(), "transform", "app", "position")
	}
	if len(out) == 0 {
		return nil
	}
	// Our own motion is not echoed back, so the mirror applies it directly.
	if err := p.mirror.Apply(out); err != nil {
		return err
	}
	return p.send(protocol.TypePatch, protocol.PatchMsg{Entries: out})
}
