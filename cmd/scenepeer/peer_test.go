package main

import (
	"encoding/hex"
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/scenesync/server/internal/core/ecs"
	"github.com/scenesync/server/internal/patch"
	"github.com/scenesync/server/internal/protocol"
	"github.com/scenesync/server/internal/replica"
	"github.com/scenesync/server/internal/scene"
)

type sent struct {
	typ     string
	payload any
}

func envelope(t *testing.T, typ string, payload any) protocol.Envelope {
	t.Helper()
	data, err := protocol.Encode(typ, payload)
	if err != nil {
		t.Fatal(err)
	}
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatal(err)
	}
	return env
}

func TestPeerMirrorsAndDrives(t *testing.T) {
	sc := scene.New(zap.NewNop())
	if _, _, err := sc.Create(scene.ActorSpec{Name: "floor", Collider: replica.NewCollider(replica.ShapeBox)}); err != nil {
		t.Fatal(err)
	}
	tr := replica.NewTransform()
	tr.App.Position = replica.Vector3{Y: 2}
	ball, _, err := sc.Create(scene.ActorSpec{Name: "ball", Transform: tr, RigidBody: replica.NewRigidBody(1)})
	if err != nil {
		t.Fatal(err)
	}

	var out []sent
	p := newPeer(func(typ string, payload any) error {
		out = append(out, sent{typ, payload})
		return nil
	}, "first", zap.NewNop())

	client := ecs.NewClientID()
	if err := p.handle(envelope(t, protocol.TypeWelcome, protocol.Welcome{ClientID: client, Primary: true, Version: protocol.Version})); err != nil {
		t.Fatal(err)
	}
	if err := p.handle(envelope(t, protocol.TypePatch, protocol.PatchMsg{Entries: sc.SnapshotPatch()})); err != nil {
		t.Fatal(err)
	}

	if len(out) != 1 || out[0].typ != protocol.TypeOwnershipRequest {
		t.Fatalf("sent = %+v", out)
	}
	if req := out[0].payload.(protocol.OwnershipRequest); req.ActorID != ball {
		t.Fatalf("requested %s, want the ball %s", req.ActorID, ball)
	}
	want, _ := sc.Digest()
	got, _ := p.mirror.Digest()
	if got != want {
		t.Fatalf("mirror digest differs from scene")
	}

	// A later patch must not repeat the request.
	ownerPatch, err := sc.SetOwner(ball, client)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.handle(envelope(t, protocol.TypePatch, protocol.PatchMsg{Entries: ownerPatch})); err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 {
		t.Fatalf("ownership requested twice")
	}
	if owned := p.owned(); len(owned) != 1 || owned[0] != ball {
		t.Fatalf("owned = %v", owned)
	}

	if err := p.drive(time.Second); err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 || out[1].typ != protocol.TypePatch {
		t.Fatalf("drive sent %+v", out)
	}
	motion := out[1].payload.(protocol.PatchMsg).Entries
	if err := sc.ApplyMotion(ball, motion); err != nil {
		t.Fatal(err)
	}
	want, _ = sc.Digest()
	got, _ = p.mirror.Digest()
	if got != want {
		t.Fatalf("mirror and scene diverged after driving")
	}
}

func TestPeerTakesOverPrimary(t *testing.T) {
	p := newPeer(func(string, any) error { return nil }, "", zap.NewNop())
	client := ecs.NewClientID()
	if err := p.handle(envelope(t, protocol.TypeWelcome, protocol.Welcome{ClientID: client, Version: protocol.Version})); err != nil {
		t.Fatal(err)
	}
	if p.primary {
		t.Fatalf("second peer joined as primary")
	}
	if err := p.handle(envelope(t, protocol.TypePrimary, protocol.Primary{ClientID: client})); err != nil {
		t.Fatal(err)
	}
	if !p.primary {
		t.Fatalf("primary announcement ignored")
	}
	if err := p.handle(envelope(t, protocol.TypePrimary, protocol.Primary{ClientID: ecs.NewClientID()})); err != nil {
		t.Fatal(err)
	}
	if p.primary {
		t.Fatalf("primary kept after the role moved away")
	}
}

func TestPeerAsksForResyncOnBadPatch(t *testing.T) {
	var out []sent
	p := newPeer(func(typ string, payload any) error {
		out = append(out, sent{typ, payload})
		return nil
	}, "", zap.NewNop())

	// Setting below a scalar cannot apply.
	var bad patch.Patch
	bad.Set(patch.Number(1), "actors")
	bad.Set(patch.Number(2), "actors", "x")
	if err := p.handle(envelope(t, protocol.TypePatch, protocol.PatchMsg{Entries: bad})); err != nil {
		t.Fatal(err)
	}
	if p.resyncs != 1 || len(out) != 1 || out[0].typ != protocol.TypeDigest {
		t.Fatalf("resyncs %d, sent %+v", p.resyncs, out)
	}
	d := out[0].payload.(protocol.Digest)
	if raw, err := hex.DecodeString(d.Digest); err != nil || len(raw) != 32 {
		t.Fatalf("digest = %q", d.Digest)
	}
}
