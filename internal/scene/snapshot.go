package scene

import (
	"fmt"

	"github.com/scenesync/server/internal/core/ecs"
	"github.com/scenesync/server/internal/patch"
	"github.com/scenesync/server/internal/replica"
)

// actorValue assembles the actor object. Components are rich leaves so the
// codec serializes only the parts a patch asks for.
func (s *Scene) actorValue(id ecs.ActorID) patch.Value {
	o := patch.NewObject()
	if n, ok := s.nodes.Get(id); ok {
		o.Set("name", patch.String(n.Name))
		if !n.Parent.IsNil() {
			o.Set("parentId", patch.String(n.Parent.String()))
		}
		if !n.Owner.IsNil() {
			o.Set("owner", patch.String(n.Owner.String()))
		}
	}
	if c, ok := s.transforms.Get(id); ok {
		o.Set("transform", patch.Rich(c))
	}
	if c, ok := s.appearances.Get(id); ok {
		o.Set("appearance", patch.Rich(c))
	}
	if c, ok := s.colliders.Get(id); ok {
		o.Set("collider", patch.Rich(c))
	}
	if c, ok := s.rigidBodies.Get(id); ok {
		o.Set("rigidBody", patch.Rich(c))
	}
	if c, ok := s.texts.Get(id); ok {
		o.Set("text", patch.Rich(c))
	}
	if c, ok := s.lookAts.Get(id); ok {
		o.Set("lookAt", patch.Rich(c))
	}
	return patch.Obj(o)
}

// ActorWire returns the plain wire form of one actor.
func (s *Scene) ActorWire(id ecs.ActorID) (patch.Value, error) {
	if !s.Exists(id) {
		return patch.Null(), fmt.Errorf("%w: %s", ErrUnknownActor, id)
	}
	return patch.Clone(s.actorValue(id)), nil
}

// Snapshot returns the whole scene as plain wire data: {actors: {...}}.
func (s *Scene) Snapshot() patch.Value {
	actors := patch.NewObject()
	for _, id := range s.Actors() {
		actors.Set(id.String(), patch.Clone(s.actorValue(id)))
	}
	return patch.Obj(patch.NewObject().Set(ActorsKey, patch.Obj(actors)))
}

// SnapshotPatch is a single entry replacing a peer's whole actor table.
func (s *Scene) SnapshotPatch() patch.Patch {
	snap := s.Snapshot()
	actors, _ := patch.Lookup(snap, ActorsKey)
	var p patch.Patch
	p.Set(actors, ActorsKey)
	return p
}

func (s *Scene) Digest() ([32]byte, error) {
	return patch.Digest(s.Snapshot())
}

// Restore recreates an actor from its persisted wire form. The parent, if
// any, must be restored first. Owners are not restored: ownership belongs
// to live connections.
func (s *Scene) Restore(id ecs.ActorID, wire patch.Value) error {
	o, ok := wire.Wire().Object()
	if !ok {
		return fmt.Errorf("restore %s: %w: actor is %s", id, replica.ErrFieldType, wire.Kind())
	}
	spec := ActorSpec{ID: id}
	if v, ok := o.Get("name"); ok {
		spec.Name, _ = v.Str()
	}
	if v, ok := o.Get("parentId"); ok {
		ps, _ := v.Str()
		pid, err := ecs.ParseActorID(ps)
		if err != nil {
			return fmt.Errorf("restore %s: %w", id, err)
		}
		spec.Parent = pid
	}

	decode := func(key string, c interface{ CopyValue(patch.Value) error }) (bool, error) {
		v, ok := o.Get(key)
		if !ok {
			return false, nil
		}
		if err := c.CopyValue(v); err != nil {
			return false, fmt.Errorf("restore %s %s: %w", id, key, err)
		}
		return true, nil
	}

	var err error
	var present bool
	tr := replica.NewTransform()
	if present, err = decode("transform", tr); err != nil {
		return err
	} else if present {
		spec.Transform = tr
	}
	app := replica.NewAppearance()
	if present, err = decode("appearance", app); err != nil {
		return err
	} else if present {
		spec.Appearance = app
	}
	col := replica.NewCollider(replica.ShapeAuto)
	if present, err = decode("collider", col); err != nil {
		return err
	} else if present {
		spec.Collider = col
	}
	rb := replica.NewRigidBody(replica.DefaultMass)
	if present, err = decode("rigidBody", rb); err != nil {
		return err
	} else if present {
		spec.RigidBody = rb
	}
	tx := replica.NewText("")
	if present, err = decode("text", tx); err != nil {
		return err
	} else if present {
		spec.Text = tx
	}
	la := &replica.LookAt{}
	if present, err = decode("lookAt", la); err != nil {
		return err
	} else if present {
		spec.LookAt = la
	}

	_, _, err = s.Create(spec)
	return err
}
