package scene

import (
	"github.com/scenesync/server/internal/core/ecs"
	"github.com/scenesync/server/internal/patch"
)

// Mirror is the peer-side replica of the scene, built only from patches.
type Mirror struct {
	root *patch.Object
}

func NewMirror() *Mirror {
	return &Mirror{root: patch.NewObject()}
}

// Apply applies p in order. On error the mirror may hold the entries before
// the failing one; callers resync from a snapshot.
func (m *Mirror) Apply(p patch.Patch) error {
	return patch.Apply(m.root, p)
}

func (m *Mirror) Lookup(path ...string) (patch.Value, bool) {
	return patch.Lookup(patch.Obj(m.root), path...)
}

func (m *Mirror) Actor(id ecs.ActorID) (patch.Value, bool) {
	return m.Lookup(ActorsKey, id.String())
}

// Actors lists the mirrored actor ids in stable order. Keys that are not
// actor ids are ignored.
func (m *Mirror) Actors() []ecs.ActorID {
	v, ok := m.Lookup(ActorsKey)
	if !ok {
		return nil
	}
	o, ok := v.Object()
	if !ok {
		return nil
	}
	ids := make([]ecs.ActorID, 0, o.Len())
	for _, k := range o.Keys() {
		id, err := ecs.ParseActorID(k)
		if err != nil || id.IsNil() {
			continue
		}
		ids = append(ids, id)
	}
	ecs.SortIDs(ids)
	return ids
}

// Digest hashes the mirror the same way the host hashes its snapshot. An
// empty mirror hashes as {actors: {}}.
func (m *Mirror) Digest() ([32]byte, error) {
	if !m.root.Has(ActorsKey) {
		return patch.Digest(patch.Obj(patch.NewObject().Set(ActorsKey, patch.Obj(patch.NewObject()))))
	}
	return patch.Digest(patch.Obj(m.root))
}
