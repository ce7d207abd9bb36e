// Package scene holds the authoritative actor tree and turns its state into
// patches for remote peers.
package scene

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/scenesync/server/internal/core/ecs"
	"github.com/scenesync/server/internal/patch"
	"github.com/scenesync/server/internal/replica"
)

var (
	ErrUnknownActor   = errors.New("scene: unknown actor")
	ErrDuplicateActor = errors.New("scene: actor already exists")
	ErrUnknownParent  = errors.New("scene: unknown parent actor")
	ErrReadOnlyPath   = errors.New("scene: path is not writable by clients")
)

// ActorsKey is the root key every actor lives under: ["actors", id, ...].
const ActorsKey = "actors"

// Node is the tree membership of an actor.
type Node struct {
	Name   string
	Parent ecs.ActorID
	Owner  ecs.ClientID
}

// ActorSpec describes an actor to create. Nil components are omitted. A nil
// ID gets a fresh one.
type ActorSpec struct {
	ID         ecs.ActorID
	Parent     ecs.ActorID
	Name       string
	Transform  *replica.Transform
	Appearance *replica.Appearance
	Collider   *replica.Collider
	RigidBody  *replica.RigidBody
	Text       *replica.Text
	LookAt     *replica.LookAt
}

// Scene is owned by the game loop and not safe for concurrent use.
type Scene struct {
	world *ecs.World

	nodes       *ecs.PtrComponentStore[Node]
	transforms  *ecs.PtrComponentStore[replica.Transform]
	appearances *ecs.PtrComponentStore[replica.Appearance]
	colliders   *ecs.PtrComponentStore[replica.Collider]
	rigidBodies *ecs.PtrComponentStore[replica.RigidBody]
	texts       *ecs.PtrComponentStore[replica.Text]
	lookAts     *ecs.PtrComponentStore[replica.LookAt]

	children map[ecs.ActorID]map[ecs.ActorID]struct{}

	dirty   map[ecs.ActorID]struct{}
	removed map[ecs.ActorID]struct{}

	// OnSimulated is called for every created actor that has a rigid body.
	OnSimulated func(ecs.ActorID)
	// OnRemoved is called for every actor of a removed subtree.
	OnRemoved func(ecs.ActorID)

	log *zap.Logger
}

func New(log *zap.Logger) *Scene {
	s := &Scene{
		world:       ecs.NewWorld(),
		nodes:       ecs.NewPtrComponentStore[Node](),
		transforms:  ecs.NewPtrComponentStore[replica.Transform](),
		appearances: ecs.NewPtrComponentStore[replica.Appearance](),
		colliders:   ecs.NewPtrComponentStore[replica.Collider](),
		rigidBodies: ecs.NewPtrComponentStore[replica.RigidBody](),
		texts:       ecs.NewPtrComponentStore[replica.Text](),
		lookAts:     ecs.NewPtrComponentStore[replica.LookAt](),
		children:    make(map[ecs.ActorID]map[ecs.ActorID]struct{}),
		dirty:       make(map[ecs.ActorID]struct{}),
		removed:     make(map[ecs.ActorID]struct{}),
		log:         log,
	}
	reg := s.world.Registry()
	reg.Register(s.nodes)
	reg.Register(s.transforms)
	reg.Register(s.appearances)
	reg.Register(s.colliders)
	reg.Register(s.rigidBodies)
	reg.Register(s.texts)
	reg.Register(s.lookAts)
	return s
}

// Create adds an actor and returns its creation patch.
func (s *Scene) Create(spec ActorSpec) (ecs.ActorID, patch.Patch, error) {
	if !spec.Parent.IsNil() && !s.Exists(spec.Parent) {
		return ecs.NilActorID, nil, fmt.Errorf("%w: %s", ErrUnknownParent, spec.Parent)
	}
	id := spec.ID
	if id.IsNil() {
		id = s.world.CreateActor()
	} else if !s.world.AdoptActor(id) {
		return ecs.NilActorID, nil, fmt.Errorf("%w: %s", ErrDuplicateActor, id)
	}

	s.nodes.Set(id, &Node{Name: spec.Name, Parent: spec.Parent})
	if !spec.Parent.IsNil() {
		kids := s.children[spec.Parent]
		if kids == nil {
			kids = make(map[ecs.ActorID]struct{})
			s.children[spec.Parent] = kids
		}
		kids[id] = struct{}{}
	}
	if spec.Transform != nil {
		s.transforms.Set(id, spec.Transform)
	}
	if spec.Appearance != nil {
		s.appearances.Set(id, spec.Appearance)
	}
	if spec.Collider != nil {
		s.colliders.Set(id, spec.Collider)
	}
	if spec.RigidBody != nil {
		s.rigidBodies.Set(id, spec.RigidBody)
	}
	if spec.Text != nil {
		s.texts.Set(id, spec.Text)
	}
	if spec.LookAt != nil {
		s.lookAts.Set(id, spec.LookAt)
	}
	s.markDirty(id)

	if spec.RigidBody != nil && s.OnSimulated != nil {
		s.OnSimulated(id)
	}

	p, err := s.PatchFor(id, nil)
	if err != nil {
		return id, nil, err
	}
	s.log.Debug("actor created", zap.Stringer("actor", id), zap.String("name", spec.Name))
	return id, p, nil
}

// Exists reports whether the actor is live. Removed actors stop existing
// immediately even though their data is only flushed at end of tick.
func (s *Scene) Exists(id ecs.ActorID) bool { return s.world.Alive(id) }

func (s *Scene) Node(id ecs.ActorID) (*Node, bool)                   { return s.nodes.Get(id) }
func (s *Scene) Transform(id ecs.ActorID) (*replica.Transform, bool) { return s.transforms.Get(id) }
func (s *Scene) Text(id ecs.ActorID) (*replica.Text, bool)           { return s.texts.Get(id) }
func (s *Scene) RigidBody(id ecs.ActorID) (*replica.RigidBody, bool) { return s.rigidBodies.Get(id) }
func (s *Scene) Appearance(id ecs.ActorID) (*replica.Appearance, bool) {
	return s.appearances.Get(id)
}

// Len returns the number of live actors.
func (s *Scene) Len() int { return s.world.Pool().Len() - s.world.PendingDestruction() }

// Actors returns the live actor ids in stable order.
func (s *Scene) Actors() []ecs.ActorID {
	ids := s.nodes.IDs()
	out := ids[:0]
	for _, id := range ids {
		if s.Exists(id) {
			out = append(out, id)
		}
	}
	return out
}

// Bodies returns the live actors that carry both a transform and a rigid
// body, in stable order. These are the actors motion patches move.
func (s *Scene) Bodies() []ecs.ActorID {
	var out []ecs.ActorID
	ecs.Each2(s.transforms, s.rigidBodies, func(id ecs.ActorID, _ *replica.Transform, _ *replica.RigidBody) {
		if s.Exists(id) {
			out = append(out, id)
		}
	})
	ecs.SortIDs(out)
	return out
}

// BodyCount counts transform+rigid body actors, including any removed this
// tick but not yet flushed.
func (s *Scene) BodyCount() int { return ecs.Count2(s.transforms, s.rigidBodies) }

// Source returns {actors: {id: actor}} for a single actor, with components
// as rich leaves. Paths handed to PatchFor are read from it.
func (s *Scene) Source(id ecs.ActorID) (patch.Value, error) {
	if !s.Exists(id) {
		return patch.Null(), fmt.Errorf("%w: %s", ErrUnknownActor, id)
	}
	actors := patch.NewObject().Set(id.String(), s.actorValue(id))
	return patch.Obj(patch.NewObject().Set(ActorsKey, patch.Obj(actors))), nil
}

// PatchFor builds a patch of the given actor-relative paths. A nil or empty
// path list means the whole actor. Paths absent from the actor are skipped.
func (s *Scene) PatchFor(id ecs.ActorID, paths ...[]string) (patch.Patch, error) {
	src, err := s.Source(id)
	if err != nil {
		return nil, err
	}
	b := patch.NewBuilder(src)
	if len(paths) == 0 {
		paths = [][]string{nil}
	}
	for _, rel := range paths {
		full := append([]string{ActorsKey, id.String()}, rel...)
		if err := b.Add(full...); err != nil {
			return nil, fmt.Errorf("patch %s: %w", id, err)
		}
	}
	return b.Patch(), nil
}

// Hide disables the actor's appearance and moves it to park, returning one
// patch with both changes. Missing components are created.
func (s *Scene) Hide(id ecs.ActorID, park replica.Vector3) (patch.Patch, error) {
	if !s.Exists(id) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownActor, id)
	}
	app, ok := s.appearances.Get(id)
	if !ok {
		app = replica.NewAppearance()
		s.appearances.Set(id, app)
	}
	app.Enabled = false
	tr, ok := s.transforms.Get(id)
	if !ok {
		tr = replica.NewTransform()
		s.transforms.Set(id, tr)
	}
	tr.App.Position = park
	s.markDirty(id)
	return s.PatchFor(id,
		[]string{"appearance", "enabled"},
		[]string{"transform", "app", "position"})
}

// Remove removes the actor and its whole subtree. The returned patch holds
// one null entry per removed actor; removed lists them parent first.
func (s *Scene) Remove(id ecs.ActorID) (patch.Patch, []ecs.ActorID, error) {
	if !s.Exists(id) {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownActor, id)
	}
	removed := s.subtree(id)
	var p patch.Patch
	for _, rid := range removed {
		p.Remove(ActorsKey, rid.String())
		s.world.MarkForDestruction(rid)
		delete(s.dirty, rid)
		s.removed[rid] = struct{}{}
	}
	if n, ok := s.nodes.Get(id); ok && !n.Parent.IsNil() {
		delete(s.children[n.Parent], id)
	}
	for _, rid := range removed {
		if s.OnRemoved != nil {
			s.OnRemoved(rid)
		}
	}
	s.log.Debug("actor removed", zap.Stringer("actor", id), zap.Int("subtree", len(removed)))
	return p, removed, nil
}

func (s *Scene) subtree(root ecs.ActorID) []ecs.ActorID {
	out := []ecs.ActorID{root}
	for i := 0; i < len(out); i++ {
		kids := make([]ecs.ActorID, 0, len(s.children[out[i]]))
		for k := range s.children[out[i]] {
			if s.Exists(k) {
				kids = append(kids, k)
			}
		}
		ecs.SortIDs(kids)
		out = append(out, kids...)
	}
	return out
}

// Flush destroys actors removed during this tick and frees their data.
func (s *Scene) Flush() []ecs.ActorID {
	flushed := s.world.FlushDestroyQueue()
	for _, id := range flushed {
		delete(s.children, id)
	}
	return flushed
}

// SetOwner records the owner shown to peers and returns the owner patch.
// A nil client removes the owner key.
func (s *Scene) SetOwner(id ecs.ActorID, client ecs.ClientID) (patch.Patch, error) {
	n, ok := s.nodes.Get(id)
	if !ok || !s.Exists(id) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownActor, id)
	}
	n.Owner = client
	if client.IsNil() {
		var p patch.Patch
		p.Remove(ActorsKey, id.String(), "owner")
		return p, nil
	}
	return s.PatchFor(id, []string{"owner"})
}

// SetText replaces the contents of the actor's text component and returns
// the contents patch.
func (s *Scene) SetText(id ecs.ActorID, contents string) (patch.Patch, error) {
	if !s.Exists(id) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownActor, id)
	}
	t, ok := s.texts.Get(id)
	if !ok {
		t = replica.NewText("")
		s.texts.Set(id, t)
	}
	t.SetContents(contents)
	s.markDirty(id)
	return s.PatchFor(id, []string{"text", "contents"})
}

// ApplyMotion merges a simulating client's entries into the actor's
// transform and rigid body. Every entry must address
// ["actors", id, "transform"|"rigidBody", ...]; otherwise nothing is applied.
func (s *Scene) ApplyMotion(id ecs.ActorID, p patch.Patch) error {
	if !s.Exists(id) {
		return fmt.Errorf("%w: %s", ErrUnknownActor, id)
	}
	if err := p.Validate(); err != nil {
		return err
	}
	key := id.String()
	for i, e := range p {
		if len(e.Path) < 3 || e.Path[0] != ActorsKey || e.Path[1] != key {
			return fmt.Errorf("%w: entry %d (%s)", ErrReadOnlyPath, i, e)
		}
		if e.Path[2] != "transform" && e.Path[2] != "rigidBody" {
			return fmt.Errorf("%w: entry %d (%s)", ErrReadOnlyPath, i, e)
		}
	}
	tr, _ := s.transforms.Get(id)
	rb, _ := s.rigidBodies.Get(id)
	var nextTr replica.Transform
	if tr != nil {
		nextTr = *tr
	} else {
		nextTr = *replica.NewTransform()
	}
	var nextRb replica.RigidBody
	if rb != nil {
		nextRb = *rb
	} else {
		nextRb = *replica.NewRigidBody(replica.DefaultMass)
	}
	for i, e := range p {
		update := nest(e.Path[3:], e.Value)
		var err error
		if e.Path[2] == "transform" {
			err = nextTr.CopyValue(update)
		} else {
			err = nextRb.CopyValue(update)
		}
		if err != nil {
			return fmt.Errorf("entry %d (%s): %w", i, e, err)
		}
	}
	if tr != nil {
		*tr = nextTr
	} else {
		s.transforms.Set(id, &nextTr)
	}
	if rb != nil {
		*rb = nextRb
	} else if hasEntryFor(p, "rigidBody") {
		s.rigidBodies.Set(id, &nextRb)
	}
	s.markDirty(id)
	return nil
}

// nest wraps v so that it sits at rel: nest([a b], v) = {a: {b: v}}.
func nest(rel []string, v patch.Value) patch.Value {
	for i := len(rel) - 1; i >= 0; i-- {
		v = patch.Obj(patch.NewObject().Set(rel[i], v))
	}
	return v
}

func hasEntryFor(p patch.Patch, component string) bool {
	for _, e := range p {
		if e.Path[2] == component {
			return true
		}
	}
	return false
}

func (s *Scene) markDirty(id ecs.ActorID) {
	s.dirty[id] = struct{}{}
}

// TakeDirty returns and clears the actors changed and removed since the
// last call, each in stable order.
func (s *Scene) TakeDirty() (changed, removed []ecs.ActorID) {
	for id := range s.dirty {
		if s.Exists(id) {
			changed = append(changed, id)
		}
	}
	for id := range s.removed {
		removed = append(removed, id)
	}
	clear(s.dirty)
	clear(s.removed)
	ecs.SortIDs(changed)
	ecs.SortIDs(removed)
	return changed, removed
}
