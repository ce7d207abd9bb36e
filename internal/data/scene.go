package data

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/scenesync/server/internal/core/ecs"
	"github.com/scenesync/server/internal/replica"
	"github.com/scenesync/server/internal/scene"
)

// sceneNamespace derives stable actor ids from table keys, so a restored
// scene and a freshly bootstrapped one agree on ids.
var sceneNamespace = uuid.MustParse("0b7e4a6c-1f52-4d8e-a3c9-5e2d7f8b9a41")

// PoseEntry is a pose in the table. Position is [x, y, z]; rotation is an
// optional [x, y, z, w] quaternion.
type PoseEntry struct {
	Position []float64 `yaml:"position"`
	Rotation []float64 `yaml:"rotation"`
}

type TransformEntry struct {
	App   *PoseEntry `yaml:"app"`
	Local *PoseEntry `yaml:"local"`
}

// AppearanceEntry names its assets; ids are derived with ecs.AssetIDFromName.
type AppearanceEntry struct {
	Mesh     string `yaml:"mesh"`
	Material string `yaml:"material"`
	Hidden   bool   `yaml:"hidden"`
}

type ColliderEntry struct {
	Shape   string    `yaml:"shape"`
	Size    []float64 `yaml:"size"`
	Radius  float64   `yaml:"radius"`
	Trigger bool      `yaml:"trigger"`
}

type RigidBodyEntry struct {
	Mass        float64  `yaml:"mass"`
	NoGravity   bool     `yaml:"no_gravity"`
	Constraints []string `yaml:"constraints"`
}

type TextEntry struct {
	Contents string  `yaml:"contents"`
	Anchor   string  `yaml:"anchor"`
	Height   float64 `yaml:"height"`
}

// ActorEntry defines one bootstrap actor. Parents must be listed before
// their children.
type ActorEntry struct {
	Key        string           `yaml:"key"`
	Name       string           `yaml:"name"`
	Parent     string           `yaml:"parent"`
	Transform  *TransformEntry  `yaml:"transform"`
	Appearance *AppearanceEntry `yaml:"appearance"`
	Collider   *ColliderEntry   `yaml:"collider"`
	RigidBody  *RigidBodyEntry  `yaml:"rigid_body"`
	Text       *TextEntry       `yaml:"text"`
}

// CounterEntry names the trigger plane that counts balls and the text
// actor showing the count.
type CounterEntry struct {
	Plane string `yaml:"plane"`
	Label string `yaml:"label"`
}

type sceneFile struct {
	SpawnParent string       `yaml:"spawn_parent"`
	Counter     CounterEntry `yaml:"counter"`
	Actors      []ActorEntry `yaml:"actors"`
}

// SceneTable is the bootstrap scene, keyed by table key.
type SceneTable struct {
	entries     []ActorEntry
	byKey       map[string]*ActorEntry
	spawnParent string
	counter     CounterEntry
}

// LoadSceneTable loads scene.yaml.
func LoadSceneTable(path string) (*SceneTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scene table: %w", err)
	}
	return ParseSceneTable(raw)
}

// ParseSceneTable parses and checks a scene table document.
func ParseSceneTable(raw []byte) (*SceneTable, error) {
	var f sceneFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse scene table: %w", err)
	}
	t := &SceneTable{
		entries:     f.Actors,
		byKey:       make(map[string]*ActorEntry, len(f.Actors)),
		spawnParent: f.SpawnParent,
		counter:     f.Counter,
	}
	for i := range t.entries {
		e := &t.entries[i]
		if e.Key == "" {
			return nil, fmt.Errorf("scene table: actor %d has no key", i)
		}
		if _, dup := t.byKey[e.Key]; dup {
			return nil, fmt.Errorf("scene table: duplicate key %q", e.Key)
		}
		if e.Parent != "" {
			if _, ok := t.byKey[e.Parent]; !ok {
				return nil, fmt.Errorf("scene table: %q: parent %q not declared before it", e.Key, e.Parent)
			}
		}
		if _, err := e.spec(nil); err != nil {
			return nil, fmt.Errorf("scene table: %q: %w", e.Key, err)
		}
		t.byKey[e.Key] = e
	}
	for _, ref := range []string{f.SpawnParent, f.Counter.Plane, f.Counter.Label} {
		if ref == "" {
			continue
		}
		if _, ok := t.byKey[ref]; !ok {
			return nil, fmt.Errorf("scene table: unknown actor key %q", ref)
		}
	}
	return t, nil
}

// ActorID returns the stable id of the actor with the given key. Empty
// keys map to the nil id.
func (t *SceneTable) ActorID(key string) ecs.ActorID {
	if key == "" {
		return ecs.NilActorID
	}
	return ecs.ActorID(uuid.NewSHA1(sceneNamespace, []byte(key)))
}

func (t *SceneTable) Has(key string) bool {
	_, ok := t.byKey[key]
	return ok
}

// SpawnParent is the actor new balls are parented to, or the nil id.
func (t *SceneTable) SpawnParent() ecs.ActorID { return t.ActorID(t.spawnParent) }

// Counter returns the trigger plane and label actor ids. ok is false when
// the table defines no counter.
func (t *SceneTable) Counter() (plane, label ecs.ActorID, ok bool) {
	if t.counter.Plane == "" || t.counter.Label == "" {
		return ecs.NilActorID, ecs.NilActorID, false
	}
	return t.ActorID(t.counter.Plane), t.ActorID(t.counter.Label), true
}

// Specs returns creation specs for every actor, parents first.
func (t *SceneTable) Specs() []scene.ActorSpec {
	out := make([]scene.ActorSpec, 0, len(t.entries))
	for i := range t.entries {
		spec, _ := t.entries[i].spec(t)
		out = append(out, spec)
	}
	return out
}

// Count returns the total number of actors defined.
func (t *SceneTable) Count() int {
	return len(t.entries)
}

func (e *ActorEntry) spec(t *SceneTable) (scene.ActorSpec, error) {
	spec := scene.ActorSpec{Name: e.Name}
	if spec.Name == "" {
		spec.Name = e.Key
	}
	if t != nil {
		spec.ID = t.ActorID(e.Key)
		spec.Parent = t.ActorID(e.Parent)
	}
	if e.Transform != nil {
		tr := replica.NewTransform()
		var err error
		if tr.App, err = e.Transform.App.pose(); err != nil {
			return spec, fmt.Errorf("transform.app: %w", err)
		}
		if tr.Local, err = e.Transform.Local.pose(); err != nil {
			return spec, fmt.Errorf("transform.local: %w", err)
		}
		spec.Transform = tr
	}
	if a := e.Appearance; a != nil {
		app := replica.NewAppearance()
		app.Enabled = !a.Hidden
		if a.Mesh != "" {
			app.MeshID = ecs.AssetIDFromName(a.Mesh)
		}
		if a.Material != "" {
			app.MaterialID = ecs.AssetIDFromName(a.Material)
		}
		spec.Appearance = app
	}
	if c := e.Collider; c != nil {
		col := replica.NewCollider(replica.ColliderShape(c.Shape))
		if c.Size != nil {
			v, err := vec3(c.Size)
			if err != nil {
				return spec, fmt.Errorf("collider.size: %w", err)
			}
			col.Size = v
		}
		col.Radius = c.Radius
		col.IsTrigger = c.Trigger
		spec.Collider = col
	}
	if r := e.RigidBody; r != nil {
		rb := replica.NewRigidBody(r.Mass)
		rb.UseGravity = !r.NoGravity
		for _, name := range r.Constraints {
			rb.Constraints = append(rb.Constraints, replica.Constraint(name))
		}
		// Round-trip through the wire decoder to reject unknown constraints.
		if err := rb.CopyValue(rb.ToWireValue()); err != nil {
			return spec, fmt.Errorf("rigid_body: %w", err)
		}
		spec.RigidBody = rb
	}
	if x := e.Text; x != nil {
		txt := replica.NewText(x.Contents)
		txt.Anchor = replica.TextAnchor(x.Anchor).Normalize()
		if x.Height > 0 {
			txt.Height = x.Height
		}
		spec.Text = txt
	}
	return spec, nil
}

func (p *PoseEntry) pose() (replica.Pose, error) {
	out := replica.NewPose()
	if p == nil {
		return out, nil
	}
	if p.Position != nil {
		v, err := vec3(p.Position)
		if err != nil {
			return out, fmt.Errorf("position: %w", err)
		}
		out.Position = v
	}
	if p.Rotation != nil {
		if len(p.Rotation) != 4 {
			return out, fmt.Errorf("rotation: want 4 numbers, got %d", len(p.Rotation))
		}
		out.Rotation = replica.Quaternion{X: p.Rotation[0], Y: p.Rotation[1], Z: p.Rotation[2], W: p.Rotation[3]}
	}
	return out, nil
}

func vec3(v []float64) (replica.Vector3, error) {
	if len(v) != 3 {
		return replica.Vector3{}, fmt.Errorf("want 3 numbers, got %d", len(v))
	}
	return replica.Vector3{X: v[0], Y: v[1], Z: v[2]}, nil
}
