package replica

import (
	"encoding/json"

	"github.com/scenesync/server/internal/patch"
)

type ColliderShape string

const (
	ShapeAuto   ColliderShape = "auto"
	ShapeBox    ColliderShape = "box"
	ShapeSphere ColliderShape = "sphere"
)

// Normalize maps empty and unknown shapes to ShapeAuto, which fits the
// collider to the actor's mesh on the simulating client.
func (s ColliderShape) Normalize() ColliderShape {
	switch s {
	case ShapeBox, ShapeSphere:
		return s
	}
	return ShapeAuto
}

// Collider describes collision geometry. The host never tests collisions;
// simulating clients report trigger contacts back.
type Collider struct {
	Shape     ColliderShape
	Size      Vector3 // box extents
	Radius    float64 // sphere radius
	IsTrigger bool
	Enabled   bool
}

func NewCollider(shape ColliderShape) *Collider {
	return &Collider{Shape: shape.Normalize(), Enabled: true}
}

func (c *Collider) ToWireValue() patch.Value {
	return patch.Obj(patch.NewObject().
		Set("shape", patch.String(string(c.Shape.Normalize()))).
		Set("size", c.Size.ToWireValue()).
		Set("radius", patch.Number(c.Radius)).
		Set("isTrigger", patch.Bool(c.IsTrigger)).
		Set("enabled", patch.Bool(c.Enabled)))
}

func (c *Collider) CopyValue(v patch.Value) error {
	o, reset, err := updateFields(v, "collider")
	if err != nil {
		return err
	}
	if reset {
		*c = *NewCollider(ShapeAuto)
		return nil
	}
	next := *c
	if s, present, err := readString(o, "shape"); err != nil {
		return err
	} else if present {
		next.Shape = ColliderShape(s).Normalize()
	}
	if sv, ok := o.Get("size"); ok {
		if next.Size, err = mergeVector3(c.Size, sv, "size"); err != nil {
			return err
		}
	}
	if r, present, err := readNumber(o, "radius"); err != nil {
		return err
	} else if present {
		next.Radius = r
	}
	if b, present, err := readBool(o, "isTrigger"); err != nil {
		return err
	} else if present {
		next.IsTrigger = b
	}
	if raw, ok := o.Get("enabled"); ok {
		if raw.IsNull() {
			next.Enabled = true
		} else if next.Enabled, _, err = readBool(o, "enabled"); err != nil {
			return err
		}
	}
	*c = next
	return nil
}

func (c *Collider) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.ToWireValue())
}
