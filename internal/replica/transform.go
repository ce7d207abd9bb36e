package replica

import (
	"encoding/json"

	"github.com/scenesync/server/internal/patch"
)

// Pose is a position plus rotation.
type Pose struct {
	Position Vector3
	Rotation Quaternion
}

func NewPose() Pose { return Pose{Rotation: IdentityRotation} }

func (p Pose) ToWireValue() patch.Value {
	return patch.Obj(patch.NewObject().
		Set("position", p.Position.ToWireValue()).
		Set("rotation", p.Rotation.ToWireValue()))
}

func mergePose(cur Pose, v patch.Value, key string) (Pose, error) {
	o, reset, err := updateFields(v, key)
	if err != nil {
		return cur, err
	}
	if reset {
		return NewPose(), nil
	}
	out := cur
	if pv, ok := o.Get("position"); ok {
		if out.Position, err = mergeVector3(cur.Position, pv, "position"); err != nil {
			return cur, err
		}
	}
	if rv, ok := o.Get("rotation"); ok {
		if out.Rotation, err = mergeQuaternion(cur.Rotation, rv, "rotation"); err != nil {
			return cur, err
		}
	}
	return out, nil
}

// Transform carries the app (world) pose and the pose local to the parent.
// Retiring an actor writes transform.app.position only.
type Transform struct {
	App   Pose
	Local Pose
}

func NewTransform() *Transform {
	return &Transform{App: NewPose(), Local: NewPose()}
}

func (t *Transform) ToWireValue() patch.Value {
	return patch.Obj(patch.NewObject().
		Set("app", t.App.ToWireValue()).
		Set("local", t.Local.ToWireValue()))
}

// CopyValue merges present keys; nested poses merge the same way.
func (t *Transform) CopyValue(v patch.Value) error {
	o, reset, err := updateFields(v, "transform")
	if err != nil {
		return err
	}
	if reset {
		*t = *NewTransform()
		return nil
	}
	next := *t
	if av, ok := o.Get("app"); ok {
		if next.App, err = mergePose(t.App, av, "app"); err != nil {
			return err
		}
	}
	if lv, ok := o.Get("local"); ok {
		if next.Local, err = mergePose(t.Local, lv, "local"); err != nil {
			return err
		}
	}
	*t = next
	return nil
}

func (t *Transform) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.ToWireValue())
}
