package replica

import (
	"github.com/scenesync/server/internal/patch"
)

type Vector3 struct {
	X, Y, Z float64
}

func (v Vector3) ToWireValue() patch.Value {
	return patch.Obj(patch.NewObject().
		Set("x", patch.Number(v.X)).
		Set("y", patch.Number(v.Y)).
		Set("z", patch.Number(v.Z)))
}

func (v Vector3) Add(o Vector3) Vector3 {
	return Vector3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

func (v Vector3) Scale(f float64) Vector3 {
	return Vector3{X: v.X * f, Y: v.Y * f, Z: v.Z * f}
}

// mergeVector3 overlays the components present in v onto cur.
func mergeVector3(cur Vector3, v patch.Value, key string) (Vector3, error) {
	o, reset, err := updateFields(v, key)
	if err != nil || reset {
		return Vector3{}, err
	}
	out := cur
	for _, c := range []struct {
		key string
		dst *float64
	}{{"x", &out.X}, {"y", &out.Y}, {"z", &out.Z}} {
		n, present, err := readNumber(o, c.key)
		if err != nil {
			return cur, err
		}
		if present {
			*c.dst = n
		}
	}
	return out, nil
}

// Quaternion is a rotation. The zero value is not a valid rotation; use
// IdentityRotation.
type Quaternion struct {
	X, Y, Z, W float64
}

var IdentityRotation = Quaternion{W: 1}

func (q Quaternion) ToWireValue() patch.Value {
	return patch.Obj(patch.NewObject().
		Set("x", patch.Number(q.X)).
		Set("y", patch.Number(q.Y)).
		Set("z", patch.Number(q.Z)).
		Set("w", patch.Number(q.W)))
}

func mergeQuaternion(cur Quaternion, v patch.Value, key string) (Quaternion, error) {
	o, reset, err := updateFields(v, key)
	if err != nil {
		return cur, err
	}
	if reset {
		return IdentityRotation, nil
	}
	out := cur
	for _, c := range []struct {
		key string
		dst *float64
	}{{"x", &out.X}, {"y", &out.Y}, {"z", &out.Z}, {"w", &out.W}} {
		n, present, err := readNumber(o, c.key)
		if err != nil {
			return cur, err
		}
		if present {
			*c.dst = n
		}
	}
	return out, nil
}
