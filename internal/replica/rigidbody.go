package replica

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/scenesync/server/internal/patch"
)

// Constraint freezes one degree of freedom of a rigid body.
type Constraint string

const (
	FreezePositionX Constraint = "freezePositionX"
	FreezePositionY Constraint = "freezePositionY"
	FreezePositionZ Constraint = "freezePositionZ"
	FreezeRotationX Constraint = "freezeRotationX"
	FreezeRotationY Constraint = "freezeRotationY"
	FreezeRotationZ Constraint = "freezeRotationZ"
)

var knownConstraints = map[Constraint]struct{}{
	FreezePositionX: {}, FreezePositionY: {}, FreezePositionZ: {},
	FreezeRotationX: {}, FreezeRotationY: {}, FreezeRotationZ: {},
}

// DefaultMass is applied when a rigid body is created or its mass reset.
const DefaultMass = 1.0

// RigidBody marks an actor as dynamically simulated. Its presence is what
// makes the actor subject to ownership arbitration and the two-phase
// destruction sequence. Velocities are written by the simulating client.
type RigidBody struct {
	Mass            float64
	UseGravity      bool
	Velocity        Vector3
	AngularVelocity Vector3
	Constraints     []Constraint
}

func NewRigidBody(mass float64) *RigidBody {
	if mass <= 0 {
		mass = DefaultMass
	}
	return &RigidBody{Mass: mass, UseGravity: true}
}

func (r *RigidBody) ToWireValue() patch.Value {
	cs := make([]patch.Value, 0, len(r.Constraints))
	for _, c := range r.Constraints {
		cs = append(cs, patch.String(string(c)))
	}
	return patch.Obj(patch.NewObject().
		Set("mass", patch.Number(r.Mass)).
		Set("useGravity", patch.Bool(r.UseGravity)).
		Set("velocity", r.Velocity.ToWireValue()).
		Set("angularVelocity", r.AngularVelocity.ToWireValue()).
		Set("constraints", patch.Array(cs...)))
}

func (r *RigidBody) CopyValue(v patch.Value) error {
	o, reset, err := updateFields(v, "rigidBody")
	if err != nil {
		return err
	}
	if reset {
		*r = *NewRigidBody(DefaultMass)
		return nil
	}
	next := *r
	if m, present, err := readNumber(o, "mass"); err != nil {
		return err
	} else if present {
		if m <= 0 {
			m = DefaultMass
		}
		next.Mass = m
	}
	if raw, ok := o.Get("useGravity"); ok {
		if raw.IsNull() {
			next.UseGravity = true
		} else if next.UseGravity, _, err = readBool(o, "useGravity"); err != nil {
			return err
		}
	}
	if vv, ok := o.Get("velocity"); ok {
		if next.Velocity, err = mergeVector3(r.Velocity, vv, "velocity"); err != nil {
			return err
		}
	}
	if av, ok := o.Get("angularVelocity"); ok {
		if next.AngularVelocity, err = mergeVector3(r.AngularVelocity, av, "angularVelocity"); err != nil {
			return err
		}
	}
	if cv, ok := o.Get("constraints"); ok {
		if next.Constraints, err = readConstraints(cv); err != nil {
			return err
		}
	}
	*r = next
	return nil
}

// readConstraints replaces the whole set; arrays are never merged.
func readConstraints(v patch.Value) ([]Constraint, error) {
	if v.IsNull() {
		return nil, nil
	}
	items, ok := v.Items()
	if !ok {
		return nil, typeErr("constraints", "array", v)
	}
	seen := make(map[Constraint]struct{}, len(items))
	out := make([]Constraint, 0, len(items))
	for i, item := range items {
		s, ok := item.Str()
		if !ok {
			return nil, typeErr(fmt.Sprintf("constraints[%d]", i), "string", item)
		}
		c := Constraint(s)
		if _, known := knownConstraints[c]; !known {
			return nil, fmt.Errorf("%w: unknown constraint %q", ErrFieldType, s)
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (r *RigidBody) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.ToWireValue())
}
