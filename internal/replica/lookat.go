package replica

import (
	"encoding/json"

	"github.com/scenesync/server/internal/core/ecs"
	"github.com/scenesync/server/internal/patch"
)

// LookAtMode selects which axes an actor rotates on to face its target.
type LookAtMode string

const (
	LookAtNone     LookAtMode = "None"
	LookAtTargetY  LookAtMode = "TargetY"
	LookAtTargetXY LookAtMode = "TargetXY"
)

// Normalize maps empty and unknown modes to LookAtNone.
func (m LookAtMode) Normalize() LookAtMode {
	switch m {
	case LookAtTargetY, LookAtTargetXY:
		return m
	}
	return LookAtNone
}

// LookAt makes an actor face another actor. Every field has a zero value
// that assignments fall back to, so a peer never observes an undefined
// field: the nil actor id, LookAtNone and false.
type LookAt struct {
	actorID  ecs.ActorID
	mode     LookAtMode
	backward bool
}

func (l *LookAt) ActorID() ecs.ActorID { return l.actorID }
func (l *LookAt) Mode() LookAtMode     { return l.mode.Normalize() }
func (l *LookAt) Backward() bool       { return l.backward }

func (l *LookAt) SetActorID(id ecs.ActorID) { l.actorID = id }
func (l *LookAt) SetMode(m LookAtMode)      { l.mode = m.Normalize() }
func (l *LookAt) SetBackward(b bool)        { l.backward = b }

// LookAtUpdate is a partial LookAt. Nil fields are left untouched by Copy.
type LookAtUpdate struct {
	ActorID  *ecs.ActorID
	Mode     *LookAtMode
	Backward *bool
}

// Copy assigns the present fields of u through the setters.
func (l *LookAt) Copy(u LookAtUpdate) *LookAt {
	if u.ActorID != nil {
		l.SetActorID(*u.ActorID)
	}
	if u.Mode != nil {
		l.SetMode(*u.Mode)
	}
	if u.Backward != nil {
		l.SetBackward(*u.Backward)
	}
	return l
}

// CopyValue merges a wire update. Absent keys are untouched, null keys reset
// to their zero value, a null update resets everything. On a type error
// nothing is assigned.
func (l *LookAt) CopyValue(v patch.Value) error {
	o, reset, err := updateFields(v, "lookAt")
	if err != nil {
		return err
	}
	if reset {
		*l = LookAt{}
		return nil
	}
	id, hasID, err := readActorID(o, "actorId")
	if err != nil {
		return err
	}
	mode, hasMode, err := readString(o, "mode")
	if err != nil {
		return err
	}
	backward, hasBackward, err := readBool(o, "backward")
	if err != nil {
		return err
	}

	var u LookAtUpdate
	if hasID {
		u.ActorID = &id
	}
	if hasMode {
		m := LookAtMode(mode)
		u.Mode = &m
	}
	if hasBackward {
		u.Backward = &backward
	}
	l.Copy(u)
	return nil
}

// ToWireValue always carries all three fields.
func (l *LookAt) ToWireValue() patch.Value {
	return patch.Obj(patch.NewObject().
		Set("actorId", patch.String(l.ActorID().String())).
		Set("mode", patch.String(string(l.Mode()))).
		Set("backward", patch.Bool(l.Backward())))
}

func (l *LookAt) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.ToWireValue())
}

func (l *LookAt) UnmarshalJSON(b []byte) error {
	var v patch.Value
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	return l.CopyValue(v)
}
