package replica

import (
	"encoding/json"

	"github.com/scenesync/server/internal/core/ecs"
	"github.com/scenesync/server/internal/patch"
)

// Appearance binds an actor to externally created mesh and material assets.
// A disabled appearance hides the actor and its children.
type Appearance struct {
	Enabled    bool
	MeshID     ecs.AssetID
	MaterialID ecs.AssetID
}

func NewAppearance() *Appearance { return &Appearance{Enabled: true} }

func (a *Appearance) ToWireValue() patch.Value {
	return patch.Obj(patch.NewObject().
		Set("enabled", patch.Bool(a.Enabled)).
		Set("meshId", patch.String(a.MeshID.String())).
		Set("materialId", patch.String(a.MaterialID.String())))
}

// CopyValue merges present keys. A null "enabled" restores the default (true).
func (a *Appearance) CopyValue(v patch.Value) error {
	o, reset, err := updateFields(v, "appearance")
	if err != nil {
		return err
	}
	if reset {
		*a = *NewAppearance()
		return nil
	}
	next := *a
	if raw, ok := o.Get("enabled"); ok {
		if raw.IsNull() {
			next.Enabled = true
		} else if next.Enabled, _, err = readBool(o, "enabled"); err != nil {
			return err
		}
	}
	if id, present, err := readAssetID(o, "meshId"); err != nil {
		return err
	} else if present {
		next.MeshID = id
	}
	if id, present, err := readAssetID(o, "materialId"); err != nil {
		return err
	} else if present {
		next.MaterialID = id
	}
	*a = next
	return nil
}

func (a *Appearance) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.ToWireValue())
}
