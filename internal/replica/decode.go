package replica

import (
	"errors"
	"fmt"

	"github.com/scenesync/server/internal/core/ecs"
	"github.com/scenesync/server/internal/patch"
)

// ErrFieldType is returned when a wire update carries a value of the wrong
// JSON type for a known field.
var ErrFieldType = errors.New("replica: wrong field type")

// updateFields returns the object form of a wire update. A null update
// returns (nil, true, nil): the caller resets the whole component.
func updateFields(v patch.Value, component string) (*patch.Object, bool, error) {
	if v.IsNull() {
		return nil, true, nil
	}
	o, ok := v.Wire().Object()
	if !ok {
		return nil, false, fmt.Errorf("%w: %s update is %s, want object", ErrFieldType, component, v.Kind())
	}
	return o, false, nil
}

// Each reader reports (value, present, error). A key holding null is
// present with the zero value so callers route it through their setter,
// which applies the field default.

func readBool(o *patch.Object, key string) (bool, bool, error) {
	v, ok := o.Get(key)
	if !ok {
		return false, false, nil
	}
	if v.IsNull() {
		return false, true, nil
	}
	b, ok := v.Bool()
	if !ok {
		return false, true, typeErr(key, "bool", v)
	}
	return b, true, nil
}

func readNumber(o *patch.Object, key string) (float64, bool, error) {
	v, ok := o.Get(key)
	if !ok {
		return 0, false, nil
	}
	if v.IsNull() {
		return 0, true, nil
	}
	n, ok := v.Number()
	if !ok {
		return 0, true, typeErr(key, "number", v)
	}
	return n, true, nil
}

func readString(o *patch.Object, key string) (string, bool, error) {
	v, ok := o.Get(key)
	if !ok {
		return "", false, nil
	}
	if v.IsNull() {
		return "", true, nil
	}
	s, ok := v.Str()
	if !ok {
		return "", true, typeErr(key, "string", v)
	}
	return s, true, nil
}

func readActorID(o *patch.Object, key string) (ecs.ActorID, bool, error) {
	s, present, err := readString(o, key)
	if err != nil || !present {
		return ecs.NilActorID, present, err
	}
	id, err := ecs.ParseActorID(s)
	if err != nil {
		return ecs.NilActorID, true, fmt.Errorf("%w: %s: %v", ErrFieldType, key, err)
	}
	return id, true, nil
}

func readAssetID(o *patch.Object, key string) (ecs.AssetID, bool, error) {
	s, present, err := readString(o, key)
	if err != nil || !present || s == "" {
		return ecs.NilAssetID, present, err
	}
	id, err := ecs.ParseAssetID(s)
	if err != nil {
		return ecs.NilAssetID, true, fmt.Errorf("%w: %s: %v", ErrFieldType, key, err)
	}
	return id, true, nil
}

func typeErr(key, want string, got patch.Value) error {
	return fmt.Errorf("%w: %s is %s, want %s", ErrFieldType, key, got.Kind(), want)
}
