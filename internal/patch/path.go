package patch

import "fmt"

// ExtractPath copies the value found at path in src into the sparse mirror
// dst, creating intermediate objects in dst as needed.
//
// A path missing from src is not an error: nothing is written and nil is
// returned. Rich values are written as their wire form, and the written
// value is a deep copy so later source mutations never leak into dst. Every
// segment is validated before dst is touched.
func ExtractPath(src Value, dst *Object, path ...string) error {
	_, _, err := extract(src, dst, path)
	return err
}

// extract is ExtractPath that also returns the value written and whether
// anything was written at all.
func extract(src Value, dst *Object, path []string) (Value, bool, error) {
	if err := ValidatePath(path); err != nil {
		return Value{}, false, err
	}

	last := len(path) - 1
	cur := src
	for _, field := range path[:last] {
		next, ok := child(cur, field)
		if !ok {
			return Value{}, false, nil
		}
		cur = next
	}
	leaf, ok := child(cur, path[last])
	if !ok {
		return Value{}, false, nil
	}

	node := dst
	for i, field := range path[:last] {
		existing, ok := node.Get(field)
		if !ok {
			o := NewObject()
			node.Set(field, Obj(o))
			node = o
			continue
		}
		o, isObj := existing.Object()
		if !isObj {
			return Value{}, false, fmt.Errorf("%w: %v", ErrPathConflict, path[:i+1])
		}
		node = o
	}
	v := Clone(leaf)
	node.Set(path[last], v)
	return v, true, nil
}

// child reads key from an object value, looking through rich values.
func child(v Value, key string) (Value, bool) {
	o, ok := v.Wire().Object()
	if !ok {
		return Value{}, false
	}
	return o.Get(key)
}

// Lookup reads the value at path. Segments are not validated; Lookup never
// writes.
func Lookup(v Value, path ...string) (Value, bool) {
	cur := v
	for _, field := range path {
		next, ok := child(cur, field)
		if !ok {
			return Value{}, false
		}
		cur = next
	}
	return cur, true
}
