package patch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Kind discriminates the variants of Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindObject
	KindArray
	KindRich
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	case KindRich:
		return "rich"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// WireValuer is implemented by replicated types that serialize themselves to
// plain wire data. The codec writes the result instead of the rich value.
type WireValuer interface {
	ToWireValue() Value
}

// Value is a JSON-shaped tagged union. The zero Value is null. Object values
// share their backing *Object, so a mirror can be navigated and mutated in
// place; everything else is copied by value.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	obj  *Object
	arr  []Value
	rich WireValuer
}

func Null() Value                { return Value{} }
func Bool(b bool) Value          { return Value{kind: KindBool, b: b} }
func Number(n float64) Value     { return Value{kind: KindNumber, n: n} }
func String(s string) Value      { return Value{kind: KindString, s: s} }
func Obj(o *Object) Value        { return Value{kind: KindObject, obj: o} }
func Array(items ...Value) Value { return Value{kind: KindArray, arr: items} }

// Rich wraps a value that exposes its own wire form. A nil valuer is null.
func Rich(w WireValuer) Value {
	if w == nil {
		return Null()
	}
	return Value{kind: KindRich, rich: w}
}

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) Bool() (bool, bool)      { return v.b, v.kind == KindBool }
func (v Value) Number() (float64, bool) { return v.n, v.kind == KindNumber }
func (v Value) Str() (string, bool)     { return v.s, v.kind == KindString }
func (v Value) Items() ([]Value, bool)  { return v.arr, v.kind == KindArray }

// Object returns the backing object of an object value.
func (v Value) Object() (*Object, bool) {
	if v.kind != KindObject {
		return nil, false
	}
	return v.obj, true
}

// Wire returns the plain form: rich values are replaced by their wire value,
// everything else is returned as is.
func (v Value) Wire() Value {
	if v.kind == KindRich {
		return v.rich.ToWireValue()
	}
	return v
}

// Truthy follows the usual falsy set: null, false, 0, and "".
func (v Value) Truthy() bool {
	switch v.kind {
	case KindNull:
		return false
	case KindBool:
		return v.b
	case KindNumber:
		return v.n != 0
	case KindString:
		return v.s != ""
	default:
		return true
	}
}

// Equal compares the wire forms of two values structurally.
func Equal(a, b Value) bool {
	a, b = a.Wire(), b.Wire()
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindNumber:
		return a.n == b.n
	case KindString:
		return a.s == b.s
	case KindArray:
		if len(a.arr) != len(b.arr) {
			return false
		}
		for i := range a.arr {
			if !Equal(a.arr[i], b.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if a.obj.Len() != b.obj.Len() {
			return false
		}
		for k, av := range a.obj.fields {
			bv, ok := b.obj.fields[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	}
	return false
}

// Clone deep-copies the wire form of v.
func Clone(v Value) Value {
	v = v.Wire()
	switch v.kind {
	case KindObject:
		o := NewObject()
		for k, fv := range v.obj.fields {
			o.fields[k] = Clone(fv)
		}
		return Obj(o)
	case KindArray:
		items := make([]Value, len(v.arr))
		for i := range v.arr {
			items[i] = Clone(v.arr[i])
		}
		return Array(items...)
	}
	return v
}

// Object is a string-keyed container with reference semantics.
type Object struct {
	fields map[string]Value
}

func NewObject() *Object {
	return &Object{fields: make(map[string]Value)}
}

func (o *Object) Get(key string) (Value, bool) {
	if o == nil {
		return Value{}, false
	}
	v, ok := o.fields[key]
	return v, ok
}

func (o *Object) Has(key string) bool {
	_, ok := o.Get(key)
	return ok
}

// Set stores v under key. It returns o so literals can be chained.
func (o *Object) Set(key string, v Value) *Object {
	o.fields[key] = v
	return o
}

func (o *Object) Delete(key string) {
	delete(o.fields, key)
}

func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.fields)
}

// Keys returns the keys in sorted order.
func (o *Object) Keys() []string {
	keys := make([]string, 0, o.Len())
	if o == nil {
		return keys
	}
	for k := range o.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MarshalJSON encodes the wire form. Object keys come out sorted, which the
// digest relies on.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindNumber:
		return json.Marshal(v.n)
	case KindString:
		return json.Marshal(v.s)
	case KindArray:
		items := v.arr
		if items == nil {
			items = []Value{}
		}
		return json.Marshal(items)
	case KindObject:
		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, k := range v.obj.Keys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			vb, err := v.obj.fields[k].MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(vb)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	case KindRich:
		return v.rich.ToWireValue().MarshalJSON()
	}
	return nil, fmt.Errorf("patch: cannot marshal %s", v.kind)
}

// UnmarshalJSON decodes any JSON document into a plain Value.
func (v *Value) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = out
	return nil
}

// FromAny converts the output of encoding/json (map[string]any, []any,
// float64, string, bool, nil) into a Value.
func FromAny(raw any) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(x), nil
	case float64:
		return Number(x), nil
	case int:
		return Number(float64(x)), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("patch: bad number %q: %w", x, err)
		}
		return Number(f), nil
	case string:
		return String(x), nil
	case []any:
		items := make([]Value, len(x))
		for i := range x {
			iv, err := FromAny(x[i])
			if err != nil {
				return Value{}, err
			}
			items[i] = iv
		}
		return Array(items...), nil
	case map[string]any:
		o := NewObject()
		for k, fv := range x {
			iv, err := FromAny(fv)
			if err != nil {
				return Value{}, err
			}
			o.fields[k] = iv
		}
		return Obj(o), nil
	case Value:
		return x, nil
	}
	return Value{}, fmt.Errorf("patch: unsupported type %T", raw)
}
